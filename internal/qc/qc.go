// Package qc aggregates the per-lane metrics files an alignment
// job leaves behind into the payload published with a successful
// run-level status. Partial numeric results are never published as
// if complete: a missing expected lane fails the whole aggregation.
package qc

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/strand-cloud/strand/internal/models"
)

// The bcl2fastq lane field is three digits (_L001_ through _L999_).
var laneToken = regexp.MustCompile(`_L(\d{3})[_.]`)

// LaneMetrics is the content of one per-lane metrics file.
type LaneMetrics struct {
	Coverage   float64 `yaml:"coverage" json:"coverage"`
	Reads      int64   `yaml:"reads" json:"reads"`
	PercentQ30 float64 `yaml:"percent_q30" json:"percent_q30"`
}

// LanesFromFastqs extracts the lane numbers present in a set of
// fastq file names (the _L00N_ token of the bcl2fastq convention).
func LanesFromFastqs(files []string) []int {
	seen := map[int]bool{}
	for _, f := range files {
		m := laneToken.FindStringSubmatch(filepath.Base(f))
		if m == nil {
			continue
		}
		lane, _ := strconv.Atoi(m[1])
		seen[lane] = true
	}

	lanes := make([]int, 0, len(seen))
	for lane := range seen {
		lanes = append(lanes, lane)
	}
	sort.Ints(lanes)

	return lanes
}

// AggregateRun collects the lane metrics for a completed run-level
// job. Expected lanes come from the launch metadata recorded on the
// ledger row; when absent, the lanes discovered on disk are used
// (at least one required). Any expected lane without a metrics file
// is a hard error and the sequencing run must be marked failed.
func AggregateRun(row *models.LedgerRow) (map[string]interface{}, error) {
	segments := models.ScopeSegments(row.ScopePath)
	seqrun := segments[len(segments)-1]
	qcDir := filepath.Join(row.AnalysisDir, "qc")

	lanes := expectedLanes(row)
	if len(lanes) == 0 {
		var err error
		if lanes, err = discoverLanes(qcDir, seqrun); err != nil {
			return nil, err
		}
	}
	if len(lanes) == 0 {
		return nil, errors.Errorf("no lane metrics found under %v", qcDir)
	}

	perLane := map[string]interface{}{}
	var (
		coverageSum float64
		totalReads  int64
	)

	for _, lane := range lanes {
		path := laneFile(qcDir, seqrun, lane)

		buf, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrapf(err, "lane %d metrics missing for %v", lane, row.ScopePath)
		}

		var m LaneMetrics
		if err := yaml.Unmarshal(buf, &m); err != nil {
			return nil, errors.Wrapf(err, "unparseable lane %d metrics for %v", lane, row.ScopePath)
		}

		perLane[strconv.Itoa(lane)] = m
		coverageSum += m.Coverage
		totalReads += m.Reads
	}

	return map[string]interface{}{
		"lanes":         perLane,
		"mean_coverage": coverageSum / float64(len(lanes)),
		"total_reads":   totalReads,
	}, nil
}

func laneFile(qcDir, seqrun string, lane int) string {
	return filepath.Join(qcDir, fmt.Sprintf("%s.lane%d.qc.yaml", seqrun, lane))
}

// expectedLanes reads the lane list recorded at launch time.
func expectedLanes(row *models.LedgerRow) []int {
	raw, ok := row.Metadata["lanes"]
	if !ok {
		return nil
	}

	switch items := raw.(type) {
	case []int:
		lanes := append([]int(nil), items...)
		sort.Ints(lanes)
		return lanes
	case []interface{}:
		lanes := make([]int, 0, len(items))
		for _, item := range items {
			// JSON round-trips numbers as float64.
			if f, ok := item.(float64); ok {
				lanes = append(lanes, int(f))
			}
		}
		sort.Ints(lanes)
		return lanes
	default:
		return nil
	}
}

func discoverLanes(qcDir, seqrun string) ([]int, error) {
	pattern := filepath.Join(qcDir, seqrun+".lane*.qc.yaml")

	matches, err := doublestar.FilepathGlob(pattern)
	if err != nil {
		return nil, errors.Wrapf(err, "glob lane metrics %v", pattern)
	}

	re := regexp.MustCompile(`\.lane(\d+)\.qc\.yaml$`)
	lanes := make([]int, 0, len(matches))
	for _, m := range matches {
		sub := re.FindStringSubmatch(m)
		if sub == nil {
			continue
		}
		lane, _ := strconv.Atoi(sub[1])
		lanes = append(lanes, lane)
	}
	sort.Ints(lanes)

	return lanes, nil
}
