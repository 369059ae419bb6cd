package qc

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/strand-cloud/strand/internal/models"
)

func TestLanesFromFastqs(t *testing.T) {
	lanes := LanesFromFastqs([]string{
		"S1_S1_L001_R1_001.fastq.gz",
		"S1_S1_L001_R2_001.fastq.gz",
		"S1_S1_L002_R1_001.fastq.gz",
		"S1_S1_L002_R2_001.fastq.gz",
		"undetermined.fastq.gz",
	})

	require.Equal(t, []int{1, 2}, lanes)
}

func TestLanesFromFastqsDoubleDigitLane(t *testing.T) {
	lanes := LanesFromFastqs([]string{
		"S1_S1_L001_R1_001.fastq.gz",
		"S1_S1_L010_R1_001.fastq.gz",
	})

	require.Equal(t, []int{1, 10}, lanes)
}

func writeLane(t *testing.T, dir, seqrun string, lane int, content string) {
	t.Helper()

	qcDir := filepath.Join(dir, "qc")
	require.NoError(t, os.MkdirAll(qcDir, 0o755))
	path := filepath.Join(qcDir, fmt.Sprintf("%s.lane%d.qc.yaml", seqrun, lane))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func seqrunRow(dir string, lanes []int) *models.LedgerRow {
	row := &models.LedgerRow{
		ScopePath:      "P100/S1/A/run1",
		Workflow:       "align",
		Engine:         "piper",
		AnalysisDir:    dir,
		SchedulerJobID: "42",
	}
	if lanes != nil {
		row.Metadata = map[string]interface{}{"lanes": lanes}
	}
	return row
}

func TestAggregateRun(t *testing.T) {
	dir := t.TempDir()
	writeLane(t, dir, "run1", 1, "coverage: 30.0\nreads: 1000\npercent_q30: 92.5\n")
	writeLane(t, dir, "run1", 2, "coverage: 20.0\nreads: 500\npercent_q30: 90.0\n")

	payload, err := AggregateRun(seqrunRow(dir, []int{1, 2}))
	require.NoError(t, err)

	require.InDelta(t, 25.0, payload["mean_coverage"], 0.001)
	require.EqualValues(t, 1500, payload["total_reads"])

	lanes := payload["lanes"].(map[string]interface{})
	require.Len(t, lanes, 2)
	require.InDelta(t, 30.0, lanes["1"].(LaneMetrics).Coverage, 0.001)
}

func TestAggregateRunMissingExpectedLane(t *testing.T) {
	dir := t.TempDir()
	writeLane(t, dir, "run1", 1, "coverage: 30.0\nreads: 1000\npercent_q30: 92.5\n")

	_, err := AggregateRun(seqrunRow(dir, []int{1, 2}))
	require.Error(t, err)
}

func TestAggregateRunDiscoversLanesWithoutMetadata(t *testing.T) {
	dir := t.TempDir()
	writeLane(t, dir, "run1", 1, "coverage: 10.0\nreads: 100\npercent_q30: 88.0\n")

	payload, err := AggregateRun(seqrunRow(dir, nil))
	require.NoError(t, err)
	require.InDelta(t, 10.0, payload["mean_coverage"], 0.001)
}

func TestAggregateRunNoLanesAtAll(t *testing.T) {
	_, err := AggregateRun(seqrunRow(t.TempDir(), nil))
	require.Error(t, err)
}

func TestAggregateRunUnparseableLane(t *testing.T) {
	dir := t.TempDir()
	writeLane(t, dir, "run1", 1, "coverage: [not a number\n")

	_, err := AggregateRun(seqrunRow(dir, []int{1}))
	require.Error(t, err)
}
