package organize

import (
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Flowcell run directories follow the instrument convention
// <YYMMDD>_<instrument>_<counter>_<position><flowcellID>, for
// example 140117_ST-E00201_0027_AH00C3ALXX.
var runDirPattern = regexp.MustCompile(`^(\d{6})_([^_]+)_(\d+)_([AB])([A-Z0-9]+)$`)

// Project directories come in two sequencing-facility conventions:
// a Project_ prefix with double underscores encoding periods
// (Project_J__Doe_14_01 -> J.Doe_14_01), or a bare facility ID
// such as AB-1234.
var (
	prefixedProjectPattern = regexp.MustCompile(`^Project_(.+)$`)
	facilityProjectPattern = regexp.MustCompile(`^[A-Z]{2}-\d{4}$`)
)

// RunMetadata is the run-level identity parsed from a raw
// instrument output directory.
type RunMetadata struct {
	// Name is the full run directory base name, used as the
	// sequencing run identity in the hierarchy.
	Name       string
	Date       time.Time
	Instrument string
	Position   string
	FlowcellID string
}

// parseRunDir extracts run metadata from the directory name.
// Failure is fatal for this directory only; the caller skips it.
func parseRunDir(dir string) (*RunMetadata, error) {
	base := filepath.Base(filepath.Clean(dir))

	m := runDirPattern.FindStringSubmatch(base)
	if m == nil {
		return nil, errors.Errorf("unparseable run directory name %q", base)
	}

	date, err := time.Parse("060102", m[1])
	if err != nil {
		return nil, errors.Wrapf(err, "unparseable run date in %q", base)
	}

	return &RunMetadata{
		Name:       base,
		Date:       date,
		Instrument: m[2],
		Position:   m[4],
		FlowcellID: m[5],
	}, nil
}

// parseProjectDir recognizes the two project directory conventions
// and returns the normalized project name. ok is false for
// directories that are not projects.
func parseProjectDir(base string) (name string, ok bool) {
	if m := prefixedProjectPattern.FindStringSubmatch(base); m != nil {
		return strings.ReplaceAll(m[1], "__", "."), true
	}
	if facilityProjectPattern.MatchString(base) {
		return base, true
	}
	return "", false
}

// sampleDirName strips the optional Sample_ prefix.
func sampleDirName(base string) string {
	return strings.TrimPrefix(base, "Sample_")
}

// dirEncodedName sanitizes a logical name back into a directory
// name (periods become double underscores).
func dirEncodedName(name string) string {
	return strings.ReplaceAll(name, ".", "__")
}
