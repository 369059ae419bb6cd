package models

import "path/filepath"

// ExitCodeMarker is the path of the structured completion signal a
// job writes when it terminates: a single integer exit code. Keyed
// by workflow so two workflows can share an analysis directory.
func ExitCodeMarker(analysisDir, workflow string) string {
	return filepath.Join(analysisDir, workflow+".exit_code")
}

// ExitCodeMarker returns the completion-signal path for this row.
func (r *LedgerRow) ExitCodeMarker() string {
	return ExitCodeMarker(r.AnalysisDir, r.Workflow)
}
