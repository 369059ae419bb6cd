package models

import "strings"

// Scope paths identify the hierarchy node a workflow operates
// against: "projectID/sample" for sample-level workflows,
// "projectID/sample/libprep/seqrun" for run-level ones.

// SampleScope builds a sample-level scope path.
func SampleScope(projectID, sample string) string {
	return projectID + "/" + sample
}

// SeqrunScope builds a run-level scope path.
func SeqrunScope(projectID, sample, libprep, seqrun string) string {
	return strings.Join([]string{projectID, sample, libprep, seqrun}, "/")
}

// RunLevel reports whether the scope addresses a sequencing run
// rather than a sample.
func RunLevel(scope string) bool {
	return strings.Count(scope, "/") == 3
}

// ScopeSegments splits a scope path into its identity segments.
func ScopeSegments(scope string) []string {
	return strings.Split(scope, "/")
}
