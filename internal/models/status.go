package models

// Status is an analysis status held by the remote status
// authority. Run-level and sample-level scopes use separate
// vocabularies; the predicates below let the launch gate and
// the reconciler treat both levels uniformly.
type Status string

// Run-level alignment statuses.
const (
	StatusNotRunning        Status = "NOT_RUNNING"
	StatusRunning           Status = "RUNNING"
	StatusDone              Status = "DONE"
	StatusComputationFailed Status = "COMPUTATION_FAILED"
	StatusDataFailed        Status = "DATA_FAILED"
)

// Sample-level analysis statuses.
const (
	StatusToAnalyze     Status = "TO_ANALYZE"
	StatusUnderAnalysis Status = "UNDER_ANALYSIS"
	StatusAnalyzed      Status = "ANALYZED"
	StatusFailed        Status = "FAILED"
	StatusIgnore        Status = "IGNORE"
)

// InProgress reports whether the status indicates a job is
// believed to be running.
func (s Status) InProgress() bool {
	return s == StatusRunning || s == StatusUnderAnalysis
}

// TerminalSuccess reports whether the status is a successful
// terminal state.
func (s Status) TerminalSuccess() bool {
	return s == StatusDone || s == StatusAnalyzed
}

// TerminalFailure reports whether the status is a failed
// terminal state.
func (s Status) TerminalFailure() bool {
	return s == StatusFailed ||
		s == StatusComputationFailed ||
		s == StatusDataFailed
}

// RunningFor returns the in-progress status for the scope's level.
func RunningFor(scope string) Status {
	if RunLevel(scope) {
		return StatusRunning
	}
	return StatusUnderAnalysis
}

// SuccessFor returns the successful terminal status for the
// scope's level.
func SuccessFor(scope string) Status {
	if RunLevel(scope) {
		return StatusDone
	}
	return StatusAnalyzed
}

// FailureFor returns the computation-failure terminal status for
// the scope's level.
func FailureFor(scope string) Status {
	if RunLevel(scope) {
		return StatusComputationFailed
	}
	return StatusFailed
}
