package pipeline

// RunStatus is the aggregate status of a pipeline run.
type RunStatus string

const (
	RunPending        RunStatus = "PENDING"
	RunRunning        RunStatus = "RUNNING"
	RunPausedForInput RunStatus = "PAUSED_FOR_INPUT"
	RunSuccess        RunStatus = "SUCCESS"
	RunFailure        RunStatus = "FAILURE"
	RunAborted        RunStatus = "ABORTED"
)

// Terminal reports whether the run has reached a final status.
func (s RunStatus) Terminal() bool {
	switch s {
	case RunSuccess, RunFailure, RunAborted:
		return true
	default:
		return false
	}
}

// StageStatus is the status of one stage within a run.
type StageStatus string

const (
	StagePending  StageStatus = "PENDING"
	StageRunning  StageStatus = "RUNNING"
	StagePassed   StageStatus = "PASSED"
	StageFailed   StageStatus = "FAILED"
	StageSkipped  StageStatus = "SKIPPED"
	StageTimedOut StageStatus = "TIMED_OUT"
)

// Terminal reports whether the stage has reached a final status.
func (s StageStatus) Terminal() bool {
	switch s {
	case StagePassed, StageFailed, StageSkipped, StageTimedOut:
		return true
	default:
		return false
	}
}

// Failed reports whether the stage ended unsuccessfully. Skipped stages
// are neither passed nor failed.
func (s StageStatus) Failed() bool {
	return s == StageFailed || s == StageTimedOut
}

// Operator-visible exit codes for a finished run.
const (
	ExitSuccess  = 0
	ExitFailure  = 1
	ExitTimedOut = 2
	ExitAborted  = 3
)

// ExitCode maps a finished run to its operator-visible exit code,
// distinguishing failure, timeout and abort causes.
func ExitCode(run *Run) int {
	switch run.Status() {
	case RunSuccess:
		return ExitSuccess
	case RunAborted:
		return ExitAborted
	case RunFailure:
		if run.TimedOut() {
			return ExitTimedOut
		}
		return ExitFailure
	default:
		return ExitFailure
	}
}
