package sandbox

// Status is the pipeline's view of a sandbox outcome.
type Status string

const (
	StatusAccepted            Status = "Accepted"
	StatusTimeLimitExceeded   Status = "TimeLimitExceeded"
	StatusMemoryLimitExceeded Status = "MemoryLimitExceeded"
	StatusRuntimeError        Status = "RuntimeError"
	// StatusOtherFailure covers sandbox-side faults not attributable to the program.
	StatusOtherFailure Status = "OtherFailure"
)

// Status strings reported by go-judge.
const (
	rawAccepted            = "Accepted"
	rawMemoryLimitExceeded = "Memory Limit Exceeded"
	rawTimeLimitExceeded   = "Time Limit Exceeded"
	rawOutputLimitExceeded = "Output Limit Exceeded"
	rawFileError           = "File Error"
	rawNonzeroExitStatus   = "Nonzero Exit Status"
	rawSignalled           = "Signalled"
	rawDangerousSyscall    = "Dangerous Syscall"
	rawInternalError       = "Internal Error"
)

// MapStatus converts a go-judge status string.
func MapStatus(raw string) Status {
	switch raw {
	case rawAccepted:
		return StatusAccepted
	case rawTimeLimitExceeded:
		return StatusTimeLimitExceeded
	case rawMemoryLimitExceeded:
		return StatusMemoryLimitExceeded
	case rawNonzeroExitStatus, rawSignalled, rawOutputLimitExceeded, rawDangerousSyscall:
		return StatusRuntimeError
	case rawFileError, rawInternalError:
		return StatusOtherFailure
	default:
		return StatusOtherFailure
	}
}

// ExitedNonzero reports whether the program ran to completion with a non-zero exit code.
func (r Result) ExitedNonzero() bool {
	return r.RawStatus == rawNonzeroExitStatus
}
