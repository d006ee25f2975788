package model

import "fmt"

// Verdict is the classification stored on a submission.
type Verdict string

const (
	VerdictPending             Verdict = "Pending"
	VerdictJudging             Verdict = "Judging"
	VerdictAccepted            Verdict = "Accepted"
	VerdictWrongAnswer         Verdict = "WrongAnswer"
	VerdictTimeLimitExceeded   Verdict = "TimeLimitExceeded"
	VerdictMemoryLimitExceeded Verdict = "MemoryLimitExceeded"
	VerdictRuntimeError        Verdict = "RuntimeError"
	VerdictCompileError        Verdict = "CompileError"
	VerdictSystemError         Verdict = "SystemError"
)

// IsTerminal reports whether v is a final verdict.
func (v Verdict) IsTerminal() bool {
	switch v {
	case VerdictAccepted, VerdictWrongAnswer, VerdictTimeLimitExceeded,
		VerdictMemoryLimitExceeded, VerdictRuntimeError, VerdictCompileError, VerdictSystemError:
		return true
	case VerdictPending, VerdictJudging:
		return false
	default:
		return false
	}
}

// HasDiagnostic reports whether the error message is shown to the user for v.
func (v Verdict) HasDiagnostic() bool {
	return v == VerdictCompileError || v == VerdictSystemError
}

// ParseVerdict converts a stored string back into a Verdict.
func ParseVerdict(s string) (Verdict, error) {
	v := Verdict(s)
	switch v {
	case VerdictPending, VerdictJudging, VerdictAccepted, VerdictWrongAnswer,
		VerdictTimeLimitExceeded, VerdictMemoryLimitExceeded, VerdictRuntimeError,
		VerdictCompileError, VerdictSystemError:
		return v, nil
	default:
		return "", fmt.Errorf("unknown verdict %q", s)
	}
}
