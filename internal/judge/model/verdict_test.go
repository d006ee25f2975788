package model_test

import (
	"testing"

	"judgecore/internal/judge/model"
)

func TestVerdictTerminal(t *testing.T) {
	t.Parallel()
	terminal := []model.Verdict{
		model.VerdictAccepted, model.VerdictWrongAnswer, model.VerdictTimeLimitExceeded,
		model.VerdictMemoryLimitExceeded, model.VerdictRuntimeError, model.VerdictCompileError,
		model.VerdictSystemError,
	}
	for _, v := range terminal {
		if !v.IsTerminal() {
			t.Fatalf("expected %s to be terminal", v)
		}
	}
	for _, v := range []model.Verdict{model.VerdictPending, model.VerdictJudging, model.Verdict("Bogus")} {
		if v.IsTerminal() {
			t.Fatalf("expected %s to be non-terminal", v)
		}
	}
}

func TestParseVerdict(t *testing.T) {
	t.Parallel()
	v, err := model.ParseVerdict("WrongAnswer")
	if err != nil || v != model.VerdictWrongAnswer {
		t.Fatalf("unexpected parse result: %v %v", v, err)
	}
	if _, err := model.ParseVerdict("PresentationError"); err == nil {
		t.Fatalf("expected error for verdict outside the enumeration")
	}
}
