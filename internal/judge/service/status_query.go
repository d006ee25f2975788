package service

import (
	"context"
	"errors"

	"judgecore/internal/judge/model"
	"judgecore/internal/judge/repository"
	appErr "judgecore/pkg/errors"
)

// StatusQuery serves the live progress record while present and the durable record otherwise.
type StatusQuery struct {
	progress    ProgressStore
	submissions repository.SubmissionRepository
}

// NewStatusQuery creates a status reader.
func NewStatusQuery(progress ProgressStore, submissions repository.SubmissionRepository) *StatusQuery {
	return &StatusQuery{progress: progress, submissions: submissions}
}

// Get returns the freshest known status of submissionID.
func (q *StatusQuery) Get(ctx context.Context, submissionID string) (model.JudgeStatus, error) {
	if submissionID == "" {
		return model.JudgeStatus{}, appErr.ValidationError("submission_id", "required")
	}
	if q.progress != nil {
		p, err := q.progress.Get(ctx, submissionID)
		if err == nil && p != nil {
			return model.JudgeStatus{
				SubmissionID: submissionID,
				Verdict:      p.Verdict,
				PassedTests:  p.PassedTests,
				TotalTests:   p.TotalTests,
				Finished:     p.Finished,
				Source:       model.StatusSourceProgress,
			}, nil
		}
	}

	sub, err := q.submissions.Get(ctx, submissionID)
	if err != nil {
		if errors.Is(err, repository.ErrSubmissionNotFound) {
			return model.JudgeStatus{}, appErr.New(appErr.SubmissionNotFound)
		}
		return model.JudgeStatus{}, appErr.Wrapf(err, appErr.DatabaseError, "load submission failed")
	}
	status := model.JudgeStatus{
		SubmissionID: submissionID,
		Verdict:      sub.Verdict,
		PassedTests:  sub.PassedTests,
		TotalTests:   sub.TotalTests,
		Finished:     sub.Verdict.IsTerminal(),
		TimeUsedMs:   sub.TimeUsedMs,
		MemoryUsedKB: sub.MemoryUsedKB,
		Source:       model.StatusSourceRecord,
	}
	if sub.Verdict.HasDiagnostic() {
		status.ErrorMessage = sub.ErrorMessage
	}
	return status, nil
}
