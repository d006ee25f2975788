package service

import (
	"context"

	"judgecore/internal/judge/checker"
	"judgecore/internal/judge/language"
	"judgecore/internal/judge/model"
	"judgecore/internal/judge/testdata"
)

// ProgressStore persists the ephemeral progress record.
type ProgressStore interface {
	Publish(ctx context.Context, submissionID string, p model.Progress) error
	Get(ctx context.Context, submissionID string) (*model.Progress, error)
	Clear(ctx context.Context, submissionID string) error
}

// RunTokenStore decides which run owns a submission.
type RunTokenStore interface {
	Claim(ctx context.Context, submissionID string) (string, error)
	IsCurrent(ctx context.Context, submissionID, token string) (bool, error)
	Release(ctx context.Context, submissionID, token string) error
}

// DataLoader resolves a problem's judge configuration and cases.
type DataLoader interface {
	Load(ctx context.Context, problemID int64) (*testdata.Set, error)
}

// LanguageTable looks up language profiles.
type LanguageTable interface {
	Get(id string) (language.Profile, error)
}

// CheckerRunner builds and runs special-judge checkers.
type CheckerRunner interface {
	Compile(ctx context.Context, problemDataDir, checkerSourceName string) (string, error)
	Check(ctx context.Context, checkerID, input, output, answer string) (checker.Verdict, error)
}
