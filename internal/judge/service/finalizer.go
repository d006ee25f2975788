package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"judgecore/internal/judge/model"
	"judgecore/internal/judge/repository"
	appErr "judgecore/pkg/errors"
	"judgecore/pkg/utils/logger"
)

const defaultFinalizeTimeout = 10 * time.Second

// Finalizer commits the terminal result of a judge run.
type Finalizer struct {
	submissions repository.SubmissionRepository
	progress    *ProgressPublisher
	guard       RunTokenStore
	events      repository.StatusEventPublisher
	timeout     time.Duration
}

// FinalizerConfig holds finalizer dependencies. Guard and Events are optional.
type FinalizerConfig struct {
	Submissions repository.SubmissionRepository
	Progress    *ProgressPublisher
	Guard       RunTokenStore
	Events      repository.StatusEventPublisher
	Timeout     time.Duration
}

// NewFinalizer creates a finalizer.
func NewFinalizer(cfg FinalizerConfig) *Finalizer {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultFinalizeTimeout
	}
	return &Finalizer{
		submissions: cfg.Submissions,
		progress:    cfg.Progress,
		guard:       cfg.Guard,
		events:      cfg.Events,
		timeout:     timeout,
	}
}

// Finalize writes outcome durably on behalf of the run holding token, then clears
// the progress record. It runs detached from ctx cancellation so a timed out or
// cancelled run still lands its verdict. A run whose token was superseded by a
// later claim gets a RunSuperseded error and writes nothing.
// Repeating a call with the same outcome rewrites the same values.
func (f *Finalizer) Finalize(ctx context.Context, token string, outcome model.Outcome) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), f.timeout)
	defer cancel()

	if !outcome.Verdict.IsTerminal() {
		return appErr.Newf(appErr.InvalidParams, "verdict %q is not terminal", outcome.Verdict)
	}
	if !outcome.Verdict.HasDiagnostic() {
		outcome.ErrorMessage = ""
	}
	if outcome.PassedTests > outcome.TotalTests {
		outcome.PassedTests = outcome.TotalTests
	}

	if f.guard != nil && token != "" {
		current, err := f.guard.IsCurrent(ctx, outcome.SubmissionID, token)
		if err != nil {
			logger.Warn(ctx, "check run token failed, finalizing anyway", zap.Error(err))
		} else if !current {
			logger.Info(ctx, "judge run superseded, dropping result", zap.String("verdict", string(outcome.Verdict)))
			return appErr.New(appErr.RunSuperseded)
		}
	}

	f.progress.Publish(ctx, outcome.SubmissionID, outcome.Verdict, outcome.PassedTests, outcome.TotalTests, true)

	writeErr := f.submissions.Finalize(ctx, outcome)

	// The finished record must not outlive a failed durable write.
	f.progress.Clear(ctx, outcome.SubmissionID)

	if f.guard != nil && token != "" {
		if err := f.guard.Release(ctx, outcome.SubmissionID, token); err != nil {
			logger.Warn(ctx, "release run token failed", zap.Error(err))
		}
	}
	if writeErr != nil {
		return appErr.Wrapf(writeErr, appErr.DatabaseError, "finalize submission failed")
	}

	if f.events != nil {
		event := model.StatusEvent{
			SubmissionID: outcome.SubmissionID,
			Verdict:      outcome.Verdict,
			TimeUsedMs:   outcome.TimeUsedMs,
			MemoryUsedKB: outcome.MemoryUsedKB,
			PassedTests:  outcome.PassedTests,
			TotalTests:   outcome.TotalTests,
			FinishedAt:   time.Now().Unix(),
		}
		if err := f.events.PublishFinalStatus(ctx, event); err != nil {
			logger.Warn(ctx, "publish final status event failed", zap.Error(err))
		}
	}
	return nil
}
