package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"judgecore/internal/judge/model"
	"judgecore/pkg/utils/logger"
)

const defaultProgressTimeout = 2 * time.Second

// ProgressPublisher emits per-case progress. Publishing is fire-and-forget:
// a cache outage must never change a verdict.
type ProgressPublisher struct {
	store   ProgressStore
	timeout time.Duration
}

// NewProgressPublisher creates a publisher writing to store.
func NewProgressPublisher(store ProgressStore, timeout time.Duration) *ProgressPublisher {
	if timeout <= 0 {
		timeout = defaultProgressTimeout
	}
	return &ProgressPublisher{store: store, timeout: timeout}
}

// Publish overwrites the progress record of submissionID.
func (p *ProgressPublisher) Publish(ctx context.Context, submissionID string, verdict model.Verdict, passed, total int, finished bool) {
	if p == nil || p.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.timeout)
	defer cancel()
	err := p.store.Publish(ctx, submissionID, model.Progress{
		Verdict:     verdict,
		PassedTests: passed,
		TotalTests:  total,
		Finished:    finished,
	})
	if err != nil {
		logger.Warn(ctx, "publish progress failed", zap.Int("passed_tests", passed), zap.Error(err))
	}
}

// Clear drops the progress record once the durable record is authoritative.
func (p *ProgressPublisher) Clear(ctx context.Context, submissionID string) {
	if p == nil || p.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.timeout)
	defer cancel()
	if err := p.store.Clear(ctx, submissionID); err != nil {
		logger.Warn(ctx, "clear progress failed", zap.Error(err))
	}
}
