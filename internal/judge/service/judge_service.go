package service

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"
	"strings"

	"go.uber.org/zap"

	"judgecore/internal/common/mq"
	"judgecore/internal/judge/model"
	appErr "judgecore/pkg/errors"
	"judgecore/pkg/utils/logger"
)

// JobRunner judges one submission end to end.
type JobRunner interface {
	Run(ctx context.Context, submissionID string) error
}

// Service is the queue-facing dispatcher: at most poolSize jobs run at once,
// and one job's failure or panic never reaches another.
type Service struct {
	runner JobRunner
	sem    chan struct{}
}

// NewService creates a dispatcher with poolSize worker slots.
func NewService(runner JobRunner, poolSize int) (*Service, error) {
	if runner == nil {
		return nil, fmt.Errorf("runner is required")
	}
	if poolSize <= 0 {
		poolSize = 1
	}
	return &Service{
		runner: runner,
		sem:    make(chan struct{}, poolSize),
	}, nil
}

// PoolSize returns the number of worker slots.
func (s *Service) PoolSize() int {
	return cap(s.sem)
}

// HandleMessage processes a judge job message.
// Returning an error sends the message to the dead letter topic; it is never retried.
// Payloads that cannot be decoded into a submission id are dead-lettered as
// MessageDecodeFailed.
func (s *Service) HandleMessage(ctx context.Context, msg *mq.Message) (err error) {
	if msg == nil {
		return appErr.New(appErr.MessageDecodeFailed).WithMessage("message is nil")
	}
	var payload model.JudgeMessage
	if err := json.Unmarshal(msg.Body, &payload); err != nil {
		return appErr.Wrapf(err, appErr.MessageDecodeFailed, "decode message failed")
	}
	payload.SubmissionID = strings.TrimSpace(payload.SubmissionID)
	if payload.SubmissionID == "" {
		return appErr.New(appErr.MessageDecodeFailed).WithMessage("message missing submissionId")
	}
	ctx = logger.WithSubmission(ctx, payload.SubmissionID)

	if err := s.acquireSlot(ctx); err != nil {
		return err
	}
	defer s.releaseSlot()

	defer func() {
		if p := recover(); p != nil {
			logger.Error(ctx, "judge job panicked",
				zap.Any("panic", p),
				zap.String("stack", string(debug.Stack())),
			)
			err = appErr.Newf(appErr.JudgeSystemError, "judge job panicked: %v", p)
		}
	}()

	if err := s.runner.Run(ctx, payload.SubmissionID); err != nil {
		return s.handleFailure(ctx, msg, err)
	}
	return nil
}

func (s *Service) acquireSlot(ctx context.Context) error {
	select {
	case s.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Service) releaseSlot() {
	select {
	case <-s.sem:
	default:
	}
}

// handleFailure drops jobs that can never succeed and surfaces the rest.
func (s *Service) handleFailure(ctx context.Context, msg *mq.Message, err error) error {
	code := appErr.GetCode(err)
	if code == appErr.SubmissionNotFound || code == appErr.InvalidParams {
		logger.Warn(ctx, "dropping judge job", zap.String("topic", msg.Topic), zap.Error(err))
		return nil
	}
	logger.Error(ctx, "judge job failed", zap.String("topic", msg.Topic), zap.Error(err))
	return err
}
