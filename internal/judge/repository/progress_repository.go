package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"judgecore/internal/common/cache"
	"judgecore/internal/judge/model"
	appErr "judgecore/pkg/errors"
)

// DefaultProgressTTL bounds how long a crashed worker's progress record can linger.
const DefaultProgressTTL = time.Hour

// ProgressRepository stores the ephemeral per-case progress record.
type ProgressRepository struct {
	cache cache.Cache
	ttl   time.Duration
}

// NewProgressRepository creates a progress repository.
func NewProgressRepository(cacheClient cache.Cache, ttl time.Duration) *ProgressRepository {
	if ttl <= 0 {
		ttl = DefaultProgressTTL
	}
	return &ProgressRepository{cache: cacheClient, ttl: ttl}
}

// ProgressKey is the cache key of a submission's progress record.
func ProgressKey(submissionID string) string {
	return fmt.Sprintf("submission:%s:progress", submissionID)
}

// Publish overwrites the progress record and refreshes its expiry.
func (r *ProgressRepository) Publish(ctx context.Context, submissionID string, p model.Progress) error {
	if submissionID == "" {
		return appErr.ValidationError("submission_id", "required")
	}
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal progress failed: %w", err)
	}
	if err := r.cache.Set(ctx, ProgressKey(submissionID), string(data), r.ttl); err != nil {
		return appErr.Wrapf(err, appErr.CacheSetFailed, "store progress failed")
	}
	return nil
}

// Get returns the progress record, or nil when there is none.
func (r *ProgressRepository) Get(ctx context.Context, submissionID string) (*model.Progress, error) {
	if submissionID == "" {
		return nil, appErr.ValidationError("submission_id", "required")
	}
	val, err := r.cache.Get(ctx, ProgressKey(submissionID))
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.CacheError, "load progress failed")
	}
	if val == "" {
		return nil, nil
	}
	var p model.Progress
	if err := json.Unmarshal([]byte(val), &p); err != nil {
		return nil, appErr.Wrapf(err, appErr.CacheError, "decode progress failed")
	}
	return &p, nil
}

// Clear deletes the progress record.
func (r *ProgressRepository) Clear(ctx context.Context, submissionID string) error {
	if err := r.cache.Del(ctx, ProgressKey(submissionID)); err != nil {
		return appErr.Wrapf(err, appErr.CacheError, "clear progress failed")
	}
	return nil
}
