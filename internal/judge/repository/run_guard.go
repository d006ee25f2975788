package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"judgecore/internal/common/cache"
	appErr "judgecore/pkg/errors"
)

const defaultRunTokenTTL = 2 * time.Hour

// RunGuard tracks which judge run currently owns a submission.
// A new claim always replaces the previous one, so the latest rejudge wins.
type RunGuard struct {
	cache cache.Cache
	ttl   time.Duration
}

// NewRunGuard creates a guard whose tokens expire after ttl.
func NewRunGuard(cacheClient cache.Cache, ttl time.Duration) *RunGuard {
	if ttl <= 0 {
		ttl = defaultRunTokenTTL
	}
	return &RunGuard{cache: cacheClient, ttl: ttl}
}

// RunKey is the cache key holding the current run token.
func RunKey(submissionID string) string {
	return fmt.Sprintf("submission:%s:run", submissionID)
}

// Claim makes a fresh token current for submissionID and returns it.
func (g *RunGuard) Claim(ctx context.Context, submissionID string) (string, error) {
	token := uuid.NewString()
	if err := g.cache.Set(ctx, RunKey(submissionID), token, g.ttl); err != nil {
		return "", appErr.Wrapf(err, appErr.CacheSetFailed, "claim run token failed")
	}
	return token, nil
}

// IsCurrent reports whether token still owns submissionID.
// An expired token counts as current: nobody has superseded it.
func (g *RunGuard) IsCurrent(ctx context.Context, submissionID, token string) (bool, error) {
	val, err := g.cache.Get(ctx, RunKey(submissionID))
	if err != nil {
		return false, appErr.Wrapf(err, appErr.CacheError, "load run token failed")
	}
	return val == "" || val == token, nil
}

// Release drops the token if it is still current.
func (g *RunGuard) Release(ctx context.Context, submissionID, token string) error {
	if _, err := g.cache.Unlock(ctx, RunKey(submissionID), token); err != nil {
		return appErr.Wrapf(err, appErr.CacheError, "release run token failed")
	}
	return nil
}
