package testdata

import (
	"archive/tar"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
	"go.uber.org/zap"

	"judgecore/internal/common/cache"
	"judgecore/internal/common/storage"
	appErr "judgecore/pkg/errors"
	"judgecore/pkg/utils/logger"
)

const (
	lockKeyPrefix   = "judge:datapack:lock:"
	packKeyTemplate = "problems/%d.tar.zst"
	etagFileName    = ".pack-etag"

	defaultLockTTL  = 5 * time.Minute
	defaultLockWait = 2 * time.Minute
	pollInterval    = 200 * time.Millisecond
)

// PackSyncer downloads problem data packs from object storage into the local data dir.
type PackSyncer struct {
	storage  storage.ObjectStorage
	lock     cache.LockOps
	bucket   string
	lockTTL  time.Duration
	lockWait time.Duration
}

// NewPackSyncer creates a syncer. Only one worker across the fleet extracts a given pack;
// the others wait up to lockWait for it to appear.
func NewPackSyncer(storageClient storage.ObjectStorage, lock cache.LockOps, bucket string, lockWait time.Duration) *PackSyncer {
	if lockWait <= 0 {
		lockWait = defaultLockWait
	}
	return &PackSyncer{
		storage:  storageClient,
		lock:     lock,
		bucket:   bucket,
		lockTTL:  defaultLockTTL,
		lockWait: lockWait,
	}
}

// Sync makes dir hold the extracted pack of problemID.
func (s *PackSyncer) Sync(ctx context.Context, problemID int64, dir string) error {
	if s.storage == nil || s.lock == nil {
		return appErr.New(appErr.TestDataSyncFailed).WithMessage("pack syncer is not initialized")
	}
	lockKey := fmt.Sprintf("%s%d", lockKeyPrefix, problemID)
	owner := uuid.NewString()
	locked, err := s.lock.TryLock(ctx, lockKey, owner, s.lockTTL)
	if err != nil {
		return appErr.Wrapf(err, appErr.LockFailed, "acquire data pack lock failed")
	}
	if !locked {
		return s.waitForPack(ctx, dir)
	}
	defer func() {
		if _, err := s.lock.Unlock(context.WithoutCancel(ctx), lockKey, owner); err != nil {
			logger.Warn(ctx, "release data pack lock failed", zap.String("key", lockKey), zap.Error(err))
		}
	}()
	stopRenew := s.renewLock(ctx, lockKey, owner)
	defer stopRenew()

	if ready(dir) {
		return nil
	}

	objectKey := fmt.Sprintf(packKeyTemplate, problemID)
	stat, err := s.storage.StatObject(ctx, s.bucket, objectKey)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return appErr.Wrapf(ErrMissingFile, appErr.TestDataMissing, "data pack %s not found", objectKey)
		}
		return appErr.Wrapf(err, appErr.StorageError, "stat data pack failed")
	}

	start := time.Now()
	if err := os.MkdirAll(filepath.Dir(dir), 0o755); err != nil {
		return appErr.Wrapf(err, appErr.TestDataSyncFailed, "create data root failed")
	}
	staging, err := os.MkdirTemp(filepath.Dir(dir), ".pack-*")
	if err != nil {
		return appErr.Wrapf(err, appErr.TestDataSyncFailed, "create staging dir failed")
	}
	defer func() { _ = os.RemoveAll(staging) }()

	reader, err := s.storage.GetObject(ctx, s.bucket, objectKey)
	if err != nil {
		return appErr.Wrapf(err, appErr.StorageError, "download data pack failed")
	}
	defer func() { _ = reader.Close() }()

	if err := extractPack(reader, staging); err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(staging, etagFileName), []byte(stat.ETag), 0o644); err != nil {
		return appErr.Wrapf(err, appErr.TestDataSyncFailed, "write pack etag failed")
	}
	if !ready(staging) {
		return appErr.Newf(appErr.TestDataInvalid, "data pack %s has no %s", objectKey, ConfigFileName)
	}
	if err := os.RemoveAll(dir); err != nil {
		return appErr.Wrapf(err, appErr.TestDataSyncFailed, "cleanup data dir failed")
	}
	if err := os.Rename(staging, dir); err != nil {
		return appErr.Wrapf(err, appErr.TestDataSyncFailed, "publish data dir failed")
	}
	logger.Info(ctx, "data pack synced",
		zap.Int64("problem_id", problemID),
		zap.Int64("size_bytes", stat.SizeBytes),
		zap.Duration("elapsed", time.Since(start)),
	)
	return nil
}

// WithLockTTL sets how long the sync lock lives without renewal.
func (s *PackSyncer) WithLockTTL(ttl time.Duration) *PackSyncer {
	if ttl > 0 {
		s.lockTTL = ttl
	}
	return s
}

// renewLock keeps the lock alive while a long download runs. The returned func
// stops renewal and waits for it to exit.
func (s *PackSyncer) renewLock(ctx context.Context, key, owner string) func() {
	done := make(chan struct{})
	exited := make(chan struct{})
	go func() {
		defer close(exited)
		ticker := time.NewTicker(s.lockTTL / 3)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			held, err := s.lock.ExtendLock(ctx, key, owner, s.lockTTL)
			if err != nil {
				logger.Warn(ctx, "extend data pack lock failed", zap.String("key", key), zap.Error(err))
				continue
			}
			if !held {
				logger.Warn(ctx, "data pack lock lost during sync", zap.String("key", key))
				return
			}
		}
	}()
	return func() {
		close(done)
		<-exited
	}
}

func (s *PackSyncer) waitForPack(ctx context.Context, dir string) error {
	deadline := time.Now().Add(s.lockWait)
	for {
		if ready(dir) {
			return nil
		}
		if time.Now().After(deadline) {
			return appErr.New(appErr.Timeout).WithMessage("wait for data pack timeout")
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}

func ready(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, ConfigFileName))
	return err == nil
}

func extractPack(src io.Reader, dstDir string) error {
	zr, err := zstd.NewReader(src)
	if err != nil {
		return appErr.Wrapf(err, appErr.TestDataSyncFailed, "create zstd reader failed")
	}
	defer zr.Close()

	root := filepath.Clean(dstDir) + string(filepath.Separator)
	tr := tar.NewReader(zr)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return appErr.Wrapf(err, appErr.TestDataSyncFailed, "read tar entry failed")
		}
		if hdr.Name == "" || filepath.Clean(hdr.Name) == "." {
			continue
		}
		target, err := safeJoin(dstDir, hdr.Name)
		if err != nil || !strings.HasPrefix(target, root) {
			return appErr.Newf(appErr.TestDataInvalid, "tar entry %q escapes data dir", hdr.Name)
		}
		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return appErr.Wrapf(err, appErr.TestDataSyncFailed, "create dir failed")
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return appErr.Wrapf(err, appErr.TestDataSyncFailed, "create parent dir failed")
			}
			file, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, fs.FileMode(hdr.Mode).Perm()|0o400)
			if err != nil {
				return appErr.Wrapf(err, appErr.TestDataSyncFailed, "create file failed")
			}
			if _, err := io.Copy(file, tr); err != nil {
				_ = file.Close()
				return appErr.Wrapf(err, appErr.TestDataSyncFailed, "write file failed")
			}
			if err := file.Close(); err != nil {
				return appErr.Wrapf(err, appErr.TestDataSyncFailed, "close file failed")
			}
		default:
			// links and devices are not part of data packs
		}
	}
}
