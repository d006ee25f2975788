package testdata_test

import (
	"archive/tar"
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/klauspost/compress/zstd"
	"github.com/redis/go-redis/v9"

	"judgecore/internal/common/cache"
	"judgecore/internal/common/storage"
	"judgecore/internal/judge/testdata"
)

type memStorage struct {
	objects map[string][]byte
	gets    int
	// onGet runs before a download starts.
	onGet func()
}

func (m *memStorage) GetObject(ctx context.Context, bucket, key string) (storage.ObjectReader, error) {
	data, ok := m.objects[bucket+"/"+key]
	if !ok {
		return nil, storage.ErrObjectNotFound
	}
	m.gets++
	if m.onGet != nil {
		m.onGet()
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *memStorage) StatObject(ctx context.Context, bucket, key string) (storage.ObjectStat, error) {
	data, ok := m.objects[bucket+"/"+key]
	if !ok {
		return storage.ObjectStat{}, storage.ErrObjectNotFound
	}
	return storage.ObjectStat{SizeBytes: int64(len(data)), ETag: "etag-1"}, nil
}

type tarEntry struct {
	name string
	body string
	dir  bool
}

func buildPack(t *testing.T, files map[string]string) []byte {
	t.Helper()
	entries := make([]tarEntry, 0, len(files))
	for name, body := range files {
		entries = append(entries, tarEntry{name: name, body: body})
	}
	return buildTar(t, entries)
}

func buildTar(t *testing.T, entries []tarEntry) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw, err := zstd.NewWriter(&buf)
	if err != nil {
		t.Fatalf("zstd writer failed: %v", err)
	}
	tw := tar.NewWriter(zw)
	for _, e := range entries {
		hdr := &tar.Header{Name: e.name, Mode: 0o644, Size: int64(len(e.body)), Typeflag: tar.TypeReg}
		if e.dir {
			hdr = &tar.Header{Name: e.name, Mode: 0o755, Typeflag: tar.TypeDir}
		}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatalf("write header failed: %v", err)
		}
		if !e.dir {
			if _, err := tw.Write([]byte(e.body)); err != nil {
				t.Fatalf("write body failed: %v", err)
			}
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatalf("close tar failed: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close zstd failed: %v", err)
	}
	return buf.Bytes()
}

func newLock(t *testing.T) (*cache.RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rc, err := cache.NewRedisCacheWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	if err != nil {
		t.Fatalf("new cache failed: %v", err)
	}
	t.Cleanup(func() { _ = rc.Close() })
	return rc, mr
}

func TestPackSyncExtractsAndLoads(t *testing.T) {
	t.Parallel()
	store := &memStorage{objects: map[string][]byte{
		"judge-data/problems/9.tar.zst": buildPack(t, map[string]string{
			"config.yaml": "cases:\n  - {input: tests/1.in, output: tests/1.out}\n",
			"tests/1.in":  "2\n",
			"tests/1.out": "4\n",
		}),
	}}
	lock, mr := newLock(t)
	root := t.TempDir()
	loader := testdata.NewLoader(root, testdata.NewPackSyncer(store, lock, "judge-data", time.Second))

	set, err := loader.Load(context.Background(), 9)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	tc, err := set.Case(0)
	if err != nil || tc.Expected != "4\n" {
		t.Fatalf("unexpected case %+v err=%v", tc, err)
	}
	etag, err := os.ReadFile(filepath.Join(root, "9", ".pack-etag"))
	if err != nil || string(etag) != "etag-1" {
		t.Fatalf("etag marker missing: %q %v", etag, err)
	}
	if mr.Exists("judge:datapack:lock:9") {
		t.Fatalf("lock should be released after sync")
	}

	if _, err := loader.Load(context.Background(), 9); err != nil {
		t.Fatalf("second load failed: %v", err)
	}
	if store.gets != 1 {
		t.Fatalf("pack should be downloaded once, got %d", store.gets)
	}
}

func TestPackSyncMissingObject(t *testing.T) {
	t.Parallel()
	lock, _ := newLock(t)
	syncer := testdata.NewPackSyncer(&memStorage{objects: map[string][]byte{}}, lock, "judge-data", time.Second)
	err := syncer.Sync(context.Background(), 3, filepath.Join(t.TempDir(), "3"))
	if !errors.Is(err, testdata.ErrMissingFile) {
		t.Fatalf("expected ErrMissingFile, got %v", err)
	}
}

func TestPackSyncRejectsEscapingEntries(t *testing.T) {
	t.Parallel()
	store := &memStorage{objects: map[string][]byte{
		"b/problems/4.tar.zst": buildPack(t, map[string]string{"../evil": "x"}),
	}}
	lock, _ := newLock(t)
	root := t.TempDir()
	err := testdata.NewPackSyncer(store, lock, "b", time.Second).Sync(context.Background(), 4, filepath.Join(root, "4"))
	if err == nil {
		t.Fatalf("expected error for escaping entry")
	}
	if _, statErr := os.Stat(filepath.Join(root, "evil")); !os.IsNotExist(statErr) {
		t.Fatalf("escaping entry must not be written")
	}
}

func TestPackSyncWaitsForOtherWorker(t *testing.T) {
	t.Parallel()
	lock, _ := newLock(t)
	ctx := context.Background()
	if ok, err := lock.TryLock(ctx, "judge:datapack:lock:6", "other-worker", time.Minute); err != nil || !ok {
		t.Fatalf("pre-lock failed: ok=%v err=%v", ok, err)
	}
	dir := filepath.Join(t.TempDir(), "6")
	syncer := testdata.NewPackSyncer(&memStorage{}, lock, "b", 2*time.Second)

	go func() {
		time.Sleep(300 * time.Millisecond)
		_ = os.MkdirAll(dir, 0o755)
		_ = os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("cases: []\n"), 0o644)
	}()
	if err := syncer.Sync(ctx, 6, dir); err != nil {
		t.Fatalf("expected wait to succeed, got %v", err)
	}
}

func TestPackSyncWaitTimeout(t *testing.T) {
	t.Parallel()
	lock, _ := newLock(t)
	ctx := context.Background()
	if ok, err := lock.TryLock(ctx, "judge:datapack:lock:8", "other-worker", time.Minute); err != nil || !ok {
		t.Fatalf("pre-lock failed: ok=%v err=%v", ok, err)
	}
	syncer := testdata.NewPackSyncer(&memStorage{}, lock, "b", 300*time.Millisecond)
	if err := syncer.Sync(ctx, 8, filepath.Join(t.TempDir(), "8")); err == nil {
		t.Fatalf("expected timeout")
	}
}

func TestPackSyncAcceptsDotRootedArchive(t *testing.T) {
	t.Parallel()
	// Layout written by `tar -C dir -cf - .`
	store := &memStorage{objects: map[string][]byte{
		"b/problems/12.tar.zst": buildTar(t, []tarEntry{
			{name: "./", dir: true},
			{name: "./config.yaml", body: "cases:\n  - {input: tests/1.in, output: tests/1.out}\n"},
			{name: "./tests/", dir: true},
			{name: "./tests/1.in", body: "3\n"},
			{name: "./tests/1.out", body: "6\n"},
		}),
	}}
	lock, _ := newLock(t)
	loader := testdata.NewLoader(t.TempDir(), testdata.NewPackSyncer(store, lock, "b", time.Second))

	set, err := loader.Load(context.Background(), 12)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	tc, err := set.Case(0)
	if err != nil || tc.Input != "3\n" || tc.Expected != "6\n" {
		t.Fatalf("unexpected case %+v err=%v", tc, err)
	}
}

func TestPackSyncRenewsLockDuringDownload(t *testing.T) {
	t.Parallel()
	const lockTTL = 300 * time.Millisecond
	lock, mr := newLock(t)
	renewed := false
	store := &memStorage{objects: map[string][]byte{
		"b/problems/13.tar.zst": buildPack(t, map[string]string{
			"config.yaml": "cases:\n  - {input: 1.in, output: 1.out}\n",
			"1.in":        "1\n",
			"1.out":       "2\n",
		}),
	}}
	store.onGet = func() {
		mr.FastForward(250 * time.Millisecond)
		deadline := time.Now().Add(2 * time.Second)
		for time.Now().Before(deadline) {
			if mr.TTL("judge:datapack:lock:13") > 200*time.Millisecond {
				renewed = true
				return
			}
			time.Sleep(10 * time.Millisecond)
		}
	}
	syncer := testdata.NewPackSyncer(store, lock, "b", time.Second).WithLockTTL(lockTTL)
	if err := syncer.Sync(context.Background(), 13, filepath.Join(t.TempDir(), "13")); err != nil {
		t.Fatalf("sync failed: %v", err)
	}
	if !renewed {
		t.Fatalf("lock ttl was not renewed while the download was running")
	}
	if mr.Exists("judge:datapack:lock:13") {
		t.Fatalf("lock should be released after sync")
	}
}
