package watcher

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smendola/conciser/internal/logger"
)

type recorder struct {
	mu       sync.Mutex
	locators []string
	err      error
}

func (r *recorder) handle(ctx context.Context, locator string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.locators = append(r.locators, locator)
	return r.err
}

func (r *recorder) got() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.locators...)
}

func startWatcher(t *testing.T, dir string, rec *recorder) (context.CancelFunc, chan error) {
	t.Helper()
	w, err := New(dir, rec.handle, nil, logger.Nop(), 1)
	require.NoError(t, err)
	w.settleDelay = 10 * time.Millisecond
	t.Cleanup(func() { w.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Start(ctx) }()
	return cancel, done
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestStart_ProcessesExistingFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("https://youtu.be/abc12345678\n"), 0o644))

	rec := &recorder{}
	cancel, done := startWatcher(t, dir, rec)
	defer cancel()

	waitFor(t, func() bool { return len(rec.got()) == 1 })
	assert.Equal(t, []string{"https://youtu.be/abc12345678"}, rec.got())

	waitFor(t, func() bool {
		_, err := os.Stat(filepath.Join(dir, "a.txt.done"))
		return err == nil
	})

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestStart_PicksUpNewFiles(t *testing.T) {
	dir := t.TempDir()
	rec := &recorder{}
	cancel, _ := startWatcher(t, dir, rec)
	defer cancel()

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "new.txt"), []byte("# queued by ops\nhttps://youtu.be/xyz98765432\n"), 0o644))

	waitFor(t, func() bool { return len(rec.got()) == 1 })
	assert.Equal(t, "https://youtu.be/xyz98765432", rec.got()[0])
}

func TestStart_IgnoresNonJobFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.md"), []byte("https://youtu.be/abc\n"), 0o644))

	rec := &recorder{}
	cancel, _ := startWatcher(t, dir, rec)
	defer cancel()

	time.Sleep(100 * time.Millisecond)
	assert.Empty(t, rec.got())
}

func TestStart_FailedJobMarksFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.txt"), []byte("https://youtu.be/broken000000\n"), 0o644))

	rec := &recorder{err: errors.New("boom")}
	cancel, _ := startWatcher(t, dir, rec)
	defer cancel()

	waitFor(t, func() bool {
		_, err := os.Stat(filepath.Join(dir, "bad.txt.failed"))
		return err == nil
	})
}

func TestStart_SameKeyJobsNeverOverlap(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("https://youtu.be/same11111111\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.txt"), []byte("https://youtu.be/same11111111\n"), 0o644))

	var mu sync.Mutex
	active, maxActive, calls := 0, 0, 0
	handler := func(ctx context.Context, locator string) error {
		mu.Lock()
		active++
		if active > maxActive {
			maxActive = active
		}
		mu.Unlock()

		time.Sleep(50 * time.Millisecond)

		mu.Lock()
		active--
		calls++
		mu.Unlock()
		return nil
	}

	key := func(locator string) string { return locator }
	w, err := New(dir, handler, key, logger.Nop(), 2)
	require.NoError(t, err)
	w.settleDelay = 10 * time.Millisecond
	t.Cleanup(func() { w.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = w.Start(ctx) }()

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return calls == 2
	})
	assert.Equal(t, 1, maxActive)
}

func TestReadLocator(t *testing.T) {
	dir := t.TempDir()

	p := filepath.Join(dir, "job.txt")
	require.NoError(t, os.WriteFile(p, []byte("\n# comment\n  https://youtu.be/ok \nsecond line ignored\n"), 0o644))
	loc, err := readLocator(p)
	require.NoError(t, err)
	assert.Equal(t, "https://youtu.be/ok", loc)

	empty := filepath.Join(dir, "empty.txt")
	require.NoError(t, os.WriteFile(empty, []byte("\n#only comments\n"), 0o644))
	_, err = readLocator(empty)
	assert.Error(t, err)
}
