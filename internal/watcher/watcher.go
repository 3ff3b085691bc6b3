// Package watcher monitors a drop directory for job files: plain text
// files whose first line is a video locator. Each new file is handed
// to the caller's handler, with a semaphore bounding how many jobs run
// at once.
package watcher

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/smendola/conciser/internal/logger"
)

// Handler processes one locator read from a dropped job file. The
// returned error marks the file failed; nil marks it done.
type Handler func(ctx context.Context, locator string) error

// KeyFunc maps a locator to its serialization key. Locators sharing a
// key never run concurrently even when the semaphore allows more than
// one job, so two drops of the same video cannot race over one
// artifact directory. nil keys on the locator itself.
type KeyFunc func(locator string) string

type Watcher struct {
	inputDir string
	handler  Handler
	key      KeyFunc
	log      logger.Logger
	fsw      *fsnotify.Watcher
	sem      chan struct{}
	wg       sync.WaitGroup

	mu    sync.Mutex
	locks map[string]*sync.Mutex

	// settleDelay gives the writer time to finish before the file is
	// read. Tests shrink it.
	settleDelay time.Duration
}

func New(inputDir string, handler Handler, key KeyFunc, log logger.Logger, maxConcurrent int) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := fsw.Add(inputDir); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("watch %s: %w", inputDir, err)
	}
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	return &Watcher{
		inputDir:    inputDir,
		handler:     handler,
		key:         key,
		log:         log,
		fsw:         fsw,
		sem:         make(chan struct{}, maxConcurrent),
		locks:       make(map[string]*sync.Mutex),
		settleDelay: 500 * time.Millisecond,
	}, nil
}

// Start processes job files already in the directory, then blocks
// handling new ones until ctx is cancelled. In-flight jobs are waited
// for on shutdown.
func (w *Watcher) Start(ctx context.Context) error {
	w.log.Infof("watching %s (max concurrent: %d)", w.inputDir, cap(w.sem))

	entries, err := os.ReadDir(w.inputDir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if !e.IsDir() && isJobFile(e.Name()) {
			if err := w.dispatch(ctx, filepath.Join(w.inputDir, e.Name())); err != nil {
				return err
			}
		}
	}

	for {
		select {
		case <-ctx.Done():
			w.log.Infof("waiting for in-flight jobs")
			w.wg.Wait()
			return ctx.Err()

		case event, ok := <-w.fsw.Events:
			if !ok {
				return fmt.Errorf("watcher events channel closed")
			}
			if event.Op&fsnotify.Create == 0 || !isJobFile(event.Name) {
				continue
			}
			time.Sleep(w.settleDelay)
			if err := w.dispatch(ctx, event.Name); err != nil {
				w.wg.Wait()
				return err
			}

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return fmt.Errorf("watcher errors channel closed")
			}
			w.log.Errorf("watcher: %v", err)
		}
	}
}

func (w *Watcher) Close() error { return w.fsw.Close() }

// dispatch claims a semaphore slot and runs the job file's locator in
// the background, renaming the file to record the outcome.
func (w *Watcher) dispatch(ctx context.Context, path string) error {
	select {
	case w.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer func() { <-w.sem }()

		locator, err := readLocator(path)
		if err != nil {
			w.log.Errorf("%s: %v", path, err)
			w.markFile(path, ".failed")
			return
		}
		unlock := w.lockKey(locator)
		defer unlock()

		w.log.Infof("job file %s: %s", filepath.Base(path), locator)
		if err := w.handler(ctx, locator); err != nil {
			w.log.Errorf("process %s: %v", locator, err)
			w.markFile(path, ".failed")
			return
		}
		w.markFile(path, ".done")
	}()
	return nil
}

// lockKey takes the per-key mutex for locator, creating it on first
// use. The returned func releases it.
func (w *Watcher) lockKey(locator string) func() {
	k := locator
	if w.key != nil {
		k = w.key(locator)
	}
	w.mu.Lock()
	l, ok := w.locks[k]
	if !ok {
		l = &sync.Mutex{}
		w.locks[k] = l
	}
	w.mu.Unlock()

	l.Lock()
	return l.Unlock
}

func (w *Watcher) markFile(path, suffix string) {
	if err := os.Rename(path, path+suffix); err != nil {
		w.log.Warnf("mark %s%s: %v", path, suffix, err)
	}
}

func isJobFile(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".txt")
}

// readLocator returns the first non-empty, non-comment line.
func readLocator(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		return line, nil
	}
	if err := sc.Err(); err != nil {
		return "", err
	}
	return "", fmt.Errorf("no locator in %s", filepath.Base(path))
}
