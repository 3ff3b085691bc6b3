package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/smendola/conciser/internal/domain/scenesync"
	"github.com/smendola/conciser/internal/types"
)

const (
	sceneThreshold      = 0.27
	sceneThresholdRetry = 0.23
	minScenes           = 5
	defaultFrameBudget  = 10
	syntheticSceneCount = 8
	frameWorkers        = 4
)

// frameSet is everything the slideshow renderer needs from the scene
// branch. degraded means the scenes are synthetic and frame timings
// must fall back to equal spacing.
type frameSet struct {
	scenes   []types.Scene
	selected []int
	frames   []string
	degraded bool
}

type frameResult struct {
	set frameSet
	err error
}

// frameTask is the background scene-detection branch. It runs under
// its own cancel so an inline redo can abandon it cleanly.
type frameTask struct {
	ch     chan frameResult
	cancel context.CancelFunc
}

func (r *run) startFrameTask(ctx context.Context, sourcePath string, sourceDur float64) *frameTask {
	bctx, cancel := context.WithCancel(ctx)
	t := &frameTask{ch: make(chan frameResult, 1), cancel: cancel}
	go func() {
		set, err := r.prepareFrames(bctx, sourcePath, sourceDur)
		t.ch <- frameResult{set: set, err: err}
	}()
	return t
}

func (r *run) renderSlideshow(ctx context.Context, sourcePath, speechPath string, sourceDur, condensedDur float64, task *frameTask, out string) error {
	set, err := r.awaitFrames(ctx, task, sourcePath, sourceDur)
	if err != nil {
		return err
	}

	var timings []types.FrameTiming
	if set.degraded {
		r.log.Warnf("no scene metadata; spacing %d frames equally", len(set.frames))
		timings = scenesync.EqualSpacing(set.frames, condensedDur)
	} else {
		timings = scenesync.Map(set.scenes, set.selected, set.frames, sourceDur, condensedDur)
	}
	return r.deps.Media.SlideshowVideo(ctx, timings, speechPath, out)
}

// awaitFrames collects the background branch's result, giving up after
// the bounded wait and redoing the extraction inline on the caller's
// context.
func (r *run) awaitFrames(ctx context.Context, task *frameTask, sourcePath string, sourceDur float64) (frameSet, error) {
	if task != nil {
		select {
		case res := <-task.ch:
			if res.err == nil {
				return res.set, nil
			}
			r.log.Warnf("background frame extraction failed, redoing inline: %v", res.err)
		case <-time.After(r.opts.FrameWait):
			task.cancel()
			r.log.Warnf("background frame extraction exceeded %s, redoing inline", r.opts.FrameWait)
		case <-ctx.Done():
			task.cancel()
			return frameSet{}, ctx.Err()
		}
	}
	return r.prepareFrames(ctx, sourcePath, sourceDur)
}

// prepareFrames detects scene cuts, samples them down to the frame
// budget and extracts one keyframe per selected scene. Frames already
// on disk are reused.
func (r *run) prepareFrames(ctx context.Context, sourcePath string, sourceDur float64) (frameSet, error) {
	scenes, degraded, err := r.detectScenes(ctx, sourcePath, sourceDur)
	if err != nil {
		return frameSet{}, err
	}

	budget := r.job.MaxFrames
	if budget == 0 {
		budget = defaultFrameBudget
	}
	selected := scenesync.Stride(len(scenes), budget)

	frames := make([]string, len(selected))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(frameWorkers)
	for i, idx := range selected {
		i, sc := i, scenes[idx]
		path := filepath.Join(r.store.FramesDir(), fmt.Sprintf("scene_%03d.jpg", sc.ID))
		frames[i] = path
		if r.resume && r.store.HasFile(path) {
			continue
		}
		g.Go(func() error {
			at := sc.Start + (sc.End-sc.Start)/2
			return r.deps.Media.ExtractFrame(gctx, sourcePath, path, at)
		})
	}
	if err := g.Wait(); err != nil {
		return frameSet{}, err
	}
	return frameSet{scenes: scenes, selected: selected, frames: frames, degraded: degraded}, nil
}

// detectScenes runs content-difference detection, once more at a
// lower threshold when the first pass finds too few cuts, and falls
// back to synthetic evenly spaced scenes when detection finds nothing.
func (r *run) detectScenes(ctx context.Context, sourcePath string, sourceDur float64) ([]types.Scene, bool, error) {
	if r.resume {
		if scenes, ok := r.store.LoadScenes(); ok {
			return scenes, false, nil
		}
	}

	scenes, err := r.deps.Media.DetectScenes(ctx, sourcePath, sceneThreshold)
	if err != nil {
		return nil, false, err
	}
	if len(scenes) < minScenes {
		r.log.Infof("only %d scenes at threshold %.2f, retrying at %.2f", len(scenes), sceneThreshold, sceneThresholdRetry)
		retried, err := r.deps.Media.DetectScenes(ctx, sourcePath, sceneThresholdRetry)
		if err != nil {
			return nil, false, err
		}
		if len(retried) > len(scenes) {
			scenes = retried
		}
	}
	if len(scenes) == 0 {
		return scenesync.SyntheticScenes(sourceDur, syntheticSceneCount), true, nil
	}

	if err := r.store.SaveJSON(r.store.ScenesPath(), scenes); err != nil {
		r.log.Warnf("cache scene cuts: %v", err)
	}
	return scenes, false, nil
}
