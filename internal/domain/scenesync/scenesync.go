// Package scenesync maps scene-cut boundaries from the source video
// onto the time-compressed narration track. The invariant: a frame's
// relative position in the narration matches its relative position in
// the source, regardless of how much the narration was compressed.
package scenesync

import (
	"sort"

	"github.com/smendola/conciser/internal/types"
)

// Stride selects at most budget indices out of n using proportional
// stride sampling, so selections stay spread across the whole source
// timeline instead of clustering at one end.
func Stride(n, budget int) []int {
	if n <= 0 || budget <= 0 {
		return nil
	}
	if n <= budget {
		idx := make([]int, n)
		for i := range idx {
			idx[i] = i
		}
		return idx
	}
	step := float64(n) / float64(budget)
	idx := make([]int, 0, budget)
	for i := 0; i < budget; i++ {
		idx = append(idx, int(float64(i)*step))
	}
	return idx
}

// Map places the selected scenes' frames onto the condensed timeline.
// frames[i] is the image extracted for scenes[selected[i]]. Each
// frame's duration runs to the next frame's showAt; the last frame
// extends to the end of the condensed audio.
func Map(scenes []types.Scene, selected []int, frames []string, sourceDur, condensedDur float64) []types.FrameTiming {
	if len(selected) == 0 || sourceDur <= 0 || condensedDur <= 0 {
		return nil
	}

	timings := make([]types.FrameTiming, 0, len(selected))
	for i, si := range selected {
		if si < 0 || si >= len(scenes) {
			continue
		}
		sc := scenes[si]
		pos := sc.Start / sourceDur // [0,1)
		ft := types.FrameTiming{
			SceneID: sc.ID,
			ShowAt:  pos * condensedDur,
		}
		if i < len(frames) {
			ft.Path = frames[i]
		}
		timings = append(timings, ft)
	}
	if len(timings) == 0 {
		return nil
	}

	sort.Slice(timings, func(i, j int) bool { return timings[i].ShowAt < timings[j].ShowAt })

	for i := range timings {
		if i < len(timings)-1 {
			timings[i].Duration = timings[i+1].ShowAt - timings[i].ShowAt
		} else {
			timings[i].Duration = condensedDur - timings[i].ShowAt
		}
	}
	return timings
}

// EqualSpacing is the degraded mode used when no scene metadata exists:
// every frame gets the same slice of the condensed timeline.
func EqualSpacing(frames []string, condensedDur float64) []types.FrameTiming {
	if len(frames) == 0 || condensedDur <= 0 {
		return nil
	}
	per := condensedDur / float64(len(frames))
	timings := make([]types.FrameTiming, len(frames))
	for i, p := range frames {
		timings[i] = types.FrameTiming{
			SceneID:  i,
			Path:     p,
			ShowAt:   float64(i) * per,
			Duration: per,
		}
	}
	return timings
}

// SyntheticScenes fabricates evenly-spaced scenes spanning the source
// duration, used when detection finds nothing at either threshold.
func SyntheticScenes(sourceDur float64, count int) []types.Scene {
	if count <= 0 || sourceDur <= 0 {
		return nil
	}
	per := sourceDur / float64(count)
	scenes := make([]types.Scene, count)
	for i := range scenes {
		scenes[i] = types.Scene{
			ID:    i,
			Start: float64(i) * per,
			End:   float64(i+1) * per,
		}
	}
	return scenes
}
