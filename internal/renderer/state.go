package renderer

import (
	"github.com/ivlev/slidecast/internal/effects"
	"github.com/ivlev/slidecast/internal/timeline"
)

// FrameState is everything that decides what a frame at Time looks like.
type FrameState struct {
	Time     float64 `json:"time"`
	Index    int     `json:"index"`
	SceneID  int     `json:"sceneId"`
	Progress float64 `json:"progress"`
	Zoom     float64 `json:"zoom"`
	Script   string  `json:"script"`
	ImageURL string  `json:"imageUrl,omitempty"`
}

// StateAt resolves the active scene, its progress and zoom at t.
// The interactive player and the offline exporter both go through here so the
// preview and the exported file agree frame for frame.
func StateAt(scenes []timeline.Scene, duration, t float64, eff effects.Effect) FrameState {
	if len(scenes) == 0 {
		return FrameState{Time: t, Index: -1, Zoom: 1}
	}

	idx := timeline.Resolve(scenes, t)
	progress := timeline.Progress(scenes, duration, idx, t)
	s := scenes[idx]
	url, _ := s.ImageURL()

	zoom := 1.0
	if eff != nil {
		zoom = eff.Zoom(idx, progress)
	}

	return FrameState{
		Time:     t,
		Index:    idx,
		SceneID:  s.ID,
		Progress: progress,
		Zoom:     zoom,
		Script:   s.Script,
		ImageURL: url,
	}
}
