// Package tapsync snaps scene boundaries to the playback position while the
// narration plays.
package tapsync

import (
	"fmt"
	"log"

	"github.com/ivlev/slidecast/internal/timeline"
)

// Outcome describes what a tap did. A rejected tap is not an error: Applied is
// false, Reason says why and the timeline is untouched.
type Outcome struct {
	Applied  bool    `json:"applied"`
	Index    int     `json:"index"`
	SceneID  int     `json:"sceneId,omitempty"`
	Time     float64 `json:"time"`
	Previous float64 `json:"previous"`
	Reason   string  `json:"reason,omitempty"`
}

const (
	ReasonNoNextScene = "no scene starts after the current position"
	ReasonBeforePrev  = "position is before the previous scene's start"
	ReasonOutOfRange  = "scene index out of range"
)

type Controller struct {
	tl *timeline.Timeline
}

func NewController(tl *timeline.Timeline) *Controller {
	return &Controller{tl: tl}
}

// RecordSync moves the start of the next scene, the first by array order that
// starts after t, to t.
func (c *Controller) RecordSync(t float64) (Outcome, error) {
	scenes := c.tl.Scenes()
	next := -1
	for i, s := range scenes {
		if s.StartTime > t {
			next = i
			break
		}
	}
	if next < 0 {
		return Outcome{Index: -1, Time: t, Reason: ReasonNoNextScene}, nil
	}
	return c.snap(scenes, next, t)
}

// SnapScene moves the start of the scene at index to t, under the same guard
// as RecordSync.
func (c *Controller) SnapScene(index int, t float64) (Outcome, error) {
	scenes := c.tl.Scenes()
	if index < 0 || index >= len(scenes) {
		return Outcome{Index: index, Time: t, Reason: ReasonOutOfRange}, nil
	}
	return c.snap(scenes, index, t)
}

// snap only compares against the immediately preceding scene. Earlier scenes
// are not checked, so a sequence can still end up non-monotonic.
func (c *Controller) snap(scenes []timeline.Scene, index int, t float64) (Outcome, error) {
	s := scenes[index]
	out := Outcome{Index: index, SceneID: s.ID, Time: t, Previous: s.StartTime}

	if index > 0 && t < scenes[index-1].StartTime {
		out.Reason = ReasonBeforePrev
		log.Printf("[!] Sync rejected for scene %d at %.2fs: %s", s.ID, t, out.Reason)
		return out, nil
	}

	if err := c.tl.SetStartTime(s.ID, t); err != nil {
		return out, fmt.Errorf("sync scene %d: %w", s.ID, err)
	}
	out.Applied = true
	log.Printf("[>] Scene %d now starts at %.2fs (was %.2fs)", s.ID, t, out.Previous)
	return out, nil
}
