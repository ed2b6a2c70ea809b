package timeline

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/ivlev/slidecast/internal/audio"
)

// StatusListener is notified after every status write.
type StatusListener func(sceneID int, status Status)

// Timeline owns the ordered scenes and the audio track of one project.
// Scene order is array order; StartTime is never used as a sort key.
type Timeline struct {
	mu        sync.RWMutex
	id        string
	scenes    []Scene
	track     audio.Track
	nextID    int
	listeners []StatusListener
}

// New builds a timeline with evenly spaced start times. Prompts and scripts
// are paired by position and must have the same length.
func New(prompts, scripts []string, track audio.Track) (*Timeline, error) {
	if len(prompts) != len(scripts) {
		return nil, &MismatchError{Prompts: len(prompts), Scripts: len(scripts)}
	}
	if len(prompts) == 0 {
		return nil, ErrNoScenes
	}

	tl := &Timeline{
		id:     uuid.NewString(),
		track:  track,
		nextID: 1,
		scenes: make([]Scene, len(prompts)),
	}
	for i := range prompts {
		tl.scenes[i] = Scene{
			ID:     tl.nextID,
			Prompt: prompts[i],
			Script: scripts[i],
			Status: Pending{},
		}
		tl.nextID++
	}
	tl.alignLocked()
	return tl, nil
}

func (t *Timeline) ID() string { return t.id }

func (t *Timeline) Duration() float64 { return t.track.Duration }

func (t *Timeline) Audio() audio.Track { return t.track }

func (t *Timeline) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.scenes)
}

// Scenes returns a snapshot safe to hand to the resolver.
func (t *Timeline) Scenes() []Scene {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Scene, len(t.scenes))
	copy(out, t.scenes)
	return out
}

func (t *Timeline) Scene(id int) (Scene, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	i := t.indexLocked(id)
	if i < 0 {
		return Scene{}, fmt.Errorf("scene %d: %w", id, ErrSceneNotFound)
	}
	return t.scenes[i], nil
}

// OnStatusChange registers a listener for status writes.
func (t *Timeline) OnStatusChange(fn StatusListener) {
	t.mu.Lock()
	t.listeners = append(t.listeners, fn)
	t.mu.Unlock()
}

// SetStartTime replaces one scene's start time. Range checks belong to the caller.
func (t *Timeline) SetStartTime(id int, start float64) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	i := t.indexLocked(id)
	if i < 0 {
		return fmt.Errorf("scene %d: %w", id, ErrSceneNotFound)
	}
	t.scenes[i].StartTime = start
	return nil
}

// AutoAlign discards manual edits and spaces all scenes evenly over the track.
func (t *Timeline) AutoAlign() {
	t.mu.Lock()
	t.alignLocked()
	t.mu.Unlock()
}

func (t *Timeline) alignLocked() {
	step := t.track.Duration / float64(len(t.scenes))
	for i := range t.scenes {
		t.scenes[i].StartTime = float64(i) * step
	}
}

func (t *Timeline) MarkGenerating(id int) error {
	return t.setStatus(id, Generating{})
}

func (t *Timeline) MarkReady(id int, imageURL string) error {
	return t.setStatus(id, Ready{ImageURL: imageURL})
}

func (t *Timeline) MarkError(id int, reason string) error {
	return t.setStatus(id, Failed{Reason: reason})
}

// setStatus is last-write-wins; no transition is rejected.
func (t *Timeline) setStatus(id int, s Status) error {
	t.mu.Lock()
	i := t.indexLocked(id)
	if i < 0 {
		t.mu.Unlock()
		return fmt.Errorf("scene %d: %w", id, ErrSceneNotFound)
	}
	t.scenes[i].Status = s
	listeners := append([]StatusListener(nil), t.listeners...)
	t.mu.Unlock()

	for _, fn := range listeners {
		fn(id, s)
	}
	return nil
}

func (t *Timeline) indexLocked(id int) int {
	for i, s := range t.scenes {
		if s.ID == id {
			return i
		}
	}
	return -1
}
