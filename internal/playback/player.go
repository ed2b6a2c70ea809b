package playback

import (
	"log"
	"sync"
	"time"

	"github.com/ivlev/slidecast/internal/effects"
	"github.com/ivlev/slidecast/internal/renderer"
	"github.com/ivlev/slidecast/internal/timeline"
)

// Player turns "is playing" plus a monotonic clock into a timeline position.
//
// While playing, position = anchorPos + (clock.Now() - anchorClock). The anchor
// pair is captured on Play and on every Seek, so a paused player is frozen and a
// running one never moves backwards.
type Player struct {
	mu sync.Mutex

	tl     *timeline.Timeline
	effect effects.Effect
	clock  Clock
	out    Output

	playing     bool
	position    float64
	anchorClock time.Duration
	anchorPos   float64
	completed   bool

	onComplete []func()
}

func NewPlayer(tl *timeline.Timeline, eff effects.Effect, clock Clock, out Output) *Player {
	if clock == nil {
		clock = NewSystemClock()
	}
	if out == nil {
		out = NopOutput{}
	}
	return &Player{tl: tl, effect: eff, clock: clock, out: out}
}

// OnComplete registers fn to run when a play session reaches the end.
// It runs once per session, outside the player's lock.
func (p *Player) OnComplete(fn func()) {
	p.mu.Lock()
	p.onComplete = append(p.onComplete, fn)
	p.mu.Unlock()
}

// Play starts a new session from the current position. At the end of the
// track it restarts from 0.
func (p *Player) Play() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.playing {
		return nil
	}
	if p.position >= p.tl.Duration() {
		p.position = 0
	}
	p.anchorLocked()
	p.playing = true
	p.completed = false
	if err := p.out.Start(p.position); err != nil {
		p.playing = false
		return err
	}
	return nil
}

// Pause freezes the position. Pausing a paused player does nothing.
func (p *Player) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.playing {
		return
	}
	p.position = p.advanceLocked()
	p.playing = false
	p.out.Stop()
}

// Seek moves to t, clamped to the track. A running player restarts its
// output at the new position immediately.
func (p *Player) Seek(t float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.position = clamp(t, 0, p.tl.Duration())
	if !p.playing {
		return nil
	}
	p.out.Stop()
	p.anchorLocked()
	p.completed = false
	if err := p.out.Start(p.position); err != nil {
		p.playing = false
		return err
	}
	return nil
}

func (p *Player) Playing() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playing
}

// CurrentTime advances the position and returns it.
func (p *Player) CurrentTime() float64 {
	t, done := p.advance()
	p.fire(done)
	return t
}

// Tick is called once per displayed frame and returns what that frame shows.
func (p *Player) Tick() renderer.FrameState {
	t, done := p.advance()
	st := renderer.StateAt(p.tl.Scenes(), p.tl.Duration(), t, p.effect)
	p.fire(done)
	return st
}

func (p *Player) advance() (float64, []func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.playing {
		return p.position, nil
	}

	duration := p.tl.Duration()
	p.position = p.advanceLocked()
	if p.position < duration {
		return p.position, nil
	}

	p.position = duration
	p.playing = false
	p.out.Stop()
	if p.completed {
		return p.position, nil
	}
	p.completed = true
	return p.position, append([]func(){}, p.onComplete...)
}

func (p *Player) advanceLocked() float64 {
	elapsed := (p.clock.Now() - p.anchorClock).Seconds()
	if elapsed < 0 {
		elapsed = 0
	}
	return clamp(p.anchorPos+elapsed, 0, p.tl.Duration())
}

func (p *Player) anchorLocked() {
	p.anchorClock = p.clock.Now()
	p.anchorPos = p.position
}

func (p *Player) fire(fns []func()) {
	if len(fns) == 0 {
		return
	}
	log.Println("[*] Playback complete")
	for _, fn := range fns {
		fn()
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
