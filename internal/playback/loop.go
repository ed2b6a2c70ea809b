package playback

import (
	"context"
	"time"

	"github.com/ivlev/slidecast/internal/renderer"
)

// Loop drives a Player at a fixed display rate. It only ticks while the
// player is playing; stopping the player (pause or completion) stops the
// frames, and cancelling ctx stops the driver.
type Loop struct {
	Player   *Player
	Interval time.Duration
	Publish  func(renderer.FrameState)
}

func NewLoop(p *Player, fps int, publish func(renderer.FrameState)) *Loop {
	if fps <= 0 {
		fps = 30
	}
	return &Loop{
		Player:   p,
		Interval: time.Second / time.Duration(fps),
		Publish:  publish,
	}
}

func (l *Loop) Run(ctx context.Context) error {
	ticker := time.NewTicker(l.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			l.Step()
		}
	}
}

// Step emits one frame if the player is running. The final frame of a
// session, the one that hits the end, is still published.
func (l *Loop) Step() bool {
	if !l.Player.Playing() {
		return false
	}
	st := l.Player.Tick()
	if l.Publish != nil {
		l.Publish(st)
	}
	return true
}
