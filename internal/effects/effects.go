package effects

import (
	"fmt"
	"strings"
)

// Effect decides the zoom factor of a scene's visual from its position in the
// timeline and its progress through its own window. It must be a pure function:
// the preview and the export call it with the same arguments.
type Effect interface {
	Zoom(index int, progress float64) float64
}

// KenBurns zooms even scenes in from From to To and odd scenes back out.
type KenBurns struct {
	From float64
	To   float64
	Ease func(float64) float64 // nil means linear
}

// DefaultKenBurns is the 1.0 -> 1.25 zoom used for exports and preview.
func DefaultKenBurns() *KenBurns {
	return &KenBurns{From: 1.0, To: 1.25}
}

func (e *KenBurns) Zoom(index int, progress float64) float64 {
	p := clamp01(progress)
	if e.Ease != nil {
		p = e.Ease(p)
	}
	if index%2 == 0 {
		return lerp(e.From, e.To, p)
	}
	return lerp(e.To, e.From, p)
}

// Static keeps every visual at cover-fit size.
type Static struct{}

func (Static) Zoom(int, float64) float64 { return 1.0 }

// New returns the effect for a zoom mode and easing name.
func New(mode, easing string) (Effect, error) {
	switch strings.ToLower(mode) {
	case "", "kenburns", "ken-burns":
		kb := DefaultKenBurns()
		switch strings.ToLower(easing) {
		case "", "linear":
		case "ease-in-out":
			kb.Ease = EaseInOutCubic
		default:
			return nil, fmt.Errorf("unknown zoom easing: %s", easing)
		}
		return kb, nil
	case "none", "static":
		return Static{}, nil
	default:
		return nil, fmt.Errorf("unknown zoom mode: %s", mode)
	}
}

// EaseInOutCubic applies smooth easing
func EaseInOutCubic(t float64) float64 {
	if t < 0.5 {
		return 4 * t * t * t
	}
	return 1 - pow(-2*t+2, 3)/2
}

func lerp(a, b, t float64) float64 {
	return a + (b-a)*t
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func pow(x float64, n int) float64 {
	result := 1.0
	for i := 0; i < n; i++ {
		result *= x
	}
	return result
}
