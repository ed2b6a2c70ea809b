package generate

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/ivlev/slidecast/internal/timeline"
)

// Report counts the scenes a batch touched.
type Report struct {
	Ready  int `json:"ready"`
	Failed int `json:"failed"`
}

// SceneStore is the part of the timeline a batch reads and updates.
// *timeline.Timeline implements it.
type SceneStore interface {
	Scenes() []timeline.Scene
	Scene(id int) (timeline.Scene, error)
	MarkGenerating(id int) error
	MarkReady(id int, imageURL string) error
	MarkError(id int, reason string) error
}

// Batch generates scene visuals one at a time. Requests are never fanned out:
// the provider is rate limited, so Interval is waited between two requests.
type Batch struct {
	Service  Service
	Timeline SceneStore
	Interval time.Duration
}

func NewBatch(svc Service, tl SceneStore, interval time.Duration) *Batch {
	return &Batch{Service: svc, Timeline: tl, Interval: interval}
}

// Run generates every scene that is not ready yet, or only the listed scene
// IDs. A scene that fails is marked "error" and the batch moves on.
func (b *Batch) Run(ctx context.Context, only ...int) (Report, error) {
	var report Report

	ok, err := b.Service.ValidateCredential(ctx)
	if err != nil {
		return report, fmt.Errorf("credential check: %w", err)
	}
	if !ok {
		return report, ErrCredential
	}

	queue := b.queue(only)
	log.Printf("[*] Generating %d scene visuals", len(queue))

	for n, s := range queue {
		if n > 0 && b.Interval > 0 {
			select {
			case <-ctx.Done():
				return report, ctx.Err()
			case <-time.After(b.Interval):
			}
		}
		if err := ctx.Err(); err != nil {
			return report, err
		}

		if err := b.Timeline.MarkGenerating(s.ID); err != nil {
			return report, err
		}
		log.Printf("[>] Scene %d/%d (id %d)", n+1, len(queue), s.ID)

		asset, err := b.Service.GenerateVisual(ctx, s.Prompt)
		if err != nil {
			genErr := &AssetGenerationError{SceneID: s.ID, Err: err}
			log.Printf("[!] %v", genErr)
			if markErr := b.Timeline.MarkError(s.ID, err.Error()); markErr != nil {
				log.Printf("[!] Scene %d: %v", s.ID, markErr)
			}
			report.Failed++
			if errors.Is(err, ErrCredential) || ctx.Err() != nil {
				return report, genErr
			}
			continue
		}

		if err := b.Timeline.MarkReady(s.ID, asset.Path); err != nil {
			log.Printf("[!] Scene %d: %v", s.ID, err)
			report.Failed++
			continue
		}
		report.Ready++
	}

	log.Printf("[+++] Generation finished: %d ready, %d failed", report.Ready, report.Failed)
	return report, nil
}

func (b *Batch) queue(only []int) []timeline.Scene {
	var queue []timeline.Scene
	if len(only) > 0 {
		for _, id := range only {
			if s, err := b.Timeline.Scene(id); err == nil {
				queue = append(queue, s)
			}
		}
		return queue
	}
	for _, s := range b.Timeline.Scenes() {
		if _, ready := s.Status.(timeline.Ready); !ready {
			queue = append(queue, s)
		}
	}
	return queue
}
