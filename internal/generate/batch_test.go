package generate

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ivlev/slidecast/internal/audio"
	"github.com/ivlev/slidecast/internal/timeline"
)

type fakeService struct {
	mu       sync.Mutex
	valid    bool
	fail     map[string]error
	prompts  []string
	inFlight int
	maxPar   int
}

func (f *fakeService) GenerateVisual(ctx context.Context, prompt string) (Asset, error) {
	f.mu.Lock()
	f.inFlight++
	if f.inFlight > f.maxPar {
		f.maxPar = f.inFlight
	}
	f.prompts = append(f.prompts, prompt)
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.inFlight--
		f.mu.Unlock()
	}()

	if err := f.fail[prompt]; err != nil {
		return Asset{}, err
	}
	return Asset{Path: "assets/" + prompt + ".png", MIME: "image/png"}, nil
}

func (f *fakeService) BreakdownStory(ctx context.Context, text string) ([]Beat, error) {
	return nil, nil
}

func (f *fakeService) ValidateCredential(ctx context.Context) (bool, error) {
	return f.valid, nil
}

func newBatchTimeline(t *testing.T) *timeline.Timeline {
	t.Helper()
	tl, err := timeline.New([]string{"a", "b", "c"}, []string{"1", "2", "3"}, audio.Track{Duration: 9})
	if err != nil {
		t.Fatalf("timeline.New: %v", err)
	}
	return tl
}

func TestBatchRunContinuesPastFailures(t *testing.T) {
	tl := newBatchTimeline(t)
	svc := &fakeService{valid: true, fail: map[string]error{"b": errors.New("content policy")}}

	var mu sync.Mutex
	var events []string
	tl.OnStatusChange(func(id int, s timeline.Status) {
		mu.Lock()
		events = append(events, s.Name())
		mu.Unlock()
	})

	report, err := NewBatch(svc, tl, 0).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Ready != 2 || report.Failed != 1 {
		t.Errorf("report = %+v", report)
	}
	if svc.maxPar != 1 {
		t.Errorf("requests ran in parallel: %d", svc.maxPar)
	}

	scenes := tl.Scenes()
	if url, ok := scenes[0].ImageURL(); !ok || url != "assets/a.png" {
		t.Errorf("scene a = %+v", scenes[0].Status)
	}
	if f, ok := scenes[1].Status.(timeline.Failed); !ok || f.Reason != "content policy" {
		t.Errorf("scene b = %+v", scenes[1].Status)
	}
	if _, ok := scenes[2].Status.(timeline.Ready); !ok {
		t.Errorf("scene c = %+v", scenes[2].Status)
	}

	want := []string{"generating", "ready", "generating", "error", "generating", "ready"}
	if len(events) != len(want) {
		t.Fatalf("events = %v", events)
	}
	for i := range want {
		if events[i] != want[i] {
			t.Fatalf("events = %v, want %v", events, want)
		}
	}
}

func TestBatchRunSkipsReadyScenes(t *testing.T) {
	tl := newBatchTimeline(t)
	tl.MarkReady(1, "done.png")
	tl.MarkError(2, "earlier failure")
	svc := &fakeService{valid: true}

	if _, err := NewBatch(svc, tl, 0).Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(svc.prompts) != 2 || svc.prompts[0] != "b" || svc.prompts[1] != "c" {
		t.Errorf("prompts = %v", svc.prompts)
	}
}

func TestBatchRunOnly(t *testing.T) {
	tl := newBatchTimeline(t)
	tl.MarkReady(3, "old.png")
	svc := &fakeService{valid: true}

	if _, err := NewBatch(svc, tl, 0).Run(context.Background(), 3); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(svc.prompts) != 1 || svc.prompts[0] != "c" {
		t.Errorf("prompts = %v", svc.prompts)
	}
}

func TestBatchRunWithoutCredential(t *testing.T) {
	tl := newBatchTimeline(t)
	svc := &fakeService{valid: false}

	_, err := NewBatch(svc, tl, 0).Run(context.Background())
	if !errors.Is(err, ErrCredential) {
		t.Fatalf("Run = %v, want ErrCredential", err)
	}
	if len(svc.prompts) != 0 {
		t.Error("no scene should be generated")
	}
	for _, s := range tl.Scenes() {
		if _, ok := s.Status.(timeline.Pending); !ok {
			t.Errorf("scene %d touched: %+v", s.ID, s.Status)
		}
	}
}

func TestBatchRunRejectedKeyStops(t *testing.T) {
	tl := newBatchTimeline(t)
	svc := &fakeService{valid: true, fail: map[string]error{"a": ErrCredential}}

	_, err := NewBatch(svc, tl, 0).Run(context.Background())
	var genErr *AssetGenerationError
	if !errors.As(err, &genErr) || genErr.SceneID != 1 || !errors.Is(err, ErrCredential) {
		t.Fatalf("Run = %v", err)
	}
	if len(svc.prompts) != 1 {
		t.Errorf("prompts = %v", svc.prompts)
	}
}

func TestBatchRunPacingHonorsCancel(t *testing.T) {
	tl := newBatchTimeline(t)
	svc := &fakeService{valid: true}
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		_, err := NewBatch(svc, tl, time.Hour).Run(ctx)
		done <- err
	}()

	// first scene is generated right away, the second waits on the interval
	deadline := time.After(2 * time.Second)
	for {
		if s, _ := tl.Scene(1); s.Status.Name() == "ready" {
			break
		}
		select {
		case <-deadline:
			t.Fatal("first scene never became ready")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("batch did not stop")
	}
	if s, _ := tl.Scene(2); s.Status.Name() != "pending" {
		t.Errorf("scene 2 = %s", s.Status.Name())
	}
}

// brokenStore fails status updates for one scene.
type brokenStore struct {
	*timeline.Timeline
	broken int
}

func (s brokenStore) MarkReady(id int, imageURL string) error {
	if id == s.broken {
		return timeline.ErrSceneNotFound
	}
	return s.Timeline.MarkReady(id, imageURL)
}

func (s brokenStore) MarkError(id int, reason string) error {
	if id == s.broken {
		return timeline.ErrSceneNotFound
	}
	return s.Timeline.MarkError(id, reason)
}

func TestBatchRunCountsFailedStatusUpdate(t *testing.T) {
	tl := newBatchTimeline(t)
	svc := &fakeService{valid: true}

	report, err := NewBatch(svc, brokenStore{Timeline: tl, broken: 2}, 0).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Ready != 2 || report.Failed != 1 {
		t.Errorf("report = %+v, want 2 ready, 1 failed", report)
	}
	if len(svc.prompts) != 3 {
		t.Errorf("batch stopped early: prompts = %v", svc.prompts)
	}
	s, _ := tl.Scene(3)
	if _, ok := s.Status.(timeline.Ready); !ok {
		t.Errorf("scene 3 status = %#v", s.Status)
	}
}
