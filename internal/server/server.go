// Package server exposes the interactive preview over HTTP: transport
// control, tap sync, frame snapshots, export and generation, with state
// changes pushed over a websocket.
package server

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"github.com/ivlev/slidecast/internal/config"
	"github.com/ivlev/slidecast/internal/effects"
	"github.com/ivlev/slidecast/internal/engine"
	"github.com/ivlev/slidecast/internal/generate"
	"github.com/ivlev/slidecast/internal/playback"
	"github.com/ivlev/slidecast/internal/renderer"
	"github.com/ivlev/slidecast/internal/tapsync"
	"github.com/ivlev/slidecast/internal/timeline"
	"github.com/ivlev/slidecast/internal/video"
)

// VisualLoader decodes scene visuals for snapshots and exports.
type VisualLoader interface {
	engine.VisualLoader
	Load(ctx context.Context, ref string) (image.Image, error)
}

// Options wires a Server. Generator may be nil when no key is configured.
type Options struct {
	Config      *config.Config
	Timeline    *timeline.Timeline
	ProjectPath string
	Effect      effects.Effect
	Output      playback.Output
	Clock       playback.Clock
	Loader      VisualLoader
	Encoder     video.VideoEncoder
	Generator   generate.Service
}

// JobState is the progress of the export or generation running in the background.
type JobState struct {
	Running  bool    `json:"running"`
	Progress float64 `json:"progress"`
	Output   string  `json:"output,omitempty"`
	Error    string  `json:"error,omitempty"`
}

type Server struct {
	cfg         *config.Config
	tl          *timeline.Timeline
	projectPath string
	effect      effects.Effect
	player      *playback.Player
	loop        *playback.Loop
	taps        *tapsync.Controller
	loader      VisualLoader
	encoder     video.VideoEncoder
	generator   generate.Service
	hub         *Hub
	composer    *renderer.Composer
	// renderMu serializes composer use; its font face is not safe for
	// concurrent glyph loads.
	renderMu sync.Mutex

	// ctx bounds background jobs; it is cancelled by Run on shutdown.
	ctx    context.Context
	cancel context.CancelFunc
	jobs   sync.WaitGroup

	saveMu sync.Mutex

	mu         sync.Mutex
	export     JobState
	generating JobState
	visuals    map[string]image.Image
}

func New(opts Options) (*Server, error) {
	composer, err := renderer.NewComposer(opts.Config.Width, opts.Config.Height)
	if err != nil {
		return nil, err
	}
	if opts.Config.SubtitleSize > 0 {
		face, err := renderer.NewSubtitleFace(opts.Config.SubtitleSize)
		if err != nil {
			return nil, err
		}
		composer.Face = face
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		cfg:         opts.Config,
		tl:          opts.Timeline,
		projectPath: opts.ProjectPath,
		effect:      opts.Effect,
		taps:        tapsync.NewController(opts.Timeline),
		loader:      opts.Loader,
		encoder:     opts.Encoder,
		generator:   opts.Generator,
		hub:         NewHub(),
		composer:    composer,
		ctx:         ctx,
		cancel:      cancel,
		visuals:     make(map[string]image.Image),
	}

	s.player = playback.NewPlayer(opts.Timeline, opts.Effect, opts.Clock, opts.Output)
	s.player.OnComplete(func() {
		s.hub.Broadcast(Event{Type: "complete", Data: s.transport()})
	})
	s.loop = playback.NewLoop(s.player, opts.Config.PreviewFPS, func(st renderer.FrameState) {
		s.hub.Broadcast(Event{Type: "frame", Data: st})
	})

	opts.Timeline.OnStatusChange(func(id int, st timeline.Status) {
		s.hub.Broadcast(Event{Type: "status", Data: s.sceneRecord(id)})
		s.save()
	})
	return s, nil
}

func (s *Server) Player() *playback.Player { return s.player }

// Handler returns the router with logging and CORS applied.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.Use(loggingMiddleware)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/project", s.handleProject).Methods("GET")
	api.HandleFunc("/transport", s.handleTransport).Methods("GET")
	api.HandleFunc("/transport/play", s.handlePlay).Methods("POST")
	api.HandleFunc("/transport/pause", s.handlePause).Methods("POST")
	api.HandleFunc("/transport/seek", s.handleSeek).Methods("POST")
	api.HandleFunc("/sync", s.handleSync).Methods("POST")
	api.HandleFunc("/scenes/{id:[0-9]+}/sync", s.handleSceneSync).Methods("POST")
	api.HandleFunc("/scenes/{id:[0-9]+}/start", s.handleSetStart).Methods("PUT")
	api.HandleFunc("/align", s.handleAlign).Methods("POST")
	api.HandleFunc("/frame.png", s.handleFrame).Methods("GET")
	api.HandleFunc("/export", s.handleExportStatus).Methods("GET")
	api.HandleFunc("/export", s.handleExport).Methods("POST")
	api.HandleFunc("/generate", s.handleGenerateStatus).Methods("GET")
	api.HandleFunc("/generate", s.handleGenerate).Methods("POST")
	r.HandleFunc("/ws", s.hub.ServeWS)

	corsHandler := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders: []string{"*"},
	})
	return corsHandler.Handler(r)
}

// Run serves until ctx is done, then stops playback, waits for background
// jobs and shuts the listener down.
func (s *Server) Run(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	loopCtx, stopLoop := context.WithCancel(ctx)
	defer stopLoop()
	go s.loop.Run(loopCtx)

	errCh := make(chan error, 1)
	go func() {
		fmt.Printf("[*] Preview server on %s\n", LANURL(s.cfg.Addr))
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		s.shutdown()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := server.Shutdown(shutdownCtx)
	s.shutdown()
	return err
}

func (s *Server) shutdown() {
	s.player.Pause()
	s.cancel()
	s.jobs.Wait()
	s.hub.Close()
}

func (s *Server) save() {
	if s.projectPath == "" {
		return
	}
	s.saveMu.Lock()
	defer s.saveMu.Unlock()
	if err := s.tl.Save(s.projectPath); err != nil {
		log.Printf("[!] Could not save project: %v", err)
	}
}

func (s *Server) sceneRecord(id int) timeline.SceneRecord {
	for _, r := range s.tl.Document().Scenes {
		if r.ID == id {
			return r
		}
	}
	return timeline.SceneRecord{ID: id}
}

type transportState struct {
	Playing bool                `json:"playing"`
	Time    float64             `json:"time"`
	Frame   renderer.FrameState `json:"frame"`
}

func (s *Server) transport() transportState {
	t := s.player.CurrentTime()
	return transportState{
		Playing: s.player.Playing(),
		Time:    t,
		Frame:   renderer.StateAt(s.tl.Scenes(), s.tl.Duration(), t, s.effect),
	}
}

func (s *Server) exporting() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.export.Running
}

// visual returns the decoded image for ref, caching it for later snapshots.
func (s *Server) visual(ctx context.Context, ref string) image.Image {
	s.mu.Lock()
	img, ok := s.visuals[ref]
	s.mu.Unlock()
	if ok {
		return img
	}

	img, err := s.loader.Load(ctx, ref)
	if err != nil {
		log.Printf("[!] Visual %s: %v", ref, err)
		return nil
	}
	s.mu.Lock()
	s.visuals[ref] = img
	s.mu.Unlock()
	return img
}
