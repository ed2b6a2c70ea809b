package server

import (
	"encoding/json"
	"errors"
	"image"
	"image/png"
	"log"
	"math"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/ivlev/slidecast/internal/engine"
	"github.com/ivlev/slidecast/internal/generate"
	"github.com/ivlev/slidecast/internal/renderer"
	"github.com/ivlev/slidecast/internal/system"
	"github.com/ivlev/slidecast/internal/tapsync"
	"github.com/ivlev/slidecast/internal/timeline"
)

type timeRequest struct {
	Time *float64 `json:"time"`
}

type startRequest struct {
	StartTime *float64 `json:"startTime"`
}

type generateRequest struct {
	SceneIDs []int `json:"sceneIds"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[!] encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// handleProject handles GET /api/project
func (s *Server) handleProject(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.tl.Document())
}

// handleTransport handles GET /api/transport
func (s *Server) handleTransport(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.transport())
}

// handlePlay handles POST /api/transport/play
// The export check and Play share s.mu so an export cannot start in between.
func (s *Server) handlePlay(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	if s.export.Running {
		s.mu.Unlock()
		writeError(w, http.StatusConflict, "export in progress")
		return
	}
	err := s.player.Play()
	s.mu.Unlock()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.broadcastTransport(w)
}

// handlePause handles POST /api/transport/pause
func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	s.player.Pause()
	s.broadcastTransport(w)
}

// handleSeek handles POST /api/transport/seek
func (s *Server) handleSeek(w http.ResponseWriter, r *http.Request) {
	var req timeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Time == nil {
		writeError(w, http.StatusBadRequest, "body must be {\"time\": seconds}")
		return
	}
	if err := s.player.Seek(*req.Time); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.broadcastTransport(w)
}

func (s *Server) broadcastTransport(w http.ResponseWriter) {
	st := s.transport()
	s.hub.Broadcast(Event{Type: "transport", Data: st})
	writeJSON(w, http.StatusOK, st)
}

// handleSync handles POST /api/sync: the tap button.
func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	out, err := s.taps.RecordSync(s.player.CurrentTime())
	s.finishSync(w, out, err)
}

// handleSceneSync handles POST /api/scenes/{id}/sync
func (s *Server) handleSceneSync(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.Atoi(mux.Vars(r)["id"])
	index := -1
	for i, sc := range s.tl.Scenes() {
		if sc.ID == id {
			index = i
			break
		}
	}
	if index < 0 {
		writeError(w, http.StatusNotFound, "scene not found")
		return
	}
	out, err := s.taps.SnapScene(index, s.player.CurrentTime())
	s.finishSync(w, out, err)
}

func (s *Server) finishSync(w http.ResponseWriter, out tapsync.Outcome, err error) {
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if out.Applied {
		s.save()
		s.hub.Broadcast(Event{Type: "project", Data: s.tl.Document()})
	}
	writeJSON(w, http.StatusOK, out)
}

// handleSetStart handles PUT /api/scenes/{id}/start
func (s *Server) handleSetStart(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.Atoi(mux.Vars(r)["id"])
	var req startRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.StartTime == nil {
		writeError(w, http.StatusBadRequest, "body must be {\"startTime\": seconds}")
		return
	}
	start := *req.StartTime
	if math.IsNaN(start) || start < 0 || start > s.tl.Duration() {
		writeError(w, http.StatusBadRequest, "startTime must be within the audio track")
		return
	}

	if err := s.tl.SetStartTime(id, start); err != nil {
		if errors.Is(err, timeline.ErrSceneNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.save()
	doc := s.tl.Document()
	s.hub.Broadcast(Event{Type: "project", Data: doc})
	writeJSON(w, http.StatusOK, doc)
}

// handleAlign handles POST /api/align
func (s *Server) handleAlign(w http.ResponseWriter, r *http.Request) {
	s.tl.AutoAlign()
	s.save()
	doc := s.tl.Document()
	s.hub.Broadcast(Event{Type: "project", Data: doc})
	writeJSON(w, http.StatusOK, doc)
}

// handleFrame handles GET /api/frame.png?t=seconds. Without t it renders the
// current playback position.
func (s *Server) handleFrame(w http.ResponseWriter, r *http.Request) {
	t := s.player.CurrentTime()
	if v := r.URL.Query().Get("t"); v != "" {
		parsed, err := strconv.ParseFloat(v, 64)
		if err != nil || math.IsNaN(parsed) {
			writeError(w, http.StatusBadRequest, "invalid t")
			return
		}
		t = math.Max(0, math.Min(parsed, s.tl.Duration()))
	}

	st := renderer.StateAt(s.tl.Scenes(), s.tl.Duration(), t, s.effect)
	buf := system.GetImage(s.composer.Bounds())
	defer system.PutImage(buf)

	var visual image.Image
	if st.ImageURL != "" {
		visual = s.visual(r.Context(), st.ImageURL)
	}
	s.renderMu.Lock()
	s.composer.Render(buf, st, visual)
	s.renderMu.Unlock()

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	if err := png.Encode(w, buf); err != nil {
		log.Printf("[!] encode frame: %v", err)
	}
}

// handleExportStatus handles GET /api/export
func (s *Server) handleExportStatus(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	st := s.export
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, st)
}

// handleExport handles POST /api/export. Playback is paused first: the
// player and the exporter never hold the audio device at the same time.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	if s.export.Running {
		s.mu.Unlock()
		writeError(w, http.StatusConflict, "export already running")
		return
	}
	s.export = JobState{Running: true, Output: s.cfg.OutputVideo}
	st := s.export
	s.mu.Unlock()

	s.player.Pause()
	s.hub.Broadcast(Event{Type: "transport", Data: s.transport()})

	cfg := *s.cfg
	exporter := engine.NewExporter(&cfg, s.tl, s.encoder, s.effect, s.loader)

	s.jobs.Add(1)
	go func() {
		defer s.jobs.Done()
		lastPercent := -1
		err := exporter.Run(s.ctx, func(p float64) {
			if int(p) == lastPercent {
				return
			}
			lastPercent = int(p)
			s.mu.Lock()
			s.export.Progress = p
			s.mu.Unlock()
			s.hub.Broadcast(Event{Type: "export", Data: JobState{Running: true, Progress: p, Output: cfg.OutputVideo}})
		})

		s.mu.Lock()
		s.export.Running = false
		if err != nil {
			s.export.Error = err.Error()
			log.Printf("[-] %v", err)
		} else {
			s.export.Progress = 100
			log.Printf("[+++] Export finished: %s", cfg.OutputVideo)
		}
		done := s.export
		s.mu.Unlock()
		s.hub.Broadcast(Event{Type: "export", Data: done})
	}()

	writeJSON(w, http.StatusAccepted, st)
}

// handleGenerateStatus handles GET /api/generate
func (s *Server) handleGenerateStatus(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	st := s.generating
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, st)
}

// handleGenerate handles POST /api/generate with an optional {"sceneIds": [...]}.
func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	if s.generator == nil {
		writeError(w, http.StatusServiceUnavailable, generate.ErrCredential.Error())
		return
	}
	var req generateRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON")
			return
		}
	}

	s.mu.Lock()
	if s.generating.Running {
		s.mu.Unlock()
		writeError(w, http.StatusConflict, "generation already running")
		return
	}
	s.generating = JobState{Running: true}
	st := s.generating
	s.mu.Unlock()

	batch := generate.NewBatch(s.generator, s.tl, s.cfg.GenerateInterval)
	s.jobs.Add(1)
	go func() {
		defer s.jobs.Done()
		report, err := batch.Run(s.ctx, req.SceneIDs...)

		s.mu.Lock()
		s.generating = JobState{Progress: 100}
		if err != nil {
			s.generating.Error = err.Error()
		}
		done := s.generating
		s.mu.Unlock()
		log.Printf("[*] Generation: %d ready, %d failed", report.Ready, report.Failed)
		s.hub.Broadcast(Event{Type: "generate", Data: done})
	}()

	writeJSON(w, http.StatusAccepted, st)
}
