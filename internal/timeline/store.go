package timeline

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ivlev/slidecast/internal/audio"
)

const documentVersion = "1.0"

// Document is the on-disk form of a project
type Document struct {
	Version string        `yaml:"version" json:"version"`
	ID      string        `yaml:"id" json:"id"`
	Audio   audio.Track   `yaml:"audio" json:"audio"`
	NextID  int           `yaml:"next_id" json:"-"`
	Scenes  []SceneRecord `yaml:"scenes" json:"scenes"`
}

// SceneRecord flattens the status variant for YAML and the preview API
type SceneRecord struct {
	ID        int     `yaml:"id" json:"id"`
	Prompt    string  `yaml:"prompt" json:"prompt"`
	Script    string  `yaml:"script" json:"script"`
	StartTime float64 `yaml:"start_time" json:"startTime"`
	Status    string  `yaml:"status" json:"status"`
	ImageURL  string  `yaml:"image_url,omitempty" json:"imageUrl,omitempty"`
	Error     string  `yaml:"error,omitempty" json:"error,omitempty"`
}

func statusFromRecord(r SceneRecord) (Status, error) {
	switch r.Status {
	case "", "pending":
		return Pending{}, nil
	case "generating":
		// an interrupted generation never completed
		return Pending{}, nil
	case "ready":
		return Ready{ImageURL: r.ImageURL}, nil
	case "error":
		return Failed{Reason: r.Error}, nil
	default:
		return nil, fmt.Errorf("scene %d: unknown status %q", r.ID, r.Status)
	}
}

// Document snapshots the timeline for persistence.
func (t *Timeline) Document() *Document {
	t.mu.RLock()
	defer t.mu.RUnlock()

	doc := &Document{
		Version: documentVersion,
		ID:      t.id,
		Audio:   t.track,
		NextID:  t.nextID,
		Scenes:  make([]SceneRecord, len(t.scenes)),
	}
	for i, s := range t.scenes {
		rec := SceneRecord{
			ID:        s.ID,
			Prompt:    s.Prompt,
			Script:    s.Script,
			StartTime: s.StartTime,
			Status:    s.Status.Name(),
		}
		switch st := s.Status.(type) {
		case Ready:
			rec.ImageURL = st.ImageURL
		case Failed:
			rec.Error = st.Reason
		}
		doc.Scenes[i] = rec
	}
	return doc
}

// FromDocument restores a timeline. Scene order and start times are kept as stored.
func FromDocument(doc *Document) (*Timeline, error) {
	if len(doc.Scenes) == 0 {
		return nil, ErrNoScenes
	}
	tl := &Timeline{
		id:     doc.ID,
		track:  doc.Audio,
		nextID: doc.NextID,
		scenes: make([]Scene, len(doc.Scenes)),
	}
	seen := make(map[int]bool, len(doc.Scenes))
	for i, r := range doc.Scenes {
		if seen[r.ID] {
			return nil, fmt.Errorf("duplicate scene id %d", r.ID)
		}
		seen[r.ID] = true
		st, err := statusFromRecord(r)
		if err != nil {
			return nil, err
		}
		tl.scenes[i] = Scene{ID: r.ID, Prompt: r.Prompt, Script: r.Script, StartTime: r.StartTime, Status: st}
		if r.ID >= tl.nextID {
			tl.nextID = r.ID + 1
		}
	}
	return tl, nil
}

// Save writes the project as YAML
func (t *Timeline) Save(path string) error {
	data, err := yaml.Marshal(t.Document())
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, data, 0644)
}

// Load reads a project written by Save
func Load(path string) (*Timeline, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse project %s: %w", path, err)
	}
	return FromDocument(&doc)
}

// ProjectPath creates a timestamped project filename inside dir
func ProjectPath(dir string) string {
	timestamp := time.Now().Format("2006-01-02_15-04-05")
	return filepath.Join(dir, fmt.Sprintf("project_%s.yaml", timestamp))
}

// FindLatestProject finds the most recent project file in dir
func FindLatestProject(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("failed to read projects directory: %w", err)
	}

	var projects []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".yaml") {
			projects = append(projects, filepath.Join(dir, entry.Name()))
		}
	}

	if len(projects) == 0 {
		return "", fmt.Errorf("no project files found in %s", dir)
	}

	sort.Slice(projects, func(i, j int) bool {
		infoI, _ := os.Stat(projects[i])
		infoJ, _ := os.Stat(projects[j])
		return infoI.ModTime().After(infoJ.ModTime())
	})

	return projects[0], nil
}

// SplitLines turns a multi-line text into trimmed, non-empty lines
func SplitLines(text string) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}
