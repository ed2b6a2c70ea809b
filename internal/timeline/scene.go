package timeline

// Status is the lifecycle of a scene's visual: Pending, Generating, Ready or Failed.
// The set is closed; only Ready carries an asset.
type Status interface {
	Name() string
	isStatus()
}

type Pending struct{}

type Generating struct{}

// Ready holds the resolved visual reference (file path, URL or "deck.pdf#3").
type Ready struct {
	ImageURL string
}

// Failed records why generation of the visual did not succeed.
type Failed struct {
	Reason string
}

func (Pending) Name() string    { return "pending" }
func (Generating) Name() string { return "generating" }
func (Ready) Name() string      { return "ready" }
func (Failed) Name() string     { return "error" }

func (Pending) isStatus()    {}
func (Generating) isStatus() {}
func (Ready) isStatus()      {}
func (Failed) isStatus()     {}

// Scene is one segment of the presentation.
type Scene struct {
	ID        int
	Prompt    string
	Script    string
	StartTime float64
	Status    Status
}

// ImageURL returns the visual reference when the scene is Ready.
func (s Scene) ImageURL() (string, bool) {
	if r, ok := s.Status.(Ready); ok {
		return r.ImageURL, true
	}
	return "", false
}
