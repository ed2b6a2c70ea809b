package timeline

// Resolve returns the index of the last scene, in array order, whose start
// time is at or before t. Scene 0 is the fallback when none qualifies.
// Start times may be non-monotonic after manual edits; they are not sorted.
func Resolve(scenes []Scene, t float64) int {
	active := 0
	for i, s := range scenes {
		if s.StartTime <= t {
			active = i
		}
	}
	return active
}

// Progress is the position of t inside the active scene's window, in [0, 1].
// The window ends at the next scene's start, or at duration for the last scene.
// A zero-length window counts as complete.
func Progress(scenes []Scene, duration float64, index int, t float64) float64 {
	if index < 0 || index >= len(scenes) {
		return 0
	}
	start := scenes[index].StartTime
	end := duration
	if index+1 < len(scenes) {
		end = scenes[index+1].StartTime
	}
	if end == start {
		return 1
	}
	p := (t - start) / (end - start)
	if p < 0 {
		return 0
	}
	if p > 1 {
		return 1
	}
	return p
}
