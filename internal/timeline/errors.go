package timeline

import (
	"errors"
	"fmt"
)

var (
	ErrInputMismatch = errors.New("prompt and script line counts differ")
	ErrNoScenes      = errors.New("project needs at least one scene")
	ErrSceneNotFound = errors.New("scene not found")
)

// MismatchError carries the offending counts of a rejected project.
type MismatchError struct {
	Prompts int
	Scripts int
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("%d prompts but %d script lines", e.Prompts, e.Scripts)
}

func (e *MismatchError) Unwrap() error { return ErrInputMismatch }
