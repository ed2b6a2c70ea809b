package generate

import (
	"errors"
	"fmt"
)

// ErrCredential means the API key is missing or was refused.
var ErrCredential = errors.New("missing or invalid API credential")

// AssetGenerationError is a failure to produce the visual of one scene. It
// ends up in that scene's status and never stops the batch.
type AssetGenerationError struct {
	SceneID int
	Err     error
}

func (e *AssetGenerationError) Error() string {
	return fmt.Sprintf("scene %d: %v", e.SceneID, e.Err)
}

func (e *AssetGenerationError) Unwrap() error { return e.Err }
