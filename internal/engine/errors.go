package engine

import "fmt"

// ExportError is the single terminal failure of an export attempt.
type ExportError struct {
	Stage string
	Err   error
}

func (e *ExportError) Error() string {
	return fmt.Sprintf("export failed during %s: %v", e.Stage, e.Err)
}

func (e *ExportError) Unwrap() error { return e.Err }
