package render

import (
	"errors"
	"fmt"
)

// ErrTemplateNotFound is returned by sources when no active template
// matches a reference.
var ErrTemplateNotFound = errors.New("template not found")

// MissingVariableError means a placeholder could not be resolved from the
// event context. The plan is skipped rather than sending a half-rendered
// message.
type MissingVariableError struct {
	TemplateID  string
	Placeholder string
}

func (e *MissingVariableError) Error() string {
	return fmt.Sprintf("template %s: missing variable %q", e.TemplateID, e.Placeholder)
}
