package regen

import (
	"errors"
	"fmt"
)

// RolledBackMessage is the notice shown after a failed regeneration.
const RolledBackMessage = "regeneration failed; your previous content was restored unchanged"

var (
	// ErrMissingPrompt means there is no original prompt to regenerate from.
	ErrMissingPrompt = errors.New("regenerate: no original prompt")
	// ErrInProgress means a regeneration is already running for the session.
	ErrInProgress = errors.New("regenerate: already running")
	// ErrIncomplete wraps generator output that lacks required fields.
	ErrIncomplete = errors.New("generated content is incomplete")
)

// GenerationError reports a failed regeneration. The previous content has
// already been restored when it is returned.
type GenerationError struct {
	Err error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("%s: %v", RolledBackMessage, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }
