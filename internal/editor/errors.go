package editor

import (
	"errors"
	"fmt"
)

// AutosaveDisabledMessage is the persistent indicator shown once a save
// target's breaker has opened.
const AutosaveDisabledMessage = "autosave disabled, please save manually"

// Target names one independent save stream of a session.
type Target string

const (
	TargetContent  Target = "content"
	TargetField    Target = "field"
	TargetSections Target = "sections"
)

var ErrClosed = errors.New("editor: session closed")

// PersistenceError reports a failed save call for one target.
type PersistenceError struct {
	Target Target
	Err    error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("save %s: %v", e.Target, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
