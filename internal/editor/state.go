package editor

import (
	"context"

	"pagedraft/internal/document"
	"pagedraft/internal/persist"
	"pagedraft/internal/regen"
)

// SectionState is the observable section overlay.
type SectionState struct {
	Visible     map[string]bool
	Order       []string
	RenderOrder []string
	Expanded    map[string]bool
}

// State is the read-only view the UI layer renders from.
type State struct {
	PageID            string
	Page              document.Page
	Sections          SectionState
	HasUnsavedChanges bool
	Saving            bool
	Published         bool

	// AutosaveDisabled is set when the content breaker is open;
	// SectionsAutosaveDisabled when the overlay breaker is.
	AutosaveDisabled         bool
	SectionsAutosaveDisabled bool

	LastError    error
	Notice       string
	Regeneration regen.State
}

// Stash keeps a copy of a draft that could not be saved, keyed by page id
// (or a session-local key before the page has one).
type Stash interface {
	Put(ctx context.Context, key string, draft persist.Record) error
	Get(ctx context.Context, key string) (persist.Record, bool, error)
	Delete(ctx context.Context, key string) error
}
