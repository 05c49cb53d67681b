// Package persist defines the payloads exchanged between an editing session
// and the page backend, and how a payload is applied to a stored record.
package persist

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"pagedraft/internal/document"
)

// Kind names the part of a page record a payload replaces.
type Kind string

const (
	// KindContent carries the whole content and style trees.
	KindContent Kind = "content"
	// KindField carries single-field patches.
	KindField Kind = "field"
	// KindSections carries the section overlay only.
	KindSections Kind = "sections"
)

var (
	ErrUnknownKind  = errors.New("unknown payload kind")
	ErrMissingID    = errors.New("payload needs a page id")
	ErrEmptyPayload = errors.New("payload carries nothing to save")
)

// Payload is one save call. Each kind only carries the subtree it is
// responsible for plus the page id; ID is empty on the first create.
type Payload struct {
	Kind            Kind            `json:"kind"`
	ID              string          `json:"id,omitempty"`
	Content         document.Tree   `json:"content,omitempty"`
	Style           document.Tree   `json:"style,omitempty"`
	Fields          map[string]any  `json:"fields,omitempty"`
	VisibleSections map[string]bool `json:"visibleSections,omitempty"`
	SectionOrder    []string        `json:"sectionOrder,omitempty"`
	Prompt          string          `json:"prompt,omitempty"`
	Published       bool            `json:"published,omitempty"`
}

// Record is the persisted page and the echo returned by every save.
type Record struct {
	ID              string          `json:"id"`
	Content         document.Tree   `json:"content"`
	Style           document.Tree   `json:"style"`
	VisibleSections map[string]bool `json:"visibleSections,omitempty"`
	SectionOrder    []string        `json:"sectionOrder,omitempty"`
	Prompt          string          `json:"prompt,omitempty"`
	Published       bool            `json:"published"`
	UpdatedAt       time.Time       `json:"updatedAt"`
}

// Page returns the record's content and style as a document page.
func (r Record) Page() document.Page {
	return document.Page{Content: r.Content, Style: r.Style}
}

// Persister is the backend an editing session saves through.
type Persister interface {
	Save(ctx context.Context, payload Payload) (Record, error)
}

// PersisterFunc adapts a function to Persister.
type PersisterFunc func(ctx context.Context, payload Payload) (Record, error)

func (f PersisterFunc) Save(ctx context.Context, payload Payload) (Record, error) {
	return f(ctx, payload)
}

// Validate checks the payload's shape before it is applied.
func (p Payload) Validate() error {
	switch p.Kind {
	case KindContent:
		return nil
	case KindField:
		if p.ID == "" {
			return fmt.Errorf("field patch: %w", ErrMissingID)
		}
		if len(p.Fields) == 0 {
			return fmt.Errorf("field patch: %w", ErrEmptyPayload)
		}
		return nil
	case KindSections:
		if p.VisibleSections == nil && p.SectionOrder == nil {
			return fmt.Errorf("sections patch: %w", ErrEmptyPayload)
		}
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownKind, p.Kind)
	}
}

// Apply returns rec with payload applied. Only the subtree the payload kind
// owns is replaced; Published is sticky once set. Field patches go through
// document.Set with the same path rules as the editor.
func Apply(rec Record, payload Payload) (Record, error) {
	if err := payload.Validate(); err != nil {
		return rec, err
	}
	next := rec
	switch payload.Kind {
	case KindContent:
		next.Content = payload.Content
		next.Style = payload.Style
		if payload.Prompt != "" {
			next.Prompt = payload.Prompt
		}
	case KindField:
		page := rec.Page()
		paths := make([]string, 0, len(payload.Fields))
		for path := range payload.Fields {
			paths = append(paths, path)
		}
		sort.Strings(paths)
		for _, path := range paths {
			updated, err := page.Set(document.ParseRef(path), payload.Fields[path])
			if err != nil {
				return rec, err
			}
			page = updated
		}
		next.Content = page.Content
		next.Style = page.Style
	case KindSections:
		if payload.VisibleSections != nil {
			next.VisibleSections = payload.VisibleSections
		}
		if payload.SectionOrder != nil {
			next.SectionOrder = payload.SectionOrder
		}
	}
	next.Published = rec.Published || payload.Published
	if next.Content == nil {
		next.Content = document.Tree{}
	}
	if next.Style == nil {
		next.Style = document.Tree{}
	}
	return next, nil
}
