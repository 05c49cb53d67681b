// Package sections keeps the structural overlay of a page: which sections are
// visible, the order they render in, and which ones are expanded in the editor.
package sections

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
)

// Hero is always rendered first and can be neither hidden nor moved.
const Hero = "hero"

var (
	ErrUnknownSection = errors.New("unknown section")
	ErrHeroPinned     = errors.New("hero section is pinned")
)

// DefaultKnown is the section set of the default page skeleton.
var DefaultKnown = []string{"problemSection", "features", "benefits", "socialProof", "pricing", "faq", "cta"}

// Snapshot is the persisted part of the overlay. Order never contains Hero.
type Snapshot struct {
	Visible map[string]bool `json:"visibleSections"`
	Order   []string        `json:"sectionOrder"`
}

func (s Snapshot) Equal(other Snapshot) bool {
	return maps.Equal(s.Visible, other.Visible) && slices.Equal(s.Order, other.Order)
}

func (s Snapshot) clone() Snapshot {
	return Snapshot{Visible: maps.Clone(s.Visible), Order: slices.Clone(s.Order)}
}

// State is the live overlay plus the last saved snapshot it is diffed against.
// It is safe for concurrent use.
type State struct {
	mu       sync.Mutex
	known    []string
	order    []string
	visible  map[string]bool
	expanded map[string]bool
	saved    Snapshot
}

// New creates an overlay for known, every section visible in known order. The
// initial state is also the saved snapshot.
func New(known []string) *State {
	if known == nil {
		known = DefaultKnown
	}
	s := &State{expanded: make(map[string]bool)}
	s.known = normalizeIDs(known, nil)
	s.order = slices.Clone(s.known)
	s.visible = make(map[string]bool, len(s.known))
	for _, id := range s.known {
		s.visible[id] = true
	}
	s.saved = s.snapshotLocked()
	return s
}

// Load applies a persisted overlay and makes it the saved snapshot, so that
// opening a page never looks like a change. Nil arguments keep the defaults.
func (s *State) Load(visible map[string]bool, order []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.applyLocked(visible, order)
	s.saved = s.snapshotLocked()
}

// Apply sets visibility and order like Load but leaves the saved snapshot
// alone, so a difference shows up as a change.
func (s *State) Apply(visible map[string]bool, order []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.applyLocked(visible, order)
}

func (s *State) applyLocked(visible map[string]bool, order []string) {
	for id, shown := range visible {
		if s.isKnownLocked(id) {
			s.visible[id] = shown
		}
	}
	if order != nil {
		s.order = normalizeOrder(order, s.known)
	}
}

// SetKnown replaces the known section set, as happens when a regeneration
// returns a different set. Surviving ids keep their order and visibility;
// new ids are appended visible.
func (s *State) SetKnown(known []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.known = normalizeIDs(known, nil)
	s.order = normalizeOrder(s.order, s.known)
	visible := make(map[string]bool, len(s.known))
	for _, id := range s.known {
		shown, ok := s.visible[id]
		visible[id] = shown || !ok
	}
	s.visible = visible
	for id := range s.expanded {
		if !s.isKnownLocked(id) {
			delete(s.expanded, id)
		}
	}
}

// ToggleVisibility flips id's visibility and returns the new value. Order is
// not affected.
func (s *State) ToggleVisibility(id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id == Hero {
		return true, ErrHeroPinned
	}
	if !s.isKnownLocked(id) {
		return false, fmt.Errorf("toggle %q: %w", id, ErrUnknownSection)
	}
	s.visible[id] = !s.visible[id]
	return s.visible[id], nil
}

// ToggleExpanded flips the editor-only expanded flag. It is never persisted.
func (s *State) ToggleExpanded(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expanded[id] = !s.expanded[id]
	return s.expanded[id]
}

func (s *State) Expanded(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.expanded[id]
}

// ExpandedSet returns the ids currently expanded.
func (s *State) ExpandedSet() map[string]bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]bool, len(s.expanded))
	for id, open := range s.expanded {
		if open {
			out[id] = true
		}
	}
	return out
}

// Visible reports whether id renders. Hero always does.
func (s *State) Visible(id string) bool {
	if id == Hero {
		return true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.visible[id]
}

// Reorder moves id to targetIndex, shifting the sections in between. The
// index is clamped rather than rejected: a negative index moves the section
// to the front and one past the end moves it to the back.
func (s *State) Reorder(id string, targetIndex int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id == Hero {
		return ErrHeroPinned
	}
	from := slices.Index(s.order, id)
	if from < 0 {
		return fmt.Errorf("reorder %q: %w", id, ErrUnknownSection)
	}
	rest := slices.Delete(slices.Clone(s.order), from, from+1)
	targetIndex = max(0, min(targetIndex, len(rest)))
	s.order = slices.Insert(rest, targetIndex, id)
	return nil
}

// SetOrder replaces the order with an externally supplied list. Hero,
// unknown and duplicate ids are dropped; known ids missing from order are
// appended in their known order.
func (s *State) SetOrder(order []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.order = normalizeOrder(order, s.known)
}

// Order returns the persisted order, without Hero.
func (s *State) Order() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.order)
}

// RenderOrder returns the order sections render in: Hero first.
func (s *State) RenderOrder() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string{Hero}, s.order...)
}

func (s *State) Known() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.known)
}

// Snapshot returns a copy of the current persisted part of the overlay.
func (s *State) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Saved returns the last saved snapshot.
func (s *State) Saved() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saved.clone()
}

// Changed reports whether the overlay differs structurally from the last
// saved snapshot.
func (s *State) Changed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.snapshotLocked().Equal(s.saved)
}

// MarkSaved records snap, the snapshot a successful save sent, as saved.
// Changes made while that save was in flight still compare as changed.
func (s *State) MarkSaved(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved = snap.clone()
}

func (s *State) snapshotLocked() Snapshot {
	return Snapshot{Visible: maps.Clone(s.visible), Order: slices.Clone(s.order)}
}

func (s *State) isKnownLocked(id string) bool {
	return slices.Contains(s.known, id)
}

// normalizeIDs drops Hero, empty ids and duplicates. When known is non-nil,
// ids outside it are dropped as well.
func normalizeIDs(ids []string, known []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || id == Hero || seen[id] {
			continue
		}
		if known != nil && !slices.Contains(known, id) {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

func normalizeOrder(order []string, known []string) []string {
	out := normalizeIDs(order, known)
	for _, id := range known {
		if !slices.Contains(out, id) {
			out = append(out, id)
		}
	}
	return out
}
