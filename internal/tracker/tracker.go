// Package tracker records, per field, the last persisted value and the
// pending edited value, and decides whether a committed field really changed.
package tracker

import (
	"context"
	"sort"
	"sync"

	"pagedraft/internal/document"
)

// Entry is the dirty state of one field.
type Entry struct {
	Path     string
	Original any
	Current  any
}

// SaveFieldFunc persists a single field.
type SaveFieldFunc func(ctx context.Context, path string, value any) error

// Checkpoint captures what a whole-document save is about to persist.
type Checkpoint struct {
	page     document.Page
	pending  map[string]any
	baseGen  map[string]uint64
	dirtyGen uint64
}

// Tracker is safe for concurrent use. Field commits are serialized so two
// single-field saves never overlap.
type Tracker struct {
	mu       sync.Mutex
	baseline map[string]any
	baseGen  map[string]uint64
	pending  map[string]any
	dirty    bool
	dirtyGen uint64

	commitMu    sync.Mutex
	saveField   SaveFieldFunc
	requestSave func()
}

// New creates a tracker. requestSave is invoked after every change, outside
// the tracker's lock; it is the hook the debounced autosave hangs off.
func New(saveField SaveFieldFunc, requestSave func()) *Tracker {
	if requestSave == nil {
		requestSave = func() {}
	}
	return &Tracker{
		baseline:    make(map[string]any),
		baseGen:     make(map[string]uint64),
		pending:     make(map[string]any),
		saveField:   saveField,
		requestSave: requestSave,
	}
}

// TrackIfUnseen registers value as the baseline for path unless one exists.
func (t *Tracker) TrackIfUnseen(path string, value any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.baseline[path]; ok {
		return
	}
	t.baseline[path] = document.Clone(value)
}

// OnChange records value as pending for path and requests a debounced save.
func (t *Tracker) OnChange(path string, value any) {
	t.mu.Lock()
	t.pending[path] = document.Clone(value)
	t.mu.Unlock()
	t.requestSave()
}

// OnCommit persists path when value differs from its baseline. value is the
// field's final value: when it equals the baseline no network call is made
// and any pending entry for the path is dropped. On success the baseline
// advances to value; on failure the error is returned and the pending entry
// is kept.
func (t *Tracker) OnCommit(ctx context.Context, path string, value any) error {
	t.commitMu.Lock()
	defer t.commitMu.Unlock()

	t.mu.Lock()
	base, tracked := t.baseline[path]
	if tracked && document.Equal(base, value) {
		delete(t.pending, path)
		t.mu.Unlock()
		return nil
	}
	if !tracked && value == nil {
		t.mu.Unlock()
		return nil
	}
	committed := document.Clone(value)
	t.mu.Unlock()

	if err := t.saveField(ctx, path, committed); err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.baseline[path] = committed
	t.baseGen[path]++
	if current, ok := t.pending[path]; ok && document.Equal(current, committed) {
		delete(t.pending, path)
	}
	return nil
}

// MarkDirty flags the whole document as unsaved without naming a field, as
// a regeneration or a list operation does.
func (t *Tracker) MarkDirty() {
	t.mu.Lock()
	t.dirty = true
	t.dirtyGen++
	t.mu.Unlock()
	t.requestSave()
}

// HasUnsavedChanges reports whether any field is pending or the document is dirty.
func (t *Tracker) HasUnsavedChanges() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.dirty || len(t.pending) > 0
}

// Checkpoint snapshots the pending set before a whole-document save of page.
func (t *Tracker) Checkpoint(page document.Page) Checkpoint {
	t.mu.Lock()
	defer t.mu.Unlock()
	pending := make(map[string]any, len(t.pending))
	for path, value := range t.pending {
		pending[path] = value
	}
	baseGen := make(map[string]uint64, len(t.baseGen))
	for path, gen := range t.baseGen {
		baseGen[path] = gen
	}
	return Checkpoint{page: page, pending: pending, baseGen: baseGen, dirtyGen: t.dirtyGen}
}

// Complete advances baselines after the save described by cp succeeded.
// Tracked paths take their value from the saved page, except those a field
// commit advanced after the checkpoint was taken. Pending entries edited
// again while the save was in flight stay pending.
func (t *Tracker) Complete(cp Checkpoint) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for path := range t.baseline {
		if t.baseGen[path] != cp.baseGen[path] {
			continue
		}
		value, _ := cp.page.Get(document.ParseRef(path))
		t.baseline[path] = document.Clone(value)
	}
	for path, saved := range cp.pending {
		current, ok := t.pending[path]
		if ok && document.Equal(current, saved) {
			delete(t.pending, path)
		}
	}
	if t.dirtyGen == cp.dirtyGen {
		t.dirty = false
	}
}

// Baseline returns the tracked original value of path.
func (t *Tracker) Baseline(path string) (any, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	value, ok := t.baseline[path]
	return value, ok
}

// Entries lists the dirty entries sorted by path.
func (t *Tracker) Entries() []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()
	entries := make([]Entry, 0, len(t.pending))
	for path, current := range t.pending {
		entries = append(entries, Entry{Path: path, Original: t.baseline[path], Current: current})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Path < entries[j].Path
	})
	return entries
}
