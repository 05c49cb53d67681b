// Package editor wires the document model, the dirty-field tracker, the two
// autosave streams, the section overlay and regeneration into one editing
// session. Every mutation applies to memory synchronously; only persistence
// and generation suspend.
package editor

import (
	"context"
	"errors"
	"log"
	"slices"
	"sync"
	"time"

	"pagedraft/internal/autosave"
	"pagedraft/internal/document"
	"pagedraft/internal/persist"
	"pagedraft/internal/regen"
	"pagedraft/internal/sections"
	"pagedraft/internal/tracker"
	"pagedraft/internal/util"
)

// ErrNoPageID is returned when the backend answers a create without an id.
var ErrNoPageID = errors.New("backend assigned no page id")

const stashTimeout = 5 * time.Second

type settings struct {
	record      *persist.Record
	prompt      string
	schema      *document.Schema
	known       []string
	delay       time.Duration
	maxFailures int
	afterFunc   autosave.AfterFunc
	ctx         context.Context
	listeners   []func(State)
	stash       Stash
}

type Option func(*settings)

// WithRecord opens the session on a persisted page instead of the default skeleton.
func WithRecord(rec persist.Record) Option {
	return func(c *settings) {
		c.record = &rec
	}
}

// WithPrompt sets the original prompt regeneration runs from.
func WithPrompt(prompt string) Option {
	return func(c *settings) {
		c.prompt = prompt
	}
}

// WithSchema replaces the field path table. document.Permissive accepts any
// well-formed path.
func WithSchema(schema *document.Schema) Option {
	return func(c *settings) {
		c.schema = schema
	}
}

// WithKnownSections sets the section set of the overlay.
func WithKnownSections(ids []string) Option {
	return func(c *settings) {
		c.known = ids
	}
}

// WithDelay sets the debounce delay of both save streams.
func WithDelay(d time.Duration) Option {
	return func(c *settings) {
		c.delay = d
	}
}

// WithMaxFailures sets the breaker threshold of both save streams.
func WithMaxFailures(n int) Option {
	return func(c *settings) {
		c.maxFailures = n
	}
}

func WithAfterFunc(fn autosave.AfterFunc) Option {
	return func(c *settings) {
		c.afterFunc = fn
	}
}

// WithContext sets the context automatic saves run under.
func WithContext(ctx context.Context) Option {
	return func(c *settings) {
		c.ctx = ctx
	}
}

// WithListener registers fn to receive the state after every change. It runs
// outside the session's locks, on the goroutine that caused the change.
func WithListener(fn func(State)) Option {
	return func(c *settings) {
		if fn != nil {
			c.listeners = append(c.listeners, fn)
		}
	}
}

func WithStash(stash Stash) Option {
	return func(c *settings) {
		c.stash = stash
	}
}

// Session is one editing session. It owns the page and the section overlay;
// nothing else may mutate them.
type Session struct {
	persister persist.Persister
	schema    *document.Schema
	stash     Stash
	draftKey  string
	listeners []func(State)

	tracker *tracker.Tracker
	overlay *sections.State
	content *autosave.Scheduler
	layout  *autosave.Scheduler
	regen   *regen.Transaction

	// idMu is held across a create so that both streams adopt the same id.
	idMu sync.Mutex

	mu        sync.Mutex
	page      document.Page
	pageID    string
	prompt    string
	published bool
	publish   bool
	lastErr   error
	notice    string
	closed    bool
}

func New(persister persist.Persister, generator regen.Generator, opts ...Option) *Session {
	cfg := settings{schema: document.DefaultSchema(), ctx: context.Background()}
	for _, opt := range opts {
		opt(&cfg)
	}

	known := cfg.known
	if known == nil && cfg.record != nil {
		known = recordSections(*cfg.record)
	}

	s := &Session{
		persister: persister,
		schema:    cfg.schema,
		stash:     cfg.stash,
		draftKey:  util.NewID("draft"),
		listeners: cfg.listeners,
		overlay:   sections.New(known),
		regen:     regen.New(generator),
		page:      document.DefaultPage(),
		prompt:    cfg.prompt,
	}
	if rec := cfg.record; rec != nil {
		s.pageID = rec.ID
		if rec.Content != nil || rec.Style != nil {
			s.page = rec.Page()
		}
		if s.prompt == "" {
			s.prompt = rec.Prompt
		}
		s.published = rec.Published
		s.overlay.Load(rec.VisibleSections, rec.SectionOrder)
	}

	s.tracker = tracker.New(s.saveField, s.requestContentSave)
	s.content = autosave.New(string(TargetContent), s.saveContent, s.tracker.HasUnsavedChanges,
		schedulerOptions(cfg, s.contentStatus)...)
	s.layout = autosave.New(string(TargetSections), s.saveSections, s.overlay.Changed,
		schedulerOptions(cfg, s.sectionsStatus)...)
	return s
}

// recordSections is the section set a persisted page was written for: its
// order, then any other id it carries visibility for. Nil when the record
// has no overlay yet.
func recordSections(rec persist.Record) []string {
	if len(rec.SectionOrder) == 0 && len(rec.VisibleSections) == 0 {
		return nil
	}
	known := slices.Clone(rec.SectionOrder)
	extra := make([]string, 0, len(rec.VisibleSections))
	for id := range rec.VisibleSections {
		if !slices.Contains(known, id) {
			extra = append(extra, id)
		}
	}
	slices.Sort(extra)
	return append(known, extra...)
}

func schedulerOptions(cfg settings, onStatus func(autosave.Status)) []autosave.Option {
	return []autosave.Option{
		autosave.WithDelay(cfg.delay),
		autosave.WithMaxFailures(cfg.maxFailures),
		autosave.WithAfterFunc(cfg.afterFunc),
		autosave.WithContext(cfg.ctx),
		autosave.WithStatusListener(onStatus),
	}
}

// Get reads a field of the live page.
func (s *Session) Get(path string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.page.Get(document.ParseRef(path))
}

// Page returns the live page. Its trees are never modified in place.
func (s *Session) Page() document.Page {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.page
}

func (s *Session) PageID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pageID
}

func (s *Session) SetPrompt(prompt string) {
	s.mu.Lock()
	s.prompt = prompt
	s.mu.Unlock()
}

// Mutate writes value at path and schedules the debounced content save.
// Unknown or malformed paths and out-of-range array writes return a
// *document.ValidationError and leave the page untouched. Typed Go slices,
// maps and structs are stored in their JSON form.
func (s *Session) Mutate(path string, value any) error {
	value = document.Normalize(value)
	return s.edit(path, func(page document.Page, ref document.Ref) (document.Page, error) {
		return page.Set(ref, value)
	})
}

// AppendItem appends value to the list at path.
func (s *Session) AppendItem(path string, value any) error {
	value = document.Normalize(value)
	return s.edit(path, func(page document.Page, ref document.Ref) (document.Page, error) {
		return page.AppendItem(ref, value)
	})
}

// RemoveItem removes the element at index from the list at path.
func (s *Session) RemoveItem(path string, index int) error {
	return s.edit(path, func(page document.Page, ref document.Ref) (document.Page, error) {
		return page.RemoveItem(ref, index)
	})
}

func (s *Session) edit(path string, apply func(document.Page, document.Ref) (document.Page, error)) error {
	ref, err := s.check(path)
	if err != nil {
		return err
	}
	key := ref.String()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	previous, _ := s.page.Get(ref)
	next, err := apply(s.page, ref)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	s.page = next
	current, _ := next.Get(ref)
	s.tracker.TrackIfUnseen(key, previous)
	s.tracker.OnChange(key, current)
	s.mu.Unlock()

	s.emit()
	return nil
}

// CommitField marks path as final. When value differs from the field's last
// persisted value it is saved right away as a single-field patch; otherwise
// no call is made. A failed commit returns the error and leaves the field to
// the debounced content save.
func (s *Session) CommitField(ctx context.Context, path string, value any) error {
	ref, err := s.check(path)
	if err != nil {
		return err
	}
	value = document.Normalize(value)
	current, _ := s.Get(ref.String())
	if !document.Equal(current, value) {
		if err := s.Mutate(ref.String(), value); err != nil {
			return err
		}
	} else {
		s.tracker.TrackIfUnseen(ref.String(), current)
	}

	if err := s.tracker.OnCommit(ctx, ref.String(), value); err != nil {
		s.content.Schedule()
		s.emit()
		return err
	}
	s.emit()
	return nil
}

// ToggleSectionVisibility flips a section's visibility and returns the new value.
func (s *Session) ToggleSectionVisibility(id string) (bool, error) {
	visible, err := s.overlay.ToggleVisibility(id)
	if err != nil {
		return visible, err
	}
	s.scheduleSections()
	s.emit()
	return visible, nil
}

// ToggleSectionExpanded flips the editor-only expanded flag. Nothing is saved.
func (s *Session) ToggleSectionExpanded(id string) bool {
	expanded := s.overlay.ToggleExpanded(id)
	s.emit()
	return expanded
}

// ReorderSections moves id to targetIndex of the persisted order.
func (s *Session) ReorderSections(id string, targetIndex int) error {
	if err := s.overlay.Reorder(id, targetIndex); err != nil {
		return err
	}
	s.scheduleSections()
	s.emit()
	return nil
}

// SetSectionOrder applies an externally supplied order.
func (s *Session) SetSectionOrder(order []string) {
	s.overlay.SetOrder(order)
	s.scheduleSections()
	s.emit()
}

// scheduleSections arms the overlay save only when the overlay differs from
// what was last saved.
func (s *Session) scheduleSections() {
	if s.overlay.Changed() {
		s.layout.Schedule()
		return
	}
	s.layout.Cancel()
}

// Save persists the content now, and the overlay when it changed or its
// breaker is open. It bypasses and resets both breakers.
func (s *Session) Save(ctx context.Context) error {
	return s.flush(ctx, false)
}

// Publish is Save with the published flag set on the content payload.
func (s *Session) Publish(ctx context.Context) error {
	return s.flush(ctx, true)
}

func (s *Session) flush(ctx context.Context, publish bool) error {
	if publish {
		s.mu.Lock()
		s.publish = true
		s.mu.Unlock()
	}

	var errs []error
	if err := s.content.Flush(ctx); err != nil {
		errs = append(errs, err)
	}
	if s.overlay.Changed() || s.layout.Status().Disabled {
		if err := s.layout.Flush(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	err := errors.Join(errs...)

	s.mu.Lock()
	if err != nil {
		s.publish = false
		s.lastErr = err
	} else {
		s.lastErr = nil
		s.notice = ""
	}
	s.mu.Unlock()

	if err == nil {
		s.dropStash(ctx)
	}
	s.emit()
	return err
}

// Regenerate replaces the page with generated content from the original
// prompt. Failure restores the page as it was and returns a
// *regen.GenerationError; a missing prompt returns regen.ErrMissingPrompt
// without contacting the generator. Success is staged for autosave, not
// persisted directly.
func (s *Session) Regenerate(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	prompt, current := s.prompt, s.page
	s.mu.Unlock()

	outcome, err := s.regen.Run(ctx, prompt, current)
	if errors.Is(err, regen.ErrMissingPrompt) || errors.Is(err, regen.ErrInProgress) {
		s.mu.Lock()
		s.lastErr = err
		s.mu.Unlock()
		s.emit()
		return err
	}
	if err != nil {
		log.Printf("editor: regeneration rolled back: %v", err)
		s.mu.Lock()
		s.page = outcome.Page
		s.lastErr = err
		s.notice = regen.RolledBackMessage
		s.mu.Unlock()
		s.emit()
		return err
	}

	s.mu.Lock()
	s.page = outcome.Page
	s.lastErr = nil
	s.notice = ""
	s.mu.Unlock()
	if outcome.Sections != nil {
		s.overlay.SetKnown(outcome.Sections)
		s.scheduleSections()
	}
	s.tracker.MarkDirty()
	log.Printf("editor: regeneration committed for page %q", s.PageID())
	s.emit()
	return nil
}

// RecoverDraft restores a draft stashed after autosave was disabled. It
// reports whether one was found. The recovered draft is staged as unsaved.
func (s *Session) RecoverDraft(ctx context.Context) (bool, error) {
	if s.stash == nil {
		return false, nil
	}
	draft, found, err := s.stash.Get(ctx, s.stashKey())
	if err != nil || !found {
		return false, err
	}
	s.mu.Lock()
	s.page = draft.Page()
	s.mu.Unlock()
	s.overlay.Apply(draft.VisibleSections, draft.SectionOrder)
	s.tracker.MarkDirty()
	s.scheduleSections()
	s.emit()
	return true, nil
}

// DirtyFields lists fields edited since their last save.
func (s *Session) DirtyFields() []tracker.Entry {
	return s.tracker.Entries()
}

// Close stops both debounce timers. Pending debounced saves are dropped;
// an in-flight save finishes.
func (s *Session) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.content.Stop()
	s.layout.Stop()
}

func (s *Session) State() State {
	content := s.content.Status()
	layout := s.layout.Status()
	snap := s.overlay.Snapshot()
	st := State{
		Sections: SectionState{
			Visible:     snap.Visible,
			Order:       snap.Order,
			RenderOrder: s.overlay.RenderOrder(),
			Expanded:    s.overlay.ExpandedSet(),
		},
		HasUnsavedChanges:        s.tracker.HasUnsavedChanges(),
		Saving:                   content.Saving || layout.Saving,
		AutosaveDisabled:         content.Disabled,
		SectionsAutosaveDisabled: layout.Disabled,
		Regeneration:             s.regen.State(),
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	st.PageID = s.pageID
	st.Page = s.page
	st.Published = s.published
	st.LastError = s.lastErr
	st.Notice = s.notice
	return st
}

func (s *Session) check(path string) (document.Ref, error) {
	result := s.schema.Check(document.ParseRef(path))
	if !result.OK() {
		return result.Ref, result.Err
	}
	return result.Ref, nil
}

func (s *Session) requestContentSave() {
	s.content.Schedule()
}

// persist sends one payload. Without a page id the call is a create: idMu
// stays held until the returned id is adopted, so a concurrent save of the
// other stream waits and then uses it.
func (s *Session) persist(ctx context.Context, target Target, build func(id string) persist.Payload) (persist.Record, error) {
	s.idMu.Lock()
	id := s.PageID()
	if id != "" {
		s.idMu.Unlock()
		return s.send(ctx, target, build(id))
	}
	defer s.idMu.Unlock()

	rec, err := s.send(ctx, target, build(""))
	if err != nil {
		return rec, err
	}
	if rec.ID == "" {
		return rec, &PersistenceError{Target: target, Err: ErrNoPageID}
	}
	s.mu.Lock()
	s.pageID = rec.ID
	s.mu.Unlock()
	log.Printf("editor: adopted page id %s", rec.ID)
	return rec, nil
}

func (s *Session) send(ctx context.Context, target Target, payload persist.Payload) (persist.Record, error) {
	rec, err := s.persister.Save(ctx, payload)
	if err != nil {
		return persist.Record{}, &PersistenceError{Target: target, Err: err}
	}
	return rec, nil
}

func (s *Session) contentPayload(id string) (persist.Payload, document.Page) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return persist.Payload{
		Kind:      persist.KindContent,
		ID:        id,
		Content:   s.page.Content,
		Style:     s.page.Style,
		Prompt:    s.prompt,
		Published: s.publish,
	}, s.page
}

// saveContent is the consolidated whole-page save of the content stream.
func (s *Session) saveContent(ctx context.Context) error {
	var (
		cp        tracker.Checkpoint
		published bool
	)
	rec, err := s.persist(ctx, TargetContent, func(id string) persist.Payload {
		payload, page := s.contentPayload(id)
		cp = s.tracker.Checkpoint(page)
		published = payload.Published
		return payload
	})
	if err != nil {
		return err
	}
	s.tracker.Complete(cp)

	s.mu.Lock()
	s.published = s.published || rec.Published
	if published {
		s.publish = false
	}
	s.mu.Unlock()

	if s.tracker.HasUnsavedChanges() {
		s.content.Schedule()
	}
	return nil
}

// saveField is the single-field save behind CommitField. Before the page has
// an id the whole page is sent instead, which creates it.
func (s *Session) saveField(ctx context.Context, key string, value any) error {
	var cp *tracker.Checkpoint
	_, err := s.persist(ctx, TargetField, func(id string) persist.Payload {
		if id != "" {
			return persist.Payload{Kind: persist.KindField, ID: id, Fields: map[string]any{key: value}}
		}
		payload, page := s.contentPayload("")
		checkpoint := s.tracker.Checkpoint(page)
		cp = &checkpoint
		return payload
	})
	if err != nil {
		return err
	}
	if cp != nil {
		s.tracker.Complete(*cp)
	}
	return nil
}

func (s *Session) saveSections(ctx context.Context) error {
	snap := s.overlay.Snapshot()
	_, err := s.persist(ctx, TargetSections, func(id string) persist.Payload {
		return persist.Payload{
			Kind:            persist.KindSections,
			ID:              id,
			VisibleSections: snap.Visible,
			SectionOrder:    snap.Order,
		}
	})
	if err != nil {
		return err
	}
	s.overlay.MarkSaved(snap)
	if s.overlay.Changed() {
		s.layout.Schedule()
	}
	return nil
}

func (s *Session) contentStatus(status autosave.Status) {
	s.targetStatus(TargetContent, status)
	if status.Disabled {
		s.stashDraft()
	}
	s.emit()
}

func (s *Session) sectionsStatus(status autosave.Status) {
	s.targetStatus(TargetSections, status)
	s.emit()
}

// targetStatus surfaces a target's error once its breaker opens and clears
// it again after the target saves successfully.
func (s *Session) targetStatus(target Target, status autosave.Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case status.Disabled:
		s.lastErr = status.LastError
		s.notice = AutosaveDisabledMessage
	case status.Failures == 0:
		var perr *PersistenceError
		if errors.As(s.lastErr, &perr) && perr.Target == target {
			s.lastErr = nil
		}
		if s.notice == AutosaveDisabledMessage && !s.content.Status().Disabled && !s.layout.Status().Disabled {
			s.notice = ""
		}
	}
}

func (s *Session) stashKey() string {
	if id := s.PageID(); id != "" {
		return id
	}
	return s.draftKey
}

func (s *Session) stashDraft() {
	if s.stash == nil {
		return
	}
	snap := s.overlay.Snapshot()
	s.mu.Lock()
	draft := persist.Record{
		ID:              s.pageID,
		Content:         s.page.Content,
		Style:           s.page.Style,
		VisibleSections: snap.Visible,
		SectionOrder:    snap.Order,
		Prompt:          s.prompt,
		Published:       s.published,
		UpdatedAt:       time.Now().UTC(),
	}
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), stashTimeout)
	defer cancel()
	if err := s.stash.Put(ctx, s.stashKey(), draft); err != nil {
		log.Printf("editor: stash draft: %v", err)
	}
}

func (s *Session) dropStash(ctx context.Context) {
	if s.stash == nil {
		return
	}
	keys := []string{s.draftKey}
	if id := s.PageID(); id != "" {
		keys = append(keys, id)
	}
	for _, key := range keys {
		if err := s.stash.Delete(ctx, key); err != nil {
			log.Printf("editor: drop stashed draft %s: %v", key, err)
		}
	}
}

func (s *Session) emit() {
	if len(s.listeners) == 0 {
		return
	}
	st := s.State()
	for _, fn := range s.listeners {
		fn(st)
	}
}
