package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"reflect"
	"strings"
	"sync"

	"pagedraft/internal/config"
	"pagedraft/internal/document"
	"pagedraft/internal/gitrepo"
	"pagedraft/internal/persist"
	"pagedraft/internal/regen"
	"pagedraft/internal/search"
	"pagedraft/internal/store"
	"pagedraft/internal/util"

	"github.com/go-playground/validator/v10"
)

const defaultAuthor = "pagedraft"

type GenerateInput struct {
	Prompt   string        `json:"prompt" validate:"required"`
	Existing document.Page `json:"existing"`
}

type dataStore interface {
	GetPage(context.Context, string) (store.Page, error)
	InsertPage(context.Context, store.Page) (store.Page, error)
	UpdatePage(context.Context, store.Page) (store.Page, error)
	ListPages(context.Context, int) ([]store.PageSummary, error)
	Ping(context.Context) error
}

type gitService interface {
	CommitPage(string, gitrepo.Snapshot, string, string) (store.CommitInfo, bool, error)
	History(string, int) ([]store.CommitInfo, error)
	GetPageByHash(string, string) (gitrepo.Snapshot, store.CommitInfo, error)
}

type searchService interface {
	Search(search.Query) search.Response
	IndexPage(search.PageRecord)
}

// Service is the page backend: it applies persistence payloads to stored
// pages, records published revisions and serves generation requests.
type Service struct {
	cfg       config.Config
	store     dataStore
	git       gitService
	search    searchService
	generator regen.Generator
	schema    *document.Schema
	validate  *validator.Validate

	lockMu sync.Mutex
	locks  map[string]*sync.Mutex
}

func New(cfg config.Config, dataStore *store.PostgresStore, gitService *gitrepo.Service, searchService *search.Service, generator regen.Generator) *Service {
	s := newService(cfg, dataStore, nil, generator)
	if gitService != nil {
		s.git = gitService
	}
	if searchService != nil {
		s.search = searchService
	}
	return s
}

func newService(cfg config.Config, dataStore dataStore, gitService gitService, generator regen.Generator) *Service {
	validate := validator.New()
	validate.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		return name
	})
	return &Service{
		cfg:       cfg,
		store:     dataStore,
		git:       gitService,
		generator: generator,
		schema:    document.DefaultSchema(),
		validate:  validate,
		locks:     make(map[string]*sync.Mutex),
	}
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// Save applies payload to the page it names, creating the page when the
// payload carries no id. Field patches are checked against the field schema
// before anything is written.
func (s *Service) Save(ctx context.Context, payload persist.Payload, author string) (persist.Record, error) {
	if err := payload.Validate(); err != nil {
		return persist.Record{}, domainError(http.StatusBadRequest, "INVALID_PAYLOAD", err.Error(), nil)
	}
	if err := s.checkFields(payload); err != nil {
		return persist.Record{}, err
	}

	if payload.ID == "" {
		return s.create(ctx, payload, author)
	}

	lock := s.pageLock(payload.ID)
	lock.Lock()
	defer lock.Unlock()

	row, err := s.store.GetPage(ctx, payload.ID)
	if err != nil {
		return persist.Record{}, err
	}
	next, err := persist.Apply(recordFromRow(row), payload)
	if err != nil {
		return persist.Record{}, err
	}
	updated, err := s.store.UpdatePage(ctx, rowFromRecord(next))
	if err != nil {
		return persist.Record{}, err
	}
	rec := recordFromRow(updated)
	if payload.Published {
		s.recordPublish(rec, author)
	}
	return rec, nil
}

// Publish marks a stored page published without changing its content.
func (s *Service) Publish(ctx context.Context, pageID, author string) (persist.Record, error) {
	lock := s.pageLock(pageID)
	lock.Lock()
	defer lock.Unlock()

	row, err := s.store.GetPage(ctx, pageID)
	if err != nil {
		return persist.Record{}, err
	}
	row.Published = true
	updated, err := s.store.UpdatePage(ctx, row)
	if err != nil {
		return persist.Record{}, err
	}
	rec := recordFromRow(updated)
	s.recordPublish(rec, author)
	return rec, nil
}

func (s *Service) GetPage(ctx context.Context, pageID string) (persist.Record, error) {
	row, err := s.store.GetPage(ctx, pageID)
	if err != nil {
		return persist.Record{}, err
	}
	return recordFromRow(row), nil
}

func (s *Service) ListPages(ctx context.Context, limit int) ([]map[string]any, error) {
	rows, err := s.store.ListPages(ctx, limit)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		items = append(items, map[string]any{
			"id":           row.ID,
			"businessName": row.BusinessName,
			"headline":     row.Headline,
			"published":    row.Published,
			"updatedAt":    row.UpdatedAt,
		})
	}
	return items, nil
}

func (s *Service) History(ctx context.Context, pageID string, limit int) ([]map[string]any, error) {
	if _, err := s.store.GetPage(ctx, pageID); err != nil {
		return nil, err
	}
	if s.git == nil {
		return []map[string]any{}, nil
	}
	commits, err := s.git.History(pageID, limit)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(commits))
	for _, commit := range commits {
		items = append(items, commitPayload(commit))
	}
	return items, nil
}

func (s *Service) Revision(ctx context.Context, pageID, hash string) (map[string]any, error) {
	if s.git == nil {
		return nil, gitrepo.ErrNoHistory
	}
	snap, commit, err := s.git.GetPageByHash(pageID, hash)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"pageId": pageID,
		"commit": commitPayload(commit),
		"page": persist.Record{
			ID:              pageID,
			Content:         snap.Content,
			Style:           snap.Style,
			VisibleSections: snap.VisibleSections,
			SectionOrder:    snap.SectionOrder,
			Prompt:          snap.Prompt,
			Published:       true,
			UpdatedAt:       commit.CreatedAt,
		},
	}, nil
}

func (s *Service) Search(query search.Query) search.Response {
	if s.search == nil {
		return search.Response{Results: []search.Result{}, Query: query.Text}
	}
	return s.search.Search(query)
}

// Generate runs the configured generator. The response is not checked for
// required fields here; the editing session does that before committing it.
func (s *Service) Generate(ctx context.Context, input GenerateInput) (regen.Result, error) {
	if err := s.validateInput(input); err != nil {
		return regen.Result{}, err
	}
	if s.generator == nil {
		return regen.Result{}, domainError(http.StatusServiceUnavailable, "GENERATOR_UNAVAILABLE", "No generator is configured", nil)
	}
	result, err := s.generator.Generate(ctx, input.Prompt, input.Existing)
	if err != nil {
		log.Printf("app: generate failed: %v", err)
		return regen.Result{}, domainError(http.StatusBadGateway, "GENERATION_FAILED", "Generation failed", nil)
	}
	return result, nil
}

func (s *Service) create(ctx context.Context, payload persist.Payload, author string) (persist.Record, error) {
	rec, err := persist.Apply(persist.Record{ID: util.NewID("pg")}, payload)
	if err != nil {
		return persist.Record{}, err
	}
	inserted, err := s.store.InsertPage(ctx, rowFromRecord(rec))
	if err != nil {
		return persist.Record{}, err
	}
	created := recordFromRow(inserted)
	log.Printf("app: created page %s (%s)", created.ID, payload.Kind)
	if payload.Published {
		s.recordPublish(created, author)
	}
	return created, nil
}

// recordPublish commits the published page to its history and indexes it.
// Both are secondary to the stored record: failures are logged, not returned.
func (s *Service) recordPublish(rec persist.Record, author string) {
	if strings.TrimSpace(author) == "" {
		author = defaultAuthor
	}
	if s.git != nil {
		snap := gitrepo.Snapshot{
			Content:         rec.Content,
			Style:           rec.Style,
			VisibleSections: rec.VisibleSections,
			SectionOrder:    rec.SectionOrder,
			Prompt:          rec.Prompt,
		}
		commit, created, err := s.git.CommitPage(rec.ID, snap, author, "Publish page")
		if err != nil {
			log.Printf("app: record publish history for %s: %v", rec.ID, err)
		} else if created {
			log.Printf("app: published page %s as %s", rec.ID, commit.Hash)
		}
	}
	if s.search != nil {
		s.search.IndexPage(searchRecord(rec))
	}
}

func (s *Service) checkFields(payload persist.Payload) error {
	if payload.Kind != persist.KindField {
		return nil
	}
	for key := range payload.Fields {
		if result := s.schema.Check(document.ParseRef(key)); !result.OK() {
			return result.Err
		}
	}
	return nil
}

func (s *Service) validateInput(input any) error {
	if err := s.validate.Struct(input); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fieldErr := range verrs {
				fields = append(fields, fieldErr.Field())
			}
			return domainError(http.StatusBadRequest, "VALIDATION_ERROR", fmt.Sprintf("missing or invalid: %s", strings.Join(fields, ", ")), map[string]any{"fields": fields})
		}
		return err
	}
	return nil
}

func (s *Service) pageLock(pageID string) *sync.Mutex {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	lock, ok := s.locks[pageID]
	if ok {
		return lock
	}
	lock = &sync.Mutex{}
	s.locks[pageID] = lock
	return lock
}

func recordFromRow(row store.Page) persist.Record {
	return persist.Record{
		ID:              row.ID,
		Content:         row.Content,
		Style:           row.Style,
		VisibleSections: row.VisibleSections,
		SectionOrder:    row.SectionOrder,
		Prompt:          row.Prompt,
		Published:       row.Published,
		UpdatedAt:       row.UpdatedAt,
	}
}

func rowFromRecord(rec persist.Record) store.Page {
	return store.Page{
		ID:              rec.ID,
		Content:         rec.Content,
		Style:           rec.Style,
		VisibleSections: rec.VisibleSections,
		SectionOrder:    rec.SectionOrder,
		Prompt:          rec.Prompt,
		Published:       rec.Published,
	}
}

func searchRecord(rec persist.Record) search.PageRecord {
	text := func(path string) string {
		value, _ := document.Get(rec.Content, path)
		str, _ := value.(string)
		return str
	}
	return search.PageRecord{
		ID:           rec.ID,
		BusinessName: text("businessInfo.name"),
		Headline:     text("hero.headline"),
		Subheadline:  text("hero.subheadline"),
		Prompt:       rec.Prompt,
	}
}

func commitPayload(commit store.CommitInfo) map[string]any {
	return map[string]any{
		"hash":      commit.Hash,
		"message":   strings.TrimSpace(commit.Message),
		"author":    commit.Author,
		"createdAt": commit.CreatedAt,
	}
}
