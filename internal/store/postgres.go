package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

var ErrNotFound = errors.New("not found")

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const pageColumns = `id, content, style, visible_sections, section_order, prompt, published, published_at, created_at, updated_at`

func (s *PostgresStore) GetPage(ctx context.Context, pageID string) (Page, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+pageColumns+` FROM pages WHERE id=$1`, pageID)
	page, err := scanPage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Page{}, fmt.Errorf("page %s: %w", pageID, ErrNotFound)
	}
	if err != nil {
		return Page{}, fmt.Errorf("get page: %w", err)
	}
	return page, nil
}

func (s *PostgresStore) InsertPage(ctx context.Context, page Page) (Page, error) {
	args, err := pageArgs(page)
	if err != nil {
		return Page{}, err
	}
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO pages (id, content, style, visible_sections, section_order, prompt, published, published_at)
		VALUES ($1, $2::jsonb, $3::jsonb, $4::jsonb, $5::jsonb, $6, $7, CASE WHEN $7 THEN NOW() END)
		RETURNING `+pageColumns, args...)
	inserted, err := scanPage(row)
	if err != nil {
		return Page{}, fmt.Errorf("insert page: %w", err)
	}
	return inserted, nil
}

// UpdatePage overwrites every mutable column. published_at is stamped the
// first time the page is published and kept afterwards.
func (s *PostgresStore) UpdatePage(ctx context.Context, page Page) (Page, error) {
	args, err := pageArgs(page)
	if err != nil {
		return Page{}, err
	}
	row := s.db.QueryRowContext(ctx, `
		UPDATE pages
		SET content=$2::jsonb, style=$3::jsonb, visible_sections=$4::jsonb, section_order=$5::jsonb,
			prompt=$6, published=$7,
			published_at=CASE WHEN $7 THEN COALESCE(published_at, NOW()) ELSE published_at END,
			updated_at=NOW()
		WHERE id=$1
		RETURNING `+pageColumns, args...)
	updated, err := scanPage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Page{}, fmt.Errorf("page %s: %w", page.ID, ErrNotFound)
	}
	if err != nil {
		return Page{}, fmt.Errorf("update page: %w", err)
	}
	return updated, nil
}

func (s *PostgresStore) ListPages(ctx context.Context, limit int) ([]PageSummary, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id,
			COALESCE(content #>> '{businessInfo,name}', ''),
			COALESCE(content #>> '{hero,headline}', ''),
			published, updated_at
		FROM pages
		ORDER BY updated_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list pages: %w", err)
	}
	defer rows.Close()

	items := make([]PageSummary, 0)
	for rows.Next() {
		var item PageSummary
		if err := rows.Scan(&item.ID, &item.BusinessName, &item.Headline, &item.Published, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan page summary: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pages: %w", err)
	}
	return items, nil
}

// Ping verifies the database connection is alive
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPage(row rowScanner) (Page, error) {
	var (
		page                                 Page
		contentRaw, styleRaw, visRaw, ordRaw []byte
		publishedAt                          sql.NullTime
	)
	if err := row.Scan(
		&page.ID,
		&contentRaw,
		&styleRaw,
		&visRaw,
		&ordRaw,
		&page.Prompt,
		&page.Published,
		&publishedAt,
		&page.CreatedAt,
		&page.UpdatedAt,
	); err != nil {
		return Page{}, err
	}
	if publishedAt.Valid {
		at := publishedAt.Time
		page.PublishedAt = &at
	}
	for _, col := range []struct {
		name string
		raw  []byte
		dst  any
	}{
		{"content", contentRaw, &page.Content},
		{"style", styleRaw, &page.Style},
		{"visible_sections", visRaw, &page.VisibleSections},
		{"section_order", ordRaw, &page.SectionOrder},
	} {
		if len(col.raw) == 0 {
			continue
		}
		if err := json.Unmarshal(col.raw, col.dst); err != nil {
			return Page{}, fmt.Errorf("decode %s: %w", col.name, err)
		}
	}
	return page, nil
}

func pageArgs(page Page) ([]any, error) {
	content, style := page.Content, page.Style
	if content == nil {
		content = map[string]any{}
	}
	if style == nil {
		style = map[string]any{}
	}
	visible := page.VisibleSections
	if visible == nil {
		visible = map[string]bool{}
	}
	order := page.SectionOrder
	if order == nil {
		order = []string{}
	}

	encoded := make([]any, 0, 4)
	for _, value := range []any{content, style, visible, order} {
		raw, err := json.Marshal(value)
		if err != nil {
			return nil, fmt.Errorf("marshal page %s: %w", page.ID, err)
		}
		encoded = append(encoded, string(raw))
	}
	return []any{page.ID, encoded[0], encoded[1], encoded[2], encoded[3], page.Prompt, page.Published}, nil
}
