package store

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *PostgresStore {
	t.Helper()
	dsn := strings.TrimSpace(os.Getenv("PAGEDRAFT_TEST_DATABASE_URL"))
	if dsn == "" {
		t.Skip("PAGEDRAFT_TEST_DATABASE_URL is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	db, err := Open(ctx, dsn)
	require.NoError(t, err, "open postgres")
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, resetPublicSchema(ctx, db), "reset schema")
	require.NoError(t, ApplyMigrations(ctx, db, filepath.Join("..", "..", "db", "migrations")))
	return NewPostgresStore(db)
}

func TestPageLifecyclePostgres(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	inserted, err := s.InsertPage(ctx, Page{
		ID:              "pg_test",
		Content:         map[string]any{"businessInfo": map[string]any{"name": "Pastelaria"}, "hero": map[string]any{"headline": "Fresh every morning"}},
		VisibleSections: map[string]bool{"pricing": false},
		SectionOrder:    []string{"features", "pricing"},
		Prompt:          "a bakery in Lisbon",
	})
	require.NoError(t, err)
	assert.False(t, inserted.Published, "new page must not be published")
	assert.Nil(t, inserted.PublishedAt)
	assert.NotNil(t, inserted.Style, "style should default to an empty map")

	inserted.Published = true
	inserted.SectionOrder = []string{"pricing", "features"}
	updated, err := s.UpdatePage(ctx, inserted)
	require.NoError(t, err)
	assert.True(t, updated.Published)
	assert.NotNil(t, updated.PublishedAt, "publish stamp missing")

	got, err := s.GetPage(ctx, "pg_test")
	require.NoError(t, err)
	assert.Equal(t, []string{"pricing", "features"}, got.SectionOrder)
	assert.False(t, got.VisibleSections["pricing"])

	list, err := s.ListPages(ctx, 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Pastelaria", list[0].BusinessName)
	assert.Equal(t, "Fresh every morning", list[0].Headline)

	_, err = s.GetPage(ctx, "pg_missing")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.UpdatePage(ctx, Page{ID: "pg_missing"})
	assert.ErrorIs(t, err, ErrNotFound)
}
