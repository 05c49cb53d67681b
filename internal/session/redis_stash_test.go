package session

import (
	"context"
	"testing"
	"time"

	"pagedraft/internal/document"
	"pagedraft/internal/persist"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestStash(t *testing.T, ttl time.Duration) (*RedisStash, *miniredis.Miniredis) {
	s := miniredis.RunT(t)
	stash, err := NewRedisStash("redis://"+s.Addr(), ttl)
	require.NoError(t, err)
	t.Cleanup(func() { _ = stash.Close() })
	return stash, s
}

func draft(headline string) persist.Record {
	return persist.Record{
		ID: "pg_1",
		Content: document.Tree{
			"hero": map[string]any{"headline": headline},
		},
		Style:           document.Tree{},
		VisibleSections: map[string]bool{"pricing": false},
		SectionOrder:    []string{"features", "pricing"},
		Prompt:          "a bakery in Lisbon",
	}
}

func TestNewRedisStash(t *testing.T) {
	stash, _ := setupTestStash(t, time.Hour)
	assert.NoError(t, stash.Ping(context.Background()))
}

func TestNewRedisStashRejectsBadURL(t *testing.T) {
	_, err := NewRedisStash("not a url", time.Hour)
	assert.Error(t, err)
}

func TestPutAndGetDraft(t *testing.T) {
	stash, _ := setupTestStash(t, time.Hour)
	ctx := context.Background()

	require.NoError(t, stash.Put(ctx, "pg_1", draft("Fresh every morning")))

	got, ok, err := stash.Get(ctx, "pg_1")
	require.NoError(t, err)
	require.True(t, ok)
	hero := got.Content["hero"].(map[string]any)
	assert.Equal(t, "Fresh every morning", hero["headline"])
	assert.Equal(t, []string{"features", "pricing"}, got.SectionOrder)
	assert.False(t, got.VisibleSections["pricing"])
	assert.False(t, got.UpdatedAt.IsZero(), "stash time not recorded")
}

func TestPutReplacesEarlierDraft(t *testing.T) {
	stash, _ := setupTestStash(t, time.Hour)
	ctx := context.Background()

	require.NoError(t, stash.Put(ctx, "pg_1", draft("first")))
	require.NoError(t, stash.Put(ctx, "pg_1", draft("second")))

	got, _, err := stash.Get(ctx, "pg_1")
	require.NoError(t, err)
	assert.Equal(t, "second", got.Content["hero"].(map[string]any)["headline"])
}

func TestGetExpiredDraft(t *testing.T) {
	stash, s := setupTestStash(t, time.Minute)
	ctx := context.Background()

	require.NoError(t, stash.Put(ctx, "pg_1", draft("soon gone")))
	s.FastForward(2 * time.Minute)

	_, ok, err := stash.Get(ctx, "pg_1")
	require.NoError(t, err)
	assert.False(t, ok, "expired draft still present")
}

func TestDeleteDraft(t *testing.T) {
	stash, s := setupTestStash(t, time.Hour)
	ctx := context.Background()

	require.NoError(t, stash.Put(ctx, "pg_1", draft("x")))
	require.NoError(t, stash.Put(ctx, "draft_abc", draft("y")))
	require.True(t, s.Exists("draft:pg_1"), "expected prefixed key in redis")

	require.NoError(t, stash.Delete(ctx, "pg_1"))
	_, ok, _ := stash.Get(ctx, "pg_1")
	assert.False(t, ok)
	_, ok, _ = stash.Get(ctx, "draft_abc")
	assert.True(t, ok, "other drafts must survive")
	assert.NoError(t, stash.Delete(ctx, "missing"))
}
