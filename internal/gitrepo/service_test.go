package gitrepo

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func bakerySnapshot(headline string) Snapshot {
	return Snapshot{
		Content: map[string]any{
			"businessInfo": map[string]any{"name": "Pastelaria"},
			"hero":         map[string]any{"headline": headline, "subheadline": "Since 1952"},
			"features":     []any{map[string]any{"title": "Custard tarts"}},
		},
		Style:           map[string]any{"hero": map[string]any{"alignment": "center"}},
		VisibleSections: map[string]bool{"pricing": false},
		SectionOrder:    []string{"features", "pricing"},
		Prompt:          "a bakery in Lisbon",
	}
}

func TestPageRepoLifecycle(t *testing.T) {
	tempDir := t.TempDir()
	svc := New(tempDir)

	history, err := svc.History("pg_1", 10)
	require.NoError(t, err)
	assert.Empty(t, history)

	first, created, err := svc.CommitPage("pg_1", bakerySnapshot("Fresh every morning"), "Rita", "Publish page")
	require.NoError(t, err)
	require.True(t, created)
	require.NotEmpty(t, first.Hash)
	_, err = os.Stat(filepath.Join(tempDir, "pg_1", "page.json"))
	require.NoError(t, err, "snapshot file missing")

	second, created, err := svc.CommitPage("pg_1", bakerySnapshot("Warm bread daily"), "Rita", "Publish page")
	require.NoError(t, err)
	require.True(t, created)
	assert.NotEqual(t, first.Hash, second.Hash)

	history, err = svc.History("pg_1", 10)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, second.Hash, history[0].Hash)
	assert.Equal(t, "Rita", history[0].Author)

	snap, info, err := svc.GetPageByHash("pg_1", first.Hash)
	require.NoError(t, err)
	assert.Equal(t, first.Hash, info.Hash)
	hero := snap.Content["hero"].(map[string]any)
	assert.Equal(t, "Fresh every morning", hero["headline"])
	assert.Equal(t, "features", snap.SectionOrder[0])
	assert.False(t, snap.VisibleSections["pricing"])
}

func TestCommitPageSkipsUnchangedSnapshot(t *testing.T) {
	svc := New(t.TempDir())

	first, _, err := svc.CommitPage("pg_1", bakerySnapshot("Fresh"), "Rita", "Publish page")
	require.NoError(t, err)
	again, created, err := svc.CommitPage("pg_1", bakerySnapshot("Fresh"), "Rita", "Publish page")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.Hash, again.Hash, "head should be reused")
}

func TestGetPageByHashWithoutRepo(t *testing.T) {
	svc := New(t.TempDir())
	_, _, err := svc.GetPageByHash("pg_none", "abc1234")
	assert.ErrorIs(t, err, ErrNoHistory)
}

func TestHasChangesIgnoresNumericTypes(t *testing.T) {
	a := Snapshot{Content: map[string]any{"pricing": map[string]any{"price": 12}}}
	b := Snapshot{Content: map[string]any{"pricing": map[string]any{"price": 12.0}}}
	assert.False(t, HasChanges(a, b), "int and float of the same value must compare equal")

	b.Content["pricing"] = map[string]any{"price": 13.0}
	assert.True(t, HasChanges(a, b))
}

func TestConcurrentCommitPage(t *testing.T) {
	svc := New(t.TempDir())

	const writers = 12
	var wg sync.WaitGroup
	errCh := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			snap := bakerySnapshot(fmt.Sprintf("headline-%02d", idx))
			if _, _, err := svc.CommitPage("pg_1", snap, "Rita", fmt.Sprintf("Publish %02d", idx)); err != nil {
				errCh <- err
			}
		}(i)
	}
	wg.Wait()
	close(errCh)

	for err := range errCh {
		require.NoError(t, err)
	}

	history, err := svc.History("pg_1", 100)
	require.NoError(t, err)
	require.Len(t, history, writers)
	assert.Contains(t, history[0].Message, "Publish ")
}

func TestGetPageByHashUnknownRevision(t *testing.T) {
	svc := New(t.TempDir())
	_, _, err := svc.CommitPage("pg_1", bakerySnapshot("Fresh"), "Rita", "Publish page")
	require.NoError(t, err)

	_, _, err = svc.GetPageByHash("pg_1", "0000000000000000000000000000000000000000")
	assert.ErrorIs(t, err, ErrUnknownRevision)
}
