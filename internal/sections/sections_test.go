package sections

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewStartsVisibleAndSaved(t *testing.T) {
	s := New(nil)
	assert.Equal(t, DefaultKnown, s.Order())
	for _, id := range DefaultKnown {
		assert.True(t, s.Visible(id), id)
	}
	assert.False(t, s.Changed())
}

func TestToggleVisibilityTwiceMatchesSnapshot(t *testing.T) {
	s := New(nil)

	shown, err := s.ToggleVisibility("faq")
	require.NoError(t, err)
	assert.False(t, shown)
	assert.True(t, s.Changed())

	shown, err = s.ToggleVisibility("faq")
	require.NoError(t, err)
	assert.True(t, shown)
	assert.False(t, s.Changed())
	assert.Equal(t, DefaultKnown, s.Order())
}

func TestToggleVisibilityRejectsHeroAndUnknown(t *testing.T) {
	s := New(nil)

	_, err := s.ToggleVisibility(Hero)
	assert.ErrorIs(t, err, ErrHeroPinned)
	assert.True(t, s.Visible(Hero))

	_, err = s.ToggleVisibility("newsletter")
	assert.ErrorIs(t, err, ErrUnknownSection)
	assert.False(t, s.Changed())
}

func TestReorderMovesSection(t *testing.T) {
	s := New([]string{"problemSection", "features", "pricing"})

	require.NoError(t, s.Reorder("pricing", 0))
	assert.Equal(t, []string{"pricing", "problemSection", "features"}, s.Order())
	assert.Equal(t, []string{Hero, "pricing", "problemSection", "features"}, s.RenderOrder())

	require.NoError(t, s.Reorder("pricing", 2))
	assert.Equal(t, []string{"problemSection", "features", "pricing"}, s.Order())
}

func TestReorderClampsOutOfRangeIndex(t *testing.T) {
	s := New([]string{"problemSection", "features", "pricing"})

	require.NoError(t, s.Reorder("problemSection", 99))
	assert.Equal(t, []string{"features", "pricing", "problemSection"}, s.Order())

	require.NoError(t, s.Reorder("pricing", -4))
	assert.Equal(t, []string{"pricing", "features", "problemSection"}, s.Order())
	assert.Equal(t, Hero, s.RenderOrder()[0])
}

func TestReorderRejectsHeroAndUnknown(t *testing.T) {
	s := New([]string{"features", "faq"})

	assert.ErrorIs(t, s.Reorder(Hero, 1), ErrHeroPinned)
	assert.ErrorIs(t, s.Reorder("blog", 0), ErrUnknownSection)
	assert.Equal(t, []string{"features", "faq"}, s.Order())
}

func TestSetOrderNeverPersistsHero(t *testing.T) {
	inputs := [][]string{
		{Hero, "faq", "features", "cta"},
		{"faq", Hero, "features"},
		{"cta", "features", Hero},
		{Hero, Hero},
		{"unknown", "faq", "faq", Hero},
	}
	for _, input := range inputs {
		s := New([]string{"features", "faq", "cta"})
		s.SetOrder(input)

		order := s.Order()
		assert.NotContains(t, order, Hero, input)
		assert.ElementsMatch(t, []string{"features", "faq", "cta"}, order, input)
		assert.Equal(t, Hero, s.RenderOrder()[0], input)
	}
}

func TestSetOrderAppendsMissingInKnownOrder(t *testing.T) {
	s := New([]string{"features", "faq", "cta", "pricing"})
	s.SetOrder([]string{"cta", "blog", "features"})
	assert.Equal(t, []string{"cta", "features", "faq", "pricing"}, s.Order())
}

func TestSetOrderEqualToSnapshotIsUnchanged(t *testing.T) {
	s := New(nil)
	s.SetOrder([]string{"faq"})
	s.MarkSaved(s.Snapshot())

	s.SetOrder(s.Saved().Order)
	assert.False(t, s.Changed())

	s.SetOrder(append([]string{Hero}, s.Saved().Order...))
	assert.False(t, s.Changed())
}

func TestLoadBecomesSnapshot(t *testing.T) {
	s := New([]string{"features", "faq", "cta"})
	s.Load(map[string]bool{"faq": false, Hero: false, "gone": true}, []string{"cta", "faq", "features"})

	assert.False(t, s.Changed())
	assert.False(t, s.Visible("faq"))
	assert.True(t, s.Visible(Hero))
	assert.Equal(t, []string{"cta", "faq", "features"}, s.Order())
	assert.NotContains(t, s.Snapshot().Visible, "gone")
}

func TestMarkSavedKeepsLaterChanges(t *testing.T) {
	s := New(nil)
	_, err := s.ToggleVisibility("faq")
	require.NoError(t, err)
	sent := s.Snapshot()

	require.NoError(t, s.Reorder("cta", 0))
	s.MarkSaved(sent)

	assert.True(t, s.Changed())
	assert.Equal(t, sent, s.Saved())
}

func TestSetKnownKeepsSurvivors(t *testing.T) {
	s := New([]string{"features", "faq", "cta"})
	require.NoError(t, s.Reorder("cta", 0))
	_, err := s.ToggleVisibility("faq")
	require.NoError(t, err)
	s.ToggleExpanded("features")

	s.SetKnown([]string{Hero, "faq", "pricing", "cta"})

	assert.Equal(t, []string{"cta", "faq", "pricing"}, s.Order())
	assert.False(t, s.Visible("faq"))
	assert.True(t, s.Visible("pricing"))
	assert.False(t, s.Expanded("features"))
	assert.Equal(t, []string{"faq", "pricing", "cta"}, s.Known())
}

func TestToggleExpandedIsNotPersisted(t *testing.T) {
	s := New(nil)
	assert.True(t, s.ToggleExpanded("faq"))
	assert.True(t, s.Expanded("faq"))
	assert.False(t, s.Changed())
	assert.False(t, s.ToggleExpanded("faq"))
}

func TestApplyShowsAsChange(t *testing.T) {
	s := New([]string{"features", "faq"})
	s.Apply(map[string]bool{"faq": false}, []string{"faq", "features"})

	assert.True(t, s.Changed())
	assert.Equal(t, []string{"faq", "features"}, s.Order())
	assert.False(t, s.Visible("faq"))
}
