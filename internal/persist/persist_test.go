package persist

import (
	"errors"
	"testing"

	"pagedraft/internal/document"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func storedRecord() Record {
	return Record{
		ID:              "pg_1",
		Content:         document.Tree{"hero": map[string]any{"headline": "Old", "subheadline": "Sub"}},
		Style:           document.Tree{"theme": map[string]any{"primaryColor": "#000"}},
		VisibleSections: map[string]bool{"faq": true},
		SectionOrder:    []string{"faq", "cta"},
		Prompt:          "a bakery",
	}
}

func TestApplyContentKeepsSections(t *testing.T) {
	rec, err := Apply(storedRecord(), Payload{
		Kind:    KindContent,
		ID:      "pg_1",
		Content: document.Tree{"hero": map[string]any{"headline": "New"}},
	})
	require.NoError(t, err)

	assert.Equal(t, "New", rec.Content["hero"].(map[string]any)["headline"])
	assert.Equal(t, document.Tree{}, rec.Style)
	assert.Equal(t, []string{"faq", "cta"}, rec.SectionOrder)
	assert.Equal(t, "a bakery", rec.Prompt)
}

func TestApplyFieldPatchUsesDocumentPaths(t *testing.T) {
	rec, err := Apply(storedRecord(), Payload{
		Kind:   KindField,
		ID:     "pg_1",
		Fields: map[string]any{"hero.headline": "Ship Faster", "style:theme.primaryColor": "#f60"},
	})
	require.NoError(t, err)

	page := rec.Page()
	headline, _ := page.Get(document.ParseRef("hero.headline"))
	assert.Equal(t, "Ship Faster", headline)
	sub, _ := page.Get(document.ParseRef("hero.subheadline"))
	assert.Equal(t, "Sub", sub)
	color, _ := page.Get(document.ParseRef("style:theme.primaryColor"))
	assert.Equal(t, "#f60", color)

	_, err = Apply(storedRecord(), Payload{Kind: KindField, ID: "pg_1", Fields: map[string]any{"hero.headline.x": 1}})
	assert.True(t, errors.Is(err, document.ErrNotContainer))
}

func TestApplySectionsKeepsContent(t *testing.T) {
	original := storedRecord()
	rec, err := Apply(original, Payload{Kind: KindSections, ID: "pg_1", SectionOrder: []string{"cta", "faq"}})
	require.NoError(t, err)

	assert.Equal(t, []string{"cta", "faq"}, rec.SectionOrder)
	assert.Equal(t, map[string]bool{"faq": true}, rec.VisibleSections)
	assert.True(t, rec.Page().Equal(original.Page()))
}

func TestApplyPublishedIsSticky(t *testing.T) {
	rec, err := Apply(storedRecord(), Payload{Kind: KindContent, Published: true})
	require.NoError(t, err)
	require.True(t, rec.Published)

	rec, err = Apply(rec, Payload{Kind: KindSections, ID: "pg_1", VisibleSections: map[string]bool{"faq": false}})
	require.NoError(t, err)
	assert.True(t, rec.Published)
}

func TestValidate(t *testing.T) {
	assert.ErrorIs(t, Payload{Kind: "blob"}.Validate(), ErrUnknownKind)
	assert.ErrorIs(t, Payload{Kind: KindField, Fields: map[string]any{"a": 1}}.Validate(), ErrMissingID)
	assert.ErrorIs(t, Payload{Kind: KindField, ID: "pg_1"}.Validate(), ErrEmptyPayload)
	assert.ErrorIs(t, Payload{Kind: KindSections}.Validate(), ErrEmptyPayload)
	assert.NoError(t, Payload{Kind: KindSections, SectionOrder: []string{}}.Validate())
	assert.NoError(t, Payload{Kind: KindContent}.Validate())
}
