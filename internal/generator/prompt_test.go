package generator

import (
	"errors"
	"testing"

	"pagedraft/internal/document"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildPromptCarriesDescriptionAndPage(t *testing.T) {
	out, err := BuildPrompt("  a bakery in Lisbon  ", document.DefaultPage())
	require.NoError(t, err)

	assert.Contains(t, out, "a bakery in Lisbon\n")
	assert.Contains(t, out, `"primaryColor": "#2563eb"`)
	assert.Contains(t, out, "problemSection, features")
}

func TestParseResultStripsFences(t *testing.T) {
	text := "```json\n" + `{
  "content": {"businessInfo": {"name": "Pastelaria"}, "hero": {"headline": "Fresh", "subheadline": "Daily"}},
  "style": {"theme": {"primaryColor": "#c2410c"}},
  "sections": ["hero", "features", " faq ", ""]
}` + "\n```"

	result, err := ParseResult(text, document.DefaultPage())
	require.NoError(t, err)

	name, ok := result.Page.Get(document.ParseRef("businessInfo.name"))
	require.True(t, ok)
	assert.Equal(t, "Pastelaria", name)
	color, _ := result.Page.Get(document.ParseRef("style:theme.primaryColor"))
	assert.Equal(t, "#c2410c", color)
	assert.Equal(t, []string{"features", "faq"}, result.Sections)
}

func TestParseResultKeepsExistingStyle(t *testing.T) {
	existing := document.DefaultPage()
	result, err := ParseResult(`Here you go: {"content": {"hero": {"headline": "Hi"}}} Enjoy!`, existing)
	require.NoError(t, err)

	assert.True(t, document.Equal(existing.Style, result.Page.Style))
	assert.Nil(t, result.Sections)

	result.Page.Style["theme"] = "changed"
	assert.NotEqual(t, "changed", existing.Style["theme"])
}

func TestParseResultRejectsGarbage(t *testing.T) {
	for _, text := range []string{"", "no json here", `{"style": {}}`, `{"content": []}`} {
		_, err := ParseResult(text, document.DefaultPage())
		assert.True(t, errors.Is(err, ErrMalformedResponse), "input %q: %v", text, err)
	}
}
