package generator

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"pagedraft/internal/document"
	"pagedraft/internal/regen"
	"pagedraft/internal/sections"
)

// ErrMalformedResponse is returned when the model output is not a page.
var ErrMalformedResponse = errors.New("generator: malformed model response")

type response struct {
	Content  document.Tree `json:"content"`
	Style    document.Tree `json:"style"`
	Sections []string      `json:"sections"`
}

// BuildPrompt renders the instructions sent to the model.
func BuildPrompt(prompt string, existing document.Page) (string, error) {
	current, err := json.MarshalIndent(existing, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode existing page: %w", err)
	}

	var sb strings.Builder
	sb.WriteString("You write marketing landing pages.\n")
	sb.WriteString("Write a complete landing page for the business described below.\n\n")
	sb.WriteString("Business description:\n")
	sb.WriteString(strings.TrimSpace(prompt))
	sb.WriteString("\n\nCurrent page (keep its structure and style unless the description asks otherwise):\n")
	sb.Write(current)
	sb.WriteString("\n\nRules:\n")
	sb.WriteString("- Answer with a single JSON object and nothing else.\n")
	sb.WriteString("- The object has the keys \"content\", \"style\" and \"sections\".\n")
	sb.WriteString("- content.businessInfo.name, content.hero.headline and content.hero.subheadline must not be empty.\n")
	fmt.Fprintf(&sb, "- \"sections\" lists the sections the page shows, in order, chosen from: %s.\n", strings.Join(sections.DefaultKnown, ", "))
	sb.WriteString("- Do not list \"hero\" in sections; it always comes first.\n")
	return sb.String(), nil
}

// ParseResult decodes a model answer. Code fences and text around the JSON
// object are ignored. A missing style keeps the existing one.
func ParseResult(text string, existing document.Page) (regen.Result, error) {
	body := cleanJSONOutput(text)
	var resp response
	if err := json.Unmarshal([]byte(body), &resp); err != nil {
		return regen.Result{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if len(resp.Content) == 0 {
		return regen.Result{}, fmt.Errorf("%w: no content", ErrMalformedResponse)
	}

	style := resp.Style
	if len(style) == 0 {
		style = document.CloneTree(existing.Style)
	}

	var ids []string
	for _, id := range resp.Sections {
		id = strings.TrimSpace(id)
		if id != "" && id != sections.Hero {
			ids = append(ids, id)
		}
	}
	return regen.Result{
		Page:     document.Page{Content: resp.Content, Style: style},
		Sections: ids,
	}, nil
}

func cleanJSONOutput(text string) string {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```json") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimSuffix(text, "```")
	} else if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		text = strings.TrimSuffix(text, "```")
	}
	text = strings.TrimSpace(text)
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		text = text[start : end+1]
	}
	return text
}
