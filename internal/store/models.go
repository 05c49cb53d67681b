package store

import "time"

// Page is one row of the pages table. The JSON columns decode into plain
// maps and slices.
type Page struct {
	ID              string
	Content         map[string]any
	Style           map[string]any
	VisibleSections map[string]bool
	SectionOrder    []string
	Prompt          string
	Published       bool
	PublishedAt     *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// PageSummary is the listing view of a page.
type PageSummary struct {
	ID           string
	BusinessName string
	Headline     string
	Published    bool
	UpdatedAt    time.Time
}

type CommitInfo struct {
	Hash      string
	Message   string
	Author    string
	CreatedAt time.Time
}
