// Package search indexes published pages and answers text queries, using
// Meilisearch when it is reachable and Postgres full-text search otherwise.
package search

import "context"

// Result is a single search hit returned to the caller.
type Result struct {
	PageID       string `json:"pageId"`
	BusinessName string `json:"businessName"`
	Headline     string `json:"headline"`
	Snippet      string `json:"snippet"`
}

// Query describes a search request.
type Query struct {
	Text   string
	Limit  int
	Offset int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a full-text search.
type Searcher interface {
	Search(q Query) ([]Result, int, error)
	Healthy() bool
}

// Indexer can push pages into a search index.
type Indexer interface {
	IndexPages(pages []PageRecord) error
}

// PageRecord is the data we index for a published page.
type PageRecord struct {
	ID           string `json:"id"`
	BusinessName string `json:"businessName"`
	Headline     string `json:"headline"`
	Subheadline  string `json:"subheadline"`
	Prompt       string `json:"prompt"`
}

type index interface {
	Searcher
	Indexer
}

type fallback interface {
	Searcher
	LoadPublished(ctx context.Context) ([]PageRecord, error)
}
