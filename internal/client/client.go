// Package client talks to the page API over HTTP. Client implements
// persist.Persister and regen.Generator so an editing session can run
// against a remote backend.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"pagedraft/internal/document"
	"pagedraft/internal/persist"
	"pagedraft/internal/regen"
	"pagedraft/internal/search"
)

// EditorHeader matches the header the API attributes saves with.
const EditorHeader = "X-Editor-Name"

// APIError is a non-2xx answer from the API.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("api: status %d", e.Status)
	}
	return fmt.Sprintf("api: %s (%d): %s", e.Code, e.Status, e.Message)
}

// IsNotFound reports whether err is a 404 from the API.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}

// Commit is one published revision of a page.
type Commit struct {
	Hash      string    `json:"hash"`
	Message   string    `json:"message"`
	Author    string    `json:"author"`
	CreatedAt time.Time `json:"createdAt"`
}

type Client struct {
	baseURL string
	editor  string
	http    *http.Client
}

var (
	_ persist.Persister = (*Client)(nil)
	_ regen.Generator   = (*Client)(nil)
)

type Option func(*Client)

// WithEditor attributes saves and publishes to name.
func WithEditor(name string) Option {
	return func(c *Client) {
		c.editor = name
	}
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Save sends payload to the route for its kind. A payload without an id
// creates the page.
func (c *Client) Save(ctx context.Context, payload persist.Payload) (persist.Record, error) {
	if err := payload.Validate(); err != nil {
		return persist.Record{}, err
	}

	method, path := http.MethodPost, "/api/pages"
	if payload.ID != "" {
		pagePath := "/api/pages/" + url.PathEscape(payload.ID)
		switch payload.Kind {
		case persist.KindContent:
			method, path = http.MethodPut, pagePath
		case persist.KindField:
			method, path = http.MethodPatch, pagePath+"/fields"
		case persist.KindSections:
			method, path = http.MethodPatch, pagePath+"/sections"
		}
	}

	var rec persist.Record
	if err := c.do(ctx, method, path, payload, &rec); err != nil {
		return persist.Record{}, err
	}
	return rec, nil
}

// PageSummary is one entry of the page listing.
type PageSummary struct {
	ID           string    `json:"id"`
	BusinessName string    `json:"businessName"`
	Headline     string    `json:"headline"`
	Published    bool      `json:"published"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

func (c *Client) List(ctx context.Context, limit int) ([]PageSummary, error) {
	path := "/api/pages"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var out struct {
		Items []PageSummary `json:"items"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Items, nil
}

func (c *Client) Get(ctx context.Context, pageID string) (persist.Record, error) {
	var rec persist.Record
	err := c.do(ctx, http.MethodGet, "/api/pages/"+url.PathEscape(pageID), nil, &rec)
	return rec, err
}

func (c *Client) History(ctx context.Context, pageID string, limit int) ([]Commit, error) {
	path := "/api/pages/" + url.PathEscape(pageID) + "/history"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var out struct {
		Items []Commit `json:"items"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Items, nil
}

func (c *Client) Search(ctx context.Context, text string, limit int) (search.Response, error) {
	values := url.Values{}
	values.Set("q", text)
	if limit > 0 {
		values.Set("limit", strconv.Itoa(limit))
	}
	var out search.Response
	err := c.do(ctx, http.MethodGet, "/api/search?"+values.Encode(), nil, &out)
	return out, err
}

// Generate asks the API's generator for a new page.
func (c *Client) Generate(ctx context.Context, prompt string, existing document.Page) (regen.Result, error) {
	body := map[string]any{"prompt": prompt, "existing": existing}
	var result regen.Result
	if err := c.do(ctx, http.MethodPost, "/api/generate", body, &result); err != nil {
		return regen.Result{}, err
	}
	return result, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.editor != "" {
		req.Header.Set(EditorHeader, c.editor)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode}
		var payload struct {
			Code  string `json:"code"`
			Error string `json:"error"`
		}
		if json.NewDecoder(resp.Body).Decode(&payload) == nil {
			apiErr.Code = payload.Code
			apiErr.Message = payload.Error
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
