package app

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"pagedraft/internal/document"
	"pagedraft/internal/gitrepo"
	"pagedraft/internal/persist"
	"pagedraft/internal/search"
	"pagedraft/internal/store"
)

// EditorHeader names the editor a save or publish is attributed to.
const EditorHeader = "X-Editor-Name"

type HTTPServer struct {
	service    *Service
	corsOrigin string
}

func NewHTTPServer(service *Service, corsOrigin string) *HTTPServer {
	return &HTTPServer{service: service, corsOrigin: corsOrigin}
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(http.HandlerFunc(s.handle))
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		writeJSON(w, http.StatusNoContent, map[string]any{})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/health" {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/ready" {
		s.handleReady(w, r)
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/search" {
		s.handleSearch(w, r)
		return
	}

	if r.URL.Path == "/api/generate" {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
			return
		}
		s.handleGenerate(w, r)
		return
	}

	parts := splitPath(r.URL.Path)
	if len(parts) >= 2 && parts[0] == "api" && parts[1] == "pages" {
		s.handlePages(w, r, parts)
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Route not found", nil)
}

func (s *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	statusCode := http.StatusOK
	checks := map[string]any{
		"database": map[string]any{"status": "ok"},
	}

	if err := s.service.Ping(ctx); err != nil {
		status = "not_ready"
		statusCode = http.StatusServiceUnavailable
		checks["database"] = map[string]any{
			"status": "error",
			"error":  err.Error(),
		}
	}

	writeJSON(w, statusCode, map[string]any{
		"ok":     status == "ready",
		"status": status,
		"checks": checks,
	})
}

// handlePages routes /api/pages and everything below it.
func (s *HTTPServer) handlePages(w http.ResponseWriter, r *http.Request, parts []string) {
	if len(parts) == 2 {
		switch r.Method {
		case http.MethodGet:
			items, err := s.service.ListPages(r.Context(), queryInt(r, "limit", 50))
			if err != nil {
				s.fail(w, "ListPages", err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"items": items})
		case http.MethodPost:
			var payload persist.Payload
			if err := decodeBody(r, &payload); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			if payload.ID != "" {
				writeError(w, http.StatusBadRequest, "INVALID_PAYLOAD", "A create must not carry an id", nil)
				return
			}
			if payload.Kind == "" {
				payload.Kind = persist.KindContent
			}
			s.save(w, r, http.StatusCreated, payload)
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return
	}

	pageID := parts[2]

	switch {
	case len(parts) == 3 && r.Method == http.MethodGet:
		rec, err := s.service.GetPage(r.Context(), pageID)
		if err != nil {
			s.fail(w, "GetPage", err)
			return
		}
		writeJSON(w, http.StatusOK, rec)

	case len(parts) == 3 && r.Method == http.MethodPut:
		s.savePatch(w, r, pageID, persist.KindContent)

	case len(parts) == 4 && parts[3] == "fields" && r.Method == http.MethodPatch:
		s.savePatch(w, r, pageID, persist.KindField)

	case len(parts) == 4 && parts[3] == "sections" && r.Method == http.MethodPatch:
		s.savePatch(w, r, pageID, persist.KindSections)

	case len(parts) == 4 && parts[3] == "publish" && r.Method == http.MethodPost:
		rec, err := s.service.Publish(r.Context(), pageID, r.Header.Get(EditorHeader))
		if err != nil {
			s.fail(w, "Publish", err)
			return
		}
		writeJSON(w, http.StatusOK, rec)

	case len(parts) == 4 && parts[3] == "history" && r.Method == http.MethodGet:
		items, err := s.service.History(r.Context(), pageID, queryInt(r, "limit", 20))
		if err != nil {
			s.fail(w, "History", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"pageId": pageID, "items": items})

	case len(parts) == 5 && parts[3] == "revisions" && r.Method == http.MethodGet:
		payload, err := s.service.Revision(r.Context(), pageID, parts[4])
		if err != nil {
			s.fail(w, "Revision", err)
			return
		}
		writeJSON(w, http.StatusOK, payload)

	default:
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
	}
}

// savePatch decodes a payload for an existing page. The route fixes both the
// kind and the id; a body that disagrees is rejected.
func (s *HTTPServer) savePatch(w http.ResponseWriter, r *http.Request, pageID string, kind persist.Kind) {
	var payload persist.Payload
	if err := decodeBody(r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	if payload.Kind != "" && payload.Kind != kind {
		writeError(w, http.StatusBadRequest, "INVALID_PAYLOAD", fmt.Sprintf("Route expects a %s payload", kind), nil)
		return
	}
	if payload.ID != "" && payload.ID != pageID {
		writeError(w, http.StatusBadRequest, "INVALID_PAYLOAD", "Payload id does not match the route", nil)
		return
	}
	payload.Kind = kind
	payload.ID = pageID
	s.save(w, r, http.StatusOK, payload)
}

func (s *HTTPServer) save(w http.ResponseWriter, r *http.Request, status int, payload persist.Payload) {
	rec, err := s.service.Save(r.Context(), payload, r.Header.Get(EditorHeader))
	if err != nil {
		s.fail(w, "Save", err)
		return
	}
	writeJSON(w, status, rec)
}

func (s *HTTPServer) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "q is required", nil)
		return
	}
	writeJSON(w, http.StatusOK, s.service.Search(search.Query{
		Text:   query,
		Limit:  queryInt(r, "limit", 20),
		Offset: queryInt(r, "offset", 0),
	}))
}

func (s *HTTPServer) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var input GenerateInput
	if err := decodeBody(r, &input); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	result, err := s.service.Generate(r.Context(), input)
	if err != nil {
		s.fail(w, "Generate", err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *HTTPServer) fail(w http.ResponseWriter, op string, err error) {
	status, code, message, details := mapError(err)
	if status >= http.StatusInternalServerError {
		log.Printf("%s error: %v", op, err)
	}
	writeError(w, status, code, message, details)
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = randomRequestID()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(writer, r)

		log.Printf(`{"request_id":"%s","method":"%s","path":"%s","status":%d,"duration_ms":%d}`,
			requestID,
			r.Method,
			r.URL.Path,
			writer.status,
			time.Since(started).Milliseconds(),
		)
	})
}

type requestIDKey struct{}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func randomRequestID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, X-Request-ID, "+EditorHeader)
	header.Set("Access-Control-Allow-Methods", "GET,POST,PUT,PATCH,OPTIONS")
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, http.ErrBodyReadAfterClose) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		return fallback
	}
	return value
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	var validationErr *document.ValidationError
	if errors.As(err, &validationErr) {
		return http.StatusUnprocessableEntity, "INVALID_FIELD", validationErr.Error(), map[string]any{
			"path":   validationErr.Path,
			"reason": validationErr.Reason,
		}
	}
	if errors.Is(err, store.ErrNotFound) {
		return http.StatusNotFound, "NOT_FOUND", "Page not found", nil
	}
	if errors.Is(err, gitrepo.ErrNoHistory) {
		return http.StatusNotFound, "NOT_FOUND", "Page has no published revisions", nil
	}
	if errors.Is(err, gitrepo.ErrUnknownRevision) {
		return http.StatusNotFound, "NOT_FOUND", "Revision not found", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
