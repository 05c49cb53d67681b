package document

import (
	_ "embed"
	"fmt"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed schema.yaml
var defaultSchemaYAML []byte

// PathStatus tags the outcome of a schema check.
type PathStatus int

const (
	PathOK PathStatus = iota
	PathMalformed
	PathUnknown
)

func (s PathStatus) String() string {
	switch s {
	case PathOK:
		return "ok"
	case PathMalformed:
		return "malformed"
	case PathUnknown:
		return "unknown"
	default:
		return fmt.Sprintf("PathStatus(%d)", int(s))
	}
}

// PathResult is the tagged result of checking a field reference against a
// Schema. Err is non-nil unless Status is PathOK.
type PathResult struct {
	Ref    Ref
	Status PathStatus
	Err    error
}

// OK reports whether the reference is accepted.
func (r PathResult) OK() bool {
	return r.Status == PathOK
}

// Schema is the table of known field paths per scope.
type Schema struct {
	content    [][]string
	style      [][]string
	permissive bool
}

type schemaFile struct {
	Content []string `yaml:"content"`
	Style   []string `yaml:"style"`
}

// LoadSchema parses a YAML schema table.
func LoadSchema(data []byte) (*Schema, error) {
	var file schemaFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("decode schema: %w", err)
	}
	content, err := compilePatterns(file.Content)
	if err != nil {
		return nil, err
	}
	style, err := compilePatterns(file.Style)
	if err != nil {
		return nil, err
	}
	return &Schema{content: content, style: style}, nil
}

var (
	defaultSchemaOnce sync.Once
	defaultSchema     *Schema
)

// DefaultSchema returns the schema embedded in the binary.
func DefaultSchema() *Schema {
	defaultSchemaOnce.Do(func() {
		schema, err := LoadSchema(defaultSchemaYAML)
		if err != nil {
			panic(fmt.Sprintf("document: embedded schema: %v", err))
		}
		defaultSchema = schema
	})
	return defaultSchema
}

// Permissive returns a schema that accepts every well-formed path.
func Permissive() *Schema {
	return &Schema{permissive: true}
}

// Check validates ref. Malformed paths report PathMalformed; well-formed
// paths that match no pattern (nor a prefix of one) report PathUnknown.
func (s *Schema) Check(ref Ref) PathResult {
	segments, err := SplitPath(ref.Path)
	if err != nil {
		return PathResult{Ref: ref, Status: PathMalformed, Err: err}
	}
	if s == nil || s.permissive {
		return PathResult{Ref: ref, Status: PathOK}
	}
	patterns := s.content
	if ref.Scope == ScopeStyle {
		patterns = s.style
	}
	for _, pattern := range patterns {
		if matchPattern(pattern, segments) {
			return PathResult{Ref: ref, Status: PathOK}
		}
	}
	return PathResult{Ref: ref, Status: PathUnknown, Err: invalid(ref.String(), ErrUnknownField, "")}
}

func compilePatterns(raw []string) ([][]string, error) {
	patterns := make([][]string, 0, len(raw))
	for _, item := range raw {
		segments, err := SplitPath(item)
		if err != nil {
			return nil, fmt.Errorf("schema pattern %q: %w", item, err)
		}
		for i, segment := range segments {
			if segment == "**" && i != len(segments)-1 {
				return nil, fmt.Errorf("schema pattern %q: ** must be the last segment", item)
			}
		}
		patterns = append(patterns, segments)
	}
	return patterns, nil
}

// matchPattern accepts paths that match pattern or are a prefix of it.
func matchPattern(pattern, segments []string) bool {
	for i, segment := range segments {
		if i >= len(pattern) {
			return false
		}
		switch pattern[i] {
		case "**":
			return true
		case "*":
			continue
		default:
			if pattern[i] != segment {
				return false
			}
		}
	}
	return true
}
