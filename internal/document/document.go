// Package document holds the page content model: an untyped nested tree of
// objects, arrays and scalars addressed by dot-separated field paths.
package document

import (
	"fmt"
	"strconv"
	"strings"
)

// Tree is one root of a page: either the content tree or the style tree.
// Nested objects are plain map[string]any and arrays are []any, the same
// shapes encoding/json produces.
type Tree = map[string]any

// Scope selects which tree of a Page a field reference addresses.
type Scope string

const (
	ScopeContent Scope = "content"
	ScopeStyle   Scope = "style"
)

const stylePrefix = "style:"

// Ref addresses one field of a Page. Content paths are written bare
// ("hero.headline"); style paths carry a "style:" prefix ("style:theme.primaryColor").
type Ref struct {
	Scope Scope
	Path  string
}

// ParseRef splits a field key into its scope and path.
func ParseRef(key string) Ref {
	if strings.HasPrefix(key, stylePrefix) {
		return Ref{Scope: ScopeStyle, Path: strings.TrimPrefix(key, stylePrefix)}
	}
	return Ref{Scope: ScopeContent, Path: key}
}

// String returns the canonical key form, used as the tracker key and in field patches.
func (r Ref) String() string {
	if r.Scope == ScopeStyle {
		return stylePrefix + r.Path
	}
	return r.Path
}

// Page is the edited document: content plus a parallel style tree.
type Page struct {
	Content Tree `json:"content"`
	Style   Tree `json:"style"`
}

// Get reads the value at ref. It never fails; unresolved paths report false.
func (p Page) Get(ref Ref) (any, bool) {
	return Get(p.root(ref.Scope), ref.Path)
}

// Set returns a copy of the page with ref overwritten. Only the trees and
// containers along the path are copied; the receiver is never modified.
func (p Page) Set(ref Ref, value any) (Page, error) {
	next, err := Set(p.root(ref.Scope), ref.Path, value)
	if err != nil {
		return p, err
	}
	return p.withRoot(ref.Scope, next), nil
}

// Clone deep-copies both trees.
func (p Page) Clone() Page {
	return Page{Content: CloneTree(p.Content), Style: CloneTree(p.Style)}
}

// Equal reports whether both trees are structurally equal.
func (p Page) Equal(other Page) bool {
	return Equal(p.Content, other.Content) && Equal(p.Style, other.Style)
}

func (p Page) root(scope Scope) Tree {
	if scope == ScopeStyle {
		return p.Style
	}
	return p.Content
}

func (p Page) withRoot(scope Scope, tree Tree) Page {
	if scope == ScopeStyle {
		p.Style = tree
	} else {
		p.Content = tree
	}
	return p
}

// SplitPath breaks a dot-separated path into segments. Empty paths and empty
// segments ("hero..headline", ".hero") are rejected.
func SplitPath(path string) ([]string, error) {
	if strings.TrimSpace(path) == "" {
		return nil, invalid(path, ErrInvalidPath, "empty path")
	}
	segments := strings.Split(path, ".")
	for i, segment := range segments {
		if segment == "" {
			return nil, invalid(path, ErrInvalidPath, fmt.Sprintf("empty segment at position %d", i))
		}
	}
	return segments, nil
}

// Get resolves path inside tree by sequential key or array-index descent.
// Missing intermediate containers are never created.
func Get(tree Tree, path string) (any, bool) {
	segments, err := SplitPath(path)
	if err != nil {
		return nil, false
	}
	var node any = tree
	for _, segment := range segments {
		switch current := node.(type) {
		case map[string]any:
			next, ok := current[segment]
			if !ok {
				return nil, false
			}
			node = next
		case []any:
			index, err := strconv.Atoi(segment)
			if err != nil || index < 0 || index >= len(current) {
				return nil, false
			}
			node = current[index]
		default:
			return nil, false
		}
	}
	return node, true
}

// Set returns a new tree with path overwritten by value. Missing ancestors are
// created as empty objects; every container along the path is copied before it
// is written so trees shared elsewhere are left untouched. Writing an array
// index at or past the array's length fails with ErrOutOfRange.
func Set(tree Tree, path string, value any) (Tree, error) {
	segments, err := SplitPath(path)
	if err != nil {
		return tree, err
	}
	next, err := setAt(tree, segments, 0, path, value)
	if err != nil {
		return tree, err
	}
	return next.(map[string]any), nil
}

func setAt(node any, segments []string, depth int, path string, value any) (any, error) {
	if depth == len(segments) {
		return value, nil
	}
	segment := segments[depth]
	switch current := node.(type) {
	case nil:
		child, err := setAt(nil, segments, depth+1, path, value)
		if err != nil {
			return nil, err
		}
		return map[string]any{segment: child}, nil
	case map[string]any:
		child, err := setAt(current[segment], segments, depth+1, path, value)
		if err != nil {
			return nil, err
		}
		copied := make(map[string]any, len(current)+1)
		for key, item := range current {
			copied[key] = item
		}
		copied[segment] = child
		return copied, nil
	case []any:
		index, err := strconv.Atoi(segment)
		if err != nil || index < 0 {
			return nil, invalid(path, ErrInvalidPath, fmt.Sprintf("segment %q is not an array index", segment))
		}
		if index >= len(current) {
			return nil, invalid(path, ErrOutOfRange, fmt.Sprintf("index %d, length %d", index, len(current)))
		}
		child, err := setAt(current[index], segments, depth+1, path, value)
		if err != nil {
			return nil, err
		}
		copied := make([]any, len(current))
		copy(copied, current)
		copied[index] = child
		return copied, nil
	default:
		return nil, invalid(path, ErrNotContainer, fmt.Sprintf("%q holds a scalar", strings.Join(segments[:depth], ".")))
	}
}

// AppendItem returns a new tree with value appended to the array at path.
// A missing array is created. This and RemoveItem are the only operations
// that change an array's length.
func AppendItem(tree Tree, path string, value any) (Tree, error) {
	existing, ok := Get(tree, path)
	var items []any
	if ok && existing != nil {
		list, isList := existing.([]any)
		if !isList {
			return tree, invalid(path, ErrNotList, "")
		}
		items = make([]any, len(list), len(list)+1)
		copy(items, list)
	}
	items = append(items, value)
	return Set(tree, path, items)
}

// RemoveItem returns a new tree with the element at index removed from the array at path.
func RemoveItem(tree Tree, path string, index int) (Tree, error) {
	existing, ok := Get(tree, path)
	if !ok {
		return tree, invalid(path, ErrNotList, "array not found")
	}
	list, isList := existing.([]any)
	if !isList {
		return tree, invalid(path, ErrNotList, "")
	}
	if index < 0 || index >= len(list) {
		return tree, invalid(path, ErrOutOfRange, fmt.Sprintf("index %d, length %d", index, len(list)))
	}
	items := make([]any, 0, len(list)-1)
	items = append(items, list[:index]...)
	items = append(items, list[index+1:]...)
	return Set(tree, path, items)
}

// AppendItem is the Page form of AppendItem.
func (p Page) AppendItem(ref Ref, value any) (Page, error) {
	next, err := AppendItem(p.root(ref.Scope), ref.Path, value)
	if err != nil {
		return p, err
	}
	return p.withRoot(ref.Scope, next), nil
}

// RemoveItem is the Page form of RemoveItem.
func (p Page) RemoveItem(ref Ref, index int) (Page, error) {
	next, err := RemoveItem(p.root(ref.Scope), ref.Path, index)
	if err != nil {
		return p, err
	}
	return p.withRoot(ref.Scope, next), nil
}
