// Package regen runs AI regeneration of a page as a transaction: the page is
// backed up, the generator is called, and the result is either committed as a
// whole or the backup is restored.
package regen

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"pagedraft/internal/document"

	"github.com/go-playground/validator/v10"
)

type State int

const (
	Idle State = iota
	Running
	Committed
	RolledBack
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Committed:
		return "committed"
	case RolledBack:
		return "rolled_back"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Result is what a generator produces. Sections, when set, is the section
// set the new content was written for.
type Result struct {
	Page     document.Page `json:"page"`
	Sections []string      `json:"sections,omitempty"`
}

// Generator produces a new page from the original prompt and the current page.
type Generator interface {
	Generate(ctx context.Context, prompt string, existing document.Page) (Result, error)
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, prompt string, existing document.Page) (Result, error)

func (f GeneratorFunc) Generate(ctx context.Context, prompt string, existing document.Page) (Result, error) {
	return f(ctx, prompt, existing)
}

// Outcome is the page a finished transaction leaves behind: the generated
// page on commit, the backup on rollback.
type Outcome struct {
	State    State
	Page     document.Page
	Sections []string
}

// required lists the fields generated content must carry. The path tag names
// the document field each one is read from.
type required struct {
	BusinessName string `path:"businessInfo.name" validate:"required"`
	Headline     string `path:"hero.headline" validate:"required"`
	Subheadline  string `path:"hero.subheadline" validate:"required"`
}

// Transaction is reusable: each Run starts from Idle, Committed or RolledBack.
type Transaction struct {
	generator Generator
	validate  *validator.Validate

	mu    sync.Mutex
	state State
}

func New(generator Generator) *Transaction {
	validate := validator.New()
	validate.RegisterTagNameFunc(func(field reflect.StructField) string {
		return field.Tag.Get("path")
	})
	return &Transaction{generator: generator, validate: validate}
}

func (t *Transaction) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Run regenerates current from prompt. A blank prompt fails with
// ErrMissingPrompt before the generator is contacted and leaves the state
// Idle. Generator errors and incomplete output roll back: the returned
// outcome carries a copy of current equal to it, and the error is a
// *GenerationError.
func (t *Transaction) Run(ctx context.Context, prompt string, current document.Page) (Outcome, error) {
	t.mu.Lock()
	if t.state == Running {
		t.mu.Unlock()
		return Outcome{State: Running, Page: current}, ErrInProgress
	}
	if strings.TrimSpace(prompt) == "" {
		t.state = Idle
		t.mu.Unlock()
		return Outcome{State: Idle, Page: current}, ErrMissingPrompt
	}
	t.state = Running
	t.mu.Unlock()

	backup := current.Clone()

	if t.generator == nil {
		return t.rollback(backup, errors.New("no generator configured"))
	}
	result, err := t.generator.Generate(ctx, prompt, current.Clone())
	if err != nil {
		return t.rollback(backup, err)
	}
	if err := t.check(result.Page); err != nil {
		return t.rollback(backup, err)
	}

	t.mu.Lock()
	t.state = Committed
	t.mu.Unlock()
	return Outcome{State: Committed, Page: result.Page, Sections: result.Sections}, nil
}

func (t *Transaction) rollback(backup document.Page, cause error) (Outcome, error) {
	t.mu.Lock()
	t.state = RolledBack
	t.mu.Unlock()
	return Outcome{State: RolledBack, Page: backup}, &GenerationError{Err: cause}
}

// check validates that generated content carries the required fields.
func (t *Transaction) check(page document.Page) error {
	fields := required{
		BusinessName: text(page, "businessInfo.name"),
		Headline:     text(page, "hero.headline"),
		Subheadline:  text(page, "hero.subheadline"),
	}
	err := t.validate.Struct(fields)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	missing := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		missing = append(missing, fe.Field())
	}
	return fmt.Errorf("%w: missing %s", ErrIncomplete, strings.Join(missing, ", "))
}

func text(page document.Page, path string) string {
	value, _ := page.Get(document.ParseRef(path))
	s, _ := value.(string)
	return strings.TrimSpace(s)
}
