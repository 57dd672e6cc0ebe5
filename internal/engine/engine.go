package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"buildline/internal/choices"
	"buildline/internal/config"
	"buildline/internal/domain"
	"buildline/internal/engine/auth"
	"buildline/internal/events"
	"buildline/internal/logger"
	"buildline/internal/repo"
)

// ResourceChecker decides whether the resources a task needs are on hand.
// A nil checker treats every task as supplied.
type ResourceChecker interface {
	Available(ctx context.Context, task domain.TaskProject) (bool, error)
}

type Engine struct {
	DB        *sql.DB
	Repo      repo.Repo
	Auth      auth.Service
	Events    events.Writer
	Config    *config.Config
	Choices   *choices.Table
	Resources ResourceChecker
	Log       *logger.Logger
	Now       func() time.Time
}

func New(db *sql.DB, cfg *config.Config) Engine {
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Auth:   auth.Service{DB: db},
		Events: events.Writer{},
		Config: cfg,
		Log:    logger.Nop(),
		Now:    time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) ts() string {
	return e.now().UTC().Format(time.RFC3339)
}

func (e Engine) log() *logger.Logger {
	if e.Log != nil {
		return e.Log
	}
	return logger.Nop()
}

func (e Engine) appendEvent(ctx context.Context, tx *sql.Tx, rec events.Record) error {
	w := e.Events
	if w.Now == nil {
		w.Now = e.now
	}
	return w.Append(ctx, tx, rec)
}

// choiceTable returns the startup table, or reads status_choices when none was loaded.
func (e Engine) choiceTable(ctx context.Context) (*choices.Table, error) {
	if e.Choices != nil {
		return e.Choices, nil
	}
	rows, err := e.Repo.ListStatusChoices(ctx)
	if err != nil {
		return nil, err
	}
	return choices.NewTable(rows), nil
}

func newID() string {
	return uuid.NewString()
}

// ValidationError carries per-field messages.
type ValidationError struct {
	Fields map[string][]string
}

func (v *ValidationError) Add(field, msg string) {
	if v.Fields == nil {
		v.Fields = map[string][]string{}
	}
	v.Fields[field] = append(v.Fields[field], msg)
}

// Err returns nil when no field failed.
func (v *ValidationError) Err() error {
	if v == nil || len(v.Fields) == 0 {
		return nil
	}
	return v
}

func (v *ValidationError) Error() string {
	keys := make([]string, 0, len(v.Fields))
	for k := range v.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, strings.Join(v.Fields[k], ", ")))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func invalid(field, msg string) error {
	v := &ValidationError{}
	v.Add(field, msg)
	return v
}

// AsValidation unwraps a *ValidationError.
func AsValidation(err error) (*ValidationError, bool) {
	var v *ValidationError
	if errors.As(err, &v) {
		return v, true
	}
	return nil, false
}

// Issue is one error or warning of a multi-step operation.
type Issue struct {
	Field   string `json:"field,omitempty"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Result separates aborting errors from warnings about fallbacks and anomalies.
type Result struct {
	Errors   []Issue `json:"errors"`
	Warnings []Issue `json:"warnings"`
}

func (r *Result) fail(field, code, msg string) {
	r.Errors = append(r.Errors, Issue{Field: field, Code: code, Message: msg})
}

func (r *Result) warn(field, code, msg string) {
	r.Warnings = append(r.Warnings, Issue{Field: field, Code: code, Message: msg})
}

func (r Result) OK() bool {
	return len(r.Errors) == 0
}

// Err folds the errors into a ValidationError.
func (r Result) Err() error {
	if r.OK() {
		return nil
	}
	v := &ValidationError{}
	for _, is := range r.Errors {
		field := is.Field
		if field == "" {
			field = "_"
		}
		v.Add(field, is.Message)
	}
	return v
}

// lookup maps repo.ErrNotFound to a field validation error so callers can tell a
// missing referenced row from a missing target.
func lookup(field, what string, err error) error {
	if errors.Is(err, repo.ErrNotFound) {
		return invalid(field, what+" not found")
	}
	return err
}

func parseTS(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, s)
	return t, err == nil
}
