// Package form is a small form engine for template driven inputs: values,
// client-side validation, dirty tracking and a submit step that turns the
// values into a mutation payload.
package form

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"consentwallet/internal/cache"
	"consentwallet/internal/i18n"
	"consentwallet/internal/records"
)

// Input types a template may ask for.
const (
	TypeText   = "text"
	TypeEmail  = "email"
	TypeTel    = "tel"
	TypeHidden = "hidden"
)

var (
	ErrNotDirty       = errors.New("form has no changes")
	ErrSubmitting     = errors.New("form is already submitting")
	ErrUnknownField   = errors.New("unknown form field")
	validate          = validator.New(validator.WithRequiredStructEnabled())
	defaultTranslator = i18n.MustLoad("en")
)

type Field struct {
	Name        string `json:"name"`
	Label       string `json:"label"`
	Help        string `json:"help,omitempty"`
	Placeholder string `json:"placeholder,omitempty"`
	Type        string `json:"type"`
	Required    bool   `json:"required"`
	MaxLength   int    `json:"max_length,omitempty"`
}

// FieldsFromTemplate resolves template fields for the alpha-3 language.
func FieldsFromTemplate(tpl records.Template, alpha3 string) []Field {
	out := make([]Field, 0, len(tpl.Fields))
	for _, f := range tpl.Fields {
		typ := f.Type
		if typ == "" {
			typ = TypeText
		}
		out = append(out, Field{
			Name:        f.Name,
			Label:       records.FieldText(f, "label", alpha3),
			Help:        records.FieldText(f, "help", alpha3),
			Placeholder: records.FieldText(f, "placeholder", alpha3),
			Type:        typ,
			Required:    f.Required,
			MaxLength:   f.MaxLength,
		})
	}
	return out
}

// ValidationErrors maps field names to messages.
type ValidationErrors map[string]string

func (v ValidationErrors) Error() string {
	names := make([]string, 0, len(v))
	for n := range v {
		names = append(names, n)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, n := range names {
		parts = append(parts, n+": "+v[n])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Level of a notification.
type Level string

const (
	LevelSuccess Level = "success"
	LevelError   Level = "error"
)

// Notifier receives the outcome of a submission.
type Notifier interface {
	Notify(level Level, message string)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(level Level, message string)

func (f NotifierFunc) Notify(level Level, message string) { f(level, message) }

// Options configures the side effects of a successful or failed submit.
type Options struct {
	Cache *cache.Cache
	// InvalidateOps drops every cached query of these operations on success.
	InvalidateOps []string
	// InvalidateKeys drops single queries on success.
	InvalidateKeys []cache.Key
	Notifier       Notifier
	SuccessMessage string
	ErrorMessage   string
	Translator     i18n.Translator
}

// Form holds field values of type string and submits payloads of type P.
type Form[P any] struct {
	fields       []Field
	buildPayload func(values map[string]string) P
	mutate       func(ctx context.Context, payload P) (map[string]any, error)
	opts         Options

	mu      sync.Mutex
	initial map[string]string
	values  map[string]string
	loading bool
}

// New creates a form. initial pre-fills values, e.g. from previously saved
// data; keys that are not fields are ignored.
func New[P any](fields []Field, initial map[string]any,
	build func(values map[string]string) P,
	mutate func(ctx context.Context, payload P) (map[string]any, error),
	opts Options) *Form[P] {
	if opts.Translator == nil {
		opts.Translator = defaultTranslator
	}
	f := &Form[P]{
		fields:       fields,
		buildPayload: build,
		mutate:       mutate,
		opts:         opts,
		initial:      map[string]string{},
		values:       map[string]string{},
	}
	for _, fld := range fields {
		v := ""
		if raw, ok := initial[fld.Name]; ok && raw != nil {
			v = fmt.Sprint(raw)
		}
		f.initial[fld.Name] = v
		f.values[fld.Name] = v
	}
	return f
}

func (f *Form[P]) Fields() []Field {
	return f.fields
}

// Set changes one field value.
func (f *Form[P]) Set(name, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.values[name]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownField, name)
	}
	f.values[name] = value
	return nil
}

// Values returns a copy of the current values.
func (f *Form[P]) Values() map[string]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return copyValues(f.values)
}

// Dirty reports whether any value differs from its initial value.
func (f *Form[P]) Dirty() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dirtyLocked()
}

func (f *Form[P]) dirtyLocked() bool {
	for k, v := range f.values {
		if f.initial[k] != v {
			return true
		}
	}
	return false
}

func (f *Form[P]) Loading() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loading
}

// CanSubmit is false while submitting, when nothing changed or when a
// required field is blank.
func (f *Form[P]) CanSubmit() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.loading || !f.dirtyLocked() {
		return false
	}
	for _, fld := range f.fields {
		if fld.Required && strings.TrimSpace(f.values[fld.Name]) == "" {
			return false
		}
	}
	return true
}

// Validate checks every field and returns nil when all pass.
func (f *Form[P]) Validate() error {
	f.mu.Lock()
	values := copyValues(f.values)
	f.mu.Unlock()

	errs := ValidationErrors{}
	for _, fld := range f.fields {
		if msg := f.check(fld, values[fld.Name]); msg != "" {
			errs[fld.Name] = msg
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return errs
}

func (f *Form[P]) check(fld Field, value string) string {
	tr := f.opts.Translator
	if value == "" {
		if fld.Required {
			return tr.T("fieldRequired", nil)
		}
		return ""
	}
	if fld.MaxLength > 0 && validate.Var(value, "max="+strconv.Itoa(fld.MaxLength)) != nil {
		return tr.T("fieldTooLong", map[string]string{"max": strconv.Itoa(fld.MaxLength)})
	}
	if fld.Type == TypeEmail {
		if validate.Var(value, "email") != nil {
			return tr.T("fieldInvalidEmail", nil)
		}
		return ""
	}
	if strings.TrimSpace(value) == "" {
		return tr.T("fieldNotBlank", nil)
	}
	return ""
}

// Submit validates, builds the payload and runs the mutation. On success
// the configured cache entries are invalidated and the form becomes clean.
// The outcome is also reported to the notifier.
func (f *Form[P]) Submit(ctx context.Context) (map[string]any, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	if f.loading {
		f.mu.Unlock()
		return nil, ErrSubmitting
	}
	if !f.dirtyLocked() {
		f.mu.Unlock()
		return nil, ErrNotDirty
	}
	f.loading = true
	values := copyValues(f.values)
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.loading = false
		f.mu.Unlock()
	}()

	res, err := f.mutate(ctx, f.buildPayload(values))
	if err != nil {
		f.notify(LevelError, f.opts.ErrorMessage, "General error message")
		return nil, err
	}

	if c := f.opts.Cache; c != nil {
		for _, op := range f.opts.InvalidateOps {
			c.InvalidateOp(op)
		}
		for _, k := range f.opts.InvalidateKeys {
			c.Invalidate(k)
		}
	}
	f.mu.Lock()
	f.initial = values
	f.mu.Unlock()
	f.notify(LevelSuccess, f.opts.SuccessMessage, "")
	return res, nil
}

func (f *Form[P]) notify(level Level, msg, fallbackKey string) {
	if f.opts.Notifier == nil {
		return
	}
	if msg == "" && fallbackKey != "" {
		msg = f.opts.Translator.T(fallbackKey, nil)
	}
	if msg == "" {
		return
	}
	f.opts.Notifier.Notify(level, msg)
}

func copyValues(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
