// Package failure classifies the ways a lighthouse run can go wrong so that
// callers decide the exit status deliberately.
package failure

import (
	"errors"
	"fmt"
	"sync"
)

// Kind tags an error with its place in the failure taxonomy.
type Kind string

const (
	// FatalInput means a required input such as the URL list is missing.
	FatalInput Kind = "fatal-input"
	// PartialCollection means one URL/form factor audit failed.
	PartialCollection Kind = "partial-collection"
	// PartialParse means one report file could not be parsed.
	PartialParse Kind = "partial-parse"
	// MissingArtifact means a file expected from an earlier stage is absent.
	MissingArtifact Kind = "missing-artifact"
)

// Error is a classified error.
type Error struct {
	Kind     Kind
	Op       string
	Resource string
	Err      error
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Op != "" {
		msg += ": " + e.Op
	}
	if e.Resource != "" {
		msg += " " + e.Resource
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New wraps err with a kind. It returns nil when err is nil.
func New(kind Kind, op, resource string, err error) *Error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Resource: resource, Err: err}
}

// Newf builds a classified error from a message.
func Newf(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the kind of the first classified error in the chain.
func KindOf(err error) (Kind, bool) {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind, true
	}
	return "", false
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}

// Report collects non-fatal failures from concurrent stages.
type Report struct {
	mu     sync.Mutex
	errors []*Error
}

// Add records a failure. Nil errors are ignored.
func (r *Report) Add(err *Error) {
	if err == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errors = append(r.errors, err)
}

// Errors returns a copy of the recorded failures in insertion order.
func (r *Report) Errors() []*Error {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Error, len(r.errors))
	copy(out, r.errors)
	return out
}

// Count returns the number of failures of the given kind.
func (r *Report) Count(kind Kind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.errors {
		if e.Kind == kind {
			n++
		}
	}
	return n
}

// Empty reports whether nothing was recorded.
func (r *Report) Empty() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.errors) == 0
}

// Strings renders every failure for API responses.
func (r *Report) Strings() []string {
	errs := r.Errors()
	out := make([]string, 0, len(errs))
	for _, e := range errs {
		out = append(out, e.Error())
	}
	return out
}
