// Package dispatch implements the generic invocation dispatcher: it resolves
// a tool name against the operation registry, binds a loosely-typed argument
// bag into a concrete HTTP request, executes it against Jira, and normalizes
// the outcome — including pagination traversal and long-running task polling.
package dispatch

import (
	"errors"
	"fmt"
	"time"
)

// Kind classifies a Failure.
type Kind string

const (
	KindNotFound   Kind = "not_found"   // unknown tool
	KindValidation Kind = "validation"  // binding-time, never sent over the wire
	KindTransport  Kind = "transport"   // network/TLS layer
	KindClient     Kind = "client"      // remote 4xx
	KindServer     Kind = "server"      // remote 5xx
	KindDecode     Kind = "decode"      // malformed response body
	KindPagination Kind = "pagination"  // stalled cursor
	KindTimeout    Kind = "timeout"     // polling deadline elapsed
	KindCancelled  Kind = "cancelled"   // caller-initiated abort
)

// Validation details carried in Failure.Detail.
const (
	DetailMissingRequired  = "missingRequired"
	DetailWrongType        = "wrongType"
	DetailUnknownParameter = "unknownParameter"
	DetailStalled          = "stalled"
)

// Failure is the typed error value for every failure path in the dispatcher.
// Remote error messages are preserved verbatim for diagnosability; no error
// is ever swallowed into an ambiguous empty success.
type Failure struct {
	Kind       Kind
	Detail     string        // validation sub-kind or pagination detail
	StatusCode int           // remote status, when one was received
	Message    string
	Retryable  bool
	RetryAfter time.Duration // server-supplied backoff hint (429)
}

func (f *Failure) Error() string {
	if f.StatusCode > 0 {
		return fmt.Sprintf("%s (%d): %s", f.Kind, f.StatusCode, f.Message)
	}
	if f.Detail != "" {
		return fmt.Sprintf("%s (%s): %s", f.Kind, f.Detail, f.Message)
	}
	return fmt.Sprintf("%s: %s", f.Kind, f.Message)
}

// Is allows errors.Is comparisons on the failure kind:
//
//	errors.Is(err, &Failure{Kind: KindValidation})
func (f *Failure) Is(target error) bool {
	var t *Failure
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == f.Kind && (t.Detail == "" || t.Detail == f.Detail)
}

// AsFailure extracts the *Failure from an error chain, or wraps an arbitrary
// error as a non-retryable transport failure.
func AsFailure(err error) *Failure {
	var f *Failure
	if errors.As(err, &f) {
		return f
	}
	return &Failure{Kind: KindTransport, Message: err.Error()}
}

func notFoundFailure(tool string) *Failure {
	return &Failure{Kind: KindNotFound, Message: fmt.Sprintf("unknown tool %q", tool)}
}

func validationFailure(detail, format string, args ...any) *Failure {
	return &Failure{Kind: KindValidation, Detail: detail, Message: fmt.Sprintf(format, args...)}
}

func cancelledFailure(msg string) *Failure {
	return &Failure{Kind: KindCancelled, Message: msg}
}
