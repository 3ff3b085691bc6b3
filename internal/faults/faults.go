// Package faults classifies stage-service failures so the retry wrapper
// and the orchestrator can decide what to do without inspecting vendors.
package faults

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Class splits failures into retryable and the two terminal kinds.
type Class int

const (
	// ClassTransient covers timeouts, rate limits and overload; retryable.
	ClassTransient Class = iota
	// ClassExternal is a classified vendor error whose message is shown
	// to the end user verbatim (bad auth, quota, content unavailable).
	ClassExternal
	// ClassInternal is everything else: bugs, malformed artifacts,
	// filesystem failures. Reported generically, logged in full.
	ClassInternal
)

// Fault wraps an error with its classification and originating stage.
type Fault struct {
	Classification Class
	Stage          string
	Msg            string
	Err            error
}

func (f *Fault) Error() string {
	if f.Msg != "" && f.Err != nil {
		return fmt.Sprintf("%s: %v", f.Msg, f.Err)
	}
	if f.Msg != "" {
		return f.Msg
	}
	if f.Err != nil {
		return f.Err.Error()
	}
	return "unknown failure"
}

func (f *Fault) Unwrap() error { return f.Err }

// Transient marks err retryable.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &Fault{Classification: ClassTransient, Err: err}
}

// Transientf builds a retryable fault from a format string.
func Transientf(format string, args ...any) error {
	return &Fault{Classification: ClassTransient, Msg: fmt.Sprintf(format, args...)}
}

// External builds a terminal fault whose message is user-facing as-is.
func External(msg string) error {
	return &Fault{Classification: ClassExternal, Msg: msg}
}

// Externalf builds a user-facing terminal fault from a format string.
func Externalf(format string, args ...any) error {
	return &Fault{Classification: ClassExternal, Msg: fmt.Sprintf(format, args...)}
}

// Internal marks err as a terminal internal failure.
func Internal(err error) error {
	if err == nil {
		return nil
	}
	return &Fault{Classification: ClassInternal, Err: err}
}

// Internalf builds a terminal internal fault from a format string.
func Internalf(format string, args ...any) error {
	return &Fault{Classification: ClassInternal, Msg: fmt.Sprintf(format, args...)}
}

// WithStage records which stage produced err, preserving classification.
func WithStage(stage string, err error) error {
	if err == nil {
		return nil
	}
	var f *Fault
	if errors.As(err, &f) {
		return &Fault{Classification: f.Classification, Stage: stage, Msg: f.Msg, Err: f.Err}
	}
	return &Fault{Classification: ClassInternal, Stage: stage, Err: err}
}

// ClassOf returns the classification of err. Unclassified errors are
// internal except for the network/timeout shapes we know are retryable.
func ClassOf(err error) Class {
	var f *Fault
	if errors.As(err, &f) {
		return f.Classification
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ClassTransient
	}
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return ClassTransient
	}
	return ClassInternal
}

// IsTransient reports whether err should be retried.
func IsTransient(err error) bool { return err != nil && ClassOf(err) == ClassTransient }

// IsExternal reports whether err carries a user-facing vendor message.
func IsExternal(err error) bool { return err != nil && ClassOf(err) == ClassExternal }

// UserMessage returns the verbatim vendor message for external faults
// and ok=false for everything else.
func UserMessage(err error) (string, bool) {
	var f *Fault
	if errors.As(err, &f) && f.Classification == ClassExternal {
		return f.Error(), true
	}
	return "", false
}

// StageOf returns the stage recorded on err, if any.
func StageOf(err error) string {
	var f *Fault
	if errors.As(err, &f) {
		return f.Stage
	}
	return ""
}

// FromHTTPStatus classifies a vendor HTTP status. Rate limits and server
// overload retry; auth and quota surface verbatim; the rest is internal.
func FromHTTPStatus(vendor string, status int, body string) error {
	switch {
	case status == 429 || status == 502 || status == 503 || status == 504 || status == 529:
		return Transientf("%s overloaded (status %d)", vendor, status)
	case status == 401 || status == 403:
		return Externalf("%s rejected the API key (status %d): %s", vendor, status, body)
	case status == 402:
		return Externalf("%s quota exhausted: %s", vendor, body)
	default:
		return Internalf("%s returned status %d: %s", vendor, status, body)
	}
}
