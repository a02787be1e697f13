// Package rewrite turns text plus a tone coordinate into rewritten text. It
// is a pure text boundary: nothing here reads or changes a document.
package rewrite

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/samsaffron/tonenotes/internal/tone"
)

// Request fully determines a rewrite.
type Request struct {
	Text        string
	Coordinate  tone.Coordinate
	Descriptors tone.Set
}

// Validate checks the request before it is sent anywhere.
func (r Request) Validate() error {
	if strings.TrimSpace(r.Text) == "" {
		return errors.New("text is required")
	}
	if err := r.Coordinate.Validate(); err != nil {
		return err
	}
	return r.Descriptors.Validate()
}

// Client performs one rewrite. Implementations make a single attempt; any
// error is terminal for the request.
type Client interface {
	Rewrite(ctx context.Context, req Request) (string, error)
}

// ClientFunc adapts a function to Client.
type ClientFunc func(ctx context.Context, req Request) (string, error)

func (f ClientFunc) Rewrite(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}

// ServiceError reports a failed call to the rewrite service: a transport
// failure, a non-success status or a malformed response.
type ServiceError struct {
	Op      string // "llm", "http" or "timeout"
	Status  int    // HTTP status when known
	Err     error
	timeout bool
}

func (e *ServiceError) Error() string {
	var b strings.Builder
	b.WriteString("rewrite service")
	if e.Op != "" {
		b.WriteString(" (" + e.Op + ")")
	}
	if e.Status != 0 {
		fmt.Fprintf(&b, ": status %d", e.Status)
	}
	if e.Err != nil {
		b.WriteString(": " + e.Err.Error())
	}
	return b.String()
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

// Timeout reports whether the call ran out of time.
func (e *ServiceError) Timeout() bool {
	return e.timeout
}

// IsServiceError reports whether err is or wraps a *ServiceError.
func IsServiceError(err error) bool {
	var se *ServiceError
	return errors.As(err, &se)
}
