package rewrite

import (
	"context"
	"fmt"
	"time"
)

type timeoutClient struct {
	next Client
	d    time.Duration
}

// WithTimeout bounds every call to c by d. Expiry is reported as a
// *ServiceError whose Timeout method returns true, even if c ignores its
// context.
func WithTimeout(c Client, d time.Duration) Client {
	if d <= 0 {
		return c
	}
	return &timeoutClient{next: c, d: d}
}

type result struct {
	text string
	err  error
}

func (t *timeoutClient) Rewrite(ctx context.Context, req Request) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, t.d)
	defer cancel()

	done := make(chan result, 1)
	go func() {
		text, err := t.next.Rewrite(ctx, req)
		done <- result{text, err}
	}()

	select {
	case r := <-done:
		if r.err != nil && ctx.Err() == context.DeadlineExceeded {
			return "", &ServiceError{Op: "timeout", Err: fmt.Errorf("no response within %s: %w", t.d, r.err), timeout: true}
		}
		return r.text, r.err
	case <-ctx.Done():
		if ctx.Err() == context.DeadlineExceeded {
			return "", &ServiceError{Op: "timeout", Err: fmt.Errorf("no response within %s", t.d), timeout: true}
		}
		return "", ctx.Err()
	}
}
