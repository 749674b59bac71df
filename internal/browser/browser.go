// Package browser defines the automation capability the audit pipeline drives
// and provides a go-rod backed implementation of it.
//
// The pipeline only sees Launcher, Session, Page and Element; everything
// Chrome-specific stays in this package.
package browser

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sells-group/price-audit/internal/model"
)

// WaitUntil selects the readiness condition a navigation waits for.
type WaitUntil string

const (
	WaitLoad             WaitUntil = "load"
	WaitDOMContentLoaded WaitUntil = "domcontentloaded"
	WaitNetworkIdle      WaitUntil = "networkidle"
)

// ErrTimeout is returned (wrapped) when a bounded wait expires.
var ErrTimeout = errors.New("browser: timeout")

// NavigationError is a lower-level navigation fault reported by the browser,
// e.g. net::ERR_HTTP2_PROTOCOL_ERROR.
type NavigationError struct {
	URL    string
	Reason string
}

func (e *NavigationError) Error() string {
	return fmt.Sprintf("browser: navigate %s: %s", e.URL, e.Reason)
}

// IsTimeout reports whether err is a bounded-wait expiry.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout) || errors.Is(err, context.DeadlineExceeded)
}

// Element is a handle to a DOM element.
type Element interface {
	Attribute(ctx context.Context, name string) (string, bool, error)
	Visible(ctx context.Context) (bool, error)
	Text(ctx context.Context) (string, error)
	Click(ctx context.Context) error
}

// Page is a single browser tab.
type Page interface {
	// Navigate loads url, waiting for the given readiness condition. The whole
	// operation is bounded by timeout.
	Navigate(ctx context.Context, url string, timeout time.Duration, until WaitUntil) error
	URL(ctx context.Context) (string, error)
	HTML(ctx context.Context) (string, error)
	// Elements returns all current matches of a CSS selector without waiting.
	Elements(ctx context.Context, selector string) ([]Element, error)
	// WaitElement blocks until selector matches or timeout expires.
	WaitElement(ctx context.Context, selector string, timeout time.Duration) error
	// ElementByText returns the first match of selector whose text matches
	// pattern, a JavaScript regular expression literal such as `/^buy$/i`.
	// The match runs inside the page. It waits up to timeout, or looks once
	// when timeout is zero, and returns nil when nothing matched.
	ElementByText(ctx context.Context, selector, pattern string, timeout time.Duration) (Element, error)
	// Eval runs a JavaScript function definition, e.g. `() => window.scrollTo(0, 0)`.
	Eval(ctx context.Context, js string) error
	MouseMove(ctx context.Context, x, y float64) error
	// Screenshot captures the full page as PNG.
	Screenshot(ctx context.Context) ([]byte, error)
	// Wait pauses for d or until ctx is done.
	Wait(ctx context.Context, d time.Duration) error
}

// Session is an isolated browsing context owned by exactly one attempt.
type Session interface {
	Page
	Close() error
}

// Launcher opens sessions configured with an identity.
type Launcher interface {
	Open(ctx context.Context, identity model.Identity) (Session, error)
}

// Sleep waits for d unless ctx ends first.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
