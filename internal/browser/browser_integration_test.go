//go:build integration

package browser_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/price-audit/internal/browser"
	"github.com/sells-group/price-audit/internal/identity"
)

func TestManager_OpenNavigateCapture_Integration(t *testing.T) {
	var gotUA, gotCookie string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotCookie = r.Header.Get("Cookie")
		fmt.Fprintln(w, `<html><body><h1>Widget</h1><span class="price">$19.99</span></body></html>`)
	}))
	defer ts.Close()

	cfg := browser.DefaultConfig()
	cfg.NoSandbox = true
	m := browser.NewManager(cfg)
	defer func() { _ = m.Shutdown() }()

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	id := identity.New(identity.Config{}).Identity("example.com", 0)
	s, err := m.Open(ctx, id)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	require.NoError(t, s.Navigate(ctx, ts.URL, 15*time.Second, browser.WaitDOMContentLoaded))

	u, err := s.URL(ctx)
	require.NoError(t, err)
	assert.Contains(t, u, "127.0.0.1")

	els, err := s.Elements(ctx, "span.price")
	require.NoError(t, err)
	require.Len(t, els, 1)
	txt, err := els[0].Text(ctx)
	require.NoError(t, err)
	assert.Equal(t, "$19.99", txt)

	png, err := s.Screenshot(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, png)

	assert.Equal(t, identity.DefaultUserAgent, gotUA)
	assert.Contains(t, gotCookie, "user_type=guest")
}

func TestSession_ElementByText_Integration(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, `<html><body>
<div>Related items</div><div>Add to Cart and Checkout</div>
<button id="cart"> Add to Cart </button>
<button id="go">Continue to site</button>
</body></html>`)
	}))
	defer ts.Close()

	cfg := browser.DefaultConfig()
	cfg.NoSandbox = true
	m := browser.NewManager(cfg)
	defer func() { _ = m.Shutdown() }()

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	s, err := m.Open(ctx, identity.New(identity.Config{}).Identity("example.com", 0))
	require.NoError(t, err)
	defer func() { _ = s.Close() }()
	require.NoError(t, s.Navigate(ctx, ts.URL, 15*time.Second, browser.WaitDOMContentLoaded))

	el, err := s.ElementByText(ctx, "button, div", `/^\s*add to cart\s*$/i`, time.Second)
	require.NoError(t, err)
	require.NotNil(t, el)
	id, ok, err := el.Attribute(ctx, "id")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "cart", id)

	el, err = s.ElementByText(ctx, "button", `/continue/i`, 0)
	require.NoError(t, err)
	require.NotNil(t, el)

	start := time.Now()
	el, err = s.ElementByText(ctx, "button, div", `/^checkout$/i`, 500*time.Millisecond)
	require.NoError(t, err)
	assert.Nil(t, el)
	assert.Less(t, time.Since(start), 5*time.Second)
}
