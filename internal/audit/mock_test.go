package audit

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/price-audit/internal/browser"
	"github.com/sells-group/price-audit/internal/model"
)

type fakeElement struct {
	href     string
	noHref   bool
	hidden   bool
	text     string
	clickErr error
	// clickHang makes Click block until its context ends.
	clickHang bool
	clicks    int
}

func (e *fakeElement) Attribute(_ context.Context, name string) (string, bool, error) {
	if name != "href" || e.noHref {
		return "", false, nil
	}
	return e.href, true, nil
}

func (e *fakeElement) Visible(context.Context) (bool, error) { return !e.hidden, nil }
func (e *fakeElement) Text(context.Context) (string, error)  { return e.text, nil }

func (e *fakeElement) Click(ctx context.Context) error {
	if e.clickHang {
		<-ctx.Done()
		return ctx.Err()
	}
	if e.clickErr != nil {
		return e.clickErr
	}
	e.clicks++
	return nil
}

// fakePage scripts one session. Navigations to the search engine return
// searchErr; any other navigation returns vendorErr and then lands on
// landingURL (or the requested URL).
type fakePage struct {
	mu sync.Mutex

	searchErr  error
	vendorErr  error
	landingURL string
	html       string
	links      []*fakeElement
	elements   map[string][]*fakeElement
	evalPanic  bool

	url         string
	navigations []string
	evals       []string
	waits       []time.Duration
	textLookups int
	closed      bool
}

func (p *fakePage) Navigate(_ context.Context, u string, _ time.Duration, _ browser.WaitUntil) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.navigations = append(p.navigations, u)
	if strings.Contains(u, "bing.com/search") {
		if p.searchErr != nil {
			return p.searchErr
		}
		p.url = u
		return nil
	}
	if p.vendorErr != nil {
		return p.vendorErr
	}
	p.url = u
	if p.landingURL != "" {
		p.url = p.landingURL
	}
	return nil
}

func (p *fakePage) URL(context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url, nil
}

func (p *fakePage) HTML(context.Context) (string, error) { return p.html, nil }

func (p *fakePage) Elements(_ context.Context, sel string) ([]browser.Element, error) {
	var src []*fakeElement
	if strings.Contains(sel, "[href*=") {
		src = p.links
	} else {
		src = p.elements[sel]
	}
	out := make([]browser.Element, len(src))
	for i, e := range src {
		out[i] = e
	}
	return out, nil
}

func (p *fakePage) WaitElement(_ context.Context, sel string, _ time.Duration) error {
	if len(p.elements[sel]) > 0 {
		return nil
	}
	return eris.Wrapf(browser.ErrTimeout, "wait for %s", sel)
}

// ElementByText matches in one call, the way the page-side lookup does, and
// holds for the full wait when nothing matches.
func (p *fakePage) ElementByText(ctx context.Context, sel, pattern string, wait time.Duration) (browser.Element, error) {
	p.mu.Lock()
	p.textLookups++
	p.mu.Unlock()

	re := regexp.MustCompile("(?i)" + strings.TrimSuffix(strings.TrimPrefix(pattern, "/"), "/i"))
	for _, e := range p.elements[sel] {
		if re.MatchString(e.text) {
			return e, nil
		}
	}
	if wait <= 0 {
		return nil, nil
	}

	t := time.NewTimer(wait)
	defer t.Stop()
	select {
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, nil
		}
		return nil, ctx.Err()
	case <-t.C:
		return nil, nil
	}
}

func (p *fakePage) Eval(_ context.Context, js string) error {
	if p.evalPanic {
		panic("eval exploded")
	}
	p.mu.Lock()
	p.evals = append(p.evals, js)
	p.mu.Unlock()
	return nil
}

func (p *fakePage) MouseMove(context.Context, float64, float64) error { return nil }

func (p *fakePage) Screenshot(context.Context) ([]byte, error) { return []byte("png"), nil }

func (p *fakePage) Wait(ctx context.Context, d time.Duration) error {
	p.mu.Lock()
	p.waits = append(p.waits, d)
	p.mu.Unlock()
	return ctx.Err()
}

func (p *fakePage) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func (p *fakePage) vendorNavigations() int {
	n := 0
	for _, u := range p.navigations {
		if !strings.Contains(u, "bing.com/search") {
			n++
		}
	}
	return n
}

// fakeLauncher hands out one scripted page per attempt.
type fakeLauncher struct {
	mu       sync.Mutex
	pages    func(attempt int) *fakePage
	openErr  error
	opened   []*fakePage
	identity []model.Identity
}

func (l *fakeLauncher) Open(_ context.Context, id model.Identity) (browser.Session, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.identity = append(l.identity, id)
	if l.openErr != nil {
		return nil, l.openErr
	}
	p := l.pages(len(l.opened))
	l.opened = append(l.opened, p)
	return p, nil
}

func (l *fakeLauncher) sessions() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.identity)
}

func (l *fakeLauncher) allClosed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, p := range l.opened {
		if !p.closed {
			return false
		}
	}
	return true
}

var errHTTP2 = &browser.NavigationError{URL: "https://www.lowes.com/pd/1", Reason: "net::ERR_HTTP2_PROTOCOL_ERROR"}

var errReset = errors.New("net::ERR_CONNECTION_RESET")
