package browser

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/price-audit/internal/model"
)

// Config holds browser launch configuration.
type Config struct {
	Headless       bool   `yaml:"headless" mapstructure:"headless"`
	Bin            string `yaml:"bin" mapstructure:"bin"`
	ControlURL     string `yaml:"control_url" mapstructure:"control_url"`
	NoSandbox      bool   `yaml:"no_sandbox" mapstructure:"no_sandbox"`
	Stealth        bool   `yaml:"stealth" mapstructure:"stealth"`
	ViewportWidth  int    `yaml:"viewport_width" mapstructure:"viewport_width"`
	ViewportHeight int    `yaml:"viewport_height" mapstructure:"viewport_height"`
}

// DefaultConfig returns the launch settings used for audits.
func DefaultConfig() Config {
	return Config{
		Headless:       true,
		Stealth:        true,
		ViewportWidth:  1280,
		ViewportHeight: 800,
	}
}

func (c Config) viewport() (int, int) {
	w, h := c.ViewportWidth, c.ViewportHeight
	if w <= 0 {
		w = 1280
	}
	if h <= 0 {
		h = 800
	}
	return w, h
}

// Manager owns one Chrome process and hands out isolated incognito sessions.
type Manager struct {
	cfg      Config
	mu       sync.Mutex
	browser  *rod.Browser
	launcher *launcher.Launcher
}

// NewManager creates a Manager. Chrome is started lazily on first Open.
func NewManager(cfg Config) *Manager {
	return &Manager{cfg: cfg}
}

// Start connects to ControlURL or launches a local Chrome.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.browser != nil {
		if _, err := m.browser.Version(); err == nil {
			return nil
		}
		zap.L().Warn("browser: stale connection, relaunching")
		_ = m.browser.Close()
		m.browser = nil
	}

	controlURL := m.cfg.ControlURL
	if controlURL == "" {
		l := launcher.New().
			Headless(m.cfg.Headless).
			Set(flags.Flag("disable-dev-shm-usage")).
			Set(flags.Flag("disable-blink-features"), "AutomationControlled")
		if m.cfg.Bin != "" {
			l = l.Bin(m.cfg.Bin)
		}
		if m.cfg.NoSandbox {
			l = l.NoSandbox(true)
		}
		u, err := l.Launch()
		if err != nil {
			return eris.Wrap(err, "browser: launch chrome")
		}
		m.launcher = l
		controlURL = u
	}

	// The browser outlives any single attempt's context.
	b := rod.New().ControlURL(controlURL).Context(context.WithoutCancel(ctx))
	if err := b.Connect(); err != nil {
		return eris.Wrap(err, "browser: connect")
	}
	m.browser = b

	zap.L().Info("browser: connected",
		zap.Bool("headless", m.cfg.Headless),
		zap.Bool("stealth", m.cfg.Stealth),
	)
	return nil
}

// Open creates an incognito context and page configured with identity.
func (m *Manager) Open(ctx context.Context, identity model.Identity) (Session, error) {
	if err := m.Start(ctx); err != nil {
		return nil, err
	}

	m.mu.Lock()
	b := m.browser
	m.mu.Unlock()

	incognito, err := b.Incognito()
	if err != nil {
		return nil, eris.Wrap(err, "browser: incognito context")
	}

	page, err := incognito.Page(proto.TargetCreateTarget{URL: ""})
	if err != nil {
		_ = incognito.Close()
		return nil, eris.Wrap(err, "browser: create page")
	}

	s := &rodSession{page: page, incognito: incognito}
	if err := m.configure(page, identity); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

func (m *Manager) configure(page *rod.Page, identity model.Identity) error {
	if m.cfg.Stealth {
		if _, err := page.EvalOnNewDocument(stealth.JS); err != nil {
			return eris.Wrap(err, "browser: apply stealth script")
		}
	}

	headers := identity.Headers()
	if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{
		UserAgent:      identity.UserAgent,
		AcceptLanguage: headers["Accept-Language"],
	}); err != nil {
		return eris.Wrap(err, "browser: set user agent")
	}

	if _, err := page.SetExtraHeaders(headerDict(headers, identity.CookieHeader())); err != nil {
		return eris.Wrap(err, "browser: set extra headers")
	}

	w, h := m.cfg.viewport()
	if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             w,
		Height:            h,
		DeviceScaleFactor: 1,
	}); err != nil {
		return eris.Wrap(err, "browser: set viewport")
	}
	return nil
}

// Shutdown closes Chrome and removes the launcher's profile directory.
func (m *Manager) Shutdown() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var err error
	if m.browser != nil {
		err = m.browser.Close()
		m.browser = nil
	}
	if m.launcher != nil {
		m.launcher.Cleanup()
		m.launcher = nil
	}
	return err
}

// headerDict flattens headers into rod's key/value list, sorted for
// determinism, with the Cookie header appended when present.
func headerDict(headers map[string]string, cookie string) []string {
	keys := make([]string, 0, len(headers))
	for k := range headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	dict := make([]string, 0, 2*len(keys)+2)
	for _, k := range keys {
		dict = append(dict, k, headers[k])
	}
	if cookie != "" {
		dict = append(dict, "Cookie", cookie)
	}
	return dict
}

type rodSession struct {
	page      *rod.Page
	incognito *rod.Browser
}

func (s *rodSession) Navigate(ctx context.Context, url string, timeout time.Duration, until WaitUntil) error {
	tctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	p := s.page.Context(tctx)

	var waitDOM func()
	if until == WaitDOMContentLoaded {
		waitDOM = p.WaitNavigation(proto.PageLifecycleEventNameDOMContentLoaded)
	}

	if err := p.Navigate(url); err != nil {
		return classifyNavigation(url, err)
	}

	switch until {
	case WaitDOMContentLoaded:
		waitDOM()
	case WaitNetworkIdle:
		if err := p.WaitLoad(); err != nil {
			return classifyNavigation(url, err)
		}
		p.WaitRequestIdle(500*time.Millisecond, nil, nil, nil)()
	default:
		if err := p.WaitLoad(); err != nil {
			return classifyNavigation(url, err)
		}
	}

	if errors.Is(tctx.Err(), context.DeadlineExceeded) {
		return eris.Wrapf(ErrTimeout, "navigate %s (%s)", url, until)
	}
	return nil
}

func classifyNavigation(url string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return eris.Wrapf(ErrTimeout, "navigate %s", url)
	}
	var navErr *rod.NavigationError
	if errors.As(err, &navErr) {
		return &NavigationError{URL: url, Reason: navErr.Reason}
	}
	return &NavigationError{URL: url, Reason: err.Error()}
}

func (s *rodSession) URL(ctx context.Context) (string, error) {
	info, err := s.page.Context(ctx).Info()
	if err != nil {
		return "", eris.Wrap(err, "browser: page info")
	}
	return info.URL, nil
}

func (s *rodSession) HTML(ctx context.Context) (string, error) {
	html, err := s.page.Context(ctx).HTML()
	if err != nil {
		return "", eris.Wrap(err, "browser: page html")
	}
	return html, nil
}

func (s *rodSession) Elements(ctx context.Context, selector string) ([]Element, error) {
	els, err := s.page.Context(ctx).Elements(selector)
	if err != nil {
		return nil, eris.Wrapf(err, "browser: query %s", selector)
	}
	out := make([]Element, 0, len(els))
	for _, el := range els {
		out = append(out, &rodElement{el: el})
	}
	return out, nil
}

func (s *rodSession) WaitElement(ctx context.Context, selector string, timeout time.Duration) error {
	tctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if _, err := s.page.Context(tctx).Element(selector); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return eris.Wrapf(ErrTimeout, "wait for %s", selector)
		}
		return eris.Wrapf(err, "browser: wait for %s", selector)
	}
	return nil
}

func (s *rodSession) ElementByText(ctx context.Context, selector, pattern string, timeout time.Duration) (Element, error) {
	p := s.page.Context(ctx)
	if timeout > 0 {
		tctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		p = s.page.Context(tctx)
	} else {
		p = p.Sleeper(rod.NotFoundSleeper)
	}

	el, err := p.ElementR(selector, pattern)
	if err != nil {
		var notFound *rod.ElementNotFoundError
		switch {
		case ctx.Err() != nil:
			return nil, ctx.Err()
		case errors.As(err, &notFound), errors.Is(err, context.DeadlineExceeded):
			return nil, nil
		}
		return nil, eris.Wrapf(err, "browser: find %s by text %s", selector, pattern)
	}
	return &rodElement{el: el}, nil
}

func (s *rodSession) Eval(ctx context.Context, js string) error {
	if _, err := s.page.Context(ctx).Eval(js); err != nil {
		return eris.Wrap(err, "browser: eval")
	}
	return nil
}

func (s *rodSession) MouseMove(ctx context.Context, x, y float64) error {
	if err := s.page.Context(ctx).Mouse.MoveTo(proto.Point{X: x, Y: y}); err != nil {
		return eris.Wrap(err, "browser: mouse move")
	}
	return nil
}

func (s *rodSession) Screenshot(ctx context.Context) ([]byte, error) {
	img, err := s.page.Context(ctx).Screenshot(true, &proto.PageCaptureScreenshot{
		Format: proto.PageCaptureScreenshotFormatPng,
	})
	if err != nil {
		return nil, eris.Wrap(err, "browser: screenshot")
	}
	return img, nil
}

func (s *rodSession) Wait(ctx context.Context, d time.Duration) error {
	return Sleep(ctx, d)
}

func (s *rodSession) Close() error {
	return errors.Join(s.page.Close(), s.incognito.Close())
}

type rodElement struct {
	el *rod.Element
}

func (e *rodElement) Attribute(ctx context.Context, name string) (string, bool, error) {
	v, err := e.el.Context(ctx).Attribute(name)
	if err != nil {
		return "", false, eris.Wrapf(err, "browser: attribute %s", name)
	}
	if v == nil {
		return "", false, nil
	}
	return *v, true, nil
}

func (e *rodElement) Visible(ctx context.Context) (bool, error) {
	ok, err := e.el.Context(ctx).Visible()
	if err != nil {
		return false, eris.Wrap(err, "browser: visible")
	}
	return ok, nil
}

func (e *rodElement) Text(ctx context.Context) (string, error) {
	txt, err := e.el.Context(ctx).Text()
	if err != nil {
		return "", eris.Wrap(err, "browser: text")
	}
	return txt, nil
}

func (e *rodElement) Click(ctx context.Context) error {
	if err := e.el.Context(ctx).Click(proto.InputMouseButtonLeft, 1); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return eris.Wrap(ErrTimeout, "click")
		}
		return eris.Wrap(err, "browser: click")
	}
	return nil
}
