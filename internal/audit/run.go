package audit

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/price-audit/internal/browser"
	"github.com/sells-group/price-audit/internal/model"
	"github.com/sells-group/price-audit/internal/resilience"
	"github.com/sells-group/price-audit/internal/vendor"
)

type state int

const (
	stateSearch state = iota
	stateDiscover
	stateNavigate
	stateVerify
	stateDetectBlock
	stateDismissModals
	stateInteract
	stateExtract
	stateCapture
	stateDone
)

var stateNames = [...]string{
	stateSearch:        "search",
	stateDiscover:      "discover",
	stateNavigate:      "navigate",
	stateVerify:        "verify",
	stateDetectBlock:   "detect_block",
	stateDismissModals: "dismiss_modals",
	stateInteract:      "interact",
	stateExtract:       "extract",
	stateCapture:       "capture",
	stateDone:          "done",
}

func (s state) String() string { return stateNames[s] }

const (
	stepSession  = "session"
	stepSearch   = "search"
	stepNavigate = "vendor_navigation"
)

// run is the state of one attempt. It owns the page for the attempt's
// lifetime and is discarded afterwards.
type run struct {
	a       *Auditor
	task    model.Task
	profile vendor.Profile
	attempt int
	last    bool
	log     *zap.Logger

	page       browser.Page
	target     string
	currentURL string
	price      string
	result     model.AttemptResult
}

func (r *run) exec(ctx context.Context) (model.AttemptResult, error) {
	s := stateSearch
	for s != stateDone {
		r.log.Debug("audit: enter state", zap.Stringer("state", s))

		next, err := r.step(ctx, s)
		if err != nil {
			var te *resilience.TransientError
			if errors.As(err, &te) {
				return r.result, err
			}
			return r.unhandled(ctx, eris.Wrapf(err, "%s", s)), nil
		}
		s = next
	}
	return r.result, nil
}

func (r *run) step(ctx context.Context, s state) (state, error) {
	switch s {
	case stateSearch:
		return r.search(ctx)
	case stateDiscover:
		return r.discover(ctx)
	case stateNavigate:
		return r.navigate(ctx)
	case stateVerify:
		return r.verify(ctx)
	case stateDetectBlock:
		return r.detectBlock(ctx)
	case stateDismissModals:
		r.dismissModals(ctx)
		return stateInteract, nil
	case stateInteract:
		r.interact(ctx)
		return stateExtract, nil
	case stateExtract:
		r.price = r.extractPrice(ctx)
		return stateCapture, nil
	case stateCapture:
		r.captureSuccess(ctx)
		return stateDone, nil
	default:
		return stateDone, eris.Errorf("audit: unknown state %d", s)
	}
}

func (r *run) search(ctx context.Context) (state, error) {
	if r.a.limiter != nil {
		if err := r.a.limiter.Wait(ctx); err != nil {
			return stateDone, eris.Wrap(err, "audit: search rate limit")
		}
	}

	u := r.a.cfg.SearchURL + url.QueryEscape(r.task.SearchQuery)
	r.log.Debug("audit: searching", zap.String("url", u))
	if err := r.page.Navigate(ctx, u, r.a.cfg.SearchTimeout, browser.WaitNetworkIdle); err != nil {
		return r.retryable(model.StatusNavigationError, stepSearch, eris.Wrap(err, "search navigation"))
	}
	return stateDiscover, nil
}

func (r *run) discover(ctx context.Context) (state, error) {
	sel := fmt.Sprintf("%s[href*=%q]", r.a.cfg.ResultSelector, r.task.VendorDomain)
	links, err := r.page.Elements(ctx, sel)
	if err != nil {
		return stateDone, err
	}
	r.log.Debug("audit: candidate links", zap.Int("count", len(links)))

	for _, link := range links {
		href, ok, err := link.Attribute(ctx, "href")
		if err != nil || !ok || !r.qualifies(href) {
			continue
		}
		if visible, err := link.Visible(ctx); err != nil || !visible {
			continue
		}
		r.target = href
		r.log.Info("audit: vendor link found", zap.String("href", href))
		return stateNavigate, nil
	}

	r.result = model.AttemptResult{
		Status: model.StatusNoVendorLinkFound,
		Detail: fmt.Sprintf("%d candidate links, none usable", len(links)),
	}
	return stateDone, nil
}

func (r *run) qualifies(href string) bool {
	if !strings.HasPrefix(href, "http://") && !strings.HasPrefix(href, "https://") {
		return false
	}
	if !strings.Contains(href, r.task.VendorDomain) {
		return false
	}
	for _, p := range r.a.cfg.ExcludedLinkPatterns {
		if p != "" && strings.Contains(href, p) {
			return false
		}
	}
	return true
}

func (r *run) navigate(ctx context.Context) (state, error) {
	if err := r.page.Wait(ctx, r.a.delay()); err != nil {
		return stateDone, err
	}

	err := r.page.Navigate(ctx, r.target, r.a.cfg.VendorTimeout, browser.WaitDOMContentLoaded)
	switch {
	case err == nil:
		return stateVerify, nil
	case ctx.Err() != nil:
		return stateDone, err
	case browser.IsTimeout(err):
		r.log.Warn("audit: vendor navigation timed out, using fallback wait", zap.Error(err))
		if werr := r.page.Wait(ctx, r.a.cfg.FallbackWait); werr != nil {
			return stateDone, werr
		}
		return r.retryable(model.StatusNavigationTimeout, stepNavigate, err)
	default:
		if r.last {
			if st, ok := r.profile.SkipStatus(err); ok {
				r.result = model.AttemptResult{Status: st, Detail: err.Error()}
				return stateDone, nil
			}
		}
		return r.retryable(model.StatusNavigationError, stepNavigate, err)
	}
}

func (r *run) verify(ctx context.Context) (state, error) {
	cur, err := r.page.URL(ctx)
	if err != nil {
		return stateDone, err
	}
	r.currentURL = cur

	lower := strings.ToLower(cur)
	if strings.Contains(lower, strings.ToLower(r.task.VendorDomain)) &&
		!strings.Contains(lower, strings.ToLower(r.a.cfg.SearchDomain)) {
		return stateDetectBlock, nil
	}

	r.log.Warn("audit: landed off vendor domain", zap.String("url", cur))
	r.result = model.AttemptResult{
		Status:     model.StatusFailedToReach,
		CurrentURL: cur,
		Detail:     "landed on " + cur,
		Evidence:   r.a.capture(ctx, r.page, r.task, model.StatusFailedToReach.EvidenceLabel()),
	}
	return stateDone, nil
}

func (r *run) detectBlock(ctx context.Context) (state, error) {
	markup, err := r.page.HTML(ctx)
	if err != nil {
		return stateDone, err
	}

	sig, blocked := r.a.blocks.Detect(markup)
	if !blocked {
		return stateDismissModals, nil
	}

	r.log.Warn("audit: blocked by vendor", zap.String("signature", sig))
	r.result = model.AttemptResult{
		Status:     model.StatusBlocked,
		CurrentURL: r.currentURL,
		Detail:     "block signature: " + sig,
		Evidence:   r.a.capture(ctx, r.page, r.task, model.StatusBlocked.EvidenceLabel()),
	}
	return stateDone, nil
}

func (r *run) captureSuccess(ctx context.Context) {
	r.result = model.AttemptResult{
		Status:     model.StatusSuccess,
		Price:      r.price,
		CurrentURL: r.currentURL,
		Evidence:   r.a.capture(ctx, r.page, r.task, ""),
	}
	if r.price == "" {
		r.result.Detail = "no price found"
	}

	check := r.profile.PostCheck
	if check == nil {
		return
	}
	markup, err := r.page.HTML(ctx)
	if err == nil && check.Passes(markup) {
		return
	}

	r.log.Info("audit: page may be incomplete, capturing debug evidence", zap.String("marker", check.Marker))
	if err := r.page.Wait(ctx, secs(check.WaitSecs)); err != nil {
		r.log.Debug("audit: debug wait interrupted", zap.Error(err))
	}
	r.result.Evidence = append(r.result.Evidence, r.a.capture(ctx, r.page, r.task, "debug")...)
}

// retryable records a transient fault. On the last attempt the fault becomes
// the terminal status; otherwise the attempt asks to be retried.
func (r *run) retryable(status model.Status, step string, err error) (state, error) {
	r.result = model.AttemptResult{
		Status:     status,
		CurrentURL: r.currentURL,
		Detail:     err.Error(),
		Retryable:  true,
	}
	if r.last {
		r.log.Warn("audit: giving up", zap.String("step", step), zap.String("status", string(status)), zap.Error(err))
		return stateDone, nil
	}
	r.log.Info("audit: transient fault", zap.String("step", step), zap.Error(err))
	return stateDone, resilience.NewTransientError(err, step)
}

func (r *run) unhandled(ctx context.Context, err error) model.AttemptResult {
	r.log.Error("audit: unhandled error", zap.Error(err))
	r.result = model.AttemptResult{
		Status:     model.StatusUnhandledError,
		CurrentURL: r.currentURL,
		Detail:     err.Error(),
		Evidence:   r.a.capture(ctx, r.page, r.task, model.StatusUnhandledError.EvidenceLabel()),
	}
	return r.result
}

func panicError(p any) error {
	if err, ok := p.(error); ok {
		return eris.Wrap(err, "panic")
	}
	return eris.Errorf("panic: %v", p)
}
