package audit

import (
	"context"
	"math/rand/v2"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/price-audit/internal/browser"
	"github.com/sells-group/price-audit/internal/vendor"
)

const (
	scrollBottomJS = `() => window.scrollTo(0, document.body.scrollHeight)`
	scrollTopJS    = `() => window.scrollTo(0, 0)`

	dismissSettle = time.Second
)

func secs(n int) time.Duration { return time.Duration(n) * time.Second }
func millis(n int) time.Duration { return time.Duration(n) * time.Millisecond }

// hideScript hides the given elements and restores body scrolling.
func hideScript(selectors []string) string {
	quoted := make([]string, len(selectors))
	for i, s := range selectors {
		quoted[i] = "'" + strings.ReplaceAll(s, "'", `\'`) + "'"
	}
	return `() => {
	[` + strings.Join(quoted, ", ") + `].forEach(sel => {
		const el = document.querySelector(sel);
		if (el) {
			el.style.display = 'none';
			el.style.visibility = 'hidden';
			el.style.opacity = '0';
		}
	});
	document.body.style.overflow = 'auto';
}`
}

// dismissModals runs the vendor's heavy modal handling, then the generic
// strategies until one succeeds. Nothing here fails the attempt.
func (r *run) dismissModals(ctx context.Context) {
	if hm := r.profile.HeavyModal; hm != nil {
		r.dismissHeavy(ctx, hm)
	}

	for _, loc := range r.a.cfg.Dismissals {
		clicked, err := r.click(ctx, loc)
		if err != nil {
			r.log.Debug("audit: dismissal failed", zap.Stringer("locator", loc), zap.Error(err))
			continue
		}
		if clicked {
			r.log.Info("audit: closed popup", zap.Stringer("locator", loc))
			_ = r.page.Wait(ctx, dismissSettle)
			return
		}
	}
}

func (r *run) dismissHeavy(ctx context.Context, hm *vendor.HeavyModal) {
	if err := r.page.Wait(ctx, millis(hm.RenderWaitMs)); err != nil {
		return
	}

	clicked, err := r.click(ctx, hm.Close)
	if clicked {
		r.log.Info("audit: closed vendor modal", zap.Stringer("locator", hm.Close))
		return
	}
	if err != nil {
		r.log.Warn("audit: vendor modal close failed", zap.Error(err))
	}

	if len(hm.Hide) == 0 {
		return
	}
	if err := r.page.Eval(ctx, hideScript(hm.Hide)); err != nil {
		r.log.Warn("audit: hide vendor modal", zap.Error(err))
		return
	}
	r.log.Info("audit: vendor modal forcibly hidden")
}

// interact runs the vendor's setup actions, then scrolls and moves the mouse
// to trigger lazy rendering.
func (r *run) interact(ctx context.Context) {
	for _, act := range r.profile.Setup {
		timeout := secs(act.TimeoutSecs)
		if timeout <= 0 {
			timeout = r.a.cfg.ClickTimeout
		}

		var ok bool
		switch act.Kind {
		case vendor.ActionWait:
			err := r.page.WaitElement(ctx, act.Selector(), timeout)
			if err != nil {
				r.log.Warn("audit: setup wait failed", zap.Stringer("locator", act.Locator), zap.Error(err))
			}
			ok = err == nil
		case vendor.ActionClick:
			var err error
			ok, err = r.clickWithin(ctx, act.Locator, timeout)
			if err != nil || !ok {
				r.log.Debug("audit: setup click skipped", zap.Stringer("locator", act.Locator), zap.Error(err))
			}
		}
		if ok && act.AfterMs > 0 {
			_ = r.page.Wait(ctx, millis(act.AfterMs))
		}
	}

	r.humanize(ctx)
}

func (r *run) humanize(ctx context.Context) {
	x, y := float64(100+rand.IntN(401)), float64(100+rand.IntN(401))
	if err := r.page.MouseMove(ctx, x, y); err != nil {
		r.log.Debug("audit: mouse move", zap.Error(err))
	}
	if err := r.page.Eval(ctx, scrollBottomJS); err != nil {
		r.log.Debug("audit: scroll to bottom", zap.Error(err))
	}
	_ = r.page.Wait(ctx, r.a.cfg.Settle)
	if err := r.page.Eval(ctx, scrollTopJS); err != nil {
		r.log.Debug("audit: scroll to top", zap.Error(err))
	}
	_ = r.page.Wait(ctx, r.a.cfg.Settle)
}

// extractPrice returns the trimmed text of the first price match, or "".
func (r *run) extractPrice(ctx context.Context) string {
	sel := r.profile.PriceSelector
	if sel == "" {
		r.log.Info("audit: no price selector for vendor")
		return ""
	}

	if err := r.page.WaitElement(ctx, sel, r.a.cfg.PriceWait); err != nil {
		r.log.Info("audit: price element not found", zap.String("selector", sel), zap.Error(err))
		return ""
	}
	els, err := r.page.Elements(ctx, sel)
	if err != nil || len(els) == 0 {
		r.log.Info("audit: price element vanished", zap.String("selector", sel), zap.Error(err))
		return ""
	}
	txt, err := els[0].Text(ctx)
	if err != nil {
		r.log.Warn("audit: read price text", zap.Error(err))
		return ""
	}

	price := strings.TrimSpace(txt)
	r.log.Info("audit: extracted price", zap.String("price", price))
	return price
}

// clickWithin clicks the first visible element matching loc, waiting up to
// timeout for it to appear. The lookup and the click together are bounded by
// timeout; a zero timeout looks once, bounded by the click timeout.
func (r *run) clickWithin(ctx context.Context, loc vendor.Locator, timeout time.Duration) (bool, error) {
	bound := timeout
	if bound <= 0 {
		bound = r.a.cfg.ClickTimeout
	}
	actx, cancel := context.WithTimeout(ctx, bound)
	defer cancel()

	el, err := findVisible(actx, r.page, loc, timeout)
	if err != nil || el == nil {
		return false, err
	}
	if err := el.Click(actx); err != nil {
		return false, err
	}
	return true, nil
}

// click clicks the first visible element matching loc without waiting for
// it to appear. It reports false when nothing matched.
func (r *run) click(ctx context.Context, loc vendor.Locator) (bool, error) {
	return r.clickWithin(ctx, loc, 0)
}

// findVisible returns the first visible match of loc, or nil. Text locators
// are matched inside the page in a single lookup.
func findVisible(ctx context.Context, page browser.Page, loc vendor.Locator, wait time.Duration) (browser.Element, error) {
	if loc.Text != "" {
		el, err := page.ElementByText(ctx, loc.Selector(), loc.Pattern(), wait)
		if err != nil || el == nil {
			return nil, err
		}
		if ok, err := el.Visible(ctx); err != nil || !ok {
			return nil, err
		}
		return el, nil
	}

	if wait > 0 {
		if err := page.WaitElement(ctx, loc.Selector(), wait); err != nil {
			return nil, err
		}
	}
	els, err := page.Elements(ctx, loc.Selector())
	if err != nil {
		return nil, err
	}
	for _, el := range els {
		if ok, err := el.Visible(ctx); err == nil && ok {
			return el, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}
	return nil, nil
}
