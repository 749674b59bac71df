// Package audit runs the per-task price retrieval pipeline: search, vendor
// link discovery, vendor page navigation, verification, block detection,
// modal dismissal, vendor setup, price extraction and evidence capture.
package audit

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/price-audit/internal/browser"
	"github.com/sells-group/price-audit/internal/evidence"
	"github.com/sells-group/price-audit/internal/identity"
	"github.com/sells-group/price-audit/internal/model"
	"github.com/sells-group/price-audit/internal/resilience"
	"github.com/sells-group/price-audit/internal/vendor"
)

// captureTimeout bounds best-effort evidence capture, which runs even after
// the task context is done.
const captureTimeout = 30 * time.Second

// Auditor produces one AuditRecord per task. It is safe for concurrent use;
// the only state shared between tasks is read-only configuration and the
// search rate limiter.
type Auditor struct {
	cfg        Config
	launcher   browser.Launcher
	identities *identity.Provider
	vendors    *vendor.Registry
	evidence   *evidence.Store
	blocks     *BlockDetector
	limiter    *rate.Limiter
	now        func() time.Time
}

// Option configures an Auditor.
type Option func(*Auditor)

// WithClock overrides the time source used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(a *Auditor) { a.now = now }
}

// New creates an Auditor.
func New(cfg Config, launcher browser.Launcher, ids *identity.Provider, vendors *vendor.Registry, ev *evidence.Store, opts ...Option) (*Auditor, error) {
	cfg = cfg.withDefaults()

	blocks, err := NewBlockDetector(cfg.BlockSelectors, cfg.BlockPatterns)
	if err != nil {
		return nil, err
	}

	a := &Auditor{
		cfg:        cfg,
		launcher:   launcher,
		identities: ids,
		vendors:    vendors,
		evidence:   ev,
		blocks:     blocks,
		now:        time.Now,
	}
	if cfg.SearchRatePerSec > 0 {
		a.limiter = rate.NewLimiter(rate.Limit(cfg.SearchRatePerSec), 1)
	}
	for _, o := range opts {
		o(a)
	}
	return a, nil
}

// Audit runs the task through up to MaxRetries attempts and returns its
// final record. It never panics and never returns without a record.
func (a *Auditor) Audit(ctx context.Context, task model.Task) model.AuditRecord {
	log := zap.L().With(
		zap.String("product_id", task.ProductID),
		zap.String("vendor", task.VendorDomain),
	)
	prof := a.vendors.Lookup(task.VendorDomain)
	if prof.IsNull() {
		log.Debug("audit: no vendor profile, using generic handling")
	}

	retry := resilience.RetryConfig{
		MaxAttempts:    a.cfg.MaxRetries,
		InitialBackoff: a.cfg.RetryBackoff,
		MaxBackoff:     30 * time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.25,
		OnRetry: resilience.RetryLogger("audit",
			zap.String("product_id", task.ProductID),
			zap.String("vendor", task.VendorDomain),
		),
	}

	attempts := 0
	res, err := resilience.DoAttempts(ctx, retry, func(ctx context.Context, attempt int) (model.AttemptResult, error) {
		attempts = attempt + 1
		return a.attempt(ctx, task, prof, attempt)
	})
	if err != nil {
		log.Warn("audit: attempts ended with error", zap.Int("attempts", attempts), zap.Error(err))
	}
	if res.Status == "" {
		res = model.AttemptResult{Status: model.StatusUnhandledError, Detail: "no attempt completed"}
		if err != nil {
			res.Detail = err.Error()
		}
	}

	rec := model.NewRecord(task, res, attempts, a.now())
	rec.ID = uuid.NewString()

	log.Info("audit: task complete",
		zap.String("status", string(rec.Status)),
		zap.String("price", rec.Price),
		zap.Int("attempts", attempts),
	)
	return rec
}

// attempt opens a session and runs the state machine once. A non-nil error
// is always a resilience.TransientError and asks for another attempt.
func (a *Auditor) attempt(ctx context.Context, task model.Task, prof vendor.Profile, attempt int) (res model.AttemptResult, err error) {
	r := &run{
		a:       a,
		task:    task,
		profile: prof,
		attempt: attempt,
		last:    attempt >= a.cfg.MaxRetries-1,
		log: zap.L().With(
			zap.String("product_id", task.ProductID),
			zap.String("vendor", task.VendorDomain),
			zap.Int("attempt", attempt+1),
		),
	}

	var sess browser.Session
	defer func() {
		if p := recover(); p != nil {
			res, err = r.unhandled(ctx, panicError(p)), nil
		}
		if sess != nil {
			if cerr := sess.Close(); cerr != nil {
				r.log.Warn("audit: close session", zap.Error(cerr))
			}
		}
	}()

	id := a.identities.Identity(task.VendorDomain, attempt)
	sess, err = a.launcher.Open(ctx, id)
	if err != nil {
		sess = nil
		_, terr := r.retryable(model.StatusNavigationError, stepSession, err)
		return r.result, terr
	}
	r.page = sess

	return r.exec(ctx)
}

func (a *Auditor) delay() time.Duration {
	lo, hi := a.cfg.MinDelay, a.cfg.MaxDelay
	if hi <= lo {
		return lo
	}
	return lo + rand.N(hi-lo+1)
}

func (a *Auditor) capture(ctx context.Context, page browser.Page, task model.Task, label string) []model.EvidenceArtifact {
	if a.evidence == nil {
		return nil
	}
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), captureTimeout)
	defer cancel()

	var c evidence.Capturer
	if page != nil {
		c = page
	}
	return a.evidence.Save(cctx, c, evidence.Ref{
		ProductID:    task.ProductID,
		VendorDomain: task.VendorDomain,
		Label:        label,
		Timestamp:    a.now(),
	})
}
