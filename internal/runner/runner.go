// Package runner executes audit tasks on a bounded pool of workers.
package runner

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/price-audit/internal/model"
)

// Auditor turns one task into its final record.
type Auditor interface {
	Audit(ctx context.Context, task model.Task) model.AuditRecord
}

// Pool runs tasks with at most Concurrency audits in flight.
type Pool struct {
	auditor     Auditor
	concurrency int
}

// New creates a Pool. Concurrency below one is treated as one.
func New(auditor Auditor, concurrency int) *Pool {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Pool{auditor: auditor, concurrency: concurrency}
}

// Run audits every task and streams one record per task in completion
// order. The channel is closed once every task is accounted for; callers
// must drain it.
//
// Workers are independent: a failing or panicking task never cancels its
// siblings. Tasks not yet started when ctx is done still produce an
// UnhandledError record.
func (p *Pool) Run(ctx context.Context, tasks []model.Task) <-chan model.AuditRecord {
	out := make(chan model.AuditRecord, p.concurrency)

	go func() {
		defer close(out)

		total := len(tasks)
		var done atomic.Int64
		emit := func(rec model.AuditRecord) {
			out <- rec
			n := done.Add(1)
			zap.L().Info("runner: progress",
				zap.Int64("done", n),
				zap.Int("total", total),
				zap.String("product_id", rec.ProductID),
				zap.String("vendor", rec.VendorDomain),
				zap.String("status", string(rec.Status)),
			)
		}

		zap.L().Info("runner: starting", zap.Int("tasks", total), zap.Int("concurrency", p.concurrency))

		var g errgroup.Group
		g.SetLimit(p.concurrency)
		for _, task := range tasks {
			if ctx.Err() != nil {
				emit(Unhandled(task, "cancelled before start"))
				continue
			}
			g.Go(func() error {
				emit(p.audit(ctx, task))
				return nil
			})
		}
		_ = g.Wait()

		zap.L().Info("runner: complete", zap.Int64("records", done.Load()))
	}()

	return out
}

func (p *Pool) audit(ctx context.Context, task model.Task) (rec model.AuditRecord) {
	defer func() {
		if r := recover(); r != nil {
			zap.L().Error("runner: task panicked",
				zap.String("product_id", task.ProductID),
				zap.String("vendor", task.VendorDomain),
				zap.Any("panic", r),
			)
			rec = Unhandled(task, fmt.Sprintf("panic: %v", r))
		}
	}()
	return p.auditor.Audit(ctx, task)
}

// Unhandled builds the record for a task that never produced one of its own.
func Unhandled(task model.Task, detail string) model.AuditRecord {
	rec := model.NewRecord(task, model.AttemptResult{
		Status: model.StatusUnhandledError,
		Detail: detail,
	}, 0, time.Now())
	rec.ID = uuid.NewString()
	return rec
}

// Collect drains a record stream into a slice.
func Collect(records <-chan model.AuditRecord) []model.AuditRecord {
	var out []model.AuditRecord
	for rec := range records {
		out = append(out, rec)
	}
	return out
}
