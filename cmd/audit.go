package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/price-audit/internal/audit"
	"github.com/sells-group/price-audit/internal/browser"
	"github.com/sells-group/price-audit/internal/catalog"
	"github.com/sells-group/price-audit/internal/config"
	"github.com/sells-group/price-audit/internal/evidence"
	"github.com/sells-group/price-audit/internal/identity"
	"github.com/sells-group/price-audit/internal/model"
	"github.com/sells-group/price-audit/internal/report"
	"github.com/sells-group/price-audit/internal/runner"
	"github.com/sells-group/price-audit/internal/store"
	"github.com/sells-group/price-audit/internal/vendor"
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Audit vendor prices for every catalog product",
	Long:  "Builds one task per product and approved vendor, retrieves each vendor's price through a real browser, stores every record, and writes the audit log.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := applyAuditFlags(cmd, cfg); err != nil {
			return err
		}
		if err := cfg.Validate("audit"); err != nil {
			return err
		}

		limit, _ := cmd.Flags().GetInt("limit")
		tasks, err := loadTasks(cfg.Input, limit)
		if err != nil {
			return err
		}

		if dryRun, _ := cmd.Flags().GetBool("dry-run"); dryRun {
			formatTasks(os.Stdout, tasks)
			return nil
		}
		if len(tasks) == 0 {
			zap.L().Warn("audit: no tasks to run")
			return nil
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		registry, err := vendor.Load(cfg.Vendors.ProfilesPath)
		if err != nil {
			return err
		}

		mgr := browser.NewManager(cfg.Browser)
		defer func() {
			if err := mgr.Shutdown(); err != nil {
				zap.L().Warn("audit: browser shutdown", zap.Error(err))
			}
		}()

		auditor, err := audit.New(
			cfg.Audit.Pipeline(),
			mgr,
			identity.New(cfg.Identity),
			registry,
			evidence.NewStore(cfg.Output.Dir, cfg.Output.MarkupLabels),
		)
		if err != nil {
			return err
		}

		out, err := executeAudit(ctx, auditor, st, tasks, cfg.Audit.Concurrency)
		if err != nil {
			return err
		}

		return writeReport(cfg.Output.ReportPath, out.Report)
	},
}

func init() {
	f := auditCmd.Flags()
	f.String("catalog", "", "product catalog workbook (overrides input.catalog_path)")
	f.String("vendors", "", "approved vendor workbook (overrides input.vendors_path)")
	f.String("output-dir", "", "evidence directory (overrides output.dir)")
	f.String("report", "", "audit log path, .xlsx or .csv (overrides output.report_path)")
	f.String("profiles", "", "vendor profile YAML (overrides vendors.profiles_path)")
	f.Int("concurrency", 0, "parallel browser sessions (overrides audit.concurrency)")
	f.Int("limit", 0, "audit at most this many tasks (0 = all)")
	f.Bool("dry-run", false, "print the generated tasks and exit")
	rootCmd.AddCommand(auditCmd)
}

// applyAuditFlags copies explicitly set flags over the loaded config.
func applyAuditFlags(cmd *cobra.Command, c *config.Config) error {
	f := cmd.Flags()
	strFlags := map[string]*string{
		"catalog":    &c.Input.CatalogPath,
		"vendors":    &c.Input.VendorsPath,
		"output-dir": &c.Output.Dir,
		"report":     &c.Output.ReportPath,
		"profiles":   &c.Vendors.ProfilesPath,
	}
	for name, dst := range strFlags {
		if !f.Changed(name) {
			continue
		}
		v, err := f.GetString(name)
		if err != nil {
			return eris.Wrapf(err, "audit: flag %s", name)
		}
		*dst = v
	}
	if f.Changed("concurrency") {
		n, err := f.GetInt("concurrency")
		if err != nil {
			return eris.Wrap(err, "audit: flag concurrency")
		}
		c.Audit.Concurrency = n
	}
	return nil
}

// loadTasks reads the catalog and vendor list and expands them into tasks.
func loadTasks(in config.InputConfig, limit int) ([]model.Task, error) {
	products, err := catalog.LoadProducts(in.CatalogPath, catalog.Options{})
	if err != nil {
		return nil, err
	}
	vendors, err := catalog.LoadVendors(in.VendorsPath, catalog.Options{})
	if err != nil {
		return nil, err
	}

	tasks := catalog.BuildTasks(products, vendors)
	if limit > 0 && len(tasks) > limit {
		tasks = tasks[:limit]
	}

	zap.L().Info("audit: tasks generated",
		zap.Int("products", len(products)),
		zap.Int("vendors", len(vendors)),
		zap.Int("tasks", len(tasks)),
	)
	return tasks, nil
}

// auditOutcome is what a finished (or interrupted) run produced.
type auditOutcome struct {
	Run    *model.Run
	Report report.Report
}

// executeAudit runs every task through the pool, persisting each record as
// it arrives. The run is marked interrupted when ctx ends early.
func executeAudit(ctx context.Context, a runner.Auditor, st store.Store, tasks []model.Task, concurrency int) (*auditOutcome, error) {
	run, err := st.CreateRun(ctx, len(tasks))
	if err != nil {
		return nil, eris.Wrap(err, "audit: create run")
	}
	log := zap.L().With(zap.String("run_id", run.ID))
	log.Info("audit: run started", zap.Int("tasks", len(tasks)), zap.Int("concurrency", concurrency))

	// Records still arrive after cancellation and must be kept.
	persistCtx := context.WithoutCancel(ctx)

	agg := report.NewAggregator()
	for rec := range runner.New(a, concurrency).Run(ctx, tasks) {
		rec.RunID = run.ID
		agg.Add(rec)
		if err := st.SaveRecord(persistCtx, run.ID, rec); err != nil {
			log.Error("audit: save record",
				zap.String("product_id", rec.ProductID),
				zap.String("vendor", rec.VendorDomain),
				zap.Error(err),
			)
		}
	}

	status := model.RunStatusComplete
	if ctx.Err() != nil {
		status = model.RunStatusInterrupted
	}
	summary := agg.Summary()
	if err := st.FinishRun(persistCtx, run.ID, status, summary); err != nil {
		return nil, eris.Wrap(err, "audit: finish run")
	}
	run.Status = status
	run.Summary = summary

	fields := []zap.Field{
		zap.String("status", string(status)),
		zap.Int("records", summary.Total),
		zap.Int("priced", summary.Priced),
	}
	for _, s := range model.AllStatuses() {
		if n := summary.ByStatus[s]; n > 0 {
			fields = append(fields, zap.Int(string(s), n))
		}
	}
	log.Info("audit: run finished", fields...)

	return &auditOutcome{Run: run, Report: agg.Report()}, nil
}

// writeReport writes r to path, skipping empty reports.
func writeReport(path string, r report.Report) error {
	if len(r.Rows) == 0 {
		zap.L().Warn("audit: no records, report not written", zap.String("path", path))
		return nil
	}
	if err := report.Write(path, r); err != nil {
		return err
	}
	zap.L().Info("audit: report written", zap.String("path", path), zap.Int("rows", len(r.Rows)))
	return nil
}

// formatTasks writes a tabular list of tasks to out.
func formatTasks(out io.Writer, tasks []model.Task) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "PRODUCT\tVENDOR\tQUERY")
	_, _ = fmt.Fprintln(w, "-------\t------\t-----")
	for _, t := range tasks {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n", t.ProductID, t.VendorDomain, t.SearchQuery)
	}
	_ = w.Flush()
	_, _ = fmt.Fprintf(out, "%d tasks\n", len(tasks))
}
