// Package report aggregates audit records into a flat table and writes it
// to a spreadsheet.
package report

import (
	"strconv"
	"sync"

	"github.com/sells-group/price-audit/internal/model"
)

// Column names, in the order a record lists them.
const (
	ColProductID       = "Product ID"
	ColVendor          = "Vendor"
	ColSearchQuery     = "Search Query"
	ColFinalURL        = "Final URL"
	ColScreenshot      = "Screenshot"
	ColHTML            = "HTML"
	ColTimestamp       = "Timestamp"
	ColPrice           = "Price"
	ColStatus          = "Status"
	ColDetail          = "Detail"
	ColAttempts        = "Attempts"
	ColDebugScreenshot = "Debug Screenshot"
	ColDebugHTML       = "Debug HTML"
)

// TimestampLayout is how record timestamps render in the report.
const TimestampLayout = "2006-01-02 15:04:05"

// Report is a columnar view of records. Columns is the union of every row's
// fields in first-seen order; a row lacking a column renders as empty.
type Report struct {
	Columns []string
	Rows    []map[string]string
}

// Table renders the report as a header row followed by one row per record.
func (r Report) Table() [][]string {
	out := make([][]string, 0, len(r.Rows)+1)
	out = append(out, append([]string(nil), r.Columns...))
	for _, row := range r.Rows {
		cells := make([]string, len(r.Columns))
		for i, c := range r.Columns {
			cells[i] = row[c]
		}
		out = append(out, cells)
	}
	return out
}

// Aggregator accumulates records as they arrive. It is safe for concurrent
// use and does not depend on arrival order.
type Aggregator struct {
	mu      sync.Mutex
	columns []string
	seen    map[string]bool
	rows    []map[string]string
	summary model.RunSummary
}

// NewAggregator creates an empty Aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{
		seen:    make(map[string]bool),
		summary: model.RunSummary{ByStatus: make(map[model.Status]int)},
	}
}

// Add appends a record.
func (a *Aggregator) Add(rec model.AuditRecord) {
	fields := Fields(rec)

	a.mu.Lock()
	defer a.mu.Unlock()

	row := make(map[string]string, len(fields))
	for _, f := range fields {
		if !a.seen[f.Name] {
			a.seen[f.Name] = true
			a.columns = append(a.columns, f.Name)
		}
		row[f.Name] = f.Value
	}
	a.rows = append(a.rows, row)
	a.summary.Add(rec)
}

// Len returns the number of records added.
func (a *Aggregator) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.rows)
}

// Summary returns status counts for the records added so far.
func (a *Aggregator) Summary() model.RunSummary {
	a.mu.Lock()
	defer a.mu.Unlock()
	s := model.RunSummary{Total: a.summary.Total, Priced: a.summary.Priced, ByStatus: make(map[model.Status]int, len(a.summary.ByStatus))}
	for k, v := range a.summary.ByStatus {
		s.ByStatus[k] = v
	}
	return s
}

// Report returns a snapshot of the aggregated table.
func (a *Aggregator) Report() Report {
	a.mu.Lock()
	defer a.mu.Unlock()

	r := Report{
		Columns: append([]string(nil), a.columns...),
		Rows:    make([]map[string]string, len(a.rows)),
	}
	for i, row := range a.rows {
		cp := make(map[string]string, len(row))
		for k, v := range row {
			cp[k] = v
		}
		r.Rows[i] = cp
	}
	return r
}

// Field is one named report cell.
type Field struct {
	Name  string
	Value string
}

// Fields lists the cells a record contributes. Optional fields are omitted
// when empty.
func Fields(rec model.AuditRecord) []Field {
	fields := []Field{
		{ColProductID, rec.ProductID},
		{ColVendor, rec.VendorDomain},
		{ColSearchQuery, rec.SearchQuery},
	}
	opt := func(name, v string) {
		if v != "" {
			fields = append(fields, Field{name, v})
		}
	}

	evidence := make(map[string]string)
	for _, a := range rec.Evidence {
		if _, ok := evidence[a.Column()]; !ok {
			evidence[a.Column()] = a.Path
		}
	}

	opt(ColFinalURL, rec.FinalURL)
	opt(ColScreenshot, evidence[ColScreenshot])
	opt(ColHTML, evidence[ColHTML])
	ts := ""
	if !rec.Timestamp.IsZero() {
		ts = rec.Timestamp.Format(TimestampLayout)
	}
	fields = append(fields, Field{ColTimestamp, ts})
	opt(ColPrice, rec.Price)
	fields = append(fields, Field{ColStatus, rec.Status.Display()})
	opt(ColDetail, rec.Detail)
	if rec.Attempts > 0 {
		fields = append(fields, Field{ColAttempts, strconv.Itoa(rec.Attempts)})
	}
	opt(ColDebugScreenshot, evidence[ColDebugScreenshot])
	opt(ColDebugHTML, evidence[ColDebugHTML])
	return fields
}
