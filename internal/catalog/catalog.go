// Package catalog loads the product catalog and approved vendor list and
// expands them into audit tasks.
package catalog

import (
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/price-audit/internal/model"
)

// Catalog and vendor sheet headers.
const (
	HeaderItem    = "Item #"
	HeaderModel   = "Model #"
	HeaderBrand   = "Brand"
	HeaderNotes   = "Notes"
	HeaderDomain  = "Domain"
	HeaderEnabled = "Enabled"
)

// Product is one catalog row.
type Product struct {
	ItemID string
	Model  string
	Brand  string
	Notes  string
}

// Identifier returns the "<brand> <model>" search term, or false when the
// row should not be audited.
func (p Product) Identifier() (string, bool) {
	notes := strings.ToLower(p.Notes)
	if strings.Contains(notes, "discontinued") || strings.Contains(notes, "custom") {
		return "", false
	}
	if p.Model == "" || p.Brand == "" {
		return "", false
	}
	return p.Brand + " " + p.Model, true
}

// LoadProducts reads the catalog workbook. Rows that cannot be audited are
// logged and skipped.
func LoadProducts(path string, opts Options) ([]Product, error) {
	recs, lines, err := ReadRecords(path, opts)
	if err != nil {
		return nil, err
	}

	var out []Product
	for i, r := range recs {
		p := Product{
			ItemID: r[HeaderItem],
			Model:  r[HeaderModel],
			Brand:  r[HeaderBrand],
			Notes:  r[HeaderNotes],
		}
		if _, ok := p.Identifier(); !ok {
			reason := p.Notes
			if reason == "" {
				reason = "missing brand or model"
			}
			zap.L().Info("catalog: skipping row", zap.Int("row", lines[i]), zap.String("reason", reason))
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

// LoadVendors reads the approved vendor workbook and returns the enabled
// domains in sheet order.
func LoadVendors(path string, opts Options) ([]string, error) {
	recs, _, err := ReadRecords(path, opts)
	if err != nil {
		return nil, err
	}

	var out []string
	for _, r := range recs {
		d := r[HeaderDomain]
		if d == "" || !truthy(r[HeaderEnabled]) {
			continue
		}
		out = append(out, d)
	}
	return out, nil
}

func truthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "true", "1", "yes", "y", "x":
		return true
	}
	return false
}

// BuildTasks crosses products with vendors, products outermost.
func BuildTasks(products []Product, vendors []string) []model.Task {
	tasks := make([]model.Task, 0, len(products)*len(vendors))
	for _, p := range products {
		id, ok := p.Identifier()
		if !ok {
			continue
		}
		for _, v := range vendors {
			tasks = append(tasks, model.Task{
				SearchQuery:  id + " site:" + v,
				ProductID:    p.ItemID,
				VendorDomain: v,
			})
		}
	}
	return tasks
}
