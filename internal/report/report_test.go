package report

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/price-audit/internal/model"
)

var ts = time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)

func successRecord() model.AuditRecord {
	return model.AuditRecord{
		ProductID:    "1001",
		VendorDomain: "example-vendor.com",
		SearchQuery:  "Acme X1 site:example-vendor.com",
		Timestamp:    ts,
		Status:       model.StatusSuccess,
		FinalURL:     "https://example-vendor.com/p/x1",
		Price:        "$19.99",
		Attempts:     1,
		Evidence: []model.EvidenceArtifact{
			{Kind: model.ArtifactScreenshot, Path: "out/a.png"},
			{Kind: model.ArtifactMarkup, Path: "out/a.html"},
		},
	}
}

func noLinkRecord() model.AuditRecord {
	return model.AuditRecord{
		ProductID:    "1002",
		VendorDomain: "zoro.com",
		SearchQuery:  "Acme X2 site:zoro.com",
		Timestamp:    ts,
		Status:       model.StatusNoVendorLinkFound,
		Attempts:     1,
	}
}

func debugRecord() model.AuditRecord {
	rec := successRecord()
	rec.ProductID = "1003"
	rec.Evidence = append(rec.Evidence,
		model.EvidenceArtifact{Kind: model.ArtifactScreenshot, Label: "debug", Path: "out/d.png"},
		model.EvidenceArtifact{Kind: model.ArtifactMarkup, Label: "debug", Path: "out/d.html"},
	)
	return rec
}

func TestAggregator_UnionOfColumns(t *testing.T) {
	agg := NewAggregator()
	agg.Add(noLinkRecord())
	agg.Add(successRecord())
	agg.Add(debugRecord())

	r := agg.Report()
	want := []string{
		ColProductID, ColVendor, ColSearchQuery, ColTimestamp, ColStatus, ColAttempts,
		ColFinalURL, ColScreenshot, ColHTML, ColPrice,
		ColDebugScreenshot, ColDebugHTML,
	}
	if diff := cmp.Diff(want, r.Columns); diff != "" {
		t.Errorf("columns mismatch (-want +got):\n%s", diff)
	}
	require.Len(t, r.Rows, 3)
}

func TestReport_TableMissingCellsEmpty(t *testing.T) {
	agg := NewAggregator()
	agg.Add(successRecord())
	agg.Add(noLinkRecord())

	table := agg.Report().Table()
	want := [][]string{
		{ColProductID, ColVendor, ColSearchQuery, ColFinalURL, ColScreenshot, ColHTML, ColTimestamp, ColPrice, ColStatus, ColAttempts},
		{"1001", "example-vendor.com", "Acme X1 site:example-vendor.com", "https://example-vendor.com/p/x1", "out/a.png", "out/a.html", "2026-03-14 09:26:53", "$19.99", "Success", "1"},
		{"1002", "zoro.com", "Acme X2 site:zoro.com", "", "", "", "2026-03-14 09:26:53", "", "No Valid Vendor Link Found", "1"},
	}
	if diff := cmp.Diff(want, table); diff != "" {
		t.Errorf("table mismatch (-want +got):\n%s", diff)
	}
}

func TestAggregator_OrderIndependentRows(t *testing.T) {
	a, b := NewAggregator(), NewAggregator()
	a.Add(successRecord())
	a.Add(noLinkRecord())
	b.Add(noLinkRecord())
	b.Add(successRecord())

	byID := func(r Report) map[string]map[string]string {
		out := make(map[string]map[string]string)
		for _, row := range r.Rows {
			out[row[ColProductID]] = row
		}
		return out
	}
	if diff := cmp.Diff(byID(a.Report()), byID(b.Report())); diff != "" {
		t.Errorf("rows differ by arrival order (-a +b):\n%s", diff)
	}
}

func TestAggregator_ConcurrentAdd(t *testing.T) {
	agg := NewAggregator()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			agg.Add(successRecord())
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, agg.Len())
	s := agg.Summary()
	assert.Equal(t, 50, s.Total)
	assert.Equal(t, 50, s.Priced)
	assert.Equal(t, 50, s.ByStatus[model.StatusSuccess])
}

func TestFields_DetailAndUnhandled(t *testing.T) {
	rec := model.AuditRecord{
		ProductID: "9", VendorDomain: "v.com", Status: model.StatusUnhandledError,
		Detail: "panic: boom",
	}
	got := Fields(rec)
	want := []Field{
		{ColProductID, "9"},
		{ColVendor, "v.com"},
		{ColSearchQuery, ""},
		{ColTimestamp, ""},
		{ColStatus, "Error"},
		{ColDetail, "panic: boom"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("fields mismatch (-want +got):\n%s", diff)
	}
}

func TestReport_SnapshotIsolated(t *testing.T) {
	agg := NewAggregator()
	agg.Add(successRecord())
	r := agg.Report()
	r.Rows[0][ColPrice] = "changed"
	r.Columns[0] = "changed"

	again := agg.Report()
	assert.Equal(t, "$19.99", again.Rows[0][ColPrice])
	assert.Equal(t, ColProductID, again.Columns[0])
}

func TestWriteXLSX(t *testing.T) {
	agg := NewAggregator()
	agg.Add(successRecord())
	agg.Add(noLinkRecord())
	path := filepath.Join(t.TempDir(), "nested", "audit_log.xlsx")

	require.NoError(t, Write(path, agg.Report()))

	f, err := xlsx.OpenFile(path)
	require.NoError(t, err)
	sheet, ok := f.Sheet[SheetName]
	require.True(t, ok)
	require.Len(t, sheet.Rows, 3)

	var got [][]string
	for _, row := range sheet.Rows {
		var cells []string
		for _, c := range row.Cells {
			cells = append(cells, c.String())
		}
		got = append(got, cells)
	}
	assert.Equal(t, agg.Report().Table()[1], got[1])
	assert.Equal(t, ColProductID, got[0][0])
	assert.Equal(t, "No Valid Vendor Link Found", got[2][8])
}

func TestWriteCSV(t *testing.T) {
	agg := NewAggregator()
	agg.Add(successRecord())
	path := filepath.Join(t.TempDir(), "audit.csv")

	require.NoError(t, Write(path, agg.Report()))

	fh, err := os.Open(path)
	require.NoError(t, err)
	defer fh.Close()
	rows, err := csv.NewReader(fh).ReadAll()
	require.NoError(t, err)
	if diff := cmp.Diff(agg.Report().Table(), rows); diff != "" {
		t.Errorf("csv mismatch (-want +got):\n%s", diff)
	}
}

func TestWrite_UnsupportedExtension(t *testing.T) {
	err := Write(filepath.Join(t.TempDir(), "audit.json"), Report{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported format")
}
