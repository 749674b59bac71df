package catalog

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/price-audit/internal/model"
)

func createTestXLSX(t *testing.T, sheets map[string][][]string) string {
	t.Helper()
	f := xlsx.NewFile()
	for name, rows := range sheets {
		sheet, err := f.AddSheet(name)
		require.NoError(t, err)
		for _, rowData := range rows {
			row := sheet.AddRow()
			for _, cellData := range rowData {
				row.AddCell().SetString(cellData)
			}
		}
	}
	path := filepath.Join(t.TempDir(), "test.xlsx")
	require.NoError(t, f.Save(path))
	return path
}

func TestReadXLSX_SheetName(t *testing.T) {
	path := createTestXLSX(t, map[string][][]string{
		"First":  {{"a", "b"}},
		"Second": {{"x", "y"}, {"1", "2"}},
	})

	rows, err := ReadXLSX(path, Options{SheetName: "Second"})
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"x", "y"}, {"1", "2"}}, rows)

	_, err = ReadXLSX(path, Options{SheetName: "Missing"})
	assert.Error(t, err)
}

func TestReadXLSX_IndexOutOfRange(t *testing.T) {
	path := createTestXLSX(t, map[string][][]string{"Sheet1": {{"a"}}})
	_, err := ReadXLSX(path, Options{SheetIndex: 3})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "out of range")
}

func TestReadXLSX_MissingFile(t *testing.T) {
	_, err := ReadXLSX(filepath.Join(t.TempDir(), "nope.xlsx"), Options{})
	assert.Error(t, err)
}

func TestReadRecords(t *testing.T) {
	path := createTestXLSX(t, map[string][][]string{
		"Sheet1": {
			{" Item # ", "Brand"},
			{"1001", " Acme "},
			{"", ""},
			{"1002"},
		},
	})

	recs, lines, err := ReadRecords(path, Options{})
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, map[string]string{"Item #": "1001", "Brand": "Acme"}, recs[0])
	assert.Equal(t, "1002", recs[1]["Item #"])
	assert.Equal(t, []int{2, 4}, lines)
}

func TestProductIdentifier(t *testing.T) {
	tests := []struct {
		name string
		p    Product
		want string
		ok   bool
	}{
		{"valid", Product{Brand: "Acme", Model: "X1"}, "Acme X1", true},
		{"discontinued", Product{Brand: "Acme", Model: "X1", Notes: "Discontinued 2024"}, "", false},
		{"custom", Product{Brand: "Acme", Model: "X1", Notes: "CUSTOM order"}, "", false},
		{"no model", Product{Brand: "Acme"}, "", false},
		{"no brand", Product{Model: "X1"}, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := tt.p.Identifier()
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLoadProducts(t *testing.T) {
	path := createTestXLSX(t, map[string][][]string{
		"Products": {
			{"Item #", "Model #", "Brand", "Notes"},
			{"1001", "X1", "Acme Corp", ""},
			{"1002", "X2", "Acme Corp", "discontinued"},
			{"1003", "", "Acme Corp", ""},
			{"1004", "Z9", "Zed", "ships in 2 weeks"},
		},
	})

	products, err := LoadProducts(path, Options{})
	require.NoError(t, err)
	require.Len(t, products, 2)
	assert.Equal(t, Product{ItemID: "1001", Model: "X1", Brand: "Acme Corp"}, products[0])
	assert.Equal(t, "1004", products[1].ItemID)
}

func TestLoadVendors(t *testing.T) {
	path := createTestXLSX(t, map[string][][]string{
		"Sites": {
			{"Domain", "Enabled"},
			{"grainger.com", "TRUE"},
			{"zoro.com", "false"},
			{"", "true"},
			{"toolup.com", "1"},
			{"lowes.com", ""},
		},
	})

	vendors, err := LoadVendors(path, Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"grainger.com", "toolup.com"}, vendors)
}

func TestBuildTasks(t *testing.T) {
	products := []Product{
		{ItemID: "1001", Brand: "Acme Corp", Model: "Model X1"},
		{ItemID: "1002", Brand: "Acme", Model: "X2", Notes: "custom"},
		{ItemID: "1003", Brand: "Zed", Model: "Z9"},
	}
	tasks := BuildTasks(products, []string{"example-vendor.com", "zoro.com"})

	assert.Equal(t, []model.Task{
		{SearchQuery: "Acme Corp Model X1 site:example-vendor.com", ProductID: "1001", VendorDomain: "example-vendor.com"},
		{SearchQuery: "Acme Corp Model X1 site:zoro.com", ProductID: "1001", VendorDomain: "zoro.com"},
		{SearchQuery: "Zed Z9 site:example-vendor.com", ProductID: "1003", VendorDomain: "example-vendor.com"},
		{SearchQuery: "Zed Z9 site:zoro.com", ProductID: "1003", VendorDomain: "zoro.com"},
	}, tasks)
}

func TestBuildTasks_Empty(t *testing.T) {
	assert.Empty(t, BuildTasks(nil, []string{"v.com"}))
	assert.Empty(t, BuildTasks([]Product{{ItemID: "1", Brand: "a", Model: "b"}}, nil))
}

func TestReadCSV(t *testing.T) {
	in := "\ufeffItem #,Brand\n1001,\"Acme, Inc\"\n1002\n"
	rows, err := ReadCSV(strings.NewReader(in), Options{})
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"Item #", "Brand"}, rows[0])
	assert.Equal(t, "Acme, Inc", rows[1][1])
	assert.Equal(t, []string{"1002"}, rows[2])
}

func TestReadCSV_Delimiter(t *testing.T) {
	rows, err := ReadCSV(strings.NewReader("Domain;Enabled\nzoro.com;yes\n"), Options{Delimiter: ';'})
	require.NoError(t, err)
	assert.Equal(t, []string{"zoro.com", "yes"}, rows[1])
}

func TestReadRecords_CSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vendors.CSV")
	require.NoError(t, os.WriteFile(path, []byte("Domain,Enabled\ngrainger.com,yes\n,\nzoro.com,no\n"), 0o644))

	recs, lines, err := ReadRecords(path, Options{})
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "grainger.com", recs[0]["Domain"])
	assert.Equal(t, []int{2, 4}, lines)

	vendors, err := LoadVendors(path, Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"grainger.com"}, vendors)
}

func TestReadCSVFile_Missing(t *testing.T) {
	_, err := ReadCSVFile(filepath.Join(t.TempDir(), "nope.csv"), Options{})
	assert.Error(t, err)
}
