package report

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

// SheetName is the worksheet the XLSX writer creates.
const SheetName = "Audit Log"

// Write writes the report to path, choosing the format from the extension
// (.xlsx or .csv). Parent directories are created.
func Write(path string, r Report) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return eris.Wrapf(err, "report: create dir %s", dir)
		}
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		return WriteXLSX(path, r)
	case ".csv":
		return WriteCSV(path, r)
	default:
		return eris.Errorf("report: unsupported format %q", filepath.Ext(path))
	}
}

// WriteXLSX writes the report as a single-sheet workbook.
func WriteXLSX(path string, r Report) error {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet(SheetName)
	if err != nil {
		return eris.Wrap(err, "report: add sheet")
	}

	for _, cells := range r.Table() {
		row := sheet.AddRow()
		for _, v := range cells {
			row.AddCell().SetString(v)
		}
	}

	if err := f.Save(path); err != nil {
		return eris.Wrapf(err, "report: save %s", path)
	}
	return nil
}

// WriteCSV writes the report as comma-separated values with a header row.
func WriteCSV(path string, r Report) error {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "report: create %s", path)
	}

	w := csv.NewWriter(f)
	if err := w.WriteAll(r.Table()); err != nil {
		_ = f.Close()
		return eris.Wrapf(err, "report: write %s", path)
	}
	if err := f.Close(); err != nil {
		return eris.Wrapf(err, "report: close %s", path)
	}
	return nil
}
