package catalog

import (
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

// Options selects the worksheet of a workbook or the dialect of a
// delimited file.
type Options struct {
	SheetIndex int    // default 0
	SheetName  string // if set, overrides SheetIndex
	Delimiter  rune   // CSV only, default ','
}

// ReadXLSX reads a worksheet and returns all rows as string slices.
func ReadXLSX(path string, opts Options) ([][]string, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "catalog: open %s", path)
	}

	sheet, err := getSheet(f, opts)
	if err != nil {
		return nil, err
	}

	rows := make([][]string, 0, len(sheet.Rows))
	for _, row := range sheet.Rows {
		if row == nil {
			continue
		}
		rows = append(rows, rowToStrings(row))
	}
	return rows, nil
}

// ReadRecords reads a table whose first row is a header and returns one
// map per data row keyed by trimmed header text. Files ending in .csv are
// read as delimited text, everything else as a workbook. Fully blank rows
// are dropped. The returned line numbers are 1-based rows.
func ReadRecords(path string, opts Options) ([]map[string]string, []int, error) {
	var (
		rows [][]string
		err  error
	)
	if strings.EqualFold(filepath.Ext(path), ".csv") {
		rows, err = ReadCSVFile(path, opts)
	} else {
		rows, err = ReadXLSX(path, opts)
	}
	if err != nil {
		return nil, nil, err
	}
	if len(rows) == 0 {
		return nil, nil, eris.Errorf("catalog: %s has no header row", path)
	}

	header := make([]string, len(rows[0]))
	for i, h := range rows[0] {
		header[i] = strings.TrimSpace(h)
	}

	var (
		records []map[string]string
		lines   []int
	)
	for i, row := range rows[1:] {
		rec := make(map[string]string, len(header))
		blank := true
		for j, h := range header {
			if h == "" || j >= len(row) {
				continue
			}
			v := strings.TrimSpace(row[j])
			rec[h] = v
			if v != "" {
				blank = false
			}
		}
		if blank {
			continue
		}
		records = append(records, rec)
		lines = append(lines, i+2)
	}
	return records, lines, nil
}

func getSheet(f *xlsx.File, opts Options) (*xlsx.Sheet, error) {
	if opts.SheetName != "" {
		sheet, ok := f.Sheet[opts.SheetName]
		if !ok {
			return nil, eris.Errorf("catalog: sheet %q not found", opts.SheetName)
		}
		return sheet, nil
	}

	if opts.SheetIndex >= len(f.Sheets) {
		return nil, eris.Errorf("catalog: sheet index %d out of range (file has %d sheets)", opts.SheetIndex, len(f.Sheets))
	}
	return f.Sheets[opts.SheetIndex], nil
}

func rowToStrings(row *xlsx.Row) []string {
	cells := make([]string, len(row.Cells))
	for j, cell := range row.Cells {
		if cell == nil {
			continue
		}
		cells[j] = cell.String()
	}
	return cells
}
