package excel

import (
	"fmt"
	"io"
	"math"
	"strconv"

	"goequity/domain/inequality"

	"github.com/xuri/excelize/v2"
)

// Workbook is the raw cell text of every sheet of an exported report
type Workbook struct {
	Sheets map[string][][]string
	Order  []string
}

// ReadWorkbook loads all sheets of an .xlsx stream as raw strings
func ReadWorkbook(r io.Reader) (*Workbook, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open Excel file: %w", err)
	}
	defer f.Close()

	wb := &Workbook{Sheets: make(map[string][][]string)}
	for _, name := range f.GetSheetList() {
		rows, err := f.GetRows(name, excelize.Options{RawCellValue: true})
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", name, err)
		}
		wb.Sheets[name] = rows
		wb.Order = append(wb.Order, name)
	}
	return wb, nil
}

// Field returns a value from the key/value Manifest sheet
func (w *Workbook) Field(key string) (string, bool) {
	for _, row := range w.Sheets[SheetManifest] {
		if len(row) >= 2 && row[0] == key {
			return row[1], true
		}
	}
	return "", false
}

// Summaries parses the Probabilistic sheet back into summary statistics
func (w *Workbook) Summaries() (map[inequality.OutputName]inequality.SummaryStatistic, error) {
	rows, ok := w.Sheets[SheetProbabilistic]
	if !ok {
		return nil, fmt.Errorf("workbook has no %s sheet", SheetProbabilistic)
	}
	if len(rows) < 1+inequality.NumOutputs {
		return nil, fmt.Errorf("%s sheet must have a header row and %d output rows", SheetProbabilistic, inequality.NumOutputs)
	}

	out := make(map[inequality.OutputName]inequality.SummaryStatistic, inequality.NumOutputs)
	for _, row := range rows[1 : 1+inequality.NumOutputs] {
		if len(row) < 6 {
			return nil, fmt.Errorf("short summary row %v", row)
		}
		var s inequality.SummaryStatistic
		var err error
		if s.Mean, err = parseCell(row[1]); err != nil {
			return nil, err
		}
		if s.Lower, err = parseCell(row[2]); err != nil {
			return nil, err
		}
		if s.Upper, err = parseCell(row[3]); err != nil {
			return nil, err
		}
		if s.StdDev, err = parseCell(row[4]); err != nil {
			return nil, err
		}
		if s.N, err = strconv.Atoi(row[5]); err != nil {
			return nil, fmt.Errorf("invalid n %q: %w", row[5], err)
		}
		out[inequality.OutputName(row[0])] = s
	}
	return out, nil
}

// parseCell is the inverse of cellValue
func parseCell(s string) (float64, error) {
	switch s {
	case "NaN":
		return math.NaN(), nil
	case "+Inf", "Inf":
		return math.Inf(1), nil
	case "-Inf":
		return math.Inf(-1), nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid number %q: %w", s, err)
	}
	return v, nil
}
