package excel

import (
	"context"
	"fmt"
	"io"
	"math"
	"strconv"

	"goequity/domain/inequality"
	"goequity/domain/run"
	"goequity/ports"

	"github.com/xuri/excelize/v2"
)

// Sheet names of an exported workbook
const (
	SheetManifest      = "Manifest"
	SheetBaseCase      = "BaseCase"
	SheetProbabilistic = "Probabilistic"
	SheetIterations    = "Iterations"
	SheetSkipped       = "Skipped"
)

// ReportWriter renders analyses as .xlsx workbooks
type ReportWriter struct{}

// NewReportWriter creates an Excel report writer
func NewReportWriter() ports.ReportWriter {
	return &ReportWriter{}
}

func (w *ReportWriter) ContentType() string {
	return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
}

func (w *ReportWriter) Extension() string { return ".xlsx" }

// Write builds the workbook in memory and streams it to out
func (w *ReportWriter) Write(ctx context.Context, record *run.Record, out io.Writer) error {
	if record == nil || record.Manifest == nil {
		return fmt.Errorf("record has no manifest")
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetManifest); err != nil {
		return fmt.Errorf("failed to rename sheet: %w", err)
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("failed to create style: %w", err)
	}
	sw := &sheetWriter{f: f, header: bold}

	sw.write(SheetManifest, manifestRows(record.Manifest))
	if record.BaseCase != nil {
		sw.add(SheetBaseCase)
		sw.write(SheetBaseCase, baseCaseRows(record.BaseCase))
	}
	if p := record.Probabilistic; p != nil {
		sw.add(SheetProbabilistic)
		sw.write(SheetProbabilistic, summaryRows(p))
		if len(p.Rows) > 0 {
			sw.add(SheetIterations)
			sw.write(SheetIterations, iterationRows(p.Rows))
		}
		if len(p.SkippedSamples) > 0 {
			sw.add(SheetSkipped)
			sw.write(SheetSkipped, skippedRows(p))
		}
	}
	if sw.err != nil {
		return sw.err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if _, err := f.WriteTo(out); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

// sheetWriter keeps the first error so the layout code stays linear
type sheetWriter struct {
	f      *excelize.File
	header int
	err    error
}

func (s *sheetWriter) add(sheet string) {
	if s.err != nil {
		return
	}
	if _, err := s.f.NewSheet(sheet); err != nil {
		s.err = fmt.Errorf("failed to add sheet %s: %w", sheet, err)
	}
}

// write places rows from A1 down; the first row is styled as a header
func (s *sheetWriter) write(sheet string, rows [][]interface{}) {
	for i, row := range rows {
		if s.err != nil {
			return
		}
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			s.err = err
			return
		}
		if err := s.f.SetSheetRow(sheet, cell, &row); err != nil {
			s.err = fmt.Errorf("failed to write %s!%s: %w", sheet, cell, err)
			return
		}
	}
	if s.err == nil && len(rows) > 0 {
		s.err = s.f.SetRowStyle(sheet, 1, 1, s.header)
	}
}

func manifestRows(m *run.RunManifest) [][]interface{} {
	return [][]interface{}{
		{"field", "value"},
		{"analysis_id", m.AnalysisID.String()},
		{"run_id", m.RunID.String()},
		{"kind", string(m.Kind)},
		{"fingerprint", m.Fingerprint.Fingerprint.String()},
		{"seed", strconv.FormatUint(m.Seed, 10)},
		{"code_version", m.CodeVersion},
		{"created_at", m.CreatedAt.Time().Format("2006-01-02T15:04:05Z07:00")},
		{"comparator_family", m.Comparator.Family.String()},
		{"intervention_family", m.Intervention.Family.String()},
		{"n_groups", m.Settings.NGroups},
		{"n_iterations", m.Settings.NIterations},
		{"confidence_level", m.Settings.ConfidenceLevel},
		{"failure_mode", m.Settings.FailureMode},
		{"zero_policy", m.Settings.ZeroPolicy},
	}
}

func baseCaseRows(b *inequality.BaseCaseReport) [][]interface{} {
	rows := [][]interface{}{{"output", "value"}}
	values := b.Result.Values()
	for i, name := range inequality.OutputNames {
		rows = append(rows, []interface{}{string(name), cellValue(values[i])})
	}

	rows = append(rows, []interface{}{}, []interface{}{"group", "comparator", "intervention"})
	for g := 0; g < b.NGroups && g < len(b.Comparator) && g < len(b.Intervention); g++ {
		rows = append(rows, []interface{}{g + 1, cellValue(b.Comparator[g]), cellValue(b.Intervention[g])})
	}
	return rows
}

func summaryRows(p *inequality.ProbabilisticReport) [][]interface{} {
	lowerLabel := "lower_" + percentLabel(100*(1-p.ConfidenceLevel)/2)
	upperLabel := "upper_" + percentLabel(100*(1+p.ConfidenceLevel)/2)
	rows := [][]interface{}{{"output", "mean", lowerLabel, upperLabel, "std_dev", "n"}}
	for _, name := range inequality.OutputNames {
		s, _ := p.Summary(name)
		rows = append(rows, []interface{}{
			string(name), cellValue(s.Mean), cellValue(s.Lower), cellValue(s.Upper), cellValue(s.StdDev), s.N,
		})
	}
	rows = append(rows,
		[]interface{}{},
		[]interface{}{"iterations", p.Iterations},
		[]interface{}{"successful", p.Successful},
		[]interface{}{"skipped", p.Skipped},
		[]interface{}{"base_seed", strconv.FormatUint(p.BaseSeed, 10)},
		[]interface{}{"duration_ms", p.DurationMs},
	)
	return rows
}

func iterationRows(results []inequality.IterationResult) [][]interface{} {
	header := []interface{}{"iteration", "seed"}
	for _, name := range inequality.OutputNames {
		header = append(header, string(name))
	}
	rows := [][]interface{}{header}
	for _, r := range results {
		row := []interface{}{r.Iteration, strconv.FormatUint(r.Seed, 10)}
		for _, v := range r.Result.Values() {
			row = append(row, cellValue(v))
		}
		rows = append(rows, row)
	}
	return rows
}

func skippedRows(p *inequality.ProbabilisticReport) [][]interface{} {
	rows := [][]interface{}{{"iteration", "kind", "message"}}
	for _, s := range p.SkippedSamples {
		rows = append(rows, []interface{}{s.Iteration, s.Kind, s.Message})
	}
	return rows
}

// percentLabel drops float noise such as 2.500000000000002
func percentLabel(v float64) string {
	return strconv.FormatFloat(math.Round(v*1e6)/1e6, 'f', -1, 64)
}

// cellValue keeps non-finite numbers out of numeric cells, which Excel
// cannot represent
func cellValue(v float64) interface{} {
	switch {
	case math.IsNaN(v):
		return "NaN"
	case math.IsInf(v, 1):
		return "+Inf"
	case math.IsInf(v, -1):
		return "-Inf"
	default:
		return v
	}
}
