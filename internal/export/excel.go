// File: internal/export/excel.go
//
// Package export writes flattened rows to an Excel workbook, with a CSV
// fallback when the workbook cannot be written. One file per keyword per
// run, grouped under a per-date directory.
package export

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"time"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"tokgrab/internal/config"
	"tokgrab/internal/flatten"
)

const (
	dataSheet  = "data"
	metaSheet  = "metadata"
	rawSheet   = "raw_json"
	maxColChar = 50
)

// unsafeFilenameChars is anything outside letters, digits, and the portable
// punctuation set. Unicode-aware so non-ASCII keywords survive in filenames.
var unsafeFilenameChars = regexp.MustCompile(`[^\p{L}\p{N}_.-]+`)

// Metadata describes one crawl run, written to its own sheet.
type Metadata struct {
	Keyword     string
	APIName     string
	Method      string
	RecordCount int
	TotalCount  int
	PageURL     string
	PageTitle   string
}

// Exporter owns the output directory layout.
type Exporter struct {
	cfg    config.ExportConfig
	logger *zap.Logger
	now    func() time.Time
}

// Option customizes an Exporter.
type Option func(*Exporter)

// WithNow replaces the clock used in paths, used by tests.
func WithNow(fn func() time.Time) Option {
	return func(e *Exporter) { e.now = fn }
}

// New creates an Exporter.
func New(cfg config.ExportConfig, logger *zap.Logger, opts ...Option) *Exporter {
	e := &Exporter{cfg: cfg, logger: logger.Named("export"), now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// SaveWorkbook writes rows plus run metadata to
// <output>/<yyyy-mm-dd>/<api>_<keyword>_<hhmmss>.xlsx and returns the path.
// When the workbook write fails it degrades to a CSV file next to where the
// workbook would have been.
func (e *Exporter) SaveWorkbook(rows []flatten.Row, meta Metadata, rawJSON []string) (string, error) {
	now := e.now()
	dir := filepath.Join(e.cfg.OutputDir, now.Format("2006-01-02"))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	base := fmt.Sprintf("%s_%s_%s",
		sanitize(meta.APIName), sanitize(meta.Keyword), now.Format("150405"))
	path := filepath.Join(dir, base+".xlsx")

	columns := unionColumns(rows)
	if err := e.writeWorkbook(path, columns, rows, meta, rawJSON); err != nil {
		e.logger.Warn("Workbook write failed, degrading to CSV", zap.Error(err))
		csvPath := filepath.Join(dir, base+".csv")
		if csvErr := writeCSV(csvPath, columns, rows); csvErr != nil {
			return "", fmt.Errorf("workbook failed (%v) and CSV fallback failed: %w", err, csvErr)
		}
		return csvPath, nil
	}

	e.logger.Info("Export complete",
		zap.String("path", path),
		zap.Int("rows", len(rows)),
		zap.Int("columns", len(columns)))
	return path, nil
}

func (e *Exporter) writeWorkbook(path string, columns []string, rows []flatten.Row, meta Metadata, rawJSON []string) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), dataSheet); err != nil {
		return err
	}

	for i, col := range columns {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(dataSheet, cell, col); err != nil {
			return err
		}
	}
	for r, row := range rows {
		for c, col := range columns {
			value, ok := row[col]
			if !ok {
				continue
			}
			cell, err := excelize.CoordinatesToCellName(c+1, r+2)
			if err != nil {
				return err
			}
			if err := f.SetCellValue(dataSheet, cell, cellValue(value)); err != nil {
				return err
			}
		}
	}
	e.sizeColumns(f, columns, rows)

	if err := e.writeMetadata(f, meta, len(rows)); err != nil {
		return err
	}
	if len(rawJSON) > 0 {
		if err := writeRawJSON(f, rawJSON); err != nil {
			return err
		}
	}
	return f.SaveAs(path)
}

func (e *Exporter) writeMetadata(f *excelize.File, meta Metadata, rowCount int) error {
	if _, err := f.NewSheet(metaSheet); err != nil {
		return err
	}
	entries := [][2]any{
		{"exported_at", e.now().Format(time.RFC3339)},
		{"keyword", meta.Keyword},
		{"api", meta.APIName},
		{"method", meta.Method},
		{"rows", rowCount},
		{"records", meta.RecordCount},
	}
	if meta.TotalCount > 0 {
		entries = append(entries, [2]any{"total_count", meta.TotalCount})
	}
	if meta.PageURL != "" {
		entries = append(entries, [2]any{"page_url", meta.PageURL})
	}
	if meta.PageTitle != "" {
		entries = append(entries, [2]any{"page_title", meta.PageTitle})
	}
	for i, entry := range entries {
		keyCell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		valCell, err := excelize.CoordinatesToCellName(2, i+1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(metaSheet, keyCell, entry[0]); err != nil {
			return err
		}
		if err := f.SetCellValue(metaSheet, valCell, entry[1]); err != nil {
			return err
		}
	}
	return nil
}

func writeRawJSON(f *excelize.File, rawJSON []string) error {
	if _, err := f.NewSheet(rawSheet); err != nil {
		return err
	}
	for i, raw := range rawJSON {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		// Excel caps cell content; truncate rather than fail the export.
		if len(raw) > 32000 {
			raw = raw[:32000]
		}
		if err := f.SetCellValue(rawSheet, cell, raw); err != nil {
			return err
		}
	}
	return nil
}

// sizeColumns widens each column to its longest value, capped so a raw blob
// cannot blow up the layout.
func (e *Exporter) sizeColumns(f *excelize.File, columns []string, rows []flatten.Row) {
	for i, col := range columns {
		width := len(col)
		for _, row := range rows {
			if v, ok := row[col]; ok {
				if l := len(fmt.Sprintf("%v", v)); l > width {
					width = l
				}
			}
		}
		if width > maxColChar {
			width = maxColChar
		}
		name, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			continue
		}
		_ = f.SetColWidth(dataSheet, name, name, float64(width+2))
	}
}

func writeCSV(path string, columns []string, rows []flatten.Row) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	// UTF-8 BOM so spreadsheet apps detect the encoding.
	if _, err := file.Write([]byte{0xEF, 0xBB, 0xBF}); err != nil {
		return err
	}

	w := csv.NewWriter(file)
	if err := w.Write(columns); err != nil {
		return err
	}
	record := make([]string, len(columns))
	for _, row := range rows {
		for i, col := range columns {
			if v, ok := row[col]; ok {
				record[i] = fmt.Sprintf("%v", v)
			} else {
				record[i] = ""
			}
		}
		if err := w.Write(record); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

// unionColumns collects every key appearing in any row, sorted for a stable
// sheet layout.
func unionColumns(rows []flatten.Row) []string {
	set := make(map[string]bool)
	for _, row := range rows {
		for k := range row {
			set[k] = true
		}
	}
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// cellValue lowers values excelize cannot store natively to strings.
func cellValue(v any) any {
	switch v.(type) {
	case nil:
		return ""
	case string, bool, int, int64, float64:
		return v
	default:
		return fmt.Sprintf("%v", v)
	}
}

func sanitize(s string) string {
	s = unsafeFilenameChars.ReplaceAllString(s, "_")
	if s == "" {
		return "untitled"
	}
	return s
}
