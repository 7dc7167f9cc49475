// File: internal/export/excel_test.go
package export_test

import (
	"bytes"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"tokgrab/internal/config"
	"tokgrab/internal/export"
	"tokgrab/internal/flatten"
)

func fixedClock() time.Time {
	return time.Date(2026, 8, 23, 14, 30, 5, 0, time.UTC)
}

func newExporter(t *testing.T) (*export.Exporter, string) {
	t.Helper()
	dir := t.TempDir()
	e := export.New(config.ExportConfig{OutputDir: dir}, zap.NewNop(),
		export.WithNow(fixedClock))
	return e, dir
}

func TestSaveWorkbook_PathLayout(t *testing.T) {
	e, dir := newExporter(t)

	path, err := e.SaveWorkbook(
		[]flatten.Row{{"id": "1", "desc": "hello"}},
		export.Metadata{Keyword: "golang tips", APIName: "search_general_preview", Method: "api_direct"},
		nil,
	)
	require.NoError(t, err)

	want := filepath.Join(dir, "2026-08-23", "search_general_preview_golang_tips_143005.xlsx")
	assert.Equal(t, want, path)
	assert.FileExists(t, path)
}

func TestSaveWorkbook_DataAndMetadataSheets(t *testing.T) {
	e, _ := newExporter(t)

	rows := []flatten.Row{
		{"id": "1", "desc": "first"},
		{"id": "2", "likes": 42},
	}
	path, err := e.SaveWorkbook(rows,
		export.Metadata{Keyword: "golang", APIName: "search", Method: "dom_elements", TotalCount: 7, PageTitle: "results"},
		[]string{`{"raw":true}`})
	require.NoError(t, err)

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	// Union of row keys, sorted: desc, id, likes.
	data, err := f.GetRows("data")
	require.NoError(t, err)
	require.NotEmpty(t, data)
	assert.Equal(t, []string{"desc", "id", "likes"}, data[0])
	require.Len(t, data, 3)
	assert.Equal(t, "first", data[1][0])
	assert.Equal(t, "2", data[2][1])

	meta, err := f.GetRows("metadata")
	require.NoError(t, err)
	entries := make(map[string]string, len(meta))
	for _, row := range meta {
		require.Len(t, row, 2)
		entries[row[0]] = row[1]
	}
	assert.Equal(t, "golang", entries["keyword"])
	assert.Equal(t, "dom_elements", entries["method"])
	assert.Equal(t, "2", entries["rows"])
	assert.Equal(t, "7", entries["total_count"])
	assert.Equal(t, "results", entries["page_title"])

	raw, err := f.GetRows("raw_json")
	require.NoError(t, err)
	require.Len(t, raw, 1)
	assert.Equal(t, `{"raw":true}`, raw[0][0])
}

func TestSaveWorkbook_SanitizesFilename(t *testing.T) {
	e, dir := newExporter(t)

	path, err := e.SaveWorkbook(
		[]flatten.Row{{"value": 1}},
		export.Metadata{Keyword: "编程/教程?", APIName: "search", Method: "api_direct"},
		nil,
	)
	require.NoError(t, err)
	assert.Equal(t, filepath.Dir(path), filepath.Join(dir, "2026-08-23"))
	assert.NotContains(t, filepath.Base(path), "/")
	assert.NotContains(t, filepath.Base(path), "?")
	// Non-ASCII keywords stay readable in the filename.
	assert.Contains(t, filepath.Base(path), "编程_教程")
}

func TestSaveWorkbook_DegradesToCSV(t *testing.T) {
	e, dir := newExporter(t)

	// Occupy the workbook path with a directory so SaveAs cannot write it.
	blocked := filepath.Join(dir, "2026-08-23", "search_golang_143005.xlsx")
	require.NoError(t, os.MkdirAll(blocked, 0o755))

	rows := []flatten.Row{
		{"id": "1", "desc": "first"},
		{"id": "2"},
	}
	path, err := e.SaveWorkbook(rows,
		export.Metadata{Keyword: "golang", APIName: "search", Method: "api_direct"},
		nil)
	require.NoError(t, err, "a failed workbook degrades, it does not fail the export")
	assert.Equal(t, filepath.Join(dir, "2026-08-23", "search_golang_143005.csv"), path)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.True(t, bytes.HasPrefix(raw, []byte{0xEF, 0xBB, 0xBF}), "CSV must start with a UTF-8 BOM")

	records, err := csv.NewReader(bytes.NewReader(bytes.TrimPrefix(raw, []byte{0xEF, 0xBB, 0xBF}))).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, []string{"desc", "id"}, records[0])
	assert.Equal(t, []string{"first", "1"}, records[1])
	assert.Equal(t, []string{"", "2"}, records[2], "missing columns become empty cells")
}

func TestSaveWorkbook_EmptyRows(t *testing.T) {
	e, _ := newExporter(t)

	path, err := e.SaveWorkbook(nil,
		export.Metadata{Keyword: "golang", APIName: "search", Method: "page_info"},
		nil)
	require.NoError(t, err)
	assert.FileExists(t, path)
}
