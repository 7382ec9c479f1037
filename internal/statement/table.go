package statement

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"fechamento/internal/core"
)

// table is the raw grid read from an upload before any schema is
// applied. Rows may be ragged; cell access goes through cellAt.
type table struct {
	header []string
	rows   [][]string
}

func (t *table) cellAt(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

// readTable loads a ;-delimited CSV or an xlsx workbook into a table.
// The format is chosen by file extension, matching what the upload
// form accepts.
func readTable(r io.Reader, filename string, source core.Source) (*table, error) {
	switch ext := strings.ToLower(filepath.Ext(filename)); ext {
	case ".csv", ".txt":
		return readCSV(r, source)
	case ".xlsx":
		return readXLSX(r, source)
	case ".xls":
		// excelize only reads the OOXML container; the legacy OLE2
		// format needs a re-export.
		return nil, &core.FormatError{Source: source, Reason: "legacy .xls workbooks are not supported; re-export the statement as .xlsx or .csv"}
	default:
		return nil, &core.FormatError{Source: source, Reason: fmt.Sprintf("unsupported file extension %q (use .csv or .xlsx)", ext)}
	}
}

func readCSV(r io.Reader, source core.Source) (*table, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, &core.FormatError{Source: source, Reason: "unreadable file: " + err.Error()}
	}
	// Bank exports often carry a UTF-8 BOM.
	data = bytes.TrimPrefix(data, []byte{0xEF, 0xBB, 0xBF})

	reader := csv.NewReader(bytes.NewReader(data))
	reader.Comma = ';'
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, &core.FormatError{Source: source, Reason: "invalid CSV: " + err.Error()}
	}
	return tableFromRecords(records, source)
}

func readXLSX(r io.Reader, source core.Source) (*table, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, &core.FormatError{Source: source, Reason: "invalid spreadsheet: " + err.Error()}
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, &core.FormatError{Source: source, Reason: "spreadsheet has no sheets"}
	}
	records, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, &core.FormatError{Source: source, Reason: "read sheet: " + err.Error()}
	}
	return tableFromRecords(records, source)
}

// tableFromRecords locates the header row and splits it from the data
// rows. Bank spreadsheets frequently carry a title block above the
// actual header, so the header is sniffed: the first row containing a
// DATA column plus one of the known descriptor or amount columns.
func tableFromRecords(records [][]string, source core.Source) (*table, error) {
	headerIdx := -1
	for i, rec := range records {
		if isHeaderRow(rec) {
			headerIdx = i
			break
		}
	}
	if headerIdx == -1 {
		return nil, &core.FormatError{Source: source, Reason: "no header row found (expected a DATA column)"}
	}

	header := make([]string, len(records[headerIdx]))
	for i, h := range records[headerIdx] {
		header[i] = strings.TrimSpace(h)
	}

	var rows [][]string
	for _, rec := range records[headerIdx+1:] {
		if emptyRow(rec) {
			continue
		}
		rows = append(rows, rec)
	}
	return &table{header: header, rows: rows}, nil
}

func isHeaderRow(rec []string) bool {
	hasDate := false
	hasCompanion := false
	for _, cell := range rec {
		switch n := core.NormalizeText(cell); {
		case n == "DATA":
			hasDate = true
		case strings.Contains(n, "LANCAMENTO"),
			strings.Contains(n, "DESCRICAO"),
			strings.Contains(n, "HISTORICO"),
			strings.Contains(n, "VALOR"),
			strings.Contains(n, "ENTRADA"):
			hasCompanion = true
		}
	}
	return hasDate && hasCompanion
}

func emptyRow(rec []string) bool {
	for _, cell := range rec {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
