// Package statement converts raw bank statement uploads into
// normalized transactions. Two source formats are supported: Itaú
// (signed Valor column or split Crédito/Débito columns) and PagSeguro
// (unsigned Entradas/Saídas columns). Both arrive as ;-delimited CSV
// or xlsx.
package statement

import (
	"fmt"
	"io"
	"strings"
	"time"

	"fechamento/internal/core"
)

// Date layouts accepted for statement rows, tried in order.
var dateLayouts = []string{"02/01/2006", "2006-01-02", "02/01/06"}

// Stats records what happened to the rows of one parsed file. Skipped
// counts only recoverable row-level failures (unreadable amount or
// date); formatting artifacts such as subtotal rows are dropped
// silently and not counted.
type Stats struct {
	TotalRows int
	Parsed    int
	Skipped   int
	Warnings  []string
}

func (s *Stats) warn(rowNum int, format string, args ...any) {
	s.Skipped++
	s.Warnings = append(s.Warnings, fmt.Sprintf("row %d: %s", rowNum, fmt.Sprintf(format, args...)))
}

// Rows skipped silently: running-balance artifacts Itaú injects
// between movements.
var balanceArtifacts = []string{"SALDO ANTERIOR", "SALDO DO DIA", "SALDO TOTAL", "SALDO FINAL"}

// Parse reads one statement upload and returns its normalized
// transactions in file order. A malformed file (unknown extension,
// missing required columns) returns a *core.FormatError and no
// transactions. Row-level failures skip the row with a recorded
// warning and the run proceeds.
func Parse(r io.Reader, filename string, source core.Source) ([]core.Transaction, *Stats, error) {
	if !source.Valid() {
		return nil, nil, core.ErrUnknownSource
	}

	t, err := readTable(r, filename, source)
	if err != nil {
		return nil, nil, err
	}
	sch, err := resolveSchema(t, source)
	if err != nil {
		return nil, nil, err
	}

	stats := &Stats{TotalRows: len(t.rows)}
	var txs []core.Transaction

	for i, row := range t.rows {
		rowNum := i + 1

		desc := sch.description(t, row)
		if desc == "" {
			continue // formatting artifact
		}
		if isBalanceArtifact(desc) {
			continue
		}

		amount, err := sch.amount(t, row, source)
		if err != nil {
			stats.warn(rowNum, "unreadable amount: %v", err)
			continue
		}
		if amount.IsZero() {
			continue // subtotal or placeholder row
		}

		date, err := parseDate(t.cellAt(row, sch.dateIdx))
		if err != nil {
			stats.warn(rowNum, "unreadable date %q", t.cellAt(row, sch.dateIdx))
			continue
		}

		txs = append(txs, core.Transaction{
			Date:        date,
			Description: desc,
			Amount:      amount,
			Source:      source,
			Account:     source.Account(),
		})
		stats.Parsed++
	}

	return txs, stats, nil
}

func isBalanceArtifact(desc string) bool {
	n := core.NormalizeText(desc)
	for _, artifact := range balanceArtifacts {
		if strings.Contains(n, artifact) {
			return true
		}
	}
	return false
}

func parseDate(s string) (core.Date, error) {
	s = strings.TrimSpace(s)
	// Excel cells sometimes render dates with a time suffix.
	if idx := strings.IndexByte(s, ' '); idx > 0 {
		s = s[:idx]
	}
	var lastErr error
	for _, layout := range dateLayouts {
		ts, err := time.Parse(layout, s)
		if err == nil {
			return core.NewDate(ts.Year(), int(ts.Month()), ts.Day()), nil
		}
		lastErr = err
	}
	return core.Date{}, lastErr
}
