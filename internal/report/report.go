// Package report renders a ClosingReport as a three-sheet xlsx
// workbook: Summary, Categories and Movements.
package report

import (
	"fmt"

	"github.com/xuri/excelize/v2"

	"fechamento/internal/core"
)

const (
	SheetSummary    = "Summary"
	SheetCategories = "Categories"
	SheetMovements  = "Movements"
)

const dateLayout = "02/01/2006"

// currencyFmt renders money cells as Brazilian currency.
var currencyFmt = `"R$" #,##0.00;[Red]"R$" -#,##0.00`

// Build renders the workbook and returns its bytes. The three sheets
// are always present, even for an empty period.
func Build(r *core.ClosingReport) ([]byte, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}

	f := excelize.NewFile()
	defer f.Close()

	styles, err := newStyles(f)
	if err != nil {
		return nil, err
	}

	if err := f.SetSheetName("Sheet1", SheetSummary); err != nil {
		return nil, fmt.Errorf("rename summary sheet: %w", err)
	}
	if _, err := f.NewSheet(SheetCategories); err != nil {
		return nil, fmt.Errorf("add categories sheet: %w", err)
	}
	if _, err := f.NewSheet(SheetMovements); err != nil {
		return nil, fmt.Errorf("add movements sheet: %w", err)
	}

	if err := writeSummary(f, styles, r); err != nil {
		return nil, err
	}
	if err := writeCategories(f, styles, r); err != nil {
		return nil, err
	}
	if err := writeMovements(f, styles, r); err != nil {
		return nil, err
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("serialize workbook: %w", err)
	}
	return buf.Bytes(), nil
}

type styleSet struct {
	header int
	money  int
}

func newStyles(f *excelize.File) (*styleSet, error) {
	header, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"DDDDDD"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	if err != nil {
		return nil, fmt.Errorf("header style: %w", err)
	}
	money, err := f.NewStyle(&excelize.Style{CustomNumFmt: &currencyFmt})
	if err != nil {
		return nil, fmt.Errorf("money style: %w", err)
	}
	return &styleSet{header: header, money: money}, nil
}

func writeSummary(f *excelize.File, st *styleSet, r *core.ClosingReport) error {
	s := r.Summary
	type summaryRow struct {
		label string
		value any
		money bool
	}
	rows := []summaryRow{
		{"Period", r.PeriodLabel, false},
		{"Generated at", r.GeneratedAt.Format("02/01/2006 15:04:05"), false},
		{"Opening balance", s.Opening.Reais(), true},
		{"Total inflow", s.Inflow.Reais(), true},
		{"Total outflow", s.Outflow.Reais(), true},
		{"Net result", s.Net.Reais(), true},
		{"Closing balance", s.Closing.Reais(), true},
		{"Rows skipped", r.SkippedRows, false},
	}
	// Per-account blocks below the consolidated figures, one per
	// source even when it moved nothing.
	for _, src := range core.Sources() {
		acct := s.BySource[src]
		name := src.Account()
		rows = append(rows,
			summaryRow{name + " inflow", acct.Inflow.Reais(), true},
			summaryRow{name + " outflow", acct.Outflow.Reais(), true},
			summaryRow{name + " net", acct.Net.Reais(), true},
		)
	}

	if err := setRow(f, SheetSummary, 1, "Field", "Value"); err != nil {
		return err
	}
	for i, row := range rows {
		n := i + 2
		if err := setRow(f, SheetSummary, n, row.label, row.value); err != nil {
			return err
		}
		if row.money {
			cell, _ := excelize.CoordinatesToCellName(2, n)
			if err := f.SetCellStyle(SheetSummary, cell, cell, st.money); err != nil {
				return err
			}
		}
	}
	// Run warnings go below the figures so nothing is silently lost.
	next := len(rows) + 3
	for i, w := range r.Warnings {
		if err := setRow(f, SheetSummary, next+i, "Warning", w); err != nil {
			return err
		}
	}

	return finishSheet(f, st, SheetSummary, 2, []float64{18, 40})
}

func writeCategories(f *excelize.File, st *styleSet, r *core.ClosingReport) error {
	if err := setRow(f, SheetCategories, 1, "Category", "Total"); err != nil {
		return err
	}
	for i, c := range core.Categories() {
		n := i + 2
		if err := setRow(f, SheetCategories, n, string(c), r.Summary.ByCategory[c].Reais()); err != nil {
			return err
		}
		cell, _ := excelize.CoordinatesToCellName(2, n)
		if err := f.SetCellStyle(SheetCategories, cell, cell, st.money); err != nil {
			return err
		}
	}
	return finishSheet(f, st, SheetCategories, 2, []float64{24, 16})
}

func writeMovements(f *excelize.File, st *styleSet, r *core.ClosingReport) error {
	if err := setRow(f, SheetMovements, 1, "Date", "Description", "Amount", "Category", "Account"); err != nil {
		return err
	}
	for i, m := range r.Movements {
		n := i + 2
		if err := setRow(f, SheetMovements, n,
			m.Date.Format(dateLayout),
			m.Description,
			m.Amount.Reais(),
			string(m.Category),
			m.Account,
		); err != nil {
			return err
		}
		cell, _ := excelize.CoordinatesToCellName(3, n)
		if err := f.SetCellStyle(SheetMovements, cell, cell, st.money); err != nil {
			return err
		}
	}
	return finishSheet(f, st, SheetMovements, 5, []float64{12, 48, 14, 22, 12})
}

func setRow(f *excelize.File, sheet string, row int, values ...any) error {
	for col, v := range values {
		cell, err := excelize.CoordinatesToCellName(col+1, row)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, cell, v); err != nil {
			return fmt.Errorf("set %s!%s: %w", sheet, cell, err)
		}
	}
	return nil
}

// finishSheet styles the header row, freezes it and sets the column
// widths.
func finishSheet(f *excelize.File, st *styleSet, sheet string, cols int, widths []float64) error {
	last, _ := excelize.CoordinatesToCellName(cols, 1)
	if err := f.SetCellStyle(sheet, "A1", last, st.header); err != nil {
		return err
	}
	if err := f.SetPanes(sheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return err
	}
	for i, w := range widths {
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return err
		}
		if err := f.SetColWidth(sheet, col, col, w); err != nil {
			return err
		}
	}
	return nil
}
