package statement

import (
	"strings"

	"fechamento/internal/core"
)

// schema maps the known column layout of one source onto column
// indexes of the uploaded table. Columns beyond the known layout are
// ignored; a missing required column is a FormatError.
type schema struct {
	dateIdx int
	descIdx []int

	// Itaú: either a single signed amount column, or split
	// credit/debit columns that must be unified into one sign.
	amountIdx int
	creditIdx int
	debitIdx  int

	// PagSeguro: unsigned inflow/outflow columns.
	inflowIdx  int
	outflowIdx int
}

func resolveSchema(t *table, source core.Source) (*schema, error) {
	s := &schema{
		dateIdx:    -1,
		amountIdx:  -1,
		creditIdx:  -1,
		debitIdx:   -1,
		inflowIdx:  -1,
		outflowIdx: -1,
	}

	for i, name := range t.header {
		n := core.NormalizeText(name)
		switch {
		case n == "DATA":
			s.dateIdx = i
		case strings.Contains(n, "HIST"), strings.Contains(n, "DESCR"), strings.Contains(n, "LANCAMENTO"):
			s.descIdx = append(s.descIdx, i)
		case strings.Contains(n, "CREDITO"):
			s.creditIdx = i
		case strings.Contains(n, "DEBITO"):
			s.debitIdx = i
		case strings.Contains(n, "ENTRADA"):
			s.inflowIdx = i
		case strings.Contains(n, "SAIDA"):
			s.outflowIdx = i
		case strings.Contains(n, "VALOR") && !strings.Contains(n, "SALDO"):
			s.amountIdx = i
		}
	}

	if s.dateIdx == -1 {
		return nil, &core.FormatError{Source: source, Reason: "missing date column (Data)"}
	}
	if len(s.descIdx) == 0 {
		return nil, &core.FormatError{Source: source, Reason: "missing description column (Lançamento/Histórico/Descrição)"}
	}

	switch source {
	case core.SourceItau:
		if s.amountIdx == -1 && (s.creditIdx == -1 || s.debitIdx == -1) {
			return nil, &core.FormatError{Source: source, Reason: "missing amount column (Valor or Crédito/Débito pair)"}
		}
	case core.SourcePagSeguro:
		if s.inflowIdx == -1 || s.outflowIdx == -1 {
			return nil, &core.FormatError{Source: source, Reason: "missing amount columns (Entradas/Saídas)"}
		}
	default:
		return nil, &core.FormatError{Source: source, Reason: "unknown source format"}
	}
	return s, nil
}

// description assembles the row descriptor from every matched
// descriptor column, joined with " | " in column order.
func (s *schema) description(t *table, row []string) string {
	var parts []string
	for _, idx := range s.descIdx {
		if v := t.cellAt(row, idx); v != "" {
			parts = append(parts, v)
		}
	}
	return strings.Join(parts, " | ")
}

// amount unifies the source-specific amount columns into one signed
// value. Itaú statements carry either a signed Valor column or split
// Crédito/Débito columns; PagSeguro carries unsigned Entradas/Saídas.
func (s *schema) amount(t *table, row []string, source core.Source) (core.Money, error) {
	if source == core.SourcePagSeguro {
		inflow, err := core.ParseBRL(t.cellAt(row, s.inflowIdx))
		if err != nil {
			return core.Money{}, err
		}
		outflow, err := core.ParseBRL(t.cellAt(row, s.outflowIdx))
		if err != nil {
			return core.Money{}, err
		}
		return core.Money{Cents: abs(inflow.Cents) - abs(outflow.Cents)}, nil
	}

	if s.amountIdx != -1 {
		v, err := core.ParseBRL(t.cellAt(row, s.amountIdx))
		if err != nil {
			return core.Money{}, err
		}
		if !v.IsZero() || s.creditIdx == -1 || s.debitIdx == -1 {
			return v, nil
		}
		// Fall through: some Itaú exports leave Valor blank and fill
		// the split columns instead.
	}

	credit, err := core.ParseBRL(t.cellAt(row, s.creditIdx))
	if err != nil {
		return core.Money{}, err
	}
	debit, err := core.ParseBRL(t.cellAt(row, s.debitIdx))
	if err != nil {
		return core.Money{}, err
	}
	return core.Money{Cents: abs(credit.Cents) - abs(debit.Cents)}, nil
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
