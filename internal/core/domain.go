package core

import (
	"errors"
	"strings"
	"time"
)

// Source identifies which account a transaction belongs to: one of
// the two statement exports, or the manually kept cash book.
type Source string

const (
	SourceItau      Source = "itau"
	SourcePagSeguro Source = "pagseguro"
	SourceCaixa     Source = "caixa"
)

// Sources lists every account in report order.
func Sources() []Source {
	return []Source{SourceItau, SourcePagSeguro, SourceCaixa}
}

// Account returns the account identifier derived from the source.
func (s Source) Account() string {
	switch s {
	case SourceItau:
		return "Itaú"
	case SourcePagSeguro:
		return "PagSeguro"
	case SourceCaixa:
		return "Caixa"
	}
	return string(s)
}

// Valid reports whether the source is one of the known accounts.
func (s Source) Valid() bool {
	return s == SourceItau || s == SourcePagSeguro || s == SourceCaixa
}

// Date is a calendar date. The time-of-day portion is always midnight UTC.
type Date struct {
	time.Time
}

// NewDate creates a Date from year, month and day.
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

func (d Date) Validate() error {
	if d.IsZero() {
		return errors.New("date cannot be zero")
	}
	return nil
}

// Transaction is a normalized statement row. Immutable once parsed;
// the categorizer wraps it in a CategorizedTransaction rather than
// mutating it.
type Transaction struct {
	Date        Date
	Description string
	Amount      Money
	Source      Source
	Account     string
}

func (t Transaction) Validate() error {
	if err := t.Date.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(t.Description) == "" {
		return ErrEmptyDescription
	}
	if t.Amount.IsZero() {
		return ErrInvalidAmount
	}
	if !t.Source.Valid() {
		return ErrUnknownSource
	}
	return nil
}

// CategorizedTransaction is a Transaction with its assigned category.
// Exactly one category per transaction; unmatched descriptions fall
// into CategoryOther.
type CategorizedTransaction struct {
	Transaction
	Category Category
}

// AccountTotals holds the per-account slice of a period: what one
// source moved in, out, and on balance.
type AccountTotals struct {
	Inflow  Money
	Outflow Money
	Net     Money
}

// PeriodSummary holds the consolidated and per-account figures for one
// closing run. ByCategory and BySource always carry every fixed
// category and account, zero-valued entries included, so the report
// shape is stable across periods.
type PeriodSummary struct {
	Opening    Money
	Inflow     Money
	Outflow    Money
	Net        Money
	Closing    Money
	ByCategory map[Category]Money
	BySource   map[Source]AccountTotals
}

// ClosingReport is the full output artifact of one closing run.
type ClosingReport struct {
	PeriodLabel string
	GeneratedAt time.Time
	Summary     PeriodSummary
	Movements   []CategorizedTransaction
	SkippedRows int
	Warnings    []string
}

func (r *ClosingReport) Validate() error {
	if strings.TrimSpace(r.PeriodLabel) == "" {
		return ErrEmptyPeriodLabel
	}
	if r.GeneratedAt.IsZero() {
		return errors.New("generation timestamp cannot be zero")
	}
	return nil
}

// HistoryEntry references a previously persisted closing report.
type HistoryEntry struct {
	ID          int64
	PeriodLabel string
	Version     int64
	Path        string
	CreatedAt   time.Time
}
