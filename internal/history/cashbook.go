package history

import (
	"context"
	"fmt"
	"strings"
	"time"

	"fechamento/internal/core"
)

// CashEntry is one manually recorded cash movement ("livro-caixa").
// Cash has no bank statement, so its entries are typed in by hand and
// merged into the closing run of their period.
type CashEntry struct {
	ID          int64
	PeriodLabel string
	Date        core.Date
	Description string
	Amount      core.Money
	CreatedAt   time.Time
}

func (e CashEntry) Validate() error {
	if strings.TrimSpace(e.PeriodLabel) == "" {
		return core.ErrEmptyPeriodLabel
	}
	if err := e.Date.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(e.Description) == "" {
		return core.ErrEmptyDescription
	}
	if e.Amount.IsZero() {
		return core.ErrInvalidAmount
	}
	return nil
}

// Transaction converts the entry into a cash-account transaction so
// it can flow through the categorizer and aggregator like a statement
// row.
func (e CashEntry) Transaction() core.Transaction {
	return core.Transaction{
		Date:        e.Date,
		Description: e.Description,
		Amount:      e.Amount,
		Source:      core.SourceCaixa,
		Account:     core.SourceCaixa.Account(),
	}
}

// AddCashEntry appends one cash movement to its period's book.
func (s *Store) AddCashEntry(ctx context.Context, e CashEntry) (CashEntry, error) {
	if err := e.Validate(); err != nil {
		return CashEntry{}, err
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO cash_entries (period_label, entry_date, description, amount_cents)
		 VALUES (?, ?, ?, ?)`,
		e.PeriodLabel, e.Date.Time, e.Description, e.Amount.Cents)
	if err != nil {
		return CashEntry{}, fmt.Errorf("insert cash entry: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return CashEntry{}, fmt.Errorf("cash entry id: %w", err)
	}
	e.ID = id
	e.CreatedAt = time.Now().UTC()
	return e, nil
}

// ListCashEntries returns the cash book for one period in date order.
// An empty period label lists every entry, newest period first.
func (s *Store) ListCashEntries(ctx context.Context, periodLabel string) ([]CashEntry, error) {
	query := `SELECT id, period_label, entry_date, description, amount_cents, created_at
		FROM cash_entries`
	args := []any{}
	if periodLabel != "" {
		query += ` WHERE period_label = ? ORDER BY entry_date ASC, id ASC`
		args = append(args, periodLabel)
	} else {
		query += ` ORDER BY period_label DESC, entry_date ASC, id ASC`
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list cash entries: %w", err)
	}
	defer rows.Close()

	var out []CashEntry
	for rows.Next() {
		var e CashEntry
		if err := rows.Scan(&e.ID, &e.PeriodLabel, &e.Date.Time, &e.Description, &e.Amount.Cents, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan cash entry: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cash entries: %w", err)
	}
	return out, nil
}

// DeleteCashEntry removes one cash movement.
func (s *Store) DeleteCashEntry(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM cash_entries WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete cash entry %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete cash entry %d: %w", id, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
