package closing

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"time"

	"fechamento/internal/core"
	"fechamento/internal/report"
	"fechamento/internal/rules"
	"fechamento/internal/statement"
)

// HistoryStore persists a finished closing and its artifact bytes,
// returning the history entry that references them.
type HistoryStore interface {
	SaveClosing(ctx context.Context, r *core.ClosingReport, artifact []byte) (core.HistoryEntry, error)
}

// EventPublisher announces a persisted closing so the sync worker can
// pick it up. Optional: a nil publisher disables sync events.
type EventPublisher interface {
	PublishClosingSync(ctx context.Context, id, version int64) error
}

// Upload is one statement file as received from the form.
type Upload struct {
	Reader   io.Reader
	Filename string
}

// RunInput carries everything one closing run needs. Cash holds the
// period's manually kept cash book movements; they join the statement
// rows and are categorized like any other transaction.
type RunInput struct {
	Itau        Upload
	PagSeguro   Upload
	Cash        []core.Transaction
	Opening     core.Money
	PeriodLabel string
}

// RunResult is the outcome of a run. Artifact is always populated
// when the pipeline got far enough to build the workbook, even if
// history persistence failed afterwards, so the caller can still
// offer the download.
type RunResult struct {
	Report   *core.ClosingReport
	Artifact []byte
	Entry    core.HistoryEntry
}

// Runner executes closing runs against a fixed rule table and history
// store. Safe for reuse across runs; the presentation layer
// serializes calls.
type Runner struct {
	categorizer *rules.Categorizer
	store       HistoryStore
	publisher   EventPublisher
	now         func() time.Time
}

func NewRunner(categorizer *rules.Categorizer, store HistoryStore, publisher EventPublisher) *Runner {
	return &Runner{
		categorizer: categorizer,
		store:       store,
		publisher:   publisher,
		now:         time.Now,
	}
}

// Run executes the full pipeline for one period: parse → categorize →
// aggregate → build → persist. Parse failures abort with a
// *core.FormatError. History failures return the built RunResult
// together with a *core.StorageError so the artifact is not lost.
func (r *Runner) Run(ctx context.Context, in RunInput) (*RunResult, error) {
	if in.PeriodLabel == "" {
		return nil, core.ErrEmptyPeriodLabel
	}

	itauTxs, itauStats, err := statement.Parse(in.Itau.Reader, in.Itau.Filename, core.SourceItau)
	if err != nil {
		return nil, fmt.Errorf("parse Itaú statement: %w", err)
	}
	pagTxs, pagStats, err := statement.Parse(in.PagSeguro.Reader, in.PagSeguro.Filename, core.SourcePagSeguro)
	if err != nil {
		return nil, fmt.Errorf("parse PagSeguro statement: %w", err)
	}

	merged := make([]core.Transaction, 0, len(itauTxs)+len(pagTxs)+len(in.Cash))
	merged = append(merged, itauTxs...)
	merged = append(merged, pagTxs...)
	merged = append(merged, in.Cash...)

	entries := r.categorizer.Apply(merged)

	// Order by date; stable sort keeps the original file order as the
	// tie-break.
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Date.Before(entries[j].Date.Time)
	})

	summary := Aggregate(entries, in.Opening)

	rep := &core.ClosingReport{
		PeriodLabel: in.PeriodLabel,
		GeneratedAt: r.now(),
		Summary:     summary,
		Movements:   entries,
		SkippedRows: itauStats.Skipped + pagStats.Skipped,
		Warnings:    append(append([]string{}, itauStats.Warnings...), pagStats.Warnings...),
	}
	if err := rep.Validate(); err != nil {
		return nil, err
	}

	artifact, err := report.Build(rep)
	if err != nil {
		return nil, fmt.Errorf("build report workbook: %w", err)
	}

	result := &RunResult{Report: rep, Artifact: artifact}

	slog.InfoContext(ctx, "Closing run computed",
		"period", in.PeriodLabel,
		"movements", len(entries),
		"skipped_rows", rep.SkippedRows,
		"inflow_cents", summary.Inflow.Cents,
		"outflow_cents", summary.Outflow.Cents,
		"closing_cents", summary.Closing.Cents)

	entry, err := r.store.SaveClosing(ctx, rep, artifact)
	if err != nil {
		// The run's artifact survives a history failure; surface the
		// storage error alongside the result.
		return result, &core.StorageError{Op: "save closing", Err: err}
	}
	result.Entry = entry

	if r.publisher != nil {
		if err := r.publisher.PublishClosingSync(ctx, entry.ID, entry.Version); err != nil {
			// Best effort: the worker's startup check retries pending
			// closings, so a lost event is recoverable.
			slog.WarnContext(ctx, "Failed to publish closing sync event",
				"error", err, "id", entry.ID, "period", in.PeriodLabel)
		}
	}

	return result, nil
}
