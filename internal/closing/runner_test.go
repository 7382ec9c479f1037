package closing

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"fechamento/internal/core"
	"fechamento/internal/rules"
)

type fakeStore struct {
	saved  []*core.ClosingReport
	nextID int64
	err    error
}

func (f *fakeStore) SaveClosing(_ context.Context, r *core.ClosingReport, artifact []byte) (core.HistoryEntry, error) {
	if f.err != nil {
		return core.HistoryEntry{}, f.err
	}
	f.nextID++
	f.saved = append(f.saved, r)
	return core.HistoryEntry{
		ID:          f.nextID,
		PeriodLabel: r.PeriodLabel,
		Version:     1,
		Path:        "reports/test.xlsx",
		CreatedAt:   time.Now(),
	}, nil
}

type fakePublisher struct {
	published [][2]int64
	err       error
}

func (f *fakePublisher) PublishClosingSync(_ context.Context, id, version int64) error {
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, [2]int64{id, version})
	return nil
}

const itauCSV = "Data;Lançamento;Valor\n01/05/2024;PAGAMENTO FORNECEDOR X;-500,00\n"
const pagCSV = "Data;Descrição;Entradas;Saídas\n02/05/2024;VENDA CARTAO;1.200,00;\n"

func runInput() RunInput {
	return RunInput{
		Itau:        Upload{Reader: strings.NewReader(itauCSV), Filename: "itau.csv"},
		PagSeguro:   Upload{Reader: strings.NewReader(pagCSV), Filename: "pagseguro.csv"},
		Opening:     core.Money{Cents: 100000},
		PeriodLabel: "2024-05",
	}
}

func TestRunScenario(t *testing.T) {
	store := &fakeStore{}
	pub := &fakePublisher{}
	r := NewRunner(rules.Default(), store, pub)

	res, err := r.Run(context.Background(), runInput())
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	s := res.Report.Summary
	if s.Inflow.Cents != 120000 {
		t.Fatalf("inflow = %d, want 120000", s.Inflow.Cents)
	}
	if s.Outflow.Cents != -50000 {
		t.Fatalf("outflow = %d, want -50000", s.Outflow.Cents)
	}
	if s.Net.Cents != 70000 {
		t.Fatalf("net = %d, want 70000", s.Net.Cents)
	}
	if s.Closing.Cents != 170000 {
		t.Fatalf("closing = %d, want 170000", s.Closing.Cents)
	}
	if s.ByCategory[core.CategorySuppliers].Cents != -50000 {
		t.Fatalf("suppliers = %d, want -50000", s.ByCategory[core.CategorySuppliers].Cents)
	}
	if s.ByCategory[core.CategorySales].Cents != 120000 {
		t.Fatalf("sales = %d, want 120000", s.ByCategory[core.CategorySales].Cents)
	}
	for _, c := range core.Categories() {
		if c == core.CategorySales || c == core.CategorySuppliers {
			continue
		}
		if !s.ByCategory[c].IsZero() {
			t.Fatalf("category %q should be zero, got %d", c, s.ByCategory[c].Cents)
		}
	}

	itau := s.BySource[core.SourceItau]
	if !itau.Inflow.IsZero() || itau.Outflow.Cents != -50000 || itau.Net.Cents != -50000 {
		t.Fatalf("itaú account totals = %+v", itau)
	}
	pag := s.BySource[core.SourcePagSeguro]
	if pag.Inflow.Cents != 120000 || !pag.Outflow.IsZero() || pag.Net.Cents != 120000 {
		t.Fatalf("pagseguro account totals = %+v", pag)
	}

	if len(res.Artifact) == 0 {
		t.Fatal("artifact bytes missing")
	}
	if len(store.saved) != 1 {
		t.Fatalf("expected 1 persisted closing, got %d", len(store.saved))
	}
	if len(pub.published) != 1 || pub.published[0][0] != res.Entry.ID {
		t.Fatalf("expected one sync event for the new entry, got %v", pub.published)
	}
}

func TestRunSortsMovementsByDateThenFileOrder(t *testing.T) {
	itau := "Data;Lançamento;Valor\n" +
		"03/05/2024;TERCEIRO;-1,00\n" +
		"01/05/2024;PRIMEIRO;-2,00\n"
	pag := "Data;Descrição;Entradas;Saídas\n" +
		"01/05/2024;SEGUNDO;5,00;\n"

	r := NewRunner(rules.Default(), &fakeStore{}, nil)
	res, err := r.Run(context.Background(), RunInput{
		Itau:        Upload{Reader: strings.NewReader(itau), Filename: "itau.csv"},
		PagSeguro:   Upload{Reader: strings.NewReader(pag), Filename: "pag.csv"},
		PeriodLabel: "2024-05",
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	var got []string
	for _, m := range res.Report.Movements {
		got = append(got, m.Description)
	}
	// Same date keeps source file order: the Itaú row precedes the
	// PagSeguro row because Itaú is merged first.
	want := []string{"PRIMEIRO", "SEGUNDO", "TERCEIRO"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("movement order = %v, want %v", got, want)
	}
}

func TestRunMergesCashBook(t *testing.T) {
	in := runInput()
	in.Cash = []core.Transaction{{
		Date:        core.NewDate(2024, 5, 15),
		Description: "VENDA NO BALCAO EM DINHEIRO",
		Amount:      core.Money{Cents: 5000},
		Source:      core.SourceCaixa,
		Account:     core.SourceCaixa.Account(),
	}}

	r := NewRunner(rules.Default(), &fakeStore{}, nil)
	res, err := r.Run(context.Background(), in)
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	s := res.Report.Summary
	if s.Inflow.Cents != 125000 {
		t.Fatalf("inflow = %d, want statements plus cash", s.Inflow.Cents)
	}
	caixa := s.BySource[core.SourceCaixa]
	if caixa.Inflow.Cents != 5000 || caixa.Net.Cents != 5000 {
		t.Fatalf("caixa account totals = %+v", caixa)
	}

	found := false
	for _, m := range res.Report.Movements {
		if m.Source == core.SourceCaixa {
			found = true
			if m.Category != core.CategorySales {
				t.Fatalf("cash sale categorized as %q", m.Category)
			}
		}
	}
	if !found {
		t.Fatal("cash movement missing from report")
	}
}

func TestRunCountsSkippedRows(t *testing.T) {
	itau := "Data;Lançamento;Valor\n" +
		"01/05/2024;QUEBRADO;abc\n" +
		"02/05/2024;OK;-10,00\n"

	r := NewRunner(rules.Default(), &fakeStore{}, nil)
	res, err := r.Run(context.Background(), RunInput{
		Itau:        Upload{Reader: strings.NewReader(itau), Filename: "itau.csv"},
		PagSeguro:   Upload{Reader: strings.NewReader(pagCSV), Filename: "pag.csv"},
		PeriodLabel: "2024-05",
	})
	if err != nil {
		t.Fatalf("run should tolerate a bad row: %v", err)
	}
	if res.Report.SkippedRows != 1 {
		t.Fatalf("skipped rows = %d, want 1", res.Report.SkippedRows)
	}
	if len(res.Report.Warnings) != 1 {
		t.Fatalf("expected one warning, got %v", res.Report.Warnings)
	}
}

func TestRunIdempotentSummary(t *testing.T) {
	r := NewRunner(rules.Default(), &fakeStore{}, nil)
	r.now = func() time.Time { return time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC) }

	first, err := r.Run(context.Background(), runInput())
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	second, err := r.Run(context.Background(), runInput())
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if !reflect.DeepEqual(first.Report.Summary, second.Report.Summary) {
		t.Fatalf("summaries differ across identical runs:\n%+v\n%+v", first.Report.Summary, second.Report.Summary)
	}
}

func TestRunEmptyStatements(t *testing.T) {
	itau := "Data;Lançamento;Valor\n"
	pag := "Data;Descrição;Entradas;Saídas\n"

	r := NewRunner(rules.Default(), &fakeStore{}, nil)
	res, err := r.Run(context.Background(), RunInput{
		Itau:        Upload{Reader: strings.NewReader(itau), Filename: "itau.csv"},
		PagSeguro:   Upload{Reader: strings.NewReader(pag), Filename: "pag.csv"},
		Opening:     core.Money{Cents: 100000},
		PeriodLabel: "2024-05",
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	s := res.Report.Summary
	if !s.Inflow.IsZero() || !s.Outflow.IsZero() || s.Closing.Cents != 100000 {
		t.Fatalf("empty input summary wrong: %+v", s)
	}
	if len(res.Report.Movements) != 0 {
		t.Fatalf("expected empty movements, got %d", len(res.Report.Movements))
	}
}

func TestRunStorageFailureKeepsArtifact(t *testing.T) {
	store := &fakeStore{err: errors.New("disk full")}
	r := NewRunner(rules.Default(), store, nil)

	res, err := r.Run(context.Background(), runInput())
	var se *core.StorageError
	if !errors.As(err, &se) {
		t.Fatalf("expected StorageError, got %v", err)
	}
	if res == nil || len(res.Artifact) == 0 {
		t.Fatal("artifact must survive a history failure")
	}
}

func TestRunMalformedFileAborts(t *testing.T) {
	r := NewRunner(rules.Default(), &fakeStore{}, nil)
	_, err := r.Run(context.Background(), RunInput{
		Itau:        Upload{Reader: strings.NewReader("no header here"), Filename: "itau.csv"},
		PagSeguro:   Upload{Reader: strings.NewReader(pagCSV), Filename: "pag.csv"},
		PeriodLabel: "2024-05",
	})
	var fe *core.FormatError
	if !errors.As(err, &fe) {
		t.Fatalf("expected FormatError, got %v", err)
	}
}

func TestRunPublisherFailureIsNotFatal(t *testing.T) {
	r := NewRunner(rules.Default(), &fakeStore{}, &fakePublisher{err: errors.New("amqp down")})
	if _, err := r.Run(context.Background(), runInput()); err != nil {
		t.Fatalf("publish failure must not fail the run: %v", err)
	}
}

func TestRunRequiresPeriodLabel(t *testing.T) {
	r := NewRunner(rules.Default(), &fakeStore{}, nil)
	in := runInput()
	in.PeriodLabel = ""
	if _, err := r.Run(context.Background(), in); !errors.Is(err, core.ErrEmptyPeriodLabel) {
		t.Fatalf("expected ErrEmptyPeriodLabel, got %v", err)
	}
}
