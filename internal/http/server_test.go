package http

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"fechamento/internal/closing"
	"fechamento/internal/core"
	"fechamento/internal/history"
	"fechamento/internal/log"
)

type fakeRunner struct {
	lastInput closing.RunInput
	res       *closing.RunResult
	err       error
}

func (f *fakeRunner) Run(_ context.Context, in closing.RunInput) (*closing.RunResult, error) {
	f.lastInput = in
	return f.res, f.err
}

type fakeBrowser struct {
	entries  []history.Entry
	artifact []byte
	listErr  error

	cash    []history.CashEntry
	cashErr error
	nextID  int64
}

func (f *fakeBrowser) List(context.Context) ([]history.Entry, error) {
	return f.entries, f.listErr
}

func (f *fakeBrowser) ReadArtifact(_ context.Context, id int64) ([]byte, string, error) {
	for _, e := range f.entries {
		if e.ID == id {
			return f.artifact, e.Path, nil
		}
	}
	return nil, "", history.ErrNotFound
}

func (f *fakeBrowser) AddCashEntry(_ context.Context, e history.CashEntry) (history.CashEntry, error) {
	if f.cashErr != nil {
		return history.CashEntry{}, f.cashErr
	}
	if err := e.Validate(); err != nil {
		return history.CashEntry{}, err
	}
	f.nextID++
	e.ID = f.nextID
	f.cash = append(f.cash, e)
	return e, nil
}

func (f *fakeBrowser) ListCashEntries(_ context.Context, periodLabel string) ([]history.CashEntry, error) {
	if f.cashErr != nil {
		return nil, f.cashErr
	}
	if periodLabel == "" {
		return f.cash, nil
	}
	var out []history.CashEntry
	for _, e := range f.cash {
		if e.PeriodLabel == periodLabel {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeBrowser) DeleteCashEntry(_ context.Context, id int64) error {
	for i, e := range f.cash {
		if e.ID == id {
			f.cash = append(f.cash[:i], f.cash[i+1:]...)
			return nil
		}
	}
	return history.ErrNotFound
}

func testLogger() *log.Logger {
	return log.New(log.Config{Handler: slog.NewTextHandler(io.Discard, nil)})
}

func newTestServer(runner ClosingRunner, store HistoryBrowser) *Server {
	return NewServer(":0", runner, store, testLogger())
}

func sampleResult() *closing.RunResult {
	return &closing.RunResult{
		Report: &core.ClosingReport{
			PeriodLabel: "2024-05",
			Summary:     core.PeriodSummary{ByCategory: map[core.Category]core.Money{}},
		},
		Artifact: []byte("workbook-bytes"),
		Entry: core.HistoryEntry{
			ID:          1,
			PeriodLabel: "2024-05",
			Version:     1,
			Path:        "/data/reports/fechamento-2024-05-v1.xlsx",
		},
	}
}

func closingForm(t *testing.T, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	if _, ok := fields["itau"]; !ok {
		fields["itau"] = "Data;Lançamento;Valor\n01/05/2024;X;-1,00\n"
	}
	if _, ok := fields["pagseguro"]; !ok {
		fields["pagseguro"] = "Data;Descrição;Entradas;Saídas\n"
	}

	for _, name := range []string{"itau", "pagseguro"} {
		fw, err := mw.CreateFormFile(name, name+".csv")
		if err != nil {
			t.Fatalf("create form file: %v", err)
		}
		if _, err := fw.Write([]byte(fields[name])); err != nil {
			t.Fatalf("write form file: %v", err)
		}
		delete(fields, name)
	}
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatalf("write field: %v", err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	return &buf, mw.FormDataContentType()
}

func postClosing(t *testing.T, s *Server, fields map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	body, contentType := closingForm(t, fields)
	req := httptest.NewRequest(http.MethodPost, "/closings", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	s.Server.Handler.ServeHTTP(rec, req)
	return rec
}

func TestIndexRendersHistory(t *testing.T) {
	store := &fakeBrowser{entries: []history.Entry{{
		HistoryEntry: core.HistoryEntry{
			ID:          7,
			PeriodLabel: "2024-04",
			Version:     2,
			Path:        "/data/reports/fechamento-2024-04-v2.xlsx",
			CreatedAt:   time.Now(),
		},
		Net:        core.Money{Cents: 70000},
		Closing:    core.Money{Cents: 170000},
		SyncStatus: history.SyncDone,
	}}}
	s := newTestServer(&fakeRunner{}, store)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	s.Server.Handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body: %s", rec.Code, rec.Body.String())
	}
	page := rec.Body.String()
	for _, want := range []string{"2024-04", "v2", "/closings/download?id=7", "synced"} {
		if !strings.Contains(page, want) {
			t.Fatalf("page missing %q:\n%s", want, page)
		}
	}
}

func TestIndexReportsHistoryError(t *testing.T) {
	store := &fakeBrowser{listErr: errors.New("database locked")}
	s := newTestServer(&fakeRunner{}, store)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	s.Server.Handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	page := rec.Body.String()
	if strings.Contains(page, "Nenhum fechamento registrado ainda") {
		t.Fatal("broken history rendered as empty history")
	}
	if !strings.Contains(page, "Não foi possível carregar o histórico") {
		t.Fatalf("page missing history error notice:\n%s", page)
	}
}

func postForm(t *testing.T, s *Server, path string, form url.Values) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	s.Server.Handler.ServeHTTP(rec, req)
	return rec
}

func TestCashEntryLifecycle(t *testing.T) {
	store := &fakeBrowser{}
	s := newTestServer(&fakeRunner{}, store)

	rec := postForm(t, s, "/cash", url.Values{
		"period_label": {"2024-05"},
		"date":         {"2024-05-10"},
		"description":  {"Feira"},
		"kind":         {"saida"},
		"amount":       {"35,50"},
	})
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("add status = %d, body: %s", rec.Code, rec.Body.String())
	}
	if len(store.cash) != 1 {
		t.Fatalf("cash entries = %d, want 1", len(store.cash))
	}
	if got := store.cash[0].Amount.Cents; got != -3550 {
		t.Fatalf("outflow stored as %d cents, want -3550", got)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	idx := httptest.NewRecorder()
	s.Server.Handler.ServeHTTP(idx, req)
	if !strings.Contains(idx.Body.String(), "Feira") {
		t.Fatal("cash entry missing from index page")
	}

	rec = postForm(t, s, "/cash/delete", url.Values{"id": {"1"}})
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("delete status = %d", rec.Code)
	}
	if len(store.cash) != 0 {
		t.Fatal("entry not deleted")
	}

	rec = postForm(t, s, "/cash/delete", url.Values{"id": {"1"}})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("repeat delete status = %d, want 404", rec.Code)
	}
}

func TestAddCashEntryValidation(t *testing.T) {
	s := newTestServer(&fakeRunner{}, &fakeBrowser{})

	rec := postForm(t, s, "/cash", url.Values{
		"date":        {"2024-05-10"},
		"description": {"Feira"},
		"amount":      {"10,00"},
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing period: status = %d", rec.Code)
	}

	rec = postForm(t, s, "/cash", url.Values{
		"period_label": {"2024-05"},
		"date":         {"2024-05-10"},
		"description":  {"Feira"},
		"amount":       {"0,00"},
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("zero amount: status = %d", rec.Code)
	}
}

func TestRunClosingIncludesCashBook(t *testing.T) {
	store := &fakeBrowser{cash: []history.CashEntry{
		{ID: 1, PeriodLabel: "2024-05", Date: core.NewDate(2024, 5, 3), Description: "Troco", Amount: core.Money{Cents: 1500}},
		{ID: 2, PeriodLabel: "2024-04", Date: core.NewDate(2024, 4, 2), Description: "Outro mês", Amount: core.Money{Cents: 900}},
	}}
	runner := &fakeRunner{res: sampleResult()}
	s := newTestServer(runner, store)

	rec := postClosing(t, s, map[string]string{
		"period_label":    "2024-05",
		"opening_balance": "0,00",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body: %s", rec.Code, rec.Body.String())
	}
	if len(runner.lastInput.Cash) != 1 {
		t.Fatalf("cash transactions = %d, want only the period's entry", len(runner.lastInput.Cash))
	}
	tx := runner.lastInput.Cash[0]
	if tx.Source != core.SourceCaixa || tx.Description != "Troco" || tx.Amount.Cents != 1500 {
		t.Fatalf("unexpected cash transaction: %+v", tx)
	}
}

func TestRunClosingRendersResult(t *testing.T) {
	runner := &fakeRunner{res: sampleResult()}
	s := newTestServer(runner, &fakeBrowser{})

	rec := postClosing(t, s, map[string]string{
		"period_label":    "2024-05",
		"opening_balance": "1.000,00",
	})

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body: %s", rec.Code, rec.Body.String())
	}
	page := rec.Body.String()
	for _, want := range []string{"2024-05", "v1", "/closings/download?id=1"} {
		if !strings.Contains(page, want) {
			t.Fatalf("result page missing %q:\n%s", want, page)
		}
	}
	if runner.lastInput.Opening.Cents != 100000 {
		t.Fatalf("opening = %d, want 100000", runner.lastInput.Opening.Cents)
	}
	if runner.lastInput.PeriodLabel != "2024-05" {
		t.Fatalf("period = %q", runner.lastInput.PeriodLabel)
	}
}

func TestRunClosingValidation(t *testing.T) {
	s := newTestServer(&fakeRunner{res: sampleResult()}, &fakeBrowser{})

	rec := postClosing(t, s, map[string]string{"opening_balance": "1,00"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing period: status = %d", rec.Code)
	}

	rec = postClosing(t, s, map[string]string{
		"period_label":    "2024-05",
		"opening_balance": "abc",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad opening: status = %d", rec.Code)
	}
}

func TestRunClosingRejectsBadStatement(t *testing.T) {
	runner := &fakeRunner{err: &core.FormatError{Source: core.SourceItau, Reason: "missing columns"}}
	s := newTestServer(runner, &fakeBrowser{})

	rec := postClosing(t, s, map[string]string{
		"period_label":    "2024-05",
		"opening_balance": "0,00",
	})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", rec.Code)
	}
}

func TestRunClosingStorageFailureStillDownloads(t *testing.T) {
	res := sampleResult()
	runner := &fakeRunner{
		res: res,
		err: &core.StorageError{Op: "save", Err: errors.New("disk full")},
	}
	s := newTestServer(runner, &fakeBrowser{})

	rec := postClosing(t, s, map[string]string{
		"period_label":    "2024-05",
		"opening_balance": "0,00",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want artifact despite storage failure", rec.Code)
	}
	if rec.Body.String() != "workbook-bytes" {
		t.Fatal("artifact missing from response")
	}
}

func TestRunClosingMethodNotAllowed(t *testing.T) {
	s := newTestServer(&fakeRunner{}, &fakeBrowser{})
	req := httptest.NewRequest(http.MethodGet, "/closings", nil)
	rec := httptest.NewRecorder()
	s.Server.Handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", rec.Code)
	}
}

func TestDownload(t *testing.T) {
	store := &fakeBrowser{
		entries: []history.Entry{{HistoryEntry: core.HistoryEntry{
			ID:   3,
			Path: "/data/reports/fechamento-2024-03-v1.xlsx",
		}}},
		artifact: []byte("stored-workbook"),
	}
	s := newTestServer(&fakeRunner{}, store)

	req := httptest.NewRequest(http.MethodGet, "/closings/download?id=3", nil)
	rec := httptest.NewRecorder()
	s.Server.Handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || rec.Body.String() != "stored-workbook" {
		t.Fatalf("download failed: %d %s", rec.Code, rec.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/closings/download?id=99", nil)
	rec = httptest.NewRecorder()
	s.Server.Handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("missing artifact: status = %d, want 404", rec.Code)
	}
}

func TestRateLimitOnPost(t *testing.T) {
	s := newTestServer(&fakeRunner{res: sampleResult()}, &fakeBrowser{})

	var last int
	for i := 0; i < 12; i++ {
		rec := postClosing(t, s, map[string]string{
			"period_label":    "2024-05",
			"opening_balance": "0,00",
		})
		last = rec.Code
	}
	if last != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429 after burst", last)
	}
}

func TestHealthz(t *testing.T) {
	s := newTestServer(&fakeRunner{}, &fakeBrowser{})
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	s.Server.Handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz status = %d", rec.Code)
	}
}
