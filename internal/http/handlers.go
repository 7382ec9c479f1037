package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"path/filepath"
	"strconv"
	"time"

	"fechamento/internal/closing"
	"fechamento/internal/core"
	"fechamento/internal/history"
	"fechamento/internal/log"
)

const maxUploadBytes = 32 << 20

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

var templateFuncs = template.FuncMap{
	"money":     func(m core.Money) string { return m.String() },
	"date":      func(t time.Time) string { return t.Format("02/01/2006 15:04") },
	"shortdate": func(d core.Date) string { return d.Format("02/01/2006") },
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// handleReady verifies the pieces a closing run depends on.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	httpStatus := http.StatusOK
	checks := make(map[string]string)

	if s.templates == nil {
		checks["templates"] = "failed: templates not loaded"
		status = "not_ready"
		httpStatus = http.StatusServiceUnavailable
	} else {
		checks["templates"] = "ok"
	}

	if _, err := s.store.List(ctx); err != nil {
		checks["history"] = fmt.Sprintf("failed: %v", err)
		status = "not_ready"
		httpStatus = http.StatusServiceUnavailable
	} else {
		checks["history"] = "ok"
	}

	w.WriteHeader(httpStatus)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":    status,
		"timestamp": time.Now().Format(time.RFC3339),
		"checks":    checks,
	})
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if s.templates == nil {
		s.logger.ErrorContext(r.Context(), "Templates not loaded", log.FieldPath, r.URL.Path)
		http.Error(w, "templates not loaded", http.StatusInternalServerError)
		return
	}

	historyFailed := false
	entries, err := s.store.List(r.Context())
	if err != nil {
		// An unreadable history must not render as "no closings yet".
		s.logger.ErrorContext(r.Context(), "History list error", log.FieldError, err)
		historyFailed = true
	}

	cashFailed := false
	cashEntries, err := s.store.ListCashEntries(r.Context(), "")
	if err != nil {
		s.logger.ErrorContext(r.Context(), "Cash book list error", log.FieldError, err)
		cashFailed = true
	}

	data := struct {
		DefaultPeriod string
		DefaultDate   string
		Closings      []history.Entry
		HistoryError  bool
		CashEntries   []history.CashEntry
		CashError     bool
	}{
		DefaultPeriod: time.Now().AddDate(0, -1, 0).Format("2006-01"),
		DefaultDate:   time.Now().Format("2006-01-02"),
		Closings:      entries,
		HistoryError:  historyFailed,
		CashEntries:   cashEntries,
		CashError:     cashFailed,
	}

	if err := s.templates.ExecuteTemplate(w, "index.html", data); err != nil {
		s.logger.ErrorContext(r.Context(), "Index template execution failed",
			log.FieldError, err, "template", "index.html")
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// handleRunClosing accepts the two statement files plus the opening
// balance and period label, runs the closing, and streams back the
// workbook. A history failure is logged but the workbook is still
// returned so the month's report is never lost.
func (s *Server) handleRunClosing(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		http.Error(w, "invalid multipart form: "+err.Error(), http.StatusBadRequest)
		return
	}

	itauFile, itauHeader, err := r.FormFile("itau")
	if err != nil {
		http.Error(w, "missing Itaú statement file", http.StatusBadRequest)
		return
	}
	defer itauFile.Close()

	pagFile, pagHeader, err := r.FormFile("pagseguro")
	if err != nil {
		http.Error(w, "missing PagSeguro statement file", http.StatusBadRequest)
		return
	}
	defer pagFile.Close()

	opening, err := core.ParseBRL(r.FormValue("opening_balance"))
	if err != nil {
		http.Error(w, "invalid opening balance: "+err.Error(), http.StatusBadRequest)
		return
	}

	periodLabel := r.FormValue("period_label")
	if periodLabel == "" {
		http.Error(w, "period label is required", http.StatusBadRequest)
		return
	}

	cashEntries, err := s.store.ListCashEntries(r.Context(), periodLabel)
	if err != nil {
		s.logger.ErrorContext(r.Context(), "Cash book load failed",
			log.FieldPeriodLabel, periodLabel,
			log.FieldError, err)
		http.Error(w, "cash book unavailable: "+err.Error(), http.StatusInternalServerError)
		return
	}
	cash := make([]core.Transaction, 0, len(cashEntries))
	for _, e := range cashEntries {
		cash = append(cash, e.Transaction())
	}

	in := closing.RunInput{
		Itau:        closing.Upload{Reader: itauFile, Filename: itauHeader.Filename},
		PagSeguro:   closing.Upload{Reader: pagFile, Filename: pagHeader.Filename},
		Cash:        cash,
		Opening:     opening,
		PeriodLabel: periodLabel,
	}

	s.runMu.Lock()
	res, err := s.runner.Run(r.Context(), in)
	s.runMu.Unlock()

	if err != nil {
		var formatErr *core.FormatError
		var storageErr *core.StorageError
		switch {
		case errors.As(err, &formatErr):
			s.logger.WarnContext(r.Context(), "Statement rejected",
				log.FieldPeriodLabel, periodLabel,
				log.FieldError, err)
			http.Error(w, formatErr.Error(), http.StatusUnprocessableEntity)
			return
		case errors.As(err, &storageErr) && res != nil:
			// History is unavailable but the report was built. Hand it
			// over and let the operator retry persistence later.
			s.logger.ErrorContext(r.Context(), "Closing built but not persisted",
				log.FieldPeriodLabel, periodLabel,
				log.FieldError, err)
			s.serveArtifact(w, artifactDownloadName(periodLabel, 0), res.Artifact)
			return
		default:
			s.logger.ErrorContext(r.Context(), "Closing run failed",
				log.FieldPeriodLabel, periodLabel,
				log.FieldError, err)
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	}

	s.logger.InfoContext(r.Context(), "Closing completed",
		log.FieldPeriodLabel, periodLabel,
		log.FieldVersion, res.Entry.Version,
		log.FieldClosingID, res.Entry.ID,
		log.FieldRowCount, len(res.Report.Movements),
		log.FieldSkippedRows, res.Report.SkippedRows)

	s.renderResult(w, r, res)
}

type categoryRow struct {
	Name  string
	Total core.Money
}

type accountRow struct {
	Name    string
	Inflow  core.Money
	Outflow core.Money
	Net     core.Money
}

// renderResult shows the summary, category totals and movements with a
// link to download the persisted workbook. If templates are broken the
// workbook itself is the fallback response.
func (s *Server) renderResult(w http.ResponseWriter, r *http.Request, res *closing.RunResult) {
	if s.templates == nil {
		s.serveArtifact(w, filepath.Base(res.Entry.Path), res.Artifact)
		return
	}

	categories := make([]categoryRow, 0, len(core.Categories()))
	for _, c := range core.Categories() {
		categories = append(categories, categoryRow{
			Name:  string(c),
			Total: res.Report.Summary.ByCategory[c],
		})
	}

	accounts := make([]accountRow, 0, len(core.Sources()))
	for _, src := range core.Sources() {
		acct := res.Report.Summary.BySource[src]
		accounts = append(accounts, accountRow{
			Name:    src.Account(),
			Inflow:  acct.Inflow,
			Outflow: acct.Outflow,
			Net:     acct.Net,
		})
	}

	data := struct {
		Report     *core.ClosingReport
		Entry      core.HistoryEntry
		Categories []categoryRow
		Accounts   []accountRow
	}{
		Report:     res.Report,
		Entry:      res.Entry,
		Categories: categories,
		Accounts:   accounts,
	}

	if err := s.templates.ExecuteTemplate(w, "result.html", data); err != nil {
		s.logger.ErrorContext(r.Context(), "Result template execution failed",
			log.FieldError, err, "template", "result.html")
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.URL.Query().Get("id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid closing id", http.StatusBadRequest)
		return
	}

	artifact, path, err := s.store.ReadArtifact(r.Context(), id)
	if err != nil {
		if errors.Is(err, history.ErrNotFound) {
			http.NotFound(w, r)
			return
		}
		s.logger.ErrorContext(r.Context(), "Artifact read failed",
			log.FieldClosingID, id,
			log.FieldError, err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	s.serveArtifact(w, filepath.Base(path), artifact)
}

// handleAddCashEntry records one manual cash movement. The form sends
// an unsigned amount plus a direction; outflows are stored negative.
func (s *Server) handleAddCashEntry(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	periodLabel := r.FormValue("period_label")
	if periodLabel == "" {
		http.Error(w, "period label is required", http.StatusBadRequest)
		return
	}

	date, err := time.Parse("2006-01-02", r.FormValue("date"))
	if err != nil {
		http.Error(w, "invalid date: "+err.Error(), http.StatusBadRequest)
		return
	}

	amount, err := core.ParseBRL(r.FormValue("amount"))
	if err != nil || amount.IsZero() {
		http.Error(w, "invalid amount", http.StatusBadRequest)
		return
	}
	amount = core.Money{Cents: abs(amount.Cents)}
	if r.FormValue("kind") == "saida" {
		amount.Cents = -amount.Cents
	}

	entry, err := s.store.AddCashEntry(r.Context(), history.CashEntry{
		PeriodLabel: periodLabel,
		Date:        core.NewDate(date.Year(), int(date.Month()), date.Day()),
		Description: r.FormValue("description"),
		Amount:      amount,
	})
	if err != nil {
		s.logger.ErrorContext(r.Context(), "Cash entry rejected",
			log.FieldPeriodLabel, periodLabel,
			log.FieldError, err)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.logger.InfoContext(r.Context(), "Cash entry recorded",
		log.FieldPeriodLabel, periodLabel,
		"cash_entry_id", entry.ID)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) handleDeleteCashEntry(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	id, err := strconv.ParseInt(r.FormValue("id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid cash entry id", http.StatusBadRequest)
		return
	}

	if err := s.store.DeleteCashEntry(r.Context(), id); err != nil {
		if errors.Is(err, history.ErrNotFound) {
			http.NotFound(w, r)
			return
		}
		s.logger.ErrorContext(r.Context(), "Cash entry delete failed",
			"cash_entry_id", id,
			log.FieldError, err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

func (s *Server) serveArtifact(w http.ResponseWriter, name string, content []byte) {
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.Header().Set("Content-Length", strconv.Itoa(len(content)))
	_, _ = w.Write(content)
}

func artifactDownloadName(periodLabel string, version int64) string {
	if version > 0 {
		return fmt.Sprintf("fechamento-%s-v%d.xlsx", periodLabel, version)
	}
	return fmt.Sprintf("fechamento-%s.xlsx", periodLabel)
}
