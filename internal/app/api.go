package app

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/Spok95/school-fees/internal/billing"
	"github.com/Spok95/school-fees/internal/export"
	"github.com/Spok95/school-fees/internal/ledger"
	"github.com/Spok95/school-fees/internal/models"
	"github.com/Spok95/school-fees/internal/notify"
	"github.com/Spok95/school-fees/internal/roster"
	"github.com/Spok95/school-fees/internal/tracking"
)

// report serves the latest reconciliation, running one if none exists yet
// or the caller asked for fresh=true.
func (a *api) report(r *http.Request) (*tracking.Report, error) {
	if fresh, _ := strconv.ParseBool(r.URL.Query().Get("fresh")); !fresh {
		if rep := a.Tracker.Latest(); rep != nil {
			return rep, nil
		}
	}
	return a.Tracker.Refresh(r.Context())
}

type trackingResponse struct {
	Records     []tracking.Record       `json:"records"`
	Stats       tracking.PortfolioStats `json:"stats"`
	GeneratedAt time.Time               `json:"generated_at"`
	Version     uint64                  `json:"version"`
}

func (a *api) tracking(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := tracking.Query{Search: q.Get("search")}
	if s := q.Get("status"); s != "" {
		st := models.PaymentStatus(s)
		if !st.IsValid() {
			badRequest(w, "unknown status "+strconv.Quote(s))
			return
		}
		query.Status = st
	}
	if c := q.Get("class"); c != "" {
		n, err := strconv.Atoi(c)
		if err != nil || n < 1 || n > 12 {
			badRequest(w, "class must be between 1 and 12")
			return
		}
		query.Class = n
	}

	rep, err := a.report(r)
	if err != nil {
		writeError(w, err)
		return
	}
	records := tracking.Filter(rep.Records, query)
	if key, ok := tracking.ParseSortKey(q.Get("sort")); ok {
		records = tracking.Sort(records, key)
	}
	writeJSON(w, http.StatusOK, trackingResponse{
		Records:     records,
		Stats:       rep.Stats,
		GeneratedAt: rep.GeneratedAt,
		Version:     rep.Version,
	})
}

type billsResponse struct {
	Bills       []ledger.BillView `json:"bills"`
	Count       int               `json:"count"`
	Total       int               `json:"total"`
	GeneratedAt time.Time         `json:"generated_at"`
	Version     uint64            `json:"version"`
}

// bills lists every tracked student's bills with projected status. Sorting
// defaults to student name.
func (a *api) bills(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := tracking.BillQuery{Search: q.Get("search")}
	if s := q.Get("status"); s != "" {
		st := models.BillStatus(s)
		if !st.IsValid() {
			badRequest(w, "unknown bill status "+strconv.Quote(s))
			return
		}
		query.Status = st
	}
	if c := q.Get("class"); c != "" {
		n, err := strconv.Atoi(c)
		if err != nil || n < 1 || n > 12 {
			badRequest(w, "class must be between 1 and 12")
			return
		}
		query.Class = n
	}
	key, ok := tracking.ParseBillSortKey(q.Get("sort"))
	if !ok {
		badRequest(w, "unknown sort "+strconv.Quote(q.Get("sort")))
		return
	}

	rep, err := a.report(r)
	if err != nil {
		writeError(w, err)
		return
	}
	all := tracking.AllBills(rep.Records)
	list := tracking.SortBills(tracking.FilterBills(all, query), key)
	writeJSON(w, http.StatusOK, billsResponse{
		Bills:       list,
		Count:       len(list),
		Total:       len(all),
		GeneratedAt: rep.GeneratedAt,
		Version:     rep.Version,
	})
}

func (a *api) stats(w http.ResponseWriter, r *http.Request) {
	rep, err := a.report(r)
	if err != nil {
		writeError(w, err)
		return
	}
	snap, err := a.Store.Snapshot(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"portfolio": rep.Stats,
		"dashboard": tracking.DashboardStats(snap),
	})
}

func (a *api) classes(w http.ResponseWriter, r *http.Request) {
	rep, err := a.report(r)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tracking.ClassSummaries(rep.Records))
}

func (a *api) export(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	kind, err := export.ParseReportType(q.Get("type"))
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	format, err := export.ParseFormat(q.Get("format"))
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	var rng export.Range
	for name, dst := range map[string]*time.Time{"from": &rng.From, "to": &rng.To} {
		v := q.Get(name)
		if v == "" {
			continue
		}
		t, err := parseDate(v, a.Location)
		if err != nil {
			badRequest(w, "invalid "+name+" date")
			return
		}
		*dst = t
	}
	if !rng.To.IsZero() {
		// inclusive through the end of the day
		rng.To = rng.To.Add(24*time.Hour - time.Nanosecond)
	}

	rep, err := a.report(r)
	if err != nil {
		writeError(w, err)
		return
	}
	now := time.Now().In(a.Location)
	var buf bytes.Buffer
	if err := export.Write(&buf, kind, format, rep, now, rng); err != nil {
		if errors.Is(err, export.ErrNoData) {
			a.Notifier.Notify(r.Context(), "No data available for export", notify.Info)
		} else {
			a.Log.Warn("export failed", zap.String("type", string(kind)), zap.Error(err))
			a.Notifier.Notify(r.Context(), "Error exporting report. Please try again.", notify.Error)
		}
		writeError(w, err)
		return
	}

	ct := "text/csv; charset=utf-8"
	if format == export.XLSX {
		ct = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	w.Header().Set("Content-Type", ct)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.ReportFilename(kind, format, now)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
	a.Notifier.Notify(r.Context(), "Report exported successfully!", notify.Success)
}

func (a *api) notifications(w http.ResponseWriter, _ *http.Request) {
	if a.Notes == nil {
		writeJSON(w, http.StatusOK, []notify.Note{})
		return
	}
	writeJSON(w, http.StatusOK, a.Notes.Notes())
}

func (a *api) sendNotices(w http.ResponseWriter, r *http.Request) {
	if a.Notices == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: "overdue notices are not configured"})
		return
	}
	n, err := a.Notices.Send(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"sent": n})
}

func (a *api) backup(w http.ResponseWriter, r *http.Request) {
	if a.Backup == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: "backups are not configured"})
		return
	}
	name, err := a.Backup.Trigger(r.Context())
	if err != nil {
		a.Log.Error("backup failed", zap.Error(err))
		writeJSON(w, http.StatusBadGateway, errorBody{Error: "backup failed"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"backup": name})
}

func (a *api) generateBills(w http.ResponseWriter, r *http.Request) {
	res, err := a.Manager.GenerateBills(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (a *api) deleteBill(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	b, err := a.Store.GetBill(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	defer a.locks.lock(b.StudentID)()
	if err := a.Manager.DeleteBill(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type paymentRequest struct {
	StudentID   string          `json:"student_id"`
	Amount      decimal.Decimal `json:"amount"`
	FeeName     string          `json:"fee_name"`
	Reference   string          `json:"reference_number"`
	PaymentDate string          `json:"payment_date"`
}

func (a *api) recordPayment(w http.ResponseWriter, r *http.Request) {
	var req paymentRequest
	if !decode(w, r, &req) {
		return
	}
	in := billing.PaymentInput{
		StudentID: req.StudentID,
		Amount:    req.Amount,
		FeeName:   req.FeeName,
		Reference: req.Reference,
	}
	if req.PaymentDate != "" {
		t, err := parseDate(req.PaymentDate, a.Location)
		if err != nil {
			badRequest(w, "Please select a payment date.")
			return
		}
		in.PaymentDate = t
	}
	defer a.locks.lock(req.StudentID)()
	out, err := a.Manager.RecordPayment(r.Context(), in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, out)
}

type paymentPatchRequest struct {
	Amount      *decimal.Decimal `json:"amount"`
	FeeName     *string          `json:"fee_name"`
	Reference   *string          `json:"reference_number"`
	PaymentDate *string          `json:"payment_date"`
}

func (a *api) editPayment(w http.ResponseWriter, r *http.Request) {
	var req paymentPatchRequest
	if !decode(w, r, &req) {
		return
	}
	patch := models.PaymentPatch{Amount: req.Amount, FeeName: req.FeeName, Reference: req.Reference}
	if req.PaymentDate != nil {
		t, err := parseDate(*req.PaymentDate, a.Location)
		if err != nil {
			badRequest(w, "Please select a payment date.")
			return
		}
		patch.PaymentDate = &t
	}
	unlock, err := a.lockPayment(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	defer unlock()
	out, err := a.Manager.EditPayment(r.Context(), r.PathValue("id"), patch)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *api) removePayment(w http.ResponseWriter, r *http.Request) {
	unlock, err := a.lockPayment(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	defer unlock()
	bills, err := a.Manager.RemovePayment(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"bills": bills})
}

func (a *api) lockPayment(ctx context.Context, id string) (func(), error) {
	p, err := a.Store.GetPayment(ctx, id)
	if err != nil {
		return nil, err
	}
	return a.locks.lock(p.StudentID), nil
}

func (a *api) listStudents(w http.ResponseWriter, r *http.Request) {
	list, err := a.Store.ListStudents(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (a *api) addStudent(w http.ResponseWriter, r *http.Request) {
	var s models.Student
	if !decode(w, r, &s) {
		return
	}
	id, err := a.Manager.AddStudent(r.Context(), s)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

func (a *api) updateStudent(w http.ResponseWriter, r *http.Request) {
	var p models.StudentPatch
	if !decode(w, r, &p) {
		return
	}
	if err := a.Manager.UpdateStudent(r.Context(), r.PathValue("id"), p); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *api) deleteStudent(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	defer a.locks.lock(id)()
	if err := a.Manager.DeleteStudent(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *api) importStudents(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBody))
	if err != nil {
		badRequest(w, "Error reading Excel file. Please check the file format.")
		return
	}
	sheet, err := roster.Read(bytes.NewReader(body))
	if err != nil {
		a.Notifier.Notify(r.Context(), err.Error(), notify.Error)
		writeError(w, err)
		return
	}
	res, err := a.Manager.ImportStudents(r.Context(), sheet.Rows)
	if err != nil {
		writeError(w, err, sheet.Problems()...)
		return
	}
	res.Errors = append(sheet.Problems(), res.Errors...)
	writeJSON(w, http.StatusOK, res)
}

func (a *api) studentFees(w http.ResponseWriter, r *http.Request) {
	fees, err := a.Manager.FeeNamesFor(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, fees)
}

func (a *api) studentBills(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := a.Store.GetStudent(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	bills, err := a.Manager.BillViews(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, bills)
}

func (a *api) listFees(w http.ResponseWriter, r *http.Request) {
	list, err := a.Store.ListFeeRules(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (a *api) addFee(w http.ResponseWriter, r *http.Request) {
	var f models.FeeRule
	if !decode(w, r, &f) {
		return
	}
	f.Name = strings.TrimSpace(f.Name)
	id, err := a.Manager.AddFeeRule(r.Context(), f)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

func (a *api) deleteFee(w http.ResponseWriter, r *http.Request) {
	if err := a.Manager.DeleteFeeRule(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
