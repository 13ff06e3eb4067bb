package app

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/Spok95/school-fees/internal/billing"
	"github.com/Spok95/school-fees/internal/db"
	"github.com/Spok95/school-fees/internal/jobs"
	"github.com/Spok95/school-fees/internal/metrics"
	"github.com/Spok95/school-fees/internal/notify"
	"github.com/Spok95/school-fees/internal/store"
	"github.com/Spok95/school-fees/internal/tracking"
)

// Tracker serves reconciled reports; *tracking.Coordinator is one.
type Tracker interface {
	Latest() *tracking.Report
	Refresh(ctx context.Context) (*tracking.Report, error)
}

// Deps is what the API needs. DB may be nil when running on the memory
// store; Notes, Notices and Backup are optional.
type Deps struct {
	Manager  *billing.Manager
	Tracker  Tracker
	Store    store.Store
	DB       *sql.DB
	Notifier notify.Notifier
	Notes    *notify.Recorder
	Notices  *jobs.Notices
	Backup   jobs.Backuper
	Location *time.Location
	Log      *zap.Logger
}

type HTTPServer struct {
	srv *http.Server
}

type api struct {
	Deps
	locks *StudentLocks
}

// NewHandler routes health, metrics and the JSON API.
func NewHandler(d Deps) http.Handler {
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	if d.Notifier == nil {
		d.Notifier = notify.Nop
	}
	if d.Location == nil {
		d.Location = time.UTC
	}
	a := &api{Deps: d, locks: NewStudentLocks()}
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", a.health)
	mux.Handle("GET /metrics", metrics.Handler())

	mux.HandleFunc("GET /api/tracking", a.tracking)
	mux.HandleFunc("GET /api/stats", a.stats)
	mux.HandleFunc("GET /api/classes", a.classes)
	mux.HandleFunc("GET /api/export", a.export)
	mux.HandleFunc("GET /api/notifications", a.notifications)
	mux.HandleFunc("POST /api/notices/overdue", a.sendNotices)
	mux.HandleFunc("POST /api/admin/backup", a.backup)

	mux.HandleFunc("GET /api/bills", a.bills)
	mux.HandleFunc("POST /api/bills/generate", a.generateBills)
	mux.HandleFunc("DELETE /api/bills/{id}", a.deleteBill)

	mux.HandleFunc("POST /api/payments", a.recordPayment)
	mux.HandleFunc("PUT /api/payments/{id}", a.editPayment)
	mux.HandleFunc("DELETE /api/payments/{id}", a.removePayment)

	mux.HandleFunc("GET /api/students", a.listStudents)
	mux.HandleFunc("POST /api/students", a.addStudent)
	mux.HandleFunc("POST /api/students/import", a.importStudents)
	mux.HandleFunc("PUT /api/students/{id}", a.updateStudent)
	mux.HandleFunc("DELETE /api/students/{id}", a.deleteStudent)
	mux.HandleFunc("GET /api/students/{id}/fees", a.studentFees)
	mux.HandleFunc("GET /api/students/{id}/bills", a.studentBills)

	mux.HandleFunc("GET /api/fees", a.listFees)
	mux.HandleFunc("POST /api/fees", a.addFee)
	mux.HandleFunc("DELETE /api/fees/{id}", a.deleteFee)

	return withRequest(d.Log, mux)
}

func (a *api) health(w http.ResponseWriter, r *http.Request) {
	if a.DB == nil {
		_, _ = w.Write([]byte("ok"))
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 800*time.Millisecond)
	defer cancel()
	if err := db.Ping(ctx, a.DB); err != nil {
		http.Error(w, "db not ok: "+err.Error(), http.StatusServiceUnavailable)
		return
	}
	_, _ = w.Write([]byte("ok"))
}

func StartHTTP(ctx context.Context, addr string, h http.Handler, log *zap.Logger) *HTTPServer {
	srv := &http.Server{Addr: addr, Handler: h, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		// graceful stop on shutdown
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server stopped", zap.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(shCtx)
	}()

	return &HTTPServer{srv: srv}
}

func (s *HTTPServer) Addr() string { return s.srv.Addr }
