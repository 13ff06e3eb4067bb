package app

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Spok95/school-fees/internal/billing"
	"github.com/Spok95/school-fees/internal/ctxutil"
	"github.com/Spok95/school-fees/internal/export"
	"github.com/Spok95/school-fees/internal/metrics"
	"github.com/Spok95/school-fees/internal/observability"
	"github.com/Spok95/school-fees/internal/store"
)

const maxBody = 10 << 20

type errorBody struct {
	Error   string   `json:"error"`
	Details []string `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps rejected input to 400, missing records to 404 and
// everything else to 500.
func writeError(w http.ResponseWriter, err error, details ...string) {
	var ve *billing.ValidationError
	switch {
	case errors.As(err, &ve):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: ve.Msg, Details: details})
	case errors.Is(err, store.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody{Error: "not found"})
	case errors.Is(err, export.ErrNoData):
		writeJSON(w, http.StatusNotFound, errorBody{Error: "No data available for export"})
	default:
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal error"})
	}
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorBody{Error: msg})
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		badRequest(w, "invalid JSON body: "+err.Error())
		return false
	}
	return true
}

// parseDate accepts a calendar day in loc or a full RFC 3339 timestamp.
func parseDate(s string, loc *time.Location) (time.Time, error) {
	if t, err := time.ParseInLocation("2006-01-02", s, loc); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

// withRequest tags each request with an ID, counts it by route pattern and
// turns handler panics into 500s.
func withRequest(log *zap.Logger, next http.Handler) http.Handler {
	log = log.Named("http")
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		r = r.WithContext(ctxutil.WithRequestID(r.Context(), id))

		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		start := time.Now()
		defer func() {
			if p := recover(); p != nil {
				observability.CaptureErr(fmt.Errorf("panic in http handler: %v", p))
				log.Error("panic", zap.Any("panic", p), zap.String("request_id", id))
				sw.WriteHeader(http.StatusInternalServerError)
			}
			route := r.Pattern
			if route == "" {
				route = "unmatched"
			}
			metrics.HTTPRequests.WithLabelValues(route, strconv.Itoa(sw.code)).Inc()
			log.Debug("request",
				zap.String("request_id", id),
				zap.String("route", route),
				zap.Int("code", sw.code),
				zap.Duration("took", time.Since(start)))
		}()
		next.ServeHTTP(sw, r)
	})
}
