package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"form-analytics/pkg/analytics"
	"form-analytics/pkg/middleware"
	"form-analytics/pkg/models"
	"form-analytics/pkg/service"
)

const maxBodyBytes = 1 << 20

// Handler adapts the services to HTTP
type Handler struct {
	analyticsSvc *service.AnalyticsService
	responseSvc  *service.ResponseService
	logger       *slog.Logger
}

func NewHandler(analyticsSvc *service.AnalyticsService, responseSvc *service.ResponseService, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{analyticsSvc: analyticsSvc, responseSvc: responseSvc, logger: logger}
}

// ChartResponse wraps a chart so an unavailable projection is still a 200
type ChartResponse struct {
	Available bool                `json:"available"`
	Series    *models.ChartSeries `json:"series,omitempty"`
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().Format(time.RFC3339),
	})
}

func (h *Handler) GetAnalytics(w http.ResponseWriter, r *http.Request) {
	opts := analytics.Options{TimeSeries: queryBool(r, "timeseries")}

	snapshot, err := h.analyticsSvc.Snapshot(r.Context(), middleware.CurrentUser(r.Context()), mux.Vars(r)["templateId"], opts)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, snapshot)
}

func (h *Handler) GetChart(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	kind, ok := models.ParseChartKind(r.URL.Query().Get("kind"))
	if !ok {
		h.writeJSON(w, http.StatusOK, ChartResponse{Available: false})
		return
	}

	series, ok, err := h.analyticsSvc.Chart(r.Context(), middleware.CurrentUser(r.Context()), vars["templateId"], vars["questionId"], kind)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if !ok {
		h.writeJSON(w, http.StatusOK, ChartResponse{Available: false})
		return
	}
	h.writeJSON(w, http.StatusOK, ChartResponse{Available: true, Series: &series})
}

func (h *Handler) ExportAnalyticsCSV(w http.ResponseWriter, r *http.Request) {
	export, err := h.analyticsSvc.ExportCSV(r.Context(), middleware.CurrentUser(r.Context()), mux.Vars(r)["templateId"])
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.download(w, export)
}

func (h *Handler) ListResponses(w http.ResponseWriter, r *http.Request) {
	query, err := parseListQuery(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	table, err := h.responseSvc.List(r.Context(), middleware.CurrentUser(r.Context()), mux.Vars(r)["templateId"], query)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, table)
}

func (h *Handler) GetResponse(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	response, err := h.responseSvc.Get(r.Context(), middleware.CurrentUser(r.Context()), vars["templateId"], vars["responseId"])
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, response)
}

func (h *Handler) ExportResponsesCSV(w http.ResponseWriter, r *http.Request) {
	query, err := parseListQuery(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	export, err := h.responseSvc.ExportResponsesCSV(r.Context(), middleware.CurrentUser(r.Context()), mux.Vars(r)["templateId"], query)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.download(w, export)
}

func (h *Handler) SubmitResponse(w http.ResponseWriter, r *http.Request) {
	var req models.SubmitResponseRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.UseNumber()
	if err := dec.Decode(&req); err != nil {
		h.writeError(w, r, service.NewInvalidError("invalid request body"))
		return
	}

	result, err := h.responseSvc.Submit(r.Context(), middleware.CurrentUser(r.Context()), mux.Vars(r)["templateId"], req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, result)
}

func parseListQuery(r *http.Request) (service.ResponseListQuery, error) {
	q := r.URL.Query()
	query := service.ResponseListQuery{Locale: middleware.LocaleFromContext(r.Context())}

	field, ok := analytics.ParseSortField(q.Get("sort"))
	if !ok {
		return query, service.NewInvalidError("unknown sort field " + strconv.Quote(q.Get("sort")))
	}
	dir, ok := analytics.ParseSortDirection(q.Get("dir"))
	if !ok {
		return query, service.NewInvalidError("unknown sort direction " + strconv.Quote(q.Get("dir")))
	}
	query.Sort, query.Direction = field, dir
	query.Filter.Search = q.Get("q")

	var err error
	if query.Filter.TimeRange.From, err = parseTime(q.Get("from"), false); err != nil {
		return query, service.NewInvalidError("invalid from: " + err.Error())
	}
	if query.Filter.TimeRange.To, err = parseTime(q.Get("to"), true); err != nil {
		return query, service.NewInvalidError("invalid to: " + err.Error())
	}
	return query, nil
}

// parseTime accepts RFC 3339 or a bare UTC date. A bare date used as an
// upper bound covers the whole day.
func parseTime(s string, endOfDay bool) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, errors.New("expected RFC 3339 timestamp or YYYY-MM-DD")
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return t, nil
}

func queryBool(r *http.Request, key string) bool {
	b, _ := strconv.ParseBool(r.URL.Query().Get(key))
	return b
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode JSON response", "error", err)
	}
}

func (h *Handler) download(w http.ResponseWriter, export *service.ExportResult) {
	w.Header().Set("Content-Type", export.ContentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": export.Filename}))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(export.Body); err != nil {
		h.logger.Error("failed to write download", "filename", export.Filename, "error", err)
	}
}

// writeError maps service errors onto status codes; anything else is a 500
// whose detail stays in the log
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	message := http.StatusText(status)
	if se, ok := service.AsError(err); ok {
		message = se.Message
		switch se.Code {
		case service.ErrorInvalid:
			status = http.StatusBadRequest
		case service.ErrorNotFound:
			status = http.StatusNotFound
		case service.ErrorForbidden:
			status = http.StatusForbidden
		case service.ErrorUnauthorized:
			status = http.StatusUnauthorized
		}
	} else {
		h.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	h.writeJSON(w, status, map[string]string{"error": message})
}
