package api

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"form-analytics/pkg/middleware"
)

// NewRouter wires the HTTP surface. Everything under /api/v1 runs with
// the caller's user and locale resolved.
func NewRouter(h *Handler, auth *middleware.Authenticator, logger *slog.Logger) http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/health", h.Health).Methods(http.MethodGet)

	v1 := r.PathPrefix("/api/v1").Subrouter()
	v1.Use(auth.WithAuth, middleware.WithLocale)

	t := v1.PathPrefix("/templates/{templateId}").Subrouter()
	t.HandleFunc("/analytics", h.GetAnalytics).Methods(http.MethodGet)
	t.HandleFunc("/analytics.csv", h.ExportAnalyticsCSV).Methods(http.MethodGet)
	t.HandleFunc("/analytics/questions/{questionId}/chart", h.GetChart).Methods(http.MethodGet)
	t.HandleFunc("/responses", h.ListResponses).Methods(http.MethodGet)
	t.HandleFunc("/responses", h.SubmitResponse).Methods(http.MethodPost)
	t.HandleFunc("/responses.csv", h.ExportResponsesCSV).Methods(http.MethodGet)
	t.HandleFunc("/responses/{responseId}", h.GetResponse).Methods(http.MethodGet)

	return middleware.WithLogging(logger)(r)
}
