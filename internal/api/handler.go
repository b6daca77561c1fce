// Package api provides the HTTP handlers of the notebook query gateway.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"hue-gateway/internal/middleware"
	"hue-gateway/internal/service/history"
	"hue-gateway/internal/service/notebook"
)

// Defaults of the optional call parameters.
const (
	defaultFetchRows = 100
	defaultLogSize   = 1000
)

// Handler serves the notebook API.
type Handler struct {
	notebooks *notebook.Service
	history   *history.Service
	logger    *slog.Logger
}

// NewHandler creates a Handler.
func NewHandler(notebooks *notebook.Service, hist *history.Service, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		notebooks: notebooks,
		history:   hist,
		logger:    logger.With("component", "api"),
	}
}

// Routes registers the notebook API under r.
func (h *Handler) Routes(r chi.Router) {
	r.Route("/notebook/api", func(r chi.Router) {
		r.Post("/create_session", h.createSession)
		r.Post("/execute", h.execute)
		r.Post("/check_status", h.checkStatus)
		r.Post("/fetch_result_data", h.fetchResultData)
		r.Post("/fetch_result_metadata", h.fetchResultMetadata)
		r.Post("/cancel_statement", h.cancelStatement)
		r.Post("/close_statement", h.closeStatement)
		r.Post("/get_logs", h.getLogs)
		r.Post("/explain", h.explain)

		r.Post("/notebook/save", h.saveNotebook)
		r.Get("/notebook/open", h.openNotebook)
		r.Post("/notebook/open", h.openNotebook)
		r.Post("/notebook/close", h.closeNotebook)
		r.Post("/notebook/delete", h.deleteNotebook)
		r.Post("/notebook/copy", h.copyNotebook)
		r.Get("/notebooks", h.listNotebooks)

		r.Route("/catalog/{type}", h.catalogRoutes)

		r.Get("/history", h.listHistory)
		r.Get("/history/{id}", h.getHistory)
	})
}

// Health reports liveness.
func Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

// user returns the caller set by the principal middleware.
func user(r *http.Request) string {
	name, _ := middleware.PrincipalFromContext(r.Context())
	return name
}

// writeOK writes a successful envelope with the given fields.
func writeOK(w http.ResponseWriter, fields map[string]any) {
	if fields == nil {
		fields = make(map[string]any, 1)
	}
	fields["status"] = statusOK
	writeJSON(w, http.StatusOK, fields)
}

// fail writes the envelope of err. Unexpected errors are logged.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	code := httpStatusFromDomainError(err)
	if code >= http.StatusInternalServerError {
		middleware.RequestLogger(r.Context(), h.logger).Error("request failed", "path", r.URL.Path, "error", err)
	}
	writeJSON(w, code, envelopeFromError(err))
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
