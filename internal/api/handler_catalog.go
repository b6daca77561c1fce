package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"hue-gateway/internal/domain"
	"hue-gateway/internal/service/notebook"
)

// catalogRoutes registers metastore browsing for one snippet type.
func (h *Handler) catalogRoutes(r chi.Router) {
	r.Get("/databases", h.listDatabases)
	r.Get("/databases/{database}/tables", h.listTables)
	r.Post("/databases/{database}/invalidate", h.invalidateTables)
	r.Route("/databases/{database}/tables/{table}", func(r chi.Router) {
		r.Get("/sample", h.sampleTable)
		r.Get("/stats", h.tableStats)
		r.Get("/columns/{column}/terms", h.topTerms)
		r.Post("/analyze", h.analyzeTable)
		r.Post("/drop", h.dropTable)
	})
}

// catalog returns the adapter for the snippet type in the path.
func (h *Handler) catalog(w http.ResponseWriter, r *http.Request) (*notebook.HS2API, domain.SnippetType, bool) {
	lang := domain.SnippetType(chi.URLParam(r, "type"))
	api, err := h.notebooks.Catalog(user(r), lang)
	if err != nil {
		h.fail(w, r, err)
		return nil, "", false
	}
	return api, lang, true
}

func (h *Handler) listDatabases(w http.ResponseWriter, r *http.Request) {
	api, lang, ok := h.catalog(w, r)
	if !ok {
		return
	}
	databases, err := api.Databases(r.Context(), lang)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	okResponse(w, "databases", databases)
}

func (h *Handler) listTables(w http.ResponseWriter, r *http.Request) {
	api, lang, ok := h.catalog(w, r)
	if !ok {
		return
	}
	tables, err := api.Tables(r.Context(), lang, chi.URLParam(r, "database"), r.URL.Query().Get("filter"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	okResponse(w, "tables", tables)
}

func (h *Handler) sampleTable(w http.ResponseWriter, r *http.Request) {
	api, lang, ok := h.catalog(w, r)
	if !ok {
		return
	}
	result, err := api.Sample(r.Context(), lang, chi.URLParam(r, "database"), chi.URLParam(r, "table"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	okResponse(w, "result", result)
}

func (h *Handler) tableStats(w http.ResponseWriter, r *http.Request) {
	api, lang, ok := h.catalog(w, r)
	if !ok {
		return
	}
	stats, err := api.TableStats(r.Context(), lang, chi.URLParam(r, "database"), chi.URLParam(r, "table"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	okResponse(w, "stats", stats)
}

func (h *Handler) topTerms(w http.ResponseWriter, r *http.Request) {
	api, lang, ok := h.catalog(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	limit := 0
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			h.fail(w, r, domain.ErrValidation("limit must be an integer"))
			return
		}
		limit = n
	}
	terms, err := api.TopTerms(r.Context(), lang,
		chi.URLParam(r, "database"), chi.URLParam(r, "table"), chi.URLParam(r, "column"),
		limit, q.Get("prefix"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	okResponse(w, "terms", terms)
}

func (h *Handler) analyzeTable(w http.ResponseWriter, r *http.Request) {
	api, lang, ok := h.catalog(w, r)
	if !ok {
		return
	}
	args, err := parseCall(w, r, false)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	columns, err := args.boolParam("columns", false)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	handle, err := api.Analyze(r.Context(), lang, chi.URLParam(r, "database"), chi.URLParam(r, "table"), columns)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	okResponse(w, "handle", handle)
}

func (h *Handler) dropTable(w http.ResponseWriter, r *http.Request) {
	api, lang, ok := h.catalog(w, r)
	if !ok {
		return
	}
	args, err := parseCall(w, r, false)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	isView, err := args.boolParam("view", false)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	handle, err := api.DropTable(r.Context(), lang, chi.URLParam(r, "database"), chi.URLParam(r, "table"), isView)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	okResponse(w, "handle", handle)
}

func (h *Handler) invalidateTables(w http.ResponseWriter, r *http.Request) {
	api, lang, ok := h.catalog(w, r)
	if !ok {
		return
	}
	args, err := parseCall(w, r, false)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var tables []string
	if err := json.Unmarshal([]byte(args.params["tables"]), &tables); err != nil || len(tables) == 0 {
		h.fail(w, r, domain.ErrValidation("tables must be a non-empty JSON list of names"))
		return
	}
	if err := api.InvalidateTables(r.Context(), lang, chi.URLParam(r, "database"), tables); err != nil {
		h.fail(w, r, err)
		return
	}
	writeOK(w, nil)
}

func (h *Handler) explain(w http.ResponseWriter, r *http.Request) {
	args, _, ok := h.snippetCall(w, r)
	if !ok {
		return
	}
	api, err := h.notebooks.Catalog(user(r), args.snippet.Type)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	plan, err := api.Explain(r.Context(), args.snippet)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeOK(w, map[string]any{"explanation": plan, "statement": args.snippet.Statement})
}
