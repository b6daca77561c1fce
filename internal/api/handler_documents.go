package api

import (
	"net/http"
	"strconv"

	"hue-gateway/internal/domain"
)

func (h *Handler) saveNotebook(w http.ResponseWriter, r *http.Request) {
	args, err := parseCall(w, r, false)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	nb, err := h.notebooks.Save(r.Context(), user(r), args.notebook)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeOK(w, map[string]any{"id": nb.ID, "message": "Notebook saved"})
}

func (h *Handler) openNotebook(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("notebook")
	if id == "" && r.Method == http.MethodPost {
		args, err := parseCall(w, r, false)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		id = args.params["id"]
	}
	if id == "" {
		h.fail(w, r, domain.ErrValidation("notebook id is required"))
		return
	}
	nb, err := h.notebooks.Open(r.Context(), user(r), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	okResponse(w, "notebook", nb)
}

func (h *Handler) closeNotebook(w http.ResponseWriter, r *http.Request) {
	args, err := parseCall(w, r, false)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	okResponse(w, "result", h.notebooks.CloseNotebook(r.Context(), user(r), args.notebook))
}

func (h *Handler) deleteNotebook(w http.ResponseWriter, r *http.Request) {
	args, err := parseCall(w, r, false)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	id := args.params["id"]
	if id == "" {
		id = args.notebook.ID
	}
	if id == "" {
		h.fail(w, r, domain.ErrValidation("notebook id is required"))
		return
	}
	if err := h.notebooks.Delete(r.Context(), user(r), id); err != nil {
		h.fail(w, r, err)
		return
	}
	writeOK(w, nil)
}

func (h *Handler) copyNotebook(w http.ResponseWriter, r *http.Request) {
	args, err := parseCall(w, r, false)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	id := args.params["id"]
	if id == "" {
		id = args.notebook.ID
	}
	if id == "" {
		h.fail(w, r, domain.ErrValidation("notebook id is required"))
		return
	}
	nb, err := h.notebooks.Copy(r.Context(), user(r), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeOK(w, map[string]any{"id": nb.ID, "notebook": nb, "message": "Notebook copied"})
}

func (h *Handler) listNotebooks(w http.ResponseWriter, r *http.Request) {
	page, err := pageFromQuery(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	notebooks, err := h.notebooks.List(r.Context(), user(r), page)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeOK(w, map[string]any{
		"notebooks":       notebooks,
		"next_page_token": page.NextPageToken(len(notebooks)),
	})
}

// pageFromQuery extracts a PageRequest from the max_results and page_token
// query parameters.
func pageFromQuery(r *http.Request) (domain.PageRequest, error) {
	q := r.URL.Query()
	p := domain.PageRequest{PageToken: q.Get("page_token")}
	if v := q.Get("max_results"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return p, domain.ErrValidation("max_results must be a non-negative integer")
		}
		p.MaxResults = n
	}
	return p, nil
}
