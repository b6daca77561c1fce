package api

import (
	"net/http"

	"hue-gateway/internal/domain"
	"hue-gateway/internal/service/notebook"
)

// snippetCall decodes a call on one snippet and returns the adapter for it.
func (h *Handler) snippetCall(w http.ResponseWriter, r *http.Request) (*callArgs, notebook.API, bool) {
	args, err := parseCall(w, r, true)
	if err != nil {
		h.fail(w, r, err)
		return nil, nil, false
	}
	if args.snippet.Type == "" {
		h.fail(w, r, domain.ErrValidation("snippet type is required"))
		return nil, nil, false
	}
	return args, h.notebooks.Get(user(r), args.snippet.Type), true
}

func (h *Handler) createSession(w http.ResponseWriter, r *http.Request) {
	args, api, ok := h.snippetCall(w, r)
	if !ok {
		return
	}
	var properties map[string]string
	if s := args.notebook.SessionFor(args.snippet.Type); s != nil {
		properties = s.Properties
	}
	session, err := api.CreateSession(r.Context(), args.snippet.Type, properties)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	okResponse(w, "session", session)
}

func (h *Handler) execute(w http.ResponseWriter, r *http.Request) {
	args, api, ok := h.snippetCall(w, r)
	if !ok {
		return
	}
	handle, err := api.Execute(r.Context(), args.notebook, args.snippet)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	okResponse(w, "handle", handle)
}

func (h *Handler) checkStatus(w http.ResponseWriter, r *http.Request) {
	args, api, ok := h.snippetCall(w, r)
	if !ok {
		return
	}
	status, err := api.CheckStatus(r.Context(), args.notebook, args.snippet)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	okResponse(w, "query_status", status)
}

func (h *Handler) fetchResultData(w http.ResponseWriter, r *http.Request) {
	args, api, ok := h.snippetCall(w, r)
	if !ok {
		return
	}
	rows, err := args.intParam("rows", defaultFetchRows)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	startOver, err := args.boolParam("startOver", true)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	result, err := api.FetchResult(r.Context(), args.notebook, args.snippet, int64(rows), startOver)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	okResponse(w, "result", result)
}

func (h *Handler) fetchResultMetadata(w http.ResponseWriter, r *http.Request) {
	args, api, ok := h.snippetCall(w, r)
	if !ok {
		return
	}
	meta, err := api.FetchResultMetadata(r.Context(), args.notebook, args.snippet)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	okResponse(w, "result", map[string]any{"meta": meta})
}

func (h *Handler) cancelStatement(w http.ResponseWriter, r *http.Request) {
	args, api, ok := h.snippetCall(w, r)
	if !ok {
		return
	}
	ack, err := api.Cancel(r.Context(), args.notebook, args.snippet)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	okResponse(w, "result", ack)
}

func (h *Handler) closeStatement(w http.ResponseWriter, r *http.Request) {
	args, api, ok := h.snippetCall(w, r)
	if !ok {
		return
	}
	ack, err := api.Close(r.Context(), args.notebook, args.snippet)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	okResponse(w, "result", ack)
}

func (h *Handler) getLogs(w http.ResponseWriter, r *http.Request) {
	args, api, ok := h.snippetCall(w, r)
	if !ok {
		return
	}
	from, err := args.intParam("from", 0)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	size, err := args.intParam("size", defaultLogSize)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	logs, err := api.GetLog(r.Context(), args.notebook, args.snippet, from, size)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	jobs, err := api.GetJobs(r.Context(), args.notebook, args.snippet, logs)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if jobs == nil {
		jobs = []notebook.Job{}
	}
	writeOK(w, map[string]any{
		"logs":     logs,
		"progress": api.Progress(args.snippet, logs),
		"jobs":     jobs,
	})
}

func okResponse(w http.ResponseWriter, key string, v any) {
	writeOK(w, map[string]any{key: v})
}
