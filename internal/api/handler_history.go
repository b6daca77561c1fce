package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"hue-gateway/internal/domain"
)

// QueryHistory is the JSON form of a history record.
type QueryHistory struct {
	ID               string    `json:"id"`
	Query            string    `json:"query"`
	ServerName       string    `json:"server_name"`
	ServerHost       string    `json:"server_host"`
	ServerPort       int       `json:"server_port"`
	ServerType       string    `json:"server_type"`
	QueryType        string    `json:"query_type"`
	LastState        string    `json:"last_state"`
	HasResults       bool      `json:"has_results"`
	ModifiedRowCount *float64  `json:"modified_row_count,omitempty"`
	StatementNumber  int       `json:"statement_number"`
	ErrorMessage     *string   `json:"error_message,omitempty"`
	SubmissionDate   time.Time `json:"submission_date"`
	UpdatedAt        time.Time `json:"updated_at"`
}

func historyToAPI(h domain.QueryHistory) QueryHistory {
	return QueryHistory{
		ID:               h.ID,
		Query:            h.Query,
		ServerName:       h.ServerName,
		ServerHost:       h.ServerHost,
		ServerPort:       h.ServerPort,
		ServerType:       string(h.ServerType),
		QueryType:        string(h.QueryType),
		LastState:        string(h.LastState),
		HasResults:       h.HasResults,
		ModifiedRowCount: h.ModifiedRowCount,
		StatementNumber:  h.StatementNumber,
		ErrorMessage:     h.ErrorMessage,
		SubmissionDate:   h.SubmissionDate,
		UpdatedAt:        h.UpdatedAt,
	}
}

func (h *Handler) listHistory(w http.ResponseWriter, r *http.Request) {
	page, err := pageFromQuery(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	q := r.URL.Query()
	filter := domain.QueryHistoryFilter{Page: page}
	for _, st := range q["state"] {
		filter.States = append(filter.States, domain.QueryState(st))
	}
	if server := q.Get("server"); server != "" {
		filter.ServerName = &server
	}

	records, err := h.history.List(r.Context(), user(r), filter)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	out := make([]QueryHistory, 0, len(records))
	for _, rec := range records {
		out = append(out, historyToAPI(rec))
	}
	writeOK(w, map[string]any{
		"queries":         out,
		"next_page_token": page.NextPageToken(len(records)),
	})
}

func (h *Handler) getHistory(w http.ResponseWriter, r *http.Request) {
	rec, err := h.history.Get(r.Context(), user(r), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	okResponse(w, "query", historyToAPI(*rec))
}
