package notebook

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"hue-gateway/internal/db"
	"hue-gateway/internal/db/repository"
	"hue-gateway/internal/dbms"
	"hue-gateway/internal/domain"
	"hue-gateway/internal/livy"
	"hue-gateway/internal/testutil"
)

// hs2Fixture is a Service whose HiveServer2 sessions are mocks.
type hs2Fixture struct {
	svc     *Service
	pool    *dbms.Pool
	servers map[string]domain.QueryServer

	mu      sync.Mutex
	clients []*testutil.MockQueryServerClient
	// configure is applied to every new mock client.
	configure func(*testutil.MockQueryServerClient)
}

func newHS2Fixture(t *testing.T, closeQueries bool) *hs2Fixture {
	t.Helper()
	writeDB, _ := db.OpenTestSQLite(t)
	f := &hs2Fixture{
		servers: map[string]domain.QueryServer{
			domain.ServerNameBeeswax: {Name: domain.ServerNameBeeswax, Type: domain.ServerTypeBeeswax, Host: "hive", Port: 10000, CloseQueries: closeQueries},
			domain.ServerNameImpala:  {Name: domain.ServerNameImpala, Type: domain.ServerTypeImpala, Host: "impala", Port: 21050, CloseQueries: closeQueries},
		},
	}
	f.pool = dbms.NewPool(dbms.PoolOptions{
		Dial:   f.dial,
		Lookup: f.lookup,
		Dbms:   dbms.Options{History: repository.NewQueryHistoryRepo(writeDB)},
	})
	t.Cleanup(func() { _ = f.pool.CloseAll() })
	f.svc = New(Options{Pool: f.pool})
	return f
}

func (f *hs2Fixture) dial(_ context.Context, _ domain.QueryServer, _ string) (domain.QueryServerClient, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := &testutil.MockQueryServerClient{}
	if f.configure != nil {
		f.configure(c)
	}
	f.clients = append(f.clients, c)
	return c, nil
}

func (f *hs2Fixture) lookup(name string) (domain.QueryServer, error) {
	s, ok := f.servers[name]
	if !ok {
		return domain.QueryServer{}, domain.ErrNotFound("query server %q is not configured", name)
	}
	return s, nil
}

func (f *hs2Fixture) client(i int) *testutil.MockQueryServerClient {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.clients[i]
}

func (f *hs2Fixture) dials() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.clients)
}

// livyCall is one request received by the fake Livy server.
type livyCall struct {
	Method string
	Path   string
	Query  string
	Body   map[string]any
}

type livyRecorder struct {
	mu    sync.Mutex
	calls []livyCall
}

func (r *livyRecorder) all() []livyCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]livyCall(nil), r.calls...)
}

func (r *livyRecorder) paths(method string) []string {
	var out []string
	for _, c := range r.all() {
		if c.Method == method {
			out = append(out, c.Path)
		}
	}
	return out
}

// newLivy starts a fake Livy server and returns a client for it.
func newLivy(t *testing.T, handler func(w http.ResponseWriter, r *http.Request)) (*livy.Client, *livyRecorder) {
	t.Helper()
	rec := &livyRecorder{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		call := livyCall{Method: r.Method, Path: r.URL.Path, Query: r.URL.RawQuery}
		_ = json.NewDecoder(r.Body).Decode(&call.Body)
		rec.mu.Lock()
		rec.calls = append(rec.calls, call)
		rec.mu.Unlock()
		handler(w, r)
	}))
	t.Cleanup(srv.Close)
	return livy.New(livy.Options{URL: srv.URL}), rec
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func notFound(w http.ResponseWriter, msg string) {
	w.WriteHeader(http.StatusNotFound)
	_, _ = w.Write([]byte(msg))
}

func intPtr(n int) *int { return &n }

// sparkNotebook returns a notebook with an open session of type t.
func sparkNotebook(t domain.SnippetType, sessionID int) *domain.Notebook {
	return &domain.Notebook{
		Name:     "nb",
		Sessions: []domain.Session{{Type: t, ID: intPtr(sessionID)}},
	}
}
