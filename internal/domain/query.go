package domain

import (
	"encoding/base64"
	"strings"
)

// QueryState is the gateway's view of a statement's lifecycle.
type QueryState string

// Query lifecycle states persisted on QueryHistory.last_state.
const (
	QueryStateSubmitted QueryState = "submitted"
	QueryStateRunning   QueryState = "running"
	QueryStateAvailable QueryState = "available"
	QueryStateFailed    QueryState = "failed"
	QueryStateExpired   QueryState = "expired"
)

// IsRunning reports whether the statement has not reached a final state.
func (s QueryState) IsRunning() bool {
	return s == QueryStateSubmitted || s == QueryStateRunning
}

// IsFailure reports whether the state represents a failed or lost statement.
func (s QueryState) IsFailure() bool {
	return s == QueryStateFailed || s == QueryStateExpired
}

// OperationState is the HiveServer2 TOperationState name reported by a backend.
type OperationState string

// HiveServer2 operation states.
const (
	OperationInitialized OperationState = "INITIALIZED_STATE"
	OperationRunning     OperationState = "RUNNING_STATE"
	OperationFinished    OperationState = "FINISHED_STATE"
	OperationCanceled    OperationState = "CANCELED_STATE"
	OperationClosed      OperationState = "CLOSED_STATE"
	OperationError       OperationState = "ERROR_STATE"
	OperationUnknown     OperationState = "UKNOWN_STATE"
	OperationPending     OperationState = "PENDING_STATE"
	OperationTimedOut    OperationState = "TIMEDOUT_STATE"
)

var operationStateMap = map[OperationState]QueryState{
	OperationInitialized: QueryStateSubmitted,
	OperationPending:     QueryStateSubmitted,
	OperationRunning:     QueryStateRunning,
	OperationFinished:    QueryStateAvailable,
	OperationCanceled:    QueryStateFailed,
	OperationError:       QueryStateFailed,
	OperationUnknown:     QueryStateFailed,
	OperationTimedOut:    QueryStateFailed,
	OperationClosed:      QueryStateExpired,
}

// QueryState maps a backend operation state to a gateway state. Unrecognized
// states are treated as failures.
func (s OperationState) QueryState() QueryState {
	if qs, ok := operationStateMap[s]; ok {
		return qs
	}
	return QueryStateFailed
}

// OperationStatus is a single poll result for a submitted statement.
type OperationStatus struct {
	State        OperationState
	ErrorMessage string
	SQLState     string
	TaskStatus   string
	HasResultSet bool
}

// QueryHandle is the opaque (secret, guid) pair a backend issues for a
// submitted statement. It is valid only while the owning session is alive.
type QueryHandle struct {
	Secret           []byte   `json:"secret"`
	GUID             []byte   `json:"guid"`
	OperationType    int      `json:"operation_type"`
	HasResultSet     bool     `json:"has_result_set"`
	ModifiedRowCount *float64 `json:"modified_row_count,omitempty"`
	LogContext       string   `json:"log_context,omitempty"`
}

// Key returns a stable string form of the handle's guid, used to index
// in-process state.
func (h *QueryHandle) Key() string {
	if h == nil {
		return ""
	}
	return base64.StdEncoding.EncodeToString(h.GUID)
}

// Validate checks that both halves of the handle are present.
func (h *QueryHandle) Validate() error {
	if h == nil {
		return ErrValidation("query handle is required")
	}
	if len(h.GUID) == 0 || len(h.Secret) == 0 {
		return ErrValidation("query handle requires guid and secret")
	}
	return nil
}

// ColumnMeta describes one result column.
type ColumnMeta struct {
	Name    string `json:"name"`
	Type    string `json:"type"`
	Comment string `json:"comment"`
}

// ResultSet is one fetched page of rows in row-major order.
type ResultSet struct {
	Columns []ColumnMeta `json:"meta"`
	Rows    [][]any      `json:"data"`
	HasMore bool         `json:"has_more"`
	Ready   bool         `json:"ready"`
}

// ColumnNames returns the names of the result columns.
func (r *ResultSet) ColumnNames() []string {
	names := make([]string, len(r.Columns))
	for i, c := range r.Columns {
		names[i] = c.Name
	}
	return names
}

// ServerType identifies the dialect spoken by a query server.
type ServerType string

// Supported query server types.
const (
	ServerTypeBeeswax  ServerType = "beeswax"
	ServerTypeImpala   ServerType = "impala"
	ServerTypeSparkSQL ServerType = "spark-sql"
	ServerTypeLocal    ServerType = "local"
)

// QueryType is the dialect recorded on a QueryHistory row.
type QueryType string

// History query types.
const (
	QueryTypeHQL    QueryType = "hql"
	QueryTypeImpala QueryType = "impala"
)

// QueryServer is the connection definition for one HS2-compatible backend.
type QueryServer struct {
	Name          string            `yaml:"name" json:"server_name"`
	Type          ServerType        `yaml:"type" json:"server_type"`
	Host          string            `yaml:"host" json:"server_host"`
	Port          int               `yaml:"port" json:"server_port"`
	TransportMode string            `yaml:"transport_mode" json:"transport_mode"`
	Auth          string            `yaml:"auth" json:"auth"`
	HTTPPath      string            `yaml:"http_path" json:"http_path"`
	Username      string            `yaml:"username" json:"-"`
	Password      string            `yaml:"password" json:"-"`
	CloseQueries  bool              `yaml:"close_queries" json:"close_queries"`
	Configuration map[string]string `yaml:"configuration" json:"-"`
}

// QueryTypeForServer returns the history query type for statements run on s.
func QueryTypeForServer(s ServerType) QueryType {
	if s == ServerTypeImpala {
		return QueryTypeImpala
	}
	return QueryTypeHQL
}

// Names of the query servers snippets are routed to.
const (
	ServerNameBeeswax  = "beeswax"
	ServerNameImpala   = "impala"
	ServerNameSparkSQL = "sparksql"
)

// ServerNameForSnippet maps a snippet type to the name of the query server
// it runs on.
func ServerNameForSnippet(t SnippetType) string {
	switch t {
	case SnippetImpala:
		return ServerNameImpala
	case SnippetSparkSQL:
		return ServerNameSparkSQL
	default:
		return ServerNameBeeswax
	}
}

// IsImpala reports whether the server speaks the Impala dialect.
func (s ServerType) IsImpala() bool {
	return strings.EqualFold(string(s), string(ServerTypeImpala))
}
