package domain

import (
	"encoding/json"
	"time"
)

// SnippetType selects the backend adapter a snippet runs on.
type SnippetType string

// Snippet types understood by the gateway.
const (
	SnippetHive     SnippetType = "hive"
	SnippetImpala   SnippetType = "impala"
	SnippetSparkSQL SnippetType = "spark-sql"
	SnippetSpark    SnippetType = "spark"
	SnippetPySpark  SnippetType = "pyspark"
	SnippetR        SnippetType = "r"
	SnippetJar      SnippetType = "jar"
	SnippetPy       SnippetType = "py"
	SnippetText     SnippetType = "text"
)

// SessionState is the lifecycle state of an interactive backend session.
type SessionState string

// Session states reported by the Livy session server.
const (
	SessionNotStarted SessionState = "not_started"
	SessionStarting   SessionState = "starting"
	SessionIdle       SessionState = "idle"
	SessionBusy       SessionState = "busy"
	SessionError      SessionState = "error"
	SessionDead       SessionState = "dead"
)

// Session is an interactive session bound to a snippet type. HS2 and text
// sessions carry no ID.
type Session struct {
	Type       SnippetType       `json:"type"`
	ID         *int              `json:"id"`
	State      SessionState      `json:"state,omitempty"`
	Properties map[string]string `json:"properties,omitempty"`
}

// SnippetResult carries the opaque backend reference for a submitted snippet.
type SnippetResult struct {
	Handle map[string]any `json:"handle,omitempty"`
	Type   string         `json:"type,omitempty"`
}

// Snippet is one executable unit of a notebook.
type Snippet struct {
	ID         string         `json:"id"`
	Type       SnippetType    `json:"type"`
	Statement  string         `json:"statement"`
	Properties map[string]any `json:"properties,omitempty"`
	Result     SnippetResult  `json:"result"`
	Status     string         `json:"status,omitempty"`
}

// StringProperty returns a string-valued snippet property or "".
func (s *Snippet) StringProperty(key string) string {
	if s.Properties == nil {
		return ""
	}
	v, _ := s.Properties[key].(string)
	return v
}

// StringsProperty returns a list-valued snippet property. Non-string
// elements are skipped.
func (s *Snippet) StringsProperty(key string) []string {
	if s.Properties == nil {
		return nil
	}
	switch v := s.Properties[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if str, ok := item.(string); ok {
				out = append(out, str)
			}
		}
		return out
	}
	return nil
}

// Notebook is an editor document: ordered snippets plus the sessions they use.
type Notebook struct {
	ID          string    `json:"id"`
	UUID        string    `json:"uuid,omitempty"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Snippets    []Snippet `json:"snippets"`
	Sessions    []Session `json:"sessions"`
}

// SessionFor returns the notebook's session for a snippet type, if any.
func (n *Notebook) SessionFor(t SnippetType) *Session {
	for i := range n.Sessions {
		if n.Sessions[i].Type == t {
			return &n.Sessions[i]
		}
	}
	return nil
}

// NotebookDocument is a saved notebook as persisted for its owner.
type NotebookDocument struct {
	ID        string
	Owner     string
	Name      string
	Data      json.RawMessage
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Validate validates a notebook before it is saved.
func (n *Notebook) Validate() error {
	if n.Name == "" {
		return ErrValidation("notebook name is required")
	}
	for _, s := range n.Snippets {
		if s.Type == "" {
			return ErrValidation("snippet %q has no type", s.ID)
		}
	}
	return nil
}
