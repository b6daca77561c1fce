package domain

import (
	"encoding/base64"
	"strconv"
)

// DefaultPageSize is the page size used when a listing specifies none.
const DefaultPageSize = 50

// MaxPageSize is the largest page a listing may request.
const MaxPageSize = 500

// PageRequest holds pagination parameters for list operations.
type PageRequest struct {
	MaxResults int
	PageToken  string // base64-encoded offset
}

// Offset decodes the page token into an integer offset.
// Returns 0 if the token is empty or invalid.
func (p PageRequest) Offset() int {
	if p.PageToken == "" {
		return 0
	}
	decoded, err := base64.RawURLEncoding.DecodeString(p.PageToken)
	if err != nil {
		return 0
	}
	offset, err := strconv.Atoi(string(decoded))
	if err != nil || offset < 0 {
		return 0
	}
	return offset
}

// Limit returns the effective page size, clamped to [1, MaxPageSize].
func (p PageRequest) Limit() int {
	switch {
	case p.MaxResults <= 0:
		return DefaultPageSize
	case p.MaxResults > MaxPageSize:
		return MaxPageSize
	}
	return p.MaxResults
}

// NextPageToken returns the token for the page after one that returned
// fetched rows, or "" when the page was not full.
func (p PageRequest) NextPageToken(fetched int) string {
	if fetched < p.Limit() {
		return ""
	}
	return base64.RawURLEncoding.EncodeToString([]byte(strconv.Itoa(p.Offset() + fetched)))
}
