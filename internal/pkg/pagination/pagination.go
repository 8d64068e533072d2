package pagination

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var ErrInvalidCursor = errors.New("invalid cursor")

const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// SortOrder represents sort direction
type SortOrder string

const (
	ASC  SortOrder = "ASC"
	DESC SortOrder = "DESC"
)

// Cursor is a keyset position over (created_at, id).
type Cursor struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
}

// Encode encodes cursor to base64 string
func (c *Cursor) Encode() string {
	if c == nil {
		return ""
	}
	data, _ := json.Marshal(c)
	return base64.RawURLEncoding.EncodeToString(data)
}

// DecodeCursor decodes base64 string to Cursor. An empty string is the first page.
func DecodeCursor(encoded string) (*Cursor, error) {
	if encoded == "" {
		return nil, nil
	}

	data, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return nil, ErrInvalidCursor
	}

	var cursor Cursor
	if err := json.Unmarshal(data, &cursor); err != nil {
		return nil, ErrInvalidCursor
	}
	if cursor.ID == "" || cursor.CreatedAt.IsZero() {
		return nil, ErrInvalidCursor
	}

	return &cursor, nil
}

// CursorRequest represents cursor-based pagination request
type CursorRequest struct {
	Cursor    string
	Limit     int
	SortOrder SortOrder
}

// NewCursorRequest creates a new cursor request with defaults
func NewCursorRequest(cursor string, limit int) *CursorRequest {
	return &CursorRequest{
		Cursor:    cursor,
		Limit:     limit,
		SortOrder: DESC,
	}
}

// GetLimit returns validated limit
func (r *CursorRequest) GetLimit() int {
	if r.Limit <= 0 {
		return DefaultLimit
	}
	if r.Limit > MaxLimit {
		return MaxLimit
	}
	return r.Limit
}

// GetFetchLimit returns limit+1 for checking hasMore
func (r *CursorRequest) GetFetchLimit() int {
	return r.GetLimit() + 1
}

// DecodedCursor returns the decoded cursor
func (r *CursorRequest) DecodedCursor() (*Cursor, error) {
	return DecodeCursor(r.Cursor)
}

// CursorResponse represents cursor-based pagination response
type CursorResponse[T any] struct {
	Items      []T    `json:"items"`
	NextCursor string `json:"next_cursor,omitempty"`
	HasMore    bool   `json:"has_more"`
}

// BuildCursorResponse trims the extra fetched row and derives the next cursor
// from the last item kept.
func BuildCursorResponse[T any](items []T, limit int, cursorBuilder func(T) *Cursor) *CursorResponse[T] {
	hasMore := len(items) > limit
	if hasMore {
		items = items[:limit]
	}

	resp := &CursorResponse[T]{
		Items:   items,
		HasMore: hasMore,
	}

	if len(items) > 0 && hasMore {
		resp.NextCursor = cursorBuilder(items[len(items)-1]).Encode()
	}

	return resp
}

// SQLCursorCondition generates a keyset WHERE condition whose two
// placeholders start at argPos.
func SQLCursorCondition(sortField string, order SortOrder, argPos int) string {
	op := "<"
	if order == ASC {
		op = ">"
	}
	return fmt.Sprintf("(%s, id) %s ($%d, $%d)", sortField, op, argPos, argPos+1)
}

// SQLOrderBy generates ORDER BY clause
func SQLOrderBy(sortField string, order SortOrder) string {
	return fmt.Sprintf("%s %s, id %s", sortField, order, order)
}
