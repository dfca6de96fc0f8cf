package pagination

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
)

var ErrInvalidCursor = errors.New("invalid_cursor")

type Pagination struct {
	PageToken string `form:"page_token"`
	PageSize  int    `form:"page_size"`
}

// Cursor marks the last row of a page ordered by (created_at desc, id desc).
type Cursor struct {
	ID        string `json:"id,omitempty"`
	CreatedAt string `json:"created_at,omitempty"`
}

type PageInfo struct {
	NextPageToken string `json:"next_page_token"`
	HasMore       bool   `json:"has_more"`
}

// Tokens travel in query strings, so they use the URL-safe alphabet without padding.
func EncodeCursor(data Cursor) (string, error) {
	b, err := json.Marshal(data)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func DecodeCursor(data string) (*Cursor, error) {
	b, err := base64.RawURLEncoding.DecodeString(strings.TrimSpace(data))
	if err != nil {
		return nil, ErrInvalidCursor
	}

	var cursor Cursor
	if err := json.Unmarshal(b, &cursor); err != nil {
		return nil, ErrInvalidCursor
	}
	return &cursor, nil
}

// EncodeKeyset builds the token for a row keyed by id and creation time.
func EncodeKeyset(id snowflake.ID, createdAt time.Time) string {
	token, err := EncodeCursor(Cursor{
		ID:        id.String(),
		CreatedAt: createdAt.UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return ""
	}
	return token
}

// DecodeKeyset is the inverse of EncodeKeyset.
func DecodeKeyset(token string) (snowflake.ID, time.Time, error) {
	cursor, err := DecodeCursor(token)
	if err != nil {
		return 0, time.Time{}, err
	}
	createdAt, err := time.Parse(time.RFC3339Nano, cursor.CreatedAt)
	if err != nil {
		return 0, time.Time{}, ErrInvalidCursor
	}
	id, err := snowflake.ParseString(strings.TrimSpace(cursor.ID))
	if err != nil || id <= 0 {
		return 0, time.Time{}, ErrInvalidCursor
	}
	return id, createdAt, nil
}

// BuildCursorPageInfo expects data fetched with limit+1 rows. The extra row only
// signals that another page exists; the token points at the last row returned.
func BuildCursorPageInfo[T any](data []*T, limit int32, extractCursor func(*T) string) *PageInfo {
	if limit <= 0 || len(data) <= int(limit) {
		return &PageInfo{HasMore: false}
	}
	return &PageInfo{
		HasMore:       true,
		NextPageToken: extractCursor(data[limit-1]),
	}
}
