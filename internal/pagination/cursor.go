package pagination

import (
	"encoding/base64"
	"errors"
	"sort"
	"strings"
)

const (
	DefaultLimit = 50
	MaxLimit     = 500
)

const cursorPrefix = "after:"

// PageResult represents a paginated result set
type PageResult[T any] struct {
	Items   []T    `json:"items"`
	Cursor  string `json:"cursor,omitempty"`
	HasMore bool   `json:"has_more"`
}

var (
	ErrInvalidCursor = errors.New("invalid cursor format")
)

// EncodeCursor creates an opaque cursor pointing after lastID
func EncodeCursor(lastID string) string {
	if lastID == "" {
		return ""
	}
	return base64.URLEncoding.EncodeToString([]byte(cursorPrefix + lastID))
}

// DecodeCursor returns the id the cursor points after. An empty cursor decodes to "".
func DecodeCursor(cursor string) (string, error) {
	if cursor == "" {
		return "", nil
	}

	decoded, err := base64.URLEncoding.DecodeString(cursor)
	if err != nil {
		return "", ErrInvalidCursor
	}

	lastID, ok := strings.CutPrefix(string(decoded), cursorPrefix)
	if !ok || lastID == "" {
		return "", ErrInvalidCursor
	}
	return lastID, nil
}

// ClampLimit applies the default and maximum page sizes.
func ClampLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	return min(limit, MaxLimit)
}

// Paginate sorts items by id and returns the page that starts after the cursor.
func Paginate[T any](items []T, cursor string, limit int, getID func(T) string) (*PageResult[T], error) {
	after, err := DecodeCursor(cursor)
	if err != nil {
		return nil, err
	}
	limit = ClampLimit(limit)

	sorted := make([]T, len(items))
	copy(sorted, items)
	sort.Slice(sorted, func(i, j int) bool { return getID(sorted[i]) < getID(sorted[j]) })

	start := sort.Search(len(sorted), func(i int) bool { return getID(sorted[i]) > after })
	end := min(start+limit, len(sorted))

	page := &PageResult[T]{Items: sorted[start:end]}
	if end < len(sorted) {
		page.HasMore = true
		page.Cursor = EncodeCursor(getID(sorted[end-1]))
	}
	return page, nil
}
