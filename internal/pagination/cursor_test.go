package pagination

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCursorRoundTrip(t *testing.T) {
	cursor := EncodeCursor("doc-42")

	id, err := DecodeCursor(cursor)

	require.NoError(t, err)
	assert.Equal(t, "doc-42", id)
	assert.Empty(t, EncodeCursor(""))
}

func TestDecodeCursor_Invalid(t *testing.T) {
	for _, cursor := range []string{"!!!", "Zm9v", EncodeCursor("x")[:2]} {
		_, err := DecodeCursor(cursor)
		assert.ErrorIs(t, err, ErrInvalidCursor, cursor)
	}
}

func TestClampLimit(t *testing.T) {
	assert.Equal(t, DefaultLimit, ClampLimit(0))
	assert.Equal(t, DefaultLimit, ClampLimit(-3))
	assert.Equal(t, 7, ClampLimit(7))
	assert.Equal(t, MaxLimit, ClampLimit(MaxLimit+1))
}

func TestPaginate(t *testing.T) {
	items := []string{"d", "b", "a", "c", "e"}
	id := func(s string) string { return s }

	var seen []string
	cursor := ""
	for {
		page, err := Paginate(items, cursor, 2, id)
		require.NoError(t, err)
		seen = append(seen, page.Items...)
		if !page.HasMore {
			assert.Empty(t, page.Cursor)
			break
		}
		cursor = page.Cursor
	}

	assert.Equal(t, []string{"a", "b", "c", "d", "e"}, seen)
	assert.Equal(t, []string{"d", "b", "a", "c", "e"}, items)
}

func TestPaginate_Empty(t *testing.T) {
	page, err := Paginate([]int{}, "", 10, func(int) string { return "" })

	require.NoError(t, err)
	assert.Empty(t, page.Items)
	assert.False(t, page.HasMore)
}
