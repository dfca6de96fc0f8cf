package pagination

import (
	"net/url"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeysetTokenIsQuerySafe(t *testing.T) {
	createdAt := time.Date(2026, 7, 1, 9, 0, 0, 123456789, time.UTC)
	token := EncodeKeyset(snowflake.ID(1830000000000000001), createdAt)
	assert.Equal(t, token, url.QueryEscape(token))

	id, at, err := DecodeKeyset(token)
	require.NoError(t, err)
	assert.Equal(t, snowflake.ID(1830000000000000001), id)
	assert.True(t, createdAt.Equal(at))
}

func TestDecodeKeysetRejectsGarbage(t *testing.T) {
	for _, token := range []string{"%%%", "bm90LWpzb24", EncodeKeyset(0, time.Now())} {
		_, _, err := DecodeKeyset(token)
		assert.ErrorIs(t, err, ErrInvalidCursor, token)
	}
}

func TestBuildCursorPageInfo(t *testing.T) {
	rows := []*int{new(int), new(int), new(int)}
	*rows[0], *rows[1], *rows[2] = 1, 2, 3
	label := func(v *int) string { return string(rune('a' + *v)) }

	info := BuildCursorPageInfo(rows, 2, label)
	assert.True(t, info.HasMore)
	assert.Equal(t, "c", info.NextPageToken)

	info = BuildCursorPageInfo(rows, 3, label)
	assert.False(t, info.HasMore)
	assert.Empty(t, info.NextPageToken)
}
