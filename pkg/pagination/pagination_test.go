package pagination

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestNormalizeLimit(t *testing.T) {
	require.Equal(t, DefaultLimit, NormalizeLimit(0))
	require.Equal(t, MaxLimit, NormalizeLimit(MaxLimit+10))
	require.Equal(t, 7, NormalizeLimit(7))
	require.Equal(t, 8, LimitWithBuffer(7))
}

func TestCursorRoundTrip(t *testing.T) {
	cursor := Cursor{CreatedAt: time.Date(2026, 10, 17, 9, 30, 0, 123, time.UTC), ID: uuid.New()}
	parsed, err := ParseCursor(EncodeCursor(cursor))
	require.NoError(t, err)
	require.True(t, parsed.CreatedAt.Equal(cursor.CreatedAt))
	require.Equal(t, cursor.ID, parsed.ID)

	empty, err := ParseCursor("  ")
	require.NoError(t, err)
	require.Nil(t, empty)

	_, err = ParseCursor("!!!")
	require.Error(t, err)
}

type row struct {
	id        uuid.UUID
	createdAt time.Time
}

func TestBuildPage(t *testing.T) {
	base := time.Date(2026, 10, 17, 0, 0, 0, 0, time.UTC)
	rows := []row{
		{id: uuid.New(), createdAt: base.Add(3 * time.Minute)},
		{id: uuid.New(), createdAt: base.Add(2 * time.Minute)},
		{id: uuid.New(), createdAt: base.Add(time.Minute)},
	}
	key := func(r row) Cursor { return Cursor{CreatedAt: r.createdAt, ID: r.id} }

	page := BuildPage(rows, 2, key)
	require.Len(t, page.Items, 2)
	require.NotEmpty(t, page.NextCursor)
	next, err := ParseCursor(page.NextCursor)
	require.NoError(t, err)
	require.Equal(t, rows[1].id, next.ID)

	last := BuildPage(rows[:1], 2, key)
	require.Len(t, last.Items, 1)
	require.Empty(t, last.NextCursor)

	none := BuildPage[row](nil, 2, key)
	require.NotNil(t, none.Items)
}
