package threadsync

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tOgg1/dmsync/internal/models"
)

func msg(id string, ts int64) models.Message {
	return models.Message{
		ItemID:    id,
		Timestamp: ts,
		ItemType:  models.ItemTypeText,
		Payload:   models.TextPayload{Text: id},
	}
}

func ids(msgs []models.Message) []string {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.ItemID)
	}
	return out
}

func TestCompare(t *testing.T) {
	require.Equal(t, RankNewer, Compare(msg("a", 2), msg("b", 1)))
	require.Equal(t, RankOlder, Compare(msg("a", 1), msg("b", 2)))
	require.Equal(t, RankEqual, Compare(msg("a", 5), msg("b", 5)))
}

func TestNewerBreaksTiesByIdentity(t *testing.T) {
	require.True(t, Newer(msg("b", 5), msg("a", 5)))
	require.False(t, Newer(msg("a", 5), msg("b", 5)))
	require.False(t, Newer(msg("a", 5), msg("a", 5)))
}

func TestSortNewestFirst(t *testing.T) {
	msgs := []models.Message{msg("a", 100), msg("c", 300), msg("x", 200), msg("y", 200)}
	SortNewestFirst(msgs)

	require.Equal(t, []string{"c", "y", "x", "a"}, ids(msgs))
	require.True(t, IsSortedNewestFirst(msgs))
	require.False(t, IsSortedNewestFirst([]models.Message{msg("a", 1), msg("b", 2)}))
}

func TestIndexFilter(t *testing.T) {
	idx := NewIndex()
	idx.Admit("a")
	idx.Admit("a")
	require.Equal(t, 1, idx.Len())

	fresh, dups := idx.Filter([]models.Message{msg("a", 1), msg("b", 2), msg("b", 3), msg("c", 4)})
	require.Equal(t, []string{"b", "c"}, ids(fresh))
	require.Equal(t, 2, dups)
	require.True(t, idx.Has("c"))
	require.Equal(t, 3, idx.Len())
}
