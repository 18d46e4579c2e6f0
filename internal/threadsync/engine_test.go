package threadsync

import (
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tOgg1/dmsync/internal/models"
)

func requireCanonical(t *testing.T, msgs []models.Message) {
	t.Helper()
	seen := make(map[string]bool, len(msgs))
	for _, m := range msgs {
		require.False(t, seen[m.ItemID], "duplicate item %q", m.ItemID)
		seen[m.ItemID] = true
	}
	require.True(t, IsSortedNewestFirst(msgs), "list not newest first: %v", ids(msgs))
}

func TestSeedSortsAndSetsWatermark(t *testing.T) {
	e := NewEngine()
	result := e.Seed([]models.Message{msg("a", 100), msg("c", 300), msg("b", 200), msg("a", 100)})

	require.True(t, result.Changed)
	require.Equal(t, 3, result.Admitted)
	require.Equal(t, 1, result.Duplicates)

	snap := e.Snapshot()
	require.Equal(t, []string{"c", "b", "a"}, ids(snap.Messages))
	require.Equal(t, int64(300), snap.Watermark.NewestTimestamp)
	require.Equal(t, models.CursorStart, snap.Watermark.Cursor)
	require.True(t, snap.Watermark.MoreAvailable)
	require.Equal(t, uint64(1), snap.Version)
}

func TestSeedEmptySnapshot(t *testing.T) {
	e := NewEngine()
	result := e.Seed(nil)

	require.False(t, result.Changed)
	require.Equal(t, int64(0), e.NewestTimestamp())
	require.Equal(t, uint64(0), e.Snapshot().Version)
}

// Poll returns an already known message alongside a new one.
func TestMergeNewerAdmitsOnlyNewMessages(t *testing.T) {
	e := NewEngine()
	e.Seed([]models.Message{msg("a", 100)})

	result := e.MergeNewer([]models.Message{msg("b", 200), msg("a", 100)})

	require.Equal(t, 1, result.Admitted)
	require.Equal(t, 1, result.Duplicates)
	require.Equal(t, []string{"b", "a"}, ids(e.Snapshot().Messages))
	require.Equal(t, int64(200), e.NewestTimestamp())
}

func TestMergeNewerIsIdempotent(t *testing.T) {
	e := NewEngine()
	e.Seed([]models.Message{msg("a", 100)})

	batch := []models.Message{msg("b", 200), msg("c", 250)}
	first := e.MergeNewer(batch)
	require.True(t, first.Changed)
	before := e.Snapshot()

	second := e.MergeNewer(batch)
	require.False(t, second.Changed)
	require.Equal(t, 2, second.Duplicates)

	after := e.Snapshot()
	require.Equal(t, before, after)
}

func TestMergeNewerEmptyBatchLeavesWatermark(t *testing.T) {
	e := NewEngine()
	e.Seed([]models.Message{msg("a", 100)})

	result := e.MergeNewer(nil)

	require.False(t, result.Changed)
	require.Equal(t, int64(100), e.NewestTimestamp())
	require.Equal(t, uint64(1), result.Version)
}

func TestMergeNewerResortsWhenBoundaryViolated(t *testing.T) {
	e := NewEngine()
	e.Seed([]models.Message{msg("a", 100), msg("b", 200)})

	// A late poll response can carry a message older than the current head.
	e.MergeNewer([]models.Message{msg("c", 300), msg("d", 150)})

	msgs := e.Snapshot().Messages
	require.Equal(t, []string{"c", "b", "d", "a"}, ids(msgs))
	requireCanonical(t, msgs)
	require.Equal(t, int64(300), e.NewestTimestamp())
}

func TestMergeNewerTiesUseIdentity(t *testing.T) {
	e := NewEngine()
	e.Seed([]models.Message{msg("m", 100)})

	e.MergeNewer([]models.Message{msg("a", 100), msg("z", 100)})

	require.Equal(t, []string{"z", "m", "a"}, ids(e.Snapshot().Messages))
}

// Two older pages: the second reports the start of history.
func TestMergeOlderPagesThenLatches(t *testing.T) {
	e := NewEngine()
	e.Seed([]models.Message{msg("a", 100)})

	first := e.MergeOlder([]models.Message{msg("c", 50)}, "X", true)
	require.True(t, first.Changed)
	require.False(t, first.Exhausted)
	require.Equal(t, []string{"a", "c"}, ids(e.Snapshot().Messages))
	require.Equal(t, models.Cursor("X"), e.Cursor())

	second := e.MergeOlder(nil, "Y", false)
	require.False(t, second.Changed)
	require.True(t, second.Exhausted)
	require.Equal(t, []string{"a", "c"}, ids(e.Snapshot().Messages))
	require.False(t, e.MoreAvailable())
	require.Equal(t, models.Cursor("X"), e.Cursor())
}

func TestMergeOlderExhaustionIgnoresPageContents(t *testing.T) {
	e := NewEngine()
	e.Seed([]models.Message{msg("a", 100)})

	result := e.MergeOlder([]models.Message{msg("z", 10)}, "Q", false)

	require.True(t, result.Exhausted)
	require.False(t, result.Changed)
	require.Equal(t, []string{"a"}, ids(e.Snapshot().Messages))
	require.Equal(t, models.CursorStart, e.Cursor())
}

func TestMergeOlderAdvancesCursorOnDuplicates(t *testing.T) {
	e := NewEngine()
	e.Seed([]models.Message{msg("a", 100), msg("b", 90)})

	result := e.MergeOlder([]models.Message{msg("b", 90)}, "next", true)

	require.False(t, result.Changed)
	require.Equal(t, 1, result.Duplicates)
	require.Equal(t, models.Cursor("next"), e.Cursor())
}

func TestMergeOlderSortsUnorderedPage(t *testing.T) {
	e := NewEngine()
	e.Seed([]models.Message{msg("a", 100)})

	e.MergeOlder([]models.Message{msg("c", 30), msg("b", 60), msg("late", 150)}, "X", true)

	msgs := e.Snapshot().Messages
	requireCanonical(t, msgs)
	require.Equal(t, []string{"late", "a", "b", "c"}, ids(msgs))
	require.Equal(t, int64(150), e.NewestTimestamp())
}

func TestMalformedMessagesAreRejected(t *testing.T) {
	e := NewEngine()
	e.Seed([]models.Message{msg("a", 100)})

	result := e.MergeNewer([]models.Message{msg("", 300), msg("b", 0), msg("c", 200)})

	require.Equal(t, 1, result.Admitted)
	require.Len(t, result.Rejected, 2)
	require.Equal(t, 0, result.Rejected[0].Index)
	require.Equal(t, 1, result.Rejected[1].Index)
	require.Equal(t, "b", result.Rejected[1].ItemID)
	for _, rej := range result.Rejected {
		require.True(t, errors.Is(rej.Err, models.ErrMalformedMessage))
	}
	require.Equal(t, []string{"c", "a"}, ids(e.Snapshot().Messages))
	require.Equal(t, int64(200), e.NewestTimestamp())
}

func TestMalformedOnlyPageAdvancesCursorWithoutLatching(t *testing.T) {
	e := NewEngine()
	e.Seed([]models.Message{msg("a", 100)})

	result := e.MergeOlder([]models.Message{msg("", 50)}, "X", true)

	require.Len(t, result.Rejected, 1)
	require.False(t, result.Changed)
	require.False(t, result.Exhausted)
	require.Equal(t, models.Cursor("X"), e.Cursor())
	require.True(t, e.MoreAvailable())
}

func TestClosedEngineIgnoresMerges(t *testing.T) {
	e := NewEngine()
	e.Seed([]models.Message{msg("a", 100)})
	e.Close()

	require.False(t, e.MergeNewer([]models.Message{msg("b", 200)}).Changed)
	require.False(t, e.MergeOlder([]models.Message{msg("c", 50)}, "X", true).Changed)
	require.Equal(t, []string{"a"}, ids(e.Snapshot().Messages))
	require.Equal(t, models.CursorStart, e.Cursor())
	require.True(t, e.Closed())
}

func TestSnapshotIsACopy(t *testing.T) {
	e := NewEngine()
	e.Seed([]models.Message{msg("a", 100)})

	snap := e.Snapshot()
	snap.Messages[0] = msg("mutated", 1)

	require.Equal(t, "a", e.Snapshot().Messages[0].ItemID)
}

// Any interleaving of merges ends with the union of distinct ids in order,
// and the watermark never decreases.
func TestConcurrentMergesKeepInvariants(t *testing.T) {
	e := NewEngine()
	e.Seed([]models.Message{msg("seed", 5000)})

	rng := rand.New(rand.NewSource(42))
	batches := make([][]models.Message, 40)
	want := map[string]bool{"seed": true}
	for i := range batches {
		for j := 0; j < 5; j++ {
			id := fmt.Sprintf("m%d", rng.Intn(120))
			batches[i] = append(batches[i], msg(id, int64(1+rng.Intn(10000))))
		}
	}

	// The same id may carry different timestamps across batches; only the
	// first admitted copy counts, so track ids only.
	for _, b := range batches {
		for _, m := range b {
			want[m.ItemID] = true
		}
	}

	var lastNewest int64
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i, b := range batches {
		wg.Add(1)
		go func(i int, b []models.Message) {
			defer wg.Done()
			if i%2 == 0 {
				e.MergeNewer(b)
			} else {
				e.MergeOlder(b, models.Cursor(fmt.Sprint(i)), true)
			}
			newest := e.NewestTimestamp()
			mu.Lock()
			if newest > lastNewest {
				lastNewest = newest
			}
			mu.Unlock()
		}(i, b)
	}
	wg.Wait()

	msgs := e.Snapshot().Messages
	requireCanonical(t, msgs)
	require.Len(t, msgs, len(want))
	require.Equal(t, lastNewest, e.NewestTimestamp())
}
