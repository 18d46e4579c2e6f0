// Package threadsync keeps one conversation thread's message list in sync
// with the conversation service. It merges an initial snapshot, backward
// pages and a forward poll stream into a single deduplicated list ordered
// newest first.
package threadsync

import (
	"cmp"
	"slices"

	"github.com/tOgg1/dmsync/internal/models"
)

// Rank is the result of comparing two messages by their ordering key.
type Rank int

const (
	RankOlder Rank = -1
	RankEqual Rank = 0
	RankNewer Rank = 1
)

// Identity returns the key two copies of the same message share.
func Identity(m models.Message) string {
	return m.ItemID
}

// OrderKey returns the key messages are ordered by.
func OrderKey(m models.Message) int64 {
	return m.Timestamp
}

// Compare ranks a against b by timestamp alone. Distinct messages may share
// a timestamp and compare RankEqual.
func Compare(a, b models.Message) Rank {
	return Rank(cmp.Compare(OrderKey(a), OrderKey(b)))
}

// Newer reports whether a sorts before b in a newest-first list. Equal
// timestamps are broken by identity: the lexically greater ItemID is newer.
func Newer(a, b models.Message) bool {
	switch Compare(a, b) {
	case RankNewer:
		return true
	case RankOlder:
		return false
	default:
		return Identity(a) > Identity(b)
	}
}

// SortNewestFirst sorts msgs in place, newest first.
func SortNewestFirst(msgs []models.Message) {
	slices.SortStableFunc(msgs, compareNewestFirst)
}

// IsSortedNewestFirst reports whether msgs is already in newest-first order.
func IsSortedNewestFirst(msgs []models.Message) bool {
	return slices.IsSortedFunc(msgs, compareNewestFirst)
}

func compareNewestFirst(a, b models.Message) int {
	switch {
	case Newer(a, b):
		return -1
	case Newer(b, a):
		return 1
	default:
		return 0
	}
}
