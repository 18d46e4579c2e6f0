package threadsync

import "github.com/tOgg1/dmsync/internal/models"

// Index records every message identity admitted to a thread. It only grows;
// a session's index lives as long as the session.
//
// Index is not safe for concurrent use. Engine serializes access.
type Index struct {
	seen map[string]struct{}
}

// NewIndex returns an empty index.
func NewIndex() *Index {
	return &Index{seen: make(map[string]struct{})}
}

// Has reports whether id has been admitted.
func (x *Index) Has(id string) bool {
	_, ok := x.seen[id]
	return ok
}

// Admit records id. Admitting an id twice is a no-op.
func (x *Index) Admit(id string) {
	x.seen[id] = struct{}{}
}

// Len returns the number of admitted identities.
func (x *Index) Len() int {
	return len(x.seen)
}

// Filter admits every message of batch whose identity is new and returns
// them in batch order. Repeats, including repeats within batch itself, are
// counted as duplicates; the first occurrence wins.
func (x *Index) Filter(batch []models.Message) ([]models.Message, int) {
	fresh := make([]models.Message, 0, len(batch))
	duplicates := 0
	for _, msg := range batch {
		id := Identity(msg)
		if x.Has(id) {
			duplicates++
			continue
		}
		x.Admit(id)
		fresh = append(fresh, msg)
	}
	return fresh, duplicates
}
