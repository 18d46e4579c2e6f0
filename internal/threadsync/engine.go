package threadsync

import (
	"sync"

	"github.com/tOgg1/dmsync/internal/models"
)

// Watermark bounds what has already been fetched for a thread.
type Watermark struct {
	// NewestTimestamp is the largest timestamp admitted so far, or 0.
	NewestTimestamp int64 `json:"newest_timestamp"`

	// Cursor is where the next older page starts.
	Cursor models.Cursor `json:"cursor"`

	// MoreAvailable is false once the service reported the start of history.
	// It never flips back.
	MoreAvailable bool `json:"more_available"`

	// Seen is the number of identities admitted.
	Seen int `json:"seen"`
}

// Snapshot is a point-in-time copy of the canonical list.
type Snapshot struct {
	// Version increments every time the list changes.
	Version   uint64           `json:"version"`
	Messages  []models.Message `json:"messages"`
	Watermark Watermark        `json:"watermark"`
}

// Rejection records a malformed message that was refused.
type Rejection struct {
	// Index is the position of the message within its batch.
	Index  int
	ItemID string
	Err    error
}

// MergeResult describes what a merge did.
type MergeResult struct {
	Source     models.FetchSource
	Admitted   int
	Duplicates int
	Rejected   []Rejection

	// Exhausted reports that older history is exhausted after this merge.
	Exhausted bool

	// Changed reports that the canonical list was mutated.
	Changed bool

	Version uint64
	Size    int
}

// Engine owns a thread's canonical list and watermark. All methods are safe
// for concurrent use; each merge is applied as one critical section.
type Engine struct {
	mu        sync.Mutex
	index     *Index
	messages  []models.Message
	watermark Watermark
	version   uint64
	closed    bool
}

// NewEngine returns an empty engine with more history assumed available.
func NewEngine() *Engine {
	return &Engine{
		index: NewIndex(),
		watermark: Watermark{
			Cursor:        models.CursorStart,
			MoreAvailable: true,
		},
	}
}

// Seed merges an initial snapshot. Items may arrive in any order; the list
// is fully sorted afterwards.
func (e *Engine) Seed(items []models.Message) MergeResult {
	e.mu.Lock()
	defer e.mu.Unlock()

	result := MergeResult{Source: models.SourceSnapshot}
	if e.closed {
		return e.finish(result)
	}

	valid := e.reject(items, &result)
	fresh, duplicates := e.index.Filter(valid)
	result.Duplicates = duplicates
	if len(fresh) == 0 {
		return e.finish(result)
	}

	e.messages = append(e.messages, fresh...)
	SortNewestFirst(e.messages)
	e.admitted(fresh, &result)
	return e.finish(result)
}

// MergeNewer merges messages returned by a poll. Survivors go to the head of
// the list. A batch with nothing new leaves the engine untouched.
func (e *Engine) MergeNewer(batch []models.Message) MergeResult {
	e.mu.Lock()
	defer e.mu.Unlock()

	result := MergeResult{Source: models.SourceNewer}
	if e.closed {
		return e.finish(result)
	}

	valid := e.reject(batch, &result)
	fresh, duplicates := e.index.Filter(valid)
	result.Duplicates = duplicates
	if len(fresh) == 0 {
		return e.finish(result)
	}

	SortNewestFirst(fresh)
	merged := make([]models.Message, 0, len(fresh)+len(e.messages))
	merged = append(merged, fresh...)
	merged = append(merged, e.messages...)
	if len(e.messages) > 0 && Newer(e.messages[0], fresh[len(fresh)-1]) {
		SortNewestFirst(merged)
	}
	e.messages = merged
	e.admitted(fresh, &result)
	return e.finish(result)
}

// MergeOlder merges one older page. When moreAvailable is false the engine
// latches exhaustion and ignores the rest of the page, cursor included.
// Otherwise survivors go to the tail and the cursor advances to nextCursor,
// even when nothing was admitted.
func (e *Engine) MergeOlder(batch []models.Message, nextCursor models.Cursor, moreAvailable bool) MergeResult {
	e.mu.Lock()
	defer e.mu.Unlock()

	result := MergeResult{Source: models.SourceOlder}
	if e.closed {
		return e.finish(result)
	}

	if !moreAvailable {
		e.watermark.MoreAvailable = false
		return e.finish(result)
	}

	valid := e.reject(batch, &result)
	fresh, duplicates := e.index.Filter(valid)
	result.Duplicates = duplicates
	e.watermark.Cursor = nextCursor
	if len(fresh) == 0 {
		return e.finish(result)
	}

	needsSort := !IsSortedNewestFirst(fresh) ||
		(len(e.messages) > 0 && Newer(fresh[0], e.messages[len(e.messages)-1]))
	e.messages = append(e.messages, fresh...)
	if needsSort {
		SortNewestFirst(e.messages)
	}
	e.admitted(fresh, &result)
	return e.finish(result)
}

// Close stops the engine from accepting merges. Later merges return
// unchanged results.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
}

// Closed reports whether Close has been called.
func (e *Engine) Closed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

// Snapshot returns a copy of the list and watermark.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	messages := make([]models.Message, len(e.messages))
	copy(messages, e.messages)
	return Snapshot{
		Version:   e.version,
		Messages:  messages,
		Watermark: e.currentWatermark(),
	}
}

// Watermark returns a copy of the watermark.
func (e *Engine) Watermark() Watermark {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.currentWatermark()
}

// NewestTimestamp returns the poll watermark.
func (e *Engine) NewestTimestamp() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.watermark.NewestTimestamp
}

// Cursor returns where the next older page starts.
func (e *Engine) Cursor() models.Cursor {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.watermark.Cursor
}

// MoreAvailable reports whether older history may remain.
func (e *Engine) MoreAvailable() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.watermark.MoreAvailable
}

// Len returns the number of messages in the list.
func (e *Engine) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.messages)
}

// reject validates batch, records malformed messages on result and returns
// the rest in batch order. Caller must hold e.mu.
func (e *Engine) reject(batch []models.Message, result *MergeResult) []models.Message {
	valid := batch[:0:0]
	for i, msg := range batch {
		if err := models.ValidateMessage(msg); err != nil {
			result.Rejected = append(result.Rejected, Rejection{
				Index:  i,
				ItemID: msg.ItemID,
				Err:    err,
			})
			continue
		}
		valid = append(valid, msg)
	}
	return valid
}

// admitted bumps the version and raises the newest timestamp for fresh.
// Caller must hold e.mu.
func (e *Engine) admitted(fresh []models.Message, result *MergeResult) {
	for _, msg := range fresh {
		if msg.Timestamp > e.watermark.NewestTimestamp {
			e.watermark.NewestTimestamp = msg.Timestamp
		}
	}
	e.version++
	result.Admitted = len(fresh)
	result.Changed = true
}

// finish fills the fields every result carries. Caller must hold e.mu.
func (e *Engine) finish(result MergeResult) MergeResult {
	result.Exhausted = !e.watermark.MoreAvailable
	result.Version = e.version
	result.Size = len(e.messages)
	return result
}

func (e *Engine) currentWatermark() Watermark {
	wm := e.watermark
	wm.Seen = e.index.Len()
	return wm
}
