package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/tOgg1/dmsync/internal/models"
)

// ErrInvalidMessage is returned when a message cannot be stored.
var ErrInvalidMessage = errors.New("invalid message")

// Position is a point in a thread's history, ordered by (Timestamp, ItemID).
type Position struct {
	Timestamp int64  `json:"timestamp"`
	ItemID    string `json:"item_id"`
}

// PositionOf returns the position of m.
func PositionOf(m models.Message) Position {
	return Position{Timestamp: m.Timestamp, ItemID: m.ItemID}
}

// MessageRepository handles message persistence.
type MessageRepository struct {
	db *DB
}

// NewMessageRepository creates a new MessageRepository.
func NewMessageRepository(db *DB) *MessageRepository {
	return &MessageRepository{db: db}
}

// Insert stores msg in a thread. A missing ItemID is generated and a zero
// Timestamp is set to the current time in microseconds.
func (r *MessageRepository) Insert(ctx context.Context, threadID string, msg *models.Message) error {
	if msg == nil {
		return ErrInvalidMessage
	}
	if msg.ItemID == "" {
		msg.ItemID = uuid.NewString()
	}
	if msg.Timestamp == 0 {
		msg.Timestamp = time.Now().UnixMicro()
	}
	if msg.ItemType == "" {
		msg.ItemType = models.ItemTypeText
	}
	if err := models.ValidateMessage(*msg); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidMessage, err)
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO messages (id, thread_id, timestamp, is_sent_by_viewer, item_type, body_json)
		VALUES (?, ?, ?, ?, ?, ?)
	`, msg.ItemID, threadID, msg.Timestamp, msg.IsSentByViewer, string(msg.ItemType), string(body))
	if err != nil {
		return fmt.Errorf("failed to insert message: %w", err)
	}
	return nil
}

// Latest returns up to limit of the newest messages, newest first.
func (r *MessageRepository) Latest(ctx context.Context, threadID string, limit int) ([]models.Message, error) {
	return r.query(ctx, `
		SELECT body_json FROM messages
		WHERE thread_id = ?
		ORDER BY timestamp DESC, id DESC
		LIMIT ?
	`, threadID, normalizeLimit(limit))
}

// ListNewer returns the oldest limit messages with a timestamp greater than
// since, newest first. Messages sharing the last returned timestamp are all
// included even past limit, so a caller advancing since to the newest
// timestamp it saw never skips any.
func (r *MessageRepository) ListNewer(ctx context.Context, threadID string, since int64, limit int) ([]models.Message, error) {
	limit = normalizeLimit(limit)
	msgs, err := r.query(ctx, `
		SELECT body_json FROM messages
		WHERE thread_id = ? AND timestamp > ?
		ORDER BY timestamp ASC, id ASC
		LIMIT ?
	`, threadID, since, limit)
	if err != nil {
		return nil, err
	}

	if len(msgs) == limit {
		last := msgs[len(msgs)-1]
		ties, err := r.query(ctx, `
			SELECT body_json FROM messages
			WHERE thread_id = ? AND timestamp = ? AND id > ?
			ORDER BY id ASC
		`, threadID, last.Timestamp, last.ItemID)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, ties...)
	}

	slices.Reverse(msgs)
	return msgs, nil
}

// ListBefore returns up to limit messages strictly older than before, newest
// first, and whether older messages remain beyond them.
func (r *MessageRepository) ListBefore(ctx context.Context, threadID string, before Position, limit int) ([]models.Message, bool, error) {
	limit = normalizeLimit(limit)
	msgs, err := r.query(ctx, `
		SELECT body_json FROM messages
		WHERE thread_id = ? AND (timestamp, id) < (?, ?)
		ORDER BY timestamp DESC, id DESC
		LIMIT ?
	`, threadID, before.Timestamp, before.ItemID, limit+1)
	if err != nil {
		return nil, false, err
	}

	if len(msgs) > limit {
		return msgs[:limit], true, nil
	}
	return msgs, false, nil
}

// Count returns the number of messages in a thread.
func (r *MessageRepository) Count(ctx context.Context, threadID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages WHERE thread_id = ?`, threadID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count messages: %w", err)
	}
	return count, nil
}

func (r *MessageRepository) query(ctx context.Context, query string, args ...any) ([]models.Message, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	msgs := []models.Message{}
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		var msg models.Message
		if err := json.Unmarshal([]byte(body), &msg); err != nil {
			return nil, fmt.Errorf("failed to decode message: %w", err)
		}
		msgs = append(msgs, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating messages: %w", err)
	}
	return msgs, nil
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return 20
	}
	return limit
}
