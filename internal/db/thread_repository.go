package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tOgg1/dmsync/internal/models"
)

// Thread repository errors.
var (
	ErrThreadNotFound = errors.New("thread not found")
	ErrInvalidThread  = errors.New("invalid thread")
)

// ThreadRepository handles thread and participant persistence.
type ThreadRepository struct {
	db *DB
}

// NewThreadRepository creates a new ThreadRepository.
func NewThreadRepository(db *DB) *ThreadRepository {
	return &ThreadRepository{db: db}
}

// Create stores a thread between viewer and peer. Users are upserted by
// username; missing IDs are generated. thread.ThreadID is generated when empty.
func (r *ThreadRepository) Create(ctx context.Context, thread *models.Thread) error {
	if thread == nil || len(thread.Users) == 0 || thread.Inviter.Username == "" || thread.Users[0].Username == "" {
		return fmt.Errorf("%w: viewer and peer usernames are required", ErrInvalidThread)
	}
	if thread.ThreadID == "" {
		thread.ThreadID = uuid.NewString()
	}

	return r.db.TransactionWithRetry(ctx, 0, 0, func(tx *sql.Tx) error {
		viewerID, err := upsertUser(ctx, tx, &thread.Inviter)
		if err != nil {
			return err
		}
		peerID, err := upsertUser(ctx, tx, &thread.Users[0])
		if err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO threads (id, viewer_id, peer_id, created_at) VALUES (?, ?, ?, ?)
		`, thread.ThreadID, viewerID, peerID, time.Now().UTC().Format(time.RFC3339))
		if err != nil {
			return fmt.Errorf("failed to insert thread: %w", err)
		}
		return nil
	})
}

func upsertUser(ctx context.Context, tx *sql.Tx, user *models.User) (string, error) {
	var existing string
	err := tx.QueryRowContext(ctx, `SELECT id FROM users WHERE username = ?`, user.Username).Scan(&existing)
	switch {
	case err == nil:
		user.ID = existing
		_, err = tx.ExecContext(ctx, `
			UPDATE users SET full_name = ?, profile_pic_url = ? WHERE id = ?
		`, user.FullName, user.ProfilePicURL, existing)
		if err != nil {
			return "", fmt.Errorf("failed to update user: %w", err)
		}
		return existing, nil
	case errors.Is(err, sql.ErrNoRows):
	default:
		return "", fmt.Errorf("failed to look up user: %w", err)
	}

	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO users (id, username, full_name, profile_pic_url) VALUES (?, ?, ?, ?)
	`, user.ID, user.Username, user.FullName, user.ProfilePicURL)
	if err != nil {
		return "", fmt.Errorf("failed to insert user: %w", err)
	}
	return user.ID, nil
}

const threadSelect = `
	SELECT t.id,
		v.id, v.username, v.full_name, v.profile_pic_url,
		p.id, p.username, p.full_name, p.profile_pic_url
	FROM threads t
	JOIN users v ON v.id = t.viewer_id
	JOIN users p ON p.id = t.peer_id
`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanThread(row rowScanner) (*models.Thread, error) {
	var thread models.Thread
	var viewer, peer models.User
	err := row.Scan(
		&thread.ThreadID,
		&viewer.ID, &viewer.Username, &viewer.FullName, &viewer.ProfilePicURL,
		&peer.ID, &peer.Username, &peer.FullName, &peer.ProfilePicURL,
	)
	if err != nil {
		return nil, err
	}
	thread.Inviter = viewer
	thread.Users = []models.User{peer}
	return &thread, nil
}

// Get returns a thread header without items.
func (r *ThreadRepository) Get(ctx context.Context, id string) (*models.Thread, error) {
	thread, err := scanThread(r.db.QueryRowContext(ctx, threadSelect+` WHERE t.id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrThreadNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get thread: %w", err)
	}
	return thread, nil
}

// List returns all thread headers, most recently active first.
func (r *ThreadRepository) List(ctx context.Context) ([]*models.Thread, error) {
	rows, err := r.db.QueryContext(ctx, threadSelect+`
		ORDER BY COALESCE((SELECT MAX(m.timestamp) FROM messages m WHERE m.thread_id = t.id), 0) DESC, t.id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list threads: %w", err)
	}
	defer rows.Close()

	var threads []*models.Thread
	for rows.Next() {
		thread, err := scanThread(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan thread: %w", err)
		}
		threads = append(threads, thread)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating threads: %w", err)
	}
	return threads, nil
}
