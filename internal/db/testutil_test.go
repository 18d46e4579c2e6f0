package db

import (
	"context"
	"testing"
)

func setupTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := OpenInMemory()
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if _, err := db.MigrateUp(context.Background()); err != nil {
		t.Fatalf("failed to migrate database: %v", err)
	}
	return db
}
