package testutil

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tOgg1/dmsync/internal/db"
	"github.com/tOgg1/dmsync/internal/devserver"
)

// Service is a development conversation service running on loopback.
type Service struct {
	URL string
	DB  *db.DB
}

// StartService serves an in-memory database seeded with the demo thread.
// The server and database are closed when the test ends.
func StartService(t *testing.T, seed, pageSize int) *Service {
	t.Helper()
	SkipIfNoNetwork(t)

	database, err := db.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })

	ctx := context.Background()
	_, err = database.MigrateUp(ctx)
	require.NoError(t, err)
	if seed > 0 {
		require.NoError(t, devserver.Seed(ctx, database, seed))
	}

	srv := httptest.NewServer(devserver.New(devserver.Config{PageSize: pageSize}, database).Handler())
	t.Cleanup(srv.Close)
	return &Service{URL: srv.URL, DB: database}
}
