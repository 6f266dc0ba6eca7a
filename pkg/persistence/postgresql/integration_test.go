package postgresql_test

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/docstream/queryengine/pkg/models"
	"github.com/docstream/queryengine/pkg/persistence"
	"github.com/docstream/queryengine/pkg/persistence/postgresql"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Integration tests run only against a real database. Point
// QUERYENGINE_TEST_DATABASE_URL at a disposable postgres instance.
func setupTestDB(t *testing.T) (*postgresql.Persistence, context.Context) {
	t.Helper()

	databaseURL := os.Getenv("QUERYENGINE_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("QUERYENGINE_TEST_DATABASE_URL not set")
	}

	ctx := context.Background()

	store, err := postgresql.NewPersistence(ctx, slog.Default(), databaseURL)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = store.Close(ctx)
	})

	return store, ctx
}

func TestQueryRoundTrip(t *testing.T) {
	store, ctx := setupTestDB(t)

	query := &models.Query{
		ID:        uuid.New().String(),
		Name:      "integration " + uuid.New().String()[:8],
		Status:    models.QueryStatusDraft,
		Priority:  5,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}

	require.NoError(t, store.Queries().Save(ctx, query))

	t.Cleanup(func() {
		_ = store.Queries().Delete(ctx, query.ID)
	})

	loaded, err := store.Queries().GetByID(ctx, query.ID)
	require.NoError(t, err)
	assert.Equal(t, query.Name, loaded.Name)
	assert.Equal(t, models.QueryStatusDraft, loaded.Status)
}

func TestConstantVersioning(t *testing.T) {
	store, ctx := setupTestDB(t)

	constant := &models.Constant{
		Name:      "it_" + uuid.New().String()[:8],
		IsGlobal:  true,
		DataType:  models.DataTypeNumber,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}

	require.NoError(t, store.Constants().Create(ctx, constant))

	t.Cleanup(func() {
		_ = store.Constants().Delete(ctx, constant.ID)
	})

	require.Equal(t, int64(1), constant.Version)

	updated := *constant
	updated.DefaultValue = "0.21"
	require.NoError(t, store.Constants().Update(ctx, &updated))
	assert.Equal(t, int64(2), updated.Version)

	stale := *constant
	stale.DefaultValue = "0.19"
	err := store.Constants().Update(ctx, &stale)
	assert.True(t, persistence.IsVersionConflict(err))
}

func TestTransactionRollsBackOnError(t *testing.T) {
	store, ctx := setupTestDB(t)

	query := &models.Query{
		ID:        uuid.New().String(),
		Name:      "rollback " + uuid.New().String()[:8],
		Status:    models.QueryStatusDraft,
		Priority:  5,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}

	err := store.Transaction(ctx, func(ctx context.Context) error {
		if err := store.Queries().Save(ctx, query); err != nil {
			return err
		}

		return assert.AnError
	})
	require.Error(t, err)

	_, err = store.Queries().GetByID(ctx, query.ID)
	assert.True(t, persistence.IsQueryNotFound(err))
}
