// Package cmd provides common initialization for the engine's command-line
// entry points.
package cmd

import (
	"context"
	"log/slog"
	"strings"

	"github.com/docstream/queryengine/pkg/config"
	"github.com/docstream/queryengine/pkg/persistence"
	"github.com/docstream/queryengine/pkg/persistence/file"
	"github.com/docstream/queryengine/pkg/persistence/postgresql"
)

// NewPersistence picks the storage backend from the database URL scheme:
// postgres:// selects PostgreSQL, anything else is treated as a filesystem
// root. The template catalog is mirrored into the chosen store.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string, catalog *config.Catalog) (persistence.Persistence, error) {
	if strings.HasPrefix(databaseURL, "postgres://") || strings.HasPrefix(databaseURL, "postgresql://") {
		store, err := postgresql.NewPersistence(ctx, logger, databaseURL)
		if err != nil {
			return nil, err
		}

		if err := store.SeedCatalog(ctx, catalog.Fields, catalog.Templates); err != nil {
			return nil, err
		}

		return store, nil
	}

	return file.NewPersistence(databaseURL, catalog.Fields, catalog.Templates)
}
