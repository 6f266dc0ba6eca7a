package file

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/docstream/queryengine/pkg/models"
	"github.com/docstream/queryengine/pkg/persistence"
)

// QueryRepository stores queries as one JSON document each.
type QueryRepository struct {
	root string
}

// NewQueryRepository creates a new query repository.
func NewQueryRepository(root string) *QueryRepository {
	return &QueryRepository{root: root}
}

func (qr *QueryRepository) path(id string) string {
	return filepath.Join(qr.root, "queries", id+".json")
}

// List returns every stored query, newest first.
func (qr *QueryRepository) List(ctx context.Context) ([]*models.Query, error) {
	root := os.DirFS(filepath.Join(qr.root, "queries"))

	jsonFiles, err := fs.Glob(root, "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list query files: %w", err)
	}

	queries := make([]*models.Query, 0, len(jsonFiles))

	for _, file := range jsonFiles {
		id := file[:len(file)-5] // trim .json

		query, err := qr.GetByID(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("failed to load query %s: %w", id, err)
		}

		queries = append(queries, query)
	}

	sort.Slice(queries, func(i, j int) bool {
		return queries[i].CreatedAt.After(queries[j].CreatedAt)
	})

	return queries, nil
}

// GetByID returns a query or ErrQueryNotFound.
func (qr *QueryRepository) GetByID(_ context.Context, id string) (*models.Query, error) {
	var query models.Query

	if err := readDocument(qr.path(id), &query); err != nil {
		if os.IsNotExist(err) {
			return nil, persistence.NewQueryError("GetByID", id, persistence.ErrQueryNotFound)
		}

		return nil, persistence.NewQueryError("GetByID", id, err)
	}

	return &query, nil
}

// GetByName returns the first query with the given name or ErrQueryNotFound.
// Names are only unique among active queries; drafts may share one.
func (qr *QueryRepository) GetByName(ctx context.Context, name string) (*models.Query, error) {
	queries, err := qr.List(ctx)
	if err != nil {
		return nil, err
	}

	for _, query := range queries {
		if query.Name == name {
			return query, nil
		}
	}

	return nil, persistence.NewQueryError("GetByName", name, persistence.ErrQueryNotFound)
}

// Save creates or replaces a query document.
func (qr *QueryRepository) Save(_ context.Context, query *models.Query) error {
	if err := writeDocument(qr.path(query.ID), query); err != nil {
		return persistence.NewQueryError("Save", query.ID, err)
	}

	return nil
}

// Delete removes a query document.
func (qr *QueryRepository) Delete(_ context.Context, id string) error {
	if err := os.Remove(qr.path(id)); err != nil {
		if os.IsNotExist(err) {
			return persistence.NewQueryError("Delete", id, persistence.ErrQueryNotFound)
		}

		return persistence.NewQueryError("Delete", id, err)
	}

	return nil
}
