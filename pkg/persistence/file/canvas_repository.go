package file

import (
	"context"
	"os"
	"path/filepath"

	"github.com/docstream/queryengine/pkg/models"
	"github.com/docstream/queryengine/pkg/persistence"
)

// CanvasRepository stores the raw canvas blob per query.
type CanvasRepository struct {
	root string
}

// NewCanvasRepository creates a new canvas repository.
func NewCanvasRepository(root string) *CanvasRepository {
	return &CanvasRepository{root: root}
}

func (cr *CanvasRepository) path(queryID string) string {
	return filepath.Join(cr.root, "canvases", queryID+".json")
}

// GetByQuery returns a query's canvas record or ErrCanvasNotFound.
func (cr *CanvasRepository) GetByQuery(_ context.Context, queryID string) (*models.CanvasRecord, error) {
	var record models.CanvasRecord

	if err := readDocument(cr.path(queryID), &record); err != nil {
		if os.IsNotExist(err) {
			return nil, persistence.NewQueryError("GetByQuery", queryID, persistence.ErrCanvasNotFound)
		}

		return nil, persistence.NewQueryError("GetByQuery", queryID, err)
	}

	return &record, nil
}

// Save creates or replaces a query's canvas record. The raw payload is
// last-writer-wins.
func (cr *CanvasRepository) Save(_ context.Context, record *models.CanvasRecord) error {
	if err := writeDocument(cr.path(record.QueryID), record); err != nil {
		return persistence.NewQueryError("Save", record.QueryID, err)
	}

	return nil
}

// DeleteByQuery removes a query's canvas record if present.
func (cr *CanvasRepository) DeleteByQuery(_ context.Context, queryID string) error {
	if err := os.Remove(cr.path(queryID)); err != nil && !os.IsNotExist(err) {
		return persistence.NewQueryError("DeleteByQuery", queryID, err)
	}

	return nil
}
