package file

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/docstream/queryengine/pkg/models"
	"github.com/docstream/queryengine/pkg/persistence"
)

// OutputRepository stores outputs as one JSON document each.
type OutputRepository struct {
	root     string
	sequence *sequence
}

// NewOutputRepository creates a new output repository.
func NewOutputRepository(root string, sequence *sequence) *OutputRepository {
	return &OutputRepository{root: root, sequence: sequence}
}

func (or *OutputRepository) path(id int64) string {
	return filepath.Join(or.root, "outputs", strconv.FormatInt(id, 10)+".json")
}

// GetByID returns an output or ErrOutputNotFound.
func (or *OutputRepository) GetByID(_ context.Context, id int64) (*models.Output, error) {
	var output models.Output

	if err := readDocument(or.path(id), &output); err != nil {
		if os.IsNotExist(err) {
			return nil, persistence.NewEntityError("GetByID", "output", id, persistence.ErrOutputNotFound)
		}

		return nil, persistence.NewEntityError("GetByID", "output", id, err)
	}

	return &output, nil
}

// ListByQuery returns a query's outputs ordered by execution order, then id.
func (or *OutputRepository) ListByQuery(ctx context.Context, queryID string) ([]*models.Output, error) {
	root := os.DirFS(filepath.Join(or.root, "outputs"))

	jsonFiles, err := fs.Glob(root, "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list output files: %w", err)
	}

	outputs := make([]*models.Output, 0)

	for _, file := range jsonFiles {
		id, err := strconv.ParseInt(file[:len(file)-5], 10, 64)
		if err != nil {
			continue
		}

		output, err := or.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}

		if output.QueryID == queryID {
			outputs = append(outputs, output)
		}
	}

	sort.Slice(outputs, func(i, j int) bool {
		if outputs[i].ExecutionOrder != outputs[j].ExecutionOrder {
			return outputs[i].ExecutionOrder < outputs[j].ExecutionOrder
		}

		return outputs[i].ID < outputs[j].ID
	})

	return outputs, nil
}

// Create assigns an id and stores the output.
func (or *OutputRepository) Create(_ context.Context, output *models.Output) error {
	id, err := or.sequence.Next()
	if err != nil {
		return persistence.NewEntityError("Create", "output", 0, err)
	}

	output.ID = id
	output.Version = 1

	if err := writeDocument(or.path(output.ID), output); err != nil {
		return persistence.NewEntityError("Create", "output", output.ID, err)
	}

	return nil
}

// Update replaces an output after an optimistic version check.
func (or *OutputRepository) Update(ctx context.Context, output *models.Output) error {
	existing, err := or.GetByID(ctx, output.ID)
	if err != nil {
		return err
	}

	if existing.Version != output.Version {
		return persistence.NewEntityError("Update", "output", output.ID, persistence.ErrVersionConflict)
	}

	output.Version++

	if err := writeDocument(or.path(output.ID), output); err != nil {
		return persistence.NewEntityError("Update", "output", output.ID, err)
	}

	return nil
}

// Delete removes an output document.
func (or *OutputRepository) Delete(_ context.Context, id int64) error {
	if err := os.Remove(or.path(id)); err != nil {
		if os.IsNotExist(err) {
			return persistence.NewEntityError("Delete", "output", id, persistence.ErrOutputNotFound)
		}

		return persistence.NewEntityError("Delete", "output", id, err)
	}

	return nil
}
