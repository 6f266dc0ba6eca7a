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

// ConstantRepository stores constants as one JSON document each. Global
// and query-scoped constants share the directory; scope lives in the
// document itself.
type ConstantRepository struct {
	root     string
	sequence *sequence
}

// NewConstantRepository creates a new constant repository.
func NewConstantRepository(root string, sequence *sequence) *ConstantRepository {
	return &ConstantRepository{root: root, sequence: sequence}
}

func (cr *ConstantRepository) path(id int64) string {
	return filepath.Join(cr.root, "constants", strconv.FormatInt(id, 10)+".json")
}

// GetByID returns a constant or ErrConstantNotFound.
func (cr *ConstantRepository) GetByID(_ context.Context, id int64) (*models.Constant, error) {
	var constant models.Constant

	if err := readDocument(cr.path(id), &constant); err != nil {
		if os.IsNotExist(err) {
			return nil, persistence.NewEntityError("GetByID", "constant", id, persistence.ErrConstantNotFound)
		}

		return nil, persistence.NewEntityError("GetByID", "constant", id, err)
	}

	return &constant, nil
}

func (cr *ConstantRepository) list(ctx context.Context) ([]*models.Constant, error) {
	root := os.DirFS(filepath.Join(cr.root, "constants"))

	jsonFiles, err := fs.Glob(root, "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list constant files: %w", err)
	}

	constants := make([]*models.Constant, 0, len(jsonFiles))

	for _, file := range jsonFiles {
		id, err := strconv.ParseInt(file[:len(file)-5], 10, 64)
		if err != nil {
			continue // stray file
		}

		constant, err := cr.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}

		constants = append(constants, constant)
	}

	sort.Slice(constants, func(i, j int) bool { return constants[i].ID < constants[j].ID })

	return constants, nil
}

// ListByQuery returns the local constants owned by a query.
func (cr *ConstantRepository) ListByQuery(ctx context.Context, queryID string) ([]*models.Constant, error) {
	all, err := cr.list(ctx)
	if err != nil {
		return nil, err
	}

	owned := make([]*models.Constant, 0)

	for _, constant := range all {
		if constant.BelongsTo(queryID) {
			owned = append(owned, constant)
		}
	}

	return owned, nil
}

// ListGlobal returns every global constant.
func (cr *ConstantRepository) ListGlobal(ctx context.Context) ([]*models.Constant, error) {
	all, err := cr.list(ctx)
	if err != nil {
		return nil, err
	}

	globals := make([]*models.Constant, 0)

	for _, constant := range all {
		if constant.IsGlobal {
			globals = append(globals, constant)
		}
	}

	return globals, nil
}

// Create assigns an id and stores the constant.
func (cr *ConstantRepository) Create(_ context.Context, constant *models.Constant) error {
	id, err := cr.sequence.Next()
	if err != nil {
		return persistence.NewEntityError("Create", "constant", 0, err)
	}

	constant.ID = id
	constant.Version = 1

	if err := writeDocument(cr.path(constant.ID), constant); err != nil {
		return persistence.NewEntityError("Create", "constant", constant.ID, err)
	}

	return nil
}

// Update replaces a constant after an optimistic version check.
func (cr *ConstantRepository) Update(ctx context.Context, constant *models.Constant) error {
	existing, err := cr.GetByID(ctx, constant.ID)
	if err != nil {
		return err
	}

	if existing.Version != constant.Version {
		return persistence.NewEntityError("Update", "constant", constant.ID, persistence.ErrVersionConflict)
	}

	constant.Version++

	if err := writeDocument(cr.path(constant.ID), constant); err != nil {
		return persistence.NewEntityError("Update", "constant", constant.ID, err)
	}

	return nil
}

// Delete removes a constant document.
func (cr *ConstantRepository) Delete(_ context.Context, id int64) error {
	if err := os.Remove(cr.path(id)); err != nil {
		if os.IsNotExist(err) {
			return persistence.NewEntityError("Delete", "constant", id, persistence.ErrConstantNotFound)
		}

		return persistence.NewEntityError("Delete", "constant", id, err)
	}

	return nil
}
