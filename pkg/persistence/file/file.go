// Package file provides a file-based persistence implementation intended
// for local development and tests. Each entity is one JSON document under
// the root directory; transactional flows serialize on a process-wide lock.
package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/docstream/queryengine/pkg/models"
	"github.com/docstream/queryengine/pkg/persistence"
)

// Persistence implements persistence.Persistence on the file system.
type Persistence struct {
	root string

	queryRepo    *QueryRepository
	constantRepo *ConstantRepository
	outputRepo   *OutputRepository
	canvasRepo   *CanvasRepository
	fieldRepo    *FieldRepository

	txMu sync.Mutex
}

// NewPersistence creates a file persistence layer rooted at the given
// directory. Fields and templates are external: they are served from the
// catalog handed in, never written.
func NewPersistence(root string, fields []models.Field, templates []models.Template) (*Persistence, error) {
	cleanRoot := strings.Replace(root, "file://", "", 1)

	for _, dir := range []string{"queries", "constants", "outputs", "canvases"} {
		if err := os.MkdirAll(filepath.Join(cleanRoot, dir), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create %s directory: %w", dir, err)
		}
	}

	sequence := newSequence(filepath.Join(cleanRoot, "sequence.json"))

	return &Persistence{
		root:         cleanRoot,
		queryRepo:    NewQueryRepository(cleanRoot),
		constantRepo: NewConstantRepository(cleanRoot, sequence),
		outputRepo:   NewOutputRepository(cleanRoot, sequence),
		canvasRepo:   NewCanvasRepository(cleanRoot),
		fieldRepo:    NewFieldRepository(fields, templates),
	}, nil
}

// Close performs any necessary cleanup. For file-based persistence, there is nothing to clean up.
func (fp *Persistence) Close(_ context.Context) error {
	return nil
}

// HealthCheck verifies the root directory exists.
func (fp *Persistence) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(fp.root); os.IsNotExist(err) {
		return os.ErrNotExist
	}

	return nil
}

func (fp *Persistence) Queries() persistence.QueryRepository {
	return fp.queryRepo
}

func (fp *Persistence) Constants() persistence.ConstantRepository {
	return fp.constantRepo
}

func (fp *Persistence) Outputs() persistence.OutputRepository {
	return fp.outputRepo
}

func (fp *Persistence) Canvases() persistence.CanvasRepository {
	return fp.canvasRepo
}

func (fp *Persistence) Fields() persistence.FieldRepository {
	return fp.fieldRepo
}

// Transaction serializes transactional flows on one process-wide lock.
// The file store has no rollback; callers get atomicity with respect to
// other Transaction calls in this process only.
func (fp *Persistence) Transaction(ctx context.Context, fn func(ctx context.Context) error) error {
	fp.txMu.Lock()
	defer fp.txMu.Unlock()

	return fn(ctx)
}

// readDocument loads one JSON document into out. Missing files return
// os.ErrNotExist for the caller to translate.
func readDocument(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode %s: %w", path, err)
	}

	return nil
}

// writeDocument stores one JSON document, creating or replacing it.
func writeDocument(path string, in any) error {
	data, err := json.MarshalIndent(in, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}

	return nil
}

// sequence hands out int64 ids for constants and outputs, persisted so ids
// survive restarts.
type sequence struct {
	path string
	mu   sync.Mutex
}

func newSequence(path string) *sequence {
	return &sequence{path: path}
}

func (s *sequence) Next() (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var state struct {
		Last int64 `json:"last"`
	}

	if err := readDocument(s.path, &state); err != nil && !os.IsNotExist(err) {
		return 0, err
	}

	state.Last++

	if err := writeDocument(s.path, &state); err != nil {
		return 0, err
	}

	return state.Last, nil
}
