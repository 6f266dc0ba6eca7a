// Package postgresql provides the PostgreSQL persistence implementation
// for the query formula engine.
package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/docstream/queryengine/pkg/models"
	"github.com/docstream/queryengine/pkg/persistence"
	"github.com/docstream/queryengine/pkg/persistence/sqlbase"
	"github.com/lib/pq"
)

// Persistence implements the persistence layer for PostgreSQL.
type Persistence struct {
	db           *sql.DB
	logger       *slog.Logger
	queryRepo    *QueryRepository
	constantRepo *ConstantRepository
	outputRepo   *OutputRepository
	canvasRepo   *CanvasRepository
	fieldRepo    *FieldRepository
}

// NewPersistence creates a new PostgreSQL persistence layer and runs
// pending schema migrations.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (*Persistence, error) {
	database, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	if err := database.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	migrationManager := sqlbase.NewMigrationManager(logger, database, migrations())

	postgres := &Persistence{
		db:           database,
		logger:       logger,
		queryRepo:    NewQueryRepository(database, logger),
		constantRepo: NewConstantRepository(database, logger),
		outputRepo:   NewOutputRepository(database, logger),
		canvasRepo:   NewCanvasRepository(database, logger),
		fieldRepo:    NewFieldRepository(database, logger),
	}

	if err := migrationManager.RunMigrations(ctx); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return postgres, nil
}

// SeedCatalog upserts the template and field mirror tables from the
// catalog the engine was started with. The platform owns this data; the
// mirror only has to be current enough for reference resolution.
func (p *Persistence) SeedCatalog(ctx context.Context, fields []models.Field, templates []models.Template) error {
	return p.Transaction(ctx, func(ctx context.Context) error {
		for _, template := range templates {
			_, err := conn(ctx, p.db).ExecContext(ctx, `
				INSERT INTO templates (id, name, active) VALUES ($1, $2, $3)
				ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, active = EXCLUDED.active
			`, template.ID, template.Name, template.Active)
			if err != nil {
				return fmt.Errorf("failed to seed template %d: %w", template.ID, err)
			}
		}

		for _, field := range fields {
			_, err := conn(ctx, p.db).ExecContext(ctx, `
				INSERT INTO fields (id, name, template_id) VALUES ($1, $2, $3)
				ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, template_id = EXCLUDED.template_id
			`, field.ID, field.Name, field.TemplateID)
			if err != nil {
				return fmt.Errorf("failed to seed field %d: %w", field.ID, err)
			}
		}

		return nil
	})
}

// Close closes the database connection.
func (p *Persistence) Close(_ context.Context) error {
	if p.db != nil {
		if err := p.db.Close(); err != nil {
			return fmt.Errorf("failed to close database connection: %w", err)
		}
	}

	return nil
}

// HealthCheck verifies the database connection is healthy.
func (p *Persistence) HealthCheck(ctx context.Context) error {
	if err := p.db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	return nil
}

func (p *Persistence) Queries() persistence.QueryRepository {
	return p.queryRepo
}

func (p *Persistence) Constants() persistence.ConstantRepository {
	return p.constantRepo
}

func (p *Persistence) Outputs() persistence.OutputRepository {
	return p.outputRepo
}

func (p *Persistence) Canvases() persistence.CanvasRepository {
	return p.canvasRepo
}

func (p *Persistence) Fields() persistence.FieldRepository {
	return p.fieldRepo
}

// Transaction runs fn inside one database transaction. Repositories pick
// the transaction up from the context, so usage checks and the writes they
// gate share a single consistent view.
func (p *Persistence) Transaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if txFromContext(ctx) != nil {
		// Already inside a transaction; join it.
		return fn(ctx)
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(withTx(ctx, tx)); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			p.logger.ErrorContext(ctx, "failed to roll back transaction", "error", rbErr)
		}

		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

type txContextKey struct{}

func withTx(ctx context.Context, tx *sql.Tx) context.Context {
	return context.WithValue(ctx, txContextKey{}, tx)
}

func txFromContext(ctx context.Context) *sql.Tx {
	tx, _ := ctx.Value(txContextKey{}).(*sql.Tx)

	return tx
}

// dbtx is the common surface of *sql.DB and *sql.Tx the repositories use.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// conn returns the transaction bound to ctx, or the base connection pool.
func conn(ctx context.Context, db *sql.DB) dbtx {
	if tx := txFromContext(ctx); tx != nil {
		return tx
	}

	return db
}

// isUniqueViolation reports whether err is a postgres unique-constraint
// violation, which the repositories surface as ErrDuplicateName.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error

	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
