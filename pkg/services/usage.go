package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/docstream/queryengine/pkg/persistence"
	"github.com/docstream/queryengine/pkg/token"
	"github.com/docstream/queryengine/pkg/usage"
)

// UsageService answers "where is this entity still referenced" without
// touching anything. The web layer serves it directly so editors can show
// usage before a user ever attempts a delete.
type UsageService struct {
	store  persistence.Persistence
	index  *usage.Index
	logger *slog.Logger
}

// NewUsageService creates a usage service backed by the given store.
func NewUsageService(store persistence.Persistence, logger *slog.Logger) *UsageService {
	return &UsageService{
		store:  store,
		index:  usage.NewIndex(store),
		logger: logger.With("module", "usage_service"),
	}
}

// Details reports every location referencing the entity within the scope.
func (s *UsageService) Details(ctx context.Context, kind token.Kind, id int64, scope usage.Scope) (*usage.Report, error) {
	if !kind.IsValid() {
		return nil, NewServiceError("usage_details", ErrInvalidRequest, fmt.Sprintf("unknown entity kind %q", kind))
	}

	if !scope.Global {
		if _, err := s.store.Queries().GetByID(ctx, scope.QueryID); err != nil {
			return nil, NewServiceError("usage_details", err, "loading query")
		}
	}

	report, err := s.index.Usage(ctx, kind, id, scope)
	if err != nil {
		return nil, err
	}

	return report, nil
}
