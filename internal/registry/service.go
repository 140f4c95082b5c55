// internal/registry/service.go
package registry

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/signalnine/fleetwatch/internal/protocol"
)

// PageSize is the number of hosts on one page of the fleet list
const PageSize = 6

// ErrFetchFailed hides store faults from callers
var ErrFetchFailed = errors.New("failed to fetch servers")

// Service pages and searches the host catalog
type Service struct {
	store  Store
	logger *zap.Logger
}

// NewService creates a query service over store
func NewService(store Store, logger *zap.Logger) *Service {
	return &Service{store: store, logger: logger}
}

// Count returns the number of pages needed for query
func (s *Service) Count(ctx context.Context, query string) (int, error) {
	n, err := s.store.Count(ctx, query)
	if err != nil {
		s.logger.Error("Database error counting servers", zap.String("query", query), zap.Error(err))
		return 0, ErrFetchFailed
	}
	return (n + PageSize - 1) / PageSize, nil
}

// List returns one page of matching hosts ordered by hostname. Pages are 1-based and
// not clamped: a page past the end is empty.
func (s *Service) List(ctx context.Context, query string, page int) ([]protocol.HostRecord, error) {
	offset := (page - 1) * PageSize
	if offset < 0 {
		// SQLite treats a negative OFFSET as zero; keep the out-of-range page empty instead.
		return []protocol.HostRecord{}, nil
	}

	hosts, err := s.store.List(ctx, query, PageSize, offset)
	if err != nil {
		s.logger.Error("Database error listing servers",
			zap.String("query", query), zap.Int("page", page), zap.Error(err))
		return nil, ErrFetchFailed
	}
	return hosts, nil
}

// Get returns a single host, nil when it does not exist
func (s *Service) Get(ctx context.Context, id string) (*protocol.HostRecord, error) {
	h, err := s.store.Get(ctx, id)
	if err != nil {
		s.logger.Error("Database error fetching server", zap.String("id", id), zap.Error(err))
		return nil, ErrFetchFailed
	}
	return h, nil
}
