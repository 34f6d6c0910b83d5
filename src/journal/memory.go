package journal

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/zvdy/emrfleet/src/models"
)

// MemoryStore keeps operations in process for a retention period.
type MemoryStore struct {
	c *gocache.Cache
}

// NewMemoryStore creates a store that forgets operations after retention.
// A non-positive retention keeps them until restart.
func NewMemoryStore(retention time.Duration) *MemoryStore {
	ttl := retention
	cleanup := retention
	if retention <= 0 {
		ttl = gocache.NoExpiration
		cleanup = 0
	}
	return &MemoryStore{c: gocache.New(ttl, cleanup)}
}

func (s *MemoryStore) Record(_ context.Context, op models.Operation) error {
	s.c.SetDefault(op.ID, op)
	return nil
}

func (s *MemoryStore) Recent(_ context.Context, limit int) ([]models.Operation, error) {
	items := s.c.Items()
	ops := make([]models.Operation, 0, len(items))
	for _, item := range items {
		if op, ok := item.Object.(models.Operation); ok {
			ops = append(ops, op)
		}
	}
	return newestFirst(ops, limit), nil
}

func (s *MemoryStore) Close() {
	s.c.Flush()
}
