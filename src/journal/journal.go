// Package journal records dispatched lifecycle commands for operators.
package journal

import (
	"context"
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/zvdy/emrfleet/src/config"
	"github.com/zvdy/emrfleet/src/models"
)

// Store persists operations.
type Store interface {
	Record(ctx context.Context, op models.Operation) error
	// Recent returns up to limit operations, newest first.
	Recent(ctx context.Context, limit int) ([]models.Operation, error)
	Close()
}

// New builds the store selected by cfg.Driver.
func New(ctx context.Context, cfg config.JournalConfig, log *logrus.Logger) (Store, error) {
	switch cfg.Driver {
	case "memory":
		return NewMemoryStore(cfg.Retention), nil
	case "postgres":
		return NewPostgresStore(ctx, PostgresConfig{
			DSN:             cfg.DSN,
			Table:           cfg.Table,
			MaxConnections:  cfg.MaxConnections,
			MinConnections:  cfg.MinConnections,
			ConnMaxLifetime: cfg.ConnMaxLifetime,
			ConnMaxIdleTime: cfg.ConnMaxIdleTime,
		}, log)
	case "none", "":
		return Nop{}, nil
	}
	return nil, fmt.Errorf("unknown journal driver: %s", cfg.Driver)
}

// Nop discards operations.
type Nop struct{}

func (Nop) Record(context.Context, models.Operation) error { return nil }

func (Nop) Recent(context.Context, int) ([]models.Operation, error) {
	return make([]models.Operation, 0), nil
}

func (Nop) Close() {}

func newestFirst(ops []models.Operation, limit int) []models.Operation {
	sort.SliceStable(ops, func(i, j int) bool {
		return ops[i].Timestamp.After(ops[j].Timestamp)
	})
	if limit > 0 && len(ops) > limit {
		ops = ops[:limit]
	}
	return ops
}
