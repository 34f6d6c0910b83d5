package journal

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"github.com/zvdy/emrfleet/src/models"
)

// PostgresConfig holds journal database configuration
type PostgresConfig struct {
	DSN             string
	Table           string
	MaxConnections  int
	MinConnections  int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// PostgresStore records operations in a PostgreSQL table.
type PostgresStore struct {
	pool  *pgxpool.Pool
	table string
	log   *logrus.Logger
}

// NewPostgresStore connects to the journal database and creates the table if needed.
func NewPostgresStore(ctx context.Context, cfg PostgresConfig, log *logrus.Logger) (*PostgresStore, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}
	applyPoolLimits(poolConfig, cfg)

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &PostgresStore{
		pool:  pool,
		table: pq.QuoteIdentifier(cfg.Table),
		log:   log,
	}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	log.Infof("Operation journal connected (table %s)", cfg.Table)
	return s, nil
}

func applyPoolLimits(poolConfig *pgxpool.Config, cfg PostgresConfig) {
	if cfg.MaxConnections > 0 {
		poolConfig.MaxConns = int32(cfg.MaxConnections)
	} else {
		poolConfig.MaxConns = 5
	}

	if cfg.MinConnections > 0 {
		poolConfig.MinConns = int32(cfg.MinConnections)
	}

	if cfg.ConnMaxLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.ConnMaxLifetime
	} else {
		poolConfig.MaxConnLifetime = time.Hour
	}

	if cfg.ConnMaxIdleTime > 0 {
		poolConfig.MaxConnIdleTime = cfg.ConnMaxIdleTime
	} else {
		poolConfig.MaxConnIdleTime = 30 * time.Minute
	}
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id           UUID PRIMARY KEY,
			op_type      TEXT NOT NULL,
			cluster_name TEXT NOT NULL,
			created_at   TIMESTAMPTZ NOT NULL,
			status       TEXT NOT NULL,
			error        TEXT NOT NULL DEFAULT ''
		)`, s.table)

	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to create journal table: %w", err)
	}
	return nil
}

func (s *PostgresStore) Record(ctx context.Context, op models.Operation) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (id, op_type, cluster_name, created_at, status, error)
		VALUES ($1, $2, $3, $4, $5, $6)`, s.table)

	_, err := s.pool.Exec(ctx, query, op.ID, string(op.Type), op.ClusterName, op.Timestamp, string(op.Status), op.Error)
	if err != nil {
		return fmt.Errorf("failed to record operation %s: %w", op.ID, err)
	}
	return nil
}

func (s *PostgresStore) Recent(ctx context.Context, limit int) ([]models.Operation, error) {
	if limit <= 0 {
		limit = 50
	}
	query := fmt.Sprintf(`
		SELECT id::text, op_type, cluster_name, created_at, status, error
		FROM %s
		ORDER BY created_at DESC
		LIMIT $1`, s.table)

	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query operations: %w", err)
	}
	defer rows.Close()

	ops := make([]models.Operation, 0, limit)
	for rows.Next() {
		var (
			op             models.Operation
			opType, status string
		)
		if err := rows.Scan(&op.ID, &opType, &op.ClusterName, &op.Timestamp, &status, &op.Error); err != nil {
			return nil, fmt.Errorf("failed to scan operation: %w", err)
		}
		op.Type = models.OperationType(opType)
		op.Status = models.OperationStatus(status)
		ops = append(ops, op)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read operations: %w", err)
	}
	return ops, nil
}

// PoolStats is a snapshot of the journal connection pool.
type PoolStats struct {
	Acquired int32
	Idle     int32
	Total    int32
	Max      int32
}

// Stats returns connection pool statistics for the journal database.
func (s *PostgresStore) Stats() PoolStats {
	stat := s.pool.Stat()
	return PoolStats{
		Acquired: stat.AcquiredConns(),
		Idle:     stat.IdleConns(),
		Total:    stat.TotalConns(),
		Max:      stat.MaxConns(),
	}
}

func (s *PostgresStore) Close() {
	s.pool.Close()
	s.log.Info("Closed operation journal connection pool")
}
