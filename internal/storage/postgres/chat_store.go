// Package postgres mirrors captured chat records into Postgres.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/replay-chat-crawler/internal/crawler"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// DefaultTable is used when Config.Table is empty.
const DefaultTable = "chat_messages"

// Config controls the Postgres connection pool used for chat rows.
type Config struct {
	DSN             string        `mapstructure:"dsn"`
	Table           string        `mapstructure:"table"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
}

type txBeginCloser interface {
	Begin(context.Context) (pgx.Tx, error)
	Close()
}

// ChatStore writes one row per chat record. A job's rows are replaced as a
// unit, so re-running a job never duplicates its messages.
type ChatStore struct {
	pool  txBeginCloser
	table string
}

// NewChatStore creates a Postgres-backed ChatStore using the provided config.
func NewChatStore(ctx context.Context, cfg Config) (*ChatStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("export.postgres.dsn is required")
	}
	table, err := tableName(cfg.Table)
	if err != nil {
		return nil, err
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &ChatStore{pool: pool, table: table}, nil
}

// NewChatStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewChatStoreWithPool(pool txBeginCloser, table string) (*ChatStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	name, err := tableName(table)
	if err != nil {
		return nil, err
	}
	return &ChatStore{pool: pool, table: name}, nil
}

func tableName(table string) (string, error) {
	if table == "" {
		table = DefaultTable
	}
	if !validTableName.MatchString(table) {
		return "", fmt.Errorf("invalid table name %q", table)
	}
	return table, nil
}

// Close releases the underlying pool resources.
func (s *ChatStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Name identifies the mirror in logs.
func (s *ChatStore) Name() string { return "postgres" }

// Mirror replaces the job's rows with records inside one transaction. The
// rows have no single address, so the returned location is always empty.
func (s *ChatStore) Mirror(
	ctx context.Context,
	job crawler.CrawlJob,
	records []crawler.MessageRecord,
	artifact crawler.Artifact,
) (_ string, err error) {
	if s == nil || s.pool == nil {
		return "", fmt.Errorf("chat store is not configured")
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return "", fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
				err = errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
			}
		}
	}()

	deleteQuery := fmt.Sprintf(`DELETE FROM %s WHERE title = $1 AND scheduled_duration = $2`, s.table)
	if _, err = tx.Exec(ctx, deleteQuery, job.Title, job.ScheduledDuration); err != nil {
		return "", fmt.Errorf("delete previous rows: %w", err)
	}

	insertQuery := fmt.Sprintf(`
INSERT INTO %s (
	title,
	scheduled_duration,
	position,
	time_stamp,
	author_name,
	message,
	img,
	artifact_sha256
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8
)`, s.table)
	for i, rec := range records {
		if _, err = tx.Exec(ctx, insertQuery,
			job.Title,
			job.ScheduledDuration,
			i,
			rec.Timestamp,
			rec.AuthorName,
			rec.MessageText,
			rec.AvatarURL,
			artifact.SHA256,
		); err != nil {
			return "", fmt.Errorf("insert chat row %d: %w", i, err)
		}
	}
	if err = tx.Commit(ctx); err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}
	return "", nil
}
