// Package database persists the outbound request audit log in postgres.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"scraper-gateway/pkg/apperr"
	"scraper-gateway/pkg/models"
)

const DefaultRecentLimit = 50

type DB struct {
	*bun.DB
}

// Open builds the bun handle without touching the network.
func Open(dsn string) (*DB, error) {
	u, err := url.Parse(dsn)
	if err != nil || (u.Scheme != "postgres" && u.Scheme != "postgresql") {
		return nil, apperr.Configuration("database dsn must be a postgres:// URL")
	}

	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	return &DB{bun.NewDB(sqldb, pgdialect.New())}, nil
}

// NewDB opens and pings the database.
func NewDB(ctx context.Context, dsn string) (*DB, error) {
	db, err := Open(dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}

// InitSchema creates the necessary tables if they don't exist
func (db *DB) InitSchema(ctx context.Context) error {
	if _, err := db.createTableQuery().Exec(ctx); err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}
	if _, err := db.createIndexQuery().Exec(ctx); err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}
	return nil
}

func (db *DB) InsertRequestLog(ctx context.Context, entry *models.RequestLog) error {
	if _, err := db.NewInsert().Model(entry).Exec(ctx); err != nil {
		return fmt.Errorf("error inserting request log: %w", err)
	}
	return nil
}

// Record satisfies gateway.Recorder.
func (db *DB) Record(ctx context.Context, entry *models.RequestLog) error {
	return db.InsertRequestLog(ctx, entry)
}

// RecentRequestLogs returns the newest entries first, optionally filtered by
// provider.
func (db *DB) RecentRequestLogs(ctx context.Context, provider string, limit int) ([]models.RequestLog, error) {
	var logs []models.RequestLog
	if err := db.recentQuery(&logs, provider, limit).Scan(ctx); err != nil {
		return nil, fmt.Errorf("error getting request logs: %w", err)
	}
	return logs, nil
}

func (db *DB) createTableQuery() *bun.CreateTableQuery {
	return db.NewCreateTable().
		Model((*models.RequestLog)(nil)).
		IfNotExists()
}

func (db *DB) createIndexQuery() *bun.CreateIndexQuery {
	return db.NewCreateIndex().
		Model((*models.RequestLog)(nil)).
		Index("request_log_time_idx").
		IfNotExists().
		Column("time")
}

func (db *DB) recentQuery(dest *[]models.RequestLog, provider string, limit int) *bun.SelectQuery {
	if limit <= 0 {
		limit = DefaultRecentLimit
	}
	q := db.NewSelect().Model(dest)
	if provider != "" {
		q = q.Where("provider = ?", provider)
	}
	return q.Order("time DESC").Limit(limit)
}
