package store

import (
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
)

func TestPoolConfig(t *testing.T) {
	cfg, err := poolConfig("postgres://u:p@db.internal:5432/movieweb", Options{
		MaxConns:               12,
		MinConns:               3,
		MaxConnIdleTime:        time.Minute,
		StatementCacheCapacity: 64,
	})
	if err != nil {
		t.Fatalf("poolConfig() error = %v", err)
	}
	if cfg.MaxConns != 12 || cfg.MinConns != 3 {
		t.Fatalf("conns = %d/%d, want 12/3", cfg.MaxConns, cfg.MinConns)
	}
	if cfg.MaxConnIdleTime != time.Minute {
		t.Fatalf("MaxConnIdleTime = %v", cfg.MaxConnIdleTime)
	}
	if cfg.ConnConfig.DefaultQueryExecMode != pgx.QueryExecModeCacheStatement || cfg.ConnConfig.StatementCacheCapacity != 64 {
		t.Fatalf("statement cache not applied")
	}
	if cfg.ConnConfig.Database != "movieweb" {
		t.Fatalf("Database = %q", cfg.ConnConfig.Database)
	}
}

func TestPoolConfigKeepsDefaults(t *testing.T) {
	base, err := poolConfig("postgres://localhost/db", Options{StatementCacheCapacity: -1})
	if err != nil {
		t.Fatalf("poolConfig() error = %v", err)
	}
	if base.MaxConns <= 0 {
		t.Fatalf("MaxConns = %d, want pgxpool default", base.MaxConns)
	}
}

func TestPoolConfigRejectsBadURL(t *testing.T) {
	if _, err := poolConfig("postgres://%zz", Options{}); err == nil {
		t.Fatalf("expected parse error")
	}
}
