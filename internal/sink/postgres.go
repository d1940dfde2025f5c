package sink

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ppiankov/reportspectre/internal/models"
)

const postgresDDL = `CREATE TABLE IF NOT EXISTS %s (
	id TEXT PRIMARY KEY,
	run_id TEXT NOT NULL,
	file TEXT NOT NULL,
	report_type TEXT NOT NULL,
	display_name TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL,
	risk_level TEXT NOT NULL DEFAULT '',
	score DOUBLE PRECISION,
	findings INTEGER NOT NULL,
	failed_checks INTEGER NOT NULL,
	analyzed_at TIMESTAMPTZ NOT NULL,
	payload JSONB NOT NULL
)`

const postgresUpsert = `INSERT INTO %s (
	id, run_id, file, report_type, display_name, status,
	risk_level, score, findings, failed_checks, analyzed_at, payload
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
ON CONFLICT (id) DO UPDATE SET
	status = EXCLUDED.status,
	risk_level = EXCLUDED.risk_level,
	score = EXCLUDED.score,
	findings = EXCLUDED.findings,
	failed_checks = EXCLUDED.failed_checks,
	analyzed_at = EXCLUDED.analyzed_at,
	payload = EXCLUDED.payload`

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Postgres stores results in a table with the full result as JSONB.
type Postgres struct {
	db    execer
	close func()
	table string
}

// NewPostgres connects with a postgres:// URL and creates the table when it
// does not exist.
func NewPostgres(ctx context.Context, url, table string) (*Postgres, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Postgres URL: %w", err)
	}
	cfg.MaxConns = 4
	cfg.HealthCheckPeriod = 30 * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create Postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping Postgres: %w", err)
	}

	sink, err := newPostgresDB(ctx, pool, pool.Close, table)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return sink, nil
}

func newPostgresDB(ctx context.Context, db execer, closeFn func(), table string) (*Postgres, error) {
	name, err := validateTable(table)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(ctx, fmt.Sprintf(postgresDDL, name)); err != nil {
		return nil, fmt.Errorf("failed to create table %s: %w", name, err)
	}
	return &Postgres{db: db, close: closeFn, table: name}, nil
}

// Write upserts one row keyed by result id.
func (p *Postgres) Write(ctx context.Context, result *models.AnalysisResult) error {
	rec, err := newRecord(result)
	if err != nil {
		return err
	}
	if _, err := p.db.Exec(ctx, fmt.Sprintf(postgresUpsert, p.table), rec.args()...); err != nil {
		return fmt.Errorf("postgres insert failed: %w", err)
	}
	return nil
}

// Close releases the pool.
func (p *Postgres) Close() error {
	if p.close != nil {
		p.close()
	}
	return nil
}
