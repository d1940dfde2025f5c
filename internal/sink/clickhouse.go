package sink

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"

	"github.com/ppiankov/reportspectre/internal/models"
)

const clickhouseDDL = `CREATE TABLE IF NOT EXISTS %s (
	id String,
	run_id String,
	file String,
	report_type LowCardinality(String),
	display_name String,
	status LowCardinality(String),
	risk_level LowCardinality(String),
	score Nullable(Float64),
	findings UInt32,
	failed_checks UInt32,
	analyzed_at DateTime64(3, 'UTC'),
	payload String
) ENGINE = MergeTree
ORDER BY (report_type, analyzed_at, file)`

const clickhouseInsert = `INSERT INTO %s (
	id, run_id, file, report_type, display_name, status,
	risk_level, score, findings, failed_checks, analyzed_at, payload
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

// ClickHouse stores results in a MergeTree table.
type ClickHouse struct {
	conn  *sql.DB
	table string
}

// NewClickHouse connects using a clickhouse:// DSN and creates the table when
// it does not exist.
func NewClickHouse(ctx context.Context, dsn, table string) (*ClickHouse, error) {
	opts, err := clickhouse.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse ClickHouse DSN: %w", err)
	}

	opts.MaxOpenConns = 4
	opts.MaxIdleConns = 2
	opts.ConnMaxLifetime = time.Hour
	opts.DialTimeout = 30 * time.Second

	conn := clickhouse.OpenDB(opts)
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}

	addr := ""
	if len(opts.Addr) > 0 {
		addr = opts.Addr[0]
	}
	slog.Debug("connected to ClickHouse", slog.String("addr", addr))

	sink, err := newClickHouseDB(ctx, conn, table)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return sink, nil
}

func newClickHouseDB(ctx context.Context, conn *sql.DB, table string) (*ClickHouse, error) {
	name, err := validateTable(table)
	if err != nil {
		return nil, err
	}
	if _, err := conn.ExecContext(ctx, fmt.Sprintf(clickhouseDDL, name)); err != nil {
		return nil, fmt.Errorf("failed to create table %s: %w", name, err)
	}
	return &ClickHouse{conn: conn, table: name}, nil
}

// Write inserts one row.
func (c *ClickHouse) Write(ctx context.Context, result *models.AnalysisResult) error {
	rec, err := newRecord(result)
	if err != nil {
		return err
	}
	if _, err := c.conn.ExecContext(ctx, fmt.Sprintf(clickhouseInsert, c.table), rec.args()...); err != nil {
		return fmt.Errorf("clickhouse insert failed: %w", err)
	}
	return nil
}

// Close closes the connection pool.
func (c *ClickHouse) Close() error {
	return c.conn.Close()
}
