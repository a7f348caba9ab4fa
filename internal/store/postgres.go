package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/yourusername/pdf2img/internal/conversion"
)

const postgresSchema = `CREATE TABLE IF NOT EXISTS conversion (
	id         TEXT PRIMARY KEY,
	filename   TEXT NOT NULL,
	status     TEXT NOT NULL,
	start_date TIMESTAMPTZ NOT NULL
)`

// PostgresConfig は接続プールの設定です。
type PostgresConfig struct {
	DSN              string
	MaxConns         int32
	MinConns         int32
	MaxConnLifetime  time.Duration
	MaxConnIdleTime  time.Duration
	DialTimeout      time.Duration
	StatementTimeout time.Duration
}

// Postgres は pgx の接続プール経由で PostgreSQL に保存します。
type Postgres struct {
	pool *pgxpool.Pool
}

// OpenPostgres は接続プールを作成し、テーブルを作成します。
func OpenPostgres(ctx context.Context, cfg PostgresConfig, logger zerolog.Logger) (*Postgres, error) {
	logger.Info().Msg("connecting to postgres")
	pc, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}

	if cfg.MaxConns > 0 {
		pc.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		pc.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		pc.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		pc.MaxConnIdleTime = cfg.MaxConnIdleTime
	}
	pc.ConnConfig.RuntimeParams["application_name"] = "pdf2img"
	if cfg.StatementTimeout > 0 {
		pc.ConnConfig.RuntimeParams["statement_timeout"] = fmt.Sprintf("%d", cfg.StatementTimeout.Milliseconds())
	}

	dialCtx := ctx
	if cfg.DialTimeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, cfg.DialTimeout)
		defer cancel()
	}
	pool, err := pgxpool.NewWithConfig(dialCtx, pc)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(dialCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create postgres schema: %w", err)
	}

	logger.Info().Msg("connected to postgres")
	return &Postgres{pool: pool}, nil
}

// Close は接続プールを閉じます。
func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}

// Ping は接続を確認します。
func (p *Postgres) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

func (p *Postgres) Create(ctx context.Context, c *conversion.Conversion) error {
	if err := validateNew(c); err != nil {
		return err
	}
	tag, err := p.pool.Exec(ctx,
		`INSERT INTO conversion (id, filename, status, start_date) VALUES ($1, $2, $3, $4) ON CONFLICT (id) DO NOTHING`,
		c.ID, c.Filename, string(c.Status), c.StartDate.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert conversion: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return conversion.ErrDuplicateID
	}
	return nil
}

func (p *Postgres) GetByID(ctx context.Context, id string) (*conversion.Conversion, error) {
	row := p.pool.QueryRow(ctx,
		`SELECT id, filename, status, start_date FROM conversion WHERE id = $1`, id)
	record, err := scanPostgresRow(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select conversion: %w", err)
	}
	return record, nil
}

func (p *Postgres) GetAll(ctx context.Context) ([]conversion.Conversion, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT id, filename, status, start_date FROM conversion ORDER BY start_date, id`)
	if err != nil {
		return nil, fmt.Errorf("select conversions: %w", err)
	}
	defer rows.Close()

	records := []conversion.Conversion{}
	for rows.Next() {
		record, err := scanPostgresRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scan conversion: %w", err)
		}
		records = append(records, *record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate conversions: %w", err)
	}
	return records, nil
}

func (p *Postgres) UpdateStatus(ctx context.Context, id string, status conversion.Status) error {
	if err := validateTarget(status); err != nil {
		return err
	}
	tag, err := p.pool.Exec(ctx,
		`UPDATE conversion SET status = $1 WHERE id = $2 AND status = $3`,
		string(status), id, string(conversion.StatusRunning))
	if err != nil {
		return fmt.Errorf("update conversion status: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	var exists bool
	if err := p.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM conversion WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("check conversion: %w", err)
	}
	if !exists {
		return conversion.ErrRecordNotFound
	}
	return conversion.ErrStatusFinal
}

func scanPostgresRow(row pgx.Row) (*conversion.Conversion, error) {
	var (
		record conversion.Conversion
		status string
	)
	if err := row.Scan(&record.ID, &record.Filename, &status, &record.StartDate); err != nil {
		return nil, err
	}
	record.Status = conversion.Status(status)
	record.StartDate = record.StartDate.UTC()
	return &record, nil
}
