package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"github.com/yourusername/pdf2img/internal/conversion"
)

const sqliteSchema = `CREATE TABLE IF NOT EXISTS conversion (
	id         TEXT PRIMARY KEY,
	filename   TEXT NOT NULL,
	status     TEXT NOT NULL,
	start_date TEXT NOT NULL
)`

// 文字列比較で時系列順になるよう小数部の桁を固定する
const sqliteTimeFormat = "2006-01-02T15:04:05.000000000Z07:00"

// SQLite は modernc.org/sqlite のファイルデータベースに保存します。
type SQLite struct {
	db *sql.DB
}

// OpenSQLite は path のデータベースを開き、テーブルを作成します。
func OpenSQLite(ctx context.Context, path string, logger zerolog.Logger) (*SQLite, error) {
	logger.Info().Str("path", path).Msg("opening sqlite database")

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// 書き込みは1接続に直列化する
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create sqlite schema: %w", err)
	}
	return &SQLite{db: db}, nil
}

// Close はデータベースを閉じます。
func (s *SQLite) Close() error {
	return s.db.Close()
}

// Ping は接続を確認します。
func (s *SQLite) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLite) Create(ctx context.Context, c *conversion.Conversion) error {
	if err := validateNew(c); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO conversion (id, filename, status, start_date) VALUES (?, ?, ?, ?) ON CONFLICT(id) DO NOTHING`,
		c.ID, c.Filename, string(c.Status), c.StartDate.UTC().Format(sqliteTimeFormat),
	)
	if err != nil {
		return fmt.Errorf("insert conversion: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("insert conversion: %w", err)
	}
	if n == 0 {
		return conversion.ErrDuplicateID
	}
	return nil
}

func (s *SQLite) GetByID(ctx context.Context, id string) (*conversion.Conversion, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, filename, status, start_date FROM conversion WHERE id = ?`, id)
	record, err := scanSQLiteRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select conversion: %w", err)
	}
	return record, nil
}

func (s *SQLite) GetAll(ctx context.Context) ([]conversion.Conversion, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, filename, status, start_date FROM conversion ORDER BY start_date, id`)
	if err != nil {
		return nil, fmt.Errorf("select conversions: %w", err)
	}
	defer rows.Close()

	records := []conversion.Conversion{}
	for rows.Next() {
		record, err := scanSQLiteRow(rows)
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

func (s *SQLite) UpdateStatus(ctx context.Context, id string, status conversion.Status) error {
	if err := validateTarget(status); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE conversion SET status = ? WHERE id = ? AND status = ?`,
		string(status), id, string(conversion.StatusRunning))
	if err != nil {
		return fmt.Errorf("update conversion status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update conversion status: %w", err)
	}
	if n > 0 {
		return nil
	}

	var exists int
	err = s.db.QueryRowContext(ctx, `SELECT 1 FROM conversion WHERE id = ?`, id).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return conversion.ErrRecordNotFound
	}
	if err != nil {
		return fmt.Errorf("check conversion: %w", err)
	}
	return conversion.ErrStatusFinal
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteRow(row rowScanner) (*conversion.Conversion, error) {
	var (
		record    conversion.Conversion
		status    string
		startDate string
	)
	if err := row.Scan(&record.ID, &record.Filename, &status, &startDate); err != nil {
		return nil, err
	}
	parsed, err := time.Parse(time.RFC3339Nano, startDate)
	if err != nil {
		return nil, fmt.Errorf("parse start_date %q: %w", startDate, err)
	}
	record.Status = conversion.Status(status)
	record.StartDate = parsed
	return &record, nil
}
