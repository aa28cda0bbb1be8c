// Package store archives finished research reports so they can be fetched
// after the run that produced them is gone.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/mohammad-safakhou/deepresearch/config"
)

// ErrNotConfigured is returned by NewArchive when neither backend is set up.
var ErrNotConfigured = errors.New("no report archive configured")

// ErrNotFound is returned when a report does not exist in the archive.
var ErrNotFound = errors.New("report not found")

// ReportRecord is an archived research report.
type ReportRecord struct {
	RunID             string    `json:"run_id"`
	Query             string    `json:"query"`
	ShortSummary      string    `json:"short_summary"`
	Outline           string    `json:"outline"`
	MarkdownReport    string    `json:"markdown_report"`
	Limitations       []string  `json:"limitations"`
	FollowUpQuestions []string  `json:"follow_up_questions"`
	CreatedAt         time.Time `json:"created_at"`
}

// Archive persists and retrieves research reports.
type Archive interface {
	SaveReport(ctx context.Context, rec ReportRecord) error
	GetReport(ctx context.Context, runID string) (ReportRecord, error)
	ListReports(ctx context.Context, limit int) ([]ReportRecord, error)
	Close() error
}

// NewArchive creates an archive from configuration, preferring Postgres when
// it is configured and falling back to Redis.
func NewArchive(cfg config.StorageConfig) (Archive, error) {
	if cfg.Postgres.Enabled() {
		pa, err := NewPostgresArchive(cfg.Postgres)
		if err == nil {
			return pa, nil
		}
		log.Printf("Warning: Postgres archive init failed: %v, falling back to Redis", err)
	}
	if cfg.Redis.Enabled() {
		return NewRedisArchive(cfg.Redis)
	}
	return nil, ErrNotConfigured
}

// PostgresArchive stores reports in a single reports table.
type PostgresArchive struct {
	db *sql.DB
}

func NewPostgresArchive(cfg config.PostgresConfig) (*PostgresArchive, error) {
	db, err := sql.Open("postgres", postgresDSN(cfg))
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	pa := &PostgresArchive{db: db}
	if err := pa.ensureSchema(); err != nil {
		return nil, err
	}
	return pa, nil
}

func postgresDSN(cfg config.PostgresConfig) string {
	if cfg.URL != "" {
		return cfg.URL
	}
	host := cfg.Host
	port := cfg.Port
	ssl := cfg.SSLMode
	if host == "" {
		host = "localhost"
	}
	if port == "" {
		port = "5432"
	}
	if ssl == "" {
		ssl = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		cfg.User, cfg.Password, host, port, cfg.DBName, ssl)
}

func (a *PostgresArchive) ensureSchema() error {
	_, err := a.db.Exec(`
CREATE TABLE IF NOT EXISTS reports (
    run_id TEXT PRIMARY KEY,
    query TEXT NOT NULL,
    short_summary TEXT,
    outline TEXT,
    markdown_report TEXT,
    limitations JSONB,
    follow_up_questions JSONB,
    created_at TIMESTAMPTZ DEFAULT NOW()
);
`)
	return err
}

func (a *PostgresArchive) SaveReport(ctx context.Context, rec ReportRecord) error {
	limitations, _ := json.Marshal(rec.Limitations)
	followUps, _ := json.Marshal(rec.FollowUpQuestions)

	_, err := a.db.ExecContext(ctx, `
INSERT INTO reports (run_id, query, short_summary, outline, markdown_report, limitations, follow_up_questions, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
ON CONFLICT (run_id) DO UPDATE SET
  query = EXCLUDED.query,
  short_summary = EXCLUDED.short_summary,
  outline = EXCLUDED.outline,
  markdown_report = EXCLUDED.markdown_report,
  limitations = EXCLUDED.limitations,
  follow_up_questions = EXCLUDED.follow_up_questions;
`, rec.RunID, rec.Query, rec.ShortSummary, rec.Outline, rec.MarkdownReport, limitations, followUps)
	return err
}

func (a *PostgresArchive) GetReport(ctx context.Context, runID string) (ReportRecord, error) {
	row := a.db.QueryRowContext(ctx, `SELECT run_id, query, short_summary, outline, markdown_report,
        limitations, follow_up_questions, created_at FROM reports WHERE run_id = $1`, runID)
	rec, err := scanReport(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ReportRecord{}, ErrNotFound
	}
	return rec, err
}

func (a *PostgresArchive) ListReports(ctx context.Context, limit int) ([]ReportRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := a.db.QueryContext(ctx, `SELECT run_id, query, short_summary, outline, markdown_report,
        limitations, follow_up_questions, created_at FROM reports ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ReportRecord
	for rows.Next() {
		rec, err := scanReport(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (a *PostgresArchive) Close() error { return a.db.Close() }

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanReport(row rowScanner) (ReportRecord, error) {
	var rec ReportRecord
	var limitationsB, followUpsB []byte
	if err := row.Scan(&rec.RunID, &rec.Query, &rec.ShortSummary, &rec.Outline, &rec.MarkdownReport,
		&limitationsB, &followUpsB, &rec.CreatedAt); err != nil {
		return ReportRecord{}, err
	}
	_ = json.Unmarshal(limitationsB, &rec.Limitations)
	_ = json.Unmarshal(followUpsB, &rec.FollowUpQuestions)
	return rec, nil
}

const (
	reportKeyPrefix = "report:"
	reportIndexKey  = "reports"
)

// RedisArchive stores reports as JSON values with a sorted-set index for
// recency ordering.
type RedisArchive struct {
	client *redis.Client
}

func NewRedisArchive(cfg config.RedisConfig) (*RedisArchive, error) {
	client := redis.NewClient(&redis.Options{
		Addr:        fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: cfg.Timeout,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, err
	}
	return &RedisArchive{client: client}, nil
}

func (a *RedisArchive) SaveReport(ctx context.Context, rec ReportRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	if err := a.client.Set(ctx, reportKeyPrefix+rec.RunID, data, 0).Err(); err != nil {
		return err
	}
	return a.client.ZAdd(ctx, reportIndexKey, redis.Z{
		Score:  float64(rec.CreatedAt.Unix()),
		Member: rec.RunID,
	}).Err()
}

func (a *RedisArchive) GetReport(ctx context.Context, runID string) (ReportRecord, error) {
	val, err := a.client.Get(ctx, reportKeyPrefix+runID).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ReportRecord{}, ErrNotFound
		}
		return ReportRecord{}, err
	}
	var rec ReportRecord
	if err := json.Unmarshal([]byte(val), &rec); err != nil {
		return ReportRecord{}, err
	}
	return rec, nil
}

func (a *RedisArchive) ListReports(ctx context.Context, limit int) ([]ReportRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	ids, err := a.client.ZRevRange(ctx, reportIndexKey, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, err
	}
	var out []ReportRecord
	for _, id := range ids {
		rec, err := a.GetReport(ctx, id)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func (a *RedisArchive) Close() error { return a.client.Close() }
