package obs

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/sweetpotato0/api-universe/config"
)

// PostgresConfig holds PostgreSQL connection configuration for run metrics.
type PostgresConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// DefaultPostgresConfig returns default PostgreSQL configuration.
func DefaultPostgresConfig() *PostgresConfig {
	return &PostgresConfig{
		Host:     "localhost",
		Port:     5432,
		User:     "postgres",
		Password: "postgres",
		DBName:   "api_universe",
		SSLMode:  "disable",
	}
}

// PostgresSink stores run records in an agent_runs table and serves the
// aggregate queries behind the metrics dashboard.
type PostgresSink struct {
	db *sql.DB
}

var _ BackendSink = (*PostgresSink)(nil)

// Summary aggregates all recorded runs.
type Summary struct {
	TotalQueries int64
	AvgLatencyMS float64
	AvgGrounding float64
	TotalTokens  int64
}

// NewPostgresSink connects and creates the agent_runs table if needed.
func NewPostgresSink(cfg *PostgresConfig) (*PostgresSink, error) {
	if cfg == nil {
		cfg = DefaultPostgresConfig()
	}
	if err := config.ValidatePostgresConfig(cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode); err != nil {
		return nil, fmt.Errorf("invalid PostgreSQL configuration: %w", err)
	}

	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping PostgreSQL: %w", err)
	}

	sink := &PostgresSink{db: db}
	if err := sink.createTable(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create table: %w", err)
	}
	return sink, nil
}

func (s *PostgresSink) createTable(ctx context.Context) error {
	query := `
	CREATE TABLE IF NOT EXISTS agent_runs (
		id BIGSERIAL PRIMARY KEY,
		timestamp TIMESTAMPTZ NOT NULL,
		query TEXT NOT NULL,
		query_type TEXT,
		latency_ms BIGINT,
		grounding_score DOUBLE PRECISION,
		tokens BIGINT,
		retries INTEGER,
		classify_model TEXT,
		classify_ms BIGINT,
		decompose_model TEXT,
		decompose_ms BIGINT,
		retrieve_ms BIGINT,
		retrieve_count INTEGER,
		generate_model TEXT,
		generate_ms BIGINT,
		generate_tokens BIGINT,
		verify_model TEXT,
		verify_ms BIGINT
	);
	CREATE INDEX IF NOT EXISTS idx_agent_runs_timestamp ON agent_runs(timestamp);
	`
	_, err := s.db.ExecContext(ctx, query)
	return err
}

// Write inserts one run record.
func (s *PostgresSink) Write(ctx context.Context, rec *RunRecord) error {
	if rec == nil {
		return fmt.Errorf("run record cannot be nil")
	}
	ts := rec.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	query := `
	INSERT INTO agent_runs (
		timestamp, query, query_type, latency_ms, grounding_score, tokens, retries,
		classify_model, classify_ms, decompose_model, decompose_ms,
		retrieve_ms, retrieve_count, generate_model, generate_ms, generate_tokens,
		verify_model, verify_ms
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
	`
	_, err := s.db.ExecContext(ctx, query,
		ts,
		rec.Query,
		rec.QueryType,
		rec.LatencyMS,
		rec.GroundingScore,
		rec.Tokens,
		rec.Retries,
		rec.ClassifyModel,
		rec.ClassifyMS,
		rec.DecomposeModel,
		rec.DecomposeMS,
		rec.RetrieveMS,
		rec.RetrieveCount,
		rec.GenerateModel,
		rec.GenerateMS,
		rec.GenerateTokens,
		rec.VerifyModel,
		rec.VerifyMS,
	)
	if err != nil {
		return fmt.Errorf("failed to insert run record: %w", err)
	}
	return nil
}

// Summarize aggregates all recorded runs.
func (s *PostgresSink) Summarize(ctx context.Context) (*Summary, error) {
	var sum Summary
	var avgLatency, avgGrounding sql.NullFloat64
	var totalTokens sql.NullInt64

	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), AVG(latency_ms), AVG(grounding_score), SUM(tokens)
		FROM agent_runs
	`).Scan(&sum.TotalQueries, &avgLatency, &avgGrounding, &totalTokens)
	if err != nil {
		return nil, fmt.Errorf("failed to summarize runs: %w", err)
	}
	sum.AvgLatencyMS = avgLatency.Float64
	sum.AvgGrounding = avgGrounding.Float64
	sum.TotalTokens = totalTokens.Int64
	return &sum, nil
}

// Recent returns up to limit of the most recent run records, newest first.
func (s *PostgresSink) Recent(ctx context.Context, limit int) ([]*RunRecord, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT timestamp, query, query_type, latency_ms, grounding_score, tokens, retries,
		       classify_model, classify_ms, decompose_model, decompose_ms,
		       retrieve_ms, retrieve_count, generate_model, generate_ms, generate_tokens,
		       verify_model, verify_ms
		FROM agent_runs ORDER BY id DESC LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent runs: %w", err)
	}
	defer rows.Close()

	var records []*RunRecord
	for rows.Next() {
		rec := &RunRecord{}
		err := rows.Scan(
			&rec.Timestamp, &rec.Query, &rec.QueryType, &rec.LatencyMS,
			&rec.GroundingScore, &rec.Tokens, &rec.Retries,
			&rec.ClassifyModel, &rec.ClassifyMS, &rec.DecomposeModel, &rec.DecomposeMS,
			&rec.RetrieveMS, &rec.RetrieveCount, &rec.GenerateModel, &rec.GenerateMS,
			&rec.GenerateTokens, &rec.VerifyModel, &rec.VerifyMS,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run record: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating run records: %w", err)
	}
	return records, nil
}

// Ping checks if the PostgreSQL connection is alive.
func (s *PostgresSink) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the PostgreSQL connection.
func (s *PostgresSink) Close() error {
	return s.db.Close()
}
