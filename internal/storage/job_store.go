package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/pokerlens/pokeragent-worker/internal/models"
)

// ErrJobNotFound is returned when a job id has no row.
var ErrJobNotFound = errors.New("job not found")

// JobStore is the transactional job document store. UpdateJob is the one
// correctness-critical operation: many segment and hand tasks complete in
// parallel across process instances, and every counter mutation must be a
// serialized read-modify-write so no completion is lost.
type JobStore interface {
	CreateJob(ctx context.Context, job *models.AnalysisJob) error
	GetJob(ctx context.Context, jobID string) (*models.AnalysisJob, error)
	// UpdateJob loads the job, applies mutate, and writes the result back,
	// all inside one transaction with the row locked.
	UpdateJob(ctx context.Context, jobID string, mutate func(job *models.AnalysisJob) error) (*models.AnalysisJob, error)
	SaveHandRecord(ctx context.Context, rec *models.HandRecord) error
	// ListStaleJobs returns in-progress jobs not updated since the cutoff.
	ListStaleJobs(ctx context.Context, cutoff time.Time) ([]*models.AnalysisJob, error)
}

// PostgresJobStore implements JobStore on PostgreSQL. The job's segments
// live in a JSONB column so the whole document moves as one row.
type PostgresJobStore struct {
	db *sql.DB
}

// NewPostgresJobStore connects, configures the pool, and ensures the schema.
func NewPostgresJobStore(postgresURL string) (*PostgresJobStore, error) {
	db, err := sql.Open("postgres", postgresURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping PostgreSQL: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	s := &PostgresJobStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

func (s *PostgresJobStore) initSchema() error {
	schema := `
	CREATE SCHEMA IF NOT EXISTS pokeragent;

	-- Analysis job documents. Never deleted by the worker: completed jobs
	-- stay behind as an audit trail.
	CREATE TABLE IF NOT EXISTS pokeragent.jobs (
		job_id VARCHAR(255) PRIMARY KEY,
		stream_id VARCHAR(255) NOT NULL,
		source_ref TEXT NOT NULL,
		platform VARCHAR(100),
		segments JSONB NOT NULL,
		total_segments INT NOT NULL,
		completed_segments INT NOT NULL DEFAULT 0,
		failed_segments INT NOT NULL DEFAULT 0,
		hands_found INT NOT NULL DEFAULT 0,
		phase VARCHAR(50) NOT NULL,
		phase2_total_hands INT NOT NULL DEFAULT 0,
		phase2_completed_hands INT NOT NULL DEFAULT 0,
		progress INT NOT NULL DEFAULT 0,
		status VARCHAR(50) NOT NULL,
		error TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		completed_at TIMESTAMPTZ
	);

	-- Extracted hands, persisted independently of their job.
	CREATE TABLE IF NOT EXISTS pokeragent.hands (
		id VARCHAR(255) PRIMARY KEY,
		job_id VARCHAR(255) NOT NULL REFERENCES pokeragent.jobs(job_id),
		stream_id VARCHAR(255) NOT NULL,
		hand_number INT NOT NULL,
		record JSONB NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_jobs_status ON pokeragent.jobs(status);
	CREATE INDEX IF NOT EXISTS idx_hands_job ON pokeragent.hands(job_id);
	CREATE INDEX IF NOT EXISTS idx_hands_stream ON pokeragent.hands(stream_id);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("schema creation failed: %w", err)
	}
	return nil
}

func (s *PostgresJobStore) CreateJob(ctx context.Context, job *models.AnalysisJob) error {
	segments, err := json.Marshal(job.Segments)
	if err != nil {
		return fmt.Errorf("failed to marshal segments: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO pokeragent.jobs (
			job_id, stream_id, source_ref, platform, segments,
			total_segments, completed_segments, failed_segments, hands_found,
			phase, phase2_total_hands, phase2_completed_hands,
			progress, status, error, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)`,
		job.ID, job.StreamID, job.SourceRef, job.Platform, segments,
		job.TotalSegments, job.CompletedSegments, job.FailedSegments, job.HandsFound,
		job.Phase, job.Phase2TotalHands, job.Phase2CompletedHands,
		job.Progress, job.Status, nullable(job.Error), job.CreatedAt, job.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert job %s: %w", job.ID, err)
	}
	return nil
}

func (s *PostgresJobStore) GetJob(ctx context.Context, jobID string) (*models.AnalysisJob, error) {
	row := s.db.QueryRowContext(ctx, selectJob+` WHERE job_id = $1`, jobID)
	return scanJob(row)
}

func (s *PostgresJobStore) UpdateJob(ctx context.Context, jobID string, mutate func(job *models.AnalysisJob) error) (*models.AnalysisJob, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, selectJob+` WHERE job_id = $1 FOR UPDATE`, jobID)
	job, err := scanJob(row)
	if err != nil {
		return nil, err
	}

	if err := mutate(job); err != nil {
		return nil, err
	}
	job.UpdatedAt = time.Now().UTC()

	segments, err := json.Marshal(job.Segments)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal segments: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE pokeragent.jobs SET
			segments = $2,
			completed_segments = $3,
			failed_segments = $4,
			hands_found = $5,
			phase = $6,
			phase2_total_hands = $7,
			phase2_completed_hands = $8,
			progress = $9,
			status = $10,
			error = $11,
			updated_at = $12,
			completed_at = $13
		WHERE job_id = $1`,
		job.ID, segments,
		job.CompletedSegments, job.FailedSegments, job.HandsFound,
		job.Phase, job.Phase2TotalHands, job.Phase2CompletedHands,
		job.Progress, job.Status, nullable(job.Error), job.UpdatedAt, job.CompletedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to update job %s: %w", jobID, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit job update: %w", err)
	}
	return job, nil
}

func (s *PostgresJobStore) SaveHandRecord(ctx context.Context, rec *models.HandRecord) error {
	record, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal hand record: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO pokeragent.hands (id, job_id, stream_id, hand_number, record, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		rec.ID, rec.JobID, rec.StreamID, rec.HandNumber, record, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert hand record %s: %w", rec.ID, err)
	}
	return nil
}

func (s *PostgresJobStore) ListStaleJobs(ctx context.Context, cutoff time.Time) ([]*models.AnalysisJob, error) {
	rows, err := s.db.QueryContext(ctx, selectJob+`
		WHERE status IN ('phase1-in-progress','phase2-in-progress')
		  AND updated_at < $1`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to list stale jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*models.AnalysisJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// Close releases the connection pool.
func (s *PostgresJobStore) Close() error {
	return s.db.Close()
}

const selectJob = `
	SELECT job_id, stream_id, source_ref, platform, segments,
		total_segments, completed_segments, failed_segments, hands_found,
		phase, phase2_total_hands, phase2_completed_hands,
		progress, status, error, created_at, updated_at, completed_at
	FROM pokeragent.jobs`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*models.AnalysisJob, error) {
	var job models.AnalysisJob
	var segments []byte
	var errMsg sql.NullString
	var completedAt sql.NullTime

	err := row.Scan(
		&job.ID, &job.StreamID, &job.SourceRef, &job.Platform, &segments,
		&job.TotalSegments, &job.CompletedSegments, &job.FailedSegments, &job.HandsFound,
		&job.Phase, &job.Phase2TotalHands, &job.Phase2CompletedHands,
		&job.Progress, &job.Status, &errMsg, &job.CreatedAt, &job.UpdatedAt, &completedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan job: %w", err)
	}

	if err := json.Unmarshal(segments, &job.Segments); err != nil {
		return nil, fmt.Errorf("failed to unmarshal segments: %w", err)
	}
	if errMsg.Valid {
		job.Error = errMsg.String
	}
	if completedAt.Valid {
		t := completedAt.Time
		job.CompletedAt = &t
	}
	return &job, nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
