package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shaiso/Conveyor/internal/domain"
)

// RunRepo — репозиторий для работы с runs и stage_runs.
type RunRepo struct {
	db DBTX
}

// NewRunRepo создаёт новый RunRepo.
func NewRunRepo(db DBTX) *RunRepo {
	return &RunRepo{db: db}
}

const runColumns = `id, pipeline, build_id, image_tag, source, revision, status,
		       stage_index, stage, reason, started_at, finished_at, created_at`

// CreateRun создаёт новый run.
func (r *RunRepo) CreateRun(ctx context.Context, run *domain.Run) error {
	query := `
		INSERT INTO runs (id, pipeline, build_id, image_tag, source, revision, status,
		                  stage_index, stage, reason, started_at, finished_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`
	_, err := r.db.Exec(ctx, query,
		run.ID,
		run.Pipeline,
		run.BuildID,
		run.ImageTag,
		run.Source,
		nullString(run.Revision),
		run.Status,
		run.StageIndex,
		nullString(run.Stage),
		nullString(run.Reason),
		run.StartedAt,
		run.FinishedAt,
		run.CreatedAt,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: run %s", ErrAlreadyExists, run.ID)
	}
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// UpdateRun обновляет статус и положение run.
func (r *RunRepo) UpdateRun(ctx context.Context, run *domain.Run) error {
	query := `
		UPDATE runs
		SET status = $2, stage_index = $3, stage = $4, reason = $5,
		    started_at = $6, finished_at = $7
		WHERE id = $1
	`
	result, err := r.db.Exec(ctx, query,
		run.ID,
		run.Status,
		run.StageIndex,
		nullString(run.Stage),
		nullString(run.Reason),
		run.StartedAt,
		run.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SaveStage создаёт или обновляет запись stage.
func (r *RunRepo) SaveStage(ctx context.Context, rec *domain.StageRecord) error {
	query := `
		INSERT INTO stage_runs (run_id, idx, name, status, error, started_at, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (run_id, idx) DO UPDATE
		SET status = EXCLUDED.status, error = EXCLUDED.error, finished_at = EXCLUDED.finished_at
	`
	_, err := r.db.Exec(ctx, query,
		rec.RunID,
		rec.Index,
		rec.Name,
		rec.Status,
		nullString(rec.Error),
		rec.StartedAt,
		rec.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("save stage: %w", err)
	}
	return nil
}

// GetByID возвращает run по ID.
func (r *RunRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs WHERE id = $1`
	return scanRun(r.db.QueryRow(ctx, query, id))
}

// List возвращает список runs с фильтрацией, новые первыми.
func (r *RunRepo) List(ctx context.Context, filter RunFilter) ([]domain.Run, error) {
	if filter.Limit <= 0 {
		filter.Limit = 50
	}
	query := `
		SELECT ` + runColumns + `
		FROM runs
		WHERE ($1::text IS NULL OR pipeline = $1)
		  AND ($2::text IS NULL OR status = $2)
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4
	`
	rows, err := r.db.Query(ctx, query,
		nullString(filter.Pipeline),
		nullString(string(filter.Status)),
		filter.Limit,
		filter.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []domain.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// ListStages возвращает записи stages run по порядку.
func (r *RunRepo) ListStages(ctx context.Context, runID uuid.UUID) ([]domain.StageRecord, error) {
	query := `
		SELECT run_id, idx, name, status, error, started_at, finished_at
		FROM stage_runs
		WHERE run_id = $1
		ORDER BY idx
	`
	rows, err := r.db.Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("list stages: %w", err)
	}
	defer rows.Close()

	var stages []domain.StageRecord
	for rows.Next() {
		var rec domain.StageRecord
		var stageErr *string
		if err := rows.Scan(&rec.RunID, &rec.Index, &rec.Name, &rec.Status, &stageErr, &rec.StartedAt, &rec.FinishedAt); err != nil {
			return nil, fmt.Errorf("scan stage: %w", err)
		}
		if stageErr != nil {
			rec.Error = *stageErr
		}
		stages = append(stages, rec)
	}
	return stages, rows.Err()
}

// --- Helpers ---

// RunFilter — параметры фильтрации runs.
type RunFilter struct {
	Pipeline string
	Status   domain.RunStatus
	Limit    int
	Offset   int
}

// scanRun сканирует одну строку (pgx.Row или pgx.Rows) в Run.
func scanRun(row pgx.Row) (*domain.Run, error) {
	var run domain.Run
	var revision, stage, reason *string

	err := row.Scan(
		&run.ID,
		&run.Pipeline,
		&run.BuildID,
		&run.ImageTag,
		&run.Source,
		&revision,
		&run.Status,
		&run.StageIndex,
		&stage,
		&reason,
		&run.StartedAt,
		&run.FinishedAt,
		&run.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan run: %w", err)
	}

	run.Revision = deref(revision)
	run.Stage = deref(stage)
	run.Reason = deref(reason)
	return &run, nil
}

// nullString возвращает nil для пустой строки (для NULL в БД).
func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// isUniqueViolation проверяет код 23505.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
