package sqlstore

import (
	"context"
	"database/sql"

	"github.com/nijaru/reelflow/errors"
	"github.com/nijaru/reelflow/models"
)

const pipelineJobColumns = `id, video_id, status, current_step, error_message, created_at, updated_at`

const createPipelineJobQuery = `
    INSERT INTO pipeline_jobs (
        id, video_id, status, current_step, error_message, created_at, updated_at
    ) VALUES (?, ?, ?, ?, ?, ?, ?)`

func (s *Store) CreatePipelineJob(ctx context.Context, job *models.PipelineJob) error {
	const op = "Store.CreatePipelineJob"

	if job.CreatedAt.IsZero() {
		job.CreatedAt = now()
	}
	job.UpdatedAt = job.CreatedAt

	err := withRetry(ctx, s.config, op, func() error {
		_, err := s.exec(ctx, s.db, createPipelineJobQuery, pipelineJobArgs(job)...)
		return err
	})
	if err != nil {
		if s.dialect.isUnique(err) {
			return errors.Conflict(op, err, "Video already has an active pipeline job")
		}
		return errors.Internal(op, err, "Failed to create pipeline job")
	}
	return nil
}

func (s *Store) UpdatePipelineJob(ctx context.Context, job *models.PipelineJob) error {
	const op = "Store.UpdatePipelineJob"

	job.UpdatedAt = now()

	var res sql.Result
	err := withRetry(ctx, s.config, op, func() error {
		var execErr error
		res, execErr = s.statements.updatePipelineJob.ExecContext(ctx,
			string(job.Status),
			job.CurrentStep,
			job.Error,
			job.UpdatedAt,
			job.ID,
		)
		return execErr
	})
	if err != nil {
		if s.dialect.isUnique(err) {
			return errors.Conflict(op, err, "Video already has an active pipeline job")
		}
		return errors.Internal(op, err, "Failed to update pipeline job")
	}
	return requireRow(op, res, "Pipeline job not found")
}

func (s *Store) ActivePipelineJob(ctx context.Context, videoID string) (*models.PipelineJob, error) {
	const op = "Store.ActivePipelineJob"

	job, err := scanPipelineJob(s.queryRow(ctx, s.db,
		`SELECT `+pipelineJobColumns+` FROM pipeline_jobs
        WHERE video_id = ? AND status IN ('pending', 'running')`, videoID))
	if err == sql.ErrNoRows {
		return nil, errors.NotFound(op, nil, "No active pipeline job")
	}
	if err != nil {
		return nil, errors.Internal(op, err, "Failed to query pipeline job")
	}
	return job, nil
}

func (s *Store) ListPipelineJobs(ctx context.Context, videoID string) ([]*models.PipelineJob, error) {
	const op = "Store.ListPipelineJobs"

	rows, err := s.query(ctx, s.db,
		`SELECT `+pipelineJobColumns+` FROM pipeline_jobs WHERE video_id = ? ORDER BY created_at DESC`, videoID)
	if err != nil {
		return nil, errors.Internal(op, err, "Failed to list pipeline jobs")
	}
	return collectPipelineJobs(op, rows)
}

func (s *Store) ListPipelineJobsByStatus(ctx context.Context, status models.PipelineJobStatus) ([]*models.PipelineJob, error) {
	const op = "Store.ListPipelineJobsByStatus"

	rows, err := s.query(ctx, s.db,
		`SELECT `+pipelineJobColumns+` FROM pipeline_jobs WHERE status = ? ORDER BY created_at ASC`, string(status))
	if err != nil {
		return nil, errors.Internal(op, err, "Failed to list pipeline jobs")
	}
	return collectPipelineJobs(op, rows)
}

func pipelineJobArgs(job *models.PipelineJob) []interface{} {
	return []interface{}{
		job.ID,
		job.VideoID,
		string(job.Status),
		job.CurrentStep,
		job.Error,
		job.CreatedAt,
		job.UpdatedAt,
	}
}

func scanPipelineJob(row scanner) (*models.PipelineJob, error) {
	job := &models.PipelineJob{}
	var status string

	err := row.Scan(
		&job.ID,
		&job.VideoID,
		&status,
		&job.CurrentStep,
		&job.Error,
		&job.CreatedAt,
		&job.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	job.Status = models.PipelineJobStatus(status)
	return job, nil
}

func collectPipelineJobs(op string, rows *sql.Rows) ([]*models.PipelineJob, error) {
	defer rows.Close()

	var jobs []*models.PipelineJob
	for rows.Next() {
		job, err := scanPipelineJob(rows)
		if err != nil {
			return nil, errors.Internal(op, err, "Failed to scan pipeline job")
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Internal(op, err, "Failed to iterate pipeline jobs")
	}
	return jobs, nil
}
