package sqlstore

import (
	"context"
	"database/sql"

	"github.com/nijaru/reelflow/errors"
	"github.com/nijaru/reelflow/models"
)

const scrapeJobColumns = `id, source_account, min_score, sweep, status, videos_found,
               error_message, created_at, updated_at`

func (s *Store) CreateScrapeJob(ctx context.Context, job *models.ScrapeJob) error {
	const op = "Store.CreateScrapeJob"

	if job.CreatedAt.IsZero() {
		job.CreatedAt = now()
	}
	job.UpdatedAt = job.CreatedAt

	err := withRetry(ctx, s.config, op, func() error {
		_, err := s.exec(ctx, s.db, `
            INSERT INTO scrape_jobs (
                id, source_account, min_score, sweep, status, videos_found,
                error_message, created_at, updated_at
            ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			job.ID,
			job.SourceAccount,
			job.MinScore,
			job.Sweep,
			string(job.Status),
			job.VideosFound,
			job.Error,
			job.CreatedAt,
			job.UpdatedAt,
		)
		return err
	})
	if err != nil {
		return errors.Internal(op, err, "Failed to create scrape job")
	}
	return nil
}

func (s *Store) GetScrapeJob(ctx context.Context, id string) (*models.ScrapeJob, error) {
	const op = "Store.GetScrapeJob"

	job, err := scanScrapeJob(s.queryRow(ctx, s.db,
		`SELECT `+scrapeJobColumns+` FROM scrape_jobs WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, errors.NotFound(op, nil, "Scrape job not found")
	}
	if err != nil {
		return nil, errors.Internal(op, err, "Failed to query scrape job")
	}
	return job, nil
}

func (s *Store) UpdateScrapeJob(ctx context.Context, job *models.ScrapeJob) error {
	const op = "Store.UpdateScrapeJob"

	job.UpdatedAt = now()

	var res sql.Result
	err := withRetry(ctx, s.config, op, func() error {
		var execErr error
		res, execErr = s.exec(ctx, s.db, `
            UPDATE scrape_jobs SET
                status = ?,
                videos_found = ?,
                error_message = ?,
                updated_at = ?
            WHERE id = ? AND status NOT IN ('completed', 'failed')`,
			string(job.Status),
			job.VideosFound,
			job.Error,
			job.UpdatedAt,
			job.ID,
		)
		return execErr
	})
	if err != nil {
		return errors.Internal(op, err, "Failed to update scrape job")
	}

	n, err := res.RowsAffected()
	if err != nil {
		return errors.Internal(op, err, "Failed to read affected rows")
	}
	if n == 1 {
		return nil
	}

	if _, err := s.GetScrapeJob(ctx, job.ID); err != nil {
		return err
	}
	return errors.Conflict(op, nil, "Scrape job already finished")
}

func (s *Store) ListScrapeJobs(ctx context.Context, limit int) ([]*models.ScrapeJob, error) {
	const op = "Store.ListScrapeJobs"

	rows, err := s.query(ctx, s.db,
		`SELECT `+scrapeJobColumns+` FROM scrape_jobs ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, errors.Internal(op, err, "Failed to list scrape jobs")
	}
	return collectScrapeJobs(op, rows)
}

func (s *Store) ListScrapeJobsByStatus(ctx context.Context, status models.ScrapeJobStatus) ([]*models.ScrapeJob, error) {
	const op = "Store.ListScrapeJobsByStatus"

	rows, err := s.query(ctx, s.db,
		`SELECT `+scrapeJobColumns+` FROM scrape_jobs WHERE status = ? ORDER BY created_at ASC`, string(status))
	if err != nil {
		return nil, errors.Internal(op, err, "Failed to list scrape jobs")
	}
	return collectScrapeJobs(op, rows)
}

func scanScrapeJob(row scanner) (*models.ScrapeJob, error) {
	job := &models.ScrapeJob{}
	var status string

	err := row.Scan(
		&job.ID,
		&job.SourceAccount,
		&job.MinScore,
		&job.Sweep,
		&status,
		&job.VideosFound,
		&job.Error,
		&job.CreatedAt,
		&job.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	job.Status = models.ScrapeJobStatus(status)
	return job, nil
}

func collectScrapeJobs(op string, rows *sql.Rows) ([]*models.ScrapeJob, error) {
	defer rows.Close()

	var jobs []*models.ScrapeJob
	for rows.Next() {
		job, err := scanScrapeJob(rows)
		if err != nil {
			return nil, errors.Internal(op, err, "Failed to scan scrape job")
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Internal(op, err, "Failed to iterate scrape jobs")
	}
	return jobs, nil
}
