package sqlstore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/nijaru/reelflow/errors"
)

const videoColumns = `id, source_video_id, source_url, source_account, caption,
               view_count, score, status, raw_file_path, composed_file_path,
               hook_text, title, description, tags, destination_url,
               error_message, created_at, updated_at`

const (
	createVideoQuery = `
        INSERT INTO videos (
            id, source_video_id, source_url, source_account, caption,
            view_count, score, status, raw_file_path, composed_file_path,
            hook_text, title, description, tags, destination_url,
            error_message, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
    `

	getVideoQuery = `
        SELECT ` + videoColumns + `
        FROM videos WHERE id = ?
    `

	sourceVideoExistsQuery = `
        SELECT COUNT(1) FROM videos WHERE source_video_id = ?
    `

	updateVideoQuery = `
        UPDATE videos SET
            score = ?,
            status = ?,
            raw_file_path = ?,
            composed_file_path = ?,
            hook_text = ?,
            title = ?,
            description = ?,
            tags = ?,
            destination_url = ?,
            error_message = ?,
            updated_at = ?
        WHERE id = ?
    `

	transitionVideoQuery = `
        UPDATE videos SET status = ?, updated_at = ?
        WHERE id = ? AND status = ?
    `

	updatePipelineJobQuery = `
        UPDATE pipeline_jobs SET
            status = ?,
            current_step = ?,
            error_message = ?,
            updated_at = ?
        WHERE id = ?
    `
)

type PreparedStatements struct {
	createVideo       *sql.Stmt
	getVideo          *sql.Stmt
	sourceVideoExists *sql.Stmt
	updateVideo       *sql.Stmt
	transitionVideo   *sql.Stmt
	updatePipelineJob *sql.Stmt
}

func (stmts *PreparedStatements) Prepare(ctx context.Context, db *sql.DB, d dialect) error {
	const op = "PreparedStatements.Prepare"

	var err error

	if stmts.createVideo, err = db.PrepareContext(ctx, d.rebind(createVideoQuery)); err != nil {
		return errors.Internal(op, err, "failed to prepare createVideo statement")
	}

	if stmts.getVideo, err = db.PrepareContext(ctx, d.rebind(getVideoQuery)); err != nil {
		return errors.Internal(op, err, "failed to prepare getVideo statement")
	}

	if stmts.sourceVideoExists, err = db.PrepareContext(ctx, d.rebind(sourceVideoExistsQuery)); err != nil {
		return errors.Internal(op, err, "failed to prepare sourceVideoExists statement")
	}

	if stmts.updateVideo, err = db.PrepareContext(ctx, d.rebind(updateVideoQuery)); err != nil {
		return errors.Internal(op, err, "failed to prepare updateVideo statement")
	}

	if stmts.transitionVideo, err = db.PrepareContext(ctx, d.rebind(transitionVideoQuery)); err != nil {
		return errors.Internal(op, err, "failed to prepare transitionVideo statement")
	}

	if stmts.updatePipelineJob, err = db.PrepareContext(ctx, d.rebind(updatePipelineJobQuery)); err != nil {
		return errors.Internal(op, err, "failed to prepare updatePipelineJob statement")
	}

	return nil
}

func (stmts *PreparedStatements) Close() error {
	var errs []error

	statements := [...]*sql.Stmt{
		stmts.createVideo,
		stmts.getVideo,
		stmts.sourceVideoExists,
		stmts.updateVideo,
		stmts.transitionVideo,
		stmts.updatePipelineJob,
	}

	for _, stmt := range statements {
		if stmt != nil {
			if err := stmt.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("failed to close prepared statements: %v", errs)
	}

	return nil
}
