package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/nijaru/reelflow/errors"
	"github.com/nijaru/reelflow/models"
)

type scanner interface {
	Scan(dest ...interface{}) error
}

func (s *Store) CreateVideo(ctx context.Context, video *models.Video) error {
	const op = "Store.CreateVideo"

	tags, err := encodeTags(video.Tags)
	if err != nil {
		return errors.Internal(op, err, "Failed to encode tags")
	}

	if video.CreatedAt.IsZero() {
		video.CreatedAt = now()
	}
	video.UpdatedAt = video.CreatedAt

	err = withRetry(ctx, s.config, op, func() error {
		_, err := s.statements.createVideo.ExecContext(ctx, videoArgs(video, tags)...)
		return err
	})
	if err != nil {
		if s.dialect.isUnique(err) {
			return errors.ErrDuplicate
		}
		return errors.Internal(op, err, "Failed to save video")
	}
	return nil
}

// CreateVideoWithJob inserts a video and its first pipeline job in one
// transaction. Neither row is kept when either insert fails.
func (s *Store) CreateVideoWithJob(ctx context.Context, video *models.Video, job *models.PipelineJob) error {
	const op = "Store.CreateVideoWithJob"

	tags, err := encodeTags(video.Tags)
	if err != nil {
		return errors.Internal(op, err, "Failed to encode tags")
	}

	if video.CreatedAt.IsZero() {
		video.CreatedAt = now()
	}
	video.UpdatedAt = video.CreatedAt
	if job.CreatedAt.IsZero() {
		job.CreatedAt = video.CreatedAt
	}
	job.UpdatedAt = job.CreatedAt
	job.VideoID = video.ID

	var duplicate bool
	err = withRetry(ctx, s.config, op, func() error {
		duplicate = false
		return WithTransaction(ctx, s.db, func(tx Executor) error {
			if _, err := s.exec(ctx, tx, createVideoQuery, videoArgs(video, tags)...); err != nil {
				duplicate = s.dialect.isUnique(err)
				return err
			}
			_, err := s.exec(ctx, tx, createPipelineJobQuery, pipelineJobArgs(job)...)
			return err
		})
	})
	if err != nil {
		if duplicate {
			return errors.ErrDuplicate
		}
		if s.dialect.isUnique(err) {
			return errors.Conflict(op, err, "Video already has an active pipeline job")
		}
		return errors.Internal(op, err, "Failed to save video")
	}
	return nil
}

func videoArgs(video *models.Video, tags string) []interface{} {
	return []interface{}{
		video.ID,
		video.SourceVideoID,
		video.SourceURL,
		video.SourceAccount,
		video.Caption,
		video.ViewCount,
		nullableScore(video.Score),
		string(video.Status),
		video.RawFilePath,
		video.ComposedFilePath,
		video.HookText,
		video.Title,
		video.Description,
		tags,
		video.DestinationURL,
		video.Error,
		video.CreatedAt,
		video.UpdatedAt,
	}
}

func (s *Store) GetVideo(ctx context.Context, id string) (*models.Video, error) {
	const op = "Store.GetVideo"

	video, err := scanVideo(s.statements.getVideo.QueryRowContext(ctx, id))
	if err == sql.ErrNoRows {
		return nil, errors.NotFound(op, nil, "Video not found")
	}
	if err != nil {
		return nil, errors.Internal(op, err, "Failed to query video")
	}
	return video, nil
}

func (s *Store) SourceVideoExists(ctx context.Context, sourceVideoID string) (bool, error) {
	const op = "Store.SourceVideoExists"

	var count int
	if err := s.statements.sourceVideoExists.QueryRowContext(ctx, sourceVideoID).Scan(&count); err != nil {
		return false, errors.Internal(op, err, "Failed to check source video")
	}
	return count > 0, nil
}

func (s *Store) UpdateVideo(ctx context.Context, video *models.Video) error {
	const op = "Store.UpdateVideo"

	tags, err := encodeTags(video.Tags)
	if err != nil {
		return errors.Internal(op, err, "Failed to encode tags")
	}
	video.UpdatedAt = now()

	var res sql.Result
	err = withRetry(ctx, s.config, op, func() error {
		var execErr error
		res, execErr = s.statements.updateVideo.ExecContext(ctx,
			nullableScore(video.Score),
			string(video.Status),
			video.RawFilePath,
			video.ComposedFilePath,
			video.HookText,
			video.Title,
			video.Description,
			tags,
			video.DestinationURL,
			video.Error,
			video.UpdatedAt,
			video.ID,
		)
		return execErr
	})
	if err != nil {
		return errors.Internal(op, err, "Failed to update video")
	}
	return requireRow(op, res, "Video not found")
}

func (s *Store) TransitionVideo(ctx context.Context, id string, from, to models.VideoStatus) (bool, error) {
	const op = "Store.TransitionVideo"

	var res sql.Result
	err := withRetry(ctx, s.config, op, func() error {
		var execErr error
		res, execErr = s.statements.transitionVideo.ExecContext(ctx, string(to), now(), id, string(from))
		return execErr
	})
	if err != nil {
		return false, errors.Internal(op, err, "Failed to transition video")
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.Internal(op, err, "Failed to read affected rows")
	}
	return n == 1, nil
}

func (s *Store) ListVideos(ctx context.Context, limit int) ([]*models.Video, error) {
	const op = "Store.ListVideos"

	rows, err := s.query(ctx, s.db,
		`SELECT `+videoColumns+` FROM videos ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, errors.Internal(op, err, "Failed to list videos")
	}
	return collectVideos(op, rows)
}

func (s *Store) ListVideosByStatus(ctx context.Context, status models.VideoStatus) ([]*models.Video, error) {
	const op = "Store.ListVideosByStatus"

	rows, err := s.query(ctx, s.db,
		`SELECT `+videoColumns+` FROM videos WHERE status = ? ORDER BY created_at ASC`, string(status))
	if err != nil {
		return nil, errors.Internal(op, err, "Failed to list videos")
	}
	return collectVideos(op, rows)
}

func (s *Store) VideoStats(ctx context.Context) (*models.VideoStats, error) {
	const op = "Store.VideoStats"

	rows, err := s.query(ctx, s.db, `SELECT status, COUNT(1) FROM videos GROUP BY status`)
	if err != nil {
		return nil, errors.Internal(op, err, "Failed to count videos")
	}
	defer rows.Close()

	stats := &models.VideoStats{}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, errors.Internal(op, err, "Failed to scan video counts")
		}

		stats.Total += count
		switch models.VideoStatus(status) {
		case models.VideoProcessing, models.VideoReady, models.VideoRetrying:
			stats.InPipeline += count
		case models.VideoPublished:
			stats.Published += count
		case models.VideoPausedQuota:
			stats.PausedQuota += count
		case models.VideoError:
			stats.Errored += count
		}
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Internal(op, err, "Failed to iterate video counts")
	}

	channels, err := s.CountChannels(ctx)
	if err != nil {
		return nil, err
	}
	stats.Channels = channels

	if err := s.queryRow(ctx, s.db, `SELECT COUNT(1) FROM source_accounts`).Scan(&stats.SourceAccounts); err != nil {
		return nil, errors.Internal(op, err, "Failed to count source accounts")
	}

	return stats, nil
}

func scanVideo(row scanner) (*models.Video, error) {
	video := &models.Video{}
	var status, tags string
	var score sql.NullInt64

	err := row.Scan(
		&video.ID,
		&video.SourceVideoID,
		&video.SourceURL,
		&video.SourceAccount,
		&video.Caption,
		&video.ViewCount,
		&score,
		&status,
		&video.RawFilePath,
		&video.ComposedFilePath,
		&video.HookText,
		&video.Title,
		&video.Description,
		&tags,
		&video.DestinationURL,
		&video.Error,
		&video.CreatedAt,
		&video.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	video.Status = models.VideoStatus(status)
	if score.Valid {
		v := int(score.Int64)
		video.Score = &v
	}
	if tags != "" {
		if err := json.Unmarshal([]byte(tags), &video.Tags); err != nil {
			return nil, err
		}
	}
	return video, nil
}

func collectVideos(op string, rows *sql.Rows) ([]*models.Video, error) {
	defer rows.Close()

	var videos []*models.Video
	for rows.Next() {
		video, err := scanVideo(rows)
		if err != nil {
			return nil, errors.Internal(op, err, "Failed to scan video")
		}
		videos = append(videos, video)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Internal(op, err, "Failed to iterate videos")
	}
	return videos, nil
}

func encodeTags(tags []string) (string, error) {
	if len(tags) == 0 {
		return "[]", nil
	}
	b, err := json.Marshal(tags)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func nullableScore(score *int) sql.NullInt64 {
	if score == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*score), Valid: true}
}

func requireRow(op string, res sql.Result, notFound string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Internal(op, err, "Failed to read affected rows")
	}
	if n == 0 {
		return errors.NotFound(op, nil, notFound)
	}
	return nil
}
