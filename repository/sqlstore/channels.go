package sqlstore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/nijaru/reelflow/errors"
	"github.com/nijaru/reelflow/models"
)

const channelColumns = `id, channel_id, display_name, access_token, refresh_token,
               token_expiry, created_at, updated_at`

func (s *Store) UpsertChannel(ctx context.Context, channel *models.DestinationChannel, max int) error {
	const op = "Store.UpsertChannel"

	ts := now()

	return WithTransaction(ctx, s.db, func(tx Executor) error {
		existing, err := scanChannel(s.queryRow(ctx, tx,
			`SELECT `+channelColumns+` FROM destination_channels WHERE channel_id = ?`, channel.ChannelID))
		switch {
		case err == nil:
			channel.ID = existing.ID
			channel.CreatedAt = existing.CreatedAt
			channel.UpdatedAt = ts
			_, err = s.exec(ctx, tx, `
                UPDATE destination_channels SET
                    display_name = ?,
                    access_token = ?,
                    refresh_token = ?,
                    token_expiry = ?,
                    updated_at = ?
                WHERE id = ?`,
				channel.DisplayName,
				channel.AccessToken,
				channel.RefreshToken,
				channel.TokenExpiry.UTC(),
				channel.UpdatedAt,
				channel.ID,
			)
			if err != nil {
				return errors.Internal(op, err, "Failed to update channel")
			}
			return nil
		case err != sql.ErrNoRows:
			return errors.Internal(op, err, "Failed to query channel")
		}

		var count int
		if err := s.queryRow(ctx, tx, `SELECT COUNT(1) FROM destination_channels`).Scan(&count); err != nil {
			return errors.Internal(op, err, "Failed to count channels")
		}
		if count >= max {
			return errors.Conflict(op, nil, fmt.Sprintf("Maximum of %d destination channels allowed", max))
		}

		channel.CreatedAt = ts
		channel.UpdatedAt = ts
		_, err = s.exec(ctx, tx, `
            INSERT INTO destination_channels (
                id, channel_id, display_name, access_token, refresh_token,
                token_expiry, created_at, updated_at
            ) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			channel.ID,
			channel.ChannelID,
			channel.DisplayName,
			channel.AccessToken,
			channel.RefreshToken,
			channel.TokenExpiry.UTC(),
			channel.CreatedAt,
			channel.UpdatedAt,
		)
		if err != nil {
			return errors.Internal(op, err, "Failed to insert channel")
		}
		return nil
	})
}

func (s *Store) GetChannel(ctx context.Context, id string) (*models.DestinationChannel, error) {
	const op = "Store.GetChannel"

	channel, err := scanChannel(s.queryRow(ctx, s.db,
		`SELECT `+channelColumns+` FROM destination_channels WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, errors.NotFound(op, nil, "Channel not found")
	}
	if err != nil {
		return nil, errors.Internal(op, err, "Failed to query channel")
	}
	return channel, nil
}

func (s *Store) ListChannels(ctx context.Context) ([]*models.DestinationChannel, error) {
	const op = "Store.ListChannels"

	rows, err := s.query(ctx, s.db,
		`SELECT `+channelColumns+` FROM destination_channels ORDER BY created_at ASC`)
	if err != nil {
		return nil, errors.Internal(op, err, "Failed to list channels")
	}
	defer rows.Close()

	var channels []*models.DestinationChannel
	for rows.Next() {
		channel, err := scanChannel(rows)
		if err != nil {
			return nil, errors.Internal(op, err, "Failed to scan channel")
		}
		channels = append(channels, channel)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Internal(op, err, "Failed to iterate channels")
	}
	return channels, nil
}

func (s *Store) UpdateChannelTokens(ctx context.Context, channel *models.DestinationChannel) error {
	const op = "Store.UpdateChannelTokens"

	channel.UpdatedAt = now()
	res, err := s.exec(ctx, s.db, `
        UPDATE destination_channels SET
            access_token = ?,
            refresh_token = ?,
            token_expiry = ?,
            updated_at = ?
        WHERE id = ?`,
		channel.AccessToken,
		channel.RefreshToken,
		channel.TokenExpiry.UTC(),
		channel.UpdatedAt,
		channel.ID,
	)
	if err != nil {
		return errors.Internal(op, err, "Failed to update channel tokens")
	}
	return requireRow(op, res, "Channel not found")
}

func (s *Store) DeleteChannel(ctx context.Context, id string) error {
	const op = "Store.DeleteChannel"

	res, err := s.exec(ctx, s.db, `DELETE FROM destination_channels WHERE id = ?`, id)
	if err != nil {
		return errors.Internal(op, err, "Failed to delete channel")
	}
	return requireRow(op, res, "Channel not found")
}

func (s *Store) CountChannels(ctx context.Context) (int, error) {
	const op = "Store.CountChannels"

	var count int
	if err := s.queryRow(ctx, s.db, `SELECT COUNT(1) FROM destination_channels`).Scan(&count); err != nil {
		return 0, errors.Internal(op, err, "Failed to count channels")
	}
	return count, nil
}

func scanChannel(row scanner) (*models.DestinationChannel, error) {
	channel := &models.DestinationChannel{}
	err := row.Scan(
		&channel.ID,
		&channel.ChannelID,
		&channel.DisplayName,
		&channel.AccessToken,
		&channel.RefreshToken,
		&channel.TokenExpiry,
		&channel.CreatedAt,
		&channel.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return channel, nil
}
