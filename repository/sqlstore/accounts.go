package sqlstore

import (
	"context"
	"fmt"

	"github.com/nijaru/reelflow/errors"
	"github.com/nijaru/reelflow/models"
)

func (s *Store) AddSourceAccount(ctx context.Context, account *models.SourceAccount, max int) error {
	const op = "Store.AddSourceAccount"

	if account.CreatedAt.IsZero() {
		account.CreatedAt = now()
	}

	err := WithTransaction(ctx, s.db, func(tx Executor) error {
		var count int
		if err := s.queryRow(ctx, tx, `SELECT COUNT(1) FROM source_accounts`).Scan(&count); err != nil {
			return errors.Internal(op, err, "Failed to count source accounts")
		}
		if count >= max {
			return errors.Conflict(op, nil, fmt.Sprintf("Maximum of %d source accounts allowed", max))
		}

		_, err := s.exec(ctx, tx,
			`INSERT INTO source_accounts (id, handle, created_at) VALUES (?, ?, ?)`,
			account.ID, account.Handle, account.CreatedAt,
		)
		if err != nil {
			if s.dialect.isUnique(err) {
				return errors.Conflict(op, err, "Source account already exists")
			}
			return errors.Internal(op, err, "Failed to add source account")
		}
		return nil
	})
	return err
}

func (s *Store) ListSourceAccounts(ctx context.Context) ([]*models.SourceAccount, error) {
	const op = "Store.ListSourceAccounts"

	rows, err := s.query(ctx, s.db,
		`SELECT id, handle, created_at FROM source_accounts ORDER BY created_at ASC`)
	if err != nil {
		return nil, errors.Internal(op, err, "Failed to list source accounts")
	}
	defer rows.Close()

	var accounts []*models.SourceAccount
	for rows.Next() {
		account := &models.SourceAccount{}
		if err := rows.Scan(&account.ID, &account.Handle, &account.CreatedAt); err != nil {
			return nil, errors.Internal(op, err, "Failed to scan source account")
		}
		accounts = append(accounts, account)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Internal(op, err, "Failed to iterate source accounts")
	}
	return accounts, nil
}

func (s *Store) DeleteSourceAccount(ctx context.Context, handle string) error {
	const op = "Store.DeleteSourceAccount"

	res, err := s.exec(ctx, s.db, `DELETE FROM source_accounts WHERE handle = ?`, handle)
	if err != nil {
		return errors.Internal(op, err, "Failed to delete source account")
	}
	return requireRow(op, res, "Source account not found")
}
