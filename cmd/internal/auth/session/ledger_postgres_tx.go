package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"livesupport/cmd/identity"
)

// execer is satisfied by both DB and pgx.Tx.
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func selectForUpdateTx(ctx context.Context, tx pgx.Tx, table, where string, args ...any) (RefreshToken, error) {
	row := tx.QueryRow(ctx,
		`SELECT `+tokenColumns+`
		   FROM `+table+`
		  WHERE `+where+`
		  FOR UPDATE`,
		args...,
	)
	return scanToken(row)
}

func insertToken(
	ctx context.Context,
	db execer,
	table string,
	now time.Time,
	userID string,
	hash string,
	ttl time.Duration,
	meta IssueMeta,
) (RefreshToken, error) {
	id, err := identity.NewULID(now)
	if err != nil {
		return RefreshToken{}, err
	}

	r := RefreshToken{
		ID:          id,
		UserID:      userID,
		TokenHash:   hash,
		CreatedAt:   now,
		ExpiresAt:   now.Add(ttl),
		OriginAddr:  optString(meta.OriginAddr),
		ClientAgent: optString(meta.ClientAgent),
	}

	_, err = db.Exec(ctx, `
		INSERT INTO `+table+` (
			id, user_id, token_hash,
			created_at, expires_at, revoked_at,
			replaced_by_hash, origin_addr, client_agent
		) VALUES (
			$1, $2, $3,
			$4, $5, NULL,
			NULL, $6, $7
		)
	`, r.ID, r.UserID, r.TokenHash, r.CreatedAt, r.ExpiresAt, r.OriginAddr, r.ClientAgent)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			switch pgErr.Code {
			case "23505": // unique_violation
				return RefreshToken{}, fmt.Errorf("%w: refresh token hash", ErrConflict)
			case "23503": // foreign_key_violation
				return RefreshToken{}, fmt.Errorf("%w: unknown user", ErrInvalidInput)
			}
		}
		return RefreshToken{}, err
	}
	return r, nil
}

func markRotatedTx(ctx context.Context, tx pgx.Tx, table string, now time.Time, id, newHash string) error {
	ct, err := tx.Exec(ctx, `
		UPDATE `+table+`
		SET
			revoked_at = $2,
			replaced_by_hash = $3
		WHERE id = $1
		  AND revoked_at IS NULL
	`, id, now, newHash)
	if err != nil {
		return err
	}
	if ct.RowsAffected() != 1 {
		// The row is locked by us; this only happens if it vanished.
		return ErrRefreshNotFound
	}
	return nil
}

func scanToken(row pgx.Row) (RefreshToken, error) {
	var r RefreshToken
	err := row.Scan(
		&r.ID,
		&r.UserID,
		&r.TokenHash,
		&r.CreatedAt,
		&r.ExpiresAt,
		&r.RevokedAt,
		&r.ReplacedByHash,
		&r.OriginAddr,
		&r.ClientAgent,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return RefreshToken{}, ErrRefreshNotFound
	}
	if err != nil {
		return RefreshToken{}, err
	}
	return r, nil
}
