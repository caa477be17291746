package session

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB is the subset of *pgxpool.Pool the ledger needs.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// PostgresLedger implements Ledger over the refresh_tokens table.
//
// Rotate and Exchange lock the presented row with SELECT ... FOR UPDATE and
// do the revoke-old/insert-new pair inside one transaction. RevokeAll is a
// single conditional UPDATE.
type PostgresLedger struct {
	db    DB
	opts  LedgerOptions
	table string
}

var pgIdentRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// NewPostgresLedger returns a ledger using schema (empty means "livesupport").
func NewPostgresLedger(db DB, opts LedgerOptions, schema string) (*PostgresLedger, error) {
	if db == nil {
		return nil, fmt.Errorf("session: nil db")
	}
	schema = strings.TrimSpace(schema)
	if schema == "" {
		schema = "livesupport"
	}
	if !pgIdentRe.MatchString(schema) {
		return nil, fmt.Errorf("session: invalid schema identifier")
	}
	return &PostgresLedger{
		db:    db,
		opts:  opts,
		table: pgx.Identifier{schema, "refresh_tokens"}.Sanitize(),
	}, nil
}

const tokenColumns = `id, user_id, token_hash, created_at, expires_at, revoked_at, replaced_by_hash, origin_addr, client_agent`

func (l *PostgresLedger) Store(ctx context.Context, now time.Time, userID, rawSecret string, ttl time.Duration, meta IssueMeta) (RefreshToken, error) {
	const op = "session.ledger.Store"

	raw, ok := cleanSecret(rawSecret)
	if !ok || userID == "" || ttl <= 0 {
		return RefreshToken{}, ErrInvalidInput
	}
	r, err := insertToken(ctx, l.db, l.table, now, userID, l.opts.Hasher.Hash(raw), ttl, meta)
	if err != nil {
		return RefreshToken{}, classify(op, err)
	}
	return r, nil
}

func (l *PostgresLedger) IsValid(ctx context.Context, now time.Time, userID, rawSecret string) (bool, error) {
	raw, ok := cleanSecret(rawSecret)
	if !ok {
		return false, nil
	}

	var live bool
	err := l.db.QueryRow(ctx,
		`SELECT EXISTS (
		   SELECT 1 FROM `+l.table+`
		    WHERE user_id = $1
		      AND token_hash = $2
		      AND revoked_at IS NULL
		      AND expires_at > $3
		 )`,
		userID, l.opts.Hasher.Hash(raw), now,
	).Scan(&live)
	if err != nil {
		return false, infra("session.ledger.IsValid", err)
	}
	return live, nil
}

func (l *PostgresLedger) Rotate(ctx context.Context, now time.Time, userID, oldRaw, newRaw string) (RotateResult, error) {
	const op = "session.ledger.Rotate"

	newSecret, ok := cleanSecret(newRaw)
	if !ok || userID == "" {
		return RotateResult{}, ErrInvalidInput
	}
	newHash := l.opts.Hasher.Hash(newSecret)

	tx, err := l.db.Begin(ctx)
	if err != nil {
		return RotateResult{}, infra(op, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var (
		res  RotateResult
		meta IssueMeta
	)
	if oldSecret, ok := cleanSecret(oldRaw); ok {
		row, err := selectForUpdateTx(ctx, tx, l.table,
			`user_id = $1 AND token_hash = $2`, userID, l.opts.Hasher.Hash(oldSecret))
		switch {
		case err == nil && row.Live(now):
			if err := markRotatedTx(ctx, tx, l.table, now, row.ID, newHash); err != nil {
				return RotateResult{}, classify(op, err)
			}
			res.Replaced = true
			meta = metaOf(row)
		case err == nil, errors.Is(err, ErrRefreshNotFound):
		default:
			return RotateResult{}, classify(op, err)
		}
	}
	if !res.Replaced && l.opts.StrictRotation {
		return RotateResult{}, ErrRefreshNotLive
	}

	res.New, err = insertToken(ctx, tx, l.table, now, userID, newHash, l.opts.rotationTTL(0), meta)
	if err != nil {
		return RotateResult{}, classify(op, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return RotateResult{}, infra(op, err)
	}
	return res, nil
}

func (l *PostgresLedger) RevokeAll(ctx context.Context, now time.Time, userID string) (int64, error) {
	ct, err := l.db.Exec(ctx,
		`UPDATE `+l.table+`
		    SET revoked_at = $1
		  WHERE user_id = $2
		    AND revoked_at IS NULL
		    AND expires_at > $1`,
		now, userID,
	)
	if err != nil {
		return 0, infra("session.ledger.RevokeAll", err)
	}
	return ct.RowsAffected(), nil
}

func (l *PostgresLedger) Lookup(ctx context.Context, rawSecret string) (RefreshToken, error) {
	raw, ok := cleanSecret(rawSecret)
	if !ok {
		return RefreshToken{}, ErrRefreshNotFound
	}
	row := l.db.QueryRow(ctx,
		`SELECT `+tokenColumns+` FROM `+l.table+` WHERE token_hash = $1`,
		l.opts.Hasher.Hash(raw),
	)
	r, err := scanToken(row)
	if err != nil {
		return RefreshToken{}, classify("session.ledger.Lookup", err)
	}
	return r, nil
}

func (l *PostgresLedger) Exchange(ctx context.Context, now time.Time, oldRaw, newRaw string, ttl time.Duration, meta IssueMeta) (RefreshToken, error) {
	const op = "session.ledger.Exchange"

	oldSecret, ok := cleanSecret(oldRaw)
	if !ok {
		return RefreshToken{}, ErrRefreshNotFound
	}
	newSecret, ok := cleanSecret(newRaw)
	if !ok {
		return RefreshToken{}, ErrInvalidInput
	}
	newHash := l.opts.Hasher.Hash(newSecret)

	tx, err := l.db.Begin(ctx)
	if err != nil {
		return RefreshToken{}, infra(op, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// A concurrent exchanger blocks here and then sees the committed rotation.
	row, err := selectForUpdateTx(ctx, tx, l.table, `token_hash = $1`, l.opts.Hasher.Hash(oldSecret))
	if err != nil {
		return RefreshToken{}, classify(op, err)
	}
	if err := exchangeable(row, now); err != nil {
		return RefreshToken{}, err
	}
	if meta == (IssueMeta{}) {
		meta = metaOf(row)
	}

	if err := markRotatedTx(ctx, tx, l.table, now, row.ID, newHash); err != nil {
		return RefreshToken{}, classify(op, err)
	}
	next, err := insertToken(ctx, tx, l.table, now, row.UserID, newHash, l.opts.rotationTTL(ttl), meta)
	if err != nil {
		return RefreshToken{}, classify(op, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return RefreshToken{}, infra(op, err)
	}
	return next, nil
}

func (l *PostgresLedger) Lineage(ctx context.Context, userID, rawSecret string) ([]RefreshToken, error) {
	const op = "session.ledger.Lineage"

	raw, ok := cleanSecret(rawSecret)
	if !ok {
		return nil, ErrRefreshNotFound
	}

	rows, err := l.db.Query(ctx,
		`WITH RECURSIVE chain AS (
		     SELECT `+tokenColumns+`, 0 AS depth
		       FROM `+l.table+`
		      WHERE user_id = $1 AND token_hash = $2
		   UNION ALL
		     SELECT t.id, t.user_id, t.token_hash, t.created_at, t.expires_at, t.revoked_at,
		            t.replaced_by_hash, t.origin_addr, t.client_agent, c.depth + 1
		       FROM `+l.table+` t
		       JOIN chain c ON t.token_hash = c.replaced_by_hash AND t.user_id = c.user_id
		      WHERE c.depth < $3
		 )
		 SELECT `+tokenColumns+` FROM chain ORDER BY depth`,
		userID, l.opts.Hasher.Hash(raw), maxLineageDepth,
	)
	if err != nil {
		return nil, infra(op, err)
	}
	defer rows.Close()

	var out []RefreshToken
	for rows.Next() {
		r, err := scanToken(rows)
		if err != nil {
			return nil, infra(op, err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, infra(op, err)
	}
	if len(out) == 0 {
		return nil, ErrRefreshNotFound
	}
	return out, nil
}

const maxLineageDepth = 10000

// classify keeps ledger sentinels intact and marks everything else as infra.
func classify(op string, err error) error {
	switch {
	case errors.Is(err, ErrRefreshNotFound),
		errors.Is(err, ErrConflict),
		errors.Is(err, ErrInvalidInput):
		return err
	default:
		return infra(op, err)
	}
}
