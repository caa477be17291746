package identity

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

// DB is the subset of *pgxpool.Pool the stores need. It lets tests substitute
// a pgxmock pool.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// PostgresStore implements identity persistence over PostgreSQL.
//
// Design notes:
// - The pgx pool is owned by the caller; this store must NOT close it.
// - Schema/table identifiers are safely quoted to avoid SQL injection via identifiers.
// - Errors are mapped to identity sentinel kinds where appropriate.
type PostgresStore struct {
	db     DB
	schema string
}

// PostgresOption configures the store.
type PostgresOption func(*PostgresStore) error

var pgIdentRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// DefaultSchema is where migrations create the tables.
const DefaultSchema = "livesupport"

// WithSchema sets the Postgres schema used by the identity store (default "livesupport").
// The schema name is validated to be a legal PostgreSQL identifier.
func WithSchema(schema string) PostgresOption {
	return func(s *PostgresStore) error {
		schema = strings.TrimSpace(schema)
		if schema == "" {
			return fmt.Errorf("identity: empty schema")
		}
		if !pgIdentIsValid(schema) {
			return fmt.Errorf("identity: invalid schema identifier")
		}
		s.schema = schema
		return nil
	}
}

// NewPostgresStore constructs a PostgresStore with secure defaults.
func NewPostgresStore(db DB, opts ...PostgresOption) (*PostgresStore, error) {
	st := &PostgresStore{
		db:     db,
		schema: DefaultSchema,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(st); err != nil {
			return nil, err
		}
	}
	if st.db == nil {
		return nil, fmt.Errorf("identity: nil db")
	}
	return st, nil
}

const userColumns = `id, email, name, role, password_hash, active, created_at, last_login_at`

// CreateUser inserts a new active user.
func (s *PostgresStore) CreateUser(ctx context.Context, in CreateUserInput) (User, error) {
	const op = "identity.CreateUser"

	if err := ctx.Err(); err != nil {
		return User{}, err
	}
	in, err := validateCreate(op, in)
	if err != nil {
		return User{}, err
	}

	userID, err := NewULID(in.Now)
	if err != nil {
		return User{}, err
	}

	users := pgIdent(s.schema, "users")

	_, err = s.db.Exec(ctx,
		`INSERT INTO `+users+` (
		     id, email, name, role, password_hash, active, created_at
		   ) VALUES ($1, $2, $3, $4, $5, TRUE, $6)`,
		userID,
		in.Email,
		in.Name,
		string(in.Role),
		in.PasswordHash,
		in.Now,
	)
	if err != nil {
		if field, ok := pgClassifyUniqueViolation(err); ok {
			return User{}, ConflictError{Op: op, Field: field}
		}
		return User{}, fmt.Errorf("%s: %w", op, err)
	}

	return User{
		ID:           userID,
		Email:        in.Email,
		Name:         in.Name,
		Role:         in.Role,
		PasswordHash: in.PasswordHash,
		Active:       true,
		CreatedAt:    in.Now,
	}, nil
}

// GetUserByEmail returns the user with the given (normalized) email.
func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	const op = "identity.GetUserByEmail"

	email = NormalizeEmail(email)
	if email == "" {
		return User{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: "missing email"}
	}

	users := pgIdent(s.schema, "users")
	row := s.db.QueryRow(ctx,
		`SELECT `+userColumns+`
		   FROM `+users+`
		  WHERE email = $1`,
		email,
	)
	return scanUser(op, row)
}

// GetUserByID returns the user with the given ID.
func (s *PostgresStore) GetUserByID(ctx context.Context, id string) (User, error) {
	const op = "identity.GetUserByID"

	id = strings.TrimSpace(id)
	if id == "" {
		return User{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: "missing id"}
	}

	users := pgIdent(s.schema, "users")
	row := s.db.QueryRow(ctx,
		`SELECT `+userColumns+`
		   FROM `+users+`
		  WHERE id = $1`,
		id,
	)
	return scanUser(op, row)
}

// TouchLastLogin records a successful login.
func (s *PostgresStore) TouchLastLogin(ctx context.Context, id string, now time.Time) error {
	const op = "identity.TouchLastLogin"

	if now.IsZero() {
		now = time.Now().UTC()
	}
	users := pgIdent(s.schema, "users")
	ct, err := s.db.Exec(ctx,
		`UPDATE `+users+` SET last_login_at = $1 WHERE id = $2`,
		now, id,
	)
	return pgExpectOne(op, ct, err)
}

// UpdatePasswordHash replaces the stored digest (used for transparent rehash).
func (s *PostgresStore) UpdatePasswordHash(ctx context.Context, id, hash string) error {
	const op = "identity.UpdatePasswordHash"

	if strings.TrimSpace(hash) == "" {
		return OpError{Op: op, Kind: ErrInvalidInput, Msg: "empty hash"}
	}
	users := pgIdent(s.schema, "users")
	ct, err := s.db.Exec(ctx,
		`UPDATE `+users+` SET password_hash = $1 WHERE id = $2`,
		hash, id,
	)
	return pgExpectOne(op, ct, err)
}

// SetActive enables or disables a user. Disabled users cannot log in or refresh.
func (s *PostgresStore) SetActive(ctx context.Context, id string, active bool) error {
	const op = "identity.SetActive"

	users := pgIdent(s.schema, "users")
	ct, err := s.db.Exec(ctx,
		`UPDATE `+users+` SET active = $1 WHERE id = $2`,
		active, id,
	)
	return pgExpectOne(op, ct, err)
}

// ---- helpers ----

func scanUser(op string, row pgx.Row) (User, error) {
	var (
		u         User
		role      string
		lastLogin *time.Time
	)
	err := row.Scan(
		&u.ID,
		&u.Email,
		&u.Name,
		&role,
		&u.PasswordHash,
		&u.Active,
		&u.CreatedAt,
		&lastLogin,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, NotFoundError{Op: op, Resource: "user"}
		}
		return User{}, fmt.Errorf("%s: %w", op, err)
	}
	u.Role = Role(role)
	u.LastLoginAt = lastLogin
	return u, nil
}

func pgExpectOne(op string, ct pgconn.CommandTag, err error) error {
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if ct.RowsAffected() == 0 {
		return NotFoundError{Op: op, Resource: "user"}
	}
	return nil
}

// pgIdentIsValid checks if a string is a safe Postgres identifier.
func pgIdentIsValid(s string) bool {
	return pgIdentRe.MatchString(s)
}

// pgIdent safely quotes a schema-qualified identifier: "schema"."name".
func pgIdent(schema, name string) string {
	return pgx.Identifier{schema, name}.Sanitize()
}

func pgClassifyUniqueViolation(err error) (field string, ok bool) {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return "", false
	}
	if pgErr.Code != "23505" { // unique_violation
		return "", false
	}

	// Prefer stable schema constraint names; fall back to substring matching.
	c := strings.ToLower(strings.TrimSpace(pgErr.ConstraintName))

	switch c {
	case "uq_users_email":
		return "email", true
	case "users_pkey":
		return "id", true
	default:
		if strings.Contains(c, "email") {
			return "email", true
		}
		return "unique", true
	}
}
