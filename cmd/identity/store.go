package identity

import (
	"context"
	"log/slog"
	"time"
)

// User is LiveSupport's canonical security principal.
// IMPORTANT: PasswordHash is an Argon2id digest; plaintext is never stored.
type User struct {
	ID           string
	Email        string // normalized
	Name         string
	Role         Role
	PasswordHash string
	Active       bool

	CreatedAt   time.Time
	LastLoginAt *time.Time
}

// LogValue keeps the password digest out of structured logs.
func (u User) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("id", u.ID),
		slog.String("email", u.Email),
		slog.String("role", string(u.Role)),
		slog.Bool("active", u.Active),
	)
}

// CreateUserInput describes a user registration after password hashing.
type CreateUserInput struct {
	Email        string
	Name         string
	Role         Role
	PasswordHash string
	Now          time.Time
}

// Store is the credential persistence boundary.
type Store interface {
	// CreateUser inserts a new active user. A duplicate email yields ConflictError{Field: "email"}.
	CreateUser(ctx context.Context, in CreateUserInput) (User, error)

	// GetUserByEmail looks up by normalized email. Missing users yield NotFoundError.
	GetUserByEmail(ctx context.Context, email string) (User, error)
	GetUserByID(ctx context.Context, id string) (User, error)

	TouchLastLogin(ctx context.Context, id string, now time.Time) error
	UpdatePasswordHash(ctx context.Context, id, hash string) error
	SetActive(ctx context.Context, id string, active bool) error
}

// validateCreate normalizes and checks in; both stores share it.
func validateCreate(op string, in CreateUserInput) (CreateUserInput, error) {
	in.Email = NormalizeEmail(in.Email)
	in.Name = NormalizeName(in.Name)

	if !ValidEmail(in.Email) {
		return in, OpError{Op: op, Kind: ErrInvalidInput, Msg: "invalid email"}
	}
	if in.Name == "" {
		return in, OpError{Op: op, Kind: ErrInvalidInput, Msg: "name is required"}
	}
	if in.PasswordHash == "" {
		return in, OpError{Op: op, Kind: ErrInvalidInput, Msg: "password hash is required"}
	}
	if in.Role == "" {
		in.Role = DefaultRole
	}
	if _, ok := ParseRole(string(in.Role)); !ok {
		return in, OpError{Op: op, Kind: ErrInvalidInput, Msg: "unknown role"}
	}
	if in.Now.IsZero() {
		in.Now = time.Now().UTC()
	}
	return in, nil
}
