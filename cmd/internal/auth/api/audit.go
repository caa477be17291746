package authapi

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"livesupport/cmd/identity"
)

// AuditEvent is one security-relevant auth outcome.
type AuditEvent struct {
	At          time.Time
	Action      string
	UserID      string
	OriginAddr  string
	ClientAgent string
	Detail      map[string]any
}

// Auditor records AuditEvents. Implementations must not fail the request.
type Auditor interface {
	Record(ctx context.Context, ev AuditEvent)
}

// LogAuditor writes events to a logger under "auth.audit".
type LogAuditor struct {
	Log *slog.Logger
}

func (a LogAuditor) Record(ctx context.Context, ev AuditEvent) {
	if a.Log == nil {
		return
	}
	a.Log.LogAttrs(ctx, slog.LevelInfo, "auth.audit",
		slog.String("action", ev.Action),
		slog.String("user_id", ev.UserID),
		slog.String("origin", ev.OriginAddr),
		slog.Any("detail", ev.Detail),
	)
}

// Execer is the part of *pgxpool.Pool the Postgres auditor uses.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresAuditor appends events to the audit_log table.
type PostgresAuditor struct {
	db    Execer
	table string
	log   *slog.Logger
}

// NewPostgresAuditor returns an auditor writing to schema.audit_log.
func NewPostgresAuditor(db Execer, schema string, log *slog.Logger) (*PostgresAuditor, error) {
	if db == nil {
		return nil, fmt.Errorf("authapi: nil db")
	}
	if schema = strings.TrimSpace(schema); schema == "" {
		schema = identity.DefaultSchema
	}
	if log == nil {
		log = slog.Default()
	}
	return &PostgresAuditor{db: db, table: pgx.Identifier{schema, "audit_log"}.Sanitize(), log: log}, nil
}

func (a *PostgresAuditor) Record(ctx context.Context, ev AuditEvent) {
	action := strings.TrimSpace(ev.Action)
	if action == "" {
		return
	}
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	id, err := identity.NewULID(ev.At)
	if err != nil {
		a.log.Error("auth.audit.insert.fail", "err", err, "action", action)
		return
	}

	detail := []byte("{}")
	if len(ev.Detail) > 0 {
		if b, err := json.Marshal(ev.Detail); err == nil {
			detail = b
		}
	}

	_, err = a.db.Exec(ctx, `
		INSERT INTO `+a.table+` (
			id, at, event, user_id, origin_addr, client_agent, detail
		) VALUES ($1, $2, $3, $4, $5, $6, $7::jsonb)
	`, id, ev.At, action, nilIfEmpty(ev.UserID), nilIfEmpty(ev.OriginAddr), nilIfEmpty(ev.ClientAgent), string(detail))
	if err != nil {
		a.log.Error("auth.audit.insert.fail", "err", err, "action", action)
	}
}

func nilIfEmpty(s string) any {
	v := strings.TrimSpace(s)
	if v == "" {
		return nil
	}
	return v
}

func (h *Handler) record(r *http.Request, action, userID string, detail map[string]any) {
	if h.audit == nil {
		return
	}
	h.audit.Record(context.WithoutCancel(r.Context()), AuditEvent{
		At:          time.Now().UTC(),
		Action:      action,
		UserID:      userID,
		OriginAddr:  clientAddr(r, h.cfg.TrustProxy),
		ClientAgent: strings.TrimSpace(r.UserAgent()),
		Detail:      detail,
	})
}
