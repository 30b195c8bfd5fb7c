package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/pesio-ai/be-sales-proposals/internal/database"
	"github.com/pesio-ai/be-sales-proposals/internal/domain"
	apperr "github.com/pesio-ai/be-sales-proposals/internal/errors"
)

// AuditRepository appends and reads immutable audit events. The table has a
// delete-prevention trigger so Append is the only mutation exposed.
type AuditRepository struct {
	db *database.DB
}

// NewAuditRepository creates a new AuditRepository.
func NewAuditRepository(db *database.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// Append inserts one audit event.
func (r *AuditRepository) Append(ctx context.Context, event *domain.AuditEvent) error {
	var snapshotJSON []byte
	if event.Snapshot != nil {
		var err error
		snapshotJSON, err = json.Marshal(event.Snapshot)
		if err != nil {
			return apperr.Wrap(err, apperr.ErrCodeInternal, "failed to marshal audit snapshot")
		}
	}

	if event.ID == "" {
		event.ID = uuid.NewString()
	}

	query := `
		INSERT INTO audit_events
		    (id, action, kind, document_id, actor, reason, snapshot)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at
	`

	err := r.db.QueryRow(ctx, query,
		event.ID,
		string(event.Action),
		string(event.Kind),
		event.DocumentID,
		event.Actor,
		nullableString(event.Reason),
		snapshotJSON,
	).Scan(&event.CreatedAt)
	if err != nil {
		return apperr.Wrap(err, apperr.ErrCodeInternal, "failed to append audit event")
	}
	return nil
}

// List returns audit events matching the filter, oldest first.
func (r *AuditRepository) List(ctx context.Context, filter domain.AuditFilter) ([]*domain.AuditEvent, error) {
	query := `
		SELECT id, action, kind, document_id, actor, reason, snapshot, created_at
		FROM audit_events
		WHERE 1 = 1
	`

	args := []any{}
	argCount := 1

	if filter.Kind != nil {
		query += fmt.Sprintf(" AND kind = $%d", argCount)
		args = append(args, string(*filter.Kind))
		argCount++
	}
	if filter.DocumentID != nil {
		query += fmt.Sprintf(" AND document_id = $%d", argCount)
		args = append(args, *filter.DocumentID)
		argCount++
	}
	if filter.Actor != nil {
		query += fmt.Sprintf(" AND actor = $%d", argCount)
		args = append(args, *filter.Actor)
		argCount++
	}
	if filter.Action != nil {
		query += fmt.Sprintf(" AND action = $%d", argCount)
		args = append(args, string(*filter.Action))
		argCount++
	}
	if filter.From != nil {
		query += fmt.Sprintf(" AND created_at >= $%d", argCount)
		args = append(args, *filter.From)
		argCount++
	}
	if filter.To != nil {
		query += fmt.Sprintf(" AND created_at <= $%d", argCount)
		args = append(args, *filter.To)
		argCount++
	}

	query += " ORDER BY created_at ASC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argCount)
		args = append(args, filter.Limit)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.ErrCodeInternal, "failed to list audit events")
	}
	defer rows.Close()

	return r.scanRows(rows)
}

// ── scan helpers ──────────────────────────────────────────────────────────────

func (r *AuditRepository) scanRows(rows pgx.Rows) ([]*domain.AuditEvent, error) {
	events := make([]*domain.AuditEvent, 0)
	for rows.Next() {
		event, err := r.scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	return events, nil
}

type auditScanner interface {
	Scan(dest ...any) error
}

func (r *AuditRepository) scanEvent(sc auditScanner) (*domain.AuditEvent, error) {
	event := &domain.AuditEvent{}
	var (
		action, kind string
		reason       *string
		snapshotJSON []byte
	)

	err := sc.Scan(
		&event.ID,
		&action,
		&kind,
		&event.DocumentID,
		&event.Actor,
		&reason,
		&snapshotJSON,
		&event.CreatedAt,
	)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.ErrCodeInternal, "failed to scan audit event")
	}

	event.Action = domain.AuditAction(action)
	event.Kind = domain.Kind(kind)
	event.Reason = derefString(reason)

	if snapshotJSON != nil {
		if err := json.Unmarshal(snapshotJSON, &event.Snapshot); err != nil {
			return nil, apperr.Wrap(err, apperr.ErrCodeInternal, "failed to unmarshal audit snapshot")
		}
	}
	return event, nil
}
