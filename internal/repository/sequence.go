package repository

import (
	"context"
	"fmt"

	"github.com/pesio-ai/be-sales-proposals/internal/domain"
	apperr "github.com/pesio-ai/be-sales-proposals/internal/errors"
)

// NextSequence returns the next sequence number for a kind within a parent
// scope: MAX(sequence)+1 over the surviving rows, so gaps left by deleted
// mid-chain siblings are never refilled.
//
// Count-then-assign is racy under concurrent creation against the same
// scope; the unique (scope_id, sequence) constraint is the authoritative
// defense, surfaced by Create as a SequenceCollision the caller retries.
func (r *DocumentRepository) NextSequence(ctx context.Context, kind domain.Kind, scopeID string) (int, error) {
	table, err := tableFor(kind)
	if err != nil {
		return 0, err
	}

	query := fmt.Sprintf(`
		SELECT COALESCE(MAX(sequence), 0) + 1
		FROM %s
		WHERE scope_id = $1
	`, table)

	var next int
	if err := r.db.QueryRow(ctx, query, scopeID).Scan(&next); err != nil {
		return 0, apperr.Wrap(err, apperr.ErrCodeInternal, "failed to compute next sequence number")
	}
	return next, nil
}
