package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/pesio-ai/be-sales-proposals/internal/approval"
	"github.com/pesio-ai/be-sales-proposals/internal/database"
	"github.com/pesio-ai/be-sales-proposals/internal/domain"
	apperr "github.com/pesio-ai/be-sales-proposals/internal/errors"
)

// pgUniqueViolation is the Postgres error code for unique constraint breaks.
const pgUniqueViolation = "23505"

// maxChainDepth bounds chain walks against reference cycles in bad data.
const maxChainDepth = 256

// DocumentRepository persists all four document kinds. Each kind has its own
// table with an identical column layout; a unique (scope_id, sequence)
// constraint per table backs the sequence number guarantees.
type DocumentRepository struct {
	db *database.DB
}

// NewDocumentRepository creates a new DocumentRepository.
func NewDocumentRepository(db *database.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

func tableFor(kind domain.Kind) (string, error) {
	switch kind {
	case domain.KindBaseDocument:
		return "base_documents", nil
	case domain.KindAmendment:
		return "amendments", nil
	case domain.KindExecutionRecord:
		return "execution_records", nil
	case domain.KindChangeOrder:
		return "change_orders", nil
	}
	return "", apperr.InvalidInput("kind", fmt.Sprintf("unknown document kind %q", kind))
}

// childTableFor returns the table holding the own-family children of a kind:
// amendments chain under base documents, change orders under execution
// records.
func childKindFor(kind domain.Kind) domain.Kind {
	switch kind {
	case domain.KindBaseDocument, domain.KindAmendment:
		return domain.KindAmendment
	default:
		return domain.KindChangeOrder
	}
}

const documentColumns = `
	id, reference, sequence, scope_id,
	parent_kind, parent_id, source_kind, source_id, execution_record_id,
	content, ops, attachments, diff_from_parent,
	approval_status, requested_by, approved_by, approved_at, approval_logs,
	edit_records, version, created_by, created_at, updated_at`

// Create inserts a new document. A unique violation on (scope_id, sequence)
// is surfaced as a SequenceCollision for the orchestrator to retry.
func (r *DocumentRepository) Create(ctx context.Context, doc *domain.Document) error {
	table, err := tableFor(doc.Kind)
	if err != nil {
		return err
	}
	if err := approval.Verify(doc.Approval); err != nil {
		return err
	}

	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	doc.Version = 1

	enc, err := encodeDocument(doc)
	if err != nil {
		return err
	}

	query := fmt.Sprintf(`
		INSERT INTO %s
		    (id, reference, sequence, scope_id,
		     parent_kind, parent_id, source_kind, source_id, execution_record_id,
		     content, ops, attachments, diff_from_parent,
		     approval_status, requested_by, approved_by, approved_at, approval_logs,
		     edit_records, version, created_by)
		VALUES ($1, $2, $3, $4,
		        $5, $6, $7, $8, $9,
		        $10, $11, $12, $13,
		        $14, $15, $16, $17, $18,
		        $19, $20, $21)
		RETURNING created_at, updated_at
	`, table)

	err = r.db.QueryRow(ctx, query,
		doc.ID,
		doc.Reference,
		doc.Sequence,
		doc.ScopeID,
		nullableString(string(doc.Parent.Kind)),
		nullableString(doc.Parent.ID),
		nullableString(string(doc.Source.Kind)),
		nullableString(doc.Source.ID),
		nullableString(doc.ExecutionRecordID),
		enc.content,
		enc.ops,
		enc.attachments,
		enc.diff,
		string(doc.Approval.Status),
		nullableString(doc.Approval.RequestedBy),
		nullableString(doc.Approval.ApprovedBy),
		doc.Approval.ApprovedAt,
		enc.logs,
		enc.edits,
		doc.Version,
		nullableString(doc.CreatedBy),
	).Scan(&doc.CreatedAt, &doc.UpdatedAt)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return apperr.SequenceCollision(doc.ScopeID)
		}
		return apperr.Wrap(err, apperr.ErrCodeInternal, "failed to create document")
	}
	return nil
}

// GetByID retrieves a document.
func (r *DocumentRepository) GetByID(ctx context.Context, kind domain.Kind, id string) (*domain.Document, error) {
	table, err := tableFor(kind)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1`, documentColumns, table)

	doc, err := scanDocument(kind, r.db.QueryRow(ctx, query, id))
	if err == pgx.ErrNoRows {
		return nil, apperr.NotFound(string(kind), id)
	}
	if err != nil {
		return nil, apperr.Wrap(err, apperr.ErrCodeInternal, "failed to get document")
	}
	return doc, nil
}

// Child returns the own-family child of a document, or nil when it has none.
func (r *DocumentRepository) Child(ctx context.Context, parent domain.Ref) (*domain.Document, error) {
	childKind := childKindFor(parent.Kind)
	table, err := tableFor(childKind)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`
		SELECT %s FROM %s
		WHERE parent_kind = $1 AND parent_id = $2
	`, documentColumns, table)

	doc, err := scanDocument(childKind, r.db.QueryRow(ctx, query, string(parent.Kind), parent.ID))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Wrap(err, apperr.ErrCodeInternal, "failed to get child document")
	}
	return doc, nil
}

// ExecutionRecordBySource returns the execution record created from the
// given source node, or nil when none exists.
func (r *DocumentRepository) ExecutionRecordBySource(ctx context.Context, source domain.Ref) (*domain.Document, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM execution_records
		WHERE source_kind = $1 AND source_id = $2
	`, documentColumns)

	doc, err := scanDocument(domain.KindExecutionRecord, r.db.QueryRow(ctx, query, string(source.Kind), source.ID))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Wrap(err, apperr.ErrCodeInternal, "failed to get execution record by source")
	}
	return doc, nil
}

// Chain resolves the full linear chain containing doc, root first: ascend to
// the family root through parent references, then descend through children
// to the tip.
func (r *DocumentRepository) Chain(ctx context.Context, doc *domain.Document) ([]*domain.Document, error) {
	above := []*domain.Document{doc}
	cur := doc
	for depth := 0; !cur.Parent.IsZero(); depth++ {
		if depth >= maxChainDepth {
			return nil, apperr.New(apperr.ErrCodeInternal, "chain exceeds maximum depth")
		}
		parent, err := r.GetByID(ctx, cur.Parent.Kind, cur.Parent.ID)
		if err != nil {
			return nil, err
		}
		above = append(above, parent)
		cur = parent
	}

	// Reverse to root-first order.
	chain := make([]*domain.Document, 0, len(above))
	for i := len(above) - 1; i >= 0; i-- {
		chain = append(chain, above[i])
	}

	cur = doc
	for depth := 0; ; depth++ {
		if depth >= maxChainDepth {
			return nil, apperr.New(apperr.ErrCodeInternal, "chain exceeds maximum depth")
		}
		child, err := r.Child(ctx, domain.Ref{Kind: cur.Kind, ID: cur.ID})
		if err != nil {
			return nil, err
		}
		if child == nil {
			break
		}
		chain = append(chain, child)
		cur = child
	}

	return chain, nil
}

// Update persists a document's mutable state with an optimistic version
// check. A stale version surfaces as a Conflict; concurrent conflicting
// writers never silently overwrite each other.
func (r *DocumentRepository) Update(ctx context.Context, doc *domain.Document) error {
	table, err := tableFor(doc.Kind)
	if err != nil {
		return err
	}
	if err := approval.Verify(doc.Approval); err != nil {
		return err
	}

	enc, err := encodeDocument(doc)
	if err != nil {
		return err
	}

	query := fmt.Sprintf(`
		UPDATE %s
		SET content         = $3,
		    ops             = $4,
		    attachments     = $5,
		    approval_status = $6,
		    requested_by    = $7,
		    approved_by     = $8,
		    approved_at     = $9,
		    approval_logs   = $10,
		    edit_records    = $11,
		    version         = version + 1,
		    updated_at      = NOW()
		WHERE id = $1 AND version = $2
		RETURNING version, updated_at
	`, table)

	err = r.db.QueryRow(ctx, query,
		doc.ID,
		doc.Version,
		enc.content,
		enc.ops,
		enc.attachments,
		string(doc.Approval.Status),
		nullableString(doc.Approval.RequestedBy),
		nullableString(doc.Approval.ApprovedBy),
		doc.Approval.ApprovedAt,
		enc.logs,
		enc.edits,
	).Scan(&doc.Version, &doc.UpdatedAt)

	if err == pgx.ErrNoRows {
		return apperr.Conflict(
			fmt.Sprintf("document %s was modified concurrently; reload and retry", doc.Reference))
	}
	if err != nil {
		return apperr.Wrap(err, apperr.ErrCodeInternal, "failed to update document")
	}
	return nil
}

// Delete removes a document row. Precondition checks live in the lineage
// rules; this is plain row removal.
func (r *DocumentRepository) Delete(ctx context.Context, kind domain.Kind, id string) error {
	table, err := tableFor(kind)
	if err != nil {
		return err
	}

	tag, err := r.db.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, table), id)
	if err != nil {
		return apperr.Wrap(err, apperr.ErrCodeInternal, "failed to delete document")
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound(string(kind), id)
	}
	return nil
}

// ── encoding / scanning helpers ───────────────────────────────────────────────

type encodedDocument struct {
	content     []byte
	ops         []byte
	attachments []byte
	diff        []byte
	logs        []byte
	edits       []byte
}

func encodeDocument(doc *domain.Document) (*encodedDocument, error) {
	enc := &encodedDocument{}
	var err error
	if enc.content, err = marshalOrNil(doc.Content); err != nil {
		return nil, err
	}
	if enc.ops, err = marshalOrNil(doc.Ops); err != nil {
		return nil, err
	}
	if enc.attachments, err = marshalOrNil(doc.Attachments); err != nil {
		return nil, err
	}
	if enc.diff, err = marshalOrNil(doc.DiffFromParent); err != nil {
		return nil, err
	}
	if enc.logs, err = marshalOrNil(doc.Approval.Logs); err != nil {
		return nil, err
	}
	if enc.edits, err = marshalOrNil(doc.Edits); err != nil {
		return nil, err
	}
	return enc, nil
}

func marshalOrNil(v any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.ErrCodeInternal, "failed to marshal document payload")
	}
	return data, nil
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

type documentScanner interface {
	Scan(dest ...any) error
}

func scanDocument(kind domain.Kind, sc documentScanner) (*domain.Document, error) {
	doc := &domain.Document{Kind: kind}
	var (
		parentKind, parentID, sourceKind, sourceID *string
		executionRecordID                          *string
		requestedBy, approvedBy, createdBy         *string
		status                                     string
		content, ops, attachments, diffJSON        []byte
		logs, edits                                []byte
	)

	err := sc.Scan(
		&doc.ID,
		&doc.Reference,
		&doc.Sequence,
		&doc.ScopeID,
		&parentKind,
		&parentID,
		&sourceKind,
		&sourceID,
		&executionRecordID,
		&content,
		&ops,
		&attachments,
		&diffJSON,
		&status,
		&requestedBy,
		&approvedBy,
		&doc.Approval.ApprovedAt,
		&logs,
		&edits,
		&doc.Version,
		&createdBy,
		&doc.CreatedAt,
		&doc.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	doc.Parent = domain.Ref{Kind: domain.Kind(derefString(parentKind)), ID: derefString(parentID)}
	doc.Source = domain.Ref{Kind: domain.Kind(derefString(sourceKind)), ID: derefString(sourceID)}
	doc.ExecutionRecordID = derefString(executionRecordID)
	doc.Approval.Status = domain.ApprovalStatus(status)
	doc.Approval.RequestedBy = derefString(requestedBy)
	doc.Approval.ApprovedBy = derefString(approvedBy)
	doc.CreatedBy = derefString(createdBy)

	if err := unmarshalInto(content, &doc.Content); err != nil {
		return nil, err
	}
	if err := unmarshalInto(ops, &doc.Ops); err != nil {
		return nil, err
	}
	if err := unmarshalInto(attachments, &doc.Attachments); err != nil {
		return nil, err
	}
	if err := unmarshalInto(diffJSON, &doc.DiffFromParent); err != nil {
		return nil, err
	}
	if err := unmarshalInto(logs, &doc.Approval.Logs); err != nil {
		return nil, err
	}
	if err := unmarshalInto(edits, &doc.Edits); err != nil {
		return nil, err
	}

	return doc, nil
}

func unmarshalInto(data []byte, dst any) error {
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return apperr.Wrap(err, apperr.ErrCodeInternal, "failed to unmarshal document payload")
	}
	return nil
}
