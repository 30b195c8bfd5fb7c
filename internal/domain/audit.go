package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// AuditAction classifies a mutating operation.
type AuditAction string

const (
	AuditActionCreated           AuditAction = "created"
	AuditActionUpdated           AuditAction = "updated"
	AuditActionDeleted           AuditAction = "deleted"
	AuditActionApprovalRequested AuditAction = "approval_requested"
	AuditActionApproved          AuditAction = "approved"
	AuditActionRejected          AuditAction = "rejected"
	AuditActionApprovalReset     AuditAction = "approval_reset"
)

// AuditEvent is one immutable record of a mutating action. Snapshot is a
// denormalized subset sufficient to render history after the document or its
// relatives are gone.
type AuditEvent struct {
	ID         string
	Action     AuditAction
	Kind       Kind
	DocumentID string
	Actor      string
	Reason     string
	Snapshot   map[string]any
	CreatedAt  time.Time
}

// AuditFilter narrows ListAuditEvents results. Nil fields match everything.
type AuditFilter struct {
	Kind       *Kind
	DocumentID *string
	Actor      *string
	Action     *AuditAction
	From       *time.Time
	To         *time.Time
	Limit      int
}

// Snapshot builds the denormalized audit snapshot for a document.
func Snapshot(doc *Document) map[string]any {
	snap := map[string]any{
		"reference": doc.Reference,
		"status":    string(doc.Approval.Status),
	}
	if !doc.Parent.IsZero() {
		snap["parent_id"] = doc.Parent.ID
	}
	if doc.Content != nil {
		snap["title"] = doc.Content.Title
		snap["customer"] = doc.Content.Customer.Name
		snap["currency"] = doc.Content.Price.Currency
		snap["grand_total"] = decimal.NewFromInt(doc.Content.Price.GrandTotal).
			Div(decimal.NewFromInt(100)).StringFixed(2)
	}
	if doc.Ops != nil {
		snap["operational_status"] = doc.Ops.Status
	}
	return snap
}
