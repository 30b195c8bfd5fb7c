// Package lineage enforces the parent/child creation, mutation and deletion
// preconditions of the document family. Rules are pure predicates over
// already-fetched documents; the orchestrator resolves the lineage context
// and feeds it in.
package lineage

import (
	"fmt"

	"github.com/pesio-ai/be-sales-proposals/internal/domain"
	"github.com/pesio-ai/be-sales-proposals/internal/errors"
)

// Dependent names an external record that blocks deletion of a document,
// e.g. a recorded site visit on a source document.
type Dependent struct {
	Ref   domain.Ref
	Label string
}

// CanCreateAmendment validates creating an amendment under parent.
// existingChild is the parent's current amendment child, if any.
func CanCreateAmendment(parent *domain.Document, existingChild *domain.Document) error {
	switch parent.Kind {
	case domain.KindBaseDocument:
		if !parent.Approval.IsApproved() {
			return errors.LineageViolation(
				fmt.Sprintf("base document %s must be approved before it can be amended", parent.Reference),
				parent.ID)
		}
	case domain.KindAmendment:
		// Chains extend only from the tip; approval of the parent amendment
		// is checked below through childlessness plus the approval gate on
		// the chain walk done by the caller.
	default:
		return errors.LineageViolation(
			fmt.Sprintf("an amendment cannot be created under a %s", parent.Kind), parent.ID)
	}

	if existingChild != nil {
		return errors.LineageViolation(
			fmt.Sprintf("document %s already has amendment %s; a parent can have only one amendment",
				parent.Reference, existingChild.Reference),
			existingChild.ID)
	}
	return nil
}

// CanCreateExecutionRecord validates creating an execution record from
// source. sourceChild is the source's amendment child; latestApproved is the
// most recently approved node in the source's chain; existing is any
// execution record already referencing the source.
func CanCreateExecutionRecord(source, sourceChild, latestApproved, existing *domain.Document) error {
	if source.Kind != domain.KindBaseDocument && source.Kind != domain.KindAmendment {
		return errors.LineageViolation(
			fmt.Sprintf("an execution record cannot be created from a %s", source.Kind), source.ID)
	}
	if !source.Approval.IsApproved() {
		return errors.LineageViolation(
			fmt.Sprintf("source %s is not approved", source.Reference), source.ID)
	}
	if sourceChild != nil {
		return errors.LineageViolation(
			fmt.Sprintf("source %s has amendment %s; create the record from the end of the chain",
				source.Reference, sourceChild.Reference),
			sourceChild.ID)
	}
	if latestApproved == nil || latestApproved.ID != source.ID {
		blocking := ""
		detail := "no approved node exists in the chain"
		if latestApproved != nil {
			blocking = latestApproved.ID
			detail = fmt.Sprintf("the latest approved node is %s", latestApproved.Reference)
		}
		return errors.LineageViolation(
			fmt.Sprintf("source %s is not the latest approved node in its chain; %s",
				source.Reference, detail),
			blocking)
	}
	if existing != nil {
		return errors.LineageViolation(
			fmt.Sprintf("execution record %s already exists for source %s",
				existing.Reference, source.Reference),
			existing.ID)
	}
	return nil
}

// CanCreateChangeOrderFromRecord validates starting a change order chain
// under an execution record. upstream is the proposal-content node the
// record was created from; chainHead is the record's first change order, if
// a chain already exists.
func CanCreateChangeOrderFromRecord(record, upstream, chainHead *domain.Document) error {
	if record.Kind != domain.KindExecutionRecord {
		return errors.LineageViolation(
			fmt.Sprintf("a change order chain starts from an execution record, not a %s", record.Kind),
			record.ID)
	}
	if upstream == nil || upstream.Content == nil {
		return errors.LineageViolation(
			fmt.Sprintf("record %s has no resolvable source document to copy fields from", record.Reference),
			record.ID)
	}
	if chainHead != nil {
		return errors.LineageViolation(
			fmt.Sprintf("record %s already has change order %s; extend the chain from its last change order",
				record.Reference, chainHead.Reference),
			chainHead.ID)
	}
	return nil
}

// CanCreateChangeOrderFromChangeOrder validates extending an existing chain
// from its terminal change order.
func CanCreateChangeOrderFromChangeOrder(parent, existingChild *domain.Document) error {
	if parent.Kind != domain.KindChangeOrder {
		return errors.LineageViolation(
			fmt.Sprintf("a change order cannot be created under a %s", parent.Kind), parent.ID)
	}
	if existingChild != nil {
		return errors.LineageViolation(
			fmt.Sprintf("change order %s already has successor %s; only the terminal change order can be extended",
				parent.Reference, existingChild.Reference),
			existingChild.ID)
	}
	return nil
}

// CanMutate validates editing a document. changeOrder, when non-nil, is a
// change order whose existence freezes its execution record.
func CanMutate(doc *domain.Document, changeOrder *domain.Document) error {
	if doc.Approval.IsApproved() {
		return errors.LineageViolation(
			fmt.Sprintf("%s is approved and immutable; an admin reset is required before editing", doc.Reference),
			doc.ID)
	}
	if doc.Kind == domain.KindExecutionRecord && changeOrder != nil {
		return errors.LineageViolation(
			fmt.Sprintf("record %s cannot be edited while change order %s exists",
				doc.Reference, changeOrder.Reference),
			changeOrder.ID)
	}
	return nil
}

// CanDelete validates deleting a document. child is the document's own-kind
// child; dependents are external blocking records.
func CanDelete(doc *domain.Document, child *domain.Document, dependents []Dependent) error {
	if doc.Approval.IsApproved() {
		return errors.LineageViolation(
			fmt.Sprintf("%s is approved and cannot be deleted", doc.Reference), doc.ID)
	}
	if child != nil {
		return errors.LineageViolation(
			fmt.Sprintf("%s has child %s; remove it first", doc.Reference, child.Reference),
			child.ID)
	}
	if len(dependents) > 0 {
		d := dependents[0]
		return errors.LineageViolation(
			fmt.Sprintf("%s is referenced by %s; remove it first", doc.Reference, d.Label),
			d.Ref.ID)
	}
	return nil
}

// CanResetApproval validates resetting an approved document back to draft.
// child is the document's own-kind child; dependents are records derived from
// the approved content, which would silently diverge from a reopened source.
func CanResetApproval(doc *domain.Document, child *domain.Document, dependents []Dependent) error {
	if child != nil {
		return errors.LineageViolation(
			fmt.Sprintf("%s has child %s; its approval cannot be reset", doc.Reference, child.Reference),
			child.ID)
	}
	if len(dependents) > 0 {
		d := dependents[0]
		return errors.LineageViolation(
			fmt.Sprintf("%s is referenced by %s; its approval cannot be reset", doc.Reference, d.Label),
			d.Ref.ID)
	}
	return nil
}

// LatestApproved returns the most recently approved node of a linear chain
// (root first). Approval timestamps win; equal or missing timestamps fall
// back to chain depth.
func LatestApproved(chain []*domain.Document) *domain.Document {
	var latest *domain.Document
	for _, doc := range chain {
		if !doc.Approval.IsApproved() {
			continue
		}
		if latest == nil {
			latest = doc
			continue
		}
		switch {
		case doc.Approval.ApprovedAt == nil || latest.Approval.ApprovedAt == nil:
			latest = doc // deeper in the chain
		case !doc.Approval.ApprovedAt.Before(*latest.Approval.ApprovedAt):
			latest = doc
		}
	}
	return latest
}
