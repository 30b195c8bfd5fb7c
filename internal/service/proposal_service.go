// Package service composes the diff engine, lineage rules, approval state
// machine and repositories into the document lifecycle operations consumed
// by the API layer.
package service

import (
	"context"
	"time"

	"github.com/pesio-ai/be-sales-proposals/internal/approval"
	"github.com/pesio-ai/be-sales-proposals/internal/diff"
	"github.com/pesio-ai/be-sales-proposals/internal/domain"
	"github.com/pesio-ai/be-sales-proposals/internal/errors"
	"github.com/pesio-ai/be-sales-proposals/internal/lineage"
	"github.com/pesio-ai/be-sales-proposals/internal/logger"
)

// maxSequenceRetries bounds create retries after a lost sequence race.
const maxSequenceRetries = 3

// ProposalService orchestrates the document family lifecycle.
type ProposalService struct {
	docs        DocumentStore
	audit       AuditStore
	attachments AttachmentStoreInterface
	directory   UserDirectoryInterface
	dependents  DependentCheckerInterface
	notifier    NotificationPublisherInterface
	log         *logger.Logger
}

// NewProposalService creates a new ProposalService. attachments, directory,
// dependents and notifier may be nil; the corresponding side effects are
// then skipped.
func NewProposalService(
	docs DocumentStore,
	audit AuditStore,
	attachments AttachmentStoreInterface,
	directory UserDirectoryInterface,
	dependents DependentCheckerInterface,
	notifier NotificationPublisherInterface,
	log *logger.Logger,
) *ProposalService {
	return &ProposalService{
		docs:        docs,
		audit:       audit,
		attachments: attachments,
		directory:   directory,
		dependents:  dependents,
		notifier:    notifier,
		log:         log,
	}
}

// Payload carries the caller-supplied fields of a create or edit operation.
// Fields is a partial patch keyed by diff field names; a nil Attachments
// slice means "unchanged" (omission is not clearing).
type Payload struct {
	Fields      map[string]any
	Attachments []domain.AttachmentRef
	Operational *domain.OperationalDetails
}

// Lineage is a document resolved together with its chain context.
type Lineage struct {
	Document *domain.Document
	Parent   *domain.Document
	Child    *domain.Document
	Chain    []*domain.Document
}

// GetWithLineage fetches a document and resolves its parent, child and full
// chain.
func (s *ProposalService) GetWithLineage(ctx context.Context, kind domain.Kind, id string) (*Lineage, error) {
	doc, err := s.docs.GetByID(ctx, kind, id)
	if err != nil {
		return nil, err
	}

	out := &Lineage{Document: doc}

	if !doc.Parent.IsZero() {
		parent, err := s.docs.GetByID(ctx, doc.Parent.Kind, doc.Parent.ID)
		if err != nil {
			return nil, err
		}
		out.Parent = parent
	}

	child, err := s.docs.Child(ctx, domain.Ref{Kind: doc.Kind, ID: doc.ID})
	if err != nil {
		return nil, err
	}
	out.Child = child

	if doc.Kind != domain.KindExecutionRecord {
		chain, err := s.docs.Chain(ctx, doc)
		if err != nil {
			return nil, err
		}
		out.Chain = chain
	}

	return out, nil
}

// Edit applies a field patch to a document, appending an edit history entry.
// Rejected when the document is approved, when an execution record is frozen
// by a change order, or when the patch changes nothing.
func (s *ProposalService) Edit(ctx context.Context, kind domain.Kind, id string, patch Payload, actor domain.Actor) (*domain.Document, error) {
	if !actor.HasRole(domain.RolePreparer) {
		return nil, errors.Unauthorized("only a preparer can edit documents")
	}

	doc, err := s.docs.GetByID(ctx, kind, id)
	if err != nil {
		return nil, err
	}

	var freezingChangeOrder *domain.Document
	if kind == domain.KindExecutionRecord {
		freezingChangeOrder, err = s.docs.Child(ctx, domain.Ref{Kind: kind, ID: id})
		if err != nil {
			return nil, err
		}
	}
	if err := lineage.CanMutate(doc, freezingChangeOrder); err != nil {
		return nil, err
	}

	baseFields := diff.FieldSet(doc)

	// Apply the patch to copies; nothing is persisted until the version-
	// checked update below.
	content := doc.Content.Clone()
	ops := doc.Ops.Clone()
	if kind == domain.KindExecutionRecord {
		if ops == nil {
			ops = &domain.OperationalDetails{}
		}
		if err := diff.ApplyOperational(ops, patch.Fields); err != nil {
			return nil, err
		}
	} else if len(patch.Fields) > 0 {
		if content == nil {
			content = &domain.ProposalContent{}
		}
		if err := diff.ApplyContent(content, patch.Fields); err != nil {
			return nil, err
		}
	}

	attachments := doc.Attachments
	if patch.Attachments != nil {
		attachments = patch.Attachments
	}

	candidate := candidateFieldSet(kind, content, ops, attachments, patch)
	changes, err := diff.Diff(kind, baseFields, candidate)
	if err != nil {
		return nil, err
	}
	if len(changes) == 0 {
		return nil, errors.NoChange("edit contains no field or attachment changes")
	}

	doc.Content = content
	doc.Ops = ops
	doc.Attachments = attachments
	doc.Edits = append(doc.Edits, domain.EditRecord{
		Editor:    actor.ID,
		Timestamp: time.Now().UTC(),
		Changes:   changes,
	})

	if err := s.docs.Update(ctx, doc); err != nil {
		return nil, err
	}

	s.recordAudit(ctx, domain.AuditActionUpdated, doc, actor, "")

	s.log.Info().
		Str("kind", string(kind)).
		Str("document_id", doc.ID).
		Str("reference", doc.Reference).
		Str("editor", actor.ID).
		Int("changes", len(changes)).
		Msg("Document edited")

	return doc, nil
}

// RequestApproval moves a document into pending and notifies approvers.
func (s *ProposalService) RequestApproval(ctx context.Context, kind domain.Kind, id string, actor domain.Actor, note string) (*domain.Document, error) {
	if kind == domain.KindExecutionRecord {
		return nil, errors.InvalidInput("kind", "execution records do not carry an approval workflow")
	}

	doc, err := s.docs.GetByID(ctx, kind, id)
	if err != nil {
		return nil, err
	}

	state, err := approval.RequestApproval(doc.Approval, actor, note, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	doc.Approval = state

	if err := s.docs.Update(ctx, doc); err != nil {
		return nil, err
	}

	s.recordAudit(ctx, domain.AuditActionApprovalRequested, doc, actor, note)
	s.notifyApprovers(ctx, "proposal_submitted", doc, actor)

	s.log.Info().
		Str("kind", string(kind)).
		Str("document_id", doc.ID).
		Str("reference", doc.Reference).
		Str("requested_by", actor.ID).
		Msg("Approval requested")

	return doc, nil
}

// Decide records an approver's verdict on a pending document.
func (s *ProposalService) Decide(ctx context.Context, kind domain.Kind, id string, actor domain.Actor, decision approval.Decision, note string) (*domain.Document, error) {
	if kind == domain.KindExecutionRecord {
		return nil, errors.InvalidInput("kind", "execution records do not carry an approval workflow")
	}

	doc, err := s.docs.GetByID(ctx, kind, id)
	if err != nil {
		return nil, err
	}

	state, err := approval.Decide(doc.Approval, actor, decision, note, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	doc.Approval = state

	if err := s.docs.Update(ctx, doc); err != nil {
		return nil, err
	}

	action := domain.AuditActionApproved
	event := "proposal_approved"
	if decision == approval.DecisionReject {
		action = domain.AuditActionRejected
		event = "proposal_rejected"
	}
	s.recordAudit(ctx, action, doc, actor, note)
	s.notify(ctx, event, doc, actor, recipients(doc.Approval.RequestedBy))

	s.log.Info().
		Str("kind", string(kind)).
		Str("document_id", doc.ID).
		Str("reference", doc.Reference).
		Str("decided_by", actor.ID).
		Str("status", string(doc.Approval.Status)).
		Msg("Approval decided")

	return doc, nil
}

// AdminResetApproval is the out-of-band escape from the approved state.
// Rejected when the document has a child or a record was derived from it:
// resetting would reopen a node other documents were built against. When a
// user directory is wired, the actor's roles are re-resolved against it
// before the state machine gate.
func (s *ProposalService) AdminResetApproval(ctx context.Context, kind domain.Kind, id string, actor domain.Actor, note string) (*domain.Document, error) {
	if s.directory != nil {
		roles, err := s.directory.GetUserRoles(ctx, actor.ID)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "could not verify the actor's roles")
		}
		actor.Roles = roles
	}

	doc, err := s.docs.GetByID(ctx, kind, id)
	if err != nil {
		return nil, err
	}

	child, err := s.docs.Child(ctx, domain.Ref{Kind: kind, ID: id})
	if err != nil {
		return nil, err
	}
	deps, err := s.collectDependents(ctx, doc)
	if err != nil {
		return nil, err
	}
	if err := lineage.CanResetApproval(doc, child, deps); err != nil {
		return nil, err
	}

	state, err := approval.AdminReset(doc.Approval, actor, note, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	doc.Approval = state

	if err := s.docs.Update(ctx, doc); err != nil {
		return nil, err
	}

	s.recordAudit(ctx, domain.AuditActionApprovalReset, doc, actor, note)
	s.notify(ctx, "approval_reset", doc, actor, recipients(doc.CreatedBy))

	s.log.Warn().
		Str("kind", string(kind)).
		Str("document_id", doc.ID).
		Str("reference", doc.Reference).
		Str("admin", actor.ID).
		Msg("Approval state reset by admin")

	return doc, nil
}

// Delete removes a document after the lineage guards pass, cascading
// attachment reference removal to the attachment store.
func (s *ProposalService) Delete(ctx context.Context, kind domain.Kind, id string, actor domain.Actor, reason string) error {
	if !actor.HasRole(domain.RolePreparer) && !actor.HasRole(domain.RoleAdmin) {
		return errors.Unauthorized("only a preparer or admin can delete documents")
	}

	doc, err := s.docs.GetByID(ctx, kind, id)
	if err != nil {
		return err
	}

	child, err := s.docs.Child(ctx, domain.Ref{Kind: kind, ID: id})
	if err != nil {
		return err
	}

	deps, err := s.collectDependents(ctx, doc)
	if err != nil {
		return err
	}

	if err := lineage.CanDelete(doc, child, deps); err != nil {
		return err
	}

	if err := s.docs.Delete(ctx, kind, id); err != nil {
		return err
	}

	// Attachment cleanup is an independent side effect, never a rollback
	// trigger. Inherited locators are shared objects, not copies; only
	// locators no surviving lineage neighbor references leave the store.
	if s.attachments != nil {
		retained := s.retainedLocators(ctx, doc)
		for _, ref := range doc.Attachments {
			if retained[ref.Locator] {
				continue
			}
			if err := s.attachments.DeleteAttachment(ctx, ref.Locator); err != nil {
				s.log.Warn().Err(err).
					Str("document_id", doc.ID).
					Str("locator", ref.Locator).
					Msg("Failed to delete attachment reference")
			}
		}
	}

	s.recordAudit(ctx, domain.AuditActionDeleted, doc, actor, reason)
	s.notify(ctx, "proposal_deleted", doc, actor, recipients(doc.CreatedBy))

	s.log.Info().
		Str("kind", string(kind)).
		Str("document_id", doc.ID).
		Str("reference", doc.Reference).
		Str("deleted_by", actor.ID).
		Msg("Document deleted")

	return nil
}

// ListAuditEvents returns audit events matching the filter.
func (s *ProposalService) ListAuditEvents(ctx context.Context, filter domain.AuditFilter) ([]*domain.AuditEvent, error) {
	return s.audit.List(ctx, filter)
}

// ── helpers ───────────────────────────────────────────────────────────────────

// collectDependents gathers external records that block deletion and
// approval reset: an execution record created from this node, plus anything
// the dependent checker reports (e.g. site visits).
func (s *ProposalService) collectDependents(ctx context.Context, doc *domain.Document) ([]lineage.Dependent, error) {
	var deps []lineage.Dependent

	if doc.Kind == domain.KindBaseDocument || doc.Kind == domain.KindAmendment {
		record, err := s.docs.ExecutionRecordBySource(ctx, domain.Ref{Kind: doc.Kind, ID: doc.ID})
		if err != nil {
			return nil, err
		}
		if record != nil {
			deps = append(deps, lineage.Dependent{
				Ref:   domain.Ref{Kind: record.Kind, ID: record.ID},
				Label: "execution record " + record.Reference,
			})
		}
	}

	if s.dependents != nil {
		external, err := s.dependents.Dependents(ctx, doc.Kind, doc.ID)
		if err != nil {
			return nil, err
		}
		deps = append(deps, external...)
	}

	return deps, nil
}

// retainedLocators collects attachment locators still referenced by the
// deleted document's lineage neighbors: its parent, its source, and for a
// change order parented on an execution record, the record's own source.
// A neighbor that fails to resolve contributes nothing to the set.
func (s *ProposalService) retainedLocators(ctx context.Context, doc *domain.Document) map[string]bool {
	retained := make(map[string]bool)
	refs := []domain.Ref{doc.Parent, doc.Source}
	for len(refs) > 0 {
		ref := refs[0]
		refs = refs[1:]
		if ref.IsZero() {
			continue
		}
		neighbor, err := s.docs.GetByID(ctx, ref.Kind, ref.ID)
		if err != nil {
			s.log.Warn().Err(err).
				Str("kind", string(ref.Kind)).
				Str("document_id", ref.ID).
				Msg("Could not resolve lineage neighbor for attachment cleanup")
			continue
		}
		for _, a := range neighbor.Attachments {
			retained[a.Locator] = true
		}
		refs = append(refs, neighbor.Source)
	}
	return retained
}

// candidateFieldSet builds the partial candidate field set of an edit or
// child creation: only the keys the caller actually sent take part in the
// diff, so omitted fields never read as cleared.
func candidateFieldSet(kind domain.Kind, content *domain.ProposalContent, ops *domain.OperationalDetails, attachments []domain.AttachmentRef, patch Payload) map[string]any {
	full := diff.FieldSet(&domain.Document{
		Kind:        kind,
		Content:     content,
		Ops:         ops,
		Attachments: attachments,
	})

	candidate := make(map[string]any, len(patch.Fields)+1)
	for key := range patch.Fields {
		if v, ok := full[key]; ok {
			candidate[key] = v
		}
	}
	if patch.Attachments != nil {
		candidate[diff.FieldAttachments] = attachments
	}
	return candidate
}

// recordAudit appends an audit event, logging a warning on failure. Audit
// recording is best-effort observability and never reverts the mutation it
// describes.
func (s *ProposalService) recordAudit(ctx context.Context, action domain.AuditAction, doc *domain.Document, actor domain.Actor, reason string) {
	event := &domain.AuditEvent{
		Action:     action,
		Kind:       doc.Kind,
		DocumentID: doc.ID,
		Actor:      actor.ID,
		Reason:     reason,
		Snapshot:   domain.Snapshot(doc),
	}
	if err := s.audit.Append(ctx, event); err != nil {
		s.log.Warn().Err(err).
			Str("document_id", doc.ID).
			Str("action", string(action)).
			Msg("Failed to write audit event")
	}
}

// notifyApprovers fans an event out to every user holding the approver role.
func (s *ProposalService) notifyApprovers(ctx context.Context, event string, doc *domain.Document, actor domain.Actor) {
	if s.notifier == nil {
		return
	}
	var approvers []string
	if s.directory != nil {
		var err error
		approvers, err = s.directory.GetUsersWithRole(ctx, domain.RoleApprover)
		if err != nil {
			s.log.Warn().Err(err).Msg("Could not resolve approver recipients")
		}
	}
	s.notify(ctx, event, doc, actor, approvers)
}

func (s *ProposalService) notify(ctx context.Context, event string, doc *domain.Document, actor domain.Actor, to []string) {
	if s.notifier == nil {
		return
	}
	s.notifier.PublishProposalEvent(ctx, event, string(doc.Kind), doc.ID, actor.ID, to, map[string]any{
		"reference": doc.Reference,
		"status":    string(doc.Approval.Status),
	})
}

func recipients(ids ...string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id != "" {
			out = append(out, id)
		}
	}
	return out
}
