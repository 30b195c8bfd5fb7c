package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/pesio-ai/be-sales-proposals/internal/diff"
	"github.com/pesio-ai/be-sales-proposals/internal/domain"
	"github.com/pesio-ai/be-sales-proposals/internal/errors"
	"github.com/pesio-ai/be-sales-proposals/internal/lineage"
)

// CreateFromParent creates a new document of the given kind under parent.
// Base documents take a zero parent ref; every other kind derives from an
// existing node. The one-time diff-from-parent is computed here and never
// recomputed. Sequence races are retried a bounded number of times.
func (s *ProposalService) CreateFromParent(ctx context.Context, kind domain.Kind, parent domain.Ref, payload Payload, actor domain.Actor) (*domain.Document, error) {
	if !actor.HasRole(domain.RolePreparer) {
		return nil, errors.Unauthorized("only a preparer can create documents")
	}

	var (
		doc    *domain.Document
		prefix string
		err    error
	)

	switch kind {
	case domain.KindBaseDocument:
		doc, prefix, err = s.buildBaseDocument(parent, payload, actor)
	case domain.KindAmendment:
		doc, prefix, err = s.buildAmendment(ctx, parent, payload, actor)
	case domain.KindExecutionRecord:
		doc, prefix, err = s.buildExecutionRecord(ctx, parent, payload, actor)
	case domain.KindChangeOrder:
		doc, prefix, err = s.buildChangeOrder(ctx, parent, payload, actor)
	default:
		return nil, errors.InvalidInput("kind", fmt.Sprintf("unknown document kind %q", kind))
	}
	if err != nil {
		return nil, err
	}

	// Count-then-assign is racy; the unique (scope, sequence) constraint is
	// authoritative and collisions are retried with a fresh number.
	for attempt := 1; ; attempt++ {
		seq, err := s.docs.NextSequence(ctx, kind, doc.ScopeID)
		if err != nil {
			return nil, err
		}
		doc.Sequence = seq
		doc.Reference = domain.FormatReference(prefix, kind, seq)

		err = s.docs.Create(ctx, doc)
		if err == nil {
			break
		}
		if !errors.Is(err, errors.ErrCodeSequenceCollision) || attempt >= maxSequenceRetries {
			return nil, err
		}
		s.log.Debug().
			Str("kind", string(kind)).
			Str("scope_id", doc.ScopeID).
			Int("attempt", attempt).
			Msg("Sequence collision, retrying")
	}

	s.recordAudit(ctx, domain.AuditActionCreated, doc, actor, "")
	s.notify(ctx, "proposal_created", doc, actor, nil)

	s.log.Info().
		Str("kind", string(kind)).
		Str("document_id", doc.ID).
		Str("reference", doc.Reference).
		Str("created_by", actor.ID).
		Int("diff_changes", len(doc.DiffFromParent)).
		Msg("Document created")

	return doc, nil
}

// buildBaseDocument assembles a new family root from a full content payload.
func (s *ProposalService) buildBaseDocument(parent domain.Ref, payload Payload, actor domain.Actor) (*domain.Document, string, error) {
	if !parent.IsZero() {
		return nil, "", errors.InvalidInput("parentRef", "base documents have no parent")
	}

	content := &domain.ProposalContent{}
	if err := diff.ApplyContent(content, payload.Fields); err != nil {
		return nil, "", err
	}
	content.Price.ComputeTotals()
	if err := validateContent(content); err != nil {
		return nil, "", err
	}

	doc := &domain.Document{
		Kind:        domain.KindBaseDocument,
		Content:     content,
		Attachments: payload.Attachments,
		Approval:    domain.NewApprovalState(),
		CreatedBy:   actor.ID,
	}
	return doc, familyPrefix(content.OfferReference), nil
}

// buildAmendment assembles the next amendment of a chain: a clone of the
// parent's content with the patch applied, carrying the one-time diff.
func (s *ProposalService) buildAmendment(ctx context.Context, parentRef domain.Ref, payload Payload, actor domain.Actor) (*domain.Document, string, error) {
	if parentRef.Kind != domain.KindBaseDocument && parentRef.Kind != domain.KindAmendment {
		return nil, "", errors.LineageViolation(
			fmt.Sprintf("an amendment cannot be created under a %s", parentRef.Kind), parentRef.ID)
	}

	parent, err := s.docs.GetByID(ctx, parentRef.Kind, parentRef.ID)
	if err != nil {
		return nil, "", err
	}
	existingChild, err := s.docs.Child(ctx, parentRef)
	if err != nil {
		return nil, "", err
	}
	if err := lineage.CanCreateAmendment(parent, existingChild); err != nil {
		return nil, "", err
	}

	chain, err := s.docs.Chain(ctx, parent)
	if err != nil {
		return nil, "", err
	}
	root := chain[0]

	content, attachments, changes, err := s.deriveContent(parent, payload)
	if err != nil {
		return nil, "", err
	}

	doc := &domain.Document{
		Kind:           domain.KindAmendment,
		Parent:         parentRef,
		ScopeID:        root.ID,
		Content:        content,
		Attachments:    attachments,
		DiffFromParent: changes,
		Approval:       domain.NewApprovalState(),
		CreatedBy:      actor.ID,
	}
	return doc, familyPrefix(root.Content.OfferReference), nil
}

// buildExecutionRecord assembles an execution record from an approved,
// childless, latest-approved chain node.
func (s *ProposalService) buildExecutionRecord(ctx context.Context, sourceRef domain.Ref, payload Payload, actor domain.Actor) (*domain.Document, string, error) {
	if sourceRef.Kind != domain.KindBaseDocument && sourceRef.Kind != domain.KindAmendment {
		return nil, "", errors.LineageViolation(
			fmt.Sprintf("an execution record cannot be created from a %s", sourceRef.Kind), sourceRef.ID)
	}

	source, err := s.docs.GetByID(ctx, sourceRef.Kind, sourceRef.ID)
	if err != nil {
		return nil, "", err
	}
	sourceChild, err := s.docs.Child(ctx, sourceRef)
	if err != nil {
		return nil, "", err
	}
	chain, err := s.docs.Chain(ctx, source)
	if err != nil {
		return nil, "", err
	}
	existing, err := s.docs.ExecutionRecordBySource(ctx, sourceRef)
	if err != nil {
		return nil, "", err
	}
	if err := lineage.CanCreateExecutionRecord(source, sourceChild, lineage.LatestApproved(chain), existing); err != nil {
		return nil, "", err
	}

	ops := payload.Operational.Clone()
	if ops == nil {
		ops = &domain.OperationalDetails{}
	}

	root := chain[0]
	doc := &domain.Document{
		Kind:        domain.KindExecutionRecord,
		Source:      sourceRef,
		ScopeID:     root.ID,
		Ops:         ops,
		Attachments: payload.Attachments,
		Approval:    domain.NewApprovalState(),
		CreatedBy:   actor.ID,
	}
	return doc, familyPrefix(root.Content.OfferReference), nil
}

// buildChangeOrder assembles a change order. The first change order of a
// record diffs against the upstream proposal node the record was created
// from, since the record itself carries no proposal content; later ones diff
// against their parent change order.
func (s *ProposalService) buildChangeOrder(ctx context.Context, parentRef domain.Ref, payload Payload, actor domain.Actor) (*domain.Document, string, error) {
	var (
		upstream          *domain.Document
		executionRecordID string
	)

	switch parentRef.Kind {
	case domain.KindExecutionRecord:
		record, err := s.docs.GetByID(ctx, parentRef.Kind, parentRef.ID)
		if err != nil {
			return nil, "", err
		}
		if record.Source.IsZero() {
			return nil, "", errors.LineageViolation(
				fmt.Sprintf("record %s has no resolvable source document to copy fields from", record.Reference),
				record.ID)
		}
		upstream, err = s.docs.GetByID(ctx, record.Source.Kind, record.Source.ID)
		if err != nil {
			return nil, "", err
		}
		chainHead, err := s.docs.Child(ctx, parentRef)
		if err != nil {
			return nil, "", err
		}
		if err := lineage.CanCreateChangeOrderFromRecord(record, upstream, chainHead); err != nil {
			return nil, "", err
		}
		executionRecordID = record.ID

	case domain.KindChangeOrder:
		parent, err := s.docs.GetByID(ctx, parentRef.Kind, parentRef.ID)
		if err != nil {
			return nil, "", err
		}
		existingChild, err := s.docs.Child(ctx, parentRef)
		if err != nil {
			return nil, "", err
		}
		if err := lineage.CanCreateChangeOrderFromChangeOrder(parent, existingChild); err != nil {
			return nil, "", err
		}
		upstream = parent
		executionRecordID = parent.ExecutionRecordID

	default:
		return nil, "", errors.LineageViolation(
			fmt.Sprintf("a change order cannot be created under a %s", parentRef.Kind), parentRef.ID)
	}

	content, attachments, changes, err := s.deriveContent(upstream, payload)
	if err != nil {
		return nil, "", err
	}

	doc := &domain.Document{
		Kind:              domain.KindChangeOrder,
		Parent:            parentRef,
		ScopeID:           executionRecordID,
		ExecutionRecordID: executionRecordID,
		Content:           content,
		Attachments:       attachments,
		DiffFromParent:    changes,
		Approval:          domain.NewApprovalState(),
		CreatedBy:         actor.ID,
	}
	return doc, familyPrefix(upstream.Content.OfferReference), nil
}

// deriveContent clones a base node's content, applies the payload patch and
// computes the one-time diff. Creating a child that changes nothing is
// rejected: a lineage node must mean something.
func (s *ProposalService) deriveContent(base *domain.Document, payload Payload) (*domain.ProposalContent, []domain.AttachmentRef, []domain.Change, error) {
	content := base.Content.Clone()
	if content == nil {
		content = &domain.ProposalContent{}
	}
	if err := diff.ApplyContent(content, payload.Fields); err != nil {
		return nil, nil, nil, err
	}
	if err := validateContent(content); err != nil {
		return nil, nil, nil, err
	}

	attachments := append([]domain.AttachmentRef(nil), base.Attachments...)
	if payload.Attachments != nil {
		attachments = payload.Attachments
	}

	baseFields := diff.ContentFieldSet(base.Content, base.Attachments)
	candidate := candidateFieldSet(base.Kind, content, nil, attachments, payload)

	changes, err := diff.Diff(base.Kind, baseFields, candidate)
	if err != nil {
		return nil, nil, nil, err
	}
	if len(changes) == 0 {
		return nil, nil, nil, errors.NoChange("the new revision changes no field or attachment of its parent")
	}
	return content, attachments, changes, nil
}

// familyPrefix derives the reference prefix from an offer reference:
// uppercased alphanumerics only, falling back to a generic prefix.
func familyPrefix(offerReference string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(offerReference) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return "PRP"
	}
	return b.String()
}
