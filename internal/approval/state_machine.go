// Package approval implements the approval status state machine shared by
// every document kind. All transitions are pure: they take a state, return a
// new state, and never partially mutate on failure. The append-only log is
// authoritative: the denormalized status fields always equal the fold of
// the last log entry.
package approval

import (
	"fmt"
	"time"

	"github.com/pesio-ai/be-sales-proposals/internal/domain"
	"github.com/pesio-ai/be-sales-proposals/internal/errors"
)

// Decision is an approver's verdict on a pending document.
type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionReject  Decision = "reject"
)

// RequestApproval moves a document into pending. Only preparers may request;
// legal only from none or rejected. requestedBy is set to the actor and any
// previous decision fields are cleared.
func RequestApproval(state domain.ApprovalState, actor domain.Actor, note string, now time.Time) (domain.ApprovalState, error) {
	if !actor.HasRole(domain.RolePreparer) {
		return state, errors.Unauthorized("only a preparer can request approval")
	}
	if state.Status != domain.ApprovalNone && state.Status != domain.ApprovalRejected {
		return state, errors.Conflict(
			fmt.Sprintf("cannot request approval from status '%s'", state.Status))
	}

	next := state.Clone()
	next.Status = domain.ApprovalPending
	next.RequestedBy = actor.ID
	next.ApprovedBy = ""
	next.ApprovedAt = nil
	next.Logs = append(next.Logs, domain.ApprovalLogEntry{
		Status:    domain.ApprovalPending,
		Actor:     actor.ID,
		Note:      note,
		Timestamp: now,
	})
	return next, nil
}

// Decide records an approver's verdict on a pending document, preserving
// requestedBy. Approved is terminal except via AdminReset.
func Decide(state domain.ApprovalState, actor domain.Actor, decision Decision, note string, now time.Time) (domain.ApprovalState, error) {
	if !actor.HasRole(domain.RoleApprover) {
		return state, errors.Unauthorized("only an approver can decide")
	}
	if state.Status != domain.ApprovalPending {
		return state, errors.Conflict(
			fmt.Sprintf("cannot decide on a document with status '%s'", state.Status))
	}

	var target domain.ApprovalStatus
	switch decision {
	case DecisionApprove:
		target = domain.ApprovalApproved
	case DecisionReject:
		target = domain.ApprovalRejected
	default:
		return state, errors.InvalidInput("decision", fmt.Sprintf("unknown decision %q", decision))
	}

	next := state.Clone()
	next.Status = target
	next.ApprovedBy = actor.ID
	approvedAt := now
	next.ApprovedAt = &approvedAt
	next.Logs = append(next.Logs, domain.ApprovalLogEntry{
		Status:    target,
		Actor:     actor.ID,
		Note:      note,
		Timestamp: now,
	})
	return next, nil
}

// AdminReset is the only way out of the approved state. It returns the
// document to none so a new revision cycle can start, keeping the full log.
func AdminReset(state domain.ApprovalState, actor domain.Actor, note string, now time.Time) (domain.ApprovalState, error) {
	if !actor.HasRole(domain.RoleAdmin) {
		return state, errors.Unauthorized("only an admin can reset approval state")
	}
	if state.Status != domain.ApprovalApproved {
		return state, errors.Conflict(
			fmt.Sprintf("cannot reset a document with status '%s'", state.Status))
	}

	next := state.Clone()
	next.Status = domain.ApprovalNone
	next.RequestedBy = ""
	next.ApprovedBy = ""
	next.ApprovedAt = nil
	next.Logs = append(next.Logs, domain.ApprovalLogEntry{
		Status:    domain.ApprovalNone,
		Actor:     actor.ID,
		Note:      note,
		Timestamp: now,
	})
	return next, nil
}

// Fold derives the denormalized fields from the log alone. An empty log
// folds to the initial state.
func Fold(logs []domain.ApprovalLogEntry) domain.ApprovalState {
	state := domain.NewApprovalState()
	state.Logs = logs
	for _, entry := range logs {
		switch entry.Status {
		case domain.ApprovalPending:
			state.Status = domain.ApprovalPending
			state.RequestedBy = entry.Actor
			state.ApprovedBy = ""
			state.ApprovedAt = nil
		case domain.ApprovalApproved, domain.ApprovalRejected:
			state.Status = entry.Status
			state.ApprovedBy = entry.Actor
			at := entry.Timestamp
			state.ApprovedAt = &at
		case domain.ApprovalNone:
			state.Status = domain.ApprovalNone
			state.RequestedBy = ""
			state.ApprovedBy = ""
			state.ApprovedAt = nil
		}
	}
	return state
}

// Verify asserts that the denormalized fields equal the fold of the log.
// Repositories call this before writing approval state.
func Verify(state domain.ApprovalState) error {
	folded := Fold(state.Logs)
	if folded.Status != state.Status ||
		folded.RequestedBy != state.RequestedBy ||
		folded.ApprovedBy != state.ApprovedBy {
		return errors.New(errors.ErrCodeInternal,
			fmt.Sprintf("approval state diverged from its log (status %s, folded %s)",
				state.Status, folded.Status))
	}
	return nil
}
