package domain

import "time"

// ApprovalStatus is the denormalized workflow status of a document.
type ApprovalStatus string

const (
	ApprovalNone     ApprovalStatus = "none"
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalRejected ApprovalStatus = "rejected"
)

// ApprovalLogEntry is one immutable transition record. The log is
// authoritative; the denormalized fields on ApprovalState must always equal
// the fold of the last entry.
type ApprovalLogEntry struct {
	Status    ApprovalStatus `json:"status"`
	Actor     string         `json:"actor"`
	Note      string         `json:"note,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// ApprovalState is the embedded approval workflow of a document.
type ApprovalState struct {
	Status      ApprovalStatus     `json:"status"`
	RequestedBy string             `json:"requested_by,omitempty"`
	ApprovedBy  string             `json:"approved_by,omitempty"`
	ApprovedAt  *time.Time         `json:"approved_at,omitempty"`
	Logs        []ApprovalLogEntry `json:"logs,omitempty"`
}

// NewApprovalState returns the initial state of a freshly created document.
func NewApprovalState() ApprovalState {
	return ApprovalState{Status: ApprovalNone}
}

// Clone returns a copy whose log slice does not alias the receiver's.
func (s ApprovalState) Clone() ApprovalState {
	out := s
	out.Logs = append([]ApprovalLogEntry(nil), s.Logs...)
	return out
}

// IsApproved reports whether the document is in the terminal approved state.
func (s ApprovalState) IsApproved() bool { return s.Status == ApprovalApproved }
