// Package domain holds the document family model: base documents, amendments,
// execution records and change orders, plus the embedded approval, edit and
// attachment types they share.
package domain

import (
	"fmt"
	"time"
)

// Kind identifies a document family member.
type Kind string

const (
	KindBaseDocument    Kind = "base_document"
	KindAmendment       Kind = "amendment"
	KindExecutionRecord Kind = "execution_record"
	KindChangeOrder     Kind = "change_order"
)

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	switch k {
	case KindBaseDocument, KindAmendment, KindExecutionRecord, KindChangeOrder:
		return true
	}
	return false
}

// Code returns the short code used in human-readable references.
func (k Kind) Code() string {
	switch k {
	case KindBaseDocument:
		return "PRP"
	case KindAmendment:
		return "AMD"
	case KindExecutionRecord:
		return "EXE"
	case KindChangeOrder:
		return "VAR"
	}
	return "DOC"
}

// CarriesContent reports whether documents of this kind hold proposal content.
// Execution records carry operational fields instead.
func (k Kind) CarriesContent() bool {
	return k != KindExecutionRecord
}

// Ref is a typed reference to another document.
type Ref struct {
	Kind Kind
	ID   string
}

// IsZero reports whether the reference is unset.
func (r Ref) IsZero() bool { return r.Kind == "" && r.ID == "" }

// CompanyInfo is the customer block on a proposal.
type CompanyInfo struct {
	Name          string `json:"name"`
	ContactPerson string `json:"contact_person,omitempty"`
	Email         string `json:"email,omitempty"`
	Phone         string `json:"phone,omitempty"`
	Address       string `json:"address,omitempty"`
}

// ScopeItem is one scope-of-work line.
type ScopeItem struct {
	Description string  `json:"description"`
	Quantity    float64 `json:"quantity,omitempty"`
	Unit        string  `json:"unit,omitempty"`
}

// ProposalContent is the commercial content carried by base documents,
// amendments and change orders.
type ProposalContent struct {
	OfferReference   string        `json:"offer_reference"`
	OfferDate        string        `json:"offer_date,omitempty"` // ISO calendar date
	Title            string        `json:"title"`
	Customer         CompanyInfo   `json:"customer"`
	IntroductionText string        `json:"introduction_text,omitempty"`
	ScopeItems       []ScopeItem   `json:"scope_items,omitempty"`
	Price            PriceSchedule `json:"price"`
	PaymentTerms     string        `json:"payment_terms,omitempty"`
	Exclusions       []string      `json:"exclusions,omitempty"`
	ValidityTerms    string        `json:"validity_terms,omitempty"`
}

// Clone returns a deep copy of the content.
func (c *ProposalContent) Clone() *ProposalContent {
	if c == nil {
		return nil
	}
	out := *c
	out.ScopeItems = append([]ScopeItem(nil), c.ScopeItems...)
	out.Exclusions = append([]string(nil), c.Exclusions...)
	out.Price.Lines = append([]PriceLine(nil), c.Price.Lines...)
	return &out
}

// SubRevision is an embedded minor revision on an execution record.
type SubRevision struct {
	Number    int       `json:"number"`
	Note      string    `json:"note,omitempty"`
	CreatedBy string    `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
}

// OperationalDetails are the execution-record-only fields.
type OperationalDetails struct {
	AssignedPersonnel []string      `json:"assigned_personnel,omitempty"`
	Status            string        `json:"status,omitempty"`
	Manpower          int           `json:"manpower,omitempty"`
	SubRevisions      []SubRevision `json:"sub_revisions,omitempty"`
}

// Clone returns a deep copy of the operational details.
func (o *OperationalDetails) Clone() *OperationalDetails {
	if o == nil {
		return nil
	}
	out := *o
	out.AssignedPersonnel = append([]string(nil), o.AssignedPersonnel...)
	out.SubRevisions = append([]SubRevision(nil), o.SubRevisions...)
	return &out
}

// AttachmentRef is an opaque reference into the external attachment store.
type AttachmentRef struct {
	Name     string `json:"name"`
	MimeType string `json:"mime_type,omitempty"`
	Size     int64  `json:"size,omitempty"`
	Locator  string `json:"locator"`
}

// Document is one member of a proposal family. Content is nil for execution
// records; Ops is nil for everything else.
type Document struct {
	ID        string
	Kind      Kind
	Reference string // human-readable, e.g. OFR1-AMD-002
	Sequence  int
	ScopeID   string // sequence scope: family root for amendments, record for change orders

	Parent Ref // immediate parent; zero for base documents
	Source Ref // execution records: the approved node they were created from

	ExecutionRecordID string // change orders: the record whose chain they belong to

	Content     *ProposalContent
	Ops         *OperationalDetails
	Attachments []AttachmentRef

	DiffFromParent []Change
	Approval       ApprovalState
	Edits          []EditRecord

	Version   int
	CreatedBy string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Title returns the display title, falling back to the reference.
func (d *Document) Title() string {
	if d.Content != nil && d.Content.Title != "" {
		return d.Content.Title
	}
	return d.Reference
}

// FormatReference renders the human-readable sequence identifier.
func FormatReference(familyPrefix string, kind Kind, sequence int) string {
	return fmt.Sprintf("%s-%s-%03d", familyPrefix, kind.Code(), sequence)
}
