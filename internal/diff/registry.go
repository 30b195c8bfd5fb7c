// Package diff normalizes and compares document field sets, producing the
// ordered change lists stored as diff-from-parent and edit history entries.
package diff

import "github.com/pesio-ai/be-sales-proposals/internal/domain"

// Strategy selects how a field is normalized before comparison.
type Strategy int

const (
	// StrategyScalar compares canonical serializations.
	StrategyScalar Strategy = iota
	// StrategyDate normalizes to an ISO calendar date or nil.
	StrategyDate
	// StrategyText normalizes free/rich text to trimmed newline-joined form.
	StrategyText
	// StrategyCollection renders the whole collection as one canonical
	// display string; collections are never diffed element-by-element.
	StrategyCollection
)

// Field keys. These are the wire names of diffable fields, shared by the
// diff engine, patch application and edit records.
const (
	FieldOfferReference   = "offerReference"
	FieldOfferDate        = "offerDate"
	FieldTitle            = "title"
	FieldCustomer         = "customer"
	FieldIntroductionText = "introductionText"
	FieldScopeOfWork      = "scopeOfWork"
	FieldPriceSchedule    = "priceSchedule"
	FieldPaymentTerms     = "paymentTerms"
	FieldExclusions       = "exclusions"
	FieldValidityTerms    = "validityTerms"
	FieldAttachments      = "attachments"

	FieldAssignedPersonnel = "assignedPersonnel"
	FieldOperationalStatus = "operationalStatus"
	FieldManpower          = "manpower"
)

// FieldSpec describes one diffable field of a document kind.
type FieldSpec struct {
	Key      string
	Label    string
	Strategy Strategy
}

// proposalFields is the registry for content-carrying kinds. Order here is
// the order changes appear in change lists.
var proposalFields = []FieldSpec{
	{Key: FieldOfferReference, Label: "Offer reference", Strategy: StrategyScalar},
	{Key: FieldOfferDate, Label: "Offer date", Strategy: StrategyDate},
	{Key: FieldTitle, Label: "Title", Strategy: StrategyText},
	{Key: FieldCustomer, Label: "Customer", Strategy: StrategyScalar},
	{Key: FieldIntroductionText, Label: "Introduction", Strategy: StrategyText},
	{Key: FieldScopeOfWork, Label: "Scope of work", Strategy: StrategyCollection},
	{Key: FieldPriceSchedule, Label: "Price schedule", Strategy: StrategyCollection},
	{Key: FieldPaymentTerms, Label: "Payment terms", Strategy: StrategyText},
	{Key: FieldExclusions, Label: "Exclusions", Strategy: StrategyCollection},
	{Key: FieldValidityTerms, Label: "Validity terms", Strategy: StrategyText},
	{Key: FieldAttachments, Label: "Attachments", Strategy: StrategyCollection},
}

// executionFields is the registry for execution records.
var executionFields = []FieldSpec{
	{Key: FieldAssignedPersonnel, Label: "Assigned personnel", Strategy: StrategyCollection},
	{Key: FieldOperationalStatus, Label: "Status", Strategy: StrategyScalar},
	{Key: FieldManpower, Label: "Manpower", Strategy: StrategyScalar},
	{Key: FieldAttachments, Label: "Attachments", Strategy: StrategyCollection},
}

// Fields returns the ordered field registry for a kind.
func Fields(kind domain.Kind) []FieldSpec {
	if kind == domain.KindExecutionRecord {
		return executionFields
	}
	return proposalFields
}
