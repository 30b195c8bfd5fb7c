package diff

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/pesio-ai/be-sales-proposals/internal/domain"
	"github.com/pesio-ai/be-sales-proposals/internal/errors"
)

// FieldSet extracts the diffable field set of a document.
func FieldSet(doc *domain.Document) map[string]any {
	if doc.Kind == domain.KindExecutionRecord {
		fs := map[string]any{
			FieldAttachments: doc.Attachments,
		}
		if doc.Ops != nil {
			fs[FieldAssignedPersonnel] = doc.Ops.AssignedPersonnel
			fs[FieldOperationalStatus] = doc.Ops.Status
			fs[FieldManpower] = doc.Ops.Manpower
		}
		return fs
	}
	return ContentFieldSet(doc.Content, doc.Attachments)
}

// ContentFieldSet extracts the field set of proposal content plus attachments.
func ContentFieldSet(content *domain.ProposalContent, attachments []domain.AttachmentRef) map[string]any {
	fs := map[string]any{
		FieldAttachments: attachments,
	}
	if content == nil {
		return fs
	}
	fs[FieldOfferReference] = content.OfferReference
	fs[FieldOfferDate] = content.OfferDate
	fs[FieldTitle] = content.Title
	fs[FieldCustomer] = content.Customer
	fs[FieldIntroductionText] = content.IntroductionText
	fs[FieldScopeOfWork] = content.ScopeItems
	fs[FieldPriceSchedule] = content.Price
	fs[FieldPaymentTerms] = content.PaymentTerms
	fs[FieldExclusions] = content.Exclusions
	fs[FieldValidityTerms] = content.ValidityTerms
	return fs
}

// ApplyContent applies a partial field patch onto proposal content in place.
// Values may be typed domain values or their JSON-decoded shapes; structured
// fields are coerced through a JSON round trip. The attachments field is
// managed on the document, not here. Price totals are recomputed after a
// price schedule change.
func ApplyContent(content *domain.ProposalContent, patch map[string]any) error {
	for key, value := range patch {
		switch key {
		case FieldOfferReference:
			s, err := asString(key, value)
			if err != nil {
				return err
			}
			content.OfferReference = s
		case FieldOfferDate:
			normalized, err := normalizeDate(key, value)
			if err != nil {
				return err
			}
			if normalized == nil {
				content.OfferDate = ""
			} else {
				content.OfferDate = normalized.(string)
			}
		case FieldTitle:
			s, err := asText(key, value)
			if err != nil {
				return err
			}
			content.Title = s
		case FieldCustomer:
			if err := coerce(key, value, &content.Customer); err != nil {
				return err
			}
		case FieldIntroductionText:
			s, err := asText(key, value)
			if err != nil {
				return err
			}
			content.IntroductionText = s
		case FieldScopeOfWork:
			content.ScopeItems = nil
			if err := coerce(key, value, &content.ScopeItems); err != nil {
				return err
			}
		case FieldPriceSchedule:
			if err := coerce(key, value, &content.Price); err != nil {
				return err
			}
			content.Price.ComputeTotals()
		case FieldPaymentTerms:
			s, err := asText(key, value)
			if err != nil {
				return err
			}
			content.PaymentTerms = s
		case FieldExclusions:
			content.Exclusions = nil
			if err := coerce(key, value, &content.Exclusions); err != nil {
				return err
			}
		case FieldValidityTerms:
			s, err := asText(key, value)
			if err != nil {
				return err
			}
			content.ValidityTerms = s
		default:
			return errors.InvalidInput(key, "unknown field")
		}
	}
	return nil
}

// ApplyOperational applies a partial field patch onto execution record
// operational details in place.
func ApplyOperational(ops *domain.OperationalDetails, patch map[string]any) error {
	for key, value := range patch {
		switch key {
		case FieldAssignedPersonnel:
			ops.AssignedPersonnel = nil
			if err := coerce(key, value, &ops.AssignedPersonnel); err != nil {
				return err
			}
		case FieldOperationalStatus:
			s, err := asString(key, value)
			if err != nil {
				return err
			}
			ops.Status = s
		case FieldManpower:
			switch n := value.(type) {
			case int:
				ops.Manpower = n
			case int64:
				ops.Manpower = int(n)
			case float64:
				if n != math.Trunc(n) {
					return errors.InvalidInput(key, fmt.Sprintf("expected a whole number, got %v", n))
				}
				ops.Manpower = int(n)
			default:
				return errors.InvalidInput(key, fmt.Sprintf("expected number, got %T", value))
			}
		default:
			return errors.InvalidInput(key, "unknown field")
		}
	}
	return nil
}

func asString(key string, value any) (string, error) {
	if value == nil {
		return "", nil
	}
	s, ok := value.(string)
	if !ok {
		return "", errors.InvalidInput(key, fmt.Sprintf("expected string, got %T", value))
	}
	return s, nil
}

// asText validates the single-string wire shape for text fields, rejecting
// the legacy array form.
func asText(key string, value any) (string, error) {
	normalized, err := normalizeText(key, value)
	if err != nil {
		return "", err
	}
	if normalized == nil {
		return "", nil
	}
	return normalized.(string), nil
}

// coerce converts a typed or JSON-decoded value into dst via a JSON round
// trip. A nil value leaves dst at its zero value.
func coerce(key string, value any, dst any) error {
	if value == nil {
		return nil
	}
	data, err := json.Marshal(value)
	if err != nil {
		return errors.InvalidInput(key, "value is not serializable")
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return errors.InvalidInput(key, fmt.Sprintf("malformed value: %v", err))
	}
	return nil
}
