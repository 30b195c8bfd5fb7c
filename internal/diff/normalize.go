package diff

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/unicode/norm"

	"github.com/pesio-ai/be-sales-proposals/internal/domain"
	"github.com/pesio-ai/be-sales-proposals/internal/errors"
)

// normalize reduces a raw field value to its canonical comparable form:
// nil for empty, otherwise a string.
func normalize(spec FieldSpec, value any) (any, error) {
	switch spec.Strategy {
	case StrategyDate:
		return normalizeDate(spec.Key, value)
	case StrategyText:
		return normalizeText(spec.Key, value)
	case StrategyCollection:
		return normalizeCollection(value)
	default:
		return normalizeScalar(value)
	}
}

// normalizeText canonicalizes free/rich text: NFC, CRLF folded to LF,
// surrounding whitespace trimmed, empty mapped to nil. The legacy
// structured-array shape for text fields is rejected, never coerced.
func normalizeText(key string, value any) (any, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case string:
		s := norm.NFC.String(v)
		s = strings.ReplaceAll(s, "\r\n", "\n")
		s = strings.ReplaceAll(s, "\r", "\n")
		s = strings.TrimSpace(s)
		if s == "" {
			return nil, nil
		}
		return s, nil
	case []string, []any:
		return nil, errors.InvalidInput(key, "structured text arrays are not accepted; send a single string")
	default:
		return nil, errors.InvalidInput(key, fmt.Sprintf("expected text, got %T", value))
	}
}

// normalizeDate reduces a date to its ISO calendar day, or nil when unset.
func normalizeDate(key string, value any) (any, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case time.Time:
		if v.IsZero() {
			return nil, nil
		}
		return v.Format("2006-01-02"), nil
	case *time.Time:
		if v == nil || v.IsZero() {
			return nil, nil
		}
		return v.Format("2006-01-02"), nil
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return nil, nil
		}
		for _, layout := range []string{"2006-01-02", time.RFC3339, "2006-01-02T15:04:05"} {
			if t, err := time.Parse(layout, s); err == nil {
				return t.Format("2006-01-02"), nil
			}
		}
		return nil, errors.InvalidInput(key, fmt.Sprintf("invalid date %q, expected YYYY-MM-DD", v))
	default:
		return nil, errors.InvalidInput(key, fmt.Sprintf("expected date, got %T", value))
	}
}

// normalizeScalar canonicalizes scalars and objects. Strings are trimmed;
// everything else falls back to canonical JSON (map keys sorted by
// encoding/json).
func normalizeScalar(value any) (any, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return nil, nil
		}
		return s, nil
	case bool:
		return strconv.FormatBool(v), nil
	case int:
		return strconv.Itoa(v), nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	default:
		data, err := json.Marshal(value)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeValidation, "value is not serializable")
		}
		s := string(data)
		if s == "null" || s == "{}" || s == "[]" || s == `""` {
			return nil, nil
		}
		return s, nil
	}
}

// normalizeCollection renders a structured collection as one canonical
// display string. Empty collections map to nil.
func normalizeCollection(value any) (any, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case []string:
		return joinLines(v), nil
	case []domain.ScopeItem:
		lines := make([]string, 0, len(v))
		for _, item := range v {
			lines = append(lines, renderScopeItem(item))
		}
		return joinLines(lines), nil
	case domain.PriceSchedule:
		return renderPriceSchedule(v), nil
	case *domain.PriceSchedule:
		if v == nil {
			return nil, nil
		}
		return renderPriceSchedule(*v), nil
	case []domain.AttachmentRef:
		lines := make([]string, 0, len(v))
		for _, ref := range v {
			lines = append(lines, renderAttachment(ref))
		}
		return joinLines(lines), nil
	default:
		// Unknown collection shapes fall back to canonical JSON.
		return normalizeScalar(value)
	}
}

func joinLines(lines []string) any {
	trimmed := make([]string, 0, len(lines))
	for _, l := range lines {
		if s := strings.TrimSpace(l); s != "" {
			trimmed = append(trimmed, s)
		}
	}
	if len(trimmed) == 0 {
		return nil
	}
	return strings.Join(trimmed, "\n")
}

// renderAttachment includes the locator so replacing an attachment with a
// same-named object still reads as a change.
func renderAttachment(ref domain.AttachmentRef) string {
	if ref.Locator == "" {
		return ref.Name
	}
	return fmt.Sprintf("%s (%s)", ref.Name, ref.Locator)
}

func renderScopeItem(item domain.ScopeItem) string {
	if item.Quantity == 0 {
		return item.Description
	}
	qty := strconv.FormatFloat(item.Quantity, 'f', -1, 64)
	if item.Unit != "" {
		return fmt.Sprintf("%s (%s %s)", item.Description, qty, item.Unit)
	}
	return fmt.Sprintf("%s (%s)", item.Description, qty)
}

func renderPriceSchedule(p domain.PriceSchedule) any {
	if len(p.Lines) == 0 {
		return nil
	}
	lines := make([]string, 0, len(p.Lines)+3)
	for _, l := range p.Lines {
		qty := strconv.FormatFloat(l.Quantity, 'f', -1, 64)
		lines = append(lines, fmt.Sprintf("%s: %s x %s = %s",
			l.Description, qty, formatCents(l.UnitPrice), formatCents(l.Amount)))
	}
	lines = append(lines,
		fmt.Sprintf("Subtotal: %s %s", formatCents(p.Subtotal), p.Currency),
		fmt.Sprintf("VAT %s%%: %s %s", strconv.FormatFloat(p.VATPercent, 'f', -1, 64), formatCents(p.VATAmount), p.Currency),
		fmt.Sprintf("Total: %s %s", formatCents(p.GrandTotal), p.Currency),
	)
	return strings.Join(lines, "\n")
}

func formatCents(cents int64) string {
	return decimal.NewFromInt(cents).Div(decimal.NewFromInt(100)).StringFixed(2)
}
