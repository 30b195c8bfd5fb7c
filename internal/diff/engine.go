package diff

import (
	"github.com/pesio-ai/be-sales-proposals/internal/domain"
)

// Diff compares two field sets of the same kind and returns the ordered
// change list. The candidate may be partial: keys absent from it emit no
// change (omission is not clearing; clearing requires an explicit empty
// value). Pure; Diff(kind, x, x) is always empty.
func Diff(kind domain.Kind, base, candidate map[string]any) ([]domain.Change, error) {
	changes := make([]domain.Change, 0)

	for _, spec := range Fields(kind) {
		candValue, present := candidate[spec.Key]
		if !present {
			continue
		}

		from, err := normalize(spec, base[spec.Key])
		if err != nil {
			return nil, err
		}
		to, err := normalize(spec, candValue)
		if err != nil {
			return nil, err
		}

		if !equalNormalized(from, to) {
			changes = append(changes, domain.Change{Field: spec.Key, From: from, To: to})
		}
	}

	return changes, nil
}

// equalNormalized compares two normalized values (nil or string).
func equalNormalized(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a == b
}
