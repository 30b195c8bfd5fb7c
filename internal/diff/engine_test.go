package diff

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pesio-ai/be-sales-proposals/internal/domain"
	"github.com/pesio-ai/be-sales-proposals/internal/errors"
)

func proposalBase() map[string]any {
	return map[string]any{
		FieldOfferReference: "OFR-2024-001",
		FieldOfferDate:      "2024-03-01",
		FieldTitle:          "Cooling tower overhaul",
		FieldCustomer:       domain.CompanyInfo{Name: "Acme Marine"},
	}
}

func TestDiffIdenticalFieldSetsIsEmpty(t *testing.T) {
	base := proposalBase()

	changes, err := Diff(domain.KindBaseDocument, base, base)
	require.NoError(t, err)
	assert.Empty(t, changes)
}

func TestDiffSettingEmptyTextField(t *testing.T) {
	base := map[string]any{FieldIntroductionText: ""}
	candidate := map[string]any{FieldIntroductionText: "Hello"}

	changes, err := Diff(domain.KindBaseDocument, base, candidate)
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.Equal(t, FieldIntroductionText, changes[0].Field)
	assert.Nil(t, changes[0].From)
	assert.Equal(t, "Hello", changes[0].To)
}

func TestDiffOmittedKeyEmitsNoChange(t *testing.T) {
	base := proposalBase()
	candidate := map[string]any{FieldTitle: "New title"}

	changes, err := Diff(domain.KindBaseDocument, base, candidate)
	require.NoError(t, err)
	require.Len(t, changes, 1, "only the present key may produce a change")
	assert.Equal(t, FieldTitle, changes[0].Field)
}

func TestDiffExplicitEmptyClearsField(t *testing.T) {
	base := map[string]any{FieldPaymentTerms: "30 days net"}
	candidate := map[string]any{FieldPaymentTerms: ""}

	changes, err := Diff(domain.KindBaseDocument, base, candidate)
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.Equal(t, "30 days net", changes[0].From)
	assert.Nil(t, changes[0].To)
}

func TestDiffTextNormalization(t *testing.T) {
	tests := []struct {
		name string
		base any
		cand any
	}{
		{name: "crlf folded", base: "line one\nline two", cand: "line one\r\nline two"},
		{name: "surrounding whitespace trimmed", base: "hello", cand: "  hello \n"},
		{name: "unicode composed equals decomposed", base: "café", cand: "café"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			changes, err := Diff(domain.KindBaseDocument,
				map[string]any{FieldIntroductionText: tt.base},
				map[string]any{FieldIntroductionText: tt.cand})
			require.NoError(t, err)
			assert.Empty(t, changes, "normalized forms must compare equal")
		})
	}
}

func TestDiffRejectsStructuredTextArrays(t *testing.T) {
	candidate := map[string]any{FieldIntroductionText: []any{"para one", "para two"}}

	_, err := Diff(domain.KindBaseDocument, map[string]any{}, candidate)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeValidation))
}

func TestDiffDateNormalization(t *testing.T) {
	base := map[string]any{FieldOfferDate: "2024-03-01"}
	candidate := map[string]any{FieldOfferDate: "2024-03-01T10:30:00Z"}

	changes, err := Diff(domain.KindBaseDocument, base, candidate)
	require.NoError(t, err)
	assert.Empty(t, changes, "same calendar day must compare equal")

	candidate[FieldOfferDate] = "not-a-date"
	_, err = Diff(domain.KindBaseDocument, base, candidate)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeValidation))
}

func TestDiffCollectionsCompareAsRenderedWhole(t *testing.T) {
	base := map[string]any{
		FieldScopeOfWork: []domain.ScopeItem{
			{Description: "Descale condenser", Quantity: 2, Unit: "units"},
		},
	}
	same := map[string]any{
		FieldScopeOfWork: []domain.ScopeItem{
			{Description: "  Descale condenser  ", Quantity: 2, Unit: "units"},
		},
	}

	changes, err := Diff(domain.KindBaseDocument, base, same)
	require.NoError(t, err)
	assert.Empty(t, changes)

	reordered := map[string]any{
		FieldScopeOfWork: []domain.ScopeItem{
			{Description: "Replace gaskets"},
			{Description: "Descale condenser", Quantity: 2, Unit: "units"},
		},
	}
	changes, err = Diff(domain.KindBaseDocument, base, reordered)
	require.NoError(t, err)
	require.Len(t, changes, 1, "element order is part of the rendered collection")
}

func TestDiffAttachments(t *testing.T) {
	base := map[string]any{
		FieldAttachments: []domain.AttachmentRef{{Name: "drawing.pdf", Locator: "att-1"}},
	}

	t.Run("added attachment", func(t *testing.T) {
		candidate := map[string]any{
			FieldAttachments: []domain.AttachmentRef{
				{Name: "drawing.pdf", Locator: "att-1"},
				{Name: "photos.zip", Locator: "att-2"},
			},
		}

		changes, err := Diff(domain.KindBaseDocument, base, candidate)
		require.NoError(t, err)
		require.Len(t, changes, 1)
		assert.Equal(t, FieldAttachments, changes[0].Field)
		assert.Equal(t, "drawing.pdf (att-1)", changes[0].From)
		assert.Equal(t, "drawing.pdf (att-1)\nphotos.zip (att-2)", changes[0].To)
	})

	t.Run("same name, replaced object", func(t *testing.T) {
		candidate := map[string]any{
			FieldAttachments: []domain.AttachmentRef{{Name: "drawing.pdf", Locator: "att-9"}},
		}

		changes, err := Diff(domain.KindBaseDocument, base, candidate)
		require.NoError(t, err)
		require.Len(t, changes, 1, "a re-uploaded file with the same name is a change")
		assert.Equal(t, "drawing.pdf (att-1)", changes[0].From)
		assert.Equal(t, "drawing.pdf (att-9)", changes[0].To)
	})
}

func TestDiffChangesFollowRegistryOrder(t *testing.T) {
	base := map[string]any{
		FieldTitle:         "Old title",
		FieldOfferDate:     "2024-01-01",
		FieldValidityTerms: "60 days",
	}
	candidate := map[string]any{
		FieldValidityTerms: "90 days",
		FieldTitle:         "New title",
		FieldOfferDate:     "2024-02-01",
	}

	changes, err := Diff(domain.KindBaseDocument, base, candidate)
	require.NoError(t, err)
	require.Len(t, changes, 3)
	assert.Equal(t, FieldOfferDate, changes[0].Field)
	assert.Equal(t, FieldTitle, changes[1].Field)
	assert.Equal(t, FieldValidityTerms, changes[2].Field)
}

func TestDiffExecutionRecordFields(t *testing.T) {
	base := map[string]any{
		FieldAssignedPersonnel: []string{"j.doe"},
		FieldOperationalStatus: "scheduled",
		FieldManpower:          4,
	}
	candidate := map[string]any{
		FieldAssignedPersonnel: []string{"j.doe", "m.smith"},
		FieldOperationalStatus: "in_progress",
		FieldManpower:          4,
	}

	changes, err := Diff(domain.KindExecutionRecord, base, candidate)
	require.NoError(t, err)
	require.Len(t, changes, 2)
	assert.Equal(t, FieldAssignedPersonnel, changes[0].Field)
	assert.Equal(t, FieldOperationalStatus, changes[1].Field)
}

func TestApplyOperationalManpower(t *testing.T) {
	ops := &domain.OperationalDetails{}

	require.NoError(t, ApplyOperational(ops, map[string]any{FieldManpower: float64(12)}))
	assert.Equal(t, 12, ops.Manpower)

	err := ApplyOperational(ops, map[string]any{FieldManpower: 47.9})
	require.Error(t, err, "fractional headcounts are rejected, not truncated")
	assert.True(t, errors.Is(err, errors.ErrCodeValidation))
	assert.Equal(t, 12, ops.Manpower, "a rejected patch leaves the value untouched")
}

func TestDiffPriceScheduleRendering(t *testing.T) {
	price := domain.PriceSchedule{
		Currency:   "EUR",
		VATPercent: 21,
		Lines: []domain.PriceLine{
			{Description: "Labor", Quantity: 10, UnitPrice: 9500},
		},
	}
	price.ComputeTotals()

	raised := price
	raised.Lines = []domain.PriceLine{
		{Description: "Labor", Quantity: 10, UnitPrice: 10500},
	}
	raised.ComputeTotals()

	changes, err := Diff(domain.KindBaseDocument,
		map[string]any{FieldPriceSchedule: price},
		map[string]any{FieldPriceSchedule: raised})
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.Contains(t, changes[0].From, "Labor: 10 x 95.00 = 950.00")
	assert.Contains(t, changes[0].To, "Total: 1270.50 EUR")
}
