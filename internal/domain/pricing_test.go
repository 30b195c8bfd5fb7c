package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestComputeTotals(t *testing.T) {
	p := PriceSchedule{
		Currency:   "EUR",
		VATPercent: 21,
		Lines: []PriceLine{
			{Description: "Labor", Quantity: 10, UnitPrice: 9500},
			{Description: "Parts", Quantity: 1, UnitPrice: 125000},
		},
	}
	p.ComputeTotals()

	assert.Equal(t, int64(95000), p.Lines[0].Amount)
	assert.Equal(t, int64(125000), p.Lines[1].Amount)
	assert.Equal(t, int64(220000), p.Subtotal)
	assert.Equal(t, int64(46200), p.VATAmount)
	assert.Equal(t, int64(266200), p.GrandTotal)
}

func TestComputeTotalsRoundsFractionalCents(t *testing.T) {
	p := PriceSchedule{
		Currency:   "EUR",
		VATPercent: 19,
		Lines: []PriceLine{
			{Description: "Half day", Quantity: 0.5, UnitPrice: 333},
		},
	}
	p.ComputeTotals()

	// 0.5 * 333 = 166.5, rounds half away from zero
	assert.Equal(t, int64(167), p.Lines[0].Amount)
	assert.Equal(t, int64(167), p.Subtotal)
	// 167 * 0.19 = 31.73, rounds to 32
	assert.Equal(t, int64(32), p.VATAmount)
	assert.Equal(t, int64(199), p.GrandTotal)
}

func TestComputeTotalsEmptySchedule(t *testing.T) {
	p := PriceSchedule{Currency: "EUR", VATPercent: 21}
	p.ComputeTotals()

	assert.Zero(t, p.Subtotal)
	assert.Zero(t, p.VATAmount)
	assert.Zero(t, p.GrandTotal)
}

func TestFormatReference(t *testing.T) {
	assert.Equal(t, "OFR1-PRP-001", FormatReference("OFR1", KindBaseDocument, 1))
	assert.Equal(t, "OFR1-AMD-012", FormatReference("OFR1", KindAmendment, 12))
	assert.Equal(t, "OFR1-EXE-001", FormatReference("OFR1", KindExecutionRecord, 1))
	assert.Equal(t, "OFR1-VAR-103", FormatReference("OFR1", KindChangeOrder, 103))
}
