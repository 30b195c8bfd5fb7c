package domain

import "github.com/shopspring/decimal"

// PriceLine is one price schedule entry. Money amounts are integer cents.
type PriceLine struct {
	Description string  `json:"description"`
	Quantity    float64 `json:"quantity"`
	Unit        string  `json:"unit,omitempty"`
	UnitPrice   int64   `json:"unit_price"` // cents
	Amount      int64   `json:"amount"`     // cents, quantity * unit price
}

// PriceSchedule is the priced scope of a proposal. Subtotal, VATAmount and
// GrandTotal are derived; call ComputeTotals after changing Lines or
// VATPercent.
type PriceSchedule struct {
	Currency   string      `json:"currency"`
	Lines      []PriceLine `json:"lines,omitempty"`
	VATPercent float64     `json:"vat_percent"`
	Subtotal   int64       `json:"subtotal"`
	VATAmount  int64       `json:"vat_amount"`
	GrandTotal int64       `json:"grand_total"`
}

// ComputeTotals recomputes line amounts and the schedule totals. Decimal
// arithmetic keeps VAT rounding exact; amounts round half-up to whole cents.
func (p *PriceSchedule) ComputeTotals() {
	subtotal := decimal.Zero
	for i := range p.Lines {
		line := &p.Lines[i]
		amount := decimal.NewFromInt(line.UnitPrice).
			Mul(decimal.NewFromFloat(line.Quantity)).
			Round(0)
		line.Amount = amount.IntPart()
		subtotal = subtotal.Add(amount)
	}

	vat := subtotal.
		Mul(decimal.NewFromFloat(p.VATPercent)).
		Div(decimal.NewFromInt(100)).
		Round(0)

	p.Subtotal = subtotal.IntPart()
	p.VATAmount = vat.IntPart()
	p.GrandTotal = subtotal.Add(vat).IntPart()
}
