package service

import (
	"fmt"
	"strings"

	"github.com/pesio-ai/be-sales-proposals/internal/domain"
	"github.com/pesio-ai/be-sales-proposals/internal/errors"
)

// validateContent checks the invariants every proposal-bearing document must
// satisfy before it is persisted.
func validateContent(c *domain.ProposalContent) error {
	if strings.TrimSpace(c.OfferReference) == "" {
		return errors.InvalidInput("offerReference", "offer reference is required")
	}
	if strings.TrimSpace(c.Title) == "" {
		return errors.InvalidInput("title", "title is required")
	}
	if len(c.Price.Lines) > 0 && !validCurrency(c.Price.Currency) {
		return errors.InvalidInput("priceSchedule.currency", "currency must be a 3-letter ISO code")
	}
	if c.Price.VATPercent < 0 || c.Price.VATPercent > 100 {
		return errors.InvalidInput("priceSchedule.vatPercent", "VAT percentage must be between 0 and 100")
	}
	for i, line := range c.Price.Lines {
		if line.Quantity <= 0 {
			return errors.InvalidInput(
				fmt.Sprintf("priceSchedule.lines[%d].quantity", i), "quantity must be greater than zero")
		}
		if line.UnitPrice < 0 {
			return errors.InvalidInput(
				fmt.Sprintf("priceSchedule.lines[%d].unitPrice", i), "unit price cannot be negative")
		}
	}
	return nil
}

func validCurrency(code string) bool {
	if len(code) != 3 {
		return false
	}
	for _, r := range code {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}
