package service

import (
	"marketplace-service/internal/apperr"
	"marketplace-service/internal/models"
	"marketplace-service/internal/pricing"

	"github.com/shopspring/decimal"
)

// DefaultMaxNegotiationEntries caps a ledger at three offers per side.
const DefaultMaxNegotiationEntries = 6

// nextRound returns the round of an entry appended to a ledger of n entries.
func nextRound(n int) int {
	return n/2 + 1
}

// checkTurn decides whether role may append to ledger. The first offer on an
// empty ledger is always allowed; afterwards the parties strictly alternate.
func checkTurn(ledger []models.Negotiation, role models.Role, maxEntries int) error {
	if len(ledger) >= maxEntries {
		return apperr.New(apperr.CodeRoundLimitExceeded, "Maximum negotiation rounds reached")
	}
	if len(ledger) == 0 {
		return nil
	}
	if last := ledger[len(ledger)-1]; last.ProposedBy == role {
		return apperr.New(apperr.CodeWaitingForCounterpart,
			"Waiting for %s's response", role.Counterpart())
	}
	return nil
}

// validatePrice requires a positive amount in whole minor units.
func validatePrice(field string, price decimal.Decimal) error {
	if !price.IsPositive() {
		return apperr.InvalidRequest("%s must be greater than zero", field)
	}
	if !price.Equal(price.Round(pricing.MoneyPlaces)) {
		return apperr.InvalidRequest("%s must have at most %d decimal places", field, pricing.MoneyPlaces)
	}
	return nil
}
