package pricing

import (
	"github.com/shopspring/decimal"
)

// MoneyPlaces is the number of minor-unit digits amounts are rounded to.
const MoneyPlaces = 2

// DefaultCommissionRate is the platform fee charged on accepted orders.
var DefaultCommissionRate = decimal.NewFromFloat(0.05)

// Calculator derives the platform commission for an order total
type Calculator struct {
	rate decimal.Decimal
}

// NewCalculator creates a calculator charging rate (0.05 = 5%)
func NewCalculator(rate decimal.Decimal) *Calculator {
	return &Calculator{rate: rate}
}

// Rate returns the configured commission rate
func (c *Calculator) Rate() decimal.Decimal {
	return c.rate
}

// Commission returns total * rate rounded half-up to minor units
func (c *Calculator) Commission(total decimal.Decimal) decimal.Decimal {
	return total.Mul(c.rate).Round(MoneyPlaces)
}
