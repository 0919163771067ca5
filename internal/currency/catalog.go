// Package currency answers whether a currency code is one the tracker
// accepts, backed by the ISO 4217 metadata shipped with go-money.
package currency

import "github.com/Rhymond/go-money"

type Catalog struct{}

func NewCatalog() *Catalog { return &Catalog{} }

// IsSupported reports whether code names a known ISO currency.
func (c *Catalog) IsSupported(code string) bool {
	return money.GetCurrency(code) != nil
}
