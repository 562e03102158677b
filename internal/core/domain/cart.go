package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// CartLine is a cart entry as captured by the cart provider: price, name and
// sku are already snapshotted from the catalog.
type CartLine struct {
	ProductID int64           `json:"productId"`
	SKU       string          `json:"sku"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
	Quantity  int             `json:"quantity"`
	LineTotal decimal.Decimal `json:"lineTotal"`
	CreatedAt time.Time       `json:"createdAt"`
}

func NewCartLine(productID int64, sku, name string, unitPrice decimal.Decimal, quantity int) CartLine {
	return CartLine{
		ProductID: productID,
		SKU:       sku,
		Name:      name,
		UnitPrice: unitPrice,
		Quantity:  quantity,
		LineTotal: unitPrice.Mul(decimal.NewFromInt(int64(quantity))),
	}
}
