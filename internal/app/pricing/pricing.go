// Package pricing resolves the effective value of historical sales under a
// customer's price override. Everything here is pure: the stored sale is
// never rewritten, and the effective figures are recomputed on every read.
package pricing

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/ledgerline/debtsync/internal/domain"
)

// Epsilon is the largest stored-vs-effective gap that is not reported.
var Epsilon = decimal.New(1, -2) // 0.01

// Resolution is the effective view of one sale.
type Resolution struct {
	SaleID             string          `json:"saleId"`
	Quantity           decimal.Decimal `json:"quantity"`
	StoredUnitPrice    decimal.Decimal `json:"storedUnitPrice"`
	StoredTotal        decimal.Decimal `json:"storedTotal"`
	EffectiveUnitPrice decimal.Decimal `json:"effectiveUnitPrice"`
	EffectiveTotal     decimal.Decimal `json:"effectiveTotal"`
	OverrideApplied    bool            `json:"overrideApplied"`
	// Discrepancy is EffectiveTotal - StoredTotal.
	Discrepancy decimal.Decimal `json:"discrepancy"`
	// HasDiscrepancy is set when |Discrepancy| > Epsilon; callers render both totals.
	HasDiscrepancy bool `json:"hasDiscrepancy"`
}

// IsOverrideActive reports whether o carries a custom price and now falls
// inside its [ActiveFrom, ActiveUntil] window. Missing bounds are open.
func IsOverrideActive(o *domain.PriceOverride, now time.Time) bool {
	if o == nil || o.CustomUnitPrice == nil {
		return false
	}
	if o.ActiveFrom != nil && now.Before(*o.ActiveFrom) {
		return false
	}
	if o.ActiveUntil != nil && now.After(*o.ActiveUntil) {
		return false
	}
	return true
}

// EffectivePrice returns the override price when active, else the sale price.
func EffectivePrice(o *domain.PriceOverride, salePrice decimal.Decimal, now time.Time) decimal.Decimal {
	if IsOverrideActive(o, now) {
		return *o.CustomUnitPrice
	}
	return salePrice
}

// Resolve computes the effective figures for sale under o at now. A sale
// stored without a unit price is valued at the customer's base price.
func Resolve(o *domain.PriceOverride, base decimal.Decimal, sale domain.Sale, now time.Time) Resolution {
	active := IsOverrideActive(o, now)
	salePrice := sale.UnitPrice
	if salePrice.IsZero() {
		salePrice = base
	}
	price := EffectivePrice(o, salePrice, now)
	total := sale.Quantity.Mul(price)
	diff := total.Sub(sale.Total)

	return Resolution{
		SaleID:             sale.ID,
		Quantity:           sale.Quantity,
		StoredUnitPrice:    sale.UnitPrice,
		StoredTotal:        sale.Total,
		EffectiveUnitPrice: price,
		EffectiveTotal:     total,
		OverrideApplied:    active,
		Discrepancy:        diff,
		HasDiscrepancy:     diff.Abs().GreaterThan(Epsilon),
	}
}

// ResolveAll resolves every sale and returns the resolutions plus the summed
// effective and stored totals.
func ResolveAll(o *domain.PriceOverride, base decimal.Decimal, sales []domain.Sale, now time.Time) (res []Resolution, effective, stored decimal.Decimal) {
	effective, stored = decimal.Zero, decimal.Zero
	res = make([]Resolution, 0, len(sales))
	for _, s := range sales {
		r := Resolve(o, base, s, now)
		res = append(res, r)
		effective = effective.Add(r.EffectiveTotal)
		stored = stored.Add(r.StoredTotal)
	}
	return res, effective, stored
}
