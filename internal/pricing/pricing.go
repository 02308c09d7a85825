// Package pricing derives product sale prices from cost basis, applicable
// operating costs and margin. Every function here is pure.
package pricing

import (
	"github.com/shopspring/decimal"

	"sorbo/backend/internal/domain"
)

var hundred = decimal.NewFromInt(100)

// ApplicableCosts sums the operating costs charged to products of type pt:
// general and amortizable costs plus those tagged with pt itself.
func ApplicableCosts(costs []domain.CostItem, pt domain.ProductType) decimal.Decimal {
	total := decimal.Zero
	for _, cost := range costs {
		if cost.Tipo.AppliesTo(pt) {
			total = total.Add(cost.Valor)
		}
	}
	return total
}

// SalePrice returns (costoBase + aggregated) * (1 + margin/100) rounded
// half-up to cents.
func SalePrice(costoBase, aggregated, marginPercent decimal.Decimal) decimal.Decimal {
	base := costoBase.Add(aggregated)
	price := base.Add(base.Mul(marginPercent).Div(hundred))
	return price.Round(2)
}

// RecalculateProductFinancials returns p with Costos, PrecioVenta and
// PrecioVentaMayorista recomputed against costs. All other fields are kept.
func RecalculateProductFinancials(p domain.Product, costs []domain.CostItem) domain.Product {
	aggregated := ApplicableCosts(costs, p.Tipo)
	p.Costos = aggregated
	p.PrecioVenta = SalePrice(p.PrecioCosto, aggregated, p.PorcentajeGanancia)
	p.PrecioVentaMayorista = SalePrice(p.PrecioCosto, aggregated, p.PorcentajeGananciaMayorista)
	return p
}

// RecalculateCatalog recomputes every product against the cost catalog.
// The input slice is not modified.
func RecalculateCatalog(products []domain.Product, costs []domain.CostItem) []domain.Product {
	out := make([]domain.Product, 0, len(products))
	for _, p := range products {
		out = append(out, RecalculateProductFinancials(p, costs))
	}
	return out
}

// UnitPrice is the price charged for one unit. Wholesale pricing only
// applies when the product has a wholesale margin configured; otherwise the
// retail price is charged.
func UnitPrice(p domain.Product, esMayorista bool) decimal.Decimal {
	if esMayorista && p.HasWholesale() {
		return p.PrecioVentaMayorista
	}
	return p.PrecioVenta
}

// FinancialsChanged reports whether any derived price differs between a and b.
func FinancialsChanged(a, b domain.Product) bool {
	return !a.PrecioVenta.Equal(b.PrecioVenta) ||
		!a.PrecioVentaMayorista.Equal(b.PrecioVentaMayorista) ||
		!a.Costos.Equal(b.Costos)
}
