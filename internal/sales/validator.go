// Package sales validates multi-line sales against stock, freezes price
// snapshots and computes the stock mutations a commit must apply.
package sales

import (
	"fmt"

	"github.com/shopspring/decimal"

	"sorbo/backend/internal/domain"
	"sorbo/backend/internal/pricing"
)

const (
	MsgProductRequired  = "product is required"
	MsgQuantityPositive = "quantity must be greater than 0"
	MsgProductNotFound  = "product not found"
)

func exceedsStockMessage(available int) string {
	return fmt.Sprintf("total quantity exceeds available stock (%d)", available)
}

// QuantitiesByProduct sums line quantities per product, ignoring lines
// without a product.
func QuantitiesByProduct(lines []domain.SaleLine) map[string]int {
	out := make(map[string]int, len(lines))
	for _, line := range lines {
		if line.ProductID == "" {
			continue
		}
		out[line.ProductID] += line.Quantity
	}
	return out
}

func itemQuantities(items []domain.SaleItem) map[string]int {
	out := make(map[string]int, len(items))
	for _, item := range items {
		out[item.ProductID] += item.Cantidad
	}
	return out
}

// ComputeItemErrors returns per-line error messages keyed by line index.
// When original is non-nil the lines are an edit of that committed sale and
// stock is reconciled against the quantities it already holds.
//
// Basic errors (missing product, non-positive quantity) take precedence: if
// any line has one, stock is not checked in this pass.
func ComputeItemErrors(lines []domain.SaleLine, products map[string]domain.Product, original *domain.Sale) map[int]string {
	errs := make(map[int]string)
	for i, line := range lines {
		switch {
		case line.ProductID == "":
			errs[i] = MsgProductRequired
		case line.Quantity <= 0:
			errs[i] = MsgQuantityPositive
		}
	}
	if len(errs) > 0 {
		return errs
	}

	for i, line := range lines {
		if _, ok := products[line.ProductID]; !ok {
			errs[i] = MsgProductNotFound
		}
	}

	requested := QuantitiesByProduct(lines)
	var originalQty map[string]int
	if original != nil {
		originalQty = itemQuantities(original.Items)
	}

	flagged := make(map[string]string)
	for productID, newQty := range requested {
		product, ok := products[productID]
		if !ok {
			continue
		}
		if original == nil {
			if newQty > product.Stock {
				flagged[productID] = exceedsStockMessage(product.Stock)
			}
			continue
		}

		prevQty, existed := originalQty[productID]
		if !existed {
			if newQty > product.Stock {
				flagged[productID] = exceedsStockMessage(product.Stock)
			}
			continue
		}
		// The original quantity is released back to stock before the edit
		// is applied, so only the increase needs to be covered.
		difference := newQty - prevQty
		if difference > 0 && difference > product.Stock {
			flagged[productID] = exceedsStockMessage(product.Stock + prevQty)
		}
	}

	for i, line := range lines {
		if msg, ok := flagged[line.ProductID]; ok {
			errs[i] = msg
		}
	}
	return errs
}

// MaxStockForItem is the largest quantity a line for productID may request.
func MaxStockForItem(productID string, products map[string]domain.Product, original *domain.Sale) int {
	product, ok := products[productID]
	if !ok {
		return 0
	}
	if original == nil {
		return product.Stock
	}
	return product.Stock + itemQuantities(original.Items)[productID]
}

// ComputeTotal prices lines at current catalog prices. Lines without a
// resolved product are skipped.
func ComputeTotal(lines []domain.SaleLine, products map[string]domain.Product, esMayorista bool) decimal.Decimal {
	total := decimal.Zero
	for _, line := range lines {
		product, ok := products[line.ProductID]
		if !ok {
			continue
		}
		unit := pricing.UnitPrice(product, esMayorista)
		total = total.Add(unit.Mul(decimal.NewFromInt(int64(line.Quantity))))
	}
	return total
}

// BuildSaleItems freezes one SaleItem per resolved line. The wholesale margin
// is only recorded when it was actually charged.
func BuildSaleItems(lines []domain.SaleLine, products map[string]domain.Product, esMayorista bool) []domain.SaleItem {
	items := make([]domain.SaleItem, 0, len(lines))
	for _, line := range lines {
		product, ok := products[line.ProductID]
		if !ok {
			continue
		}
		items = append(items, newSaleItem(product, line.Quantity, esMayorista))
	}
	return items
}

func newSaleItem(product domain.Product, qty int, esMayorista bool) domain.SaleItem {
	price := pricing.UnitPrice(product, esMayorista)
	snapshot := domain.SaleSnapshot{
		PrecioCosto:        product.PrecioCosto,
		Costos:             product.Costos,
		PorcentajeGanancia: product.PorcentajeGanancia,
		PrecioVenta:        price,
	}
	if esMayorista && product.HasWholesale() {
		margin := product.PorcentajeGananciaMayorista
		snapshot.PorcentajeGananciaMayorista = &margin
	}
	return domain.SaleItem{
		ProductID:      product.ID,
		ProductNombre:  product.Nombre,
		Cantidad:       qty,
		PrecioUnitario: price,
		Snapshot:       snapshot,
	}
}

// RebuildSaleItems builds the items of an edited sale. Products already in
// the original sale keep their recorded price and snapshot; products added
// by the edit are priced at the current catalog. Switching between retail
// and wholesale reprices every line.
func RebuildSaleItems(lines []domain.SaleLine, products map[string]domain.Product, original domain.Sale, esMayorista bool) []domain.SaleItem {
	if original.EsMayorista != esMayorista {
		return BuildSaleItems(lines, products, esMayorista)
	}
	frozen := make(map[string]domain.SaleItem, len(original.Items))
	for _, item := range original.Items {
		if _, ok := frozen[item.ProductID]; !ok {
			frozen[item.ProductID] = item
		}
	}

	items := make([]domain.SaleItem, 0, len(lines))
	for _, line := range lines {
		if prev, ok := frozen[line.ProductID]; ok {
			prev.Cantidad = line.Quantity
			items = append(items, prev)
			continue
		}
		product, ok := products[line.ProductID]
		if !ok {
			continue
		}
		items = append(items, newSaleItem(product, line.Quantity, esMayorista))
	}
	return items
}

// Total sums PrecioUnitario * Cantidad over items, rounded to cents.
func Total(items []domain.SaleItem) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.PrecioUnitario.Mul(decimal.NewFromInt(int64(item.Cantidad))))
	}
	return total.Round(2)
}
