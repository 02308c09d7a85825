package sales

import (
	"sort"

	"sorbo/backend/internal/domain"
)

// CreationDeltas decrements stock and increments soldCount by the quantity
// sold of every product.
func CreationDeltas(items []domain.SaleItem) []domain.StockDelta {
	qty := itemQuantities(items)
	deltas := make([]domain.StockDelta, 0, len(qty))
	for productID, q := range qty {
		deltas = append(deltas, domain.StockDelta{ProductID: productID, Stock: -q, Sold: q})
	}
	return sortDeltas(deltas)
}

// EditDeltas applies only the difference between the edited and original
// quantities. Products whose quantity did not change produce no delta.
func EditDeltas(original, edited []domain.SaleItem) []domain.StockDelta {
	before := itemQuantities(original)
	after := itemQuantities(edited)

	deltas := make([]domain.StockDelta, 0, len(before)+len(after))
	for productID, newQty := range after {
		difference := newQty - before[productID]
		if difference == 0 {
			continue
		}
		deltas = append(deltas, domain.StockDelta{ProductID: productID, Stock: -difference, Sold: difference})
	}
	for productID, oldQty := range before {
		if _, kept := after[productID]; kept {
			continue
		}
		deltas = append(deltas, domain.StockDelta{ProductID: productID, Stock: oldQty, Sold: -oldQty})
	}
	return sortDeltas(deltas)
}

// ReversalDeltas restores stock for every item of a deleted sale.
func ReversalDeltas(items []domain.SaleItem) []domain.StockDelta {
	qty := itemQuantities(items)
	deltas := make([]domain.StockDelta, 0, len(qty))
	for productID, q := range qty {
		deltas = append(deltas, domain.StockDelta{ProductID: productID, Stock: q, Sold: -q})
	}
	return sortDeltas(deltas)
}

// sortDeltas orders deltas by product id so stores lock rows in a stable order.
func sortDeltas(deltas []domain.StockDelta) []domain.StockDelta {
	sort.Slice(deltas, func(i, j int) bool {
		return deltas[i].ProductID < deltas[j].ProductID
	})
	return deltas
}

// ProductIDs returns the distinct product ids referenced by deltas.
func ProductIDs(deltas []domain.StockDelta) []string {
	ids := make([]string, 0, len(deltas))
	for _, delta := range deltas {
		ids = append(ids, delta.ProductID)
	}
	return ids
}
