package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"sorbo/backend/internal/domain"
	"sorbo/backend/internal/store"
)

func sampleSale(productID string, qty int) domain.Sale {
	return domain.Sale{
		Items: []domain.SaleItem{{
			ProductID:      productID,
			Cantidad:       qty,
			PrecioUnitario: decimal.NewFromInt(100),
		}},
		Total: decimal.NewFromInt(int64(100 * qty)),
	}
}

func TestSeededCatalogHasDerivedPrices(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()

	product, err := s.GetProduct(ctx, "prd-blend-relajante")
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	// costos 120 + 220 + 90 = 430; (450 + 430) at a 60% margin.
	if !product.Costos.Equal(decimal.NewFromInt(430)) {
		t.Fatalf("expected costos 430, got %s", product.Costos)
	}
	if !product.PrecioVenta.Equal(decimal.NewFromInt(1408)) {
		t.Fatalf("expected precio venta 1408, got %s", product.PrecioVenta)
	}
	if !product.PrecioVentaMayorista.Equal(decimal.NewFromInt(1232)) {
		t.Fatalf("expected precio mayorista 1232, got %s", product.PrecioVentaMayorista)
	}

	users, _ := s.ListUsers(ctx)
	if len(users) != 2 {
		t.Fatalf("expected 2 seeded users, got %d", len(users))
	}
}

func TestCreateSaleAppliesDeltasAtomically(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()

	// prd-gin-especial has stock 4: the second delta fails, so nothing applies.
	_, err := s.CreateSale(ctx, sampleSale("prd-caja-regalo", 2), []domain.StockDelta{
		{ProductID: "prd-caja-regalo", Stock: -2, Sold: 2},
		{ProductID: "prd-gin-especial", Stock: -5, Sold: 5},
	})
	if !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected insufficient stock, got %v", err)
	}
	caja, _ := s.GetProduct(ctx, "prd-caja-regalo")
	if caja.Stock != 10 || caja.SoldCount != 76 {
		t.Fatalf("expected caja untouched, got stock=%d sold=%d", caja.Stock, caja.SoldCount)
	}
	sales, _ := s.ListSales(ctx, domain.SaleFilter{})
	if len(sales) != 0 {
		t.Fatalf("expected no sale persisted, got %d", len(sales))
	}

	created, err := s.CreateSale(ctx, sampleSale("prd-caja-regalo", 2), []domain.StockDelta{
		{ProductID: "prd-caja-regalo", Stock: -2, Sold: 2},
	})
	if err != nil {
		t.Fatalf("create sale: %v", err)
	}
	if created.ID == "" || created.Fecha.IsZero() {
		t.Fatalf("expected id and fecha to be assigned")
	}
	caja, _ = s.GetProduct(ctx, "prd-caja-regalo")
	if caja.Stock != 8 || caja.SoldCount != 78 {
		t.Fatalf("expected stock=8 sold=78, got stock=%d sold=%d", caja.Stock, caja.SoldCount)
	}
}

func TestDeleteSaleRestoresStockAndClampsSoldCount(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()

	product, _ := s.CreateProduct(ctx, domain.Product{
		Nombre:      "Blend Nuevo",
		Tipo:        domain.ProductTypeBlend,
		PrecioCosto: decimal.NewFromInt(100),
		Stock:       3,
	})
	// Sold is deliberately not incremented to exercise the clamp.
	sale, err := s.CreateSale(ctx, sampleSale(product.ID, 2), []domain.StockDelta{{ProductID: product.ID, Stock: -2}})
	if err != nil {
		t.Fatalf("create sale: %v", err)
	}

	if _, err := s.DeleteSale(ctx, sale.ID); err != nil {
		t.Fatalf("delete sale: %v", err)
	}
	got, _ := s.GetProduct(ctx, product.ID)
	if got.Stock != 3 {
		t.Fatalf("expected stock restored to 3, got %d", got.Stock)
	}
	if got.SoldCount != 0 {
		t.Fatalf("expected sold count clamped at 0, got %d", got.SoldCount)
	}
	if _, err := s.GetSale(ctx, sale.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected deleted sale to be gone, got %v", err)
	}
}

func TestUpdateSaleKeepsFechaAndCreatedAt(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()

	created, err := s.CreateSale(ctx, sampleSale("prd-caja-premium", 1), []domain.StockDelta{
		{ProductID: "prd-caja-premium", Stock: -1, Sold: 1},
	})
	if err != nil {
		t.Fatalf("create sale: %v", err)
	}

	edit := sampleSale("prd-caja-premium", 3)
	edit.ID = created.ID
	edit.Fecha = created.Fecha.Add(time.Hour)
	updated, err := s.UpdateSale(ctx, edit, []domain.StockDelta{{ProductID: "prd-caja-premium", Stock: -2, Sold: 2}})
	if err != nil {
		t.Fatalf("update sale: %v", err)
	}
	if !updated.Fecha.Equal(created.Fecha) {
		t.Fatalf("expected fecha to be preserved")
	}
	premium, _ := s.GetProduct(ctx, "prd-caja-premium")
	if premium.Stock != 17 || premium.SoldCount != 100 {
		t.Fatalf("expected stock=17 sold=100, got stock=%d sold=%d", premium.Stock, premium.SoldCount)
	}
}

func TestReplaceProductFinancialsOnlyTouchesDerivedFields(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()

	original, _ := s.GetProduct(ctx, "prd-gin-citrus")
	changed := *original
	changed.Costos = decimal.NewFromInt(1)
	changed.PrecioVenta = decimal.NewFromInt(2)
	changed.PrecioVentaMayorista = decimal.NewFromInt(3)
	changed.Stock = 999
	changed.Nombre = "ignored"

	if err := s.ReplaceProductFinancials(ctx, []domain.Product{changed}); err != nil {
		t.Fatalf("replace financials: %v", err)
	}
	got, _ := s.GetProduct(ctx, "prd-gin-citrus")
	if got.Stock != original.Stock || got.Nombre != original.Nombre {
		t.Fatalf("expected inputs untouched, got %+v", got)
	}
	if !got.PrecioVenta.Equal(decimal.NewFromInt(2)) {
		t.Fatalf("expected precio venta 2, got %s", got.PrecioVenta)
	}

	err := s.ReplaceProductFinancials(ctx, []domain.Product{changed, {ID: "missing"}})
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestListSalesFilterAndOrder(t *testing.T) {
	s := New()
	ctx := context.Background()
	base := time.Date(2026, 5, 10, 9, 0, 0, 0, time.UTC)

	for i, daysAgo := range []int{3, 1, 2} {
		sale := sampleSale("none", 1)
		sale.ID = []string{"a", "b", "c"}[i]
		sale.Fecha = base.AddDate(0, 0, -daysAgo)
		if _, err := s.CreateSale(ctx, sale, nil); err != nil {
			t.Fatalf("create sale: %v", err)
		}
	}

	all, _ := s.ListSales(ctx, domain.SaleFilter{})
	if len(all) != 3 || all[0].ID != "b" || all[2].ID != "a" {
		t.Fatalf("expected newest first, got %v", []string{all[0].ID, all[1].ID, all[2].ID})
	}

	from := base.AddDate(0, 0, -2)
	filtered, _ := s.ListSales(ctx, domain.SaleFilter{From: &from, Limit: 1})
	if len(filtered) != 1 || filtered[0].ID != "b" {
		t.Fatalf("expected only sale b, got %+v", filtered)
	}
}

func TestDraftLifecycle(t *testing.T) {
	s := New()
	ctx := context.Background()
	older := domain.Draft{ID: "d1", Fecha: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	newer := domain.Draft{ID: "d2", Fecha: time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)}

	_ = s.SaveDraft(ctx, older)
	_ = s.SaveDraft(ctx, newer)

	drafts, _ := s.ListDrafts(ctx)
	if len(drafts) != 2 || drafts[0].ID != "d2" {
		t.Fatalf("expected newest draft first, got %+v", drafts)
	}
	if err := s.DeleteDraft(ctx, "d1"); err != nil {
		t.Fatalf("delete draft: %v", err)
	}
	if _, err := s.GetDraft(ctx, "d1"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected not found after delete, got %v", err)
	}
	_ = s.ClearDrafts(ctx)
	drafts, _ = s.ListDrafts(ctx)
	if len(drafts) != 0 {
		t.Fatalf("expected drafts cleared, got %d", len(drafts))
	}
}
