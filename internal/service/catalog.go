package service

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"sorbo/backend/internal/domain"
	"sorbo/backend/internal/metrics"
	"sorbo/backend/internal/pricing"
	"sorbo/backend/internal/xid"
)

func (s *Service) ListCosts(ctx context.Context) ([]domain.CostItem, error) {
	return s.repo.ListCosts(ctx)
}

func (s *Service) GetCost(ctx context.Context, id string) (domain.CostItem, error) {
	cost, err := s.repo.GetCost(ctx, id)
	if err != nil {
		return domain.CostItem{}, notFound(err, "cost", id)
	}
	return *cost, nil
}

// Inputs carry no more precision than the database columns store them with.
const (
	moneyPlaces  = 2
	marginPlaces = 4
)

func exceedsPlaces(d decimal.Decimal, places int32) bool {
	return !d.Equal(d.Round(places))
}

func validateCostFields(nombre string, tipo domain.CostType, valor decimal.Decimal) error {
	if nombre == "" {
		return invalid("nombre is required")
	}
	if !tipo.Valid() {
		return invalid("unknown cost type %q", tipo)
	}
	if !valor.IsPositive() {
		return invalid("valor must be greater than 0")
	}
	if exceedsPlaces(valor, moneyPlaces) {
		return invalid("valor accepts at most %d decimal places", moneyPlaces)
	}
	return nil
}

func (s *Service) CreateCost(ctx context.Context, req domain.CostCreateRequest) (domain.CostItem, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return domain.CostItem{}, err
	}
	s.catalogMu.Lock()
	defer s.catalogMu.Unlock()

	cost := domain.CostItem{
		ID:          xid.New("cost"),
		Nombre:      strings.TrimSpace(req.Nombre),
		Tipo:        req.Tipo,
		Valor:       req.Valor,
		Descripcion: strings.TrimSpace(req.Descripcion),
	}
	if err := validateCostFields(cost.Nombre, cost.Tipo, cost.Valor); err != nil {
		return domain.CostItem{}, err
	}

	created, err := s.repo.CreateCost(ctx, cost)
	if err != nil {
		return domain.CostItem{}, err
	}

	s.logAudit(ctx, "cost_create", "cost", created.ID, fmt.Sprintf("tipo=%s,valor=%s", created.Tipo, created.Valor))
	if err := s.repriceCatalog(ctx); err != nil {
		return domain.CostItem{}, err
	}
	return *created, nil
}

func (s *Service) UpdateCost(ctx context.Context, id string, req domain.CostUpdateRequest) (domain.CostItem, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return domain.CostItem{}, err
	}
	s.catalogMu.Lock()
	defer s.catalogMu.Unlock()

	existing, err := s.repo.GetCost(ctx, id)
	if err != nil {
		return domain.CostItem{}, notFound(err, "cost", id)
	}

	updated := *existing
	if req.Nombre != nil {
		updated.Nombre = strings.TrimSpace(*req.Nombre)
	}
	if req.Tipo != nil {
		updated.Tipo = *req.Tipo
	}
	if req.Valor != nil {
		updated.Valor = *req.Valor
	}
	if req.Descripcion != nil {
		updated.Descripcion = strings.TrimSpace(*req.Descripcion)
	}
	if err := validateCostFields(updated.Nombre, updated.Tipo, updated.Valor); err != nil {
		return domain.CostItem{}, err
	}

	saved, err := s.repo.UpdateCost(ctx, updated)
	if err != nil {
		return domain.CostItem{}, notFound(err, "cost", id)
	}

	s.logAudit(ctx, "cost_update", "cost", saved.ID, fmt.Sprintf("tipo=%s,valor=%s", saved.Tipo, saved.Valor))
	if err := s.repriceCatalog(ctx); err != nil {
		return domain.CostItem{}, err
	}
	return *saved, nil
}

func (s *Service) DeleteCost(ctx context.Context, id string) error {
	if _, err := requireAdmin(ctx); err != nil {
		return err
	}
	s.catalogMu.Lock()
	defer s.catalogMu.Unlock()
	if err := s.repo.DeleteCost(ctx, id); err != nil {
		return notFound(err, "cost", id)
	}

	s.logAudit(ctx, "cost_delete", "cost", id, "deleted")
	return s.repriceCatalog(ctx)
}

// RecalculateCatalog reprices every product against the current costs. Cost
// writes already do this; it is exposed for repairing a catalog whose last
// reprice failed.
func (s *Service) RecalculateCatalog(ctx context.Context) error {
	if _, err := requireAdmin(ctx); err != nil {
		return err
	}
	s.catalogMu.Lock()
	defer s.catalogMu.Unlock()
	return s.repriceCatalog(ctx)
}

// repriceCatalog recomputes the derived financials of every product from a
// fresh read of costs and products, then persists only the products whose
// figures moved.
func (s *Service) repriceCatalog(ctx context.Context) error {
	costs, err := s.repo.ListCosts(ctx)
	if err != nil {
		return fmt.Errorf("reprice catalog: list costs: %w", err)
	}
	products, err := s.repo.ListProducts(ctx)
	if err != nil {
		return fmt.Errorf("reprice catalog: list products: %w", err)
	}

	recalculated := pricing.RecalculateCatalog(products, costs)
	changed := make([]domain.Product, 0, len(products))
	for i := range products {
		if pricing.FinancialsChanged(products[i], recalculated[i]) {
			changed = append(changed, recalculated[i])
		}
	}
	if len(changed) == 0 {
		metrics.CatalogRepriced(0)
		return nil
	}

	if err := s.repo.ReplaceProductFinancials(ctx, changed); err != nil {
		return fmt.Errorf("reprice catalog: %w", err)
	}

	ids := make([]string, 0, len(changed))
	for i := range products {
		if pricing.FinancialsChanged(products[i], recalculated[i]) {
			s.recordPriceChange(ctx, products[i], recalculated[i], domain.PriceChangeCostUpdate)
			ids = append(ids, products[i].ID)
		}
	}
	sort.Strings(ids)

	metrics.CatalogRepriced(len(changed))
	s.logger.Info("catalog repriced", zap.Int("products", len(products)), zap.Int("changed", len(changed)))
	s.afterWrite(ctx, domain.EventCatalogRepriced, ids)
	return nil
}

func (s *Service) recordPriceChange(ctx context.Context, before domain.Product, after domain.Product, reason string) {
	if before.PrecioVenta.Equal(after.PrecioVenta) && before.PrecioVentaMayorista.Equal(after.PrecioVentaMayorista) {
		return
	}

	actor, _ := ActorFromContext(ctx)
	if err := s.repo.CreatePriceHistory(ctx, domain.ProductPriceHistory{
		ID:                      xid.New("ph"),
		ProductID:               after.ID,
		OldPrecioVenta:          before.PrecioVenta,
		NewPrecioVenta:          after.PrecioVenta,
		OldPrecioVentaMayorista: before.PrecioVentaMayorista,
		NewPrecioVentaMayorista: after.PrecioVentaMayorista,
		Reason:                  reason,
		ChangedBy:               actor.Username,
		ChangedAt:               s.now(),
	}); err != nil {
		s.logger.Warn("failed to record price history", zap.String("product_id", after.ID), zap.Error(err))
	}
}
