package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"sorbo/backend/internal/domain"
	"sorbo/backend/internal/pricing"
	"sorbo/backend/internal/xid"
)

func (s *Service) view(p domain.Product) domain.ProductView {
	return domain.ProductView{Product: p, Status: s.thresholds.Status(p.Stock)}
}

func (s *Service) ListProducts(ctx context.Context) ([]domain.ProductView, error) {
	products, err := s.repo.ListProducts(ctx)
	if err != nil {
		return nil, err
	}
	views := make([]domain.ProductView, 0, len(products))
	for _, p := range products {
		views = append(views, s.view(p))
	}
	return views, nil
}

func (s *Service) GetProduct(ctx context.Context, id string) (domain.ProductView, error) {
	product, err := s.repo.GetProduct(ctx, id)
	if err != nil {
		return domain.ProductView{}, notFound(err, "product", id)
	}
	return s.view(*product), nil
}

func validateProductInputs(p domain.Product) error {
	if p.Nombre == "" {
		return invalid("nombre is required")
	}
	if !p.Tipo.Valid() {
		return invalid("unknown product type %q", p.Tipo)
	}
	if !p.PrecioCosto.IsPositive() {
		return invalid("precioCosto must be greater than 0")
	}
	if p.PorcentajeGanancia.IsNegative() || p.PorcentajeGananciaMayorista.IsNegative() {
		return invalid("margins cannot be negative")
	}
	if exceedsPlaces(p.PrecioCosto, moneyPlaces) {
		return invalid("precioCosto accepts at most %d decimal places", moneyPlaces)
	}
	if exceedsPlaces(p.PorcentajeGanancia, marginPlaces) || exceedsPlaces(p.PorcentajeGananciaMayorista, marginPlaces) {
		return invalid("margins accept at most %d decimal places", marginPlaces)
	}
	if p.Stock < 0 {
		return invalid("stock cannot be negative")
	}
	return nil
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.ProductView, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return domain.ProductView{}, err
	}
	s.catalogMu.Lock()
	defer s.catalogMu.Unlock()

	product := domain.Product{
		ID:                          xid.New("prd"),
		Nombre:                      strings.TrimSpace(req.Nombre),
		Tipo:                        req.Tipo,
		PrecioCosto:                 req.PrecioCosto,
		PorcentajeGanancia:          req.PorcentajeGanancia,
		PorcentajeGananciaMayorista: req.PorcentajeGananciaMayorista,
		Stock:                       req.Stock,
	}
	if err := validateProductInputs(product); err != nil {
		return domain.ProductView{}, err
	}

	costs, err := s.repo.ListCosts(ctx)
	if err != nil {
		return domain.ProductView{}, err
	}
	product = pricing.RecalculateProductFinancials(product, costs)

	created, err := s.repo.CreateProduct(ctx, product)
	if err != nil {
		return domain.ProductView{}, err
	}

	s.logAudit(ctx, "product_create", "product", created.ID, fmt.Sprintf("tipo=%s,precioVenta=%s,stock=%d", created.Tipo, created.PrecioVenta, created.Stock))
	s.afterWrite(ctx, domain.EventProductChanged, []string{created.ID})
	return s.view(*created), nil
}

func (s *Service) UpdateProduct(ctx context.Context, id string, req domain.ProductUpdateRequest) (domain.ProductView, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return domain.ProductView{}, err
	}
	s.catalogMu.Lock()
	defer s.catalogMu.Unlock()

	existing, err := s.repo.GetProduct(ctx, id)
	if err != nil {
		return domain.ProductView{}, notFound(err, "product", id)
	}

	updated := *existing
	if req.Nombre != nil {
		updated.Nombre = strings.TrimSpace(*req.Nombre)
	}
	if req.Tipo != nil {
		updated.Tipo = *req.Tipo
	}
	if req.PrecioCosto != nil {
		updated.PrecioCosto = *req.PrecioCosto
	}
	if req.PorcentajeGanancia != nil {
		updated.PorcentajeGanancia = *req.PorcentajeGanancia
	}
	if req.PorcentajeGananciaMayorista != nil {
		updated.PorcentajeGananciaMayorista = *req.PorcentajeGananciaMayorista
	}
	if req.Stock != nil {
		updated.Stock = *req.Stock
	}
	if err := validateProductInputs(updated); err != nil {
		return domain.ProductView{}, err
	}

	costs, err := s.repo.ListCosts(ctx)
	if err != nil {
		return domain.ProductView{}, err
	}
	updated = pricing.RecalculateProductFinancials(updated, costs)

	saved, err := s.repo.UpdateProduct(ctx, updated)
	if err != nil {
		return domain.ProductView{}, notFound(err, "product", id)
	}

	s.recordPriceChange(ctx, *existing, *saved, domain.PriceChangeProductUpdate)
	s.logAudit(ctx, "product_update", "product", saved.ID, fmt.Sprintf("precioVenta=%s,precioVentaMayorista=%s,stock=%d", saved.PrecioVenta, saved.PrecioVentaMayorista, saved.Stock))
	s.afterWrite(ctx, domain.EventProductChanged, []string{saved.ID})
	return s.view(*saved), nil
}

func (s *Service) DeleteProduct(ctx context.Context, id string) error {
	if _, err := requireAdmin(ctx); err != nil {
		return err
	}
	s.catalogMu.Lock()
	defer s.catalogMu.Unlock()

	if err := s.repo.DeleteProduct(ctx, id); err != nil {
		return notFound(err, "product", id)
	}

	s.logAudit(ctx, "product_delete", "product", id, "deleted")
	s.afterWrite(ctx, domain.EventProductChanged, []string{id})
	return nil
}

func (s *Service) ListProductPriceHistory(ctx context.Context, id string, limit int) ([]domain.ProductPriceHistory, error) {
	if _, err := s.repo.GetProduct(ctx, id); err != nil {
		return nil, notFound(err, "product", id)
	}
	if limit < 1 {
		limit = 50
	}
	return s.repo.ListPriceHistory(ctx, id, limit)
}

func (s *Service) StockSummary(ctx context.Context) (domain.StockSummary, error) {
	products, err := s.repo.ListProducts(ctx)
	if err != nil {
		return domain.StockSummary{}, err
	}
	return s.thresholds.Summarize(products), nil
}

// PreviewPrices returns what a product with these inputs would sell for
// under the current cost catalog, without saving anything.
func (s *Service) PreviewPrices(ctx context.Context, tipo domain.ProductType, precioCosto, margin, wholesaleMargin decimal.Decimal) (domain.Product, error) {
	if !tipo.Valid() {
		return domain.Product{}, invalid("unknown product type %q", tipo)
	}
	costs, err := s.repo.ListCosts(ctx)
	if err != nil {
		return domain.Product{}, err
	}
	return pricing.RecalculateProductFinancials(domain.Product{
		Tipo:                        tipo,
		PrecioCosto:                 precioCosto,
		PorcentajeGanancia:          margin,
		PorcentajeGananciaMayorista: wholesaleMargin,
	}, costs), nil
}
