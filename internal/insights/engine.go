// Package insights builds the dashboard: stock health, best and worst
// sellers, and what the sales of a period earned against their frozen cost.
package insights

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"sorbo/backend/internal/cache"
	"sorbo/backend/internal/domain"
	"sorbo/backend/internal/stock"
)

const DefaultRankLimit = 5

// Loader fetches the catalog and the sales matching filter.
type Loader func(ctx context.Context, filter domain.SaleFilter) ([]domain.Product, []domain.Sale, error)

type Engine struct {
	cache      cache.DashboardCache
	cacheTTL   time.Duration
	thresholds stock.Thresholds
	rankLimit  int
	now        func() time.Time
}

func NewEngine(cacheStore cache.DashboardCache, cacheTTL time.Duration, thresholds stock.Thresholds) *Engine {
	if cacheStore == nil {
		cacheStore = cache.NoopDashboardCache{}
	}
	if cacheTTL <= 0 {
		cacheTTL = 30 * time.Second
	}

	return &Engine{
		cache:      cacheStore,
		cacheTTL:   cacheTTL,
		thresholds: thresholds.Normalize(),
		rankLimit:  DefaultRankLimit,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (e *Engine) Thresholds() stock.Thresholds {
	return e.thresholds
}

// Dashboard serves a cached dashboard for filter when one exists and
// otherwise builds it from load. Cache failures never fail the request.
func (e *Engine) Dashboard(ctx context.Context, filter domain.SaleFilter, load Loader) (*domain.Dashboard, error) {
	cacheKey := buildCacheKey(filter)
	if cached, ok, err := e.cache.Get(ctx, cacheKey); err == nil && ok {
		return cached, nil
	}

	products, sales, err := load(ctx, filter)
	if err != nil {
		return nil, err
	}
	dashboard := e.Build(products, sales)
	_ = e.cache.Set(ctx, cacheKey, &dashboard, e.cacheTTL)
	return &dashboard, nil
}

// Invalidate drops every cached dashboard. Called after any catalog or
// sale write.
func (e *Engine) Invalidate(ctx context.Context) error {
	return e.cache.Invalidate(ctx)
}

func (e *Engine) Build(products []domain.Product, sales []domain.Sale) domain.Dashboard {
	summary := SummarizeSales(sales)
	costOfSales := CostOfSales(sales)
	return domain.Dashboard{
		StockSummary: e.thresholds.Summarize(products),
		TopSelling:   e.rank(products, true),
		LeastSelling: e.rank(products, false),
		Sales:        summary,
		CostOfSales:  costOfSales,
		GrossProfit:  summary.Total.Sub(costOfSales),
		GeneratedAt:  e.now(),
	}
}

func (e *Engine) rank(products []domain.Product, top bool) []domain.ProductRank {
	sorted := make([]domain.Product, len(products))
	copy(sorted, products)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.SoldCount != b.SoldCount {
			if top {
				return a.SoldCount > b.SoldCount
			}
			return a.SoldCount < b.SoldCount
		}
		return a.Nombre < b.Nombre
	})
	if len(sorted) > e.rankLimit {
		sorted = sorted[:e.rankLimit]
	}

	ranks := make([]domain.ProductRank, 0, len(sorted))
	for _, p := range sorted {
		ranks = append(ranks, domain.ProductRank{
			ProductID: p.ID,
			Nombre:    p.Nombre,
			SoldCount: p.SoldCount,
			Stock:     p.Stock,
			Status:    e.thresholds.Status(p.Stock),
		})
	}
	return ranks
}

func SummarizeSales(sales []domain.Sale) domain.SalesSummary {
	summary := domain.SalesSummary{Total: decimal.Zero}
	for _, sale := range sales {
		summary.Count++
		summary.Total = summary.Total.Add(sale.Total)
		for _, item := range sale.Items {
			summary.Units += item.Cantidad
		}
	}
	summary.Total = summary.Total.Round(2)
	return summary
}

// CostOfSales sums (PrecioCosto + Costos) * Cantidad over every sold item,
// using the snapshot recorded when the item was sold.
func CostOfSales(sales []domain.Sale) decimal.Decimal {
	total := decimal.Zero
	for _, sale := range sales {
		for _, item := range sale.Items {
			unit := item.Snapshot.PrecioCosto.Add(item.Snapshot.Costos)
			total = total.Add(unit.Mul(decimal.NewFromInt(int64(item.Cantidad))))
		}
	}
	return total.Round(2)
}

func buildCacheKey(filter domain.SaleFilter) string {
	parts := []string{"all", "all"}
	if filter.From != nil {
		parts[0] = filter.From.UTC().Format(time.RFC3339)
	}
	if filter.To != nil {
		parts[1] = filter.To.UTC().Format(time.RFC3339)
	}
	parts = append(parts, fmt.Sprintf("l:%d", filter.Limit))

	hash := sha1.Sum([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(hash[:])
}
