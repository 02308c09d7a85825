package store

import (
	"context"
	"errors"
	"slices"
	"strings"
	"time"

	"sorbo/backend/internal/domain"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrInvalidInput      = errors.New("invalid input")
)

// Repository persists the catalog, sales and their supporting records.
//
// CreateSale, UpdateSale and DeleteSale apply the sale write and every
// stock delta atomically: either all of them land or none does. A delta
// that would take stock below zero fails the whole write with
// ErrInsufficientStock. soldCount never goes below zero.
type Repository interface {
	ListCosts(ctx context.Context) ([]domain.CostItem, error)
	GetCost(ctx context.Context, id string) (*domain.CostItem, error)
	CreateCost(ctx context.Context, cost domain.CostItem) (*domain.CostItem, error)
	UpdateCost(ctx context.Context, cost domain.CostItem) (*domain.CostItem, error)
	DeleteCost(ctx context.Context, id string) error

	ListProducts(ctx context.Context) ([]domain.Product, error)
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
	GetProductsByIDs(ctx context.Context, ids []string) (map[string]domain.Product, error)
	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	DeleteProduct(ctx context.Context, id string) error
	// ReplaceProductFinancials overwrites only Costos, PrecioVenta and
	// PrecioVentaMayorista of the given products, in one write.
	ReplaceProductFinancials(ctx context.Context, products []domain.Product) error

	CreateSale(ctx context.Context, sale domain.Sale, deltas []domain.StockDelta) (*domain.Sale, error)
	UpdateSale(ctx context.Context, sale domain.Sale, deltas []domain.StockDelta) (*domain.Sale, error)
	// DeleteSale removes the sale and returns its items to stock.
	DeleteSale(ctx context.Context, id string) (*domain.Sale, error)
	GetSale(ctx context.Context, id string) (*domain.Sale, error)
	ListSales(ctx context.Context, filter domain.SaleFilter) ([]domain.Sale, error)

	CreatePriceHistory(ctx context.Context, entry domain.ProductPriceHistory) error
	ListPriceHistory(ctx context.Context, productID string, limit int) ([]domain.ProductPriceHistory, error)
	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error)

	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}

// DraftStore keeps sales that could not be committed.
type DraftStore interface {
	SaveDraft(ctx context.Context, draft domain.Draft) error
	ListDrafts(ctx context.Context) ([]domain.Draft, error)
	GetDraft(ctx context.Context, id string) (*domain.Draft, error)
	DeleteDraft(ctx context.Context, id string) error
	ClearDrafts(ctx context.Context) error
}

// SortDrafts orders drafts newest first, ties broken by id descending.
func SortDrafts(drafts []domain.Draft) {
	slices.SortFunc(drafts, func(a, b domain.Draft) int {
		if c := b.Fecha.Compare(a.Fecha); c != 0 {
			return c
		}
		return strings.Compare(b.ID, a.ID)
	})
}
