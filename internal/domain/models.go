package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type ProductType string

const (
	ProductTypeBlend ProductType = "blend"
	ProductTypeCaja  ProductType = "caja"
	ProductTypeGin   ProductType = "gin"
)

var ProductTypes = []ProductType{ProductTypeBlend, ProductTypeCaja, ProductTypeGin}

func (t ProductType) Valid() bool {
	switch t {
	case ProductTypeBlend, ProductTypeCaja, ProductTypeGin:
		return true
	}
	return false
}

// CostType is either a product type or one of the catalog-wide kinds.
type CostType string

const (
	CostTypeGeneral     CostType = "general"
	CostTypeAmortizable CostType = "amortizable"
	CostTypeBlend       CostType = CostType(ProductTypeBlend)
	CostTypeCaja        CostType = CostType(ProductTypeCaja)
	CostTypeGin         CostType = CostType(ProductTypeGin)
)

func (t CostType) Valid() bool {
	switch t {
	case CostTypeGeneral, CostTypeAmortizable, CostTypeBlend, CostTypeCaja, CostTypeGin:
		return true
	}
	return false
}

// AppliesTo reports whether a cost of this type is charged to products of type pt.
func (t CostType) AppliesTo(pt ProductType) bool {
	return t == CostTypeGeneral || t == CostTypeAmortizable || t == CostType(pt)
}

type CostItem struct {
	ID          string          `json:"id"`
	Nombre      string          `json:"nombre"`
	Tipo        CostType        `json:"tipo"`
	Valor       decimal.Decimal `json:"valor"`
	Descripcion string          `json:"descripcion,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

type CostCreateRequest struct {
	Nombre      string          `json:"nombre" binding:"required,min=2,max=120"`
	Tipo        CostType        `json:"tipo" binding:"required,oneof=general blend caja gin amortizable"`
	Valor       decimal.Decimal `json:"valor"`
	Descripcion string          `json:"descripcion" binding:"max=500"`
}

type CostUpdateRequest struct {
	Nombre      *string          `json:"nombre,omitempty" binding:"omitempty,min=2,max=120"`
	Tipo        *CostType        `json:"tipo,omitempty" binding:"omitempty,oneof=general blend caja gin amortizable"`
	Valor       *decimal.Decimal `json:"valor,omitempty"`
	Descripcion *string          `json:"descripcion,omitempty" binding:"omitempty,max=500"`
}

// Product holds the operator inputs plus the derived financial fields
// (Costos, PrecioVenta, PrecioVentaMayorista). Derived fields are only ever
// written by the pricing package.
type Product struct {
	ID                          string          `json:"id"`
	Nombre                      string          `json:"nombre"`
	Tipo                        ProductType     `json:"tipo"`
	PrecioCosto                 decimal.Decimal `json:"precioCosto"`
	PorcentajeGanancia          decimal.Decimal `json:"porcentajeGanancia"`
	PorcentajeGananciaMayorista decimal.Decimal `json:"porcentajeGananciaMayorista"`
	Costos                      decimal.Decimal `json:"costos"`
	PrecioVenta                 decimal.Decimal `json:"precioVenta"`
	PrecioVentaMayorista        decimal.Decimal `json:"precioVentaMayorista"`
	Stock                       int             `json:"stock"`
	SoldCount                   int             `json:"soldCount"`
	CreatedAt                   time.Time       `json:"createdAt"`
	UpdatedAt                   time.Time       `json:"updatedAt"`
}

// HasWholesale reports whether a wholesale margin is configured.
func (p Product) HasWholesale() bool {
	return p.PorcentajeGananciaMayorista.GreaterThan(decimal.Zero)
}

type ProductCreateRequest struct {
	Nombre                      string          `json:"nombre" binding:"required,min=2,max=120"`
	Tipo                        ProductType     `json:"tipo" binding:"required,oneof=blend caja gin"`
	PrecioCosto                 decimal.Decimal `json:"precioCosto"`
	PorcentajeGanancia          decimal.Decimal `json:"porcentajeGanancia"`
	PorcentajeGananciaMayorista decimal.Decimal `json:"porcentajeGananciaMayorista"`
	Stock                       int             `json:"stock" binding:"gte=0"`
}

type ProductUpdateRequest struct {
	Nombre                      *string          `json:"nombre,omitempty" binding:"omitempty,min=2,max=120"`
	Tipo                        *ProductType     `json:"tipo,omitempty" binding:"omitempty,oneof=blend caja gin"`
	PrecioCosto                 *decimal.Decimal `json:"precioCosto,omitempty"`
	PorcentajeGanancia          *decimal.Decimal `json:"porcentajeGanancia,omitempty"`
	PorcentajeGananciaMayorista *decimal.Decimal `json:"porcentajeGananciaMayorista,omitempty"`
	Stock                       *int             `json:"stock,omitempty" binding:"omitempty,gte=0"`
}

// ProductView is a product enriched with its stock classification.
type ProductView struct {
	Product
	Status StockStatus `json:"status"`
}

type ProductPriceHistory struct {
	ID                      string          `json:"id"`
	ProductID               string          `json:"productId"`
	OldPrecioVenta          decimal.Decimal `json:"oldPrecioVenta"`
	NewPrecioVenta          decimal.Decimal `json:"newPrecioVenta"`
	OldPrecioVentaMayorista decimal.Decimal `json:"oldPrecioVentaMayorista"`
	NewPrecioVentaMayorista decimal.Decimal `json:"newPrecioVentaMayorista"`
	Reason                  string          `json:"reason"`
	ChangedBy               string          `json:"changedBy"`
	ChangedAt               time.Time       `json:"changedAt"`
}

const (
	PriceChangeProductUpdate = "product_update"
	PriceChangeCostUpdate    = "cost_update"
)

type StockStatus string

const (
	StockGood StockStatus = "good"
	StockLow  StockStatus = "low"
	StockOut  StockStatus = "out"
)

type StockSummary struct {
	Total          int `json:"total"`
	Good           int `json:"good"`
	Low            int `json:"low"`
	Out            int `json:"out"`
	GoodPercentage int `json:"goodPercentage"`
	LowPercentage  int `json:"lowPercentage"`
	OutPercentage  int `json:"outPercentage"`
}

// SaleSnapshot freezes the financial basis of a sold line.
type SaleSnapshot struct {
	PrecioCosto                 decimal.Decimal  `json:"precioCosto"`
	Costos                      decimal.Decimal  `json:"costos"`
	PorcentajeGanancia          decimal.Decimal  `json:"porcentajeGanancia"`
	PrecioVenta                 decimal.Decimal  `json:"precioVenta"`
	PorcentajeGananciaMayorista *decimal.Decimal `json:"porcentajeGananciaMayorista,omitempty"`
}

type SaleItem struct {
	ProductID      string          `json:"productId"`
	ProductNombre  string          `json:"productNombre"`
	Cantidad       int             `json:"cantidad"`
	PrecioUnitario decimal.Decimal `json:"precioUnitario"`
	Snapshot       SaleSnapshot    `json:"snapshot"`
}

type Sale struct {
	ID          string          `json:"id"`
	Fecha       time.Time       `json:"fecha"`
	Items       []SaleItem      `json:"items"`
	Total       decimal.Decimal `json:"total"`
	EsMayorista bool            `json:"esMayorista"`
	VendedorID  string          `json:"vendedorId,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

// SaleLine is one operator-entered row of a sale being built or edited.
type SaleLine struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

type SaleRequest struct {
	Items       []SaleLine `json:"items" binding:"required,min=1"`
	EsMayorista bool       `json:"esMayorista"`
}

type SaleFilter struct {
	From  *time.Time
	To    *time.Time
	Limit int
}

type SaleValidationResponse struct {
	Valid    bool            `json:"valid"`
	Errors   map[int]string  `json:"errors,omitempty"`
	MaxStock []int           `json:"maxStock"`
	Total    decimal.Decimal `json:"total"`
}

type SalesSummary struct {
	Count int             `json:"count"`
	Total decimal.Decimal `json:"total"`
	Units int             `json:"units"`
}

// StockDelta is a stock and soldCount mutation for one product; negative
// Stock decrements stock, negative Sold decrements soldCount.
type StockDelta struct {
	ProductID string
	Stock     int
	Sold      int
}

type DraftItem struct {
	ProductID      string          `json:"productId"`
	ProductNombre  string          `json:"productNombre"`
	Quantity       int             `json:"quantity"`
	PrecioUnitario decimal.Decimal `json:"precioUnitario"`
}

type DraftSaleData struct {
	Items       []DraftItem     `json:"items"`
	EsMayorista bool            `json:"esMayorista"`
	Total       decimal.Decimal `json:"total"`
}

// Draft is a sale that failed to commit, kept so the operator can resume it.
// SaleID is set when the draft is a pending edit of that committed sale.
type Draft struct {
	ID       string        `json:"id"`
	Fecha    time.Time     `json:"fecha"`
	SaleID   string        `json:"saleId,omitempty"`
	SaleData DraftSaleData `json:"saleData"`
}

// Dashboard aggregates the catalog and the sales of a period. CostOfSales is
// taken from the snapshots frozen on each sale item.
type Dashboard struct {
	StockSummary StockSummary    `json:"stockSummary"`
	TopSelling   []ProductRank   `json:"topSelling"`
	LeastSelling []ProductRank   `json:"leastSelling"`
	Sales        SalesSummary    `json:"sales"`
	CostOfSales  decimal.Decimal `json:"costOfSales"`
	GrossProfit  decimal.Decimal `json:"grossProfit"`
	GeneratedAt  time.Time       `json:"generatedAt"`
}

type ProductRank struct {
	ProductID string      `json:"productId"`
	Nombre    string      `json:"nombre"`
	SoldCount int         `json:"soldCount"`
	Stock     int         `json:"stock"`
	Status    StockStatus `json:"status"`
}

// StockEvent is published whenever stock or derived prices change.
type StockEvent struct {
	Type       string       `json:"type"`
	ProductIDs []string     `json:"productIds,omitempty"`
	Summary    StockSummary `json:"summary"`
	At         time.Time    `json:"at"`
}

const (
	EventSnapshot        = "snapshot"
	EventSaleCreated     = "sale_created"
	EventSaleUpdated     = "sale_updated"
	EventSaleDeleted     = "sale_deleted"
	EventCatalogRepriced = "catalog_repriced"
	EventProductChanged  = "product_changed"
)

type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

const (
	RoleAdmin  = "admin"
	RoleSeller = "seller"
)

type Actor struct {
	Username string
	Role     string
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	Username  string
	Password  string
	Role      string
	Active    bool
	CreatedAt time.Time
}

type AuditLog struct {
	ID            string    `json:"id"`
	ActorUsername string    `json:"actor_username"`
	ActorRole     string    `json:"actor_role"`
	Action        string    `json:"action"`
	EntityType    string    `json:"entity_type"`
	EntityID      string    `json:"entity_id"`
	Detail        string    `json:"detail"`
	CreatedAt     time.Time `json:"created_at"`
}

type SellerCreateRequest struct {
	Username string `json:"username" binding:"required,min=4,max=40"`
	Password string `json:"password" binding:"required,min=6"`
}

type SellerUser struct {
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}
