package memory

import (
	"context"
	"fmt"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"sorbo/backend/internal/domain"
	"sorbo/backend/internal/pricing"
	"sorbo/backend/internal/sales"
	"sorbo/backend/internal/store"
	"sorbo/backend/internal/xid"
)

type Store struct {
	mu                    sync.RWMutex
	costs                 map[string]domain.CostItem
	products              map[string]domain.Product
	salesByID             map[string]domain.Sale
	drafts                map[string]domain.Draft
	priceHistoryByProduct map[string][]domain.ProductPriceHistory
	auditLogs             []domain.AuditLog
	usersByUsername       map[string]domain.UserAccount
}

func New() *Store {
	return &Store{
		costs:                 make(map[string]domain.CostItem),
		products:              make(map[string]domain.Product),
		salesByID:             make(map[string]domain.Sale),
		drafts:                make(map[string]domain.Draft),
		priceHistoryByProduct: make(map[string][]domain.ProductPriceHistory),
		auditLogs:             make([]domain.AuditLog, 0, 128),
		usersByUsername:       make(map[string]domain.UserAccount),
	}
}

// seedUsers hashes the demo accounts. Passwords come from SEED_ADMIN_PASSWORD
// and SEED_SELLER_PASSWORD, falling back to dev defaults.
func seedUsers() map[string]domain.UserAccount {
	logger := zap.L().With(zap.String("component", "memory-store"))
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_SELLER_PASSWORD") == "" {
		logger.Warn("using default dev credentials; set SEED_ADMIN_PASSWORD and SEED_SELLER_PASSWORD to override")
	}

	now := time.Now().UTC()
	seeds := []domain.UserAccount{
		{Username: "admin", Password: envOr("SEED_ADMIN_PASSWORD", "admin123"), Role: domain.RoleAdmin},
		{Username: "vendedor", Password: envOr("SEED_SELLER_PASSWORD", "seller123"), Role: domain.RoleSeller},
	}
	users := make(map[string]domain.UserAccount, len(seeds))
	for _, account := range seeds {
		hash, err := bcrypt.GenerateFromPassword([]byte(account.Password), bcrypt.DefaultCost)
		if err != nil {
			logger.Error("seed account skipped", zap.String("username", account.Username), zap.Error(err))
			continue
		}
		account.Password = string(hash)
		account.Active = true
		account.CreatedAt = now
		users[account.Username] = account
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// SeedCosts is the demo operating cost catalog.
func SeedCosts() []domain.CostItem {
	return []domain.CostItem{
		{ID: "cost-empaquetado", Nombre: "Empaquetado general", Tipo: domain.CostTypeGeneral, Valor: decimal.NewFromInt(120), Descripcion: "Bolsas, etiquetas y empaques estandar"},
		{ID: "cost-blends", Nombre: "Materia prima blends", Tipo: domain.CostTypeBlend, Valor: decimal.NewFromInt(220), Descripcion: "Mezclas especiales de hierbas"},
		{ID: "cost-cajas", Nombre: "Materia prima cajas", Tipo: domain.CostTypeCaja, Valor: decimal.NewFromInt(180), Descripcion: "Carton y diseno para presentaciones premium"},
		{ID: "cost-gin", Nombre: "Materia prima gin botanico", Tipo: domain.CostTypeGin, Valor: decimal.NewFromInt(350), Descripcion: "Botellas, corchos y botanicos para gin"},
		{ID: "cost-amortizacion", Nombre: "Amortizacion equipamiento", Tipo: domain.CostTypeAmortizable, Valor: decimal.NewFromInt(90), Descripcion: "Distribucion mensual del equipamiento clave"},
	}
}

// SeedProducts is the demo catalog with derived prices computed from costs.
func SeedProducts(costs []domain.CostItem) []domain.Product {
	type row struct {
		id, nombre         string
		tipo               domain.ProductType
		costo, pct, pctMay int64
		stock, sold        int
	}
	rows := []row{
		{"prd-blend-relajante", "Blend Relajante", domain.ProductTypeBlend, 450, 60, 40, 32, 156},
		{"prd-blend-adelgazante", "Blend Adelgazante", domain.ProductTypeBlend, 480, 65, 45, 18, 203},
		{"prd-blend-energizante", "Blend Energizante", domain.ProductTypeBlend, 420, 58, 38, 45, 189},
		{"prd-blend-desinflamante", "Blend Desinflamante", domain.ProductTypeBlend, 500, 62, 42, 12, 134},
		{"prd-blend-digestivo", "Blend Digestivo", domain.ProductTypeBlend, 460, 55, 35, 25, 178},
		{"prd-blend-acidez", "Blend para Acidez", domain.ProductTypeBlend, 440, 52, 32, 8, 112},
		{"prd-blend-detox", "Blend Detox", domain.ProductTypeBlend, 490, 63, 43, 15, 145},
		{"prd-caja-premium", "Caja Premium", domain.ProductTypeCaja, 310, 70, 50, 20, 97},
		{"prd-caja-regalo", "Caja Regalo", domain.ProductTypeCaja, 280, 68, 48, 10, 76},
		{"prd-gin-clasico", "Gin Botanico Clasico", domain.ProductTypeGin, 950, 45, 30, 6, 58},
		{"prd-gin-citrus", "Gin Botanico Citrus", domain.ProductTypeGin, 980, 48, 33, 8, 42},
		{"prd-gin-especial", "Gin Edicion Especial", domain.ProductTypeGin, 1100, 55, 40, 4, 25},
	}

	products := make([]domain.Product, 0, len(rows))
	for _, r := range rows {
		products = append(products, domain.Product{
			ID:                          r.id,
			Nombre:                      r.nombre,
			Tipo:                        r.tipo,
			PrecioCosto:                 decimal.NewFromInt(r.costo),
			PorcentajeGanancia:          decimal.NewFromInt(r.pct),
			PorcentajeGananciaMayorista: decimal.NewFromInt(r.pctMay),
			Stock:                       r.stock,
			SoldCount:                   r.sold,
		})
	}
	return pricing.RecalculateCatalog(products, costs)
}

func NewSeeded() *Store {
	s := New()
	now := time.Now().UTC()
	costs := SeedCosts()
	for _, c := range costs {
		c.CreatedAt, c.UpdatedAt = now, now
		s.costs[c.ID] = c
	}
	for _, p := range SeedProducts(costs) {
		p.CreatedAt, p.UpdatedAt = now, now
		s.products[p.ID] = p
	}
	s.usersByUsername = seedUsers()
	return s
}

func (s *Store) ListCosts(_ context.Context) ([]domain.CostItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	costs := make([]domain.CostItem, 0, len(s.costs))
	for _, c := range s.costs {
		costs = append(costs, c)
	}
	slices.SortFunc(costs, func(a, b domain.CostItem) int {
		if a.Tipo == b.Tipo {
			return cmpString(a.Nombre, b.Nombre)
		}
		return cmpString(string(a.Tipo), string(b.Tipo))
	})
	return costs, nil
}

func (s *Store) GetCost(_ context.Context, id string) (*domain.CostItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cost, ok := s.costs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &cost, nil
}

func (s *Store) CreateCost(_ context.Context, cost domain.CostItem) (*domain.CostItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := validateCost(cost); err != nil {
		return nil, err
	}
	if cost.ID == "" {
		cost.ID = xid.New("cost")
	}
	if _, exists := s.costs[cost.ID]; exists {
		return nil, store.ErrInvalidInput
	}
	now := time.Now().UTC()
	cost.CreatedAt, cost.UpdatedAt = now, now
	s.costs[cost.ID] = cost
	return &cost, nil
}

func (s *Store) UpdateCost(_ context.Context, cost domain.CostItem) (*domain.CostItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := validateCost(cost); err != nil {
		return nil, err
	}
	existing, ok := s.costs[cost.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	cost.CreatedAt = existing.CreatedAt
	cost.UpdatedAt = time.Now().UTC()
	s.costs[cost.ID] = cost
	return &cost, nil
}

func (s *Store) DeleteCost(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.costs[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.costs, id)
	return nil
}

func validateCost(cost domain.CostItem) error {
	if strings.TrimSpace(cost.Nombre) == "" || !cost.Tipo.Valid() || cost.Valor.IsNegative() {
		return store.ErrInvalidInput
	}
	return nil
}

func (s *Store) ListProducts(_ context.Context) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		products = append(products, p)
	}
	slices.SortFunc(products, func(a, b domain.Product) int {
		if a.Tipo == b.Tipo {
			return cmpString(a.Nombre, b.Nombre)
		}
		return cmpString(string(a.Tipo), string(b.Tipo))
	})
	return products, nil
}

func (s *Store) GetProduct(_ context.Context, id string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	product, ok := s.products[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &product, nil
}

func (s *Store) GetProductsByIDs(_ context.Context, ids []string) (map[string]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[string]domain.Product, len(ids))
	for _, id := range ids {
		if product, ok := s.products[id]; ok {
			result[id] = product
		}
	}
	return result, nil
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := validateProduct(product); err != nil {
		return nil, err
	}
	if product.ID == "" {
		product.ID = xid.New("prd")
	}
	if _, exists := s.products[product.ID]; exists {
		return nil, store.ErrInvalidInput
	}
	now := time.Now().UTC()
	product.CreatedAt, product.UpdatedAt = now, now
	s.products[product.ID] = product
	return &product, nil
}

func (s *Store) UpdateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := validateProduct(product); err != nil {
		return nil, err
	}
	existing, ok := s.products[product.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	product.CreatedAt = existing.CreatedAt
	product.SoldCount = existing.SoldCount
	product.UpdatedAt = time.Now().UTC()
	s.products[product.ID] = product
	return &product, nil
}

func (s *Store) DeleteProduct(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.products[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.products, id)
	delete(s.priceHistoryByProduct, id)
	return nil
}

func (s *Store) ReplaceProductFinancials(_ context.Context, products []domain.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Check every id first so a missing product leaves the catalog untouched.
	for _, p := range products {
		if _, ok := s.products[p.ID]; !ok {
			return fmt.Errorf("product %s: %w", p.ID, store.ErrNotFound)
		}
	}
	now := time.Now().UTC()
	for _, p := range products {
		current := s.products[p.ID]
		current.Costos = p.Costos
		current.PrecioVenta = p.PrecioVenta
		current.PrecioVentaMayorista = p.PrecioVentaMayorista
		current.UpdatedAt = now
		s.products[p.ID] = current
	}
	return nil
}

func validateProduct(p domain.Product) error {
	if strings.TrimSpace(p.Nombre) == "" || !p.Tipo.Valid() {
		return store.ErrInvalidInput
	}
	if p.PrecioCosto.IsNegative() || p.PorcentajeGanancia.IsNegative() || p.PorcentajeGananciaMayorista.IsNegative() {
		return store.ErrInvalidInput
	}
	if p.Stock < 0 || p.SoldCount < 0 {
		return store.ErrInvalidInput
	}
	return nil
}

func (s *Store) CreateSale(_ context.Context, sale domain.Sale, deltas []domain.StockDelta) (*domain.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(sale.Items) == 0 {
		return nil, store.ErrInvalidInput
	}
	if sale.ID == "" {
		sale.ID = xid.New("sale")
	}
	if _, exists := s.salesByID[sale.ID]; exists {
		return nil, store.ErrInvalidInput
	}
	if err := s.applyDeltasLocked(deltas); err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	if sale.Fecha.IsZero() {
		sale.Fecha = now
	}
	sale.CreatedAt, sale.UpdatedAt = now, now
	sale = cloneSale(sale)
	s.salesByID[sale.ID] = sale
	created := cloneSale(sale)
	return &created, nil
}

func (s *Store) UpdateSale(_ context.Context, sale domain.Sale, deltas []domain.StockDelta) (*domain.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(sale.Items) == 0 {
		return nil, store.ErrInvalidInput
	}
	existing, ok := s.salesByID[sale.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if err := s.applyDeltasLocked(deltas); err != nil {
		return nil, err
	}
	sale.Fecha = existing.Fecha
	sale.VendedorID = existing.VendedorID
	sale.CreatedAt = existing.CreatedAt
	sale.UpdatedAt = time.Now().UTC()
	sale = cloneSale(sale)
	s.salesByID[sale.ID] = sale
	updated := cloneSale(sale)
	return &updated, nil
}

func (s *Store) DeleteSale(_ context.Context, id string) (*domain.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.salesByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if err := s.applyDeltasLocked(sales.ReversalDeltas(existing.Items)); err != nil {
		return nil, err
	}
	delete(s.salesByID, id)
	deleted := cloneSale(existing)
	return &deleted, nil
}

// applyDeltasLocked checks every delta before mutating anything. Products
// that no longer exist only accept deltas that return stock, which are
// dropped.
func (s *Store) applyDeltasLocked(deltas []domain.StockDelta) error {
	for _, delta := range deltas {
		product, ok := s.products[delta.ProductID]
		if !ok {
			if delta.Stock < 0 {
				return fmt.Errorf("product %s: %w", delta.ProductID, store.ErrNotFound)
			}
			continue
		}
		if product.Stock+delta.Stock < 0 {
			return fmt.Errorf("product %s: %w", delta.ProductID, store.ErrInsufficientStock)
		}
	}
	now := time.Now().UTC()
	for _, delta := range deltas {
		product, ok := s.products[delta.ProductID]
		if !ok {
			continue
		}
		product.Stock += delta.Stock
		product.SoldCount = max(0, product.SoldCount+delta.Sold)
		product.UpdatedAt = now
		s.products[delta.ProductID] = product
	}
	return nil
}

func (s *Store) GetSale(_ context.Context, id string) (*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sale, ok := s.salesByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	dup := cloneSale(sale)
	return &dup, nil
}

func (s *Store) ListSales(_ context.Context, filter domain.SaleFilter) ([]domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Sale, 0, len(s.salesByID))
	for _, sale := range s.salesByID {
		if filter.From != nil && sale.Fecha.Before(*filter.From) {
			continue
		}
		if filter.To != nil && !sale.Fecha.Before(*filter.To) {
			continue
		}
		result = append(result, cloneSale(sale))
	}
	slices.SortFunc(result, func(a, b domain.Sale) int {
		if a.Fecha.Equal(b.Fecha) {
			return cmpString(b.ID, a.ID)
		}
		if a.Fecha.After(b.Fecha) {
			return -1
		}
		return 1
	})
	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}

func (s *Store) CreatePriceHistory(_ context.Context, entry domain.ProductPriceHistory) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = xid.New("ph")
	}
	if entry.ChangedAt.IsZero() {
		entry.ChangedAt = time.Now().UTC()
	}
	s.priceHistoryByProduct[entry.ProductID] = append(s.priceHistoryByProduct[entry.ProductID], entry)
	return nil
}

func (s *Store) ListPriceHistory(_ context.Context, productID string, limit int) ([]domain.ProductPriceHistory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history := s.priceHistoryByProduct[productID]
	if len(history) == 0 {
		return []domain.ProductPriceHistory{}, nil
	}

	result := make([]domain.ProductPriceHistory, len(history))
	copy(result, history)
	slices.SortFunc(result, func(a, b domain.ProductPriceHistory) int {
		if a.ChangedAt.Equal(b.ChangedAt) {
			return cmpString(b.ID, a.ID)
		}
		if a.ChangedAt.After(b.ChangedAt) {
			return -1
		}
		return 1
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.auditLogs = append(s.auditLogs, entry)
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.AuditLog, 0, 64)
	for _, entry := range s.auditLogs {
		if entry.CreatedAt.Before(from) || !entry.CreatedAt.Before(to) {
			continue
		}
		result = append(result, entry)
	}

	slices.SortFunc(result, func(a, b domain.AuditLog) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return cmpString(b.ID, a.ID)
		}
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		return 1
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalidInput
	}
	if _, exists := s.usersByUsername[username]; exists {
		return store.ErrInvalidInput
	}
	user.Username = username
	if user.Role == "" {
		user.Role = domain.RoleSeller
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	user.Active = true
	s.usersByUsername[user.Username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, user := range s.usersByUsername {
		users = append(users, user)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return cmpString(a.Username, b.Username)
	})
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidInput
	}
	user, exists := s.usersByUsername[username]
	if !exists {
		return store.ErrNotFound
	}
	user.Password = password
	s.usersByUsername[username] = user
	return nil
}

func (s *Store) SaveDraft(_ context.Context, draft domain.Draft) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if draft.ID == "" {
		draft.ID = xid.New("draft")
	}
	if draft.Fecha.IsZero() {
		draft.Fecha = time.Now().UTC()
	}
	s.drafts[draft.ID] = cloneDraft(draft)
	return nil
}

func (s *Store) ListDrafts(_ context.Context) ([]domain.Draft, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	drafts := make([]domain.Draft, 0, len(s.drafts))
	for _, draft := range s.drafts {
		drafts = append(drafts, cloneDraft(draft))
	}
	store.SortDrafts(drafts)
	return drafts, nil
}

func (s *Store) GetDraft(_ context.Context, id string) (*domain.Draft, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	draft, ok := s.drafts[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	dup := cloneDraft(draft)
	return &dup, nil
}

func (s *Store) DeleteDraft(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.drafts[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.drafts, id)
	return nil
}

func (s *Store) ClearDrafts(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.drafts = make(map[string]domain.Draft)
	return nil
}

func cmpString(a string, b string) int {
	if a == b {
		return 0
	}
	if a < b {
		return -1
	}
	return 1
}

func cloneSale(src domain.Sale) domain.Sale {
	dup := src
	dup.Items = make([]domain.SaleItem, len(src.Items))
	for i, item := range src.Items {
		if item.Snapshot.PorcentajeGananciaMayorista != nil {
			margin := *item.Snapshot.PorcentajeGananciaMayorista
			item.Snapshot.PorcentajeGananciaMayorista = &margin
		}
		dup.Items[i] = item
	}
	return dup
}

func cloneDraft(src domain.Draft) domain.Draft {
	dup := src
	dup.SaleData.Items = make([]domain.DraftItem, len(src.SaleData.Items))
	copy(dup.SaleData.Items, src.SaleData.Items)
	return dup
}
