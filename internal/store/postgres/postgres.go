package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"sorbo/backend/internal/domain"
	"sorbo/backend/internal/sales"
	"sorbo/backend/internal/store"
	"sorbo/backend/internal/xid"
)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

const costColumns = `id, nombre, tipo, valor, descripcion, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCost(row rowScanner) (domain.CostItem, error) {
	var c domain.CostItem
	if err := row.Scan(&c.ID, &c.Nombre, &c.Tipo, &c.Valor, &c.Descripcion, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return c, err
	}
	c.CreatedAt = c.CreatedAt.UTC()
	c.UpdatedAt = c.UpdatedAt.UTC()
	return c, nil
}

func (s *Store) ListCosts(ctx context.Context) ([]domain.CostItem, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+costColumns+` FROM cost_items ORDER BY tipo, nombre`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	costs := make([]domain.CostItem, 0, 32)
	for rows.Next() {
		c, err := scanCost(rows)
		if err != nil {
			return nil, err
		}
		costs = append(costs, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return costs, nil
}

func (s *Store) GetCost(ctx context.Context, id string) (*domain.CostItem, error) {
	c, err := scanCost(s.db.QueryRowContext(ctx, `SELECT `+costColumns+` FROM cost_items WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

func (s *Store) CreateCost(ctx context.Context, cost domain.CostItem) (*domain.CostItem, error) {
	if err := validateCost(cost); err != nil {
		return nil, err
	}
	if cost.ID == "" {
		cost.ID = xid.New("cost")
	}
	created, err := scanCost(s.db.QueryRowContext(ctx, `
		INSERT INTO cost_items (id, nombre, tipo, valor, descripcion, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,now(),now())
		RETURNING `+costColumns, cost.ID, cost.Nombre, cost.Tipo, cost.Valor, cost.Descripcion))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidInput
		}
		return nil, err
	}
	return &created, nil
}

func (s *Store) UpdateCost(ctx context.Context, cost domain.CostItem) (*domain.CostItem, error) {
	if err := validateCost(cost); err != nil {
		return nil, err
	}
	updated, err := scanCost(s.db.QueryRowContext(ctx, `
		UPDATE cost_items
		SET nombre = $2, tipo = $3, valor = $4, descripcion = $5, updated_at = now()
		WHERE id = $1
		RETURNING `+costColumns, cost.ID, cost.Nombre, cost.Tipo, cost.Valor, cost.Descripcion))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &updated, nil
}

func (s *Store) DeleteCost(ctx context.Context, id string) error {
	return execAffectingOne(ctx, s.db, `DELETE FROM cost_items WHERE id = $1`, id)
}

func validateCost(cost domain.CostItem) error {
	if strings.TrimSpace(cost.Nombre) == "" || !cost.Tipo.Valid() || cost.Valor.IsNegative() {
		return store.ErrInvalidInput
	}
	return nil
}

const productColumns = `id, nombre, tipo, precio_costo, porcentaje_ganancia, porcentaje_ganancia_mayorista,
	costos, precio_venta, precio_venta_mayorista, stock, sold_count, created_at, updated_at`

func scanProduct(row rowScanner) (domain.Product, error) {
	var p domain.Product
	err := row.Scan(
		&p.ID, &p.Nombre, &p.Tipo, &p.PrecioCosto, &p.PorcentajeGanancia, &p.PorcentajeGananciaMayorista,
		&p.Costos, &p.PrecioVenta, &p.PrecioVentaMayorista, &p.Stock, &p.SoldCount, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return p, err
	}
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	return p, nil
}

func (s *Store) ListProducts(ctx context.Context) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+productColumns+` FROM products ORDER BY tipo, nombre`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 128)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return products, nil
}

func (s *Store) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	p, err := scanProduct(s.db.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (s *Store) GetProductsByIDs(ctx context.Context, ids []string) (map[string]domain.Product, error) {
	result := make(map[string]domain.Product, len(ids))
	if len(ids) == 0 {
		return result, nil
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+productColumns+` FROM products WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		result[p.ID] = p
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if err := validateProduct(product); err != nil {
		return nil, err
	}
	if product.ID == "" {
		product.ID = xid.New("prd")
	}
	created, err := scanProduct(s.db.QueryRowContext(ctx, `
		INSERT INTO products (id, nombre, tipo, precio_costo, porcentaje_ganancia, porcentaje_ganancia_mayorista,
			costos, precio_venta, precio_venta_mayorista, stock, sold_count, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,now(),now())
		RETURNING `+productColumns,
		product.ID, product.Nombre, product.Tipo, product.PrecioCosto, product.PorcentajeGanancia, product.PorcentajeGananciaMayorista,
		product.Costos, product.PrecioVenta, product.PrecioVentaMayorista, product.Stock,
	))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidInput
		}
		return nil, err
	}
	return &created, nil
}

func (s *Store) UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if err := validateProduct(product); err != nil {
		return nil, err
	}
	updated, err := scanProduct(s.db.QueryRowContext(ctx, `
		UPDATE products
		SET nombre = $2, tipo = $3, precio_costo = $4, porcentaje_ganancia = $5, porcentaje_ganancia_mayorista = $6,
			costos = $7, precio_venta = $8, precio_venta_mayorista = $9, stock = $10, updated_at = now()
		WHERE id = $1
		RETURNING `+productColumns,
		product.ID, product.Nombre, product.Tipo, product.PrecioCosto, product.PorcentajeGanancia, product.PorcentajeGananciaMayorista,
		product.Costos, product.PrecioVenta, product.PrecioVentaMayorista, product.Stock, product.SoldCount,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &updated, nil
}

func (s *Store) DeleteProduct(ctx context.Context, id string) error {
	return execAffectingOne(ctx, s.db, `DELETE FROM products WHERE id = $1`, id)
}

func (s *Store) ReplaceProductFinancials(ctx context.Context, products []domain.Product) error {
	if len(products) == 0 {
		return nil
	}
	pgTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = pgTx.Rollback() }()

	for _, p := range products {
		err := execAffectingOne(ctx, pgTx, `
			UPDATE products
			SET costos = $2, precio_venta = $3, precio_venta_mayorista = $4, updated_at = now()
			WHERE id = $1
		`, p.ID, p.Costos, p.PrecioVenta, p.PrecioVentaMayorista)
		if err != nil {
			return fmt.Errorf("product %s: %w", p.ID, err)
		}
	}
	return pgTx.Commit()
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

const saleColumns = `id, fecha, items, total, es_mayorista, vendedor_id, created_at, updated_at`

func scanSale(row rowScanner) (domain.Sale, error) {
	var sale domain.Sale
	var items []byte
	if err := row.Scan(&sale.ID, &sale.Fecha, &items, &sale.Total, &sale.EsMayorista, &sale.VendedorID, &sale.CreatedAt, &sale.UpdatedAt); err != nil {
		return sale, err
	}
	if err := json.Unmarshal(items, &sale.Items); err != nil {
		return sale, fmt.Errorf("decode sale %s items: %w", sale.ID, err)
	}
	sale.Fecha = sale.Fecha.UTC()
	sale.CreatedAt = sale.CreatedAt.UTC()
	sale.UpdatedAt = sale.UpdatedAt.UTC()
	return sale, nil
}

func (s *Store) CreateSale(ctx context.Context, sale domain.Sale, deltas []domain.StockDelta) (*domain.Sale, error) {
	if len(sale.Items) == 0 {
		return nil, store.ErrInvalidInput
	}
	if sale.ID == "" {
		sale.ID = xid.New("sale")
	}
	if sale.Fecha.IsZero() {
		sale.Fecha = time.Now().UTC()
	}
	items, err := json.Marshal(sale.Items)
	if err != nil {
		return nil, err
	}

	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	if err := applyDeltas(ctx, pgTx, deltas); err != nil {
		return nil, err
	}
	created, err := scanSale(pgTx.QueryRowContext(ctx, `
		INSERT INTO sales (id, fecha, items, total, es_mayorista, vendedor_id, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,now(),now())
		RETURNING `+saleColumns, sale.ID, sale.Fecha, items, sale.Total, sale.EsMayorista, sale.VendedorID))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidInput
		}
		return nil, err
	}
	if err := pgTx.Commit(); err != nil {
		return nil, err
	}
	return &created, nil
}

func (s *Store) UpdateSale(ctx context.Context, sale domain.Sale, deltas []domain.StockDelta) (*domain.Sale, error) {
	if len(sale.Items) == 0 {
		return nil, store.ErrInvalidInput
	}
	items, err := json.Marshal(sale.Items)
	if err != nil {
		return nil, err
	}

	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	var exists bool
	if err := pgTx.QueryRowContext(ctx, `SELECT true FROM sales WHERE id = $1 FOR UPDATE`, sale.ID).Scan(&exists); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if err := applyDeltas(ctx, pgTx, deltas); err != nil {
		return nil, err
	}
	updated, err := scanSale(pgTx.QueryRowContext(ctx, `
		UPDATE sales
		SET items = $2, total = $3, es_mayorista = $4, updated_at = now()
		WHERE id = $1
		RETURNING `+saleColumns, sale.ID, items, sale.Total, sale.EsMayorista))
	if err != nil {
		return nil, err
	}
	if err := pgTx.Commit(); err != nil {
		return nil, err
	}
	return &updated, nil
}

func (s *Store) DeleteSale(ctx context.Context, id string) (*domain.Sale, error) {
	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	deleted, err := scanSale(pgTx.QueryRowContext(ctx, `DELETE FROM sales WHERE id = $1 RETURNING `+saleColumns, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if err := applyDeltas(ctx, pgTx, sales.ReversalDeltas(deleted.Items)); err != nil {
		return nil, err
	}
	if err := pgTx.Commit(); err != nil {
		return nil, err
	}
	return &deleted, nil
}

// applyDeltas relies on the conditional update: a row only changes when the
// resulting stock stays non-negative. Deltas that return stock to a product
// that no longer exists are ignored.
func applyDeltas(ctx context.Context, pgTx *sql.Tx, deltas []domain.StockDelta) error {
	for _, delta := range deltas {
		res, err := pgTx.ExecContext(ctx, `
			UPDATE products
			SET stock = stock + $2, sold_count = GREATEST(sold_count + $3, 0), updated_at = now()
			WHERE id = $1 AND stock + $2 >= 0
		`, delta.ProductID, delta.Stock, delta.Sold)
		if err != nil {
			return err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 1 {
			continue
		}

		var exists bool
		if err := pgTx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM products WHERE id = $1)`, delta.ProductID).Scan(&exists); err != nil {
			return err
		}
		switch {
		case exists:
			return fmt.Errorf("product %s: %w", delta.ProductID, store.ErrInsufficientStock)
		case delta.Stock < 0:
			return fmt.Errorf("product %s: %w", delta.ProductID, store.ErrNotFound)
		}
	}
	return nil
}

func (s *Store) GetSale(ctx context.Context, id string) (*domain.Sale, error) {
	sale, err := scanSale(s.db.QueryRowContext(ctx, `SELECT `+saleColumns+` FROM sales WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &sale, nil
}

func (s *Store) ListSales(ctx context.Context, filter domain.SaleFilter) ([]domain.Sale, error) {
	query := `SELECT ` + saleColumns + ` FROM sales WHERE 1=1`
	args := make([]any, 0, 3)
	if filter.From != nil {
		args = append(args, *filter.From)
		query += fmt.Sprintf(" AND fecha >= $%d", len(args))
	}
	if filter.To != nil {
		args = append(args, *filter.To)
		query += fmt.Sprintf(" AND fecha < $%d", len(args))
	}
	query += " ORDER BY fecha DESC, id DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.Sale, 0, 64)
	for rows.Next() {
		sale, err := scanSale(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, sale)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) CreatePriceHistory(ctx context.Context, entry domain.ProductPriceHistory) error {
	if entry.ID == "" {
		entry.ID = xid.New("ph")
	}
	if entry.ChangedAt.IsZero() {
		entry.ChangedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO product_price_history (id, product_id, old_precio_venta, new_precio_venta,
			old_precio_venta_mayorista, new_precio_venta_mayorista, reason, changed_by, changed_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, entry.ID, entry.ProductID, entry.OldPrecioVenta, entry.NewPrecioVenta,
		entry.OldPrecioVentaMayorista, entry.NewPrecioVentaMayorista, entry.Reason, entry.ChangedBy, entry.ChangedAt)
	return err
}

func (s *Store) ListPriceHistory(ctx context.Context, productID string, limit int) ([]domain.ProductPriceHistory, error) {
	if limit < 1 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, product_id, old_precio_venta, new_precio_venta, old_precio_venta_mayorista,
			new_precio_venta_mayorista, reason, changed_by, changed_at
		FROM product_price_history
		WHERE product_id = $1
		ORDER BY changed_at DESC, id DESC
		LIMIT $2
	`, productID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	history := make([]domain.ProductPriceHistory, 0, limit)
	for rows.Next() {
		var entry domain.ProductPriceHistory
		if err := rows.Scan(&entry.ID, &entry.ProductID, &entry.OldPrecioVenta, &entry.NewPrecioVenta,
			&entry.OldPrecioVentaMayorista, &entry.NewPrecioVentaMayorista, &entry.Reason, &entry.ChangedBy, &entry.ChangedAt); err != nil {
			return nil, err
		}
		entry.ChangedAt = entry.ChangedAt.UTC()
		history = append(history, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return history, nil
}

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, entry.ID, entry.ActorUsername, entry.ActorRole, entry.Action, entry.EntityType, entry.EntityID, entry.Detail, entry.CreatedAt)
	return err
}

func (s *Store) ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at
		FROM audit_logs
		WHERE created_at >= $1
			AND created_at < $2
		ORDER BY created_at DESC
		LIMIT $3
	`, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]domain.AuditLog, 0, limit)
	for rows.Next() {
		var entry domain.AuditLog
		if err := rows.Scan(&entry.ID, &entry.ActorUsername, &entry.ActorRole, &entry.Action, &entry.EntityType, &entry.EntityID, &entry.Detail, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entry.CreatedAt = entry.CreatedAt.UTC()
		logs = append(logs, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return logs, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	user.Username = strings.ToLower(strings.TrimSpace(user.Username))
	if user.Username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalidInput
	}
	if user.Role == "" {
		user.Role = domain.RoleSeller
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO app_users (username, password, role, active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,now())
	`, user.Username, user.Password, user.Role, user.Active, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrInvalidInput
		}
		return err
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password, role, active, created_at
		FROM app_users
		ORDER BY username ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		var user domain.UserAccount
		if err := rows.Scan(&user.Username, &user.Password, &user.Role, &user.Active, &user.CreatedAt); err != nil {
			return nil, err
		}
		user.CreatedAt = user.CreatedAt.UTC()
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidInput
	}
	return execAffectingOne(ctx, s.db, `
		UPDATE app_users
		SET password = $2, updated_at = now()
		WHERE username = $1
	`, username, password)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func execAffectingOne(ctx context.Context, db execer, query string, args ...any) error {
	res, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
