package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sorbo/backend/internal/domain"
	"sorbo/backend/internal/events"
	"sorbo/backend/internal/service"
	"sorbo/backend/internal/store"
	"sorbo/backend/internal/store/memory"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// failingSales makes every sale write return err.
type failingSales struct {
	*memory.Store
	err error
}

func (f failingSales) CreateSale(context.Context, domain.Sale, []domain.StockDelta) (*domain.Sale, error) {
	return nil, f.err
}

type testEnv struct {
	api     *API
	handler http.Handler
	repo    *memory.Store
	hub     *events.Hub
}

func newTestEnv(t *testing.T, wrap func(*memory.Store) store.Repository) testEnv {
	t.Helper()

	base := memory.NewSeeded()
	var repo store.Repository = base
	if wrap != nil {
		repo = wrap(base)
	}
	hub := events.NewHub()
	svc := service.New(repo, base, nil, service.WithEvents(hub))
	auth := NewAuthManager(context.Background(), "test-secret-key-with-32-characters", time.Hour, base)
	api := New(svc, auth, "*", WithEvents(hub))
	return testEnv{api: api, handler: api.Handler(), repo: base, hub: hub}
}

func (e testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		payload, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func (e testEnv) login(t *testing.T, username, password string) string {
	t.Helper()

	rec := e.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{"username": username, "password": password})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp domain.LoginResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.AccessToken)
	return resp.AccessToken
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body
}

func TestHealthAndSecurityHeaders(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodGet, "/healthz", "", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decodeBody(t, rec)["ok"])
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestLoginFailuresAndRateLimit(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{"username": "admin", "password": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/v1/auth/login", "", `{"username":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	for i := 0; i < 3; i++ {
		env.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{"username": "admin", "password": "wrong"})
	}
	rec = env.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{"username": "admin", "password": "admin123"})
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestProductsRequireAuthAndCarryStatus(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodGet, "/api/v1/products", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/v1/products", "not-a-token", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	token := env.login(t, "vendedor", "seller123")
	rec = env.do(t, http.MethodGet, "/api/v1/products?status=low", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Items []domain.ProductView `json:"items"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	// Seeded stock below 10: acidez 8, gin clasico 6, gin citrus 8, gin especial 4.
	assert.Len(t, body.Items, 4)
	for _, p := range body.Items {
		assert.Equal(t, domain.StockLow, p.Status)
	}
}

func TestCostWritesAreAdminOnlyAndReprice(t *testing.T) {
	env := newTestEnv(t, nil)
	seller := env.login(t, "vendedor", "seller123")
	admin := env.login(t, "admin", "admin123")
	cost := map[string]any{"nombre": "Alquiler", "tipo": "general", "valor": 100}

	rec := env.do(t, http.MethodPost, "/api/v1/costs", seller, cost)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/v1/costs", admin, map[string]any{"nombre": "Alquiler", "tipo": "alquiler", "valor": 100})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/v1/costs", admin, map[string]any{"nombre": "Alquiler", "tipo": "general", "valor": 0})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/v1/costs", admin, cost)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = env.do(t, http.MethodGet, "/api/v1/products/prd-blend-relajante", seller, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var product domain.ProductView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &product))
	assert.Equal(t, "1568", product.PrecioVenta.String())

	rec = env.do(t, http.MethodDelete, "/api/v1/costs/missing", admin, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSaleValidationErrorsAreReportedPerLine(t *testing.T) {
	env := newTestEnv(t, nil)
	token := env.login(t, "vendedor", "seller123")

	rec := env.do(t, http.MethodPost, "/api/v1/sales", token, domain.SaleRequest{Items: []domain.SaleLine{
		{ProductID: "prd-gin-especial", Quantity: 5},
		{ProductID: "prd-caja-regalo", Quantity: 0},
	}})

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, map[string]any{
		"0": "total quantity exceeds available stock (4)",
		"1": "quantity must be greater than 0",
	}, body["errors"])
	assert.Equal(t, []any{float64(4), float64(10)}, body["max_stock"])

	rec = env.do(t, http.MethodPost, "/api/v1/sales", token, `{"items": []}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSaleLifecycleOverHTTP(t *testing.T) {
	env := newTestEnv(t, nil)
	token := env.login(t, "vendedor", "seller123")

	rec := env.do(t, http.MethodPost, "/api/v1/sales/validate", token, domain.SaleRequest{Items: []domain.SaleLine{{ProductID: "prd-caja-regalo", Quantity: 2}}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decodeBody(t, rec)["valid"])

	rec = env.do(t, http.MethodPost, "/api/v1/sales", token, domain.SaleRequest{Items: []domain.SaleLine{{ProductID: "prd-caja-regalo", Quantity: 2}}})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var sale domain.Sale
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sale))
	assert.Equal(t, "vendedor", sale.VendedorID)

	rec = env.do(t, http.MethodPatch, "/api/v1/sales/"+sale.ID, token, domain.SaleRequest{Items: []domain.SaleLine{{ProductID: "prd-caja-regalo", Quantity: 5}}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	caja, _ := env.repo.GetProduct(context.Background(), "prd-caja-regalo")
	assert.Equal(t, 5, caja.Stock)

	rec = env.do(t, http.MethodGet, "/api/v1/sales/"+sale.ID+"/receipt.pdf", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("%PDF-")))

	rec = env.do(t, http.MethodGet, "/api/v1/sales/summary", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(5), decodeBody(t, rec)["units"])

	rec = env.do(t, http.MethodDelete, "/api/v1/sales/"+sale.ID, token, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	caja, _ = env.repo.GetProduct(context.Background(), "prd-caja-regalo")
	assert.Equal(t, 10, caja.Stock)

	rec = env.do(t, http.MethodGet, "/api/v1/sales/"+sale.ID, token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/v1/sales?from=yesterday", token, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCommitFailureReturnsDraftID(t *testing.T) {
	env := newTestEnv(t, func(base *memory.Store) store.Repository {
		return failingSales{Store: base, err: errors.New("connection reset")}
	})
	token := env.login(t, "vendedor", "seller123")

	rec := env.do(t, http.MethodPost, "/api/v1/sales", token, domain.SaleRequest{Items: []domain.SaleLine{{ProductID: "prd-caja-regalo", Quantity: 1}}})

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	body := decodeBody(t, rec)
	assert.NotContains(t, body["error"], "connection reset")
	draftID, _ := body["draft_id"].(string)
	require.NotEmpty(t, draftID)

	rec = env.do(t, http.MethodGet, "/api/v1/drafts", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), draftID)

	rec = env.do(t, http.MethodDelete, "/api/v1/drafts/"+draftID, token, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = env.do(t, http.MethodGet, "/api/v1/drafts/"+draftID, token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCommitRaceReturnsConflict(t *testing.T) {
	env := newTestEnv(t, func(base *memory.Store) store.Repository {
		return failingSales{Store: base, err: store.ErrInsufficientStock}
	})
	token := env.login(t, "vendedor", "seller123")

	rec := env.do(t, http.MethodPost, "/api/v1/sales", token, domain.SaleRequest{Items: []domain.SaleLine{{ProductID: "prd-caja-regalo", Quantity: 1}}})

	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "insufficient stock", decodeBody(t, rec)["error"])
}

func TestOversizedBodyIsRejected(t *testing.T) {
	env := newTestEnv(t, nil)
	token := env.login(t, "admin", "admin123")
	huge := fmt.Sprintf(`{"nombre":"%s","tipo":"general","valor":1}`, strings.Repeat("x", maxBodyBytes))

	rec := env.do(t, http.MethodPost, "/api/v1/costs", token, huge)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAuditLogsAreAdminOnly(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodGet, "/api/v1/audit-logs", env.login(t, "vendedor", "seller123"), nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/v1/audit-logs", env.login(t, "admin", "admin123"), nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestStatusFromError(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{&service.ValidationError{General: "bad"}, http.StatusUnprocessableEntity},
		{&service.NotFoundError{Entity: "sale", ID: "x"}, http.StatusNotFound},
		{&service.CommitError{Op: "create", Err: store.ErrInsufficientStock}, http.StatusConflict},
		{&service.CommitError{Op: "create", Err: errors.New("timeout")}, http.StatusServiceUnavailable},
		{fmt.Errorf("wrapped: %w", store.ErrInvalidInput), http.StatusBadRequest},
		{service.ErrForbidden, http.StatusForbidden},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, statusFromError(tc.err), tc.err.Error())
	}
}

func TestParsePositiveLimitCaps(t *testing.T) {
	assert.Equal(t, 50, parsePositiveLimit("", 50, 500))
	assert.Equal(t, 50, parsePositiveLimit("-3", 50, 500))
	assert.Equal(t, 20, parsePositiveLimit("20", 50, 500))
	assert.Equal(t, 500, parsePositiveLimit("99999", 50, 500))
}

func TestStockStreamPushesSaleEvents(t *testing.T) {
	env := newTestEnv(t, nil)
	server := httptest.NewServer(env.handler)
	defer server.Close()
	token := env.login(t, "vendedor", "seller123")

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/api/v1/stock/stream?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var snapshot domain.StockEvent
	require.NoError(t, conn.ReadJSON(&snapshot))
	assert.Equal(t, domain.EventSnapshot, snapshot.Type)
	assert.Equal(t, 12, snapshot.Summary.Total)

	require.Eventually(t, func() bool { return env.hub.Subscribers() == 1 }, time.Second, 10*time.Millisecond)
	rec := env.do(t, http.MethodPost, "/api/v1/sales", token, domain.SaleRequest{Items: []domain.SaleLine{{ProductID: "prd-gin-especial", Quantity: 4}}})
	require.Equal(t, http.StatusCreated, rec.Code)

	var event domain.StockEvent
	require.NoError(t, conn.ReadJSON(&event))
	assert.Equal(t, domain.EventSaleCreated, event.Type)
	assert.Equal(t, 1, event.Summary.Out)

	_, _, err = websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http")+"/api/v1/stock/stream", nil)
	assert.Error(t, err)
}
