package httpapi

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"sorbo/backend/internal/domain"
)

func (a *API) handleListCosts(c *gin.Context) {
	costs, err := a.service.ListCosts(c.Request.Context())
	if err != nil {
		a.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": costs})
}

func (a *API) handleGetCost(c *gin.Context) {
	cost, err := a.service.GetCost(c.Request.Context(), c.Param("id"))
	if err != nil {
		a.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, cost)
}

func (a *API) handleCreateCost(c *gin.Context) {
	var req domain.CostCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, err)
		return
	}
	cost, err := a.service.CreateCost(c.Request.Context(), req)
	if err != nil {
		a.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, cost)
}

func (a *API) handleUpdateCost(c *gin.Context) {
	var req domain.CostUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, err)
		return
	}
	cost, err := a.service.UpdateCost(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		a.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, cost)
}

func (a *API) handleDeleteCost(c *gin.Context) {
	if err := a.service.DeleteCost(c.Request.Context(), c.Param("id")); err != nil {
		a.writeServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (a *API) handleListProducts(c *gin.Context) {
	products, err := a.service.ListProducts(c.Request.Context())
	if err != nil {
		a.writeServiceError(c, err)
		return
	}

	status := domain.StockStatus(strings.TrimSpace(c.Query("status")))
	if status == "" {
		c.JSON(http.StatusOK, gin.H{"items": products})
		return
	}
	filtered := make([]domain.ProductView, 0, len(products))
	for _, p := range products {
		if p.Status == status {
			filtered = append(filtered, p)
		}
	}
	c.JSON(http.StatusOK, gin.H{"items": filtered})
}

func (a *API) handleGetProduct(c *gin.Context) {
	product, err := a.service.GetProduct(c.Request.Context(), c.Param("id"))
	if err != nil {
		a.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, product)
}

func (a *API) handleCreateProduct(c *gin.Context) {
	var req domain.ProductCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, err)
		return
	}
	product, err := a.service.CreateProduct(c.Request.Context(), req)
	if err != nil {
		a.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, product)
}

func (a *API) handleUpdateProduct(c *gin.Context) {
	var req domain.ProductUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, err)
		return
	}
	product, err := a.service.UpdateProduct(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		a.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, product)
}

func (a *API) handleDeleteProduct(c *gin.Context) {
	if err := a.service.DeleteProduct(c.Request.Context(), c.Param("id")); err != nil {
		a.writeServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type pricePreviewRequest struct {
	Tipo                        domain.ProductType `json:"tipo" binding:"required,oneof=blend caja gin"`
	PrecioCosto                 decimal.Decimal    `json:"precioCosto"`
	PorcentajeGanancia          decimal.Decimal    `json:"porcentajeGanancia"`
	PorcentajeGananciaMayorista decimal.Decimal    `json:"porcentajeGananciaMayorista"`
}

func (a *API) handlePreviewPrices(c *gin.Context) {
	var req pricePreviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, err)
		return
	}
	preview, err := a.service.PreviewPrices(c.Request.Context(), req.Tipo, req.PrecioCosto, req.PorcentajeGanancia, req.PorcentajeGananciaMayorista)
	if err != nil {
		a.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"costos":               preview.Costos,
		"precioVenta":          preview.PrecioVenta,
		"precioVentaMayorista": preview.PrecioVentaMayorista,
	})
}

func (a *API) handleRecalculate(c *gin.Context) {
	if err := a.service.RecalculateCatalog(c.Request.Context()); err != nil {
		a.writeServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (a *API) handlePriceHistory(c *gin.Context) {
	limit := parsePositiveLimit(c.Query("limit"), 50, 500)
	history, err := a.service.ListProductPriceHistory(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		a.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": history})
}

func (a *API) handleStockSummary(c *gin.Context) {
	summary, err := a.service.StockSummary(c.Request.Context())
	if err != nil {
		a.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (a *API) handleValidateSale(c *gin.Context) {
	var req domain.SaleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, err)
		return
	}
	resp, err := a.service.ValidateSale(c.Request.Context(), strings.TrimSpace(c.Query("sale_id")), req)
	if err != nil {
		a.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (a *API) handleCreateSale(c *gin.Context) {
	var req domain.SaleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, err)
		return
	}
	sale, err := a.service.CreateSale(c.Request.Context(), req)
	if err != nil {
		a.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, sale)
}

func (a *API) handleUpdateSale(c *gin.Context) {
	var req domain.SaleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, err)
		return
	}
	sale, err := a.service.UpdateSale(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		a.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, sale)
}

func (a *API) handleDeleteSale(c *gin.Context) {
	if err := a.service.DeleteSale(c.Request.Context(), c.Param("id")); err != nil {
		a.writeServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (a *API) handleGetSale(c *gin.Context) {
	sale, err := a.service.GetSale(c.Request.Context(), c.Param("id"))
	if err != nil {
		a.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, sale)
}

func (a *API) handleListSales(c *gin.Context) {
	filter, err := parseSaleFilter(c)
	if err != nil {
		writeError(c, http.StatusBadRequest, err)
		return
	}
	list, err := a.service.ListSales(c.Request.Context(), filter)
	if err != nil {
		a.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": list})
}

func (a *API) handleSalesSummary(c *gin.Context) {
	filter, err := parseSaleFilter(c)
	if err != nil {
		writeError(c, http.StatusBadRequest, err)
		return
	}
	summary, err := a.service.SalesSummary(c.Request.Context(), filter)
	if err != nil {
		a.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (a *API) handleReceipt(c *gin.Context) {
	id := c.Param("id")
	pdf, err := a.service.Receipt(c.Request.Context(), id)
	if err != nil {
		a.writeServiceError(c, err)
		return
	}
	c.Header("Content-Disposition", "inline; filename="+strconv.Quote("venta-"+id+".pdf"))
	c.Data(http.StatusOK, "application/pdf", pdf)
}

func (a *API) handleListDrafts(c *gin.Context) {
	drafts, err := a.service.ListDrafts(c.Request.Context())
	if err != nil {
		a.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": drafts})
}

func (a *API) handleGetDraft(c *gin.Context) {
	draft, err := a.service.GetDraft(c.Request.Context(), c.Param("id"))
	if err != nil {
		a.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, draft)
}

func (a *API) handleCommitDraft(c *gin.Context) {
	sale, err := a.service.CommitDraft(c.Request.Context(), c.Param("id"))
	if err != nil {
		a.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, sale)
}

func (a *API) handleDeleteDraft(c *gin.Context) {
	if err := a.service.DeleteDraft(c.Request.Context(), c.Param("id")); err != nil {
		a.writeServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (a *API) handleClearDrafts(c *gin.Context) {
	if err := a.service.ClearDrafts(c.Request.Context()); err != nil {
		a.writeServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (a *API) handleDashboard(c *gin.Context) {
	filter, err := parseSaleFilter(c)
	if err != nil {
		writeError(c, http.StatusBadRequest, err)
		return
	}
	dashboard, err := a.service.Dashboard(c.Request.Context(), filter)
	if err != nil {
		a.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, dashboard)
}

func (a *API) handleAuditLogs(c *gin.Context) {
	limit := parsePositiveLimit(c.Query("limit"), 100, 1000)
	logs, err := a.service.ListAuditLogs(c.Request.Context(), strings.TrimSpace(c.Query("date")), limit)
	if err != nil {
		a.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": logs})
}

func (a *API) handleListSellers(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"items": a.auth.ListSellers(c.Request.Context())})
}

func (a *API) handleCreateSeller(c *gin.Context) {
	var req domain.SellerCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, err)
		return
	}
	seller, err := a.auth.CreateSeller(c.Request.Context(), req)
	if err != nil {
		writeError(c, http.StatusBadRequest, err)
		return
	}
	c.JSON(http.StatusCreated, seller)
}
