package financing

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"invoice-financing/ledger-backend/internal/financing/export"
)

const adminTokenHeader = "X-Admin-Token"

// Handler handles HTTP requests for the financing ledger
type Handler struct {
	registry   *Registry
	ledger     *Ledger
	queries    *Queries
	csv        *export.CSVExporter
	excel      *export.ExcelExporter
	adminToken string
	logger     *zap.Logger
}

// NewHandler creates a new financing handler. An empty adminToken disables
// the admin routes.
func NewHandler(registry *Registry, ledger *Ledger, queries *Queries, adminToken string, logger *zap.Logger) *Handler {
	return &Handler{
		registry:   registry,
		ledger:     ledger,
		queries:    queries,
		csv:        export.NewCSVExporter(export.DefaultOptions()),
		excel:      export.NewExcelExporter(export.DefaultOptions()),
		adminToken: adminToken,
		logger:     logger,
	}
}

// RegisterRoutes registers the ledger routes
func (h *Handler) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/stats", h.getStats)

	invoices := router.Group("/invoices")
	{
		invoices.GET("", h.listInvoices)
		invoices.POST("", h.createInvoice)
		invoices.GET("/:id", h.getInvoice)
	}

	router.POST("/invest", h.invest)
	router.GET("/investment/:id", h.getInvestment)
	router.POST("/settle", h.settle)
	router.GET("/investments", h.listInvestments)
	router.GET("/investments/:address", h.listInvestorInvestments)

	router.GET("/portfolio/:address", h.getPortfolio)
	router.GET("/portfolio/:address/export.xlsx", h.exportPortfolio)
	router.GET("/transactions", h.recentActivity)
	router.GET("/users", h.listUsers)
	router.GET("/exports/invoices.csv", h.exportInvoices)

	admin := router.Group("/admin", h.requireAdmin)
	{
		admin.PATCH("/invoices/:id", h.setInvoiceStatus)
	}
}

// requireAdmin rejects requests without the configured operator token
func (h *Handler) requireAdmin(c *gin.Context) {
	if h.adminToken == "" {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"success": false, "error": "admin operations are disabled"})
		return
	}
	token := c.GetHeader(adminTokenHeader)
	if subtle.ConstantTimeCompare([]byte(token), []byte(h.adminToken)) != 1 {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "error": "invalid admin token"})
		return
	}
	c.Next()
}

// respondError maps ledger errors to HTTP statuses
func (h *Handler) respondError(c *gin.Context, action string, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, ErrInvalidInput):
		status = http.StatusBadRequest
	case errors.Is(err, ErrAlreadyFunded), errors.Is(err, ErrNotFunded), errors.Is(err, ErrInvalidTransition):
		status = http.StatusConflict
	}

	if status == http.StatusInternalServerError {
		h.logger.Error("Failed to "+action, zap.Error(err), zap.String("path", c.FullPath()))
		c.JSON(status, gin.H{"success": false, "error": "internal error"})
		return
	}
	c.JSON(status, gin.H{"success": false, "error": err.Error()})
}

// =====================================================
// Invoices
// =====================================================

// getStats handles GET /api/v1/stats
func (h *Handler) getStats(c *gin.Context) {
	stats, err := h.queries.PlatformStats(c.Request.Context())
	if err != nil {
		h.respondError(c, "compute stats", err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func parseInvoiceFilter(c *gin.Context) (InvoiceFilter, error) {
	var filter InvoiceFilter
	if raw := strings.TrimSpace(c.Query("status")); raw != "" {
		status := InvoiceStatus(strings.ToLower(raw))
		if !status.Valid() {
			return filter, invalidInput("status", fmt.Sprintf("unknown status %q", raw))
		}
		filter.Status = &status
	}
	if raw := strings.TrimSpace(c.Query("riskLevel")); raw != "" {
		band := RiskBand(strings.ToLower(raw))
		if !band.Valid() {
			return filter, invalidInput("riskLevel", fmt.Sprintf("unknown risk level %q", raw))
		}
		filter.RiskBand = &band
	}
	filter.Issuer = c.Query("issuer")
	return filter, nil
}

// listInvoices handles GET /api/v1/invoices
func (h *Handler) listInvoices(c *gin.Context) {
	filter, err := parseInvoiceFilter(c)
	if err != nil {
		h.respondError(c, "list invoices", err)
		return
	}
	if raw := c.Query("limit"); raw != "" {
		if limit, err := strconv.Atoi(raw); err == nil {
			filter.Limit = limit
		}
	}

	invoices, err := h.registry.List(c.Request.Context(), filter)
	if err != nil {
		h.respondError(c, "list invoices", err)
		return
	}
	c.JSON(http.StatusOK, invoices)
}

// createInvoice handles POST /api/v1/invoices
func (h *Handler) createInvoice(c *gin.Context) {
	var req InvoiceInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	}

	created, err := h.registry.Create(c.Request.Context(), req)
	if err != nil {
		h.respondError(c, "create invoice", err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"success":          true,
		"message":          "Invoice created successfully",
		"invoice":          created.Invoice,
		"applied_defaults": created.Defaults,
	})
}

// getInvoice handles GET /api/v1/invoices/:id
func (h *Handler) getInvoice(c *gin.Context) {
	id, err := ParseID("invoice", c.Param("id"))
	if err != nil {
		h.respondError(c, "get invoice", err)
		return
	}

	invoice, err := h.registry.Get(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, "get invoice", err)
		return
	}
	investments, err := h.ledger.ListByInvoice(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, "get invoice", err)
		return
	}

	total := decimal.Zero
	for _, inv := range investments {
		total = total.Add(inv.Principal)
	}
	c.JSON(http.StatusOK, gin.H{
		"invoice":        invoice,
		"investments":    investments,
		"total_financed": total,
	})
}

// =====================================================
// Investments
// =====================================================

// invest handles POST /api/v1/invest
func (h *Handler) invest(c *gin.Context) {
	var req InvestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	}

	investment, err := h.ledger.Invest(c.Request.Context(), req)
	if err != nil {
		h.respondError(c, "invest", err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"success":    true,
		"message":    "Investment submitted successfully",
		"investment": investment,
	})
}

// getInvestment handles GET /api/v1/investment/:id
func (h *Handler) getInvestment(c *gin.Context) {
	estimate, err := h.ledger.Estimate(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, "get investment", err)
		return
	}
	c.JSON(http.StatusOK, estimate)
}

type settleRequest struct {
	InvoiceID string `json:"invoice_id" binding:"required"`
}

// settle handles POST /api/v1/settle
func (h *Handler) settle(c *gin.Context) {
	var req settleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	}

	result, err := h.ledger.Settle(c.Request.Context(), req.InvoiceID)
	if err != nil {
		h.respondError(c, "settle invoice", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":         true,
		"message":         "Invoice settled successfully",
		"invoice":         result.Invoice,
		"settlements":     result.Settlements,
		"total_principal": result.TotalPrincipal,
		"total_interest":  result.TotalInterest,
	})
}

// listInvestments handles GET /api/v1/investments
func (h *Handler) listInvestments(c *gin.Context) {
	investments, err := h.ledger.List(c.Request.Context())
	if err != nil {
		h.respondError(c, "list investments", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":     true,
		"total":       len(investments),
		"investments": investments,
	})
}

// listInvestorInvestments handles GET /api/v1/investments/:address
func (h *Handler) listInvestorInvestments(c *gin.Context) {
	summary, err := h.ledger.ListByInvestor(c.Request.Context(), c.Param("address"))
	if err != nil {
		h.respondError(c, "list investments", err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

// =====================================================
// Portfolio, activity and participants
// =====================================================

// getPortfolio handles GET /api/v1/portfolio/:address
func (h *Handler) getPortfolio(c *gin.Context) {
	portfolio, err := h.queries.Portfolio(c.Request.Context(), c.Param("address"))
	if err != nil {
		h.respondError(c, "build portfolio", err)
		return
	}
	c.JSON(http.StatusOK, portfolio)
}

// exportPortfolio handles GET /api/v1/portfolio/:address/export.xlsx
func (h *Handler) exportPortfolio(c *gin.Context) {
	portfolio, err := h.queries.Portfolio(c.Request.Context(), c.Param("address"))
	if err != nil {
		h.respondError(c, "export portfolio", err)
		return
	}
	tables, err := PortfolioTables(portfolio)
	if err != nil {
		h.respondError(c, "export portfolio", err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="portfolio-%s.xlsx"`, portfolio.Address))
	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Status(http.StatusOK)
	if err := h.excel.Write(c.Writer, tables...); err != nil {
		h.logger.Error("Failed to write portfolio workbook", zap.Error(err))
	}
}

// recentActivity handles GET /api/v1/transactions
func (h *Handler) recentActivity(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			limit = n
		}
	}

	activity, err := h.queries.RecentActivity(c.Request.Context(), limit)
	if err != nil {
		h.respondError(c, "load activity", err)
		return
	}
	c.JSON(http.StatusOK, activity)
}

// listUsers handles GET /api/v1/users
func (h *Handler) listUsers(c *gin.Context) {
	participants, err := h.registry.directory.List(c.Request.Context())
	if err != nil {
		h.respondError(c, "list participants", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":     true,
		"total_users": len(participants),
		"users":       participants,
	})
}

// exportInvoices handles GET /api/v1/exports/invoices.csv
func (h *Handler) exportInvoices(c *gin.Context) {
	filter, err := parseInvoiceFilter(c)
	if err != nil {
		h.respondError(c, "export invoices", err)
		return
	}
	invoices, err := h.registry.ListAll(c.Request.Context(), filter)
	if err != nil {
		h.respondError(c, "export invoices", err)
		return
	}
	table, err := InvoiceTable("Invoices", invoices)
	if err != nil {
		h.respondError(c, "export invoices", err)
		return
	}

	c.Header("Content-Disposition", `attachment; filename="invoices.csv"`)
	c.Header("Content-Type", "text/csv; charset=utf-8")
	c.Status(http.StatusOK)
	if err := h.csv.Write(c.Writer, table); err != nil {
		h.logger.Error("Failed to write invoice export", zap.Error(err))
	}
}

// =====================================================
// Admin
// =====================================================

type setStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// setInvoiceStatus handles PATCH /api/v1/admin/invoices/:id
func (h *Handler) setInvoiceStatus(c *gin.Context) {
	id, err := ParseID("invoice", c.Param("id"))
	if err != nil {
		h.respondError(c, "set invoice status", err)
		return
	}
	var req setStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	}

	invoice, err := h.registry.Admin().SetStatus(c.Request.Context(), id, InvoiceStatus(strings.ToLower(req.Status)))
	if err != nil {
		h.respondError(c, "set invoice status", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Invoice updated successfully",
		"invoice": invoice,
	})
}
