// internal/interfaces/http/handlers/inventory.go
package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/your-org/meatshop-backend/internal/domain/inventory"
)

// InventoryHandler handles stock endpoints
type InventoryHandler struct {
	ledger *inventory.Ledger
}

// NewInventoryHandler creates a new inventory handler
func NewInventoryHandler(ledger *inventory.Ledger) *InventoryHandler {
	return &InventoryHandler{ledger: ledger}
}

// GetProductStock handles GET /products/:id/stock
func (h *InventoryHandler) GetProductStock(c *gin.Context) {
	productID, ok := parseID(c, "id")
	if !ok {
		return
	}

	level, err := h.ledger.StockLevel(c.Request.Context(), productID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": gin.H{
			"product_id":      level.ProductID,
			"track_stock":     level.TrackStock,
			"available_stock": level.Available,
			"in_stock":        !level.TrackStock || level.Available > 0,
		},
	})
}

// AdminGetStockLevel handles GET /admin/inventory/products/:id
func (h *InventoryHandler) AdminGetStockLevel(c *gin.Context) {
	productID, ok := parseID(c, "id")
	if !ok {
		return
	}

	level, err := h.ledger.StockLevel(c.Request.Context(), productID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Stock level retrieved successfully",
		"data":    level,
	})
}

// AdjustStock handles POST /admin/inventory/products/:id/adjust
func (h *InventoryHandler) AdjustStock(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	productID, ok := parseID(c, "id")
	if !ok {
		return
	}

	var req struct {
		Delta  int    `json:"delta" binding:"required"`
		Reason string `json:"reason" binding:"required,max=500"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	movement, err := h.ledger.Adjust(c.Request.Context(), productID, req.Delta, req.Reason, userID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Stock adjusted successfully",
		"data":    movement,
	})
}

// GetMovements handles GET /admin/inventory/products/:id/movements
func (h *InventoryHandler) GetMovements(c *gin.Context) {
	productID, ok := parseID(c, "id")
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	movements, err := h.ledger.GetMovements(c.Request.Context(), productID, limit)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Stock movements retrieved successfully",
		"data":    movements,
	})
}

// GetAlerts handles GET /admin/inventory/alerts
func (h *InventoryHandler) GetAlerts(c *gin.Context) {
	alerts, err := h.ledger.GetOpenAlerts(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Stock alerts retrieved successfully",
		"data":    alerts,
	})
}

// ResolveAlert handles POST /admin/inventory/alerts/:id/resolve
func (h *InventoryHandler) ResolveAlert(c *gin.Context) {
	alertID, ok := parseID(c, "id")
	if !ok {
		return
	}

	if err := h.ledger.ResolveAlert(c.Request.Context(), alertID); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Stock alert resolved successfully",
	})
}
