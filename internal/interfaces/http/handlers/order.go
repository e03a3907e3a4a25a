// internal/interfaces/http/handlers/order.go
package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/your-org/meatshop-backend/internal/domain/order"
	"github.com/your-org/meatshop-backend/internal/interfaces/http/middleware"
)

// OrderHandler handles customer and back-office order endpoints
type OrderHandler struct {
	workflow *order.Workflow
}

// NewOrderHandler creates a new order handler
func NewOrderHandler(workflow *order.Workflow) *OrderHandler {
	return &OrderHandler{workflow: workflow}
}

func actorFrom(c *gin.Context) (order.Actor, bool) {
	userID, ok := requireUser(c)
	if !ok {
		return order.Actor{}, false
	}
	return order.Actor{UserID: userID, IsAdmin: middleware.IsAdminFromContext(c)}, true
}

// CUSTOMER ENDPOINTS

// Checkout handles POST /orders: the signed-in user's cart becomes an order
func (h *OrderHandler) Checkout(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	var req order.CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	created, err := h.workflow.Checkout(c.Request.Context(), userID, &req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "Order created successfully",
		"data":    created,
	})
}

// GetOrders handles GET /orders
func (h *OrderHandler) GetOrders(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "10"))

	response, err := h.workflow.ListForUser(c.Request.Context(), userID, page, limit)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Orders retrieved successfully",
		"data":    response,
	})
}

// GetOrder handles GET /orders/:id
func (h *OrderHandler) GetOrder(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	orderID, ok := parseID(c, "id")
	if !ok {
		return
	}

	found, err := h.workflow.Get(c.Request.Context(), actor, orderID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Order retrieved successfully",
		"data":    found,
	})
}

// GetOrderHistory handles GET /orders/:id/history
func (h *OrderHandler) GetOrderHistory(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	orderID, ok := parseID(c, "id")
	if !ok {
		return
	}

	history, err := h.workflow.History(c.Request.Context(), actor, orderID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Order history retrieved successfully",
		"data":    history,
	})
}

// SubmitPayment handles POST /orders/:id/payment
func (h *OrderHandler) SubmitPayment(c *gin.Context) {
	var req struct {
		PaymentProof string `json:"payment_proof" binding:"required,max=500"`
	}
	h.act(c, &req, "Payment submitted successfully", func(actor order.Actor, id uint) (*order.Order, error) {
		return h.workflow.SubmitPayment(c.Request.Context(), actor, id, req.PaymentProof)
	})
}

// CancelOrder handles POST /orders/:id/cancel and POST /admin/orders/:id/cancel
func (h *OrderHandler) CancelOrder(c *gin.Context) {
	var req struct {
		Reason string `json:"reason" binding:"max=1000"`
	}
	h.act(c, &req, "Order cancelled successfully", func(actor order.Actor, id uint) (*order.Order, error) {
		return h.workflow.Cancel(c.Request.Context(), actor, id, req.Reason)
	})
}

// Reorder handles POST /orders/:id/reorder
func (h *OrderHandler) Reorder(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	orderID, ok := parseID(c, "id")
	if !ok {
		return
	}

	created, err := h.workflow.Reorder(c.Request.Context(), actor, orderID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "Order placed again successfully",
		"data":    created,
	})
}

// ADMIN ENDPOINTS

// AdminGetOrders handles GET /admin/orders
func (h *OrderHandler) AdminGetOrders(c *gin.Context) {
	var req order.OrderListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		badRequest(c, err)
		return
	}

	response, err := h.workflow.List(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Orders retrieved successfully",
		"data":    response,
	})
}

// ApprovePayment handles POST /admin/orders/:id/payment/approve
func (h *OrderHandler) ApprovePayment(c *gin.Context) {
	h.act(c, nil, "Payment approved successfully", func(actor order.Actor, id uint) (*order.Order, error) {
		return h.workflow.ApprovePayment(c.Request.Context(), actor, id)
	})
}

// RejectPayment handles POST /admin/orders/:id/payment/reject
func (h *OrderHandler) RejectPayment(c *gin.Context) {
	var req struct {
		Reason string `json:"reason" binding:"required,max=1000"`
	}
	h.act(c, &req, "Payment rejected", func(actor order.Actor, id uint) (*order.Order, error) {
		return h.workflow.RejectPayment(c.Request.Context(), actor, id, req.Reason)
	})
}

// UpdateOrderStatus handles PUT /admin/orders/:id/status
func (h *OrderHandler) UpdateOrderStatus(c *gin.Context) {
	var req struct {
		Status  order.OrderStatus `json:"status" binding:"required"`
		Comment string            `json:"comment" binding:"max=1000"`
	}
	h.act(c, &req, "Order status updated successfully", func(actor order.Actor, id uint) (*order.Order, error) {
		return h.workflow.AdvanceStatus(c.Request.Context(), actor, id, req.Status, req.Comment)
	})
}

// VerifyDiscount handles POST /admin/orders/:id/discount
func (h *OrderHandler) VerifyDiscount(c *gin.Context) {
	var req struct {
		Approved *bool  `json:"approved" binding:"required"`
		Comment  string `json:"comment" binding:"max=1000"`
	}
	h.act(c, &req, "Discount reviewed successfully", func(actor order.Actor, id uint) (*order.Order, error) {
		return h.workflow.VerifyDiscount(c.Request.Context(), actor, id, *req.Approved, req.Comment)
	})
}

// act binds the optional body, resolves actor and order id, and runs one transition
func (h *OrderHandler) act(c *gin.Context, body interface{}, message string, run func(order.Actor, uint) (*order.Order, error)) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	orderID, ok := parseID(c, "id")
	if !ok {
		return
	}
	if body != nil {
		if err := c.ShouldBindJSON(body); err != nil {
			badRequest(c, err)
			return
		}
	}

	updated, err := run(actor, orderID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": message,
		"data":    updated,
	})
}
