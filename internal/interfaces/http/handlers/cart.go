// internal/interfaces/http/handlers/cart.go
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/your-org/meatshop-backend/internal/config"
	"github.com/your-org/meatshop-backend/internal/domain/cart"
	"github.com/your-org/meatshop-backend/internal/interfaces/http/middleware"
)

const sessionCookie = "session_id"

// CartHandler handles cart endpoints for guests and signed-in customers
type CartHandler struct {
	carts  *cart.Reconciler
	config *config.Config
}

// NewCartHandler creates a new cart handler
func NewCartHandler(carts *cart.Reconciler, cfg *config.Config) *CartHandler {
	return &CartHandler{
		carts:  carts,
		config: cfg,
	}
}

// GetCart handles GET /cart
func (h *CartHandler) GetCart(c *gin.Context) {
	owner := h.owner(c)

	lines, err := h.carts.List(c.Request.Context(), owner)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Cart retrieved successfully",
		"data": gin.H{
			"items":  lines,
			"totals": cart.Totals(lines),
		},
	})
}

// AddToCart handles POST /cart/items
func (h *CartHandler) AddToCart(c *gin.Context) {
	var req cart.AddToCartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	line, err := h.carts.Add(c.Request.Context(), h.owner(c), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Item added to cart successfully",
		"data":    line,
	})
}

// UpdateCartItem handles PUT /cart/items/:product_id. A quantity of zero removes the line.
func (h *CartHandler) UpdateCartItem(c *gin.Context) {
	productID, ok := parseID(c, "product_id")
	if !ok {
		return
	}

	var req cart.UpdateCartItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	line, err := h.carts.SetQuantity(c.Request.Context(), h.owner(c), productID, req.Quantity)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Cart item updated successfully",
		"data":    line,
	})
}

// RemoveFromCart handles DELETE /cart/items/:product_id
func (h *CartHandler) RemoveFromCart(c *gin.Context) {
	productID, ok := parseID(c, "product_id")
	if !ok {
		return
	}

	if err := h.carts.Remove(c.Request.Context(), h.owner(c), productID); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Item removed from cart successfully",
	})
}

// ClearCart handles DELETE /cart
func (h *CartHandler) ClearCart(c *gin.Context) {
	if err := h.carts.Clear(c.Request.Context(), h.owner(c)); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Cart cleared successfully",
	})
}

// GetCartCount handles GET /cart/count
func (h *CartHandler) GetCartCount(c *gin.Context) {
	count, err := h.carts.Count(c.Request.Context(), h.owner(c))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": gin.H{"count": count},
	})
}

// owner resolves the cart owner: the signed-in user, or the guest session
// cookie, which is created on first use
func (h *CartHandler) owner(c *gin.Context) cart.Owner {
	if userID, ok := userIDFrom(c); ok {
		return cart.UserOwner(userID)
	}

	sessionID, err := c.Cookie(sessionCookie)
	if err != nil || sessionID == "" {
		sessionID = uuid.NewString()
		maxAge := int(h.config.Store.GuestSessionTTL.Seconds())
		c.SetCookie(sessionCookie, sessionID, maxAge, "/", "", h.config.IsProduction(), true)
	}
	return cart.GuestOwner(sessionID)
}

func userIDFrom(c *gin.Context) (uint, bool) {
	return middleware.GetUserIDFromContext(c)
}
