// internal/interfaces/http/routes/routes.go
package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/your-org/meatshop-backend/internal/interfaces/http/handlers"
	"github.com/your-org/meatshop-backend/internal/interfaces/http/middleware"
	"github.com/your-org/meatshop-backend/internal/pkg/auth"
)

// Handlers bundles every handler the API mounts
type Handlers struct {
	Auth         *handlers.AuthHandler
	Product      *handlers.ProductHandler
	Inventory    *handlers.InventoryHandler
	Cart         *handlers.CartHandler
	Order        *handlers.OrderHandler
	Notification *handlers.NotificationHandler
	Analytics    *handlers.AnalyticsHandler
	LoginLimiter gin.HandlerFunc
	JWT          *auth.JWTManager
}

// SetupRoutes mounts every route group under rg
func SetupRoutes(rg *gin.RouterGroup, h *Handlers) {
	SetupAuthRoutes(rg, h)
	SetupProductRoutes(rg, h)
	SetupCartRoutes(rg, h)
	SetupOrderRoutes(rg, h)
	SetupNotificationRoutes(rg, h)
	SetupAdminRoutes(rg, h)
}

// SetupAuthRoutes sets up authentication related routes
func SetupAuthRoutes(rg *gin.RouterGroup, h *Handlers) {
	authGroup := rg.Group("/auth")
	{
		public := authGroup.Group("")
		if h.LoginLimiter != nil {
			public.Use(h.LoginLimiter)
		}
		public.POST("/register", h.Auth.Register)
		public.POST("/login", h.Auth.Login)
		public.POST("/refresh", h.Auth.RefreshToken)

		protected := authGroup.Group("")
		protected.Use(middleware.AuthMiddleware(h.JWT))
		{
			protected.GET("/profile", h.Auth.GetProfile)
			protected.PUT("/profile", h.Auth.UpdateProfile)
			protected.PUT("/password", h.Auth.ChangePassword)
		}
	}
}

// SetupProductRoutes sets up public catalog routes
func SetupProductRoutes(rg *gin.RouterGroup, h *Handlers) {
	rg.GET("/categories", h.Product.GetCategories)

	products := rg.Group("/products")
	{
		products.GET("", h.Product.GetProducts)
		products.GET("/:id", h.Product.GetProduct)
		products.GET("/:id/stock", h.Inventory.GetProductStock)
		products.GET("/slug/:slug", h.Product.GetProductBySlug)
	}
}

// SetupCartRoutes sets up cart routes; guests are tracked by session cookie
func SetupCartRoutes(rg *gin.RouterGroup, h *Handlers) {
	cartGroup := rg.Group("/cart")
	cartGroup.Use(middleware.OptionalAuthMiddleware(h.JWT))
	{
		cartGroup.GET("", h.Cart.GetCart)
		cartGroup.GET("/count", h.Cart.GetCartCount)
		cartGroup.DELETE("", h.Cart.ClearCart)
		cartGroup.POST("/items", h.Cart.AddToCart)
		cartGroup.PUT("/items/:product_id", h.Cart.UpdateCartItem)
		cartGroup.DELETE("/items/:product_id", h.Cart.RemoveFromCart)
	}
}

// SetupOrderRoutes sets up customer order routes
func SetupOrderRoutes(rg *gin.RouterGroup, h *Handlers) {
	orders := rg.Group("/orders")
	orders.Use(middleware.AuthMiddleware(h.JWT))
	{
		orders.POST("", h.Order.Checkout)
		orders.GET("", h.Order.GetOrders)
		orders.GET("/:id", h.Order.GetOrder)
		orders.GET("/:id/history", h.Order.GetOrderHistory)
		orders.POST("/:id/payment", h.Order.SubmitPayment)
		orders.POST("/:id/cancel", h.Order.CancelOrder)
		orders.POST("/:id/reorder", h.Order.Reorder)
	}
}

// SetupNotificationRoutes sets up the notification polling routes
func SetupNotificationRoutes(rg *gin.RouterGroup, h *Handlers) {
	notifications := rg.Group("/notifications")
	notifications.Use(middleware.AuthMiddleware(h.JWT))
	{
		notifications.GET("", h.Notification.GetNotifications)
		notifications.GET("/unread-count", h.Notification.GetUnreadCount)
		notifications.POST("/read-all", h.Notification.MarkAllRead)
		notifications.POST("/:id/read", h.Notification.MarkRead)
	}
}

// SetupAdminRoutes sets up back-office routes
func SetupAdminRoutes(rg *gin.RouterGroup, h *Handlers) {
	admin := rg.Group("/admin")
	admin.Use(middleware.AuthMiddleware(h.JWT), middleware.AdminMiddleware())
	{
		orders := admin.Group("/orders")
		{
			orders.GET("", h.Order.AdminGetOrders)
			orders.GET("/:id", h.Order.GetOrder)
			orders.GET("/:id/history", h.Order.GetOrderHistory)
			orders.POST("/:id/payment/approve", h.Order.ApprovePayment)
			orders.POST("/:id/payment/reject", h.Order.RejectPayment)
			orders.PUT("/:id/status", h.Order.UpdateOrderStatus)
			orders.POST("/:id/cancel", h.Order.CancelOrder)
			orders.POST("/:id/discount", h.Order.VerifyDiscount)
		}

		products := admin.Group("/products")
		{
			products.GET("", h.Product.AdminGetProducts)
			products.POST("", h.Product.CreateProduct)
			products.PUT("/:id", h.Product.UpdateProduct)
		}

		inventory := admin.Group("/inventory")
		{
			inventory.GET("/products/:id", h.Inventory.AdminGetStockLevel)
			inventory.POST("/products/:id/adjust", h.Inventory.AdjustStock)
			inventory.GET("/products/:id/movements", h.Inventory.GetMovements)
			inventory.GET("/alerts", h.Inventory.GetAlerts)
			inventory.POST("/alerts/:id/resolve", h.Inventory.ResolveAlert)
		}

		reports := admin.Group("/analytics")
		{
			reports.GET("/dashboard", h.Analytics.GetDashboard)
			reports.GET("/top-products", h.Analytics.GetTopProducts)
		}
	}
}
