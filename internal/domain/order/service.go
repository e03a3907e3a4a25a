// internal/domain/order/service.go
package order

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/your-org/meatshop-backend/internal/config"
	"github.com/your-org/meatshop-backend/internal/domain/cart"
	"github.com/your-org/meatshop-backend/internal/domain/inventory"
	"github.com/your-org/meatshop-backend/internal/domain/notification"
	"github.com/your-org/meatshop-backend/internal/domain/product"
	"github.com/your-org/meatshop-backend/internal/pkg/apperr"
	"github.com/your-org/meatshop-backend/internal/pkg/clock"
	"github.com/your-org/meatshop-backend/internal/pkg/email"
	"gorm.io/gorm"
)

// Notifier receives user-visible notifications
type Notifier interface {
	Notify(ctx context.Context, userID uint, title, message string, kind notification.Type, orderID *uint) error
	NotifyAdmins(ctx context.Context, title, message string, kind notification.Type, orderID *uint) error
}

// Mailer delivers order emails
type Mailer interface {
	SendOrderEmail(ctx context.Context, key email.TemplateKey, data *email.OrderContext) error
}

// Actor is the user triggering an operation
type Actor struct {
	UserID  uint
	IsAdmin bool
}

// Workflow drives orders through their lifecycle. Status changes and stock
// effects commit together; notifications and emails follow best-effort.
type Workflow struct {
	db       *gorm.DB
	config   *config.Config
	ledger   *inventory.Ledger
	carts    *cart.Reconciler
	notifier Notifier
	mailer   Mailer
	clock    clock.Clock
	logger   logrus.FieldLogger
}

// NewWorkflow creates a new order workflow
func NewWorkflow(db *gorm.DB, cfg *config.Config, ledger *inventory.Ledger, carts *cart.Reconciler,
	notifier Notifier, mailer Mailer, clk clock.Clock, logger logrus.FieldLogger) *Workflow {
	return &Workflow{
		db:       db,
		config:   cfg,
		ledger:   ledger,
		carts:    carts,
		notifier: notifier,
		mailer:   mailer,
		clock:    clk,
		logger:   logger,
	}
}

// CheckoutRequest represents the customer details of a new order
type CheckoutRequest struct {
	CustomerName    string        `json:"customer_name" binding:"required,max=255"`
	Email           string        `json:"email" binding:"required,email"`
	Phone           string        `json:"phone" binding:"required,max=20"`
	DeliveryAddress string        `json:"delivery_address" binding:"max=1000"`
	Notes           string        `json:"notes" binding:"max=1000"`
	PaymentMethod   PaymentMethod `json:"payment_method" binding:"required,oneof=qr cash"`
	DiscountType    DiscountType  `json:"discount_type" binding:"omitempty,oneof=senior pwd"`
	SeniorIDRef     string        `json:"senior_id_ref" binding:"max=500"`
}

// LineRequest is one product and quantity of a new order
type LineRequest struct {
	ProductID uint
	Quantity  int
	Notes     string
}

// OrderListRequest represents order list query parameters
type OrderListRequest struct {
	Page          int           `form:"page,default=1"`
	Limit         int           `form:"limit,default=20"`
	Status        OrderStatus   `form:"status"`
	PaymentMethod PaymentMethod `form:"payment_method"`
	UserID        uint          `form:"user_id"`
	SortBy        string        `form:"sort_by,default=created_at"`
	SortOrder     string        `form:"sort_order,default=desc"`
	DateFrom      string        `form:"date_from"`
	DateTo        string        `form:"date_to"`
}

// OrderResponse represents order response with pagination
type OrderResponse struct {
	Orders     []Order    `json:"orders"`
	Pagination Pagination `json:"pagination"`
}

// Pagination represents pagination information
type Pagination struct {
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
	HasPrev    bool  `json:"has_prev"`
}

func (r *CheckoutRequest) validate() error {
	if strings.TrimSpace(r.CustomerName) == "" {
		return apperr.Invalid("customer_name", "is required")
	}
	if strings.TrimSpace(r.Email) == "" {
		return apperr.Invalid("email", "is required")
	}
	if r.PaymentMethod != PaymentMethodQR && r.PaymentMethod != PaymentMethodCash {
		return apperr.Invalid("payment_method", "must be qr or cash")
	}
	switch r.DiscountType {
	case DiscountTypeNone:
	case DiscountTypeSenior, DiscountTypePWD:
		if strings.TrimSpace(r.SeniorIDRef) == "" {
			return apperr.Invalid("senior_id_ref", "an ID is required to claim the discount")
		}
	default:
		return apperr.Invalid("discount_type", "must be senior or pwd")
	}
	return nil
}

// Create reserves stock for every line and records the order. Either every
// line is reserved or none is.
func (w *Workflow) Create(ctx context.Context, userID uint, lines []LineRequest, req *CheckoutRequest) (*Order, error) {
	return w.create(ctx, userID, lines, req, nil)
}

// Checkout turns the user's cart into an order and empties the cart
func (w *Workflow) Checkout(ctx context.Context, userID uint, req *CheckoutRequest) (*Order, error) {
	owner := cart.UserOwner(userID)

	cartLines, err := w.carts.List(ctx, owner)
	if err != nil {
		return nil, err
	}
	if len(cartLines) == 0 {
		return nil, apperr.Invalid("cart", "cart is empty")
	}

	lines := make([]LineRequest, len(cartLines))
	for i, line := range cartLines {
		lines[i] = LineRequest{ProductID: line.ProductID, Quantity: line.Quantity, Notes: line.Notes}
	}

	return w.create(ctx, userID, lines, req, func(tx *gorm.DB) error {
		return w.carts.WithTx(tx).Clear(ctx, owner)
	})
}

// Reorder places a new order with the products and quantities of a completed one, at current prices
func (w *Workflow) Reorder(ctx context.Context, actor Actor, orderID uint) (*Order, error) {
	previous, err := w.load(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !previous.IsOwnedBy(actor.UserID) {
		return nil, apperr.NotFound("order", orderID)
	}
	if previous.Status != OrderStatusCompleted {
		return nil, &apperr.InvalidTransitionError{Current: string(previous.Status), Requested: "reorder"}
	}

	lines := make([]LineRequest, len(previous.Items))
	for i, item := range previous.Items {
		lines[i] = LineRequest{ProductID: item.ProductID, Quantity: item.Quantity, Notes: item.Notes}
	}

	req := &CheckoutRequest{
		CustomerName:    previous.CustomerName,
		Email:           previous.Email,
		Phone:           previous.Phone,
		DeliveryAddress: previous.DeliveryAddress,
		Notes:           fmt.Sprintf("Reorder of %s", previous.OrderNumber),
		PaymentMethod:   previous.PaymentMethod,
	}
	return w.create(ctx, actor.UserID, lines, req, nil)
}

func (w *Workflow) create(ctx context.Context, userID uint, lines []LineRequest, req *CheckoutRequest, afterCreate func(tx *gorm.DB) error) (*Order, error) {
	if userID == 0 {
		return nil, apperr.Invalid("user_id", "orders require a signed-in customer")
	}
	if err := req.validate(); err != nil {
		return nil, err
	}
	if len(lines) == 0 {
		return nil, apperr.Invalid("items", "at least one item is required")
	}

	now := w.clock.Now()
	order := &Order{
		UserID:          userID,
		CustomerName:    strings.TrimSpace(req.CustomerName),
		Email:           strings.ToLower(strings.TrimSpace(req.Email)),
		Phone:           req.Phone,
		DeliveryAddress: req.DeliveryAddress,
		Notes:           req.Notes,
		Status:          InitialStatus(req.PaymentMethod),
		PaymentMethod:   req.PaymentMethod,
		PaymentStatus:   PaymentStatusPending,
		Currency:        w.config.Store.Currency,
		Version:         1,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	err := w.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ledger := w.ledger.WithTx(tx)
		ordered := make(map[uint]int, len(lines))

		for _, line := range lines {
			if line.Quantity <= 0 {
				return apperr.Invalid("quantity", "must be greater than zero")
			}

			var prod product.Product
			if err := tx.Where("id = ? AND is_active = ?", line.ProductID, true).First(&prod).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return apperr.NotFound("product", line.ProductID)
				}
				return fmt.Errorf("failed to load product: %w", err)
			}
			// The limit applies to the product across all lines of the order
			ordered[prod.ID] += line.Quantity
			if prod.ExceedsOrderLimit(ordered[prod.ID]) {
				return apperr.Invalid("quantity", fmt.Sprintf("at most %d %s per order", prod.MaxOrderQuantity, prod.Name))
			}

			// A failed reservation aborts the transaction, undoing earlier lines
			if err := ledger.Reserve(ctx, prod.ID, line.Quantity); err != nil {
				return err
			}

			order.Items = append(order.Items, OrderItem{
				ProductID:  prod.ID,
				SKU:        prod.SKU,
				Name:       prod.Name,
				Unit:       prod.Unit,
				Quantity:   line.Quantity,
				Price:      prod.Price,
				TotalPrice: prod.Price * int64(line.Quantity),
				Notes:      line.Notes,
				CreatedAt:  now,
			})
		}

		order.SubtotalAmount = order.ItemsSubtotal()
		order.TotalAmount = order.SubtotalAmount
		order.IsBulkOrder = w.config.Store.BulkOrderQuantity > 0 && order.TotalQuantity() >= w.config.Store.BulkOrderQuantity
		if req.DiscountType != DiscountTypeNone {
			// Pending until staff verify the ID; the total is unchanged until then
			order.IsSeniorDiscount = true
			order.DiscountType = req.DiscountType
			order.SeniorIDRef = req.SeniorIDRef
			order.DiscountAmount = order.SubtotalAmount * int64(w.config.Store.SeniorDiscountPercent) / 100
		}

		order.OrderNumber = "TMP-" + uuid.NewString()
		if err := tx.Create(order).Error; err != nil {
			return fmt.Errorf("failed to create order: %w", err)
		}

		order.OrderNumber = FormatOrderNumber(now, order.ID)
		if err := tx.Model(&Order{}).Where("id = ?", order.ID).Update("order_number", order.OrderNumber).Error; err != nil {
			return fmt.Errorf("failed to update order number: %w", err)
		}

		history := OrderStatusHistory{
			OrderID:   order.ID,
			Status:    order.Status,
			Comment:   "Order placed",
			CreatedBy: userID,
			CreatedAt: now,
		}
		if err := tx.Create(&history).Error; err != nil {
			return fmt.Errorf("failed to create status history: %w", err)
		}

		if afterCreate != nil {
			return afterCreate(tx)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	w.logger.WithFields(logrus.Fields{
		"order_id":     order.ID,
		"order_number": order.OrderNumber,
		"user_id":      userID,
		"total":        order.TotalAmount,
	}).Info("Order created")

	created, err := w.load(ctx, order.ID)
	if err != nil {
		return nil, err
	}

	w.emit(ctx, created, "order_placed", effect{
		kind:            notification.TypeOrderPlaced,
		customerTitle:   "Order placed",
		customerMessage: fmt.Sprintf("Your order %s has been placed.", created.OrderNumber),
		adminTitle:      "New order",
		adminMessage:    fmt.Sprintf("Order %s was placed by %s.", created.OrderNumber, created.CustomerName),
		template:        email.TemplateOrderPlaced,
	})

	return created, nil
}

// SubmitPayment records the customer's proof of a QR payment for review
func (w *Workflow) SubmitPayment(ctx context.Context, actor Actor, orderID uint, proofRef string) (*Order, error) {
	proofRef = strings.TrimSpace(proofRef)
	if proofRef == "" {
		return nil, apperr.Invalid("payment_proof", "is required")
	}

	order, err := w.transition(ctx, orderID, step{
		actor: actor,
		event: EventSubmitPayment,
		apply: func(o *Order, _ OrderStatus, now time.Time) (map[string]interface{}, string, error) {
			return map[string]interface{}{
				"payment_status":           string(PaymentStatusSubmitted),
				"payment_proof_ref":        proofRef,
				"payment_submitted_at":     now,
				"payment_rejection_reason": "",
			}, "Payment proof submitted", nil
		},
	})
	if err != nil {
		return nil, err
	}

	w.emit(ctx, order, string(EventSubmitPayment), effect{
		kind:         notification.TypePaymentSubmitted,
		adminTitle:   "Payment submitted",
		adminMessage: fmt.Sprintf("Payment proof for order %s is awaiting review.", order.OrderNumber),
		template:     email.TemplatePaymentSubmitted,
	})
	return order, nil
}

// ApprovePayment accepts a submitted QR payment and confirms the order
func (w *Workflow) ApprovePayment(ctx context.Context, actor Actor, orderID uint) (*Order, error) {
	order, err := w.transition(ctx, orderID, step{
		actor:     actor,
		event:     EventApprovePayment,
		adminOnly: true,
		apply: func(o *Order, next OrderStatus, now time.Time) (map[string]interface{}, string, error) {
			if o.PaymentStatus != PaymentStatusSubmitted {
				return nil, "", &apperr.InvalidTransitionError{Current: string(o.Status), Requested: string(OrderStatusPaymentApproved)}
			}
			return map[string]interface{}{
				"payment_status":      string(PaymentStatusApproved),
				"payment_verified_at": now,
				"payment_verified_by": actor.UserID,
				"confirmed_at":        now,
			}, "Payment approved", nil
		},
	})
	if err != nil {
		return nil, err
	}

	w.emit(ctx, order, string(EventApprovePayment), effect{
		kind:            notification.TypePaymentApproved,
		customerTitle:   "Payment approved",
		customerMessage: fmt.Sprintf("Your payment for order %s has been approved. We are preparing your order.", order.OrderNumber),
		template:        email.TemplatePaymentApproved,
	})
	return order, nil
}

// RejectPayment sends a submitted QR payment back to the customer with a reason
func (w *Workflow) RejectPayment(ctx context.Context, actor Actor, orderID uint, reason string) (*Order, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, apperr.Invalid("reason", "is required")
	}

	order, err := w.transition(ctx, orderID, step{
		actor:     actor,
		event:     EventRejectPayment,
		adminOnly: true,
		apply: func(o *Order, next OrderStatus, now time.Time) (map[string]interface{}, string, error) {
			if o.PaymentStatus != PaymentStatusSubmitted {
				return nil, "", &apperr.InvalidTransitionError{Current: string(o.Status), Requested: string(OrderStatusPaymentRejected)}
			}
			return map[string]interface{}{
				"payment_status":           string(PaymentStatusRejected),
				"payment_rejection_reason": reason,
				"payment_verified_at":      now,
				"payment_verified_by":      actor.UserID,
			}, fmt.Sprintf("Payment rejected: %s", reason), nil
		},
	})
	if err != nil {
		return nil, err
	}

	w.emit(ctx, order, string(EventRejectPayment), effect{
		kind:            notification.TypePaymentRejected,
		customerTitle:   "Payment rejected",
		customerMessage: fmt.Sprintf("Payment for order %s was rejected: %s. Please submit a new proof of payment.", order.OrderNumber, reason),
		template:        email.TemplatePaymentRejected,
	})
	return order, nil
}

// AdvanceStatus moves an order one step along the fulfilment chain. Skipping steps is rejected.
func (w *Workflow) AdvanceStatus(ctx context.Context, actor Actor, orderID uint, newStatus OrderStatus, comment string) (*Order, error) {
	if !newStatus.Valid() {
		return nil, apperr.Invalid("status", fmt.Sprintf("unknown status %q", newStatus))
	}

	order, err := w.transition(ctx, orderID, step{
		actor:     actor,
		event:     EventAdvance,
		requested: newStatus,
		adminOnly: true,
		apply: func(o *Order, next OrderStatus, now time.Time) (map[string]interface{}, string, error) {
			updates := map[string]interface{}{}
			switch next {
			case OrderStatusConfirmed:
				updates["confirmed_at"] = now
			case OrderStatusCompleted:
				updates["completed_at"] = now
			}
			if comment == "" {
				comment = fmt.Sprintf("Order is now %s", statusLabel(next))
			}
			return updates, comment, nil
		},
	})
	if err != nil {
		return nil, err
	}

	w.emit(ctx, order, string(EventAdvance), effect{
		kind:            notification.TypeOrderStatus,
		customerTitle:   "Order update",
		customerMessage: fmt.Sprintf("Your order %s is now %s.", order.OrderNumber, statusLabel(order.Status)),
		template:        email.TemplateOrderStatusUpdate,
	})
	return order, nil
}

// Cancel cancels an open order and releases its reservation. Customers may
// only cancel their own orders before preparation starts.
func (w *Workflow) Cancel(ctx context.Context, actor Actor, orderID uint, reason string) (*Order, error) {
	order, err := w.transition(ctx, orderID, step{
		actor: actor,
		event: EventCancel,
		authorize: func(o *Order) error {
			if !actor.IsAdmin && !o.CustomerCanCancel() {
				return &apperr.InvalidTransitionError{Current: string(o.Status), Requested: string(OrderStatusCancelled)}
			}
			return nil
		},
		apply: func(o *Order, next OrderStatus, now time.Time) (map[string]interface{}, string, error) {
			comment := "Order cancelled"
			if reason != "" {
				comment = fmt.Sprintf("Order cancelled: %s", reason)
			}
			return map[string]interface{}{
				"cancelled_at":        now,
				"cancelled_by":        actor.UserID,
				"cancellation_reason": reason,
			}, comment, nil
		},
	})
	if err != nil {
		return nil, err
	}

	e := effect{
		kind:            notification.TypeOrderCancelled,
		customerTitle:   "Order cancelled",
		customerMessage: fmt.Sprintf("Your order %s has been cancelled.", order.OrderNumber),
		template:        email.TemplateOrderCancelled,
	}
	if !actor.IsAdmin {
		e.customerTitle = ""
		e.adminTitle = "Order cancelled by customer"
		e.adminMessage = fmt.Sprintf("Order %s was cancelled by the customer.", order.OrderNumber)
	}
	w.emit(ctx, order, string(EventCancel), e)
	return order, nil
}

// VerifyDiscount records staff review of a senior citizen / PWD ID. An
// approved claim lowers the total; a rejected one removes the claim.
func (w *Workflow) VerifyDiscount(ctx context.Context, actor Actor, orderID uint, approved bool, comment string) (*Order, error) {
	if !actor.IsAdmin {
		return nil, apperr.ErrForbidden
	}

	err := w.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var o Order
		if err := tx.First(&o, orderID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.NotFound("order", orderID)
			}
			return fmt.Errorf("failed to retrieve order: %w", err)
		}
		if o.IsTerminal() {
			return &apperr.InvalidTransitionError{Current: string(o.Status), Requested: "discount_verified"}
		}
		if !o.IsSeniorDiscount {
			return apperr.Invalid("discount", "order has no discount claim")
		}
		if o.SeniorIDVerified {
			return apperr.Invalid("discount", "discount already verified")
		}

		now := w.clock.Now()
		updates := map[string]interface{}{
			"version":    o.Version + 1,
			"updated_at": now,
		}
		if approved {
			updates["senior_id_verified"] = true
			updates["discount_verified_by"] = actor.UserID
			updates["total_amount"] = o.SubtotalAmount - o.DiscountAmount
			if comment == "" {
				comment = fmt.Sprintf("%s discount verified", strings.ToUpper(string(o.DiscountType)))
			}
		} else {
			updates["is_senior_discount"] = false
			updates["discount_type"] = string(DiscountTypeNone)
			updates["discount_amount"] = 0
			updates["total_amount"] = o.SubtotalAmount
			if comment == "" {
				comment = "Discount claim rejected"
			}
		}

		result := tx.Model(&Order{}).Where("id = ? AND version = ?", o.ID, o.Version).Updates(updates)
		if result.Error != nil {
			return fmt.Errorf("failed to update discount: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return apperr.ErrConflict
		}

		return tx.Create(&OrderStatusHistory{
			OrderID:   o.ID,
			Status:    o.Status,
			Comment:   comment,
			CreatedBy: actor.UserID,
			CreatedAt: now,
		}).Error
	})
	if err != nil {
		return nil, err
	}

	order, err := w.load(ctx, orderID)
	if err != nil {
		return nil, err
	}

	message := fmt.Sprintf("Your discount for order %s was verified. New total: %s.", order.OrderNumber, email.FormatMoney(order.TotalAmount, order.Currency))
	if !approved {
		message = fmt.Sprintf("We could not verify the discount ID for order %s. The regular price applies.", order.OrderNumber)
	}
	w.emit(ctx, order, "verify_discount", effect{
		kind:            notification.TypeDiscount,
		customerTitle:   "Discount review",
		customerMessage: message,
	})
	return order, nil
}

// Get returns an order with its items and history. Customers only see their own orders.
func (w *Workflow) Get(ctx context.Context, actor Actor, orderID uint) (*Order, error) {
	order, err := w.load(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin && !order.IsOwnedBy(actor.UserID) {
		return nil, apperr.NotFound("order", orderID)
	}
	return order, nil
}

// History returns the status history of an order, oldest first
func (w *Workflow) History(ctx context.Context, actor Actor, orderID uint) ([]OrderStatusHistory, error) {
	order, err := w.Get(ctx, actor, orderID)
	if err != nil {
		return nil, err
	}
	return order.StatusHistory, nil
}

// ListForUser retrieves orders for a specific user
func (w *Workflow) ListForUser(ctx context.Context, userID uint, page, limit int) (*OrderResponse, error) {
	return w.List(ctx, &OrderListRequest{
		Page:   page,
		Limit:  limit,
		UserID: userID,
	})
}

// List retrieves orders with filtering and pagination
func (w *Workflow) List(ctx context.Context, req *OrderListRequest) (*OrderResponse, error) {
	if req.Page < 1 {
		req.Page = 1
	}
	if req.Limit < 1 || req.Limit > 100 {
		req.Limit = 20
	}

	query := w.db.WithContext(ctx).Model(&Order{})
	if req.Status != "" {
		query = query.Where("status = ?", req.Status)
	}
	if req.PaymentMethod != "" {
		query = query.Where("payment_method = ?", req.PaymentMethod)
	}
	if req.UserID > 0 {
		query = query.Where("user_id = ?", req.UserID)
	}
	if req.DateFrom != "" {
		query = query.Where("created_at >= ?", req.DateFrom)
	}
	if req.DateTo != "" {
		query = query.Where("created_at <= ?", req.DateTo)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, fmt.Errorf("failed to count orders: %w", err)
	}

	var orders []Order
	offset := (req.Page - 1) * req.Limit
	if err := query.Preload("Items").
		Order(buildOrderClause(req.SortBy, req.SortOrder)).
		Offset(offset).Limit(req.Limit).
		Find(&orders).Error; err != nil {
		return nil, fmt.Errorf("failed to retrieve orders: %w", err)
	}

	totalPages := int((total + int64(req.Limit) - 1) / int64(req.Limit))
	return &OrderResponse{
		Orders: orders,
		Pagination: Pagination{
			Page:       req.Page,
			Limit:      req.Limit,
			Total:      total,
			TotalPages: totalPages,
			HasNext:    req.Page < totalPages,
			HasPrev:    req.Page > 1,
		},
	}, nil
}

type step struct {
	actor     Actor
	event     Event
	requested OrderStatus // explicit target; empty means the event's own target
	adminOnly bool
	authorize func(o *Order) error
	apply     func(o *Order, next OrderStatus, now time.Time) (map[string]interface{}, string, error)
}

// transition applies one event to an order. The version check makes the
// precondition and the write atomic: a concurrent writer that got there
// first turns this call into ErrConflict.
func (w *Workflow) transition(ctx context.Context, orderID uint, s step) (*Order, error) {
	err := w.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var o Order
		if err := tx.Preload("Items").First(&o, orderID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.NotFound("order", orderID)
			}
			return fmt.Errorf("failed to retrieve order: %w", err)
		}

		if !s.actor.IsAdmin && !o.IsOwnedBy(s.actor.UserID) {
			return apperr.NotFound("order", orderID)
		}
		if s.adminOnly && !s.actor.IsAdmin {
			return apperr.ErrForbidden
		}
		if s.authorize != nil {
			if err := s.authorize(&o); err != nil {
				return err
			}
		}

		requested := s.requested
		if requested == "" {
			requested = eventTarget[s.event]
		}
		next, ok := Next(o.PaymentMethod, o.Status, s.event)
		if !ok || (s.requested != "" && next != s.requested) {
			return &apperr.InvalidTransitionError{Current: string(o.Status), Requested: string(requested)}
		}

		now := w.clock.Now()
		updates, comment, err := s.apply(&o, next, now)
		if err != nil {
			return err
		}

		commit := next == StockCommitStatus && !o.StockCommitted
		release := next == OrderStatusCancelled && !o.StockCommitted

		updates["status"] = string(next)
		updates["version"] = o.Version + 1
		updates["updated_at"] = now
		if commit {
			updates["stock_committed"] = true
		}

		result := tx.Model(&Order{}).Where("id = ? AND version = ?", o.ID, o.Version).Updates(updates)
		if result.Error != nil {
			return fmt.Errorf("failed to update order status: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return apperr.ErrConflict
		}

		ledger := w.ledger.WithTx(tx)
		for _, item := range o.Items {
			switch {
			case commit:
				if err := ledger.Commit(ctx, item.ProductID, item.Quantity); err != nil {
					return fmt.Errorf("failed to commit stock for %s: %w", item.SKU, err)
				}
			case release:
				if err := ledger.Release(ctx, item.ProductID, item.Quantity); err != nil {
					return fmt.Errorf("failed to release stock for %s: %w", item.SKU, err)
				}
			}
		}

		var history []OrderStatusHistory
		if via, ok := passThrough[s.event]; ok {
			history = append(history, OrderStatusHistory{OrderID: o.ID, Status: via, Comment: comment, CreatedBy: s.actor.UserID, CreatedAt: now})
		}
		history = append(history, OrderStatusHistory{OrderID: o.ID, Status: next, Comment: comment, CreatedBy: s.actor.UserID, CreatedAt: now})
		if err := tx.Create(&history).Error; err != nil {
			return fmt.Errorf("failed to create status history: %w", err)
		}

		w.logger.WithFields(logrus.Fields{
			"order_id": o.ID,
			"event":    s.event,
			"from":     o.Status,
			"to":       next,
			"actor_id": s.actor.UserID,
		}).Info("Order status changed")
		return nil
	})
	if err != nil {
		return nil, err
	}

	return w.load(ctx, orderID)
}

func (w *Workflow) load(ctx context.Context, orderID uint) (*Order, error) {
	var o Order
	err := w.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB {
			return db.Order("id ASC")
		}).
		Preload("StatusHistory", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at ASC, id ASC")
		}).
		First(&o, orderID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("order", orderID)
		}
		return nil, fmt.Errorf("failed to retrieve order: %w", err)
	}
	return &o, nil
}

type effect struct {
	kind            notification.Type
	customerTitle   string
	customerMessage string
	adminTitle      string
	adminMessage    string
	template        email.TemplateKey
}

// emit delivers notifications and email after a committed change. Failures
// are logged and dropped; the order state is already final.
func (w *Workflow) emit(ctx context.Context, o *Order, event string, e effect) {
	orderID := o.ID
	log := w.logger.WithFields(logrus.Fields{"order_id": o.ID, "event": event})

	if e.customerTitle != "" {
		if err := w.notifier.Notify(ctx, o.UserID, e.customerTitle, e.customerMessage, e.kind, &orderID); err != nil {
			log.WithError(err).Warn("Failed to notify customer")
		}
	}
	if e.adminTitle != "" {
		if err := w.notifier.NotifyAdmins(ctx, e.adminTitle, e.adminMessage, e.kind, &orderID); err != nil {
			log.WithError(err).Warn("Failed to notify administrators")
		}
	}
	if e.template != "" {
		if err := w.mailer.SendOrderEmail(ctx, e.template, EmailContext(o)); err != nil {
			log.WithError(err).Warn("Failed to send order email")
		}
	}
}

// EmailContext converts an order into template data
func EmailContext(o *Order) *email.OrderContext {
	data := &email.OrderContext{
		OrderID:       o.ID,
		OrderNumber:   o.OrderNumber,
		CustomerName:  o.CustomerName,
		CustomerEmail: o.Email,
		Status:        statusLabel(o.Status),
		PaymentMethod: string(o.PaymentMethod),
		PaymentStatus: string(o.PaymentStatus),
		Subtotal:      o.SubtotalAmount,
		Total:         o.TotalAmount,
		Currency:      o.Currency,
		PlacedAt:      o.CreatedAt,
	}
	if o.IsSeniorDiscount && o.SeniorIDVerified {
		data.Discount = o.DiscountAmount
	}
	switch o.Status {
	case OrderStatusCancelled:
		data.Reason = o.CancellationReason
	case OrderStatusAwaitingPayment:
		data.Reason = o.PaymentRejectionReason
	}

	data.Items = make([]email.OrderLine, len(o.Items))
	for i, item := range o.Items {
		data.Items[i] = email.OrderLine{
			Name:     item.Name,
			Unit:     item.Unit,
			Quantity: item.Quantity,
			Price:    item.Price,
			Total:    item.TotalPrice,
		}
	}
	return data
}

func statusLabel(s OrderStatus) string {
	return strings.ReplaceAll(string(s), "_", " ")
}

func buildOrderClause(sortBy, sortOrder string) string {
	validSortFields := map[string]bool{
		"created_at":   true,
		"updated_at":   true,
		"total_amount": true,
		"status":       true,
		"order_number": true,
	}

	if !validSortFields[sortBy] {
		sortBy = "created_at"
	}
	if sortOrder != "asc" && sortOrder != "desc" {
		sortOrder = "desc"
	}

	return fmt.Sprintf("%s %s, id %s", sortBy, sortOrder, sortOrder)
}
