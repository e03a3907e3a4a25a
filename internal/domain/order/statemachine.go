// internal/domain/order/statemachine.go
package order

// Event is something that happens to an order
type Event string

const (
	EventSubmitPayment  Event = "submit_payment"
	EventApprovePayment Event = "approve_payment"
	EventRejectPayment  Event = "reject_payment"
	EventAdvance        Event = "advance"
	EventCancel         Event = "cancel"
)

// StockCommitStatus is the status at which reserved stock becomes a sale.
// Orders cancelled before reaching it only release their reservation.
const StockCommitStatus = OrderStatusCompleted

type transition struct {
	from  OrderStatus
	event Event
}

// fulfilment chain shared by both payment methods
var fulfilment = map[transition]OrderStatus{
	{OrderStatusConfirmed, EventAdvance}: OrderStatusPreparing,
	{OrderStatusPreparing, EventAdvance}: OrderStatusReady,
	{OrderStatusReady, EventAdvance}:     OrderStatusCompleted,
}

var qrTransitions = map[transition]OrderStatus{
	{OrderStatusAwaitingPayment, EventSubmitPayment}:  OrderStatusPaymentSubmitted,
	{OrderStatusPaymentSubmitted, EventApprovePayment}: OrderStatusConfirmed,
	{OrderStatusPaymentSubmitted, EventRejectPayment}:  OrderStatusAwaitingPayment,

	// Rows written before approve/reject settled in a single step
	{OrderStatusPaymentRejected, EventSubmitPayment}: OrderStatusPaymentSubmitted,
	{OrderStatusPaymentApproved, EventAdvance}:       OrderStatusConfirmed,
}

var cashTransitions = map[transition]OrderStatus{
	{OrderStatusPending, EventAdvance}: OrderStatusConfirmed,
}

// passThrough is recorded in history between from and to for payment review
var passThrough = map[Event]OrderStatus{
	EventApprovePayment: OrderStatusPaymentApproved,
	EventRejectPayment:  OrderStatusPaymentRejected,
}

// eventTarget names the state an event asks for, used in errors
var eventTarget = map[Event]OrderStatus{
	EventSubmitPayment:  OrderStatusPaymentSubmitted,
	EventApprovePayment: OrderStatusPaymentApproved,
	EventRejectPayment:  OrderStatusPaymentRejected,
	EventCancel:         OrderStatusCancelled,
}

// InitialStatus returns the status a new order starts in
func InitialStatus(method PaymentMethod) OrderStatus {
	if method == PaymentMethodQR {
		return OrderStatusAwaitingPayment
	}
	return OrderStatusPending
}

// Next returns the status an order moves to when event happens, or false
// when the event is not allowed from the current status.
func Next(method PaymentMethod, from OrderStatus, event Event) (OrderStatus, bool) {
	if event == EventCancel {
		if from.IsTerminal() || !from.Valid() {
			return "", false
		}
		return OrderStatusCancelled, true
	}

	if to, ok := fulfilment[transition{from, event}]; ok {
		return to, true
	}

	table := cashTransitions
	if method == PaymentMethodQR {
		table = qrTransitions
	}
	to, ok := table[transition{from, event}]
	return to, ok
}

// NextAdvance returns the immediate successor of from in the fulfilment chain
func NextAdvance(method PaymentMethod, from OrderStatus) (OrderStatus, bool) {
	return Next(method, from, EventAdvance)
}
