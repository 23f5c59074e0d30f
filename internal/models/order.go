package models

import (
	"time"
)

// OrderStatus represents the fulfillment state of an order.
// Transitions only ever move forward through the sequence
// PENDING -> PREPARING -> READY -> COMPLETED.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "PENDING"
	OrderStatusPreparing OrderStatus = "PREPARING"
	OrderStatusReady     OrderStatus = "READY"
	OrderStatusCompleted OrderStatus = "COMPLETED"
)

var statusRank = map[OrderStatus]int{
	OrderStatusPending:   0,
	OrderStatusPreparing: 1,
	OrderStatusReady:     2,
	OrderStatusCompleted: 3,
}

// Valid reports whether s is one of the known fulfillment states.
func (s OrderStatus) Valid() bool {
	_, ok := statusRank[s]
	return ok
}

// Next returns the immediate successor of s. The second return value is
// false when s is terminal or unknown.
func (s OrderStatus) Next() (OrderStatus, bool) {
	switch s {
	case OrderStatusPending:
		return OrderStatusPreparing, true
	case OrderStatusPreparing:
		return OrderStatusReady, true
	case OrderStatusReady:
		return OrderStatusCompleted, true
	default:
		return "", false
	}
}

// Rank returns the position of s in the fulfillment sequence. Unknown
// statuses rank below PENDING.
func (s OrderStatus) Rank() int {
	if r, ok := statusRank[s]; ok {
		return r
	}
	return -1
}

// PaymentStatus is the outcome reported by the external payment collaborator.
// It is written exactly once and is terminal.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentSucceeded PaymentStatus = "succeeded"
	PaymentFailed    PaymentStatus = "failed"
)

// OrderType distinguishes immediate pickup from scheduled pickup.
type OrderType string

const (
	OrderTypeNow   OrderType = "NOW"
	OrderTypeLater OrderType = "LATER"
)

// Order represents a canteen order through its full fulfillment lifecycle.
// Items and TotalAmount are immutable after creation. OrderStatus is owned
// by the fulfillment state machine; Version is the optimistic-concurrency
// token incremented on every accepted status write.
type Order struct {
	ID         string `gorm:"primary_key" json:"id"`
	CanteenID  string `gorm:"index" json:"canteenId"`
	CustomerID string `gorm:"index" json:"customerId"`

	CustomerName  string `json:"customerName"`
	CustomerEmail string `json:"customerEmail"`
	CustomerPhone string `json:"customerPhone"`

	Items       []OrderItem `gorm:"foreignkey:OrderID" json:"items"`
	TotalAmount float64     `json:"totalAmount"`

	OrderType  OrderType `json:"orderType"`
	PickupDate string    `json:"pickupDate"`
	PickupTime string    `json:"pickupTime"`

	PaymentStatus PaymentStatus `json:"paymentStatus"`
	OrderStatus   OrderStatus   `json:"orderStatus"`
	Version       int64         `json:"version"`

	QRToken      string `json:"qrToken,omitempty"`
	QRCodeBase64 string `gorm:"type:text" json:"qrCodeBase64,omitempty"`

	History []StatusChange `gorm:"foreignkey:OrderID" json:"statusHistory,omitempty"`

	PreparedAt  *time.Time `json:"preparedAt,omitempty"`
	ReadyAt     *time.Time `json:"readyAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// OrderItem is a single line item on an order. Line items never change
// after the order is created.
type OrderItem struct {
	ID         uint    `gorm:"primary_key" json:"-"`
	OrderID    string  `gorm:"index" json:"-"`
	MenuItemID string  `json:"menuItemId"`
	Name       string  `json:"name"`
	UnitPrice  float64 `json:"unitPrice"`
	Quantity   int     `json:"quantity"`
}

// StatusChange records one accepted fulfillment transition.
type StatusChange struct {
	ID         uint        `gorm:"primary_key" json:"-"`
	OrderID    string      `gorm:"index" json:"-"`
	FromStatus OrderStatus `json:"fromStatus"`
	ToStatus   OrderStatus `json:"toStatus"`
	ChangedAt  time.Time   `json:"changedAt"`
	ChangedBy  string      `json:"changedBy"`
}

// Subtotal returns the derived total of the order's line items.
func Subtotal(items []OrderItem) float64 {
	var total float64
	for _, item := range items {
		total += item.UnitPrice * float64(item.Quantity)
	}
	return total
}
