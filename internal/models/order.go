// internal/models/order.go
package models

import (
	"time"

	"github.com/google/uuid"
)

type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusConfirmed  OrderStatus = "confirmed"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusShipped    OrderStatus = "shipped"
	OrderStatusDelivered  OrderStatus = "delivered"
	OrderStatusCompleted  OrderStatus = "completed"
	OrderStatusCancelled  OrderStatus = "cancelled"
)

func IsValidOrderStatus(s OrderStatus) bool {
	switch s {
	case OrderStatusPending, OrderStatusConfirmed, OrderStatusProcessing,
		OrderStatusShipped, OrderStatusDelivered, OrderStatusCompleted,
		OrderStatusCancelled:
		return true
	}
	return false
}

// IsTerminal reports whether no further transition is permitted from s.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusDelivered || s == OrderStatusCompleted || s == OrderStatusCancelled
}

// DeliveryAddress is validated as present, not geocoded.
type DeliveryAddress struct {
	Region string `json:"region" gorm:"size:100"`
	City   string `json:"city" gorm:"size:100"`
	Street string `json:"street" gorm:"size:255"`
}

func (a DeliveryAddress) IsEmpty() bool {
	return a.Region == "" && a.City == "" && a.Street == ""
}

type Order struct {
	BaseModel
	CustomerID      uuid.UUID       `json:"customer_id" gorm:"type:uuid;not null;index"`
	Items           []OrderItem     `json:"items" gorm:"foreignKey:OrderID"`
	TotalAmount     float64         `json:"total_amount" gorm:"type:decimal(12,2);not null"`
	Status          OrderStatus     `json:"status" gorm:"type:varchar(20);default:'pending';index"`
	PaymentMethod   PaymentMethod   `json:"payment_method" gorm:"type:varchar(30);not null"`
	PaymentStatus   PaymentStatus   `json:"payment_status" gorm:"type:varchar(20);default:'pending'"`
	PaymentRef      string          `json:"payment_ref,omitempty" gorm:"size:255"`
	DeliveryAddress DeliveryAddress `json:"delivery_address" gorm:"embedded;embeddedPrefix:delivery_"`
	// StockReserved records whether inventory has been decremented for this
	// order. Stock is reserved exactly once: at placement for
	// cash-on-delivery, at gateway confirmation otherwise. Cancellation
	// compensates only when it is set.
	StockReserved bool       `json:"stock_reserved" gorm:"not null;default:false"`
	ConfirmedAt   *time.Time `json:"confirmed_at"`
	CancelledAt   *time.Time `json:"cancelled_at"`

	// Relationships
	Customer User `json:"customer,omitempty" gorm:"foreignKey:CustomerID"`
}

// OrderItem is a value-object snapshot of a product at order time. Prices
// and names are copied so later catalog edits never alter historical orders.
type OrderItem struct {
	ID          uuid.UUID `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	OrderID     uuid.UUID `json:"order_id" gorm:"type:uuid;not null;index"`
	ProductID   uuid.UUID `json:"product_id" gorm:"type:uuid;not null;index"`
	FarmerID    uuid.UUID `json:"farmer_id" gorm:"type:uuid;not null;index"`
	ProductName string    `json:"product_name" gorm:"size:255;not null"`
	UnitPrice   float64   `json:"unit_price" gorm:"type:decimal(10,2);not null"`
	Quantity    int       `json:"quantity" gorm:"not null"`
	Subtotal    float64   `json:"subtotal" gorm:"type:decimal(12,2);not null"`
}

// FarmerIDs returns the distinct farmers whose products appear on the order.
func (o *Order) FarmerIDs() []uuid.UUID {
	seen := make(map[uuid.UUID]bool, len(o.Items))
	var ids []uuid.UUID
	for _, item := range o.Items {
		if !seen[item.FarmerID] {
			seen[item.FarmerID] = true
			ids = append(ids, item.FarmerID)
		}
	}
	return ids
}
