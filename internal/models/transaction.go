// internal/models/transaction.go
package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// PaymentTransaction is one payment attempt against an order. Gateway
// responses are stored verbatim for later dispute handling.
type PaymentTransaction struct {
	BaseModel
	OrderID       uuid.UUID     `json:"order_id" gorm:"type:uuid;not null;index"`
	UserID        uuid.UUID     `json:"user_id" gorm:"type:uuid;not null;index"`
	TransactionID string        `json:"transaction_id" gorm:"size:64;uniqueIndex;not null"`
	Gateway       PaymentMethod `json:"gateway" gorm:"type:varchar(30);not null"`
	Amount        float64       `json:"amount" gorm:"type:decimal(12,2);not null"`
	Currency      string        `json:"currency" gorm:"size:10;default:'NPR'"`
	Status        PaymentStatus `json:"status" gorm:"type:varchar(20);default:'pending';index"`
	GatewayRef    string        `json:"gateway_ref,omitempty" gorm:"size:255"`
	GatewayData   JSONB         `json:"gateway_data,omitempty" gorm:"type:jsonb"`
	FailureReason string        `json:"failure_reason,omitempty" gorm:"type:text"`
	InitiatedAt   time.Time     `json:"initiated_at"`
	CompletedAt   *time.Time    `json:"completed_at"`

	// Relationships
	Order Order `json:"order,omitempty" gorm:"foreignKey:OrderID"`
	User  User  `json:"user,omitempty" gorm:"foreignKey:UserID"`
}

// GenerateTransactionID builds the system transaction id in the format
// TXN-YYYY-MMDD-HHMMSS-<order id prefix>.
func GenerateTransactionID(orderID uuid.UUID, now time.Time) string {
	short := orderID.String()[:8]
	return fmt.Sprintf("TXN-%d-%02d%02d-%02d%02d%02d-%s",
		now.Year(), now.Month(), now.Day(),
		now.Hour(), now.Minute(), now.Second(), short)
}
