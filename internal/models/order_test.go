// internal/models/order_test.go
package models

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestOrderStatusTerminal(t *testing.T) {
	terminal := []OrderStatus{OrderStatusDelivered, OrderStatusCompleted, OrderStatusCancelled}
	for _, s := range terminal {
		assert.True(t, s.IsTerminal(), "expected %s to be terminal", s)
	}

	open := []OrderStatus{OrderStatusPending, OrderStatusConfirmed, OrderStatusProcessing, OrderStatusShipped}
	for _, s := range open {
		assert.False(t, s.IsTerminal(), "expected %s to be open", s)
	}
}

func TestIsValidOrderStatus(t *testing.T) {
	assert.True(t, IsValidOrderStatus(OrderStatusShipped))
	assert.False(t, IsValidOrderStatus(OrderStatus("returned")))
}

func TestPaymentMethodGatewayConfirmation(t *testing.T) {
	assert.True(t, PaymentMethodEsewa.RequiresGatewayConfirmation())
	assert.True(t, PaymentMethodKhalti.RequiresGatewayConfirmation())
	assert.True(t, PaymentMethodCard.RequiresGatewayConfirmation())
	assert.False(t, PaymentMethodCashOnDelivery.RequiresGatewayConfirmation())
}

func TestFarmerIDsDeduplicates(t *testing.T) {
	farmerA := uuid.New()
	farmerB := uuid.New()

	order := Order{
		Items: []OrderItem{
			{FarmerID: farmerA},
			{FarmerID: farmerB},
			{FarmerID: farmerA},
		},
	}

	ids := order.FarmerIDs()
	assert.Len(t, ids, 2)
	assert.Contains(t, ids, farmerA)
	assert.Contains(t, ids, farmerB)
}

func TestDeliveryAddressIsEmpty(t *testing.T) {
	assert.True(t, DeliveryAddress{}.IsEmpty())
	assert.False(t, DeliveryAddress{City: "Kathmandu"}.IsEmpty())
}

func TestGenerateTransactionID(t *testing.T) {
	orderID := uuid.MustParse("a1b2c3d4-0000-0000-0000-000000000000")
	now := time.Date(2025, time.March, 7, 14, 5, 9, 0, time.UTC)

	got := GenerateTransactionID(orderID, now)
	assert.Equal(t, "TXN-2025-0307-140509-a1b2c3d4", got)
}
