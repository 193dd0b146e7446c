// internal/services/payment_service_test.go
package services

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"

	"github.com/agribazaar/agribazaar-backend/internal/config"
	"github.com/agribazaar/agribazaar-backend/internal/models"
	"github.com/agribazaar/agribazaar-backend/internal/store/storetest"
)

// stubGateway returns a canned verification without calling out.
type stubGateway struct {
	verification GatewayVerification
	err          error
}

func (g *stubGateway) Verify(ctx context.Context, method models.PaymentMethod, assertion GatewayAssertion) (*GatewayVerification, error) {
	if g.err != nil {
		return nil, g.err
	}
	v := g.verification
	return &v, nil
}

type PaymentServiceTestSuite struct {
	suite.Suite
	ctx      context.Context
	store    *storetest.MemStore
	gateway  *stubGateway
	orders   *OrderService
	payments *PaymentService
	customer uuid.UUID
	farmer   uuid.UUID
	mangoes  *models.Product
}

func (suite *PaymentServiceTestSuite) SetupTest() {
	suite.ctx = context.Background()
	suite.store = storetest.NewMemStore()
	suite.gateway = &stubGateway{}
	suite.customer = uuid.New()
	suite.farmer = uuid.New()

	cfg := &config.Config{}
	cfg.Payment.Currency = "NPR"

	suite.orders = NewOrderService(suite.store, nil)
	suite.payments = NewPaymentService(suite.store, suite.gateway, cfg, nil)

	suite.mangoes = suite.store.AddProduct(models.Product{
		FarmerID: suite.farmer,
		Name:     "Mangoes",
		Category: "fruits",
		Price:    300,
		Quantity: 6,
		Unit:     "kg",
		Status:   models.ProductStatusAvailable,
	})
}

func (suite *PaymentServiceTestSuite) placeGatewayOrder(quantity int) *models.Order {
	order, err := suite.orders.PlaceOrder(suite.ctx, suite.customer, models.UserRoleCustomer, &PlaceOrderRequest{
		Items:           []CartLine{{ProductID: suite.mangoes.ID, Quantity: quantity}},
		DeliveryAddress: models.DeliveryAddress{Region: "Gandaki", City: "Pokhara", Street: "Lakeside"},
		PaymentMethod:   models.PaymentMethodEsewa,
	})
	suite.Require().NoError(err)
	return order
}

func (suite *PaymentServiceTestSuite) TestConfirmPaymentReservesDeferredStock() {
	order := suite.placeGatewayOrder(2)
	suite.Require().False(order.StockReserved)

	suite.gateway.verification = GatewayVerification{
		Verified:  true,
		Reference: "esewa-ref-001",
		Amount:    600,
	}

	confirmed, err := suite.payments.ConfirmPayment(suite.ctx, &ConfirmPaymentRequest{
		OrderID:   order.ID,
		Assertion: GatewayAssertion{Token: "tok", Amount: 600},
	})
	suite.Require().NoError(err)

	assert.Equal(suite.T(), models.OrderStatusConfirmed, confirmed.Status)
	assert.Equal(suite.T(), models.PaymentStatusCompleted, confirmed.PaymentStatus)
	assert.Equal(suite.T(), "esewa-ref-001", confirmed.PaymentRef)
	assert.True(suite.T(), confirmed.StockReserved)
	assert.NotNil(suite.T(), confirmed.ConfirmedAt)

	// The deferred reservation lands exactly now.
	product := suite.store.ProductByID(suite.mangoes.ID)
	assert.Equal(suite.T(), 4, product.Quantity)
	assert.Equal(suite.T(), int64(2), product.SalesCount)

	txn := suite.store.TransactionByOrderID(order.ID)
	suite.Require().NotNil(txn)
	assert.Equal(suite.T(), models.PaymentStatusCompleted, txn.Status)
	assert.Equal(suite.T(), "esewa-ref-001", txn.GatewayRef)
	assert.Equal(suite.T(), "NPR", txn.Currency)
	assert.NotNil(suite.T(), txn.CompletedAt)
}

func (suite *PaymentServiceTestSuite) TestConfirmPaymentAmountMismatchChangesNothing() {
	order := suite.placeGatewayOrder(2)

	suite.gateway.verification = GatewayVerification{
		Verified:  true,
		Reference: "esewa-ref-002",
		Amount:    500,
	}

	_, err := suite.payments.ConfirmPayment(suite.ctx, &ConfirmPaymentRequest{
		OrderID:   order.ID,
		Assertion: GatewayAssertion{Token: "tok", Amount: 500},
	})

	var mismatchErr *PaymentMismatchError
	suite.Require().ErrorAs(err, &mismatchErr)
	assert.Equal(suite.T(), 600.0, mismatchErr.Expected)
	assert.Equal(suite.T(), 500.0, mismatchErr.Asserted)

	stored := suite.store.OrderByID(order.ID)
	assert.Equal(suite.T(), models.OrderStatusPending, stored.Status)
	assert.False(suite.T(), stored.StockReserved)

	product := suite.store.ProductByID(suite.mangoes.ID)
	assert.Equal(suite.T(), 6, product.Quantity)
}

func (suite *PaymentServiceTestSuite) TestConfirmPaymentUnverifiedRecordsFailure() {
	order := suite.placeGatewayOrder(1)

	_, err := suite.payments.InitiatePayment(suite.ctx, order.ID, suite.customer)
	suite.Require().NoError(err)

	suite.gateway.verification = GatewayVerification{Verified: false}

	_, err = suite.payments.ConfirmPayment(suite.ctx, &ConfirmPaymentRequest{
		OrderID:   order.ID,
		Assertion: GatewayAssertion{Token: "bad-tok", Amount: 300},
	})

	var validationErr *ValidationError
	suite.Require().ErrorAs(err, &validationErr)

	txn := suite.store.TransactionByOrderID(order.ID)
	suite.Require().NotNil(txn)
	assert.Equal(suite.T(), models.PaymentStatusFailed, txn.Status)
	assert.NotEmpty(suite.T(), txn.FailureReason)

	stored := suite.store.OrderByID(order.ID)
	assert.Equal(suite.T(), models.OrderStatusPending, stored.Status)
}

func (suite *PaymentServiceTestSuite) TestConfirmPaymentIsNotRepeatable() {
	order := suite.placeGatewayOrder(1)

	suite.gateway.verification = GatewayVerification{
		Verified:  true,
		Reference: "esewa-ref-003",
		Amount:    300,
	}

	_, err := suite.payments.ConfirmPayment(suite.ctx, &ConfirmPaymentRequest{
		OrderID:   order.ID,
		Assertion: GatewayAssertion{Token: "tok", Amount: 300},
	})
	suite.Require().NoError(err)

	_, err = suite.payments.ConfirmPayment(suite.ctx, &ConfirmPaymentRequest{
		OrderID:   order.ID,
		Assertion: GatewayAssertion{Token: "tok", Amount: 300},
	})

	var stateErr *InvalidStateError
	suite.Require().ErrorAs(err, &stateErr)

	// Stock must not be reserved a second time.
	product := suite.store.ProductByID(suite.mangoes.ID)
	assert.Equal(suite.T(), 5, product.Quantity)
	assert.Equal(suite.T(), int64(1), product.SalesCount)
}

func (suite *PaymentServiceTestSuite) TestConfirmPaymentRollsBackWhenStockIsGone() {
	order := suite.placeGatewayOrder(4)

	// Most of the stock disappears before the gateway confirms.
	suite.store.SetProductQuantity(suite.mangoes.ID, 2)

	suite.gateway.verification = GatewayVerification{
		Verified:  true,
		Reference: "esewa-ref-004",
		Amount:    1200,
	}

	_, err := suite.payments.ConfirmPayment(suite.ctx, &ConfirmPaymentRequest{
		OrderID:   order.ID,
		Assertion: GatewayAssertion{Token: "tok", Amount: 1200},
	})

	var concurrentErr *ConcurrentModificationError
	suite.Require().ErrorAs(err, &concurrentErr)

	// The status flip inside the transaction was rolled back with the
	// reservation; the order is still pending and unreserved.
	stored := suite.store.OrderByID(order.ID)
	assert.Equal(suite.T(), models.OrderStatusPending, stored.Status)
	assert.Equal(suite.T(), models.PaymentStatusInitiated, stored.PaymentStatus)
	assert.False(suite.T(), stored.StockReserved)

	product := suite.store.ProductByID(suite.mangoes.ID)
	assert.Equal(suite.T(), 2, product.Quantity)
}

func (suite *PaymentServiceTestSuite) TestConfirmPaymentRejectsCashOnDelivery() {
	order, err := suite.orders.PlaceOrder(suite.ctx, suite.customer, models.UserRoleCustomer, &PlaceOrderRequest{
		Items:           []CartLine{{ProductID: suite.mangoes.ID, Quantity: 1}},
		DeliveryAddress: models.DeliveryAddress{Region: "Gandaki", City: "Pokhara", Street: "Lakeside"},
		PaymentMethod:   models.PaymentMethodCashOnDelivery,
	})
	suite.Require().NoError(err)

	_, err = suite.payments.ConfirmPayment(suite.ctx, &ConfirmPaymentRequest{
		OrderID:   order.ID,
		Assertion: GatewayAssertion{Token: "tok", Amount: 300},
	})

	var validationErr *ValidationError
	assert.ErrorAs(suite.T(), err, &validationErr)
}

func (suite *PaymentServiceTestSuite) TestInitiatePayment() {
	order := suite.placeGatewayOrder(2)

	txn, err := suite.payments.InitiatePayment(suite.ctx, order.ID, suite.customer)
	suite.Require().NoError(err)

	assert.Equal(suite.T(), models.PaymentStatusInitiated, txn.Status)
	assert.Equal(suite.T(), order.TotalAmount, txn.Amount)
	assert.Equal(suite.T(), models.PaymentMethodEsewa, txn.Gateway)
	assert.Contains(suite.T(), txn.TransactionID, "TXN-")

	_, err = suite.payments.InitiatePayment(suite.ctx, order.ID, uuid.New())
	var permissionErr *PermissionError
	assert.ErrorAs(suite.T(), err, &permissionErr)
}

func (suite *PaymentServiceTestSuite) TestAmountsMatchRounding() {
	assert.True(suite.T(), amountsMatch(600, 600.0000001))
	assert.True(suite.T(), amountsMatch(0.1+0.2, 0.3))
	assert.False(suite.T(), amountsMatch(600, 600.01))
}

func TestPaymentServiceTestSuite(t *testing.T) {
	suite.Run(t, new(PaymentServiceTestSuite))
}
