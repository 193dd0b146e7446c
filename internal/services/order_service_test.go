// internal/services/order_service_test.go
package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"

	"github.com/agribazaar/agribazaar-backend/internal/models"
	"github.com/agribazaar/agribazaar-backend/internal/store/storetest"
	"github.com/agribazaar/agribazaar-backend/internal/utils"
)

type OrderServiceTestSuite struct {
	suite.Suite
	ctx      context.Context
	store    *storetest.MemStore
	service  *OrderService
	customer uuid.UUID
	farmer   uuid.UUID
	tomatoes *models.Product
	apples   *models.Product
}

func (suite *OrderServiceTestSuite) SetupTest() {
	suite.ctx = context.Background()
	suite.store = storetest.NewMemStore()
	suite.service = NewOrderService(suite.store, nil)
	suite.customer = uuid.New()
	suite.farmer = uuid.New()

	suite.tomatoes = suite.store.AddProduct(models.Product{
		FarmerID: suite.farmer,
		Name:     "Tomatoes",
		Category: "vegetables",
		Price:    120.50,
		Quantity: 10,
		Unit:     "kg",
		Status:   models.ProductStatusAvailable,
	})
	suite.apples = suite.store.AddProduct(models.Product{
		FarmerID: suite.farmer,
		Name:     "Apples",
		Category: "fruits",
		Price:    250,
		Quantity: 4,
		Unit:     "kg",
		Status:   models.ProductStatusAvailable,
	})
}

func (suite *OrderServiceTestSuite) address() models.DeliveryAddress {
	return models.DeliveryAddress{Region: "Bagmati", City: "Kathmandu", Street: "Thamel"}
}

func (suite *OrderServiceTestSuite) placeCODOrder(lines ...CartLine) *models.Order {
	order, err := suite.service.PlaceOrder(suite.ctx, suite.customer, models.UserRoleCustomer, &PlaceOrderRequest{
		Items:           lines,
		DeliveryAddress: suite.address(),
		PaymentMethod:   models.PaymentMethodCashOnDelivery,
	})
	suite.Require().NoError(err)
	return order
}

func (suite *OrderServiceTestSuite) TestPlaceOrderCashOnDeliveryReservesImmediately() {
	order := suite.placeCODOrder(CartLine{ProductID: suite.tomatoes.ID, Quantity: 3})

	assert.Equal(suite.T(), models.OrderStatusPending, order.Status)
	assert.Equal(suite.T(), models.PaymentStatusPending, order.PaymentStatus)
	assert.True(suite.T(), order.StockReserved)
	assert.Equal(suite.T(), 361.50, order.TotalAmount)

	product := suite.store.ProductByID(suite.tomatoes.ID)
	assert.Equal(suite.T(), 7, product.Quantity)
	assert.Equal(suite.T(), int64(3), product.SalesCount)
}

func (suite *OrderServiceTestSuite) TestPlaceOrderGatewayDefersReservation() {
	order, err := suite.service.PlaceOrder(suite.ctx, suite.customer, models.UserRoleCustomer, &PlaceOrderRequest{
		Items:           []CartLine{{ProductID: suite.tomatoes.ID, Quantity: 3}},
		DeliveryAddress: suite.address(),
		PaymentMethod:   models.PaymentMethodEsewa,
	})
	suite.Require().NoError(err)

	assert.False(suite.T(), order.StockReserved)
	assert.Equal(suite.T(), models.PaymentStatusInitiated, order.PaymentStatus)

	// Stock stays untouched until the gateway confirms.
	product := suite.store.ProductByID(suite.tomatoes.ID)
	assert.Equal(suite.T(), 10, product.Quantity)
	assert.Equal(suite.T(), int64(0), product.SalesCount)
}

func (suite *OrderServiceTestSuite) TestPlaceOrderSnapshotsPrices() {
	order := suite.placeCODOrder(
		CartLine{ProductID: suite.tomatoes.ID, Quantity: 2},
		CartLine{ProductID: suite.apples.ID, Quantity: 1},
	)

	suite.Require().Len(order.Items, 2)
	assert.Equal(suite.T(), "Tomatoes", order.Items[0].ProductName)
	assert.Equal(suite.T(), 120.50, order.Items[0].UnitPrice)
	assert.Equal(suite.T(), 241.00, order.Items[0].Subtotal)
	assert.Equal(suite.T(), suite.farmer, order.Items[0].FarmerID)
	assert.Equal(suite.T(), 491.00, order.TotalAmount)

	// A later price change must not alter the stored order.
	suite.store.SetProductPrice(suite.tomatoes.ID, 999)

	stored := suite.store.OrderByID(order.ID)
	assert.Equal(suite.T(), 120.50, stored.Items[0].UnitPrice)
	assert.Equal(suite.T(), 491.00, stored.TotalAmount)
}

func (suite *OrderServiceTestSuite) TestPlaceOrderSellsOutAtZero() {
	suite.placeCODOrder(CartLine{ProductID: suite.apples.ID, Quantity: 4})

	product := suite.store.ProductByID(suite.apples.ID)
	assert.Equal(suite.T(), 0, product.Quantity)
	assert.Equal(suite.T(), models.ProductStatusSoldOut, product.Status)
}

func (suite *OrderServiceTestSuite) TestPlaceOrderInsufficientStock() {
	_, err := suite.service.PlaceOrder(suite.ctx, suite.customer, models.UserRoleCustomer, &PlaceOrderRequest{
		Items:           []CartLine{{ProductID: suite.apples.ID, Quantity: 5}},
		DeliveryAddress: suite.address(),
		PaymentMethod:   models.PaymentMethodCashOnDelivery,
	})

	var stockErr *InsufficientStockError
	suite.Require().ErrorAs(err, &stockErr)
	assert.Equal(suite.T(), 5, stockErr.Requested)
	assert.Equal(suite.T(), 4, stockErr.Available)

	product := suite.store.ProductByID(suite.apples.ID)
	assert.Equal(suite.T(), 4, product.Quantity)
}

func (suite *OrderServiceTestSuite) TestPlaceOrderUnknownProduct() {
	_, err := suite.service.PlaceOrder(suite.ctx, suite.customer, models.UserRoleCustomer, &PlaceOrderRequest{
		Items:           []CartLine{{ProductID: uuid.New(), Quantity: 1}},
		DeliveryAddress: suite.address(),
		PaymentMethod:   models.PaymentMethodCashOnDelivery,
	})

	var notFoundErr *NotFoundError
	assert.ErrorAs(suite.T(), err, &notFoundErr)
}

func (suite *OrderServiceTestSuite) TestPlaceOrderValidation() {
	cases := []struct {
		name string
		req  PlaceOrderRequest
	}{
		{"empty cart", PlaceOrderRequest{
			DeliveryAddress: suite.address(),
			PaymentMethod:   models.PaymentMethodCashOnDelivery,
		}},
		{"zero quantity", PlaceOrderRequest{
			Items:           []CartLine{{ProductID: suite.tomatoes.ID, Quantity: 0}},
			DeliveryAddress: suite.address(),
			PaymentMethod:   models.PaymentMethodCashOnDelivery,
		}},
		{"negative quantity", PlaceOrderRequest{
			Items:           []CartLine{{ProductID: suite.tomatoes.ID, Quantity: -2}},
			DeliveryAddress: suite.address(),
			PaymentMethod:   models.PaymentMethodCashOnDelivery,
		}},
		{"duplicate product", PlaceOrderRequest{
			Items: []CartLine{
				{ProductID: suite.tomatoes.ID, Quantity: 1},
				{ProductID: suite.tomatoes.ID, Quantity: 2},
			},
			DeliveryAddress: suite.address(),
			PaymentMethod:   models.PaymentMethodCashOnDelivery,
		}},
		{"missing address", PlaceOrderRequest{
			Items:         []CartLine{{ProductID: suite.tomatoes.ID, Quantity: 1}},
			PaymentMethod: models.PaymentMethodCashOnDelivery,
		}},
		{"unknown payment method", PlaceOrderRequest{
			Items:           []CartLine{{ProductID: suite.tomatoes.ID, Quantity: 1}},
			DeliveryAddress: suite.address(),
			PaymentMethod:   models.PaymentMethod("bitcoin"),
		}},
	}

	for _, tc := range cases {
		suite.Run(tc.name, func() {
			req := tc.req
			_, err := suite.service.PlaceOrder(suite.ctx, suite.customer, models.UserRoleCustomer, &req)
			var validationErr *ValidationError
			assert.ErrorAs(suite.T(), err, &validationErr)
		})
	}
}

func (suite *OrderServiceTestSuite) TestPlaceOrderRequiresCustomerRole() {
	_, err := suite.service.PlaceOrder(suite.ctx, suite.farmer, models.UserRoleFarmer, &PlaceOrderRequest{
		Items:           []CartLine{{ProductID: suite.tomatoes.ID, Quantity: 1}},
		DeliveryAddress: suite.address(),
		PaymentMethod:   models.PaymentMethodCashOnDelivery,
	})

	var permissionErr *PermissionError
	assert.ErrorAs(suite.T(), err, &permissionErr)
}

func (suite *OrderServiceTestSuite) TestPlaceOrderRollsBackWhenStockRaces() {
	// A rival order consumes the apples between the snapshot read and the
	// reservation transaction. The tomato decrement must roll back with it.
	suite.store.AfterCatalogRead = func() {
		suite.store.AfterCatalogRead = nil
		suite.store.SetProductQuantity(suite.apples.ID, 0)
	}

	_, err := suite.service.PlaceOrder(suite.ctx, suite.customer, models.UserRoleCustomer, &PlaceOrderRequest{
		Items: []CartLine{
			{ProductID: suite.tomatoes.ID, Quantity: 2},
			{ProductID: suite.apples.ID, Quantity: 4},
		},
		DeliveryAddress: suite.address(),
		PaymentMethod:   models.PaymentMethodCashOnDelivery,
	})

	var concurrentErr *ConcurrentModificationError
	suite.Require().ErrorAs(err, &concurrentErr)
	assert.Equal(suite.T(), suite.apples.ID, concurrentErr.ProductID)

	// All-or-nothing: the tomato line was undone and no order persisted.
	tomatoes := suite.store.ProductByID(suite.tomatoes.ID)
	assert.Equal(suite.T(), 10, tomatoes.Quantity)
	assert.Equal(suite.T(), int64(0), tomatoes.SalesCount)

	orders, _, _ := suite.store.Orders().ListOrdersByCustomer(suite.ctx, suite.customer, utils.PaginationParams{})
	assert.Empty(suite.T(), orders)
}

func (suite *OrderServiceTestSuite) TestConcurrentPlacementNeverOversells() {
	const attempts = 10
	var wg sync.WaitGroup
	errs := make([]error, attempts)

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = suite.service.PlaceOrder(suite.ctx, uuid.New(), models.UserRoleCustomer, &PlaceOrderRequest{
				Items:           []CartLine{{ProductID: suite.tomatoes.ID, Quantity: 2}},
				DeliveryAddress: suite.address(),
				PaymentMethod:   models.PaymentMethodCashOnDelivery,
			})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		var stockErr *InsufficientStockError
		var concurrentErr *ConcurrentModificationError
		assert.True(suite.T(), errors.As(err, &stockErr) || errors.As(err, &concurrentErr),
			"unexpected error: %v", err)
	}

	assert.Equal(suite.T(), 5, succeeded)

	product := suite.store.ProductByID(suite.tomatoes.ID)
	assert.Equal(suite.T(), 0, product.Quantity)
	assert.Equal(suite.T(), int64(10), product.SalesCount)
	assert.Equal(suite.T(), models.ProductStatusSoldOut, product.Status)
}

func (suite *OrderServiceTestSuite) TestCancelOrderRestoresStock() {
	order := suite.placeCODOrder(CartLine{ProductID: suite.apples.ID, Quantity: 4})

	sold := suite.store.ProductByID(suite.apples.ID)
	suite.Require().Equal(models.ProductStatusSoldOut, sold.Status)

	cancelled, err := suite.service.CancelOrder(suite.ctx, order.ID, suite.customer)
	suite.Require().NoError(err)

	assert.Equal(suite.T(), models.OrderStatusCancelled, cancelled.Status)
	assert.NotNil(suite.T(), cancelled.CancelledAt)

	product := suite.store.ProductByID(suite.apples.ID)
	assert.Equal(suite.T(), 4, product.Quantity)
	assert.Equal(suite.T(), int64(0), product.SalesCount)
	assert.Equal(suite.T(), models.ProductStatusAvailable, product.Status)
}

func (suite *OrderServiceTestSuite) TestCancelOrderTwiceFailsWithoutDoubleRestore() {
	order := suite.placeCODOrder(CartLine{ProductID: suite.tomatoes.ID, Quantity: 3})

	_, err := suite.service.CancelOrder(suite.ctx, order.ID, suite.customer)
	suite.Require().NoError(err)

	_, err = suite.service.CancelOrder(suite.ctx, order.ID, suite.customer)
	var stateErr *InvalidStateError
	suite.Require().ErrorAs(err, &stateErr)
	assert.Equal(suite.T(), models.OrderStatusCancelled, stateErr.Status)

	product := suite.store.ProductByID(suite.tomatoes.ID)
	assert.Equal(suite.T(), 10, product.Quantity)
}

func (suite *OrderServiceTestSuite) TestCancelUnreservedGatewayOrderLeavesStockAlone() {
	order, err := suite.service.PlaceOrder(suite.ctx, suite.customer, models.UserRoleCustomer, &PlaceOrderRequest{
		Items:           []CartLine{{ProductID: suite.tomatoes.ID, Quantity: 3}},
		DeliveryAddress: suite.address(),
		PaymentMethod:   models.PaymentMethodKhalti,
	})
	suite.Require().NoError(err)

	_, err = suite.service.CancelOrder(suite.ctx, order.ID, suite.customer)
	suite.Require().NoError(err)

	product := suite.store.ProductByID(suite.tomatoes.ID)
	assert.Equal(suite.T(), 10, product.Quantity)
	assert.Equal(suite.T(), int64(0), product.SalesCount)
}

func (suite *OrderServiceTestSuite) TestCancelOrderOwnershipAndState() {
	order := suite.placeCODOrder(CartLine{ProductID: suite.tomatoes.ID, Quantity: 1})

	_, err := suite.service.CancelOrder(suite.ctx, order.ID, uuid.New())
	var permissionErr *PermissionError
	assert.ErrorAs(suite.T(), err, &permissionErr)

	_, err = suite.service.UpdateOrderStatus(suite.ctx, order.ID, models.OrderStatusConfirmed, suite.farmer, models.UserRoleFarmer)
	suite.Require().NoError(err)

	_, err = suite.service.CancelOrder(suite.ctx, order.ID, suite.customer)
	var stateErr *InvalidStateError
	assert.ErrorAs(suite.T(), err, &stateErr)
}

func (suite *OrderServiceTestSuite) TestUpdateOrderStatusLifecycle() {
	order := suite.placeCODOrder(CartLine{ProductID: suite.tomatoes.ID, Quantity: 1})

	updated, err := suite.service.UpdateOrderStatus(suite.ctx, order.ID, models.OrderStatusConfirmed, suite.farmer, models.UserRoleFarmer)
	suite.Require().NoError(err)
	assert.Equal(suite.T(), models.OrderStatusConfirmed, updated.Status)

	stored := suite.store.OrderByID(order.ID)
	assert.NotNil(suite.T(), stored.ConfirmedAt)

	for _, status := range []models.OrderStatus{
		models.OrderStatusProcessing,
		models.OrderStatusShipped,
		models.OrderStatusDelivered,
	} {
		_, err = suite.service.UpdateOrderStatus(suite.ctx, order.ID, status, suite.farmer, models.UserRoleFarmer)
		suite.Require().NoError(err)
	}

	// Delivered is terminal.
	_, err = suite.service.UpdateOrderStatus(suite.ctx, order.ID, models.OrderStatusCompleted, suite.farmer, models.UserRoleFarmer)
	var stateErr *InvalidStateError
	assert.ErrorAs(suite.T(), err, &stateErr)
}

func (suite *OrderServiceTestSuite) TestUpdateOrderStatusRejectsCancelTarget() {
	order := suite.placeCODOrder(CartLine{ProductID: suite.tomatoes.ID, Quantity: 1})

	_, err := suite.service.UpdateOrderStatus(suite.ctx, order.ID, models.OrderStatusCancelled, suite.farmer, models.UserRoleFarmer)
	var validationErr *ValidationError
	assert.ErrorAs(suite.T(), err, &validationErr)
}

func (suite *OrderServiceTestSuite) TestUpdateOrderStatusPermissions() {
	order := suite.placeCODOrder(CartLine{ProductID: suite.tomatoes.ID, Quantity: 1})

	var permissionErr *PermissionError

	_, err := suite.service.UpdateOrderStatus(suite.ctx, order.ID, models.OrderStatusConfirmed, suite.customer, models.UserRoleCustomer)
	assert.ErrorAs(suite.T(), err, &permissionErr)

	_, err = suite.service.UpdateOrderStatus(suite.ctx, order.ID, models.OrderStatusConfirmed, uuid.New(), models.UserRoleFarmer)
	assert.ErrorAs(suite.T(), err, &permissionErr)

	_, err = suite.service.UpdateOrderStatus(suite.ctx, order.ID, models.OrderStatusConfirmed, uuid.New(), models.UserRoleAdmin)
	assert.NoError(suite.T(), err)
}

func (suite *OrderServiceTestSuite) TestGetOrderVisibility() {
	order := suite.placeCODOrder(CartLine{ProductID: suite.tomatoes.ID, Quantity: 1})

	_, err := suite.service.GetOrder(suite.ctx, order.ID, suite.customer, models.UserRoleCustomer)
	assert.NoError(suite.T(), err)

	_, err = suite.service.GetOrder(suite.ctx, order.ID, suite.farmer, models.UserRoleFarmer)
	assert.NoError(suite.T(), err)

	_, err = suite.service.GetOrder(suite.ctx, order.ID, uuid.New(), models.UserRoleAdmin)
	assert.NoError(suite.T(), err)

	_, err = suite.service.GetOrder(suite.ctx, order.ID, uuid.New(), models.UserRoleCustomer)
	var permissionErr *PermissionError
	assert.ErrorAs(suite.T(), err, &permissionErr)
}

func TestOrderServiceTestSuite(t *testing.T) {
	suite.Run(t, new(OrderServiceTestSuite))
}
