// internal/handlers/order_test.go
package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"

	"github.com/agribazaar/agribazaar-backend/internal/models"
	"github.com/agribazaar/agribazaar-backend/internal/services"
	"github.com/agribazaar/agribazaar-backend/internal/store/storetest"
	"github.com/agribazaar/agribazaar-backend/internal/utils"
)

type OrderHandlerTestSuite struct {
	suite.Suite
	router    *gin.Engine
	store     *storetest.MemStore
	productID uuid.UUID
	customer  string
}

func (suite *OrderHandlerTestSuite) SetupTest() {
	gin.SetMode(gin.TestMode)

	suite.store = storetest.NewMemStore()
	suite.customer = uuid.New().String()

	product := suite.store.AddProduct(models.Product{
		FarmerID: uuid.New(),
		Name:     "Cauliflower",
		Category: "vegetables",
		Price:    80,
		Quantity: 12,
		Unit:     "kg",
		Status:   models.ProductStatusAvailable,
	})
	suite.productID = product.ID

	orderService := services.NewOrderService(suite.store, nil)
	handler := NewOrderHandler(orderService)

	suite.router = gin.New()
	suite.router.Use(func(c *gin.Context) {
		c.Set("user_id", c.GetHeader("X-Test-User"))
		c.Set("user_role", c.GetHeader("X-Test-Role"))
	})

	orders := suite.router.Group("/v1/orders")
	{
		orders.POST("", handler.PlaceOrder)
		orders.GET("/:id", handler.GetOrder)
		orders.PUT("/:id/cancel", handler.CancelOrder)
	}
}

func (suite *OrderHandlerTestSuite) postOrder(body map[string]interface{}) *httptest.ResponseRecorder {
	jsonData, _ := json.Marshal(body)
	req, _ := http.NewRequest("POST", "/v1/orders", bytes.NewBuffer(jsonData))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Test-User", suite.customer)
	req.Header.Set("X-Test-Role", string(models.UserRoleCustomer))

	w := httptest.NewRecorder()
	suite.router.ServeHTTP(w, req)
	return w
}

func (suite *OrderHandlerTestSuite) orderBody(quantity int) map[string]interface{} {
	return map[string]interface{}{
		"items": []map[string]interface{}{
			{"product_id": suite.productID.String(), "quantity": quantity},
		},
		"delivery_address": map[string]string{
			"region": "Bagmati",
			"city":   "Kathmandu",
			"street": "Baneshwor",
		},
		"payment_method": "cash_on_delivery",
	}
}

func (suite *OrderHandlerTestSuite) TestPlaceOrderCreated() {
	w := suite.postOrder(suite.orderBody(2))

	assert.Equal(suite.T(), http.StatusCreated, w.Code)

	var resp utils.APIResponse
	suite.Require().NoError(json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(suite.T(), resp.Success)
}

func (suite *OrderHandlerTestSuite) TestPlaceOrderInsufficientStockConflict() {
	w := suite.postOrder(suite.orderBody(100))

	assert.Equal(suite.T(), http.StatusConflict, w.Code)
}

func (suite *OrderHandlerTestSuite) TestPlaceOrderEmptyCartBadRequest() {
	body := suite.orderBody(1)
	body["items"] = []map[string]interface{}{}
	w := suite.postOrder(body)

	assert.Equal(suite.T(), http.StatusBadRequest, w.Code)
}

func (suite *OrderHandlerTestSuite) TestGetOrderForbiddenForStranger() {
	w := suite.postOrder(suite.orderBody(1))
	suite.Require().Equal(http.StatusCreated, w.Code)

	var resp struct {
		Data models.Order `json:"data"`
	}
	suite.Require().NoError(json.Unmarshal(w.Body.Bytes(), &resp))

	req, _ := http.NewRequest("GET", "/v1/orders/"+resp.Data.ID.String(), nil)
	req.Header.Set("X-Test-User", "11111111-1111-1111-1111-111111111111")
	req.Header.Set("X-Test-Role", string(models.UserRoleCustomer))

	got := httptest.NewRecorder()
	suite.router.ServeHTTP(got, req)
	assert.Equal(suite.T(), http.StatusForbidden, got.Code)
}

func (suite *OrderHandlerTestSuite) TestCancelOrderTwiceConflict() {
	w := suite.postOrder(suite.orderBody(1))
	suite.Require().Equal(http.StatusCreated, w.Code)

	var resp struct {
		Data models.Order `json:"data"`
	}
	suite.Require().NoError(json.Unmarshal(w.Body.Bytes(), &resp))
	cancelURL := "/v1/orders/" + resp.Data.ID.String() + "/cancel"

	first := httptest.NewRecorder()
	req, _ := http.NewRequest("PUT", cancelURL, nil)
	req.Header.Set("X-Test-User", suite.customer)
	req.Header.Set("X-Test-Role", string(models.UserRoleCustomer))
	suite.router.ServeHTTP(first, req)
	assert.Equal(suite.T(), http.StatusOK, first.Code)

	second := httptest.NewRecorder()
	req2, _ := http.NewRequest("PUT", cancelURL, nil)
	req2.Header.Set("X-Test-User", suite.customer)
	req2.Header.Set("X-Test-Role", string(models.UserRoleCustomer))
	suite.router.ServeHTTP(second, req2)
	assert.Equal(suite.T(), http.StatusConflict, second.Code)
}

func TestOrderHandlerTestSuite(t *testing.T) {
	suite.Run(t, new(OrderHandlerTestSuite))
}
