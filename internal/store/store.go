// internal/store/store.go
package store

import (
	"context"

	"github.com/google/uuid"

	"github.com/agribazaar/agribazaar-backend/internal/models"
	"github.com/agribazaar/agribazaar-backend/internal/utils"
)

// CatalogStore is the product storage contract the order core depends on.
// Quantity is never mutated through any other path than
// ConditionalAdjustQuantity, so every stock movement carries the guard.
type CatalogStore interface {
	FindProductsByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Product, error)
	FindProductByID(ctx context.Context, id uuid.UUID) (*models.Product, error)

	// ConditionalAdjustQuantity applies quantity += delta only if the
	// resulting quantity would stay non-negative at write time. It reports
	// false when the guard fails, which for a negative delta means a
	// concurrent writer consumed the stock first.
	ConditionalAdjustQuantity(ctx context.Context, id uuid.UUID, delta int) (bool, error)

	SetProductStatus(ctx context.Context, id uuid.UUID, status models.ProductStatus) error
	AddSales(ctx context.Context, id uuid.UUID, quantity int) error
}

// OrderStore persists order records and their immutable line items.
type OrderStore interface {
	InsertOrder(ctx context.Context, order *models.Order) error
	FindOrderByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	UpdateOrderFields(ctx context.Context, id uuid.UUID, fields map[string]interface{}) error

	// TransitionStatus applies fields only if the order is still in the
	// `from` status at write time. It reports false when the guard fails,
	// making status flips race-safe the same way stock adjustments are.
	TransitionStatus(ctx context.Context, id uuid.UUID, from models.OrderStatus, fields map[string]interface{}) (bool, error)
	ListOrdersByCustomer(ctx context.Context, customerID uuid.UUID, params utils.PaginationParams) ([]models.Order, int64, error)
	ListOrdersByFarmer(ctx context.Context, farmerID uuid.UUID, params utils.PaginationParams) ([]models.Order, int64, error)
	ListOrders(ctx context.Context, status *models.OrderStatus, params utils.PaginationParams) ([]models.Order, int64, error)
}

// PaymentStore persists payment attempts against orders.
type PaymentStore interface {
	InsertTransaction(ctx context.Context, txn *models.PaymentTransaction) error
	FindTransactionByOrderID(ctx context.Context, orderID uuid.UUID) (*models.PaymentTransaction, error)
	UpdateTransactionFields(ctx context.Context, id uuid.UUID, fields map[string]interface{}) error
	ListTransactionsByUser(ctx context.Context, userID uuid.UUID, params utils.PaginationParams) ([]models.PaymentTransaction, int64, error)
}

// Store bundles the stores with a single atomic transaction boundary.
// Everything executed inside InTransaction commits or rolls back as one.
type Store interface {
	Catalog() CatalogStore
	Orders() OrderStore
	Payments() PaymentStore
	InTransaction(ctx context.Context, fn func(Store) error) error
}
