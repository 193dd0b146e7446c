// internal/store/sql.go
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/agribazaar/agribazaar-backend/internal/database"
	"github.com/agribazaar/agribazaar-backend/internal/models"
	"github.com/agribazaar/agribazaar-backend/internal/utils"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// SQLStore implements Store over a gorm connection. InTransaction yields a
// store scoped to the transaction handle, so nested calls share one
// commit/abort boundary.
type SQLStore struct {
	db *gorm.DB
}

func NewSQLStore(db *gorm.DB) *SQLStore {
	return &SQLStore{db: db}
}

func (s *SQLStore) Catalog() CatalogStore  { return (*sqlCatalog)(s) }
func (s *SQLStore) Orders() OrderStore     { return (*sqlOrders)(s) }
func (s *SQLStore) Payments() PaymentStore { return (*sqlPayments)(s) }

func (s *SQLStore) InTransaction(ctx context.Context, fn func(Store) error) error {
	return database.WithTransaction(s.db.WithContext(ctx), func(tx *gorm.DB) error {
		return fn(NewSQLStore(tx))
	})
}

// --- catalog ---

type sqlCatalog SQLStore

func (s *sqlCatalog) FindProductsByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Product, error) {
	var products []models.Product
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&products).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch products: %w", err)
	}
	return products, nil
}

func (s *sqlCatalog) FindProductByID(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	var product models.Product
	if err := s.db.WithContext(ctx).First(&product, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to fetch product: %w", err)
	}
	return &product, nil
}

// ConditionalAdjustQuantity is the one compare-and-swap primitive behind
// every stock movement. The guard lives in the WHERE clause, so a stale
// snapshot can never drive quantity below zero: the write simply matches
// zero rows and the caller aborts.
func (s *sqlCatalog) ConditionalAdjustQuantity(ctx context.Context, id uuid.UUID, delta int) (bool, error) {
	res := s.db.WithContext(ctx).Model(&models.Product{}).
		Where("id = ? AND quantity + ? >= 0", id, delta).
		UpdateColumn("quantity", gorm.Expr("quantity + ?", delta))
	if res.Error != nil {
		return false, fmt.Errorf("failed to adjust quantity: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (s *sqlCatalog) SetProductStatus(ctx context.Context, id uuid.UUID, status models.ProductStatus) error {
	if err := s.db.WithContext(ctx).Model(&models.Product{}).
		Where("id = ?", id).
		UpdateColumn("status", status).Error; err != nil {
		return fmt.Errorf("failed to update product status: %w", err)
	}
	return nil
}

func (s *sqlCatalog) AddSales(ctx context.Context, id uuid.UUID, quantity int) error {
	if err := s.db.WithContext(ctx).Model(&models.Product{}).
		Where("id = ?", id).
		UpdateColumn("sales_count", gorm.Expr("sales_count + ?", quantity)).Error; err != nil {
		return fmt.Errorf("failed to update sales count: %w", err)
	}
	return nil
}

// --- orders ---

type sqlOrders SQLStore

func (s *sqlOrders) InsertOrder(ctx context.Context, order *models.Order) error {
	if err := s.db.WithContext(ctx).Create(order).Error; err != nil {
		return fmt.Errorf("failed to create order: %w", err)
	}
	return nil
}

func (s *sqlOrders) FindOrderByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	if err := s.db.WithContext(ctx).Preload("Items").First(&order, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to fetch order: %w", err)
	}
	return &order, nil
}

func (s *sqlOrders) UpdateOrderFields(ctx context.Context, id uuid.UUID, fields map[string]interface{}) error {
	res := s.db.WithContext(ctx).Model(&models.Order{}).
		Where("id = ?", id).
		Updates(fields)
	if res.Error != nil {
		return fmt.Errorf("failed to update order: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *sqlOrders) TransitionStatus(ctx context.Context, id uuid.UUID, from models.OrderStatus, fields map[string]interface{}) (bool, error) {
	res := s.db.WithContext(ctx).Model(&models.Order{}).
		Where("id = ? AND status = ?", id, from).
		Updates(fields)
	if res.Error != nil {
		return false, fmt.Errorf("failed to transition order status: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (s *sqlOrders) ListOrdersByCustomer(ctx context.Context, customerID uuid.UUID, params utils.PaginationParams) ([]models.Order, int64, error) {
	query := s.db.WithContext(ctx).Model(&models.Order{}).
		Where("customer_id = ?", customerID).
		Preload("Items")
	return s.listOrders(query, params)
}

func (s *sqlOrders) ListOrdersByFarmer(ctx context.Context, farmerID uuid.UUID, params utils.PaginationParams) ([]models.Order, int64, error) {
	query := s.db.WithContext(ctx).Model(&models.Order{}).
		Where("id IN (?)", s.db.Model(&models.OrderItem{}).
			Select("order_id").
			Where("farmer_id = ?", farmerID)).
		Preload("Items")
	return s.listOrders(query, params)
}

func (s *sqlOrders) ListOrders(ctx context.Context, status *models.OrderStatus, params utils.PaginationParams) ([]models.Order, int64, error) {
	query := s.db.WithContext(ctx).Model(&models.Order{}).Preload("Items").Preload("Customer")
	if status != nil {
		query = query.Where("status = ?", *status)
	}
	return s.listOrders(query, params)
}

func (s *sqlOrders) listOrders(query *gorm.DB, params utils.PaginationParams) ([]models.Order, int64, error) {
	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count orders: %w", err)
	}

	query = utils.ApplySort(query, params, utils.OrderSortFields)
	query = utils.ApplyPagination(query, params)

	var orders []models.Order
	if err := query.Find(&orders).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to fetch orders: %w", err)
	}
	return orders, total, nil
}

// --- payments ---

type sqlPayments SQLStore

func (s *sqlPayments) InsertTransaction(ctx context.Context, txn *models.PaymentTransaction) error {
	if err := s.db.WithContext(ctx).Create(txn).Error; err != nil {
		return fmt.Errorf("failed to create payment transaction: %w", err)
	}
	return nil
}

func (s *sqlPayments) FindTransactionByOrderID(ctx context.Context, orderID uuid.UUID) (*models.PaymentTransaction, error) {
	var txn models.PaymentTransaction
	if err := s.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at DESC").
		First(&txn).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to fetch payment transaction: %w", err)
	}
	return &txn, nil
}

func (s *sqlPayments) UpdateTransactionFields(ctx context.Context, id uuid.UUID, fields map[string]interface{}) error {
	res := s.db.WithContext(ctx).Model(&models.PaymentTransaction{}).
		Where("id = ?", id).
		Updates(fields)
	if res.Error != nil {
		return fmt.Errorf("failed to update payment transaction: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *sqlPayments) ListTransactionsByUser(ctx context.Context, userID uuid.UUID, params utils.PaginationParams) ([]models.PaymentTransaction, int64, error) {
	query := s.db.WithContext(ctx).Model(&models.PaymentTransaction{}).
		Where("user_id = ?", userID)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count transactions: %w", err)
	}

	query = utils.ApplySort(query, params, utils.TransactionSortFields)
	query = utils.ApplyPagination(query, params)

	var txns []models.PaymentTransaction
	if err := query.Find(&txns).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to fetch transactions: %w", err)
	}
	return txns, total, nil
}
