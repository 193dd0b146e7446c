// internal/services/product_service.go
package services

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/agribazaar/agribazaar-backend/internal/models"
	"github.com/agribazaar/agribazaar-backend/internal/utils"
)

type ProductService struct {
	db *gorm.DB
}

type CreateProductRequest struct {
	Name        string   `json:"name" validate:"required,min=2,max=255"`
	Description string   `json:"description,omitempty"`
	Category    string   `json:"category" validate:"required"`
	Price       float64  `json:"price" validate:"required,gt=0"`
	Quantity    int      `json:"quantity" validate:"min=0"`
	Unit        string   `json:"unit,omitempty"`
	Images      []string `json:"images,omitempty"`
	Tags        []string `json:"tags,omitempty"`
}

type UpdateProductRequest struct {
	Name        string   `json:"name,omitempty" validate:"omitempty,min=2,max=255"`
	Description string   `json:"description,omitempty"`
	Category    string   `json:"category,omitempty"`
	Price       float64  `json:"price,omitempty" validate:"omitempty,gt=0"`
	Quantity    *int     `json:"quantity,omitempty" validate:"omitempty,min=0"`
	Unit        string   `json:"unit,omitempty"`
	Images      []string `json:"images,omitempty"`
	Tags        []string `json:"tags,omitempty"`
}

type ProductSearchParams struct {
	utils.PaginationParams
	FarmerID *uuid.UUID            `json:"farmer_id,omitempty"`
	Status   *models.ProductStatus `json:"status,omitempty"`
	PriceMin *float64              `json:"price_min,omitempty"`
	PriceMax *float64              `json:"price_max,omitempty"`
	InStock  *bool                 `json:"in_stock,omitempty"`
}

func NewProductService(db *gorm.DB) *ProductService {
	return &ProductService{db: db}
}

func (s *ProductService) CreateProduct(farmerID uuid.UUID, farmerRole models.UserRole, req *CreateProductRequest) (*models.Product, error) {
	if farmerRole != models.UserRoleFarmer {
		return nil, &PermissionError{Reason: "only farmers can list products"}
	}

	if err := utils.ValidateStruct(req); err != nil {
		return nil, &ValidationError{Reason: err.Error()}
	}

	unit := req.Unit
	if unit == "" {
		unit = "kg"
	}

	status := models.ProductStatusAvailable
	if req.Quantity == 0 {
		status = models.ProductStatusSoldOut
	}

	product := &models.Product{
		FarmerID:    farmerID,
		Name:        req.Name,
		Description: req.Description,
		Category:    req.Category,
		Price:       req.Price,
		Quantity:    req.Quantity,
		Unit:        unit,
		Images:      req.Images,
		Tags:        req.Tags,
		Status:      status,
	}

	if err := s.db.Create(product).Error; err != nil {
		return nil, fmt.Errorf("failed to create product: %w", err)
	}

	return product, nil
}

func (s *ProductService) GetProduct(id uuid.UUID) (*models.Product, error) {
	var product models.Product
	if err := s.db.Preload("Farmer").First(&product, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &NotFoundError{Resource: "product", ID: id}
		}
		return nil, fmt.Errorf("database error: %w", err)
	}
	return &product, nil
}

func (s *ProductService) UpdateProduct(id uuid.UUID, farmerID uuid.UUID, req *UpdateProductRequest) (*models.Product, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, &ValidationError{Reason: err.Error()}
	}

	var product models.Product
	if err := s.db.First(&product, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &NotFoundError{Resource: "product", ID: id}
		}
		return nil, fmt.Errorf("database error: %w", err)
	}

	if product.FarmerID != farmerID {
		return nil, &PermissionError{Reason: "product belongs to another farmer"}
	}

	updates := make(map[string]interface{})
	if req.Name != "" {
		updates["name"] = req.Name
	}
	if req.Description != "" {
		updates["description"] = req.Description
	}
	if req.Category != "" {
		updates["category"] = req.Category
	}
	if req.Price > 0 {
		updates["price"] = req.Price
	}
	if req.Quantity != nil {
		updates["quantity"] = *req.Quantity
		if *req.Quantity == 0 {
			updates["status"] = models.ProductStatusSoldOut
		} else {
			updates["status"] = models.ProductStatusAvailable
		}
	}
	if req.Unit != "" {
		updates["unit"] = req.Unit
	}
	if req.Images != nil {
		updates["images"] = req.Images
	}
	if req.Tags != nil {
		updates["tags"] = req.Tags
	}

	if err := s.db.Model(&product).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("failed to update product: %w", err)
	}

	return &product, nil
}

// DeleteProduct soft-deletes a listing. A product referenced by a
// non-terminal order cannot be removed: its line items still point at live
// inventory that cancellation may need to restore.
func (s *ProductService) DeleteProduct(id uuid.UUID, farmerID uuid.UUID) error {
	var product models.Product
	if err := s.db.First(&product, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &NotFoundError{Resource: "product", ID: id}
		}
		return fmt.Errorf("database error: %w", err)
	}

	if product.FarmerID != farmerID {
		return &PermissionError{Reason: "product belongs to another farmer"}
	}

	var activeOrders int64
	if err := s.db.Model(&models.Order{}).
		Joins("JOIN order_items ON order_items.order_id = orders.id").
		Where("order_items.product_id = ?", id).
		Where("orders.status NOT IN ?", []models.OrderStatus{
			models.OrderStatusDelivered,
			models.OrderStatusCompleted,
			models.OrderStatusCancelled,
		}).
		Count(&activeOrders).Error; err != nil {
		return fmt.Errorf("failed to check active orders: %w", err)
	}

	if activeOrders > 0 {
		return &InvalidStateError{
			OrderID: id,
			Status:  models.OrderStatusPending,
			Reason:  "product is referenced by active orders",
		}
	}

	if err := s.db.Delete(&product).Error; err != nil {
		return fmt.Errorf("failed to delete product: %w", err)
	}

	return nil
}

func (s *ProductService) SearchProducts(params ProductSearchParams) ([]models.Product, int64, error) {
	query := s.db.Model(&models.Product{}).Preload("Farmer")

	if params.FarmerID != nil {
		query = query.Where("farmer_id = ?", *params.FarmerID)
	}

	if params.Status != nil {
		query = query.Where("status = ?", *params.Status)
	}

	if params.Category != "" {
		query = query.Where("category = ?", params.Category)
	}

	if params.Search != "" {
		searchTerm := "%" + strings.ToLower(params.Search) + "%"
		query = query.Where("LOWER(name) LIKE ? OR LOWER(description) LIKE ?", searchTerm, searchTerm)
	}

	if params.PriceMin != nil {
		query = query.Where("price >= ?", *params.PriceMin)
	}

	if params.PriceMax != nil {
		query = query.Where("price <= ?", *params.PriceMax)
	}

	if params.InStock != nil && *params.InStock {
		query = query.Where("quantity > 0")
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count products: %w", err)
	}

	query = utils.ApplySort(query, params.PaginationParams, utils.ProductSortFields)
	query = utils.ApplyPagination(query, params.PaginationParams)

	var products []models.Product
	if err := query.Find(&products).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to fetch products: %w", err)
	}

	return products, total, nil
}

func (s *ProductService) GetFarmerProducts(farmerID uuid.UUID, params utils.PaginationParams) ([]models.Product, int64, error) {
	query := s.db.Model(&models.Product{}).Where("farmer_id = ?", farmerID)

	if params.Search != "" {
		searchTerm := "%" + strings.ToLower(params.Search) + "%"
		query = query.Where("LOWER(name) LIKE ? OR LOWER(description) LIKE ?", searchTerm, searchTerm)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count farmer products: %w", err)
	}

	query = utils.ApplySort(query, params, utils.ProductSortFields)
	query = utils.ApplyPagination(query, params)

	var products []models.Product
	if err := query.Find(&products).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to fetch farmer products: %w", err)
	}

	return products, total, nil
}

type FarmerDashboardStats struct {
	TotalProducts     int64   `json:"total_products"`
	AvailableProducts int64   `json:"available_products"`
	SoldOutProducts   int64   `json:"sold_out_products"`
	TotalUnitsSold    int64   `json:"total_units_sold"`
	PendingOrders     int64   `json:"pending_orders"`
	TotalRevenue      float64 `json:"total_revenue"`
}

// GetFarmerStats aggregates a farmer's listings and sales. Revenue counts
// only line items on orders whose payment settled.
func (s *ProductService) GetFarmerStats(farmerID uuid.UUID) (*FarmerDashboardStats, error) {
	stats := &FarmerDashboardStats{}

	s.db.Model(&models.Product{}).Where("farmer_id = ?", farmerID).Count(&stats.TotalProducts)
	s.db.Model(&models.Product{}).
		Where("farmer_id = ? AND status = ?", farmerID, models.ProductStatusAvailable).
		Count(&stats.AvailableProducts)
	s.db.Model(&models.Product{}).
		Where("farmer_id = ? AND status = ?", farmerID, models.ProductStatusSoldOut).
		Count(&stats.SoldOutProducts)
	s.db.Model(&models.Product{}).
		Where("farmer_id = ?", farmerID).
		Select("COALESCE(SUM(sales_count), 0)").Scan(&stats.TotalUnitsSold)

	s.db.Model(&models.Order{}).
		Joins("JOIN order_items ON order_items.order_id = orders.id").
		Where("order_items.farmer_id = ? AND orders.status = ?", farmerID, models.OrderStatusPending).
		Distinct("orders.id").
		Count(&stats.PendingOrders)

	if err := s.db.Model(&models.OrderItem{}).
		Joins("JOIN orders ON orders.id = order_items.order_id").
		Where("order_items.farmer_id = ? AND orders.payment_status = ?", farmerID, models.PaymentStatusCompleted).
		Select("COALESCE(SUM(order_items.subtotal), 0)").
		Scan(&stats.TotalRevenue).Error; err != nil {
		return nil, fmt.Errorf("failed to compute farmer revenue: %w", err)
	}

	return stats, nil
}

func (s *ProductService) GetPopularProducts(limit int) ([]models.Product, error) {
	var products []models.Product
	if err := s.db.Where("status = ?", models.ProductStatusAvailable).
		Order("sales_count DESC").
		Limit(limit).
		Preload("Farmer").
		Find(&products).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch popular products: %w", err)
	}
	return products, nil
}
