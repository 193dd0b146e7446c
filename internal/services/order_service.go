// internal/services/order_service.go
package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/agribazaar/agribazaar-backend/internal/models"
	"github.com/agribazaar/agribazaar-backend/internal/store"
	"github.com/agribazaar/agribazaar-backend/internal/utils"
)

// OrderService is the reservation engine and lifecycle manager. All stock
// movement goes through the store's conditional-adjust primitive inside a
// single transaction, so an order either fully reserves its cart or leaves
// the catalog untouched.
type OrderService struct {
	store     store.Store
	publisher EventPublisher
}

type CartLine struct {
	ProductID uuid.UUID `json:"product_id" validate:"required"`
	Quantity  int       `json:"quantity" validate:"required"`
}

type PlaceOrderRequest struct {
	Items           []CartLine             `json:"items" validate:"required"`
	DeliveryAddress models.DeliveryAddress `json:"delivery_address"`
	PaymentMethod   models.PaymentMethod   `json:"payment_method" validate:"required"`
}

func NewOrderService(s store.Store, publisher EventPublisher) *OrderService {
	return &OrderService{
		store:     s,
		publisher: publisher,
	}
}

// PlaceOrder converts a cart into a durable order. Validation happens
// against a single catalog snapshot; the decrement guard inside the
// transaction is what actually prevents overselling when two carts race
// for the same stock.
func (s *OrderService) PlaceOrder(ctx context.Context, buyerID uuid.UUID, buyerRole models.UserRole, req *PlaceOrderRequest) (*models.Order, error) {
	if buyerRole != models.UserRoleCustomer {
		return nil, &PermissionError{Reason: "only customers can place orders"}
	}

	if len(req.Items) == 0 {
		return nil, &ValidationError{Field: "items", Reason: "cart is empty"}
	}

	seen := make(map[uuid.UUID]bool, len(req.Items))
	for _, line := range req.Items {
		if line.Quantity <= 0 {
			return nil, &ValidationError{Field: "quantity", Reason: "quantity must be a positive integer"}
		}
		if seen[line.ProductID] {
			return nil, &ValidationError{Field: "items", Reason: "duplicate product in cart: " + line.ProductID.String()}
		}
		seen[line.ProductID] = true
	}

	if req.DeliveryAddress.IsEmpty() {
		return nil, &ValidationError{Field: "delivery_address", Reason: "delivery address is required"}
	}

	if !models.IsValidPaymentMethod(req.PaymentMethod) {
		return nil, &ValidationError{Field: "payment_method", Reason: "unknown payment method"}
	}

	// Load the catalog snapshot in one read.
	ids := make([]uuid.UUID, 0, len(req.Items))
	for _, line := range req.Items {
		ids = append(ids, line.ProductID)
	}

	products, err := s.store.Catalog().FindProductsByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	byID := make(map[uuid.UUID]models.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}

	// Fail fast before any write. The snapshot check keeps the error
	// precise; the transactional guard below is the real defense.
	items := make([]models.OrderItem, 0, len(req.Items))
	var total float64
	for _, line := range req.Items {
		product, ok := byID[line.ProductID]
		if !ok {
			return nil, &NotFoundError{Resource: "product", ID: line.ProductID}
		}
		if product.Quantity < line.Quantity {
			return nil, &InsufficientStockError{
				ProductID:   product.ID,
				ProductName: product.Name,
				Requested:   line.Quantity,
				Available:   product.Quantity,
			}
		}

		// Pricing snapshot moment: the current catalog price is copied
		// onto the line and never recomputed.
		subtotal := product.Price * float64(line.Quantity)
		items = append(items, models.OrderItem{
			ProductID:   product.ID,
			FarmerID:    product.FarmerID,
			ProductName: product.Name,
			UnitPrice:   product.Price,
			Quantity:    line.Quantity,
			Subtotal:    subtotal,
		})
		total += subtotal
	}

	reserveNow := !req.PaymentMethod.RequiresGatewayConfirmation()

	paymentStatus := models.PaymentStatusPending
	if req.PaymentMethod.RequiresGatewayConfirmation() {
		paymentStatus = models.PaymentStatusInitiated
	}

	order := &models.Order{
		CustomerID:      buyerID,
		Items:           items,
		TotalAmount:     total,
		Status:          models.OrderStatusPending,
		PaymentMethod:   req.PaymentMethod,
		PaymentStatus:   paymentStatus,
		DeliveryAddress: req.DeliveryAddress,
		StockReserved:   reserveNow,
	}

	err = s.store.InTransaction(ctx, func(tx store.Store) error {
		if reserveNow {
			if err := reserveStock(ctx, tx, items); err != nil {
				return err
			}
		}
		return tx.Orders().InsertOrder(ctx, order)
	})
	if err != nil {
		return nil, err
	}

	s.publish(Event{
		Type:         EventOrderPlaced,
		OrderID:      order.ID,
		Recipients:   append([]uuid.UUID{buyerID}, order.FarmerIDs()...),
		NotifyAdmins: true,
		Data: models.JSONB{
			"order_id":     order.ID.String(),
			"total_amount": order.TotalAmount,
			"status":       string(order.Status),
		},
	})

	return order, nil
}

// reserveStock applies the conditional decrement for every line and flips
// products to sold-out when they hit zero. Must run inside a transaction:
// a failed guard aborts the whole reservation.
func reserveStock(ctx context.Context, tx store.Store, items []models.OrderItem) error {
	catalog := tx.Catalog()
	for _, item := range items {
		ok, err := catalog.ConditionalAdjustQuantity(ctx, item.ProductID, -item.Quantity)
		if err != nil {
			return err
		}
		if !ok {
			// A concurrent reservation consumed the stock between our
			// snapshot read and this write.
			return &ConcurrentModificationError{ProductID: item.ProductID}
		}

		product, err := catalog.FindProductByID(ctx, item.ProductID)
		if err != nil {
			return err
		}
		if product.Quantity == 0 && product.Status != models.ProductStatusSoldOut {
			if err := catalog.SetProductStatus(ctx, item.ProductID, models.ProductStatusSoldOut); err != nil {
				return err
			}
		}
		if err := catalog.AddSales(ctx, item.ProductID, item.Quantity); err != nil {
			return err
		}
	}
	return nil
}

// releaseStock is the exact inverse of reserveStock, applied on
// cancellation. Same transaction, same all-or-nothing contract.
func releaseStock(ctx context.Context, tx store.Store, items []models.OrderItem) error {
	catalog := tx.Catalog()
	for _, item := range items {
		ok, err := catalog.ConditionalAdjustQuantity(ctx, item.ProductID, item.Quantity)
		if err != nil {
			return err
		}
		if !ok {
			return &ConcurrentModificationError{ProductID: item.ProductID}
		}

		product, err := catalog.FindProductByID(ctx, item.ProductID)
		if err != nil {
			return err
		}
		if product.Status == models.ProductStatusSoldOut && product.Quantity > 0 {
			if err := catalog.SetProductStatus(ctx, item.ProductID, models.ProductStatusAvailable); err != nil {
				return err
			}
		}
		if err := catalog.AddSales(ctx, item.ProductID, -item.Quantity); err != nil {
			return err
		}
	}
	return nil
}

// CancelOrder cancels a pending order owned by the requester and restores
// the reserved quantities. The guarded status flip makes a second cancel
// attempt fail instead of compensating twice.
func (s *OrderService) CancelOrder(ctx context.Context, orderID, requesterID uuid.UUID) (*models.Order, error) {
	order, err := s.store.Orders().FindOrderByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, &NotFoundError{Resource: "order", ID: orderID}
		}
		return nil, err
	}

	if order.CustomerID != requesterID {
		return nil, &PermissionError{Reason: "order belongs to another customer"}
	}

	if order.Status != models.OrderStatusPending {
		return nil, &InvalidStateError{
			OrderID: orderID,
			Status:  order.Status,
			Reason:  "only pending orders can be cancelled",
		}
	}

	now := time.Now()
	err = s.store.InTransaction(ctx, func(tx store.Store) error {
		ok, err := tx.Orders().TransitionStatus(ctx, orderID, models.OrderStatusPending, map[string]interface{}{
			"status":       models.OrderStatusCancelled,
			"cancelled_at": now,
		})
		if err != nil {
			return err
		}
		if !ok {
			// Lost the race to another lifecycle transition.
			fresh, ferr := tx.Orders().FindOrderByID(ctx, orderID)
			if ferr != nil {
				return ferr
			}
			return &InvalidStateError{
				OrderID: orderID,
				Status:  fresh.Status,
				Reason:  "only pending orders can be cancelled",
			}
		}

		// Gateway orders that were never confirmed never reserved stock,
		// so there is nothing to restore.
		if order.StockReserved {
			return releaseStock(ctx, tx, order.Items)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	order.Status = models.OrderStatusCancelled
	order.CancelledAt = &now

	s.publish(Event{
		Type:         EventOrderCancelled,
		OrderID:      order.ID,
		Recipients:   append([]uuid.UUID{order.CustomerID}, order.FarmerIDs()...),
		NotifyAdmins: true,
		Data: models.JSONB{
			"order_id": order.ID.String(),
			"status":   string(models.OrderStatusCancelled),
		},
	})

	return order, nil
}

// UpdateOrderStatus advances the order through its lifecycle. Cancellation
// is not reachable through this path; it carries the inventory
// compensation and lives in CancelOrder.
func (s *OrderService) UpdateOrderStatus(ctx context.Context, orderID uuid.UUID, newStatus models.OrderStatus, actorID uuid.UUID, actorRole models.UserRole) (*models.Order, error) {
	if !models.IsValidOrderStatus(newStatus) {
		return nil, &ValidationError{Field: "status", Reason: "unknown order status: " + string(newStatus)}
	}
	if newStatus == models.OrderStatusCancelled {
		return nil, &ValidationError{Field: "status", Reason: "cancellation must go through the cancel operation"}
	}
	if actorRole != models.UserRoleFarmer && actorRole != models.UserRoleAdmin {
		return nil, &PermissionError{Reason: "only farmers and admins can update order status"}
	}

	order, err := s.store.Orders().FindOrderByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, &NotFoundError{Resource: "order", ID: orderID}
		}
		return nil, err
	}

	if actorRole == models.UserRoleFarmer && !orderInvolvesFarmer(order, actorID) {
		return nil, &PermissionError{Reason: "order does not contain any of your products"}
	}

	if order.Status.IsTerminal() {
		return nil, &InvalidStateError{
			OrderID: orderID,
			Status:  order.Status,
			Reason:  "order is in a terminal state",
		}
	}

	fields := map[string]interface{}{"status": newStatus}
	if newStatus == models.OrderStatusConfirmed && order.ConfirmedAt == nil {
		now := time.Now()
		fields["confirmed_at"] = now
	}

	ok, err := s.store.Orders().TransitionStatus(ctx, orderID, order.Status, fields)
	if err != nil {
		return nil, err
	}
	if !ok {
		fresh, ferr := s.store.Orders().FindOrderByID(ctx, orderID)
		if ferr != nil {
			return nil, ferr
		}
		return nil, &InvalidStateError{
			OrderID: orderID,
			Status:  fresh.Status,
			Reason:  "order status changed concurrently",
		}
	}

	order.Status = newStatus

	s.publish(Event{
		Type:       EventOrderStatusChanged,
		OrderID:    order.ID,
		Recipients: append([]uuid.UUID{order.CustomerID}, order.FarmerIDs()...),
		Data: models.JSONB{
			"order_id": order.ID.String(),
			"status":   string(newStatus),
		},
	})

	return order, nil
}

// GetOrder returns an order visible to its owner, an involved farmer, or
// an admin.
func (s *OrderService) GetOrder(ctx context.Context, orderID, requesterID uuid.UUID, requesterRole models.UserRole) (*models.Order, error) {
	order, err := s.store.Orders().FindOrderByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, &NotFoundError{Resource: "order", ID: orderID}
		}
		return nil, err
	}

	switch {
	case requesterRole == models.UserRoleAdmin:
	case order.CustomerID == requesterID:
	case requesterRole == models.UserRoleFarmer && orderInvolvesFarmer(order, requesterID):
	default:
		return nil, &PermissionError{Reason: "not allowed to view this order"}
	}

	return order, nil
}

func (s *OrderService) GetCustomerOrders(ctx context.Context, customerID uuid.UUID, params utils.PaginationParams) ([]models.Order, int64, error) {
	return s.store.Orders().ListOrdersByCustomer(ctx, customerID, params)
}

func (s *OrderService) GetFarmerOrders(ctx context.Context, farmerID uuid.UUID, params utils.PaginationParams) ([]models.Order, int64, error) {
	return s.store.Orders().ListOrdersByFarmer(ctx, farmerID, params)
}

func (s *OrderService) GetAllOrders(ctx context.Context, status *models.OrderStatus, params utils.PaginationParams) ([]models.Order, int64, error) {
	return s.store.Orders().ListOrders(ctx, status, params)
}

func orderInvolvesFarmer(order *models.Order, farmerID uuid.UUID) bool {
	for _, item := range order.Items {
		if item.FarmerID == farmerID {
			return true
		}
	}
	return false
}

// publish hands the event to the post-commit queue. Delivery is
// best-effort: a full or missing queue never affects the order outcome.
func (s *OrderService) publish(event Event) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(event); err != nil {
		logrus.WithError(err).WithField("event", event.Type).Warn("Failed to enqueue notification event")
	}
}
