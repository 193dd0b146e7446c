// Package storetest provides an in-memory Store for tests. Transactions
// serialize on a mutex and roll back by restoring a deep-copied snapshot,
// mirroring the atomicity contract of the SQL implementation.
package storetest

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/agribazaar/agribazaar-backend/internal/models"
	"github.com/agribazaar/agribazaar-backend/internal/store"
	"github.com/agribazaar/agribazaar-backend/internal/utils"
)

type memData struct {
	products map[uuid.UUID]*models.Product
	orders   map[uuid.UUID]*models.Order
	txns     map[uuid.UUID]*models.PaymentTransaction
}

func newMemData() *memData {
	return &memData{
		products: make(map[uuid.UUID]*models.Product),
		orders:   make(map[uuid.UUID]*models.Order),
		txns:     make(map[uuid.UUID]*models.PaymentTransaction),
	}
}

func (d *memData) clone() *memData {
	c := newMemData()
	for id, p := range d.products {
		cp := *p
		c.products[id] = &cp
	}
	for id, o := range d.orders {
		co := *o
		co.Items = append([]models.OrderItem(nil), o.Items...)
		c.orders[id] = &co
	}
	for id, t := range d.txns {
		ct := *t
		c.txns[id] = &ct
	}
	return c
}

// MemStore implements store.Store in memory.
//
// AfterCatalogRead, when set, runs after every non-transactional
// FindProductsByIDs call. Tests use it to simulate a concurrent writer
// sneaking in between a snapshot read and the reservation transaction.
type MemStore struct {
	mu   sync.Mutex
	data *memData

	AfterCatalogRead func()
}

func NewMemStore() *MemStore {
	return &MemStore{data: newMemData()}
}

// --- test fixture helpers ---

func (s *MemStore) AddProduct(p models.Product) *models.Product {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	s.data.products[p.ID] = &p
	return &p
}

func (s *MemStore) ProductByID(id uuid.UUID) models.Product {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.data.products[id]
}

func (s *MemStore) SetProductQuantity(id uuid.UUID, quantity int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.products[id].Quantity = quantity
}

func (s *MemStore) SetProductPrice(id uuid.UUID, price float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.products[id].Price = price
}

func (s *MemStore) OrderByID(id uuid.UUID) models.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	o := *s.data.orders[id]
	o.Items = append([]models.OrderItem(nil), o.Items...)
	return o
}

func (s *MemStore) TransactionByOrderID(orderID uuid.UUID) *models.PaymentTransaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.data.txns {
		if t.OrderID == orderID {
			ct := *t
			return &ct
		}
	}
	return nil
}

// --- store.Store ---

func (s *MemStore) Catalog() store.CatalogStore  { return &lockedView{s} }
func (s *MemStore) Orders() store.OrderStore     { return &lockedView{s} }
func (s *MemStore) Payments() store.PaymentStore { return &lockedView{s} }

func (s *MemStore) InTransaction(ctx context.Context, fn func(store.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot := s.data.clone()
	if err := fn(&txView{s.data}); err != nil {
		s.data = snapshot
		return err
	}
	return nil
}

// lockedView serializes individual operations against the shared state.
type lockedView struct {
	s *MemStore
}

func (v *lockedView) FindProductsByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Product, error) {
	v.s.mu.Lock()
	products, err := v.s.data.findProductsByIDs(ids)
	v.s.mu.Unlock()
	if v.s.AfterCatalogRead != nil {
		v.s.AfterCatalogRead()
	}
	return products, err
}

func (v *lockedView) FindProductByID(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	return v.s.data.findProductByID(id)
}

func (v *lockedView) ConditionalAdjustQuantity(ctx context.Context, id uuid.UUID, delta int) (bool, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	return v.s.data.conditionalAdjustQuantity(id, delta)
}

func (v *lockedView) SetProductStatus(ctx context.Context, id uuid.UUID, status models.ProductStatus) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	return v.s.data.setProductStatus(id, status)
}

func (v *lockedView) AddSales(ctx context.Context, id uuid.UUID, quantity int) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	return v.s.data.addSales(id, quantity)
}

func (v *lockedView) InsertOrder(ctx context.Context, order *models.Order) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	return v.s.data.insertOrder(order)
}

func (v *lockedView) FindOrderByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	return v.s.data.findOrderByID(id)
}

func (v *lockedView) UpdateOrderFields(ctx context.Context, id uuid.UUID, fields map[string]interface{}) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	return v.s.data.updateOrderFields(id, fields)
}

func (v *lockedView) TransitionStatus(ctx context.Context, id uuid.UUID, from models.OrderStatus, fields map[string]interface{}) (bool, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	return v.s.data.transitionStatus(id, from, fields)
}

func (v *lockedView) ListOrdersByCustomer(ctx context.Context, customerID uuid.UUID, params utils.PaginationParams) ([]models.Order, int64, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	return v.s.data.listOrders(func(o *models.Order) bool { return o.CustomerID == customerID })
}

func (v *lockedView) ListOrdersByFarmer(ctx context.Context, farmerID uuid.UUID, params utils.PaginationParams) ([]models.Order, int64, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	return v.s.data.listOrders(func(o *models.Order) bool { return orderHasFarmer(o, farmerID) })
}

func (v *lockedView) ListOrders(ctx context.Context, status *models.OrderStatus, params utils.PaginationParams) ([]models.Order, int64, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	return v.s.data.listOrders(func(o *models.Order) bool {
		return status == nil || o.Status == *status
	})
}

func (v *lockedView) InsertTransaction(ctx context.Context, txn *models.PaymentTransaction) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	return v.s.data.insertTransaction(txn)
}

func (v *lockedView) FindTransactionByOrderID(ctx context.Context, orderID uuid.UUID) (*models.PaymentTransaction, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	return v.s.data.findTransactionByOrderID(orderID)
}

func (v *lockedView) UpdateTransactionFields(ctx context.Context, id uuid.UUID, fields map[string]interface{}) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	return v.s.data.updateTransactionFields(id, fields)
}

func (v *lockedView) ListTransactionsByUser(ctx context.Context, userID uuid.UUID, params utils.PaginationParams) ([]models.PaymentTransaction, int64, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	return v.s.data.listTransactionsByUser(userID)
}

// txView runs inside InTransaction's lock, so it touches state directly.
type txView struct {
	data *memData
}

func (v *txView) Catalog() store.CatalogStore  { return &txOps{v.data} }
func (v *txView) Orders() store.OrderStore     { return &txOps{v.data} }
func (v *txView) Payments() store.PaymentStore { return &txOps{v.data} }

func (v *txView) InTransaction(ctx context.Context, fn func(store.Store) error) error {
	return fn(v)
}

type txOps struct {
	data *memData
}

func (o *txOps) FindProductsByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Product, error) {
	return o.data.findProductsByIDs(ids)
}

func (o *txOps) FindProductByID(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	return o.data.findProductByID(id)
}

func (o *txOps) ConditionalAdjustQuantity(ctx context.Context, id uuid.UUID, delta int) (bool, error) {
	return o.data.conditionalAdjustQuantity(id, delta)
}

func (o *txOps) SetProductStatus(ctx context.Context, id uuid.UUID, status models.ProductStatus) error {
	return o.data.setProductStatus(id, status)
}

func (o *txOps) AddSales(ctx context.Context, id uuid.UUID, quantity int) error {
	return o.data.addSales(id, quantity)
}

func (o *txOps) InsertOrder(ctx context.Context, order *models.Order) error {
	return o.data.insertOrder(order)
}

func (o *txOps) FindOrderByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	return o.data.findOrderByID(id)
}

func (o *txOps) UpdateOrderFields(ctx context.Context, id uuid.UUID, fields map[string]interface{}) error {
	return o.data.updateOrderFields(id, fields)
}

func (o *txOps) TransitionStatus(ctx context.Context, id uuid.UUID, from models.OrderStatus, fields map[string]interface{}) (bool, error) {
	return o.data.transitionStatus(id, from, fields)
}

func (o *txOps) ListOrdersByCustomer(ctx context.Context, customerID uuid.UUID, params utils.PaginationParams) ([]models.Order, int64, error) {
	return o.data.listOrders(func(ord *models.Order) bool { return ord.CustomerID == customerID })
}

func (o *txOps) ListOrdersByFarmer(ctx context.Context, farmerID uuid.UUID, params utils.PaginationParams) ([]models.Order, int64, error) {
	return o.data.listOrders(func(ord *models.Order) bool { return orderHasFarmer(ord, farmerID) })
}

func (o *txOps) ListOrders(ctx context.Context, status *models.OrderStatus, params utils.PaginationParams) ([]models.Order, int64, error) {
	return o.data.listOrders(func(ord *models.Order) bool {
		return status == nil || ord.Status == *status
	})
}

func (o *txOps) InsertTransaction(ctx context.Context, txn *models.PaymentTransaction) error {
	return o.data.insertTransaction(txn)
}

func (o *txOps) FindTransactionByOrderID(ctx context.Context, orderID uuid.UUID) (*models.PaymentTransaction, error) {
	return o.data.findTransactionByOrderID(orderID)
}

func (o *txOps) UpdateTransactionFields(ctx context.Context, id uuid.UUID, fields map[string]interface{}) error {
	return o.data.updateTransactionFields(id, fields)
}

func (o *txOps) ListTransactionsByUser(ctx context.Context, userID uuid.UUID, params utils.PaginationParams) ([]models.PaymentTransaction, int64, error) {
	return o.data.listTransactionsByUser(userID)
}

// --- shared state operations ---

func (d *memData) findProductsByIDs(ids []uuid.UUID) ([]models.Product, error) {
	var products []models.Product
	for _, id := range ids {
		if p, ok := d.products[id]; ok {
			products = append(products, *p)
		}
	}
	return products, nil
}

func (d *memData) findProductByID(id uuid.UUID) (*models.Product, error) {
	p, ok := d.products[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (d *memData) conditionalAdjustQuantity(id uuid.UUID, delta int) (bool, error) {
	p, ok := d.products[id]
	if !ok {
		return false, nil
	}
	if p.Quantity+delta < 0 {
		return false, nil
	}
	p.Quantity += delta
	return true, nil
}

func (d *memData) setProductStatus(id uuid.UUID, status models.ProductStatus) error {
	if p, ok := d.products[id]; ok {
		p.Status = status
	}
	return nil
}

func (d *memData) addSales(id uuid.UUID, quantity int) error {
	if p, ok := d.products[id]; ok {
		p.SalesCount += int64(quantity)
	}
	return nil
}

func (d *memData) insertOrder(order *models.Order) error {
	if order.ID == uuid.Nil {
		order.ID = uuid.New()
	}
	order.CreatedAt = time.Now()
	for i := range order.Items {
		if order.Items[i].ID == uuid.Nil {
			order.Items[i].ID = uuid.New()
		}
		order.Items[i].OrderID = order.ID
	}
	stored := *order
	stored.Items = append([]models.OrderItem(nil), order.Items...)
	d.orders[order.ID] = &stored
	return nil
}

func (d *memData) findOrderByID(id uuid.UUID) (*models.Order, error) {
	o, ok := d.orders[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	co := *o
	co.Items = append([]models.OrderItem(nil), o.Items...)
	return &co, nil
}

func (d *memData) updateOrderFields(id uuid.UUID, fields map[string]interface{}) error {
	o, ok := d.orders[id]
	if !ok {
		return store.ErrNotFound
	}
	applyOrderFields(o, fields)
	return nil
}

func (d *memData) transitionStatus(id uuid.UUID, from models.OrderStatus, fields map[string]interface{}) (bool, error) {
	o, ok := d.orders[id]
	if !ok {
		return false, nil
	}
	if o.Status != from {
		return false, nil
	}
	applyOrderFields(o, fields)
	return true, nil
}

func (d *memData) listOrders(match func(*models.Order) bool) ([]models.Order, int64, error) {
	var orders []models.Order
	for _, o := range d.orders {
		if match(o) {
			co := *o
			co.Items = append([]models.OrderItem(nil), o.Items...)
			orders = append(orders, co)
		}
	}
	return orders, int64(len(orders)), nil
}

func (d *memData) insertTransaction(txn *models.PaymentTransaction) error {
	if txn.ID == uuid.Nil {
		txn.ID = uuid.New()
	}
	stored := *txn
	d.txns[txn.ID] = &stored
	return nil
}

func (d *memData) findTransactionByOrderID(orderID uuid.UUID) (*models.PaymentTransaction, error) {
	for _, t := range d.txns {
		if t.OrderID == orderID {
			ct := *t
			return &ct, nil
		}
	}
	return nil, store.ErrNotFound
}

func (d *memData) updateTransactionFields(id uuid.UUID, fields map[string]interface{}) error {
	t, ok := d.txns[id]
	if !ok {
		return store.ErrNotFound
	}
	for key, value := range fields {
		switch key {
		case "status":
			t.Status = value.(models.PaymentStatus)
		case "gateway_ref":
			t.GatewayRef = value.(string)
		case "gateway_data":
			t.GatewayData, _ = value.(models.JSONB)
		case "failure_reason":
			t.FailureReason = value.(string)
		case "completed_at":
			at := value.(time.Time)
			t.CompletedAt = &at
		}
	}
	return nil
}

func (d *memData) listTransactionsByUser(userID uuid.UUID) ([]models.PaymentTransaction, int64, error) {
	var txns []models.PaymentTransaction
	for _, t := range d.txns {
		if t.UserID == userID {
			txns = append(txns, *t)
		}
	}
	return txns, int64(len(txns)), nil
}

func applyOrderFields(o *models.Order, fields map[string]interface{}) {
	for key, value := range fields {
		switch key {
		case "status":
			o.Status = value.(models.OrderStatus)
		case "payment_status":
			o.PaymentStatus = value.(models.PaymentStatus)
		case "payment_ref":
			o.PaymentRef = value.(string)
		case "stock_reserved":
			o.StockReserved = value.(bool)
		case "confirmed_at":
			at := value.(time.Time)
			o.ConfirmedAt = &at
		case "cancelled_at":
			at := value.(time.Time)
			o.CancelledAt = &at
		}
	}
}

func orderHasFarmer(o *models.Order, farmerID uuid.UUID) bool {
	for _, item := range o.Items {
		if item.FarmerID == farmerID {
			return true
		}
	}
	return false
}
