// internal/services/payment_service.go
package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/paymentintent"

	"github.com/agribazaar/agribazaar-backend/internal/config"
	"github.com/agribazaar/agribazaar-backend/internal/models"
	"github.com/agribazaar/agribazaar-backend/internal/store"
	"github.com/agribazaar/agribazaar-backend/internal/utils"
)

// GatewayAssertion is what the caller claims about an out-of-band payment:
// the gateway token to verify and the amount it supposedly settled.
type GatewayAssertion struct {
	Token  string  `json:"token" validate:"required"`
	Amount float64 `json:"amount" validate:"required"`
}

// GatewayVerification is the gateway's answer. Amount is authoritative and
// is matched against the order's stored total before any state changes.
type GatewayVerification struct {
	Verified  bool
	Reference string
	Amount    float64
	Raw       models.JSONB
}

// PaymentGateway verifies a payment assertion with the external provider.
type PaymentGateway interface {
	Verify(ctx context.Context, method models.PaymentMethod, assertion GatewayAssertion) (*GatewayVerification, error)
}

// PaymentService confirms gateway-settled payments. For gateway methods the
// inventory reservation was deferred at placement, so confirmation carries
// the reservation inside its own transaction: reserved exactly once, never
// both, never neither.
type PaymentService struct {
	store     store.Store
	gateway   PaymentGateway
	cfg       *config.Config
	publisher EventPublisher
}

type ConfirmPaymentRequest struct {
	OrderID   uuid.UUID        `json:"order_id" validate:"required"`
	Assertion GatewayAssertion `json:"assertion"`
}

func NewPaymentService(s store.Store, gateway PaymentGateway, cfg *config.Config, publisher EventPublisher) *PaymentService {
	return &PaymentService{
		store:     s,
		gateway:   gateway,
		cfg:       cfg,
		publisher: publisher,
	}
}

// InitiatePayment records a payment attempt for a gateway order. The row is
// updated when the gateway confirms or rejects.
func (s *PaymentService) InitiatePayment(ctx context.Context, orderID, userID uuid.UUID) (*models.PaymentTransaction, error) {
	order, err := s.store.Orders().FindOrderByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, &NotFoundError{Resource: "order", ID: orderID}
		}
		return nil, err
	}

	if order.CustomerID != userID {
		return nil, &PermissionError{Reason: "order belongs to another customer"}
	}

	if !order.PaymentMethod.RequiresGatewayConfirmation() {
		return nil, &ValidationError{Field: "payment_method", Reason: "order does not use a payment gateway"}
	}

	now := time.Now()
	txn := &models.PaymentTransaction{
		OrderID:       orderID,
		UserID:        userID,
		TransactionID: models.GenerateTransactionID(orderID, now),
		Gateway:       order.PaymentMethod,
		Amount:        order.TotalAmount,
		Currency:      s.cfg.Payment.Currency,
		Status:        models.PaymentStatusInitiated,
		InitiatedAt:   now,
	}

	if err := s.store.Payments().InsertTransaction(ctx, txn); err != nil {
		return nil, err
	}
	return txn, nil
}

// ConfirmPayment verifies the gateway assertion, matches the settled amount
// against the stored total, then confirms the order and reserves inventory
// in one transaction. On any failure nothing changes and the order stays
// pending.
func (s *PaymentService) ConfirmPayment(ctx context.Context, req *ConfirmPaymentRequest) (*models.Order, error) {
	order, err := s.store.Orders().FindOrderByID(ctx, req.OrderID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, &NotFoundError{Resource: "order", ID: req.OrderID}
		}
		return nil, err
	}

	if !order.PaymentMethod.RequiresGatewayConfirmation() {
		return nil, &ValidationError{Field: "payment_method", Reason: "order does not use a payment gateway"}
	}

	if order.PaymentStatus == models.PaymentStatusCompleted {
		return nil, &InvalidStateError{
			OrderID: order.ID,
			Status:  order.Status,
			Reason:  "payment already confirmed",
		}
	}

	if order.Status != models.OrderStatusPending {
		return nil, &InvalidStateError{
			OrderID: order.ID,
			Status:  order.Status,
			Reason:  "only pending orders accept payment confirmation",
		}
	}

	verification, err := s.gateway.Verify(ctx, order.PaymentMethod, req.Assertion)
	if err != nil {
		return nil, fmt.Errorf("gateway verification failed: %w", err)
	}

	if !verification.Verified {
		s.recordFailure(ctx, order, verification, "gateway reported payment as not settled")
		return nil, &ValidationError{Field: "assertion", Reason: "payment could not be verified by the gateway"}
	}

	if !amountsMatch(verification.Amount, order.TotalAmount) {
		// Mismatch leaves the order completely untouched.
		return nil, &PaymentMismatchError{
			OrderID:  order.ID,
			Expected: order.TotalAmount,
			Asserted: verification.Amount,
		}
	}

	now := time.Now()
	err = s.store.InTransaction(ctx, func(tx store.Store) error {
		ok, err := tx.Orders().TransitionStatus(ctx, order.ID, models.OrderStatusPending, map[string]interface{}{
			"status":         models.OrderStatusConfirmed,
			"payment_status": models.PaymentStatusCompleted,
			"payment_ref":    verification.Reference,
			"stock_reserved": true,
			"confirmed_at":   now,
		})
		if err != nil {
			return err
		}
		if !ok {
			fresh, ferr := tx.Orders().FindOrderByID(ctx, order.ID)
			if ferr != nil {
				return ferr
			}
			return &InvalidStateError{
				OrderID: order.ID,
				Status:  fresh.Status,
				Reason:  "order status changed concurrently",
			}
		}

		// The deferred reservation: gateway orders take their stock here.
		if !order.StockReserved {
			if err := reserveStock(ctx, tx, order.Items); err != nil {
				return err
			}
		}

		return s.upsertCompletedTransaction(ctx, tx, order, verification, now)
	})
	if err != nil {
		return nil, err
	}

	order.Status = models.OrderStatusConfirmed
	order.PaymentStatus = models.PaymentStatusCompleted
	order.PaymentRef = verification.Reference
	order.StockReserved = true
	order.ConfirmedAt = &now

	if s.publisher != nil {
		if perr := s.publisher.Publish(Event{
			Type:         EventPaymentConfirmed,
			OrderID:      order.ID,
			Recipients:   append([]uuid.UUID{order.CustomerID}, order.FarmerIDs()...),
			NotifyAdmins: true,
			Data: models.JSONB{
				"order_id":    order.ID.String(),
				"payment_ref": verification.Reference,
				"amount":      verification.Amount,
			},
		}); perr != nil {
			logrus.WithError(perr).Warn("Failed to enqueue payment notification")
		}
	}

	return order, nil
}

func (s *PaymentService) upsertCompletedTransaction(ctx context.Context, tx store.Store, order *models.Order, verification *GatewayVerification, now time.Time) error {
	fields := map[string]interface{}{
		"status":       models.PaymentStatusCompleted,
		"gateway_ref":  verification.Reference,
		"gateway_data": verification.Raw,
		"completed_at": now,
	}

	existing, err := tx.Payments().FindTransactionByOrderID(ctx, order.ID)
	if err == nil {
		return tx.Payments().UpdateTransactionFields(ctx, existing.ID, fields)
	}
	if !errors.Is(err, store.ErrNotFound) {
		return err
	}

	txn := &models.PaymentTransaction{
		OrderID:       order.ID,
		UserID:        order.CustomerID,
		TransactionID: models.GenerateTransactionID(order.ID, now),
		Gateway:       order.PaymentMethod,
		Amount:        order.TotalAmount,
		Currency:      s.cfg.Payment.Currency,
		Status:        models.PaymentStatusCompleted,
		GatewayRef:    verification.Reference,
		GatewayData:   verification.Raw,
		InitiatedAt:   now,
		CompletedAt:   &now,
	}
	return tx.Payments().InsertTransaction(ctx, txn)
}

// recordFailure marks the payment attempt as failed. The order itself is
// not touched; the customer can retry with a fresh gateway session.
func (s *PaymentService) recordFailure(ctx context.Context, order *models.Order, verification *GatewayVerification, reason string) {
	existing, err := s.store.Payments().FindTransactionByOrderID(ctx, order.ID)
	if err != nil {
		return
	}
	fields := map[string]interface{}{
		"status":         models.PaymentStatusFailed,
		"failure_reason": reason,
	}
	if verification != nil {
		fields["gateway_data"] = verification.Raw
	}
	if err := s.store.Payments().UpdateTransactionFields(ctx, existing.ID, fields); err != nil {
		logrus.WithError(err).Warn("Failed to record payment failure")
	}
}

func (s *PaymentService) GetPaymentHistory(ctx context.Context, userID uuid.UUID, params utils.PaginationParams) ([]models.PaymentTransaction, int64, error) {
	return s.store.Payments().ListTransactionsByUser(ctx, userID, params)
}

// amountsMatch compares at cent precision so float representation noise
// does not fail an exact settlement.
func amountsMatch(a, b float64) bool {
	return math.Round(a*100) == math.Round(b*100)
}

// --- gateway adapters ---

// GatewayMux routes verification to the adapter for the order's method.
type GatewayMux struct {
	gateways map[models.PaymentMethod]PaymentGateway
}

func NewGatewayMux(cfg *config.Config) *GatewayMux {
	client := &http.Client{Timeout: 15 * time.Second}
	return &GatewayMux{
		gateways: map[models.PaymentMethod]PaymentGateway{
			models.PaymentMethodCard:   NewStripeGateway(cfg.Payment.StripeSecretKey),
			models.PaymentMethodEsewa:  &EsewaGateway{VerifyURL: cfg.Payment.EsewaVerifyURL, SecretKey: cfg.Payment.EsewaSecretKey, Client: client},
			models.PaymentMethodKhalti: &KhaltiGateway{VerifyURL: cfg.Payment.KhaltiVerifyURL, SecretKey: cfg.Payment.KhaltiSecretKey, Client: client},
		},
	}
}

func (m *GatewayMux) Verify(ctx context.Context, method models.PaymentMethod, assertion GatewayAssertion) (*GatewayVerification, error) {
	gateway, ok := m.gateways[method]
	if !ok {
		return nil, fmt.Errorf("no gateway registered for method %q", method)
	}
	return gateway.Verify(ctx, method, assertion)
}

// StripeGateway verifies card payments by looking up the PaymentIntent.
type StripeGateway struct{}

func NewStripeGateway(secretKey string) *StripeGateway {
	stripe.Key = secretKey
	return &StripeGateway{}
}

func (g *StripeGateway) Verify(ctx context.Context, _ models.PaymentMethod, assertion GatewayAssertion) (*GatewayVerification, error) {
	pi, err := paymentintent.Get(assertion.Token, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get payment intent: %w", err)
	}

	return &GatewayVerification{
		Verified:  pi.Status == stripe.PaymentIntentStatusSucceeded,
		Reference: pi.ID,
		Amount:    float64(pi.Amount) / 100,
		Raw: models.JSONB{
			"payment_intent": pi.ID,
			"status":         string(pi.Status),
			"currency":       string(pi.Currency),
		},
	}, nil
}

// EsewaGateway checks an eSewa transaction status by reference.
type EsewaGateway struct {
	VerifyURL string
	SecretKey string
	Client    *http.Client
}

func (g *EsewaGateway) Verify(ctx context.Context, _ models.PaymentMethod, assertion GatewayAssertion) (*GatewayVerification, error) {
	url := fmt.Sprintf("%s?transaction_uuid=%s", g.VerifyURL, assertion.Token)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := g.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("esewa verification request failed: %w", err)
	}
	defer resp.Body.Close()

	var body struct {
		Status          string  `json:"status"`
		TransactionUUID string  `json:"transaction_uuid"`
		TotalAmount     float64 `json:"total_amount"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode esewa response: %w", err)
	}

	return &GatewayVerification{
		Verified:  body.Status == "COMPLETE",
		Reference: body.TransactionUUID,
		Amount:    body.TotalAmount,
		Raw: models.JSONB{
			"status":           body.Status,
			"transaction_uuid": body.TransactionUUID,
			"total_amount":     body.TotalAmount,
		},
	}, nil
}

// KhaltiGateway verifies a Khalti payment by token lookup.
type KhaltiGateway struct {
	VerifyURL string
	SecretKey string
	Client    *http.Client
}

func (g *KhaltiGateway) Verify(ctx context.Context, _ models.PaymentMethod, assertion GatewayAssertion) (*GatewayVerification, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.VerifyURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Key "+g.SecretKey)

	q := req.URL.Query()
	q.Set("token", assertion.Token)
	req.URL.RawQuery = q.Encode()

	resp, err := g.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("khalti verification request failed: %w", err)
	}
	defer resp.Body.Close()

	var body struct {
		Idx   string `json:"idx"`
		State struct {
			Name string `json:"name"`
		} `json:"state"`
		Amount int64 `json:"amount"` // paisa
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode khalti response: %w", err)
	}

	return &GatewayVerification{
		Verified:  resp.StatusCode == http.StatusOK && body.State.Name == "Completed",
		Reference: body.Idx,
		Amount:    float64(body.Amount) / 100,
		Raw: models.JSONB{
			"idx":    body.Idx,
			"state":  body.State.Name,
			"amount": body.Amount,
		},
	}, nil
}
