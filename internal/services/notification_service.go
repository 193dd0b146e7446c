// internal/services/notification_service.go
package services

import (
	"errors"
	"fmt"
	"net/smtp"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/agribazaar/agribazaar-backend/internal/config"
	"github.com/agribazaar/agribazaar-backend/internal/models"
)

// Event types emitted by the order core and the review service.
const (
	EventOrderPlaced        = "order_placed"
	EventOrderCancelled     = "order_cancelled"
	EventOrderStatusChanged = "order_status_changed"
	EventPaymentConfirmed   = "payment_confirmed"
	EventProductComment     = "product_comment"
	EventCommentReply       = "comment_reply"
)

// Event is a post-commit notification request. Events are enqueued after
// the transaction commits and delivered asynchronously; delivery failures
// never propagate back to the operation that emitted them.
type Event struct {
	Type         string
	OrderID      uuid.UUID
	ProductID    uuid.UUID
	Recipients   []uuid.UUID
	NotifyAdmins bool
	Data         models.JSONB
}

// EventPublisher accepts events for asynchronous delivery.
type EventPublisher interface {
	Publish(event Event) error
}

var errQueueFull = errors.New("notification queue is full")
var errQueueClosed = errors.New("notification queue is closed")

// NotificationService is the event queue worker. It persists notification
// rows for every recipient and sends best-effort emails.
type NotificationService struct {
	db    *gorm.DB
	cfg   *config.Config
	queue chan Event
	wg    sync.WaitGroup

	mtx    sync.Mutex
	closed bool
}

func NewNotificationService(db *gorm.DB, cfg *config.Config) *NotificationService {
	return &NotificationService{
		db:    db,
		cfg:   cfg,
		queue: make(chan Event, 256),
	}
}

// Start launches the delivery worker.
func (s *NotificationService) Start() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for event := range s.queue {
			s.deliver(event)
		}
	}()
}

// Stop drains the queue and waits for in-flight deliveries.
func (s *NotificationService) Stop() {
	s.mtx.Lock()
	if !s.closed {
		s.closed = true
		close(s.queue)
	}
	s.mtx.Unlock()
	s.wg.Wait()
}

// Publish enqueues an event without blocking. A full queue drops the event
// and reports it; order processing is never held up by notifications.
func (s *NotificationService) Publish(event Event) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	if s.closed {
		return errQueueClosed
	}

	select {
	case s.queue <- event:
		return nil
	default:
		return errQueueFull
	}
}

func (s *NotificationService) deliver(event Event) {
	recipients := event.Recipients
	if event.NotifyAdmins {
		recipients = append(recipients, s.adminIDs()...)
	}

	title, message := renderEvent(event)

	seen := make(map[uuid.UUID]bool, len(recipients))
	for _, userID := range recipients {
		if seen[userID] {
			continue
		}
		seen[userID] = true

		notification := &models.Notification{
			UserID:  userID,
			Type:    event.Type,
			Title:   title,
			Message: message,
			Data:    event.Data,
		}

		if err := s.db.Create(notification).Error; err != nil {
			logrus.WithError(err).WithFields(logrus.Fields{
				"event":   event.Type,
				"user_id": userID,
			}).Error("Failed to persist notification")
			continue
		}

		s.emailUser(userID, title, message)
	}
}

func (s *NotificationService) adminIDs() []uuid.UUID {
	var ids []uuid.UUID
	if err := s.db.Model(&models.User{}).
		Where("role = ?", models.UserRoleAdmin).
		Pluck("id", &ids).Error; err != nil {
		logrus.WithError(err).Error("Failed to resolve admin recipients")
	}
	return ids
}

// emailUser sends a plain-text email. Disabled or unconfigured SMTP skips
// the send; delivery errors are logged and swallowed.
func (s *NotificationService) emailUser(userID uuid.UUID, subject, body string) {
	if !s.cfg.Email.Enabled || s.cfg.Email.SMTPUsername == "" {
		return
	}

	var user models.User
	if err := s.db.First(&user, "id = ?", userID).Error; err != nil {
		logrus.WithError(err).WithField("user_id", userID).Warn("Failed to look up email recipient")
		return
	}

	msg := fmt.Sprintf("From: %s <%s>\r\nTo: %s\r\nSubject: %s\r\n\r\n%s\r\n",
		s.cfg.Email.FromName, s.cfg.Email.FromEmail, user.Email, subject, body)

	auth := smtp.PlainAuth("", s.cfg.Email.SMTPUsername, s.cfg.Email.SMTPPassword, s.cfg.Email.SMTPHost)
	addr := s.cfg.Email.SMTPHost + ":" + s.cfg.Email.SMTPPort

	if err := smtp.SendMail(addr, auth, s.cfg.Email.FromEmail, []string{user.Email}, []byte(msg)); err != nil {
		logrus.WithError(err).WithField("user_id", userID).Warn("Failed to send notification email")
	}
}

func renderEvent(event Event) (title, message string) {
	switch event.Type {
	case EventOrderPlaced:
		return "Order placed", fmt.Sprintf("Order %s has been placed.", orderRef(event))
	case EventOrderCancelled:
		return "Order cancelled", fmt.Sprintf("Order %s has been cancelled and its items returned to stock.", orderRef(event))
	case EventOrderStatusChanged:
		status, _ := event.Data["status"].(string)
		return "Order updated", fmt.Sprintf("Order %s is now %s.", orderRef(event), status)
	case EventPaymentConfirmed:
		return "Payment received", fmt.Sprintf("Payment for order %s has been confirmed.", orderRef(event))
	case EventProductComment:
		product, _ := event.Data["product_name"].(string)
		excerpt, _ := event.Data["excerpt"].(string)
		return "New comment on your product", fmt.Sprintf("New comment on %q: %s", product, excerpt)
	case EventCommentReply:
		product, _ := event.Data["product_name"].(string)
		excerpt, _ := event.Data["excerpt"].(string)
		return "Reply to your comment", fmt.Sprintf("New reply on %q: %s", product, excerpt)
	default:
		return "Notification", fmt.Sprintf("Update for order %s.", orderRef(event))
	}
}

func orderRef(event Event) string {
	return event.OrderID.String()[:8]
}

// MarkRead flags a notification as read by its owner.
func (s *NotificationService) MarkRead(notificationID, userID uuid.UUID) error {
	res := s.db.Model(&models.Notification{}).
		Where("id = ? AND user_id = ?", notificationID, userID).
		Update("read_at", gorm.Expr("NOW()"))
	if res.Error != nil {
		return fmt.Errorf("failed to mark notification read: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return &NotFoundError{Resource: "notification", ID: notificationID}
	}
	return nil
}

// ListForUser returns a user's notifications, newest first.
func (s *NotificationService) ListForUser(userID uuid.UUID, limit int) ([]models.Notification, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	var notifications []models.Notification
	if err := s.db.Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&notifications).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch notifications: %w", err)
	}
	return notifications, nil
}
