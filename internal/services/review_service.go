// internal/services/review_service.go
package services

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/agribazaar/agribazaar-backend/internal/models"
)

const maxCommentLength = 1000

// ReviewService manages product comments and star ratings. Comment events
// go through the same post-commit queue as order events.
type ReviewService struct {
	db        *gorm.DB
	publisher EventPublisher
}

type AddCommentRequest struct {
	ProductID uuid.UUID  `json:"product_id" validate:"required"`
	Text      string     `json:"text" validate:"required"`
	ReplyTo   *uuid.UUID `json:"reply_to,omitempty"`
}

type RateProductRequest struct {
	ProductID uuid.UUID `json:"product_id" validate:"required"`
	Score     int       `json:"score" validate:"required"`
}

// CommentThread is a top-level comment with its replies in conversation
// order (replies oldest first).
type CommentThread struct {
	models.Comment
	Replies []models.Comment `json:"replies"`
}

type RatingStatistics struct {
	TotalRatings  int64         `json:"total_ratings"`
	AverageRating float64       `json:"average_rating"`
	Distribution  map[int]int64 `json:"distribution"`
}

func NewReviewService(db *gorm.DB, publisher EventPublisher) *ReviewService {
	return &ReviewService{db: db, publisher: publisher}
}

func (s *ReviewService) AddComment(userID uuid.UUID, req *AddCommentRequest) (*models.Comment, error) {
	text, err := normalizeCommentText(req.Text)
	if err != nil {
		return nil, err
	}

	var product models.Product
	if err := s.db.First(&product, "id = ?", req.ProductID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &NotFoundError{Resource: "product", ID: req.ProductID}
		}
		return nil, fmt.Errorf("database error: %w", err)
	}

	var parent *models.Comment
	if req.ReplyTo != nil {
		var parentComment models.Comment
		if err := s.db.First(&parentComment, "id = ?", *req.ReplyTo).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, &NotFoundError{Resource: "comment", ID: *req.ReplyTo}
			}
			return nil, fmt.Errorf("database error: %w", err)
		}
		if parentComment.ProductID != req.ProductID {
			return nil, &ValidationError{Field: "reply_to", Reason: "parent comment belongs to a different product"}
		}
		parent = &parentComment
	}

	var user models.User
	if err := s.db.First(&user, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &NotFoundError{Resource: "user", ID: userID}
		}
		return nil, fmt.Errorf("database error: %w", err)
	}

	comment := &models.Comment{
		ProductID: req.ProductID,
		UserID:    userID,
		UserName:  user.Name,
		Text:      text,
		ReplyTo:   req.ReplyTo,
	}

	if err := s.db.Create(comment).Error; err != nil {
		return nil, fmt.Errorf("failed to create comment: %w", err)
	}

	if recipient, eventType, ok := commentRecipient(userID, product.FarmerID, parent); ok {
		s.publish(Event{
			Type:       eventType,
			ProductID:  product.ID,
			Recipients: []uuid.UUID{recipient},
			Data: models.JSONB{
				"product_id":   product.ID.String(),
				"product_name": product.Name,
				"comment_id":   comment.ID.String(),
				"excerpt":      commentExcerpt(text),
			},
		})
	}

	return comment, nil
}

// ListComments returns a product's comments threaded: top-level comments
// newest first, replies under their parent oldest first.
func (s *ReviewService) ListComments(productID uuid.UUID) ([]CommentThread, error) {
	var count int64
	if err := s.db.Model(&models.Product{}).Where("id = ?", productID).Count(&count).Error; err != nil {
		return nil, fmt.Errorf("database error: %w", err)
	}
	if count == 0 {
		return nil, &NotFoundError{Resource: "product", ID: productID}
	}

	var comments []models.Comment
	if err := s.db.Where("product_id = ?", productID).
		Order("created_at DESC").
		Find(&comments).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch comments: %w", err)
	}

	return buildCommentThreads(comments), nil
}

func (s *ReviewService) UpdateComment(id, userID uuid.UUID, text string) (*models.Comment, error) {
	normalized, err := normalizeCommentText(text)
	if err != nil {
		return nil, err
	}

	var comment models.Comment
	if err := s.db.First(&comment, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &NotFoundError{Resource: "comment", ID: id}
		}
		return nil, fmt.Errorf("database error: %w", err)
	}

	if comment.UserID != userID {
		return nil, &PermissionError{Reason: "comment belongs to another user"}
	}

	if err := s.db.Model(&comment).Update("text", normalized).Error; err != nil {
		return nil, fmt.Errorf("failed to update comment: %w", err)
	}

	return &comment, nil
}

// DeleteComment removes a comment. Owners delete their own; admins delete
// any.
func (s *ReviewService) DeleteComment(id, userID uuid.UUID, role models.UserRole) error {
	var comment models.Comment
	if err := s.db.First(&comment, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &NotFoundError{Resource: "comment", ID: id}
		}
		return fmt.Errorf("database error: %w", err)
	}

	if comment.UserID != userID && role != models.UserRoleAdmin {
		return &PermissionError{Reason: "comment belongs to another user"}
	}

	if err := s.db.Delete(&comment).Error; err != nil {
		return fmt.Errorf("failed to delete comment: %w", err)
	}

	return nil
}

// RateProduct records a 1-5 score. A user's second rating of the same
// product replaces the first; product aggregates are recomputed either way.
func (s *ReviewService) RateProduct(userID uuid.UUID, req *RateProductRequest) (*models.Rating, error) {
	if !models.IsValidRatingScore(req.Score) {
		return nil, &ValidationError{Field: "score", Reason: fmt.Sprintf("must be between %d and %d", models.MinRatingScore, models.MaxRatingScore)}
	}

	var product models.Product
	if err := s.db.First(&product, "id = ?", req.ProductID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &NotFoundError{Resource: "product", ID: req.ProductID}
		}
		return nil, fmt.Errorf("database error: %w", err)
	}

	var user models.User
	if err := s.db.First(&user, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &NotFoundError{Resource: "user", ID: userID}
		}
		return nil, fmt.Errorf("database error: %w", err)
	}

	var rating models.Rating
	err := s.db.Where("product_id = ? AND user_id = ?", req.ProductID, userID).First(&rating).Error
	switch {
	case err == nil:
		if err := s.db.Model(&rating).Update("score", req.Score).Error; err != nil {
			return nil, fmt.Errorf("failed to update rating: %w", err)
		}
		rating.Score = req.Score
	case errors.Is(err, gorm.ErrRecordNotFound):
		rating = models.Rating{
			ProductID: req.ProductID,
			UserID:    userID,
			UserName:  user.Name,
			Score:     req.Score,
		}
		if err := s.db.Create(&rating).Error; err != nil {
			return nil, fmt.Errorf("failed to create rating: %w", err)
		}
	default:
		return nil, fmt.Errorf("database error: %w", err)
	}

	if err := s.recomputeProductRating(req.ProductID); err != nil {
		return nil, err
	}

	return &rating, nil
}

func (s *ReviewService) ListRatings(productID uuid.UUID) ([]models.Rating, RatingStatistics, error) {
	var ratings []models.Rating
	if err := s.db.Where("product_id = ?", productID).
		Order("created_at DESC").
		Find(&ratings).Error; err != nil {
		return nil, RatingStatistics{}, fmt.Errorf("failed to fetch ratings: %w", err)
	}
	return ratings, ratingStatistics(ratings), nil
}

// GetUserRating returns the caller's rating for a product, or nil if they
// have not rated it.
func (s *ReviewService) GetUserRating(productID, userID uuid.UUID) (*models.Rating, error) {
	var rating models.Rating
	err := s.db.Where("product_id = ? AND user_id = ?", productID, userID).First(&rating).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("database error: %w", err)
	}
	return &rating, nil
}

func (s *ReviewService) DeleteRating(id, userID uuid.UUID) error {
	var rating models.Rating
	if err := s.db.First(&rating, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &NotFoundError{Resource: "rating", ID: id}
		}
		return fmt.Errorf("database error: %w", err)
	}

	if rating.UserID != userID {
		return &PermissionError{Reason: "rating belongs to another user"}
	}

	if err := s.db.Delete(&rating).Error; err != nil {
		return fmt.Errorf("failed to delete rating: %w", err)
	}

	return s.recomputeProductRating(rating.ProductID)
}

func (s *ReviewService) recomputeProductRating(productID uuid.UUID) error {
	var ratings []models.Rating
	if err := s.db.Where("product_id = ?", productID).Find(&ratings).Error; err != nil {
		return fmt.Errorf("failed to fetch ratings: %w", err)
	}

	stats := ratingStatistics(ratings)
	if err := s.db.Model(&models.Product{}).
		Where("id = ?", productID).
		Updates(map[string]interface{}{
			"average_rating": stats.AverageRating,
			"total_ratings":  stats.TotalRatings,
		}).Error; err != nil {
		return fmt.Errorf("failed to update product rating: %w", err)
	}
	return nil
}

func (s *ReviewService) publish(event Event) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(event); err != nil {
		logrus.WithError(err).WithField("event", event.Type).Warn("Failed to enqueue notification event")
	}
}

func normalizeCommentText(text string) (string, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return "", &ValidationError{Field: "text", Reason: "comment text cannot be empty"}
	}
	if len(trimmed) > maxCommentLength {
		return "", &ValidationError{Field: "text", Reason: fmt.Sprintf("comment text cannot exceed %d characters", maxCommentLength)}
	}
	return trimmed, nil
}

// buildCommentThreads groups a newest-first comment list into top-level
// threads. Replies flip to oldest first so each thread reads as a
// conversation. Replies whose parent is gone are dropped.
func buildCommentThreads(comments []models.Comment) []CommentThread {
	replies := make(map[uuid.UUID][]models.Comment)
	var topLevel []models.Comment

	for _, comment := range comments {
		if comment.ReplyTo != nil {
			replies[*comment.ReplyTo] = append(replies[*comment.ReplyTo], comment)
		} else {
			topLevel = append(topLevel, comment)
		}
	}

	threads := make([]CommentThread, 0, len(topLevel))
	for _, comment := range topLevel {
		thread := CommentThread{Comment: comment, Replies: []models.Comment{}}
		if children := replies[comment.ID]; len(children) > 0 {
			// Input order is newest first; reverse for conversation flow.
			thread.Replies = make([]models.Comment, len(children))
			for i, child := range children {
				thread.Replies[len(children)-1-i] = child
			}
		}
		threads = append(threads, thread)
	}
	return threads
}

// commentRecipient decides who hears about a new comment. Top-level
// comments notify the farmer; replies notify the parent comment's author.
// Nobody is notified about their own comment.
func commentRecipient(commenterID, farmerID uuid.UUID, parent *models.Comment) (uuid.UUID, string, bool) {
	if parent == nil {
		if commenterID == farmerID {
			return uuid.Nil, "", false
		}
		return farmerID, EventProductComment, true
	}

	if parent.UserID == commenterID {
		return uuid.Nil, "", false
	}
	return parent.UserID, EventCommentReply, true
}

func commentExcerpt(text string) string {
	const limit = 100
	if len(text) <= limit {
		return text
	}
	return text[:limit] + "..."
}

func ratingStatistics(ratings []models.Rating) RatingStatistics {
	stats := RatingStatistics{
		TotalRatings: int64(len(ratings)),
		Distribution: make(map[int]int64, models.MaxRatingScore),
	}
	for score := models.MinRatingScore; score <= models.MaxRatingScore; score++ {
		stats.Distribution[score] = 0
	}

	if len(ratings) == 0 {
		return stats
	}

	var sum int
	for _, rating := range ratings {
		sum += rating.Score
		stats.Distribution[rating.Score]++
	}
	stats.AverageRating = math.Round(float64(sum)/float64(len(ratings))*10) / 10
	return stats
}
