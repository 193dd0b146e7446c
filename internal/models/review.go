// internal/models/review.go
package models

import (
	"github.com/google/uuid"
)

// Comment is a discussion entry on a product listing. A nil ReplyTo marks
// a top-level comment; replies point at their parent and always belong to
// the same product.
type Comment struct {
	BaseModel
	ProductID uuid.UUID  `json:"product_id" gorm:"type:uuid;not null;index"`
	UserID    uuid.UUID  `json:"user_id" gorm:"type:uuid;not null;index"`
	UserName  string     `json:"user_name" gorm:"size:255"`
	Text      string     `json:"text" gorm:"type:text;not null"`
	ReplyTo   *uuid.UUID `json:"reply_to,omitempty" gorm:"type:uuid;index"`
}

// IsReply reports whether the comment answers another comment.
func (c *Comment) IsReply() bool {
	return c.ReplyTo != nil
}

// Rating is a 1-5 star score. One row per (product, user); re-rating
// updates the existing row.
type Rating struct {
	BaseModel
	ProductID uuid.UUID `json:"product_id" gorm:"type:uuid;not null;uniqueIndex:idx_ratings_product_user"`
	UserID    uuid.UUID `json:"user_id" gorm:"type:uuid;not null;uniqueIndex:idx_ratings_product_user"`
	UserName  string    `json:"user_name" gorm:"size:255"`
	Score     int       `json:"score" gorm:"not null"`
}

const (
	MinRatingScore = 1
	MaxRatingScore = 5
)

func IsValidRatingScore(score int) bool {
	return score >= MinRatingScore && score <= MaxRatingScore
}
