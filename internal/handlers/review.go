// internal/handlers/review.go
package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/agribazaar/agribazaar-backend/internal/services"
	"github.com/agribazaar/agribazaar-backend/internal/utils"
)

type ReviewHandler struct {
	reviewService *services.ReviewService
}

func NewReviewHandler(reviewService *services.ReviewService) *ReviewHandler {
	return &ReviewHandler{reviewService: reviewService}
}

// GET /products/:id/comments
func (h *ReviewHandler) GetComments(c *gin.Context) {
	productID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.BadRequestResponse(c, "invalid product ID", nil)
		return
	}

	threads, err := h.reviewService.ListComments(productID)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, threads)
}

// POST /products/:id/comments
func (h *ReviewHandler) AddComment(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		utils.UnauthorizedResponse(c, "authentication required")
		return
	}

	productID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.BadRequestResponse(c, "invalid product ID", nil)
		return
	}

	var body struct {
		Text    string     `json:"text"`
		ReplyTo *uuid.UUID `json:"reply_to,omitempty"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		utils.BadRequestResponse(c, "invalid request body", err.Error())
		return
	}

	comment, err := h.reviewService.AddComment(userID, &services.AddCommentRequest{
		ProductID: productID,
		Text:      body.Text,
		ReplyTo:   body.ReplyTo,
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}

	utils.CreatedResponse(c, comment)
}

// PUT /comments/:id
func (h *ReviewHandler) UpdateComment(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		utils.UnauthorizedResponse(c, "authentication required")
		return
	}

	commentID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.BadRequestResponse(c, "invalid comment ID", nil)
		return
	}

	var body struct {
		Text string `json:"text"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		utils.BadRequestResponse(c, "invalid request body", err.Error())
		return
	}

	comment, err := h.reviewService.UpdateComment(commentID, userID, body.Text)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, comment)
}

// DELETE /comments/:id
func (h *ReviewHandler) DeleteComment(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		utils.UnauthorizedResponse(c, "authentication required")
		return
	}
	role, _ := currentUserRole(c)

	commentID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.BadRequestResponse(c, "invalid comment ID", nil)
		return
	}

	if err := h.reviewService.DeleteComment(commentID, userID, role); err != nil {
		respondServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{"message": "comment deleted"})
}

// GET /products/:id/ratings
func (h *ReviewHandler) GetRatings(c *gin.Context) {
	productID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.BadRequestResponse(c, "invalid product ID", nil)
		return
	}

	ratings, stats, err := h.reviewService.ListRatings(productID)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"ratings":    ratings,
		"statistics": stats,
	})
}

// PUT /products/:id/rating
func (h *ReviewHandler) RateProduct(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		utils.UnauthorizedResponse(c, "authentication required")
		return
	}

	productID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.BadRequestResponse(c, "invalid product ID", nil)
		return
	}

	var body struct {
		Score int `json:"score"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		utils.BadRequestResponse(c, "invalid request body", err.Error())
		return
	}

	rating, err := h.reviewService.RateProduct(userID, &services.RateProductRequest{
		ProductID: productID,
		Score:     body.Score,
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, rating)
}

// GET /products/:id/rating
func (h *ReviewHandler) GetMyRating(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		utils.UnauthorizedResponse(c, "authentication required")
		return
	}

	productID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.BadRequestResponse(c, "invalid product ID", nil)
		return
	}

	rating, err := h.reviewService.GetUserRating(productID, userID)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, rating)
}

// DELETE /ratings/:id
func (h *ReviewHandler) DeleteRating(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		utils.UnauthorizedResponse(c, "authentication required")
		return
	}

	ratingID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.BadRequestResponse(c, "invalid rating ID", nil)
		return
	}

	if err := h.reviewService.DeleteRating(ratingID, userID); err != nil {
		respondServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{"message": "rating deleted"})
}
