// internal/services/review_service_test.go
package services

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agribazaar/agribazaar-backend/internal/models"
)

func TestNormalizeCommentText(t *testing.T) {
	text, err := normalizeCommentText("  fresh and tasty  ")
	require.NoError(t, err)
	assert.Equal(t, "fresh and tasty", text)

	text, err = normalizeCommentText(strings.Repeat("a", maxCommentLength))
	require.NoError(t, err)
	assert.Len(t, text, maxCommentLength)

	cases := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"whitespace only", "   \n\t "},
		{"too long", strings.Repeat("a", maxCommentLength+1)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := normalizeCommentText(tc.input)
			var validationErr *ValidationError
			assert.True(t, errors.As(err, &validationErr))
		})
	}
}

func TestBuildCommentThreads(t *testing.T) {
	now := time.Now()
	newComment := func(offset time.Duration, replyTo *uuid.UUID) models.Comment {
		c := models.Comment{ReplyTo: replyTo}
		c.ID = uuid.New()
		c.CreatedAt = now.Add(offset)
		return c
	}

	older := newComment(-3*time.Hour, nil)
	newer := newComment(-1*time.Hour, nil)
	firstReply := newComment(-2*time.Hour, &older.ID)
	secondReply := newComment(-30*time.Minute, &older.ID)
	orphan := newComment(-10*time.Minute, &uuid.UUID{})

	// Input arrives newest first, the way ListComments fetches it.
	threads := buildCommentThreads([]models.Comment{orphan, secondReply, newer, firstReply, older})

	require.Len(t, threads, 2)

	// Top-level order is preserved: newest first.
	assert.Equal(t, newer.ID, threads[0].ID)
	assert.Equal(t, older.ID, threads[1].ID)

	// Replies flip to oldest first under their parent.
	require.Len(t, threads[1].Replies, 2)
	assert.Equal(t, firstReply.ID, threads[1].Replies[0].ID)
	assert.Equal(t, secondReply.ID, threads[1].Replies[1].ID)

	// Thread without replies serializes as an empty list, not null.
	assert.NotNil(t, threads[0].Replies)
	assert.Empty(t, threads[0].Replies)
}

func TestCommentRecipient(t *testing.T) {
	farmer := uuid.New()
	customer := uuid.New()
	otherCustomer := uuid.New()

	parentBy := func(author uuid.UUID) *models.Comment {
		c := &models.Comment{UserID: author}
		c.ID = uuid.New()
		return c
	}

	cases := []struct {
		name          string
		commenter     uuid.UUID
		parent        *models.Comment
		wantRecipient uuid.UUID
		wantType      string
		wantNotify    bool
	}{
		{"customer comments, farmer notified", customer, nil, farmer, EventProductComment, true},
		{"farmer comments on own product, nobody notified", farmer, nil, uuid.Nil, "", false},
		{"farmer replies, commenter notified", farmer, parentBy(customer), customer, EventCommentReply, true},
		{"customer replies to farmer", otherCustomer, parentBy(farmer), farmer, EventCommentReply, true},
		{"customer replies to customer", otherCustomer, parentBy(customer), customer, EventCommentReply, true},
		{"reply to own comment, nobody notified", customer, parentBy(customer), uuid.Nil, "", false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			recipient, eventType, notify := commentRecipient(tc.commenter, farmer, tc.parent)
			assert.Equal(t, tc.wantNotify, notify)
			if tc.wantNotify {
				assert.Equal(t, tc.wantRecipient, recipient)
				assert.Equal(t, tc.wantType, eventType)
			}
		})
	}
}

func TestCommentExcerpt(t *testing.T) {
	assert.Equal(t, "short comment", commentExcerpt("short comment"))

	long := strings.Repeat("x", 150)
	excerpt := commentExcerpt(long)
	assert.Len(t, excerpt, 103)
	assert.True(t, strings.HasSuffix(excerpt, "..."))
}

func TestRatingStatistics(t *testing.T) {
	rate := func(score int) models.Rating {
		return models.Rating{Score: score}
	}

	stats := ratingStatistics([]models.Rating{rate(5), rate(5), rate(4)})
	assert.Equal(t, int64(3), stats.TotalRatings)
	assert.Equal(t, 4.7, stats.AverageRating)
	assert.Equal(t, int64(2), stats.Distribution[5])
	assert.Equal(t, int64(1), stats.Distribution[4])
	assert.Equal(t, int64(0), stats.Distribution[1])

	stats = ratingStatistics([]models.Rating{rate(5), rate(4)})
	assert.Equal(t, 4.5, stats.AverageRating)

	stats = ratingStatistics(nil)
	assert.Equal(t, int64(0), stats.TotalRatings)
	assert.Equal(t, 0.0, stats.AverageRating)
	assert.Len(t, stats.Distribution, 5)
}

func TestIsValidRatingScore(t *testing.T) {
	for score := models.MinRatingScore; score <= models.MaxRatingScore; score++ {
		assert.True(t, models.IsValidRatingScore(score))
	}
	assert.False(t, models.IsValidRatingScore(0))
	assert.False(t, models.IsValidRatingScore(6))
	assert.False(t, models.IsValidRatingScore(-1))
}
