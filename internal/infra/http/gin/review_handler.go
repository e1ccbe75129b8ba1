package ginserver

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	gin "github.com/gin-gonic/gin"

	"divineconnect/internal/app/commands"
	"divineconnect/internal/app/dto"
	reviewsapp "divineconnect/internal/app/handlers/reviews"
	"divineconnect/internal/app/queries"
)

const defaultReviewPage = 20

type ReviewsHandler struct {
	Commands commands.Bus
	Queries  queries.Bus
	Logger   *slog.Logger
}

type submitReviewRequest struct {
	Rating int    `json:"rating" binding:"required,min=1,max=5"`
	Text   string `json:"text" binding:"max=2000"`
}

// Submit serves POST /bookings/:id/review for the devotee who made a completed booking.
func (h ReviewsHandler) Submit(c *gin.Context) {
	devotee, ok := requireRole(c, "")
	if !ok {
		return
	}
	if h.Commands == nil {
		unavailable(c, "reviews: commands")
		return
	}
	var req submitReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	bookingID := c.Param("id")
	review, err := commands.Dispatch[reviewsapp.SubmitReviewCommand, dto.Review](c.Request.Context(), h.Commands, reviewsapp.SubmitReviewCommand{
		BookingID: bookingID,
		AuthorID:  devotee.ID,
		Rating:    req.Rating,
		Text:      req.Text,
		Now:       time.Now().UTC(),
	})
	if err != nil {
		if h.Logger != nil {
			h.Logger.Warn("review rejected", "booking_id", bookingID, "author_id", devotee.ID, "error", err)
		}
		writeError(c, h.Logger, err)
		return
	}
	c.Header("Location", "/api/v1/providers/"+review.ProviderID+"/reviews")
	c.JSON(http.StatusCreated, review)
}

// ListByProvider serves GET /providers/:id/reviews?limit=&offset=.
func (h ReviewsHandler) ListByProvider(c *gin.Context) {
	if h.Queries == nil {
		unavailable(c, "reviews: queries")
		return
	}
	limit, offset := pageParams(c, defaultReviewPage)
	result, err := queries.Ask[reviewsapp.ListProviderReviewsQuery, dto.ReviewCollection](c.Request.Context(), h.Queries, reviewsapp.ListProviderReviewsQuery{
		ProviderID: c.Param("id"),
		Limit:      limit,
		Offset:     offset,
	})
	if err != nil {
		writeError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// pageParams reads limit and offset, falling back on missing or negative values.
func pageParams(c *gin.Context, defaultLimit int) (limit, offset int) {
	return parsePositiveInt(c.Query("limit"), defaultLimit), parsePositiveInt(c.Query("offset"), 0)
}

func parsePositiveInt(raw string, fallback int) int {
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		return fallback
	}
	return value
}

var _ ReviewsHTTP = ReviewsHandler{}
