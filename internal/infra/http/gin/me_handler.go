package ginserver

import (
	"log/slog"
	"net/http"

	gin "github.com/gin-gonic/gin"

	"divineconnect/internal/app/dto"
	meapp "divineconnect/internal/app/handlers/me"
	"divineconnect/internal/app/queries"
)

type MeHandler struct {
	Queries queries.Bus
	Logger  *slog.Logger
}

// ListBookings serves GET /me/bookings?status=active&limit=20.
func (h MeHandler) ListBookings(c *gin.Context) {
	devotee, ok := requireRole(c, "")
	if !ok {
		return
	}
	if h.Queries == nil {
		unavailable(c, "queries")
		return
	}
	query := meapp.ListMyBookingsQuery{
		UserID: devotee.ID,
		Status: c.Query("status"),
		Limit:  parsePositiveInt(c.Query("limit"), 0),
	}
	result, err := queries.Ask[meapp.ListMyBookingsQuery, dto.BookingCollection](c.Request.Context(), h.Queries, query)
	if err != nil {
		writeError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

var _ MeHTTP = (*MeHandler)(nil)
