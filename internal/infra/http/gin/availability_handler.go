package ginserver

import (
	"log/slog"
	"net/http"

	gin "github.com/gin-gonic/gin"

	"divineconnect/internal/app/dto"
	availabilityapp "divineconnect/internal/app/handlers/availability"
	"divineconnect/internal/app/queries"
)

type AvailabilityHandler struct {
	Queries queries.Bus
	Logger  *slog.Logger
}

func (h AvailabilityHandler) Candidates(c *gin.Context) {
	if h.Queries == nil {
		unavailable(c, "queries")
		return
	}
	query := availabilityapp.ListCandidatesQuery{
		ServiceID: c.Param("id"),
		Date:      c.Query("date"),
		Slot:      c.Query("slot"),
		Locality:  c.Query("locality"),
	}
	result, err := queries.Ask[availabilityapp.ListCandidatesQuery, dto.ProviderCollection](c.Request.Context(), h.Queries, query)
	if err != nil {
		writeError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h AvailabilityHandler) CheckSlot(c *gin.Context) {
	if h.Queries == nil {
		unavailable(c, "queries")
		return
	}
	query := availabilityapp.CheckSlotQuery{
		Kind:       c.Param("kind"),
		ResourceID: c.Param("resource"),
		Date:       c.Query("date"),
		Slot:       c.Query("slot"),
	}
	result, err := queries.Ask[availabilityapp.CheckSlotQuery, availabilityapp.SlotStatus](c.Request.Context(), h.Queries, query)
	if err != nil {
		writeError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

var _ AvailabilityHTTP = AvailabilityHandler{}
