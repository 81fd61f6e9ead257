package api

import (
	"net/http"

	resdto "libcirc/internal/handler/dto/response"
	"libcirc/internal/usecase/commands"
	"libcirc/internal/usecase/queries"

	"github.com/gin-gonic/gin"
)

type CirculationHandler struct {
	commands commands.CirculationCommands
	waitlist commands.WaitlistCommands
	queries  queries.CirculationQueries
}

func NewCirculationHandler(
	circCommands commands.CirculationCommands,
	waitlistCommands commands.WaitlistCommands,
	circQueries queries.CirculationQueries,
) *CirculationHandler {
	return &CirculationHandler{
		commands: circCommands,
		waitlist: waitlistCommands,
		queries:  circQueries,
	}
}

func (h *CirculationHandler) Reserve(c *gin.Context) {
	userID, ok := authedUserID(c)
	if !ok {
		return
	}
	bookID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	rec, err := h.commands.Reserve(c.Request.Context(), userID, bookID)
	if err != nil {
		respondCommandError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resdto.FromRecord(rec))
}

func (h *CirculationHandler) JoinWaitlist(c *gin.Context) {
	userID, ok := authedUserID(c)
	if !ok {
		return
	}
	bookID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	position, err := h.waitlist.Join(c.Request.Context(), userID, bookID)
	if err != nil {
		respondCommandError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resdto.WaitlistJoinResponse{Position: position})
}

func (h *CirculationHandler) GetBookAvailability(c *gin.Context) {
	bookID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	view, err := h.queries.BookAvailability(c.Request.Context(), bookID)
	if err != nil {
		respondQueryError(c, err)
		return
	}
	c.JSON(http.StatusOK, resdto.FromAvailabilityView(view))
}

func (h *CirculationHandler) GetWaitlistPosition(c *gin.Context) {
	userID, ok := authedUserID(c)
	if !ok {
		return
	}
	bookID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	view, err := h.queries.WaitlistPosition(c.Request.Context(), userID, bookID)
	if err != nil {
		respondQueryError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *CirculationHandler) ListRecords(c *gin.Context) {
	userID, ok := authedUserID(c)
	if !ok {
		return
	}

	views, err := h.queries.ListRecords(c.Request.Context(), userID)
	if err != nil {
		respondQueryError(c, err)
		return
	}

	out := make([]*resdto.RecordListResponse, len(views))
	for i, v := range views {
		out[i] = resdto.FromRecordView(v)
	}
	c.JSON(http.StatusOK, out)
}

func (h *CirculationHandler) ListPendingPickups(c *gin.Context) {
	userID, ok := authedUserID(c)
	if !ok {
		return
	}

	views, err := h.queries.ListPendingPickups(c.Request.Context(), userID)
	if err != nil {
		respondQueryError(c, err)
		return
	}

	out := make([]*resdto.PendingPickupResponse, len(views))
	for i, v := range views {
		out[i] = resdto.FromPendingPickupView(v)
	}
	c.JSON(http.StatusOK, out)
}

func (h *CirculationHandler) GeneratePickupToken(c *gin.Context) {
	userID, ok := authedUserID(c)
	if !ok {
		return
	}
	recordID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	issue, err := h.commands.GeneratePickupToken(c.Request.Context(), userID, recordID)
	if err != nil {
		respondCommandError(c, err)
		return
	}
	c.JSON(http.StatusOK, resdto.FromTokenIssue(issue))
}

func (h *CirculationHandler) GenerateReturnToken(c *gin.Context) {
	userID, ok := authedUserID(c)
	if !ok {
		return
	}
	recordID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	token, err := h.commands.GenerateReturnToken(c.Request.Context(), userID, recordID)
	if err != nil {
		respondCommandError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token})
}

func (h *CirculationHandler) CancelReservation(c *gin.Context) {
	userID, ok := authedUserID(c)
	if !ok {
		return
	}
	recordID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	if err := h.commands.CancelReservation(c.Request.Context(), userID, recordID); err != nil {
		respondCommandError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
