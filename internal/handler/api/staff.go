package api

import (
	"net/http"

	reqdto "libcirc/internal/handler/dto/request"
	resdto "libcirc/internal/handler/dto/response"
	"libcirc/internal/handler/httperr"
	"libcirc/internal/usecase/commands"

	"github.com/gin-gonic/gin"
)

// StaffHandler backs the librarian desk: scanning tokens, confirming pickups,
// taking returns and running the waitlist sweep.
type StaffHandler struct {
	commands commands.CirculationCommands
	waitlist commands.WaitlistCommands
}

func NewStaffHandler(circCommands commands.CirculationCommands, waitlistCommands commands.WaitlistCommands) *StaffHandler {
	return &StaffHandler{
		commands: circCommands,
		waitlist: waitlistCommands,
	}
}

func (h *StaffHandler) ValidateToken(c *gin.Context) {
	var req reqdto.ValidateTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httperr.AbortWithError(c, http.StatusBadRequest, err, "Invalid request format", nil)
		return
	}

	validation, err := h.commands.ValidateToken(c.Request.Context(), req.Token)
	if err != nil {
		respondCommandError(c, err)
		return
	}
	c.JSON(http.StatusOK, resdto.FromTokenValidation(validation))
}

func (h *StaffHandler) ConfirmPickup(c *gin.Context) {
	recordID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	rec, err := h.commands.ConfirmPickup(c.Request.Context(), recordID)
	if err != nil {
		respondCommandError(c, err)
		return
	}
	c.JSON(http.StatusOK, resdto.FromRecord(rec))
}

func (h *StaffHandler) Return(c *gin.Context) {
	recordID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	rec, err := h.commands.Return(c.Request.Context(), recordID)
	if err != nil {
		respondCommandError(c, err)
		return
	}
	c.JSON(http.StatusOK, resdto.FromRecord(rec))
}

func (h *StaffHandler) SweepWaitlist(c *gin.Context) {
	removed, err := h.waitlist.ExpireStaleClaims(c.Request.Context())
	if err != nil {
		respondCommandError(c, err)
		return
	}
	c.JSON(http.StatusOK, resdto.SweepResponse{Removed: removed})
}

func (h *StaffHandler) SendReminders(c *gin.Context) {
	notified, err := h.commands.SendPickupReminders(c.Request.Context())
	if err != nil {
		respondCommandError(c, err)
		return
	}
	c.JSON(http.StatusOK, resdto.ReminderResponse{Notified: notified})
}

func (h *StaffHandler) PromoteNext(c *gin.Context) {
	bookID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	promoted, err := h.waitlist.PromoteNext(c.Request.Context(), bookID)
	if err != nil {
		respondCommandError(c, err)
		return
	}
	c.JSON(http.StatusOK, resdto.PromotionResponse{PromotedUserID: promoted})
}
