package api

import (
	"net/http"

	resdto "libcirc/internal/handler/dto/response"
	"libcirc/internal/usecase/commands"
	"libcirc/internal/usecase/queries"

	"github.com/gin-gonic/gin"
)

type FineHandler struct {
	commands commands.CirculationCommands
	queries  queries.CirculationQueries
}

func NewFineHandler(circCommands commands.CirculationCommands, circQueries queries.CirculationQueries) *FineHandler {
	return &FineHandler{
		commands: circCommands,
		queries:  circQueries,
	}
}

func (h *FineHandler) ListFines(c *gin.Context) {
	userID, ok := authedUserID(c)
	if !ok {
		return
	}

	summary, err := h.queries.ListFines(c.Request.Context(), userID)
	if err != nil {
		respondQueryError(c, err)
		return
	}
	c.JSON(http.StatusOK, resdto.FromFinesSummary(summary))
}

func (h *FineHandler) PayFine(c *gin.Context) {
	userID, ok := authedUserID(c)
	if !ok {
		return
	}
	recordID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	amount, err := h.commands.PayFine(c.Request.Context(), userID, recordID)
	if err != nil {
		respondCommandError(c, err)
		return
	}
	c.JSON(http.StatusOK, resdto.FromPayment(amount))
}

func (h *FineHandler) PayAllFines(c *gin.Context) {
	userID, ok := authedUserID(c)
	if !ok {
		return
	}

	amount, err := h.commands.PayAllFines(c.Request.Context(), userID)
	if err != nil {
		respondCommandError(c, err)
		return
	}
	c.JSON(http.StatusOK, resdto.FromPayment(amount))
}
