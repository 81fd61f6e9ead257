package api

import (
	"net/http"

	"libcirc/internal/handler/httperr"
	"libcirc/internal/handler/middleware"
	"libcirc/internal/infra"
	"libcirc/internal/pkg/errs"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// respondCommandError maps the circulation error taxonomy onto HTTP. The
// conflict family shares 409, expired tokens get 410 so scanners can
// distinguish "bad token" from "too late".
func respondCommandError(c *gin.Context, err error) {
	switch {
	case errs.Is(err, errs.ErrBookNotFound):
		httperr.AbortWithError(c, http.StatusNotFound, err, "Book not found", nil)
	case errs.Is(err, errs.ErrRecordNotFound):
		httperr.AbortWithError(c, http.StatusNotFound, err, "Record not found", nil)
	case errs.Is(err, errs.ErrUserNotFound):
		httperr.AbortWithError(c, http.StatusNotFound, err, "User not found", nil)
	case errs.Is(err, errs.ErrOutOfStock):
		httperr.AbortWithError(c, http.StatusConflict, err, "No copies available", nil)
	case errs.Is(err, errs.ErrDuplicateActive):
		httperr.AbortWithError(c, http.StatusConflict, err, "An active record for this book already exists", nil)
	case errs.Is(err, errs.ErrLimitExceeded):
		httperr.AbortWithError(c, http.StatusConflict, err, "Borrowing limit reached", nil)
	case errs.Is(err, errs.ErrOutstandingFines):
		httperr.AbortWithError(c, http.StatusConflict, err, "Outstanding fines must be paid first", nil)
	case errs.Is(err, errs.ErrWrongState):
		httperr.AbortWithError(c, http.StatusConflict, err, "Record is not in a state that allows this operation", nil)
	case errs.Is(err, errs.ErrBookNotAvailable):
		httperr.AbortWithError(c, http.StatusConflict, err, "Book is no longer available", nil)
	case errs.Is(err, errs.ErrFineAlreadyPaid):
		httperr.AbortWithError(c, http.StatusConflict, err, "Fine already paid", nil)
	case errs.Is(err, errs.ErrNothingToPay):
		httperr.AbortWithError(c, http.StatusConflict, err, "No unpaid fines", nil)
	case errs.Is(err, errs.ErrInvalidToken):
		httperr.AbortWithError(c, http.StatusBadRequest, err, "Invalid token", nil)
	case errs.Is(err, errs.ErrTokenExpired):
		httperr.AbortWithError(c, http.StatusGone, err, "Token expired", nil)
	default:
		httperr.AbortWithError(c, http.StatusInternalServerError, err, "Internal server error", nil)
	}
}

func respondQueryError(c *gin.Context, err error) {
	if infra.IsKind(err, infra.KindNotFound) {
		httperr.AbortWithError(c, http.StatusNotFound, err, "Not found", nil)
		return
	}
	httperr.AbortWithError(c, http.StatusInternalServerError, err, "Internal server error", nil)
}

func parseIDParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		httperr.AbortWithError(c, http.StatusBadRequest, err, "Invalid "+name, nil)
		return uuid.Nil, false
	}
	return id, true
}

func authedUserID(c *gin.Context) (uuid.UUID, bool) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		httperr.AbortWithError(c, http.StatusInternalServerError, errMissingIdentity, "Internal server error", nil)
		return uuid.Nil, false
	}
	return userID, true
}

var errMissingIdentity = errs.New("authenticated user missing from context")
