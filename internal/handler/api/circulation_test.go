//go:build unit

package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"libcirc/internal/domain/circulation"
	"libcirc/internal/domain/user"
	"libcirc/internal/handler/api"
	resdto "libcirc/internal/handler/dto/response"
	"libcirc/internal/pkg/errs"
	"libcirc/internal/usecase/commands"
	"libcirc/internal/usecase/queries"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
)

var (
	fixedNow   = time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	testPolicy = circulation.BorrowingPolicy{
		Limit:      5,
		Period:     14 * 24 * time.Hour,
		FinePerDay: circulation.MustMoney(500),
	}
)

// stubCirculationCommands drives handlers with per-test function fields; an
// unset field means the test never expected that call.
type stubCirculationCommands struct {
	reserveFn             func(ctx context.Context, userID, bookID uuid.UUID) (*circulation.Record, error)
	generatePickupTokenFn func(ctx context.Context, userID, recordID uuid.UUID) (*commands.TokenIssue, error)
	generateReturnTokenFn func(ctx context.Context, userID, recordID uuid.UUID) (string, error)
	validateTokenFn       func(ctx context.Context, encoded string) (*commands.TokenValidation, error)
	confirmPickupFn       func(ctx context.Context, recordID uuid.UUID) (*circulation.Record, error)
	cancelReservationFn   func(ctx context.Context, userID, recordID uuid.UUID) error
	returnFn              func(ctx context.Context, recordID uuid.UUID) (*circulation.Record, error)
	payFineFn             func(ctx context.Context, userID, recordID uuid.UUID) (circulation.Money, error)
	payAllFinesFn         func(ctx context.Context, userID uuid.UUID) (circulation.Money, error)
	sendRemindersFn       func(ctx context.Context) (int, error)
}

func (s *stubCirculationCommands) Reserve(ctx context.Context, userID, bookID uuid.UUID) (*circulation.Record, error) {
	return s.reserveFn(ctx, userID, bookID)
}

func (s *stubCirculationCommands) GeneratePickupToken(ctx context.Context, userID, recordID uuid.UUID) (*commands.TokenIssue, error) {
	return s.generatePickupTokenFn(ctx, userID, recordID)
}

func (s *stubCirculationCommands) GenerateReturnToken(ctx context.Context, userID, recordID uuid.UUID) (string, error) {
	return s.generateReturnTokenFn(ctx, userID, recordID)
}

func (s *stubCirculationCommands) ValidateToken(ctx context.Context, encoded string) (*commands.TokenValidation, error) {
	return s.validateTokenFn(ctx, encoded)
}

func (s *stubCirculationCommands) ConfirmPickup(ctx context.Context, recordID uuid.UUID) (*circulation.Record, error) {
	return s.confirmPickupFn(ctx, recordID)
}

func (s *stubCirculationCommands) CancelReservation(ctx context.Context, userID, recordID uuid.UUID) error {
	return s.cancelReservationFn(ctx, userID, recordID)
}

func (s *stubCirculationCommands) Return(ctx context.Context, recordID uuid.UUID) (*circulation.Record, error) {
	return s.returnFn(ctx, recordID)
}

func (s *stubCirculationCommands) PayFine(ctx context.Context, userID, recordID uuid.UUID) (circulation.Money, error) {
	return s.payFineFn(ctx, userID, recordID)
}

func (s *stubCirculationCommands) PayAllFines(ctx context.Context, userID uuid.UUID) (circulation.Money, error) {
	return s.payAllFinesFn(ctx, userID)
}

func (s *stubCirculationCommands) SendPickupReminders(ctx context.Context) (int, error) {
	return s.sendRemindersFn(ctx)
}

type stubWaitlistCommands struct {
	joinFn              func(ctx context.Context, userID, bookID uuid.UUID) (int, error)
	promoteNextFn       func(ctx context.Context, bookID uuid.UUID) (*uuid.UUID, error)
	expireStaleClaimsFn func(ctx context.Context) (int, error)
}

func (s *stubWaitlistCommands) Join(ctx context.Context, userID, bookID uuid.UUID) (int, error) {
	return s.joinFn(ctx, userID, bookID)
}

func (s *stubWaitlistCommands) PromoteNext(ctx context.Context, bookID uuid.UUID) (*uuid.UUID, error) {
	return s.promoteNextFn(ctx, bookID)
}

func (s *stubWaitlistCommands) ExpireStaleClaims(ctx context.Context) (int, error) {
	return s.expireStaleClaimsFn(ctx)
}

type stubCirculationQueries struct {
	listRecordsFn        func(ctx context.Context, userID uuid.UUID) ([]*queries.RecordView, error)
	listPendingPickupsFn func(ctx context.Context, userID uuid.UUID) ([]*queries.PendingPickupView, error)
	listFinesFn          func(ctx context.Context, userID uuid.UUID) (*queries.FinesSummary, error)
	bookAvailabilityFn   func(ctx context.Context, bookID uuid.UUID) (*queries.AvailabilityView, error)
	waitlistPositionFn   func(ctx context.Context, userID, bookID uuid.UUID) (*queries.WaitlistPositionView, error)
}

func (s *stubCirculationQueries) ListRecords(ctx context.Context, userID uuid.UUID) ([]*queries.RecordView, error) {
	return s.listRecordsFn(ctx, userID)
}

func (s *stubCirculationQueries) ListPendingPickups(ctx context.Context, userID uuid.UUID) ([]*queries.PendingPickupView, error) {
	return s.listPendingPickupsFn(ctx, userID)
}

func (s *stubCirculationQueries) ListFines(ctx context.Context, userID uuid.UUID) (*queries.FinesSummary, error) {
	return s.listFinesFn(ctx, userID)
}

func (s *stubCirculationQueries) BookAvailability(ctx context.Context, bookID uuid.UUID) (*queries.AvailabilityView, error) {
	return s.bookAvailabilityFn(ctx, bookID)
}

func (s *stubCirculationQueries) WaitlistPosition(ctx context.Context, userID, bookID uuid.UUID) (*queries.WaitlistPositionView, error) {
	return s.waitlistPositionFn(ctx, userID, bookID)
}

// stubAuth stands in for the JWT middleware: any Authorization header
// authenticates as the fixed member, none gets 401.
func stubAuth(userID uuid.UUID) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetHeader("Authorization") == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": gin.H{"message": "Unauthorized"}})
			return
		}
		c.Set("user_id", userID)
		c.Set("user_role", user.RoleMember)
		c.Next()
	}
}

func performRequest(t *testing.T, router *gin.Engine, method, url string, body any, token string) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request body: %v", err)
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, url, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response body: %v (body: %s)", err, rec.Body.String())
	}
	return out
}

func pendingRecord(userID, bookID uuid.UUID) *circulation.Record {
	return circulation.NewRecord(bookID, userID, fixedNow, testPolicy)
}

type CirculationHandlerTestSuite struct {
	suite.Suite
	router   *gin.Engine
	commands *stubCirculationCommands
	waitlist *stubWaitlistCommands
	queries  *stubCirculationQueries
	userID   uuid.UUID
}

func (s *CirculationHandlerTestSuite) SetupTest() {
	gin.SetMode(gin.TestMode)
	s.router = gin.New()

	s.commands = &stubCirculationCommands{}
	s.waitlist = &stubWaitlistCommands{}
	s.queries = &stubCirculationQueries{}
	s.userID = uuid.New()

	handler := api.NewCirculationHandler(s.commands, s.waitlist, s.queries)
	auth := stubAuth(s.userID)

	s.router.POST("/books/:id/reserve", auth, handler.Reserve)
	s.router.POST("/books/:id/waitlist", auth, handler.JoinWaitlist)
	s.router.GET("/books/:id/availability", handler.GetBookAvailability)
	s.router.GET("/records", auth, handler.ListRecords)
	s.router.POST("/records/:id/pickup-token", auth, handler.GeneratePickupToken)
	s.router.POST("/records/:id/cancel", auth, handler.CancelReservation)
}

func TestCirculationHandlerSuite(t *testing.T) {
	suite.Run(t, new(CirculationHandlerTestSuite))
}

func (s *CirculationHandlerTestSuite) TestReserve() {
	bookID := uuid.New()
	url := "/books/" + bookID.String() + "/reserve"

	s.Run("success: returns 201 Created with the new record", func() {
		rec := pendingRecord(s.userID, bookID)
		s.commands.reserveFn = func(_ context.Context, userID, gotBookID uuid.UUID) (*circulation.Record, error) {
			s.Equal(s.userID, userID)
			s.Equal(bookID, gotBookID)
			return rec, nil
		}

		res := performRequest(s.T(), s.router, http.MethodPost, url, nil, "member-token")

		s.Equal(http.StatusCreated, res.Code)
		body := decodeBody[resdto.RecordResponse](s.T(), res)
		s.Equal(rec.ID(), body.ID)
		s.Equal("pending", body.Status)
		s.Equal(fixedNow.Add(testPolicy.Period), body.DueDate)
	})

	s.Run("error: 401 Unauthorized when unauthenticated", func() {
		res := performRequest(s.T(), s.router, http.MethodPost, url, nil, "")
		s.Equal(http.StatusUnauthorized, res.Code)
	})

	s.Run("error: 400 Bad Request for invalid book id", func() {
		res := performRequest(s.T(), s.router, http.MethodPost, "/books/not-a-uuid/reserve", nil, "member-token")
		s.Equal(http.StatusBadRequest, res.Code)
	})

	s.Run("error: maps command errors to proper statuses", func() {
		testCases := []struct {
			name       string
			commandErr error
			expectCode int
		}{
			{name: "unknown book", commandErr: errs.ErrBookNotFound, expectCode: http.StatusNotFound},
			{name: "out of stock", commandErr: errs.ErrOutOfStock, expectCode: http.StatusConflict},
			{name: "duplicate active record", commandErr: errs.ErrDuplicateActive, expectCode: http.StatusConflict},
			{name: "borrowing limit reached", commandErr: errs.ErrLimitExceeded, expectCode: http.StatusConflict},
			{name: "outstanding fines", commandErr: errs.ErrOutstandingFines, expectCode: http.StatusConflict},
			{name: "unexpected failure", commandErr: errs.New("connection reset"), expectCode: http.StatusInternalServerError},
		}
		for _, tc := range testCases {
			s.Run(tc.name, func() {
				s.commands.reserveFn = func(context.Context, uuid.UUID, uuid.UUID) (*circulation.Record, error) {
					return nil, tc.commandErr
				}
				res := performRequest(s.T(), s.router, http.MethodPost, url, nil, "member-token")
				s.Equal(tc.expectCode, res.Code)
			})
		}
	})
}

func (s *CirculationHandlerTestSuite) TestJoinWaitlist() {
	bookID := uuid.New()
	url := "/books/" + bookID.String() + "/waitlist"

	s.Run("success: returns 201 Created with queue position", func() {
		s.waitlist.joinFn = func(_ context.Context, userID, gotBookID uuid.UUID) (int, error) {
			s.Equal(s.userID, userID)
			s.Equal(bookID, gotBookID)
			return 3, nil
		}

		res := performRequest(s.T(), s.router, http.MethodPost, url, nil, "member-token")

		s.Equal(http.StatusCreated, res.Code)
		body := decodeBody[resdto.WaitlistJoinResponse](s.T(), res)
		s.Equal(3, body.Position)
	})

	s.Run("error: 404 Not Found for unknown book", func() {
		s.waitlist.joinFn = func(context.Context, uuid.UUID, uuid.UUID) (int, error) {
			return 0, errs.ErrBookNotFound
		}
		res := performRequest(s.T(), s.router, http.MethodPost, url, nil, "member-token")
		s.Equal(http.StatusNotFound, res.Code)
	})
}

func (s *CirculationHandlerTestSuite) TestGetBookAvailability() {
	bookID := uuid.New()
	url := "/books/" + bookID.String() + "/availability"

	s.Run("success: returns 200 OK with counters", func() {
		s.queries.bookAvailabilityFn = func(_ context.Context, gotBookID uuid.UUID) (*queries.AvailabilityView, error) {
			s.Equal(bookID, gotBookID)
			return &queries.AvailabilityView{
				BookID:               bookID,
				Title:                "The Go Programming Language",
				TotalCopies:          3,
				AvailableCopies:      3,
				ReservedCopies:       2,
				EffectivelyAvailable: 1,
				WaitlistLength:       4,
			}, nil
		}

		res := performRequest(s.T(), s.router, http.MethodGet, url, nil, "")

		s.Equal(http.StatusOK, res.Code)
		body := decodeBody[resdto.AvailabilityResponse](s.T(), res)
		s.Equal(1, body.EffectivelyAvailable)
		s.Equal(4, body.WaitlistLength)
	})
}

func (s *CirculationHandlerTestSuite) TestListRecords() {
	s.Run("success: returns the member's records", func() {
		s.queries.listRecordsFn = func(_ context.Context, userID uuid.UUID) ([]*queries.RecordView, error) {
			s.Equal(s.userID, userID)
			return []*queries.RecordView{
				{ID: uuid.New(), BookTitle: "Clean Architecture", Status: "borrowed"},
				{ID: uuid.New(), BookTitle: "The Mythical Man-Month", Status: "returned", FineAmountPaise: 500},
			}, nil
		}

		res := performRequest(s.T(), s.router, http.MethodGet, "/records", nil, "member-token")

		s.Equal(http.StatusOK, res.Code)
		body := decodeBody[[]resdto.RecordListResponse](s.T(), res)
		s.Len(body, 2)
		s.Equal("borrowed", body[0].Status)
		s.Equal(int64(500), body[1].FineAmountPaise)
	})
}

func (s *CirculationHandlerTestSuite) TestGeneratePickupToken() {
	recordID := uuid.New()
	url := "/records/" + recordID.String() + "/pickup-token"

	s.Run("success: returns 200 OK with the token", func() {
		s.commands.generatePickupTokenFn = func(_ context.Context, userID, gotRecordID uuid.UUID) (*commands.TokenIssue, error) {
			s.Equal(s.userID, userID)
			s.Equal(recordID, gotRecordID)
			return &commands.TokenIssue{Token: "opaque-token", ExpiresAt: fixedNow.Add(circulation.TokenTTL), Fresh: true}, nil
		}

		res := performRequest(s.T(), s.router, http.MethodPost, url, nil, "member-token")

		s.Equal(http.StatusOK, res.Code)
		body := decodeBody[resdto.TokenIssueResponse](s.T(), res)
		s.Equal("opaque-token", body.Token)
		s.True(body.Fresh)
	})

	s.Run("error: 404 Not Found for a foreign record", func() {
		s.commands.generatePickupTokenFn = func(context.Context, uuid.UUID, uuid.UUID) (*commands.TokenIssue, error) {
			return nil, errs.ErrRecordNotFound
		}
		res := performRequest(s.T(), s.router, http.MethodPost, url, nil, "member-token")
		s.Equal(http.StatusNotFound, res.Code)
	})

	s.Run("error: 409 Conflict when the record is not pending", func() {
		s.commands.generatePickupTokenFn = func(context.Context, uuid.UUID, uuid.UUID) (*commands.TokenIssue, error) {
			return nil, errs.ErrWrongState
		}
		res := performRequest(s.T(), s.router, http.MethodPost, url, nil, "member-token")
		s.Equal(http.StatusConflict, res.Code)
	})
}

func (s *CirculationHandlerTestSuite) TestCancelReservation() {
	recordID := uuid.New()
	url := "/records/" + recordID.String() + "/cancel"

	s.Run("success: returns 204 No Content", func() {
		s.commands.cancelReservationFn = func(_ context.Context, userID, gotRecordID uuid.UUID) error {
			s.Equal(s.userID, userID)
			s.Equal(recordID, gotRecordID)
			return nil
		}
		res := performRequest(s.T(), s.router, http.MethodPost, url, nil, "member-token")
		s.Equal(http.StatusNoContent, res.Code)
	})

	s.Run("error: 409 Conflict for a non-cancellable state", func() {
		s.commands.cancelReservationFn = func(context.Context, uuid.UUID, uuid.UUID) error {
			return errs.ErrWrongState
		}
		res := performRequest(s.T(), s.router, http.MethodPost, url, nil, "member-token")
		s.Equal(http.StatusConflict, res.Code)
	})
}
