package response

import (
	"time"

	"libcirc/internal/domain/circulation"
	"libcirc/internal/usecase/commands"
	"libcirc/internal/usecase/queries"

	"github.com/google/uuid"
)

type RecordResponse struct {
	ID              uuid.UUID  `json:"id"`
	BookID          uuid.UUID  `json:"bookId"`
	UserID          uuid.UUID  `json:"userId"`
	Status          string     `json:"status"`
	CreatedAt       time.Time  `json:"createdAt"`
	DueDate         time.Time  `json:"dueDate"`
	IssuedAt        *time.Time `json:"issuedAt,omitempty"`
	ReturnDate      *time.Time `json:"returnDate,omitempty"`
	FineAmountPaise int64      `json:"fineAmountPaise"`
	FinePaid        bool       `json:"finePaid"`
}

func FromRecord(rec *circulation.Record) *RecordResponse {
	return &RecordResponse{
		ID:              rec.ID(),
		BookID:          rec.BookID(),
		UserID:          rec.UserID(),
		Status:          string(rec.Status()),
		CreatedAt:       rec.CreatedAt(),
		DueDate:         rec.DueDate(),
		IssuedAt:        rec.IssuedAt(),
		ReturnDate:      rec.ReturnDate(),
		FineAmountPaise: rec.FineAmount().Paise(),
		FinePaid:        rec.FinePaid(),
	}
}

type RecordListResponse struct {
	ID              uuid.UUID  `json:"id"`
	BookID          uuid.UUID  `json:"bookId"`
	BookTitle       string     `json:"bookTitle"`
	BookAuthor      string     `json:"bookAuthor"`
	Status          string     `json:"status"`
	CreatedAt       time.Time  `json:"createdAt"`
	DueDate         time.Time  `json:"dueDate"`
	IssuedAt        *time.Time `json:"issuedAt,omitempty"`
	ReturnDate      *time.Time `json:"returnDate,omitempty"`
	FineAmountPaise int64      `json:"fineAmountPaise"`
	FinePaid        bool       `json:"finePaid"`
}

func FromRecordView(v *queries.RecordView) *RecordListResponse {
	return &RecordListResponse{
		ID:              v.ID,
		BookID:          v.BookID,
		BookTitle:       v.BookTitle,
		BookAuthor:      v.BookAuthor,
		Status:          v.Status,
		CreatedAt:       v.CreatedAt,
		DueDate:         v.DueDate,
		IssuedAt:        v.IssuedAt,
		ReturnDate:      v.ReturnDate,
		FineAmountPaise: v.FineAmountPaise,
		FinePaid:        v.FinePaid,
	}
}

type PendingPickupResponse struct {
	RecordID       uuid.UUID  `json:"recordId"`
	BookID         uuid.UUID  `json:"bookId"`
	BookTitle      string     `json:"bookTitle"`
	CreatedAt      time.Time  `json:"createdAt"`
	TokenExpiresAt *time.Time `json:"tokenExpiresAt,omitempty"`
	HoursRemaining *float64   `json:"hoursRemaining,omitempty"`
}

func FromPendingPickupView(v *queries.PendingPickupView) *PendingPickupResponse {
	return &PendingPickupResponse{
		RecordID:       v.RecordID,
		BookID:         v.BookID,
		BookTitle:      v.BookTitle,
		CreatedAt:      v.CreatedAt,
		TokenExpiresAt: v.TokenExpiresAt,
		HoursRemaining: v.HoursRemaining,
	}
}

type TokenIssueResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
	Fresh     bool      `json:"fresh"`
}

func FromTokenIssue(t *commands.TokenIssue) *TokenIssueResponse {
	return &TokenIssueResponse{
		Token:     t.Token,
		ExpiresAt: t.ExpiresAt,
		Fresh:     t.Fresh,
	}
}

type TokenValidationResponse struct {
	Kind     string    `json:"kind"`
	RecordID uuid.UUID `json:"recordId"`
	BookID   uuid.UUID `json:"bookId"`
	UserID   uuid.UUID `json:"userId"`
	Status   string    `json:"status"`
	DueDate  time.Time `json:"dueDate"`
}

func FromTokenValidation(v *commands.TokenValidation) *TokenValidationResponse {
	return &TokenValidationResponse{
		Kind:     string(v.Kind),
		RecordID: v.RecordID,
		BookID:   v.BookID,
		UserID:   v.UserID,
		Status:   string(v.Status),
		DueDate:  v.DueDate,
	}
}

type FineResponse struct {
	RecordID        uuid.UUID  `json:"recordId"`
	BookTitle       string     `json:"bookTitle"`
	DueDate         time.Time  `json:"dueDate"`
	ReturnDate      *time.Time `json:"returnDate,omitempty"`
	FineAmountPaise int64      `json:"fineAmountPaise"`
	FineDisplay     string     `json:"fineDisplay"`
	FinePaid        bool       `json:"finePaid"`
	FinePaidAt      *time.Time `json:"finePaidAt,omitempty"`
}

type FinesSummaryResponse struct {
	TotalUnpaidPaise int64           `json:"totalUnpaidPaise"`
	TotalDisplay     string          `json:"totalDisplay"`
	Fines            []*FineResponse `json:"fines"`
}

func FromFinesSummary(s *queries.FinesSummary) *FinesSummaryResponse {
	fines := make([]*FineResponse, len(s.Fines))
	for i, f := range s.Fines {
		fines[i] = &FineResponse{
			RecordID:        f.RecordID,
			BookTitle:       f.BookTitle,
			DueDate:         f.DueDate,
			ReturnDate:      f.ReturnDate,
			FineAmountPaise: f.FineAmountPaise,
			FineDisplay:     f.FineDisplay,
			FinePaid:        f.FinePaid,
			FinePaidAt:      f.FinePaidAt,
		}
	}
	return &FinesSummaryResponse{
		TotalUnpaidPaise: s.TotalUnpaidPaise,
		TotalDisplay:     s.TotalDisplay,
		Fines:            fines,
	}
}

type PaymentResponse struct {
	AmountPaise   int64  `json:"amountPaise"`
	AmountDisplay string `json:"amountDisplay"`
}

func FromPayment(amount circulation.Money) *PaymentResponse {
	return &PaymentResponse{
		AmountPaise:   amount.Paise(),
		AmountDisplay: amount.String(),
	}
}

type WaitlistJoinResponse struct {
	Position int `json:"position"`
}

type PromotionResponse struct {
	PromotedUserID *uuid.UUID `json:"promotedUserId,omitempty"`
}

type SweepResponse struct {
	Removed int `json:"removed"`
}

type ReminderResponse struct {
	Notified int `json:"notified"`
}

type AvailabilityResponse struct {
	BookID               uuid.UUID `json:"bookId"`
	Title                string    `json:"title"`
	Author               string    `json:"author"`
	TotalCopies          int       `json:"totalCopies"`
	AvailableCopies      int       `json:"availableCopies"`
	ReservedCopies       int       `json:"reservedCopies"`
	EffectivelyAvailable int       `json:"effectivelyAvailable"`
	WaitlistLength       int       `json:"waitlistLength"`
}

func FromAvailabilityView(v *queries.AvailabilityView) *AvailabilityResponse {
	return &AvailabilityResponse{
		BookID:               v.BookID,
		Title:                v.Title,
		Author:               v.Author,
		TotalCopies:          v.TotalCopies,
		AvailableCopies:      v.AvailableCopies,
		ReservedCopies:       v.ReservedCopies,
		EffectivelyAvailable: v.EffectivelyAvailable,
		WaitlistLength:       v.WaitlistLength,
	}
}
