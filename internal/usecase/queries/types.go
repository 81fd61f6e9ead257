package queries

import (
	"time"

	"github.com/google/uuid"
)

// Read models (DTO for read side)
type RecordView struct {
	ID              uuid.UUID  `json:"id"`
	BookID          uuid.UUID  `json:"book_id"`
	BookTitle       string     `json:"book_title"`
	BookAuthor      string     `json:"book_author"`
	UserID          uuid.UUID  `json:"user_id"`
	Status          string     `json:"status"`
	CreatedAt       time.Time  `json:"created_at"`
	DueDate         time.Time  `json:"due_date"`
	IssuedAt        *time.Time `json:"issued_at,omitempty"`
	ReturnDate      *time.Time `json:"return_date,omitempty"`
	FineAmountPaise int64      `json:"fine_amount_paise"`
	FinePaid        bool       `json:"fine_paid"`
}

type PendingPickupView struct {
	RecordID         uuid.UUID  `json:"record_id"`
	BookID           uuid.UUID  `json:"book_id"`
	BookTitle        string     `json:"book_title"`
	CreatedAt        time.Time  `json:"created_at"`
	TokenGeneratedAt *time.Time `json:"token_generated_at,omitempty"`
	TokenExpiresAt   *time.Time `json:"token_expires_at,omitempty"`
	HoursRemaining   *float64   `json:"hours_remaining,omitempty"`
}

type FineView struct {
	RecordID        uuid.UUID  `json:"record_id"`
	BookTitle       string     `json:"book_title"`
	DueDate         time.Time  `json:"due_date"`
	ReturnDate      *time.Time `json:"return_date,omitempty"`
	FineAmountPaise int64      `json:"fine_amount_paise"`
	FineDisplay     string     `json:"fine_display"`
	FinePaid        bool       `json:"fine_paid"`
	FinePaidAt      *time.Time `json:"fine_paid_at,omitempty"`
}

type FinesSummary struct {
	TotalUnpaidPaise int64       `json:"total_unpaid_paise"`
	TotalDisplay     string      `json:"total_display"`
	Fines            []*FineView `json:"fines"`
}

type AvailabilityView struct {
	BookID               uuid.UUID `json:"book_id"`
	Title                string    `json:"title"`
	Author               string    `json:"author"`
	TotalCopies          int       `json:"total_copies"`
	AvailableCopies      int       `json:"available_copies"`
	ReservedCopies       int       `json:"reserved_copies"`
	EffectivelyAvailable int       `json:"effectively_available"`
	WaitlistLength       int       `json:"waitlist_length"`
}

type WaitlistPositionView struct {
	BookID         uuid.UUID  `json:"book_id"`
	UserID         uuid.UUID  `json:"user_id"`
	Position       int        `json:"position"`
	JoinedAt       time.Time  `json:"joined_at"`
	NotifiedAt     *time.Time `json:"notified_at,omitempty"`
	ClaimExpiresAt *time.Time `json:"claim_expires_at,omitempty"`
}
