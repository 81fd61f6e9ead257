package errs

import "errors"

// Sentinel errors shared by the circulation usecase layer. Handlers map these
// to HTTP statuses; everything except ErrInvariantViolation is an ordinary,
// expected outcome.
var (
	// Lookup errors
	ErrBookNotFound   = errors.New("book not found")
	ErrRecordNotFound = errors.New("circulation record not found")
	ErrUserNotFound   = errors.New("user not found")

	// Reservation preconditions
	ErrOutOfStock       = errors.New("no copies available for reservation")
	ErrDuplicateActive  = errors.New("active reservation or loan already exists for this book")
	ErrLimitExceeded    = errors.New("borrowing limit reached")
	ErrOutstandingFines = errors.New("outstanding fines must be paid first")

	// Token errors
	ErrInvalidToken = errors.New("invalid circulation token")
	ErrTokenExpired = errors.New("circulation token expired")

	// State machine errors
	ErrWrongState       = errors.New("operation not permitted in current state")
	ErrBookNotAvailable = errors.New("book no longer available")

	// Fine errors
	ErrFineAlreadyPaid = errors.New("fine already paid")
	ErrNothingToPay    = errors.New("no outstanding fines")

	// Defensive: unreachable from valid call sequences. Surfaced loudly, never
	// swallowed.
	ErrInvariantViolation = errors.New("inventory invariant violation")
)
