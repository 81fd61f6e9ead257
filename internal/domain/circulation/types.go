package circulation

type Status string

const (
	StatusPending   Status = "pending"
	StatusBorrowed  Status = "borrowed"
	StatusReturned  Status = "returned"
	StatusCancelled Status = "cancelled"
	StatusExpired   Status = "expired"
)

func (s Status) String() string {
	return string(s)
}

func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusBorrowed, StatusReturned, StatusCancelled, StatusExpired:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether no further transition is possible. A user must
// create a new record to reserve the book again.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusReturned, StatusCancelled, StatusExpired:
		return true
	default:
		return false
	}
}

// IsActive reports whether the record counts against the borrowing limit and
// blocks a second record for the same (user, book) pair.
func (s Status) IsActive() bool {
	return s == StatusPending || s == StatusBorrowed
}
