package order

import "errors"

// Status is the order lifecycle state.
type Status string

const (
	StatusPending       Status = "pending"
	StatusConfirmed     Status = "confirmed"
	StatusPreparing     Status = "preparing"
	StatusRiderAssigned Status = "rider_assigned"
	StatusOnTheWay      Status = "on_the_way"
	StatusDelivered     Status = "delivered"
	StatusCancelled     Status = "cancelled"
)

var ErrInvalidStatus = errors.New("invalid order status")

// progression is the forward path; cancelled sits outside it.
var progression = []Status{
	StatusPending,
	StatusConfirmed,
	StatusPreparing,
	StatusRiderAssigned,
	StatusOnTheWay,
	StatusDelivered,
}

func (s Status) String() string {
	return string(s)
}

func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusPending, StatusConfirmed, StatusPreparing, StatusRiderAssigned,
		StatusOnTheWay, StatusDelivered, StatusCancelled:
		return Status(s), nil
	default:
		return "", ErrInvalidStatus
	}
}

func (s Status) IsTerminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

func (s Status) rank() int {
	for i, st := range progression {
		if st == s {
			return i
		}
	}

	return -1
}

// Next returns the following forward state, or false for terminal states.
func (s Status) Next() (Status, bool) {
	r := s.rank()
	if r < 0 || r+1 >= len(progression) {
		return "", false
	}

	return progression[r+1], true
}

// CanTransitionTo reports whether moving from s to next is a legal step.
// Only single forward steps and cancellation of a live order are legal.
func (s Status) CanTransitionTo(next Status) bool {
	if s.IsTerminal() {
		return false
	}
	if next == StatusCancelled {
		return true
	}
	n, ok := s.Next()

	return ok && n == next
}
