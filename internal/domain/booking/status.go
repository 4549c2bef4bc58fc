package booking

// Status is the lifecycle state of a Booking. "In progress" is not stored;
// it is derived from a confirmed booking and the current time.
type Status string

const (
	StatusPending         Status = "pending"
	StatusAwaitingPayment Status = "awaiting_payment"
	StatusConfirmed       Status = "confirmed"
	StatusCompleted       Status = "completed"
	StatusCancelled       Status = "cancelled"
)

// ActiveStatuses hold their time window; no two active bookings of one
// teacher may overlap.
var ActiveStatuses = []Status{StatusPending, StatusAwaitingPayment, StatusConfirmed}

func (s Status) Active() bool {
	for _, a := range ActiveStatuses {
		if s == a {
			return true
		}
	}
	return false
}

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

var transitions = map[Status][]Status{
	StatusPending:         {StatusAwaitingPayment, StatusConfirmed, StatusCancelled},
	StatusAwaitingPayment: {StatusConfirmed, StatusCancelled},
	StatusConfirmed:       {StatusCompleted, StatusCancelled},
}

func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// PaymentStatus tracks the money attached to a booking. It only moves
// forward: awaiting_payment -> held -> released | refunded | partially_released.
type PaymentStatus string

const (
	PaymentAwaiting          PaymentStatus = "awaiting_payment"
	PaymentHeld              PaymentStatus = "held"
	PaymentReleased          PaymentStatus = "released"
	PaymentRefunded          PaymentStatus = "refunded"
	PaymentPartiallyReleased PaymentStatus = "partially_released"
)

func (p PaymentStatus) rank() int {
	switch p {
	case PaymentAwaiting:
		return 0
	case PaymentHeld:
		return 1
	case PaymentReleased, PaymentRefunded, PaymentPartiallyReleased:
		return 2
	default:
		return -1
	}
}

func (p PaymentStatus) Settled() bool { return p.rank() == 2 }
