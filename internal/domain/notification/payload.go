package notification

import (
	"time"

	"tutor_booking_engine/internal/domain/reminder"
)

// Payload is implemented by exactly one struct per Kind.
type Payload interface {
	Kind() Kind
}

type BookingConfirmed struct {
	BookingID int64     `json:"booking_id"`
	Start     time.Time `json:"start"`
	End       time.Time `json:"end"`
	Amount    int64     `json:"amount"`
	Currency  string    `json:"currency"`
}

type PaymentRequired struct {
	BookingID int64     `json:"booking_id"`
	Start     time.Time `json:"start"`
	Amount    int64     `json:"amount"`
	Currency  string    `json:"currency"`
}

type SessionReminder struct {
	BookingID int64         `json:"booking_id"`
	Reminder  reminder.Type `json:"reminder"`
	Start     time.Time     `json:"start"`
}

type NoShowWarning struct {
	BookingID   int64     `json:"booking_id"`
	Start       time.Time `json:"start"`
	MinutesLate int       `json:"minutes_late"`
}

type NoShowResolved struct {
	BookingID      int64  `json:"booking_id"`
	Reason         string `json:"reason"`
	TeacherAmount  int64  `json:"teacher_amount"`
	RefundedAmount int64  `json:"refunded_amount"`
	Currency       string `json:"currency"`
}

type BookingCancelled struct {
	BookingID      int64  `json:"booking_id"`
	Reason         string `json:"reason"`
	RefundedAmount int64  `json:"refunded_amount"`
	Currency       string `json:"currency"`
}

type RescheduleRequested struct {
	BookingID     int64     `json:"booking_id"`
	RequestedBy   int64     `json:"requested_by"`
	ProposedStart time.Time `json:"proposed_start"`
	ProposedEnd   time.Time `json:"proposed_end"`
}

type RescheduleAnswered struct {
	BookingID int64     `json:"booking_id"`
	Approved  bool      `json:"approved"`
	Start     time.Time `json:"start"`
	End       time.Time `json:"end"`
}

type SessionCompleted struct {
	BookingID           int64     `json:"booking_id"`
	DisputeWindowEndsAt time.Time `json:"dispute_window_ends_at"`
}

type EscrowReleased struct {
	BookingID int64  `json:"booking_id"`
	Amount    int64  `json:"amount"`
	Currency  string `json:"currency"`
}

type DisputeOpened struct {
	BookingID int64  `json:"booking_id"`
	OpenedBy  int64  `json:"opened_by"`
	Reason    string `json:"reason"`
}

type PayoutStatusChanged struct {
	PayoutID      int64  `json:"payout_id"`
	Status        string `json:"status"`
	Amount        int64  `json:"amount"`
	Currency      string `json:"currency"`
	FailureReason string `json:"failure_reason,omitempty"`
}

func (BookingConfirmed) Kind() Kind    { return KindBookingConfirmed }
func (PaymentRequired) Kind() Kind     { return KindPaymentRequired }
func (SessionReminder) Kind() Kind     { return KindSessionReminder }
func (NoShowWarning) Kind() Kind       { return KindNoShowWarning }
func (NoShowResolved) Kind() Kind      { return KindNoShowResolved }
func (BookingCancelled) Kind() Kind    { return KindBookingCancelled }
func (RescheduleRequested) Kind() Kind { return KindRescheduleRequested }
func (RescheduleAnswered) Kind() Kind  { return KindRescheduleAnswered }
func (SessionCompleted) Kind() Kind    { return KindSessionCompleted }
func (EscrowReleased) Kind() Kind      { return KindEscrowReleased }
func (DisputeOpened) Kind() Kind       { return KindDisputeOpened }
func (PayoutStatusChanged) Kind() Kind { return KindPayoutStatusChanged }
