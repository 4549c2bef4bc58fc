package notification

// Kind tags each notification payload. The payload shape is fixed per kind.
type Kind string

const (
	KindBookingConfirmed    Kind = "booking_confirmed"
	KindPaymentRequired     Kind = "payment_required"
	KindSessionReminder     Kind = "session_reminder"
	KindNoShowWarning       Kind = "no_show_warning"
	KindNoShowResolved      Kind = "no_show_resolved"
	KindBookingCancelled    Kind = "booking_cancelled"
	KindRescheduleRequested Kind = "reschedule_requested"
	KindRescheduleAnswered  Kind = "reschedule_answered"
	KindSessionCompleted    Kind = "session_completed"
	KindEscrowReleased      Kind = "escrow_released"
	KindDisputeOpened       Kind = "dispute_opened"
	KindPayoutStatusChanged Kind = "payout_status_changed"
)
