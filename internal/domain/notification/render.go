package notification

import (
	"fmt"
)

const timeLayout = "Mon 02 Jan 2006 15:04 MST"

// Render produces the channel-neutral subject and body for a payload.
func Render(p Payload) (subject, body string) {
	switch v := p.(type) {
	case BookingConfirmed:
		return "Session confirmed",
			fmt.Sprintf("Booking #%d is confirmed for %s - %s. %s held in escrow.",
				v.BookingID, v.Start.Format(timeLayout), v.End.Format("15:04"), money(v.Amount, v.Currency))
	case PaymentRequired:
		return "Payment required",
			fmt.Sprintf("Booking #%d on %s is reserved but awaits payment of %s. Top up your wallet to confirm it.",
				v.BookingID, v.Start.Format(timeLayout), money(v.Amount, v.Currency))
	case SessionReminder:
		return fmt.Sprintf("Session starts in %s", v.Reminder),
			fmt.Sprintf("Reminder: booking #%d starts at %s.", v.BookingID, v.Start.Format(timeLayout))
	case NoShowWarning:
		return "You are late for your session",
			fmt.Sprintf("Booking #%d started %d minutes ago and you have not joined. Join now to avoid a no-show.",
				v.BookingID, v.MinutesLate)
	case NoShowResolved:
		return "Session resolved as no-show",
			fmt.Sprintf("Booking #%d: %s. Teacher receives %s, refunded %s.",
				v.BookingID, v.Reason, money(v.TeacherAmount, v.Currency), money(v.RefundedAmount, v.Currency))
	case BookingCancelled:
		body := fmt.Sprintf("Booking #%d was cancelled: %s.", v.BookingID, v.Reason)
		if v.RefundedAmount > 0 {
			body += fmt.Sprintf(" %s refunded.", money(v.RefundedAmount, v.Currency))
		}
		return "Session cancelled", body
	case RescheduleRequested:
		return "Reschedule requested",
			fmt.Sprintf("A new time was proposed for booking #%d: %s - %s.",
				v.BookingID, v.ProposedStart.Format(timeLayout), v.ProposedEnd.Format("15:04"))
	case RescheduleAnswered:
		if v.Approved {
			return "Reschedule approved",
				fmt.Sprintf("Booking #%d now takes place %s - %s.", v.BookingID, v.Start.Format(timeLayout), v.End.Format("15:04"))
		}
		return "Reschedule declined",
			fmt.Sprintf("The proposed new time for booking #%d was declined; the original time stands.", v.BookingID)
	case SessionCompleted:
		return "Session completed",
			fmt.Sprintf("Booking #%d is complete. Disputes can be raised until %s.",
				v.BookingID, v.DisputeWindowEndsAt.Format(timeLayout))
	case EscrowReleased:
		return "Earnings released",
			fmt.Sprintf("%s from booking #%d is now available for payout.", money(v.Amount, v.Currency), v.BookingID)
	case DisputeOpened:
		return "Dispute opened",
			fmt.Sprintf("A dispute was opened on booking #%d: %s", v.BookingID, v.Reason)
	case PayoutStatusChanged:
		body := fmt.Sprintf("Payout #%d of %s is %s.", v.PayoutID, money(v.Amount, v.Currency), v.Status)
		if v.FailureReason != "" {
			body += " Reason: " + v.FailureReason
		}
		return "Payout update", body
	default:
		return string(p.Kind()), ""
	}
}

func money(amount int64, currency string) string {
	return fmt.Sprintf("%s %d.%02d", currency, amount/100, amount%100)
}
