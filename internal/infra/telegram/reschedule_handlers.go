package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"

	"tutor_booking_engine/internal/app"
	"tutor_booking_engine/internal/domain/booking"
	"tutor_booking_engine/internal/domain/user"
)

const (
	approveUnique = "rs_approve"
	rejectUnique  = "rs_reject"
)

// RegisterRescheduleHandlers wires the Approve/Reject buttons attached to
// reschedule requests.
func RegisterRescheduleHandlers(ctx context.Context, b *telebot.Bot, accounts *app.AccountService, bookings *app.BookingService, baseLogger *logrus.Entry) {
	answer := func(approve bool) telebot.HandlerFunc {
		return func(c telebot.Context) error {
			handlerLogger := baseLogger.WithFields(logrus.Fields{
				"handler":   "reschedule_answer",
				"approve":   approve,
				"sender_id": c.Sender().ID,
			})

			bookingID, err := strconv.ParseInt(c.Callback().Data, 10, 64)
			if err != nil {
				handlerLogger.WithField("data", c.Callback().Data).Warn("Invalid booking id in callback")
				return c.Respond(&telebot.CallbackResponse{Text: "Invalid request."})
			}
			handlerLogger = handlerLogger.WithField("booking_id", bookingID)

			u, err := accounts.UserByTelegramID(ctx, c.Sender().ID)
			if err != nil {
				if errors.Is(err, user.ErrNotFound) {
					handlerLogger.Warn("Callback from unknown user")
					return c.Respond(&telebot.CallbackResponse{Text: "You are not registered."})
				}
				handlerLogger.WithError(err).Error("Failed to resolve user")
				return c.Respond(&telebot.CallbackResponse{Text: "Something went wrong."})
			}

			now := time.Now().UTC()
			if approve {
				_, err = bookings.ApproveReschedule(ctx, bookingID, u.ID, now)
			} else {
				_, err = bookings.RejectReschedule(ctx, bookingID, u.ID, now)
			}
			if err != nil {
				handlerLogger.WithError(err).Warn("Reschedule answer rejected")
				return c.Respond(&telebot.CallbackResponse{Text: rescheduleErrorText(err), ShowAlert: true})
			}

			handlerLogger.Info("Reschedule answered")
			if approve {
				return c.Respond(&telebot.CallbackResponse{Text: "Reschedule approved."})
			}
			return c.Respond(&telebot.CallbackResponse{Text: "Reschedule rejected."})
		}
	}

	b.Handle(&telebot.Btn{Unique: approveUnique}, answer(true))
	b.Handle(&telebot.Btn{Unique: rejectUnique}, answer(false))
}

func rescheduleErrorText(err error) string {
	switch {
	case errors.Is(err, booking.ErrSlotUnavailable):
		return "The proposed time is no longer available."
	case errors.Is(err, booking.ErrNoReschedule):
		return "There is no pending reschedule for this booking."
	case errors.Is(err, booking.ErrOwnReschedule):
		return "The other participant has to answer this request."
	case errors.Is(err, booking.ErrNotParticipant):
		return "You are not part of this booking."
	case errors.Is(err, booking.ErrNotFound):
		return "Booking not found."
	default:
		return fmt.Sprintf("Could not answer the request: %v", err)
	}
}
