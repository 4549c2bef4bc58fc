package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"

	"tutor_booking_engine/internal/app"
	"tutor_booking_engine/internal/domain/escrow"
	"tutor_booking_engine/internal/domain/payout"
)

const unauthorizedText = "Error: you are not allowed to run this command."

// RegisterAdminHandlers registers the operator commands. Authorization is
// enforced by AdminService against the configured admin Telegram ID.
func RegisterAdminHandlers(ctx context.Context, b *telebot.Bot, adminService *app.AdminService, adminTelegramID int64, baseLogger *logrus.Entry) {
	b.Handle("/approve_payout", func(c telebot.Context) error {
		handlerLogger := baseLogger.WithFields(logrus.Fields{
			"handler":   "/approve_payout",
			"sender_id": c.Sender().ID,
		})
		handlerLogger.Info("Command received")

		if c.Sender().ID != adminTelegramID {
			handlerLogger.Warn("Unauthorized access attempt")
			return c.Send(unauthorizedText)
		}

		args := c.Args()
		if len(args) != 1 {
			return c.Send("Usage: /approve_payout <PayoutID>")
		}
		payoutID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return c.Send("Error: payout ID must be a number.")
		}
		handlerLogger = handlerLogger.WithField("payout_id", payoutID)

		req, err := adminService.ApprovePayout(ctx, c.Sender().ID, payoutID, time.Now().UTC())
		if err != nil {
			logWithError := handlerLogger.WithError(err)
			switch {
			case errors.Is(err, app.ErrAdminNotAuthorized):
				logWithError.Warn("Admin not authorized (service level)")
				return c.Send(unauthorizedText)
			case errors.Is(err, payout.ErrNotFound):
				logWithError.Warn("Payout not found")
				return c.Send(fmt.Sprintf("Payout %d not found.", payoutID))
			case errors.Is(err, payout.ErrInvalidTransition):
				logWithError.Warn("Payout not in requested state")
				return c.Send(fmt.Sprintf("Payout %d cannot be approved: %v", payoutID, err))
			case req != nil:
				// Approved but the gateway call failed; reconciliation retries it.
				logWithError.Error("Payout approved, transfer failed")
				return c.Send(fmt.Sprintf("Payout %d approved, transfer pending retry: %v", payoutID, err))
			default:
				logWithError.Error("Failed to approve payout")
				return c.Send(fmt.Sprintf("Failed to approve payout: %v", err))
			}
		}

		handlerLogger.WithField("status", req.Status).Info("Payout approved")
		return c.Send(fmt.Sprintf("Payout %d approved, status: %s.", req.ID, req.Status))
	})

	b.Handle("/pending_payouts", func(c telebot.Context) error {
		handlerLogger := baseLogger.WithFields(logrus.Fields{
			"handler":   "/pending_payouts",
			"sender_id": c.Sender().ID,
		})
		if c.Sender().ID != adminTelegramID {
			handlerLogger.Warn("Unauthorized access attempt")
			return c.Send(unauthorizedText)
		}

		pending, err := adminService.PendingPayouts(ctx, c.Sender().ID)
		if err != nil {
			if errors.Is(err, app.ErrAdminNotAuthorized) {
				return c.Send(unauthorizedText)
			}
			handlerLogger.WithError(err).Error("Failed to list pending payouts")
			return c.Send(fmt.Sprintf("Failed to list payouts: %v", err))
		}
		if len(pending) == 0 {
			return c.Send("No payouts waiting for approval.")
		}

		var response strings.Builder
		response.WriteString("--- Pending payouts ---\n")
		for _, r := range pending {
			response.WriteString(fmt.Sprintf("ID: %d, teacher: %d, amount: %d %s, requested: %s\n",
				r.ID, r.TeacherID, r.Amount, r.Currency, r.RequestedAt.Format(time.RFC3339)))
		}
		return c.Send(response.String())
	})

	b.Handle("/resolve_dispute", func(c telebot.Context) error {
		handlerLogger := baseLogger.WithFields(logrus.Fields{
			"handler":   "/resolve_dispute",
			"sender_id": c.Sender().ID,
		})
		handlerLogger.Info("Command received")
		if c.Sender().ID != adminTelegramID {
			handlerLogger.Warn("Unauthorized access attempt")
			return c.Send(unauthorizedText)
		}

		args := c.Args()
		if len(args) != 2 {
			return c.Send("Usage: /resolve_dispute <BookingID> <TeacherPercent>")
		}
		bookingID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return c.Send("Error: booking ID must be a number.")
		}
		percent, err := strconv.Atoi(args[1])
		if err != nil {
			return c.Send("Error: percent must be a number between 0 and 100.")
		}
		handlerLogger = handlerLogger.WithFields(logrus.Fields{"booking_id": bookingID, "teacher_percent": percent})

		entry, err := adminService.ResolveDispute(ctx, c.Sender().ID, bookingID, percent, time.Now().UTC())
		if err != nil {
			logWithError := handlerLogger.WithError(err)
			switch {
			case errors.Is(err, app.ErrAdminNotAuthorized):
				return c.Send(unauthorizedText)
			case errors.Is(err, escrow.ErrNotFound), errors.Is(err, escrow.ErrNotDisputed), errors.Is(err, escrow.ErrInvalidSplit):
				logWithError.Warn("Dispute cannot be resolved")
				return c.Send(fmt.Sprintf("Cannot resolve: %v", err))
			default:
				logWithError.Error("Failed to resolve dispute")
				return c.Send(fmt.Sprintf("Failed to resolve dispute: %v", err))
			}
		}

		handlerLogger.Info("Dispute resolved")
		return c.Send(fmt.Sprintf("Booking %d settled: %d to teacher, %d refunded.", bookingID, entry.TeacherAmount, entry.RefundedAmount))
	})

	b.Handle("/sweep", func(c telebot.Context) error {
		handlerLogger := baseLogger.WithFields(logrus.Fields{
			"handler":   "/sweep",
			"sender_id": c.Sender().ID,
		})
		if c.Sender().ID != adminTelegramID {
			handlerLogger.Warn("Unauthorized access attempt")
			return c.Send(unauthorizedText)
		}

		args := c.Args()
		if len(args) != 1 {
			return c.Send("Usage: /sweep <" + strings.Join(adminService.SweepNames(), "|") + ">")
		}
		handlerLogger = handlerLogger.WithField("sweep", args[0])

		report, err := adminService.RunSweep(ctx, c.Sender().ID, args[0], time.Now().UTC())
		if err != nil {
			if errors.Is(err, app.ErrAdminNotAuthorized) {
				return c.Send(unauthorizedText)
			}
			handlerLogger.WithError(err).Warn("Sweep not run")
			return c.Send(fmt.Sprintf("Sweep not run: %v", err))
		}

		handlerLogger.WithFields(report.Fields()).Info("Sweep run from bot")
		msg := fmt.Sprintf("%s: processed %d, succeeded %d, skipped %d, failed %d",
			report.Sweep, report.Processed, report.Succeeded, report.Skipped, report.Failed)
		if len(report.Errors) > 0 {
			msg += "\n" + strings.Join(report.Errors, "\n")
		}
		return c.Send(msg)
	})
}
