package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"

	"tutor_booking_engine/internal/app"
	"tutor_booking_engine/internal/domain/user"
)

func RegisterBotCommands(
	ctx context.Context,
	b *telebot.Bot,
	adminTelegramID int64,
	accounts *app.AccountService,
	sweepNames []string,
	baseLogger *logrus.Entry,
) {
	startHelpLogger := baseLogger.WithField("handler_group", "start_help")

	b.Handle("/start", func(c telebot.Context) error {
		senderID := c.Sender().ID
		logCtx := startHelpLogger.WithField("command", "/start").WithField("sender_id", senderID)
		logCtx.Info("Processing /start command")

		if senderID == adminTelegramID {
			logCtx.Info("User identified as Admin")
			return c.Send(fmt.Sprintf("Hello, %s. Use /help to list operator commands.", c.Sender().FirstName))
		}

		u, err := accounts.UserByTelegramID(ctx, senderID)
		if errors.Is(err, user.ErrNotFound) {
			logCtx.Info("User is unknown")
			return c.Send("Hello! Link your Telegram account in your tutoring profile to receive booking notifications here.")
		}
		if err != nil {
			logCtx.WithError(err).Error("Error looking up user for /start command")
			return c.Send("Something went wrong while checking your account. Please try again later.")
		}

		logCtx.WithFields(logrus.Fields{"user_id": u.ID, "role": u.Role}).Info("Known user started the bot")
		return c.Send(fmt.Sprintf("Hello, %s! You will receive booking confirmations, reminders and payment updates here.", u.FullName))
	})

	b.Handle("/help", func(c telebot.Context) error {
		senderID := c.Sender().ID
		logCtx := startHelpLogger.WithField("command", "/help").WithField("sender_id", senderID)
		logCtx.Info("Processing /help command")

		if senderID == adminTelegramID {
			var helpText strings.Builder
			helpText.WriteString("Operator commands:\n\n")
			helpText.WriteString("`/pending_payouts`\n - List payouts waiting for approval.\n\n")
			helpText.WriteString("`/approve_payout <PayoutID>`\n - Approve a payout and send it to the gateway.\n\n")
			helpText.WriteString("`/resolve_dispute <BookingID> <TeacherPercent>`\n - Settle a disputed session.\n\n")
			helpText.WriteString("`/sweep <" + strings.Join(sweepNames, "|") + ">`\n - Run a periodic job now.\n\n")
			helpText.WriteString("`/help`\n - Show this message.")
			return c.Send(helpText.String(), &telebot.SendOptions{ParseMode: telebot.ModeMarkdown})
		}

		u, err := accounts.UserByTelegramID(ctx, senderID)
		if err != nil && !errors.Is(err, user.ErrNotFound) {
			logCtx.WithError(err).Error("Error looking up user for /help command")
			return c.Send("Something went wrong while checking your account. Please try again later.")
		}
		if u == nil {
			return c.Send("No commands are available. Link your Telegram account in your tutoring profile first.")
		}
		if u.Role == user.RoleTeacher {
			return c.Send("You will be notified about new bookings, reminders, no-shows and payouts. Reschedule requests come with Approve and Reject buttons.")
		}
		return c.Send("You will be notified about confirmations, reminders and refunds. Reschedule requests from your teacher come with Approve and Reject buttons.")
	})
}
