package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"tutor_booking_engine/internal/domain/notification"
	"tutor_booking_engine/internal/domain/store"
	"tutor_booking_engine/internal/domain/user"
)

// NotificationRelay delivers due outbox messages. Sends run in parallel up
// to OutboxParallelism, each bounded by ExternalCallTimeout. A failed send
// is retried with backoff and marked dead after OutboxMaxAttempts.
type NotificationRelay struct {
	store  store.Store
	sender notification.Sender
	policy Policy
	log    *logrus.Entry
}

func NewNotificationRelay(s store.Store, sender notification.Sender, policy Policy, log *logrus.Entry) *NotificationRelay {
	return &NotificationRelay{store: s, sender: sender, policy: policy, log: log.WithField("component", "notifications")}
}

func (r *NotificationRelay) Run(ctx context.Context, now time.Time) SweepReport {
	report := newReport(SweepNotifications, now)

	var due []*notification.Message
	err := r.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		due, err = tx.Outbox().ClaimDue(ctx, now, r.lease(), r.policy.OutboxBatchSize)
		return err
	})
	if err != nil {
		report.failed("claim due messages: %v", err)
		return report.Result()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.policy.OutboxParallelism)
	for _, m := range due {
		m := m
		g.Go(func() error {
			r.deliver(gctx, report, m, now)
			return nil
		})
	}
	_ = g.Wait()
	return report.Result()
}

// lease covers the worst case of one batch running through its workers.
func (r *NotificationRelay) lease() time.Duration {
	rounds := (r.policy.OutboxBatchSize + r.policy.OutboxParallelism - 1) / r.policy.OutboxParallelism
	return time.Duration(rounds+1) * r.policy.ExternalCallTimeout
}

func (r *NotificationRelay) deliver(ctx context.Context, report *reportBuilder, m *notification.Message, now time.Time) {
	logEntry := r.log.WithFields(logrus.Fields{
		"message_id": m.ID,
		"kind":       string(m.Kind),
		"user_id":    m.RecipientUserID,
		"attempt":    m.Attempts + 1,
	})

	sendErr := r.send(ctx, m)
	err := r.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if sendErr == nil {
			return tx.Outbox().MarkDelivered(ctx, m.ID, now)
		}
		attempts := m.Attempts + 1
		dead := attempts >= r.policy.OutboxMaxAttempts || errors.Is(sendErr, notification.ErrNoChannel)
		return tx.Outbox().MarkFailed(ctx, m.ID, sendErr.Error(), now.Add(backoff(attempts)), dead)
	})
	if err != nil {
		logEntry.WithError(err).Error("Failed to record delivery outcome")
		report.failed("message %s: %v", m.ID, err)
		return
	}
	if sendErr != nil {
		logEntry.WithError(sendErr).Warn("Notification delivery failed")
		report.failed("message %s: %v", m.ID, sendErr)
		return
	}
	logEntry.Debug("Notification delivered")
	report.succeeded()
}

func (r *NotificationRelay) send(ctx context.Context, m *notification.Message) error {
	var u *user.User
	err := r.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		u, err = tx.Users().GetByID(ctx, m.RecipientUserID)
		return err
	})
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return fmt.Errorf("%w: %w", notification.ErrNoChannel, err)
		}
		return err
	}

	callCtx, cancel := context.WithTimeout(ctx, r.policy.ExternalCallTimeout)
	defer cancel()
	return r.sender.Send(callCtx, notification.Recipient{
		UserID:     u.ID,
		FullName:   u.FullName,
		Email:      u.Email,
		TelegramID: u.TelegramID,
	}, m)
}

// backoff grows quadratically: 1m, 4m, 9m, ...
func backoff(attempts int) time.Duration {
	return time.Duration(attempts*attempts) * time.Minute
}
