package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"tutor_booking_engine/internal/domain/notification"
)

// FanOut delivers one message over every configured channel. The message
// counts as delivered once any channel accepts it; channels that cannot
// reach the recipient are skipped.
type FanOut struct {
	senders []notification.Sender
	log     *logrus.Entry
}

func NewFanOut(log *logrus.Entry, senders ...notification.Sender) *FanOut {
	return &FanOut{senders: senders, log: log.WithField("component", "notify")}
}

func (f *FanOut) Name() string {
	names := make([]string, 0, len(f.senders))
	for _, s := range f.senders {
		names = append(names, s.Name())
	}
	return "fanout(" + strings.Join(names, ",") + ")"
}

func (f *FanOut) Send(ctx context.Context, to notification.Recipient, m *notification.Message) error {
	var (
		delivered int
		errs      []error
	)
	for _, s := range f.senders {
		err := s.Send(ctx, to, m)
		switch {
		case err == nil:
			delivered++
		case errors.Is(err, notification.ErrNoChannel):
		default:
			f.log.WithError(err).WithFields(logrus.Fields{
				"channel":    s.Name(),
				"message_id": m.ID,
				"user_id":    to.UserID,
			}).Warn("Channel delivery failed")
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
		}
	}
	if delivered > 0 {
		return nil
	}
	if len(errs) == 0 {
		return notification.ErrNoChannel
	}
	return errors.Join(errs...)
}
