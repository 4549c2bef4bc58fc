package notify

import (
	"context"

	"github.com/sirupsen/logrus"

	"tutor_booking_engine/internal/domain/notification"
)

// LogSender writes messages to the log. It stands in for real channels in
// development.
type LogSender struct {
	log *logrus.Entry
}

func NewLogSender(log *logrus.Entry) *LogSender {
	return &LogSender{log: log.WithField("channel", "log")}
}

func (s *LogSender) Name() string { return "log" }

func (s *LogSender) Send(_ context.Context, to notification.Recipient, m *notification.Message) error {
	s.log.WithFields(logrus.Fields{
		"message_id": m.ID,
		"kind":       m.Kind,
		"user_id":    to.UserID,
	}).Infof("%s: %s", m.Subject, m.Body)
	return nil
}
