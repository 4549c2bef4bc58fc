package gateway

import (
	"context"

	"github.com/sirupsen/logrus"

	"tutor_booking_engine/internal/domain/payout"
)

// Dev settles every transfer immediately and only logs it. Used when no
// Omise keys are configured.
type Dev struct {
	log *logrus.Entry
}

func NewDev(log *logrus.Entry) *Dev {
	return &Dev{log: log.WithField("gateway", "dev")}
}

func (g *Dev) Transfer(_ context.Context, req payout.TransferRequest) (payout.TransferResult, error) {
	g.log.WithFields(logrus.Fields{
		"payout_id":       req.PayoutID,
		"amount":          req.Amount,
		"currency":        req.Currency,
		"idempotency_key": req.IdempotencyKey,
	}).Info("Dev transfer settled")
	return payout.TransferResult{Reference: "dev-" + req.IdempotencyKey, State: payout.TransferPaid}, nil
}

func (g *Dev) Status(_ context.Context, reference string) (payout.TransferResult, error) {
	return payout.TransferResult{Reference: reference, State: payout.TransferPaid}, nil
}
