package gateway

import (
	"context"
	"fmt"

	"github.com/omise/omise-go"
	"github.com/omise/omise-go/operations"

	"tutor_booking_engine/internal/domain/payout"
)

// TransferClient creates and looks up Omise transfers.
type TransferClient interface {
	CreateTransfer(op *operations.CreateTransfer) (*omise.Transfer, error)
	RetrieveTransfer(op *operations.RetrieveTransfer) (*omise.Transfer, error)
}

// Client adapts *omise.Client to TransferClient.
type Client struct {
	c *omise.Client
}

func (c Client) CreateTransfer(op *operations.CreateTransfer) (*omise.Transfer, error) {
	tr := &omise.Transfer{}
	if err := c.c.Do(tr, op); err != nil {
		return nil, err
	}
	return tr, nil
}

func (c Client) RetrieveTransfer(op *operations.RetrieveTransfer) (*omise.Transfer, error) {
	tr := &omise.Transfer{}
	if err := c.c.Do(tr, op); err != nil {
		return nil, err
	}
	return tr, nil
}

// Omise sends payouts as Omise transfers to the recipient stored in the
// payment method's ExternalRef.
type Omise struct {
	client TransferClient
}

func NewOmiseClient(publicKey, secretKey string) (Client, error) {
	c, err := omise.NewClient(publicKey, secretKey)
	if err != nil {
		return Client{}, fmt.Errorf("create omise client: %w", err)
	}
	c.SetDebug(false)
	return Client{c: c}, nil
}

func NewOmise(client TransferClient) *Omise {
	return &Omise{client: client}
}

func (g *Omise) Transfer(ctx context.Context, req payout.TransferRequest) (payout.TransferResult, error) {
	if req.Destination.ExternalRef == "" {
		return payout.TransferResult{}, fmt.Errorf("payment method %d has no omise recipient", req.Destination.ID)
	}
	op := &operations.CreateTransfer{
		Amount:    req.Amount,
		Recipient: req.Destination.ExternalRef,
		Metadata: map[string]interface{}{
			"payout_id":       req.PayoutID,
			"idempotency_key": req.IdempotencyKey,
		},
	}
	tr, err := call(ctx, func() (*omise.Transfer, error) { return g.client.CreateTransfer(op) })
	if err != nil {
		return payout.TransferResult{}, fmt.Errorf("omise create transfer: %w", err)
	}
	return transferResult(tr), nil
}

func (g *Omise) Status(ctx context.Context, reference string) (payout.TransferResult, error) {
	op := &operations.RetrieveTransfer{TransferID: reference}
	tr, err := call(ctx, func() (*omise.Transfer, error) { return g.client.RetrieveTransfer(op) })
	if err != nil {
		return payout.TransferResult{}, fmt.Errorf("omise retrieve transfer %s: %w", reference, err)
	}
	return transferResult(tr), nil
}

type callResult struct {
	tr  *omise.Transfer
	err error
}

// call runs fn on a goroutine; the omise client has no context support.
func call(ctx context.Context, fn func() (*omise.Transfer, error)) (*omise.Transfer, error) {
	done := make(chan callResult, 1)
	go func() {
		tr, err := fn()
		done <- callResult{tr: tr, err: err}
	}()
	select {
	case r := <-done:
		return r.tr, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func transferResult(tr *omise.Transfer) payout.TransferResult {
	res := payout.TransferResult{Reference: tr.ID, State: payout.TransferPending}
	switch {
	case tr.Paid:
		res.State = payout.TransferPaid
	case tr.FailureCode != nil:
		res.State = payout.TransferFailed
		res.FailureReason = *tr.FailureCode
		if tr.FailureMessage != nil {
			res.FailureReason += ": " + *tr.FailureMessage
		}
	}
	return res
}
