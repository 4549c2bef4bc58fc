package payout

import "context"

type TransferState string

const (
	TransferPending TransferState = "pending"
	TransferPaid    TransferState = "paid"
	TransferFailed  TransferState = "failed"
)

type TransferRequest struct {
	PayoutID       int64
	Amount         int64
	Currency       string
	Destination    PaymentMethod
	IdempotencyKey string
}

type TransferResult struct {
	Reference     string
	State         TransferState
	FailureReason string
}

// Gateway moves money out to a teacher's payment method. Implementations
// must honour ctx cancellation.
type Gateway interface {
	Transfer(ctx context.Context, req TransferRequest) (TransferResult, error)
	Status(ctx context.Context, reference string) (TransferResult, error)
}
