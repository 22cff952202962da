// Package payment charges and refunds bookings. The only processor shipped
// is a simulator; gateways plug in behind the same interface.
package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/parking-lot-reservation/internal/model"
)

var (
	// ErrUnsupportedMethod is returned for a payment method the processor
	// cannot handle.
	ErrUnsupportedMethod = errors.New("unsupported payment method")
	// ErrInvalidAmount is returned for a non-positive charge or refund.
	ErrInvalidAmount = errors.New("amount must be positive")
)

// Charge is a request to take money for a booking.
type Charge struct {
	BookingID string
	Amount    int64
	Currency  string
	Method    model.PaymentMethod
}

// Receipt describes the outcome of a charge or refund.
type Receipt struct {
	TransactionID string
	PaymentID     string
	OrderID       string
	Status        model.PaymentStatus
	At            time.Time
}

// Processor executes money movements.
type Processor interface {
	Charge(ctx context.Context, c Charge) (Receipt, error)
	Refund(ctx context.Context, p *model.Payment, amount int64) (Receipt, error)
}

// Simulator completes electronic payments immediately and leaves cash
// pending until it is collected at the gate.
type Simulator struct {
	now func() time.Time
}

// NewSimulator returns a simulator using the wall clock.
func NewSimulator() *Simulator {
	return &Simulator{now: func() time.Time { return time.Now().UTC() }}
}

// Charge returns a receipt with fresh identifiers.
func (s *Simulator) Charge(ctx context.Context, c Charge) (Receipt, error) {
	if err := ctx.Err(); err != nil {
		return Receipt{}, err
	}
	if !c.Method.Valid() {
		return Receipt{}, fmt.Errorf("%w: %q", ErrUnsupportedMethod, c.Method)
	}
	if c.Amount <= 0 {
		return Receipt{}, ErrInvalidAmount
	}
	r := Receipt{
		TransactionID: reference("txn"),
		OrderID:       reference("order"),
		Status:        model.PaymentCompleted,
		At:            s.now(),
	}
	if c.Method == model.PaymentCash {
		r.Status = model.PaymentPending
		return r, nil
	}
	r.PaymentID = reference(string(c.Method))
	return r, nil
}

// Refund returns amount of a completed payment.
func (s *Simulator) Refund(ctx context.Context, p *model.Payment, amount int64) (Receipt, error) {
	if err := ctx.Err(); err != nil {
		return Receipt{}, err
	}
	if p == nil || p.Status != model.PaymentCompleted {
		return Receipt{}, errors.New("payment is not refundable")
	}
	if amount <= 0 || amount > p.Amount {
		return Receipt{}, ErrInvalidAmount
	}
	return Receipt{
		TransactionID: reference("rfnd"),
		PaymentID:     p.PaymentID,
		OrderID:       p.OrderID,
		Status:        model.PaymentRefunded,
		At:            s.now(),
	}, nil
}

func reference(prefix string) string {
	return prefix + "_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}
