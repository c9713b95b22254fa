// Package payment simulates the payment step that precedes order placement.
package payment

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/emmy19999/bingham-bites/internal/service/apperrors"
	"github.com/emmy19999/bingham-bites/internal/service/models/money"
	"github.com/emmy19999/bingham-bites/internal/service/models/order"
	"github.com/google/uuid"
)

const DefaultDelay = 2 * time.Second

// Receipt confirms a simulated charge.
type Receipt struct {
	Reference uuid.UUID           `json:"reference"`
	Method    order.PaymentMethod `json:"method"`
	Amount    money.Amount        `json:"amountKobo"`
	PaidAt    time.Time           `json:"paidAt"`
}

// Simulator waits for a fixed delay and then approves the charge.
type Simulator struct {
	delay time.Duration
	now   func() time.Time
}

// option is a function that configures the Simulator.
type option func(*Simulator)

//goland:noinspection GoExportedFuncWithUnexportedType
func WithDelay(d time.Duration) option {
	return func(s *Simulator) {
		s.delay = d
	}
}

//goland:noinspection GoExportedFuncWithUnexportedType
func WithClock(now func() time.Time) option {
	return func(s *Simulator) {
		s.now = now
	}
}

func NewSimulator(opts ...option) *Simulator {
	s := &Simulator{
		delay: DefaultDelay,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Charge approves amount paid with method once the delay has passed.
func (s *Simulator) Charge(ctx context.Context, method order.PaymentMethod, amount money.Amount) (Receipt, error) {
	if _, err := order.ParsePaymentMethod(string(method)); err != nil {
		return Receipt{}, fmt.Errorf("%w: %w", apperrors.ErrValidation, err)
	}
	if amount <= 0 {
		return Receipt{}, apperrors.Validation("payment amount must be positive")
	}

	if s.delay > 0 {
		timer := time.NewTimer(s.delay)
		defer timer.Stop()

		select {
		case <-ctx.Done():
			return Receipt{}, fmt.Errorf("payment interrupted: %w", ctx.Err())
		case <-timer.C:
		}
	}

	return Receipt{
		Reference: uuid.New(),
		Method:    method,
		Amount:    amount,
		PaidAt:    s.now().UTC(),
	}, nil
}

// Refund voids a charge whose order could not be placed.
func (s *Simulator) Refund(_ context.Context, r Receipt) error {
	if r.Reference == uuid.Nil {
		return apperrors.Validation("refund needs a payment reference")
	}

	slog.Info("Payment refunded",
		"reference", r.Reference,
		"method", r.Method,
		"amount", r.Amount.String(),
	)

	return nil
}
