package order

import "errors"

// PaymentMethod is how the student pays for the order.
type PaymentMethod string

const (
	PaymentCard     PaymentMethod = "card"
	PaymentTransfer PaymentMethod = "transfer"
	PaymentCash     PaymentMethod = "cash"
)

var ErrInvalidPaymentMethod = errors.New("invalid payment method")

func (p PaymentMethod) String() string {
	return string(p)
}

func ParsePaymentMethod(s string) (PaymentMethod, error) {
	switch PaymentMethod(s) {
	case PaymentCard, PaymentTransfer, PaymentCash:
		return PaymentMethod(s), nil
	default:
		return "", ErrInvalidPaymentMethod
	}
}
