package phonepe

import "strings"

// Outcome is the normalized result of a PhonePe transaction.
type Outcome string

const (
	OutcomeSuccess Outcome = "SUCCESS"
	OutcomeFailed  Outcome = "FAILED"
	OutcomePending Outcome = "PENDING"
)

// ParseOutcome maps provider states and codes onto an Outcome. Anything that
// is neither a success nor an explicit pending state counts as failed.
func ParseOutcome(raw string) Outcome {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "SUCCESS", "COMPLETED", "PAYMENT_SUCCESS":
		return OutcomeSuccess
	case "PENDING", "PAYMENT_PENDING", "INTERNAL_SERVER_ERROR":
		return OutcomePending
	default:
		return OutcomeFailed
	}
}

// Terminal reports whether the outcome settles the payment.
func (o Outcome) Terminal() bool {
	return o == OutcomeSuccess || o == OutcomeFailed
}
