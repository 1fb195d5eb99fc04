// Package queue defines message payloads exchanged over the message broker
// and the publisher and consumer that move them.
package queue

// Queue names. Both are durable; the routing key equals the queue name on
// the default exchange.
const (
	PaymentSettledQueue  = "payment.settled"
	SettlementRetryQueue = "settlement.retry"
)

// PaymentSettledEvent is published after a payment's settlement commits.
// It carries enough for downstream consumers (notifications, analytics) to
// act without querying the primary database.
type PaymentSettledEvent struct {
	PaymentID        uint64  `json:"payment_id"`
	UserID           uint64  `json:"user_id"`
	CourseID         *uint64 `json:"course_id,omitempty"`
	Provider         string  `json:"provider"`
	Amount           string  `json:"amount"`
	Currency         string  `json:"currency"`
	EnrollmentID     uint64  `json:"enrollment_id,omitempty"`
	CommissionID     uint64  `json:"commission_id,omitempty"`
	CommissionAmount string  `json:"commission_amount,omitempty"`
	SettledAt        string  `json:"settled_at"`
}

// SettlementRetryEvent asks a consumer to re-run settlement for a payment
// that was marked SUCCESS but whose settlement failed.
type SettlementRetryEvent struct {
	PaymentID uint64 `json:"payment_id"`
	Reason    string `json:"reason"`
	FailedAt  string `json:"failed_at"`
}
