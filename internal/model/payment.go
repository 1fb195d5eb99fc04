package model

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Provider identifies a payment gateway.
type Provider string

const (
	ProviderRazorpay Provider = "RAZORPAY"
	ProviderStripe   Provider = "STRIPE"
)

// ParseProvider normalizes s into a known Provider.
func ParseProvider(s string) (Provider, bool) {
	p := Provider(strings.ToUpper(strings.TrimSpace(s)))
	switch p {
	case ProviderRazorpay, ProviderStripe:
		return p, true
	}
	return "", false
}

// PaymentStatus is the lifecycle state of a Payment. The only legal
// transitions are PENDING→SUCCESS and PENDING→FAILED.
type PaymentStatus string

const (
	PaymentPending PaymentStatus = "PENDING"
	PaymentSuccess PaymentStatus = "SUCCESS"
	PaymentFailed  PaymentStatus = "FAILED"
)

// Payment is one purchase attempt.
//
// Fields:
//  ProviderOrderID   – Razorpay order id or Stripe checkout session id.
//  ProviderPaymentID – Razorpay payment id or Stripe payment intent id.
//  SettledAt         – set once, inside the settlement transaction.
type Payment struct {
	ID                uint64          // payments.id
	UserID            uint64          // payments.user_id
	CourseID          *uint64         // payments.course_id (nullable)
	Amount            decimal.Decimal // payments.amount
	Currency          string          // payments.currency
	Provider          Provider        // payments.provider
	ProviderOrderID   *string         // payments.provider_order_id (nullable)
	ProviderPaymentID *string         // payments.provider_payment_id (nullable)
	Status            PaymentStatus   // payments.status
	SettledAt         *time.Time      // payments.settled_at (nullable)
	CreatedAt         time.Time       // payments.created_at
	UpdatedAt         time.Time       // payments.updated_at
}
