// Package gateway talks to the payment providers. Each provider implements
// Gateway; callers pick one by model.Provider through a Registry and never
// inspect provider-specific payloads themselves.
package gateway

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/iliyamo/paycore/internal/apperr"
	"github.com/iliyamo/paycore/internal/model"
)

// OrderRequest describes the local payment a provider order is created for.
type OrderRequest struct {
	PaymentID   uint64
	UserID      uint64
	CourseID    uint64
	CourseTitle string
	Amount      decimal.Decimal
	Currency    string
}

// OrderDescriptor is what the client needs to complete payment at the
// provider. Razorpay checkout needs the order id and public key; Stripe
// needs the hosted checkout URL.
type OrderDescriptor struct {
	Provider    model.Provider `json:"provider"`
	PaymentID   uint64         `json:"paymentId"`
	OrderID     string         `json:"orderId"`
	Amount      int64          `json:"amount"` // minor units
	Currency    string         `json:"currency"`
	KeyID       string         `json:"keyId,omitempty"`
	CheckoutURL string         `json:"checkoutUrl,omitempty"`
}

// RazorpayVerification is the payload Razorpay checkout hands back to the
// client after payment.
type RazorpayVerification struct {
	PaymentID         uint64 // local payment id
	OrderID           string // razorpay_order_id
	ProviderPaymentID string // razorpay_payment_id
	Signature         string // razorpay_signature
}

// StripeVerification identifies a completed Stripe checkout session.
type StripeVerification struct {
	SessionID string
}

// VerificationRequest is a tagged union: Provider selects which of the
// variant fields must be set.
type VerificationRequest struct {
	Provider model.Provider
	Razorpay *RazorpayVerification
	Stripe   *StripeVerification
}

// Validate checks that the variant matching Provider is present.
func (r VerificationRequest) Validate() error {
	switch r.Provider {
	case model.ProviderRazorpay:
		v := r.Razorpay
		if v == nil || v.PaymentID == 0 || v.OrderID == "" || v.ProviderPaymentID == "" || v.Signature == "" {
			return apperr.BadRequest("razorpay verification requires paymentId, orderId, razorpayPaymentId and signature")
		}
	case model.ProviderStripe:
		if r.Stripe == nil || r.Stripe.SessionID == "" {
			return apperr.BadRequest("stripe verification requires sessionId")
		}
	default:
		return apperr.BadRequest("unsupported payment provider")
	}
	return nil
}

// RemoteState is the provider's view of an order.
type RemoteState int

const (
	RemotePending RemoteState = iota
	RemotePaid
	RemoteFailed
)

// Confirmation is the authenticated outcome of a verification or status
// lookup.
type Confirmation struct {
	State             RemoteState
	PaymentID         uint64 // local payment id, when the provider carries it
	ProviderOrderID   string
	ProviderPaymentID string
}

// Gateway is implemented by each payment provider.
type Gateway interface {
	Provider() model.Provider
	// Configured reports whether credentials are present.
	Configured() bool
	// CreateOrder creates the provider-side order or checkout session.
	CreateOrder(ctx context.Context, req OrderRequest) (OrderDescriptor, error)
	// Confirm authenticates a client-supplied verification payload.
	Confirm(ctx context.Context, req VerificationRequest) (Confirmation, error)
	// Status asks the provider about an order; used by reconciliation.
	Status(ctx context.Context, providerOrderID string) (Confirmation, error)
}

// Registry resolves a Gateway by provider.
type Registry struct {
	gateways map[model.Provider]Gateway
}

// NewRegistry builds a registry from the given gateways.
func NewRegistry(gws ...Gateway) *Registry {
	r := &Registry{gateways: make(map[model.Provider]Gateway, len(gws))}
	for _, g := range gws {
		r.gateways[g.Provider()] = g
	}
	return r
}

// Get returns the gateway for p. Unknown providers are BadRequest; known
// providers without credentials are ErrProviderNotConfigured.
func (r *Registry) Get(p model.Provider) (Gateway, error) {
	g, ok := r.gateways[p]
	if !ok {
		return nil, apperr.BadRequest("unsupported payment provider")
	}
	if !g.Configured() {
		return nil, apperr.ErrProviderNotConfigured
	}
	return g, nil
}

// MinorUnits converts a decimal amount into the provider's smallest
// currency unit (paise, cents).
func MinorUnits(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}
