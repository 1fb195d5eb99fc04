package gateway

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/iliyamo/paycore/internal/apperr"
	"github.com/iliyamo/paycore/internal/config"
	"github.com/iliyamo/paycore/internal/model"
)

// Stripe implements Gateway against Stripe Checkout Sessions.
type Stripe struct {
	secret     string
	baseURL    string
	successURL string
	cancelURL  string
	client     *http.Client
}

func NewStripe(cfg config.StripeConfig, client *http.Client) *Stripe {
	return &Stripe{
		secret:     cfg.SecretKey,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		successURL: cfg.SuccessURL,
		cancelURL:  cfg.CancelURL,
		client:     client,
	}
}

func (s *Stripe) Provider() model.Provider { return model.ProviderStripe }

func (s *Stripe) Configured() bool { return s.secret != "" }

type stripeSession struct {
	ID            string            `json:"id"`
	URL           string            `json:"url"`
	Status        string            `json:"status"`         // open, complete, expired
	PaymentStatus string            `json:"payment_status"` // paid, unpaid, no_payment_required
	PaymentIntent string            `json:"payment_intent"`
	AmountTotal   int64             `json:"amount_total"`
	Currency      string            `json:"currency"`
	Metadata      map[string]string `json:"metadata"`
}

func (s *Stripe) CreateOrder(ctx context.Context, req OrderRequest) (OrderDescriptor, error) {
	const op = "gateway.Stripe.CreateOrder"

	paymentID := strconv.FormatUint(req.PaymentID, 10)
	name := req.CourseTitle
	if name == "" {
		name = "Course " + strconv.FormatUint(req.CourseID, 10)
	}
	form := url.Values{}
	form.Set("mode", "payment")
	form.Set("success_url", s.successURL)
	form.Set("cancel_url", s.cancelURL)
	form.Set("client_reference_id", paymentID)
	form.Set("line_items[0][quantity]", "1")
	form.Set("line_items[0][price_data][currency]", strings.ToLower(req.Currency))
	form.Set("line_items[0][price_data][unit_amount]", strconv.FormatInt(MinorUnits(req.Amount), 10))
	form.Set("line_items[0][price_data][product_data][name]", name)
	form.Set("metadata[paymentId]", paymentID)
	form.Set("metadata[userId]", strconv.FormatUint(req.UserID, 10))
	form.Set("metadata[courseId]", strconv.FormatUint(req.CourseID, 10))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/v1/checkout/sessions", strings.NewReader(form.Encode()))
	if err != nil {
		return OrderDescriptor{}, fmt.Errorf("%s: %w", op, err)
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	httpReq.Header.Set("Authorization", "Bearer "+s.secret)
	// a retried create for the same local payment returns the same session
	httpReq.Header.Set("Idempotency-Key", "payment-"+paymentID)

	var sess stripeSession
	if err := do(s.client, httpReq, &sess); err != nil {
		return OrderDescriptor{}, fmt.Errorf("%s: %w", op, err)
	}
	if sess.ID == "" {
		return OrderDescriptor{}, fmt.Errorf("%s: %w", op, errProviderUnavailable.Wrap(fmt.Errorf("session id missing")))
	}
	return OrderDescriptor{
		Provider:    model.ProviderStripe,
		PaymentID:   req.PaymentID,
		OrderID:     sess.ID,
		Amount:      sess.AmountTotal,
		Currency:    strings.ToUpper(sess.Currency),
		CheckoutURL: sess.URL,
	}, nil
}

// Confirm retrieves the session from Stripe; the client-supplied session id
// is never trusted on its own.
func (s *Stripe) Confirm(ctx context.Context, req VerificationRequest) (Confirmation, error) {
	if req.Provider != model.ProviderStripe {
		return Confirmation{}, apperr.BadRequest("verification request is not for stripe")
	}
	if err := req.Validate(); err != nil {
		return Confirmation{}, err
	}
	conf, err := s.Status(ctx, req.Stripe.SessionID)
	if err != nil {
		return Confirmation{}, err
	}
	if conf.PaymentID == 0 {
		return Confirmation{}, apperr.ErrPaymentVerification.Wrap(fmt.Errorf("session %s carries no paymentId", req.Stripe.SessionID))
	}
	return conf, nil
}

func (s *Stripe) Status(ctx context.Context, sessionID string) (Confirmation, error) {
	const op = "gateway.Stripe.Status"

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/v1/checkout/sessions/"+url.PathEscape(sessionID), nil)
	if err != nil {
		return Confirmation{}, fmt.Errorf("%s: %w", op, err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+s.secret)

	var sess stripeSession
	if err := do(s.client, httpReq, &sess); err != nil {
		return Confirmation{}, fmt.Errorf("%s: %w", op, err)
	}

	conf := Confirmation{State: RemotePending, ProviderOrderID: sess.ID, ProviderPaymentID: sess.PaymentIntent}
	if id, err := strconv.ParseUint(sess.Metadata["paymentId"], 10, 64); err == nil {
		conf.PaymentID = id
	}
	switch {
	case sess.PaymentStatus == "paid":
		conf.State = RemotePaid
	case sess.Status == "expired":
		conf.State = RemoteFailed
	}
	return conf, nil
}
