package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/paycore/internal/apperr"
	"github.com/iliyamo/paycore/internal/config"
	"github.com/iliyamo/paycore/internal/model"
)

func newRazorpay(t *testing.T, h http.HandlerFunc) *Razorpay {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewRazorpay(config.RazorpayConfig{KeyID: "rzp_test", KeySecret: "shh", BaseURL: srv.URL}, NewHTTPClient(2*time.Second))
}

func newStripe(t *testing.T, h http.HandlerFunc) *Stripe {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewStripe(config.StripeConfig{SecretKey: "sk_test", BaseURL: srv.URL, SuccessURL: "http://ok", CancelURL: "http://cancel"}, NewHTTPClient(2*time.Second))
}

func TestMinorUnits(t *testing.T) {
	assert.Equal(t, int64(49950), MinorUnits(decimal.RequireFromString("499.50")))
	assert.Equal(t, int64(100), MinorUnits(decimal.RequireFromString("0.999")))
}

func TestRegistry(t *testing.T) {
	client := NewHTTPClient(time.Second)
	reg := NewRegistry(
		NewRazorpay(config.RazorpayConfig{}, client),
		NewStripe(config.StripeConfig{SecretKey: "sk"}, client),
	)

	_, err := reg.Get(model.ProviderRazorpay)
	assert.ErrorIs(t, err, apperr.ErrProviderNotConfigured)

	g, err := reg.Get(model.ProviderStripe)
	require.NoError(t, err)
	assert.Equal(t, model.ProviderStripe, g.Provider())

	_, err = reg.Get(model.Provider("PAYPAL"))
	assert.Equal(t, apperr.KindBadRequest, apperr.KindOf(err))
}

func TestVerificationRequestValidate(t *testing.T) {
	cases := []struct {
		name string
		req  VerificationRequest
		ok   bool
	}{
		{"razorpay ok", VerificationRequest{Provider: model.ProviderRazorpay, Razorpay: &RazorpayVerification{PaymentID: 1, OrderID: "o", ProviderPaymentID: "p", Signature: "s"}}, true},
		{"razorpay missing variant", VerificationRequest{Provider: model.ProviderRazorpay, Stripe: &StripeVerification{SessionID: "x"}}, false},
		{"razorpay missing signature", VerificationRequest{Provider: model.ProviderRazorpay, Razorpay: &RazorpayVerification{PaymentID: 1, OrderID: "o", ProviderPaymentID: "p"}}, false},
		{"stripe ok", VerificationRequest{Provider: model.ProviderStripe, Stripe: &StripeVerification{SessionID: "cs_1"}}, true},
		{"stripe empty session", VerificationRequest{Provider: model.ProviderStripe, Stripe: &StripeVerification{}}, false},
		{"unknown provider", VerificationRequest{Provider: "X"}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.req.Validate()
			if tc.ok {
				assert.NoError(t, err)
				return
			}
			assert.Equal(t, apperr.KindBadRequest, apperr.KindOf(err))
		})
	}
}

func TestRazorpayCreateOrder(t *testing.T) {
	rp := newRazorpay(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/orders", r.URL.Path)
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "rzp_test", user)
		assert.Equal(t, "shh", pass)

		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.EqualValues(t, 49900, body["amount"])
		assert.Equal(t, "INR", body["currency"])
		assert.Equal(t, "payment_7", body["receipt"])

		_ = json.NewEncoder(w).Encode(map[string]any{"id": "order_abc", "amount": 49900, "currency": "INR", "status": "created"})
	})

	desc, err := rp.CreateOrder(context.Background(), OrderRequest{PaymentID: 7, UserID: 1, CourseID: 2, Amount: decimal.RequireFromString("499"), Currency: "INR"})
	require.NoError(t, err)
	assert.Equal(t, "order_abc", desc.OrderID)
	assert.Equal(t, int64(49900), desc.Amount)
	assert.Equal(t, "rzp_test", desc.KeyID)
	assert.Equal(t, uint64(7), desc.PaymentID)
}

func TestRazorpayProviderErrors(t *testing.T) {
	t.Run("5xx is unavailable", func(t *testing.T) {
		rp := newRazorpay(t, func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, `{"error":"boom"}`, http.StatusBadGateway)
		})
		_, err := rp.CreateOrder(context.Background(), OrderRequest{PaymentID: 1, Amount: decimal.NewFromInt(1), Currency: "INR"})
		assert.Equal(t, apperr.KindUnavailable, apperr.KindOf(err))
	})
	t.Run("4xx is bad request", func(t *testing.T) {
		rp := newRazorpay(t, func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, `{"error":{"description":"bad amount"}}`, http.StatusBadRequest)
		})
		_, err := rp.CreateOrder(context.Background(), OrderRequest{PaymentID: 1, Amount: decimal.NewFromInt(1), Currency: "INR"})
		assert.Equal(t, apperr.KindBadRequest, apperr.KindOf(err))
		e, ok := apperr.As(err)
		require.True(t, ok)
		assert.NotContains(t, e.Message, "bad amount")
	})
	t.Run("timeout is unavailable", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			time.Sleep(200 * time.Millisecond)
		}))
		t.Cleanup(srv.Close)
		rp := NewRazorpay(config.RazorpayConfig{KeyID: "k", KeySecret: "s", BaseURL: srv.URL}, NewHTTPClient(20*time.Millisecond))
		_, err := rp.Status(context.Background(), "order_x")
		assert.Equal(t, apperr.KindUnavailable, apperr.KindOf(err))
	})
}

func TestRazorpayConfirm(t *testing.T) {
	rp := NewRazorpay(config.RazorpayConfig{KeyID: "k", KeySecret: "shh"}, nil)
	sig := rp.Signature("order_1", "pay_1")

	conf, err := rp.Confirm(context.Background(), VerificationRequest{
		Provider: model.ProviderRazorpay,
		Razorpay: &RazorpayVerification{PaymentID: 3, OrderID: "order_1", ProviderPaymentID: "pay_1", Signature: sig},
	})
	require.NoError(t, err)
	assert.Equal(t, RemotePaid, conf.State)
	assert.Equal(t, uint64(3), conf.PaymentID)
	assert.Equal(t, "pay_1", conf.ProviderPaymentID)

	_, err = rp.Confirm(context.Background(), VerificationRequest{
		Provider: model.ProviderRazorpay,
		Razorpay: &RazorpayVerification{PaymentID: 3, OrderID: "order_1", ProviderPaymentID: "pay_2", Signature: sig},
	})
	assert.ErrorIs(t, err, apperr.ErrPaymentVerification)
}

func TestRazorpayStatus(t *testing.T) {
	rp := newRazorpay(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/orders/order_9/payments", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]any{"items": []map[string]string{
			{"id": "pay_a", "status": "failed"},
			{"id": "pay_b", "status": "captured"},
		}})
	})
	conf, err := rp.Status(context.Background(), "order_9")
	require.NoError(t, err)
	assert.Equal(t, RemotePaid, conf.State)
	assert.Equal(t, "pay_b", conf.ProviderPaymentID)
}

func TestStripeCreateOrder(t *testing.T) {
	st := newStripe(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/checkout/sessions", r.URL.Path)
		assert.Equal(t, "Bearer sk_test", r.Header.Get("Authorization"))
		assert.Equal(t, "payment-5", r.Header.Get("Idempotency-Key"))
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "payment", r.PostForm.Get("mode"))
		assert.Equal(t, "inr", r.PostForm.Get("line_items[0][price_data][currency]"))
		assert.Equal(t, "25000", r.PostForm.Get("line_items[0][price_data][unit_amount]"))
		assert.Equal(t, "Go basics", r.PostForm.Get("line_items[0][price_data][product_data][name]"))
		assert.Equal(t, "5", r.PostForm.Get("metadata[paymentId]"))

		_ = json.NewEncoder(w).Encode(map[string]any{"id": "cs_1", "url": "https://checkout/cs_1", "amount_total": 25000, "currency": "inr"})
	})

	desc, err := st.CreateOrder(context.Background(), OrderRequest{PaymentID: 5, CourseID: 2, CourseTitle: "Go basics", Amount: decimal.NewFromInt(250), Currency: "INR"})
	require.NoError(t, err)
	assert.Equal(t, "cs_1", desc.OrderID)
	assert.Equal(t, "https://checkout/cs_1", desc.CheckoutURL)
	assert.Equal(t, "INR", desc.Currency)
}

func TestStripeConfirm(t *testing.T) {
	sessions := map[string]map[string]any{
		"cs_paid":    {"id": "cs_paid", "status": "complete", "payment_status": "paid", "payment_intent": "pi_1", "metadata": map[string]string{"paymentId": "11"}},
		"cs_open":    {"id": "cs_open", "status": "open", "payment_status": "unpaid", "metadata": map[string]string{"paymentId": "12"}},
		"cs_expired": {"id": "cs_expired", "status": "expired", "payment_status": "unpaid", "metadata": map[string]string{"paymentId": "13"}},
		"cs_nometa":  {"id": "cs_nometa", "status": "complete", "payment_status": "paid"},
	}
	st := newStripe(t, func(w http.ResponseWriter, r *http.Request) {
		id := r.URL.Path[len("/v1/checkout/sessions/"):]
		s, ok := sessions[id]
		if !ok {
			http.Error(w, `{"error":{"message":"No such checkout.session"}}`, http.StatusNotFound)
			return
		}
		_ = json.NewEncoder(w).Encode(s)
	})
	verify := func(id string) (Confirmation, error) {
		return st.Confirm(context.Background(), VerificationRequest{Provider: model.ProviderStripe, Stripe: &StripeVerification{SessionID: id}})
	}

	conf, err := verify("cs_paid")
	require.NoError(t, err)
	assert.Equal(t, RemotePaid, conf.State)
	assert.Equal(t, uint64(11), conf.PaymentID)
	assert.Equal(t, "pi_1", conf.ProviderPaymentID)

	conf, err = verify("cs_open")
	require.NoError(t, err)
	assert.Equal(t, RemotePending, conf.State)

	conf, err = verify("cs_expired")
	require.NoError(t, err)
	assert.Equal(t, RemoteFailed, conf.State)

	_, err = verify("cs_nometa")
	assert.ErrorIs(t, err, apperr.ErrPaymentVerification)

	_, err = verify("cs_unknown")
	assert.Equal(t, apperr.KindBadRequest, apperr.KindOf(err))

	_, err = st.Confirm(context.Background(), VerificationRequest{Provider: model.ProviderRazorpay, Razorpay: &RazorpayVerification{}})
	assert.Equal(t, apperr.KindBadRequest, apperr.KindOf(err))
}
