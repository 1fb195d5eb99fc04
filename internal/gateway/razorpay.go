package gateway

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/iliyamo/paycore/internal/apperr"
	"github.com/iliyamo/paycore/internal/config"
	"github.com/iliyamo/paycore/internal/model"
)

// Razorpay implements Gateway against the Razorpay Orders API.
type Razorpay struct {
	keyID   string
	secret  string
	baseURL string
	client  *http.Client
}

func NewRazorpay(cfg config.RazorpayConfig, client *http.Client) *Razorpay {
	return &Razorpay{
		keyID:   cfg.KeyID,
		secret:  cfg.KeySecret,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		client:  client,
	}
}

func (r *Razorpay) Provider() model.Provider { return model.ProviderRazorpay }

func (r *Razorpay) Configured() bool { return r.keyID != "" && r.secret != "" }

type razorpayOrder struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Status   string `json:"status"`
}

func (r *Razorpay) CreateOrder(ctx context.Context, req OrderRequest) (OrderDescriptor, error) {
	const op = "gateway.Razorpay.CreateOrder"

	body, err := json.Marshal(map[string]any{
		"amount":   MinorUnits(req.Amount),
		"currency": req.Currency,
		"receipt":  "payment_" + strconv.FormatUint(req.PaymentID, 10),
		"notes": map[string]string{
			"paymentId": strconv.FormatUint(req.PaymentID, 10),
			"userId":    strconv.FormatUint(req.UserID, 10),
			"courseId":  strconv.FormatUint(req.CourseID, 10),
		},
	})
	if err != nil {
		return OrderDescriptor{}, fmt.Errorf("%s: %w", op, err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/v1/orders", bytes.NewReader(body))
	if err != nil {
		return OrderDescriptor{}, fmt.Errorf("%s: %w", op, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.SetBasicAuth(r.keyID, r.secret)

	var order razorpayOrder
	if err := do(r.client, httpReq, &order); err != nil {
		return OrderDescriptor{}, fmt.Errorf("%s: %w", op, err)
	}
	if order.ID == "" {
		return OrderDescriptor{}, fmt.Errorf("%s: %w", op, errProviderUnavailable.Wrap(fmt.Errorf("order id missing")))
	}
	return OrderDescriptor{
		Provider:  model.ProviderRazorpay,
		PaymentID: req.PaymentID,
		OrderID:   order.ID,
		Amount:    order.Amount,
		Currency:  order.Currency,
		KeyID:     r.keyID,
	}, nil
}

// Signature computes the checkout signature Razorpay attaches to a
// successful payment: hex(HMAC-SHA256(secret, orderID + "|" + paymentID)).
func (r *Razorpay) Signature(orderID, paymentID string) string {
	mac := hmac.New(sha256.New, []byte(r.secret))
	mac.Write([]byte(orderID + "|" + paymentID))
	return hex.EncodeToString(mac.Sum(nil))
}

// Confirm checks the checkout signature locally; no provider call is made.
func (r *Razorpay) Confirm(_ context.Context, req VerificationRequest) (Confirmation, error) {
	if req.Provider != model.ProviderRazorpay {
		return Confirmation{}, apperr.BadRequest("verification request is not for razorpay")
	}
	if err := req.Validate(); err != nil {
		return Confirmation{}, err
	}
	v := req.Razorpay
	expected := r.Signature(v.OrderID, v.ProviderPaymentID)
	if !hmac.Equal([]byte(expected), []byte(strings.ToLower(v.Signature))) {
		return Confirmation{}, apperr.ErrPaymentVerification
	}
	return Confirmation{
		State:             RemotePaid,
		PaymentID:         v.PaymentID,
		ProviderOrderID:   v.OrderID,
		ProviderPaymentID: v.ProviderPaymentID,
	}, nil
}

type razorpayPayments struct {
	Items []struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	} `json:"items"`
}

// Status lists the payments made against an order. A captured payment
// means the order is paid; anything else is still pending from our side,
// expiry is decided by the caller.
func (r *Razorpay) Status(ctx context.Context, providerOrderID string) (Confirmation, error) {
	const op = "gateway.Razorpay.Status"

	u := r.baseURL + "/v1/orders/" + url.PathEscape(providerOrderID) + "/payments"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return Confirmation{}, fmt.Errorf("%s: %w", op, err)
	}
	httpReq.SetBasicAuth(r.keyID, r.secret)

	var list razorpayPayments
	if err := do(r.client, httpReq, &list); err != nil {
		return Confirmation{}, fmt.Errorf("%s: %w", op, err)
	}
	for _, p := range list.Items {
		if p.Status == "captured" {
			return Confirmation{State: RemotePaid, ProviderOrderID: providerOrderID, ProviderPaymentID: p.ID}, nil
		}
	}
	return Confirmation{State: RemotePending, ProviderOrderID: providerOrderID}, nil
}
