package handler

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"github.com/iliyamo/paycore/internal/apperr"
	"github.com/iliyamo/paycore/internal/gateway"
	"github.com/iliyamo/paycore/internal/model"
	"github.com/iliyamo/paycore/internal/service"
)

// PaymentHandler exposes order creation and verification to buyers.
type PaymentHandler struct {
	Payments *service.PaymentService
	Log      *slog.Logger
}

func NewPaymentHandler(p *service.PaymentService, log *slog.Logger) *PaymentHandler {
	return &PaymentHandler{Payments: p, Log: log}
}

type createOrderReq struct {
	CourseID uint64          `json:"courseId"`
	Provider string          `json:"provider"`
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
}

// verifyReq is a tagged union: provider selects which of the nested
// objects must be present.
type verifyReq struct {
	Provider string `json:"provider"`
	Razorpay *struct {
		PaymentID         uint64 `json:"paymentId"`
		OrderID           string `json:"orderId"`
		RazorpayPaymentID string `json:"razorpayPaymentId"`
		Signature         string `json:"signature"`
	} `json:"razorpay"`
	Stripe *struct {
		SessionID string `json:"sessionId"`
	} `json:"stripe"`
}

type enrollmentResp struct {
	ID       uint64 `json:"id"`
	CourseID uint64 `json:"courseId"`
	Created  bool   `json:"created"`
}

type commissionResp struct {
	BeneficiaryID uint64          `json:"beneficiaryId"`
	Amount        decimal.Decimal `json:"amount"`
	Percentage    int             `json:"percentage"`
}

type settlementResp struct {
	Settled        bool            `json:"settled"`
	AlreadySettled bool            `json:"alreadySettled"`
	CourseMissing  bool            `json:"courseMissing,omitempty"`
	Enrollment     *enrollmentResp `json:"enrollment,omitempty"`
	Commission     *commissionResp `json:"commission,omitempty"`
	Warning        string          `json:"warning,omitempty"`
}

type verifyResp struct {
	PaymentID       uint64          `json:"paymentId"`
	Status          string          `json:"status"`
	AlreadyVerified bool            `json:"alreadyVerified"`
	Settlement      *settlementResp `json:"settlement,omitempty"`
	Warning         string          `json:"warning,omitempty"`
}

func (r verifyReq) toRequest() (gateway.VerificationRequest, error) {
	p, known := model.ParseProvider(r.Provider)
	if !known {
		return gateway.VerificationRequest{}, apperr.BadRequest("unknown provider").WithCode("INVALID_PROVIDER")
	}
	out := gateway.VerificationRequest{Provider: p}
	if r.Razorpay != nil {
		out.Razorpay = &gateway.RazorpayVerification{
			PaymentID:         r.Razorpay.PaymentID,
			OrderID:           r.Razorpay.OrderID,
			ProviderPaymentID: r.Razorpay.RazorpayPaymentID,
			Signature:         r.Razorpay.Signature,
		}
	}
	if r.Stripe != nil {
		out.Stripe = &gateway.StripeVerification{SessionID: r.Stripe.SessionID}
	}
	return out, out.Validate()
}

func toSettlementResp(s *service.SettlementResult) *settlementResp {
	if s == nil {
		return nil
	}
	out := &settlementResp{
		Settled:        s.Settled,
		AlreadySettled: s.AlreadySettled,
		CourseMissing:  s.CourseMissing,
		Warning:        s.Warning,
	}
	if s.Enrollment != nil {
		out.Enrollment = &enrollmentResp{ID: s.Enrollment.ID, CourseID: s.Enrollment.CourseID, Created: s.EnrollmentCreated}
	}
	if s.Commission != nil {
		out.Commission = &commissionResp{
			BeneficiaryID: s.Commission.BeneficiaryID,
			Amount:        s.Commission.Amount,
			Percentage:    s.Commission.Percentage,
		}
	}
	return out
}

// CreateOrder handles POST /payments/order.
func (h *PaymentHandler) CreateOrder(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return fail(c, h.Log, err)
	}
	var req createOrderReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	if req.CourseID == 0 {
		return badRequest(c, "courseId required")
	}
	prov, known := model.ParseProvider(req.Provider)
	if !known {
		return fail(c, h.Log, apperr.BadRequest("unknown provider").WithCode("INVALID_PROVIDER"))
	}
	ctx, cancel := withTimeout(c)
	defer cancel()

	order, err := h.Payments.CreateOrder(ctx, service.CreateOrderRequest{
		UserID:   p.UserID,
		CourseID: req.CourseID,
		Provider: prov,
		Amount:   req.Amount,
		Currency: req.Currency,
	})
	if err != nil {
		return fail(c, h.Log, err)
	}
	return ok(c, http.StatusCreated, order)
}

// Verify handles POST /payments/verify. A payment that went through but
// whose settlement is pending is still a success; the warning tells the
// client that course access follows shortly.
func (h *PaymentHandler) Verify(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return fail(c, h.Log, err)
	}
	var req verifyReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	vr, err := req.toRequest()
	if err != nil {
		return fail(c, h.Log, err)
	}
	ctx, cancel := withTimeout(c)
	defer cancel()

	res, err := h.Payments.Verify(ctx, p.UserID, vr)
	if err != nil {
		return fail(c, h.Log, err)
	}
	return ok(c, http.StatusOK, verifyResp{
		PaymentID:       res.PaymentID,
		Status:          string(res.Status),
		AlreadyVerified: res.AlreadyVerified,
		Settlement:      toSettlementResp(res.Settlement),
		Warning:         res.Warning,
	})
}
