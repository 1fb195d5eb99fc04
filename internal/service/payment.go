package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iliyamo/paycore/internal/apperr"
	"github.com/iliyamo/paycore/internal/config"
	"github.com/iliyamo/paycore/internal/gateway"
	"github.com/iliyamo/paycore/internal/model"
	"github.com/iliyamo/paycore/internal/queue"
	"github.com/iliyamo/paycore/internal/repository"
)

// settlementPendingWarning is shown to a buyer whose payment went through
// but whose settlement is being retried in the background.
const settlementPendingWarning = "payment received; course access is being finalized"

// CreateOrderRequest asks for a provider order for one course. A zero
// Amount means the course price; an empty Currency means the configured
// default.
type CreateOrderRequest struct {
	UserID   uint64
	CourseID uint64
	Provider model.Provider
	Amount   decimal.Decimal
	Currency string
}

// VerifyResult is the outcome of a verification. Settlement is nil when
// this call did not run settlement (the payment was already verified).
type VerifyResult struct {
	PaymentID       uint64
	Status          model.PaymentStatus
	AlreadyVerified bool
	Settlement      *SettlementResult
	Warning         string
}

// PaymentService creates provider orders and verifies their outcome.
type PaymentService struct {
	payments   *repository.PaymentRepo
	courses    *repository.CourseRepo
	gateways   *gateway.Registry
	settlement *SettlementService
	events     EventPublisher
	cfg        config.PaymentsConfig
	log        *slog.Logger
}

func NewPaymentService(
	payments *repository.PaymentRepo,
	courses *repository.CourseRepo,
	gateways *gateway.Registry,
	settlement *SettlementService,
	events EventPublisher,
	cfg config.PaymentsConfig,
	log *slog.Logger,
) *PaymentService {
	return &PaymentService{
		payments:   payments,
		courses:    courses,
		gateways:   gateways,
		settlement: settlement,
		events:     events,
		cfg:        cfg,
		log:        log,
	}
}

// CreateOrder records a PENDING payment and creates the matching order at
// the provider. When the provider is not configured or the provider call
// fails, the error is returned and the payment stays PENDING.
func (s *PaymentService) CreateOrder(ctx context.Context, req CreateOrderRequest) (gateway.OrderDescriptor, error) {
	const op = "service.PaymentService.CreateOrder"

	if _, ok := model.ParseProvider(string(req.Provider)); !ok {
		return gateway.OrderDescriptor{}, apperr.BadRequest("unsupported payment provider")
	}
	course, err := s.courses.GetByID(ctx, req.CourseID)
	if errors.Is(err, sql.ErrNoRows) {
		return gateway.OrderDescriptor{}, apperr.NotFound("course not found")
	}
	if err != nil {
		return gateway.OrderDescriptor{}, fmt.Errorf("%s: %w", op, err)
	}
	owned, err := s.courses.IsEnrolled(ctx, req.UserID, course.ID)
	if err != nil {
		return gateway.OrderDescriptor{}, fmt.Errorf("%s: %w", op, err)
	}
	if owned {
		return gateway.OrderDescriptor{}, apperr.Conflict("course already purchased").WithCode("ALREADY_ENROLLED")
	}

	amount := req.Amount
	if amount.IsZero() {
		amount = course.Price
	}
	if !amount.IsPositive() {
		return gateway.OrderDescriptor{}, apperr.BadRequest("amount must be positive").WithCode("INVALID_AMOUNT")
	}
	if !amount.Equal(course.Price) {
		return gateway.OrderDescriptor{}, apperr.BadRequest("amount does not match the course price").WithCode("AMOUNT_MISMATCH")
	}
	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = strings.ToUpper(s.cfg.DefaultCurrency)
	}
	if len(currency) != 3 {
		return gateway.OrderDescriptor{}, apperr.BadRequest("currency must be an ISO 4217 code")
	}

	p := model.Payment{
		UserID:   req.UserID,
		CourseID: &course.ID,
		Amount:   amount,
		Currency: currency,
		Provider: req.Provider,
	}
	if err := s.payments.Create(ctx, &p); err != nil {
		return gateway.OrderDescriptor{}, fmt.Errorf("%s: %w", op, err)
	}
	log := s.log.With(slog.String("op", op), slog.Uint64("payment_id", p.ID), slog.String("provider", string(p.Provider)))

	gw, err := s.gateways.Get(req.Provider)
	if err != nil {
		log.Warn("provider unavailable for order", slog.Any("err", err))
		return gateway.OrderDescriptor{}, err
	}
	desc, err := gw.CreateOrder(ctx, gateway.OrderRequest{
		PaymentID:   p.ID,
		UserID:      p.UserID,
		CourseID:    course.ID,
		CourseTitle: course.Title,
		Amount:      amount,
		Currency:    currency,
	})
	if err != nil {
		log.Error("provider order creation failed", slog.Any("err", err))
		return gateway.OrderDescriptor{}, err
	}
	if err := s.payments.SetProviderOrderID(ctx, p.ID, desc.OrderID); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return gateway.OrderDescriptor{}, apperr.Conflict("provider order already bound to another payment")
		}
		return gateway.OrderDescriptor{}, fmt.Errorf("%s: %w", op, err)
	}
	log.Info("order created", slog.String("provider_order_id", desc.OrderID))
	return desc, nil
}

// Verify authenticates a provider confirmation for userID's payment, marks
// the payment SUCCESS and settles it. Only the call that moves the payment
// out of PENDING settles; repeats report success without side effects.
// A settlement failure does not undo the payment: the result carries a
// warning and the settlement is queued for retry.
func (s *PaymentService) Verify(ctx context.Context, userID uint64, req gateway.VerificationRequest) (VerifyResult, error) {
	const op = "service.PaymentService.Verify"

	if err := req.Validate(); err != nil {
		return VerifyResult{}, err
	}
	gw, err := s.gateways.Get(req.Provider)
	if err != nil {
		return VerifyResult{}, err
	}
	conf, err := gw.Confirm(ctx, req)
	if err != nil {
		if apperr.KindOf(err) == apperr.KindInternal {
			return VerifyResult{}, fmt.Errorf("%s: %w", op, err)
		}
		return VerifyResult{}, err
	}

	p, err := s.payments.GetByID(ctx, conf.PaymentID)
	if errors.Is(err, sql.ErrNoRows) {
		return VerifyResult{}, apperr.NotFound("payment not found")
	}
	if err != nil {
		return VerifyResult{}, fmt.Errorf("%s: %w", op, err)
	}
	if p.UserID != userID || p.Provider != req.Provider || p.ProviderOrderID == nil || *p.ProviderOrderID != conf.ProviderOrderID {
		return VerifyResult{}, apperr.NotFound("payment not found")
	}

	switch conf.State {
	case gateway.RemotePaid:
		return s.complete(ctx, p, conf.ProviderPaymentID)
	case gateway.RemoteFailed:
		if _, err := s.payments.MarkFailed(ctx, p.ID); err != nil {
			return VerifyResult{}, fmt.Errorf("%s: %w", op, err)
		}
		return VerifyResult{}, apperr.ErrPaymentVerification.Wrap(errors.New("checkout expired"))
	default:
		return VerifyResult{}, apperr.ErrPaymentVerification.Wrap(errors.New("payment not completed"))
	}
}

// complete moves p to SUCCESS and, if this call made the move, settles it.
func (s *PaymentService) complete(ctx context.Context, p model.Payment, providerPaymentID string) (VerifyResult, error) {
	const op = "service.PaymentService.complete"

	res := VerifyResult{PaymentID: p.ID}
	flipped, err := s.payments.MarkSucceeded(ctx, p.ID, providerPaymentID)
	if err != nil {
		return res, fmt.Errorf("%s: %w", op, err)
	}
	if !flipped {
		cur, err := s.payments.GetByID(ctx, p.ID)
		if err != nil {
			return res, fmt.Errorf("%s: %w", op, err)
		}
		if cur.Status == model.PaymentFailed {
			s.log.Error("provider reports paid for a failed payment; refund or manual settlement needed",
				slog.Uint64("payment_id", p.ID),
				slog.String("provider_payment_id", providerPaymentID))
			return res, apperr.BadRequest("payment has already failed").WithCode("PAYMENT_FAILED")
		}
		res.Status = cur.Status
		res.AlreadyVerified = true
		return res, nil
	}
	res.Status = model.PaymentSuccess

	sr, err := s.settlement.Settle(ctx, p.ID)
	if err != nil {
		s.log.Error("settlement failed after payment success; queued for retry",
			slog.Uint64("payment_id", p.ID), slog.Any("err", err))
		s.queueRetry(ctx, p.ID, err)
		res.Warning = settlementPendingWarning
		return res, nil
	}
	res.Settlement = &sr
	res.Warning = sr.Warning
	return res, nil
}

func (s *PaymentService) queueRetry(ctx context.Context, paymentID uint64, cause error) {
	ev := queue.SettlementRetryEvent{
		PaymentID: paymentID,
		Reason:    cause.Error(),
		FailedAt:  time.Now().UTC().Format(time.RFC3339),
	}
	if err := s.events.PublishSettlementRetry(ctx, ev); err != nil {
		s.log.Warn("failed to queue settlement retry; reconciliation will pick it up",
			slog.Uint64("payment_id", paymentID), slog.Any("err", err))
	}
}
