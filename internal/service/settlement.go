package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iliyamo/paycore/internal/apperr"
	"github.com/iliyamo/paycore/internal/model"
	"github.com/iliyamo/paycore/internal/queue"
	"github.com/iliyamo/paycore/internal/repository"
)

// SettlementResult reports what a settlement run did. Exactly one of
// Settled and AlreadySettled is true on success.
type SettlementResult struct {
	PaymentID         uint64
	Settled           bool
	AlreadySettled    bool
	CourseMissing     bool
	Enrollment        *model.Enrollment
	EnrollmentCreated bool
	Commission        *model.Commission
	Warning           string
}

// SettlementService turns a SUCCESS payment into its enrollment and
// commission. The payment's settled_at column is claimed inside the same
// transaction, so a payment settles once no matter how many verifiers,
// sweeps or retry consumers reach it.
type SettlementService struct {
	db          *sql.DB
	payments    *repository.PaymentRepo
	courses     *repository.CourseRepo
	commissions *repository.CommissionRepo
	wallets     *repository.WalletRepo
	percent     int
	events      EventPublisher
	log         *slog.Logger
}

func NewSettlementService(
	db *sql.DB,
	payments *repository.PaymentRepo,
	courses *repository.CourseRepo,
	commissions *repository.CommissionRepo,
	wallets *repository.WalletRepo,
	commissionPercent int,
	events EventPublisher,
	log *slog.Logger,
) *SettlementService {
	return &SettlementService{
		db:          db,
		payments:    payments,
		courses:     courses,
		commissions: commissions,
		wallets:     wallets,
		percent:     commissionPercent,
		events:      events,
		log:         log,
	}
}

// CommissionFor returns percent of amount, rounded to cents.
func CommissionFor(amount decimal.Decimal, percent int) decimal.Decimal {
	return amount.Mul(decimal.NewFromInt(int64(percent))).Div(decimal.NewFromInt(100)).Round(2)
}

// Settle grants the course to the buyer and pays the course subadmin's
// commission into their wallet. A course that no longer exists settles
// with CourseMissing and grants nothing.
func (s *SettlementService) Settle(ctx context.Context, paymentID uint64) (SettlementResult, error) {
	const op = "service.SettlementService.Settle"
	log := s.log.With(slog.String("op", op), slog.Uint64("payment_id", paymentID))

	res := SettlementResult{PaymentID: paymentID}
	p, err := s.payments.GetByID(ctx, paymentID)
	if errors.Is(err, sql.ErrNoRows) {
		return res, apperr.NotFound("payment not found")
	}
	if err != nil {
		return res, fmt.Errorf("%s: %w", op, err)
	}
	if p.Status != model.PaymentSuccess {
		return res, apperr.BadRequest("payment is not successful").WithCode("PAYMENT_NOT_SUCCESSFUL")
	}
	if p.SettledAt != nil {
		res.AlreadySettled = true
		return res, nil
	}

	err = withTx(ctx, s.db, func(tx *sql.Tx) error {
		claimed, err := s.payments.ClaimSettlementTx(ctx, tx, p.ID)
		if err != nil {
			return fmt.Errorf("claim: %w", err)
		}
		if !claimed {
			res.AlreadySettled = true
			return nil
		}
		res.Settled = true

		if p.CourseID == nil {
			res.CourseMissing = true
			return nil
		}
		course, err := s.courses.GetByIDTx(ctx, tx, *p.CourseID)
		if errors.Is(err, sql.ErrNoRows) {
			res.CourseMissing = true
			return nil
		}
		if err != nil {
			return fmt.Errorf("load course: %w", err)
		}

		enr, created, err := s.courses.EnrollTx(ctx, tx, p.UserID, course.ID)
		if err != nil {
			return fmt.Errorf("enroll: %w", err)
		}
		res.Enrollment, res.EnrollmentCreated = &enr, created

		if course.SubadminID == nil || s.percent <= 0 {
			return nil
		}
		amount := CommissionFor(p.Amount, s.percent)
		if !amount.IsPositive() {
			return nil
		}
		c := model.Commission{BeneficiaryID: *course.SubadminID, PaymentID: p.ID, Amount: amount, Percentage: s.percent}
		created, err = s.commissions.CreateTx(ctx, tx, &c)
		if err != nil {
			return fmt.Errorf("commission: %w", err)
		}
		if !created {
			return nil
		}
		res.Commission = &c
		entry := model.WalletTransaction{
			UserID:      c.BeneficiaryID,
			Amount:      c.Amount,
			Description: fmt.Sprintf("commission for payment #%d", p.ID),
			PaymentID:   &p.ID,
		}
		if err := s.wallets.EnsureTx(ctx, tx, c.BeneficiaryID); err != nil {
			return fmt.Errorf("open beneficiary wallet: %w", err)
		}
		if err := s.wallets.ApplyTx(ctx, tx, &entry); err != nil {
			return fmt.Errorf("credit commission: %w", err)
		}
		return nil
	})
	if err != nil {
		return SettlementResult{PaymentID: paymentID}, fmt.Errorf("%s: %w", op, err)
	}

	if res.Settled {
		if res.CourseMissing {
			res.Warning = "course no longer exists; nothing was granted"
			log.Warn("settled payment without course")
		} else {
			log.Info("payment settled", slog.Bool("enrollment_created", res.EnrollmentCreated), slog.Bool("commission", res.Commission != nil))
		}
		s.publishSettled(ctx, p, res)
	}
	return res, nil
}

func (s *SettlementService) publishSettled(ctx context.Context, p model.Payment, res SettlementResult) {
	ev := queue.PaymentSettledEvent{
		PaymentID: p.ID,
		UserID:    p.UserID,
		CourseID:  p.CourseID,
		Provider:  string(p.Provider),
		Amount:    p.Amount.StringFixed(2),
		Currency:  p.Currency,
		SettledAt: time.Now().UTC().Format(time.RFC3339),
	}
	if res.Enrollment != nil {
		ev.EnrollmentID = res.Enrollment.ID
	}
	if res.Commission != nil {
		ev.CommissionID = res.Commission.ID
		ev.CommissionAmount = res.Commission.Amount.StringFixed(2)
	}
	if err := s.events.PublishSettled(ctx, ev); err != nil {
		s.log.Warn("failed to publish payment.settled", slog.Uint64("payment_id", p.ID), slog.Any("err", err))
	}
}
