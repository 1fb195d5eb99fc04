package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/paycore/internal/config"
	"github.com/iliyamo/paycore/internal/gateway"
	"github.com/iliyamo/paycore/internal/model"
	"github.com/iliyamo/paycore/internal/repository"
)

const (
	reconcileLockKey = "paycore:reconcile:lock"
	reconcileBatch   = 100
)

// releaseLock deletes the lock only while it still holds our token, so a
// sweep that outlived its TTL cannot release a lock another instance took.
var releaseLock = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
	return redis.call('DEL', KEYS[1])
end
return 0
`)

// SweepReport summarizes one reconciliation pass.
type SweepReport struct {
	Skipped       bool // another instance holds the lock
	Checked       int
	MarkedSuccess int
	MarkedFailed  int
	Expired       int // failed by age alone; a late capture needs manual follow-up
	Settled       int
	Errors        int
	TokensPurged  int64
}

// Reconciler repairs payments that a crashed or interrupted verify left
// behind: PENDING payments the provider reports as paid or expired, and
// SUCCESS payments whose settlement never committed.
type Reconciler struct {
	payments   *repository.PaymentRepo
	tokens     *repository.TokenRepo
	gateways   *gateway.Registry
	paymentSvc *PaymentService
	settlement *SettlementService
	rdb        *redis.Client // nil runs without the lock
	cfg        config.PaymentsConfig
	log        *slog.Logger
	now        func() time.Time
}

func NewReconciler(
	payments *repository.PaymentRepo,
	tokens *repository.TokenRepo,
	gateways *gateway.Registry,
	paymentSvc *PaymentService,
	settlement *SettlementService,
	rdb *redis.Client,
	cfg config.PaymentsConfig,
	log *slog.Logger,
) *Reconciler {
	return &Reconciler{
		payments:   payments,
		tokens:     tokens,
		gateways:   gateways,
		paymentSvc: paymentSvc,
		settlement: settlement,
		rdb:        rdb,
		cfg:        cfg,
		log:        log.With(slog.String("component", "reconciler")),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Run sweeps every RECONCILE_INTERVAL until ctx is cancelled.
func (r *Reconciler) Run(ctx context.Context) {
	interval := r.cfg.ReconcileInterval
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			rep, err := r.Sweep(ctx)
			if err != nil {
				r.log.Error("sweep failed", slog.Any("err", err))
				continue
			}
			if !rep.Skipped {
				r.log.Info("sweep finished",
					slog.Int("checked", rep.Checked),
					slog.Int("marked_success", rep.MarkedSuccess),
					slog.Int("marked_failed", rep.MarkedFailed),
					slog.Int("expired", rep.Expired),
					slog.Int("settled", rep.Settled),
					slog.Int("errors", rep.Errors))
			}
		}
	}
}

// Sweep runs one pass. Every repair goes through the same guarded updates
// as a live verify, so overlapping sweeps are safe; the lock only keeps
// instances from doing the same provider calls twice.
func (r *Reconciler) Sweep(ctx context.Context) (SweepReport, error) {
	const op = "service.Reconciler.Sweep"

	release, ok := r.lock(ctx)
	if !ok {
		return SweepReport{Skipped: true}, nil
	}
	defer release()

	var rep SweepReport
	now := r.now()

	stale, err := r.payments.ListStalePending(ctx, now.Add(-r.cfg.ReconcileMinAge), reconcileBatch)
	if err != nil {
		return rep, fmt.Errorf("%s: list pending: %w", op, err)
	}
	for _, p := range stale {
		rep.Checked++
		if err := r.reconcilePending(ctx, p, now, &rep); err != nil {
			rep.Errors++
			r.log.Warn("pending payment not reconciled", slog.Uint64("payment_id", p.ID), slog.Any("err", err))
		}
	}

	unsettled, err := r.payments.ListUnsettled(ctx, reconcileBatch)
	if err != nil {
		return rep, fmt.Errorf("%s: list unsettled: %w", op, err)
	}
	for _, p := range unsettled {
		res, err := r.settlement.Settle(ctx, p.ID)
		if err != nil {
			rep.Errors++
			r.log.Warn("settlement retry failed", slog.Uint64("payment_id", p.ID), slog.Any("err", err))
			continue
		}
		if res.Settled {
			rep.Settled++
		}
	}

	purged, err := r.tokens.DeleteExpired(ctx, now)
	if err != nil {
		r.log.Warn("failed to purge expired refresh tokens", slog.Any("err", err))
	}
	rep.TokensPurged = purged
	return rep, nil
}

func (r *Reconciler) reconcilePending(ctx context.Context, p model.Payment, now time.Time, rep *SweepReport) error {
	gw, err := r.gateways.Get(p.Provider)
	if err != nil {
		return err
	}
	conf, err := gw.Status(ctx, *p.ProviderOrderID)
	if err != nil {
		return err
	}
	switch {
	case conf.State == gateway.RemotePaid:
		res, err := r.paymentSvc.complete(ctx, p, conf.ProviderPaymentID)
		if err != nil {
			return err
		}
		if !res.AlreadyVerified {
			rep.MarkedSuccess++
		}
		if res.Settlement != nil && res.Settlement.Settled {
			rep.Settled++
		}
	case conf.State == gateway.RemoteFailed:
		flipped, err := r.payments.MarkFailed(ctx, p.ID)
		if err != nil {
			return err
		}
		if flipped {
			rep.MarkedFailed++
		}
	case now.Sub(p.CreatedAt) > r.cfg.PaymentExpiry:
		// The provider has not closed the order, so it may still capture
		// money after this. Such a payment needs a refund or manual settlement.
		flipped, err := r.payments.MarkFailed(ctx, p.ID)
		if err != nil {
			return err
		}
		if flipped {
			rep.MarkedFailed++
			rep.Expired++
			r.log.Error("payment expired while still open at provider; check for late capture",
				slog.Uint64("payment_id", p.ID),
				slog.String("provider", string(p.Provider)),
				slog.String("provider_order_id", *p.ProviderOrderID))
		}
	}
	return nil
}

// lock takes the sweep lock. Without Redis, or when Redis errors, the
// sweep runs unlocked.
func (r *Reconciler) lock(ctx context.Context) (release func(), ok bool) {
	noop := func() {}
	if r.rdb == nil {
		return noop, true
	}
	ttl := r.cfg.ReconcileInterval
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	token := uuid.NewString()
	acquired, err := r.rdb.SetNX(ctx, reconcileLockKey, token, ttl).Result()
	if err != nil {
		r.log.Warn("redis lock unavailable; sweeping unlocked", slog.Any("err", err))
		return noop, true
	}
	if !acquired {
		r.log.Debug("sweep lock held elsewhere")
		return noop, false
	}
	return func() {
		// ctx may already be cancelled when the sweep ends
		rctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := releaseLock.Run(rctx, r.rdb, []string{reconcileLockKey}, token).Err(); err != nil && !errors.Is(err, redis.Nil) {
			r.log.Warn("failed to release sweep lock", slog.Any("err", err))
		}
	}, true
}
