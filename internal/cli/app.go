package cli

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/paycore/internal/config"
	"github.com/iliyamo/paycore/internal/database"
	"github.com/iliyamo/paycore/internal/gateway"
	"github.com/iliyamo/paycore/internal/handler"
	"github.com/iliyamo/paycore/internal/queue"
	"github.com/iliyamo/paycore/internal/repository"
	"github.com/iliyamo/paycore/internal/router"
	"github.com/iliyamo/paycore/internal/service"
)

// app is the wired object graph shared by the subcommands.
type app struct {
	cfg config.Config
	log *slog.Logger
	db  *sql.DB
	rdb *redis.Client // nil when Redis is unreachable

	sessions    *service.SessionService
	credentials *service.CredentialService
	ledger      *service.LedgerService
	settlement  *service.SettlementService
	payments    *service.PaymentService
	reconciler  *service.Reconciler
	authz       service.Authorizer
}

func newApp(cfg config.Config, log *slog.Logger) (*app, error) {
	db, err := database.Open(cfg.DB)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, log: log, db: db, authz: service.RoleAuthorizer{}}
	a.wire(db, config.NewRedisClient(cfg.Redis), queue.NewPublisher(cfg.RabbitMQ.URL, log))
	if a.rdb == nil {
		log.Warn("redis unavailable; reconciliation runs without a lock")
	}
	return a, nil
}

// wire builds repositories and services on top of db.
func (a *app) wire(db *sql.DB, rdb *redis.Client, events service.EventPublisher) {
	a.db = db
	a.rdb = rdb
	cfg, log := a.cfg, a.log

	users := repository.NewUserRepo(db)
	tokens := repository.NewTokenRepo(db)
	wallets := repository.NewWalletRepo(db)
	payments := repository.NewPaymentRepo(db)
	courses := repository.NewCourseRepo(db)
	commissions := repository.NewCommissionRepo(db)
	gateways := gateway.FromConfig(cfg)

	a.sessions = service.NewSessionService(users, tokens, cfg.Auth, log)
	a.credentials = service.NewCredentialService(users, wallets, a.sessions, cfg.Auth, log)
	a.ledger = service.NewLedgerService(wallets, log)
	a.settlement = service.NewSettlementService(db, payments, courses, commissions, wallets, cfg.Payments.CommissionPercent, events, log)
	a.payments = service.NewPaymentService(payments, courses, gateways, a.settlement, events, cfg.Payments, log)
	a.reconciler = service.NewReconciler(payments, tokens, gateways, a.payments, a.settlement, rdb, cfg.Payments, log)
}

func (a *app) routes() router.Deps {
	return router.Deps{
		Auth:     handler.NewAuthHandler(a.sessions, a.credentials, a.log, a.cfg.Env == envLocal),
		Payments: handler.NewPaymentHandler(a.payments, a.log),
		Wallets:  handler.NewWalletHandler(a.ledger, a.authz, a.log),
		Admin:    handler.NewAdminHandler(a.credentials, a.log),
		Health:   &handler.HealthHandler{DB: a.db},
		Verifier: a.sessions,
		Authz:    a.authz,
	}
}

// retrySettlement is the settlement.retry handler. Settle is idempotent,
// so redelivered events are harmless.
func (a *app) retrySettlement(ctx context.Context, ev queue.SettlementRetryEvent) error {
	res, err := a.settlement.Settle(ctx, ev.PaymentID)
	if err != nil {
		return err
	}
	a.log.Info("settlement retried", slog.Uint64("payment_id", ev.PaymentID),
		slog.Bool("settled", res.Settled), slog.Bool("already_settled", res.AlreadySettled))
	return nil
}

func (a *app) close() {
	if a.rdb != nil {
		_ = a.rdb.Close()
	}
	_ = a.db.Close()
}
