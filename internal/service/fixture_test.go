package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/iliyamo/paycore/internal/config"
	"github.com/iliyamo/paycore/internal/gateway"
	"github.com/iliyamo/paycore/internal/model"
	"github.com/iliyamo/paycore/internal/queue"
	"github.com/iliyamo/paycore/internal/repository"
	"github.com/iliyamo/paycore/internal/testutil"
)

// recordingPublisher keeps published events in memory.
type recordingPublisher struct {
	mu      sync.Mutex
	settled []queue.PaymentSettledEvent
	retries []queue.SettlementRetryEvent
}

func (p *recordingPublisher) PublishSettled(_ context.Context, ev queue.PaymentSettledEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.settled = append(p.settled, ev)
	return nil
}

func (p *recordingPublisher) PublishSettlementRetry(_ context.Context, ev queue.SettlementRetryEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.retries = append(p.retries, ev)
	return nil
}

func (p *recordingPublisher) counts() (settled, retries int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.settled), len(p.retries)
}

// fakeGateway is a Gateway whose behaviour is set per test.
type fakeGateway struct {
	provider        model.Provider
	configured      bool
	CreateOrderFunc func(ctx context.Context, req gateway.OrderRequest) (gateway.OrderDescriptor, error)
	ConfirmFunc     func(ctx context.Context, req gateway.VerificationRequest) (gateway.Confirmation, error)
	StatusFunc      func(ctx context.Context, orderID string) (gateway.Confirmation, error)
}

func (f *fakeGateway) Provider() model.Provider { return f.provider }
func (f *fakeGateway) Configured() bool         { return f.configured }

func (f *fakeGateway) CreateOrder(ctx context.Context, req gateway.OrderRequest) (gateway.OrderDescriptor, error) {
	return f.CreateOrderFunc(ctx, req)
}

func (f *fakeGateway) Confirm(ctx context.Context, req gateway.VerificationRequest) (gateway.Confirmation, error) {
	return f.ConfirmFunc(ctx, req)
}

func (f *fakeGateway) Status(ctx context.Context, orderID string) (gateway.Confirmation, error) {
	return f.StatusFunc(ctx, orderID)
}

// razorpayStub serves the two Razorpay endpoints the gateway calls.
type razorpayStub struct {
	mu       sync.Mutex
	next     int
	captured map[string]string // order id -> captured payment id
}

func (s *razorpayStub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/v1/orders":
		var body struct {
			Amount   int64  `json:"amount"`
			Currency string `json:"currency"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		s.next++
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id": fmt.Sprintf("order_%d", s.next), "amount": body.Amount, "currency": body.Currency, "status": "created",
		})
	case r.Method == http.MethodGet && strings.HasSuffix(r.URL.Path, "/payments"):
		orderID := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/v1/orders/"), "/payments")
		items := []map[string]string{}
		if pid, ok := s.captured[orderID]; ok {
			items = append(items, map[string]string{"id": pid, "status": "captured"})
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"items": items})
	default:
		http.NotFound(w, r)
	}
}

func (s *razorpayStub) capture(orderID, paymentID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.captured[orderID] = paymentID
}

type fixture struct {
	t   *testing.T
	db  *sql.DB
	cfg config.Config

	users       *repository.UserRepo
	tokens      *repository.TokenRepo
	wallets     *repository.WalletRepo
	payments    *repository.PaymentRepo
	courses     *repository.CourseRepo
	commissions *repository.CommissionRepo

	sessions    *SessionService
	credentials *CredentialService
	ledger      *LedgerService
	settlement  *SettlementService
	paymentSvc  *PaymentService
	reconciler  *Reconciler

	events   *recordingPublisher
	razorpay *gateway.Razorpay
	rzpStub  *razorpayStub
	stripe   *fakeGateway
}

func testConfig() config.Config {
	return config.Config{
		Env: "test",
		Auth: config.AuthConfig{
			AccessSecret:       "access-secret",
			RefreshSecret:      "refresh-secret",
			AccessTTL:          15 * time.Minute,
			RefreshTTL:         time.Hour,
			BcryptCost:         4,
			ResetTokenTTLHours: 1,
		},
		Payments: config.PaymentsConfig{
			DefaultCurrency:   "INR",
			CommissionPercent: 20,
			ProviderTimeout:   2 * time.Second,
			ReconcileInterval: time.Minute,
			ReconcileMinAge:   0,
			PaymentExpiry:     24 * time.Hour,
		},
		Razorpay: config.RazorpayConfig{KeyID: "rzp_test", KeySecret: "rzp-secret"},
	}
}

func discardLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func newFixture(t *testing.T, mutate ...func(*config.Config)) *fixture {
	t.Helper()
	cfg := testConfig()
	for _, m := range mutate {
		m(&cfg)
	}

	stub := &razorpayStub{captured: map[string]string{}}
	srv := httptest.NewServer(stub)
	t.Cleanup(srv.Close)
	cfg.Razorpay.BaseURL = srv.URL

	db := testutil.OpenDB(t)
	log := discardLogger()
	f := &fixture{
		t:           t,
		db:          db,
		cfg:         cfg,
		users:       repository.NewUserRepo(db),
		tokens:      repository.NewTokenRepo(db),
		wallets:     repository.NewWalletRepo(db),
		payments:    repository.NewPaymentRepo(db),
		courses:     repository.NewCourseRepo(db),
		commissions: repository.NewCommissionRepo(db),
		events:      &recordingPublisher{},
		rzpStub:     stub,
		stripe:      &fakeGateway{provider: model.ProviderStripe, configured: true},
	}
	f.razorpay = gateway.NewRazorpay(cfg.Razorpay, gateway.NewHTTPClient(cfg.Payments.ProviderTimeout))
	registry := gateway.NewRegistry(f.razorpay, f.stripe)

	f.sessions = NewSessionService(f.users, f.tokens, cfg.Auth, log)
	f.credentials = NewCredentialService(f.users, f.wallets, f.sessions, cfg.Auth, log)
	f.ledger = NewLedgerService(f.wallets, log)
	f.settlement = NewSettlementService(db, f.payments, f.courses, f.commissions, f.wallets, cfg.Payments.CommissionPercent, f.events, log)
	f.paymentSvc = NewPaymentService(f.payments, f.courses, registry, f.settlement, f.events, cfg.Payments, log)
	f.reconciler = NewReconciler(f.payments, f.tokens, registry, f.paymentSvc, f.settlement, nil, cfg.Payments, log)
	return f
}

func (f *fixture) razorpayVerification(paymentID uint64, orderID, providerPaymentID string) gateway.VerificationRequest {
	return gateway.VerificationRequest{
		Provider: model.ProviderRazorpay,
		Razorpay: &gateway.RazorpayVerification{
			PaymentID:         paymentID,
			OrderID:           orderID,
			ProviderPaymentID: providerPaymentID,
			Signature:         f.razorpay.Signature(orderID, providerPaymentID),
		},
	}
}
