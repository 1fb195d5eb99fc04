package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/iliyamo/paycore/internal/apperr"
	"github.com/iliyamo/paycore/internal/config"
	"github.com/iliyamo/paycore/internal/model"
	"github.com/iliyamo/paycore/internal/repository"
	"github.com/iliyamo/paycore/internal/utils"
)

const (
	minPasswordLen = 8
	maxPasswordLen = 72 // bcrypt ignores bytes past 72
	referralTries  = 3
)

// CredentialService owns passwords, reset tokens and account creation.
type CredentialService struct {
	users    *repository.UserRepo
	wallets  *repository.WalletRepo
	sessions *SessionService
	cfg      config.AuthConfig
	log      *slog.Logger
	now      func() time.Time
}

func NewCredentialService(users *repository.UserRepo, wallets *repository.WalletRepo, sessions *SessionService, cfg config.AuthConfig, log *slog.Logger) *CredentialService {
	return &CredentialService{
		users:    users,
		wallets:  wallets,
		sessions: sessions,
		cfg:      cfg,
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Register creates a user account with role "user" and an empty wallet in
// one transaction. referralCode is optional; when given it must belong to
// an existing account, which becomes the new user's referrer.
func (s *CredentialService) Register(ctx context.Context, email, password, referralCode string) (model.User, error) {
	const op = "service.CredentialService.Register"

	email = normalizeEmail(email)
	if _, err := mail.ParseAddress(email); err != nil || email == "" {
		return model.User{}, apperr.BadRequest("a valid email is required")
	}
	if err := validatePassword(password); err != nil {
		return model.User{}, err
	}

	u := model.User{Email: email, Role: model.RoleUser}
	if code := strings.TrimSpace(referralCode); code != "" {
		ref, err := s.users.GetByReferralCode(ctx, strings.ToUpper(code))
		if errors.Is(err, sql.ErrNoRows) {
			return model.User{}, apperr.BadRequest("unknown referral code").WithCode("INVALID_REFERRAL_CODE")
		}
		if err != nil {
			return model.User{}, fmt.Errorf("%s: %w", op, err)
		}
		u.ReferredBy = &ref.ID
	}

	hash, err := utils.HashPassword(password, s.cfg.BcryptCost)
	if err != nil {
		return model.User{}, fmt.Errorf("%s: %w", op, err)
	}
	u.PasswordHash = hash

	for attempt := 0; ; attempt++ {
		code, err := utils.RandomHex(4)
		if err != nil {
			return model.User{}, fmt.Errorf("%s: %w", op, err)
		}
		u.ReferralCode = "REF" + strings.ToUpper(code)

		err = withTx(ctx, s.users.DB(), func(tx *sql.Tx) error {
			if err := s.users.CreateTx(ctx, tx, &u); err != nil {
				return err
			}
			return s.wallets.CreateTx(ctx, tx, u.ID)
		})
		switch {
		case err == nil:
			s.log.Info("user registered", slog.Uint64("user_id", u.ID))
			return u, nil
		case errors.Is(err, repository.ErrEmailExists):
			return model.User{}, apperr.Conflict("email already registered").WithCode("EMAIL_EXISTS")
		case errors.Is(err, repository.ErrConflict) && attempt+1 < referralTries:
			continue
		default:
			return model.User{}, fmt.Errorf("%s: %w", op, err)
		}
	}
}

// CreateResetToken starts a password reset. It returns the raw token for
// out-of-band delivery, or "" with no error when the email is unknown so
// callers cannot discover which accounts exist.
func (s *CredentialService) CreateResetToken(ctx context.Context, email string) (string, error) {
	const op = "service.CredentialService.CreateResetToken"

	u, err := s.users.GetByEmail(ctx, normalizeEmail(email))
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	raw, err := utils.RandomHex(32)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	exp := s.now().Add(time.Duration(s.cfg.ResetTokenTTLHours) * time.Hour)
	if err := s.users.SetResetToken(ctx, u.ID, utils.HashSHA256(raw), exp); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return raw, nil
}

// ResetPassword sets a new password using a reset token and ends every
// session of the account. The token works once.
func (s *CredentialService) ResetPassword(ctx context.Context, token, newPassword string) error {
	const op = "service.CredentialService.ResetPassword"

	if strings.TrimSpace(token) == "" {
		return apperr.ErrInvalidOrExpiredToken
	}
	if err := validatePassword(newPassword); err != nil {
		return err
	}
	hash := utils.HashSHA256(token)
	u, err := s.users.GetByResetTokenHash(ctx, hash)
	if errors.Is(err, sql.ErrNoRows) {
		return apperr.ErrInvalidOrExpiredToken
	}
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if u.ResetTokenExpiresAt == nil || !u.ResetTokenExpiresAt.After(s.now()) {
		return apperr.ErrInvalidOrExpiredToken
	}

	pwHash, err := utils.HashPassword(newPassword, s.cfg.BcryptCost)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := s.users.UpdatePassword(ctx, u.ID, pwHash, hash); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return apperr.ErrInvalidOrExpiredToken
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	if _, err := s.sessions.LogoutAll(ctx, u.ID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// ChangePassword replaces the password after checking the current one and
// ends every session of the account.
func (s *CredentialService) ChangePassword(ctx context.Context, userID uint64, current, newPassword string) error {
	const op = "service.CredentialService.ChangePassword"

	u, err := s.users.GetByID(ctx, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return apperr.NotFound("user not found")
	}
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if !utils.VerifyPassword(u.PasswordHash, current) {
		return apperr.BadRequest("current password is incorrect").WithCode("WRONG_PASSWORD")
	}
	if err := validatePassword(newPassword); err != nil {
		return err
	}
	hash, err := utils.HashPassword(newPassword, s.cfg.BcryptCost)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := s.users.UpdatePassword(ctx, u.ID, hash, ""); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if _, err := s.sessions.LogoutAll(ctx, u.ID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// SetBlocked blocks or unblocks an account. Blocking also ends its
// sessions; outstanding access tokens run out on their own.
func (s *CredentialService) SetBlocked(ctx context.Context, userID uint64, blocked bool) error {
	const op = "service.CredentialService.SetBlocked"

	if err := s.users.SetBlocked(ctx, userID, blocked); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return apperr.NotFound("user not found")
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	if blocked {
		if _, err := s.sessions.LogoutAll(ctx, userID); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
	}
	return nil
}

func validatePassword(p string) error {
	if len(p) < minPasswordLen {
		return apperr.BadRequest(fmt.Sprintf("password must be at least %d characters", minPasswordLen)).WithCode("WEAK_PASSWORD")
	}
	if len(p) > maxPasswordLen {
		return apperr.BadRequest(fmt.Sprintf("password must be at most %d bytes", maxPasswordLen)).WithCode("WEAK_PASSWORD")
	}
	return nil
}
