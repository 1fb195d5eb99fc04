package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/iliyamo/paycore/internal/apperr"
	"github.com/iliyamo/paycore/internal/config"
	"github.com/iliyamo/paycore/internal/model"
	"github.com/iliyamo/paycore/internal/repository"
	"github.com/iliyamo/paycore/internal/utils"
)

// TokenPair is returned by login and refresh.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	TokenType    string `json:"tokenType"`
	ExpiresIn    int64  `json:"expiresIn"` // access token lifetime in seconds
}

// SessionService issues and rotates access/refresh tokens. Only refresh
// tokens are stored (as keyed hashes); access tokens are verified
// statelessly and live until they expire.
type SessionService struct {
	users  *repository.UserRepo
	tokens *repository.TokenRepo
	cfg    config.AuthConfig
	log    *slog.Logger
	now    func() time.Time
}

func NewSessionService(users *repository.UserRepo, tokens *repository.TokenRepo, cfg config.AuthConfig, log *slog.Logger) *SessionService {
	return &SessionService{users: users, tokens: tokens, cfg: cfg, log: log, now: func() time.Time { return time.Now().UTC() }}
}

// Login checks credentials and opens a session. expectedRole, when not
// empty, must match the account's role. Unknown email and wrong password
// fail the same way.
func (s *SessionService) Login(ctx context.Context, email, password, expectedRole string) (TokenPair, model.User, error) {
	const op = "service.SessionService.Login"

	email = normalizeEmail(email)
	if email == "" || password == "" {
		return TokenPair{}, model.User{}, apperr.BadRequest("email and password are required")
	}
	u, err := s.users.GetByEmail(ctx, email)
	if errors.Is(err, sql.ErrNoRows) {
		utils.BurnPasswordCheck(password)
		return TokenPair{}, model.User{}, apperr.ErrInvalidCredentials
	}
	if err != nil {
		return TokenPair{}, model.User{}, fmt.Errorf("%s: %w", op, err)
	}
	if !utils.VerifyPassword(u.PasswordHash, password) {
		return TokenPair{}, model.User{}, apperr.ErrInvalidCredentials
	}
	if u.IsBlocked {
		return TokenPair{}, model.User{}, apperr.ErrAccountBlocked
	}
	if expectedRole != "" && u.Role != expectedRole {
		return TokenPair{}, model.User{}, apperr.ErrRoleMismatch
	}

	pair, err := s.issuePair(ctx, u)
	if err != nil {
		return TokenPair{}, model.User{}, fmt.Errorf("%s: %w", op, err)
	}
	if err := s.users.TouchLastLogin(ctx, u.ID, s.now()); err != nil {
		s.log.Warn("failed to record last login", slog.Uint64("user_id", u.ID), slog.Any("err", err))
	}
	return pair, u, nil
}

// Refresh redeems a refresh token for a new pair. The stored row is
// consumed before anything is issued, so a token works at most once; a
// second redemption finds no row and is logged as possible token theft.
func (s *SessionService) Refresh(ctx context.Context, raw string) (TokenPair, error) {
	const op = "service.SessionService.Refresh"

	claims, err := utils.ParseToken(s.cfg.RefreshSecret, raw, utils.TokenTypeRefresh)
	if err != nil {
		return TokenPair{}, apperr.ErrInvalidToken.Wrap(err)
	}
	userID, exp, err := s.tokens.Consume(ctx, utils.HashToken(s.cfg.RefreshSecret, raw))
	if errors.Is(err, sql.ErrNoRows) {
		s.log.Warn("refresh token not found; possible reuse",
			slog.Uint64("user_id", claims.UserID), slog.String("jti", claims.ID))
		return TokenPair{}, apperr.ErrInvalidToken
	}
	if err != nil {
		return TokenPair{}, fmt.Errorf("%s: %w", op, err)
	}
	if userID != claims.UserID || !exp.After(s.now()) {
		return TokenPair{}, apperr.ErrInvalidToken
	}

	u, err := s.users.GetByID(ctx, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return TokenPair{}, apperr.ErrInvalidToken
	}
	if err != nil {
		return TokenPair{}, fmt.Errorf("%s: %w", op, err)
	}
	if u.IsBlocked {
		return TokenPair{}, apperr.ErrAccountBlocked
	}

	pair, err := s.issuePair(ctx, u)
	if err != nil {
		return TokenPair{}, fmt.Errorf("%s: %w", op, err)
	}
	return pair, nil
}

// Logout ends the session of one refresh token. Unknown or already
// redeemed tokens are not an error.
func (s *SessionService) Logout(ctx context.Context, raw string) error {
	if strings.TrimSpace(raw) == "" {
		return apperr.BadRequest("refreshToken is required")
	}
	if err := s.tokens.RevokeByHash(ctx, utils.HashToken(s.cfg.RefreshSecret, raw)); err != nil {
		return fmt.Errorf("service.SessionService.Logout: %w", err)
	}
	return nil
}

// LogoutAll ends every session of a user and reports how many there were.
func (s *SessionService) LogoutAll(ctx context.Context, userID uint64) (int64, error) {
	n, err := s.tokens.RevokeAllForUser(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("service.SessionService.LogoutAll: %w", err)
	}
	return n, nil
}

// VerifyAccess checks an access token's signature, expiry and type. It
// does not touch the database.
func (s *SessionService) VerifyAccess(raw string) (Principal, error) {
	claims, err := utils.ParseToken(s.cfg.AccessSecret, raw, utils.TokenTypeAccess)
	if err != nil {
		return Principal{}, apperr.ErrInvalidToken.Wrap(err)
	}
	return Principal{UserID: claims.UserID, Email: claims.Email, Role: claims.Role}, nil
}

func (s *SessionService) issuePair(ctx context.Context, u model.User) (TokenPair, error) {
	access, err := utils.IssueToken(s.cfg.AccessSecret, utils.TokenTypeAccess, u.ID, u.Email, u.Role, s.cfg.AccessTTL)
	if err != nil {
		return TokenPair{}, fmt.Errorf("issue access token: %w", err)
	}
	refresh, err := utils.IssueToken(s.cfg.RefreshSecret, utils.TokenTypeRefresh, u.ID, u.Email, u.Role, s.cfg.RefreshTTL)
	if err != nil {
		return TokenPair{}, fmt.Errorf("issue refresh token: %w", err)
	}
	if err := s.tokens.StoreRefresh(ctx, u.ID, utils.HashToken(s.cfg.RefreshSecret, refresh.Token), refresh.Exp); err != nil {
		return TokenPair{}, fmt.Errorf("store refresh token: %w", err)
	}
	return TokenPair{
		AccessToken:  access.Token,
		RefreshToken: refresh.Token,
		TokenType:    "Bearer",
		ExpiresIn:    int64(s.cfg.AccessTTL / time.Second),
	}, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
