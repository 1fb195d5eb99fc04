package service

import "github.com/iliyamo/paycore/internal/model"

// Principal is the authenticated caller of a request, taken from a
// verified access token.
type Principal struct {
	UserID uint64
	Email  string
	Role   string
}

// Authorizer answers capability questions about a principal. It is
// evaluated once per request by the middleware or handler; services below
// it trust their callers.
type Authorizer interface {
	CanCredit(p Principal, targetUserID uint64) bool
	CanDebit(p Principal, targetUserID uint64) bool
	CanViewWallet(p Principal, targetUserID uint64) bool
	CanManageUsers(p Principal) bool
}

// RoleAuthorizer grants capabilities by role: admins may move money and
// manage accounts, everyone may read their own wallet.
type RoleAuthorizer struct{}

func (RoleAuthorizer) CanCredit(p Principal, _ uint64) bool { return p.Role == model.RoleAdmin }

func (RoleAuthorizer) CanDebit(p Principal, _ uint64) bool { return p.Role == model.RoleAdmin }

func (RoleAuthorizer) CanViewWallet(p Principal, target uint64) bool {
	return p.Role == model.RoleAdmin || p.UserID == target
}

func (RoleAuthorizer) CanManageUsers(p Principal) bool { return p.Role == model.RoleAdmin }
