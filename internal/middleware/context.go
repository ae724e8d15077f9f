package middleware

import (
	"context"

	"github.com/kacharaalert/internal/model"
)

type contextKey string

const (
	UserIDKey      contextKey = "user_id"
	AccountTypeKey contextKey = "account_type"
)

// GetUserID returns the user id set by BearerAuth.
func GetUserID(ctx context.Context) string {
	v, _ := ctx.Value(UserIDKey).(string)
	return v
}

// GetAccountType returns the account type claim set by BearerAuth.
func GetAccountType(ctx context.Context) model.AccountType {
	v, _ := ctx.Value(AccountTypeKey).(model.AccountType)
	return v
}

// WithUser stores the authenticated identity in ctx.
func WithUser(ctx context.Context, userID string, accountType model.AccountType) context.Context {
	ctx = context.WithValue(ctx, UserIDKey, userID)
	return context.WithValue(ctx, AccountTypeKey, accountType)
}
