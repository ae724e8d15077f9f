package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kacharaalert/internal/model"
	"github.com/kacharaalert/internal/storage/memory"
)

func TestAccessTokenRoundTrip(t *testing.T) {
	svc := NewTokenService("secret", time.Minute, time.Hour, memory.New())
	token, err := svc.IssueAccess(model.User{ID: "u1", AccountType: model.AccountAdminDriver})
	require.NoError(t, err)

	claims, err := svc.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.Subject)
	assert.Equal(t, model.AccountAdminDriver, claims.AccountType)

	other := NewTokenService("other", time.Minute, time.Hour, memory.New())
	_, err = other.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestAccessTokenExpires(t *testing.T) {
	svc := NewTokenService("secret", time.Minute, time.Hour, memory.New())
	now := time.Now()
	svc.now = func() time.Time { return now }
	token, err := svc.IssueAccess(model.User{ID: "u1"})
	require.NoError(t, err)

	svc.now = func() time.Time { return now.Add(2 * time.Minute) }
	_, err = svc.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestRefreshRotation(t *testing.T) {
	ctx := context.Background()
	svc := NewTokenService("secret", time.Minute, time.Hour, memory.New())

	first, err := svc.IssueRefresh(ctx, "u1")
	require.NoError(t, err)

	userID, second, err := svc.Rotate(ctx, first)
	require.NoError(t, err)
	assert.Equal(t, "u1", userID)
	assert.NotEqual(t, first, second)

	_, _, err = svc.Rotate(ctx, first)
	assert.ErrorIs(t, err, ErrNoSession, "a rotated token cannot be reused")

	require.NoError(t, svc.Revoke(ctx, second))
	_, _, err = svc.Rotate(ctx, second)
	assert.ErrorIs(t, err, ErrNoSession)
}
