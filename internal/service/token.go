package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/kacharaalert/internal/logger"
	"github.com/kacharaalert/internal/model"
	"github.com/kacharaalert/internal/storage"
)

const issuer = "kachara-demo"

var (
	ErrInvalidToken = errors.New("invalid or expired token")
	ErrNoSession    = errors.New("refresh session not found")
)

// Claims are the access token claims.
type Claims struct {
	AccountType model.AccountType `json:"accountType"`
	jwt.RegisteredClaims
}

// TokenService issues short-lived HS256 access tokens and opaque rotating
// refresh tokens kept in a SessionStore.
type TokenService struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	sessions   storage.SessionStore
	now        func() time.Time
}

func NewTokenService(secret string, accessTTL, refreshTTL time.Duration, sessions storage.SessionStore) *TokenService {
	return &TokenService{
		secret:     []byte(secret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		sessions:   sessions,
		now:        time.Now,
	}
}

func (s *TokenService) RefreshTTL() time.Duration { return s.refreshTTL }

func (s *TokenService) IssueAccess(u model.User) (string, error) {
	now := s.now()
	claims := &Claims{
		AccountType: u.AccountType,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.ID,
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.accessTTL)),
			ID:        uuid.NewString(),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign access token: %w", err)
	}
	return signed, nil
}

func (s *TokenService) Verify(token string) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return s.secret, nil
	}, jwt.WithIssuer(issuer), jwt.WithTimeFunc(s.now), jwt.WithExpirationRequired())
	if err != nil || !parsed.Valid || claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// IssueRefresh opens a refresh session for userID.
func (s *TokenService) IssueRefresh(ctx context.Context, userID string) (string, error) {
	token := strings.ReplaceAll(uuid.NewString()+uuid.NewString(), "-", "")
	if err := s.sessions.SetRefresh(ctx, token, userID, s.refreshTTL); err != nil {
		return "", fmt.Errorf("store refresh session: %w", err)
	}
	return token, nil
}

// Rotate consumes refresh and returns its user with a replacement token.
func (s *TokenService) Rotate(ctx context.Context, refresh string) (userID, next string, err error) {
	if refresh == "" {
		return "", "", ErrNoSession
	}
	userID, err = s.sessions.GetRefresh(ctx, refresh)
	if errors.Is(err, storage.ErrNotFound) {
		return "", "", ErrNoSession
	}
	if err != nil {
		return "", "", fmt.Errorf("read refresh session: %w", err)
	}
	if err := s.sessions.DeleteRefresh(ctx, refresh); err != nil {
		logger.Errorf("delete refresh session: %v", err)
	}
	next, err = s.IssueRefresh(ctx, userID)
	if err != nil {
		return "", "", err
	}
	return userID, next, nil
}

func (s *TokenService) Revoke(ctx context.Context, refresh string) error {
	if refresh == "" {
		return nil
	}
	return s.sessions.DeleteRefresh(ctx, refresh)
}
