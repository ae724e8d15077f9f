package handler

import (
	"errors"
	"io"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"github.com/kacharaalert/internal/logger"
	"github.com/kacharaalert/internal/middleware"
	"github.com/kacharaalert/internal/model"
	"github.com/kacharaalert/internal/repository"
	"github.com/kacharaalert/internal/service"
	"github.com/kacharaalert/internal/storage"
)

const (
	refreshCookie     = "refreshToken"
	refreshCookiePath = "/api/v1/auth"
	maxFormBody       = 10 << 20
)

type AuthHandler struct {
	users        *repository.UserRepository
	tokens       *service.TokenService
	blobs        storage.BlobStore
	cookieSecure bool
}

func NewAuthHandler(users *repository.UserRepository, tokens *service.TokenService, blobs storage.BlobStore, cookieSecure bool) *AuthHandler {
	return &AuthHandler{users: users, tokens: tokens, blobs: blobs, cookieSecure: cookieSecure}
}

func (h *AuthHandler) setRefreshCookie(w http.ResponseWriter, token string, maxAge time.Duration) {
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookie,
		Value:    token,
		Path:     refreshCookiePath,
		MaxAge:   int(maxAge.Seconds()),
		HttpOnly: true,
		Secure:   h.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *AuthHandler) clearRefreshCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookie,
		Value:    "",
		Path:     refreshCookiePath,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req model.LoginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "Email and password are required", "VALIDATION_ERROR")
		return
	}
	u, err := h.users.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Invalid email or password", "INVALID_CREDENTIALS")
		return
	}
	if u.IsBanned {
		writeError(w, http.StatusForbidden, "This account has been suspended", "ACCOUNT_BANNED")
		return
	}
	access, err := h.tokens.IssueAccess(*u)
	if err != nil {
		logger.Errorf("login issue access user=%s: %v", u.ID, err)
		writeError(w, http.StatusInternalServerError, "Internal server error", "INTERNAL")
		return
	}
	refresh, err := h.tokens.IssueRefresh(r.Context(), u.ID)
	if err != nil {
		logger.Errorf("login issue refresh user=%s: %v", u.ID, err)
		writeError(w, http.StatusInternalServerError, "Internal server error", "INTERNAL")
		return
	}
	h.setRefreshCookie(w, refresh, h.tokens.RefreshTTL())
	writeJSON(w, http.StatusOK, "Login successful", model.LoginResult{AccessToken: access, User: *u})
}

// Refresh rotates the refresh cookie and issues a new access token.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var current string
	if c, err := r.Cookie(refreshCookie); err == nil {
		current = c.Value
	}
	userID, next, err := h.tokens.Rotate(r.Context(), current)
	if err != nil {
		if !errors.Is(err, service.ErrNoSession) {
			logger.Errorf("refresh rotate: %v", err)
		}
		h.clearRefreshCookie(w)
		writeError(w, http.StatusUnauthorized, "Session expired, please sign in again", "REFRESH_INVALID")
		return
	}
	u, err := h.users.GetByID(r.Context(), userID)
	if err != nil || u.IsBanned {
		if revokeErr := h.tokens.Revoke(r.Context(), next); revokeErr != nil {
			logger.Errorf("refresh revoke: %v", revokeErr)
		}
		h.clearRefreshCookie(w)
		writeError(w, http.StatusUnauthorized, "Session expired, please sign in again", "REFRESH_INVALID")
		return
	}
	access, err := h.tokens.IssueAccess(*u)
	if err != nil {
		logger.Errorf("refresh issue access user=%s: %v", u.ID, err)
		writeError(w, http.StatusInternalServerError, "Internal server error", "INTERNAL")
		return
	}
	h.setRefreshCookie(w, next, h.tokens.RefreshTTL())
	writeJSON(w, http.StatusOK, "Token refreshed", model.RefreshResult{AccessToken: &access})
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if c, err := r.Cookie(refreshCookie); err == nil {
		if err := h.tokens.Revoke(r.Context(), c.Value); err != nil {
			logger.Errorf("logout revoke: %v", err)
		}
	}
	h.clearRefreshCookie(w)
	writeJSON(w, http.StatusOK, "Logged out", nil)
}

// CreateUser handles the admin multipart account form, with an optional
// "image" file stored as the profile image.
func (h *AuthHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	if middleware.GetAccountType(r.Context()) != model.AccountAdminDriver {
		writeError(w, http.StatusForbidden, "Admin access required", "FORBIDDEN")
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxFormBody)
	if err := r.ParseMultipartForm(maxFormBody); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid form data", "VALIDATION_ERROR")
		return
	}
	u := model.User{
		AccountType: model.AccountType(r.FormValue("accountType")),
		Name:        strings.TrimSpace(r.FormValue("name")),
		Email:       strings.TrimSpace(r.FormValue("email")),
		Phone:       strings.TrimSpace(r.FormValue("phone")),
		Society:     strings.TrimSpace(r.FormValue("society")),
		Building:    strings.TrimSpace(r.FormValue("building")),
		Apartment:   strings.TrimSpace(r.FormValue("apartment")),
	}
	password := r.FormValue("password")
	if u.AccountType == "" {
		u.AccountType = model.AccountResident
	}
	if u.AccountType != model.AccountResident && u.AccountType != model.AccountAdminDriver {
		writeError(w, http.StatusBadRequest, "Unknown account type", "VALIDATION_ERROR")
		return
	}
	if u.Name == "" {
		writeError(w, http.StatusBadRequest, "Name is required", "VALIDATION_ERROR")
		return
	}
	if _, err := mail.ParseAddress(u.Email); err != nil {
		writeError(w, http.StatusBadRequest, "A valid email is required", "VALIDATION_ERROR")
		return
	}
	if len(password) < 8 {
		writeError(w, http.StatusBadRequest, "Password must be at least 8 characters", "VALIDATION_ERROR")
		return
	}

	image, contentType, problem := formImage(r)
	if problem != "" {
		writeError(w, http.StatusBadRequest, problem, "VALIDATION_ERROR")
		return
	}

	created, err := h.users.Create(r.Context(), u, password)
	if err != nil {
		writeRepoError(w, "create user", err)
		return
	}
	if image != nil {
		withImage, err := storeProfileImage(r.Context(), h.users, h.blobs, created.ID, contentType, image)
		if err != nil {
			logger.Errorf("create user %s image: %v", created.ID, err)
		} else {
			created = withImage
		}
	}
	writeJSON(w, http.StatusCreated, "User created", created)
}

// formImage reads the optional "image" part. A non-empty problem is the
// validation message for a bad upload.
func formImage(r *http.Request) (data []byte, contentType, problem string) {
	file, header, err := r.FormFile("image")
	if errors.Is(err, http.ErrMissingFile) {
		return nil, "", ""
	}
	if err != nil {
		return nil, "", "Invalid image upload"
	}
	defer file.Close()
	data, err = io.ReadAll(file)
	if err != nil {
		return nil, "", "Invalid image upload"
	}
	contentType, problem = imageType(header.Header.Get("Content-Type"), data)
	if problem != "" {
		return nil, "", problem
	}
	return data, contentType, ""
}
