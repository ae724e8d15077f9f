package handler

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/kacharaalert/internal/logger"
	"github.com/kacharaalert/internal/middleware"
	"github.com/kacharaalert/internal/model"
	"github.com/kacharaalert/internal/repository"
	"github.com/kacharaalert/internal/storage"
)

const maxProfileImage = 5 << 20

// phoneRe accepts an optional + followed by 7 to 15 digits.
var phoneRe = regexp.MustCompile(`^\+?\d{7,15}$`)

func profileImageKey(userID string) string { return "profile:" + userID }

func profileImagePath(userID string) string {
	return "/api/v1/users/" + url.PathEscape(userID) + "/profile-image"
}

func imageType(declared string, data []byte) (string, string) {
	if len(data) == 0 {
		return "", "Image is empty"
	}
	if len(data) > maxProfileImage {
		return "", "Image is larger than 5 MB"
	}
	contentType := declared
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = http.DetectContentType(data)
	}
	if !strings.HasPrefix(contentType, "image/") {
		return "", "Profile image must be an image"
	}
	return contentType, ""
}

// storeProfileImage saves the bytes and points the user's image URL at them.
// The URL carries a version so clients drop their cached copy.
func storeProfileImage(ctx context.Context, users *repository.UserRepository, blobs storage.BlobStore, userID, contentType string, data []byte) (*model.User, error) {
	if err := blobs.PutBlob(ctx, profileImageKey(userID), storage.Blob{ContentType: contentType, Data: data}, 0); err != nil {
		return nil, err
	}
	return users.Update(ctx, userID, func(u *model.User) error {
		version := 1
		if u.ProfileImageURL != nil {
			if _, v, ok := strings.Cut(*u.ProfileImageURL, "?v="); ok {
				if n, err := strconv.Atoi(v); err == nil {
					version = n + 1
				}
			}
		}
		ref := profileImagePath(userID) + "?v=" + strconv.Itoa(version)
		u.ProfileImageURL = &ref
		return nil
	})
}

type UserHandler struct {
	users *repository.UserRepository
	blobs storage.BlobStore
}

func NewUserHandler(users *repository.UserRepository, blobs storage.BlobStore) *UserHandler {
	return &UserHandler{users: users, blobs: blobs}
}

func (h *UserHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	u, err := h.users.GetByID(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		writeRepoError(w, "get profile", err)
		return
	}
	writeJSON(w, http.StatusOK, "Profile loaded", u)
}

func trimmed(p *string) *string {
	if p == nil {
		return nil
	}
	v := strings.TrimSpace(*p)
	return &v
}

func (h *UserHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req model.ProfileUpdate
	if !decodeJSON(w, r, &req) {
		return
	}
	name, phone := trimmed(req.Name), trimmed(req.Phone)
	if name != nil && *name == "" {
		writeError(w, http.StatusBadRequest, "Name cannot be empty", "VALIDATION_ERROR")
		return
	}
	if phone != nil && *phone != "" && !phoneRe.MatchString(*phone) {
		writeError(w, http.StatusBadRequest, "Invalid phone number", "VALIDATION_ERROR")
		return
	}
	u, err := h.users.Update(r.Context(), middleware.GetUserID(r.Context()), func(u *model.User) error {
		if name != nil {
			u.Name = *name
		}
		if phone != nil {
			u.Phone = *phone
		}
		if v := trimmed(req.Society); v != nil {
			u.Society = *v
		}
		if v := trimmed(req.Building); v != nil {
			u.Building = *v
		}
		if v := trimmed(req.Apartment); v != nil {
			u.Apartment = *v
		}
		return nil
	})
	if err != nil {
		writeRepoError(w, "update profile", err)
		return
	}
	writeJSON(w, http.StatusOK, "Profile updated", u)
}

// UploadProfileImage accepts the base64 JSON image body.
func (h *UserHandler) UploadProfileImage(w http.ResponseWriter, r *http.Request) {
	var req model.ProfileImageRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	data, err := base64.StdEncoding.DecodeString(req.Image.DataBase64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Image data is not valid base64", "VALIDATION_ERROR")
		return
	}
	contentType, problem := imageType(req.Image.MimeType, data)
	if problem != "" {
		writeError(w, http.StatusBadRequest, problem, "VALIDATION_ERROR")
		return
	}
	u, err := storeProfileImage(r.Context(), h.users, h.blobs, middleware.GetUserID(r.Context()), contentType, data)
	if err != nil {
		writeRepoError(w, "upload profile image", err)
		return
	}
	writeJSON(w, http.StatusOK, "Profile image updated", u)
}

// ProfileImage serves the stored image bytes.
func (h *UserHandler) ProfileImage(w http.ResponseWriter, r *http.Request) {
	blob, err := h.blobs.GetBlob(r.Context(), profileImageKey(chi.URLParam(r, "id")))
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Profile image not found", "NOT_FOUND")
		return
	}
	if err != nil {
		logger.Errorf("profile image: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal server error", "INTERNAL")
		return
	}
	w.Header().Set("Content-Type", blob.ContentType)
	w.Header().Set("Cache-Control", "private, max-age=300")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(blob.Data); err != nil {
		logger.Debugf("profile image write: %v", err)
	}
}

func (h *UserHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.users.List(r.Context())
	if err != nil {
		writeRepoError(w, "list users", err)
		return
	}
	writeJSON(w, http.StatusOK, "Users loaded", users)
}

func (h *UserHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	u, err := h.users.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeRepoError(w, "get user", err)
		return
	}
	writeJSON(w, http.StatusOK, "User loaded", u)
}

// UpdateStatus sets the ban flag and the per-user late fee.
func (h *UserHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req model.UserStatusUpdate
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.LateFeePercent != nil && (*req.LateFeePercent < 0 || *req.LateFeePercent > 100) {
		writeError(w, http.StatusBadRequest, "Late fee must be between 0 and 100", "VALIDATION_ERROR")
		return
	}
	if req.IsBanned != nil && *req.IsBanned && id == middleware.GetUserID(r.Context()) {
		writeError(w, http.StatusBadRequest, "You cannot ban your own account", "VALIDATION_ERROR")
		return
	}
	u, err := h.users.Update(r.Context(), id, func(u *model.User) error {
		if req.IsBanned != nil {
			u.IsBanned = *req.IsBanned
		}
		if req.LateFeePercent != nil {
			u.LateFeePercent = *req.LateFeePercent
		}
		return nil
	})
	if err != nil {
		writeRepoError(w, "update user status", err)
		return
	}
	writeJSON(w, http.StatusOK, "User status updated", u)
}

func (h *UserHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == middleware.GetUserID(r.Context()) {
		writeError(w, http.StatusBadRequest, "You cannot delete your own account", "VALIDATION_ERROR")
		return
	}
	if err := h.users.Delete(r.Context(), id); err != nil {
		writeRepoError(w, "delete user", err)
		return
	}
	if err := h.blobs.DeleteBlob(r.Context(), profileImageKey(id)); err != nil && !errors.Is(err, storage.ErrNotFound) {
		logger.Errorf("delete user %s image: %v", id, err)
	}
	writeJSON(w, http.StatusOK, "User deleted", nil)
}
