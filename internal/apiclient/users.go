package apiclient

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"net/url"

	"github.com/kacharaalert/internal/model"
)

var ErrInvalidLateFee = errors.New("late fee must be between 0 and 100")

func (c *Client) Me(ctx context.Context) (*model.User, error) {
	var u model.User
	if _, err := c.Get(ctx, "/api/v1/users/me", &u); err != nil {
		return nil, err
	}
	return &u, nil
}

func (c *Client) UpdateProfile(ctx context.Context, upd model.ProfileUpdate) (*model.User, error) {
	var u model.User
	resp, err := c.Patch(ctx, "/api/v1/users/me", upd, &u)
	if err != nil {
		return nil, err
	}
	if !resp.HasData {
		return nil, nil
	}
	return &u, nil
}

// UploadProfileImage sends the image as base64 JSON. An empty mimeType is
// detected from the bytes.
func (c *Client) UploadProfileImage(ctx context.Context, name, mimeType string, data []byte) error {
	if mimeType == "" {
		mimeType = http.DetectContentType(data)
	}
	body := model.ProfileImageRequest{Image: model.ImageUpload{
		Name:       name,
		MimeType:   mimeType,
		DataBase64: base64.StdEncoding.EncodeToString(data),
	}}
	_, err := c.Post(ctx, "/api/v1/users/me/profile-image", body, nil)
	return err
}

func (c *Client) ListUsers(ctx context.Context) ([]model.User, error) {
	var users []model.User
	if _, err := c.Get(ctx, "/api/v1/admin/users", &users); err != nil {
		return nil, err
	}
	return users, nil
}

func (c *Client) GetUser(ctx context.Context, id string) (*model.User, error) {
	var u model.User
	if _, err := c.Get(ctx, "/api/v1/admin/users/"+url.PathEscape(id), &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// UpdateUserStatus bans/unbans a user or changes their default late fee.
func (c *Client) UpdateUserStatus(ctx context.Context, id string, upd model.UserStatusUpdate) (*model.User, error) {
	if upd.LateFeePercent != nil && !validLateFee(*upd.LateFeePercent) {
		return nil, ErrInvalidLateFee
	}
	var u model.User
	if _, err := c.Patch(ctx, "/api/v1/admin/users/"+url.PathEscape(id)+"/status", upd, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

func (c *Client) DeleteUser(ctx context.Context, id string) error {
	_, err := c.Delete(ctx, "/api/v1/admin/users/"+url.PathEscape(id), nil)
	return err
}
