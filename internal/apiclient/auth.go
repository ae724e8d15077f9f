package apiclient

import (
	"context"
	"fmt"

	"github.com/kacharaalert/internal/model"
)

// Login exchanges credentials for an access token. The backend also sets the
// refresh cookie, which the jar keeps for later refreshes.
func (c *Client) Login(ctx context.Context, email, password string) (*model.User, error) {
	var result model.LoginResult
	if _, err := c.Post(ctx, "/api/v1/auth/login", model.LoginRequest{Email: email, Password: password}, &result); err != nil {
		return nil, err
	}
	if result.AccessToken == "" {
		return nil, &Error{Message: "Login response carried no access token", Err: ErrMalformedResponse}
	}
	c.session.SetToken(result.AccessToken)
	return &result.User, nil
}

// Logout revokes the refresh cookie server-side. The local token is cleared
// even when the call fails.
func (c *Client) Logout(ctx context.Context) error {
	defer c.session.Clear()
	if _, err := c.Post(ctx, "/api/v1/auth/logout", nil, nil); err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	return nil
}

// CreateUser submits the admin "create user" multipart form.
func (c *Client) CreateUser(ctx context.Context, u model.NewUser) (*model.User, error) {
	accountType := u.AccountType
	if accountType == "" {
		accountType = model.AccountResident
	}
	form := Form{Fields: []FormField{
		{Name: "accountType", Value: string(accountType)},
		{Name: "name", Value: u.Name},
		{Name: "email", Value: u.Email},
		{Name: "phone", Value: u.Phone},
		{Name: "password", Value: u.Password},
		{Name: "society", Value: u.Society},
		{Name: "building", Value: u.Building},
		{Name: "apartment", Value: u.Apartment},
	}}
	if len(u.Image) > 0 {
		form.Files = append(form.Files, FormFile{Field: "image", Name: u.ImageName, ContentType: u.ImageType, Data: u.Image})
	}
	var created model.User
	resp, err := c.PostForm(ctx, "/api/v1/auth/user", form, &created)
	if err != nil {
		return nil, err
	}
	if !resp.HasData {
		return nil, nil
	}
	return &created, nil
}
