package apiclient

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kacharaalert/internal/model"
)

func TestLoginAndLogout(t *testing.T) {
	var logoutAuth string
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/auth/login":
			var req model.LoginRequest
			_ = json.NewDecoder(r.Body).Decode(&req)
			http.SetCookie(w, &http.Cookie{Name: "refreshToken", Value: "r1", Path: "/api/v1/auth", HttpOnly: true})
			writeEnvelope(w, 200, map[string]any{"success": true, "message": "ok", "data": map[string]any{
				"accessToken": "acc", "user": map[string]string{"id": "u1", "email": req.Email, "accountType": "resident"},
			}})
		case "/api/v1/auth/logout":
			logoutAuth = r.Header.Get("Authorization")
			writeEnvelope(w, 200, map[string]any{"success": true, "message": "bye"})
		}
	}))

	user, err := c.Login(context.Background(), "r@k.np", "pw")
	require.NoError(t, err)
	assert.Equal(t, "u1", user.ID)
	assert.Equal(t, "acc", c.Session().Token())

	require.NoError(t, c.Logout(context.Background()))
	assert.Equal(t, "Bearer acc", logoutAuth)
	assert.Empty(t, c.Session().Token())
}

func TestClientSideValidation(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
	}))
	ctx := context.Background()

	_, err := c.PayInvoice(ctx, "i1", 0)
	assert.ErrorIs(t, err, ErrInvalidAmount)
	_, err = c.UpdateInvoiceAmount(ctx, "i1", math.Inf(1))
	assert.ErrorIs(t, err, ErrInvalidAmount)
	_, err = c.UpdateInvoiceLateFee(ctx, "i1", 101)
	assert.ErrorIs(t, err, ErrInvalidLateFee)
	_, err = c.CreateInvoice(ctx, model.NewInvoice{UserID: "u1", Period: "Jan", AmountNPR: -5, DueAt: time.Now()})
	assert.ErrorIs(t, err, ErrInvalidAmount)
	fee := -1.0
	_, err = c.UpdateUserStatus(ctx, "u1", model.UserStatusUpdate{LateFeePercent: &fee})
	assert.ErrorIs(t, err, ErrInvalidLateFee)
	_, err = c.SubmitRating(ctx, 6, "great")
	assert.ErrorIs(t, err, ErrInvalidScore)
}

func TestMessageEndpoints(t *testing.T) {
	var seen []string
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = append(seen, r.Method+" "+r.URL.Path)
		if r.Method == http.MethodDelete {
			writeEnvelope(w, 200, map[string]any{"success": true, "message": "deleted", "data": map[string]any{
				"id": "m2", "body": "", "isDeleted": true,
			}})
			return
		}
		writeEnvelope(w, 200, map[string]any{"success": true, "message": "ok", "data": map[string]any{"id": "m2", "body": "x"}})
	}))
	ctx := context.Background()

	msg, err := c.SendMessage(ctx, "u2", model.SendMessageRequest{RecipientID: "u2", Body: "x", ReplyToMessageID: "m1"})
	require.NoError(t, err)
	assert.Equal(t, "m2", msg.ID)
	_, err = c.EditMessage(ctx, "u2", "m2", "y")
	require.NoError(t, err)
	deleted, err := c.DeleteMessage(ctx, "u2", "m2")
	require.NoError(t, err)
	assert.True(t, deleted.IsDeleted)
	assert.Equal(t, model.DeletedPlaceholder, deleted.DisplayBody())

	assert.Equal(t, []string{
		"POST /api/v1/messages/u2",
		"PATCH /api/v1/messages/u2/m2",
		"DELETE /api/v1/messages/u2/m2",
	}, seen)
}

func TestMessageCallWithoutDataFails(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, 200, map[string]any{"success": true, "message": "ok"})
	}))
	_, err := c.SendMessage(context.Background(), "u2", model.SendMessageRequest{Body: "x"})
	require.Error(t, err)
	assert.Equal(t, "Unable to send message", err.Error())
}
