package server_test

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kacharaalert/internal/apiclient"
	"github.com/kacharaalert/internal/avatar"
	"github.com/kacharaalert/internal/chat"
	"github.com/kacharaalert/internal/config"
	"github.com/kacharaalert/internal/live"
	"github.com/kacharaalert/internal/model"
	"github.com/kacharaalert/internal/repository"
	"github.com/kacharaalert/internal/server"
	"github.com/kacharaalert/internal/storage/memory"
)

// pngPixel is a 1x1 transparent PNG.
var pngPixel = []byte{
	0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a, 0x00, 0x00, 0x00, 0x0d,
	0x49, 0x48, 0x44, 0x52, 0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x01,
	0x08, 0x06, 0x00, 0x00, 0x00, 0x1f, 0x15, 0xc4, 0x89, 0x00, 0x00, 0x00,
	0x0d, 0x49, 0x44, 0x41, 0x54, 0x78, 0x9c, 0x63, 0x00, 0x01, 0x00, 0x00,
	0x05, 0x00, 0x01, 0x0d, 0x0a, 0x2d, 0xb4, 0x00, 0x00, 0x00, 0x00, 0x49,
	0x45, 0x4e, 0x44, 0xae, 0x42, 0x60, 0x82,
}

func demoConfig() config.DemoConfig {
	return config.DemoConfig{
		JWTSecret:          "test-secret",
		AccessTokenTTL:     time.Minute,
		RefreshTokenTTL:    time.Hour,
		CORSAllowedOrigins: "*",
		Seed:               true,
	}
}

func newBackend(t *testing.T) string {
	t.Helper()
	s, err := server.New(context.Background(), demoConfig(), config.LiveConfig{}, memory.New())
	require.NoError(t, err)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		assert.NoError(t, s.Shutdown(ctx))
		ts.Close()
	})
	return ts.URL
}

func login(t *testing.T, baseURL, email string) (*apiclient.Client, *model.User) {
	t.Helper()
	c, err := apiclient.New(apiclient.Options{BaseURL: baseURL, Timeout: 5 * time.Second})
	require.NoError(t, err)
	u, err := c.Login(context.Background(), email, repository.DemoPassword)
	require.NoError(t, err)
	return c, u
}

func driverOf(t *testing.T, c *apiclient.Client) model.Contact {
	t.Helper()
	contacts, err := c.Contacts(context.Background())
	require.NoError(t, err)
	require.Len(t, contacts, 1)
	require.Equal(t, model.AccountAdminDriver, contacts[0].AccountType)
	return contacts[0]
}

func TestLoginAndWrongPassword(t *testing.T) {
	base := newBackend(t)
	c, u := login(t, base, repository.SeedResidentEmail)
	assert.Equal(t, "Sita Sharma", u.Name)
	assert.NotEmpty(t, c.Session().Token())

	other, err := apiclient.New(apiclient.Options{BaseURL: base})
	require.NoError(t, err)
	_, err = other.Login(context.Background(), repository.SeedResidentEmail, "wrong-password")
	require.Error(t, err)
	assert.True(t, apiclient.IsUnauthorized(err))
	var apiErr *apiclient.Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "INVALID_CREDENTIALS", apiErr.Code)
	assert.Equal(t, "Invalid email or password", apiErr.Message)
}

func TestExpiredTokenIsRefreshedWithCookie(t *testing.T) {
	base := newBackend(t)
	c, u := login(t, base, repository.SeedResidentEmail)

	c.Session().SetToken("no-longer-valid")
	me, err := c.Me(context.Background())
	require.NoError(t, err)
	assert.Equal(t, u.ID, me.ID)
	assert.NotEqual(t, "no-longer-valid", c.Session().Token())

	require.NoError(t, c.Logout(context.Background()))
	assert.Empty(t, c.Session().Token())

	// The revoked cookie cannot mint a new token.
	c.Session().SetToken("no-longer-valid")
	_, err = c.Me(context.Background())
	require.Error(t, err)
	assert.True(t, apiclient.IsUnauthorized(err))
	assert.Empty(t, c.Session().Token())
}

func TestConversationOverREST(t *testing.T) {
	base := newBackend(t)
	ctx := context.Background()
	c, u := login(t, base, repository.SeedResidentEmail)
	driver := driverOf(t, c)

	history, err := c.History(ctx, driver.ID)
	require.NoError(t, err)
	require.Len(t, history, 3)
	require.NotNil(t, history[1].ReplyTo)
	assert.Equal(t, "seed-m1", history[1].ReplyTo.MessageID)

	sent, err := c.SendMessage(ctx, driver.ID, model.SendMessageRequest{Body: "Bin collected, thanks", ReplyToMessageID: "seed-m2"})
	require.NoError(t, err)
	assert.Equal(t, u.ID, sent.SenderID)
	require.NotNil(t, sent.ReplyTo)
	assert.Equal(t, "seed-m2", sent.ReplyTo.MessageID)

	edited, err := c.EditMessage(ctx, driver.ID, sent.ID, "Bin collected, thank you")
	require.NoError(t, err)
	assert.Equal(t, "Bin collected, thank you", edited.Body)
	assert.NotNil(t, edited.EditedAt)

	deleted, err := c.DeleteMessage(ctx, driver.ID, sent.ID)
	require.NoError(t, err)
	assert.True(t, deleted.IsDeleted)

	// Someone else's message cannot be changed.
	_, err = c.EditMessage(ctx, driver.ID, "seed-m2", "hijack")
	require.Error(t, err)
	assert.True(t, apiclient.IsForbidden(err))

	_, err = c.SendMessage(ctx, driver.ID, model.SendMessageRequest{Body: "   "})
	require.Error(t, err)
	var apiErr *apiclient.Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 400, apiErr.Status)
	assert.Equal(t, "message body is required", apiErr.Message)
}

func TestResidentCannotUseAdminEndpoints(t *testing.T) {
	base := newBackend(t)
	c, _ := login(t, base, repository.SeedResidentEmail)
	_, err := c.ListUsers(context.Background())
	require.Error(t, err)
	assert.True(t, apiclient.IsForbidden(err))
	_, err = c.ListInvoices(context.Background(), true)
	assert.True(t, apiclient.IsForbidden(err))
}

func TestInvoicesAndLateFee(t *testing.T) {
	base := newBackend(t)
	ctx := context.Background()
	resident, u := login(t, base, repository.SeedResidentEmail)
	admin, _ := login(t, base, repository.SeedDriverEmail)

	own, err := resident.ListInvoices(ctx, false)
	require.NoError(t, err)
	require.Len(t, own, 3)
	var overdue model.Invoice
	for _, inv := range own {
		assert.Equal(t, u.ID, inv.UserID)
		if inv.Status == model.InvoiceOverdue {
			overdue = inv
		}
	}
	require.NotEmpty(t, overdue.ID)

	// The late fee applies to an overdue invoice.
	_, err = resident.PayInvoice(ctx, overdue.ID, overdue.AmountNPR)
	require.Error(t, err)
	paid, err := resident.PayInvoice(ctx, overdue.ID, repository.AmountDue(overdue))
	require.NoError(t, err)
	assert.Equal(t, model.InvoicePaid, paid.Status)

	all, err := admin.ListInvoices(ctx, true)
	require.NoError(t, err)
	assert.Len(t, all, 4)

	created, err := admin.CreateInvoice(ctx, model.NewInvoice{
		UserID: u.ID, Period: "Extra pickup", AmountNPR: 120, DueAt: time.Now().Add(72 * time.Hour),
	})
	require.NoError(t, err)
	updated, err := admin.UpdateInvoiceAmount(ctx, created.ID, 150)
	require.NoError(t, err)
	assert.InDelta(t, 150, updated.AmountNPR, 0.001)
	updated, err = admin.UpdateInvoiceLateFee(ctx, created.ID, 10)
	require.NoError(t, err)
	assert.InDelta(t, 10, updated.LateFeePercent, 0.001)
	require.NoError(t, admin.DeleteInvoice(ctx, created.ID))
	_, err = admin.UpdateInvoiceAmount(ctx, created.ID, 10)
	assert.True(t, apiclient.IsNotFound(err))
}

func TestRatings(t *testing.T) {
	base := newBackend(t)
	ctx := context.Background()
	sita, _ := login(t, base, repository.SeedResidentEmail)
	ram, _ := login(t, base, repository.SeedNeighborEmail)

	_, err := sita.SubmitRating(ctx, 5, "Always on time")
	require.NoError(t, err)
	res, err := ram.SubmitRating(ctx, 4, "")
	require.NoError(t, err)
	assert.Equal(t, 2, res.TotalRatings)
	assert.InDelta(t, 4.5, res.AverageScore, 0.001)

	summary, err := sita.RatingSummary(ctx)
	require.NoError(t, err)
	require.NotNil(t, summary.MyRating)
	assert.Equal(t, 5, summary.MyRating.Score)
}

func TestAdminCreatesUserWithImage(t *testing.T) {
	base := newBackend(t)
	ctx := context.Background()
	admin, _ := login(t, base, repository.SeedDriverEmail)

	created, err := admin.CreateUser(ctx, model.NewUser{
		Name: "Hari Karki", Email: "hari@kachara.np", Password: "hari-secret",
		Society: "Green Valley", Building: "C3", Apartment: "2B",
		ImageName: "hari.png", ImageType: "image/png", Image: pngPixel,
	})
	require.NoError(t, err)
	require.NotNil(t, created)
	assert.Equal(t, model.AccountResident, created.AccountType)
	require.NotNil(t, created.ProfileImageURL)

	blob, err := admin.GetBlob(ctx, *created.ProfileImageURL)
	require.NoError(t, err)
	assert.Equal(t, "image/png", blob.ContentType)
	assert.Equal(t, pngPixel, blob.Data)

	hari, err := apiclient.New(apiclient.Options{BaseURL: base})
	require.NoError(t, err)
	_, err = hari.Login(ctx, "hari@kachara.np", "hari-secret")
	require.NoError(t, err)

	banned := true
	_, err = admin.UpdateUserStatus(ctx, created.ID, model.UserStatusUpdate{IsBanned: &banned})
	require.NoError(t, err)
	_, err = hari.Me(ctx)
	require.NoError(t, err, "an issued access token stays valid until it expires")
	hari.Session().SetToken("stale")
	_, err = hari.Me(ctx)
	assert.True(t, apiclient.IsUnauthorized(err), "a banned account cannot refresh")

	require.NoError(t, admin.DeleteUser(ctx, created.ID))
	_, err = admin.GetUser(ctx, created.ID)
	assert.True(t, apiclient.IsNotFound(err))
}

func TestProfileImageThroughAvatarCache(t *testing.T) {
	base := newBackend(t)
	ctx := context.Background()
	c, _ := login(t, base, repository.SeedResidentEmail)

	require.NoError(t, c.UploadProfileImage(ctx, "me.png", "", pngPixel))
	me, err := c.Me(ctx)
	require.NoError(t, err)
	require.NotNil(t, me.ProfileImageURL)

	cache := avatar.New(c, memory.New(), time.Hour)
	defer func() { assert.NoError(t, cache.Close(ctx)) }()

	var wg sync.WaitGroup
	handles := make([]avatar.Handle, 4)
	for i := range handles {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			h, err := cache.Resolve(ctx, *me.ProfileImageURL)
			assert.NoError(t, err)
			handles[i] = h
		}(i)
	}
	wg.Wait()
	for _, h := range handles[1:] {
		assert.Equal(t, handles[0], h)
	}
	blob, err := cache.Open(ctx, handles[0])
	require.NoError(t, err)
	assert.Equal(t, pngPixel, blob.Data)

	// A new upload changes the URL, so the old handle is not reused.
	require.NoError(t, c.UploadProfileImage(ctx, "me.png", "image/png", pngPixel))
	again, err := c.Me(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, *me.ProfileImageURL, *again.ProfileImageURL)
}

func startLive(t *testing.T, base string, c *apiclient.Client) *live.Client {
	t.Helper()
	lc := live.New(live.Options{
		BaseURL:   base,
		Session:   c.Session(),
		Config:    config.LiveConfig{ReconnectMin: 50 * time.Millisecond, ReconnectMax: 200 * time.Millisecond},
		Refresher: c,
	})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = lc.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	require.Eventually(t, lc.Connected, 3*time.Second, 10*time.Millisecond)
	return lc
}

func TestLiveSendAndPanelSync(t *testing.T) {
	base := newBackend(t)
	ctx := context.Background()
	sita, sitaUser := login(t, base, repository.SeedResidentEmail)
	driverClient, driverUser := login(t, base, repository.SeedDriverEmail)

	sitaLive := startLive(t, base, sita)
	driverLive := startLive(t, base, driverClient)

	panel := chat.NewPanel(chat.Options{API: sita, Live: sitaLive, UserID: sitaUser.ID, SendTimeout: 2 * time.Second})
	defer panel.Close()
	unsubscribe := sitaLive.On(model.EventMessageNew, panel.HandleEvent)
	defer unsubscribe()
	unsubscribeUpd := sitaLive.On(model.EventMessageUpdated, panel.HandleEvent)
	defer unsubscribeUpd()

	require.NoError(t, panel.LoadContacts(ctx))
	require.Equal(t, driverUser.ID, panel.View().ContactID)
	require.NoError(t, panel.SelectContact(ctx, driverUser.ID))
	require.Len(t, panel.View().Messages, 3)

	received := make(chan model.Message, 4)
	off := driverLive.On(model.EventMessageNew, func(_ string, data json.RawMessage) {
		var m model.Message
		if json.Unmarshal(data, &m) == nil {
			received <- m
		}
	})
	defer off()

	// Resident sends over the live channel.
	panel.SetDraft("Truck skipped our lane today")
	sent, err := panel.Send(ctx)
	require.NoError(t, err)
	assert.Empty(t, panel.View().Draft)
	select {
	case m := <-received:
		assert.Equal(t, sent.ID, m.ID)
	case <-time.After(3 * time.Second):
		t.Fatal("driver did not receive the message")
	}

	// Driver answers over REST; the resident's panel picks it up live.
	reply, err := driverClient.SendMessage(ctx, sitaUser.ID, model.SendMessageRequest{Body: "Sorry, coming back at 4", ReplyToMessageID: sent.ID})
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		_, ok := panel.View().Message(reply.ID)
		return ok
	}, 3*time.Second, 10*time.Millisecond)

	// Driver deletes it; the resident sees the placeholder in place.
	_, err = driverClient.DeleteMessage(ctx, sitaUser.ID, reply.ID)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		m, ok := panel.View().Message(reply.ID)
		return ok && m.IsDeleted
	}, 3*time.Second, 10*time.Millisecond)
	msgs := panel.View().Messages
	assert.Equal(t, reply.ID, msgs[len(msgs)-1].ID)

	// Live rejects an invalid send with the server's reason.
	_, err = sitaLive.SendMessage(ctx, model.SendMessageRequest{RecipientID: sitaUser.ID, Body: "to myself"})
	require.Error(t, err)
	assert.ErrorIs(t, err, live.ErrAckFailed)
}
