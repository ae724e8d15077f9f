package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kacharaalert/internal/model"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func seeded(t *testing.T) (*DB, *testClock) {
	t.Helper()
	db := NewDB()
	clock := &testClock{now: time.Date(2026, 5, 20, 9, 0, 0, 0, time.UTC)}
	db.SetClock(clock.Now)
	require.NoError(t, Seed(context.Background(), db))
	return db, clock
}

func userByEmail(t *testing.T, db *DB, email string) *model.User {
	t.Helper()
	u, err := NewUserRepository(db).Authenticate(context.Background(), email, DemoPassword)
	require.NoError(t, err)
	return u
}

func TestUserAuthenticateAndConflict(t *testing.T) {
	db, _ := seeded(t)
	users := NewUserRepository(db)
	ctx := context.Background()

	u, err := users.Authenticate(ctx, "  SITA@kachara.np ", DemoPassword)
	require.NoError(t, err)
	assert.Equal(t, "Sita Sharma", u.Name)

	_, err = users.Authenticate(ctx, SeedResidentEmail, "wrong")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = users.Create(ctx, model.User{Name: "Dup", Email: SeedResidentEmail}, "x")
	assert.ErrorIs(t, err, ErrConflict)
}

func TestUserUpdateAndDelete(t *testing.T) {
	db, _ := seeded(t)
	users := NewUserRepository(db)
	invoices := NewInvoiceRepository(db)
	ctx := context.Background()
	sita := userByEmail(t, db, SeedResidentEmail)

	updated, err := users.Update(ctx, sita.ID, func(u *model.User) error {
		u.IsBanned = true
		u.Email = "changed@x.y"
		return nil
	})
	require.NoError(t, err)
	assert.True(t, updated.IsBanned)
	assert.Equal(t, SeedResidentEmail, updated.Email, "email is immutable")

	require.NoError(t, users.Delete(ctx, sita.ID))
	_, err = users.GetByID(ctx, sita.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	list, err := invoices.List(ctx, sita.ID)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestContactsFollowAccountTypes(t *testing.T) {
	db, _ := seeded(t)
	messages := NewMessageRepository(db)
	ctx := context.Background()
	sita := userByEmail(t, db, SeedResidentEmail)
	driver := userByEmail(t, db, SeedDriverEmail)

	contacts, err := messages.Contacts(ctx, sita.ID)
	require.NoError(t, err)
	require.Len(t, contacts, 1)
	assert.Equal(t, driver.ID, contacts[0].ID)

	contacts, err = messages.Contacts(ctx, driver.ID)
	require.NoError(t, err)
	assert.Len(t, contacts, 2)
}

func TestConversationLifecycle(t *testing.T) {
	db, clock := seeded(t)
	messages := NewMessageRepository(db)
	ctx := context.Background()
	sita := userByEmail(t, db, SeedResidentEmail)
	driver := userByEmail(t, db, SeedDriverEmail)
	ram := userByEmail(t, db, SeedNeighborEmail)

	history, err := messages.Conversation(ctx, sita.ID, driver.ID)
	require.NoError(t, err)
	require.Len(t, history, 3)
	require.NotNil(t, history[1].ReplyTo)
	assert.Equal(t, "seed-m1", history[1].ReplyTo.MessageID)
	assert.Equal(t, "Sita Sharma", history[1].ReplyTo.SenderName)
	assert.NotNil(t, history[1].ReadAt, "messages to the reader are marked read")

	clock.Advance(time.Minute)
	sent, err := messages.Create(ctx, sita.ID, driver.ID, "  see you  ", "seed-m2")
	require.NoError(t, err)
	assert.Equal(t, "see you", sent.Body)
	assert.Equal(t, "Bikash Driver", sent.RecipientName)

	_, err = messages.Create(ctx, sita.ID, driver.ID, "x", "seed-m4")
	assert.ErrorIs(t, err, ErrNotFound, "reply target from another conversation")
	_, err = messages.Create(ctx, sita.ID, ram.ID, "hi", "")
	assert.ErrorIs(t, err, ErrForbidden, "residents only message admin/drivers")
	_, err = messages.Create(ctx, sita.ID, driver.ID, "   ", "")
	assert.ErrorIs(t, err, ErrInvalid)

	_, err = messages.Edit(ctx, driver.ID, sita.ID, sent.ID, "hijack")
	assert.ErrorIs(t, err, ErrForbidden)
	edited, err := messages.Edit(ctx, sita.ID, driver.ID, sent.ID, "see you at 7")
	require.NoError(t, err)
	assert.NotNil(t, edited.EditedAt)

	deleted, err := messages.SoftDelete(ctx, sita.ID, driver.ID, "seed-m1")
	require.NoError(t, err)
	assert.True(t, deleted.IsDeleted)
	assert.Empty(t, deleted.Body)
	_, err = messages.Edit(ctx, sita.ID, driver.ID, "seed-m1", "undo")
	assert.ErrorIs(t, err, ErrInvalid)

	history, err = messages.Conversation(ctx, driver.ID, sita.ID)
	require.NoError(t, err)
	require.Len(t, history, 4)
	assert.Equal(t, "seed-m1", history[0].ID)
	assert.True(t, history[0].IsDeleted)
	assert.Equal(t, model.DeletedPlaceholder, history[1].ReplyTo.Body)
}

func TestInvoicePaymentRules(t *testing.T) {
	db, clock := seeded(t)
	invoices := NewInvoiceRepository(db)
	ctx := context.Background()
	sita := userByEmail(t, db, SeedResidentEmail)

	list, err := invoices.List(ctx, sita.ID)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, model.InvoiceDue, list[0].Status)
	assert.Equal(t, model.InvoiceOverdue, list[1].Status)
	assert.Equal(t, model.InvoicePaid, list[2].Status)

	overdue := list[1]
	assert.Equal(t, 525.0, AmountDue(overdue))
	_, err = invoices.Pay(ctx, overdue.ID, 500)
	assert.ErrorIs(t, err, ErrInvalid)
	paid, err := invoices.Pay(ctx, overdue.ID, 525)
	require.NoError(t, err)
	assert.Equal(t, model.InvoicePaid, paid.Status)

	_, err = invoices.SetAmount(ctx, overdue.ID, 10)
	assert.ErrorIs(t, err, ErrInvalid)
	fee, err := invoices.SetLateFee(ctx, list[0].ID, 12.5)
	require.NoError(t, err)
	assert.Equal(t, 12.5, fee.LateFeePercent)

	clock.Advance(90 * 24 * time.Hour)
	current, err := invoices.GetByID(ctx, list[0].ID)
	require.NoError(t, err)
	assert.Equal(t, model.InvoiceOverdue, current.Status)

	driver := userByEmail(t, db, SeedDriverEmail)
	_, err = invoices.Create(ctx, model.NewInvoice{UserID: driver.ID, Period: "X", AmountNPR: 1, DueAt: clock.Now()})
	assert.ErrorIs(t, err, ErrNotFound, "invoices are for residents")

	all, err := invoices.List(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 4)
}

func TestRatings(t *testing.T) {
	db, _ := seeded(t)
	ratings := NewRatingRepository(db)
	ctx := context.Background()
	sita := userByEmail(t, db, SeedResidentEmail)
	ram := userByEmail(t, db, SeedNeighborEmail)

	summary, err := ratings.Summary(ctx, sita.ID)
	require.NoError(t, err)
	assert.Zero(t, summary.TotalRatings)
	assert.Nil(t, summary.MyRating)

	_, err = ratings.Upsert(ctx, sita.ID, 5, " great ")
	require.NoError(t, err)
	res, err := ratings.Upsert(ctx, ram.ID, 4, "")
	require.NoError(t, err)
	assert.Equal(t, 4.5, res.AverageScore)
	assert.Equal(t, 2, res.TotalRatings)

	res, err = ratings.Upsert(ctx, sita.ID, 3, "late today")
	require.NoError(t, err)
	assert.Equal(t, 3.5, res.AverageScore)
	assert.Equal(t, 2, res.TotalRatings)

	summary, err = ratings.Summary(ctx, sita.ID)
	require.NoError(t, err)
	require.NotNil(t, summary.MyRating)
	assert.Equal(t, "late today", summary.MyRating.Comment)

	_, err = ratings.Upsert(ctx, sita.ID, 0, "")
	assert.ErrorIs(t, err, ErrInvalid)
}
