package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/kacharaalert/internal/model"
)

// DemoPassword is the password of every seeded account.
const DemoPassword = "kachara123"

// Seeded account emails.
const (
	SeedDriverEmail   = "driver@kachara.np"
	SeedResidentEmail = "sita@kachara.np"
	SeedNeighborEmail = "ram@kachara.np"
)

// Seed fills an empty DB with a driver, two residents, their invoices and a
// short conversation.
func Seed(ctx context.Context, db *DB) error {
	users := NewUserRepository(db)
	invoices := NewInvoiceRepository(db)
	messages := NewMessageRepository(db)

	driver, err := users.Create(ctx, model.User{
		AccountType: model.AccountAdminDriver,
		Name:        "Bikash Driver",
		Email:       SeedDriverEmail,
		Phone:       "9800000001",
		Society:     "Green Valley",
	}, DemoPassword)
	if err != nil {
		return fmt.Errorf("seed driver: %w", err)
	}
	sita, err := users.Create(ctx, model.User{
		Name: "Sita Sharma", Email: SeedResidentEmail, Phone: "9800000002",
		Society: "Green Valley", Building: "B2", Apartment: "4A", LateFeePercent: 5,
	}, DemoPassword)
	if err != nil {
		return fmt.Errorf("seed resident: %w", err)
	}
	ram, err := users.Create(ctx, model.User{
		Name: "Ram Thapa", Email: SeedNeighborEmail, Phone: "9800000003",
		Society: "Green Valley", Building: "B1", Apartment: "1C",
	}, DemoPassword)
	if err != nil {
		return fmt.Errorf("seed resident: %w", err)
	}

	now := db.Now()
	month := func(offset int) time.Time {
		return time.Date(now.Year(), now.Month()+time.Month(offset), 1, 0, 0, 0, 0, time.UTC)
	}
	paid := month(-1).Add(10 * 24 * time.Hour)
	for _, inv := range []InvoiceRecord{
		{UserID: sita.ID, Period: month(-2).Format("January 2006"), AmountNPR: 500, IssuedAt: month(-2), DueAt: month(-2).AddDate(0, 0, 15), LateFeePercent: 5, PaidAt: &paid},
		{UserID: sita.ID, Period: month(-1).Format("January 2006"), AmountNPR: 500, IssuedAt: month(-1), DueAt: month(-1).AddDate(0, 0, 15), LateFeePercent: 5},
		{UserID: sita.ID, Period: month(0).Format("January 2006"), AmountNPR: 550, IssuedAt: month(0), DueAt: month(1).AddDate(0, 0, 14), LateFeePercent: 5},
		{UserID: ram.ID, Period: month(0).Format("January 2006"), AmountNPR: 450, IssuedAt: month(0), DueAt: month(1).AddDate(0, 0, 14)},
	} {
		if err := invoices.Insert(ctx, inv); err != nil {
			return fmt.Errorf("seed invoice: %w", err)
		}
	}

	start := now.Add(-2 * time.Hour)
	first := MessageRecord{ID: "seed-m1", SenderID: sita.ID, RecipientID: driver.ID, Body: "Namaste! Is pickup still at 7 tomorrow?", CreatedAt: start}
	for _, m := range []MessageRecord{
		first,
		{ID: "seed-m2", SenderID: driver.ID, RecipientID: sita.ID, Body: "Yes, 7 AM sharp. Please keep the dry waste separate.", ReplyToID: first.ID, CreatedAt: start.Add(5 * time.Minute)},
		{ID: "seed-m3", SenderID: sita.ID, RecipientID: driver.ID, Body: "Will do, thanks!", CreatedAt: start.Add(7 * time.Minute)},
		{ID: "seed-m4", SenderID: ram.ID, RecipientID: driver.ID, Body: "The bin at B1 is overflowing.", CreatedAt: start.Add(30 * time.Minute)},
	} {
		if err := messages.Insert(ctx, m); err != nil {
			return fmt.Errorf("seed message: %w", err)
		}
	}
	return nil
}
