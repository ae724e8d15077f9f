package repository

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kacharaalert/internal/logger"
	"github.com/kacharaalert/internal/model"
)

type InvoiceRepository struct {
	db *DB
}

func NewInvoiceRepository(db *DB) *InvoiceRepository {
	return &InvoiceRepository{db: db}
}

func status(inv *InvoiceRecord, now time.Time) model.InvoiceStatus {
	switch {
	case inv.PaidAt != nil:
		return model.InvoicePaid
	case now.After(inv.DueAt):
		return model.InvoiceOverdue
	default:
		return model.InvoiceDue
	}
}

// AmountDue is the amount plus the late fee once the invoice is overdue,
// rounded to paisa.
func AmountDue(inv model.Invoice) float64 {
	due := inv.AmountNPR
	if inv.Status == model.InvoiceOverdue {
		due += inv.AmountNPR * inv.LateFeePercent / 100
	}
	return math.Round(due*100) / 100
}

func toInvoice(inv *InvoiceRecord, now time.Time) model.Invoice {
	return model.Invoice{
		ID:             inv.ID,
		Period:         inv.Period,
		AmountNPR:      inv.AmountNPR,
		Status:         status(inv, now),
		IssuedAt:       inv.IssuedAt,
		DueAt:          inv.DueAt,
		LateFeePercent: inv.LateFeePercent,
		UserID:         inv.UserID,
	}
}

func validAmount(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) && v > 0 }

func validLateFee(v float64) bool { return !math.IsNaN(v) && v >= 0 && v <= 100 }

func (r *InvoiceRepository) Create(ctx context.Context, in model.NewInvoice) (*model.Invoice, error) {
	defer logger.DeferLogDuration("invoice.Create", time.Now())()
	period := strings.TrimSpace(in.Period)
	switch {
	case period == "":
		return nil, fmt.Errorf("%w: period is required", ErrInvalid)
	case !validAmount(in.AmountNPR):
		return nil, fmt.Errorf("%w: amount must be a positive number", ErrInvalid)
	case !validLateFee(in.LateFeePercent):
		return nil, fmt.Errorf("%w: late fee must be between 0 and 100", ErrInvalid)
	case in.DueAt.IsZero():
		return nil, fmt.Errorf("%w: due date is required", ErrInvalid)
	}

	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	u, ok := r.db.users[in.UserID]
	if !ok || u.AccountType != model.AccountResident {
		return nil, fmt.Errorf("%w: resident not found", ErrNotFound)
	}
	now := r.db.now()
	inv := &InvoiceRecord{
		ID:             uuid.NewString(),
		UserID:         in.UserID,
		Period:         period,
		AmountNPR:      in.AmountNPR,
		IssuedAt:       now,
		DueAt:          in.DueAt.UTC(),
		LateFeePercent: in.LateFeePercent,
	}
	r.db.invoices[inv.ID] = inv
	out := toInvoice(inv, now)
	return &out, nil
}

// List returns the invoices of userID, or all invoices when userID is empty,
// newest due date first.
func (r *InvoiceRepository) List(ctx context.Context, userID string) ([]model.Invoice, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	now := r.db.now()
	out := make([]model.Invoice, 0)
	for _, inv := range r.db.invoices {
		if userID == "" || inv.UserID == userID {
			out = append(out, toInvoice(inv, now))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].DueAt.Equal(out[j].DueAt) {
			return out[i].DueAt.After(out[j].DueAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r *InvoiceRepository) GetByID(ctx context.Context, id string) (*model.Invoice, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	inv, ok := r.db.invoices[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := toInvoice(inv, r.db.now())
	return &out, nil
}

// Pay settles the invoice when amount covers what is due. Paying a paid
// invoice is a no-op.
func (r *InvoiceRepository) Pay(ctx context.Context, id string, amount float64) (*model.Invoice, error) {
	defer logger.DeferLogDuration("invoice.Pay", time.Now())()
	if !validAmount(amount) {
		return nil, fmt.Errorf("%w: amount must be a positive number", ErrInvalid)
	}
	return r.update(id, func(inv *InvoiceRecord, now time.Time) error {
		if inv.PaidAt != nil {
			return nil
		}
		due := AmountDue(toInvoice(inv, now))
		if amount+0.005 < due {
			return fmt.Errorf("%w: payment of %.2f is less than the %.2f due", ErrInvalid, amount, due)
		}
		inv.PaidAt = &now
		return nil
	})
}

func (r *InvoiceRepository) SetAmount(ctx context.Context, id string, amount float64) (*model.Invoice, error) {
	if !validAmount(amount) {
		return nil, fmt.Errorf("%w: amount must be a positive number", ErrInvalid)
	}
	return r.update(id, func(inv *InvoiceRecord, _ time.Time) error {
		if inv.PaidAt != nil {
			return fmt.Errorf("%w: paid invoices cannot be changed", ErrInvalid)
		}
		inv.AmountNPR = amount
		return nil
	})
}

func (r *InvoiceRepository) SetLateFee(ctx context.Context, id string, percent float64) (*model.Invoice, error) {
	if !validLateFee(percent) {
		return nil, fmt.Errorf("%w: late fee must be between 0 and 100", ErrInvalid)
	}
	return r.update(id, func(inv *InvoiceRecord, _ time.Time) error {
		inv.LateFeePercent = percent
		return nil
	})
}

func (r *InvoiceRepository) Delete(ctx context.Context, id string) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if _, ok := r.db.invoices[id]; !ok {
		return ErrNotFound
	}
	delete(r.db.invoices, id)
	return nil
}

func (r *InvoiceRepository) update(id string, fn func(inv *InvoiceRecord, now time.Time) error) (*model.Invoice, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	inv, ok := r.db.invoices[id]
	if !ok {
		return nil, ErrNotFound
	}
	now := r.db.now()
	next := *inv
	if err := fn(&next, now); err != nil {
		return nil, err
	}
	*inv = next
	out := toInvoice(inv, now)
	return &out, nil
}

// Insert stores a prepared record; used for seeding.
func (r *InvoiceRepository) Insert(ctx context.Context, inv InvoiceRecord) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if inv.ID == "" {
		inv.ID = uuid.NewString()
	}
	r.db.invoices[inv.ID] = &inv
	return nil
}
