package apiclient

import (
	"context"
	"errors"
	"math"
	"net/http"
	"net/url"

	"github.com/kacharaalert/internal/model"
)

var ErrInvalidAmount = errors.New("amount must be a positive number")

func validAmount(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v > 0
}

func validLateFee(v float64) bool {
	return !math.IsNaN(v) && v >= 0 && v <= 100
}

// ListInvoices returns the caller's invoices, or every invoice when all is
// set (admin view).
func (c *Client) ListInvoices(ctx context.Context, all bool) ([]model.Invoice, error) {
	path := "/api/v1/invoices"
	if all {
		path = "/api/v1/invoices/all"
	}
	var invoices []model.Invoice
	if _, err := c.Get(ctx, path, &invoices); err != nil {
		return nil, err
	}
	return invoices, nil
}

func (c *Client) CreateInvoice(ctx context.Context, inv model.NewInvoice) (*model.Invoice, error) {
	if !validAmount(inv.AmountNPR) {
		return nil, ErrInvalidAmount
	}
	if !validLateFee(inv.LateFeePercent) {
		return nil, ErrInvalidLateFee
	}
	if inv.UserID == "" || inv.Period == "" || inv.DueAt.IsZero() {
		return nil, errors.New("resident, period, amount and due date are required")
	}
	var created model.Invoice
	if _, err := c.Post(ctx, "/api/v1/invoices", inv, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

func (c *Client) PayInvoice(ctx context.Context, id string, amount float64) (*model.Invoice, error) {
	if !validAmount(amount) {
		return nil, ErrInvalidAmount
	}
	return c.invoiceMutation(ctx, http.MethodPost, "/api/v1/invoices/"+url.PathEscape(id)+"/pay", model.AmountRequest{AmountNPR: amount})
}

func (c *Client) UpdateInvoiceAmount(ctx context.Context, id string, amount float64) (*model.Invoice, error) {
	if !validAmount(amount) {
		return nil, ErrInvalidAmount
	}
	return c.invoiceMutation(ctx, http.MethodPatch, "/api/v1/invoices/"+url.PathEscape(id)+"/amount", model.AmountRequest{AmountNPR: amount})
}

func (c *Client) UpdateInvoiceLateFee(ctx context.Context, id string, percent float64) (*model.Invoice, error) {
	if !validLateFee(percent) {
		return nil, ErrInvalidLateFee
	}
	return c.invoiceMutation(ctx, http.MethodPatch, "/api/v1/invoices/"+url.PathEscape(id)+"/late-fee", model.LateFeeRequest{LateFeePercent: percent})
}

func (c *Client) DeleteInvoice(ctx context.Context, id string) error {
	_, err := c.Delete(ctx, "/api/v1/invoices/"+url.PathEscape(id), nil)
	return err
}

func (c *Client) invoiceMutation(ctx context.Context, method, path string, body any) (*model.Invoice, error) {
	var inv model.Invoice
	if _, err := c.doJSON(ctx, method, path, body, &inv); err != nil {
		return nil, err
	}
	return &inv, nil
}
