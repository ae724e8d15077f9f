package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kacharaalert/internal/middleware"
	"github.com/kacharaalert/internal/model"
	"github.com/kacharaalert/internal/repository"
)

type InvoiceHandler struct {
	invoices *repository.InvoiceRepository
}

func NewInvoiceHandler(invoices *repository.InvoiceRepository) *InvoiceHandler {
	return &InvoiceHandler{invoices: invoices}
}

// ListOwn returns the caller's invoices, newest due date first.
func (h *InvoiceHandler) ListOwn(w http.ResponseWriter, r *http.Request) {
	list, err := h.invoices.List(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		writeRepoError(w, "list invoices", err)
		return
	}
	writeJSON(w, http.StatusOK, "Invoices loaded", list)
}

func (h *InvoiceHandler) ListAll(w http.ResponseWriter, r *http.Request) {
	list, err := h.invoices.List(r.Context(), "")
	if err != nil {
		writeRepoError(w, "list all invoices", err)
		return
	}
	writeJSON(w, http.StatusOK, "Invoices loaded", list)
}

func (h *InvoiceHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req model.NewInvoice
	if !decodeJSON(w, r, &req) {
		return
	}
	inv, err := h.invoices.Create(r.Context(), req)
	if err != nil {
		writeRepoError(w, "create invoice", err)
		return
	}
	writeJSON(w, http.StatusCreated, "Invoice created", inv)
}

// Pay settles an invoice of the caller; admins may settle any invoice.
func (h *InvoiceHandler) Pay(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req model.AmountRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	inv, err := h.invoices.GetByID(r.Context(), id)
	if err != nil {
		writeRepoError(w, "pay invoice", err)
		return
	}
	if inv.UserID != middleware.GetUserID(r.Context()) && middleware.GetAccountType(r.Context()) != model.AccountAdminDriver {
		writeError(w, http.StatusNotFound, "Invoice not found", "NOT_FOUND")
		return
	}
	paid, err := h.invoices.Pay(r.Context(), id, req.AmountNPR)
	if err != nil {
		writeRepoError(w, "pay invoice", err)
		return
	}
	writeJSON(w, http.StatusOK, "Payment recorded", paid)
}

func (h *InvoiceHandler) UpdateAmount(w http.ResponseWriter, r *http.Request) {
	var req model.AmountRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	inv, err := h.invoices.SetAmount(r.Context(), chi.URLParam(r, "id"), req.AmountNPR)
	if err != nil {
		writeRepoError(w, "update invoice amount", err)
		return
	}
	writeJSON(w, http.StatusOK, "Invoice amount updated", inv)
}

func (h *InvoiceHandler) UpdateLateFee(w http.ResponseWriter, r *http.Request) {
	var req model.LateFeeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	inv, err := h.invoices.SetLateFee(r.Context(), chi.URLParam(r, "id"), req.LateFeePercent)
	if err != nil {
		writeRepoError(w, "update invoice late fee", err)
		return
	}
	writeJSON(w, http.StatusOK, "Late fee updated", inv)
}

func (h *InvoiceHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.invoices.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeRepoError(w, "delete invoice", err)
		return
	}
	writeJSON(w, http.StatusOK, "Invoice deleted", nil)
}
