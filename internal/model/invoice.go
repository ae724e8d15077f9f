package model

import "time"

type InvoiceStatus string

const (
	InvoicePaid    InvoiceStatus = "Paid"
	InvoiceDue     InvoiceStatus = "Due"
	InvoiceOverdue InvoiceStatus = "Overdue"
)

type Invoice struct {
	ID             string        `json:"id"`
	Period         string        `json:"period"`
	AmountNPR      float64       `json:"amountNPR"`
	Status         InvoiceStatus `json:"status"`
	IssuedAt       time.Time     `json:"issuedAt"`
	DueAt          time.Time     `json:"dueAt"`
	LateFeePercent float64       `json:"lateFeePercent"`
	UserID         string        `json:"userId"`
}

type NewInvoice struct {
	UserID         string    `json:"userId"`
	Period         string    `json:"period"`
	AmountNPR      float64   `json:"amountNPR"`
	DueAt          time.Time `json:"dueAt"`
	LateFeePercent float64   `json:"lateFeePercent"`
}

type AmountRequest struct {
	AmountNPR float64 `json:"amountNPR"`
}

type LateFeeRequest struct {
	LateFeePercent float64 `json:"lateFeePercent"`
}
