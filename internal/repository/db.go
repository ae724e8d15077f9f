// Package repository holds the demo backend's tables in memory. Each
// repository is a view over one shared DB.
package repository

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/kacharaalert/internal/model"
)

var (
	ErrNotFound  = errors.New("not found")
	ErrConflict  = errors.New("already exists")
	ErrForbidden = errors.New("forbidden")
	ErrInvalid   = errors.New("invalid")
)

// Reason returns the user-facing part of a repository error: the detail
// after the sentinel prefix, or the sentinel text itself.
func Reason(err error) string {
	for _, sentinel := range []error{ErrInvalid, ErrForbidden, ErrNotFound, ErrConflict} {
		if !errors.Is(err, sentinel) {
			continue
		}
		if _, detail, ok := strings.Cut(err.Error(), sentinel.Error()+": "); ok && detail != "" {
			return detail
		}
		return sentinel.Error()
	}
	return err.Error()
}

// UserRecord is a stored account.
type UserRecord struct {
	model.User
	PasswordHash []byte
	CreatedAt    time.Time
}

// MessageRecord is a stored direct message. The reply preview is resolved
// when the message is read.
type MessageRecord struct {
	ID          string
	SenderID    string
	RecipientID string
	Body        string
	ReplyToID   string
	CreatedAt   time.Time
	ReadAt      *time.Time
	EditedAt    *time.Time
	DeletedAt   *time.Time
}

// InvoiceRecord is a stored invoice; status is derived on read.
type InvoiceRecord struct {
	ID             string
	UserID         string
	Period         string
	AmountNPR      float64
	IssuedAt       time.Time
	DueAt          time.Time
	LateFeePercent float64
	PaidAt         *time.Time
}

type RatingRecord struct {
	ID        string
	UserID    string
	Score     int
	Comment   string
	UpdatedAt time.Time
}

// DB is the in-memory store shared by the repositories.
type DB struct {
	mu       sync.RWMutex
	users    map[string]*UserRecord
	emails   map[string]string
	messages map[string]*MessageRecord
	invoices map[string]*InvoiceRecord
	ratings  map[string]*RatingRecord // by user id

	now func() time.Time
}

func NewDB() *DB {
	return &DB{
		users:    make(map[string]*UserRecord),
		emails:   make(map[string]string),
		messages: make(map[string]*MessageRecord),
		invoices: make(map[string]*InvoiceRecord),
		ratings:  make(map[string]*RatingRecord),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// SetClock replaces the time source; used by tests.
func (db *DB) SetClock(now func() time.Time) {
	db.mu.Lock()
	db.now = now
	db.mu.Unlock()
}

func (db *DB) Now() time.Time {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.now()
}
