package repository

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/kacharaalert/internal/logger"
	"github.com/kacharaalert/internal/model"
)

type UserRepository struct {
	db *DB
}

func NewUserRepository(db *DB) *UserRepository {
	return &UserRepository{db: db}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Create stores a new account with a bcrypt hash of password. The email must
// be unused.
func (r *UserRepository) Create(ctx context.Context, u model.User, password string) (*model.User, error) {
	defer logger.DeferLogDuration("user.Create", time.Now())()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("userRepo.Create hash: %w", err)
	}
	email := normalizeEmail(u.Email)

	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if _, taken := r.db.emails[email]; taken {
		return nil, fmt.Errorf("userRepo.Create %s: %w", email, ErrConflict)
	}
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.AccountType == "" {
		u.AccountType = model.AccountResident
	}
	u.Email = email
	rec := &UserRecord{User: u, PasswordHash: hash, CreatedAt: r.db.now()}
	r.db.users[u.ID] = rec
	r.db.emails[email] = u.ID
	out := rec.User
	return &out, nil
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (*model.User, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	rec, ok := r.db.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	u := rec.User
	return &u, nil
}

// Authenticate returns the account for email when password matches.
func (r *UserRepository) Authenticate(ctx context.Context, email, password string) (*model.User, error) {
	defer logger.DeferLogDuration("user.Authenticate", time.Now())()
	r.db.mu.RLock()
	id, ok := r.db.emails[normalizeEmail(email)]
	var rec UserRecord
	if ok {
		rec = *r.db.users[id]
	}
	r.db.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	if err := bcrypt.CompareHashAndPassword(rec.PasswordHash, []byte(password)); err != nil {
		return nil, ErrNotFound
	}
	u := rec.User
	return &u, nil
}

// List returns every account ordered by name.
func (r *UserRepository) List(ctx context.Context) ([]model.User, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	users := make([]model.User, 0, len(r.db.users))
	for _, rec := range r.db.users {
		users = append(users, rec.User)
	}
	sort.Slice(users, func(i, j int) bool {
		if users[i].Name != users[j].Name {
			return users[i].Name < users[j].Name
		}
		return users[i].ID < users[j].ID
	})
	return users, nil
}

// Update applies fn to the stored account under the write lock.
func (r *UserRepository) Update(ctx context.Context, id string, fn func(u *model.User) error) (*model.User, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	rec, ok := r.db.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	next := rec.User
	if err := fn(&next); err != nil {
		return nil, err
	}
	next.ID, next.Email = rec.ID, rec.Email
	rec.User = next
	return &next, nil
}

// Delete removes the account together with its invoices and rating.
// Messages stay so the other participant keeps the history.
func (r *UserRepository) Delete(ctx context.Context, id string) error {
	defer logger.DeferLogDuration("user.Delete", time.Now())()
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	rec, ok := r.db.users[id]
	if !ok {
		return ErrNotFound
	}
	delete(r.db.users, id)
	delete(r.db.emails, rec.Email)
	delete(r.db.ratings, id)
	for invID, inv := range r.db.invoices {
		if inv.UserID == id {
			delete(r.db.invoices, invID)
		}
	}
	return nil
}
