package repository

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kacharaalert/internal/logger"
	"github.com/kacharaalert/internal/model"
)

const maxMessageLength = 2000

type MessageRepository struct {
	db *DB
}

func NewMessageRepository(db *DB) *MessageRepository {
	return &MessageRepository{db: db}
}

// canMessage: residents talk to admin/driver accounts, admin/drivers talk to
// everyone. Nobody messages themselves.
func canMessage(from, to *UserRecord) bool {
	if from.ID == to.ID {
		return false
	}
	return from.AccountType == model.AccountAdminDriver || to.AccountType == model.AccountAdminDriver
}

// Contacts lists the accounts userID may message, ordered by name.
func (r *MessageRepository) Contacts(ctx context.Context, userID string) ([]model.Contact, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	me, ok := r.db.users[userID]
	if !ok {
		return nil, ErrNotFound
	}
	contacts := make([]model.Contact, 0)
	for _, u := range r.db.users {
		if canMessage(me, u) && !u.IsBanned {
			contacts = append(contacts, u.Contact())
		}
	}
	sort.Slice(contacts, func(i, j int) bool {
		if contacts[i].Name != contacts[j].Name {
			return contacts[i].Name < contacts[j].Name
		}
		return contacts[i].ID < contacts[j].ID
	})
	return contacts, nil
}

func validBody(body string) (string, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return "", fmt.Errorf("%w: message body is required", ErrInvalid)
	}
	if len(body) > maxMessageLength {
		return "", fmt.Errorf("%w: message is longer than %d characters", ErrInvalid, maxMessageLength)
	}
	return body, nil
}

// Create stores a message from senderID to recipientID. replyToID, when set,
// must name a message of the same conversation.
func (r *MessageRepository) Create(ctx context.Context, senderID, recipientID, body, replyToID string) (*model.Message, error) {
	defer logger.DeferLogDuration("msg.Create", time.Now())()
	body, err := validBody(body)
	if err != nil {
		return nil, err
	}

	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	sender, ok := r.db.users[senderID]
	if !ok {
		return nil, fmt.Errorf("msgRepo.Create sender: %w", ErrNotFound)
	}
	recipient, ok := r.db.users[recipientID]
	if !ok {
		return nil, fmt.Errorf("%w: recipient not found", ErrNotFound)
	}
	if !canMessage(sender, recipient) || sender.IsBanned || recipient.IsBanned {
		return nil, fmt.Errorf("%w: you cannot message this user", ErrForbidden)
	}
	if replyToID != "" {
		target, ok := r.db.messages[replyToID]
		if !ok || !sameConversation(target, senderID, recipientID) {
			return nil, fmt.Errorf("%w: reply target not found", ErrNotFound)
		}
	}
	m := &MessageRecord{
		ID:          uuid.NewString(),
		SenderID:    senderID,
		RecipientID: recipientID,
		Body:        body,
		ReplyToID:   replyToID,
		CreatedAt:   r.db.now(),
	}
	r.db.messages[m.ID] = m
	out := r.toModel(m)
	return &out, nil
}

func sameConversation(m *MessageRecord, a, b string) bool {
	return (m.SenderID == a && m.RecipientID == b) || (m.SenderID == b && m.RecipientID == a)
}

// Conversation returns the messages between userID and contactID, oldest
// first, and marks the ones addressed to userID as read.
func (r *MessageRepository) Conversation(ctx context.Context, userID, contactID string) ([]model.Message, error) {
	defer logger.DeferLogDuration("msg.Conversation", time.Now())()
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if _, ok := r.db.users[contactID]; !ok {
		return nil, fmt.Errorf("%w: contact not found", ErrNotFound)
	}
	now := r.db.now()
	records := make([]*MessageRecord, 0)
	for _, m := range r.db.messages {
		if !sameConversation(m, userID, contactID) {
			continue
		}
		if m.RecipientID == userID && m.ReadAt == nil {
			t := now
			m.ReadAt = &t
		}
		records = append(records, m)
	}
	sort.SliceStable(records, func(i, j int) bool {
		if !records[i].CreatedAt.Equal(records[j].CreatedAt) {
			return records[i].CreatedAt.Before(records[j].CreatedAt)
		}
		return records[i].ID < records[j].ID
	})
	out := make([]model.Message, 0, len(records))
	for _, m := range records {
		out = append(out, r.toModel(m))
	}
	return out, nil
}

// Edit changes the body of one of userID's own messages in the conversation
// with contactID.
func (r *MessageRepository) Edit(ctx context.Context, userID, contactID, messageID, body string) (*model.Message, error) {
	body, err := validBody(body)
	if err != nil {
		return nil, err
	}
	return r.mutate(userID, contactID, messageID, func(m *MessageRecord, now time.Time) error {
		if m.DeletedAt != nil {
			return fmt.Errorf("%w: deleted messages cannot be edited", ErrInvalid)
		}
		m.Body = body
		m.EditedAt = &now
		return nil
	})
}

// SoftDelete marks one of userID's own messages deleted. The row stays so
// both sides keep its position.
func (r *MessageRepository) SoftDelete(ctx context.Context, userID, contactID, messageID string) (*model.Message, error) {
	return r.mutate(userID, contactID, messageID, func(m *MessageRecord, now time.Time) error {
		if m.DeletedAt == nil {
			m.DeletedAt = &now
		}
		return nil
	})
}

func (r *MessageRepository) mutate(userID, contactID, messageID string, fn func(m *MessageRecord, now time.Time) error) (*model.Message, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	m, ok := r.db.messages[messageID]
	if !ok || !sameConversation(m, userID, contactID) {
		return nil, fmt.Errorf("%w: message not found", ErrNotFound)
	}
	if m.SenderID != userID {
		return nil, fmt.Errorf("%w: only the sender can change a message", ErrForbidden)
	}
	if err := fn(m, r.db.now()); err != nil {
		return nil, err
	}
	out := r.toModel(m)
	return &out, nil
}

// toModel resolves names, images and the reply preview. Deleted bodies are
// redacted. Caller holds the lock.
func (r *MessageRepository) toModel(m *MessageRecord) model.Message {
	out := model.Message{
		ID:          m.ID,
		SenderID:    m.SenderID,
		RecipientID: m.RecipientID,
		Body:        m.Body,
		CreatedAt:   m.CreatedAt,
		ReadAt:      m.ReadAt,
		EditedAt:    m.EditedAt,
		DeletedAt:   m.DeletedAt,
		IsDeleted:   m.DeletedAt != nil,
	}
	if out.IsDeleted {
		out.Body = ""
	}
	if u, ok := r.db.users[m.SenderID]; ok {
		out.SenderName, out.SenderProfileImageURL = u.Name, u.ProfileImageURL
	}
	if u, ok := r.db.users[m.RecipientID]; ok {
		out.RecipientName, out.RecipientProfileImageURL = u.Name, u.ProfileImageURL
	}
	if m.ReplyToID != "" {
		if target, ok := r.db.messages[m.ReplyToID]; ok {
			preview := model.ReplyPreview{MessageID: target.ID, SenderID: target.SenderID, Body: target.Body}
			if target.DeletedAt != nil {
				preview.Body = model.DeletedPlaceholder
			}
			if u, ok := r.db.users[target.SenderID]; ok {
				preview.SenderName = u.Name
			}
			out.ReplyTo = &preview
		}
	}
	return out
}

// Insert stores a prepared record; used for seeding.
func (r *MessageRepository) Insert(ctx context.Context, m MessageRecord) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if _, ok := r.db.messages[m.ID]; ok {
		return ErrConflict
	}
	r.db.messages[m.ID] = &m
	return nil
}
