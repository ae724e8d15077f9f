package model

import "time"

// DeletedPlaceholder replaces the body of a soft-deleted message when displayed.
const DeletedPlaceholder = "This message was deleted."

type AccountType string

const (
	AccountResident    AccountType = "resident"
	AccountAdminDriver AccountType = "admin_driver"
)

// Label is the human readable role shown next to a contact.
func (a AccountType) Label() string {
	if a == AccountAdminDriver {
		return "Admin / Driver"
	}
	return "Resident"
}

// Contact is a counterpart the current user may message.
type Contact struct {
	ID              string      `json:"id"`
	Name            string      `json:"name"`
	AccountType     AccountType `json:"accountType"`
	ProfileImageURL *string     `json:"profileImageUrl"`
}

// ReplyPreview is a shallow copy of the message being answered. It is a
// back-reference only; the server owns the relationship.
type ReplyPreview struct {
	MessageID  string `json:"messageId"`
	SenderID   string `json:"senderId"`
	SenderName string `json:"senderName"`
	Body       string `json:"body"`
}

type Message struct {
	ID                       string        `json:"id"`
	SenderID                 string        `json:"senderId"`
	RecipientID              string        `json:"recipientId"`
	SenderName               string        `json:"senderName"`
	SenderProfileImageURL    *string       `json:"senderProfileImageUrl"`
	RecipientName            string        `json:"recipientName"`
	RecipientProfileImageURL *string       `json:"recipientProfileImageUrl"`
	Body                     string        `json:"body"`
	CreatedAt                time.Time     `json:"createdAt"`
	ReadAt                   *time.Time    `json:"readAt"`
	EditedAt                 *time.Time    `json:"editedAt"`
	DeletedAt                *time.Time    `json:"deletedAt"`
	IsDeleted                bool          `json:"isDeleted"`
	ReplyTo                  *ReplyPreview `json:"replyTo"`
}

// DisplayBody returns the text to render for the message.
func (m Message) DisplayBody() string {
	if m.IsDeleted {
		return DeletedPlaceholder
	}
	return m.Body
}

// Involves reports whether userID is the sender or the recipient.
func (m Message) Involves(userID string) bool {
	return userID != "" && (m.SenderID == userID || m.RecipientID == userID)
}

// Preview captures the reply-to preview of m.
func (m Message) Preview() ReplyPreview {
	return ReplyPreview{MessageID: m.ID, SenderID: m.SenderID, SenderName: m.SenderName, Body: m.Body}
}

// SendMessageRequest is the body of a REST send and the payload of the live
// messages:send request.
type SendMessageRequest struct {
	RecipientID      string `json:"recipientId,omitempty"`
	Body             string `json:"body"`
	ReplyToMessageID string `json:"replyToMessageId,omitempty"`
}

// EditMessageRequest is the body of a message PATCH.
type EditMessageRequest struct {
	Body string `json:"body"`
}
