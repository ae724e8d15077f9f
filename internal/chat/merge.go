package chat

import (
	"slices"

	"github.com/kacharaalert/internal/model"
)

// Upsert returns a copy of list with msg replacing the entry of the same id,
// or appended, ordered by creation time. Entries with equal times keep their
// relative order, so replaying an event leaves the list unchanged.
func Upsert(list []model.Message, msg model.Message) []model.Message {
	next := make([]model.Message, len(list), len(list)+1)
	copy(next, list)
	if i := slices.IndexFunc(next, func(m model.Message) bool { return m.ID == msg.ID }); i >= 0 {
		next[i] = msg
	} else {
		next = append(next, msg)
	}
	slices.SortStableFunc(next, func(a, b model.Message) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return next
}

// Merge upserts every message of batch into list.
func Merge(list, batch []model.Message) []model.Message {
	for _, m := range batch {
		list = Upsert(list, m)
	}
	return list
}

// Accepts reports whether msg belongs to the conversation between userID and
// contactID.
func Accepts(userID, contactID string, msg model.Message) bool {
	if userID == "" || contactID == "" {
		return false
	}
	return (msg.SenderID == userID && msg.RecipientID == contactID) ||
		(msg.SenderID == contactID && msg.RecipientID == userID)
}
