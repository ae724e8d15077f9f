package chat

import "github.com/kacharaalert/internal/model"

type State int

const (
	StateIdle State = iota
	StateLoadingHistory
	StateReady
)

func (s State) String() string {
	switch s {
	case StateLoadingHistory:
		return "loading"
	case StateReady:
		return "ready"
	default:
		return "idle"
	}
}

// View is an immutable snapshot of the panel.
type View struct {
	State     State
	Contacts  []model.Contact
	ContactID string
	Messages  []model.Message
	Draft     string
	ReplyTo   *model.ReplyPreview
	EditingID string
	Sending   bool
	// DeletingID is the message whose delete is in flight.
	DeletingID string
	Error      string
}

// Contact returns the active contact, if it is in the contact list.
func (v View) Contact() (model.Contact, bool) {
	for _, c := range v.Contacts {
		if c.ID == v.ContactID {
			return c, true
		}
	}
	return model.Contact{}, false
}

// Message looks up a message of the active conversation by id.
func (v View) Message(id string) (model.Message, bool) {
	for _, m := range v.Messages {
		if m.ID == id {
			return m, true
		}
	}
	return model.Message{}, false
}
