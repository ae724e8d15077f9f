// Package chat keeps one conversation consistent while REST history and the
// live stream both feed it, and sends through the live channel with a REST
// fallback.
package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/kacharaalert/internal/logger"
	"github.com/kacharaalert/internal/model"
)

var (
	ErrNoContact       = errors.New("no active contact")
	ErrEmptyDraft      = errors.New("draft is empty")
	ErrBusy            = errors.New("another request is in progress")
	ErrMessageNotFound = errors.New("message not found in conversation")
	ErrNotOwnMessage   = errors.New("only your own messages can be changed")
)

const defaultSendTimeout = 6 * time.Second

// API is the REST side the panel needs. *apiclient.Client implements it.
type API interface {
	Contacts(ctx context.Context) ([]model.Contact, error)
	History(ctx context.Context, contactID string) ([]model.Message, error)
	SendMessage(ctx context.Context, contactID string, req model.SendMessageRequest) (*model.Message, error)
	EditMessage(ctx context.Context, contactID, messageID, body string) (*model.Message, error)
	DeleteMessage(ctx context.Context, contactID, messageID string) (*model.Message, error)
}

// Live is the realtime send path. *live.Client implements it.
type Live interface {
	Connected() bool
	SendMessage(ctx context.Context, req model.SendMessageRequest) (*model.Message, error)
}

type Options struct {
	API API
	// Live may be nil; sends then go straight to REST.
	Live   Live
	UserID string
	// SendTimeout bounds the wait for a live ack before falling back.
	SendTimeout time.Duration
}

// Panel is the messaging panel state machine. All methods are safe for
// concurrent use; network calls run outside the lock.
type Panel struct {
	api         API
	live        Live
	userID      string
	sendTimeout time.Duration

	mu         sync.Mutex
	state      State
	contacts   []model.Contact
	contactID  string
	messages   []model.Message
	draft      string
	reply      *model.ReplyPreview
	editingID  string
	sending    bool
	deletingID string
	errMsg     string
	// gen changes on every contact switch; completions from an older gen
	// are dropped.
	gen        uint64
	cancelLoad context.CancelFunc

	obsMu     sync.Mutex
	observers map[int]func(View)
	nextObs   int
}

func NewPanel(opts Options) *Panel {
	timeout := opts.SendTimeout
	if timeout <= 0 {
		timeout = defaultSendTimeout
	}
	return &Panel{
		api:         opts.API,
		live:        opts.Live,
		userID:      opts.UserID,
		sendTimeout: timeout,
		observers:   make(map[int]func(View)),
	}
}

// Observe registers fn to receive a snapshot after every change. fn must not
// call mutating Panel methods synchronously.
func (p *Panel) Observe(fn func(View)) (cancel func()) {
	p.obsMu.Lock()
	defer p.obsMu.Unlock()
	p.nextObs++
	id := p.nextObs
	p.observers[id] = fn
	return func() {
		p.obsMu.Lock()
		defer p.obsMu.Unlock()
		delete(p.observers, id)
	}
}

func (p *Panel) changed() {
	p.obsMu.Lock()
	defer p.obsMu.Unlock()
	if len(p.observers) == 0 {
		return
	}
	v := p.View()
	for _, fn := range p.observers {
		fn(v)
	}
}

// View returns a snapshot of the current state.
func (p *Panel) View() View {
	p.mu.Lock()
	defer p.mu.Unlock()
	v := View{
		State:      p.state,
		Contacts:   slices.Clone(p.contacts),
		ContactID:  p.contactID,
		Messages:   slices.Clone(p.messages),
		Draft:      p.draft,
		EditingID:  p.editingID,
		Sending:    p.sending,
		DeletingID: p.deletingID,
		Error:      p.errMsg,
	}
	if p.reply != nil {
		r := *p.reply
		v.ReplyTo = &r
	}
	return v
}

// LoadContacts fetches the contact list. The active contact is kept when it
// is still listed; otherwise the first contact (or none) is selected and its
// history loaded.
func (p *Panel) LoadContacts(ctx context.Context) error {
	contacts, err := p.api.Contacts(ctx)
	if err != nil {
		p.fail(err, "Unable to load contacts")
		return fmt.Errorf("load contacts: %w", err)
	}

	p.mu.Lock()
	p.contacts = contacts
	current := p.contactID
	p.mu.Unlock()

	next := ""
	if slices.ContainsFunc(contacts, func(c model.Contact) bool { return c.ID == current }) {
		next = current
	} else if len(contacts) > 0 {
		next = contacts[0].ID
	}
	if next == current && current != "" {
		p.changed()
		return nil
	}
	return p.SelectContact(ctx, next)
}

// SelectContact switches the conversation and loads its history. Switching
// clears draft, reply and edit state and cancels the previous load. An empty
// id returns the panel to idle.
func (p *Panel) SelectContact(ctx context.Context, contactID string) error {
	p.mu.Lock()
	if p.cancelLoad != nil {
		p.cancelLoad()
		p.cancelLoad = nil
	}
	p.gen++
	gen := p.gen
	p.contactID = contactID
	p.messages = nil
	p.draft = ""
	p.reply = nil
	p.editingID = ""
	p.errMsg = ""
	if contactID == "" {
		p.state = StateIdle
		p.mu.Unlock()
		p.changed()
		return nil
	}
	p.state = StateLoadingHistory
	loadCtx, cancel := context.WithCancel(ctx)
	p.cancelLoad = cancel
	p.mu.Unlock()
	p.changed()

	defer logger.DeferLogDuration("chat history "+contactID, time.Now())()
	history, err := p.api.History(loadCtx, contactID)

	p.mu.Lock()
	if p.gen != gen {
		p.mu.Unlock()
		cancel()
		return context.Canceled
	}
	p.cancelLoad = nil
	cancel()
	p.state = StateReady
	if err != nil {
		p.errMsg = errorText(err, "Unable to load conversation")
		p.mu.Unlock()
		p.changed()
		return fmt.Errorf("load conversation %s: %w", contactID, err)
	}
	// Live events may have arrived while loading; merge rather than replace.
	p.messages = Merge(p.messages, history)
	p.mu.Unlock()
	p.changed()
	return nil
}

// SetDraft replaces the composer text.
func (p *Panel) SetDraft(text string) {
	p.mu.Lock()
	p.draft = text
	p.mu.Unlock()
	p.changed()
}

// StartReply captures a preview of messageID to send as the reply target.
func (p *Panel) StartReply(messageID string) error {
	p.mu.Lock()
	i := p.indexOf(messageID)
	if i < 0 {
		p.mu.Unlock()
		return ErrMessageNotFound
	}
	preview := p.messages[i].Preview()
	p.reply = &preview
	p.editingID = ""
	p.mu.Unlock()
	p.changed()
	return nil
}

func (p *Panel) CancelReply() {
	p.mu.Lock()
	p.reply = nil
	p.mu.Unlock()
	p.changed()
}

// StartEdit puts one of the user's own messages into the composer.
func (p *Panel) StartEdit(messageID string) error {
	p.mu.Lock()
	i := p.indexOf(messageID)
	if i < 0 {
		p.mu.Unlock()
		return ErrMessageNotFound
	}
	m := p.messages[i]
	if m.SenderID != p.userID || m.IsDeleted {
		p.mu.Unlock()
		return ErrNotOwnMessage
	}
	p.editingID = m.ID
	p.draft = m.Body
	p.reply = nil
	p.mu.Unlock()
	p.changed()
	return nil
}

func (p *Panel) CancelEdit() {
	p.mu.Lock()
	if p.editingID != "" {
		p.editingID = ""
		p.draft = ""
	}
	p.mu.Unlock()
	p.changed()
}

// Send submits the draft. In edit mode it PATCHes over REST. Otherwise it
// tries the live channel with a bounded wait and falls back to one REST POST
// when the channel is down, slow or rejects the message. On failure the
// draft is restored and the error is kept for display.
func (p *Panel) Send(ctx context.Context) (*model.Message, error) {
	p.mu.Lock()
	text := strings.TrimSpace(p.draft)
	switch {
	case p.contactID == "":
		p.mu.Unlock()
		return nil, ErrNoContact
	case text == "":
		p.mu.Unlock()
		return nil, ErrEmptyDraft
	case p.sending:
		p.mu.Unlock()
		return nil, ErrBusy
	}
	contactID, editingID, gen := p.contactID, p.editingID, p.gen
	replyID := ""
	if p.reply != nil {
		replyID = p.reply.MessageID
	}
	p.sending = true
	p.errMsg = ""
	p.draft = ""
	p.mu.Unlock()
	p.changed()

	var (
		msg *model.Message
		err error
	)
	if editingID != "" {
		msg, err = p.api.EditMessage(ctx, contactID, editingID, text)
	} else {
		msg, err = p.deliver(ctx, model.SendMessageRequest{RecipientID: contactID, Body: text, ReplyToMessageID: replyID})
	}

	p.mu.Lock()
	p.sending = false
	if p.gen != gen {
		// The user moved to another conversation; its composer is not ours.
		p.mu.Unlock()
		p.changed()
		return msg, err
	}
	if err != nil {
		p.draft = text
		p.errMsg = errorText(err, "Unable to send message")
		p.mu.Unlock()
		p.changed()
		return nil, err
	}
	p.messages = Upsert(p.messages, *msg)
	p.reply = nil
	p.editingID = ""
	p.mu.Unlock()
	p.changed()
	return msg, nil
}

func (p *Panel) deliver(ctx context.Context, req model.SendMessageRequest) (*model.Message, error) {
	if p.live != nil && p.live.Connected() {
		liveCtx, cancel := context.WithTimeout(ctx, p.sendTimeout)
		msg, err := p.live.SendMessage(liveCtx, req)
		cancel()
		if err == nil {
			return msg, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		logger.Debugf("chat: live send failed, using REST: %v", err)
	}
	rest := model.SendMessageRequest{Body: req.Body, ReplyToMessageID: req.ReplyToMessageID}
	return p.api.SendMessage(ctx, req.RecipientID, rest)
}

// Delete soft-deletes one of the user's messages. The redacted message the
// server returns replaces the original in place. One delete runs at a time.
func (p *Panel) Delete(ctx context.Context, messageID string) error {
	p.mu.Lock()
	switch {
	case p.contactID == "":
		p.mu.Unlock()
		return ErrNoContact
	case p.deletingID != "":
		p.mu.Unlock()
		return ErrBusy
	}
	i := p.indexOf(messageID)
	if i < 0 {
		p.mu.Unlock()
		return ErrMessageNotFound
	}
	if p.messages[i].SenderID != p.userID || p.messages[i].IsDeleted {
		p.mu.Unlock()
		return ErrNotOwnMessage
	}
	contactID, gen := p.contactID, p.gen
	p.deletingID = messageID
	p.errMsg = ""
	p.mu.Unlock()
	p.changed()

	msg, err := p.api.DeleteMessage(ctx, contactID, messageID)

	p.mu.Lock()
	p.deletingID = ""
	if p.gen == gen {
		if err != nil {
			p.errMsg = errorText(err, "Unable to delete message")
		} else if msg != nil {
			p.messages = Upsert(p.messages, *msg)
		}
	}
	p.mu.Unlock()
	p.changed()
	return err
}

// Receive merges a message pushed by the live channel. It reports whether
// the message belonged to the active conversation.
func (p *Panel) Receive(msg model.Message) bool {
	p.mu.Lock()
	if p.state == StateIdle || !Accepts(p.userID, p.contactID, msg) {
		p.mu.Unlock()
		return false
	}
	p.messages = Upsert(p.messages, msg)
	p.mu.Unlock()
	p.changed()
	return true
}

// HandleEvent decodes messages:new and messages:updated pushes. It has the
// live.Handler signature.
func (p *Panel) HandleEvent(event string, data json.RawMessage) {
	if event != model.EventMessageNew && event != model.EventMessageUpdated {
		return
	}
	var msg model.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		logger.Errorf("chat: decode %s: %v", event, err)
		return
	}
	p.Receive(msg)
}

// DismissError clears the error banner.
func (p *Panel) DismissError() {
	p.mu.Lock()
	p.errMsg = ""
	p.mu.Unlock()
	p.changed()
}

// Close cancels an in-flight history load.
func (p *Panel) Close() {
	p.mu.Lock()
	if p.cancelLoad != nil {
		p.cancelLoad()
		p.cancelLoad = nil
	}
	p.mu.Unlock()
}

func (p *Panel) fail(err error, fallback string) {
	p.mu.Lock()
	p.errMsg = errorText(err, fallback)
	p.mu.Unlock()
	p.changed()
}

func (p *Panel) indexOf(id string) int {
	return slices.IndexFunc(p.messages, func(m model.Message) bool { return m.ID == id })
}

func errorText(err error, fallback string) string {
	if err == nil || err.Error() == "" {
		return fallback
	}
	return err.Error()
}
