package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kacharaalert/internal/middleware"
	"github.com/kacharaalert/internal/model"
	"github.com/kacharaalert/internal/repository"
)

// Broadcaster pushes message events to the live channel. *ws.Hub implements it.
type Broadcaster interface {
	BroadcastMessage(event string, msg *model.Message)
}

type MessageHandler struct {
	messages *repository.MessageRepository
	live     Broadcaster
}

func NewMessageHandler(messages *repository.MessageRepository, live Broadcaster) *MessageHandler {
	return &MessageHandler{messages: messages, live: live}
}

func (h *MessageHandler) Contacts(w http.ResponseWriter, r *http.Request) {
	contacts, err := h.messages.Contacts(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		writeRepoError(w, "contacts", err)
		return
	}
	writeJSON(w, http.StatusOK, "Contacts loaded", contacts)
}

// History returns the conversation with the contact oldest first and marks
// the caller's inbound messages read.
func (h *MessageHandler) History(w http.ResponseWriter, r *http.Request) {
	msgs, err := h.messages.Conversation(r.Context(), middleware.GetUserID(r.Context()), chi.URLParam(r, "contactId"))
	if err != nil {
		writeRepoError(w, "history", err)
		return
	}
	writeJSON(w, http.StatusOK, "Messages loaded", msgs)
}

func (h *MessageHandler) Send(w http.ResponseWriter, r *http.Request) {
	var req model.SendMessageRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	msg, err := h.messages.Create(r.Context(), middleware.GetUserID(r.Context()), chi.URLParam(r, "contactId"), req.Body, req.ReplyToMessageID)
	if err != nil {
		writeRepoError(w, "send message", err)
		return
	}
	h.live.BroadcastMessage(model.EventMessageNew, msg)
	writeJSON(w, http.StatusCreated, "Message sent", msg)
}

func (h *MessageHandler) Edit(w http.ResponseWriter, r *http.Request) {
	var req model.EditMessageRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	msg, err := h.messages.Edit(r.Context(), middleware.GetUserID(r.Context()), chi.URLParam(r, "contactId"), chi.URLParam(r, "messageId"), req.Body)
	if err != nil {
		writeRepoError(w, "edit message", err)
		return
	}
	h.live.BroadcastMessage(model.EventMessageUpdated, msg)
	writeJSON(w, http.StatusOK, "Message updated", msg)
}

// Delete soft-deletes; the message stays in both histories as a placeholder.
func (h *MessageHandler) Delete(w http.ResponseWriter, r *http.Request) {
	msg, err := h.messages.SoftDelete(r.Context(), middleware.GetUserID(r.Context()), chi.URLParam(r, "contactId"), chi.URLParam(r, "messageId"))
	if err != nil {
		writeRepoError(w, "delete message", err)
		return
	}
	h.live.BroadcastMessage(model.EventMessageUpdated, msg)
	writeJSON(w, http.StatusOK, "Message deleted", msg)
}
