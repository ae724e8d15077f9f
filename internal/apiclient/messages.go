package apiclient

import (
	"context"
	"errors"
	"net/http"
	"net/url"

	"github.com/kacharaalert/internal/model"
)

var errNoMessage = errors.New("response carried no message")

func (c *Client) Contacts(ctx context.Context) ([]model.Contact, error) {
	var contacts []model.Contact
	if _, err := c.Get(ctx, "/api/v1/messages/contacts", &contacts); err != nil {
		return nil, err
	}
	return contacts, nil
}

// History returns the conversation with contactID.
func (c *Client) History(ctx context.Context, contactID string) ([]model.Message, error) {
	var msgs []model.Message
	if _, err := c.Get(ctx, "/api/v1/messages/"+url.PathEscape(contactID), &msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

func (c *Client) SendMessage(ctx context.Context, contactID string, req model.SendMessageRequest) (*model.Message, error) {
	body := model.SendMessageRequest{Body: req.Body, ReplyToMessageID: req.ReplyToMessageID}
	return c.messageCall(ctx, http.MethodPost, "/api/v1/messages/"+url.PathEscape(contactID), body, "Unable to send message")
}

func (c *Client) EditMessage(ctx context.Context, contactID, messageID, body string) (*model.Message, error) {
	path := "/api/v1/messages/" + url.PathEscape(contactID) + "/" + url.PathEscape(messageID)
	return c.messageCall(ctx, http.MethodPatch, path, model.EditMessageRequest{Body: body}, "Unable to update message")
}

// DeleteMessage soft-deletes; the server answers with the redacted message.
func (c *Client) DeleteMessage(ctx context.Context, contactID, messageID string) (*model.Message, error) {
	path := "/api/v1/messages/" + url.PathEscape(contactID) + "/" + url.PathEscape(messageID)
	return c.messageCall(ctx, http.MethodDelete, path, nil, "Unable to delete message")
}

func (c *Client) messageCall(ctx context.Context, method, path string, body any, failMsg string) (*model.Message, error) {
	var msg model.Message
	resp, err := c.doJSON(ctx, method, path, body, &msg)
	if err != nil {
		return nil, err
	}
	if !resp.HasData {
		return nil, &Error{Message: failMsg, Status: resp.Status, Err: errNoMessage}
	}
	return &msg, nil
}
