package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kacharaalert/internal/model"
	"github.com/kacharaalert/internal/repository"
)

type fakeCreator struct{}

func (fakeCreator) Create(_ context.Context, senderID, recipientID, body, replyToID string) (*model.Message, error) {
	if strings.TrimSpace(body) == "" {
		return nil, fmt.Errorf("%w: message body is required", repository.ErrInvalid)
	}
	return &model.Message{ID: "m-" + body, SenderID: senderID, RecipientID: recipientID, Body: body, CreatedAt: time.Now()}, nil
}

func startHub(t *testing.T) (*Hub, string) {
	t.Helper()
	hub := NewHub(fakeCreator{}, 10, Limits{})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		hub.Run(ctx)
	}()
	upgrader := websocket.Upgrader{}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		cctx, ccancel := context.WithCancel(context.Background())
		c := NewClient(hub, conn, r.URL.Query().Get("user"))
		c.Start(cctx, ccancel)
		hub.Register(c)
	}))
	t.Cleanup(func() {
		cancel()
		<-done
		ts.Close()
	})
	return hub, "ws" + strings.TrimPrefix(ts.URL, "http")
}

func dialAs(t *testing.T, hub *Hub, url, user string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url+"?user="+user, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.Eventually(t, func() bool { return hub.Connections(user) == 1 }, 2*time.Second, 5*time.Millisecond)
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) model.Frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var f model.Frame
	require.NoError(t, conn.ReadJSON(&f))
	return f
}

func TestSendAcksAndBroadcastsToBothParticipants(t *testing.T) {
	hub, url := startHub(t)
	alice := dialAs(t, hub, url, "alice")
	bob := dialAs(t, hub, url, "bob")

	data, err := json.Marshal(model.SendMessageRequest{RecipientID: "bob", Body: "hi"})
	require.NoError(t, err)
	require.NoError(t, alice.WriteJSON(model.Frame{Type: model.FrameEmit, ID: 7, Event: model.EventMessageSend, Data: data}))

	// The ack is queued before the broadcast on the sender's connection.
	ack := readFrame(t, alice)
	require.Equal(t, model.FrameAck, ack.Type)
	assert.Equal(t, uint64(7), ack.ID)
	var sa model.SendAck
	require.NoError(t, json.Unmarshal(ack.Data, &sa))
	assert.True(t, sa.Success)
	require.NotNil(t, sa.Data)
	assert.Equal(t, "m-hi", sa.Data.ID)

	for _, conn := range []*websocket.Conn{alice, bob} {
		ev := readFrame(t, conn)
		assert.Equal(t, model.FrameEvent, ev.Type)
		assert.Equal(t, model.EventMessageNew, ev.Event)
		var m model.Message
		require.NoError(t, json.Unmarshal(ev.Data, &m))
		assert.Equal(t, "m-hi", m.ID)
	}
}

func TestRejectedAndUnknownEmits(t *testing.T) {
	hub, url := startHub(t)
	alice := dialAs(t, hub, url, "alice")

	data, err := json.Marshal(model.SendMessageRequest{RecipientID: "bob", Body: " "})
	require.NoError(t, err)
	require.NoError(t, alice.WriteJSON(model.Frame{Type: model.FrameEmit, ID: 1, Event: model.EventMessageSend, Data: data}))
	var a model.Ack
	require.NoError(t, json.Unmarshal(readFrame(t, alice).Data, &a))
	assert.False(t, a.Success)
	assert.Equal(t, "message body is required", a.Error)

	require.NoError(t, alice.WriteJSON(model.Frame{Type: model.FrameEmit, ID: 2, Event: "typing"}))
	f := readFrame(t, alice)
	assert.Equal(t, uint64(2), f.ID)
	require.NoError(t, json.Unmarshal(f.Data, &a))
	assert.Equal(t, "unknown event", a.Error)

	require.NoError(t, alice.WriteMessage(websocket.TextMessage, []byte("{not json")))
	f = readFrame(t, alice)
	assert.Equal(t, model.FrameError, f.Type)
}

func TestUnregisterOnDisconnect(t *testing.T) {
	hub, url := startHub(t)
	alice := dialAs(t, hub, url, "alice")
	require.NoError(t, alice.Close())
	require.Eventually(t, func() bool { return hub.Connections("alice") == 0 }, 2*time.Second, 5*time.Millisecond)

	// Broadcasting to nobody is a no-op.
	hub.BroadcastMessage(model.EventMessageUpdated, &model.Message{ID: "x", SenderID: "alice", RecipientID: "bob"})
}
