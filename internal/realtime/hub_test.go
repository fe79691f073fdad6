package realtime

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
)

func newTestClient(handle string) *Client {
	return &Client{
		ID:     uuid.New().String(),
		UserID: uuid.New(),
		Handle: handle,
		Send:   make(chan []byte, 16),
	}
}

func recvEnvelope(t *testing.T, c *Client) Envelope {
	t.Helper()
	select {
	case raw := <-c.Send:
		var env Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			t.Fatalf("bad envelope: %v", err)
		}
		return env
	case <-time.After(2 * time.Second):
		t.Fatal("no envelope received")
		return Envelope{}
	}
}

func TestRegisterBroadcastsPresence(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	client := newTestClient("9841000001")
	hub.RegisterClient(client)

	env := recvEnvelope(t, client)
	if env.Topic != TopicPresence {
		t.Fatalf("first broadcast topic = %s, want presence", env.Topic)
	}

	snap, ok := env.Data.(map[string]interface{})
	if !ok {
		t.Fatalf("presence payload shape wrong: %T", env.Data)
	}
	if online, _ := snap["9841000001"].(bool); !online {
		t.Fatalf("registered handle missing from snapshot: %v", snap)
	}
}

func TestSendToUserTargetsAllConnectionsOfUser(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	a := newTestClient("9841000001")
	b := newTestClient("9841000002")
	second := &Client{ID: uuid.New().String(), UserID: a.UserID, Handle: a.Handle, Send: make(chan []byte, 16)}

	hub.RegisterClient(a)
	recvEnvelope(t, a) // presence from a's registration
	hub.RegisterClient(b)
	recvEnvelope(t, a)
	recvEnvelope(t, b)
	hub.RegisterClient(second)
	recvEnvelope(t, a)
	recvEnvelope(t, b)
	recvEnvelope(t, second)

	if !hub.SendToUser(a.UserID, TopicMessage, map[string]string{"id": "m1"}) {
		t.Fatal("SendToUser reported no delivery")
	}

	for _, c := range []*Client{a, second} {
		env := recvEnvelope(t, c)
		if env.Topic != TopicMessage {
			t.Fatalf("topic = %s, want message", env.Topic)
		}
	}
	select {
	case raw := <-b.Send:
		t.Fatalf("uninvolved user received: %s", raw)
	default:
	}
}

func TestIsOnlineTracksRegistration(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	client := newTestClient("9841000001")
	if hub.IsOnline(client.UserID) {
		t.Fatal("user online before registering")
	}

	hub.RegisterClient(client)
	recvEnvelope(t, client)
	if !hub.IsOnline(client.UserID) {
		t.Fatal("user not online after registering")
	}

	hub.UnregisterClient(client)
	deadline := time.Now().Add(2 * time.Second)
	for hub.IsOnline(client.UserID) && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if hub.IsOnline(client.UserID) {
		t.Fatal("user still online after unregistering")
	}
}

func TestSendToUnknownUserReportsNoDelivery(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	if hub.SendToUser(uuid.New(), TopicMessage, map[string]string{"id": "m1"}) {
		t.Fatal("delivery reported for a user with no connections")
	}
}
