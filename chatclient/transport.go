package chatclient

import (
	"context"
	"encoding/json"
	"log"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Topics the server pushes on. Message, typing and status frames are scoped
// to the authenticated identity; presence is a global broadcast.
const (
	TopicMessage  = "message"
	TopicTyping   = "typing"
	TopicStatus   = "status"
	TopicPresence = "presence"
)

// Publish destinations understood by the backend frame loop.
const (
	DestSendMessage = "send_message"
	DestTyping      = "typing"
	DestSeen        = "seen"
)

// EventFunc receives each inbound frame after envelope parsing. data is the
// still-raw payload; callers normalize per topic.
type EventFunc func(topic string, data json.RawMessage)

// envelope mirrors the server's wire frame.
type envelope struct {
	Topic string          `json:"topic"`
	Data  json.RawMessage `json:"data"`
}

// Transport maintains the one duplex channel of a chat session. It reconnects
// on a fixed delay forever, exchanges heartbeats to detect half-open links,
// and treats publish as best-effort: frames written while disconnected are
// dropped, the server is the durability boundary.
type Transport struct {
	wsURL     string
	token     string
	onEvent   EventFunc
	heartbeat time.Duration
	retry     time.Duration

	mu      sync.Mutex
	writeMu sync.Mutex
	conn    *websocket.Conn
	closed  bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewTransport prepares a transport; Connect starts it.
func NewTransport(wsURL, token string, heartbeat, retry time.Duration, onEvent EventFunc) *Transport {
	if heartbeat <= 0 {
		heartbeat = 4 * time.Second
	}
	if retry <= 0 {
		retry = 5 * time.Second
	}
	return &Transport{
		wsURL:     wsURL,
		token:     token,
		onEvent:   onEvent,
		heartbeat: heartbeat,
		retry:     retry,
	}
}

// Connect starts the dial/read/reconnect loop. It returns immediately; frames
// arrive on the EventFunc once the handshake completes.
func (t *Transport) Connect(ctx context.Context) {
	t.mu.Lock()
	if t.done != nil || t.closed {
		t.mu.Unlock()
		return
	}
	ctx, t.cancel = context.WithCancel(ctx)
	t.done = make(chan struct{})
	t.mu.Unlock()

	go t.run(ctx)
}

func (t *Transport) run(ctx context.Context) {
	defer close(t.done)
	for {
		if ctx.Err() != nil {
			return
		}

		conn, err := t.dial(ctx)
		if err != nil {
			log.Printf("chat transport: dial failed: %v", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(t.retry):
				continue
			}
		}

		t.mu.Lock()
		t.conn = conn
		t.mu.Unlock()

		t.serve(ctx, conn)

		t.mu.Lock()
		t.conn = nil
		t.mu.Unlock()

		select {
		case <-ctx.Done():
			return
		case <-time.After(t.retry):
		}
	}
}

func (t *Transport) dial(ctx context.Context) (*websocket.Conn, error) {
	u, err := url.Parse(t.wsURL)
	if err != nil {
		return nil, err
	}
	q := u.Query()
	q.Set("token", t.token)
	u.RawQuery = q.Encode()

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, u.String(), nil)
	return conn, err
}

// serve pumps one live connection until it breaks.
func (t *Transport) serve(ctx context.Context, conn *websocket.Conn) {
	defer conn.Close()

	deadline := t.heartbeat * 5 / 2
	conn.SetReadDeadline(time.Now().Add(deadline))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(deadline))
	})
	conn.SetPingHandler(func(appData string) error {
		conn.SetReadDeadline(time.Now().Add(deadline))
		return conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(time.Second))
	})

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		ticker := time.NewTicker(t.heartbeat)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(time.Second)); err != nil {
					return
				}
			}
		}
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				log.Printf("chat transport: connection lost: %v", err)
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(deadline))

		var env envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			log.Printf("chat transport: dropping malformed frame: %v", err)
			continue
		}
		if t.onEvent != nil {
			t.onEvent(env.Topic, env.Data)
		}
	}
}

// Publish writes a frame tagged with the destination. Silently a no-op while
// disconnected.
func (t *Transport) Publish(dest string, payload interface{}) {
	raw, err := json.Marshal(payload)
	if err != nil {
		log.Printf("chat transport: cannot marshal %s payload: %v", dest, err)
		return
	}
	var frame map[string]interface{}
	if err := json.Unmarshal(raw, &frame); err != nil {
		log.Printf("chat transport: %s payload is not an object", dest)
		return
	}
	frame["type"] = dest

	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()
	if conn == nil {
		return
	}

	t.writeMu.Lock()
	err = conn.WriteJSON(frame)
	t.writeMu.Unlock()
	if err != nil {
		log.Printf("chat transport: publish %s failed: %v", dest, err)
	}
}

// Connected reports whether a live connection exists right now.
func (t *Transport) Connected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conn != nil
}

// Close tears the channel down. Safe to call repeatedly.
func (t *Transport) Close() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	cancel := t.cancel
	conn := t.conn
	done := t.done
	t.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		conn.Close()
	}
	if done != nil {
		<-done
	}
}
