package chatclient

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"
)

// Config carries everything a chat session needs from its collaborators: the
// REST base, the websocket endpoint, and the externally-validated identity.
type Config struct {
	BaseURL string
	WSURL   string
	Token   string

	SelfID string // local user id
	Handle string // local user's mobile handle (presence key)

	PageSize          int
	TypingTTL         time.Duration
	HeartbeatInterval time.Duration
	ReconnectDelay    time.Duration

	// Visible reports whether the chat view is foregrounded; defaults to
	// always-visible for headless consumers.
	Visible func() bool

	HTTPClient *http.Client
}

// Session owns the chat core for one authenticated identity: exactly one
// transport connection, shared by the store, directory and tracker. Consumers
// never open their own channel; they subscribe to the components instead.
type Session struct {
	cfg  Config
	rest *restClient

	Transport *Transport
	Store     *MessageStore
	Directory *Directory
	Tracker   *Tracker
}

// NewSession wires the components around one shared transport. Call Start to
// begin receiving events.
func NewSession(cfg Config) *Session {
	s := &Session{cfg: cfg}
	s.rest = newRESTClient(cfg.BaseURL, cfg.Token, cfg.HTTPClient)

	s.Transport = NewTransport(cfg.WSURL, cfg.Token, cfg.HeartbeatInterval, cfg.ReconnectDelay, s.handleEvent)
	s.Store = NewMessageStore(s.rest, s.Transport, cfg.SelfID, cfg.PageSize)
	if cfg.Visible != nil {
		s.Store.SetVisibility(cfg.Visible)
	}
	s.Directory = NewDirectory(s.rest, cfg.SelfID, s.Store.ActiveConversation)
	s.Tracker = NewTracker(s.Transport, cfg.TypingTTL)

	return s
}

// Start seeds the directory and presence from REST, then connects the
// transport. Seed failures are logged, not fatal: the first broadcast and the
// next refresh fill the gaps.
func (s *Session) Start(ctx context.Context) {
	if snap, err := s.rest.PresenceSnapshot(ctx); err != nil {
		log.Printf("chat session: presence seed failed: %v", err)
	} else {
		s.Tracker.ReplacePresence(snap)
	}

	s.Directory.Refresh(ctx)
	s.Transport.Connect(ctx)
}

// handleEvent is the single dispatch point for everything the server pushes.
// Each topic is normalized once, here, then applied to the owning component.
func (s *Session) handleEvent(topic string, data json.RawMessage) {
	switch topic {
	case TopicMessage:
		msg, err := NormalizeMessage(data)
		if err != nil {
			log.Printf("chat session: dropping message event: %v", err)
			return
		}
		s.Store.ReconcileIncoming(msg)
		s.Directory.OnIncomingMessage(context.Background(), msg)

	case TopicTyping:
		var sig TypingSignal
		if err := json.Unmarshal(data, &sig); err != nil {
			log.Printf("chat session: dropping typing event: %v", err)
			return
		}
		s.Tracker.SetTyping(sig.UserID, sig.IsTyping)

	case TopicStatus:
		var upd StatusUpdate
		if err := json.Unmarshal(data, &upd); err != nil {
			log.Printf("chat session: dropping status event: %v", err)
			return
		}
		if upd.MessageID != "" {
			s.Store.ApplyStatusUpdate(upd.MessageID, upd.Status)
		} else {
			s.Store.ApplyBulkStatusUpdate(upd.ConversationID, upd.Status)
		}

	case TopicPresence:
		var snap map[string]bool
		if err := json.Unmarshal(data, &snap); err != nil {
			log.Printf("chat session: dropping presence event: %v", err)
			return
		}
		s.Tracker.ReplacePresence(snap)

	default:
		log.Printf("chat session: unknown topic %q", topic)
	}
}

// OpenConversation switches the active thread: loads its newest page and
// clears its unread counter.
func (s *Session) OpenConversation(ctx context.Context, conversationID string) {
	s.Store.LoadInitial(ctx, conversationID)
	s.Directory.OnConversationOpened(ctx, conversationID)
}

// SendMessage appends optimistically and publishes over the socket; while
// disconnected it falls back to REST. A failed fallback removes the
// optimistic entry and returns the error so the UI can offer manual resend.
func (s *Session) SendMessage(ctx context.Context, text string, kind MessageKind, att *Attachment) (ChatMessage, error) {
	msg, err := s.Store.AppendOptimistic(text, kind, att)
	if err != nil {
		return ChatMessage{}, err
	}

	if !s.Transport.Connected() {
		echoed, err := s.rest.SendMessage(ctx, msg)
		if err != nil {
			s.Store.RemoveOptimistic(msg.ID)
			return ChatMessage{}, err
		}
		s.Store.ReconcileIncoming(echoed)
		s.Directory.OnIncomingMessage(ctx, echoed)
		return echoed, nil
	}

	return msg, nil
}

// LoadOlder pages history backwards for the open conversation.
func (s *Session) LoadOlder(ctx context.Context) {
	s.Store.LoadOlder(ctx)
}

// NotifyTyping publishes the local typing state for the open conversation.
func (s *Session) NotifyTyping(isTyping bool) {
	conversationID := s.Store.ActiveConversation()
	if conversationID == "" {
		return
	}
	s.Tracker.NotifyTyping(conversationID, isTyping)
}

// StartConversation opens (or finds) a thread with the partner and refreshes
// the directory so it appears in the list.
func (s *Session) StartConversation(ctx context.Context, partnerID, convType string, listingID *uint) (Conversation, error) {
	conv, err := s.rest.CreateConversation(ctx, partnerID, convType, listingID)
	if err != nil {
		return Conversation{}, err
	}
	s.Directory.Refresh(ctx)
	return conv, nil
}

// SearchUsers queries the directory for the start-new-conversation flow.
func (s *Session) SearchUsers(ctx context.Context, query, role string) ([]ChatUser, error) {
	return s.rest.SearchUsers(ctx, query, role)
}

// UnreadTotal asks the server for the authoritative unread count.
func (s *Session) UnreadTotal(ctx context.Context) (int, error) {
	return s.rest.UnreadTotal(ctx)
}

// UploadFile stores an attachment and returns its metadata. Unlike fetch
// paths, upload errors surface to the caller.
func (s *Session) UploadFile(ctx context.Context, path string) (Attachment, error) {
	return s.rest.Upload(ctx, path)
}

// Close tears down the transport and cancels tracker timers. Idempotent.
func (s *Session) Close() {
	s.Transport.Close()
	s.Tracker.Stop()
}
