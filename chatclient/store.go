package chatclient

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

// historyAPI is the slice of the REST collaborator the store needs.
type historyAPI interface {
	Messages(ctx context.Context, conversationID string, page, size int) ([]ChatMessage, error)
}

// publisher is the slice of the transport the store needs.
type publisher interface {
	Publish(dest string, payload interface{})
}

// MessageStore holds the ordered message list of the open conversation and
// reconciles three sources: the initial REST page, locally optimistic sends,
// and server push. The list is ascending by insertion; reconciliation only
// replaces in place or appends, never reorders, so UI indices stay stable.
type MessageStore struct {
	mu sync.Mutex

	rest      historyAPI
	transport publisher
	selfID    string
	pageSize  int

	// visible reports whether the chat view is foregrounded; gates the
	// automatic seen acknowledgement.
	visible func() bool

	conversationID string
	messages       []ChatMessage
	loading        bool

	pager *Pager

	onChange func()
}

func NewMessageStore(rest historyAPI, transport publisher, selfID string, pageSize int) *MessageStore {
	if pageSize <= 0 {
		pageSize = 50
	}
	s := &MessageStore{
		rest:      rest,
		transport: transport,
		selfID:    selfID,
		pageSize:  pageSize,
		visible:   func() bool { return true },
	}
	s.pager = newPager(pageSize, s.fetchPage, s.prependOlder)
	return s
}

// SetVisibility installs the foreground check used for auto-seen emission.
func (s *MessageStore) SetVisibility(fn func() bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if fn != nil {
		s.visible = fn
	}
}

// OnChange registers the UI notification hook. Called outside the lock after
// every visible mutation.
func (s *MessageStore) OnChange(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onChange = fn
}

func (s *MessageStore) notify() {
	s.mu.Lock()
	fn := s.onChange
	s.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// ActiveConversation returns the conversation currently open, "" if none.
func (s *MessageStore) ActiveConversation() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conversationID
}

// Messages returns a snapshot of the current list, oldest first.
func (s *MessageStore) Messages() []ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ChatMessage, len(s.messages))
	copy(out, s.messages)
	return out
}

// Loading reports whether an initial load is in flight.
func (s *MessageStore) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

// LoadInitial opens a conversation: fetches the newest page, reverses it to
// ascending, and replaces the list. Fetch errors are absorbed here; the list
// keeps its prior state. The mark-read acknowledgement is the directory's
// concern.
func (s *MessageStore) LoadInitial(ctx context.Context, conversationID string) {
	s.mu.Lock()
	s.conversationID = conversationID
	s.loading = true
	s.mu.Unlock()
	// history paging stays off until this conversation's first page lands,
	// so a pager rebased on the previous thread can never fire
	s.pager.Reset(false)
	s.notify()

	page, err := s.rest.Messages(ctx, conversationID, 0, s.pageSize)

	s.mu.Lock()
	s.loading = false
	// the user may have switched away while the fetch was in flight
	if s.conversationID != conversationID {
		s.mu.Unlock()
		return
	}
	if err != nil {
		log.Printf("chat store: initial load failed: %v", err)
		s.mu.Unlock()
		s.notify()
		return
	}
	s.messages = reverseCopy(page)
	s.pager.Reset(len(page) == s.pageSize)
	s.mu.Unlock()
	s.notify()
}

// AppendOptimistic adds a locally-originated message to the tail and publishes
// the send request. The entry carries a temp- id plus a correlation ref the
// server echoes back, so the eventual push replaces it in place.
func (s *MessageStore) AppendOptimistic(text string, kind MessageKind, att *Attachment) (ChatMessage, error) {
	s.mu.Lock()
	if s.conversationID == "" {
		s.mu.Unlock()
		return ChatMessage{}, fmt.Errorf("no open conversation")
	}
	if s.selfID == "" {
		s.mu.Unlock()
		return ChatMessage{}, fmt.Errorf("unknown local user")
	}
	if kind == "" {
		kind = KindText
	}

	now := time.Now()
	msg := ChatMessage{
		ID:             fmt.Sprintf("%s%d", TempIDPrefix, now.UnixNano()),
		ConversationID: s.conversationID,
		SenderID:       s.selfID,
		Kind:           kind,
		Text:           text,
		Status:         StatusSent,
		Attachment:     att,
		ClientRef:      uuid.NewString(),
		CreatedAt:      now,
	}
	s.messages = append(s.messages, msg)
	s.mu.Unlock()
	s.notify()

	payload := map[string]interface{}{
		"conversation_id": msg.ConversationID,
		"message":         msg.Text,
		"message_type":    string(msg.Kind),
		"client_ref":      msg.ClientRef,
	}
	if att != nil {
		payload["attachment"] = att
	}
	s.transport.Publish(DestSendMessage, payload)

	return msg, nil
}

// ReconcileIncoming applies one push-delivered message. Matching order:
// correlation ref, then exact-text against a pending entry (older backends do
// not echo the ref), then server id, then append. Replacement keeps the slot.
func (s *MessageStore) ReconcileIncoming(msg ChatMessage) {
	s.mu.Lock()
	if msg.ConversationID != s.conversationID {
		s.mu.Unlock()
		return
	}

	replaced := false
	if msg.ClientRef != "" {
		for i := range s.messages {
			if s.messages[i].Pending() && s.messages[i].ClientRef == msg.ClientRef {
				s.replaceAt(i, msg)
				replaced = true
				break
			}
		}
	}
	if !replaced && (msg.SenderID == "" || msg.SenderID == s.selfID) {
		for i := range s.messages {
			if s.messages[i].Pending() && s.messages[i].Text == msg.Text {
				s.replaceAt(i, msg)
				replaced = true
				break
			}
		}
	}
	if !replaced {
		for i := range s.messages {
			if s.messages[i].ID == msg.ID {
				s.replaceAt(i, msg)
				replaced = true
				break
			}
		}
	}
	if !replaced {
		s.messages = append(s.messages, msg)
	}

	fromCounterpart := msg.SenderID != "" && msg.SenderID != s.selfID
	conversationID := s.conversationID
	seen := fromCounterpart && s.visible()
	s.mu.Unlock()
	s.notify()

	// reading it now, so tell the sender immediately
	if seen {
		s.transport.Publish(DestSeen, map[string]interface{}{
			"conversation_id": conversationID,
		})
	}
}

// replaceAt swaps the entry at i, keeping a higher locally-known status over
// a stale incoming one. Caller holds the lock.
func (s *MessageStore) replaceAt(i int, msg ChatMessage) {
	prev := s.messages[i]
	if !prev.Pending() && prev.Status.Advances(msg.Status) {
		msg.Status = prev.Status
		msg.IsRead = msg.IsRead || prev.IsRead
	}
	s.messages[i] = msg
}

// ApplyStatusUpdate advances one message's status. Out-of-order frames that
// do not advance are accepted as no-ops.
func (s *MessageStore) ApplyStatusUpdate(messageID string, status Status) {
	s.mu.Lock()
	changed := false
	for i := range s.messages {
		if s.messages[i].ID == messageID {
			if status.Advances(s.messages[i].Status) {
				s.messages[i].Status = status
				if status == StatusSeen {
					s.messages[i].IsRead = true
				}
				changed = true
			}
			break
		}
	}
	s.mu.Unlock()
	if changed {
		s.notify()
	}
}

// ApplyBulkStatusUpdate advances every own message of the conversation whose
// status is behind: the "all delivered" / "all read" broadcast path.
func (s *MessageStore) ApplyBulkStatusUpdate(conversationID string, status Status) {
	s.mu.Lock()
	if conversationID != s.conversationID {
		s.mu.Unlock()
		return
	}
	changed := false
	for i := range s.messages {
		if s.messages[i].SenderID != s.selfID {
			continue
		}
		if status.Advances(s.messages[i].Status) {
			s.messages[i].Status = status
			if status == StatusSeen {
				s.messages[i].IsRead = true
			}
			changed = true
		}
	}
	s.mu.Unlock()
	if changed {
		s.notify()
	}
}

// RemoveOptimistic drops a pending entry whose send ultimately failed. The UI
// may offer manual resend; the store never retries on its own.
func (s *MessageStore) RemoveOptimistic(id string) {
	s.mu.Lock()
	for i := range s.messages {
		if s.messages[i].ID == id && s.messages[i].Pending() {
			s.messages = append(s.messages[:i], s.messages[i+1:]...)
			break
		}
	}
	s.mu.Unlock()
	s.notify()
}

// LoadOlder pulls the next history page and prepends it. Guarded by the
// pager; a no-op while loading or once history is exhausted.
func (s *MessageStore) LoadOlder(ctx context.Context) {
	s.pager.LoadOlder(ctx)
}

// HasMore reports whether older history remains.
func (s *MessageStore) HasMore() bool {
	return s.pager.HasMore()
}

func (s *MessageStore) fetchPage(ctx context.Context, page, size int) ([]ChatMessage, error) {
	s.mu.Lock()
	conversationID := s.conversationID
	s.mu.Unlock()
	if conversationID == "" {
		return nil, fmt.Errorf("no open conversation")
	}
	return s.rest.Messages(ctx, conversationID, page, size)
}

// prependOlder reverses a newest-first page and bolts it onto the head. Live
// appends land at the tail, so in-flight history loads never conflict.
func (s *MessageStore) prependOlder(older []ChatMessage) {
	s.mu.Lock()
	s.messages = append(reverseCopy(older), s.messages...)
	s.mu.Unlock()
	s.notify()
}

// reverseCopy turns a newest-first server page into ascending display order.
func reverseCopy(in []ChatMessage) []ChatMessage {
	out := make([]ChatMessage, len(in))
	for i, msg := range in {
		out[len(in)-1-i] = msg
	}
	return out
}
