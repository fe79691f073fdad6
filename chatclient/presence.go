package chatclient

import (
	"sync"
	"time"
)

// Tracker holds the ephemeral session state: who is online (keyed by mobile
// handle) and who is typing (keyed by user id). Typing entries expire on
// their own after the TTL; no explicit stop signal is required.
type Tracker struct {
	mu sync.Mutex

	online map[string]bool
	typing map[string]bool
	timers map[string]*time.Timer

	ttl       time.Duration
	transport publisher

	onChange func()
}

func NewTracker(transport publisher, ttl time.Duration) *Tracker {
	if ttl <= 0 {
		ttl = 3 * time.Second
	}
	return &Tracker{
		online:    make(map[string]bool),
		typing:    make(map[string]bool),
		timers:    make(map[string]*time.Timer),
		ttl:       ttl,
		transport: transport,
	}
}

// OnChange registers the UI notification hook.
func (t *Tracker) OnChange(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onChange = fn
}

func (t *Tracker) notify() {
	t.mu.Lock()
	fn := t.onChange
	t.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// ReplacePresence swaps the whole online map: the broadcast carries a full
// snapshot, not a diff.
func (t *Tracker) ReplacePresence(snapshot map[string]bool) {
	t.mu.Lock()
	t.online = make(map[string]bool, len(snapshot))
	for handle, on := range snapshot {
		t.online[handle] = on
	}
	t.mu.Unlock()
	t.notify()
}

// SetOnline merges a single point update where the backend supports them.
func (t *Tracker) SetOnline(handle string, online bool) {
	t.mu.Lock()
	if online {
		t.online[handle] = true
	} else {
		delete(t.online, handle)
	}
	t.mu.Unlock()
	t.notify()
}

// Online reports whether the handle is currently online.
func (t *Tracker) Online(handle string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.online[handle]
}

// PresenceSnapshot returns a copy of the online map.
func (t *Tracker) PresenceSnapshot() map[string]bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]bool, len(t.online))
	for handle, on := range t.online {
		out[handle] = on
	}
	return out
}

// SetTyping applies a typing signal. A true entry arms (or re-arms) the
// expiry timer; every fresh signal for the same user resets it.
func (t *Tracker) SetTyping(userID string, isTyping bool) {
	t.mu.Lock()
	if timer, ok := t.timers[userID]; ok {
		timer.Stop()
		delete(t.timers, userID)
	}
	t.typing[userID] = isTyping
	if isTyping {
		t.timers[userID] = time.AfterFunc(t.ttl, func() {
			t.expireTyping(userID)
		})
	}
	t.mu.Unlock()
	t.notify()
}

func (t *Tracker) expireTyping(userID string) {
	t.mu.Lock()
	delete(t.timers, userID)
	changed := t.typing[userID]
	t.typing[userID] = false
	t.mu.Unlock()
	if changed {
		t.notify()
	}
}

// Typing reports whether the user is typing right now.
func (t *Tracker) Typing(userID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.typing[userID]
}

// NotifyTyping publishes the local user's typing state for a conversation.
// No debouncing here; how often to call this is the UI's decision.
func (t *Tracker) NotifyTyping(conversationID string, isTyping bool) {
	t.transport.Publish(DestTyping, map[string]interface{}{
		"conversation_id": conversationID,
		"is_typing":       isTyping,
	})
}

// Stop cancels all pending expiry timers.
func (t *Tracker) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for userID, timer := range t.timers {
		timer.Stop()
		delete(t.timers, userID)
	}
}
