package chatclient

import (
	"context"
	"log"
	"sort"
	"sync"
)

// directoryAPI is the slice of the REST collaborator the directory needs.
type directoryAPI interface {
	Conversations(ctx context.Context) ([]Conversation, error)
	MarkRead(ctx context.Context, conversationID string) error
}

// Directory maintains the conversation summary list, sorted by recency, and
// the total unread count. Live pushes update previews; a push for an unknown
// conversation triggers a full refresh rather than fabricating an entry.
type Directory struct {
	mu sync.Mutex

	rest   directoryAPI
	selfID string

	// activeConversation tells the directory which thread is open so its
	// unread counter is suppressed; checked at apply time.
	activeConversation func() string

	conversations []Conversation
	totalUnread   int
	loading       bool

	onChange func()
}

func NewDirectory(rest directoryAPI, selfID string, activeConversation func() string) *Directory {
	if activeConversation == nil {
		activeConversation = func() string { return "" }
	}
	return &Directory{
		rest:               rest,
		selfID:             selfID,
		activeConversation: activeConversation,
	}
}

// OnChange registers the UI notification hook.
func (d *Directory) OnChange(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onChange = fn
}

func (d *Directory) notify() {
	d.mu.Lock()
	fn := d.onChange
	d.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// Conversations returns a snapshot, most recent activity first.
func (d *Directory) Conversations() []Conversation {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Conversation, len(d.conversations))
	copy(out, d.conversations)
	return out
}

// TotalUnread is the sum of per-conversation unread counts.
func (d *Directory) TotalUnread() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.totalUnread
}

// Refresh replaces the list from REST. Errors are absorbed; the prior list
// stays.
func (d *Directory) Refresh(ctx context.Context) {
	d.mu.Lock()
	if d.loading {
		d.mu.Unlock()
		return
	}
	d.loading = true
	d.mu.Unlock()

	convs, err := d.rest.Conversations(ctx)

	d.mu.Lock()
	d.loading = false
	if err != nil {
		log.Printf("chat directory: refresh failed: %v", err)
		d.mu.Unlock()
		return
	}
	d.conversations = convs
	d.sortLocked()
	d.recountLocked()
	d.mu.Unlock()
	d.notify()
}

// OnIncomingMessage folds a live message into the summary list: preview and
// recency always move; unread only grows for counterpart messages landing in
// a conversation that is not open. Unknown conversations trigger a refresh
// (a brief staleness window beats guessing summary fields).
func (d *Directory) OnIncomingMessage(ctx context.Context, msg ChatMessage) {
	d.mu.Lock()
	idx := -1
	for i := range d.conversations {
		if d.conversations[i].ID == msg.ConversationID {
			idx = i
			break
		}
	}
	if idx < 0 {
		d.mu.Unlock()
		d.Refresh(ctx)
		return
	}

	conv := &d.conversations[idx]
	conv.LastMessage = previewOf(msg)
	if msg.CreatedAt.After(conv.LastMessageTime) {
		conv.LastMessageTime = msg.CreatedAt
	}
	if msg.SenderID != d.selfID && msg.ConversationID != d.activeConversation() {
		conv.UnreadCount++
		d.totalUnread++
	}
	d.sortLocked()
	d.mu.Unlock()
	d.notify()
}

// OnConversationOpened zeroes the local unread counter and sends the
// mark-read acknowledgement; the server stays the source of truth.
func (d *Directory) OnConversationOpened(ctx context.Context, conversationID string) {
	d.mu.Lock()
	for i := range d.conversations {
		if d.conversations[i].ID == conversationID {
			d.totalUnread -= d.conversations[i].UnreadCount
			if d.totalUnread < 0 {
				d.totalUnread = 0
			}
			d.conversations[i].UnreadCount = 0
			break
		}
	}
	d.mu.Unlock()
	d.notify()

	if err := d.rest.MarkRead(ctx, conversationID); err != nil {
		log.Printf("chat directory: mark-read failed: %v", err)
	}
}

func (d *Directory) sortLocked() {
	sort.SliceStable(d.conversations, func(i, j int) bool {
		return d.conversations[i].LastMessageTime.After(d.conversations[j].LastMessageTime)
	})
}

func (d *Directory) recountLocked() {
	total := 0
	for i := range d.conversations {
		total += d.conversations[i].UnreadCount
	}
	d.totalUnread = total
}

func previewOf(msg ChatMessage) string {
	switch msg.Kind {
	case KindImage:
		return "[photo]"
	case KindFile:
		return "[file]"
	default:
		return msg.Text
	}
}
