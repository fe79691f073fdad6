package chatclient

import (
	"context"
	"log"
	"sync"
)

// Pager loads older history pages behind the currently loaded window. It
// never touches messages already present: pages are fetched newest-first and
// handed to the prepend hook, which grafts them onto the head of the list.
type Pager struct {
	mu       sync.Mutex
	page     int
	pageSize int
	hasMore  bool
	loading  bool

	fetch   func(ctx context.Context, page, size int) ([]ChatMessage, error)
	prepend func(older []ChatMessage)
}

func newPager(pageSize int, fetch func(context.Context, int, int) ([]ChatMessage, error), prepend func([]ChatMessage)) *Pager {
	return &Pager{
		pageSize: pageSize,
		fetch:    fetch,
		prepend:  prepend,
	}
}

// Reset rebases the pager after an initial load: page 0 is in the store.
func (p *Pager) Reset(hasMore bool) {
	p.mu.Lock()
	p.page = 0
	p.hasMore = hasMore
	p.loading = false
	p.mu.Unlock()
}

// HasMore reports whether an older page may still exist.
func (p *Pager) HasMore() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.hasMore
}

// Loading reports whether a history fetch is in flight.
func (p *Pager) Loading() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.loading
}

// LoadOlder fetches the next page back and prepends it. No-op while a fetch
// is already running or when history is exhausted. A short page marks the
// end of history. Fetch errors are absorbed; state stays retryable.
func (p *Pager) LoadOlder(ctx context.Context) {
	p.mu.Lock()
	if p.loading || !p.hasMore {
		p.mu.Unlock()
		return
	}
	p.loading = true
	next := p.page + 1
	size := p.pageSize
	p.mu.Unlock()

	older, err := p.fetch(ctx, next, size)

	p.mu.Lock()
	p.loading = false
	if err != nil {
		log.Printf("chat pager: history fetch failed: %v", err)
		p.mu.Unlock()
		return
	}
	p.page = next
	p.hasMore = len(older) == size
	p.mu.Unlock()

	if len(older) > 0 {
		p.prepend(older)
	}
}
