package ranking

import (
	"strings"
	"sync"

	"github.com/TobiSchelling/Storyline/internal/content"
)

// Pool holds the last known item list per kind, stamped with the store
// revision it was read at. It is safe for concurrent use; callers own its
// lifetime.
type Pool struct {
	mu        sync.RWMutex
	items     map[content.ItemKind][]*content.Item
	revisions map[content.ItemKind]int64
}

// NewPool creates an empty pool.
func NewPool() *Pool {
	return &Pool{
		items:     make(map[content.ItemKind][]*content.Item),
		revisions: make(map[content.ItemKind]int64),
	}
}

// Replace swaps in the item list for a kind, read at store revision rev.
func (p *Pool) Replace(kind content.ItemKind, items []*content.Item, rev int64) {
	cp := make([]*content.Item, len(items))
	copy(cp, items)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.items[kind] = cp
	p.revisions[kind] = rev
}

// Items returns the items of a kind, or of every kind when kind is empty.
func (p *Pool) Items(kind content.ItemKind) []*content.Item {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if kind != "" {
		out := make([]*content.Item, len(p.items[kind]))
		copy(out, p.items[kind])
		return out
	}
	var out []*content.Item
	for _, k := range content.Kinds {
		out = append(out, p.items[k]...)
	}
	return out
}

// Get looks up one item by kind and ID.
func (p *Pool) Get(kind content.ItemKind, id string) (*content.Item, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, it := range p.items[kind] {
		if it.ID == id {
			return it, true
		}
	}
	return nil, false
}

// Loaded reports whether kind has been filled, and at which revision.
func (p *Pool) Loaded(kind content.ItemKind) (int64, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	rev, ok := p.revisions[kind]
	return rev, ok
}

// Search returns items whose title contains query or whose tag set holds it,
// case-insensitively. Title matches come first.
func (p *Pool) Search(query string) []*content.Item {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return nil
	}

	var byTitle, byTag []*content.Item
	for _, it := range p.Items("") {
		if strings.Contains(strings.ToLower(it.Title), q) {
			byTitle = append(byTitle, it)
			continue
		}
		if TagSet(it)[q] {
			byTag = append(byTag, it)
		}
	}
	return append(byTitle, byTag...)
}
