package store

import (
	"log"
	"strings"
	"sync"
)

// Notifier fans change notifications out to path subscribers. A change at
// path p reaches every subscription rooted at p or at an ancestor of p.
// Backends without a native change feed (in-memory, sqlite) share it.
type Notifier struct {
	mu   sync.RWMutex
	subs map[string]map[uint64]func(Document)
	next uint64
}

func NewNotifier() *Notifier {
	return &Notifier{subs: make(map[string]map[uint64]func(Document))}
}

// Subscribe registers fn for changes at or under path. The returned
// unsubscribe function is idempotent.
func (n *Notifier) Subscribe(path string, fn func(Document)) func() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.next++
	id := n.next
	perPath, ok := n.subs[path]
	if !ok {
		perPath = make(map[uint64]func(Document))
		n.subs[path] = perPath
	}
	perPath[id] = fn
	return func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		perPath, ok := n.subs[path]
		if !ok {
			return
		}
		delete(perPath, id)
		if len(perPath) == 0 {
			delete(n.subs, path)
		}
	}
}

// Notify invokes every subscription covering path with a fresh read of the
// subscribed root. Callbacks run outside the registry lock; a failed read
// is logged and the callback skipped.
func (n *Notifier) Notify(path string, read func(path string) (Document, error)) {
	type delivery struct {
		root string
		fn   func(Document)
	}
	n.mu.RLock()
	var pending []delivery
	for root, perPath := range n.subs {
		if root != path && !strings.HasPrefix(path, root+"/") {
			continue
		}
		for _, fn := range perPath {
			pending = append(pending, delivery{root: root, fn: fn})
		}
	}
	n.mu.RUnlock()

	for _, d := range pending {
		doc, err := read(d.root)
		if err != nil {
			log.Printf("store: notify %s: %v", d.root, err)
			continue
		}
		d.fn(doc)
	}
}
