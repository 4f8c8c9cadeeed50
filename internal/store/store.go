package store

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// Document is a shallow key-value record at one store path. Reads of a
// parent path return a Document whose values are the child Documents.
type Document = map[string]any

// Store is the boundary to the remote real-time data store. Four primitives
// only; everything the status subsystem does is expressed in terms of them.
//
// Read returns nil with no error when nothing exists at or under path.
// Merge is a shallow field merge, so concurrent merges touching different
// fields never clobber each other. Subscribe fires onChange with the value
// at path after every change at or under it; the returned unsubscribe
// function is safe to call more than once.
type Store interface {
	Read(ctx context.Context, path string) (Document, error)
	Write(ctx context.Context, path string, value Document) error
	Merge(ctx context.Context, path string, partial Document) error
	Subscribe(path string, onChange func(Document)) (func(), error)
}

// InMemory is a process-local Store for tests and embedded use.
type InMemory struct {
	mu       sync.RWMutex
	docs     map[string]Document
	notifier *Notifier
}

var _ Store = (*InMemory)(nil)

func NewInMemory() *InMemory {
	return &InMemory{
		docs:     make(map[string]Document),
		notifier: NewNotifier(),
	}
}

func (m *InMemory) Read(_ context.Context, path string) (Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.readLocked(path), nil
}

func (m *InMemory) readLocked(path string) Document {
	if doc, ok := m.docs[path]; ok {
		return cloneDocument(doc)
	}
	return assembleChildren(m.docs, path)
}

func (m *InMemory) Write(_ context.Context, path string, value Document) error {
	m.mu.Lock()
	m.docs[path] = cloneDocument(value)
	m.mu.Unlock()
	m.notify(path)
	return nil
}

func (m *InMemory) Merge(_ context.Context, path string, partial Document) error {
	m.mu.Lock()
	doc, ok := m.docs[path]
	if !ok {
		doc = make(Document, len(partial))
		m.docs[path] = doc
	}
	for k, v := range partial {
		doc[k] = v
	}
	m.mu.Unlock()
	m.notify(path)
	return nil
}

func (m *InMemory) Subscribe(path string, onChange func(Document)) (func(), error) {
	return m.notifier.Subscribe(path, onChange), nil
}

func (m *InMemory) notify(path string) {
	m.notifier.Notify(path, func(subPath string) (Document, error) {
		m.mu.RLock()
		defer m.mu.RUnlock()
		return m.readLocked(subPath), nil
	})
}

// assembleChildren builds a nested Document from every entry stored below
// path, so reading "messageSync/c1" yields messageID -> userID -> entry.
func assembleChildren(docs map[string]Document, path string) Document {
	prefix := path + "/"
	var keys []string
	for k := range docs {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	if len(keys) == 0 {
		return nil
	}
	sort.Strings(keys)
	out := make(Document)
	for _, k := range keys {
		parts := strings.Split(k[len(prefix):], "/")
		node := out
		for _, p := range parts[:len(parts)-1] {
			child, ok := node[p].(Document)
			if !ok {
				child = make(Document)
				node[p] = child
			}
			node = child
		}
		node[parts[len(parts)-1]] = cloneDocument(docs[k])
	}
	return out
}

func cloneDocument(doc Document) Document {
	if doc == nil {
		return nil
	}
	out := make(Document, len(doc))
	for k, v := range doc {
		if child, ok := v.(Document); ok {
			out[k] = cloneDocument(child)
			continue
		}
		out[k] = v
	}
	return out
}
