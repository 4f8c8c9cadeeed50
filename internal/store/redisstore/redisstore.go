package redisstore

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/kingdavid28/chatstatus/internal/store"
)

const defaultKeyPrefix = "chatstatus:"

// Store keeps each document in a Redis hash so Merge maps onto HSET, a
// native shallow field merge. Field values are JSON encoded. Every write
// publishes the document path on a pub/sub channel; Subscribe pattern-
// matches the path and its subtree and re-reads the snapshot on each
// notification.
type Store struct {
	rdb    *redis.Client
	prefix string
}

var _ store.Store = (*Store)(nil)

func New(rdb *redis.Client) *Store {
	return &Store{rdb: rdb, prefix: defaultKeyPrefix}
}

func (s *Store) key(path string) string { return s.prefix + path }

func (s *Store) changeChannel(path string) string { return s.prefix + "changes:" + path }

func (s *Store) Read(ctx context.Context, path string) (store.Document, error) {
	vals, err := s.rdb.HGetAll(ctx, s.key(path)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis read %s: %w", path, err)
	}
	if len(vals) > 0 {
		return decodeFields(vals)
	}
	return s.readChildren(ctx, path)
}

func (s *Store) readChildren(ctx context.Context, path string) (store.Document, error) {
	prefix := s.key(path) + "/"
	iter := s.rdb.Scan(ctx, 0, prefix+"*", 0).Iterator()
	var out store.Document
	for iter.Next(ctx) {
		fullKey := iter.Val()
		vals, err := s.rdb.HGetAll(ctx, fullKey).Result()
		if err != nil {
			return nil, fmt.Errorf("redis read %s: %w", fullKey, err)
		}
		if len(vals) == 0 {
			continue
		}
		doc, err := decodeFields(vals)
		if err != nil {
			return nil, err
		}
		if out == nil {
			out = make(store.Document)
		}
		insertNested(out, strings.Split(fullKey[len(prefix):], "/"), doc)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("redis scan %s: %w", path, err)
	}
	return out, nil
}

func (s *Store) Write(ctx context.Context, path string, value store.Document) error {
	fields, err := encodeFields(value)
	if err != nil {
		return err
	}
	pipe := s.rdb.TxPipeline()
	pipe.Del(ctx, s.key(path))
	if len(fields) > 0 {
		pipe.HSet(ctx, s.key(path), fields)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis write %s: %w", path, err)
	}
	return s.publish(ctx, path)
}

func (s *Store) Merge(ctx context.Context, path string, partial store.Document) error {
	fields, err := encodeFields(partial)
	if err != nil {
		return err
	}
	if len(fields) > 0 {
		if err := s.rdb.HSet(ctx, s.key(path), fields).Err(); err != nil {
			return fmt.Errorf("redis merge %s: %w", path, err)
		}
	}
	return s.publish(ctx, path)
}

func (s *Store) publish(ctx context.Context, path string) error {
	if err := s.rdb.Publish(ctx, s.changeChannel(path), path).Err(); err != nil {
		return fmt.Errorf("redis publish %s: %w", path, err)
	}
	return nil
}

func (s *Store) Subscribe(path string, onChange func(store.Document)) (func(), error) {
	ctx := context.Background()
	pubsub := s.rdb.PSubscribe(ctx, s.changeChannel(path), s.changeChannel(path)+"/*")
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("redis subscribe %s: %w", path, err)
	}

	go func() {
		for range pubsub.Channel() {
			doc, err := s.Read(ctx, path)
			if err != nil {
				log.Printf("redisstore: snapshot %s: %v", path, err)
				continue
			}
			onChange(doc)
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() { _ = pubsub.Close() })
	}, nil
}

func encodeFields(doc store.Document) (map[string]string, error) {
	fields := make(map[string]string, len(doc))
	for k, v := range doc {
		b, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encode field %s: %w", k, err)
		}
		fields[k] = string(b)
	}
	return fields, nil
}

func decodeFields(vals map[string]string) (store.Document, error) {
	doc := make(store.Document, len(vals))
	for k, raw := range vals {
		var v any
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			return nil, fmt.Errorf("decode field %s: %w", k, err)
		}
		doc[k] = v
	}
	return doc, nil
}

func insertNested(root store.Document, parts []string, doc store.Document) {
	node := root
	for _, p := range parts[:len(parts)-1] {
		child, ok := node[p].(store.Document)
		if !ok {
			child = make(store.Document)
			node[p] = child
		}
		node = child
	}
	node[parts[len(parts)-1]] = doc
}
