package redisstore

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/kingdavid28/chatstatus/internal/store"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return New(rdb)
}

func TestRedisReadAbsent(t *testing.T) {
	st := newTestStore(t)
	doc, err := st.Read(context.Background(), "messages/c1/m1")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if doc != nil {
		t.Fatalf("expected nil for absent path, got %v", doc)
	}
}

func TestRedisWriteThenRead(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	if err := st.Write(ctx, "messages/c1/m1", store.Document{"status": "sent", "sentBy": "user-a"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	doc, err := st.Read(ctx, "messages/c1/m1")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if doc["status"] != "sent" || doc["sentBy"] != "user-a" {
		t.Fatalf("unexpected document: %v", doc)
	}
}

func TestRedisMergeKeepsOtherFields(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	_ = st.Write(ctx, "messages/c1/m1", store.Document{"status": "sent", "sentBy": "user-a"})
	if err := st.Merge(ctx, "messages/c1/m1", store.Document{"status": "delivered", "deliveredBy": "user-b"}); err != nil {
		t.Fatalf("merge: %v", err)
	}
	doc, _ := st.Read(ctx, "messages/c1/m1")
	if doc["sentBy"] != "user-a" {
		t.Fatalf("merge dropped sentBy: %v", doc)
	}
	if doc["status"] != "delivered" {
		t.Fatalf("merge did not apply status: %v", doc)
	}
}

func TestRedisWriteReplacesDocument(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	_ = st.Write(ctx, "messages/c1/m1", store.Document{"status": "sent", "sentBy": "user-a"})
	_ = st.Write(ctx, "messages/c1/m1", store.Document{"status": "failed"})
	doc, _ := st.Read(ctx, "messages/c1/m1")
	if _, ok := doc["sentBy"]; ok {
		t.Fatalf("write should replace the whole document: %v", doc)
	}
}

func TestRedisParentReadAssemblesChildren(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	_ = st.Write(ctx, "messageSync/c1/m1/user-a", store.Document{"status": "read"})
	_ = st.Write(ctx, "messageSync/c1/m2/user-b", store.Document{"status": "delivered"})

	doc, err := st.Read(ctx, "messageSync/c1")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	m1, ok := doc["m1"].(store.Document)
	if !ok {
		t.Fatalf("expected m1 subtree, got %v", doc)
	}
	entry, ok := m1["user-a"].(store.Document)
	if !ok || entry["status"] != "read" {
		t.Fatalf("expected user-a entry, got %v", m1)
	}
}

func TestRedisSubscribeDeliversSnapshots(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	got := make(chan store.Document, 4)
	unsub, err := st.Subscribe("messages/c1/m1", func(doc store.Document) {
		got <- doc
	})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer unsub()

	if err := st.Write(ctx, "messages/c1/m1", store.Document{"status": "sent"}); err != nil {
		t.Fatalf("write: %v", err)
	}

	select {
	case doc := <-got:
		if doc["status"] != "sent" {
			t.Fatalf("unexpected snapshot: %v", doc)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for change notification")
	}
}

func TestRedisSubscribeParentSeesChildWrites(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	got := make(chan store.Document, 4)
	unsub, err := st.Subscribe("messageSync/c1", func(doc store.Document) {
		got <- doc
	})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer unsub()

	if err := st.Write(ctx, "messageSync/c1/m1/user-a", store.Document{"status": "read"}); err != nil {
		t.Fatalf("write: %v", err)
	}

	select {
	case doc := <-got:
		if _, ok := doc["m1"]; !ok {
			t.Fatalf("expected assembled subtree, got %v", doc)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for change notification")
	}
}

func TestRedisUnsubscribeIdempotent(t *testing.T) {
	st := newTestStore(t)
	unsub, err := st.Subscribe("messages/c1/m1", func(store.Document) {})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	unsub()
	unsub()
}
