package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/kingdavid28/chatstatus/internal/delivery"
	"github.com/kingdavid28/chatstatus/internal/session"
	"github.com/kingdavid28/chatstatus/internal/store"
	"github.com/kingdavid28/chatstatus/internal/ws"
)

// testEnv bundles a Session + httptest.Server + ws.Hub for handler tests.
type testEnv struct {
	srv     *httptest.Server
	hub     *ws.Hub
	store   *store.InMemory
	session *session.Session
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	st := store.NewInMemory()
	hub := ws.NewHub()
	sess := session.New(st, session.Config{
		Delivery: delivery.Config{DeliveryTimeout: time.Hour},
	}).WithBroadcaster(hub)
	srv := httptest.NewServer(NewRouter(NewService(sess), hub.Handler()))
	t.Cleanup(srv.Close)
	t.Cleanup(sess.Close)
	return &testEnv{srv: srv, hub: hub, store: st, session: sess}
}

func (e *testEnv) post(t *testing.T, path string, body any) *http.Response {
	t.Helper()
	buf, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	resp, err := http.Post(e.srv.URL+path, "application/json", bytes.NewReader(buf))
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	return resp
}

func (e *testEnv) get(t *testing.T, path string) *http.Response {
	t.Helper()
	resp, err := http.Get(e.srv.URL + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}
