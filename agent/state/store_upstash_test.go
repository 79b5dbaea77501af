package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestUpstashRedisStoreRedisKey(t *testing.T) {
	t.Parallel()

	store := &UpstashRedisStore{}
	got, err := store.redisKey("abc")
	if err != nil {
		t.Fatalf("redisKey() error = %v", err)
	}
	if got != "abc" {
		t.Fatalf("redisKey() = %q, want %q", got, "abc")
	}

	store = &UpstashRedisStore{keyPrefix: defaultStoreKeyPrefix}
	got, err = store.redisKey("abc")
	if err != nil {
		t.Fatalf("redisKey() error = %v", err)
	}
	if got != "a2a:routing:abc" {
		t.Fatalf("redisKey() = %q, want %q", got, "a2a:routing:abc")
	}
}

func TestUpstashRedisStoreRedisKeyEmptySession(t *testing.T) {
	t.Parallel()

	store := &UpstashRedisStore{}
	_, err := store.redisKey("   ")
	if !errors.Is(err, ErrInvalidSession) {
		t.Fatalf("redisKey() error = %v, want ErrInvalidSession", err)
	}
}

func TestUpstashRedisStoreSaveUsesPrefixedSessionKey(t *testing.T) {
	t.Parallel()

	const wantKey = "a2a:routing:session-1"
	var gotCommand []any

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()
		if err := json.NewDecoder(r.Body).Decode(&gotCommand); err != nil {
			t.Fatalf("decode command: %v", err)
		}
		fmt.Fprint(w, `{"result":"OK"}`)
	}))
	t.Cleanup(server.Close)

	store, err := NewUpstashRedisStore(
		UpstashRedisConfig{
			URL:   server.URL,
			Token: "token",
		},
		WithHTTPClient(server.Client()),
		WithTTL(0),
	)
	if err != nil {
		t.Fatalf("NewUpstashRedisStore() error = %v", err)
	}

	st := NewRoutingState("session-1", "user-1", time.Now().UTC())
	st.RecordFailure("agent_001")
	if err := store.Save(context.Background(), st); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	if len(gotCommand) < 2 {
		t.Fatalf("unexpected command: %#v", gotCommand)
	}
	if gotCommand[0] != "SET" {
		t.Fatalf("command[0] = %v, want SET", gotCommand[0])
	}
	if gotCommand[1] != wantKey {
		t.Fatalf("command[1] = %v, want %s", gotCommand[1], wantKey)
	}
	if len(gotCommand) != 3 {
		t.Fatalf("len(command) = %d, want 3 without TTL", len(gotCommand))
	}
	payload, _ := gotCommand[2].(string)
	var saved RoutingState
	if err := json.Unmarshal([]byte(payload), &saved); err != nil {
		t.Fatalf("unmarshal saved payload: %v", err)
	}
	if saved.Failures("agent_001") != 1 {
		t.Fatalf("saved failure count = %d, want 1", saved.Failures("agent_001"))
	}
}

func TestUpstashRedisStoreSaveAppendsTTL(t *testing.T) {
	t.Parallel()

	var gotCommand []any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()
		if err := json.NewDecoder(r.Body).Decode(&gotCommand); err != nil {
			t.Fatalf("decode command: %v", err)
		}
		fmt.Fprint(w, `{"result":"OK"}`)
	}))
	t.Cleanup(server.Close)

	store, err := NewUpstashRedisStore(
		UpstashRedisConfig{URL: server.URL, Token: "token"},
		WithHTTPClient(server.Client()),
		WithTTL(1500*time.Millisecond),
	)
	if err != nil {
		t.Fatalf("NewUpstashRedisStore() error = %v", err)
	}

	if err := store.Save(context.Background(), NewRoutingState("s", "u", time.Now())); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if len(gotCommand) != 5 || gotCommand[3] != "EX" {
		t.Fatalf("unexpected command: %#v", gotCommand)
	}
	// JSON numbers decode as float64.
	if gotCommand[4] != float64(2) {
		t.Fatalf("ttl = %v, want 2", gotCommand[4])
	}
}

func TestUpstashRedisStoreLoadMissing(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"result":null}`)
	}))
	t.Cleanup(server.Close)

	store, err := NewUpstashRedisStore(
		UpstashRedisConfig{URL: server.URL, Token: "token"},
		WithHTTPClient(server.Client()),
	)
	if err != nil {
		t.Fatalf("NewUpstashRedisStore() error = %v", err)
	}

	if _, err := store.Load(context.Background(), "nobody"); !errors.Is(err, ErrStateNotFound) {
		t.Fatalf("Load() error = %v, want ErrStateNotFound", err)
	}
}

func TestUpstashRedisStoreSurfacesRedisError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"error":"WRONGPASS"}`)
	}))
	t.Cleanup(server.Close)

	store, err := NewUpstashRedisStore(
		UpstashRedisConfig{URL: server.URL, Token: "token"},
		WithHTTPClient(server.Client()),
	)
	if err != nil {
		t.Fatalf("NewUpstashRedisStore() error = %v", err)
	}

	err = store.Delete(context.Background(), "s")
	if !errors.Is(err, ErrStoreCommand) || !strings.Contains(err.Error(), "WRONGPASS") {
		t.Fatalf("Delete() error = %v, want ErrStoreCommand with WRONGPASS", err)
	}
}

func TestUpstashRedisStoreUnreachable(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	store, err := NewUpstashRedisStore(UpstashRedisConfig{URL: url, Token: "token"})
	if err != nil {
		t.Fatalf("NewUpstashRedisStore() error = %v", err)
	}
	if _, err := store.Load(context.Background(), "s"); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("Load() error = %v, want ErrStoreUnavailable", err)
	}
}

func TestUpstashRedisStoreSaveRejectsInvalidState(t *testing.T) {
	t.Parallel()

	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		fmt.Fprint(w, `{"result":"OK"}`)
	}))
	t.Cleanup(server.Close)

	store, err := NewUpstashRedisStore(
		UpstashRedisConfig{URL: server.URL, Token: "token"},
		WithHTTPClient(server.Client()),
	)
	if err != nil {
		t.Fatalf("NewUpstashRedisStore() error = %v", err)
	}

	st := NewRoutingState("s", "u", time.Now())
	st.FailureCount["agent_001"] = -1
	if err := store.Save(context.Background(), st); !errors.Is(err, ErrNegativeFailureCount) {
		t.Fatalf("Save() error = %v, want ErrNegativeFailureCount", err)
	}
	if err := store.Save(context.Background(), RoutingState{}); !errors.Is(err, ErrInvalidSession) {
		t.Fatalf("Save() error = %v, want ErrInvalidSession", err)
	}
	if calls != 0 {
		t.Fatalf("store sent %d requests for invalid state", calls)
	}
}

func TestUpstashRedisStoreLoadWithoutTTLUsesGet(t *testing.T) {
	t.Parallel()

	var gotCommand []any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()
		if err := json.NewDecoder(r.Body).Decode(&gotCommand); err != nil {
			t.Fatalf("decode command: %v", err)
		}
		fmt.Fprint(w, `{"result":null}`)
	}))
	t.Cleanup(server.Close)

	store, err := NewUpstashRedisStore(
		UpstashRedisConfig{URL: server.URL, Token: "token"},
		WithHTTPClient(server.Client()),
		WithTTL(0),
	)
	if err != nil {
		t.Fatalf("NewUpstashRedisStore() error = %v", err)
	}

	if _, err := store.Load(context.Background(), "s"); !errors.Is(err, ErrStateNotFound) {
		t.Fatalf("Load() error = %v, want ErrStateNotFound", err)
	}
	if len(gotCommand) != 2 || gotCommand[0] != "GET" {
		t.Fatalf("unexpected command: %#v", gotCommand)
	}
}

func TestUpstashRedisStoreLoadUsesPrefixedSessionKey(t *testing.T) {
	t.Parallel()

	const wantKey = "a2a:routing:session-2"
	var gotCommand []any

	seed := NewRoutingState("session-2", "user-2", time.Now().UTC())
	payload, err := json.Marshal(seed)
	if err != nil {
		t.Fatalf("marshal seed: %v", err)
	}
	encoded, err := json.Marshal(string(payload))
	if err != nil {
		t.Fatalf("marshal encoded seed: %v", err)
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()
		if err := json.NewDecoder(r.Body).Decode(&gotCommand); err != nil {
			t.Fatalf("decode command: %v", err)
		}
		fmt.Fprintf(w, `{"result":%s}`, encoded)
	}))
	t.Cleanup(server.Close)

	store, err := NewUpstashRedisStore(
		UpstashRedisConfig{
			URL:   server.URL,
			Token: "token",
		},
		WithHTTPClient(server.Client()),
	)
	if err != nil {
		t.Fatalf("NewUpstashRedisStore() error = %v", err)
	}

	st, err := store.Load(context.Background(), "session-2")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if st.SessionID != "session-2" {
		t.Fatalf("Load().SessionID = %q, want %q", st.SessionID, "session-2")
	}

	if len(gotCommand) < 2 {
		t.Fatalf("unexpected command: %#v", gotCommand)
	}
	if gotCommand[0] != "GETEX" {
		t.Fatalf("command[0] = %v, want GETEX", gotCommand[0])
	}
	if gotCommand[1] != wantKey {
		t.Fatalf("command[1] = %v, want %s", gotCommand[1], wantKey)
	}
	if len(gotCommand) != 4 || gotCommand[2] != "EX" || gotCommand[3] != float64(86400) {
		t.Fatalf("expected sliding expiry, got %#v", gotCommand)
	}
}

func TestUpstashRedisStoreDeleteUsesPrefixedSessionKey(t *testing.T) {
	t.Parallel()

	const wantKey = "a2a:routing:session-3"
	var gotCommand []any

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()
		if err := json.NewDecoder(r.Body).Decode(&gotCommand); err != nil {
			t.Fatalf("decode command: %v", err)
		}
		fmt.Fprint(w, `{"result":1}`)
	}))
	t.Cleanup(server.Close)

	store, err := NewUpstashRedisStore(
		UpstashRedisConfig{
			URL:   server.URL,
			Token: "token",
		},
		WithHTTPClient(server.Client()),
	)
	if err != nil {
		t.Fatalf("NewUpstashRedisStore() error = %v", err)
	}

	if err := store.Delete(context.Background(), "session-3"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}

	if len(gotCommand) < 2 {
		t.Fatalf("unexpected command: %#v", gotCommand)
	}
	if gotCommand[0] != "DEL" {
		t.Fatalf("command[0] = %v, want DEL", gotCommand[0])
	}
	if gotCommand[1] != wantKey {
		t.Fatalf("command[1] = %v, want %s", gotCommand[1], wantKey)
	}
}
