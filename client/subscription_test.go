package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"pillar-api/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func syncFrame(t *testing.T, ev types.SyncEvent) string {
	t.Helper()
	b, err := json.Marshal(ev)
	require.NoError(t, err)
	return fmt.Sprintf("event: sync\ndata: %s\n\n", b)
}

func TestSubscriptionAppliesStreamedEvents(t *testing.T) {
	snap, err := json.Marshal(types.TaskSnapshot{ID: 42, Title: "streamed"})
	require.NoError(t, err)
	frame := syncFrame(t, types.SyncEvent{Entity: types.EntityTask, Action: types.ActionCreated, EntityID: 42, Data: snap})
	ignored, err := json.Marshal(types.TaskSnapshot{ID: 99, Title: "not a sync frame"})
	require.NoError(t, err)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/events", r.URL.Path)
		assert.NotEmpty(t, r.URL.Query().Get("sessionId"))
		assert.Equal(t, "Bearer token-1", r.Header.Get("Authorization"))

		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, ": connected\n\n")
		fmt.Fprint(w, frame)
		fmt.Fprintf(w, "event: ping\ndata: %s\n\n", ignored)
	}))
	defer srv.Close()

	store := NewStateStore()
	sub := NewSubscription(srv.URL, "token-1", store)
	sub.InitialBackoff = 10 * time.Millisecond
	sub.MaxBackoff = 50 * time.Millisecond

	var refetches atomic.Int32
	sub.OnRefetch = func(ctx context.Context) error {
		refetches.Add(1)
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sub.Run(ctx) }()

	require.Eventually(t, func() bool {
		_, ok := store.Task(42)
		return ok
	}, 3*time.Second, 10*time.Millisecond)

	_, ok := store.Task(99)
	assert.False(t, ok, "frames not named sync must be ignored")
	assert.GreaterOrEqual(t, refetches.Load(), int32(1))

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}

func TestSubscriptionRefetchesOnEveryReconnect(t *testing.T) {
	var connects atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		connects.Add(1)
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, ": connected\n\n")
		// Returning immediately drops the stream and forces a reconnect.
	}))
	defer srv.Close()

	sub := NewSubscription(srv.URL, "token-1", NewStateStore())
	sub.InitialBackoff = 10 * time.Millisecond
	sub.MaxBackoff = 20 * time.Millisecond

	var refetches atomic.Int32
	sub.OnRefetch = func(ctx context.Context) error {
		refetches.Add(1)
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sub.Run(ctx)

	// Every successful connect is a potential gap, so each one must trigger
	// a refetch.
	require.Eventually(t, func() bool { return connects.Load() >= 3 }, 5*time.Second, 10*time.Millisecond)
	assert.GreaterOrEqual(t, refetches.Load(), int32(3))
}

func TestSubscriptionKeepsRetryingWhileServerDown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer srv.Close()

	sub := NewSubscription(srv.URL, "token-1", NewStateStore())
	sub.InitialBackoff = 5 * time.Millisecond
	sub.MaxBackoff = 10 * time.Millisecond
	sub.OnRefetch = func(ctx context.Context) error {
		t.Error("refetch must not run when the connect failed")
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	err := sub.Run(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestNewSessionIDUnique(t *testing.T) {
	a := NewSessionID()
	b := NewSessionID()
	assert.NotEmpty(t, a)
	assert.NotEqual(t, a, b)
}
