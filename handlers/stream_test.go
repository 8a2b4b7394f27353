package handlers

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"pillar-api/events"
	"pillar-api/types"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newStreamServer mounts the SSE endpoint behind a stand-in auth middleware
// that trusts an `as` query parameter, so tests can open connections for
// arbitrary users without minting tokens.
func newStreamServer(t *testing.T, bus *events.Bus) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h := NewStreamHandler(bus)
	r.GET("/api/events", func(c *gin.Context) {
		if as := c.Query("as"); as != "" {
			id, err := strconv.Atoi(as)
			require.NoError(t, err)
			c.Set("userId", id)
		}
		h.Events(c)
	})
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func connectStream(t *testing.T, srv *httptest.Server, userID int, sessionID string) (*bufio.Reader, context.CancelFunc) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	url := srv.URL + "/api/events?as=" + strconv.Itoa(userID) + "&sessionId=" + sessionID
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() {
		cancel()
		resp.Body.Close()
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, ": connected\n", line)
	return reader, cancel
}

// readSyncEvent blocks until the next `event: sync` frame and decodes its
// data line.
func readSyncEvent(t *testing.T, reader *bufio.Reader) types.SyncEvent {
	t.Helper()
	for {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var ev types.SyncEvent
		require.NoError(t, json.Unmarshal([]byte(strings.TrimSuffix(strings.TrimPrefix(line, "data: "), "\n")), &ev))
		return ev
	}
}

func waitForListeners(t *testing.T, bus *events.Bus, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return bus.Len() == n }, 2*time.Second, 10*time.Millisecond)
}

func TestEventsRequiresAuth(t *testing.T) {
	srv := newStreamServer(t, events.NewBus())

	resp, err := http.Get(srv.URL + "/api/events")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestEventsDeliversToOtherSession(t *testing.T) {
	bus := events.NewBus()
	srv := newStreamServer(t, bus)

	reader, _ := connectStream(t, srv, 1, "tab-b")
	waitForListeners(t, bus, 1)

	bus.Publish(types.SyncEvent{
		Entity:    types.EntityTask,
		Action:    types.ActionCreated,
		UserID:    1,
		SessionID: "tab-a",
		EntityID:  42,
		Timestamp: time.Now().UnixMilli(),
	})

	ev := readSyncEvent(t, reader)
	assert.Equal(t, types.EntityTask, ev.Entity)
	assert.Equal(t, types.ActionCreated, ev.Action)
	assert.Equal(t, 42, ev.EntityID)
}

func TestEventsSuppressesOwnSession(t *testing.T) {
	bus := events.NewBus()
	srv := newStreamServer(t, bus)

	origin, _ := connectStream(t, srv, 1, "tab-a")
	other, _ := connectStream(t, srv, 1, "tab-b")
	waitForListeners(t, bus, 2)

	// First event originates from tab-a and must be filtered off its own
	// stream; the marker event proves the stream itself stayed live.
	bus.Publish(types.SyncEvent{UserID: 1, SessionID: "tab-a", Entity: types.EntityTask, EntityID: 1})
	bus.Publish(types.SyncEvent{UserID: 1, SessionID: "srv", Entity: types.EntityTask, EntityID: 2})

	first := readSyncEvent(t, other)
	assert.Equal(t, 1, first.EntityID)
	second := readSyncEvent(t, other)
	assert.Equal(t, 2, second.EntityID)

	got := readSyncEvent(t, origin)
	assert.Equal(t, 2, got.EntityID, "origin tab must only see the marker event")
}

func TestEventsTargetedDelivery(t *testing.T) {
	bus := events.NewBus()
	srv := newStreamServer(t, bus)

	member, _ := connectStream(t, srv, 2, "tab-m")
	outsider, _ := connectStream(t, srv, 9, "tab-o")
	waitForListeners(t, bus, 2)

	bus.Publish(types.SyncEvent{UserID: 1, SessionID: "tab-a", Entity: types.EntityTask, EntityID: 1, TargetUserIDs: []int{1, 2}})
	bus.Publish(types.SyncEvent{UserID: 9, SessionID: "srv", Entity: types.EntityTask, EntityID: 2})

	got := readSyncEvent(t, member)
	assert.Equal(t, 1, got.EntityID)

	// The outsider's first frame is the marker: the targeted event skipped it.
	got = readSyncEvent(t, outsider)
	assert.Equal(t, 2, got.EntityID)
}

func TestEventsListenerRemovedOnDisconnect(t *testing.T) {
	bus := events.NewBus()
	srv := newStreamServer(t, bus)

	_, cancel := connectStream(t, srv, 1, "tab-a")
	waitForListeners(t, bus, 1)

	cancel()
	waitForListeners(t, bus, 0)
}
