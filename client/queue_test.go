package client

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestQueue(t *testing.T) (*Queue, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "queue.db")
	q, err := OpenQueue(path)
	require.NoError(t, err)
	t.Cleanup(func() { q.Close() })
	return q, path
}

func postJSON(t *testing.T, q *Queue, url, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, url, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := q.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestDoPassesThroughWhenOnline(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	q, _ := newTestQueue(t)
	resp := postJSON(t, q, srv.URL+"/api/tasks", `{"title":"direct"}`)

	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, int32(1), hits.Load())
	assert.Equal(t, 0, q.Pending())
	assert.Equal(t, StateOnline, q.Stats().State)
}

func TestDoCapturesWhenOffline(t *testing.T) {
	q, _ := newTestQueue(t)
	q.SetOnline(false)

	resp := postJSON(t, q, "http://app.local/api/tasks", `{"title":"queued"}`)

	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Queued-Mutation"))
	assert.Equal(t, 1, q.Pending())
	assert.Equal(t, StateOffline, q.Stats().State)
}

func TestDoCapturesOnNetworkError(t *testing.T) {
	q, _ := newTestQueue(t)
	require.True(t, q.Online())

	// Nothing listens on this port; the transport error must flip the queue
	// offline and capture the write instead of losing it.
	resp := postJSON(t, q, "http://127.0.0.1:1/api/tasks", `{"title":"rescued"}`)

	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.False(t, q.Online())
	assert.Equal(t, 1, q.Pending())
}

func TestDoNeverQueuesReads(t *testing.T) {
	q, _ := newTestQueue(t)
	q.SetOnline(false)

	req, err := http.NewRequest(http.MethodGet, "http://127.0.0.1:1/api/tasks", nil)
	require.NoError(t, err)
	_, err = q.Do(req)

	assert.Error(t, err)
	assert.Equal(t, 0, q.Pending())
}

func TestQueueSurvivesReopen(t *testing.T) {
	q, path := newTestQueue(t)
	q.SetOnline(false)
	postJSON(t, q, "http://app.local/api/tasks", `{"title":"durable"}`)
	require.NoError(t, q.Close())

	reopened, err := OpenQueue(path)
	require.NoError(t, err)
	defer reopened.Close()
	assert.Equal(t, 1, reopened.Pending())
}

func TestDrainReplaysInOrder(t *testing.T) {
	var mu sync.Mutex
	var seen []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var buf bytes.Buffer
		buf.ReadFrom(r.Body)
		mu.Lock()
		seen = append(seen, r.Method+" "+r.URL.Path+" "+buf.String())
		mu.Unlock()
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	q, _ := newTestQueue(t)
	q.SetOnline(false)
	postJSON(t, q, srv.URL+"/api/tasks", `{"title":"a"}`)
	postJSON(t, q, srv.URL+"/api/tasks", `{"title":"b"}`)
	req, err := http.NewRequest(http.MethodDelete, srv.URL+"/api/tasks/1", nil)
	require.NoError(t, err)
	_, err = q.Do(req)
	require.NoError(t, err)
	require.Equal(t, 3, q.Pending())

	res, err := q.Drain(context.Background())
	require.NoError(t, err)

	assert.Equal(t, DrainResult{Succeeded: 3}, res)
	assert.Equal(t, 0, q.Pending())
	assert.True(t, q.Online())
	assert.Equal(t, StateOnline, q.Stats().State)
	assert.Equal(t, []string{
		`POST /api/tasks {"title":"a"}`,
		`POST /api/tasks {"title":"b"}`,
		"DELETE /api/tasks/1 ",
	}, seen)
}

func TestDrainDropsPermanentFailureAndContinues(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "/gone") {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	q, _ := newTestQueue(t)
	q.SetOnline(false)
	postJSON(t, q, srv.URL+"/api/tasks", `{"title":"first"}`)
	postJSON(t, q, srv.URL+"/api/tasks/gone", `{"title":"doomed"}`)
	postJSON(t, q, srv.URL+"/api/tasks", `{"title":"third"}`)

	res, err := q.Drain(context.Background())
	require.NoError(t, err)

	assert.Equal(t, DrainResult{Succeeded: 2, Failed: 1}, res)
	assert.Equal(t, 0, q.Pending())
	assert.Equal(t, int64(1), q.Stats().Failed)
	assert.True(t, q.Online())

	q.ResetFailures()
	assert.Equal(t, int64(0), q.Stats().Failed)
}

func TestDrainHaltsOnTransientFailure(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	q, _ := newTestQueue(t)
	q.SetOnline(false)
	postJSON(t, q, srv.URL+"/api/tasks", `{"title":"a"}`)
	postJSON(t, q, srv.URL+"/api/tasks", `{"title":"b"}`)
	postJSON(t, q, srv.URL+"/api/tasks", `{"title":"c"}`)

	res, err := q.Drain(context.Background())
	require.NoError(t, err)

	// The head mutation failed transiently: nothing is dropped, the queue
	// waits intact for the next trigger.
	assert.Equal(t, DrainResult{Remaining: 3}, res)
	assert.Equal(t, int32(1), hits.Load())
	assert.Equal(t, 3, q.Pending())
	assert.False(t, q.Online())
	assert.Equal(t, StateOffline, q.Stats().State)
}

func TestDrainAccountsForEveryMutation(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch calls.Add(1) {
		case 1:
			w.WriteHeader(http.StatusOK)
		case 2:
			w.WriteHeader(http.StatusUnprocessableEntity)
		default:
			w.WriteHeader(http.StatusTooManyRequests)
		}
	}))
	defer srv.Close()

	q, _ := newTestQueue(t)
	q.SetOnline(false)
	for i := 0; i < 4; i++ {
		postJSON(t, q, srv.URL+"/api/tasks", `{"n":1}`)
	}

	res, err := q.Drain(context.Background())
	require.NoError(t, err)

	assert.Equal(t, DrainResult{Succeeded: 1, Failed: 1, Remaining: 2}, res)
	assert.Equal(t, 4, res.Succeeded+res.Failed+res.Remaining)
	assert.Equal(t, 2, q.Pending())
}

func TestDrainExclusive(t *testing.T) {
	var mu sync.Mutex
	applied := map[string]int{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var buf bytes.Buffer
		buf.ReadFrom(r.Body)
		mu.Lock()
		applied[buf.String()]++
		mu.Unlock()
		time.Sleep(20 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	q, path := newTestQueue(t)
	q.SetOnline(false)
	postJSON(t, q, srv.URL+"/api/tasks", `{"title":"one"}`)
	postJSON(t, q, srv.URL+"/api/tasks", `{"title":"two"}`)
	postJSON(t, q, srv.URL+"/api/tasks", `{"title":"three"}`)

	// A second handle on the same file stands in for another tab.
	other, err := OpenQueue(path)
	require.NoError(t, err)
	defer other.Close()

	var wg sync.WaitGroup
	results := make([]DrainResult, 2)
	for i, drainer := range []*Queue{q, other} {
		wg.Add(1)
		go func(i int, d *Queue) {
			defer wg.Done()
			res, err := d.Drain(context.Background())
			assert.NoError(t, err)
			results[i] = res
		}(i, drainer)
	}
	wg.Wait()

	// The storage lock serializes the two drains: each mutation is applied
	// exactly once, whichever drainer got there first.
	for body, n := range applied {
		assert.Equal(t, 1, n, "mutation %s replayed more than once", body)
	}
	assert.Equal(t, 3, results[0].Succeeded+results[1].Succeeded)
	assert.Equal(t, 0, q.Pending())
	assert.Equal(t, 0, other.Pending())
}
