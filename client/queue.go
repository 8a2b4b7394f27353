package client

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// QueuedMutation is one outbound write captured while the network was
// unavailable. It survives a process restart and is destroyed only on
// successful replay or on a permanent failure.
type QueuedMutation struct {
	ID        string `json:"id"`
	Method    string `json:"method"`
	URL       string `json:"url"`
	Body      []byte `json:"body,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// QueueState is the observable sync state surfaced to the UI.
type QueueState int32

const (
	StateOnline QueueState = iota
	StateOffline
	StateSyncing
)

func (s QueueState) String() string {
	switch s {
	case StateOnline:
		return "online"
	case StateOffline:
		return "offline"
	case StateSyncing:
		return "syncing"
	default:
		return "unknown"
	}
}

// QueueStats is a point-in-time snapshot of the queue.
type QueueStats struct {
	State   QueueState `json:"state"`
	Pending int        `json:"pending"`
	Failed  int64      `json:"failed"`
}

// DrainResult accounts for one drain pass. Succeeded+Failed+Remaining
// covers every mutation that was queued when the drain started.
type DrainResult struct {
	Succeeded int
	Failed    int
	Remaining int
}

// ErrDrainBusy is returned when another process or tab holds the drain lock.
var ErrDrainBusy = errors.New("another drain is in progress")

// Queue wraps mutating HTTP calls with offline capture and ordered replay.
// The backing SQLite file is shared by every tab/process on one profile, so
// enqueues are serialized and the drain takes a storage-level write lock
// (BEGIN IMMEDIATE) for the whole walk — two concurrent drainers cannot
// double-submit.
type Queue struct {
	db         *sql.DB
	httpClient *http.Client

	mu     sync.Mutex
	online atomic.Bool
	state  atomic.Int32
	failed atomic.Int64
}

// OpenQueue opens (creating if needed) the durable queue at path.
func OpenQueue(path string) (*Queue, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL&_txlock=immediate")
	if err != nil {
		return nil, err
	}
	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS queued_mutation (
			seq        INTEGER PRIMARY KEY AUTOINCREMENT,
			id         TEXT NOT NULL UNIQUE,
			method     TEXT NOT NULL,
			url        TEXT NOT NULL,
			body       BLOB,
			created_at INTEGER NOT NULL
		)
	`)
	if err != nil {
		db.Close()
		return nil, err
	}
	q := &Queue{db: db, httpClient: http.DefaultClient}
	q.online.Store(true)
	q.state.Store(int32(StateOnline))
	return q, nil
}

// SetHTTPClient overrides the client used for live and replayed requests.
func (q *Queue) SetHTTPClient(c *http.Client) {
	q.httpClient = c
}

func (q *Queue) Close() error {
	return q.db.Close()
}

// Online reports the last known connectivity state.
func (q *Queue) Online() bool {
	return q.online.Load()
}

// SetOnline records a connectivity change, e.g. from an OS network monitor.
// Going online does not drain by itself; call Drain.
func (q *Queue) SetOnline(online bool) {
	q.online.Store(online)
	if online {
		if q.Pending() == 0 {
			q.state.Store(int32(StateOnline))
		}
	} else {
		q.state.Store(int32(StateOffline))
	}
}

// Do performs a mutating request, or captures it when offline. GET and HEAD
// are passed through untouched. A captured request gets a synthetic 202
// response whose X-Queued-Mutation header carries the queue id, so the
// caller can apply an optimistic local update.
func (q *Queue) Do(req *http.Request) (*http.Response, error) {
	if req.Method == http.MethodGet || req.Method == http.MethodHead {
		return q.httpClient.Do(req)
	}

	var body []byte
	if req.Body != nil {
		b, err := io.ReadAll(req.Body)
		req.Body.Close()
		if err != nil {
			return nil, err
		}
		body = b
		req.Body = io.NopCloser(bytes.NewReader(body))
	}

	if !q.Online() {
		return q.capture(req, body)
	}

	resp, err := q.httpClient.Do(req)
	if err != nil {
		// Network-level failure: flip offline and capture so the write is
		// not lost.
		q.SetOnline(false)
		return q.capture(req, body)
	}
	return resp, nil
}

func (q *Queue) capture(req *http.Request, body []byte) (*http.Response, error) {
	m := QueuedMutation{
		ID:        uuid.NewString(),
		Method:    req.Method,
		URL:       req.URL.String(),
		Body:      body,
		Timestamp: time.Now().UnixMilli(),
	}
	if err := q.enqueue(m); err != nil {
		return nil, err
	}
	q.state.Store(int32(StateOffline))

	payload, _ := json.Marshal(map[string]any{
		"success": true,
		"data":    map[string]any{"queued": true, "id": m.ID},
	})
	resp := &http.Response{
		StatusCode: http.StatusAccepted,
		Status:     "202 Accepted",
		Header: http.Header{
			"Content-Type":      []string{"application/json"},
			"X-Queued-Mutation": []string{m.ID},
		},
		Body:          io.NopCloser(bytes.NewReader(payload)),
		ContentLength: int64(len(payload)),
		Request:       req,
	}
	return resp, nil
}

// enqueue is serialized: several mutations captured in quick succession
// must not lose each other's writes.
func (q *Queue) enqueue(m QueuedMutation) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, err := q.db.Exec(`
		INSERT INTO queued_mutation (id, method, url, body, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, m.ID, m.Method, m.URL, m.Body, m.Timestamp)
	return err
}

// Pending reports the number of queued mutations.
func (q *Queue) Pending() int {
	var n int
	if err := q.db.QueryRow(`SELECT COUNT(*) FROM queued_mutation`).Scan(&n); err != nil {
		return 0
	}
	return n
}

// Stats returns the observable queue state.
func (q *Queue) Stats() QueueStats {
	return QueueStats{
		State:   QueueState(q.state.Load()),
		Pending: q.Pending(),
		Failed:  q.failed.Load(),
	}
}

// ResetFailures clears the permanent-failure counter after the UI has
// surfaced it.
func (q *Queue) ResetFailures() {
	q.failed.Store(0)
}

// Drain replays queued mutations strictly in enqueue order:
//
//   - success: dropped, continue;
//   - permanent failure (4xx other than 408/429, e.g. validation error or a
//     404 because the target vanished): dropped, failure counter bumped,
//     continue with the rest;
//   - transient failure (network error, 5xx, 408, 429, anything ambiguous):
//     the drain halts with the mutation still at the head, to be retried on
//     the next trigger.
//
// The whole walk runs inside one immediate transaction, so concurrent
// drains from other tabs block rather than double-submit.
func (q *Queue) Drain(ctx context.Context) (DrainResult, error) {
	q.state.Store(int32(StateSyncing))

	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		q.state.Store(int32(StateOffline))
		return DrainResult{}, fmt.Errorf("%w: %v", ErrDrainBusy, err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `
		SELECT seq, id, method, url, body, created_at
		FROM queued_mutation
		ORDER BY seq
	`)
	if err != nil {
		q.state.Store(int32(StateOffline))
		return DrainResult{}, err
	}
	type row struct {
		seq int64
		m   QueuedMutation
	}
	var pending []row
	for rows.Next() {
		var r row
		if err := rows.Scan(&r.seq, &r.m.ID, &r.m.Method, &r.m.URL, &r.m.Body, &r.m.Timestamp); err != nil {
			rows.Close()
			q.state.Store(int32(StateOffline))
			return DrainResult{}, err
		}
		pending = append(pending, r)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		q.state.Store(int32(StateOffline))
		return DrainResult{}, err
	}

	var res DrainResult
	halted := false
	for i, r := range pending {
		outcome, err := q.replay(ctx, r.m)
		if err != nil || outcome == outcomeTransient {
			res.Remaining = len(pending) - i
			halted = true
			break
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM queued_mutation WHERE seq = ?`, r.seq); err != nil {
			q.state.Store(int32(StateOffline))
			return res, err
		}
		if outcome == outcomePermanent {
			res.Failed++
			q.failed.Add(1)
		} else {
			res.Succeeded++
		}
	}

	if err := tx.Commit(); err != nil {
		q.state.Store(int32(StateOffline))
		return res, err
	}

	if halted {
		q.online.Store(false)
		q.state.Store(int32(StateOffline))
	} else {
		q.online.Store(true)
		q.state.Store(int32(StateOnline))
	}
	return res, nil
}

type replayOutcome int

const (
	outcomeSuccess replayOutcome = iota
	outcomePermanent
	outcomeTransient
)

func (q *Queue) replay(ctx context.Context, m QueuedMutation) (replayOutcome, error) {
	var body io.Reader
	if len(m.Body) > 0 {
		body = bytes.NewReader(m.Body)
	}
	req, err := http.NewRequestWithContext(ctx, m.Method, m.URL, body)
	if err != nil {
		// Malformed beyond repair; replaying again can never help.
		return outcomePermanent, nil
	}
	if len(m.Body) > 0 {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := q.httpClient.Do(req)
	if err != nil {
		return outcomeTransient, nil
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	return classifyStatus(resp.StatusCode), nil
}

// classifyStatus maps a replay response to an outcome. Ambiguity defaults
// to transient: a retried write is recoverable, a dropped one is not.
func classifyStatus(code int) replayOutcome {
	switch {
	case code >= 200 && code < 300:
		return outcomeSuccess
	case code == http.StatusRequestTimeout || code == http.StatusTooManyRequests:
		return outcomeTransient
	case code >= 400 && code < 500:
		return outcomePermanent
	default:
		return outcomeTransient
	}
}
