package client

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"pillar-api/types"
)

const (
	defaultInitialBackoff = time.Second
	defaultMaxBackoff     = 30 * time.Second
)

// Subscription is one tab's persistent connection to the server's push
// channel. It carries a session id so the server can suppress echoes of
// this client's own writes.
type Subscription struct {
	BaseURL   string
	Token     string
	SessionID string
	Store     *StateStore

	// OnRefetch is invoked after every (re)connect, before live events are
	// applied. The bus keeps no backlog, so any gap between connections can
	// silently lose events; the only safe recovery is reloading the active
	// view.
	OnRefetch func(ctx context.Context) error

	HTTPClient     *http.Client
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

func NewSubscription(baseURL, token string, store *StateStore) *Subscription {
	return &Subscription{
		BaseURL:   strings.TrimRight(baseURL, "/"),
		Token:     token,
		SessionID: NewSessionID(),
		Store:     store,
	}
}

// Run connects and consumes the stream until ctx is cancelled, reconnecting
// with capped exponential backoff after every drop.
func (s *Subscription) Run(ctx context.Context) error {
	backoff := s.InitialBackoff
	if backoff <= 0 {
		backoff = defaultInitialBackoff
	}
	maxBackoff := s.MaxBackoff
	if maxBackoff <= 0 {
		maxBackoff = defaultMaxBackoff
	}

	for {
		connected, err := s.consume(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			slog.Debug("sync stream dropped", "err", err)
		}
		if connected {
			backoff = s.InitialBackoff
			if backoff <= 0 {
				backoff = defaultInitialBackoff
			}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

// consume opens the stream and applies events until it breaks. The bool
// result reports whether a connection was established at all, which resets
// the backoff.
func (s *Subscription) consume(ctx context.Context) (bool, error) {
	u := fmt.Sprintf("%s/api/events?sessionId=%s", s.BaseURL, url.QueryEscape(s.SessionID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return false, err
	}
	req.Header.Set("Authorization", "Bearer "+s.Token)
	req.Header.Set("Accept", "text/event-stream")

	httpClient := s.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("stream returned %d", resp.StatusCode)
	}

	// Reload the active view first: events emitted while disconnected are
	// gone for good.
	if s.OnRefetch != nil {
		if err := s.OnRefetch(ctx); err != nil {
			return true, fmt.Errorf("refetch after connect: %w", err)
		}
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	eventName := ""
	var data strings.Builder
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if eventName == "sync" && data.Len() > 0 {
				s.dispatch(data.String())
			}
			eventName = ""
			data.Reset()
		case strings.HasPrefix(line, ":"):
			// Heartbeat/comment frame, nothing to do.
		case strings.HasPrefix(line, "event:"):
			eventName = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(strings.TrimSpace(strings.TrimPrefix(line, "data:")))
		}
	}
	return true, scanner.Err()
}

func (s *Subscription) dispatch(raw string) {
	var ev types.SyncEvent
	if err := json.Unmarshal([]byte(raw), &ev); err != nil {
		slog.Warn("sync frame unmarshal failed", "err", err)
		return
	}
	if err := s.Store.Apply(ev); err != nil {
		slog.Warn("sync apply failed", "entity", ev.Entity, "entityId", ev.EntityID, "err", err)
	}
}
