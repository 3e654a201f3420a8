// Package realtime listens to the store's change feed and turns change
// notifications into early pulls.
package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// Change is a notification that a document was rewritten.
type Change struct {
	Key       string `json:"key"`
	Version   string `json:"version"`
	UpdatedAt int64  `json:"updatedAt"`
	Source    string `json:"source,omitempty"`
}

// Listener keeps a websocket open to the change feed of one key and
// reconnects with exponential backoff.
type Listener struct {
	url        string
	onChange   func(Change)
	dialer     websocket.Dialer
	header     http.Header
	minBackoff time.Duration
	maxBackoff time.Duration
	logger     zerolog.Logger
}

// FeedURL derives the websocket feed URL from the store base URL.
func FeedURL(storeBase, key string) (string, error) {
	parsed, err := url.Parse(strings.TrimRight(storeBase, "/"))
	if err != nil {
		return "", err
	}
	switch parsed.Scheme {
	case "http":
		parsed.Scheme = "ws"
	case "https":
		parsed.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported scheme %q", parsed.Scheme)
	}
	parsed.Path = parsed.Path + "/" + url.PathEscape(key) + "/ws"
	return parsed.String(), nil
}

// NewListener builds a listener for key on the store at storeBase.
func NewListener(storeBase, key string, onChange func(Change), logger zerolog.Logger) (*Listener, error) {
	feed, err := FeedURL(storeBase, key)
	if err != nil {
		return nil, err
	}
	return &Listener{
		url:        feed,
		onChange:   onChange,
		dialer:     websocket.Dialer{HandshakeTimeout: 5 * time.Second},
		header:     http.Header{},
		minBackoff: 500 * time.Millisecond,
		maxBackoff: 30 * time.Second,
		logger:     logger.With().Str("component", "realtime_listener").Str("url", feed).Logger(),
	}, nil
}

// WithHeader adds a header sent on every dial.
func (l *Listener) WithHeader(key, value string) *Listener {
	l.header.Set(key, value)
	return l
}

// Run listens until ctx is cancelled.
func (l *Listener) Run(ctx context.Context) error {
	backoff := l.minBackoff
	for {
		connected, err := l.session(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if connected {
			backoff = l.minBackoff
		}
		l.logger.Debug().Err(err).Dur("retry_in", backoff).Msg("change feed disconnected")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > l.maxBackoff {
			backoff = l.maxBackoff
		}
	}
}

func (l *Listener) session(ctx context.Context) (bool, error) {
	conn, resp, err := l.dialer.DialContext(ctx, l.url, l.header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return false, err
	}
	defer conn.Close()

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
			_ = conn.Close()
		case <-stop:
		}
	}()

	l.logger.Info().Msg("change feed connected")
	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return true, nil
			}
			return true, err
		}

		var change Change
		if err := json.Unmarshal(payload, &change); err != nil {
			l.logger.Warn().Err(err).Msg("invalid change payload")
			continue
		}
		if l.onChange != nil {
			l.onChange(change)
		}
	}
}
