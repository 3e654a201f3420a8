package handler

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/judging-portal/internal/realtime"
)

func startFiberServer(t *testing.T, app *fiber.App) (string, func()) {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to create listener: %v", err)
	}

	done := make(chan struct{})
	go func() {
		if err := app.Listener(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			t.Logf("fiber listener stopped: %v", err)
		}
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)

	shutdown := func() {
		_ = app.Shutdown()
		_ = listener.Close()
		select {
		case <-done:
		case <-time.After(100 * time.Millisecond):
		}
	}

	return "http://" + listener.Addr().String(), shutdown
}

func postDocument(t *testing.T, baseURL, key string) {
	t.Helper()
	payload, err := json.Marshal(sampleDocument())
	require.NoError(t, err)
	resp, err := http.Post(baseURL+"/store/"+key, "application/json", bytes.NewReader(payload))
	require.NoError(t, err)
	_ = resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestStoreWebsocketFeedNotifiesListener(t *testing.T) {
	srv := newTestServer(t, 0)
	baseURL, shutdown := startFiberServer(t, srv.app)
	defer shutdown()

	changes := make(chan realtime.Change, 16)
	listener, err := realtime.NewListener(baseURL+"/store", "judging_spring", func(c realtime.Change) {
		changes <- c
	}, zerolog.Nop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = listener.Run(ctx) }()

	var received realtime.Change
	require.Eventually(t, func() bool {
		postDocument(t, baseURL, "judging_spring")
		select {
		case received = <-changes:
			return true
		case <-time.After(100 * time.Millisecond):
			return false
		}
	}, 5*time.Second, 10*time.Millisecond)

	require.Equal(t, "judging_spring", received.Key)
	require.NotEmpty(t, received.Version)
}

func TestStoreWebsocketRejectsPlainRequestsAndAdminWithoutToken(t *testing.T) {
	srv := newTestServer(t, 0)
	baseURL, shutdown := startFiberServer(t, srv.app)
	defer shutdown()

	resp, err := http.Get(baseURL + "/store/judging_spring/ws")
	require.NoError(t, err)
	_ = resp.Body.Close()
	require.Equal(t, fiber.StatusUpgradeRequired, resp.StatusCode)

	dialer := websocket.Dialer{HandshakeTimeout: 3 * time.Second}
	wsURL, err := realtime.FeedURL(baseURL+"/store", "judging_admin")
	require.NoError(t, err)
	_, resp, err = dialer.Dial(wsURL, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	require.Equal(t, fiber.StatusForbidden, resp.StatusCode)
}

func TestStoreEventStreamDeliversChanges(t *testing.T) {
	srv := newTestServer(t, 0)
	baseURL, shutdown := startFiberServer(t, srv.app)
	defer shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/store/judging_spring/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, resp.Header.Get("Content-Type"), "text/event-stream")

	lines := make(chan string, 32)
	go func() {
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	// The stream opens with a keep-alive comment once subscribed.
	select {
	case line := <-lines:
		require.True(t, strings.HasPrefix(line, ": keep-alive"), line)
	case <-ctx.Done():
		t.Fatal("stream did not open")
	}

	postDocument(t, baseURL, "judging_spring")

	var sawEvent bool
	for !sawEvent {
		select {
		case line, ok := <-lines:
			require.True(t, ok, "stream closed early")
			if strings.HasPrefix(line, "data: ") {
				var change realtime.Change
				require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &change))
				require.Equal(t, "judging_spring", change.Key)
				require.Equal(t, "1", change.Version)
				sawEvent = true
			}
		case <-ctx.Done():
			t.Fatal("expected change event")
		}
	}
}
