package service

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/judging-portal/internal/realtime"
	"github.com/noah-isme/judging-portal/internal/repository"
)

func newRedisClient(t *testing.T) *redis.Client {
	t.Helper()
	server, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(server.Close)

	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestDocumentServicePutPublishesChange(t *testing.T) {
	client := newRedisClient(t)
	feed := NewChangeFeed(nil, "", nil, zerolog.Nop())
	svc := NewDocumentService(repository.NewRedisDocumentRepository(client, "test"), feed, "redis", zerolog.Nop())

	changes, cancel := feed.Subscribe("judging_demo")
	defer cancel()

	_, err := svc.Get(context.Background(), "judging_demo")
	require.ErrorIs(t, err, repository.ErrDocumentNotFound)

	doc, err := svc.Put(context.Background(), "judging_demo", []byte(`{"teams":[],"ratings":[],"judges":[],"updatedAt":1}`), repository.AbsentVersion)
	require.NoError(t, err)
	require.Equal(t, int64(1), doc.Version)

	select {
	case change := <-changes:
		require.Equal(t, "judging_demo", change.Key)
		require.Equal(t, "1", change.Version)
	case <-time.After(time.Second):
		t.Fatal("expected change notification")
	}

	stored, err := svc.Get(context.Background(), "judging_demo")
	require.NoError(t, err)
	require.Equal(t, doc.Version, stored.Version)
}

func TestDocumentServiceRejectsBadInput(t *testing.T) {
	svc := NewDocumentService(repository.NewRedisDocumentRepository(newRedisClient(t), "test"), nil, "redis", zerolog.Nop())

	_, err := svc.Put(context.Background(), "../etc", []byte(`{}`), repository.AnyVersion)
	require.ErrorIs(t, err, ErrInvalidKey)

	_, err = svc.Get(context.Background(), "JUDGING_X")
	require.ErrorIs(t, err, ErrInvalidKey)

	for _, body := range []string{`[]`, `null`, `"x"`, `{`} {
		_, err = svc.Put(context.Background(), "judging_demo", []byte(body), repository.AnyVersion)
		require.ErrorIs(t, err, ErrInvalidDocument, body)
	}
}

func TestDocumentServiceStaleVersion(t *testing.T) {
	svc := NewDocumentService(repository.NewRedisDocumentRepository(newRedisClient(t), "test"), nil, "redis", zerolog.Nop())

	_, err := svc.Put(context.Background(), "judging_demo", []byte(`{}`), repository.AbsentVersion)
	require.NoError(t, err)

	_, err = svc.Put(context.Background(), "judging_demo", []byte(`{}`), repository.AbsentVersion)
	require.ErrorIs(t, err, repository.ErrVersionMismatch)
}

func TestChangeFeedFansOutAcrossNodesViaRedis(t *testing.T) {
	client := newRedisClient(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	nodeA := NewChangeFeed(client, "test", nil, zerolog.Nop())
	nodeB := NewChangeFeed(client, "test", nil, zerolog.Nop())
	nodeA.Start(ctx)
	nodeB.Start(ctx)

	local, stopLocal := nodeA.Subscribe("judging_demo")
	defer stopLocal()
	remote, stopRemote := nodeB.Subscribe("judging_demo")
	defer stopRemote()

	require.Eventually(t, func() bool {
		nodeA.Publish(ctx, realtime.Change{Key: "judging_demo", Version: "2"})
		select {
		case change := <-remote:
			return change.Version == "2" && change.Source != ""
		default:
			return false
		}
	}, 3*time.Second, 50*time.Millisecond)

	select {
	case change := <-local:
		require.Equal(t, "judging_demo", change.Key)
	default:
		t.Fatal("publishing node should deliver to its own subscribers")
	}
}

func TestChangeFeedIgnoresOwnEventsAndOtherKeys(t *testing.T) {
	feed := NewChangeFeed(nil, "test", nil, zerolog.Nop()).(*changeFeed)

	changes, stop := feed.Subscribe("judging_demo")

	feed.handleEvent([]byte(`{"source":"`+feed.nodeID+`","change":{"key":"judging_demo","version":"1"}}`), "redis")
	feed.handleEvent([]byte(`{"source":"peer","change":{"key":"judging_other","version":"1"}}`), "redis")
	feed.handleEvent([]byte(`garbage`), "redis")
	require.Len(t, changes, 0)

	feed.handleEvent([]byte(`{"source":"peer","change":{"key":"judging_demo","version":"3"}}`), "nats")
	require.Len(t, changes, 1)

	stop()
	stop()
	_, open := <-changes
	require.True(t, open)
	_, open = <-changes
	require.False(t, open)
}
