package handler

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/judging-portal/internal/config"
	"github.com/noah-isme/judging-portal/internal/middleware"
	"github.com/noah-isme/judging-portal/internal/models"
	"github.com/noah-isme/judging-portal/internal/repository"
	"github.com/noah-isme/judging-portal/internal/service"
	"github.com/noah-isme/judging-portal/internal/store"
)

const testJWTSecret = "handler-secret"

type testServer struct {
	app   *fiber.App
	feed  service.ChangeFeed
	redis *miniredis.Miniredis
}

func newTestServer(t *testing.T, bodyLimit int) testServer {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	repo := repository.NewRedisDocumentRepository(client, "test")
	feed := service.NewChangeFeed(nil, "", nil, zerolog.Nop())
	documents := service.NewDocumentService(repo, feed, config.BackendRedis, zerolog.Nop())
	storeHandler := NewStoreHandler(documents, feed, bodyLimit, time.Second, zerolog.Nop())

	cfg := config.Config{AppName: "Judging Store", StoreBackend: config.BackendRedis}

	app := fiber.New()
	app.Get("/api/v1/health", HealthCheck(cfg, repo.Ping))
	storeHandler.Register(app.Group("/store"), middleware.AdminKeyGuard(testJWTSecret, store.AdminKey))
	return testServer{app: app, feed: feed, redis: mr}
}

func sampleDocument() models.Document {
	return models.Document{
		Teams: []models.Entry{{ID: "spring_a1", Name: "Team A"}},
		Ratings: []models.Rating{{
			TeamID: "spring_a1", JudgeID: "alice",
			Scores:      map[string]int{"impact": 8},
			LastUpdated: 1_700_000_000_000,
		}},
		Judges:    []string{"alice"},
		UpdatedAt: 1_700_000_000_000,
	}
}

func doJSON(t *testing.T, app *fiber.App, method, path string, body []byte, headers map[string]string) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func readBody(t *testing.T, resp *http.Response) []byte {
	t.Helper()
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return body
}

func compileSchema(t *testing.T, name string) *jsonschema.Schema {
	t.Helper()
	path, err := filepath.Abs(filepath.Join("testdata", name))
	require.NoError(t, err)
	schema, err := jsonschema.NewCompiler().Compile("file://" + path)
	require.NoError(t, err)
	return schema
}

func TestStoreGetMissingCarriesZeroETag(t *testing.T) {
	srv := newTestServer(t, 0)

	resp := doJSON(t, srv.app, http.MethodGet, "/store/judging_spring", nil, nil)
	require.Equal(t, fiber.StatusNotFound, resp.StatusCode)
	require.Equal(t, `"0"`, resp.Header.Get("ETag"))
}

func TestStorePutThenGetRoundTrip(t *testing.T) {
	srv := newTestServer(t, 0)
	payload, err := json.Marshal(sampleDocument())
	require.NoError(t, err)

	resp := doJSON(t, srv.app, http.MethodPost, "/store/judging_spring", payload, map[string]string{"If-Match": `"0"`})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.Equal(t, `"1"`, resp.Header.Get("ETag"))

	var ack WriteAck
	require.NoError(t, json.Unmarshal(readBody(t, resp), &ack))
	require.Equal(t, int64(1), ack.Version)
	require.Positive(t, ack.UpdatedAt)

	resp = doJSON(t, srv.app, http.MethodGet, "/store/judging_spring", nil, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.Equal(t, `"1"`, resp.Header.Get("ETag"))
	require.JSONEq(t, string(payload), string(readBody(t, resp)))
}

func TestStorePutStaleVersionIsPreconditionFailed(t *testing.T) {
	srv := newTestServer(t, 0)
	payload, _ := json.Marshal(sampleDocument())

	resp := doJSON(t, srv.app, http.MethodPost, "/store/judging_spring", payload, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp = doJSON(t, srv.app, http.MethodPost, "/store/judging_spring", payload, map[string]string{"If-Match": `"0"`})
	require.Equal(t, fiber.StatusPreconditionFailed, resp.StatusCode)

	resp = doJSON(t, srv.app, http.MethodPost, "/store/judging_spring", payload, map[string]string{"If-Match": `W/"1"`})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.Equal(t, `"2"`, resp.Header.Get("ETag"))

	resp = doJSON(t, srv.app, http.MethodPost, "/store/judging_spring", payload, map[string]string{"If-Match": "*"})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestStorePutRejectsOversizedBody(t *testing.T) {
	srv := newTestServer(t, 64)
	doc := sampleDocument()
	doc.Teams[0].Thumbnail = "data:image/png;base64," + strings.Repeat("A", 256)
	payload, _ := json.Marshal(doc)

	resp := doJSON(t, srv.app, http.MethodPost, "/store/judging_spring", payload, nil)
	require.Equal(t, fiber.StatusRequestEntityTooLarge, resp.StatusCode)

	resp = doJSON(t, srv.app, http.MethodGet, "/store/judging_spring", nil, nil)
	require.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func TestStoreRejectsBadKeysAndBodies(t *testing.T) {
	srv := newTestServer(t, 0)

	resp := doJSON(t, srv.app, http.MethodGet, "/store/notakey", nil, nil)
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	resp = doJSON(t, srv.app, http.MethodPost, "/store/judging_spring", []byte(`[1,2]`), nil)
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestStoreAdminKeyRequiresAdminToken(t *testing.T) {
	srv := newTestServer(t, 0)
	payload, _ := json.Marshal(sampleDocument())

	resp := doJSON(t, srv.app, http.MethodGet, "/store/judging_admin", nil, nil)
	require.Equal(t, fiber.StatusForbidden, resp.StatusCode)

	judgeToken, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "u1", "role": "judge"}).SignedString([]byte(testJWTSecret))
	require.NoError(t, err)
	resp = doJSON(t, srv.app, http.MethodPost, "/store/judging_admin", payload, map[string]string{"Authorization": "Bearer " + judgeToken})
	require.Equal(t, fiber.StatusForbidden, resp.StatusCode)

	adminToken, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "u2", "role": "admin"}).SignedString([]byte(testJWTSecret))
	require.NoError(t, err)
	resp = doJSON(t, srv.app, http.MethodPost, "/store/judging_admin", payload, map[string]string{"Authorization": "Bearer " + adminToken})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestStoreDocumentContract(t *testing.T) {
	srv := newTestServer(t, 0)
	documentSchema := compileSchema(t, "document.schema.json")
	ackSchema := compileSchema(t, "write_ack.schema.json")

	payload, _ := json.Marshal(sampleDocument())
	resp := doJSON(t, srv.app, http.MethodPost, "/store/judging_spring", payload, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var ack interface{}
	require.NoError(t, json.Unmarshal(readBody(t, resp), &ack))
	require.NoError(t, ackSchema.Validate(ack))

	resp = doJSON(t, srv.app, http.MethodGet, "/store/judging_spring", nil, nil)
	var doc interface{}
	require.NoError(t, json.Unmarshal(readBody(t, resp), &doc))
	require.NoError(t, documentSchema.Validate(doc))
}

func TestHealthCheck(t *testing.T) {
	srv := newTestServer(t, 0)

	resp := doJSON(t, srv.app, http.MethodGet, "/api/v1/health", nil, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var payload struct {
		Success bool           `json:"success"`
		Data    HealthResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(readBody(t, resp), &payload))
	require.True(t, payload.Success)
	require.Equal(t, "ok", payload.Data.Status)
	require.True(t, payload.Data.Reachable)
	require.Equal(t, config.BackendRedis, payload.Data.Backend)
	require.WithinDuration(t, time.Now().UTC(), payload.Data.Timestamp, 2*time.Second)
}

func TestHealthCheckReportsUnreachableBackend(t *testing.T) {
	srv := newTestServer(t, 0)
	srv.redis.Close()

	resp := doJSON(t, srv.app, http.MethodGet, "/api/v1/health", nil, nil)
	require.Equal(t, fiber.StatusServiceUnavailable, resp.StatusCode)

	var payload struct {
		Success bool           `json:"success"`
		Data    HealthResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(readBody(t, resp), &payload))
	require.False(t, payload.Success)
	require.Equal(t, "degraded", payload.Data.Status)
	require.False(t, payload.Data.Reachable)
	require.NotEmpty(t, payload.Data.Error)
}

func TestParseIfMatch(t *testing.T) {
	cases := map[string]string{
		"":          repository.AnyVersion,
		"*":         repository.AnyVersion,
		`"3"`:       "3",
		`W/"4"`:     "4",
		` "5", "6"`: "5",
		"7":         "7",
	}
	for header, want := range cases {
		require.Equal(t, want, parseIfMatch(header), header)
	}
}
