package handler

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/judging-portal/internal/realtime"
	"github.com/noah-isme/judging-portal/internal/repository"
	"github.com/noah-isme/judging-portal/internal/service"
	"github.com/noah-isme/judging-portal/internal/store"
	"github.com/noah-isme/judging-portal/internal/utils"
)

// WriteAck acknowledges a stored document.
type WriteAck struct {
	Version   int64 `json:"version"`
	UpdatedAt int64 `json:"updatedAt"`
}

// StoreHandler serves the document store and its change feeds.
type StoreHandler struct {
	documents service.DocumentService
	feed      service.ChangeFeed
	bodyLimit int
	keepAlive time.Duration
	logger    zerolog.Logger
}

// NewStoreHandler constructs a handler instance. A non-positive bodyLimit disables the size check.
func NewStoreHandler(documents service.DocumentService, feed service.ChangeFeed, bodyLimit int, keepAlive time.Duration, logger zerolog.Logger) *StoreHandler {
	if keepAlive <= 0 {
		keepAlive = 30 * time.Second
	}
	return &StoreHandler{
		documents: documents,
		feed:      feed,
		bodyLimit: bodyLimit,
		keepAlive: keepAlive,
		logger:    logger.With().Str("component", "store_handler").Logger(),
	}
}

// Register binds the store routes under the provided router group. Guards run
// before every route and may read the :key param.
func (h *StoreHandler) Register(router fiber.Router, guards ...fiber.Handler) {
	upgrade := func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			c.Locals("request_ctx", requestContext(c))
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	}

	router.Get("/:key/ws", append([]fiber.Handler{upgrade}, withGuards(guards, websocket.New(h.handleConnection))...)...)
	router.Get("/:key/events", withGuards(guards, h.stream)...)
	router.Get("/:key", withGuards(guards, h.get)...)
	router.Post("/:key", withGuards(guards, h.put)...)
}

func withGuards(guards []fiber.Handler, final fiber.Handler) []fiber.Handler {
	chain := make([]fiber.Handler, 0, len(guards)+1)
	chain = append(chain, guards...)
	return append(chain, final)
}

func (h *StoreHandler) get(c *fiber.Ctx) error {
	key := c.Params("key")

	doc, err := h.documents.Get(requestContext(c), key)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidKey):
			return utils.SendError(c, fiber.StatusBadRequest, err.Error())
		case errors.Is(err, repository.ErrDocumentNotFound):
			c.Set(fiber.HeaderETag, quoteVersion(repository.AbsentVersion))
			return utils.SendError(c, fiber.StatusNotFound, "no document for key")
		default:
			requestLogger(h.logger, c).Error().Err(err).Str("key", key).Msg("failed to read document")
			return utils.SendError(c, fiber.StatusInternalServerError, "failed to read document")
		}
	}

	c.Set(fiber.HeaderETag, quoteVersion(doc.VersionString()))
	c.Set(fiber.HeaderCacheControl, "no-store")
	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	return c.Status(fiber.StatusOK).Send(doc.Body)
}

func (h *StoreHandler) put(c *fiber.Ctx) error {
	key := c.Params("key")
	body := c.Body()
	if h.bodyLimit > 0 && len(body) > h.bodyLimit {
		return utils.SendError(c, fiber.StatusRequestEntityTooLarge, fmt.Sprintf("document exceeds %d bytes", h.bodyLimit))
	}

	payload := make([]byte, len(body))
	copy(payload, body)

	doc, err := h.documents.Put(requestContext(c), key, payload, parseIfMatch(c.Get(fiber.HeaderIfMatch)))
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidKey), errors.Is(err, service.ErrInvalidDocument):
			return utils.SendError(c, fiber.StatusBadRequest, err.Error())
		case errors.Is(err, repository.ErrVersionMismatch):
			return utils.SendError(c, fiber.StatusPreconditionFailed, "document changed since it was read")
		default:
			requestLogger(h.logger, c).Error().Err(err).Str("key", key).Msg("failed to store document")
			return utils.SendError(c, fiber.StatusInternalServerError, "failed to store document")
		}
	}

	c.Set(fiber.HeaderETag, quoteVersion(doc.VersionString()))
	return c.Status(fiber.StatusOK).JSON(WriteAck{Version: doc.Version, UpdatedAt: doc.UpdatedAt.UnixMilli()})
}

func (h *StoreHandler) stream(c *fiber.Ctx) error {
	key := c.Params("key")
	if !store.ValidKey(key) {
		return utils.SendError(c, fiber.StatusBadRequest, service.ErrInvalidKey.Error())
	}

	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	ctx, cancel := context.WithCancel(requestContext(c))
	changes, cleanup := h.feed.Subscribe(key)

	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		defer func() {
			cleanup()
			cancel()
		}()

		// Flush headers right away so clients see the stream open.
		if err := writeKeepAlive(w); err != nil {
			return
		}

		ticker := time.NewTicker(h.keepAlive / 2)
		defer ticker.Stop()

		for {
			select {
			case change, ok := <-changes:
				if !ok {
					return
				}
				if err := writeChangeEvent(w, change); err != nil {
					h.logger.Debug().Err(err).Msg("failed to write change event")
					return
				}
			case <-ticker.C:
				if err := writeKeepAlive(w); err != nil {
					h.logger.Debug().Err(err).Msg("failed to write change keepalive")
					return
				}
			case <-ctx.Done():
				return
			}
		}
	})

	return nil
}

func (h *StoreHandler) handleConnection(conn *websocket.Conn) {
	key := conn.Params("key")
	if !store.ValidKey(key) {
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "invalid key"))
		_ = conn.Close()
		return
	}

	changes, cleanup := h.feed.Subscribe(key)
	defer cleanup()

	// Reads only detect the peer going away.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	h.logger.Debug().Str("key", key).Msg("change websocket connected")
	defer h.logger.Debug().Str("key", key).Msg("change websocket disconnected")

	ping := time.NewTicker(h.keepAlive)
	defer ping.Stop()

	for {
		select {
		case change, ok := <-changes:
			if !ok {
				return
			}
			payload, err := json.Marshal(change)
			if err != nil {
				continue
			}
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				return
			}
		case <-closed:
			return
		}
	}
}

func writeChangeEvent(w *bufio.Writer, change realtime.Change) error {
	payload, err := json.Marshal(change)
	if err != nil {
		return err
	}

	if _, err := fmt.Fprintf(w, "event: change\n"); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
		return err
	}
	return w.Flush()
}

func writeKeepAlive(w *bufio.Writer) error {
	if _, err := fmt.Fprintf(w, ": keep-alive %s\n\n", time.Now().UTC().Format(time.RFC3339)); err != nil {
		return err
	}
	return w.Flush()
}

func quoteVersion(version string) string {
	return `"` + version + `"`
}

// parseIfMatch returns the expected version, or repository.AnyVersion when
// the header is absent or a wildcard.
func parseIfMatch(header string) string {
	value := strings.TrimSpace(header)
	if value == "" || value == "*" {
		return repository.AnyVersion
	}
	if idx := strings.IndexByte(value, ','); idx >= 0 {
		value = strings.TrimSpace(value[:idx])
	}
	value = strings.TrimPrefix(value, "W/")
	return strings.Trim(value, `"`)
}
