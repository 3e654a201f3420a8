// Package store talks to the remote key-value blob store holding one
// document per event.
package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/judging-portal/internal/models"
)

var (
	// ErrTransport covers network failures and unexpected statuses.
	ErrTransport = errors.New("store transport failure")
	// ErrPermissionDenied is returned on 403; retrying cannot succeed.
	ErrPermissionDenied = errors.New("store permission denied")
	// ErrPayloadTooLarge is returned on 413.
	ErrPayloadTooLarge = errors.New("store payload too large")
	// ErrVersionConflict is returned on 412 when the base version is stale.
	ErrVersionConflict = errors.New("store version conflict")
	// ErrInvalidKey indicates an empty or malformed storage key.
	ErrInvalidKey = errors.New("invalid store key")
)

// DefaultTimeout bounds a single store request.
const DefaultTimeout = 10 * time.Second

// MissingVersion is the version token of a document that does not exist.
const MissingVersion = "0"

// FetchResult is the raw outcome of a GET.
type FetchResult struct {
	Found   bool
	Body    []byte
	Version string
}

// PushResult is the store's acknowledgement of a write.
type PushResult struct {
	Version   string `json:"version"`
	UpdatedAt int64  `json:"updatedAt"`
}

// Client is an HTTP client for the remote store.
type Client struct {
	http    *http.Client
	baseURL string
	token   string
	logger  zerolog.Logger
}

// NewClient builds a client for baseURL. A non-positive timeout uses
// DefaultTimeout.
func NewClient(baseURL string, timeout time.Duration, logger zerolog.Logger) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		http:    &http.Client{Timeout: timeout},
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  logger.With().Str("component", "store_client").Logger(),
	}
}

// Fetch reads the document for key. A 404 is not an error: Found is false
// and Version is MissingVersion.
func (c *Client) Fetch(ctx context.Context, key string) (FetchResult, error) {
	endpoint, err := c.endpoint(key)
	if err != nil {
		return FetchResult{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return FetchResult{}, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	req.Header.Set("Accept", "application/json")
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return FetchResult{}, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		_, _ = io.Copy(io.Discard, resp.Body)
		return FetchResult{Found: false, Version: MissingVersion}, nil
	}
	if err := statusError(resp.StatusCode); err != nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return FetchResult{}, err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return FetchResult{}, fmt.Errorf("%w: read body: %v", ErrTransport, err)
	}

	return FetchResult{
		Found:   true,
		Body:    body,
		Version: parseETag(resp.Header.Get("ETag")),
	}, nil
}

// Push overwrites the document for key. A non-empty ifMatch makes the write
// conditional on the store still holding that version.
func (c *Client) Push(ctx context.Context, key string, doc models.Document, ifMatch string) (PushResult, error) {
	endpoint, err := c.endpoint(key)
	if err != nil {
		return PushResult{}, err
	}

	payload, err := json.Marshal(doc)
	if err != nil {
		return PushResult{}, fmt.Errorf("encode document: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return PushResult{}, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)
	if ifMatch != "" {
		req.Header.Set("If-Match", `"`+ifMatch+`"`)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return PushResult{}, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer resp.Body.Close()

	if err := statusError(resp.StatusCode); err != nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		c.logger.Debug().Str("key", key).Int("status", resp.StatusCode).Int("bytes", len(payload)).Msg("push rejected")
		return PushResult{}, err
	}

	result := PushResult{Version: parseETag(resp.Header.Get("ETag"))}
	body, _ := io.ReadAll(resp.Body)
	if len(body) > 0 {
		var ack struct {
			Version   json.Number `json:"version"`
			UpdatedAt int64       `json:"updatedAt"`
		}
		if err := json.Unmarshal(body, &ack); err == nil {
			if result.Version == "" {
				result.Version = ack.Version.String()
			}
			result.UpdatedAt = ack.UpdatedAt
		}
	}
	return result, nil
}

// WithToken sends token as a bearer credential on every request.
func (c *Client) WithToken(token string) *Client {
	c.token = strings.TrimSpace(token)
	return c
}

func (c *Client) authorize(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

func (c *Client) endpoint(key string) (string, error) {
	if !ValidKey(key) {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return c.baseURL + "/" + url.PathEscape(key), nil
}

func statusError(status int) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusForbidden:
		return ErrPermissionDenied
	case status == http.StatusRequestEntityTooLarge:
		return ErrPayloadTooLarge
	case status == http.StatusPreconditionFailed:
		return ErrVersionConflict
	default:
		return fmt.Errorf("%w: unexpected status %d", ErrTransport, status)
	}
}

func parseETag(value string) string {
	value = strings.TrimSpace(value)
	value = strings.TrimPrefix(value, "W/")
	return strings.Trim(value, `"`)
}
