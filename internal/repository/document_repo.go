package repository

import (
	"context"
	"errors"
	"strconv"
	"time"
)

// AnyVersion skips the version check on write.
const AnyVersion = ""

// AbsentVersion is the version of a key that holds no document.
const AbsentVersion = "0"

var (
	// ErrDocumentNotFound is returned when a key has no stored document.
	ErrDocumentNotFound = errors.New("document not found")
	// ErrVersionMismatch is returned when the expected version is stale.
	ErrVersionMismatch = errors.New("document version mismatch")
)

// StoredDocument is one opaque JSON blob with its version counter.
type StoredDocument struct {
	Key       string
	Body      []byte
	Version   int64
	UpdatedAt time.Time
}

// VersionString renders the version as it appears in ETags.
func (d StoredDocument) VersionString() string {
	return strconv.FormatInt(d.Version, 10)
}

// DocumentRepository persists whole documents keyed by store key.
type DocumentRepository interface {
	Get(ctx context.Context, key string) (StoredDocument, error)
	// Put writes body when expected matches the stored version. AnyVersion
	// writes unconditionally; AbsentVersion requires that no document exists.
	Put(ctx context.Context, key string, body []byte, expected string) (StoredDocument, error)
	// Ping reports whether the backing store is reachable.
	Ping(ctx context.Context) error
}

func parseExpected(expected string) (int64, bool, error) {
	if expected == AnyVersion {
		return 0, false, nil
	}
	version, err := strconv.ParseInt(expected, 10, 64)
	if err != nil || version < 0 {
		return 0, false, ErrVersionMismatch
	}
	return version, true, nil
}
