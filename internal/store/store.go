package store

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// TokenKey is the fixed storage identifier of the bearer credential.
const TokenKey = "token"

var ErrUnsupportedStore = errors.New("unsupported credential store")

// CredentialStore persists the single opaque bearer credential across restarts.
// FileStore, SQLiteStore, RedisStore, PostgresStore and MemoryStore implement it.
type CredentialStore interface {
	// Connection management
	Close() error
	Ping(ctx context.Context) error

	// Get returns the stored token, or "" when none is stored.
	Get(ctx context.Context) (string, error)
	Set(ctx context.Context, token string) error
	Delete(ctx context.Context) error
}

// Open returns the credential store described by rawURL.
// Supported schemes: file://, sqlite://, redis://, rediss://, postgres://, postgresql://, memory://.
// An optional "key" query parameter overrides TokenKey for shared backends.
func Open(ctx context.Context, rawURL, secret string) (CredentialStore, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid credential store url: %w", err)
	}

	key := TokenKey
	q := u.Query()
	if k := q.Get("key"); k != "" {
		key = k
	}
	q.Del("key")
	u.RawQuery = q.Encode()

	switch strings.ToLower(u.Scheme) {
	case "file":
		return NewFileStore(localPath(u), secret), nil
	case "sqlite", "sqlite3":
		return NewSQLiteStore(ctx, localPath(u), key)
	case "redis", "rediss":
		return NewRedisStore(ctx, u.String(), key)
	case "postgres", "postgresql":
		return NewPostgresStore(ctx, u.String(), key)
	case "memory":
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedStore, u.Scheme)
	}
}

// localPath turns file:///abs/path and sqlite://rel/path into a filesystem path.
func localPath(u *url.URL) string {
	if u.Opaque != "" {
		return u.Opaque
	}
	return u.Host + u.Path
}
