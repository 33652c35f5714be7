// Package blob stores attachment bytes outside the message store. Messages
// only keep the URL, name, size and MIME type returned from here.
package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
)

// Store persists an attachment under key and returns the URL clients use to fetch it.
type Store interface {
	Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) (string, error)
	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}

// HealthChecker is implemented by stores backed by a remote service.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// Health checks s when it is backed by a remote service.
func Health(ctx context.Context, s Store) error {
	if hc, ok := s.(HealthChecker); ok {
		if err := hc.Health(ctx); err != nil {
			return fmt.Errorf("blob store: %w", err)
		}
	}
	return nil
}

var errInvalidKey = errors.New("invalid blob key")

// cleanKey normalizes a slash separated key and rejects anything that would
// escape the storage root.
func cleanKey(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" || strings.Contains(key, `\`) {
		return "", errInvalidKey
	}
	cleaned := path.Clean("/" + key)
	cleaned = strings.TrimPrefix(cleaned, "/")
	if cleaned == "" || cleaned == "." || cleaned != strings.TrimPrefix(key, "/") {
		return "", errInvalidKey
	}
	return cleaned, nil
}
