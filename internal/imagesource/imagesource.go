// Package imagesource fetches the original bytes of a photo from wherever its stored
// location points: the local upload directory, an HTTP(S) URL or S3-compatible storage.
package imagesource

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound means the location does not point at an existing image.
var ErrNotFound = errors.New("image not found")

// FetchError is a failure to read an image that does exist or may exist.
type FetchError struct {
	Location string
	Status   int // HTTP status when the failure came from a response, 0 otherwise
	Err      error
}

func (e *FetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("fetch %s: status %d: %v", e.Location, e.Status, e.Err)
	}
	return fmt.Sprintf("fetch %s: %v", e.Location, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Resolver returns the raw bytes stored at location.
type Resolver interface {
	Fetch(ctx context.Context, location string) ([]byte, error)
}

// Router dispatches a location to the resolver for its scheme.
type Router struct {
	Local *LocalResolver
	HTTP  *HTTPResolver
	S3    *S3Resolver // nil disables s3:// locations

	// BaseURL is this deployment's public upload prefix. Locations starting with it are
	// served from the local upload directory instead of over the network.
	BaseURL string
}

// Fetch implements Resolver.
func (r *Router) Fetch(ctx context.Context, location string) ([]byte, error) {
	location = strings.TrimSpace(location)
	if location == "" {
		return nil, ErrNotFound
	}

	if base := strings.TrimSuffix(r.BaseURL, "/"); base != "" && strings.HasPrefix(location, base+"/") {
		location = strings.TrimPrefix(location, base)
	}

	lower := strings.ToLower(location)
	switch {
	case strings.HasPrefix(lower, "http://"), strings.HasPrefix(lower, "https://"):
		if r.HTTP == nil {
			return nil, &FetchError{Location: location, Err: errors.New("remote fetching is disabled")}
		}
		return r.HTTP.Fetch(ctx, location)
	case strings.HasPrefix(lower, "s3://"):
		if r.S3 == nil {
			return nil, &FetchError{Location: location, Err: errors.New("object storage is not configured")}
		}
		return r.S3.Fetch(ctx, location)
	default:
		if r.Local == nil {
			return nil, &FetchError{Location: location, Err: errors.New("local uploads are not configured")}
		}
		return r.Local.Fetch(ctx, location)
	}
}
