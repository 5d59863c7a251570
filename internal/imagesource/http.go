package imagesource

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/mamage/photo-similarity/internal/constants"
)

// HTTPResolver downloads remote images, retrying transient failures.
// Redirects are followed by the underlying http.Client.
type HTTPResolver struct {
	client *retryablehttp.Client
}

// NewHTTPResolver returns a resolver with the given per-attempt timeout and retry budget.
func NewHTTPResolver(timeout time.Duration, retryMax int) *HTTPResolver {
	client := retryablehttp.NewClient()
	client.RetryMax = retryMax
	client.RetryWaitMin = 200 * time.Millisecond
	client.RetryWaitMax = 2 * time.Second
	client.HTTPClient.Timeout = timeout
	client.ErrorHandler = retryablehttp.PassthroughErrorHandler
	client.Logger = nil
	return &HTTPResolver{client: client}
}

// Fetch implements Resolver.
func (h *HTTPResolver) Fetch(ctx context.Context, location string) ([]byte, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, location, nil)
	if err != nil {
		return nil, &FetchError{Location: location, Err: err}
	}
	req.Header.Set("Accept", "image/*")

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, &FetchError{Location: location, Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return nil, fmt.Errorf("%w: %s", ErrNotFound, location)
	case resp.StatusCode != http.StatusOK:
		return nil, &FetchError{Location: location, Status: resp.StatusCode, Err: fmt.Errorf("unexpected status %s", resp.Status)}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, constants.MaxImageBytes))
	if err != nil {
		return nil, &FetchError{Location: location, Status: resp.StatusCode, Err: err}
	}
	return data, nil
}
