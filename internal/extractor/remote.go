package extractor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/mamage/photo-similarity/internal/config"
	"github.com/mamage/photo-similarity/internal/constants"
	"github.com/mamage/photo-similarity/internal/vector"
)

const defaultEmbeddingURL = "http://localhost:8000"

// RemoteExtractor computes image embeddings using the embedding server
type RemoteExtractor struct {
	baseURL string
	model   string
	client  *retryablehttp.Client
}

// NewRemoteExtractor creates a client for the embedding server at baseURL
func NewRemoteExtractor(baseURL, model string, retryMax int) *RemoteExtractor {
	if baseURL == "" {
		baseURL = defaultEmbeddingURL
	}
	client := retryablehttp.NewClient()
	client.RetryMax = retryMax
	client.Logger = nil
	return &RemoteExtractor{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		model:   model,
		client:  client,
	}
}

func (c *RemoteExtractor) Model() string   { return c.model }
func (c *RemoteExtractor) Backend() string { return config.BackendRemote }

// embeddingResponse represents the response from the embedding server
type embeddingResponse struct {
	Dim       int       `json:"dim"`
	Embedding []float32 `json:"embedding"`
	Model     string    `json:"model"`
}

// postImage posts the image as a multipart form with a sniffed Content-Type.
func (c *RemoteExtractor) postImage(ctx context.Context, endpoint string, imageData []byte) ([]byte, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="image"`)
	h.Set("Content-Type", detectMIMEType(imageData))
	part, err := writer.CreatePart(h)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(imageData); err != nil {
		return nil, fmt.Errorf("failed to write image data: %w", err)
	}
	if c.model != "" {
		if err := writer.WriteField("model", c.model); err != nil {
			return nil, fmt.Errorf("failed to write model field: %w", err)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, buf.Bytes())
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body))
	}
	return body, nil
}

// Extract computes the embedding for an image using the embedding server
func (c *RemoteExtractor) Extract(ctx context.Context, imageData []byte) ([]float32, error) {
	if len(imageData) == 0 {
		return nil, &InferenceError{Model: c.model, Err: errors.New("empty image data")}
	}

	body, err := c.postImage(ctx, "/embed/image", downscale(imageData, constants.MaxUploadSide))
	if err != nil {
		return nil, &InferenceError{Model: c.model, Err: err}
	}

	var embResp embeddingResponse
	if err := json.Unmarshal(body, &embResp); err != nil {
		return nil, &InferenceError{Model: c.model, Err: fmt.Errorf("failed to parse response: %w", err)}
	}
	if len(embResp.Embedding) == 0 {
		return nil, &InferenceError{Model: c.model, Err: errors.New("empty embedding returned")}
	}

	return vector.L2Normalize(embResp.Embedding), nil
}

// detectMIMEType detects the MIME type from image data
func detectMIMEType(data []byte) string {
	if len(data) < 8 {
		return "application/octet-stream"
	}
	switch {
	case data[0] == 0xFF && data[1] == 0xD8 && data[2] == 0xFF:
		return "image/jpeg"
	case bytes.HasPrefix(data, []byte("\x89PNG")):
		return "image/png"
	case bytes.HasPrefix(data, []byte("GIF8")):
		return "image/gif"
	case bytes.HasPrefix(data, []byte("BM")):
		return "image/bmp"
	case len(data) >= 12 && bytes.HasPrefix(data, []byte("RIFF")) && string(data[8:12]) == "WEBP":
		return "image/webp"
	}
	return "application/octet-stream"
}
