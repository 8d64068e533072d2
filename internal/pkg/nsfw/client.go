package nsfw

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// Client is an HTTP client for the detector's REST endpoint.
type Client struct {
	config     Config
	httpClient *http.Client
}

// NewClient creates a new HTTP detector client.
func NewClient(config Config) *Client {
	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
	}
}

// Detect uploads image bytes to POST /detect.
func (c *Client) Detect(ctx context.Context, imageData []byte, filename string) (*DetectResponse, error) {
	if filename == "" {
		filename = "image.jpg"
	}
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(imageData); err != nil {
		return nil, fmt.Errorf("failed to write image data: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close writer: %w", err)
	}

	return c.doRequest(ctx, body, writer.FormDataContentType())
}

// DetectFile reads an image from disk and runs detection on it.
func (c *Client) DetectFile(ctx context.Context, path string) (*DetectResponse, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read image: %w", err)
	}
	return c.Detect(ctx, data, filepath.Base(path))
}

func (c *Client) baseURL() string {
	return strings.TrimRight(c.config.Address, "/")
}

func (c *Client) doRequest(ctx context.Context, body *bytes.Buffer, contentType string) (*DetectResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL()+"/detect", body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call detector API: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("detector API error (status %d): %s", resp.StatusCode, string(respBody))
	}

	var out DetectResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return &out, nil
}

// Ping checks if the detector API is reachable.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL()+"/health", nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("detector API not reachable at %s: %w", c.config.Address, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("detector API returned status %d", resp.StatusCode)
	}
	return nil
}
