package faceblur

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Client hands candidate photos to the external anonymizer. With no URL
// configured, or when the collaborator misbehaves, the original image comes
// back unchanged so the media pipeline never stalls on the blur step.
type Client struct {
	url        string
	httpClient *http.Client
	logger     *zap.Logger
	warnOnce   sync.Once
}

func New(url string, timeout time.Duration, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &Client{
		url:        strings.TrimSpace(url),
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

func (c *Client) Blur(ctx context.Context, image []byte) ([]byte, error) {
	if c.url == "" || len(image) == 0 {
		return image, nil
	}

	blurred, err := c.post(ctx, image)
	if err != nil {
		c.warnOnce.Do(func() {
			c.logger.Warn("face blur collaborator unavailable, passing originals through", zap.Error(err))
		})
		return image, nil
	}
	return blurred, nil
}

func (c *Client) post(ctx context.Context, image []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(image))
	if err != nil {
		return nil, fmt.Errorf("create blur request: %w", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call blur service: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected blur service status: %d", resp.StatusCode)
	}

	blurred, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read blurred image: %w", err)
	}
	if len(blurred) == 0 {
		return nil, fmt.Errorf("blur service returned empty body")
	}
	return blurred, nil
}
