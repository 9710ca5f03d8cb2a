package web

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/pokerlens/pokeragent-worker/internal/models"
)

// CallbackClient posts segment results to the configured orchestrator URL.
// A non-2xx response is an error; the segment processor treats it as a
// hard failure.
type CallbackClient struct {
	url    string
	client *http.Client
}

func NewCallbackClient(url string) *CallbackClient {
	return &CallbackClient{
		url:    url,
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *CallbackClient) PostSegmentResult(ctx context.Context, cb models.SegmentCallback) error {
	body, err := json.Marshal(cb)
	if err != nil {
		return fmt.Errorf("failed to marshal callback: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build callback request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("callback request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("callback returned %d: %s", resp.StatusCode, snippet)
	}
	return nil
}
