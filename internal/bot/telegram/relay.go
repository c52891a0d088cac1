package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"notify_relay/internal/domain"
)

// RelayError is a non-200 answer from the relay endpoint.
type RelayError struct {
	StatusCode int
	Body       string
}

func (e *RelayError) Error() string {
	return fmt.Sprintf("relay returned %d: %s", e.StatusCode, e.Body)
}

// RelayClient posts announcements to the relay's loopback endpoint.
type RelayClient struct {
	url        string
	httpClient *http.Client
}

func NewRelayClient(url string, timeout time.Duration) *RelayClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &RelayClient{
		url:        url,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (c *RelayClient) Send(ctx context.Context, p domain.PendingAnnouncement) error {
	body, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal announcement: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("post relay: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		text, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return &RelayError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(text))}
	}
	return nil
}
