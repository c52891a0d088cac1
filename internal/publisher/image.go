package publisher

import (
	"context"
	"net/http"
	"strings"
	"time"
)

const (
	imageCheckTimeout  = 5 * time.Second
	imageCheckAttempts = 3
	imageCheckBackoff  = 2 * time.Second
)

// ImageChecker probes remote preview images before they are embedded.
type ImageChecker struct {
	client   *http.Client
	attempts int
	backoff  time.Duration
	sleep    func(ctx context.Context, d time.Duration) error
}

func NewImageChecker() *ImageChecker {
	return &ImageChecker{
		client:   &http.Client{Timeout: imageCheckTimeout},
		attempts: imageCheckAttempts,
		backoff:  imageCheckBackoff,
		sleep:    sleepContext,
	}
}

// Available reports whether url answers a HEAD request with a 2xx status and,
// when the server sends one, an image content type. Transport errors and
// non-2xx answers are retried with a fixed delay until attempts run out.
func (c *ImageChecker) Available(ctx context.Context, url string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return false
	}

	for attempt := 1; attempt <= c.attempts; attempt++ {
		ok, contentType := c.head(req)
		if ok {
			return contentType == "" || strings.HasPrefix(contentType, "image/")
		}

		if attempt < c.attempts {
			if err := c.sleep(ctx, c.backoff); err != nil {
				return false
			}
		}
	}
	return false
}

func (c *ImageChecker) head(req *http.Request) (bool, string) {
	resp, err := c.client.Do(req)
	if err != nil {
		return false, ""
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return false, ""
	}
	return true, resp.Header.Get("Content-Type")
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
