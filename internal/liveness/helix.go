package liveness

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const (
	helixStreamsURL = "https://api.twitch.tv/helix/streams"
	twitchTokenURL  = "https://id.twitch.tv/oauth2/token"
)

type HelixConfig struct {
	ClientID     string
	ClientSecret string
	Timeout      time.Duration
	// BaseURL and TokenURL override the Twitch endpoints; empty uses the defaults.
	BaseURL  string
	TokenURL string
}

// Helix checks liveness through the Twitch Helix streams endpoint using an
// app access token.
type Helix struct {
	httpClient *http.Client
	clientID   string
	baseURL    string
	logger     *slog.Logger
}

func NewHelix(cfg HelixConfig, logger *slog.Logger) *Helix {
	tokenURL := cfg.TokenURL
	if tokenURL == "" {
		tokenURL = twitchTokenURL
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = helixStreamsURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	cc := &clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     tokenURL,
		AuthStyle:    oauth2.AuthStyleInParams,
	}

	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, &http.Client{Timeout: timeout})
	httpClient := cc.Client(ctx)
	httpClient.Timeout = timeout

	return &Helix{
		httpClient: httpClient,
		clientID:   cfg.ClientID,
		baseURL:    baseURL,
		logger:     logger.With("prober", "helix"),
	}
}

type helixStreamsResponse struct {
	Data []struct {
		ID        string `json:"id"`
		UserLogin string `json:"user_login"`
		Type      string `json:"type"`
		Title     string `json:"title"`
	} `json:"data"`
}

func (h *Helix) Probe(ctx context.Context, username string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.baseURL, nil)
	if err != nil {
		return false, &ProbeError{Username: username, Err: err}
	}
	q := req.URL.Query()
	q.Set("user_login", username)
	req.URL.RawQuery = q.Encode()
	req.Header.Set("Client-Id", h.clientID)

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return false, &ProbeError{Username: username, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, &ProbeError{Username: username, Err: fmt.Errorf("unexpected status: %d", resp.StatusCode)}
	}

	var body helixStreamsResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return false, &ProbeError{Username: username, Err: fmt.Errorf("decode response: %w", err)}
	}

	for _, s := range body.Data {
		if s.Type == "live" {
			h.logger.Debug("stream is live", "username", username, "title", s.Title)
			return true, nil
		}
	}
	return false, nil
}
