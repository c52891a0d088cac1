// Package liveness reports whether a Twitch channel is currently streaming.
package liveness

import (
	"context"
	"fmt"
)

// Prober performs one blocking liveness check.
type Prober interface {
	Probe(ctx context.Context, username string) (bool, error)
}

// ProbeError wraps any failure of a liveness check.
type ProbeError struct {
	Username string
	Err      error
}

func (e *ProbeError) Error() string {
	return fmt.Sprintf("probe %s: %v", e.Username, e.Err)
}

func (e *ProbeError) Unwrap() error {
	return e.Err
}

func ChannelURL(username string) string {
	return "https://twitch.tv/" + username
}
