package liveness

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
)

const noStreamsMessage = "No playable streams found"

// Streamlink resolves streams by running the streamlink CLI in JSON mode.
type Streamlink struct {
	path   string
	logger *slog.Logger

	// run is replaced in tests.
	run func(ctx context.Context, name string, args ...string) ([]byte, error)
}

func NewStreamlink(path string, logger *slog.Logger) *Streamlink {
	if path == "" {
		path = "streamlink"
	}
	return &Streamlink{
		path:   path,
		logger: logger.With("prober", "streamlink"),
		run:    runCommand,
	}
}

type streamlinkOutput struct {
	Streams map[string]json.RawMessage `json:"streams"`
	Error   string                     `json:"error"`
}

func (s *Streamlink) Probe(ctx context.Context, username string) (bool, error) {
	url := ChannelURL(username)

	out, runErr := s.run(ctx, s.path, "--json", url)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return false, &ProbeError{Username: username, Err: ctxErr}
	}

	live, err := parseStreamlinkOutput(out)
	if err != nil {
		if runErr != nil {
			err = fmt.Errorf("%w (exit: %v)", err, runErr)
		}
		return false, &ProbeError{Username: username, Err: err}
	}

	s.logger.Debug("probe finished", "username", username, "live", live)

	return live, nil
}

// parseStreamlinkOutput interprets `streamlink --json` output. streamlink
// exits non-zero when a channel is offline, so the exit status alone is not
// an error signal.
func parseStreamlinkOutput(out []byte) (bool, error) {
	out = bytes.TrimSpace(out)
	if len(out) == 0 {
		return false, errors.New("empty streamlink output")
	}

	var parsed streamlinkOutput
	if err := json.Unmarshal(out, &parsed); err != nil {
		return false, fmt.Errorf("decode streamlink output: %w", err)
	}

	if parsed.Error != "" {
		if strings.Contains(parsed.Error, noStreamsMessage) {
			return false, nil
		}
		return false, errors.New(parsed.Error)
	}

	return len(parsed.Streams) > 0, nil
}

func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	err := cmd.Run()
	return stdout.Bytes(), err
}
