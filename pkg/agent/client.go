package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hangarhq/hangar/pkg/ignition"
	"github.com/hangarhq/hangar/pkg/telemetry"
)

// Config configures the agent client.
type Config struct {
	// Port is the TCP port the agent listens on. Defaults to 8870.
	Port int

	// Token is the bearer token presented on every request.
	Token string

	// Timeout is the per-request timeout. Defaults to 30s.
	Timeout time.Duration
}

// Client talks to the workspace agent over its JSON command API. It
// implements ignition.AgentClient.
type Client struct {
	httpClient *http.Client
	cfg        Config
	log        *telemetry.Logger
}

// NewClient creates an agent client.
func NewClient(cfg Config, logger *telemetry.Logger) *Client {
	if cfg.Port <= 0 {
		cfg.Port = 8870
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = telemetry.Default()
	}
	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		cfg:        cfg,
		log:        logger.NewComponentLogger("agent"),
	}
}

// SendCommand posts one command to the agent on the given host and decodes
// its result. Transport failures and agent-side 5xx responses come back
// transient so the caller's poll or retry loop keeps going; auth failures
// and malformed requests are permanent.
func (c *Client) SendCommand(ctx context.Context, ip string, cmd ignition.Command) (*ignition.CommandResult, error) {
	body, err := json.Marshal(cmd)
	if err != nil {
		return nil, ignition.NewPermanentError("encoding agent command", err)
	}

	url := fmt.Sprintf("http://%s:%d/v1/command", ip, c.cfg.Port)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, ignition.NewPermanentError("building agent request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, ignition.NewTransientError(
			fmt.Sprintf("agent on %s unreachable", ip), err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		message := fmt.Sprintf("agent on %s returned %d: %s", ip, resp.StatusCode, snippet)
		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			return nil, ignition.NewThrottledError(message, nil)
		case resp.StatusCode >= 500:
			return nil, ignition.NewTransientError(message, nil)
		default:
			return nil, ignition.NewPermanentError(message, nil)
		}
	}

	var result ignition.CommandResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, ignition.NewTransientError(
			fmt.Sprintf("decoding agent response from %s", ip), err)
	}
	return &result, nil
}
