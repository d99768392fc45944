package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// Health is the decoded liveness payload. Fields beyond status are kept raw.
type Health struct {
	StatusCode int
	Status     string
	Services   map[string]any
}

// Health probes the liveness endpoint with a short timeout.
func (c *Client) Health(ctx context.Context) (Health, error) {
	endpoint := c.endpoint(c.cfg.HealthPath, false)

	reqCtx, cancel := context.WithTimeout(ctx, c.cfg.HealthTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Health{}, fmt.Errorf("build health request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return Health{}, c.transportError(ctx, reqCtx, endpoint, err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 16<<10))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Health{StatusCode: resp.StatusCode}, &StatusError{
			Endpoint:   c.cfg.HealthPath,
			StatusCode: resp.StatusCode,
			Detail:     statusDetail(body),
		}
	}

	health := Health{StatusCode: resp.StatusCode, Status: "ok"}
	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err == nil {
		if status, ok := payload["status"].(string); ok && strings.TrimSpace(status) != "" {
			health.Status = strings.TrimSpace(status)
		}
		delete(payload, "status")
		if len(payload) > 0 {
			health.Services = payload
		}
	}
	return health, nil
}

// LogHealth probes the backend and logs the outcome. Failures never propagate.
func (c *Client) LogHealth(ctx context.Context) {
	health, err := c.Health(ctx)
	if c.logger == nil {
		return
	}
	if err != nil {
		c.logger.Warn("backend health check failed", "endpoint", c.cfg.HealthPath, "error", err.Error())
		return
	}
	c.logger.Info("backend health", "endpoint", c.cfg.HealthPath, "status", health.Status, "http_status", health.StatusCode)
}
