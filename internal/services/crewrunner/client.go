package crewrunner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"crew-orchestrator/internal/config"
	"crew-orchestrator/internal/models"
)

// Runner is the boundary to the external crew execution platform. All three
// operations are single network calls with no internal retry; retrying is
// the caller's decision.
type Runner interface {
	Start(ctx context.Context, inputs map[string]string) (string, error)
	Resume(ctx context.Context, crewJobID, taskID, feedback string, approve bool) error
	Cancel(ctx context.Context, crewJobID string) (bool, error)
}

// StreamEvents is the full set of event types the runner can deliver. The
// whole list is subscribed on every kickoff and resume.
var StreamEvents = []string{
	"crew_kickoff_started",
	"crew_kickoff_completed",
	"crew_kickoff_failed",

	"task_started",
	"task_completed",
	"task_failed",

	"agent_execution_started",
	"agent_execution_completed",
	"agent_execution_error",

	"llm_call_started",
	"llm_call_completed",
	"llm_call_failed",
	"llm_stream_chunk",

	"tool_usage_started",
	"tool_usage_finished",
	"tool_usage_error",

	"memory_query_started",
	"memory_query_completed",
	"memory_save_started",
	"memory_save_completed",

	"knowledge_query_started",
	"knowledge_query_completed",
}

type Client struct {
	cfg     *config.Config
	log     *logrus.Logger
	client  *http.Client
	limiter *rate.Limiter
}

func NewClient(cfg *config.Config, log *logrus.Logger) *Client {
	timeout := cfg.Runner.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	var limiter *rate.Limiter
	if cfg.Runner.MaxRequestPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Limit(float64(cfg.Runner.MaxRequestPerMinute)/60.0), cfg.Runner.MaxRequestPerMinute)
	}

	return &Client{
		cfg:     cfg,
		log:     log,
		client:  &http.Client{Timeout: timeout},
		limiter: limiter,
	}
}

// webhookConfig is the event-stream callback descriptor. The runner does
// not persist it between calls, so it is re-attached on every kickoff AND
// every resume; omitting it on resume silently stops all notifications.
func (c *Client) webhookConfig() map[string]interface{} {
	return map[string]interface{}{
		"events":   StreamEvents,
		"url":      c.cfg.Server.BaseURL + "/api/v1/webhook/stream",
		"realtime": false,
		"authentication": map[string]string{
			"strategy": "bearer",
			"token":    c.cfg.Webhook.SecretToken,
		},
	}
}

func (c *Client) hitlWebhookConfig() map[string]interface{} {
	return map[string]interface{}{
		"url": c.cfg.Server.BaseURL + "/api/v1/webhook/hitl",
		"authentication": map[string]string{
			"strategy": "bearer",
			"token":    c.cfg.Webhook.SecretToken,
		},
	}
}

func (c *Client) Start(ctx context.Context, inputs map[string]string) (string, error) {
	payload := map[string]interface{}{
		"inputs":            inputs,
		"humanInputWebhook": c.hitlWebhookConfig(),
		"webhooks":          c.webhookConfig(),
	}

	body, err := c.post(ctx, c.cfg.Runner.BaseURL+"/kickoff", payload)
	if err != nil {
		return "", err
	}

	var result struct {
		KickoffID string `json:"kickoff_id"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("decoding kickoff response: %v: %w", err, models.ErrUpstream)
	}
	if result.KickoffID == "" {
		return "", fmt.Errorf("kickoff response missing kickoff_id: %w", models.ErrUpstream)
	}

	c.log.WithField("crew_job_id", result.KickoffID).Info("Crew kickoff accepted")
	return result.KickoffID, nil
}

func (c *Client) Resume(ctx context.Context, crewJobID, taskID, feedback string, approve bool) error {
	payload := map[string]interface{}{
		"execution_id":   crewJobID,
		"task_id":        taskID,
		"human_feedback": feedback,
		"is_approve":     approve,

		// Callback descriptors must ride along again; see webhookConfig.
		"humanInputWebhook": c.hitlWebhookConfig(),
		"webhooks":          c.webhookConfig(),
	}

	if _, err := c.post(ctx, c.cfg.Runner.BaseURL+"/resume", payload); err != nil {
		return err
	}

	c.log.WithFields(logrus.Fields{
		"crew_job_id": crewJobID,
		"task_id":     taskID,
		"approve":     approve,
	}).Info("Crew resume accepted")
	return nil
}

// Cancel reports false without error when the platform says the job is
// unknown (404) or cancellation is unsupported (405); only a confirmed
// cancellation returns true.
func (c *Client) Cancel(ctx context.Context, crewJobID string) (bool, error) {
	if err := c.wait(ctx); err != nil {
		return false, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Runner.BaseURL+"/cancel/"+crewJobID, nil)
	if err != nil {
		return false, fmt.Errorf("building cancel request: %v: %w", err, models.ErrUpstream)
	}
	c.setHeaders(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("cancel request: %v: %w", err, models.ErrUpstream)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return true, nil
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusMethodNotAllowed:
		c.log.WithFields(logrus.Fields{
			"crew_job_id": crewJobID,
			"status":      resp.StatusCode,
		}).Warn("Crew cancel not available for this job")
		return false, nil
	default:
		return false, fmt.Errorf("cancel returned status %d: %w", resp.StatusCode, models.ErrUpstream)
	}
}

func (c *Client) post(ctx context.Context, url string, payload interface{}) ([]byte, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encoding request: %v: %w", err, models.ErrUpstream)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("building request: %v: %w", err, models.ErrUpstream)
	}
	c.setHeaders(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("crew runner request: %v: %w", err, models.ErrUpstream)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %v: %w", err, models.ErrUpstream)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.log.WithFields(logrus.Fields{
			"url":    url,
			"status": resp.StatusCode,
		}).Error("Crew runner returned non-success status")
		return nil, fmt.Errorf("crew runner returned status %d: %w", resp.StatusCode, models.ErrUpstream)
	}
	return body, nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.cfg.Runner.BearerToken)
	req.Header.Set("Content-Type", "application/json")
}

func (c *Client) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %v: %w", err, models.ErrUpstream)
	}
	return nil
}
