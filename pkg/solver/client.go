// Package solver talks to the external captcha solving service. It
// submits recognition tasks, polls for solutions and checks the
// account balance before any paid work is started.
package solver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	errs "redscrape/pkg/errors"
	"redscrape/pkg/logger"
)

// TaskType names the solver-side task variants.
type TaskType string

const (
	TaskRecaptchaV2 TaskType = "ReCaptchaV2TaskProxyLess"
	TaskRecaptchaV3 TaskType = "ReCaptchaV3TaskProxyLess"
	TaskHCaptcha    TaskType = "HCaptchaTaskProxyLess"
)

// Task describes one challenge to solve.
type Task struct {
	Type       TaskType `json:"type"`
	WebsiteURL string   `json:"websiteURL"`
	WebsiteKey string   `json:"websiteKey"`
	PageAction string   `json:"pageAction,omitempty"`
	MinScore   float64  `json:"minScore,omitempty"`
}

// Config holds solver service settings.
type Config struct {
	APIKey       string
	BaseURL      string
	MaxWait      time.Duration
	PollInterval time.Duration
	// MinBalance is the quota floor below which solves are refused.
	MinBalance float64
}

// DefaultConfig returns the production service endpoint with
// conservative polling.
func DefaultConfig(apiKey string) Config {
	return Config{
		APIKey:       apiKey,
		BaseURL:      "https://api.capsolver.com",
		MaxWait:      120 * time.Second,
		PollInterval: 3 * time.Second,
		MinBalance:   0.01,
	}
}

// Client talks to the external captcha solving service. All calls are
// synchronous from the caller's view; polling happens inside Solve.
type Client struct {
	cfg        Config
	httpClient *http.Client
	log        logger.Logger
}

// NewClient creates a solver client.
func NewClient(cfg Config, log logger.Logger) *Client {
	if log == nil {
		log = logger.GetLogger()
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.capsolver.com"
	}
	if cfg.MaxWait <= 0 {
		cfg.MaxWait = 120 * time.Second
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 3 * time.Second
	}
	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		log: log,
	}
}

type createTaskRequest struct {
	ClientKey string `json:"clientKey"`
	Task      Task   `json:"task"`
}

type createTaskResponse struct {
	ErrorID          int    `json:"errorId"`
	ErrorCode        string `json:"errorCode"`
	ErrorDescription string `json:"errorDescription"`
	TaskID           string `json:"taskId"`
}

type taskResultRequest struct {
	ClientKey string `json:"clientKey"`
	TaskID    string `json:"taskId"`
}

type solution struct {
	GRecaptchaResponse string `json:"gRecaptchaResponse"`
	Token              string `json:"token"`
	Text               string `json:"text"`
}

type taskResultResponse struct {
	ErrorID          int      `json:"errorId"`
	ErrorCode        string   `json:"errorCode"`
	ErrorDescription string   `json:"errorDescription"`
	Status           string   `json:"status"`
	Solution         solution `json:"solution"`
}

type balanceRequest struct {
	ClientKey string `json:"clientKey"`
}

type balanceResponse struct {
	ErrorID          int     `json:"errorId"`
	ErrorCode        string  `json:"errorCode"`
	ErrorDescription string  `json:"errorDescription"`
	Balance          float64 `json:"balance"`
}

// Balance returns the account's remaining quota in account currency.
func (c *Client) Balance(ctx context.Context) (float64, error) {
	var out balanceResponse
	if err := c.post(ctx, "/getBalance", balanceRequest{ClientKey: c.cfg.APIKey}, &out); err != nil {
		return 0, err
	}
	if out.ErrorID != 0 {
		return 0, serviceError(out.ErrorCode, out.ErrorDescription)
	}
	return out.Balance, nil
}

// CheckQuota verifies the account can afford at least one solve. A
// depleted account fails fast with a solver_quota error so callers can
// rotate proxies instead of burning latency on doomed solves.
func (c *Client) CheckQuota(ctx context.Context) error {
	balance, err := c.Balance(ctx)
	if err != nil {
		return err
	}
	if balance < c.cfg.MinBalance {
		return errs.Newf(errs.ErrorTypeSolverQuota, 0, "solver balance %.4f below minimum %.4f", balance, c.cfg.MinBalance)
	}
	return nil
}

// Solve submits a task and polls until a solution is ready, the
// service's own deadline passes, or ctx is cancelled. The returned
// token is single use.
func (c *Client) Solve(ctx context.Context, task Task) (string, error) {
	taskID, err := c.createTask(ctx, task)
	if err != nil {
		return "", err
	}

	c.log.WithFields(map[string]interface{}{
		"task_id": taskID,
		"type":    string(task.Type),
	}).Debug("Solver task created")

	deadline := time.Now().Add(c.cfg.MaxWait)
	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-ticker.C:
		}

		token, ready, err := c.taskResult(ctx, taskID)
		if err != nil {
			return "", err
		}
		if ready {
			c.log.WithField("task_id", taskID).Info("Challenge solved")
			return token, nil
		}
	}

	return "", errs.Newf(errs.ErrorTypeSolver, 0, "solver timed out after %s for task %s", c.cfg.MaxWait, taskID)
}

func (c *Client) createTask(ctx context.Context, task Task) (string, error) {
	var out createTaskResponse
	if err := c.post(ctx, "/createTask", createTaskRequest{ClientKey: c.cfg.APIKey, Task: task}, &out); err != nil {
		return "", err
	}
	if out.ErrorID != 0 {
		return "", serviceError(out.ErrorCode, out.ErrorDescription)
	}
	if out.TaskID == "" {
		return "", errs.New(errs.ErrorTypeSolver, "solver returned no task id", 0)
	}
	return out.TaskID, nil
}

func (c *Client) taskResult(ctx context.Context, taskID string) (string, bool, error) {
	var out taskResultResponse
	if err := c.post(ctx, "/getTaskResult", taskResultRequest{ClientKey: c.cfg.APIKey, TaskID: taskID}, &out); err != nil {
		return "", false, err
	}
	if out.ErrorID != 0 {
		return "", false, serviceError(out.ErrorCode, out.ErrorDescription)
	}

	switch out.Status {
	case "ready":
		token := out.Solution.GRecaptchaResponse
		if token == "" {
			token = out.Solution.Token
		}
		if token == "" {
			token = out.Solution.Text
		}
		if token == "" {
			return "", false, errs.New(errs.ErrorTypeSolver, "solver reported ready without a token", 0)
		}
		return token, true, nil
	case "processing":
		return "", false, nil
	default:
		return "", false, errs.Newf(errs.ErrorTypeSolver, 0, "unexpected task status %q", out.Status)
	}
}

func (c *Client) post(ctx context.Context, path string, payload, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return errs.Newf(errs.ErrorTypeSolver, 0, "encode solver request: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return errs.Newf(errs.ErrorTypeSolver, 0, "build solver request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "redscrape-solver/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return errs.Newf(errs.ErrorTypeSolver, 0, "solver request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return errs.Newf(errs.ErrorTypeSolver, resp.StatusCode, "solver returned status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return errs.Newf(errs.ErrorTypeSolver, 0, "read solver response: %v", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return errs.Newf(errs.ErrorTypeSolver, 0, "decode solver response: %v", err)
	}
	return nil
}

// serviceError maps service error codes onto the local taxonomy. A
// zero-balance code is a quota error so the orchestrator stops
// re-solving; everything else stays a generic solver error.
func serviceError(code, description string) error {
	msg := description
	if msg == "" {
		msg = code
	}
	if msg == "" {
		msg = "solver service error"
	}
	if code == "ERROR_ZERO_BALANCE" {
		return errs.New(errs.ErrorTypeSolverQuota, msg, 0)
	}
	if code != "" && code != msg {
		msg = fmt.Sprintf("%s (%s)", msg, code)
	}
	return errs.New(errs.ErrorTypeSolver, msg, 0)
}
