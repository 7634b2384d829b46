package solver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	errs "redscrape/pkg/errors"
	"redscrape/pkg/logger"
)

func testConfig(baseURL string) Config {
	return Config{
		APIKey:       "test-key",
		BaseURL:      baseURL,
		MaxWait:      2 * time.Second,
		PollInterval: 10 * time.Millisecond,
		MinBalance:   0.01,
	}
}

func TestSolvePollsUntilReady(t *testing.T) {
	polls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/createTask":
			var req createTaskRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				t.Errorf("decode createTask: %v", err)
			}
			if req.ClientKey != "test-key" {
				t.Errorf("unexpected client key %q", req.ClientKey)
			}
			if req.Task.Type != TaskRecaptchaV2 {
				t.Errorf("unexpected task type %q", req.Task.Type)
			}
			json.NewEncoder(w).Encode(createTaskResponse{TaskID: "task-1"})
		case "/getTaskResult":
			polls++
			resp := taskResultResponse{Status: "processing"}
			if polls >= 3 {
				resp = taskResultResponse{
					Status:   "ready",
					Solution: solution{GRecaptchaResponse: "solved-token"},
				}
			}
			json.NewEncoder(w).Encode(resp)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	c := NewClient(testConfig(srv.URL), logger.NewTestLogger())
	token, err := c.Solve(context.Background(), Task{
		Type:       TaskRecaptchaV2,
		WebsiteURL: "https://www.reddit.com/r/golang",
		WebsiteKey: "site-key",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if token != "solved-token" {
		t.Errorf("expected token %q, got %q", "solved-token", token)
	}
	if polls < 3 {
		t.Errorf("expected at least 3 polls, got %d", polls)
	}
}

func TestSolveTimesOut(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/createTask":
			json.NewEncoder(w).Encode(createTaskResponse{TaskID: "task-1"})
		case "/getTaskResult":
			json.NewEncoder(w).Encode(taskResultResponse{Status: "processing"})
		}
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.MaxWait = 50 * time.Millisecond

	c := NewClient(cfg, logger.NewTestLogger())
	_, err := c.Solve(context.Background(), Task{Type: TaskRecaptchaV2})
	if !errs.IsType(err, errs.ErrorTypeSolver) {
		t.Errorf("expected solver error on timeout, got %v", err)
	}
}

func TestSolveZeroBalanceIsQuotaError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(createTaskResponse{
			ErrorID:          1,
			ErrorCode:        "ERROR_ZERO_BALANCE",
			ErrorDescription: "account balance is zero",
		})
	}))
	defer srv.Close()

	c := NewClient(testConfig(srv.URL), logger.NewTestLogger())
	_, err := c.Solve(context.Background(), Task{Type: TaskRecaptchaV2})
	if !errs.IsType(err, errs.ErrorTypeSolverQuota) {
		t.Errorf("expected solver_quota error, got %v", err)
	}
}

func TestSolveCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/createTask":
			json.NewEncoder(w).Encode(createTaskResponse{TaskID: "task-1"})
		case "/getTaskResult":
			json.NewEncoder(w).Encode(taskResultResponse{Status: "processing"})
		}
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(30 * time.Millisecond)
		cancel()
	}()

	c := NewClient(testConfig(srv.URL), logger.NewTestLogger())
	_, err := c.Solve(ctx, Task{Type: TaskRecaptchaV2})
	if err == nil {
		t.Fatal("expected an error after cancellation")
	}
}

func TestBalance(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/getBalance" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(balanceResponse{Balance: 4.2})
	}))
	defer srv.Close()

	c := NewClient(testConfig(srv.URL), logger.NewTestLogger())
	balance, err := c.Balance(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if balance != 4.2 {
		t.Errorf("expected balance 4.2, got %v", balance)
	}
}

func TestCheckQuotaBelowMinimum(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(balanceResponse{Balance: 0.001})
	}))
	defer srv.Close()

	c := NewClient(testConfig(srv.URL), logger.NewTestLogger())
	err := c.CheckQuota(context.Background())
	if !errs.IsType(err, errs.ErrorTypeSolverQuota) {
		t.Errorf("expected solver_quota error, got %v", err)
	}
}

func TestSiteKeysLookup(t *testing.T) {
	keys := SiteKeys{
		"reddit.com":      "key-bare",
		"www.example.com": "key-www",
	}

	tests := []struct {
		url      string
		expected string
		found    bool
	}{
		{"https://reddit.com/r/golang", "key-bare", true},
		{"https://www.reddit.com/r/golang", "key-bare", true},
		{"https://www.example.com/page", "key-www", true},
		{"https://example.com/page", "key-www", true},
		{"https://unknown.net/", "", false},
		{"not a url", "", false},
	}

	for _, test := range tests {
		key, ok := keys.Lookup(test.url)
		if ok != test.found || key != test.expected {
			t.Errorf("Lookup(%q) = %q, %v; want %q, %v", test.url, key, ok, test.expected, test.found)
		}
	}
}
