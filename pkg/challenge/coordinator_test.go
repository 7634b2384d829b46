package challenge

import (
	"context"
	"net/http"
	"testing"

	errs "redscrape/pkg/errors"
	"redscrape/pkg/logger"
	"redscrape/pkg/solver"
)

type fakeSolver struct {
	quotaErr   error
	solveErr   error
	token      string
	solveCalls int
	lastTask   solver.Task
}

func (f *fakeSolver) CheckQuota(ctx context.Context) error { return f.quotaErr }

func (f *fakeSolver) Solve(ctx context.Context, task solver.Task) (string, error) {
	f.solveCalls++
	f.lastTask = task
	return f.token, f.solveErr
}

const recaptchaPage = `<html><body>
<div class="g-recaptcha" data-sitekey="embedded-key"></div>
<script src="https://www.google.com/recaptcha/api.js"></script>
</body></html>`

func TestDefaultClassifierDetectsRecaptcha(t *testing.T) {
	c := DefaultClassifier(http.StatusForbidden, http.Header{}, []byte(recaptchaPage))
	if !c.Challenge {
		t.Fatal("expected a challenge classification")
	}
	if c.Kind != KindRecaptchaV2 {
		t.Errorf("expected kind %v, got %v", KindRecaptchaV2, c.Kind)
	}
	if c.SiteKey != "embedded-key" {
		t.Errorf("expected extracted site key, got %q", c.SiteKey)
	}
}

func TestDefaultClassifierDetectsHCaptcha(t *testing.T) {
	body := []byte(`<div class="h-captcha" data-sitekey="hc-key"></div>`)
	c := DefaultClassifier(http.StatusTooManyRequests, http.Header{}, body)
	if !c.Challenge || c.Kind != KindHCaptcha {
		t.Errorf("expected hcaptcha challenge, got %+v", c)
	}
}

func TestDefaultClassifierIsConservative(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"ordinary 200", http.StatusOK, recaptchaPage},
		{"plain 403", http.StatusForbidden, "<html>access denied</html>"},
		{"plain 500", http.StatusInternalServerError, "internal error"},
		{"429 without markers", http.StatusTooManyRequests, `{"error": "too many requests"}`},
		{"empty body", http.StatusForbidden, ""},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if c := DefaultClassifier(test.status, http.Header{}, []byte(test.body)); c.Challenge {
				t.Errorf("ambiguous response classified as challenge: %+v", c)
			}
		})
	}
}

func TestClassifyIsIdempotent(t *testing.T) {
	coord := NewCoordinator(&fakeSolver{}, nil, logger.NewTestLogger())
	body := []byte(recaptchaPage)

	first := coord.Classify(http.StatusForbidden, http.Header{}, body)
	second := coord.Classify(http.StatusForbidden, http.Header{}, body)
	if first != second {
		t.Errorf("classification not idempotent: %+v vs %+v", first, second)
	}
}

func TestNewRecordFallsBackToConfiguredSiteKey(t *testing.T) {
	coord := NewCoordinator(&fakeSolver{}, solver.SiteKeys{"reddit.com": "configured-key"}, logger.NewTestLogger())

	rec, err := coord.NewRecord(Classification{Challenge: true, Kind: KindRecaptchaV2}, "https://www.reddit.com/r/golang.json")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.SiteKey != "configured-key" {
		t.Errorf("expected configured site key, got %q", rec.SiteKey)
	}
	if rec.ID == "" {
		t.Error("record should carry a correlation id")
	}
}

func TestNewRecordWithoutAnySiteKey(t *testing.T) {
	coord := NewCoordinator(&fakeSolver{}, nil, logger.NewTestLogger())
	_, err := coord.NewRecord(Classification{Challenge: true, Kind: KindRecaptchaV2}, "https://unknown.net/page")
	if !errs.IsType(err, errs.ErrorTypeChallenge) {
		t.Errorf("expected challenge error, got %v", err)
	}
}

func TestResolveChecksQuotaFirst(t *testing.T) {
	fake := &fakeSolver{quotaErr: errs.New(errs.ErrorTypeSolverQuota, "balance depleted", 0)}
	coord := NewCoordinator(fake, nil, logger.NewTestLogger())

	rec, err := coord.NewRecord(Classification{Challenge: true, Kind: KindRecaptchaV2, SiteKey: "k"}, "https://reddit.com/")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err = coord.Resolve(context.Background(), rec)
	if !errs.IsType(err, errs.ErrorTypeSolverQuota) {
		t.Fatalf("expected solver_quota error, got %v", err)
	}
	if fake.solveCalls != 0 {
		t.Error("solve must not run when quota check fails")
	}
}

func TestResolveBuildsTaskFromRecord(t *testing.T) {
	fake := &fakeSolver{token: "tok"}
	coord := NewCoordinator(fake, nil, logger.NewTestLogger())

	rec, _ := coord.NewRecord(Classification{Challenge: true, Kind: KindHCaptcha, SiteKey: "hc-key"}, "https://reddit.com/r/golang")
	token, err := coord.Resolve(context.Background(), rec)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if token != "tok" {
		t.Errorf("expected token %q, got %q", "tok", token)
	}
	if fake.lastTask.Type != solver.TaskHCaptcha {
		t.Errorf("expected hcaptcha task, got %v", fake.lastTask.Type)
	}
	if fake.lastTask.WebsiteKey != "hc-key" || fake.lastTask.WebsiteURL != "https://reddit.com/r/golang" {
		t.Errorf("task not built from record: %+v", fake.lastTask)
	}
}

func TestRecordIsSingleUse(t *testing.T) {
	fake := &fakeSolver{token: "tok"}
	coord := NewCoordinator(fake, nil, logger.NewTestLogger())

	rec, _ := coord.NewRecord(Classification{Challenge: true, Kind: KindRecaptchaV2, SiteKey: "k"}, "https://reddit.com/")
	if _, err := coord.Resolve(context.Background(), rec); err != nil {
		t.Fatalf("first resolve failed: %v", err)
	}

	if _, err := coord.Resolve(context.Background(), rec); err == nil {
		t.Error("second resolve on the same record must fail")
	}
	if fake.solveCalls != 1 {
		t.Errorf("expected exactly 1 solve, got %d", fake.solveCalls)
	}
}
