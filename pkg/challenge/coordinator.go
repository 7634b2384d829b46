package challenge

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	errs "redscrape/pkg/errors"
	"redscrape/pkg/logger"
	"redscrape/pkg/solver"
)

// Solver is the slice of the solving service the coordinator needs.
type Solver interface {
	CheckQuota(ctx context.Context) error
	Solve(ctx context.Context, task solver.Task) (string, error)
}

// Record is an ephemeral challenge: created on classification, spent
// by a single Resolve, then useless. Tokens are never shared between
// records.
type Record struct {
	ID        string
	Kind      Kind
	SiteKey   string
	PageURL   string
	CreatedAt time.Time

	mu    sync.Mutex
	spent bool
}

// Coordinator detects challenge responses and turns them into solution
// tokens via the external solver. One instance is shared by all
// concurrent dispatches.
type Coordinator struct {
	solver   Solver
	siteKeys solver.SiteKeys
	classify ClassifierFunc
	log      logger.Logger
}

// Option customizes a Coordinator.
type Option func(*Coordinator)

// WithClassifier replaces the default classification heuristic.
func WithClassifier(fn ClassifierFunc) Option {
	return func(c *Coordinator) { c.classify = fn }
}

// NewCoordinator wires a coordinator to a solver and the configured
// per-domain site keys.
func NewCoordinator(s Solver, siteKeys solver.SiteKeys, log logger.Logger, opts ...Option) *Coordinator {
	if log == nil {
		log = logger.GetLogger()
	}
	c := &Coordinator{
		solver:   s,
		siteKeys: siteKeys,
		classify: DefaultClassifier,
		log:      log,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Classify inspects one response. It is a pure function of the
// response content; classifying the same response twice yields the
// same verdict.
func (c *Coordinator) Classify(status int, header http.Header, body []byte) Classification {
	return c.classify(status, header, body)
}

// NewRecord creates a challenge record for a classified response. The
// site key comes from the page itself when the classifier extracted
// one, otherwise from configuration; a challenge with no known site
// key cannot be solved.
func (c *Coordinator) NewRecord(class Classification, pageURL string) (*Record, error) {
	if !class.Challenge {
		return nil, errs.New(errs.ErrorTypeChallenge, "response was not classified as a challenge", 0)
	}

	siteKey := class.SiteKey
	if siteKey == "" {
		key, ok := c.siteKeys.Lookup(pageURL)
		if !ok {
			return nil, errs.Newf(errs.ErrorTypeChallenge, 0, "no site key configured for %s", pageURL)
		}
		siteKey = key
	}

	return &Record{
		ID:        uuid.NewString(),
		Kind:      class.Kind,
		SiteKey:   siteKey,
		PageURL:   pageURL,
		CreatedAt: time.Now(),
	}, nil
}

// Resolve spends the record: it checks solver quota first, failing
// fast on a depleted account, then runs one solve. The decision to
// retry a failed solve, or to rotate proxies instead, belongs to the
// caller, never to the coordinator.
func (c *Coordinator) Resolve(ctx context.Context, rec *Record) (string, error) {
	rec.mu.Lock()
	if rec.spent {
		rec.mu.Unlock()
		return "", errs.New(errs.ErrorTypeChallenge, "challenge record already spent", 0)
	}
	rec.spent = true
	rec.mu.Unlock()

	if err := c.solver.CheckQuota(ctx); err != nil {
		return "", err
	}

	task := solver.Task{
		WebsiteURL: rec.PageURL,
		WebsiteKey: rec.SiteKey,
	}
	switch rec.Kind {
	case KindHCaptcha:
		task.Type = solver.TaskHCaptcha
	default:
		task.Type = solver.TaskRecaptchaV2
	}

	c.log.WithFields(map[string]interface{}{
		"challenge_id": rec.ID,
		"kind":         string(rec.Kind),
		"page_url":     rec.PageURL,
	}).Info("Resolving challenge")

	token, err := c.solver.Solve(ctx, task)
	if err != nil {
		c.log.WithError(err).WithField("challenge_id", rec.ID).Warn("Challenge solve failed")
		return "", err
	}
	return token, nil
}
