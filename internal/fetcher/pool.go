// Package fetcher runs bulk scrape jobs across a bounded pool of
// workers so many subreddits can be fetched concurrently without
// unbounded goroutine growth.
package fetcher

import (
	"context"
	"fmt"
	"sync"
	"time"

	"redscrape/pkg/logger"
	"redscrape/pkg/reddit"
)

// Job is one subreddit listing to fetch.
type Job struct {
	Subreddit string
	Sort      string
	Limit     int
}

// Result is the outcome of one job.
type Result struct {
	Job      Job
	Posts    []reddit.Post
	Error    error
	Duration time.Duration
}

// SubredditFetcher fetches one complete subreddit listing. The
// scraping layer implements it; the pool only schedules.
type SubredditFetcher interface {
	FetchSubreddit(ctx context.Context, subreddit, sort string, limit int) ([]reddit.Post, error)
}

// Pool manages concurrent fetch workers.
type Pool struct {
	numWorkers  int
	jobQueue    chan Job
	resultQueue chan Result
	wg          sync.WaitGroup
	ctx         context.Context
	cancel      context.CancelFunc
	fetcher     SubredditFetcher
	logger      logger.Logger
}

// NewPool creates a fetch worker pool.
func NewPool(numWorkers int, f SubredditFetcher, log logger.Logger) *Pool {
	ctx, cancel := context.WithCancel(context.Background())

	if log == nil {
		log = logger.GetLogger()
	}
	if numWorkers <= 0 {
		numWorkers = 1
	}

	return &Pool{
		numWorkers:  numWorkers,
		jobQueue:    make(chan Job, numWorkers*2),
		resultQueue: make(chan Result, numWorkers),
		ctx:         ctx,
		cancel:      cancel,
		fetcher:     f,
		logger:      log,
	}
}

// Start launches all workers.
func (p *Pool) Start() {
	p.logger.InfoWithFields("Starting fetch pool", map[string]interface{}{
		"num_workers": p.numWorkers,
	})

	for i := 0; i < p.numWorkers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
}

// Stop drains the queue, waits for in-flight jobs, and closes the
// result channel.
func (p *Pool) Stop() {
	close(p.jobQueue)
	p.wg.Wait()
	close(p.resultQueue)
	p.cancel()
}

// Submit queues a job. It fails once the pool is shutting down.
func (p *Pool) Submit(job Job) error {
	select {
	case <-p.ctx.Done():
		return fmt.Errorf("fetch pool is shutting down")
	default:
	}

	select {
	case p.jobQueue <- job:
		return nil
	case <-p.ctx.Done():
		return fmt.Errorf("fetch pool is shutting down")
	}
}

// Results returns the channel results arrive on.
func (p *Pool) Results() <-chan Result {
	return p.resultQueue
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()

	for job := range p.jobQueue {
		select {
		case <-p.ctx.Done():
			return
		default:
		}

		result := p.processJob(job, id)

		select {
		case p.resultQueue <- result:
		case <-p.ctx.Done():
			return
		}
	}
}

func (p *Pool) processJob(job Job, workerID int) Result {
	start := time.Now()

	p.logger.DebugWithFields("Worker processing job", map[string]interface{}{
		"worker_id": workerID,
		"subreddit": job.Subreddit,
	})

	posts, err := p.fetcher.FetchSubreddit(p.ctx, job.Subreddit, job.Sort, job.Limit)
	result := Result{
		Job:      job,
		Posts:    posts,
		Error:    err,
		Duration: time.Since(start),
	}

	if err != nil {
		p.logger.ErrorWithFields("Worker failed to fetch subreddit", map[string]interface{}{
			"worker_id": workerID,
			"subreddit": job.Subreddit,
			"error":     err.Error(),
		})
	} else {
		p.logger.InfoWithFields("Worker fetched subreddit", map[string]interface{}{
			"worker_id": workerID,
			"subreddit": job.Subreddit,
			"posts":     len(posts),
			"duration":  result.Duration.String(),
		})
	}
	return result
}
