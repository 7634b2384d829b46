// Package scraper turns validated scrape targets into saved data
// sets: it paginates the listing endpoints, fans bulk jobs out over a
// worker pool, and hands every page to storage.
package scraper

import (
	"context"
	"fmt"

	"redscrape/internal/fetcher"
	"redscrape/pkg/logger"
	"redscrape/pkg/reddit"
	"redscrape/pkg/retry"
	"redscrape/pkg/storage"
	"redscrape/pkg/validation"
)

// Config controls scraping behavior above the dispatch core.
type Config struct {
	// Workers bounds bulk scrape concurrency.
	Workers int
	// SaveCSV additionally exports listings as CSV.
	SaveCSV bool
	// PageRetries is how many times one page fetch is retried above
	// the dispatcher's own attempt bound.
	PageRetries int
}

// Scraper is the operation layer: one instance serves all commands.
type Scraper struct {
	client *reddit.Client
	store  *storage.Manager
	cfg    Config
	log    logger.Logger
}

// New creates a scraper. A nil store disables saving.
func New(client *reddit.Client, store *storage.Manager, cfg Config, log logger.Logger) *Scraper {
	if log == nil {
		log = logger.GetLogger()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 3
	}
	if cfg.PageRetries <= 0 {
		cfg.PageRetries = 2
	}
	return &Scraper{
		client: client,
		store:  store,
		cfg:    cfg,
		log:    log,
	}
}

// retryConfig wraps one page fetch in a short outer retry. The
// dispatcher already retries individual sends; this covers whole-page
// transients like an exhausted attempt bound that may clear up.
func (s *Scraper) retryConfig(ctx context.Context) *retry.Config {
	cfg := retry.DefaultConfig()
	cfg.MaxAttempts = s.cfg.PageRetries
	cfg.Context = ctx
	cfg.Logger = s.log
	return cfg
}

// ScrapeSubreddit fetches up to limit posts from one subreddit,
// following the pagination cursor, and saves the listing.
func (s *Scraper) ScrapeSubreddit(ctx context.Context, subreddit, sort string, limit int) ([]reddit.Post, error) {
	subreddit, err := validation.Subreddit(subreddit)
	if err != nil {
		return nil, err
	}
	sort, err = validation.Sort(sort, reddit.SubredditSorts)
	if err != nil {
		return nil, err
	}
	limit, err = validation.Limit(limit)
	if err != nil {
		return nil, err
	}

	posts, err := s.paginate(ctx, limit, func(after string, remaining int) (*reddit.Page, error) {
		return s.client.SubredditPage(ctx, subreddit, sort, remaining, after)
	})
	if err != nil {
		return nil, err
	}

	s.log.InfoWithFields("Subreddit scraped", map[string]interface{}{
		"subreddit": subreddit,
		"sort":      sort,
		"posts":     len(posts),
	})

	if err := s.saveListing("r_"+subreddit, posts); err != nil {
		return posts, err
	}
	return posts, nil
}

// ScrapePostComments fetches one post with its full comment tree and
// saves it.
func (s *Scraper) ScrapePostComments(ctx context.Context, subreddit, postID, sort string) (*reddit.Thread, error) {
	subreddit, err := validation.Subreddit(subreddit)
	if err != nil {
		return nil, err
	}
	postID, err = validation.PostID(postID)
	if err != nil {
		return nil, err
	}
	sort, err = validation.Sort(sort, reddit.CommentSorts)
	if err != nil {
		return nil, err
	}

	thread, err := retry.DoWithResult(func() (*reddit.Thread, error) {
		return s.client.PostComments(ctx, subreddit, postID, sort)
	}, s.retryConfig(ctx))
	if err != nil {
		return nil, err
	}

	s.log.InfoWithFields("Post comments scraped", map[string]interface{}{
		"subreddit": subreddit,
		"post_id":   postID,
		"comments":  reddit.CountComments(thread.Comments),
	})

	if s.store != nil {
		if _, err := s.store.SaveThread(thread); err != nil {
			return thread, err
		}
	}
	return thread, nil
}

// ScrapeUserActivity fetches up to limit posts a user submitted and
// saves the listing.
func (s *Scraper) ScrapeUserActivity(ctx context.Context, username, sort string, limit int) ([]reddit.Post, error) {
	username, err := validation.Username(username)
	if err != nil {
		return nil, err
	}
	sort, err = validation.Sort(sort, reddit.UserSorts)
	if err != nil {
		return nil, err
	}
	limit, err = validation.Limit(limit)
	if err != nil {
		return nil, err
	}

	posts, err := s.paginate(ctx, limit, func(after string, remaining int) (*reddit.Page, error) {
		return s.client.UserSubmitted(ctx, username, sort, remaining, after)
	})
	if err != nil {
		return nil, err
	}

	if err := s.saveListing("u_"+username, posts); err != nil {
		return posts, err
	}
	return posts, nil
}

// Search runs a subreddit-restricted search and saves the results.
func (s *Scraper) Search(ctx context.Context, subreddit, query, sort, timeFilter string, limit int) ([]reddit.Post, error) {
	subreddit, err := validation.Subreddit(subreddit)
	if err != nil {
		return nil, err
	}
	sort, err = validation.Sort(sort, reddit.SearchSorts)
	if err != nil {
		return nil, err
	}
	limit, err = validation.Limit(limit)
	if err != nil {
		return nil, err
	}

	posts, err := retry.DoWithResult(func() ([]reddit.Post, error) {
		return s.client.Search(ctx, subreddit, query, sort, timeFilter, limit)
	}, s.retryConfig(ctx))
	if err != nil {
		return nil, err
	}

	if err := s.saveListing(fmt.Sprintf("r_%s_search_%s", subreddit, query), posts); err != nil {
		return posts, err
	}
	return posts, nil
}

// FetchSubreddit implements fetcher.SubredditFetcher for bulk scraping.
func (s *Scraper) FetchSubreddit(ctx context.Context, subreddit, sort string, limit int) ([]reddit.Post, error) {
	return s.ScrapeSubreddit(ctx, subreddit, sort, limit)
}

// BulkScrape fetches several subreddits concurrently. Failures are
// per-subreddit; a broken target never sinks the batch.
func (s *Scraper) BulkScrape(ctx context.Context, subreddits []string, sort string, limitPer int) map[string][]reddit.Post {
	pool := fetcher.NewPool(s.cfg.Workers, s, s.log)
	pool.Start()

	go func() {
		for _, sub := range subreddits {
			if err := pool.Submit(fetcher.Job{Subreddit: sub, Sort: sort, Limit: limitPer}); err != nil {
				s.log.WithError(err).WithField("subreddit", sub).Error("Failed to submit bulk job")
			}
		}
		pool.Stop()
	}()

	results := make(map[string][]reddit.Post, len(subreddits))
	for r := range pool.Results() {
		if r.Error != nil {
			// Failed targets are left out of the result map.
			s.log.WithError(r.Error).WithField("subreddit", r.Job.Subreddit).Error("Bulk scrape target failed")
			continue
		}
		results[r.Job.Subreddit] = r.Posts
	}
	return results
}

// paginate follows the after cursor until limit posts are collected or
// the listing runs out. Each page fetch gets its own outer retry.
func (s *Scraper) paginate(ctx context.Context, limit int, fetch func(after string, remaining int) (*reddit.Page, error)) ([]reddit.Post, error) {
	var (
		posts []reddit.Post
		after string
	)

	for len(posts) < limit {
		if err := ctx.Err(); err != nil {
			return posts, err
		}

		remaining := limit - len(posts)
		page, err := retry.DoWithResult(func() (*reddit.Page, error) {
			return fetch(after, remaining)
		}, s.retryConfig(ctx))
		if err != nil {
			if len(posts) > 0 {
				// Keep what was already fetched; a partial listing is
				// better than none.
				s.log.WithError(err).Warn("Pagination stopped early")
				return posts, nil
			}
			return nil, err
		}

		if len(page.Posts) == 0 {
			break
		}
		posts = append(posts, page.Posts...)
		if page.After == "" {
			break
		}
		after = page.After
	}

	if len(posts) > limit {
		posts = posts[:limit]
	}
	return posts, nil
}

func (s *Scraper) saveListing(source string, posts []reddit.Post) error {
	if s.store == nil || len(posts) == 0 {
		return nil
	}
	if _, err := s.store.SaveListing(source, posts); err != nil {
		return err
	}
	if s.cfg.SaveCSV {
		if _, err := s.store.SaveListingCSV(source, posts); err != nil {
			return err
		}
	}
	return nil
}
