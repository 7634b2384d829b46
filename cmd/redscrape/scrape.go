package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var (
	// Scrape command flags
	sortOrder  string
	postLimit  int
	workers    int
	timeFilter string
	searchSort string
)

// scrapeCmd represents the scrape command
var scrapeCmd = &cobra.Command{
	Use:   "scrape <subreddit> [subreddit...]",
	Short: "Scrape posts from one or more subreddits",
	Long: `Scrape posts from subreddit listings.

With a single subreddit the pages are fetched sequentially and follow
the listing cursor until the limit is reached. With several subreddits
the jobs fan out over a worker pool and each subreddit is saved
independently, so one failing subreddit never sinks the batch.`,
	Example: `  # Scrape the 100 hottest posts
  redscrape scrape golang --limit 100

  # Scrape top posts through specific proxies
  redscrape scrape golang --sort top --proxy user:pass@10.0.0.1:8080

  # Bulk scrape several subreddits with 5 workers
  redscrape scrape golang rust zig --workers 5`,
	Args: cobra.MinimumNArgs(1),
	RunE: runScrape,
}

// commentsCmd represents the comments command
var commentsCmd = &cobra.Command{
	Use:   "comments <subreddit> <post-id>",
	Short: "Scrape a post and its full comment tree",
	Example: `  # Scrape a comment thread
  redscrape comments golang 1abc2d

  # Sort comments by top
  redscrape comments golang 1abc2d --sort top`,
	Args: cobra.ExactArgs(2),
	RunE: runComments,
}

// userCmd represents the user command
var userCmd = &cobra.Command{
	Use:   "user <username>",
	Short: "Scrape a user's submitted posts",
	Example: `  # Scrape a user's newest submissions
  redscrape user spez --limit 50`,
	Args: cobra.ExactArgs(1),
	RunE: runUser,
}

// searchCmd represents the search command
var searchCmd = &cobra.Command{
	Use:   "search <subreddit> <query>",
	Short: "Search within a subreddit",
	Example: `  # Search r/golang for generics posts from the last month
  redscrape search golang generics --search-sort top --time month`,
	Args: cobra.ExactArgs(2),
	RunE: runSearch,
}

func init() {
	rootCmd.AddCommand(scrapeCmd)
	rootCmd.AddCommand(commentsCmd)
	rootCmd.AddCommand(userCmd)
	rootCmd.AddCommand(searchCmd)

	scrapeCmd.Flags().StringVar(&sortOrder, "sort", "hot", "listing sort (hot, new, top, rising)")
	scrapeCmd.Flags().IntVar(&postLimit, "limit", 100, "maximum number of posts")
	scrapeCmd.Flags().IntVar(&workers, "workers", 3, "concurrent workers for bulk scrapes")

	commentsCmd.Flags().StringVar(&sortOrder, "sort", "top", "comment sort (best, top, new, controversial, old, qa)")

	userCmd.Flags().StringVar(&sortOrder, "sort", "new", "listing sort (new, hot, top)")
	userCmd.Flags().IntVar(&postLimit, "limit", 100, "maximum number of posts")

	searchCmd.Flags().StringVar(&searchSort, "search-sort", "relevance", "search sort (relevance, hot, top, new, comments)")
	searchCmd.Flags().StringVar(&timeFilter, "time", "all", "time filter (hour, day, week, month, year, all)")
	searchCmd.Flags().IntVar(&postLimit, "limit", 100, "maximum number of posts")
}

// commandContext returns a context cancelled by SIGINT or SIGTERM.
func commandContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func runScrape(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext()
	defer cancel()

	a, err := buildApp(true)
	if err != nil {
		return err
	}
	a.start(ctx)
	defer a.stop()

	if len(args) == 1 {
		posts, err := a.scraper.ScrapeSubreddit(ctx, args[0], sortOrder, postLimit)
		if err != nil {
			return err
		}
		fmt.Printf("Scraped %d posts from r/%s\n", len(posts), args[0])
		return nil
	}

	results := a.scraper.BulkScrape(ctx, args, sortOrder, postLimit)
	var failed int
	for _, sub := range args {
		posts, ok := results[sub]
		if !ok {
			failed++
			fmt.Printf("r/%s: failed\n", sub)
			continue
		}
		fmt.Printf("r/%s: %d posts\n", sub, len(posts))
	}
	if failed == len(args) {
		return fmt.Errorf("all %d subreddits failed", failed)
	}
	return nil
}

func runComments(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext()
	defer cancel()

	a, err := buildApp(true)
	if err != nil {
		return err
	}
	a.start(ctx)
	defer a.stop()

	thread, err := a.scraper.ScrapePostComments(ctx, args[0], args[1], sortOrder)
	if err != nil {
		return err
	}
	fmt.Printf("Scraped %q with %d comments\n", thread.Post.Title, len(thread.Comments))
	return nil
}

func runUser(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext()
	defer cancel()

	a, err := buildApp(true)
	if err != nil {
		return err
	}
	a.start(ctx)
	defer a.stop()

	posts, err := a.scraper.ScrapeUserActivity(ctx, args[0], sortOrder, postLimit)
	if err != nil {
		return err
	}
	fmt.Printf("Scraped %d posts from u/%s\n", len(posts), args[0])
	return nil
}

func runSearch(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext()
	defer cancel()

	a, err := buildApp(true)
	if err != nil {
		return err
	}
	a.start(ctx)
	defer a.stop()

	posts, err := a.scraper.Search(ctx, args[0], args[1], searchSort, timeFilter, postLimit)
	if err != nil {
		return err
	}
	fmt.Printf("Found %d posts in r/%s for %q\n", len(posts), args[0], args[1])
	return nil
}
