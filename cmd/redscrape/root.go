package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"
)

var (
	// Version information
	version   = "1.0.0"
	gitCommit = "unknown"
	buildDate = "unknown"

	// Global flags
	configFile   string
	logLevel     string
	outputDir    string
	rateLimit    int
	solverKey    string
	httpProxies  []string
	socksProxies []string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "redscrape",
	Short: "A resilient Reddit scraper with proxy rotation and challenge solving",
	Long: `Redscrape pulls posts, comment threads, user activity and search
results from Reddit's public JSON endpoints.

Every request goes through a dispatch core that rotates health-scored
proxies, honors per-proxy and global rate limits, retries transient
failures with exponential backoff, and resolves anti-bot challenges
through a captcha solving service.

Features:
  - Weighted proxy rotation with background health probing
  - Token-bucket rate limiting per proxy and globally
  - Automatic challenge detection and solving (reCAPTCHA, hCaptcha)
  - Secure solver API key storage using the system keychain
  - Concurrent bulk scraping across subreddits
  - JSON and CSV output with deduplication`,
	Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, gitCommit, buildDate),
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file (default is $HOME/.redscrape.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVarP(&outputDir, "output", "o", "", "output directory for scraped data")
	rootCmd.PersistentFlags().IntVar(&rateLimit, "rate-limit", 0, "global requests per minute (0 uses config)")
	rootCmd.PersistentFlags().StringVar(&solverKey, "solver-key", "", "captcha solver API key (overrides stored credential)")
	rootCmd.PersistentFlags().StringArrayVar(&httpProxies, "proxy", nil, "HTTP proxy as host:port or user:pass@host:port (repeatable)")
	rootCmd.PersistentFlags().StringArrayVar(&socksProxies, "socks5", nil, "SOCKS5 proxy as host:port or user:pass@host:port (repeatable)")

	rootCmd.SetVersionTemplate(`redscrape {{.Version}}
Go Version: ` + runtime.Version() + `
OS/Arch: ` + runtime.GOOS + `/` + runtime.GOARCH + `
`)

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}
