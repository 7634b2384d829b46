package main

import (
	"context"
	"fmt"

	"redscrape/pkg/auth"
	"redscrape/pkg/challenge"
	"redscrape/pkg/config"
	"redscrape/pkg/dispatch"
	"redscrape/pkg/logger"
	"redscrape/pkg/proxy"
	"redscrape/pkg/ratelimit"
	"redscrape/pkg/reddit"
	"redscrape/pkg/retry"
	"redscrape/pkg/scraper"
	"redscrape/pkg/solver"
	"redscrape/pkg/storage"
	"redscrape/pkg/useragent"
)

// app bundles the fully wired dispatch core for one command run.
type app struct {
	cfg        *config.Config
	log        logger.Logger
	pool       *proxy.Pool
	monitor    *proxy.Monitor
	dispatcher *dispatch.Dispatcher
	solver     *solver.Client
	scraper    *scraper.Scraper
}

// globalFlags collects the persistent flags commands pass into config.Load.
func globalFlags() map[string]interface{} {
	flags := make(map[string]interface{})
	if outputDir != "" {
		flags["output"] = outputDir
	}
	if rateLimit > 0 {
		flags["rate-limit"] = rateLimit
	}
	if logLevel != "info" {
		flags["log-level"] = logLevel
	}
	if solverKey != "" {
		flags["solver-key"] = solverKey
	}
	return flags
}

// loadConfig loads configuration, merges proxy flags and initializes
// the global logger.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configFile, globalFlags())
	if err != nil {
		return nil, err
	}

	for _, s := range httpProxies {
		pc, err := config.ParseProxyString(s, "http")
		if err != nil {
			return nil, fmt.Errorf("invalid --proxy value %q: %w", s, err)
		}
		cfg.Proxies = append(cfg.Proxies, pc)
	}
	for _, s := range socksProxies {
		pc, err := config.ParseProxyString(s, "socks5")
		if err != nil {
			return nil, fmt.Errorf("invalid --socks5 value %q: %w", s, err)
		}
		cfg.Proxies = append(cfg.Proxies, pc)
	}

	if err := logger.Initialize(&cfg.Logging); err != nil {
		return nil, err
	}

	return cfg, nil
}

// resolveSolverKey finds the solver API key: flags and environment win,
// then the credential manager's stored key.
func resolveSolverKey(cfg *config.Config, log logger.Logger) string {
	if cfg.Solver.APIKey != "" {
		return cfg.Solver.APIKey
	}

	manager, err := auth.NewManager()
	if err != nil {
		log.WithError(err).Debug("credential manager unavailable")
		return ""
	}
	cred, err := manager.RetrieveDefault()
	if err != nil {
		return ""
	}
	log.WithField("provider", cred.Provider).Debug("using stored solver credential")
	if cred.Endpoint != "" && cfg.Solver.BaseURL == "" {
		cfg.Solver.BaseURL = cred.Endpoint
	}
	return cred.APIKey
}

// buildApp wires the dispatch core from configuration. When withStore
// is false no output directory is created; status-only commands use
// that mode.
func buildApp(withStore bool) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	log := logger.GetLogger()

	pool := proxy.NewPool(log)
	for _, pc := range cfg.Proxies {
		id, err := proxyIdentity(pc)
		if err != nil {
			return nil, err
		}
		pool.AddEntry(id)
	}
	if pool.Len() == 0 {
		log.Warn("no proxies configured, every dispatch will fail until proxies are added")
	}

	mcfg := proxy.DefaultMonitorConfig()
	if cfg.Health.ProbeURL != "" {
		mcfg.ProbeURL = cfg.Health.ProbeURL
	}
	if cfg.Health.ProbeTimeout > 0 {
		mcfg.ProbeTimeout = cfg.Health.ProbeTimeout
	}
	if cfg.Health.FreshnessWindow > 0 {
		mcfg.FreshnessWindow = cfg.Health.FreshnessWindow
	}
	if cfg.Health.Cooldown > 0 {
		mcfg.Cooldown = cfg.Health.Cooldown
	}
	if cfg.Health.Interval > 0 {
		mcfg.Interval = cfg.Health.Interval
	}
	if cfg.Health.Concurrency > 0 {
		mcfg.Concurrency = cfg.Health.Concurrency
	}
	monitor := proxy.NewMonitor(pool, mcfg, log)

	governor := ratelimit.NewGovernor(ratelimit.Config{
		PerIdentityPerMinute: cfg.RateLimit.PerProxyPerMinute,
		PerIdentityBurst:     cfg.RateLimit.PerProxyBurst,
		GlobalPerMinute:      cfg.RateLimit.GlobalPerMinute,
		GlobalBurst:          cfg.RateLimit.GlobalBurst,
	}, log)

	scfg := solver.DefaultConfig(resolveSolverKey(cfg, log))
	if cfg.Solver.BaseURL != "" {
		scfg.BaseURL = cfg.Solver.BaseURL
	}
	if cfg.Solver.MaxWait > 0 {
		scfg.MaxWait = cfg.Solver.MaxWait
	}
	if cfg.Solver.PollInterval > 0 {
		scfg.PollInterval = cfg.Solver.PollInterval
	}
	if cfg.Solver.MinBalance > 0 {
		scfg.MinBalance = cfg.Solver.MinBalance
	}
	sol := solver.NewClient(scfg, log)
	if scfg.APIKey == "" {
		log.Warn("no solver API key configured, challenges will not be solved")
	}

	coordinator := challenge.NewCoordinator(sol, solver.SiteKeys(cfg.Solver.SiteKeys), log)

	dcfg := dispatch.DefaultConfig()
	if cfg.Retry.MaxAttempts > 0 {
		dcfg.MaxAttempts = cfg.Retry.MaxAttempts
	}
	if cfg.Retry.BaseDelay > 0 {
		dcfg.Backoff = &retry.ExponentialBackoff{
			BaseDelay:    cfg.Retry.BaseDelay,
			MaxDelay:     cfg.Retry.MaxDelay,
			Multiplier:   cfg.Retry.Multiplier,
			JitterFactor: cfg.Retry.JitterFactor,
		}
	}
	if cfg.RateLimit.Patience > 0 {
		dcfg.Patience = cfg.RateLimit.Patience
	}
	if cfg.Reddit.RequestTimeout > 0 {
		dcfg.SendTimeout = cfg.Reddit.RequestTimeout
	}
	sender := dispatch.NewSender(dcfg.SendTimeout)

	dispatcher := dispatch.NewDispatcher(pool, monitor, governor, coordinator, sender, dcfg, log)

	var rotator *useragent.Rotator
	if cfg.Reddit.RotateUserAgents {
		rotator = useragent.NewRotator(cfg.Reddit.UserAgents...)
	} else {
		rotator = useragent.NewRotator(cfg.Reddit.UserAgent)
	}

	client := reddit.NewClient(dispatcher, rotator, log)
	if cfg.Reddit.BaseURL != "" {
		client.SetBaseURL(cfg.Reddit.BaseURL)
	}

	var store *storage.Manager
	if withStore {
		store, err = storage.NewManager(cfg.Output.Directory)
		if err != nil {
			return nil, fmt.Errorf("failed to prepare output directory: %w", err)
		}
	}

	scr := scraper.New(client, store, scraper.Config{
		Workers: workers,
		SaveCSV: cfg.Output.Format == "csv",
	}, log)

	return &app{
		cfg:        cfg,
		log:        log,
		pool:       pool,
		monitor:    monitor,
		dispatcher: dispatcher,
		solver:     sol,
		scraper:    scr,
	}, nil
}

// start kicks off background health probing for the duration of a command.
func (a *app) start(ctx context.Context) {
	a.monitor.Start(ctx)
}

// stop shuts the monitor down and waits for in-flight probes.
func (a *app) stop() {
	a.monitor.Stop()
}

func proxyIdentity(pc config.ProxyConfig) (proxy.Identity, error) {
	kind := proxy.Kind(pc.Kind)
	switch kind {
	case proxy.KindHTTP, proxy.KindSOCKS5:
	case "":
		kind = proxy.KindHTTP
	default:
		return proxy.Identity{}, fmt.Errorf("unknown proxy kind %q", pc.Kind)
	}
	return proxy.Identity{
		Host:     pc.Host,
		Port:     pc.Port,
		Username: pc.Username,
		Password: pc.Password,
		Kind:     kind,
	}, nil
}
