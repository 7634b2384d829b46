// Package logger provides a structured logging interface for the scraper.
//
// It wraps the zerolog library with a small Logger interface that supports
// multiple log levels, structured fields, pretty console output and optional
// file output, plus a global instance for easy access:
//
//	cfg := &config.LoggingConfig{Level: "info"}
//	if err := logger.Initialize(cfg); err != nil { ... }
//
//	logger.Info("starting up")
//	logger.WithField("proxy", "10.0.0.1:8080").Warn("probe failed")
package logger
