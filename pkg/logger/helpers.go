package logger

// LogRequest logs an outbound HTTP dispatch
func LogRequest(method, url, proxy string, statusCode int, durationMs float64) {
	fields := map[string]interface{}{
		"method":      method,
		"url":         url,
		"proxy":       proxy,
		"status_code": statusCode,
		"duration_ms": durationMs,
	}

	if statusCode >= 200 && statusCode < 300 {
		GetLogger().InfoWithFields("HTTP request completed", fields)
	} else if statusCode >= 400 && statusCode < 500 {
		GetLogger().WarnWithFields("HTTP request client error", fields)
	} else if statusCode >= 500 {
		GetLogger().ErrorWithFields("HTTP request server error", fields)
	}
}

// LogRateLimit logs rate limiting events
func LogRateLimit(identity string, waitMs int64) {
	GetLogger().WithFields(map[string]interface{}{
		"identity": identity,
		"wait_ms":  waitMs,
		"action":   "rate_limited",
	}).Warn("Rate limit reached, backing off")
}

// LogProbe logs a proxy health probe result
func LogProbe(proxy string, success bool, latencyMs int64, state string) {
	fields := map[string]interface{}{
		"proxy":      proxy,
		"success":    success,
		"latency_ms": latencyMs,
		"state":      state,
	}

	if success {
		GetLogger().DebugWithFields("Proxy probe passed", fields)
	} else {
		GetLogger().WarnWithFields("Proxy probe failed", fields)
	}
}

// LogComponentStart logs when a component starts
func LogComponentStart(component string, config map[string]interface{}) {
	logger := GetLogger().WithField("component", component)

	if len(config) > 0 {
		logger = logger.WithFields(config)
	}

	logger.Info("Component started")
}
