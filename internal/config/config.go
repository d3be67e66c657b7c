// Package config loads an optional JSON session-options file layered
// over sensible defaults. CLI flags always take precedence; this file
// lets the retry/timeout tunables (e.g. a 0ms simulation-mode timeout
// during testing) and the monitor address be overridden.
package config

import "encoding/json"

// SessionOptions are the session's retry/timeout tunables (retry
// budget, response timeout, error-retry delay) plus the live-monitor
// address, normally left at their defaults but overridable via a JSON
// file for simulation and testing builds.
type SessionOptions struct {
	MaxRetries        uint32 `json:"maxRetries"`
	ResponseTimeoutMs uint32 `json:"responseTimeoutMs"`
	ErrorRetryDelayMs uint32 `json:"errorRetryDelayMs"`
	MonitorAddr       string `json:"monitorAddr"`
}

// Defaults returns the standard session tuning: 3 retries, 2000ms
// response timeout, 1000ms error-retry delay, monitor disabled.
func Defaults() SessionOptions {
	return SessionOptions{
		MaxRetries:        3,
		ResponseTimeoutMs: 2000,
		ErrorRetryDelayMs: 1000,
		MonitorAddr:       "",
	}
}

// Load parses jsonData over the defaults, so a file only needs to
// mention the fields it wants to override.
func Load(jsonData []byte) (SessionOptions, error) {
	opts := Defaults()
	if err := json.Unmarshal(jsonData, &opts); err != nil {
		return SessionOptions{}, err
	}
	applyDefaults(&opts)
	return opts, nil
}

// applyDefaults restores MaxRetries to its default when the file sets it
// to 0. ResponseTimeoutMs and ErrorRetryDelayMs keep whatever the file
// set, including an explicit 0 (a 0ms simulation timeout).
func applyDefaults(opts *SessionOptions) {
	if opts.MaxRetries == 0 {
		opts.MaxRetries = 3
	}
}
