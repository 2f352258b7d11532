package analytics

import (
	"log/slog"

	"github.com/posthog/posthog-go"
)

// Tracker sends usage events to PostHog. A nil or unconfigured tracker is
// safe to call; events are dropped.
type Tracker struct {
	client posthog.Client
	logger *slog.Logger
}

// New creates a tracker. When apiKey is empty, tracking is disabled.
func New(apiKey, endpoint string, logger *slog.Logger) *Tracker {
	t := &Tracker{logger: logger.With("component", "analytics")}

	if apiKey == "" {
		return t
	}

	cfg := posthog.Config{}
	if endpoint != "" {
		cfg.Endpoint = endpoint
	}

	client, err := posthog.NewWithConfig(apiKey, cfg)
	if err != nil {
		logger.Warn("failed to initialize PostHog", "error", err)
		return t
	}
	t.client = client
	return t
}

// Track enqueues an event.
func (t *Tracker) Track(event string, props map[string]interface{}) {
	if t == nil || t.client == nil {
		return
	}
	err := t.client.Enqueue(posthog.Capture{
		DistinctId: "backend",
		Event:      event,
		Properties: props,
	})
	if err != nil {
		t.logger.Warn("failed to enqueue analytics event", "event", event, "error", err)
	}
}

// Close flushes pending events.
func (t *Tracker) Close() {
	if t == nil || t.client == nil {
		return
	}
	t.client.Close()
}
