/*
[AI GENERATED - GOVERNANCE PROTOCOL]
──────────────────────────────────────────────────────────────
Tier:        L2
Logic:       PagerDuty Events API v2 integration. Fires alerts on
             schema drift (contract sentinel violations) and on a
             circuit breaker opening on the event ingestion path.
Context:     SRE needs pager escalation when the warehouse contract
             drifts or ingestion starts failing silently into the
             local spool.
Suitability: L2 — standard HTTP webhook integration.
──────────────────────────────────────────────────────────────
*/

package alerting

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// PagerDutyConfig holds configuration for PagerDuty Events API v2.
type PagerDutyConfig struct {
	RoutingKey  string
	Enabled     bool
	SourceName  string
	HTTPTimeout time.Duration
}

// DefaultPagerDutyConfig returns defaults.
func DefaultPagerDutyConfig() PagerDutyConfig {
	return PagerDutyConfig{
		RoutingKey:  "",
		Enabled:     false,
		SourceName:  "ledgerview",
		HTTPTimeout: 10 * time.Second,
	}
}

// Severity maps to PagerDuty alert severity.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityError    Severity = "error"
	SeverityWarning  Severity = "warning"
	SeverityInfo     Severity = "info"
)

// PagerDutyClient sends incidents to PagerDuty Events API v2.
type PagerDutyClient struct {
	cfg    PagerDutyConfig
	client *http.Client
	logger zerolog.Logger
}

const pagerDutyEventsURL = "https://events.pagerduty.com/v2/enqueue"

// NewPagerDutyClient creates a PagerDuty alerting client.
func NewPagerDutyClient(cfg PagerDutyConfig, logger zerolog.Logger) *PagerDutyClient {
	return &PagerDutyClient{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.HTTPTimeout},
		logger: logger.With().Str("component", "pagerduty").Logger(),
	}
}

// TriggerAlert fires a PagerDuty alert.
func (pd *PagerDutyClient) TriggerAlert(severity Severity, summary, dedupKey string, details map[string]interface{}) error {
	if !pd.cfg.Enabled || pd.cfg.RoutingKey == "" {
		pd.logger.Debug().Str("summary", summary).Msg("pagerduty disabled, alert suppressed")
		return nil
	}

	payload := map[string]interface{}{
		"routing_key":  pd.cfg.RoutingKey,
		"event_action": "trigger",
		"dedup_key":    dedupKey,
		"payload": map[string]interface{}{
			"summary":        summary,
			"severity":       string(severity),
			"source":         pd.cfg.SourceName,
			"component":      "ledgerview",
			"group":          "data-platform",
			"class":          "contract",
			"timestamp":      time.Now().UTC().Format(time.RFC3339),
			"custom_details": details,
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("pagerduty: marshal failed: %w", err)
	}

	resp, err := pd.client.Post(pagerDutyEventsURL, "application/json", bytes.NewReader(body))
	if err != nil {
		pd.logger.Error().Err(err).Str("dedup_key", dedupKey).Msg("pagerduty API call failed")
		return fmt.Errorf("pagerduty: API call failed: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 400 {
		pd.logger.Error().Int("status", resp.StatusCode).Str("dedup_key", dedupKey).Msg("pagerduty API error")
		return fmt.Errorf("pagerduty: HTTP %d", resp.StatusCode)
	}

	pd.logger.Info().Str("dedup_key", dedupKey).Str("severity", string(severity)).Msg("pagerduty alert triggered")
	return nil
}

// ResolveAlert resolves a previously triggered alert.
func (pd *PagerDutyClient) ResolveAlert(dedupKey string) error {
	if !pd.cfg.Enabled || pd.cfg.RoutingKey == "" {
		return nil
	}

	payload := map[string]interface{}{
		"routing_key":  pd.cfg.RoutingKey,
		"event_action": "resolve",
		"dedup_key":    dedupKey,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("pagerduty: marshal failed: %w", err)
	}

	resp, err := pd.client.Post(pagerDutyEventsURL, "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("pagerduty: resolve call failed: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	pd.logger.Info().Str("dedup_key", dedupKey).Msg("pagerduty alert resolved")
	return nil
}

// AlertSchemaDrift fires when the contract sentinel detects the warehouse
// no longer matches its catalog document.
func (pd *PagerDutyClient) AlertSchemaDrift(issueCount int, firstIssue string) error {
	return pd.TriggerAlert(
		SeverityCritical,
		fmt.Sprintf("ledgerview: contract drift detected (%d issues)", issueCount),
		"ledgerview-schema-drift",
		map[string]interface{}{
			"issue_count": issueCount,
			"first_issue": firstIssue,
		},
	)
}

// ResolveSchemaDrift resolves a previously triggered drift alert.
func (pd *PagerDutyClient) ResolveSchemaDrift() error {
	return pd.ResolveAlert("ledgerview-schema-drift")
}

// AlertCircuitOpen fires when a per-key or global ingestion circuit breaker
// opens, meaning events are now falling back to the local spool.
func (pd *PagerDutyClient) AlertCircuitOpen(key string) error {
	return pd.TriggerAlert(
		SeverityError,
		fmt.Sprintf("ledgerview: event ingestion circuit open for %s", key),
		fmt.Sprintf("ledgerview-circuit-%s", key),
		map[string]interface{}{"key": key},
	)
}

// AlertHighRejectionRate fires when event validation rejections exceed a
// threshold over a reporting window.
func (pd *PagerDutyClient) AlertHighRejectionRate(rejectedPct float64, window string) error {
	return pd.TriggerAlert(
		SeverityWarning,
		fmt.Sprintf("ledgerview: event rejection rate %.1f%% over %s", rejectedPct, window),
		"ledgerview-high-rejection-rate",
		map[string]interface{}{"rejected_percentage": rejectedPct, "window": window},
	)
}
