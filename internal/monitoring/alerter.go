// Package monitoring turns a finished sync run into operator alerts and
// Prometheus gauges, and delivers them to a webhook, textfile or pushgateway.
package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/aak-rpa/henstilling-sync/internal/config"
	"github.com/aak-rpa/henstilling-sync/internal/pipeline"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertRunAborted  AlertType = "run_aborted"
	AlertWriteErrors AlertType = "write_errors"
	AlertSkipRate    AlertType = "skip_rate"
	AlertCaseCap     AlertType = "case_cap"
)

// Alert represents a single alert to be sent.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	RunID     string         `json:"run_id,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Alerter evaluates a run result against configured thresholds
// and sends alerts via webhook when thresholds are breached.
type Alerter struct {
	cfg    config.MonitoringConfig
	client *http.Client
	now    func() time.Time
}

// NewAlerter creates a new Alerter with the given monitoring config.
func NewAlerter(cfg config.MonitoringConfig) *Alerter {
	return &Alerter{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
		now:    time.Now,
	}
}

// Evaluate checks a run against thresholds and returns any alerts. res may be
// nil when the run failed before it started.
func (a *Alerter) Evaluate(res *pipeline.RunResult, runErr error) []Alert {
	var alerts []Alert
	now := a.now().UTC()
	if res == nil {
		res = &pipeline.RunResult{}
	}

	if runErr != nil {
		alerts = append(alerts, Alert{
			Type:     AlertRunAborted,
			Severity: "high",
			Message:  fmt.Sprintf("Sync run aborted after %d case(s): %v", res.Cases, runErr),
			RunID:    res.RunID,
			Details: map[string]any{
				"cases":   res.Cases,
				"written": res.Written,
			},
			Timestamp: now,
		})
	}

	if res.WriteErrors > 0 {
		alerts = append(alerts, Alert{
			Type:     AlertWriteErrors,
			Severity: "high",
			Message:  fmt.Sprintf("%d record write(s) failed (%d written)", res.WriteErrors, res.Written),
			RunID:    res.RunID,
			Details: map[string]any{
				"write_errors": res.WriteErrors,
				"written":      res.Written,
			},
			Timestamp: now,
		})
	}

	// Skip rate only means something once enough cases were seen.
	skipped := res.SkippedTotal()
	if a.cfg.SkipRateThreshold > 0 && res.Cases >= a.cfg.MinCases && res.Cases > 0 {
		rate := float64(skipped) / float64(res.Cases)
		if rate > a.cfg.SkipRateThreshold {
			details := map[string]any{
				"skip_rate": rate,
				"threshold": a.cfg.SkipRateThreshold,
				"cases":     res.Cases,
			}
			for reason, n := range res.Skipped {
				details[string(reason)] = n
			}
			alerts = append(alerts, Alert{
				Type:     AlertSkipRate,
				Severity: "medium",
				Message: fmt.Sprintf(
					"Skip rate %.1f%% exceeds threshold %.1f%% (%d skipped / %d cases)",
					rate*100, a.cfg.SkipRateThreshold*100, skipped, res.Cases,
				),
				RunID:     res.RunID,
				Details:   details,
				Timestamp: now,
			})
		}
	}

	if res.Capped {
		alerts = append(alerts, Alert{
			Type:      AlertCaseCap,
			Severity:  "medium",
			Message:   fmt.Sprintf("Case cap reached after %d case(s); remaining cases were not synced", res.Cases),
			RunID:     res.RunID,
			Timestamp: now,
		})
	}

	return alerts
}

// SendAlerts delivers alerts to the configured webhook URL.
// Returns the number of alerts successfully sent.
func (a *Alerter) SendAlerts(ctx context.Context, alerts []Alert) int {
	if a.cfg.WebhookURL == "" || len(alerts) == 0 {
		return 0
	}

	sent := 0
	for _, alert := range alerts {
		if err := a.sendWebhook(ctx, alert); err != nil {
			zap.L().Error("monitoring: failed to send alert",
				zap.String("type", string(alert.Type)),
				zap.Error(err),
			)
			continue
		}
		zap.L().Info("monitoring: alert sent",
			zap.String("type", string(alert.Type)),
			zap.String("severity", alert.Severity),
		)
		sent++
	}
	return sent
}

// sendWebhook posts a single alert to the webhook URL.
func (a *Alerter) sendWebhook(ctx context.Context, alert Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return eris.Wrap(err, "monitoring: marshal alert")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return eris.Wrap(err, "monitoring: create webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "monitoring: webhook request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		return eris.Errorf("monitoring: webhook returned status %d", resp.StatusCode)
	}
	return nil
}
