package jobs

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
)

// deliver sends completion notifications for job to all configured targets.
// Errors are logged but do not affect the sweep outcome.
func (m *Manager) deliver(job *Job) {
	for _, wh := range m.cfg.Webhooks {
		url := wh.URL()
		if url == "" {
			continue
		}

		var err error
		switch wh.Type {
		case "slack":
			err = m.sendSlack(url, job)
		case "http":
			err = m.sendHTTP(url, job)
		default:
			slog.Warn("jobs: unknown webhook type, skipping", "type", wh.Type)
			continue
		}

		if err != nil {
			slog.Error("jobs: webhook delivery failed",
				"type", wh.Type,
				"job", job.ID,
				"err", err,
			)
		} else {
			slog.Debug("jobs: webhook delivered",
				"type", wh.Type,
				"job", job.ID,
				"status", job.Status,
			)
		}
	}
}

func (m *Manager) sendSlack(url string, job *Job) error {
	text := fmt.Sprintf("Sweep `%s` (%s, %s) finished: *%s*, %d/%d points",
		job.ID, job.Spec.Params.Instrument, job.Spec.Params.Filter,
		job.Status, job.Completed, job.Total)
	if job.Status == StatusFailed {
		text += "\n> " + job.Error
	} else if job.Summary != nil && job.Summary.LimitingMag != 0 {
		text += fmt.Sprintf("\nlimiting magnitude %.3f AB at S/N %g",
			job.Summary.LimitingMag, job.Spec.TargetSNR)
	}
	body, _ := json.Marshal(map[string]string{"text": text})
	return m.post(url, body)
}

func (m *Manager) sendHTTP(url string, job *Job) error {
	body, _ := json.Marshal(map[string]interface{}{"job": job})
	return m.post(url, body)
}

func (m *Manager) post(url string, body []byte) error {
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned HTTP %d", resp.StatusCode)
	}
	return nil
}
