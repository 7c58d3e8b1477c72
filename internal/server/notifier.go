package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/GoSim-25-26J-441/spotrain/pkg/logger"
	"github.com/GoSim-25-26J-441/spotrain/pkg/utils"
)

// NotificationPayload is the JSON body posted to a run's callback URL.
type NotificationPayload struct {
	Run       *Run  `json:"run"`
	Timestamp int64 `json:"timestamp"` // unix ms when the notification was built
}

// Notifier posts run completion notifications with retries.
type Notifier struct {
	httpClient *http.Client
	maxRetries int
	backoff    utils.Backoff

	wg sync.WaitGroup
}

func NewNotifier() *Notifier {
	return &Notifier{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		maxRetries: 3,
		backoff:    utils.NewBackoff(time.Second, 10*time.Second, 2),
	}
}

// Notify sends run to callbackURL in the background. A "{run_id}" placeholder
// in the URL is replaced with the run id.
func (n *Notifier) Notify(callbackURL string, run *Run) {
	if callbackURL == "" || run == nil {
		return
	}
	finalURL := strings.ReplaceAll(callbackURL, "{run_id}", run.ID)
	payload := NotificationPayload{Run: run, Timestamp: time.Now().UTC().UnixMilli()}

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		if err := n.send(context.Background(), finalURL, payload); err != nil {
			logger.Error("Failed to send notification",
				"callback_url", finalURL,
				"run_id", run.ID,
				"attempts", n.maxRetries+1,
				"error", err)
			return
		}
		logger.Debug("Notification sent", "callback_url", finalURL, "run_id", run.ID)
	}()
}

// Wait blocks until every pending notification has finished.
func (n *Notifier) Wait() { n.wg.Wait() }

func (n *Notifier) send(ctx context.Context, url string, payload NotificationPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	return n.backoff.Retry(ctx, n.maxRetries, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("User-Agent", "spotrain/1.0")

		resp, err := n.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		_, _ = io.Copy(io.Discard, resp.Body)
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return fmt.Errorf("callback returned status %d", resp.StatusCode)
		}
		return nil
	})
}
