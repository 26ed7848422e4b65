// Package syncer drains the offline queue and delivers event batches to
// the remote ingest service: compress, authenticate, POST, reconcile
// per-event results back into the queue, and categorize failures.
//
// Transport and auth failures never raise past the sync boundary - they
// downgrade to the returned Report so the invoking command can print a
// warning and stay responsive. Rejected events are never discarded: they
// stay queued with retry bookkeeping until the server accepts them.
package syncer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/chutedev/chute/internal/envelope"
	"github.com/chutedev/chute/internal/queue"
)

// batchTimeout bounds one batch POST. A submitted batch completes,
// times out, or network-fails as a whole; there is no mid-batch
// cancellation.
const batchTimeout = 60 * time.Second

// TokenSource supplies bearer tokens and the server base URL.
// Satisfied by *creds.Manager.
type TokenSource interface {
	ValidAccessToken(ctx context.Context) (string, error)
	ServerURL(ctx context.Context) (string, error)
}

// Sync outcomes.
const (
	OutcomeEmpty       = "empty"        // nothing queued
	OutcomeCompleted   = "completed"    // got per-event results (200 or structured 400)
	OutcomeAuthError   = "auth_error"   // no valid token; nothing submitted
	OutcomeAuthExpired = "auth_expired" // server rejected the batch with 401
	OutcomeServerError = "server_error" // non-2xx / transport failure; batch retained
)

// Failure is one rejected event from the last sync.
type Failure struct {
	EventID  string   `json:"event_id"`
	Error    string   `json:"error"`
	Category Category `json:"category"`
}

// Report summarizes one sync attempt.
type Report struct {
	GeneratedAt time.Time `json:"generated_at"`
	Outcome     string    `json:"outcome"`
	Total       int       `json:"total"`
	Synced      int       `json:"synced"`
	Duplicates  int       `json:"duplicates"`
	Failed      int       `json:"failed"`
	Failures    []Failure `json:"failures,omitempty"`
}

// Client is the batch sync client.
type Client struct {
	queue  *queue.Queue
	tokens TokenSource
	client *http.Client
	now    func() time.Time
	log    *slog.Logger
}

// ClientOption customizes a Client.
type ClientOption func(*Client)

// WithHTTPClient overrides the HTTP client (for tests). The 60-second
// batch timeout is the caller's responsibility when overriding.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(s *Client) { s.client = c }
}

// WithNow overrides the wall-clock source (for tests).
func WithNow(now func() time.Time) ClientOption {
	return func(s *Client) { s.now = now }
}

// WithLogger overrides the client's logger.
func WithLogger(log *slog.Logger) ClientOption {
	return func(s *Client) { s.log = log }
}

// NewClient creates a sync client over the given queue and token source.
func NewClient(q *queue.Queue, tokens TokenSource, opts ...ClientOption) *Client {
	c := &Client{
		queue:  q,
		tokens: tokens,
		client: &http.Client{Timeout: batchTimeout},
		now:    time.Now,
		log:    slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Sync drains up to 1000 events, transmits them, and reconciles the
// per-event results back into the queue.
//
// The returned error is reserved for programmer-error class failures
// (marshalling our own data); everything the network or server does
// wrong is reported through the Report, with all submitted events
// retained for the next sync.
func (c *Client) Sync(ctx context.Context) (*Report, error) {
	report := &Report{GeneratedAt: c.now()}

	records, err := c.queue.Drain(ctx, queue.MaxDrain)
	if err != nil {
		return nil, fmt.Errorf("sync: %w", err)
	}
	if len(records) == 0 {
		report.Outcome = OutcomeEmpty
		return report, nil
	}
	report.Total = len(records)

	token, err := c.tokens.ValidAccessToken(ctx)
	if err != nil {
		// No token obtainable: abort before submitting anything. The
		// queue is untouched and the user must re-authenticate.
		c.log.Warn("sync aborted: no valid access token", "error", err)
		report.Outcome = OutcomeAuthError
		return report, nil
	}

	serverURL, err := c.tokens.ServerURL(ctx)
	if err != nil {
		report.Outcome = OutcomeAuthError
		return report, nil
	}

	events := make([]*envelope.Event, len(records))
	for i, rec := range records {
		events[i] = rec.Event
	}

	body, err := compressBatch(events)
	if err != nil {
		return nil, fmt.Errorf("sync: %w", err)
	}

	url := strings.TrimRight(serverURL, "/") + "/api/v1/events/batch/"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("sync: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Content-Encoding", "gzip")
	req.Header.Set("Authorization", "Bearer "+token)

	c.log.Info("submitting batch", "events", len(events), "url", url)

	resp, err := c.client.Do(req)
	if err != nil {
		// Network failure: everything retained, categorized server_error.
		c.log.Warn("batch transmission failed", "error", err)
		c.rejectAll(ctx, report, records, fmt.Sprintf("network error: %v", err), CategoryServerError)
		report.Outcome = OutcomeServerError
		return report, nil
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		c.rejectAll(ctx, report, records, fmt.Sprintf("read response: %v", err), CategoryServerError)
		report.Outcome = OutcomeServerError
		return report, nil
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		c.reconcileResults(ctx, report, respBody)
		report.Outcome = OutcomeCompleted

	case resp.StatusCode == http.StatusBadRequest:
		c.reconcileBadRequest(ctx, report, records, respBody)
		report.Outcome = OutcomeCompleted

	case resp.StatusCode == http.StatusUnauthorized:
		// Credentials were already cleared (if at all) inside the
		// credential manager; here we only mark the batch.
		reason := topLevelError(respBody, "unauthorized")
		c.rejectAll(ctx, report, records, reason, CategoryAuthExpired)
		report.Outcome = OutcomeAuthExpired

	default:
		reason := topLevelError(respBody, fmt.Sprintf("server returned HTTP %d", resp.StatusCode))
		c.log.Warn("batch rejected by server", "status", resp.StatusCode)
		c.rejectAll(ctx, report, records, reason, CategoryServerError)
		report.Outcome = OutcomeServerError
	}

	c.log.Info("sync finished",
		"outcome", report.Outcome,
		"synced", report.Synced,
		"duplicates", report.Duplicates,
		"failed", report.Failed)

	return report, nil
}

// reconcileResults applies a 200 response: success and duplicate are
// both terminal removals (duplicate is not a failure - the event was
// already delivered); rejected events are retained with their reason.
func (c *Client) reconcileResults(ctx context.Context, report *Report, body []byte) {
	var parsed batchResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		c.log.Warn("unparseable 200 response; retaining batch", "error", err)
		return
	}

	var succeeded, duplicated []string
	for _, res := range parsed.Results {
		switch res.Status {
		case resultSuccess:
			succeeded = append(succeeded, res.EventID)
		case resultDuplicate:
			duplicated = append(duplicated, res.EventID)
		case resultRejected:
			c.rejectOne(ctx, report, res.EventID, res.Reason(), "")
		default:
			c.log.Warn("unknown result status; retaining event",
				"event_id", res.EventID, "status", res.Status)
		}
	}

	if err := c.queue.AckSuccess(ctx, succeeded); err != nil {
		c.log.Error("ack success failed", "error", err)
	} else {
		report.Synced = len(succeeded)
	}
	if err := c.queue.AckDuplicate(ctx, duplicated); err != nil {
		c.log.Error("ack duplicate failed", "error", err)
	} else {
		report.Duplicates = len(duplicated)
	}
}

// reconcileBadRequest applies a 400 response. A structured details list
// rejects each named event individually; a plain-string body applies
// the top-level error to every submitted event.
func (c *Client) reconcileBadRequest(ctx context.Context, report *Report, records []queue.Record, body []byte) {
	parsed := parseBadRequest(body)

	if parsed.IsList {
		for _, item := range parsed.Items {
			if item.EventID == "" {
				continue
			}
			c.rejectOne(ctx, report, item.EventID, item.reason(), "")
		}
		return
	}

	reason := parsed.Error
	if reason == "" {
		reason = "bad request"
	}
	c.rejectAll(ctx, report, records, reason, "")
}

// rejectOne retains one event with its reason. An empty category means
// "derive from the reason by keyword".
func (c *Client) rejectOne(ctx context.Context, report *Report, eventID, reason string, category Category) {
	if category == "" {
		category = CategorizeError(reason)
	}
	if err := c.queue.AckRejected(ctx, eventID, reason); err != nil {
		c.log.Error("ack rejected failed", "event_id", eventID, "error", err)
		return
	}
	report.Failed++
	report.Failures = append(report.Failures, Failure{
		EventID:  eventID,
		Error:    reason,
		Category: category,
	})
}

// rejectAll retains every submitted event with one shared reason.
func (c *Client) rejectAll(ctx context.Context, report *Report, records []queue.Record, reason string, category Category) {
	for _, rec := range records {
		c.rejectOne(ctx, report, rec.Event.EventID, reason, category)
	}
}

// compressBatch serializes {"events": [...]} and gzips it.
func compressBatch(events []*envelope.Event) ([]byte, error) {
	raw, err := json.Marshal(map[string]any{"events": events})
	if err != nil {
		return nil, fmt.Errorf("marshal batch: %w", err)
	}

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(raw); err != nil {
		return nil, fmt.Errorf("compress batch: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("compress batch: %w", err)
	}
	return buf.Bytes(), nil
}

// topLevelError pulls the "error" field out of an error body, falling
// back when the body is not JSON.
func topLevelError(body []byte, fallback string) string {
	var e struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &e); err == nil && e.Error != "" {
		return e.Error
	}
	return fallback
}
