// Package loki pushes credential lifecycle events to Grafana Loki.
//
// Streams are keyed by low-cardinality labels (job, stage, event type, source
// plus any static labels of the client). Per-principal identifiers travel as
// structured metadata on each line instead.
package loki

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"trial-access-bot/internal/telemetry"
)

// Job is the job label on every stream.
const Job = "trialgate"

// Lifecycle stages used as the stage label.
const (
	StagePreference   = "preference"
	StageIssuance     = "issuance"
	StageRevocation   = "revocation"
	StageNotification = "notification"
	StageSweep        = "sweep"
	StageUnknown      = "unknown"
)

var labelSanitize = regexp.MustCompile(`[^a-zA-Z0-9_\-:]`)

// Entry is one log line of a stream.
type Entry struct {
	Time     time.Time
	Line     string
	Metadata map[string]string
}

// MarshalJSON encodes e as a push API value: [ns, line] or [ns, line, metadata].
func (e Entry) MarshalJSON() ([]byte, error) {
	ts := strconv.FormatInt(e.Time.UnixNano(), 10)
	if len(e.Metadata) == 0 {
		return json.Marshal([2]string{ts, e.Line})
	}
	return json.Marshal([]any{ts, e.Line, e.Metadata})
}

// Stream is a labelled set of entries.
type Stream struct {
	Labels  map[string]string `json:"stream"`
	Entries []Entry           `json:"values"`
}

// PushRequest is the body of POST /loki/api/v1/push.
type PushRequest struct {
	Streams []Stream `json:"streams"`
}

// Client pushes to one Loki instance.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	// Labels are added to every stream pushed by this client.
	Labels map[string]string
}

// NewClient returns a client for baseURL (e.g. http://localhost:3100) with a 10s HTTP timeout.
func NewClient(baseURL string, labels map[string]string) *Client {
	return &Client{
		BaseURL:    baseURL,
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
		Labels:     labels,
	}
}

// Stage maps a lifecycle event type to the stage it belongs to.
func Stage(eventType string) string {
	switch eventType {
	case telemetry.EventPreferenceSet:
		return StagePreference
	case telemetry.EventCredentialIssued, telemetry.EventIssuanceRejected, telemetry.EventIssuanceFailed:
		return StageIssuance
	case telemetry.EventAccessRevoked, telemetry.EventRevocationFailed:
		return StageRevocation
	case telemetry.EventNotificationFailed:
		return StageNotification
	case telemetry.EventSweepCompleted:
		return StageSweep
	}
	return StageUnknown
}

// EventEntry decodes a lifecycle event (a Kafka message value) into stream labels
// and an entry carrying the raw JSON as its line. Input that does not decode is
// kept verbatim under stage=unknown with the current time.
func EventEntry(raw []byte) (map[string]string, Entry) {
	entry := Entry{Time: time.Now().UTC(), Line: string(raw)}
	var ev telemetry.LifecycleEvent
	if err := json.Unmarshal(raw, &ev); err != nil || ev.EventType == "" {
		return map[string]string{"stage": StageUnknown}, entry
	}

	labels := map[string]string{
		"stage":      Stage(ev.EventType),
		"event_type": ev.EventType,
		"source":     ev.Source,
	}
	if !ev.CreatedAt.IsZero() {
		entry.Time = ev.CreatedAt
	}
	meta := map[string]string{}
	if ev.ID != "" {
		meta["event_id"] = ev.ID
	}
	if ev.PrincipalID != 0 {
		meta["principal_id"] = strconv.FormatInt(ev.PrincipalID, 10)
	}
	if runID := ev.Metadata["run_id"]; runID != "" {
		meta["run_id"] = runID
	}
	if len(meta) > 0 {
		entry.Metadata = meta
	}
	return labels, entry
}

// PushEvent pushes one lifecycle event as produced by the Kafka emitter.
func (c *Client) PushEvent(ctx context.Context, raw []byte) error {
	labels, entry := EventEntry(raw)
	return c.Push(ctx, labels, entry)
}

// Push sends entries as a single stream labelled with labels and the client's static labels.
// Returns an error if the HTTP request fails or Loki returns non-2xx.
func (c *Client) Push(ctx context.Context, labels map[string]string, entries ...Entry) error {
	if c == nil || c.BaseURL == "" {
		return errors.New("loki: base URL is empty")
	}
	if len(entries) == 0 {
		return nil
	}
	payload, err := json.Marshal(PushRequest{Streams: []Stream{{
		Labels:  c.streamLabels(labels),
		Entries: entries,
	}}})
	if err != nil {
		return fmt.Errorf("loki: encode push: %w", err)
	}
	url := strings.TrimSuffix(c.BaseURL, "/") + "/loki/api/v1/push"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	httpClient := c.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("loki: push: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("loki: push returned %s", resp.Status)
	}
	return nil
}

func (c *Client) streamLabels(labels map[string]string) map[string]string {
	out := make(map[string]string, len(c.Labels)+len(labels)+1)
	for _, set := range []map[string]string{c.Labels, labels} {
		for k, v := range set {
			if sanitized := labelSanitize.ReplaceAllString(strings.TrimSpace(v), "_"); sanitized != "" {
				out[k] = sanitized
			}
		}
	}
	out["job"] = Job
	return out
}
