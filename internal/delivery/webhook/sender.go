// Package webhook provides a queue processor that delivers message payloads
// to an HTTP gateway (e.g. a WhatsApp business API bridge).
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/storeops/opsqueue/internal/queue"
	"golang.org/x/time/rate"
)

const defaultTimeout = 10 * time.Second

// Config holds webhook sender configuration. The gateway URL and rate limit
// are injected here rather than read from process environment at send time,
// so a sender's behavior is fixed at construction.
type Config struct {
	// WorkType is the queue work type this sender processes.
	WorkType string
	// URL is the gateway endpoint payloads are posted to.
	URL string
	// RateLimit caps outbound requests per second. Zero means no limit.
	RateLimit float64
	// Timeout bounds one delivery request.
	Timeout time.Duration
}

// Sender posts queue payloads to a webhook gateway. It implements
// queue.Processor.
type Sender struct {
	config  Config
	client  *http.Client
	limiter *rate.Limiter
}

// NewSender creates a webhook sender.
// Returns an error if the gateway URL is missing.
func NewSender(config Config) (*Sender, error) {
	if config.WorkType == "" {
		return nil, errors.New("webhook sender: work type is required")
	}
	if config.URL == "" {
		return nil, errors.New("webhook sender: gateway URL is required")
	}
	if config.Timeout == 0 {
		config.Timeout = defaultTimeout
	}

	var limiter *rate.Limiter
	if config.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(config.RateLimit), 1)
	}

	slog.Info("webhook sender configured",
		"work_type", config.WorkType,
		"rate_limit", config.RateLimit,
	)

	return &Sender{
		config:  config,
		client:  &http.Client{Timeout: config.Timeout},
		limiter: limiter,
	}, nil
}

// message is the envelope this sender understands. The queue treats
// payloads as opaque; the recipient check lives here, at the boundary.
type message struct {
	Recipient string `json:"recipient"`
}

// WorkType returns the queue work type this sender processes.
func (s *Sender) WorkType() string {
	return s.config.WorkType
}

// Process posts the payload to the gateway and maps the response to a queue
// outcome. A payload without a recipient is a legitimate skip, not a
// failure: the customer simply has no contact channel.
func (s *Sender) Process(ctx context.Context, payload json.RawMessage) queue.Result {
	var msg message
	if err := json.Unmarshal(payload, &msg); err != nil {
		return queue.Failure(fmt.Errorf("decode payload: %w", err))
	}
	if msg.Recipient == "" {
		return queue.Skip("recipient has no contact channel")
	}

	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return queue.Failure(fmt.Errorf("rate limiter: %w", err))
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.URL, bytes.NewReader(payload))
	if err != nil {
		return queue.Failure(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return queue.Failure(fmt.Errorf("send request: %w", err))
	}
	defer func() { _ = resp.Body.Close() }()

	return s.handleResponse(resp)
}

func (s *Sender) handleResponse(resp *http.Response) queue.Result {
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return queue.Failure(fmt.Errorf("read response: %w", err))
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		slog.Debug("webhook delivery accepted", "work_type", s.config.WorkType)
		return queue.Success()

	case resp.StatusCode == http.StatusUnprocessableEntity:
		// The gateway understood the request but the recipient cannot be
		// reached (unregistered number, closed account).
		return queue.Skip(fmt.Sprintf("gateway rejected recipient: %s", truncate(body)))

	default:
		return queue.Failure(fmt.Errorf("gateway returned %d: %s", resp.StatusCode, truncate(body)))
	}
}

func truncate(body []byte) string {
	s := string(bytes.TrimSpace(body))
	if len(s) > 200 {
		return s[:200] + "..."
	}
	return s
}
