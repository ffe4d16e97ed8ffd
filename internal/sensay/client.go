package sensay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"sensaygw/internal/config"
	"sensaygw/internal/models"
)

const (
	replicaPlaceholder = "{replica}"
	maxDiagnosticBody  = 2048
)

// ErrNoReply signals a successful upstream response whose reply field was
// absent or not a string. Callers substitute a placeholder instead of failing.
var ErrNoReply = errors.New("upstream reply content missing")

// UpstreamError reports that every fallback variant failed, carrying one
// attempt record per variant in the order they were tried.
type UpstreamError struct {
	Attempts []models.Attempt
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("all %d upstream attempts failed", len(e.Attempts))
}

// Client talks to the Sensay replica API. It is a compatibility shim: rather
// than assuming one endpoint convention it walks an ordered list of candidate
// request variants with a hard per-attempt timeout.
type Client struct {
	baseURL    string
	secret     string
	replica    string
	version    string
	timeout    time.Duration
	variants   []Variant
	httpClient *http.Client
}

// NewClient validates the upstream configuration once, at startup.
func NewClient(cfg config.SensayConfig) (*Client, error) {
	if cfg.APIBaseURL == "" {
		return nil, errors.New("sensay api base url required")
	}
	if cfg.OrganizationSecret == "" {
		return nil, errors.New("sensay organization secret required")
	}
	if cfg.ReplicaID == "" {
		return nil, errors.New("sensay replica id required")
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.APIBaseURL, "/"),
		secret:     cfg.OrganizationSecret,
		replica:    cfg.ReplicaID,
		version:    cfg.APIVersion,
		timeout:    cfg.AttemptTimeout(),
		variants:   defaultVariants(),
		httpClient: &http.Client{},
	}, nil
}

type messagesPayload struct {
	Messages []models.ChatMessage `json:"messages"`
}

type contentPayload struct {
	Content string `json:"content"`
}

// completionResponse covers both reply shapes the replica API is known to
// return: the OpenAI-style nested choices list and a flat content field.
// Content is decoded loosely so a non-string value can be detected instead of
// failing the whole unmarshal.
type completionResponse struct {
	Content any `json:"content"`
	Choices []struct {
		Message struct {
			Content any `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Complete sends the conversation to the replica API, trying each variant in
// order until one succeeds. It returns the assistant reply and the attempt
// records accumulated along the way. When every variant fails the error is an
// *UpstreamError; when a variant succeeds but carries no usable reply field
// the error is ErrNoReply.
func (c *Client) Complete(ctx context.Context, messages []models.ChatMessage) (string, []models.Attempt, error) {
	if len(messages) == 0 {
		return "", nil, errors.New("at least one message is required")
	}

	var attempts []models.Attempt
	for _, v := range c.variants {
		reply, attempt, err := c.try(ctx, v, messages)
		if err == nil {
			return reply, attempts, nil
		}
		if errors.Is(err, ErrNoReply) {
			// Transport-level success; do not fall through to the next variant.
			return "", attempts, ErrNoReply
		}
		if ctx.Err() != nil {
			// The caller's context is gone; further variants would fail the same way.
			attempts = append(attempts, attempt)
			break
		}
		log.Printf("sensay: variant %s failed: %v", v.Label, err)
		attempts = append(attempts, attempt)
	}
	return "", attempts, &UpstreamError{Attempts: attempts}
}

// try issues a single variant request with its own timeout so one slow
// candidate cannot stall the whole fallback chain.
func (c *Client) try(ctx context.Context, v Variant, messages []models.ChatMessage) (string, models.Attempt, error) {
	url := c.baseURL + strings.ReplaceAll(v.Path, replicaPlaceholder, c.replica)
	attempt := models.Attempt{Label: v.Label, URL: url}

	var payload any
	switch v.Payload {
	case payloadLastContent:
		payload = contentPayload{Content: messages[len(messages)-1].Content}
	default:
		payload = messagesPayload{Messages: messages}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		attempt.Error = err.Error()
		return "", attempt, fmt.Errorf("marshal request: %w", err)
	}

	attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		attempt.Error = err.Error()
		return "", attempt, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.version != "" {
		req.Header.Set("X-API-Version", c.version)
	}
	switch v.Auth {
	case authBearer:
		req.Header.Set("Authorization", "Bearer "+c.secret)
	default:
		req.Header.Set("X-ORGANIZATION-SECRET", c.secret)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		attempt.Error = err.Error()
		return "", attempt, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		attempt.Status = resp.StatusCode
		attempt.Error = err.Error()
		return "", attempt, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		attempt.Status = resp.StatusCode
		attempt.Body = truncate(string(raw), maxDiagnosticBody)
		return "", attempt, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var parsed completionResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		attempt.Status = resp.StatusCode
		attempt.Error = err.Error()
		attempt.Body = truncate(string(raw), maxDiagnosticBody)
		return "", attempt, fmt.Errorf("unmarshal response: %w", err)
	}

	reply, ok := pickReply(parsed)
	if !ok {
		return "", attempt, ErrNoReply
	}
	return reply, attempt, nil
}

func pickReply(resp completionResponse) (string, bool) {
	if len(resp.Choices) > 0 {
		if s, ok := resp.Choices[0].Message.Content.(string); ok {
			return s, true
		}
		return "", false
	}
	s, ok := resp.Content.(string)
	return s, ok
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit]
}
