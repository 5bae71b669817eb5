package extract

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/maintkg/maintkg/pkg/ai"
	"github.com/maintkg/maintkg/pkg/logger"
	"github.com/maintkg/maintkg/pkg/prompt"
)

var (
	// ErrExtractionTimeout marks a single extraction call that exceeded its
	// per-call timeout. Recoverable: the caller may retry or skip the chunk.
	ErrExtractionTimeout = errors.New("extraction call timed out")

	// ErrExtractionUnavailable marks provider or authentication failures.
	// Not recoverable within a run.
	ErrExtractionUnavailable = errors.New("extraction provider unavailable")
)

const (
	defaultTimeout = 60 * time.Second
	maxAttempts    = 5
)

// Client issues extraction requests to the LLM. It is the single point where
// "the model may not have obeyed instructions" is handled: the raw response
// is returned unparsed and crosses the validation boundary downstream.
type Client struct {
	aiClient ai.GraphAIClient
	builder  *prompt.Builder

	timeout     time.Duration
	maxRetries  int
	backoffBase time.Duration

	enforceFormat bool
}

// NewClientParams configures an extraction Client.
//
// MaxRetries is the total number of attempts per chunk; it defaults to 1
// (no retry) and is capped at 5. EnforceFormat additionally constrains the
// provider with a JSON schema for the response shape; validation still runs
// on the result either way.
type NewClientParams struct {
	AIClient ai.GraphAIClient
	Builder  *prompt.Builder

	Timeout     time.Duration
	MaxRetries  int
	BackoffBase time.Duration

	EnforceFormat bool
}

// NewClient creates an extraction client.
func NewClient(params NewClientParams) (*Client, error) {
	if params.AIClient == nil {
		return nil, fmt.Errorf("extract: AI client is required")
	}
	if params.Builder == nil {
		return nil, fmt.Errorf("extract: prompt builder is required")
	}

	c := &Client{
		aiClient:      params.AIClient,
		builder:       params.Builder,
		timeout:       params.Timeout,
		maxRetries:    params.MaxRetries,
		backoffBase:   params.BackoffBase,
		enforceFormat: params.EnforceFormat,
	}
	if c.timeout <= 0 {
		c.timeout = defaultTimeout
	}
	if c.maxRetries <= 0 {
		c.maxRetries = 1
	}
	if c.maxRetries > maxAttempts {
		c.maxRetries = maxAttempts
	}
	if c.backoffBase <= 0 {
		c.backoffBase = time.Second
	}
	return c, nil
}

// Extract sends one chunk of text to the model and returns the raw response
// text unchanged. Timeouts surface as ErrExtractionTimeout after the
// configured attempts are exhausted; provider and auth failures surface as
// ErrExtractionUnavailable immediately.
func (c *Client) Extract(ctx context.Context, chunkText string) (string, error) {
	p, err := c.builder.BuildExtraction(chunkText)
	if err != nil {
		return "", fmt.Errorf("failed to build extraction prompt: %w", err)
	}

	var lastErr error
	delay := c.backoffBase
	for attempt := 1; attempt <= c.maxRetries; attempt++ {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}

		raw, err := c.attempt(ctx, p)
		if err == nil {
			return raw, nil
		}
		if errors.Is(err, ErrExtractionUnavailable) {
			return "", err
		}
		if errors.Is(err, context.Canceled) {
			return "", err
		}
		lastErr = err

		if attempt < c.maxRetries {
			logger.Warn("[Extract] Attempt failed, retrying",
				"attempt", attempt, "delay", delay.String(), "err", err)
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
		}
	}
	return "", lastErr
}

func (c *Client) attempt(ctx context.Context, p string) (string, error) {
	rCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var raw string
	var err error
	if c.enforceFormat {
		var res wireResponse
		err = c.aiClient.GenerateCompletionWithFormat(
			rCtx,
			"extract_nodes_and_relationships",
			"Extract schema-typed nodes and relationships from a maintenance report.",
			p,
			&res,
		)
		if err == nil {
			var out []byte
			out, err = json.Marshal(res)
			raw = string(out)
		}
	} else {
		raw, err = c.aiClient.GenerateCompletion(rCtx, p)
	}

	if err != nil {
		if rCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
			// Deliberately detached from the context error chain so the
			// caller can retry.
			return "", fmt.Errorf("%w after %s: %v", ErrExtractionTimeout, c.timeout, err)
		}
		if isUnavailable(err) {
			return "", fmt.Errorf("%w: %v", ErrExtractionUnavailable, err)
		}
		return "", err
	}
	return raw, nil
}

func isUnavailable(err error) bool {
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{
		"401", "403", "unauthorized", "forbidden", "api key", "authentication",
		"not configured",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
