// Package gemini classifies tracks through the Gemini generateContent API,
// keeping one chat session primed with the classification instructions.
package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"autotag/internal/core/genre"
	"autotag/internal/shared"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

const (
	DefaultBaseURL = "https://generativelanguage.googleapis.com"
	// DefaultQuotaDelay is used when a quota error carries no retryDelay.
	DefaultQuotaDelay = 60 * time.Second
	// maxHistoryTurns caps the exchanges kept after the priming turn.
	maxHistoryTurns = 20
)

var (
	ErrNoCandidates = errors.New("gemini returned no candidates")
	ErrMissingKey   = errors.New("gemini API key is not set")
)

type part struct {
	Text string `json:"text"`
}

type content struct {
	Role  string `json:"role"`
	Parts []part `json:"parts"`
}

type generateRequest struct {
	Contents []content `json:"contents"`
}

// Client is a Gemini chat session. It is safe for concurrent use but the
// session history is shared, so callers normally use it from one goroutine.
type Client struct {
	apiKey  string
	model   string
	baseURL string
	http    *http.Client
	log     *zap.Logger

	mu      sync.Mutex
	primed  []content
	history []content
}

// NewClient creates a Gemini client. baseURL may be empty.
func NewClient(apiKey, model, baseURL string, logger *zap.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		apiKey:  apiKey,
		model:   model,
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 60 * time.Second},
		log:     logger,
	}
}

func (c *Client) Name() string { return "gemini" }

// Prime sends the instruction prompt as the first chat turn. Classify primes
// lazily, so calling this is only needed to surface quota errors early.
func (c *Client) Prime(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.primeLocked(ctx)
}

func (c *Client) primeLocked(ctx context.Context) error {
	if c.primed != nil {
		return nil
	}
	turn := []content{{Role: "user", Parts: []part{{Text: genre.Instructions}}}}
	reply, err := c.generate(ctx, turn)
	if err != nil {
		return fmt.Errorf("failed to start chat session: %w", err)
	}
	c.primed = append(turn, content{Role: "model", Parts: []part{{Text: reply}}})
	c.log.Debug("gemini chat session started", zap.String("model", c.model))
	return nil
}

// Classify asks the model about one track and returns its raw reply.
func (c *Client) Classify(ctx context.Context, title, artist string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.primeLocked(ctx); err != nil {
		return "", err
	}

	question := content{Role: "user", Parts: []part{{Text: genre.Query(title, artist)}}}
	turns := make([]content, 0, len(c.primed)+len(c.history)+1)
	turns = append(turns, c.primed...)
	turns = append(turns, c.history...)
	turns = append(turns, question)

	reply, err := c.generate(ctx, turns)
	if err != nil {
		return "", err
	}

	c.history = append(c.history, question, content{Role: "model", Parts: []part{{Text: reply}}})
	if over := len(c.history) - 2*maxHistoryTurns; over > 0 {
		c.history = append([]content(nil), c.history[over:]...)
	}
	return strings.TrimSpace(reply), nil
}

func (c *Client) generate(ctx context.Context, turns []content) (string, error) {
	if c.apiKey == "" {
		return "", shared.Permanent(ErrMissingKey)
	}

	body, err := json.Marshal(generateRequest{Contents: turns})
	if err != nil {
		return "", shared.Permanent(fmt.Errorf("failed to encode request: %w", err))
	}

	endpoint := fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s",
		c.baseURL, url.PathEscape(c.model), url.QueryEscape(c.apiKey))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", shared.Permanent(fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", shared.UserAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", shared.Transient(fmt.Errorf("gemini request failed: %w", err), 0)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", shared.Transient(fmt.Errorf("failed to read gemini response: %w", err), 0)
	}

	if resp.StatusCode != http.StatusOK {
		return "", classifyError(resp, data)
	}

	text := gjson.GetBytes(data, "candidates.0.content.parts.0.text")
	if !text.Exists() {
		reason := gjson.GetBytes(data, "promptFeedback.blockReason").String()
		if reason != "" {
			return "", shared.Permanent(fmt.Errorf("%w: blocked (%s)", ErrNoCandidates, reason))
		}
		return "", shared.Permanent(ErrNoCandidates)
	}
	return text.String(), nil
}

// classifyError maps a non-200 response onto the error taxonomy. Quota
// exhaustion is transient and carries the delay the server asked for.
func classifyError(resp *http.Response, data []byte) error {
	status := gjson.GetBytes(data, "error.status").String()
	message := gjson.GetBytes(data, "error.message").String()
	if message == "" {
		message = shared.TruncateString(string(data), 200)
	}
	httpErr := &shared.HTTPError{StatusCode: resp.StatusCode, Status: resp.Status, Message: message}

	if resp.StatusCode == http.StatusTooManyRequests && status == "RESOURCE_EXHAUSTED" {
		return shared.Transient(httpErr, RetryDelay(data))
	}
	return shared.ClassifyHTTPError(httpErr)
}

// RetryDelay extracts the RetryInfo delay from a quota error body, rounded
// down to whole seconds plus one. It falls back to DefaultQuotaDelay.
func RetryDelay(data []byte) time.Duration {
	var raw string
	gjson.GetBytes(data, "error.details").ForEach(func(_, detail gjson.Result) bool {
		if d := detail.Get("retryDelay"); d.Exists() {
			raw = d.String()
			return false
		}
		return true
	})
	raw = strings.TrimSuffix(strings.TrimSpace(raw), "s")
	if raw == "" {
		return DefaultQuotaDelay
	}
	secs, err := strconv.ParseFloat(raw, 64)
	if err != nil || secs < 0 {
		return DefaultQuotaDelay
	}
	return time.Duration(int(math.Floor(secs))+1) * time.Second
}
