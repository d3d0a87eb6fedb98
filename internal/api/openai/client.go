package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"autotag/internal/core/genre"
	"autotag/internal/shared"

	"go.uber.org/zap"
)

const DefaultBaseURL = "https://api.openai.com"

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens"`
}

type chatResponse struct {
	Choices []struct {
		Message message `json:"message"`
	} `json:"choices"`
}

// Client classifies tracks with the chat completions API. Each request is
// independent: the instructions go in as the system message every time.
type Client struct {
	apiKey  string
	model   string
	baseURL string
	log     *zap.Logger
	client  *http.Client
}

func NewClient(apiKey, model, baseURL string, log *zap.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		apiKey:  apiKey,
		model:   model,
		baseURL: strings.TrimRight(baseURL, "/"),
		log:     log,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (c *Client) Name() string { return "openai" }

func (c *Client) Classify(ctx context.Context, title, artist string) (string, error) {
	response, err := c.callOpenAI(ctx, genre.Query(title, artist))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(response), nil
}

func (c *Client) callOpenAI(ctx context.Context, prompt string) (string, error) {
	if c.apiKey == "" {
		return "", shared.Permanent(fmt.Errorf("openai API key is not set"))
	}

	payload := chatRequest{
		Model: c.model,
		Messages: []message{
			{Role: "system", Content: genre.Instructions},
			{Role: "user", Content: prompt},
		},
		Temperature: 0.2,
		MaxTokens:   300,
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return "", shared.Permanent(fmt.Errorf("failed to marshal request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/chat/completions", bytes.NewBuffer(jsonData))
	if err != nil {
		return "", shared.Permanent(fmt.Errorf("failed to create request: %w", err))
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.apiKey))

	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", shared.Transient(fmt.Errorf("failed to send request: %w", err), 0)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		httpErr := &shared.HTTPError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Message:    shared.TruncateString(string(body), 200),
		}
		if resp.StatusCode == http.StatusTooManyRequests {
			return "", shared.Transient(httpErr, retryAfter(resp.Header.Get("Retry-After")))
		}
		return "", shared.ClassifyHTTPError(httpErr)
	}

	var chatResp chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return "", shared.Transient(fmt.Errorf("failed to decode response: %w", err), 0)
	}

	if len(chatResp.Choices) == 0 {
		return "", shared.Permanent(fmt.Errorf("no response from OpenAI"))
	}

	c.log.Debug("openai classification", zap.String("prompt", prompt))
	return chatResp.Choices[0].Message.Content, nil
}

// retryAfter reads a Retry-After header given in seconds.
func retryAfter(header string) time.Duration {
	secs, err := strconv.Atoi(strings.TrimSpace(header))
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}
