// Package soundcloud searches SoundCloud tracks for the genre their
// uploader tagged them with.
package soundcloud

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"autotag/internal/core/genre"
	"autotag/internal/core/search"
	"autotag/internal/shared"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	DefaultBaseURL = "https://api-v2.soundcloud.com"
	searchLimit    = 5
)

type searchResponse struct {
	Collection []track `json:"collection"`
}

type track struct {
	Kind  string `json:"kind"`
	Title string `json:"title"`
	Genre string `json:"genre"`
	User  struct {
		Username string `json:"username"`
	} `json:"user"`
}

// Client queries the SoundCloud v2 search API with a web client ID and the
// OAuth token of a logged in session.
type Client struct {
	clientID  string
	authToken string
	baseURL   string
	http      *http.Client
	limiter   *rate.Limiter
	log       *zap.Logger
}

// NewClient creates a client allowing one search per second.
func NewClient(clientID, authToken, baseURL string, logger *zap.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		clientID:  clientID,
		authToken: authToken,
		baseURL:   strings.TrimRight(baseURL, "/"),
		http:      &http.Client{Timeout: 20 * time.Second},
		limiter:   rate.NewLimiter(rate.Every(time.Second), 1),
		log:       logger,
	}
}

func (c *Client) Name() string { return "soundcloud" }

// SearchGenre searches "artistHint title" and returns the first track that
// passes the keyword match with a usable genre.
func (c *Client) SearchGenre(ctx context.Context, title, artistHint string) (*genre.SearchMatch, error) {
	q := title
	if artistHint != "" {
		q = artistHint + " " + title
	}

	tracks, err := c.search(ctx, q)
	if err != nil {
		return nil, err
	}

	candidates := make([]search.Candidate, 0, len(tracks))
	for _, t := range tracks {
		if t.Kind != "track" {
			continue
		}
		candidates = append(candidates, search.Candidate{
			Title:  t.Title,
			Artist: strings.ToLower(t.User.Username),
			Genre:  t.Genre,
		})
	}

	match := search.Best(title, artistHint, candidates)
	if match != nil {
		c.log.Debug("soundcloud match", zap.String("title", title), zap.String("genre", match.Genre), zap.String("artist", match.Artist))
	}
	return match, nil
}

func (c *Client) search(ctx context.Context, q string) ([]track, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("q", q)
	params.Set("limit", strconv.Itoa(searchLimit))
	params.Set("client_id", c.clientID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/search/tracks?"+params.Encode(), nil)
	if err != nil {
		return nil, shared.Permanent(fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("User-Agent", shared.UserAgent)
	req.Header.Set("Accept", "application/json")
	if c.authToken != "" {
		req.Header.Set("Authorization", "OAuth "+c.authToken)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, shared.Transient(fmt.Errorf("soundcloud request failed: %w", err), 0)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, shared.ClassifyHTTPError(&shared.HTTPError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Message:    string(body),
		})
	}

	var result searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, shared.Transient(fmt.Errorf("failed to decode soundcloud response: %w", err), 0)
	}
	return result.Collection, nil
}
