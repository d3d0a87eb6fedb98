// Package musicbrainz searches MusicBrainz recordings for community genre
// tags.
package musicbrainz

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"autotag/internal/core/genre"
	"autotag/internal/core/search"
	"autotag/internal/shared"
)

// 1. Constants and types
const (
	defaultBaseURL    = "https://musicbrainz.org/ws/2/"
	defaultUserAgent  = "autotag/1.0 ( https://github.com/autotag )"
	defaultTimeout    = 30 * time.Second
	defaultRateLimit  = time.Second // MusicBrainz asks for at most one request per second
	defaultBurstLimit = 1
	defaultLimit      = 5
)

// Config holds configuration for MusicBrainz API client
type Config struct {
	BaseURL     string        `json:"base_url"`
	UserAgent   string        `json:"user_agent"`
	Timeout     time.Duration `json:"timeout"`
	RateLimit   time.Duration `json:"rate_limit"`
	BurstLimit  int           `json:"burst_limit"`
	SearchLimit int           `json:"search_limit"`
}

// Client represents a MusicBrainz API client
type Client struct {
	httpClient  *http.Client
	config      Config
	rateLimiter *rate.Limiter
	log         *zap.Logger
}

// 2. Constructor and configuration

// DefaultConfig returns sensible defaults for MusicBrainz API client
func DefaultConfig() Config {
	return Config{
		BaseURL:     defaultBaseURL,
		UserAgent:   defaultUserAgent,
		Timeout:     defaultTimeout,
		RateLimit:   defaultRateLimit,
		BurstLimit:  defaultBurstLimit,
		SearchLimit: defaultLimit,
	}
}

// NewClient creates a new MusicBrainz API client with default configuration
func NewClient(logger *zap.Logger) *Client {
	return NewClientWithConfig(DefaultConfig(), logger)
}

// NewClientWithConfig creates a new MusicBrainz API client with custom configuration
func NewClientWithConfig(config Config, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.SearchLimit <= 0 {
		config.SearchLimit = defaultLimit
	}
	return &Client{
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		config:      config,
		rateLimiter: rate.NewLimiter(rate.Every(config.RateLimit), config.BurstLimit),
		log:         logger,
	}
}

// GetConfig returns the current client configuration
func (c *Client) GetConfig() Config {
	return c.config
}

func (c *Client) Name() string { return "musicbrainz" }

// 3. Core HTTP methods (private)

// makeRequest creates and executes an HTTP request with proper headers
func (c *Client) makeRequest(ctx context.Context, path string) (*http.Response, error) {
	reqURL, err := url.Parse(c.config.BaseURL + path)
	if err != nil {
		return nil, fmt.Errorf("failed to parse URL: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("User-Agent", c.config.UserAgent)
	req.Header.Set("Accept", "application/json")

	return c.httpClient.Do(req)
}

// get makes a single GET request to the MusicBrainz API. Failures come back
// classified as transient or permanent.
func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	// Wait for rate limiter
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter error: %w", err)
	}

	resp, err := c.makeRequest(ctx, path)
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return nil, shared.ClassifyHTTPError(&shared.HTTPError{
				StatusCode: http.StatusGatewayTimeout,
				Status:     "Gateway Timeout",
				Message:    err.Error(),
			})
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, shared.Transient(err, 0)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, shared.Transient(fmt.Errorf("failed to read response body: %w", err), 0)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, shared.ClassifyHTTPError(&shared.HTTPError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Message:    shared.TruncateString(string(body), 200),
		})
	}

	return body, nil
}

// 4. Public API methods

// SearchRecordings runs a free text recording search.
func (c *Client) SearchRecordings(ctx context.Context, title, artist string) ([]Recording, error) {
	if strings.TrimSpace(title) == "" {
		return nil, shared.Permanent(fmt.Errorf("title cannot be empty"))
	}

	query := buildRecordingQuery(title, artist)
	path := fmt.Sprintf("recording?query=%s&limit=%d&fmt=json", url.QueryEscape(query), c.config.SearchLimit)

	body, err := c.get(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("failed to search recordings: %w", err)
	}

	var searchResult struct {
		Recordings []Recording `json:"recordings"`
	}
	if err := json.Unmarshal(body, &searchResult); err != nil {
		return nil, shared.Permanent(fmt.Errorf("failed to unmarshal recording search result: %w", err))
	}
	return searchResult.Recordings, nil
}

// GetRecording fetches a recording with its genres and artist credits.
func (c *Client) GetRecording(ctx context.Context, mbid string) (*Recording, error) {
	if mbid == "" {
		return nil, shared.Permanent(fmt.Errorf("MBID cannot be empty"))
	}

	body, err := c.get(ctx, fmt.Sprintf("recording/%s?inc=genres+artist-credits&fmt=json", mbid))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch recording %s: %w", mbid, err)
	}

	var rec Recording
	if err := json.Unmarshal(body, &rec); err != nil {
		return nil, shared.Permanent(fmt.Errorf("failed to unmarshal recording: %w", err))
	}
	return &rec, nil
}

// GetArtistGenres fetches the genre tags of an artist.
func (c *Client) GetArtistGenres(ctx context.Context, mbid string) ([]Genre, error) {
	if mbid == "" {
		return nil, shared.Permanent(fmt.Errorf("MBID cannot be empty"))
	}

	body, err := c.get(ctx, fmt.Sprintf("artist/%s?inc=genres&fmt=json", mbid))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch artist %s: %w", mbid, err)
	}

	var artist struct {
		Genres []Genre `json:"genres"`
	}
	if err := json.Unmarshal(body, &artist); err != nil {
		return nil, shared.Permanent(fmt.Errorf("failed to unmarshal artist: %w", err))
	}
	return artist.Genres, nil
}

// SearchGenre finds the recording and returns its most voted genre, falling
// back to the genres of its first credited artist.
func (c *Client) SearchGenre(ctx context.Context, title, artistHint string) (*genre.SearchMatch, error) {
	recordings, err := c.SearchRecordings(ctx, title, artistHint)
	if err != nil {
		return nil, err
	}

	for _, rec := range recordings {
		cand := search.Candidate{Title: rec.Title, Artist: rec.ArtistName()}
		if !search.Matches(title, artistHint, cand) {
			continue
		}

		full, err := c.GetRecording(ctx, rec.ID)
		if err != nil {
			return nil, err
		}
		genres := full.Genres
		if len(genres) == 0 && len(full.ArtistCredit) > 0 {
			genres, err = c.GetArtistGenres(ctx, full.ArtistCredit[0].Artist.ID)
			if err != nil {
				return nil, err
			}
		}

		if g, ok := TopGenre(genres); ok {
			c.log.Debug("musicbrainz match",
				zap.String("title", title),
				zap.String("recording", rec.ID),
				zap.String("genre", g))
			return &genre.SearchMatch{Genre: g, Artist: full.ArtistName()}, nil
		}
	}
	return nil, nil
}

// 5. Helper/utility functions

// buildRecordingQuery constructs a free text search query. The artist hint
// is optional since remixers are rarely part of the artist credit.
func buildRecordingQuery(title, artist string) string {
	q := fmt.Sprintf("recording:(%s)", escapeLucene(title))
	if artist != "" {
		q += fmt.Sprintf(" OR artist:(%s)", escapeLucene(artist))
	}
	return q
}

var luceneEscaper = strings.NewReplacer(
	`\`, `\\`, `+`, `\+`, `-`, `\-`, `!`, `\!`, `(`, `\(`, `)`, `\)`,
	`{`, `\{`, `}`, `\}`, `[`, `\[`, `]`, `\]`, `^`, `\^`, `"`, `\"`,
	`~`, `\~`, `*`, `\*`, `?`, `\?`, `:`, `\:`, `/`, `\/`, `&`, `\&`, `|`, `\|`,
)

func escapeLucene(s string) string {
	return luceneEscaper.Replace(s)
}

// TopGenre returns the usable genre with the highest vote count. Ties keep
// alphabetical order.
func TopGenre(genres []Genre) (string, bool) {
	usable := make([]Genre, 0, len(genres))
	for _, g := range genres {
		if search.UsableGenre(g.Name) {
			usable = append(usable, g)
		}
	}
	if len(usable) == 0 {
		return "", false
	}
	sort.SliceStable(usable, func(i, j int) bool {
		if usable[i].Count != usable[j].Count {
			return usable[i].Count > usable[j].Count
		}
		return usable[i].Name < usable[j].Name
	})
	return usable[0].Name, true
}

// Data types

// Artist represents a MusicBrainz artist
type Artist struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ArtistCredit represents artist credit information
type ArtistCredit struct {
	Name       string `json:"name"`
	JoinPhrase string `json:"joinphrase"`
	Artist     Artist `json:"artist"`
}

// Genre is a community genre tag with its vote count
type Genre struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// Recording represents a MusicBrainz recording (track)
type Recording struct {
	ID           string         `json:"id"`
	Title        string         `json:"title"`
	Score        int            `json:"score"`
	ArtistCredit []ArtistCredit `json:"artist-credit"`
	Genres       []Genre        `json:"genres"`
	Length       int            `json:"length"` // Duration in milliseconds
}

// ArtistName joins the artist credit the way MusicBrainz displays it.
func (r Recording) ArtistName() string {
	var b strings.Builder
	for _, ac := range r.ArtistCredit {
		name := ac.Name
		if name == "" {
			name = ac.Artist.Name
		}
		b.WriteString(name)
		b.WriteString(ac.JoinPhrase)
	}
	return strings.TrimSpace(b.String())
}
