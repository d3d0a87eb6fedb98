// Package spotify looks up genres through the Spotify Web API. Spotify tags
// artists rather than tracks, so a matched track yields its artist's genres.
package spotify

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"autotag/internal/core/genre"
	"autotag/internal/core/search"
	"autotag/internal/shared"

	"github.com/zmb3/spotify/v2"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"go.uber.org/zap"
	"golang.org/x/oauth2/clientcredentials"
)

const searchLimit = 5

// SpotifyClient holds the spotify client and other required fields
type SpotifyClient struct {
	client *spotify.Client
	ID     string
	Secret string
	log    *zap.Logger
}

// NewSpotifyClient creates a new spotify client
func NewSpotifyClient(id, secret string, log *zap.Logger) *SpotifyClient {
	if log == nil {
		log = zap.NewNop()
	}
	return &SpotifyClient{
		ID:     id,
		Secret: secret,
		log:    log,
	}
}

// Authenticate fetches an app token with the client credentials flow.
func (s *SpotifyClient) Authenticate(ctx context.Context) error {
	config := &clientcredentials.Config{
		ClientID:     s.ID,
		ClientSecret: s.Secret,
		TokenURL:     spotifyauth.TokenURL,
	}
	token, err := config.Token(ctx)
	if err != nil {
		return shared.Permanent(fmt.Errorf("failed to get spotify token: %w", err))
	}

	httpClient := spotifyauth.New().Client(ctx, token)
	s.client = spotify.New(httpClient)
	return nil
}

func (s *SpotifyClient) Name() string { return "spotify" }

// SearchGenre finds the track and returns the first usable genre of the
// artist that best fits artistHint.
func (s *SpotifyClient) SearchGenre(ctx context.Context, title, artistHint string) (*genre.SearchMatch, error) {
	if s.client == nil {
		if err := s.Authenticate(ctx); err != nil {
			return nil, err
		}
	}

	query := title
	if artistHint != "" {
		query = artistHint + " " + title
	}
	results, err := s.client.Search(ctx, query, spotify.SearchTypeTrack, spotify.Limit(searchLimit))
	if err != nil {
		return nil, classify(err)
	}
	if results.Tracks == nil {
		return nil, nil
	}

	for _, track := range results.Tracks.Tracks {
		artist, ok := pickArtist(track.Artists, artistHint)
		if !ok {
			continue
		}
		cand := search.Candidate{Title: track.Name, Artist: artist.Name}
		if !search.Matches(title, artistHint, cand) {
			continue
		}

		full, err := s.client.GetArtist(ctx, artist.ID)
		if err != nil {
			return nil, classify(err)
		}
		for _, g := range full.Genres {
			if search.UsableGenre(g) {
				s.log.Debug("spotify match",
					zap.String("title", title),
					zap.String("track", track.Name),
					zap.String("artist", artist.Name),
					zap.String("genre", g))
				return &genre.SearchMatch{Genre: g, Artist: artist.Name}, nil
			}
		}
	}
	return nil, nil
}

// pickArtist prefers the credited artist named by the hint, then the first.
func pickArtist(artists []spotify.SimpleArtist, hint string) (spotify.SimpleArtist, bool) {
	if len(artists) == 0 {
		return spotify.SimpleArtist{}, false
	}
	if hint != "" {
		for _, a := range artists {
			if genre.RemixerMatches(hint, a.Name) {
				return a, true
			}
		}
	}
	return artists[0], true
}

func classify(err error) error {
	var apiErr spotify.Error
	if errors.As(err, &apiErr) {
		return shared.ClassifyHTTPError(&shared.HTTPError{
			StatusCode: apiErr.Status,
			Status:     http.StatusText(apiErr.Status),
			Message:    apiErr.Message,
		})
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return shared.Transient(fmt.Errorf("spotify request failed: %w", err), 0)
}
