package navidrome

import (
	"context"
	"fmt"
	"strings"

	subsonic "github.com/delucks/go-subsonic"
	"go.uber.org/zap"

	"autotag/internal/core/genre"
	"autotag/internal/shared"
)

// Authenticate checks the credentials with a salted token ping.
func (n *NavidromeClient) Authenticate() error {
	if err := n.Client.Authenticate(n.Password); err != nil {
		return shared.Permanent(fmt.Errorf("navidrome authentication failed: %w", err))
	}
	n.authenticated = true
	return nil
}

// SearchTrack returns the song whose title equals trackName, preferring one
// whose artist also matches. It returns nil when nothing fits.
func (n *NavidromeClient) SearchTrack(trackName, artistName string) (*subsonic.Child, error) {
	query := trackName
	if artistName != "" {
		query = fmt.Sprintf("%s %s", trackName, artistName)
	}
	n.log.Debug("searching navidrome", zap.String("query", query))

	searchResult, err := n.Client.Search2(query, map[string]string{"songCount": "10", "artistCount": "0", "albumCount": "0"})
	if err != nil {
		return nil, shared.Transient(fmt.Errorf("navidrome search failed: %w", err), 0)
	}
	if (searchResult == nil || len(searchResult.Song) == 0) && artistName != "" {
		// Fall back to the title alone; artist tags often differ between libraries
		searchResult, err = n.Client.Search2(trackName, map[string]string{"songCount": "10", "artistCount": "0", "albumCount": "0"})
		if err != nil {
			return nil, shared.Transient(fmt.Errorf("navidrome search failed: %w", err), 0)
		}
	}
	if searchResult == nil {
		return nil, nil
	}

	var titleOnly *subsonic.Child
	for _, song := range searchResult.Song {
		if !strings.EqualFold(strings.TrimSpace(song.Title), strings.TrimSpace(trackName)) {
			continue
		}
		if artistName == "" || genre.RemixerMatches(artistName, song.Artist) {
			return song, nil
		}
		if titleOnly == nil {
			titleOnly = song
		}
	}
	return titleOnly, nil
}

// MirrorRating sets the star rating of the matching song. A track that is
// not on the server is reported as shared.ErrTrackNotFound.
func (n *NavidromeClient) MirrorRating(ctx context.Context, title, artist string, rating int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if rating < genre.MinEnergy || rating > genre.MaxEnergy {
		return shared.Permanent(fmt.Errorf("rating %d out of range", rating))
	}
	if !n.authenticated {
		if err := n.Authenticate(); err != nil {
			return err
		}
	}

	song, err := n.SearchTrack(title, artist)
	if err != nil {
		return err
	}
	if song == nil {
		return fmt.Errorf("%s: %w", title, shared.ErrTrackNotFound)
	}

	if err := n.Client.SetRating(song.ID, rating); err != nil {
		return shared.Transient(fmt.Errorf("failed to set rating on %s: %w", song.ID, err), 0)
	}
	n.log.Debug("navidrome rating set", zap.String("id", song.ID), zap.String("title", title), zap.Int("rating", rating))
	return nil
}
