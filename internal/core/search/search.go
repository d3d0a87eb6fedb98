// Package search decides whether a catalogue hit is the track being tagged
// and wraps the configured GenreSearcher with logging and retries.
package search

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"autotag/internal/core/genre"
	"autotag/internal/interfaces"
	"autotag/internal/shared"

	"go.uber.org/zap"
)

// minKeywordLen is the shortest title word that counts as a keyword.
const minKeywordLen = 4

var nonWord = regexp.MustCompile(`[^\p{L}\p{N}\s]+`)

// Keywords returns the lowercase words of s longer than three characters.
func Keywords(s string) []string {
	clean := nonWord.ReplaceAllString(strings.ToLower(s), " ")
	var out []string
	for _, w := range strings.Fields(clean) {
		if len(w) >= minKeywordLen {
			out = append(out, w)
		}
	}
	return out
}

// Candidate is one catalogue hit.
type Candidate struct {
	Title  string
	Artist string
	Genre  string
}

// ignoredGenres are catalogue genres that carry no information.
var ignoredGenres = map[string]bool{
	"":        true,
	"unknown": true,
	"other":   true,
}

// UsableGenre reports whether a catalogue genre is worth returning.
func UsableGenre(g string) bool {
	return !ignoredGenres[strings.ToLower(strings.TrimSpace(g))]
}

// Matches reports whether c is the searched title. Two title keywords must
// appear in the candidate when an artist hint is given and three without
// one; a single keyword is enough when the artist also matches.
func Matches(title, artistHint string, c Candidate) bool {
	candTitle := strings.ToLower(c.Title)
	candArtist := strings.ToLower(c.Artist)

	hits := 0
	for _, kw := range Keywords(title) {
		if strings.Contains(candTitle, kw) {
			hits++
		}
	}

	artistMatch := false
	if artistHint != "" {
		for _, kw := range strings.Fields(strings.ToLower(artistHint)) {
			if len(kw) > 2 && (strings.Contains(candArtist, kw) || strings.Contains(candTitle, kw)) {
				artistMatch = true
				break
			}
		}
	}

	need := 3
	if artistHint != "" {
		need = 2
	}
	return hits >= need || (hits >= 1 && artistMatch)
}

// Best returns the first candidate that matches and has a usable genre.
func Best(title, artistHint string, candidates []Candidate) *genre.SearchMatch {
	for _, c := range candidates {
		if !UsableGenre(c.Genre) || !Matches(title, artistHint, c) {
			continue
		}
		return &genre.SearchMatch{Genre: strings.TrimSpace(c.Genre), Artist: c.Artist}
	}
	return nil
}

// Service runs genre searches for remixes. Search failures never fail a
// track: they are logged and treated as "no result".
type Service struct {
	searcher interfaces.GenreSearcher
	policy   shared.RetryPolicy
	logger   *zap.Logger
}

// NewService wraps searcher. A nil searcher yields a disabled service.
func NewService(searcher interfaces.GenreSearcher, policy shared.RetryPolicy, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{searcher: searcher, policy: policy, logger: logger}
}

// Enabled reports whether a searcher is configured.
func (s *Service) Enabled() bool {
	return s != nil && s.searcher != nil
}

// Name returns the provider name, or "" when disabled.
func (s *Service) Name() string {
	if !s.Enabled() {
		return ""
	}
	return s.searcher.Name()
}

// Lookup searches for title using the remixer as artist hint.
func (s *Service) Lookup(ctx context.Context, title, remixer string) *genre.SearchMatch {
	if !s.Enabled() {
		return nil
	}

	var match *genre.SearchMatch
	err := shared.Retry(ctx, s.policy, s.logger, s.searcher.Name()+" search", func(ctx context.Context) error {
		m, err := s.searcher.SearchGenre(ctx, title, remixer)
		if err != nil {
			return err
		}
		match = m
		return nil
	})
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			s.logger.Warn("genre search failed",
				zap.String("provider", s.searcher.Name()),
				zap.String("title", title),
				zap.Error(err))
		}
		return nil
	}
	if match != nil {
		s.logger.Debug("genre search hit",
			zap.String("provider", s.searcher.Name()),
			zap.String("title", title),
			zap.String("genre", match.Genre),
			zap.String("artist", match.Artist))
	}
	return match
}
