package genre

import (
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"
)

// Source identifies where a genre candidate came from.
type Source int

const (
	SourceAI Source = iota
	SourceTitleEmbedded
	SourceExternalSearch
)

func (s Source) String() string {
	switch s {
	case SourceTitleEmbedded:
		return "title"
	case SourceExternalSearch:
		return "search"
	default:
		return "ai"
	}
}

// Candidate is a genre proposal considered while resolving a track.
type Candidate struct {
	Source   Source
	RawGenre string
	// ArtistEvidence is the artist reported by the search service, if any.
	ArtistEvidence string
}

// SearchMatch is the best hit returned by an external genre search.
type SearchMatch struct {
	Genre  string
	Artist string
}

// SkipReason explains why a track produced no tags. Skipped tracks stay out
// of the ledger so the next run picks them up again.
type SkipReason string

const (
	SkipNone             SkipReason = ""
	SkipNoClassification SkipReason = "no usable classification"
	SkipGenreRejected    SkipReason = "genre rejected by validation"
	SkipUnknownGenre     SkipReason = "unknown genre"
	SkipUnrated          SkipReason = "genre missing from energy map"
)

// Decision is the outcome of resolving one track.
type Decision struct {
	Genre        string
	Source       Source
	Rating       int
	HasRating    bool
	MashupExempt bool
	Skip         SkipReason

	Remix RemixInfo
	Reply Reply
}

// Skipped reports whether the track must be left untouched.
func (d Decision) Skipped() bool {
	return d.Skip != SkipNone
}

var clubWord = regexp.MustCompile(`\bclub\b`)

// Reconciler picks one canonical genre per track from the classifier reply,
// the title and an optional search result.
type Reconciler struct {
	Energy        EnergyMap
	Validator     Validator
	SearchEnabled bool

	logger *zap.Logger
}

// NewReconciler creates a reconciler. A nil logger discards output.
func NewReconciler(energy EnergyMap, searchEnabled bool, logger *zap.Logger) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{
		Energy:        energy,
		SearchEnabled: searchEnabled,
		logger:        logger,
	}
}

func (r *Reconciler) log() *zap.Logger {
	if r.logger == nil {
		return zap.NewNop()
	}
	return r.logger
}

// Inspect runs the title extractors for a parsed reply.
func (r *Reconciler) Inspect(title string, reply Reply) RemixInfo {
	return Analyze(title, reply.IsRemix, r.Energy)
}

// NeedsSearch reports whether an external genre search would be consulted
// for this track: a remix whose title carries no genre and names a remixer.
func (r *Reconciler) NeedsSearch(reply Reply, info RemixInfo) bool {
	return r.SearchEnabled && reply.IsRemix && info.EmbeddedGenre == "" && info.RemixerName != ""
}

// Resolve turns the classifier reply and title signals into a Decision.
// match is the search result for remixes, nil when no search was made or
// nothing was found.
func (r *Reconciler) Resolve(title string, reply Reply, info RemixInfo, match *SearchMatch) Decision {
	d := Decision{Remix: info, Reply: reply}
	if reply.Empty() {
		d.Skip = SkipNoClassification
		return d
	}

	fallback := reply.Genre
	chosen := r.choose(title, reply, info, match)
	d.Source = chosen.Source

	genre := r.Validator.Validate(chosen.RawGenre, title, info.RemixerName, reply.OriginalArtists)
	if genre == "" && chosen.RawGenre != fallback {
		r.log().Debug("chosen genre rejected, falling back to classifier genre",
			zap.String("title", title),
			zap.String("rejected", chosen.RawGenre),
			zap.String("fallback", fallback))
		genre = r.Validator.Validate(fallback, title, info.RemixerName, reply.OriginalArtists)
		d.Source = SourceAI
	}
	if genre == "" {
		d.Skip = SkipGenreRejected
		return d
	}

	genre = withSuffixes(NormalizeCase(genre), info)
	d.Genre = genre

	if genre == "" || strings.EqualFold(genre, "unknown") {
		d.Skip = SkipUnknownGenre
		return d
	}

	d.Rating, d.HasRating = r.Energy.Rate(genre)
	if !d.HasRating {
		if IsMashup(genre) {
			d.MashupExempt = true
			return d
		}
		d.Skip = SkipUnrated
	}
	return d
}

// choose applies the source priority: originals keep the classifier genre,
// remixes prefer the title, then a search hit whose artist is the remixer.
func (r *Reconciler) choose(title string, reply Reply, info RemixInfo, match *SearchMatch) Candidate {
	ai := Candidate{Source: SourceAI, RawGenre: reply.Genre}
	if !reply.IsRemix {
		return ai
	}
	if info.EmbeddedGenre != "" {
		return Candidate{Source: SourceTitleEmbedded, RawGenre: info.EmbeddedGenre}
	}
	if !r.SearchEnabled || info.RemixerName == "" || match == nil || match.Genre == "" {
		return ai
	}
	if !RemixerMatches(info.RemixerName, match.Artist) {
		r.log().Info("search artist does not match remixer, keeping classifier genre",
			zap.String("title", title),
			zap.String("remixer", info.RemixerName),
			zap.String("search_artist", match.Artist))
		return ai
	}
	return Candidate{
		Source:         SourceExternalSearch,
		RawGenre:       SortGenre(match.Genre),
		ArtistEvidence: match.Artist,
	}
}

// RemixerMatches reports whether any word of the remixer name longer than
// two characters appears in the reported artist, ignoring case.
func RemixerMatches(remixer, artist string) bool {
	artist = strings.ToLower(artist)
	if artist == "" {
		return false
	}
	for _, kw := range strings.Fields(strings.ToLower(remixer)) {
		if len(kw) > 2 && strings.Contains(artist, kw) {
			return true
		}
	}
	return false
}

// withSuffixes appends the Club and Transition markers the title calls for
// and restores alphabetical component order.
func withSuffixes(genre string, info RemixInfo) string {
	lower := strings.ToLower(genre)
	if info.IsClubMix && !clubWord.MatchString(lower) {
		genre = fmt.Sprintf("%s%sClub", genre, Separator)
	}
	if info.IsTransition && !strings.Contains(lower, "transition") {
		genre = fmt.Sprintf("%s%sTransition", genre, Separator)
	}
	return SortGenre(genre)
}
