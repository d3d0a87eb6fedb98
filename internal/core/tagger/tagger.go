// Package tagger runs the per-track pipeline: classify, reconcile, write
// tags, update the library and remember the title.
package tagger

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"autotag/internal/core/genre"
	"autotag/internal/core/scanner"
	"autotag/internal/core/search"
	"autotag/internal/interfaces"
	"autotag/internal/library"
	"autotag/internal/shared"
	"autotag/internal/tagstore"

	"github.com/cheggaaa/pb/v3"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ErrClassifierRejected stops a run when the classifier refuses the
// credentials; every following track would fail the same way.
var ErrClassifierRejected = errors.New("classifier rejected the credentials")

var errLibraryDisabled = errors.New("library writes disabled for this run")

// Options tune a run.
type Options struct {
	DryRun       bool
	RequestDelay time.Duration
	Retry        shared.RetryPolicy
	ShowProgress bool
}

// Deps are the collaborators of a Tagger. Library and Mirror are optional.
type Deps struct {
	Classifier interfaces.Classifier
	Search     *search.Service
	Reconciler *genre.Reconciler
	Tags       interfaces.TagStore
	Library    interfaces.LibraryStore
	Mirror     interfaces.RatingMirror
	Ledger     interfaces.Ledger
	Warnings   interfaces.WarningCollectorService
	Console    interfaces.LoggerService
	Logger     *zap.Logger
}

// Stats counts what happened to the tracks of a run.
type Stats struct {
	Tagged         int
	Skipped        int
	Failed         int
	LibraryUpdated int
	Mirrored       int
}

// trackSavepoint brackets the library writes of one track.
const trackSavepoint = "autotag_track"

// Tagger processes tracks one at a time.
type Tagger struct {
	Deps
	opts    Options
	limiter *rate.Limiter

	// libraryBroken is set when a failed track could not be rolled back;
	// nothing more is written and the transaction is never committed.
	libraryBroken bool
	// awaitingCommit holds titles ledgered only once the library commits.
	awaitingCommit []string
}

// New creates a Tagger. Classifier requests are spaced by opts.RequestDelay.
func New(deps Deps, opts Options) *Tagger {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Warnings == nil {
		deps.Warnings = shared.NewWarningCollector(true)
	}
	if deps.Console == nil {
		deps.Console = quietConsole{}
	}
	limit := rate.Inf
	if opts.RequestDelay > 0 {
		limit = rate.Every(opts.RequestDelay)
	}
	return &Tagger{
		Deps:    deps,
		opts:    opts,
		limiter: rate.NewLimiter(limit, 1),
	}
}

// Decide classifies one title and resolves the canonical genre. It performs
// no writes.
func (t *Tagger) Decide(ctx context.Context, title, artist string) (genre.Decision, error) {
	if err := t.limiter.Wait(ctx); err != nil {
		return genre.Decision{}, err
	}

	var text string
	err := shared.Retry(ctx, t.opts.Retry, t.Logger, t.Classifier.Name()+" classify", func(ctx context.Context) error {
		var err error
		text, err = t.Classifier.Classify(ctx, title, artist)
		return err
	})
	if err != nil {
		return genre.Decision{}, err
	}
	t.Logger.Debug("classifier reply", zap.String("title", title), zap.String("reply", text))

	reply := genre.ParseReply(text)
	info := t.Reconciler.Inspect(title, reply)

	var match *genre.SearchMatch
	if t.Reconciler.NeedsSearch(reply, info) {
		match = t.Search.Lookup(ctx, title, info.RemixerName)
	}
	return t.Reconciler.Resolve(title, reply, info, match), nil
}

// Run tags every pending track of a scan, then commits the library and
// saves the ledger. Work finished before a cancellation is kept.
func (t *Tagger) Run(ctx context.Context, scan *scanner.Result) (Stats, error) {
	t.reportScan(scan)

	var stats Stats
	var bar *pb.ProgressBar
	if t.opts.ShowProgress && shared.IsTTY() && len(scan.Pending) > 0 {
		bar = pb.New(len(scan.Pending))
		bar.SetWriter(os.Stdout)
		bar.SetTemplateString(`{{ string . "prefix" }} {{ bar . }} {{ counters . }} | ETA {{ rtime . "%s" }}`)
		bar.Start()
	}

	var runErr error
	for _, track := range scan.Pending {
		if bar != nil {
			bar.Set("prefix", fmt.Sprintf("%-40s", shared.TruncateString(track.Title, 40)))
		}
		if err := t.processTrack(ctx, track, &stats); err != nil {
			runErr = err
			break
		}
		if bar != nil {
			bar.Increment()
		}
	}
	if bar != nil {
		bar.Finish()
	}

	if err := t.finish(); err != nil && runErr == nil {
		runErr = err
	}
	return stats, runErr
}

func (t *Tagger) reportScan(scan *scanner.Result) {
	for _, lb := range scan.LowBitrate {
		t.Warnings.AddLowBitrateWarning(filepath.Base(lb.Path), lb.Bitrate)
	}
	for _, path := range scan.MissingTitle {
		t.Warnings.AddMissingTitleWarning(filepath.Base(path))
	}
	for _, u := range scan.Unreadable {
		t.Warnings.AddMissingTitleWarning(fmt.Sprintf("%s (%v)", filepath.Base(u.Path), u.Err))
	}
}

// processTrack returns an error only when the whole run must stop.
func (t *Tagger) processTrack(ctx context.Context, track scanner.Track, stats *Stats) error {
	d, err := t.Decide(ctx, track.Title, track.Artist)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		stats.Failed++
		t.Warnings.AddClassificationFailedWarning(track.Title, err.Error())
		t.Console.Error("Classification failed for %s: %v", track.Title, err)
		if rejectedCredentials(err) {
			return fmt.Errorf("%w: %v", ErrClassifierRejected, err)
		}
		return nil
	}

	if d.Skipped() {
		stats.Skipped++
		t.reportSkip(track, d)
		return nil
	}

	if t.opts.DryRun {
		stats.Tagged++
		t.printDecision(track, d, "Would tag")
		return nil
	}

	if err := t.writeTags(track, d); err != nil {
		stats.Failed++
		t.Warnings.AddClassificationFailedWarning(track.Title, fmt.Sprintf("tag write failed: %v", err))
		t.Console.Error("Failed to write tags for %s: %v", track.Title, err)
		return nil
	}
	stats.Tagged++
	if !track.HasArtwork {
		t.Warnings.AddMissingArtworkWarning(filepath.Base(track.Path))
	}

	markDone := true
	if t.Library != nil {
		switch err := t.tagLibrary(ctx, track, d); {
		case err == nil:
			stats.LibraryUpdated++
			t.awaitingCommit = append(t.awaitingCommit, track.Title)
			markDone = false
		case errors.Is(err, errLibraryDisabled):
			markDone = false
		default:
			t.Warnings.AddLibraryWarning(track.Title, err.Error())
			t.Console.Warning("Library update failed for %s: %v", track.Title, err)
			// a track missing from the library is final; other failures are
			// retried on the next run
			markDone = errors.Is(err, shared.ErrTrackNotFound)
		}
	}

	if t.Mirror != nil && d.HasRating {
		if err := t.Mirror.MirrorRating(ctx, track.Title, track.Artist, d.Rating); err != nil {
			t.Warnings.AddRatingMirrorWarning(track.Title, err.Error())
			t.Logger.Debug("rating mirror failed", zap.String("title", track.Title), zap.Error(err))
		} else {
			stats.Mirrored++
		}
	}

	if markDone {
		t.Ledger.Mark(track.Title)
	}
	t.printDecision(track, d, "Tagged")
	return nil
}

// writeTags stores genre, artists, year and rating in the audio file.
func (t *Tagger) writeTags(track scanner.Track, d genre.Decision) error {
	update := tagstore.FieldUpdate{Genre: d.Genre}
	if d.Reply.Has(genre.FieldOriginalArtists) {
		update.Artist = d.Reply.OriginalArtists
	}
	if d.Reply.Has(genre.FieldReleaseYear) {
		update.Year = d.Reply.ReleaseYear
	}
	if err := t.Tags.WriteFields(track.Path, update); err != nil {
		return err
	}
	if d.HasRating {
		if err := t.Tags.WriteRating(track.Path, d.Rating); err != nil {
			return fmt.Errorf("failed to write rating: %w", err)
		}
	}
	return nil
}

type tagRef struct {
	name   string
	parent string
}

// libraryTags lists the custom tags a decision calls for.
func libraryTags(d genre.Decision) []tagRef {
	var tags []tagRef
	if d.Reply.Has(genre.FieldSituation) {
		if d.Reply.Situation.WantsBar() {
			tags = append(tags, tagRef{"Bar", library.CategorySituation})
		}
		if d.Reply.Situation.WantsClub() {
			tags = append(tags, tagRef{"Club", library.CategorySituation})
		}
	}
	if d.Reply.CommercialFriendly {
		tags = append(tags, tagRef{"Commercial", library.CategorySituation})
	}
	for _, c := range genre.Components(d.Genre) {
		tags = append(tags, tagRef{c, library.CategoryGenre})
	}
	return tags
}

// tagLibrary applies the decision to the library row. Either every change
// of the track is kept or none is.
func (t *Tagger) tagLibrary(ctx context.Context, track scanner.Track, d genre.Decision) error {
	if t.libraryBroken {
		return errLibraryDisabled
	}
	if err := t.Library.Savepoint(ctx, trackSavepoint); err != nil {
		return err
	}
	err := t.applyLibrary(ctx, track, d)
	if err == nil {
		return nil
	}
	if rbErr := t.Library.RollbackTo(context.WithoutCancel(ctx), trackSavepoint); rbErr != nil {
		t.libraryBroken = true
		t.Console.Error("Library changes of this run will be discarded: %v", rbErr)
		return errors.Join(err, rbErr)
	}
	return err
}

// applyLibrary resets the custom tags of the library row and applies genre,
// rating and tags from the decision.
func (t *Tagger) applyLibrary(ctx context.Context, track scanner.Track, d genre.Decision) error {
	content, err := t.Library.FindTrack(ctx, track.Title, track.Path)
	if err != nil {
		return err
	}

	cleared, err := t.Library.ClearTags(ctx, content.ID)
	if err != nil {
		return err
	}
	if cleared > 0 {
		t.Logger.Debug("cleared library tags", zap.String("title", track.Title), zap.Int("count", cleared))
	}

	genreID, err := t.Library.UpsertGenre(ctx, d.Genre)
	if err != nil {
		return err
	}
	if err := t.Library.SetGenre(ctx, content.ID, genreID); err != nil {
		return err
	}
	if d.HasRating {
		if err := t.Library.SetRating(ctx, content.ID, d.Rating); err != nil {
			return err
		}
	}

	for _, tag := range libraryTags(d) {
		tagID, err := t.Library.EnsureTag(ctx, tag.name, tag.parent)
		if err != nil {
			return err
		}
		if _, err := t.Library.LinkTag(ctx, content.ID, tagID); err != nil {
			return err
		}
	}
	return nil
}

func (t *Tagger) reportSkip(track scanner.Track, d genre.Decision) {
	switch d.Skip {
	case genre.SkipNoClassification:
		t.Warnings.AddClassificationFailedWarning(track.Title, string(d.Skip))
	case genre.SkipGenreRejected:
		t.Warnings.AddGenreRejectedWarning(track.Title, d.Reply.Genre)
	case genre.SkipUnrated:
		t.Warnings.AddUnknownGenreWarning(track.Title, d.Genre)
	}
	t.Console.Warning("Skipped %s: %s", track.Title, d.Skip)
}

func (t *Tagger) printDecision(track scanner.Track, d genre.Decision, verb string) {
	kind := "ORIGINAL"
	if d.Reply.IsRemix {
		kind = "REMIX"
	}
	rating := "none (mashup)"
	if d.HasRating {
		rating = fmt.Sprintf("%d", d.Rating)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s [%s]\n", verb, track.Title, kind)
	fmt.Fprintf(&b, "  Genre: %s (%s)\n", d.Genre, d.Source)
	fmt.Fprintf(&b, "  Rating: %s", rating)
	if d.Reply.Has(genre.FieldSituation) {
		fmt.Fprintf(&b, "\n  Situation: %s", d.Reply.Situation)
	}
	if d.Reply.CommercialFriendly {
		b.WriteString("\n  Commercial: Yes")
	}
	t.Console.Success("%s", b.String())
}

// finish commits the library and saves the ledger. Tracks whose library
// update is lost with the transaction stay out of the ledger.
func (t *Tagger) finish() error {
	var errs []error
	if t.Library != nil && !t.opts.DryRun && !t.libraryBroken {
		if err := t.Library.Commit(); err != nil {
			t.Console.Error("Failed to commit library changes: %v", err)
			errs = append(errs, err)
		} else {
			for _, title := range t.awaitingCommit {
				t.Ledger.Mark(title)
			}
			t.Console.Info("Library changes committed")
		}
	}
	t.awaitingCommit = nil
	if !t.opts.DryRun {
		if err := t.Ledger.Save(); err != nil {
			errs = append(errs, fmt.Errorf("failed to save ledger: %w", err))
		}
	}
	return errors.Join(errs...)
}

type quietConsole struct{}

func (quietConsole) Info(string, ...interface{})    {}
func (quietConsole) Warning(string, ...interface{}) {}
func (quietConsole) Error(string, ...interface{})   {}
func (quietConsole) Debug(string, ...interface{})   {}
func (quietConsole) Success(string, ...interface{}) {}

// rejectedCredentials reports an authentication failure from the classifier.
func rejectedCredentials(err error) bool {
	var httpErr *shared.HTTPError
	if !errors.As(err, &httpErr) {
		return false
	}
	return httpErr.StatusCode == http.StatusUnauthorized || httpErr.StatusCode == http.StatusForbidden
}
