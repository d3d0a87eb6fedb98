package tagger

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"autotag/internal/core/genre"
	"autotag/internal/core/scanner"
	"autotag/internal/core/search"
	"autotag/internal/library"
	"autotag/internal/shared"
	"autotag/internal/tagstore"
)

type fakeClassifier struct {
	replies map[string]string
	errs    map[string]error
	calls   int
}

func (f *fakeClassifier) Name() string { return "fake" }

func (f *fakeClassifier) Classify(ctx context.Context, title, artist string) (string, error) {
	f.calls++
	if err := f.errs[title]; err != nil {
		return "", err
	}
	return f.replies[title], nil
}

type fakeSearcher struct {
	match *genre.SearchMatch
	calls int
}

func (f *fakeSearcher) Name() string { return "fake-search" }

func (f *fakeSearcher) SearchGenre(ctx context.Context, title, hint string) (*genre.SearchMatch, error) {
	f.calls++
	return f.match, nil
}

type fakeTags struct {
	fields  map[string]tagstore.FieldUpdate
	ratings map[string]int
	fail    map[string]bool
}

func newFakeTags() *fakeTags {
	return &fakeTags{fields: map[string]tagstore.FieldUpdate{}, ratings: map[string]int{}, fail: map[string]bool{}}
}

func (f *fakeTags) ReadFields(string) (tagstore.Fields, error) { return tagstore.Fields{}, nil }

func (f *fakeTags) WriteFields(path string, u tagstore.FieldUpdate) error {
	if f.fail[path] {
		return errors.New("read-only file")
	}
	f.fields[path] = u
	return nil
}

func (f *fakeTags) WriteRating(path string, rating int) error {
	f.ratings[path] = rating
	return nil
}

type fakeLibrary struct {
	tracks    map[string]*library.Content
	genres    map[string]string
	tags      map[string]string // name|parent -> id
	links     map[string][]string
	committed bool

	failParent  string // EnsureTag fails for this parent
	rollbackErr error
	commitErr   error
	saved       *librarySnapshot
}

type librarySnapshot struct {
	tracks map[string]library.Content
	genres map[string]string
	links  map[string][]string
}

func newFakeLibrary() *fakeLibrary {
	return &fakeLibrary{
		tracks: map[string]*library.Content{},
		genres: map[string]string{},
		tags:   map[string]string{},
		links:  map[string][]string{},
	}
}

func (f *fakeLibrary) FindTrack(ctx context.Context, title, path string) (*library.Content, error) {
	c, ok := f.tracks[path]
	if !ok {
		return nil, shared.ErrTrackNotFound
	}
	return c, nil
}

func (f *fakeLibrary) UpsertGenre(ctx context.Context, name string) (string, error) {
	if id, ok := f.genres[name]; ok {
		return id, nil
	}
	f.genres[name] = "g-" + name
	return f.genres[name], nil
}

func (f *fakeLibrary) EnsureTag(ctx context.Context, name, parent string) (string, error) {
	if f.failParent != "" && parent == f.failParent {
		return "", errors.New("database is locked")
	}
	key := name + "|" + parent
	if _, ok := f.tags[key]; !ok {
		f.tags[key] = key
	}
	return f.tags[key], nil
}

func (f *fakeLibrary) LinkTag(ctx context.Context, contentID, tagID string) (bool, error) {
	f.links[contentID] = append(f.links[contentID], tagID)
	return true, nil
}

func (f *fakeLibrary) ClearTags(ctx context.Context, contentID string) (int, error) {
	n := len(f.links[contentID])
	delete(f.links, contentID)
	return n, nil
}

func (f *fakeLibrary) SetGenre(ctx context.Context, contentID, genreID string) error {
	f.tracks[contentPath(f, contentID)].GenreID = genreID
	return nil
}

func (f *fakeLibrary) SetRating(ctx context.Context, contentID string, rating int) error {
	f.tracks[contentPath(f, contentID)].Rating = rating
	return nil
}

func contentPath(f *fakeLibrary, id string) string {
	for path, c := range f.tracks {
		if c.ID == id {
			return path
		}
	}
	return ""
}

func (f *fakeLibrary) Savepoint(ctx context.Context, name string) error {
	snap := &librarySnapshot{
		tracks: map[string]library.Content{},
		genres: map[string]string{},
		links:  map[string][]string{},
	}
	for path, c := range f.tracks {
		snap.tracks[path] = *c
	}
	for k, v := range f.genres {
		snap.genres[k] = v
	}
	for k, v := range f.links {
		snap.links[k] = append([]string(nil), v...)
	}
	f.saved = snap
	return nil
}

func (f *fakeLibrary) RollbackTo(ctx context.Context, name string) error {
	if f.rollbackErr != nil {
		return f.rollbackErr
	}
	for path, c := range f.saved.tracks {
		c := c
		f.tracks[path] = &c
	}
	f.genres, f.links = f.saved.genres, f.saved.links
	return nil
}

func (f *fakeLibrary) Commit() error {
	if f.commitErr != nil {
		return f.commitErr
	}
	f.committed = true
	return nil
}
func (f *fakeLibrary) Close() error  { return nil }

type fakeLedger struct {
	done  map[string]bool
	saved bool
}

func (l *fakeLedger) Done(title string) bool { return l.done[title] }
func (l *fakeLedger) Mark(title string)      { l.done[title] = true }
func (l *fakeLedger) Save() error            { l.saved = true; return nil }

type fakeMirror struct{ ratings map[string]int }

func (m *fakeMirror) MirrorRating(ctx context.Context, title, artist string, rating int) error {
	m.ratings[title] = rating
	return nil
}

func testEnergy(t *testing.T) genre.EnergyMap {
	t.Helper()
	m, err := genre.NewEnergyMap(map[int][]string{
		2: {"deep house"},
		3: {"tech house", "house"},
		4: {"afro house"},
	})
	if err != nil {
		t.Fatal(err)
	}
	return m
}

type fixture struct {
	classifier *fakeClassifier
	searcher   *fakeSearcher
	tags       *fakeTags
	lib        *fakeLibrary
	ledger     *fakeLedger
	mirror     *fakeMirror
	warnings   *shared.WarningCollector
}

func newFixture() *fixture {
	return &fixture{
		classifier: &fakeClassifier{replies: map[string]string{}, errs: map[string]error{}},
		searcher:   &fakeSearcher{},
		tags:       newFakeTags(),
		lib:        newFakeLibrary(),
		ledger:     &fakeLedger{done: map[string]bool{}},
		mirror:     &fakeMirror{ratings: map[string]int{}},
		warnings:   shared.NewWarningCollector(true),
	}
}

func (f *fixture) tagger(t *testing.T, opts Options) *Tagger {
	t.Helper()
	if opts.Retry.MaxAttempts == 0 {
		opts.Retry = shared.RetryPolicy{MaxAttempts: 1}
	}
	return New(Deps{
		Classifier: f.classifier,
		Search:     search.NewService(f.searcher, shared.RetryPolicy{MaxAttempts: 1}, nil),
		Reconciler: genre.NewReconciler(testEnergy(t), true, nil),
		Tags:       f.tags,
		Library:    f.lib,
		Mirror:     f.mirror,
		Ledger:     f.ledger,
		Warnings:   f.warnings,
	}, opts)
}

func pending(tracks ...scanner.Track) *scanner.Result {
	return &scanner.Result{Pending: tracks}
}

func TestRunTagsTrack(t *testing.T) {
	f := newFixture()
	f.classifier.replies["Dynamite"] = "Is Remix: No\nGenre: Tech House / Deep House\nOriginal Artists: BTS\nOriginal Song Release: 2020\nSituation: Both\nCommercial Friendly: Yes"
	f.lib.tracks["/music/dynamite.mp3"] = &library.Content{ID: "7"}
	f.lib.links["7"] = []string{"stale"}

	track := scanner.Track{Path: "/music/dynamite.mp3", Fields: tagstore.Fields{Title: "Dynamite", Artist: "BTS", HasArtwork: true}}
	stats, err := f.tagger(t, Options{}).Run(context.Background(), pending(track))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if stats.Tagged != 1 || stats.LibraryUpdated != 1 || stats.Mirrored != 1 {
		t.Errorf("stats = %+v", stats)
	}

	got := f.tags.fields[track.Path]
	if got.Genre != "Deep House / Tech House" || got.Artist != "BTS" || got.Year != "2020" {
		t.Errorf("fields = %+v", got)
	}
	if f.tags.ratings[track.Path] != 3 {
		t.Errorf("rating = %d, want 3", f.tags.ratings[track.Path])
	}

	content := f.lib.tracks[track.Path]
	if content.GenreID != "g-Deep House / Tech House" || content.Rating != 3 {
		t.Errorf("library row = %+v", content)
	}
	wantLinks := []string{"Bar|Situation", "Club|Situation", "Commercial|Situation", "Deep House|Genre", "Tech House|Genre"}
	links := f.lib.links["7"]
	if len(links) != len(wantLinks) {
		t.Fatalf("links = %v, want %v", links, wantLinks)
	}
	for i := range wantLinks {
		if links[i] != wantLinks[i] {
			t.Errorf("links[%d] = %s, want %s", i, links[i], wantLinks[i])
		}
	}

	if !f.lib.committed || !f.ledger.saved || !f.ledger.done["Dynamite"] {
		t.Errorf("commit=%v saved=%v ledgered=%v", f.lib.committed, f.ledger.saved, f.ledger.done["Dynamite"])
	}
	if f.mirror.ratings["Dynamite"] != 3 {
		t.Errorf("mirror = %v", f.mirror.ratings)
	}
}

func TestRunUsesSearchForRemix(t *testing.T) {
	f := newFixture()
	f.classifier.replies["Song (Kream Remix)"] = "Is Remix: Yes\nGenre: House"
	f.searcher.match = &genre.SearchMatch{Genre: "Afro House", Artist: "kream"}

	track := scanner.Track{Path: "/music/song.mp3", Fields: tagstore.Fields{Title: "Song (Kream Remix)"}}
	stats, err := f.tagger(t, Options{}).Run(context.Background(), pending(track))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if f.searcher.calls != 1 {
		t.Errorf("search calls = %d", f.searcher.calls)
	}
	if f.tags.fields[track.Path].Genre != "Afro House" || f.tags.ratings[track.Path] != 4 {
		t.Errorf("fields = %+v rating = %d", f.tags.fields[track.Path], f.tags.ratings[track.Path])
	}
	// not in the library: a warning, still tagged and ledgered
	if stats.Tagged != 1 || stats.LibraryUpdated != 0 {
		t.Errorf("stats = %+v", stats)
	}
	if len(f.warnings.GetWarningsByType()[shared.LibraryWarning]) != 1 {
		t.Error("expected a library warning")
	}
	if len(f.warnings.GetWarningsByType()[shared.MissingArtworkWarning]) != 1 {
		t.Error("expected a missing artwork warning")
	}
	if !f.ledger.done["Song (Kream Remix)"] {
		t.Error("partially tagged track must be ledgered")
	}
}

func TestRunSkipsLeaveLedgerUntouched(t *testing.T) {
	f := newFixture()
	f.classifier.replies["Vague"] = "Is Remix: No\nGenre: EDM"
	f.classifier.replies["Unrated"] = "Is Remix: No\nGenre: Polka"
	f.classifier.replies["Empty"] = "I don't know this song."

	stats, err := f.tagger(t, Options{}).Run(context.Background(), pending(
		scanner.Track{Path: "/a.mp3", Fields: tagstore.Fields{Title: "Vague"}},
		scanner.Track{Path: "/b.mp3", Fields: tagstore.Fields{Title: "Unrated"}},
		scanner.Track{Path: "/c.mp3", Fields: tagstore.Fields{Title: "Empty"}},
	))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if stats.Skipped != 3 || stats.Tagged != 0 {
		t.Errorf("stats = %+v", stats)
	}
	if len(f.tags.fields) != 0 || len(f.ledger.done) != 0 {
		t.Errorf("skipped tracks must not be written or ledgered: %v %v", f.tags.fields, f.ledger.done)
	}
	byType := f.warnings.GetWarningsByType()
	if len(byType[shared.GenreRejectedWarning]) != 1 || len(byType[shared.UnknownGenreWarning]) != 1 || len(byType[shared.ClassificationFailedWarning]) != 1 {
		t.Errorf("warnings = %+v", byType)
	}
}

func TestRunMashupIsTaggedWithoutRating(t *testing.T) {
	f := newFixture()
	f.classifier.replies["Mix"] = "Is Remix: No\nGenre: Mashup"

	track := scanner.Track{Path: "/m.mp3", Fields: tagstore.Fields{Title: "Mix", HasArtwork: true}}
	stats, err := f.tagger(t, Options{}).Run(context.Background(), pending(track))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if stats.Tagged != 1 || stats.Mirrored != 0 {
		t.Errorf("stats = %+v", stats)
	}
	if _, rated := f.tags.ratings[track.Path]; rated {
		t.Error("mashups must not be rated")
	}
	if !f.ledger.done["Mix"] {
		t.Error("mashup must be ledgered")
	}
}

func TestRunDryRunWritesNothing(t *testing.T) {
	f := newFixture()
	f.classifier.replies["Song"] = "Is Remix: No\nGenre: House"

	stats, err := f.tagger(t, Options{DryRun: true}).Run(context.Background(), pending(
		scanner.Track{Path: "/s.mp3", Fields: tagstore.Fields{Title: "Song"}},
	))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if stats.Tagged != 1 || len(f.tags.fields) != 0 || f.lib.committed || f.ledger.saved || len(f.ledger.done) != 0 {
		t.Errorf("dry run wrote something: stats=%+v", stats)
	}
}

func TestRunClassificationFailures(t *testing.T) {
	f := newFixture()
	f.classifier.errs["Flaky"] = shared.Transient(errors.New("quota"), 0)
	f.classifier.replies["Good"] = "Is Remix: No\nGenre: House"

	stats, err := f.tagger(t, Options{}).Run(context.Background(), pending(
		scanner.Track{Path: "/f.mp3", Fields: tagstore.Fields{Title: "Flaky"}},
		scanner.Track{Path: "/g.mp3", Fields: tagstore.Fields{Title: "Good"}},
	))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if stats.Failed != 1 || stats.Tagged != 1 {
		t.Errorf("stats = %+v", stats)
	}
	if f.ledger.done["Flaky"] {
		t.Error("failed track must not be ledgered")
	}
}

func TestRunStopsOnRejectedCredentials(t *testing.T) {
	f := newFixture()
	f.classifier.errs["A"] = shared.Permanent(&shared.HTTPError{StatusCode: http.StatusUnauthorized, Status: "401"})

	_, err := f.tagger(t, Options{}).Run(context.Background(), pending(
		scanner.Track{Path: "/a.mp3", Fields: tagstore.Fields{Title: "A"}},
		scanner.Track{Path: "/b.mp3", Fields: tagstore.Fields{Title: "B"}},
	))
	if !errors.Is(err, ErrClassifierRejected) {
		t.Fatalf("error = %v, want ErrClassifierRejected", err)
	}
	if f.classifier.calls != 1 {
		t.Errorf("classifier calls = %d, want 1", f.classifier.calls)
	}
	if !f.ledger.saved {
		t.Error("ledger must still be saved")
	}
}

func TestRunTagWriteFailure(t *testing.T) {
	f := newFixture()
	f.classifier.replies["Song"] = "Is Remix: No\nGenre: House"
	f.tags.fail["/s.mp3"] = true

	stats, _ := f.tagger(t, Options{}).Run(context.Background(), pending(
		scanner.Track{Path: "/s.mp3", Fields: tagstore.Fields{Title: "Song"}},
	))
	if stats.Failed != 1 || f.ledger.done["Song"] {
		t.Errorf("stats = %+v ledger = %v", stats, f.ledger.done)
	}
}

func TestRunReportsScanWarnings(t *testing.T) {
	f := newFixture()
	scan := &scanner.Result{
		LowBitrate:   []scanner.Track{{Path: "/low.mp3", Fields: tagstore.Fields{Bitrate: 128000}}},
		MissingTitle: []string{"/untitled.mp3"},
	}
	if _, err := f.tagger(t, Options{}).Run(context.Background(), scan); err != nil {
		t.Fatalf("Run: %v", err)
	}
	byType := f.warnings.GetWarningsByType()
	if len(byType[shared.LowBitrateWarning]) != 1 || len(byType[shared.MissingTitleWarning]) != 1 {
		t.Errorf("warnings = %+v", byType)
	}
}

func TestLibraryTags(t *testing.T) {
	d := genre.Decision{
		Genre: "Afro House / Transition",
		Reply: genre.ParseReply("Situation: Bar\nCommercial Friendly: No"),
	}
	tags := libraryTags(d)
	want := []tagRef{
		{"Bar", library.CategorySituation},
		{"Afro House", library.CategoryGenre},
		{"Transition", library.CategoryGenre},
	}
	if len(tags) != len(want) {
		t.Fatalf("libraryTags = %v", tags)
	}
	for i := range want {
		if tags[i] != want[i] {
			t.Errorf("tags[%d] = %v, want %v", i, tags[i], want[i])
		}
	}
}

func TestRunRollsBackFailedLibraryUpdate(t *testing.T) {
	f := newFixture()
	f.classifier.replies["Dynamite"] = "Is Remix: No\nGenre: Tech House\nSituation: Bar"
	f.lib.tracks["/music/dynamite.mp3"] = &library.Content{ID: "7", Rating: 2}
	f.lib.links["7"] = []string{"Favourite|Situation"}
	f.lib.failParent = library.CategoryGenre

	track := scanner.Track{Path: "/music/dynamite.mp3", Fields: tagstore.Fields{Title: "Dynamite", HasArtwork: true}}
	stats, err := f.tagger(t, Options{}).Run(context.Background(), pending(track))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if stats.Tagged != 1 || stats.LibraryUpdated != 0 {
		t.Errorf("stats = %+v", stats)
	}

	content := f.lib.tracks[track.Path]
	if content.GenreID != "" || content.Rating != 2 {
		t.Errorf("library row after failure = %+v", content)
	}
	if links := f.lib.links["7"]; len(links) != 1 || links[0] != "Favourite|Situation" {
		t.Errorf("links after failure = %v", links)
	}
	if len(f.lib.genres) != 0 {
		t.Errorf("genres after failure = %v", f.lib.genres)
	}
	if f.tags.fields[track.Path].Genre != "Tech House" {
		t.Errorf("file tags must stay written, got %+v", f.tags.fields[track.Path])
	}
	if len(f.warnings.GetWarningsByType()[shared.LibraryWarning]) != 1 {
		t.Error("expected a library warning")
	}
	if f.ledger.done["Dynamite"] {
		t.Error("a failed library update must be retried on the next run")
	}
	if !f.lib.committed {
		t.Error("earlier tracks must still be committed")
	}
}

func TestRunSkipsCommitWhenRollbackFails(t *testing.T) {
	f := newFixture()
	f.classifier.replies["One"] = "Is Remix: No\nGenre: House"
	f.classifier.replies["Two"] = "Is Remix: No\nGenre: House"
	f.lib.tracks["/one.mp3"] = &library.Content{ID: "1"}
	f.lib.tracks["/two.mp3"] = &library.Content{ID: "2"}
	f.lib.failParent = library.CategoryGenre
	f.lib.rollbackErr = errors.New("disk I/O error")

	stats, err := f.tagger(t, Options{}).Run(context.Background(), pending(
		scanner.Track{Path: "/one.mp3", Fields: tagstore.Fields{Title: "One", HasArtwork: true}},
		scanner.Track{Path: "/two.mp3", Fields: tagstore.Fields{Title: "Two", HasArtwork: true}},
	))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if stats.Tagged != 2 || stats.LibraryUpdated != 0 {
		t.Errorf("stats = %+v", stats)
	}
	if f.lib.committed {
		t.Error("a transaction that could not be rolled back must not be committed")
	}
	if f.lib.tracks["/two.mp3"].GenreID != "" {
		t.Error("no library writes expected after a failed rollback")
	}
	if f.ledger.done["One"] || f.ledger.done["Two"] {
		t.Errorf("tracks missing their library update must not be ledgered: %v", f.ledger.done)
	}
}

func TestRunFailedCommitLeavesLedgerUntouched(t *testing.T) {
	f := newFixture()
	f.classifier.replies["Dynamite"] = "Is Remix: No\nGenre: House"
	f.classifier.replies["Elsewhere"] = "Is Remix: No\nGenre: House"
	f.lib.tracks["/music/dynamite.mp3"] = &library.Content{ID: "7"}
	f.lib.commitErr = errors.New("database is locked")

	stats, err := f.tagger(t, Options{}).Run(context.Background(), pending(
		scanner.Track{Path: "/music/dynamite.mp3", Fields: tagstore.Fields{Title: "Dynamite", HasArtwork: true}},
		scanner.Track{Path: "/music/elsewhere.mp3", Fields: tagstore.Fields{Title: "Elsewhere", HasArtwork: true}},
	))
	if err == nil {
		t.Fatal("expected the commit error")
	}
	if stats.LibraryUpdated != 1 {
		t.Errorf("stats = %+v", stats)
	}
	if f.ledger.done["Dynamite"] {
		t.Error("a track whose library update was not committed must not be ledgered")
	}
	if !f.ledger.done["Elsewhere"] || !f.ledger.saved {
		t.Error("tracks absent from the library are ledgered and the ledger saved")
	}
}
