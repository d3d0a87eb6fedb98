package interfaces

import (
	"context"

	"autotag/internal/core/genre"
	"autotag/internal/library"
	"autotag/internal/tagstore"
)

// Classifier asks a chat model to classify a track. The returned text is
// parsed with genre.ParseReply. Failures wrap shared.ErrTransient or
// shared.ErrPermanent.
type Classifier interface {
	Classify(ctx context.Context, title, artist string) (string, error)
	Name() string
}

// GenreSearcher looks a track up on an external catalogue. It returns nil
// without error when nothing matched.
type GenreSearcher interface {
	SearchGenre(ctx context.Context, title, artistHint string) (*genre.SearchMatch, error)
	Name() string
}

// TagStore reads and writes audio file tags.
type TagStore interface {
	ReadFields(path string) (tagstore.Fields, error)
	WriteFields(path string, update tagstore.FieldUpdate) error
	WriteRating(path string, rating int) error
}

// LibraryStore updates the DJ library database. Changes become visible
// after Commit; RollbackTo undoes everything since the named Savepoint.
type LibraryStore interface {
	FindTrack(ctx context.Context, title, path string) (*library.Content, error)
	UpsertGenre(ctx context.Context, name string) (string, error)
	EnsureTag(ctx context.Context, name, parent string) (string, error)
	LinkTag(ctx context.Context, contentID, tagID string) (bool, error)
	ClearTags(ctx context.Context, contentID string) (int, error)
	SetGenre(ctx context.Context, contentID, genreID string) error
	SetRating(ctx context.Context, contentID string, rating int) error
	Savepoint(ctx context.Context, name string) error
	RollbackTo(ctx context.Context, name string) error
	Commit() error
	Close() error
}

// RatingMirror pushes the energy rating to a media server.
type RatingMirror interface {
	MirrorRating(ctx context.Context, title, artist string, rating int) error
}

// Ledger remembers processed titles between runs.
type Ledger interface {
	Done(title string) bool
	Mark(title string)
	Save() error
}

// LoggerService defines the interface for user facing console output
type LoggerService interface {
	Info(message string, args ...interface{})
	Warning(message string, args ...interface{})
	Error(message string, args ...interface{})
	Debug(message string, args ...interface{})
	Success(message string, args ...interface{})
}

// WarningCollectorService collects per-track problems for the run summary
type WarningCollectorService interface {
	AddClassificationFailedWarning(title, reason string)
	AddLowBitrateWarning(file string, bitrate int)
	AddMissingTitleWarning(file string)
	AddUnknownGenreWarning(title, genre string)
	AddGenreRejectedWarning(title, reason string)
	AddLibraryWarning(title, details string)
	AddRatingMirrorWarning(title, details string)
	AddMissingArtworkWarning(file string)
	HasWarnings() bool
	GetWarningCount() int
	PrintSummary()
}
