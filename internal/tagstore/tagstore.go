// Package tagstore reads and writes the audio file tags autotag cares about:
// title, artist, genre, year and the POPM / RATING energy rating.
package tagstore

import (
	"fmt"
	"path/filepath"
	"strings"

	"autotag/internal/shared"

	"go.uber.org/zap"
)

// Format is an audio container handled by the store.
type Format string

const (
	FormatMP3  Format = "mp3"
	FormatFLAC Format = "flac"
)

// RatingEmail identifies the POPM frame DJ software reads ratings from.
const RatingEmail = "rating@rekordbox"

// ratingBuckets maps a 1-5 energy rating onto the 0-255 POPM scale.
var ratingBuckets = [...]uint8{0, 1, 64, 128, 192, 255}

// RatingByte returns the POPM value for rating.
func RatingByte(rating int) (uint8, error) {
	if rating < 1 || rating > 5 {
		return 0, fmt.Errorf("rating %d out of range 1-5", rating)
	}
	return ratingBuckets[rating], nil
}

// FormatOf returns the format implied by the file extension.
func FormatOf(path string) (Format, bool) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mp3":
		return FormatMP3, true
	case ".flac":
		return FormatFLAC, true
	}
	return "", false
}

// Fields are the tag values read from a file.
type Fields struct {
	Title      string
	Artist     string
	Bitrate    int // bits per second, 0 when unknown
	Format     Format
	HasArtwork bool
}

// FieldUpdate holds the values to write; empty values are left untouched.
type FieldUpdate struct {
	Genre  string
	Artist string
	Year   string
}

// Store reads and writes tags on local files.
type Store struct {
	logger *zap.Logger
}

// New creates a Store. A nil logger discards output.
func New(logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{logger: logger}
}

// ReadFields returns title, artist and bitrate of the file at path.
func (s *Store) ReadFields(path string) (Fields, error) {
	format, ok := FormatOf(path)
	if !ok {
		return Fields{}, fmt.Errorf("%s: %w", path, shared.ErrUnsupportedFormat)
	}

	fields, err := readCommon(path)
	if err != nil {
		s.logger.Debug("no readable tags", zap.String("path", path), zap.Error(err))
	}
	fields.Format = format

	switch format {
	case FormatMP3:
		fields.Bitrate, err = mp3Bitrate(path)
	case FormatFLAC:
		var art bool
		fields.Bitrate, art, err = flacInfo(path)
		fields.HasArtwork = fields.HasArtwork || art
	}
	if err != nil {
		return fields, fmt.Errorf("failed to inspect %s: %w", path, err)
	}
	return fields, nil
}

// WriteFields stores genre, artist and year. Multi-genre values are written
// with "; " separators.
func (s *Store) WriteFields(path string, update FieldUpdate) error {
	format, ok := FormatOf(path)
	if !ok {
		return fmt.Errorf("%s: %w", path, shared.ErrUnsupportedFormat)
	}
	update.Genre = TagGenre(update.Genre)

	var err error
	switch format {
	case FormatMP3:
		err = writeMP3Fields(path, update)
	case FormatFLAC:
		err = writeFLACFields(path, update)
	}
	if err != nil {
		return err
	}
	s.logger.Debug("tags written",
		zap.String("path", path),
		zap.String("genre", update.Genre),
		zap.String("artist", update.Artist),
		zap.String("year", update.Year))
	return nil
}

// WriteRating stores the 1-5 energy rating.
func (s *Store) WriteRating(path string, rating int) error {
	value, err := RatingByte(rating)
	if err != nil {
		return err
	}
	format, ok := FormatOf(path)
	if !ok {
		return fmt.Errorf("%s: %w", path, shared.ErrUnsupportedFormat)
	}

	switch format {
	case FormatMP3:
		err = writeMP3Rating(path, value)
	case FormatFLAC:
		err = writeFLACRating(path, value)
	}
	if err != nil {
		return err
	}
	s.logger.Debug("rating written", zap.String("path", path), zap.Int("rating", rating), zap.Uint8("popm", value))
	return nil
}

// TagGenre converts a canonical "A / B" genre into the "A; B" form used in
// file tags.
func TagGenre(genre string) string {
	genre = strings.ReplaceAll(genre, " / ", "; ")
	return strings.ReplaceAll(genre, "/", "; ")
}
