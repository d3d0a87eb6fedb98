// Package library updates a DJ library database: track genre and rating,
// custom tags and the links between tracks and tags. All writes of a run
// share one transaction that is committed at the end.
package library

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"autotag/internal/shared"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Options control how the database is opened.
type Options struct {
	// Migrate creates missing tables. Leave off for a real library so its
	// schema is never altered.
	Migrate bool
	Logger  *zap.Logger
}

// Store is a transactional view of the library database.
type Store struct {
	mu     sync.Mutex
	db     *gorm.DB
	tx     *gorm.DB
	log    *zap.Logger
	closed bool
}

// Open connects to the SQLite library at path.
func Open(path string, opts Options) (*Store, error) {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger:                 logger.Default.LogMode(logger.Silent),
		SkipDefaultTransaction: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open library database: %w", err)
	}

	if opts.Migrate {
		if err := db.AutoMigrate(&Content{}, &Genre{}, &MyTag{}, &SongMyTag{}); err != nil {
			return nil, fmt.Errorf("failed to migrate library schema: %w", err)
		}
	}

	s := &Store{db: db, log: log}
	if err := s.Ping(context.Background()); err != nil {
		s.closeDB()
		return nil, err
	}
	return s, nil
}

// Ping checks that the track table is readable. A library that is locked
// by the DJ application fails here.
func (s *Store) Ping(ctx context.Context) error {
	var n int64
	if err := s.db.WithContext(ctx).Model(&Content{}).Limit(1).Count(&n).Error; err != nil {
		return fmt.Errorf("library database not available: %w", err)
	}
	return nil
}

// session returns the open transaction, beginning one when needed.
func (s *Store) session(ctx context.Context) (*gorm.DB, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, shared.ErrLibraryClosed
	}
	if s.tx == nil {
		tx := s.db.Begin()
		if tx.Error != nil {
			return nil, fmt.Errorf("failed to begin transaction: %w", tx.Error)
		}
		s.tx = tx
	}
	return s.tx.WithContext(ctx), nil
}

// NormalizePath turns a file path into the form stored in FolderPath:
// absolute with forward slashes.
func NormalizePath(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("failed to resolve %s: %w", path, err)
	}
	return strings.ReplaceAll(abs, `\`, "/"), nil
}

// FindTrack returns the track whose title matches and whose FolderPath is
// exactly path. It returns shared.ErrTrackNotFound when there is none.
func (s *Store) FindTrack(ctx context.Context, title, path string) (*Content, error) {
	tx, err := s.session(ctx)
	if err != nil {
		return nil, err
	}
	folderPath, err := NormalizePath(path)
	if err != nil {
		return nil, err
	}

	var candidates []Content
	if err := tx.Where("Title LIKE ? ESCAPE '\\'", "%"+escapeLike(title)+"%").Find(&candidates).Error; err != nil {
		return nil, fmt.Errorf("failed to search tracks: %w", err)
	}
	for i := range candidates {
		if candidates[i].FolderPath != "" && candidates[i].FolderPath == folderPath {
			return &candidates[i], nil
		}
	}
	return nil, fmt.Errorf("%q at %s: %w", title, folderPath, shared.ErrTrackNotFound)
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// nextID returns MAX(ID)+1 for a table whose IDs are numeric strings.
func nextID(tx *gorm.DB, model interface{}) (string, error) {
	var max int64
	err := tx.Model(model).Select("COALESCE(MAX(CAST(ID AS INTEGER)), 0)").Scan(&max).Error
	if err != nil {
		return "", fmt.Errorf("failed to allocate id: %w", err)
	}
	return strconv.FormatInt(max+1, 10), nil
}

// UpsertGenre returns the ID of the genre called name, creating it if needed.
func (s *Store) UpsertGenre(ctx context.Context, name string) (string, error) {
	tx, err := s.session(ctx)
	if err != nil {
		return "", err
	}

	var g Genre
	err = tx.Where("Name = ?", name).First(&g).Error
	if err == nil {
		return g.ID, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return "", fmt.Errorf("failed to look up genre %q: %w", name, err)
	}

	id, err := nextID(tx, &Genre{})
	if err != nil {
		return "", err
	}
	g = Genre{ID: id, Name: name, UUID: uuid.NewString()}
	if err := tx.Create(&g).Error; err != nil {
		return "", fmt.Errorf("failed to create genre %q: %w", name, err)
	}
	s.log.Debug("genre created", zap.String("name", name), zap.String("id", id))
	return id, nil
}

// EnsureTag returns the ID of the MyTag name under the category parent.
// Missing categories and tags are created.
func (s *Store) EnsureTag(ctx context.Context, name, parent string) (string, error) {
	tx, err := s.session(ctx)
	if err != nil {
		return "", err
	}

	parentID := Root
	if parent != "" {
		parentID, err = s.ensureMyTag(tx, parent, Root, 1)
		if err != nil {
			return "", err
		}
	}
	return s.ensureMyTag(tx, name, parentID, 0)
}

func (s *Store) ensureMyTag(tx *gorm.DB, name, parentID string, attribute int) (string, error) {
	var tag MyTag
	err := tx.Where("Name = ? AND ParentID = ?", name, parentID).First(&tag).Error
	if err == nil {
		return tag.ID, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return "", fmt.Errorf("failed to look up tag %q: %w", name, err)
	}

	id, err := nextID(tx, &MyTag{})
	if err != nil {
		return "", err
	}
	var siblings int64
	if err := tx.Model(&MyTag{}).Where("ParentID = ?", parentID).Count(&siblings).Error; err != nil {
		return "", fmt.Errorf("failed to count tags: %w", err)
	}
	tag = MyTag{
		ID:        id,
		Seq:       int(siblings) + 1,
		Name:      name,
		Attribute: attribute,
		ParentID:  parentID,
		UUID:      uuid.NewString(),
	}
	if err := tx.Create(&tag).Error; err != nil {
		return "", fmt.Errorf("failed to create tag %q: %w", name, err)
	}
	s.log.Debug("tag created", zap.String("name", name), zap.String("parent", parentID), zap.String("id", id))
	return id, nil
}

// LinkTag links a track to a tag. It reports false when the link existed.
func (s *Store) LinkTag(ctx context.Context, contentID, tagID string) (bool, error) {
	tx, err := s.session(ctx)
	if err != nil {
		return false, err
	}

	var n int64
	if err := tx.Model(&SongMyTag{}).Where("ContentID = ? AND MyTagID = ?", contentID, tagID).Count(&n).Error; err != nil {
		return false, fmt.Errorf("failed to check tag link: %w", err)
	}
	if n > 0 {
		return false, nil
	}

	id, err := nextID(tx, &SongMyTag{})
	if err != nil {
		return false, err
	}
	link := SongMyTag{ID: id, MyTagID: tagID, ContentID: contentID, UUID: uuid.NewString()}
	if err := tx.Create(&link).Error; err != nil {
		return false, fmt.Errorf("failed to link tag: %w", err)
	}
	return true, nil
}

// ClearTags removes every tag link of a track and returns how many there were.
func (s *Store) ClearTags(ctx context.Context, contentID string) (int, error) {
	tx, err := s.session(ctx)
	if err != nil {
		return 0, err
	}
	res := tx.Where("ContentID = ?", contentID).Delete(&SongMyTag{})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to clear tags: %w", res.Error)
	}
	return int(res.RowsAffected), nil
}

// SetGenre points a track at a genre row.
func (s *Store) SetGenre(ctx context.Context, contentID, genreID string) error {
	return s.updateContent(ctx, contentID, "GenreID", genreID)
}

// SetRating stores the 1-5 rating on a track.
func (s *Store) SetRating(ctx context.Context, contentID string, rating int) error {
	return s.updateContent(ctx, contentID, "Rating", rating)
}

func (s *Store) updateContent(ctx context.Context, contentID, column string, value interface{}) error {
	tx, err := s.session(ctx)
	if err != nil {
		return err
	}
	res := tx.Model(&Content{}).Where("ID = ?", contentID).Update(column, value)
	if res.Error != nil {
		return fmt.Errorf("failed to update %s: %w", column, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("content %s: %w", contentID, shared.ErrTrackNotFound)
	}
	return nil
}

// Savepoint marks the current state of the open transaction.
func (s *Store) Savepoint(ctx context.Context, name string) error {
	tx, err := s.session(ctx)
	if err != nil {
		return err
	}
	if err := tx.SavePoint(name).Error; err != nil {
		return fmt.Errorf("failed to create savepoint %s: %w", name, err)
	}
	return nil
}

// RollbackTo discards the changes made since the savepoint name.
func (s *Store) RollbackTo(ctx context.Context, name string) error {
	tx, err := s.session(ctx)
	if err != nil {
		return err
	}
	if err := tx.RollbackTo(name).Error; err != nil {
		return fmt.Errorf("failed to roll back to savepoint %s: %w", name, err)
	}
	return nil
}

// Commit makes every change since the last commit permanent.
func (s *Store) Commit() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return shared.ErrLibraryClosed
	}
	if s.tx == nil {
		return nil
	}
	err := s.tx.Commit().Error
	s.tx = nil
	if err != nil {
		return fmt.Errorf("failed to commit library changes: %w", err)
	}
	return nil
}

// Close rolls back uncommitted changes and closes the database.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.tx != nil {
		s.tx.Rollback()
		s.tx = nil
	}
	return s.closeDB()
}

func (s *Store) closeDB() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
