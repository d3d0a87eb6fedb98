// Package scanner finds the audio files that still need tagging.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"autotag/internal/interfaces"
	"autotag/internal/tagstore"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// ErrNoFiles reports a music directory without supported audio files.
var ErrNoFiles = errors.New("no audio files found")

// Track is an audio file with the tags read during the scan.
type Track struct {
	Path string
	tagstore.Fields
}

// Unreadable is a file whose tags could not be read.
type Unreadable struct {
	Path string
	Err  error
}

// Result splits the scanned files by what happens to them next.
type Result struct {
	Pending      []Track
	LowBitrate   []Track
	MissingTitle []string
	Unreadable   []Unreadable
	AlreadyDone  int
}

// Total is the number of audio files seen.
func (r *Result) Total() int {
	return len(r.Pending) + len(r.LowBitrate) + len(r.MissingTitle) + len(r.Unreadable) + r.AlreadyDone
}

// Scanner reads tags of every audio file under a directory in parallel.
type Scanner struct {
	Tags       interfaces.TagStore
	Ledger     interfaces.Ledger
	BitrateMin int
	Workers    int

	log *zap.Logger
}

func New(tags interfaces.TagStore, ledger interfaces.Ledger, bitrateMin, workers int, log *zap.Logger) *Scanner {
	if log == nil {
		log = zap.NewNop()
	}
	if workers < 1 {
		workers = 1
	}
	return &Scanner{Tags: tags, Ledger: ledger, BitrateMin: bitrateMin, Workers: workers, log: log}
}

// Files lists the supported audio files under root in lexical order.
func Files(root string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(d.Name(), "._") {
			return nil
		}
		if _, ok := tagstore.FormatOf(path); ok {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", root, err)
	}
	sort.Strings(files)
	return files, nil
}

// Scan reads every file under root and sorts it into the result buckets.
// Pending keeps the lexical file order so runs are reproducible.
func (s *Scanner) Scan(ctx context.Context, root string) (*Result, error) {
	files, err := Files(root)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoFiles, root)
	}

	fields := make([]tagstore.Fields, len(files))
	readErrs := make([]error, len(files))

	sem := semaphore.NewWeighted(int64(s.Workers))
	g, gctx := errgroup.WithContext(ctx)
	for i, path := range files {
		if err := sem.Acquire(gctx, 1); err != nil {
			break
		}
		i, path := i, path
		g.Go(func() error {
			defer sem.Release(1)
			if err := gctx.Err(); err != nil {
				return err
			}
			fields[i], readErrs[i] = s.Tags.ReadFields(path)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	res := &Result{}
	for i, path := range files {
		if readErrs[i] != nil {
			s.log.Warn("failed to read tags", zap.String("file", path), zap.Error(readErrs[i]))
			res.Unreadable = append(res.Unreadable, Unreadable{Path: path, Err: readErrs[i]})
			continue
		}
		t := Track{Path: path, Fields: fields[i]}
		t.Title = strings.TrimSpace(t.Title)
		t.Artist = strings.TrimSpace(t.Artist)

		switch {
		case t.Title == "":
			res.MissingTitle = append(res.MissingTitle, path)
		case s.BitrateMin > 0 && t.Bitrate < s.BitrateMin:
			res.LowBitrate = append(res.LowBitrate, t)
		case s.Ledger != nil && s.Ledger.Done(t.Title):
			res.AlreadyDone++
		default:
			res.Pending = append(res.Pending, t)
		}
	}

	s.log.Debug("scan finished",
		zap.String("root", root),
		zap.Int("files", len(files)),
		zap.Int("pending", len(res.Pending)),
		zap.Int("low_bitrate", len(res.LowBitrate)),
		zap.Int("missing_title", len(res.MissingTitle)),
		zap.Int("already_done", res.AlreadyDone))
	return res, nil
}
