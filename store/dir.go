package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/eak1mov/go-tilestream/tile"
	"go.uber.org/zap"
)

// DirStore keeps every tile in its own file, with paths built from a pattern
// like "/data/tiles/{i}/{j}.bin". Indices may be negative.
type DirStore struct {
	pattern    string
	rootDir    string
	pathRegexp *regexp.Regexp
	logger     *zap.Logger
}

var (
	_ Store        = (*DirStore)(nil)
	_ tile.Visitor = (*DirStore)(nil)
)

func NewDirStore(pattern string, opts ...Option) (*DirStore, error) {
	for _, p := range []string{"{i}", "{j}"} {
		if !strings.Contains(pattern, p) {
			return nil, fmt.Errorf("%w: placeholder %v not found", ErrInvalidPattern, p)
		}
	}

	regexPattern := regexp.QuoteMeta(filepath.Clean(pattern))
	regexPattern = strings.ReplaceAll(regexPattern, `\{i\}`, `(?P<i>-?\d+)`)
	regexPattern = strings.ReplaceAll(regexPattern, `\{j\}`, `(?P<j>-?\d+)`)
	pathRegexp, err := regexp.Compile("^" + regexPattern + "$")
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPattern, err)
	}

	// The root is the deepest directory shared by all tile paths.
	path0 := formatPattern(pattern, tile.Index{I: 0, J: 0})
	path1 := formatPattern(pattern, tile.Index{I: 1, J: 1})
	for path0 != path1 {
		path0 = filepath.Dir(path0)
		path1 = filepath.Dir(path1)
	}

	c := newConfig(opts)
	return &DirStore{
		pattern:    pattern,
		rootDir:    path0,
		pathRegexp: pathRegexp,
		logger:     c.logger,
	}, nil
}

func formatPattern(pattern string, idx tile.Index) string {
	result := pattern
	result = strings.ReplaceAll(result, "{i}", strconv.Itoa(int(idx.I)))
	result = strings.ReplaceAll(result, "{j}", strconv.Itoa(int(idx.J)))
	return filepath.Clean(result)
}

func (s *DirStore) Get(_ context.Context, idx tile.Index) ([]byte, error) {
	data, err := os.ReadFile(formatPattern(s.pattern, idx))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %v", ErrNotFound, idx)
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (s *DirStore) Put(_ context.Context, idx tile.Index, data []byte) error {
	filePath := formatPattern(s.pattern, idx)
	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return err
	}
	s.logger.Debug("writing tile", zap.Stringer("index", idx), zap.String("path", filePath))
	return os.WriteFile(filePath, data, 0644)
}

func (s *DirStore) Close() error {
	return nil
}

// VisitPayloads walks the store directory and calls visitor for every file
// matching the pattern. Other files are skipped.
func (s *DirStore) VisitPayloads(visitor func(tile.Index, []byte) error) error {
	return filepath.WalkDir(s.rootDir, func(filePath string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		matches := s.pathRegexp.FindStringSubmatch(filePath)
		if matches == nil {
			s.logger.Debug("skipping foreign file", zap.String("path", filePath))
			return nil
		}

		i, err := strconv.ParseInt(matches[s.pathRegexp.SubexpIndex("i")], 10, 32)
		if err != nil {
			return err
		}
		j, err := strconv.ParseInt(matches[s.pathRegexp.SubexpIndex("j")], 10, 32)
		if err != nil {
			return err
		}

		data, err := os.ReadFile(filePath)
		if err != nil {
			return err
		}
		return visitor(tile.Index{I: int32(i), J: int32(j)}, data)
	})
}
