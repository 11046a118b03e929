// Package targets resolves the files and directories of a job into the
// number of images the tagger will process.
//
// The count is informational: it feeds the launch plan and the job record.
// Completion is still decided by the signal sequence, not by image counts.
package targets

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ErrTargetNotFound indicates a target path does not exist.
var ErrTargetNotFound = errors.New("target not found")

// TargetError reports a failure scanning one target.
type TargetError struct {
	Target string
	Err    error
}

func (e *TargetError) Error() string {
	return fmt.Sprintf("target %s: %v", e.Target, e.Err)
}

func (e *TargetError) Unwrap() error {
	return e.Err
}

// Config configures a Scanner.
type Config struct {
	// Concurrency is the number of targets scanned in parallel.
	// Default: 4
	Concurrency int

	// Extensions overrides ImageExtensions.
	Extensions []string

	// Excludes are doublestar patterns, relative to each directory target,
	// for trees to skip.
	// Default: DefaultExcludes
	Excludes []string
}

// DefaultConfig returns the default scanner configuration.
func DefaultConfig() Config {
	return Config{
		Concurrency: 4,
		Excludes:    DefaultExcludes,
	}
}

// Target is the scan result for one job target.
type Target struct {
	Path   string `json:"path"`
	IsDir  bool   `json:"is_dir"`
	Images int    `json:"images"`

	// Unsupported marks a file target the tagger will skip.
	Unsupported bool `json:"unsupported,omitempty"`
}

// Summary is the scan result for a whole job.
type Summary struct {
	Targets []Target `json:"targets"`
	Images  int      `json:"images"`
}

// Scanner counts images under job targets.
type Scanner struct {
	filter      *Filter
	concurrency int
	logger      *zap.Logger
}

// NewScanner creates a Scanner. Zero config fields take their defaults.
func NewScanner(cfg Config, logger *zap.Logger) (*Scanner, error) {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConfig().Concurrency
	}
	if cfg.Excludes == nil {
		cfg.Excludes = DefaultConfig().Excludes
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	f, err := NewFilter(cfg.Extensions, cfg.Excludes)
	if err != nil {
		return nil, err
	}
	return &Scanner{filter: f, concurrency: cfg.Concurrency, logger: logger}, nil
}

// Scan inspects every target concurrently. Results keep the targets' order.
// The first failing target cancels the rest.
func (s *Scanner) Scan(ctx context.Context, paths []string) (*Summary, error) {
	results := make([]Target, len(paths))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, p := range paths {
		g.Go(func() error {
			t, err := s.scanOne(gctx, p)
			if err != nil {
				return &TargetError{Target: p, Err: err}
			}
			results[i] = t
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sum := &Summary{Targets: results}
	for _, t := range results {
		sum.Images += t.Images
	}
	return sum, nil
}

func (s *Scanner) scanOne(ctx context.Context, path string) (Target, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Target{}, ErrTargetNotFound
		}
		return Target{}, err
	}

	if !info.IsDir() {
		t := Target{Path: path}
		if s.filter.Supported(filepath.Base(path)) {
			t.Images = 1
		} else {
			t.Unsupported = true
			s.logger.Warn("Unsupported file type; the tagger will skip it", zap.String("target", path))
		}
		return t, nil
	}

	// The tagger filters on the full image path, target included.
	if s.filter.Excluded(path) {
		s.logger.Warn("Target is inside an excluded folder; the tagger will skip it", zap.String("target", path))
		return Target{Path: path, IsDir: true}, nil
	}

	count := 0
	err = doublestar.GlobWalk(os.DirFS(path), "**/*", func(rel string, d fs.DirEntry) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if s.filter.Match(rel) {
			count++
		}
		return nil
	})
	if err != nil {
		return Target{}, fmt.Errorf("walk: %w", err)
	}

	s.logger.Debug("Scanned target", zap.String("target", path), zap.Int("images", count))
	return Target{Path: path, IsDir: true, Images: count}, nil
}
