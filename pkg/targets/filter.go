package targets

import (
	"errors"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// ImageExtensions are the file types the tagger accepts.
var ImageExtensions = []string{
	".jpg", ".jpeg", ".png", ".tif", ".tiff",
	".nef", ".cr2", ".arw", ".dng", ".raf", ".orf", ".rw2",
}

// DefaultExcludes skip anything whose path contains ".lrdata", which covers
// Lightroom catalog previews and helper folders.
var DefaultExcludes = []string{
	"**/*.lrdata*",
	"**/*.lrdata*/**",
}

// ErrInvalidPattern is returned when a pattern cannot be compiled.
var ErrInvalidPattern = errors.New("invalid glob pattern")

// PatternError wraps pattern-related errors with context.
type PatternError struct {
	Pattern string
	Err     error
}

func (e *PatternError) Error() string {
	return "pattern " + e.Pattern + ": " + e.Err.Error()
}

func (e *PatternError) Unwrap() error {
	return e.Err
}

// Filter decides which relative paths under a target directory are images
// the tagger will process.
//
// Inside a directory an extension matches only in all-lowercase or
// all-uppercase form, so "IMG.NEF" and "img.nef" count but "img.Nef" does
// not. Excludes are case-sensitive. A single file target is checked
// case-insensitively by Supported. The Filter is safe for concurrent use
// after creation.
type Filter struct {
	includes []string
	excludes []string
}

// NewFilter builds a Filter from file extensions and exclude patterns.
// Empty extensions select ImageExtensions.
func NewFilter(extensions, excludes []string) (*Filter, error) {
	if len(extensions) == 0 {
		extensions = ImageExtensions
	}

	f := &Filter{}
	for _, ext := range extensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		for _, p := range []string{"**/*" + ext, "**/*" + strings.ToUpper(ext)} {
			if !doublestar.ValidatePattern(p) {
				return nil, &PatternError{Pattern: ext, Err: ErrInvalidPattern}
			}
			f.includes = append(f.includes, p)
		}
	}

	for _, raw := range excludes {
		p := strings.ReplaceAll(raw, `\`, "/")
		if !doublestar.ValidatePattern(p) {
			return nil, &PatternError{Pattern: raw, Err: ErrInvalidPattern}
		}
		f.excludes = append(f.excludes, p)
	}
	return f, nil
}

// Match reports whether rel, a slash-separated path relative to a target
// directory, is a supported image outside every excluded tree.
func (f *Filter) Match(rel string) bool {
	matched := false
	for _, p := range f.includes {
		if matchPattern(p, rel) {
			matched = true
			break
		}
	}
	return matched && !f.Excluded(rel)
}

// Excluded reports whether a path falls inside an excluded tree. Absolute
// paths are accepted so a target directory can be checked as a whole.
func (f *Filter) Excluded(path string) bool {
	key := strings.TrimPrefix(filepath.ToSlash(path), "/")
	for _, p := range f.excludes {
		if matchPattern(p, key) {
			return true
		}
	}
	return false
}

// Supported reports whether a single file's name has a supported
// extension, ignoring excludes.
func (f *Filter) Supported(name string) bool {
	key := strings.ToLower(name)
	for _, p := range f.includes {
		if matchPattern(p, key) {
			return true
		}
	}
	return false
}

func matchPattern(pattern, key string) bool {
	matched, err := doublestar.Match(pattern, key)
	if err != nil {
		// Validated at construction.
		return false
	}
	return matched
}
