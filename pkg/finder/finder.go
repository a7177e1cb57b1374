// Package finder discovers template and backend files and resolves template
// names against the templates root.
package finder

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"gitlab.com/tozd/go/errors"
)

// DefaultExclude are directories never walked.
var DefaultExclude = []string{"**/.git/**", "**/node_modules/**", "**/target/**", "**/__pycache__/**", "**/.venv/**"}

// Finder is responsible for finding files in a directory
type Finder interface {
	// Find returns the files under dir with one of the given extensions
	Find(ctx context.Context, dir string, extensions []string) ([]string, error)
}

// DefaultFinder walks an afero filesystem and matches paths with doublestar patterns.
type DefaultFinder struct {
	fs      afero.Fs
	exclude []string
}

func NewDefaultFinder(fs afero.Fs, exclude ...string) *DefaultFinder {
	if len(exclude) == 0 {
		exclude = DefaultExclude
	}
	return &DefaultFinder{fs: fs, exclude: exclude}
}

// Patterns turns extensions such as ".html" into "**/*.html".
func Patterns(extensions []string) []string {
	out := make([]string, 0, len(extensions))
	for _, ext := range extensions {
		out = append(out, "**/*"+ext)
	}
	return out
}

// Excluded reports whether a slash separated path relative to a walked root
// matches an exclude pattern.
func (f *DefaultFinder) Excluded(rel string) bool {
	for _, pattern := range f.exclude {
		if ok, err := doublestar.Match(pattern, rel); err == nil && ok {
			return true
		}
		// a directory itself, without a trailing path
		if ok, err := doublestar.Match(pattern, rel+"/x"); err == nil && ok {
			return true
		}
	}
	return false
}

// Find implements Finder. Results are absolute when dir is, and sorted.
func (f *DefaultFinder) Find(ctx context.Context, dir string, extensions []string) ([]string, error) {
	patterns := Patterns(extensions)
	var out []string

	err := afero.Walk(f.fs, dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if path == dir {
				return err
			}
			zerolog.Ctx(ctx).Debug().Err(err).Str("path", path).Msg("skipping unreadable path")
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		rel, rerr := filepath.Rel(dir, path)
		if rerr != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if info.IsDir() {
			if path != dir && f.Excluded(rel) {
				return filepath.SkipDir
			}
			return nil
		}
		if f.Excluded(rel) {
			return nil
		}
		for _, pattern := range patterns {
			if ok, _ := doublestar.Match(pattern, rel); ok {
				out = append(out, path)
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, errors.Errorf("walking %s: %w", dir, err)
	}

	sort.Strings(out)
	return out, nil
}

// TemplatePath resolves a template name against root. It fails when the
// name escapes root or the file does not exist.
func TemplatePath(fs afero.Fs, root, name string) (string, bool) {
	if name == "" || root == "" {
		return "", false
	}
	path := filepath.Clean(filepath.Join(root, filepath.FromSlash(name)))
	rel, err := filepath.Rel(filepath.Clean(root), path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	ok, err := afero.Exists(fs, path)
	if err != nil || !ok {
		return "", false
	}
	if dir, err := afero.IsDir(fs, path); err != nil || dir {
		return "", false
	}
	return path, true
}
