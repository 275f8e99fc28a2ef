// Package input selects candidate source images from an input tree.
package input

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gobwas/glob"
	"github.com/lucas-albers-lz4/respimg/pkg/config"
	"github.com/lucas-albers-lz4/respimg/pkg/fileutil"
	"github.com/lucas-albers-lz4/respimg/pkg/log"
	"github.com/spf13/afero"
)

// ErrRootNotFound is returned when the input tree root is missing or not a directory.
var ErrRootNotFound = errors.New("input tree root not found")

// Matcher tests slash-separated relative paths against include/exclude globs.
type Matcher struct {
	include []glob.Glob
	exclude []glob.Glob
}

// NewMatcher compiles the group's patterns.
func NewMatcher(include, exclude []string) (*Matcher, error) {
	m := &Matcher{}
	var err error
	if m.include, err = compileAll(include); err != nil {
		return nil, err
	}
	if m.exclude, err = compileAll(exclude); err != nil {
		return nil, err
	}
	return m, nil
}

// Match reports whether p matches at least one include and no exclude pattern.
func (m *Matcher) Match(p string) bool {
	p = fileutil.CleanSlash(p)
	if !matchAny(m.include, p) {
		return false
	}
	return !matchAny(m.exclude, p)
}

// Select returns the paths below root, relative and slash-separated, that the
// group selects. The result is sorted, but callers must not rely on the order.
func Select(fs afero.Fs, root string, group config.Group) ([]string, error) {
	ok, err := fileutil.DirExists(fs, root)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrRootNotFound, root, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRootNotFound, root)
	}

	m, err := NewMatcher(group.Include, group.Exclude)
	if err != nil {
		return nil, err
	}

	files, err := fileutil.ListFiles(fs, root)
	if err != nil {
		return nil, err
	}

	var selected []string
	for _, f := range files {
		if m.Match(f) {
			selected = append(selected, f)
		}
	}
	log.Debug("Selected input images", "root", root, "include", group.Include, "count", len(selected))
	return selected, nil
}

func compileAll(patterns []string) ([]glob.Glob, error) {
	var out []glob.Glob
	for _, p := range patterns {
		for _, variant := range expandGlobstar(fileutil.CleanSlash(p)) {
			g, err := glob.Compile(variant, '/')
			if err != nil {
				return nil, fmt.Errorf("invalid glob pattern %q: %w", p, err)
			}
			out = append(out, g)
		}
	}
	return out, nil
}

func matchAny(globs []glob.Glob, p string) bool {
	for _, g := range globs {
		if g.Match(p) {
			return true
		}
	}
	return false
}

// expandGlobstar returns the pattern plus the variants in which each "**/" segment
// matches zero directories, so "**/*.png" also selects "test.png" and
// "a/**/b.png" also selects "a/b.png".
func expandGlobstar(pattern string) []string {
	variants := []string{pattern}
	seen := map[string]bool{pattern: true}
	for i := 0; i < len(variants); i++ {
		v := variants[i]
		for idx := strings.Index(v, "**/"); idx >= 0; {
			if idx == 0 || v[idx-1] == '/' {
				reduced := v[:idx] + v[idx+3:]
				if !seen[reduced] {
					seen[reduced] = true
					variants = append(variants, reduced)
				}
			}
			next := strings.Index(v[idx+3:], "**/")
			if next < 0 {
				break
			}
			idx += 3 + next
		}
	}
	return variants
}
