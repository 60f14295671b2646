package fsync

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Match is one file selected by Expand.
type Match struct {
	// Path is relative to the expansion base, slash separated.
	Path string

	// Rel is relative to the static prefix of the pattern that matched it,
	// e.g. "a/b.woff" for "src/fonts/**/*" matching "src/fonts/a/b.woff".
	Rel string
}

// SplitPatterns separates include patterns from "!"-prefixed exclusions.
func SplitPatterns(patterns []string) (includes, excludes []string) {
	for _, p := range patterns {
		if strings.HasPrefix(p, "!") {
			excludes = append(excludes, normalizePattern(p[1:]))
			continue
		}
		includes = append(includes, normalizePattern(p))
	}
	return includes, excludes
}

func normalizePattern(p string) string {
	return path.Clean(filepath.ToSlash(strings.TrimSpace(p)))
}

// Expand resolves glob patterns (with "**" and "{a,b}") against base and
// returns matching regular files.
//
// Patterns prefixed with "!" exclude. The result is sorted by Path and
// deduplicated; when several patterns match a file the first one sets Rel.
func Expand(base string, patterns []string) ([]Match, error) {
	includes, excludes := SplitPatterns(patterns)
	for _, p := range append(append([]string{}, includes...), excludes...) {
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("invalid glob pattern %q", p)
		}
	}

	fsys := os.DirFS(base)
	seen := make(map[string]Match)
	for _, p := range includes {
		matches, err := doublestar.Glob(fsys, p, doublestar.WithFilesOnly())
		if err != nil {
			return nil, fsErr("glob", path.Join(filepath.ToSlash(base), p), err)
		}
		prefix, _ := doublestar.SplitPattern(p)
		for _, m := range matches {
			if _, dup := seen[m]; dup || matchesAny(excludes, m) {
				continue
			}
			rel := m
			if prefix != "." && prefix != "" {
				rel = strings.TrimPrefix(m, prefix+"/")
			}
			seen[m] = Match{Path: m, Rel: rel}
		}
	}

	out := make([]Match, 0, len(seen))
	for _, m := range seen {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

// MatchPath reports whether the slash-separated relative path p is selected
// by patterns: it matches an include and no "!" exclusion.
func MatchPath(patterns []string, p string) bool {
	includes, excludes := SplitPatterns(patterns)
	p = path.Clean(filepath.ToSlash(p))
	return matchesAny(includes, p) && !matchesAny(excludes, p)
}

func matchesAny(patterns []string, p string) bool {
	for _, pat := range patterns {
		if ok, err := doublestar.Match(pat, p); err == nil && ok {
			return true
		}
	}
	return false
}

// ReadMatches reads every match into memory.
func ReadMatches(base string, matches []Match) ([]File, error) {
	out := make([]File, 0, len(matches))
	for _, m := range matches {
		full := filepath.Join(base, filepath.FromSlash(m.Path))
		data, err := os.ReadFile(full)
		if err != nil {
			return nil, fsErr("read", full, err)
		}
		out = append(out, File{Path: m.Path, Data: data})
	}
	return out, nil
}
