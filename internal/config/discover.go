package config

import (
	"fmt"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"
)

// DiscoverRepositories expands each doublestar pattern in patterns
// against the filesystem and returns the containing working-tree
// directory for every match, deduplicated. A match named `.git` stands
// for its parent directory; any other match is returned as-is, so
// `~/code/*/.git` yields only Git working trees while `~/code/*` yields
// every entry under ~/code.
func DiscoverRepositories(patterns []string) ([]string, error) {
	seen := make(map[string]bool)
	var out []string

	for _, pattern := range patterns {
		expanded, err := ExpandPath(pattern)
		if err != nil {
			return nil, fmt.Errorf("expanding repo discovery glob %q: %w", pattern, err)
		}

		matches, err := doublestar.FilepathGlob(expanded)
		if err != nil {
			return nil, fmt.Errorf("repo discovery glob %q: %w", pattern, err)
		}

		for _, m := range matches {
			root := m
			if filepath.Base(m) == ".git" {
				root = filepath.Dir(m)
			}
			if seen[root] {
				continue
			}
			seen[root] = true
			out = append(out, root)
		}
	}

	return out, nil
}

// MatchesExtraIgnore reports whether rel (a slash-separated path
// relative to some watched root) matches any of the additional ignore
// glob patterns layered on top of .gitignore (§4.1).
func MatchesExtraIgnore(patterns []string, rel string) bool {
	rel = filepath.ToSlash(rel)
	for _, p := range patterns {
		if ok, _ := doublestar.Match(p, rel); ok {
			return true
		}
	}
	return false
}
