package config

import (
	"bufio"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// GitignorePattern is one parsed line of a .gitignore file.
type GitignorePattern struct {
	Pattern   string
	Negate    bool
	Directory bool
	Absolute  bool
}

// GitignoreParser accumulates patterns from one or more .gitignore files and
// matches relative paths against them, last-match-wins as git itself does.
type GitignoreParser struct {
	patterns []GitignorePattern
}

// NewGitignoreParser returns an empty parser.
func NewGitignoreParser() *GitignoreParser {
	return &GitignoreParser{}
}

// LoadGitignore reads rootPath/.gitignore if present; a missing file is not
// an error, matching git's own behavior.
func (gp *GitignoreParser) LoadGitignore(rootPath string) error {
	f, err := os.Open(filepath.Join(rootPath, ".gitignore"))
	if err != nil {
		return nil
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		gp.patterns = append(gp.patterns, parseGitignoreLine(line))
	}
	return scanner.Err()
}

func parseGitignoreLine(line string) GitignorePattern {
	p := GitignorePattern{}
	if strings.HasPrefix(line, "!") {
		p.Negate = true
		line = line[1:]
	}
	if strings.HasSuffix(line, "/") {
		p.Directory = true
		line = strings.TrimSuffix(line, "/")
	}
	if strings.HasPrefix(line, "/") {
		p.Absolute = true
		line = line[1:]
	}
	p.Pattern = line
	return p
}

// Match reports whether relPath (POSIX-separated, relative to the gitignore
// root) is ignored. Patterns are evaluated in file order with later
// patterns (including negations) overriding earlier matches, as git does.
func (gp *GitignoreParser) Match(relPath string, isDir bool) bool {
	ignored := false
	for _, p := range gp.patterns {
		if p.Directory && !isDir {
			// A directory pattern reaches a file only through one of the
			// file's parent directories.
			if dir := path.Dir(relPath); dir != "." && matchGitignorePattern(p, dir) {
				ignored = !p.Negate
			}
			continue
		}
		if matchGitignorePattern(p, relPath) {
			ignored = !p.Negate
		}
	}
	return ignored
}

func matchGitignorePattern(p GitignorePattern, relPath string) bool {
	glob := p.Pattern
	if p.Absolute {
		// Already anchored at the root; leave as-is.
	} else if !strings.Contains(glob, "/") {
		// A pattern with no slash matches at any depth, like "**/name".
		glob = "**/" + glob
	} else if !strings.HasPrefix(glob, "**/") {
		glob = "**/" + glob
	}

	if ok, _ := doublestar.Match(glob, relPath); ok {
		return true
	}
	// A directory pattern also matches anything underneath it.
	if ok, _ := doublestar.Match(glob+"/**", relPath); ok {
		return true
	}
	return false
}
