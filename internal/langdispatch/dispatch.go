// Package langdispatch implements C2: mapping a file's path to one member
// of the closed types.Language enum, and lazily building the tree-sitter
// parser and capture query for that language. Unlike the teacher's
// map[string]*Parser keyed by file extension, dispatch here always goes
// through the closed types.Language switch first (spec.md's REDESIGN FLAGS
// calls for a closed-enum dispatcher rather than a string-keyed one); the
// extension-to-language table is the only string-keyed step, and it feeds
// straight into the enum.
package langdispatch

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"

	"github.com/standardbeagle/semindex/internal/types"
)

// extensionLanguage maps a lowercase file extension (with leading dot) to
// the language it belongs to. Extensions sharing a language (e.g. .ts and
// .tsx) resolve to the same grammar and query.
var extensionLanguage = map[string]types.Language{
	".go":    types.LangGo,
	".py":    types.LangPython,
	".js":    types.LangJavaScript,
	".jsx":   types.LangJavaScript,
	".mjs":   types.LangJavaScript,
	".cjs":   types.LangJavaScript,
	".ts":    types.LangTypeScript,
	".tsx":   types.LangTypeScript,
	".java":  types.LangJava,
	".rs":    types.LangRust,
	".php":   types.LangPHP,
	".phtml": types.LangPHP,
	".cs":    types.LangCSharp,
	".cpp":   types.LangCPP,
	".cc":    types.LangCPP,
	".cxx":   types.LangCPP,
	".c":     types.LangCPP,
	".h":     types.LangCPP,
	".hpp":   types.LangCPP,
	".zig":   types.LangZig,
}

// LanguageForPath returns the language path belongs to, or types.LangUnknown
// if the extension is not recognized.
func LanguageForPath(path string) types.Language {
	ext := strings.ToLower(filepath.Ext(path))
	if lang, ok := extensionLanguage[ext]; ok {
		return lang
	}
	return types.LangUnknown
}

// entry holds one language's lazily-built parser and block-capture query.
type entry struct {
	parser *tree_sitter.Parser
	query  *tree_sitter.Query
	err    error
}

// Dispatcher lazily constructs and caches, per language, the tree-sitter
// parser and capture query used to extract blocks from source files.
// A Dispatcher is safe for concurrent use.
type Dispatcher struct {
	mu      sync.Mutex
	entries map[types.Language]*entry
}

// New returns a Dispatcher with no languages yet initialized.
func New() *Dispatcher {
	return &Dispatcher{entries: make(map[types.Language]*entry)}
}

// Get returns the parser and block-capture query for lang, building them on
// first use. The tree-sitter Go binding is known to return a typed nil
// *Query alongside a non-nil error on some platforms; callers should treat
// a non-nil query as authoritative regardless of the error value, which
// this method already does internally.
func (d *Dispatcher) Get(lang types.Language) (*tree_sitter.Parser, *tree_sitter.Query, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if e, ok := d.entries[lang]; ok {
		return e.parser, e.query, e.err
	}

	setup, ok := setupFuncs[lang]
	if !ok {
		e := &entry{err: fmt.Errorf("langdispatch: no grammar registered for %v", lang)}
		d.entries[lang] = e
		return nil, nil, e.err
	}

	parser, query, err := setup()
	e := &entry{parser: parser, query: query, err: err}
	if query != nil {
		// Tolerate the typed-nil-error quirk: a usable query overrides err.
		e.err = nil
	}
	d.entries[lang] = e
	return e.parser, e.query, e.err
}
