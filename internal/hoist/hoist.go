// Package hoist implements C4: lifting nested function declarations out of
// oversized function/method bodies into addressable sibling blocks, leaving
// a [BLOCK_REF:<id>] placeholder behind.
package hoist

import (
	"fmt"
	"sort"
	"strings"

	"github.com/standardbeagle/semindex/internal/types"
)

// DefaultThreshold is the line span above which a function or method block
// becomes a hoisting candidate (spec.md §4.4), counted inclusively as
// end_line - start_line + 1.
const DefaultThreshold = 300

// marker formats the placeholder left in a parent's content for a hoisted
// child block.
func marker(id types.BlockID) string {
	return fmt.Sprintf("[BLOCK_REF:%d]", id)
}

// Apply rewrites blocks in place: any function or method block whose
// LineSpan exceeds threshold has its immediate function-typed children's
// bodies replaced in its Content with a [BLOCK_REF:<id>] line. blocks must
// already carry correct ParentBlockID links (as produced by
// internal/blocks.Extract); children are otherwise untouched. Calling Apply
// a second time on already-hoisted blocks is a no-op, since each
// replacement is skipped once its marker is already present.
func Apply(blocks []types.CodeBlock, threshold int) {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}

	byID := make(map[types.BlockID]int, len(blocks))
	for i, b := range blocks {
		byID[b.ID] = i
	}

	children := make(map[types.BlockID][]types.BlockID)
	for _, b := range blocks {
		if b.ParentBlockID != nil {
			children[*b.ParentBlockID] = append(children[*b.ParentBlockID], b.ID)
		}
	}

	for i := range blocks {
		outer := &blocks[i]
		if outer.Type != types.BlockFunction && outer.Type != types.BlockMethod {
			continue
		}
		if outer.LineSpan() <= threshold {
			continue
		}

		kids := children[outer.ID]
		if len(kids) == 0 {
			continue
		}

		var nested []types.CodeBlock
		for _, cid := range kids {
			idx, ok := byID[cid]
			if !ok {
				continue
			}
			if blocks[idx].Type == types.BlockFunction {
				nested = append(nested, blocks[idx])
			}
		}
		if len(nested) == 0 {
			continue
		}

		// Process bottom-up so earlier replacements don't shift the line
		// offsets of children still to be processed.
		sort.Slice(nested, func(a, b int) bool { return nested[a].StartLine > nested[b].StartLine })

		lines := strings.Split(outer.Content, "\n")
		for _, child := range nested {
			m := marker(child.ID)
			if strings.Contains(outer.Content, m) {
				continue
			}

			startIdx := child.StartLine - outer.StartLine
			endIdx := child.EndLine - outer.StartLine
			if startIdx < 0 || endIdx >= len(lines) || startIdx > endIdx {
				continue
			}

			indent := leadingWhitespace(lines[startIdx])
			replacement := indent + m

			rest := append([]string{}, lines[endIdx+1:]...)
			lines = append(lines[:startIdx], append([]string{replacement}, rest...)...)
		}
		outer.Content = strings.Join(lines, "\n")
	}
}

func leadingWhitespace(s string) string {
	i := 0
	for i < len(s) && (s[i] == ' ' || s[i] == '\t') {
		i++
	}
	return s[:i]
}
