// Package blocks implements C3: turning a parsed syntax tree into a tree of
// types.CodeBlock values with parent/child nesting, using the capture
// queries internal/langdispatch compiles per language.
package blocks

import (
	"sort"
	"strings"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"

	"github.com/standardbeagle/semindex/internal/idcodec"
	"github.com/standardbeagle/semindex/internal/langdispatch"
	"github.com/standardbeagle/semindex/internal/types"
)

// captureTypes maps a query's base capture name (the part before the first
// dot, or the whole name if there is none) to the BlockType it denotes.
// "variable" and "export" captures are kept only when nothing else claims
// their byte range, since a variable holding a function literal is always
// additionally captured as @function by the same query.
var captureTypes = map[string]types.BlockType{
	"function":  types.BlockFunction,
	"method":    types.BlockMethod,
	"class":     types.BlockClass,
	"interface": types.BlockInterface,
	"enum":      types.BlockEnum,
	"import":    types.BlockImport,
	"export":    types.BlockExport,
	"variable":  types.BlockVariable,
}

// typeRank orders block types for tie-breaking when two captures cover the
// identical byte range: declarations outrank expressions, and a named
// capture always outranks a variable/export wrapper around the same range.
var typeRank = map[types.BlockType]int{
	types.BlockClass:     0,
	types.BlockInterface: 0,
	types.BlockEnum:      0,
	types.BlockMethod:    1,
	types.BlockFunction:  1,
	types.BlockImport:    2,
	types.BlockExport:    3,
	types.BlockVariable:  4,
}

// candidate is one block occurrence before parent/child linking.
type candidate struct {
	node      tree_sitter.Node
	blockType types.BlockType
	name      string
	startByte uint
	endByte   uint
}

// Extract parses content as lang and returns its code blocks in
// depth-first, lexicographic-by-start order, with ParentBlockID set for
// nested blocks. fileID seeds the blocks' composite IDs.
func Extract(disp *langdispatch.Dispatcher, lang types.Language, fileID types.FileID, content []byte) ([]types.CodeBlock, error) {
	parser, query, err := disp.Get(lang)
	if err != nil {
		return nil, err
	}

	tree := parser.Parse(content, nil)
	if tree == nil {
		return nil, nil
	}
	defer tree.Close()

	cursor := tree_sitter.NewQueryCursor()
	defer cursor.Close()

	matches := cursor.Matches(query, tree.RootNode(), content)
	candidates := make([]candidate, 0, 64)

	for {
		match := matches.Next()
		if match == nil {
			break
		}
		candidates = append(candidates, candidatesFromMatch(query, match, content)...)
	}

	candidates = dedupByRange(candidates)
	return buildTree(candidates, fileID, content), nil
}

// candidatesFromMatch extracts zero or one candidate per match: the node
// bound to the base capture name (e.g. "function", not "function.name")
// is the block's span, and a sibling "<base>.name" capture (if present)
// supplies its Name.
func candidatesFromMatch(query *tree_sitter.Query, match *tree_sitter.QueryMatch, content []byte) []candidate {
	names := query.CaptureNames()

	var blockNode *tree_sitter.Node
	var blockType types.BlockType
	var blockName string
	haveType := false

	for _, cap := range match.Captures {
		capName := names[cap.Index]
		base, field, hasField := strings.Cut(capName, ".")

		if bt, ok := captureTypes[base]; ok && !hasField {
			n := cap.Node
			blockNode = &n
			blockType = bt
			haveType = true
			continue
		}
		if hasField && field == "name" {
			blockName = cap.Node.Utf8Text(content)
		}
	}

	if !haveType || blockNode == nil {
		return nil
	}

	return []candidate{{
		node:      *blockNode,
		blockType: blockType,
		name:      blockName,
		startByte: uint(blockNode.StartByte()),
		endByte:   uint(blockNode.EndByte()),
	}}
}

// dedupByRange keeps one candidate per identical byte range, preferring the
// lowest typeRank (declaration over expression, named wrapper over the
// variable/export capture that also matched the same span).
func dedupByRange(in []candidate) []candidate {
	best := make(map[[2]uint]candidate, len(in))
	for _, c := range in {
		key := [2]uint{c.startByte, c.endByte}
		cur, ok := best[key]
		if !ok || typeRank[c.blockType] < typeRank[cur.blockType] {
			best[key] = c
		}
	}
	out := make([]candidate, 0, len(best))
	for _, c := range best {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].startByte != out[j].startByte {
			return out[i].startByte < out[j].startByte
		}
		// Outer (larger span) first so it becomes the parent of any block
		// sharing its start byte.
		return out[i].endByte > out[j].endByte
	})
	return out
}

// buildTree assigns composite IDs and parent links using a stack of
// currently-open ranges, which candidates (sorted by start-ascending,
// end-descending) naturally nest into.
func buildTree(candidates []candidate, fileID types.FileID, content []byte) []types.CodeBlock {
	counter := idcodec.NewCounter(fileID)

	blocks := make([]types.CodeBlock, 0, len(candidates))
	type openBlock struct {
		id      types.BlockID
		endByte uint
	}
	var stack []openBlock

	for _, c := range candidates {
		for len(stack) > 0 && stack[len(stack)-1].endByte <= c.startByte {
			stack = stack[:len(stack)-1]
		}

		id := counter.Next()
		var parent *types.BlockID
		if len(stack) > 0 {
			p := stack[len(stack)-1].id
			parent = &p
		}

		sp := c.node.StartPosition()
		ep := c.node.EndPosition()

		blocks = append(blocks, types.CodeBlock{
			ID:            id,
			FileID:        fileID,
			ParentBlockID: parent,
			Type:          c.blockType,
			Name:          c.name,
			Content:       c.node.Utf8Text(content),
			StartLine:     int(sp.Row) + 1,
			EndLine:       int(ep.Row) + 1,
			StartCol:      int(sp.Column),
			EndCol:        int(ep.Column),
		})

		stack = append(stack, openBlock{id: id, endByte: c.endByte})
	}

	return blocks
}
