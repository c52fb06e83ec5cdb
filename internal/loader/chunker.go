package loader

import (
	"maps"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// markdown is safe for concurrent use; Parse allocates per-call state.
// GFM tables are left disabled so table rows stay in the text as paragraphs.
var markdown = goldmark.New()

// block is the plain text of one top-level Markdown block.
type block struct {
	text         string
	headingLevel int
}

// section is a run of blocks under one heading.
type section struct {
	title  string
	level  int
	blocks []string
}

// Segment splits source text with the strategy named in opts.ChunkType.
// base is copied into every chunk's metadata before the chunk-specific keys
// are set.
func Segment(source []byte, opts Options, base map[string]any) []Chunk {
	blocks := parseBlocks(source)
	chunkType := opts.ChunkType
	if chunkType == "" {
		chunkType = ChunkByTitle
	}

	var chunks []Chunk
	switch chunkType {
	case ChunkByParagraph:
		texts := make([]string, 0, len(blocks))
		for _, b := range blocks {
			texts = append(texts, b.text)
		}
		for _, piece := range packBlocks(texts, opts.MaxCharacters) {
			chunks = append(chunks, newChunk(piece, base, nil))
		}
	default:
		for _, sec := range groupSections(blocks) {
			for _, piece := range packBlocks(sec.blocks, opts.MaxCharacters) {
				extra := map[string]any{}
				if sec.title != "" {
					extra["title"] = sec.title
					extra["section_level"] = sec.level
				}
				chunks = append(chunks, newChunk(piece, base, extra))
			}
		}
	}
	for i := range chunks {
		chunks[i].Metadata["chunk_index"] = i
		chunks[i].Metadata["chunk_type"] = chunkType
	}
	return chunks
}

func newChunk(text string, base, extra map[string]any) Chunk {
	metadata := make(map[string]any, len(base)+len(extra)+2)
	maps.Copy(metadata, base)
	maps.Copy(metadata, extra)
	return Chunk{Text: text, Metadata: metadata}
}

// parseBlocks returns the non-empty top-level blocks of a Markdown
// document. Plain text parses as a sequence of paragraphs.
func parseBlocks(source []byte) []block {
	doc := markdown.Parser().Parse(text.NewReader(source))
	var blocks []block
	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		content := blockText(n, source)
		if content == "" {
			continue
		}
		b := block{text: content}
		if heading, ok := n.(*ast.Heading); ok {
			b.headingLevel = heading.Level
		}
		blocks = append(blocks, b)
	}
	return blocks
}

// blockText concatenates the source lines of every leaf block under n.
func blockText(n ast.Node, source []byte) string {
	var lines []string
	_ = ast.Walk(n, func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering || node.Type() != ast.TypeBlock {
			return ast.WalkContinue, nil
		}
		segments := node.Lines()
		if segments == nil || segments.Len() == 0 {
			return ast.WalkContinue, nil
		}
		for i := 0; i < segments.Len(); i++ {
			seg := segments.At(i)
			line := strings.TrimRight(string(seg.Value(source)), " \t\r\n")
			if line != "" {
				lines = append(lines, line)
			}
		}
		return ast.WalkSkipChildren, nil
	})
	return strings.Join(lines, "\n")
}

// groupSections starts a new section at every heading. Content before the
// first heading forms an untitled section.
func groupSections(blocks []block) []section {
	var sections []section
	current := section{}
	for _, b := range blocks {
		if b.headingLevel > 0 {
			if len(current.blocks) > 0 {
				sections = append(sections, current)
			}
			current = section{title: b.text, level: b.headingLevel}
		}
		current.blocks = append(current.blocks, b.text)
	}
	if len(current.blocks) > 0 {
		sections = append(sections, current)
	}
	return sections
}

// packBlocks joins consecutive blocks with blank lines while the result
// stays within maxChars. maxChars <= 0 joins everything. A single block
// longer than maxChars is split on word boundaries.
func packBlocks(blocks []string, maxChars int) []string {
	if len(blocks) == 0 {
		return nil
	}
	if maxChars <= 0 {
		return []string{strings.Join(blocks, "\n\n")}
	}
	var out []string
	var current strings.Builder
	flush := func() {
		if current.Len() > 0 {
			out = append(out, current.String())
			current.Reset()
		}
	}
	for _, b := range blocks {
		if len(b) > maxChars {
			flush()
			out = append(out, splitWords(b, maxChars)...)
			continue
		}
		sep := 0
		if current.Len() > 0 {
			sep = 2
		}
		if current.Len()+sep+len(b) > maxChars {
			flush()
			sep = 0
		}
		if sep > 0 {
			current.WriteString("\n\n")
		}
		current.WriteString(b)
	}
	flush()
	return out
}

// splitWords cuts text into pieces of at most maxChars bytes at whitespace.
// A word longer than maxChars becomes its own piece.
func splitWords(text string, maxChars int) []string {
	var out []string
	var current strings.Builder
	for _, word := range strings.Fields(text) {
		if current.Len() > 0 && current.Len()+1+len(word) > maxChars {
			out = append(out, current.String())
			current.Reset()
		}
		if current.Len() > 0 {
			current.WriteByte(' ')
		}
		current.WriteString(word)
	}
	if current.Len() > 0 {
		out = append(out, current.String())
	}
	return out
}
