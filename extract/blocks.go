// Package extract locates JSON payloads in free-form model output and
// repairs them into parseable JSON.
package extract

import (
	"encoding/json"
	"strings"
)

// Syntax tags of fenced blocks that are treated as JSON.
const (
	SyntaxJSON    = "json"
	SyntaxJSONC   = "jsonc"
	SyntaxJSON5   = "json5"
	SyntaxUnknown = ""
)

const fence = "```"

// Block is one code block found in model output. Syntax is the fence's
// language tag, lower-cased, or SyntaxJSON for blocks detected without a fence.
type Block struct {
	Syntax string
	Text   string
}

type scanState int

const (
	stateText scanState = iota
	stateFence
	stateSudden
)

// Blocks splits text into code blocks.
//
// If the first line opens a JSON value, the whole text is one JSON block.
// Otherwise fenced blocks and "sudden" JSON blocks (a line starting with
// '[' or '{' outside a fence, closed by a line starting with ']' or '}' that
// is indented no deeper than the opening line) are collected in order.
// Blocks left open at the end of the text are kept.
// When nothing is found the whole text is returned as a single block of
// unknown syntax.
func Blocks(text string) []Block {
	lines := splitLines(text)
	if len(lines) > 0 && opensJSON(strings.TrimSpace(lines[0])) {
		return []Block{{Syntax: SyntaxJSON, Text: strings.TrimSpace(text)}}
	}

	var (
		blocks []Block
		state  = stateText
		syntax string
		buf    []string
		indent int
	)
	flush := func() {
		blocks = append(blocks, Block{Syntax: syntax, Text: strings.Join(buf, "\n")})
		buf = nil
		state = stateText
	}

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		switch state {
		case stateText:
			switch {
			case strings.HasPrefix(trimmed, fence):
				state = stateFence
				syntax = strings.ToLower(strings.TrimSpace(trimmed[len(fence):]))
			case opensJSON(trimmed):
				syntax = SyntaxJSON
				buf = []string{line}
				indent = indentOf(line)
				state = stateSudden
				// A complete value on one line needs no closing line.
				if json.Valid([]byte(trimmed)) {
					buf = []string{trimmed}
					flush()
				}
			}
		case stateFence:
			if trimmed == fence {
				flush()
				continue
			}
			buf = append(buf, line)
		case stateSudden:
			buf = append(buf, line)
			if (strings.HasPrefix(trimmed, "]") || strings.HasPrefix(trimmed, "}")) && indentOf(line) <= indent {
				flush()
			}
		}
	}
	if state != stateText {
		flush()
	}

	if len(blocks) == 0 {
		return []Block{{Syntax: SyntaxUnknown, Text: text}}
	}
	return blocks
}

// IsJSONSyntax reports whether a block tagged with syntax may hold JSON.
func IsJSONSyntax(syntax string) bool {
	switch syntax {
	case SyntaxJSON, SyntaxJSONC, SyntaxJSON5, SyntaxUnknown:
		return true
	}
	return false
}

func opensJSON(line string) bool {
	return strings.HasPrefix(line, "[") || strings.HasPrefix(line, "{")
}

func indentOf(line string) int {
	return len(line) - len(strings.TrimLeft(line, " \t"))
}

func splitLines(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	return strings.Split(text, "\n")
}
