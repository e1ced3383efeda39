package extract

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/kaptinlin/jsonrepair"
	"github.com/samber/lo"
)

var (
	// ErrNoJSON is returned when the text holds no JSON candidate block.
	ErrNoJSON = errors.New("no JSON block found")
	// ErrUnparsable is returned when the best candidate cannot be repaired into valid JSON.
	ErrUnparsable = errors.New("unparsable JSON")
)

// Options controls ParseJSON.
type Options struct {
	// RequireArray wraps a lone object in [...].
	RequireArray bool
}

// ParseJSON extracts the JSON payload from text, repairs it and decodes it.
// It returns the decoded value and the repaired JSON text.
func ParseJSON(text string, opts Options) (any, string, error) {
	candidate, err := pickCandidate(Blocks(text))
	if err != nil {
		return nil, "", err
	}

	cleaned := strings.TrimSpace(StripComments(candidate.Text))
	if opts.RequireArray && strings.HasPrefix(cleaned, "{") {
		cleaned = "[" + cleaned + "]"
	}

	repaired, err := jsonrepair.JSONRepair(cleaned)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrUnparsable, err)
	}

	var value any
	if err := json.Unmarshal([]byte(repaired), &value); err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrUnparsable, err)
	}
	if opts.RequireArray {
		if _, ok := value.([]any); !ok {
			return nil, "", fmt.Errorf("%w: expected a JSON array", ErrUnparsable)
		}
	}
	return value, repaired, nil
}

// pickCandidate returns the first JSON-capable block. With more than one
// candidate, blocks quoting literal braces are skipped as likely examples,
// unless that would leave nothing.
func pickCandidate(blocks []Block) (Block, error) {
	candidates := lo.Filter(blocks, func(b Block, _ int) bool {
		return IsJSONSyntax(b.Syntax)
	})
	if len(candidates) == 0 {
		return Block{}, ErrNoJSON
	}
	if len(candidates) > 1 {
		clean := lo.Reject(candidates, func(b Block, _ int) bool {
			return hasQuotedBrace(b.Text)
		})
		if len(clean) > 0 {
			candidates = clean
		}
	}
	return candidates[0], nil
}

// hasQuotedBrace reports whether a string literal in text contains '{' or '}'.
func hasQuotedBrace(text string) bool {
	inString, escaped := false, false
	for _, r := range text {
		switch {
		case escaped:
			escaped = false
		case inString && r == '\\':
			escaped = true
		case r == '"':
			inString = !inString
		case inString && (r == '{' || r == '}'):
			return true
		}
	}
	return false
}

// StripComments removes whole-line // comments, trailing // comments after
// the last quote on a line, and a stray comma leading the first entry after
// an opening brace or bracket.
func StripComments(text string) string {
	lines := splitLines(text)
	out := make([]string, 0, len(lines))
	prev := ""

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "//") {
			continue
		}

		line = stripTrailingComment(line)
		trimmed = strings.TrimSpace(line)

		if strings.HasPrefix(trimmed, ",") && (strings.HasSuffix(prev, "{") || strings.HasSuffix(prev, "[")) {
			idx := strings.Index(line, ",")
			line = line[:idx] + line[idx+1:]
			trimmed = strings.TrimSpace(line)
		}

		out = append(out, line)
		if trimmed != "" {
			prev = trimmed
		}
	}
	return strings.Join(out, "\n")
}

// stripTrailingComment cuts a // comment that follows the last '"' on the
// line, leaving slashes inside string values alone.
func stripTrailingComment(line string) string {
	start := strings.LastIndex(line, `"`) + 1
	if idx := strings.Index(line[start:], "//"); idx >= 0 {
		return strings.TrimRight(line[:start+idx], " \t")
	}
	return line
}
