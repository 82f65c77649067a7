package agent

import (
	"regexp"
	"strings"
)

const fence = "```"

// codeBlockPattern matches a fenced block with an optional language tag.
var codeBlockPattern = regexp.MustCompile("```(\\w+)?\\s([\\s\\S]+?)```")

// ExtractCodeBlock pulls a candidate query out of model text. When the text
// contains a fence only the first fenced block is returned; otherwise the
// text from the first SELECT onward is returned. The result is not trimmed.
//
// Replies holding several blocks are not disambiguated, and a SELECT inside
// unrelated prose is accepted as is.
func ExtractCodeBlock(text string) (string, bool) {
	if !strings.Contains(text, fence) {
		if i := strings.Index(text, "SELECT"); i >= 0 {
			return text[i:], true
		}
		return "", false
	}

	m := codeBlockPattern.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	return m[2], true
}

// ExtractAssumptions returns the prose that precedes the first fenced block.
func ExtractAssumptions(text string) string {
	i := strings.Index(text, fence)
	if i < 0 {
		return ""
	}
	return strings.TrimSpace(text[:i])
}

// isQuery reports whether extracted text looks like a read query.
func isQuery(code string) bool {
	code = strings.TrimSpace(code)
	return strings.HasPrefix(code, "SELECT") || strings.HasPrefix(code, "WITH")
}
