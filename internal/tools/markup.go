package tools

import (
	"fmt"
	"html"
	"strings"

	"github.com/ashutoshrp06/friday/internal/types"
)

const (
	toolTagPrefix = "tool_"
	bareParam     = "query"
)

// ToolType maps a tag name such as "tool_semantic_search" to the registry
// name "semantic_search".
func ToolType(tagName string) string {
	return strings.TrimPrefix(tagName, toolTagPrefix)
}

// parseParams splits a tool body into ordered <name>value</name> pairs.
//
// Values are taken verbatim up to the matching close tag, so they may contain
// '<' and '&'. Only whitespace may separate pairs. A body with no leading tag
// is accepted as a single "query" parameter.
func parseParams(raw string) (types.Params, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return types.Params{}, nil
	}
	if s[0] != '<' {
		return types.Params{{Name: bareParam, Value: html.UnescapeString(s)}}, nil
	}

	var params types.Params
	seen := make(map[string]bool)
	pos := 0
	for {
		for pos < len(s) && isSpace(s[pos]) {
			pos++
		}
		if pos == len(s) {
			return params, nil
		}
		if s[pos] != '<' {
			return nil, fmt.Errorf("%w: unexpected text at offset %d: %q", ErrParse, pos, preview(s[pos:]))
		}

		end := pos + 1
		for end < len(s) && isNameByte(s[end]) {
			end++
		}
		if end == pos+1 || end == len(s) || s[end] != '>' {
			return nil, fmt.Errorf("%w: invalid parameter tag at offset %d: %q", ErrParse, pos, preview(s[pos:]))
		}
		name := s[pos+1 : end]
		if seen[name] {
			return nil, fmt.Errorf("%w: duplicate parameter %q", ErrParse, name)
		}

		valueStart := end + 1
		closeTag := "</" + name + ">"
		closeAt := strings.Index(s[valueStart:], closeTag)
		if closeAt < 0 {
			return nil, fmt.Errorf("%w: unclosed parameter <%s>", ErrParse, name)
		}

		value := strings.TrimSpace(s[valueStart : valueStart+closeAt])
		params = append(params, types.Param{Name: name, Value: html.UnescapeString(value)})
		seen[name] = true
		pos = valueStart + closeAt + len(closeTag)
	}
}

func isNameByte(c byte) bool {
	return c >= 'a' && c <= 'z' ||
		c >= 'A' && c <= 'Z' ||
		c >= '0' && c <= '9' ||
		c == '_' || c == '-'
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\n' || c == '\t' || c == '\r'
}

func preview(s string) string {
	if len(s) <= 30 {
		return s
	}
	return s[:30] + "..."
}
