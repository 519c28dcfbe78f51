package codec

import (
	"encoding/json"
	"fmt"
	"strings"
)

// parsePythonLiteral accepts the str(dict) representation Python produces
// for a dict/list of strings, numbers, bools, None, and nested
// dicts/lists - e.g. "{'result': 'HI', 'count': 2, 'ok': True, 'x': None}" -
// and decodes it by rewriting it into equivalent JSON and delegating to
// encoding/json. It does not attempt to be a general Python expression
// evaluator: it only handles the literal forms the reference
// implementation's str(dict) output actually produces.
func parsePythonLiteral(s string) (interface{}, error) {
	jsonLike, err := pythonLiteralToJSON(s)
	if err != nil {
		return nil, err
	}
	var v interface{}
	if err := json.Unmarshal([]byte(jsonLike), &v); err != nil {
		return nil, fmt.Errorf("codec: literal rewrite did not produce valid JSON: %w", err)
	}
	return v, nil
}

// pythonLiteralToJSON rewrites single-quoted string literals to
// double-quoted JSON strings (escaping embedded double quotes) and maps the
// bare Python keywords True/False/None to JSON's true/false/null. Runs as a
// single left-to-right scan so quoting state is never ambiguous.
func pythonLiteralToJSON(s string) (string, error) {
	var out strings.Builder
	runes := []rune(s)
	i := 0
	for i < len(runes) {
		c := runes[i]
		switch {
		case c == '\'':
			// Single-quoted string literal: re-emit as a JSON string.
			out.WriteByte('"')
			i++
			for i < len(runes) {
				switch runes[i] {
				case '\\':
					if i+1 < len(runes) {
						out.WriteRune(runes[i])
						out.WriteRune(runes[i+1])
						i += 2
						continue
					}
					return "", fmt.Errorf("codec: dangling escape in literal")
				case '\'':
					i++
					goto closed
				case '"':
					out.WriteString(`\"`)
					i++
				default:
					out.WriteRune(runes[i])
					i++
				}
			}
			return "", fmt.Errorf("codec: unterminated string literal")
		closed:
			out.WriteByte('"')
		case c == '"':
			// Already a double-quoted string; copy it verbatim including escapes.
			out.WriteRune(c)
			i++
			for i < len(runes) {
				out.WriteRune(runes[i])
				if runes[i] == '\\' && i+1 < len(runes) {
					i++
					out.WriteRune(runes[i])
				} else if runes[i] == '"' {
					i++
					break
				}
				i++
			}
		case hasKeywordAt(runes, i, "True"):
			out.WriteString("true")
			i += 4
		case hasKeywordAt(runes, i, "False"):
			out.WriteString("false")
			i += 5
		case hasKeywordAt(runes, i, "None"):
			out.WriteString("null")
			i += 4
		default:
			out.WriteRune(c)
			i++
		}
	}
	return out.String(), nil
}

func hasKeywordAt(runes []rune, i int, kw string) bool {
	kwRunes := []rune(kw)
	if i+len(kwRunes) > len(runes) {
		return false
	}
	for j, r := range kwRunes {
		if runes[i+j] != r {
			return false
		}
	}
	// Must not be a prefix of a longer identifier, e.g. "Truest".
	if i+len(kwRunes) < len(runes) {
		next := runes[i+len(kwRunes)]
		if (next >= 'a' && next <= 'z') || (next >= 'A' && next <= 'Z') || (next >= '0' && next <= '9') || next == '_' {
			return false
		}
	}
	return true
}
