package extract

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Property is one key/value pair from a line item's property blob.
type Property struct {
	Name  string
	Value string
}

// ParseProperties decodes a line item property blob. The blob is a list of
// maps written either as JSON or as a Python literal (single quotes, None,
// True, False). A map holding both "name" and "value" yields that one pair and
// its other keys are ignored; any other map yields one pair per entry, sorted
// by key.
//
// Malformed input yields an empty slice.
func ParseProperties(raw string) []Property {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.EqualFold(raw, "nan") || strings.EqualFold(raw, "none") {
		return nil
	}

	normalized, err := normalizeLiteral(raw)
	if err != nil {
		return nil
	}

	var list []map[string]any
	if err := json.Unmarshal([]byte(normalized), &list); err != nil {
		var single map[string]any
		if err := json.Unmarshal([]byte(normalized), &single); err != nil {
			return nil
		}
		list = []map[string]any{single}
	}

	var props []Property
	for _, m := range list {
		if m == nil {
			continue
		}
		name, hasName := m["name"]
		value, hasValue := m["value"]
		if hasName && hasValue {
			props = append(props, Property{Name: stringify(name), Value: stringify(value)})
			continue
		}
		keys := make([]string, 0, len(m))
		for k := range m {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			props = append(props, Property{Name: k, Value: stringify(m[k])})
		}
	}
	return props
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return ""
		}
		return string(b)
	}
}

// normalizeLiteral rewrites a Python-style literal into JSON. Quoted strings
// are re-encoded so apostrophes and escapes inside values survive. String
// prefixes (u'', b'') and trailing commas are dropped.
func normalizeLiteral(s string) (string, error) {
	out := make([]byte, 0, len(s)+16)

	for i := 0; i < len(s); {
		c := s[i]
		switch {
		case c == '\'' || c == '"':
			str, next, err := readQuoted(s, i)
			if err != nil {
				return "", err
			}
			b, err := json.Marshal(str)
			if err != nil {
				return "", err
			}
			out = append(out, b...)
			i = next
		case isIdentStart(c):
			j := i
			for j < len(s) && isIdentPart(s[j]) {
				j++
			}
			word := s[i:j]
			if j < len(s) && (s[j] == '\'' || s[j] == '"') && isStringPrefix(word) {
				i = j
				continue
			}
			switch word {
			case "None", "null", "nan", "NaN":
				out = append(out, "null"...)
			case "True", "true":
				out = append(out, "true"...)
			case "False", "false":
				out = append(out, "false"...)
			default:
				return "", fmt.Errorf("unexpected token %q at offset %d", word, i)
			}
			i = j
		case c == ']' || c == '}':
			out = trimTrailingComma(out)
			out = append(out, c)
			i++
		default:
			out = append(out, c)
			i++
		}
	}
	return string(out), nil
}

func isStringPrefix(word string) bool {
	switch strings.ToLower(word) {
	case "u", "b":
		return true
	}
	return false
}

// trimTrailingComma drops a comma that is followed only by whitespace.
func trimTrailingComma(out []byte) []byte {
	end := len(out)
	for end > 0 && (out[end-1] == ' ' || out[end-1] == '\t' || out[end-1] == '\n' || out[end-1] == '\r') {
		end--
	}
	if end > 0 && out[end-1] == ',' {
		return out[:end-1]
	}
	return out
}

// readQuoted reads the string literal starting at s[start] and returns its
// unescaped contents and the offset just past the closing quote.
func readQuoted(s string, start int) (string, int, error) {
	quote := s[start]
	var b strings.Builder
	for i := start + 1; i < len(s); {
		c := s[i]
		if c == quote {
			return b.String(), i + 1, nil
		}
		if c != '\\' {
			r, size := utf8.DecodeRuneInString(s[i:])
			b.WriteRune(r)
			i += size
			continue
		}
		if i+1 >= len(s) {
			break
		}
		esc := s[i+1]
		switch esc {
		case '\\', '\'', '"', '/':
			b.WriteByte(esc)
			i += 2
		case 'n':
			b.WriteByte('\n')
			i += 2
		case 't':
			b.WriteByte('\t')
			i += 2
		case 'r':
			b.WriteByte('\r')
			i += 2
		case 'u':
			if i+6 > len(s) {
				return "", 0, fmt.Errorf("short unicode escape at offset %d", i)
			}
			code, err := strconv.ParseUint(s[i+2:i+6], 16, 32)
			if err != nil {
				return "", 0, fmt.Errorf("bad unicode escape at offset %d: %w", i, err)
			}
			b.WriteRune(rune(code))
			i += 6
		default:
			b.WriteByte('\\')
			b.WriteByte(esc)
			i += 2
		}
	}
	return "", 0, fmt.Errorf("unterminated string starting at offset %d", start)
}

func isIdentStart(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c == '_'
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || c >= '0' && c <= '9'
}
