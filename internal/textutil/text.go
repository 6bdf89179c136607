// Package textutil cleans customer-entered text before it is written to
// reports or rendered onto engraving proofs.
package textutil

import (
	"strings"
	"unicode"
)

// StripEmoji removes emoji, pictographs, joiners, variation selectors and
// control characters. Line breaks and tabs become spaces and runs of
// whitespace collapse to a single space.
func StripEmoji(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	space := false
	for _, r := range s {
		switch {
		case r == '\n' || r == '\r' || r == '\t' || unicode.IsSpace(r):
			if !space && b.Len() > 0 {
				b.WriteByte(' ')
			}
			space = true
			continue
		case dropRune(r):
			continue
		}
		b.WriteRune(r)
		space = false
	}
	return strings.TrimSpace(b.String())
}

// NormalizeEngraving returns the text as it appears on a rendered proof.
func NormalizeEngraving(s string) string {
	return strings.ToUpper(StripEmoji(s))
}

func dropRune(r rune) bool {
	switch {
	case r == unicode.ReplacementChar:
		return true
	case unicode.IsControl(r):
		return true
	case unicode.Is(unicode.Cf, r), unicode.Is(unicode.Cs, r), unicode.Is(unicode.Co, r):
		// zero width joiners, tag characters, surrogates, private use
		return true
	case unicode.Is(unicode.So, r):
		return true
	case r >= 0xFE00 && r <= 0xFE0F:
		// variation selectors
		return true
	case r >= 0x1F1E6 && r <= 0x1F1FF:
		// regional indicators
		return true
	case r >= 0x1F3FB && r <= 0x1F3FF:
		// skin tone modifiers
		return true
	case r >= 0x1F000 && r <= 0x1FAFF:
		return true
	case r >= 0x2600 && r <= 0x27BF:
		// misc symbols and dingbats
		return true
	case r == 0x20E3:
		// combining enclosing keycap
		return true
	}
	return false
}
