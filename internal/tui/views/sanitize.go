package views

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// sanitizeForTerminal removes codepoints that tcell renders with the wrong width
// and control characters that would corrupt the layout. Newlines survive when
// keepNewlines is set.
//   - Skin tone modifiers (U+1F3FB..U+1F3FF)
//   - Zero Width Joiner (U+200D)
//   - Variation Selectors (U+FE00..U+FE0F, U+E0100..U+E01EF)
func sanitizeForTerminal(s string, keepNewlines bool) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		i += size
		switch {
		case r == utf8.RuneError && size == 1:
			continue
		case r == '\n' && keepNewlines:
			b.WriteRune(r)
		case r == '\t' || r == '\n' || r == '\r':
			b.WriteByte(' ')
		case unicode.IsControl(r), isProblematicRune(r):
			continue
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

func isProblematicRune(r rune) bool {
	switch {
	case r >= 0x1F3FB && r <= 0x1F3FF:
		return true
	case r == 0x200D:
		return true
	case r >= 0xFE00 && r <= 0xFE0F:
		return true
	case r >= 0xE0100 && r <= 0xE01EF:
		return true
	default:
		return false
	}
}
