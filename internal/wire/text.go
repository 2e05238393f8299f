package wire

import "strings"

// FilterText reduces incoming chat/name text to printable characters plus
// the Cube2 color-code escape (\f<digit>), per spec.md §9. It does not strip
// IRC control codes — that happens at the IRC bridge boundary, where text is
// headed the other direction.
func FilterText(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	runes := []rune(s)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if r == '\f' && i+1 < len(runes) && runes[i+1] >= '0' && runes[i+1] <= '9' {
			b.WriteRune(r)
			b.WriteRune(runes[i+1])
			i++
			continue
		}
		if r >= 0x20 && r < 0x7f {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// StripIRCControl removes mIRC color/bold/underline control bytes before a
// string crosses from IRC into in-game chat.
func StripIRCControl(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	skipDigits := 0
	for _, r := range s {
		switch {
		case r == 0x03: // mIRC color code, optionally followed by up to two digit pairs
			skipDigits = 5
		case r == 0x02, r == 0x1d, r == 0x1f, r == 0x16, r == 0x0f:
			// bold, italic, underline, reverse, reset
		case skipDigits > 0 && (r >= '0' && r <= '9' || r == ','):
			skipDigits--
		default:
			skipDigits = 0
			b.WriteRune(r)
		}
	}
	return b.String()
}
