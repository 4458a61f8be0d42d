package technique

import "strings"

const (
	zwSpace     = '\u200b' // bit 0
	zwNonJoiner = '\u200c' // bit 1
	zwJoiner    = '\u200d' // character separator
)

// EncodeZeroWidth renders each byte of s as eight zero-width characters,
// most significant bit first, separated by zero-width joiners.
func EncodeZeroWidth(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if i > 0 {
			b.WriteRune(zwJoiner)
		}
		c := s[i]
		for bit := 7; bit >= 0; bit-- {
			if c&(1<<uint(bit)) != 0 {
				b.WriteRune(zwNonJoiner)
			} else {
				b.WriteRune(zwSpace)
			}
		}
	}
	return b.String()
}

func isZeroWidth(r rune) bool {
	return r == zwSpace || r == zwNonJoiner || r == zwJoiner
}

// DecodeZeroWidth finds every run of zero-width characters in text and
// decodes it. Runs that decode to five characters or fewer are noise.
func DecodeZeroWidth(text string) []string {
	var out []string
	var run []rune
	flush := func() {
		if len(run) == 0 {
			return
		}
		if s := decodeRun(run); len(s) > 5 {
			out = append(out, s)
		}
		run = run[:0]
	}
	for _, r := range text {
		if isZeroWidth(r) {
			run = append(run, r)
			continue
		}
		flush()
	}
	flush()
	return out
}

func decodeRun(run []rune) string {
	var b strings.Builder
	var c byte
	n := 0
	emit := func() {
		if n == 8 {
			b.WriteByte(c)
		}
		c, n = 0, 0
	}
	for _, r := range run {
		switch r {
		case zwJoiner:
			emit()
		case zwSpace:
			c <<= 1
			n++
		case zwNonJoiner:
			c = c<<1 | 1
			n++
		}
	}
	emit()
	return b.String()
}
