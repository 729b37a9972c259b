package console

// Terminal control sequences. Focus reporting (xterm mode 1004) makes the
// terminal send ESC[I on focus gain and ESC[O on focus loss.
const (
	EnableFocusReporting  = "\x1b[?1004h"
	DisableFocusReporting = "\x1b[?1004l"
	clearScreen           = "\x1b[2J\x1b[H"
	hideCursor            = "\x1b[?25l"
	showCursor            = "\x1b[?25h"
)

// KeyKind classifies decoded terminal input.
type KeyKind int

const (
	KeyRune KeyKind = iota
	KeyEnter
	KeyInterrupt
	KeyFocusIn
	KeyFocusOut
)

// Key is one decoded input event. Rune is set for KeyRune only.
type Key struct {
	Kind KeyKind
	Rune rune
}

// Decoder turns raw-mode terminal bytes into keys. Escape sequences split
// across reads are held until complete. Unknown sequences are dropped.
type Decoder struct {
	pending []byte
}

// Feed decodes b and returns the complete keys it contains.
func (d *Decoder) Feed(b []byte) []Key {
	buf := append(d.pending, b...)
	d.pending = nil

	var keys []Key
	for i := 0; i < len(buf); {
		c := buf[i]
		switch {
		case c == 0x1b:
			n, key, ok := decodeEscape(buf[i:])
			if n == 0 {
				d.pending = append([]byte(nil), buf[i:]...)
				return keys
			}
			if ok {
				keys = append(keys, key)
			}
			i += n
		case c == '\r' || c == '\n':
			keys = append(keys, Key{Kind: KeyEnter})
			i++
		case c == 0x03 || c == 0x04: // Ctrl-C, Ctrl-D
			keys = append(keys, Key{Kind: KeyInterrupt})
			i++
		case c >= 0x20 && c < 0x7f:
			keys = append(keys, Key{Kind: KeyRune, Rune: rune(c)})
			i++
		default:
			i++
		}
	}
	return keys
}

// decodeEscape returns the length of the sequence at the start of b, or 0
// when more bytes are needed.
func decodeEscape(b []byte) (int, Key, bool) {
	if len(b) < 2 {
		return 0, Key{}, false
	}
	if b[1] != '[' {
		// Lone ESC followed by a regular key.
		return 1, Key{}, false
	}
	for j := 2; j < len(b); j++ {
		if b[j] >= 0x40 && b[j] <= 0x7e {
			if j == 2 {
				switch b[j] {
				case 'I':
					return 3, Key{Kind: KeyFocusIn}, true
				case 'O':
					return 3, Key{Kind: KeyFocusOut}, true
				}
			}
			return j + 1, Key{}, false
		}
	}
	return 0, Key{}, false
}
