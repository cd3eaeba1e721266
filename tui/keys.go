package tui

import "unicode/utf8"

type keyKind int

const (
	keyRune keyKind = iota
	keyEnter
	keyEsc
	keyBackspace
	keyTab
	keyShiftTab
	keyUp
	keyDown
	keyLeft
	keyRight
	keyHome
	keyEnd
	keyPageUp
	keyPageDown
	keyCtrlC
)

type key struct {
	kind keyKind
	r    rune
}

// keyDecoder turns raw terminal input into keys for the list view.
// Escape sequences or multibyte runes split across reads are carried to
// the next call.
type keyDecoder struct {
	carry []byte
}

func (d *keyDecoder) Decode(p []byte) []key {
	buf := append(d.carry, p...)
	d.carry = nil
	var keys []key
	for len(buf) > 0 {
		b := buf[0]
		switch {
		case b == 0x1b:
			k, consumed, complete := decodeEscape(buf)
			if !complete {
				d.carry = append([]byte(nil), buf...)
				return keys
			}
			if k != nil {
				keys = append(keys, *k)
			}
			buf = buf[consumed:]
		case b == '\r' || b == '\n':
			keys = append(keys, key{kind: keyEnter})
			buf = buf[1:]
			// Swallow the LF half of a CRLF pair.
			if b == '\r' && len(buf) > 0 && buf[0] == '\n' {
				buf = buf[1:]
			}
		case b == 0x7f || b == 0x08:
			keys = append(keys, key{kind: keyBackspace})
			buf = buf[1:]
		case b == 0x03:
			keys = append(keys, key{kind: keyCtrlC})
			buf = buf[1:]
		case b == 0x09:
			keys = append(keys, key{kind: keyTab})
			buf = buf[1:]
		case b < 0x20:
			// Other control bytes have no list-view meaning.
			buf = buf[1:]
		case b < utf8.RuneSelf:
			keys = append(keys, key{kind: keyRune, r: rune(b)})
			buf = buf[1:]
		default:
			if !utf8.FullRune(buf) {
				d.carry = append([]byte(nil), buf...)
				return keys
			}
			r, size := utf8.DecodeRune(buf)
			if r != utf8.RuneError {
				keys = append(keys, key{kind: keyRune, r: r})
			}
			buf = buf[size:]
		}
	}
	return keys
}

// decodeEscape parses one escape sequence starting at buf[0] == ESC. It
// reports the key (nil for unrecognized sequences), byte count consumed,
// and whether the sequence was complete.
func decodeEscape(buf []byte) (*key, int, bool) {
	if len(buf) == 1 {
		// A bare ESC arrives alone in raw mode; a split sequence would
		// carry its continuation in the same read.
		return &key{kind: keyEsc}, 1, true
	}
	if buf[1] != '[' && buf[1] != 'O' {
		return &key{kind: keyEsc}, 1, true
	}
	for i := 2; i < len(buf); i++ {
		b := buf[i]
		if b == '~' || (b >= '@' && b <= '~' && b != '[') {
			k := keyForSequence(string(buf[2 : i+1]))
			return k, i + 1, true
		}
		if i-2 > 8 {
			return nil, i + 1, true
		}
	}
	return nil, 0, false
}

func keyForSequence(seq string) *key {
	switch seq {
	case "A":
		return &key{kind: keyUp}
	case "B":
		return &key{kind: keyDown}
	case "C":
		return &key{kind: keyRight}
	case "D":
		return &key{kind: keyLeft}
	case "H":
		return &key{kind: keyHome}
	case "F":
		return &key{kind: keyEnd}
	case "Z":
		return &key{kind: keyShiftTab}
	case "1~", "7~":
		return &key{kind: keyHome}
	case "4~", "8~":
		return &key{kind: keyEnd}
	case "5~":
		return &key{kind: keyPageUp}
	case "6~":
		return &key{kind: keyPageDown}
	default:
		return nil
	}
}
