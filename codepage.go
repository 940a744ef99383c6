package zipvault

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Codec decodes a raw name/comment byte slice into a string. The default
// implementation is CP437; callers may supply any code page satisfying
// this interface.
type Codec interface {
	Decode(b []byte) string
}

// cp437HighTable maps bytes 0x80-0xFF to their CP437 code points. Bytes
// 0x00-0x7F are identical to ASCII/UTF-8 and are not listed.
var cp437HighTable = [128]rune{
	'Ç', 'ü', 'é', 'â', 'ä', 'à', 'å', 'ç',
	'ê', 'ë', 'è', 'ï', 'î', 'ì', 'Ä', 'Å',
	'É', 'æ', 'Æ', 'ô', 'ö', 'ò', 'û', 'ù',
	'ÿ', 'Ö', 'Ü', '¢', '£', '¥', '₧', 'ƒ',
	'á', 'í', 'ó', 'ú', 'ñ', 'Ñ', 'ª', 'º',
	'¿', '⌐', '¬', '½', '¼', '¡', '«', '»',
	'░', '▒', '▓', '│', '┤', '╡', '╢', '╖',
	'╕', '╣', '║', '╗', '╝', '╜', '╛', '┐',
	'└', '┴', '┬', '├', '─', '┼', '╞', '╟',
	'╚', '╔', '╩', '╦', '╠', '═', '╬', '╧',
	'╨', '╤', '╥', '╙', '╘', '╒', '╓', '╫',
	'╪', '┘', '┌', '█', '▄', '▌', '▐', '▀',
	'α', 'ß', 'Γ', 'π', 'Σ', 'σ', 'µ', 'τ',
	'Φ', 'Θ', 'Ω', 'δ', '∞', 'φ', 'ε', '∩',
	'≡', '±', '≥', '≤', '⌠', '⌡', '÷', '≈',
	'°', '∙', '·', '√', 'ⁿ', '²', '■', ' ',
}

var cp437DecodeTable [256]rune
var cp437EncodeTable map[rune]byte

func init() {
	for i := 0; i < 128; i++ {
		cp437DecodeTable[i] = rune(i)
	}
	copy(cp437DecodeTable[128:], cp437HighTable[:])

	cp437EncodeTable = make(map[rune]byte, 256)
	for i, r := range cp437DecodeTable {
		cp437EncodeTable[r] = byte(i)
	}
}

// cp437Codec decodes and encodes the OEM code page 437 glyph set.
type cp437Codec struct{}

// CP437 is the default code page used when a header's UTF-8 flag is not
// set and no other codec was supplied.
var CP437 Codec = cp437Codec{}

func (cp437Codec) Decode(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.Grow(len(b))
	for _, c := range b {
		sb.WriteRune(cp437DecodeTable[c])
	}
	return sb.String()
}

// Encode converts s back into CP437 bytes. It fails if s contains any
// code point absent from the table. The engine itself never writes
// archives, but the same table backs both directions so that a decoded
// name can be verified to round-trip.
func (cp437Codec) Encode(s string) ([]byte, error) {
	out := make([]byte, 0, len(s))
	for _, r := range s {
		b, ok := cp437EncodeTable[r]
		if !ok {
			return nil, fmt.Errorf("zipvault: rune %U has no CP437 representation", r)
		}
		out = append(out, b)
	}
	return out, nil
}

// utf8Codec decodes using UTF-8, substituting U+FFFD for malformed input.
type utf8Codec struct{}

func (utf8Codec) Decode(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	if utf8.Valid(b) {
		return string(b)
	}
	var sb strings.Builder
	sb.Grow(len(b))
	for len(b) > 0 {
		r, size := utf8.DecodeRune(b)
		sb.WriteRune(r)
		b = b[size:]
	}
	return sb.String()
}

var utf8Decoder Codec = utf8Codec{}

// detectUTF8 reports whether b is valid UTF-8 (valid) and whether it
// contains anything outside the CP437-compatible ASCII-like range that
// only makes sense under UTF-8 (require). Many ZIP writers never set the
// UTF-8 flag bit even when they wrote UTF-8 names, so a reader that only
// trusted the flag would render accented names as CP437 mojibake; this
// heuristic catches that case by looking at the bytes themselves.
func detectUTF8(b []byte) (valid, require bool) {
	for i := 0; i < len(b); {
		r, size := utf8.DecodeRune(b[i:])
		i += size
		if r < 0x20 || r > 0x7d || r == 0x5c {
			if !utf8.ValidRune(r) || (r == utf8.RuneError && size == 1) {
				return false, false
			}
			require = true
		}
	}
	return true, require
}

// textDecoder chooses UTF-8 or the caller's code page depending on the
// general-purpose UTF-8 flag bit. When heuristic is set, decodeName also
// applies detectUTF8 to names that aren't flagged UTF-8; this is an
// explicit opt-in (see WithUTF8Detection) and plays no part in decode,
// which always follows the flag bit alone.
type textDecoder struct {
	codec     Codec
	heuristic bool
}

func newTextDecoder(codec Codec, heuristic bool) textDecoder {
	if codec == nil {
		codec = CP437
	}
	return textDecoder{codec: codec, heuristic: heuristic}
}

// decode decodes a name or comment strictly by the general-purpose
// UTF-8 flag bit: UTF-8 if preferUTF8, the configured code page
// otherwise. No exceptions.
func (d textDecoder) decode(b []byte, preferUTF8 bool) string {
	if preferUTF8 {
		return utf8Decoder.Decode(b)
	}
	return d.codec.Decode(b)
}

// decodeName decodes an entry name the same way decode does, additionally
// reporting whether the result should be considered UTF-8. When the
// decoder's heuristic option is enabled, a name that isn't flagged UTF-8
// but whose bytes pass detectUTF8 is decoded as UTF-8 anyway, to recover
// readable names from writers that never set the flag bit.
func (d textDecoder) decodeName(b []byte, flaggedUTF8 bool) (string, bool) {
	if flaggedUTF8 {
		return utf8Decoder.Decode(b), true
	}
	if d.heuristic {
		if valid, require := detectUTF8(b); valid && require {
			return utf8Decoder.Decode(b), true
		}
	}
	return d.codec.Decode(b), false
}
