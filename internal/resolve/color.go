package resolve

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strings"
)

// The portable color format is an 8-hex-digit RGBA string, "#RRGGBBAA".
// Legacy sources store an opaque binary blob instead; the decoder for that
// format lives behind ColorDecoder so it can be deleted once no source
// exhibits it.

// ColorDecoder decodes one historical color encoding to the portable form.
type ColorDecoder interface {
	Decode(raw []byte) (string, error)
}

// ErrColorFormat reports a blob no known decoder accepts.
var ErrColorFormat = errors.New("unrecognized color encoding")

var portableColorRE = regexp.MustCompile(`^#?[0-9a-fA-F]{8}$`)

// DecodeColor converts a source color value to the portable format. Values
// already in portable form pass through normalized; anything else goes to
// the legacy decoder.
func DecodeColor(raw []byte, legacy ColorDecoder) (string, error) {
	if s := strings.TrimSpace(string(raw)); portableColorRE.MatchString(s) {
		return "#" + strings.ToUpper(strings.TrimPrefix(s, "#")), nil
	}
	return legacy.Decode(raw)
}

// EncodeRGBA renders components in [0,1] as "#RRGGBBAA". Components are
// clamped before rounding.
func EncodeRGBA(r, g, b, a float64) string {
	return fmt.Sprintf("#%02X%02X%02X%02X", channel(r), channel(g), channel(b), channel(a))
}

func channel(c float64) uint8 {
	if c < 0 {
		c = 0
	}
	if c > 1 {
		c = 1
	}
	return uint8(math.Round(c * 255))
}

// CLR1Decoder decodes the historical binary color blob: the magic bytes
// "CLR" and version 1, followed by four big-endian float32 RGBA components
// in [0,1].
type CLR1Decoder struct{}

const clr1Len = 4 + 4*4

// Decode implements ColorDecoder.
func (CLR1Decoder) Decode(raw []byte) (string, error) {
	if len(raw) != clr1Len || raw[0] != 'C' || raw[1] != 'L' || raw[2] != 'R' || raw[3] != 1 {
		return "", fmt.Errorf("%w: %d bytes", ErrColorFormat, len(raw))
	}
	var comps [4]float64
	for i := range comps {
		bits := binary.BigEndian.Uint32(raw[4+4*i:])
		c := float64(math.Float32frombits(bits))
		if math.IsNaN(c) || c < 0 || c > 1 {
			return "", fmt.Errorf("%w: component %d out of range", ErrColorFormat, i)
		}
		comps[i] = c
	}
	return EncodeRGBA(comps[0], comps[1], comps[2], comps[3]), nil
}
