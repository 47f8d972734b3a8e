package escpos

import (
	"unicode"

	"golang.org/x/text/encoding/charmap"

	"github.com/nixxel-company-limited/escpos-print-bridge/config"
)

type codePage struct {
	table *charmap.Charmap
	// number selected with ESC t n on Epson compatible printers
	number byte
}

var codePages = map[config.CharacterSet]codePage{
	config.PC437USA:            {charmap.CodePage437, 0},
	config.PC850Multilingual:   {charmap.CodePage850, 2},
	config.PC860Portuguese:     {charmap.CodePage860, 3},
	config.PC863CanadianFrench: {charmap.CodePage863, 4},
	config.PC865Nordic:         {charmap.CodePage865, 5},
	config.WPC1252:             {charmap.Windows1252, 16},
	config.PC866Cyrillic2:      {charmap.CodePage866, 17},
	config.PC852Latin2:         {charmap.CodePage852, 18},
	config.PC858Euro:           {charmap.CodePage858, 19},
}

func codePageFor(cs config.CharacterSet) codePage {
	if cp, ok := codePages[cs]; ok {
		return cp
	}
	return codePages[config.PC437USA]
}

// Transcoder converts UTF-8 text into a single-byte printer code page.
// It never fails: unrepresentable runes become the substitute byte.
type Transcoder struct {
	page       codePage
	substitute byte
}

// NewTranscoder returns a transcoder for cs. The first rune of substitute
// replaces unrepresentable characters; it falls back to '?' when it cannot
// be represented itself.
func NewTranscoder(cs config.CharacterSet, substitute string) Transcoder {
	t := Transcoder{page: codePageFor(cs), substitute: '?'}
	for _, r := range substitute {
		if b, ok := t.page.table.EncodeRune(r); ok && !unicode.IsControl(r) {
			t.substitute = b
		}
		break
	}
	return t
}

// CodePage returns the ESC t argument for the transcoder's character set.
func (t Transcoder) CodePage() byte {
	return t.page.number
}

// Encode transcodes s. Control characters are substituted too so that text
// can never inject printer commands.
func (t Transcoder) Encode(s string) []byte {
	out := make([]byte, 0, len(s))
	for _, r := range s {
		if unicode.IsControl(r) {
			out = append(out, t.substitute)
			continue
		}
		b, ok := t.page.table.EncodeRune(r)
		if !ok {
			b = t.substitute
		}
		out = append(out, b)
	}
	return out
}
