package escpos

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/nixxel-company-limited/escpos-print-bridge/config"
)

func TestTranscoderLatin2(t *testing.T) {
	tc := NewTranscoder(config.PC852Latin2, "?")
	assert.Equal(t, byte(18), tc.CodePage())
	// ł is 0x88 and ż is 0xBE in code page 852
	assert.Equal(t, []byte{'a', 0x88, 0xBE}, tc.Encode("ałż"))
}

func TestTranscoderSubstitution(t *testing.T) {
	tc := NewTranscoder(config.PC437USA, "#")
	assert.Equal(t, []byte("price #5 #"), tc.Encode("price €5 ☃"))
}

func TestTranscoderControlCharacters(t *testing.T) {
	tc := NewTranscoder(config.PC437USA, "?")
	assert.Equal(t, []byte("a?@b"), tc.Encode("a\x1b@b"))
}

func TestTranscoderInvalidUTF8(t *testing.T) {
	tc := NewTranscoder(config.PC437USA, "?")
	assert.Equal(t, []byte("a?b"), tc.Encode("a\xffb"))
}

func TestTranscoderUnrepresentableSubstitute(t *testing.T) {
	tc := NewTranscoder(config.PC437USA, "☃")
	assert.Equal(t, []byte("?"), tc.Encode("€"))
}

func TestTranscoderUnknownSetFallsBack(t *testing.T) {
	tc := NewTranscoder("EBCDIC", "?")
	assert.Equal(t, byte(0), tc.CodePage())
	assert.Equal(t, []byte("ok"), tc.Encode("ok"))
}

func TestEveryCharacterSetHasCodePage(t *testing.T) {
	for _, cs := range config.CharacterSets {
		_, ok := codePages[cs]
		assert.True(t, ok, cs)
	}
}

func TestEuroInPC858(t *testing.T) {
	tc := NewTranscoder(config.PC858Euro, "?")
	assert.Equal(t, []byte{0xD5}, tc.Encode("€"))
}
