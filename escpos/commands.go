// Package escpos encodes receipt documents into ESC/POS command streams.
package escpos

// Control bytes.
const (
	ESC = 0x1B
	GS  = 0x1D
	DLE = 0x10
	EOT = 0x04
	LF  = 0x0A
)

var (
	cmdInit        = []byte{ESC, '@'}
	cmdBoldOn      = []byte{ESC, 'E', 1}
	cmdBoldOff     = []byte{ESC, 'E', 0}
	cmdAlignLeft   = []byte{ESC, 'a', 0}
	cmdAlignCenter = []byte{ESC, 'a', 1}
	cmdAlignRight  = []byte{ESC, 'a', 2}
	cmdFeed        = []byte{LF}

	// CutCommand is GS V 0, a full cut.
	CutCommand = []byte{GS, 'V', 0}

	// StatusRequest is DLE EOT 1, the real-time printer status query.
	StatusRequest = []byte{DLE, EOT, 1}
)

func selectCodePage(n byte) []byte {
	return []byte{ESC, 't', n}
}
