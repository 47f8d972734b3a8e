package escpos

import (
	"strings"

	"github.com/nixxel-company-limited/escpos-print-bridge/config"
	"github.com/nixxel-company-limited/escpos-print-bridge/receipt"
)

// OpKind is a printer primitive.
type OpKind int

const (
	OpInit OpKind = iota
	OpAlign
	OpBold
	OpText
	OpFeed
	OpCut
)

// Align is a horizontal text alignment.
type Align byte

const (
	AlignLeft Align = iota
	AlignCenter
	AlignRight
)

// Op is one primitive operation. Only the fields relevant to Kind are set.
type Op struct {
	Kind   OpKind
	Align  Align
	Bold   bool
	Text   string
	Origin string
}

const (
	originInit = "init"
	originCut  = "cut"
)

// Plan maps a document onto primitive operations. It is pure and total.
// An empty document is replaced by the configured default header and
// footer, and exactly one cut is always emitted, last.
func Plan(doc receipt.Document, cfg config.PrinterConfig) []Op {
	cols := cfg.PaperColumns
	if cols <= 0 {
		cols = config.DefaultColumns
	}

	blocks := doc.Blocks()
	if len(blocks) == 0 {
		blocks = []receipt.Block{receipt.Header(cfg.DefaultHeader), receipt.Footer(cfg.DefaultFooter)}
	}

	ops := []Op{{Kind: OpInit, Origin: originInit}}
	for _, b := range blocks {
		origin := string(b.Type())
		switch b.Type() {
		case receipt.TypeHeader:
			ops = append(ops,
				Op{Kind: OpAlign, Align: AlignCenter, Origin: origin},
				Op{Kind: OpBold, Bold: true, Origin: origin})
			ops = appendLines(ops, b.Text(), cols, origin)
			ops = append(ops, Op{Kind: OpBold, Bold: false, Origin: origin})
		case receipt.TypeSubtitle:
			ops = append(ops, Op{Kind: OpAlign, Align: AlignCenter, Origin: origin})
			ops = appendLines(ops, b.Text(), cols, origin)
		case receipt.TypeBody:
			ops = append(ops, Op{Kind: OpAlign, Align: AlignLeft, Origin: origin})
			ops = appendLines(ops, b.Text(), cols, origin)
		case receipt.TypeRule:
			ops = append(ops, Op{Kind: OpText, Text: strings.Repeat(fillChar(cfg), cols), Origin: origin})
		case receipt.TypeSpacer:
			ops = append(ops, Op{Kind: OpFeed, Origin: origin})
		case receipt.TypeFooter:
			ops = append(ops, Op{Kind: OpAlign, Align: AlignCenter, Origin: origin})
			ops = appendLines(ops, b.Text(), cols, origin)
			ops = append(ops, Op{Kind: OpFeed, Origin: origin}, Op{Kind: OpFeed, Origin: origin})
		case receipt.TypeCut:
			// collapsed into the terminal cut
		}
	}
	return append(ops, Op{Kind: OpCut, Origin: originCut})
}

func appendLines(ops []Op, text string, cols int, origin string) []Op {
	for _, line := range Wrap(text, cols) {
		ops = append(ops, Op{Kind: OpText, Text: line, Origin: origin})
	}
	return ops
}

func fillChar(cfg config.PrinterConfig) string {
	for _, r := range cfg.LineCharacter {
		return string(r)
	}
	return config.DefaultLineCharacter
}

// Render turns operations into protocol bytes, one chunk per operation.
func Render(ops []Op, cfg config.PrinterConfig) Job {
	tc := NewTranscoder(cfg.CharacterSet, cfg.SubstituteCharacter)
	chunks := make([]Chunk, 0, len(ops))
	for _, op := range ops {
		var data []byte
		switch op.Kind {
		case OpInit:
			data = append(append(data, cmdInit...), selectCodePage(tc.CodePage())...)
		case OpAlign:
			data = alignCommand(op.Align)
		case OpBold:
			if op.Bold {
				data = cmdBoldOn
			} else {
				data = cmdBoldOff
			}
		case OpText:
			data = append(tc.Encode(op.Text), LF)
		case OpFeed:
			data = cmdFeed
		case OpCut:
			data = CutCommand
		}
		chunks = append(chunks, Chunk{Origin: op.Origin, Data: append([]byte(nil), data...)})
	}
	return Job{chunks: chunks}
}

func alignCommand(a Align) []byte {
	switch a {
	case AlignCenter:
		return cmdAlignCenter
	case AlignRight:
		return cmdAlignRight
	default:
		return cmdAlignLeft
	}
}

// Encode plans and renders doc for the given printer.
func Encode(doc receipt.Document, cfg config.PrinterConfig) Job {
	return Render(Plan(doc, cfg), cfg)
}
