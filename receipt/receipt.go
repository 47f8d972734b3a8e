// Package receipt describes the semantic content of a thermal receipt.
// A Document carries no formatting bytes; the escpos package turns it into
// printer commands.
package receipt

import (
	"fmt"
	"strings"
)

// BlockType names a receipt block variant.
type BlockType string

const (
	TypeHeader   BlockType = "header"
	TypeSubtitle BlockType = "subtitle"
	TypeBody     BlockType = "body"
	TypeRule     BlockType = "rule"
	TypeSpacer   BlockType = "spacer"
	TypeFooter   BlockType = "footer"
	// TypeCut requests a paper cut. Cuts collapse into a single terminal cut.
	TypeCut BlockType = "cut"
)

// Block is one immutable piece of receipt content.
type Block struct {
	typ  BlockType
	text string
}

func Header(text string) Block { return Block{typ: TypeHeader, text: text} }
func Body(text string) Block   { return Block{typ: TypeBody, text: text} }
func Rule() Block              { return Block{typ: TypeRule} }
func Spacer() Block            { return Block{typ: TypeSpacer} }
func Footer(text string) Block { return Block{typ: TypeFooter, text: text} }
func Cut() Block               { return Block{typ: TypeCut} }

// Subtitle is a centered, regular weight line printed under a header.
func Subtitle(text string) Block { return Block{typ: TypeSubtitle, text: text} }

// Type returns the block variant.
func (b Block) Type() BlockType { return b.typ }

// Text returns the block text. Rule, Spacer and Cut have none.
func (b Block) Text() string { return b.text }

// Document is an ordered, immutable sequence of blocks.
type Document struct {
	blocks []Block
}

// New builds a document from blocks.
func New(blocks ...Block) Document {
	return Document{blocks: append([]Block(nil), blocks...)}
}

// Blocks returns a copy of the document's blocks.
func (d Document) Blocks() []Block {
	return append([]Block(nil), d.blocks...)
}

// Len returns the number of blocks.
func (d Document) Len() int { return len(d.blocks) }

// WireBlock is the JSON form of a Block.
type WireBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// Payload is the JSON body of a receipt print request. Either Blocks or the
// legacy single Text field is used; Blocks wins when both are present.
type Payload struct {
	Blocks []WireBlock `json:"blocks,omitempty"`
	Text   *string     `json:"text,omitempty"`
}

// Framing supplies the lines wrapped around a legacy text body. An empty
// Subtitle is left out.
type Framing struct {
	Header   string
	Subtitle string
	Footer   string
}

// Document converts the payload. A legacy text body is framed as
// header, subtitle, rule, body, spacer, footer.
func (p Payload) Document(f Framing) (Document, error) {
	if len(p.Blocks) > 0 {
		blocks := make([]Block, 0, len(p.Blocks))
		for i, wb := range p.Blocks {
			b, err := wb.block()
			if err != nil {
				return Document{}, fmt.Errorf("block %d: %w", i, err)
			}
			blocks = append(blocks, b)
		}
		return Document{blocks: blocks}, nil
	}

	if p.Text != nil {
		blocks := []Block{Header(f.Header)}
		if f.Subtitle != "" {
			blocks = append(blocks, Subtitle(f.Subtitle))
		}
		blocks = append(blocks, Rule(), Body(*p.Text), Spacer(), Footer(f.Footer))
		return Document{blocks: blocks}, nil
	}

	return Document{}, nil
}

func (wb WireBlock) block() (Block, error) {
	switch BlockType(strings.ToLower(wb.Type)) {
	case TypeHeader:
		return Header(wb.Text), nil
	case TypeSubtitle:
		return Subtitle(wb.Text), nil
	case TypeBody, "line", "bodyline":
		return Body(wb.Text), nil
	case TypeRule:
		return Rule(), nil
	case TypeSpacer:
		return Spacer(), nil
	case TypeFooter:
		return Footer(wb.Text), nil
	case TypeCut:
		return Cut(), nil
	default:
		return Block{}, fmt.Errorf("unknown block type %q", wb.Type)
	}
}

// Wire returns the JSON form of the document.
func (d Document) Wire() Payload {
	p := Payload{Blocks: make([]WireBlock, 0, len(d.blocks))}
	for _, b := range d.blocks {
		p.Blocks = append(p.Blocks, WireBlock{Type: string(b.typ), Text: b.text})
	}
	return p
}
