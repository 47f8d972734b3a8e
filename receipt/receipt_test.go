package receipt

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDocumentIsImmutable(t *testing.T) {
	src := []Block{Header("SHOP"), Body("item")}
	doc := New(src...)
	src[0] = Footer("changed")

	blocks := doc.Blocks()
	assert.Equal(t, TypeHeader, blocks[0].Type())

	blocks[1] = Rule()
	assert.Equal(t, TypeBody, doc.Blocks()[1].Type())
	assert.Equal(t, 2, doc.Len())
}

func TestPayloadBlocks(t *testing.T) {
	raw := `{"blocks":[{"type":"header","text":"SHOP"},{"type":"body","text":"1x Coffee"},{"type":"rule"},{"type":"Spacer"},{"type":"footer","text":"Bye"},{"type":"cut"}]}`

	var p Payload
	require.NoError(t, json.Unmarshal([]byte(raw), &p))
	doc, err := p.Document(Framing{})
	require.NoError(t, err)

	var types []BlockType
	for _, b := range doc.Blocks() {
		types = append(types, b.Type())
	}
	assert.Equal(t, []BlockType{TypeHeader, TypeBody, TypeRule, TypeSpacer, TypeFooter, TypeCut}, types)
	assert.Equal(t, "1x Coffee", doc.Blocks()[1].Text())
}

func TestPayloadUnknownBlock(t *testing.T) {
	p := Payload{Blocks: []WireBlock{{Type: "header"}, {Type: "barcode"}}}
	_, err := p.Document(Framing{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "block 1")
	assert.Contains(t, err.Error(), "barcode")
}

func TestPayloadLegacyText(t *testing.T) {
	var p Payload
	require.NoError(t, json.Unmarshal([]byte(`{"text":"Order #12"}`), &p))

	doc, err := p.Document(Framing{Header: "PHOTOBOOTH APP", Footer: "Thank you!"})
	require.NoError(t, err)

	blocks := doc.Blocks()
	require.Len(t, blocks, 5)
	assert.Equal(t, Header("PHOTOBOOTH APP"), blocks[0])
	assert.Equal(t, Rule(), blocks[1])
	assert.Equal(t, Body("Order #12"), blocks[2])
	assert.Equal(t, Spacer(), blocks[3])
	assert.Equal(t, Footer("Thank you!"), blocks[4])
}

func TestPayloadLegacyTextSubtitle(t *testing.T) {
	text := "Order #12"
	doc, err := Payload{Text: &text}.Document(Framing{Header: "PHOTOBOOTH APP", Subtitle: "POS58B Test Print", Footer: "Thank you!"})
	require.NoError(t, err)

	assert.Equal(t, New(
		Header("PHOTOBOOTH APP"),
		Subtitle("POS58B Test Print"),
		Rule(),
		Body("Order #12"),
		Spacer(),
		Footer("Thank you!"),
	), doc)
}

func TestPayloadEmpty(t *testing.T) {
	doc, err := Payload{}.Document(Framing{Header: "x"})
	require.NoError(t, err)
	assert.Equal(t, 0, doc.Len())
}

func TestWire(t *testing.T) {
	doc := New(Header("SHOP"), Rule())
	p := doc.Wire()
	back, err := p.Document(Framing{})
	require.NoError(t, err)
	assert.Equal(t, doc, back)
}
