package frame

import (
	"bytes"
	"encoding/json"
	"math/big"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRender_Golden(t *testing.T) {
	tests := []struct {
		name string
		doc  Document
	}{
		{
			name: "input_step",
			doc: Document{
				View: View{
					Title:       "List an item",
					Image:       "https://cdn.example/listing/1.png",
					AspectRatio: AspectWide,
					Input:       "City, State",
					Buttons: []Button{
						{Label: "What is this?"},
						{Label: "Continue"},
					},
				},
				PostURL: "https://api.example/frames/listing/s1?sessionId=abc&step=1",
			},
		},
		{
			name: "handoff_escaped",
			doc: Document{
				View: View{
					Title: `Review "Vintage Lamp" & more`,
					Image: "https://cdn.example/listing/8.png",
					Buttons: []Button{
						{Label: "Back", Action: ActionPost},
						{Label: "Upload", Action: ActionLink, Target: "https://shop.example/listings/new?location=Brooklyn%2C%20NY&title=O'Neil"},
					},
				},
				PostURL: "https://api.example/frames/listing/s1?sessionId=abc&step=8",
			},
		},
		{
			name: "tx_button",
			doc: Document{
				View: View{
					Title:       "Desk Lamp",
					Image:       "https://cdn.example/p1.png",
					AspectRatio: AspectSquare,
					Buttons: []Button{
						{Label: "Buy", Action: ActionTx, Target: "https://api.example/frames/market/p1/tx", PostURL: "https://api.example/frames/market/p1?sessionId=abc&step=1"},
						{Label: "Details"},
					},
				},
				PostURL: "https://api.example/frames/market/p1?sessionId=abc&step=1",
			},
		},
	}

	g := goldie.New(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, Render(&buf, tt.doc))
			g.Assert(t, tt.name, buf.Bytes())
		})
	}
}

func TestDocument_Validate(t *testing.T) {
	base := func() Document {
		return Document{
			View:    View{Image: "https://cdn.example/x.png", Buttons: []Button{{Label: "Go"}}},
			PostURL: "https://api.example/frames/x",
		}
	}

	require.NoError(t, base().Validate())

	tests := []struct {
		name   string
		mutate func(*Document)
	}{
		{"no buttons", func(d *Document) { d.Buttons = nil }},
		{"five buttons", func(d *Document) { d.Buttons = make([]Button, 5) }},
		{"empty label", func(d *Document) { d.Buttons[0].Label = "" }},
		{"link without target", func(d *Document) { d.Buttons[0].Action = ActionLink }},
		{"tx without target", func(d *Document) { d.Buttons[0].Action = ActionTx }},
		{"unknown action", func(d *Document) { d.Buttons[0].Action = "mint" }},
		{"no image", func(d *Document) { d.Image = "" }},
		{"no post url", func(d *Document) { d.PostURL = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := base()
			tt.mutate(&d)
			assert.ErrorIs(t, d.Validate(), ErrInvalidDocument)
			assert.ErrorIs(t, Render(&bytes.Buffer{}, d), ErrInvalidDocument)
		})
	}
}

func TestEncodeFields(t *testing.T) {
	assert.Equal(t, "Brooklyn%2C%20NY", EncodeComponent("Brooklyn, NY"))
	assert.Equal(t, "a%26b%3Dc", EncodeComponent("a&b=c"))
	assert.Equal(t, "me%40example.com", EncodeComponent("me@example.com"))
	assert.Equal(t, "Wow!%20(it's%20*new*)~", EncodeComponent("Wow! (it's *new*)~"))
	assert.Equal(t, "100%25%2B", EncodeComponent("100%+"))

	got := EncodeFields([]Field{
		{Key: "location", Value: "Brooklyn, NY"},
		{Key: "title", Value: "Vintage Lamp"},
		{Key: "shipping", Value: "true"},
	})
	assert.Equal(t, "location=Brooklyn%2C%20NY&title=Vintage%20Lamp&shipping=true", got)
	assert.Equal(t, "", EncodeFields(nil))
}

func TestNewPaymentIntent(t *testing.T) {
	to := "0x1111111111111111111111111111111111111111"
	pi, err := NewPaymentIntent("eip155:8453", to, big.NewInt(5_000_000_000_000_000))
	require.NoError(t, err)

	b, err := json.Marshal(pi)
	require.NoError(t, err)
	assert.JSONEq(t, `{"chainId":"eip155:8453","method":"eth_sendTransaction","params":{"abi":[],"to":"`+to+`","value":"5000000000000000"}}`, string(b))

	_, err = NewPaymentIntent("eip155:8453", "", big.NewInt(1))
	assert.ErrorIs(t, err, ErrNoDestination)
	_, err = NewPaymentIntent("eip155:8453", "0x123", big.NewInt(1))
	assert.ErrorIs(t, err, ErrNoDestination)
	_, err = NewPaymentIntent("eip155:8453", to, big.NewInt(0))
	assert.Error(t, err)
}
