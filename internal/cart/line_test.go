package cart

import (
	"encoding/json"
	"testing"

	"github.com/angelmondragon/storefront-backend/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLineIDNormalizesVariants(t *testing.T) {
	assert.Equal(t, LineID{ProductID: "p1", Size: DefaultVariant, Color: DefaultVariant}, NewLineID(" p1 ", "", "   "))
	assert.Equal(t, LineID{ProductID: "p1", Size: "XL", Color: "Red"}, NewLineID("p1", " XL", "Red "))
	assert.NotEqual(t, NewLineID("p1", "", "red"), NewLineID("p1", "", "Red"), "case is preserved")
}

func TestLineIDAvoidsDelimiterCollisions(t *testing.T) {
	a := NewLineID("a-b", "c", "")
	b := NewLineID("a", "b-c", "")
	assert.NotEqual(t, a, b)
	assert.NotEqual(t, a.Token(), b.Token())
}

func TestLineTokenRoundTrip(t *testing.T) {
	id := NewLineID("prod/1", "M", "navy blue")
	parsed, err := ParseLineToken(id.Token())
	require.NoError(t, err)
	assert.Equal(t, id, parsed)

	_, err = ParseLineToken("%%%")
	assert.Error(t, err)
	_, err = ParseLineToken(LineID{Size: "M"}.Token())
	assert.Error(t, err)
}

func TestMergeIncrementsInPlace(t *testing.T) {
	first := NewLine(Product{ID: "a", Price: types.AmountFromInt(10)}, 1, "", "")
	second := NewLine(Product{ID: "b", Price: types.AmountFromInt(20)}, 1, "", "")
	lines := []Line{first, second}

	out, merged := Merge(lines, NewLine(Product{ID: "a"}, 2, "", ""))
	require.True(t, merged)
	require.Len(t, out, 2)
	assert.Equal(t, "a", out[0].ProductID, "merged line keeps its position")
	assert.Equal(t, 3, out[0].Quantity)
	assert.Equal(t, 1, lines[0].Quantity, "input must not be modified")

	out, merged = Merge(out, NewLine(Product{ID: "a"}, 1, "L", ""))
	assert.False(t, merged)
	require.Len(t, out, 3)
	assert.Equal(t, "L", *out[2].SelectedSize)
}

func TestLineJSONCarriesLineID(t *testing.T) {
	line := NewLine(Product{ID: "p1", Title: "Tee", Price: types.AmountFromInt(500)}, 2, "M", "")
	raw, err := json.Marshal(line)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, line.ID().Token(), decoded["lineId"])
	assert.Equal(t, "M", decoded["selectedSize"])
	assert.Nil(t, decoded["selectedColor"])
	assert.Equal(t, float64(500), decoded["price"])
}

func TestDecodeDropsInvalidAndMergesDuplicates(t *testing.T) {
	raw := []byte(`[
		{"productId":"a","price":100,"quantity":1,"selectedSize":null},
		{"productId":"","price":5,"quantity":1},
		{"productId":"b","price":"oops","quantity":2},
		{"productId":"c","price":1,"quantity":0},
		{"productId":"a","price":100,"quantity":4,"selectedSize":""}
	]`)
	lines, err := Decode(raw)
	require.NoError(t, err)
	require.Len(t, lines, 2)
	assert.Equal(t, 5, lines[0].Quantity)
	assert.False(t, lines[1].Price.Valid)

	_, err = Decode([]byte(`{`))
	assert.Error(t, err)

	empty, err := Encode(nil)
	require.NoError(t, err)
	assert.Equal(t, "[]", string(empty))
}
