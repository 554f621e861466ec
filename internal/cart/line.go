package cart

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/angelmondragon/storefront-backend/pkg/types"
	"github.com/shopspring/decimal"
)

// DefaultVariant stands in for an absent size or color selector.
const DefaultVariant = "default"

// LineID is the composite identity of a cart line. Two lines with equal
// LineIDs are the same line.
type LineID struct {
	ProductID string `json:"p"`
	Size      string `json:"s"`
	Color     string `json:"c"`
}

// NewLineID normalizes the selectors: surrounding whitespace is trimmed and a
// blank selector becomes DefaultVariant. Case is preserved.
func NewLineID(productID, size, color string) LineID {
	return LineID{
		ProductID: strings.TrimSpace(productID),
		Size:      normalizeVariant(size),
		Color:     normalizeVariant(color),
	}
}

func normalizeVariant(value string) string {
	v := strings.TrimSpace(value)
	if v == "" {
		return DefaultVariant
	}
	return v
}

// Token encodes the id as an opaque URL-safe string.
func (id LineID) Token() string {
	payload, _ := json.Marshal(id)
	return base64.RawURLEncoding.EncodeToString(payload)
}

func (id LineID) String() string {
	return fmt.Sprintf("%s/%s/%s", id.ProductID, id.Size, id.Color)
}

// ParseLineToken decodes a token produced by LineID.Token.
func ParseLineToken(token string) (LineID, error) {
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimSpace(token))
	if err != nil {
		return LineID{}, fmt.Errorf("decode line token: %w", err)
	}
	var id LineID
	if err := json.Unmarshal(raw, &id); err != nil {
		return LineID{}, fmt.Errorf("parse line token: %w", err)
	}
	if strings.TrimSpace(id.ProductID) == "" {
		return LineID{}, fmt.Errorf("line token missing product id")
	}
	return NewLineID(id.ProductID, id.Size, id.Color), nil
}

// Product is the display snapshot copied into a line when it is added.
type Product struct {
	ID     string       `json:"id"`
	Title  string       `json:"title"`
	Price  types.Amount `json:"price"`
	Images []string     `json:"images,omitempty"`
}

// Line is one purchasable unit in the cart or a staging list.
type Line struct {
	ProductID     string       `json:"productId"`
	Title         string       `json:"title"`
	Price         types.Amount `json:"price"`
	Images        []string     `json:"images,omitempty"`
	Quantity      int          `json:"quantity"`
	SelectedSize  *string      `json:"selectedSize"`
	SelectedColor *string      `json:"selectedColor"`
}

// NewLine builds a line from a product snapshot and selectors. Blank
// selectors are stored as absent.
func NewLine(p Product, quantity int, size, color string) Line {
	return Line{
		ProductID:     strings.TrimSpace(p.ID),
		Title:         p.Title,
		Price:         p.Price,
		Images:        append([]string(nil), p.Images...),
		Quantity:      quantity,
		SelectedSize:  optional(size),
		SelectedColor: optional(color),
	}
}

func optional(value string) *string {
	v := strings.TrimSpace(value)
	if v == "" {
		return nil
	}
	return &v
}

func deref(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}

// ID derives the line identity.
func (l Line) ID() LineID {
	return NewLineID(l.ProductID, deref(l.SelectedSize), deref(l.SelectedColor))
}

// Subtotal is price times quantity with an invalid price counted as zero.
func (l Line) Subtotal() decimal.Decimal {
	return l.Price.OrZero().Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// MarshalJSON adds the derived lineId so clients can address lines.
func (l Line) MarshalJSON() ([]byte, error) {
	type alias Line
	return json.Marshal(struct {
		alias
		LineID string `json:"lineId"`
	}{alias: alias(l), LineID: l.ID().Token()})
}

// Merge adds incoming to lines. An existing line with the same identity keeps
// its position and has its quantity increased; otherwise incoming is
// appended. The input slice is not modified.
func Merge(lines []Line, incoming Line) ([]Line, bool) {
	out := CloneLines(lines)
	target := incoming.ID()
	for i := range out {
		if out[i].ID() == target {
			out[i].Quantity += incoming.Quantity
			return out, true
		}
	}
	return append(out, incoming), false
}

// CloneLines returns a deep copy.
func CloneLines(lines []Line) []Line {
	if lines == nil {
		return nil
	}
	out := make([]Line, len(lines))
	for i, l := range lines {
		out[i] = l
		out[i].Images = append([]string(nil), l.Images...)
		if l.SelectedSize != nil {
			s := *l.SelectedSize
			out[i].SelectedSize = &s
		}
		if l.SelectedColor != nil {
			c := *l.SelectedColor
			out[i].SelectedColor = &c
		}
	}
	return out
}

// Decode parses a persisted line list. Lines without a product id or with a
// non-positive quantity are dropped and duplicate identities are merged.
func Decode(raw []byte) ([]Line, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var decoded []Line
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("decode lines: %w", err)
	}
	var out []Line
	for _, l := range decoded {
		if strings.TrimSpace(l.ProductID) == "" || l.Quantity <= 0 {
			continue
		}
		out, _ = Merge(out, l)
	}
	return out, nil
}

// Encode serializes lines as a JSON array; nil encodes as [].
func Encode(lines []Line) ([]byte, error) {
	if lines == nil {
		lines = []Line{}
	}
	return json.Marshal(lines)
}
