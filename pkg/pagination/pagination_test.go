package pagination

import (
	"encoding/base64"
	"net/url"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCursorRoundTripIsQuerySafe(t *testing.T) {
	in := Cursor{
		CreatedAt: time.Date(2026, 3, 14, 9, 26, 53, 589793000, time.FixedZone("BDT", 6*3600)),
		ID:        uuid.MustParse("0f8fad5b-d9cb-469f-a165-70867728950e"),
	}

	token := EncodeCursor(in)
	assert.Equal(t, token, url.QueryEscape(token))

	out, err := ParseCursor(token)
	require.NoError(t, err)
	require.NotNil(t, out)
	assert.True(t, in.CreatedAt.Equal(out.CreatedAt))
	assert.Equal(t, in.ID, out.ID)
}

func TestParseCursorAcceptsStandardBase64(t *testing.T) {
	id := uuid.New()
	legacy := base64.StdEncoding.EncodeToString([]byte("2026-01-02T03:04:05Z|" + id.String()))

	out, err := ParseCursor(legacy)
	require.NoError(t, err)
	assert.Equal(t, id, out.ID)
}

func TestParseCursorRejectsGarbage(t *testing.T) {
	for _, value := range []string{"%%%", base64.RawURLEncoding.EncodeToString([]byte("no-separator")), base64.RawURLEncoding.EncodeToString([]byte("yesterday|" + uuid.NewString()))} {
		_, err := ParseCursor(value)
		assert.Error(t, err, value)
	}

	out, err := ParseCursor("  ")
	require.NoError(t, err)
	assert.Nil(t, out)
}

func TestNormalizeLimit(t *testing.T) {
	assert.Equal(t, DefaultLimit, NormalizeLimit(0))
	assert.Equal(t, MaxLimit, NormalizeLimit(500))
	assert.Equal(t, 10, NormalizeLimit(10))
	assert.Equal(t, 11, LimitWithBuffer(10))
}
