package event

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseJSON_Object(t *testing.T) {
	obj, err := ParseJSON(`{"level":"info","count":3}`)
	require.NoError(t, err)
	assert.Equal(t, "info", obj["level"])
	assert.Equal(t, json.Number("3"), obj["count"])
}

func TestParseJSON_RejectsNonObject(t *testing.T) {
	_, err := ParseJSON(`[1,2,3]`)
	assert.Error(t, err)

	_, err = ParseJSON(`not json at all`)
	assert.Error(t, err)
}

func TestParseJSON_BigIntegerRoundTrip(t *testing.T) {
	// 2^60 exceeds float64 integer precision; json.Number keeps the text.
	line := `{"id":1152921504606846976}`
	obj, err := ParseJSON(line)
	require.NoError(t, err)

	rec := NewStructured("r", 1, nil, obj)
	out, err := rec.MarshalLine()
	require.NoError(t, err)

	reparsed, err := ParseJSON(string(out))
	require.NoError(t, err)
	assert.Equal(t, obj, reparsed)
}

func TestMarshalLine_Raw(t *testing.T) {
	rec := NewRaw("r", 1, nil, "plain line with \"quotes\"")
	out, err := rec.MarshalLine()
	require.NoError(t, err)
	assert.Equal(t, `"plain line with \"quotes\""`, string(out))
}

func TestMarshalLine_NoHTMLEscaping(t *testing.T) {
	rec := NewStructured("r", 1, nil, map[string]any{"q": "a<b>&c"})
	out, err := rec.MarshalLine()
	require.NoError(t, err)
	assert.Equal(t, `{"q":"a<b>&c"}`, string(out))
}

func TestWithFields_PreservesIdentity(t *testing.T) {
	tok := FileToken{Inode: 7, Offset: 100, Generation: 2}
	rec := NewRaw("route-1", 42, tok, "msg=hi")

	parsed := rec.WithFields(map[string]any{"msg": "hi"})
	assert.True(t, parsed.IsStructured())
	assert.Equal(t, uint64(42), parsed.Seq)
	assert.Equal(t, tok, parsed.Token)
	assert.Equal(t, "route-1", parsed.Route)
	assert.Empty(t, parsed.Raw())
}

func TestAck_CarriesToken(t *testing.T) {
	tok := JournalToken("s=abc;i=1")
	rec := NewStructured("r", 9, tok, map[string]any{"MESSAGE": "x"})

	ack := rec.Ack()
	assert.Equal(t, uint64(9), ack.Seq)
	assert.Equal(t, tok, ack.Token)
}

func TestTokenKinds(t *testing.T) {
	assert.Equal(t, "file", FileToken{}.Kind())
	assert.Equal(t, "journal", JournalToken("").Kind())
}
