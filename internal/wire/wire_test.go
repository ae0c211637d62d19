package wire

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func newCodec() *Codec { return NewCodec(4, 8) }

func TestParseSet(t *testing.T) {
	c := newCodec()
	req, err := c.Parse([]byte("set abcd 12345678"))
	require.NoError(t, err)
	require.Equal(t, VerbSet, req.Verb)
	require.Equal(t, []byte("abcd"), req.Key)
	require.Equal(t, []byte("12345678"), req.Value)
	require.False(t, req.HasCRC)
}

func TestParseGet(t *testing.T) {
	c := newCodec()
	req, err := c.Parse([]byte("get abcd"))
	require.NoError(t, err)
	require.Equal(t, VerbGet, req.Verb)
	require.Equal(t, []byte("abcd"), req.Key)
}

func TestParseDel(t *testing.T) {
	c := newCodec()
	req, err := c.Parse([]byte("del abcd"))
	require.NoError(t, err)
	require.Equal(t, VerbDel, req.Verb)
	require.Equal(t, []byte("abcd"), req.Key)
}

func TestParseQuit(t *testing.T) {
	c := newCodec()
	req, err := c.Parse([]byte("quit"))
	require.NoError(t, err)
	require.Equal(t, VerbQuit, req.Verb)
}

func TestParseUnknownVerb(t *testing.T) {
	c := newCodec()
	req, err := c.Parse([]byte("foo abcd 00000000"))
	require.NoError(t, err)
	require.Equal(t, VerbUnknown, req.Verb)
}

func TestParseCRCPrefixIsStripped(t *testing.T) {
	c := newCodec()
	req, err := c.Parse([]byte("123456789#set abcd 12345678"))
	require.NoError(t, err)
	require.Equal(t, VerbSet, req.Verb)
	require.True(t, req.HasCRC)
	require.Equal(t, uint32(123456789), req.CRC)
	require.Equal(t, []byte("abcd"), req.Key)
	require.Equal(t, []byte("12345678"), req.Value)
}

func TestParseSetTooShort(t *testing.T) {
	c := newCodec()
	_, err := c.Parse([]byte("set ab"))
	require.Error(t, err)
}

func TestValueLineFormat(t *testing.T) {
	require.Equal(t, "VALUE 12345678\r\n", ValueLine([]byte("12345678")))
}
