package packet_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"

	"github.com/momentics/hioload-session/api"
	"github.com/momentics/hioload-session/packet"
)

func TestParseCommandLine(t *testing.T) {
	cases := []struct {
		line   string
		key    string
		body   string
		params []string
	}{
		{"ECHO", "ECHO", "", nil},
		{"ADD 1 2", "ADD", "1 2", []string{"1", "2"}},
		{"ECHO  spaced   out ", "ECHO", " spaced   out ", []string{"spaced", "out"}},
	}
	for _, tc := range cases {
		pkg := packet.ParseCommandLine(tc.line)
		assert.Equal(t, tc.key, pkg.Key(), tc.line)
		assert.Equal(t, tc.body, pkg.Body, tc.line)
		assert.Equal(t, tc.params, pkg.Parameters, tc.line)
	}
}

type charsetSession struct{ cs encoding.Encoding }

func (s charsetSession) SessionID() string          { return "cs" }
func (s charsetSession) Charset() encoding.Encoding { return s.cs }

func TestTerminatorFilterSplitsStream(t *testing.T) {
	f := packet.NewTerminatorFilter(nil, nil, 0)

	pkgs, err := f.Filter([]byte("ECHO a\r\n\r\nAD"))
	require.NoError(t, err)
	require.Len(t, pkgs, 1, "empty lines are skipped")
	assert.Equal(t, "ECHO", pkgs[0].Key())
	assert.Equal(t, 2, f.Buffered())

	pkgs, err = f.Filter([]byte("D 1 2\r"))
	require.NoError(t, err)
	assert.Empty(t, pkgs)

	pkgs, err = f.Filter([]byte("\n"))
	require.NoError(t, err)
	require.Len(t, pkgs, 1)
	assert.Equal(t, []string{"1", "2"}, pkgs[0].Parameters)
	assert.Zero(t, f.Buffered())
}

func TestTerminatorFilterCustomTerminatorAndCharset(t *testing.T) {
	f := packet.NewTerminatorFilter([]byte("|"), charsetSession{charmap.ISO8859_1}, 0)
	pkgs, err := f.Filter([]byte{'S', 'A', 'Y', ' ', 0xE9, '|'})
	require.NoError(t, err)
	require.Len(t, pkgs, 1)
	assert.Equal(t, "é", pkgs[0].Body)
}

func TestTerminatorFilterLineLimit(t *testing.T) {
	f := packet.NewTerminatorFilter(nil, nil, 4)
	pkgs, err := f.Filter([]byte("OK\r\nTOOLONG\r\nLATE\r\n"))
	assert.ErrorIs(t, err, api.ErrRequestTooLarge)
	require.Len(t, pkgs, 1, "lines before the oversized one are returned")
	assert.Equal(t, "OK", pkgs[0].Key())
	assert.Zero(t, f.Buffered())
}

type info struct{}

func (info) Name() string          { return "info" }
func (info) MaxRequestLength() int { return 3 }

func TestTerminatorFilterFactory(t *testing.T) {
	ff := packet.NewTerminatorFilterFactory("")
	f := ff.CreateFilter(info{}, nil, nil)
	_, err := f.Filter([]byte("LONG\r\n"))
	assert.ErrorIs(t, err, api.ErrRequestTooLarge)

	a, b := ff.CreateFilter(nil, nil, nil), ff.CreateFilter(nil, nil, nil)
	_, err = a.Filter([]byte("PART"))
	require.NoError(t, err)
	assert.Equal(t, 4, a.Buffered())
	assert.Zero(t, b.Buffered(), "filters do not share state")
}

type channel struct {
	sent    [][]byte
	reasons []api.CloseReason
}

func (c *channel) InternalSend(segs [][]byte)         { c.sent = append(c.sent, bytes.Join(segs, nil)) }
func (c *channel) InternalTrySend(segs [][]byte) bool { c.InternalSend(segs); return true }
func (c *channel) InternalClose(r api.CloseReason)    { c.reasons = append(c.reasons, r) }

func TestLineHandler(t *testing.T) {
	h := packet.NewLineHandler("")
	in := [][]byte{[]byte("he"), []byte("llo")}
	out, err := h.Transform(in)
	require.NoError(t, err)
	assert.Equal(t, "hello\r\n", string(bytes.Join(out, nil)))
	assert.Len(t, in, 2, "input segments are not modified")

	ch := &channel{}
	h.Close(ch, api.CloseTimeOut)
	assert.Empty(t, ch.sent)
	assert.Equal(t, []api.CloseReason{api.CloseTimeOut}, ch.reasons)
}
