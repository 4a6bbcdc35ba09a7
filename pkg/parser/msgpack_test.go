package parser

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
)

// frame encodes an ordered map as one length-prefixed frame.
func frame(t *testing.T, kv ...any) []byte {
	t.Helper()
	var body bytes.Buffer
	enc := msgpack.NewEncoder(&body)
	require.NoError(t, enc.EncodeMapLen(len(kv)/2))
	for i := 0; i < len(kv); i += 2 {
		require.NoError(t, enc.EncodeString(kv[i].(string)))
		require.NoError(t, enc.Encode(kv[i+1]))
	}

	out := make([]byte, FrameHeaderSize, FrameHeaderSize+body.Len())
	binary.BigEndian.PutUint32(out, uint32(body.Len()))
	return append(out, body.Bytes()...)
}

func TestIsMsgpackFrame(t *testing.T) {
	assert.True(t, IsMsgpackFrame(frame(t, "a", 1)))
	assert.False(t, IsMsgpackFrame([]byte("{\"a\":1}\n")))
	assert.False(t, IsMsgpackFrame([]byte{0, 0, 0, 0, 0x81}))
	assert.False(t, IsMsgpackFrame([]byte{0, 0, 0, 3}))
}

func TestMsgpack_FramesAndTruncatedTail(t *testing.T) {
	var data []byte
	data = append(data, frame(t, "ts", "2024-01-15T10:00:00Z", "level", "info", "count", 7)...)
	data = append(data, frame(t, "ts", "2024-01-15T10:00:01Z", "level", "warn")...)

	bad := []byte{0, 0, 0, 2, 0x92, 0x01}
	data = append(data, bad...)

	tail := frame(t, "ts", "2024-01-15T10:00:02Z")
	data = append(data, tail[:len(tail)-3]...)

	recs, stats := collect(t, NewMsgpack(), string(data))
	require.Len(t, recs, 2)

	assert.Equal(t, []string{"ts", "level", "count"}, recs[0].Names())
	level, _ := recs[1].Text("level")
	assert.Equal(t, "warn", level)
	count, ok := recs[0].Text("count")
	require.True(t, ok)
	assert.Equal(t, "7", count)

	assert.Equal(t, 3, stats.Lines)
	assert.Equal(t, 2, stats.Records)
	assert.Equal(t, 1, stats.Skipped, "array body is not a record")
	assert.Equal(t, 1, stats.Truncated)
	assert.Equal(t, int64(len(tail)-3), stats.TruncatedBytes)
}

func TestMsgpack_Align(t *testing.T) {
	p := NewMsgpack()
	one := frame(t, "a", "x")
	two := frame(t, "b", "y")
	window := append(append([]byte(nil), one...), two[:len(two)-1]...)

	assert.Equal(t, len(one), p.Align(window, false))
	assert.Equal(t, len(window), p.Align(window, true))
	assert.Equal(t, 0, p.Align(one[:2], false))

	corrupt := []byte{0xff, 0xff, 0xff, 0xff, 0x80}
	assert.Equal(t, len(corrupt), p.Align(corrupt, false))
}
