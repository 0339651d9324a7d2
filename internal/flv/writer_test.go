package flv

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type tag struct {
	kind      byte
	timestamp uint32
	body      []byte
}

// readTags parses an FLV stream, checking every PreviousTagSize field
func readTags(t *testing.T, data []byte) (header []byte, tags []tag) {
	t.Helper()
	require.GreaterOrEqual(t, len(data), 13)
	header, data = data[:9], data[13:]
	for len(data) > 0 {
		require.GreaterOrEqual(t, len(data), 15)
		size := int(data[1])<<16 | int(data[2])<<8 | int(data[3])
		ts := uint32(data[7])<<24 | uint32(data[4])<<16 | uint32(data[5])<<8 | uint32(data[6])
		require.GreaterOrEqual(t, len(data), 11+size+4)
		tags = append(tags, tag{kind: data[0], timestamp: ts, body: data[11 : 11+size]})
		assert.Equal(t, uint32(11+size), binary.BigEndian.Uint32(data[11+size:]))
		data = data[11+size+4:]
	}
	return header, tags
}

func TestWriterHeaderOnce(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)

	require.NoError(t, w.WriteHeader())
	require.NoError(t, w.WriteHeader())
	assert.Equal(t, 13, buf.Len())

	header := buf.Bytes()
	assert.Equal(t, []byte("FLV"), header[:3])
	assert.Equal(t, byte(headerFlagVideo), header[4])
}

func TestWriterTags(t *testing.T) {
	tests := []struct {
		name      string
		kind      byte
		timestamp uint32
		body      []byte
	}{
		{name: "Video", kind: TagVideo, timestamp: 40, body: []byte{0x17, 0x01, 0, 0, 0}},
		{name: "Script", kind: TagScript, timestamp: 0, body: []byte{0x02, 0x00, 0x01, 'x'}},
		{name: "Extended timestamp", kind: TagVideo, timestamp: 0x01020304, body: []byte{0x27}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			w := NewWriter(&buf)
			require.NoError(t, w.WriteTag(tt.kind, tt.timestamp, tt.body))

			_, tags := readTags(t, buf.Bytes())
			require.Len(t, tags, 1)
			assert.Equal(t, tt.kind, tags[0].kind)
			assert.Equal(t, tt.timestamp, tags[0].timestamp)
			assert.Equal(t, tt.body, tags[0].body)
		})
	}
}
