package parser

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/ccollicutt/logsniff/pkg/record"
)

// FrameHeaderSize is the length prefix of a MessagePack frame.
const FrameHeaderSize = 4

// MaxFrameSize bounds a single frame body. Larger lengths are treated as
// corruption of the remaining stream.
const MaxFrameSize = 16 << 20

var errNotMap = errors.New("frame body is not a map")

// IsMsgpackFrame reports whether sample starts with a plausible length-prefixed
// MessagePack map.
func IsMsgpackFrame(sample []byte) bool {
	if len(sample) < FrameHeaderSize+1 {
		return false
	}
	n := binary.BigEndian.Uint32(sample[:FrameHeaderSize])
	if n == 0 || n > MaxFrameSize {
		return false
	}
	return isMapMarker(sample[FrameHeaderSize])
}

func isMapMarker(b byte) bool {
	return (b >= 0x80 && b <= 0x8f) || b == 0xde || b == 0xdf
}

// FrameParser reads 4-byte big-endian length-prefixed MessagePack maps.
type FrameParser struct{}

// NewMsgpack creates the MessagePack frame parser.
func NewMsgpack() Parser {
	return &FrameParser{}
}

func (p *FrameParser) Family() Family { return Binary }

// EntryLimit lets the reader buffer a whole frame of the largest accepted
// size.
func (p *FrameParser) EntryLimit() int { return FrameHeaderSize + MaxFrameSize }

// Align cuts the window after its last complete frame.
func (p *FrameParser) Align(window []byte, atEOF bool) int {
	if atEOF {
		return len(window)
	}
	off := 0
	for off+FrameHeaderSize <= len(window) {
		n := int(binary.BigEndian.Uint32(window[off:]))
		if n > MaxFrameSize {
			// Corrupt length: hand the rest to the parser, which reports it.
			return len(window)
		}
		if off+FrameHeaderSize+n > len(window) {
			break
		}
		off += FrameHeaderSize + n
	}
	return off
}

func (p *FrameParser) Parse(chunk *RawChunk) Records {
	return &frameRecords{data: chunk.Data}
}

type frameRecords struct {
	data  []byte
	off   int
	stats Stats
}

func (r *frameRecords) Next() (*record.Record, error) {
	for r.off < len(r.data) {
		rest := len(r.data) - r.off
		if rest < FrameHeaderSize {
			r.truncate(rest)
			return nil, io.EOF
		}
		n := int(binary.BigEndian.Uint32(r.data[r.off:]))
		if n > MaxFrameSize || FrameHeaderSize+n > rest {
			r.truncate(rest)
			return nil, io.EOF
		}

		body := r.data[r.off+FrameHeaderSize : r.off+FrameHeaderSize+n]
		r.off += FrameHeaderSize + n
		r.stats.Lines++

		rec, err := decodeFrame(body)
		if err != nil {
			r.stats.Skipped++
			continue
		}
		r.stats.Records++
		return rec, nil
	}
	return nil, io.EOF
}

func (r *frameRecords) truncate(n int) {
	r.stats.Truncated++
	r.stats.TruncatedBytes += int64(n)
	r.off = len(r.data)
}

func (r *frameRecords) Stats() Stats { return r.stats }

// decodeFrame decodes a map body keeping key order.
func decodeFrame(body []byte) (*record.Record, error) {
	if len(body) == 0 || !isMapMarker(body[0]) {
		return nil, errNotMap
	}
	dec := msgpack.NewDecoder(bytes.NewReader(body))

	n, err := dec.DecodeMapLen()
	if err != nil {
		return nil, fmt.Errorf("failed to decode map length: %w", err)
	}

	rec := record.New(n)
	for i := 0; i < n; i++ {
		key, err := dec.DecodeString()
		if err != nil {
			return nil, fmt.Errorf("failed to decode key %d: %w", i, err)
		}
		value, err := dec.DecodeInterface()
		if err != nil {
			return nil, fmt.Errorf("failed to decode value of %q: %w", key, err)
		}
		rec.Set(key, value)
	}
	return rec, nil
}
