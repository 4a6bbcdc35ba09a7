package reader

import (
	"bytes"
	"fmt"
	"io"

	"github.com/ccollicutt/logsniff/pkg/parser"
)

const (
	// DefaultChunkBytes is the target size of a chunk.
	DefaultChunkBytes = 1 << 20

	// DefaultMaxEntryBytes bounds the window grown while looking for an
	// entry boundary.
	DefaultMaxEntryBytes = 8 << 20

	// DefaultMaxArchiveBytes bounds the buffering of zip archives.
	DefaultMaxArchiveBytes = 256 << 20
)

// Aligner picks the chunk boundary inside a window. It returns the number of
// bytes to emit, or 0 when the window holds no complete unit yet.
type Aligner interface {
	Align(window []byte, atEOF bool) int
}

// EntryLimiter is implemented by aligners whose entries declare their own
// length. The window may grow up to EntryLimit even when the configured
// entry limit is lower.
type EntryLimiter interface {
	EntryLimit() int
}

// EntrySkipper is implemented by aligners that cannot be split at a line
// break. An entry that outgrows the entry limit is dropped instead and the
// next chunk starts right after it.
type EntrySkipper interface {
	// SkipEntry returns a scanner fed with successive windows starting at
	// the oversized entry. It reports how many leading bytes belong to the
	// entry and whether the entry ends within them. Until the entry ends it
	// must consume the whole window.
	SkipEntry() func(data []byte) (n int, done bool)
}

// ChunkReader cuts a stream into chunks aligned by an Aligner. When no
// boundary is found the window grows up to the entry limit, after which the
// chunk is force-split at the last line break, or the entry is dropped when
// the aligner is an EntrySkipper.
type ChunkReader struct {
	r          io.Reader
	align      Aligner
	chunkBytes int
	maxEntry   int

	buf    []byte
	eof    bool
	offset int64
	index  int
	line   int

	forcedSplits int
}

// NewChunkReader creates a chunk reader. Non-positive sizes use the defaults.
func NewChunkReader(r io.Reader, align Aligner, chunkBytes, maxEntryBytes int) *ChunkReader {
	if chunkBytes <= 0 {
		chunkBytes = DefaultChunkBytes
	}
	if maxEntryBytes <= 0 {
		maxEntryBytes = DefaultMaxEntryBytes
	}
	if maxEntryBytes < chunkBytes {
		maxEntryBytes = chunkBytes
	}
	if l, ok := align.(EntryLimiter); ok && l.EntryLimit() > maxEntryBytes {
		maxEntryBytes = l.EntryLimit()
	}
	return &ChunkReader{
		r:          r,
		align:      align,
		chunkBytes: chunkBytes,
		maxEntry:   maxEntryBytes,
		line:       1,
	}
}

// Next returns the next chunk, or io.EOF when the stream is exhausted.
func (c *ChunkReader) Next() (*parser.RawChunk, error) {
	target := c.chunkBytes
	oversized := 0
	var cut int
	for {
		if err := c.fill(target); err != nil {
			return nil, err
		}
		if len(c.buf) == 0 {
			if oversized > 0 {
				// Report the dropped entries in an empty final chunk.
				cut = 0
				break
			}
			return nil, io.EOF
		}

		cut = c.align.Align(c.buf, c.eof)
		if cut > len(c.buf) {
			cut = len(c.buf)
		}
		if cut > 0 {
			break
		}
		if c.eof {
			cut = len(c.buf)
			break
		}
		if target < c.maxEntry {
			target = min(target*2, c.maxEntry)
			continue
		}

		c.forcedSplits++
		if s, ok := c.align.(EntrySkipper); ok {
			if err := c.skipEntry(s); err != nil {
				return nil, err
			}
			oversized++
			target = c.chunkBytes
			continue
		}

		cut = bytes.LastIndexByte(c.buf, '\n') + 1
		if cut == 0 {
			cut = len(c.buf)
		}
		break
	}

	data := make([]byte, cut)
	copy(data, c.buf[:cut])
	c.buf = append(c.buf[:0], c.buf[cut:]...)

	chunk := &parser.RawChunk{
		Data:      data,
		Offset:    c.offset,
		Index:     c.index,
		FirstLine: c.line,
		Final:     c.eof && len(c.buf) == 0,
		Oversized: oversized,
	}
	c.offset += int64(cut)
	c.index++
	c.line += bytes.Count(data, []byte{'\n'})
	return chunk, nil
}

// skipEntry drops the oversized entry at the start of the buffer, reading
// further until the entry ends or the stream does.
func (c *ChunkReader) skipEntry(s EntrySkipper) error {
	scan := s.SkipEntry()
	for {
		n, done := scan(c.buf)
		if !done {
			n = len(c.buf)
		}
		c.discard(min(n, len(c.buf)))
		if done || (c.eof && len(c.buf) == 0) {
			return nil
		}
		if err := c.fill(c.chunkBytes); err != nil {
			return err
		}
	}
}

func (c *ChunkReader) discard(n int) {
	c.offset += int64(n)
	c.line += bytes.Count(c.buf[:n], []byte{'\n'})
	c.buf = append(c.buf[:0], c.buf[n:]...)
}

// fill reads until the buffer holds target bytes or the stream ends.
func (c *ChunkReader) fill(target int) error {
	for len(c.buf) < target && !c.eof {
		if cap(c.buf) < target {
			grown := make([]byte, len(c.buf), target)
			copy(grown, c.buf)
			c.buf = grown
		}
		n, err := c.r.Read(c.buf[len(c.buf):target])
		c.buf = c.buf[:len(c.buf)+n]
		if err == io.EOF {
			c.eof = true
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read source: %w", err)
		}
	}
	return nil
}

// ForcedSplits returns the number of entries cut at the entry size limit.
func (c *ChunkReader) ForcedSplits() int {
	return c.forcedSplits
}

// Offset returns the number of bytes emitted so far.
func (c *ChunkReader) Offset() int64 {
	return c.offset
}
