package reader

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zip"
	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ccollicutt/logsniff/pkg/parser"
)

const lines = "alpha\nbravo\ncharlie\ndelta\necho\nfoxtrot\n"

func gzipped(t *testing.T, data string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write([]byte(data))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestContainerBySignature(t *testing.T) {
	tests := []struct {
		name   string
		sample []byte
		want   Container
	}{
		{"gzip", gzipped(t, "x"), Gzip},
		{"bzip2", []byte("BZh91AY&SY"), Bzip2},
		{"zstd", []byte{0x28, 0xb5, 0x2f, 0xfd, 0x00}, Zstd},
		{"zip", []byte("PK\x03\x04rest"), Zip},
		{"plain", []byte("Jun 14 15:16:01 host x"), None},
		{"empty", nil, None},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ContainerBySignature(tt.sample))
		})
	}
}

func TestContainerByExtension(t *testing.T) {
	assert.Equal(t, Gzip, ContainerByExtension("access.log.GZ"))
	assert.Equal(t, Bzip2, ContainerByExtension("a.bz2"))
	assert.Equal(t, Zstd, ContainerByExtension("a.zst"))
	assert.Equal(t, Zip, ContainerByExtension("logs.zip"))
	assert.Equal(t, None, ContainerByExtension("app.jsonl"))

	assert.Equal(t, "app.jsonl", TrimContainerExt("app.jsonl.gz"))
	assert.Equal(t, "app.jsonl", TrimContainerExt("app.jsonl"))
}

func TestDecompress_Gzip(t *testing.T) {
	rc, _, err := Decompress(bytes.NewReader(gzipped(t, lines)), Gzip, 0)
	require.NoError(t, err)
	defer rc.Close()

	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, lines, string(got))
}

func TestDecompress_Zstd(t *testing.T) {
	var buf bytes.Buffer
	zw, err := zstd.NewWriter(&buf)
	require.NoError(t, err)
	_, err = zw.Write([]byte(lines))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	rc, _, err := Decompress(&buf, Zstd, 0)
	require.NoError(t, err)
	defer rc.Close()

	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, lines, string(got))
}

func zipArchive(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	_, err := zw.Create("logs/")
	require.NoError(t, err)
	w, err := zw.Create("logs/app.csv")
	require.NoError(t, err)
	_, err = w.Write([]byte("a,b\n1,2\n"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestDecompress_ZipFirstMember(t *testing.T) {
	archive := zipArchive(t)

	rc, name, err := Decompress(bytes.NewReader(archive), Zip, int64(len(archive)))
	require.NoError(t, err)
	defer rc.Close()

	assert.Equal(t, "logs/app.csv", name)
	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "a,b\n1,2\n", string(got))
}

func TestDecompress_ZipTooLarge(t *testing.T) {
	archive := zipArchive(t)
	_, _, err := Decompress(bytes.NewReader(archive), Zip, int64(len(archive)-1))
	assert.ErrorIs(t, err, ErrArchiveTooLarge)
}

func TestDecompress_Corrupt(t *testing.T) {
	_, _, err := Decompress(strings.NewReader("not gzip"), Gzip, 0)
	assert.Error(t, err)
}

func readAll(t *testing.T, cr *ChunkReader) []*parser.RawChunk {
	t.Helper()
	var out []*parser.RawChunk
	for {
		chunk, err := cr.Next()
		if err == io.EOF {
			return out
		}
		require.NoError(t, err)
		out = append(out, chunk)
	}
}

type aligner func(window []byte, atEOF bool) int

func (f aligner) Align(window []byte, atEOF bool) int { return f(window, atEOF) }

func TestChunkReader_LineAligned(t *testing.T) {
	cr := NewChunkReader(strings.NewReader(lines), aligner(parser.AlignLines), 10, 64)
	chunks := readAll(t, cr)
	require.NotEmpty(t, chunks)

	var joined []byte
	for i, c := range chunks {
		assert.Equal(t, i, c.Index)
		assert.Equal(t, int64(len(joined)), c.Offset)
		if i < len(chunks)-1 {
			assert.True(t, bytes.HasSuffix(c.Data, []byte{'\n'}), "chunk %d is cut mid-line", i)
		}
		assert.Equal(t, bytes.Count(joined, []byte{'\n'})+1, c.FirstLine)
		joined = append(joined, c.Data...)
	}
	assert.Equal(t, lines, string(joined))
	assert.Equal(t, 0, cr.ForcedSplits())
	assert.Equal(t, int64(len(lines)), cr.Offset())
}

func TestChunkReader_GrowsWindow(t *testing.T) {
	long := strings.Repeat("x", 40) + "\n" + strings.Repeat("short\n", 20)
	cr := NewChunkReader(strings.NewReader(long), aligner(parser.AlignLines), 8, 128)
	chunks := readAll(t, cr)

	require.Greater(t, len(chunks), 1)
	assert.True(t, strings.HasPrefix(string(chunks[0].Data), strings.Repeat("x", 40)+"\n"))
	assert.Equal(t, 0, cr.ForcedSplits())
}

func TestChunkReader_ForcedSplit(t *testing.T) {
	// An aligner that never finds an entry start.
	never := aligner(func(window []byte, atEOF bool) int {
		if atEOF {
			return len(window)
		}
		return 0
	})
	data := strings.Repeat("continuation line\n", 20)
	cr := NewChunkReader(strings.NewReader(data), never, 32, 64)
	chunks := readAll(t, cr)

	var joined strings.Builder
	for _, c := range chunks {
		joined.Write(c.Data)
	}
	assert.Equal(t, data, joined.String())
	assert.Greater(t, cr.ForcedSplits(), 0)
	assert.True(t, bytes.HasSuffix(chunks[0].Data, []byte{'\n'}))
}

func TestChunkReader_Empty(t *testing.T) {
	cr := NewChunkReader(strings.NewReader(""), aligner(parser.AlignLines), 0, 0)
	_, err := cr.Next()
	assert.Equal(t, io.EOF, err)
}

func TestChunkReader_FinalFlag(t *testing.T) {
	cr := NewChunkReader(strings.NewReader("a\nb"), aligner(parser.AlignLines), 64, 64)
	chunks := readAll(t, cr)
	require.Len(t, chunks, 1)
	assert.True(t, chunks[0].Final)
	assert.Equal(t, "a\nb", string(chunks[0].Data))
}

func TestChunkReader_FrameLargerThanEntryLimit(t *testing.T) {
	var data []byte
	for i := 0; i < 10; i++ {
		body := bytes.Repeat([]byte{0xc0}, 8)
		if i == 1 {
			body = bytes.Repeat([]byte{0xc0}, 300)
		}
		data = binary.BigEndian.AppendUint32(data, uint32(len(body)))
		data = append(data, body...)
	}

	cr := NewChunkReader(bytes.NewReader(data), parser.NewMsgpack(), 64, 128)
	chunks := readAll(t, cr)

	var joined []byte
	for _, c := range chunks {
		joined = append(joined, c.Data...)
		assert.Zero(t, c.Oversized)
	}
	assert.Equal(t, data, joined)
	assert.Equal(t, 0, cr.ForcedSplits())
}

func TestChunkReader_SkipsOversizedArrayElement(t *testing.T) {
	var sb strings.Builder
	sb.WriteString("[\n")
	for i := 0; i < 10; i++ {
		if i > 0 {
			sb.WriteString(",\n")
		}
		if i == 4 {
			fmt.Fprintf(&sb, `{"seq":%d,"pad":"%s"}`, i, strings.Repeat("x", 300))
			continue
		}
		fmt.Fprintf(&sb, `{"seq":%d}`, i)
	}
	sb.WriteString("\n]\n")
	data := sb.String()

	cr := NewChunkReader(strings.NewReader(data), parser.NewJSONArray(), 32, 64)
	chunks := readAll(t, cr)

	var joined strings.Builder
	oversized := 0
	for _, c := range chunks {
		joined.Write(c.Data)
		oversized += c.Oversized
	}
	assert.Equal(t, 1, oversized)
	assert.Equal(t, 1, cr.ForcedSplits())
	assert.NotContains(t, joined.String(), "xxx")
	assert.Contains(t, joined.String(), `{"seq":3}`)
	assert.Contains(t, joined.String(), `{"seq":5}`)
	assert.Equal(t, int64(len(data)), cr.Offset())
}

func TestChunkReader_OversizedTailReported(t *testing.T) {
	data := `[{"seq":0},{"pad":"` + strings.Repeat("x", 300)

	cr := NewChunkReader(strings.NewReader(data), parser.NewJSONArray(), 32, 64)
	chunks := readAll(t, cr)

	require.NotEmpty(t, chunks)
	last := chunks[len(chunks)-1]
	assert.True(t, last.Final)
	assert.Empty(t, last.Data)
	assert.Equal(t, 1, last.Oversized)
}
