// Package reader turns byte streams into bounded chunks aligned on record
// boundaries and unwraps compressed containers.
package reader

import (
	"bytes"
	"compress/bzip2"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zip"
	"github.com/klauspost/compress/zstd"
)

// Container is a compression or archive wrapper around a source.
type Container string

const (
	None  Container = ""
	Gzip  Container = "gzip"
	Bzip2 Container = "bzip2"
	Zstd  Container = "zstd"
	Zip   Container = "zip"
)

// ErrArchiveTooLarge is returned when a zip archive exceeds the buffering limit.
var ErrArchiveTooLarge = errors.New("archive exceeds the size limit")

var signatures = []struct {
	container Container
	magic     []byte
}{
	{Gzip, []byte{0x1f, 0x8b}},
	{Bzip2, []byte("BZh")},
	{Zstd, []byte{0x28, 0xb5, 0x2f, 0xfd}},
	{Zip, []byte{'P', 'K', 0x03, 0x04}},
}

var extensions = map[string]Container{
	".gz":    Gzip,
	".gzip":  Gzip,
	".bz2":   Bzip2,
	".bzip2": Bzip2,
	".zst":   Zstd,
	".zstd":  Zstd,
	".zip":   Zip,
}

// ContainerBySignature identifies a container from the leading magic bytes.
func ContainerBySignature(sample []byte) Container {
	for _, s := range signatures {
		if bytes.HasPrefix(sample, s.magic) {
			return s.container
		}
	}
	return None
}

// ContainerByExtension identifies a container from the name suffix.
func ContainerByExtension(name string) Container {
	return extensions[strings.ToLower(filepath.Ext(name))]
}

// TrimContainerExt strips a container suffix so the inner name can serve as
// a detection hint ("app.jsonl.gz" becomes "app.jsonl").
func TrimContainerExt(name string) string {
	if ContainerByExtension(name) == None {
		return name
	}
	return strings.TrimSuffix(name, filepath.Ext(name))
}

// Decompress unwraps one container level. For zip archives the first regular
// member is returned along with its name; the archive is buffered in memory up
// to maxArchive bytes.
func Decompress(r io.Reader, c Container, maxArchive int64) (io.ReadCloser, string, error) {
	switch c {
	case Gzip:
		zr, err := gzip.NewReader(r)
		if err != nil {
			return nil, "", fmt.Errorf("failed to open gzip stream: %w", err)
		}
		return zr, zr.Name, nil
	case Bzip2:
		return io.NopCloser(bzip2.NewReader(r)), "", nil
	case Zstd:
		zr, err := zstd.NewReader(r)
		if err != nil {
			return nil, "", fmt.Errorf("failed to open zstd stream: %w", err)
		}
		return zr.IOReadCloser(), "", nil
	case Zip:
		return openZip(r, maxArchive)
	default:
		return nil, "", fmt.Errorf("unsupported container %q", c)
	}
}

func openZip(r io.Reader, maxArchive int64) (io.ReadCloser, string, error) {
	buf, err := io.ReadAll(io.LimitReader(r, maxArchive+1))
	if err != nil {
		return nil, "", fmt.Errorf("failed to read zip archive: %w", err)
	}
	if int64(len(buf)) > maxArchive {
		return nil, "", ErrArchiveTooLarge
	}

	zr, err := zip.NewReader(bytes.NewReader(buf), int64(len(buf)))
	if err != nil {
		return nil, "", fmt.Errorf("failed to open zip archive: %w", err)
	}
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, "", fmt.Errorf("failed to open zip member %s: %w", f.Name, err)
		}
		return rc, f.Name, nil
	}
	return nil, "", errors.New("zip archive has no members")
}
