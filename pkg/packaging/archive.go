package packaging

import (
	"archive/tar"
	"archive/zip"
	"compress/gzip"
	"fmt"
	"io"
	"time"
)

// archiveWriter abstracts the container format. Entries are written
// strictly one at a time.
type archiveWriter interface {
	// BeginEntry opens the next entry. size < 0 means unknown; formats
	// that need the size upfront (tar) reject it, and the stream writer
	// spools such entries first.
	BeginEntry(name string, size int64, modTime time.Time) (io.Writer, error)

	// NeedsSize reports whether BeginEntry requires a known size.
	NeedsSize() bool

	// Close finalizes the container (e.g. the ZIP central directory).
	// It does not close the underlying writer.
	Close() error
}

// newArchiveWriter stacks the container and optional compressor over w and
// returns the archive plus the closers to run, in order, after the last
// entry.
func newArchiveWriter(w io.Writer, archive Archive, compression Compression) (archiveWriter, []io.Closer, error) {
	var closers []io.Closer

	if compression == CompressionGzip {
		if archive == ArchiveZIP {
			return nil, nil, fmt.Errorf("zip packages are not gzip-wrapped")
		}
		gz := gzip.NewWriter(w)
		closers = append(closers, gz)
		w = gz
	}

	switch archive {
	case ArchiveZIP:
		zw := &zipArchiveWriter{zw: zip.NewWriter(w)}
		return zw, closers, nil
	case ArchiveTAR:
		tw := &tarArchiveWriter{tw: tar.NewWriter(w)}
		return tw, closers, nil
	default:
		return nil, nil, fmt.Errorf("unsupported archive format: %s", archive)
	}
}

// ============================================================================
// ZIP
// ============================================================================

type zipArchiveWriter struct {
	zw *zip.Writer
}

func (z *zipArchiveWriter) BeginEntry(name string, _ int64, modTime time.Time) (io.Writer, error) {
	header := &zip.FileHeader{
		Name:     name,
		Method:   zip.Deflate,
		Modified: modTime,
	}
	w, err := z.zw.CreateHeader(header)
	if err != nil {
		return nil, fmt.Errorf("create zip entry %q: %w", name, err)
	}
	return w, nil
}

func (z *zipArchiveWriter) NeedsSize() bool { return false }

// Close flushes the central directory.
func (z *zipArchiveWriter) Close() error {
	if err := z.zw.Close(); err != nil {
		return fmt.Errorf("finalize zip: %w", err)
	}
	return nil
}

// ============================================================================
// TAR
// ============================================================================

type tarArchiveWriter struct {
	tw *tar.Writer
}

func (t *tarArchiveWriter) BeginEntry(name string, size int64, modTime time.Time) (io.Writer, error) {
	if size < 0 {
		return nil, fmt.Errorf("tar entry %q requires a known size", name)
	}
	header := &tar.Header{
		Name:     name,
		Mode:     0644,
		Size:     size,
		ModTime:  modTime,
		Typeflag: tar.TypeReg,
	}
	if err := t.tw.WriteHeader(header); err != nil {
		return nil, fmt.Errorf("write tar header %q: %w", name, err)
	}
	return t.tw, nil
}

func (t *tarArchiveWriter) NeedsSize() bool { return true }

func (t *tarArchiveWriter) Close() error {
	if err := t.tw.Close(); err != nil {
		return fmt.Errorf("finalize tar: %w", err)
	}
	return nil
}
