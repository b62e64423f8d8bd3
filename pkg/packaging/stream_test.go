package packaging_test

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"compress/gzip"
	"context"
	"crypto/md5"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/depositd/pkg/packaging"
)

func drainStream(t *testing.T, s packaging.PackageStream) []byte {
	t.Helper()
	rc, err := s.Open(context.Background())
	require.NoError(t, err)
	defer func() { _ = rc.Close() }()

	body, err := io.ReadAll(rc)
	require.NoError(t, err)
	return body
}

func TestStreamZipRoundTrip(t *testing.T) {
	sources := []packaging.Source{
		packaging.BytesSource("manifest.txt", "text/plain", []byte("pdf1.pdf\npdf2.pdf\n")),
		packaging.BytesSource("pdf1.pdf", "application/pdf", bytes.Repeat([]byte{0x25}, 4096)),
		packaging.BytesSource("pdf2.pdf", "application/pdf", bytes.Repeat([]byte{0x50}, 1024)),
	}

	s := packaging.NewStream("pkg-1.zip", packaging.Options{
		SpecURI:   "http://purl.org/net/sword/package/METSDSpaceSIP",
		Archive:   packaging.ArchiveZIP,
		Checksums: []packaging.Algorithm{packaging.MD5, packaging.SHA256},
	}, sources)

	var seen []packaging.Resource
	s.OnResource(func(r packaging.Resource) { seen = append(seen, r) })

	body := drainStream(t, s)

	// The consumed bytes form a valid ZIP with every declared entry
	// exactly once, in declared order.
	zr, err := zip.NewReader(bytes.NewReader(body), int64(len(body)))
	require.NoError(t, err)
	require.Len(t, zr.File, 3)
	assert.Equal(t, "manifest.txt", zr.File[0].Name)
	assert.Equal(t, "pdf1.pdf", zr.File[1].Name)
	assert.Equal(t, "pdf2.pdf", zr.File[2].Name)

	// Per-resource size and MD5 match the bytes consumed.
	require.Len(t, seen, 3)
	for i, f := range zr.File {
		rc, err := f.Open()
		require.NoError(t, err)
		content, err := io.ReadAll(rc)
		require.NoError(t, err)
		_ = rc.Close()

		assert.Equal(t, int64(len(content)), seen[i].SizeBytes)
		sum := md5.Sum(content)
		got, ok := seen[i].Checksum(packaging.MD5)
		require.True(t, ok)
		assert.Equal(t, sum[:], got.Value)

		_, hasSHA := seen[i].Checksum(packaging.SHA256)
		assert.True(t, hasSHA)
	}

	// The full-body digest surfaced after EOF equals the digest of the
	// consumed bytes.
	meta := s.Metadata()
	require.NotEmpty(t, meta.Checksums)
	bodySum := md5.Sum(body)
	got, ok := packaging.Resource{Checksums: meta.Checksums}.Checksum(packaging.MD5)
	require.True(t, ok)
	assert.Equal(t, bodySum[:], got.Value)
	assert.Equal(t, "application/zip", meta.MimeType)
}

func TestStreamTarGzipRoundTrip(t *testing.T) {
	sources := []packaging.Source{
		packaging.BytesSource("bulk_meta.xml", "application/xml", []byte("<manifest/>")),
		packaging.BytesSource("pdf1.pdf", "application/pdf", bytes.Repeat([]byte{0x0a}, 100_000)),
	}

	s := packaging.NewStream("pkg-2.tar.gz", packaging.Options{
		SpecURI:     "nihms-native-2017-07",
		Archive:     packaging.ArchiveTAR,
		Compression: packaging.CompressionGzip,
	}, sources)

	body := drainStream(t, s)

	gz, err := gzip.NewReader(bytes.NewReader(body))
	require.NoError(t, err)
	tr := tar.NewReader(gz)

	var names []string
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		names = append(names, hdr.Name)
		_, err = io.Copy(io.Discard, tr)
		require.NoError(t, err)
	}
	assert.Equal(t, []string{"bulk_meta.xml", "pdf1.pdf"}, names)
	assert.Equal(t, "application/gzip", s.Metadata().MimeType)
}

func TestStreamTarSpoolsUnknownSize(t *testing.T) {
	payload := []byte("sized at spool time")
	sources := []packaging.Source{{
		Name:     "data.bin",
		MimeType: "application/octet-stream",
		Size:     -1,
		Open: func(context.Context) (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(payload)), nil
		},
	}}

	s := packaging.NewStream("pkg-3.tar", packaging.Options{
		Archive: packaging.ArchiveTAR,
	}, sources)

	body := drainStream(t, s)

	tr := tar.NewReader(bytes.NewReader(body))
	hdr, err := tr.Next()
	require.NoError(t, err)
	assert.Equal(t, int64(len(payload)), hdr.Size)
}

func TestStreamPropagatesSourceFailureToReader(t *testing.T) {
	boom := errors.New("file pdf3.pdf not included in the zip")
	sources := []packaging.Source{
		packaging.BytesSource("manifest.txt", "text/plain", []byte("pdf3.pdf\n")),
		{
			Name: "pdf3.pdf",
			Size: -1,
			Open: func(context.Context) (io.ReadCloser, error) {
				return nil, boom
			},
		},
	}

	s := packaging.NewStream("pkg-4.zip", packaging.Options{
		Archive: packaging.ArchiveZIP,
	}, sources)

	rc, err := s.Open(context.Background())
	require.NoError(t, err)
	defer func() { _ = rc.Close() }()

	_, err = io.ReadAll(rc)
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "not included in the zip")
}

func TestStreamChecksumsEmptyBeforeDrain(t *testing.T) {
	s := packaging.NewStream("pkg-5.zip", packaging.Options{
		Archive: packaging.ArchiveZIP,
	}, []packaging.Source{
		packaging.BytesSource("a.txt", "text/plain", []byte("a")),
	})

	// Metadata must not block before the stream is drained, and the
	// full-body digests are not yet valid.
	assert.Empty(t, s.Metadata().Checksums)

	_ = drainStream(t, s)
	assert.NotEmpty(t, s.Metadata().Checksums)
}

func TestStreamOpenTwiceFails(t *testing.T) {
	s := packaging.NewStream("pkg-6.zip", packaging.Options{Archive: packaging.ArchiveZIP}, nil)

	rc, err := s.Open(context.Background())
	require.NoError(t, err)
	defer func() { _ = rc.Close() }()

	_, err = s.Open(context.Background())
	require.Error(t, err)
}

func TestRemediateName(t *testing.T) {
	reserved := []string{"manifest.txt", "bulk_meta.xml"}

	assert.Equal(t, "article.pdf", packaging.RemediateName("article.pdf", reserved))
	assert.Equal(t, packaging.CollisionPrefix+"manifest.txt",
		packaging.RemediateName("manifest.txt", reserved))
	// Case-insensitive: user files never shadow control files.
	assert.Equal(t, packaging.CollisionPrefix+"Manifest.TXT",
		packaging.RemediateName("Manifest.TXT", reserved))
}

func TestRegistryUnknownSpec(t *testing.T) {
	r := packaging.NewRegistry()
	_, err := r.Lookup("urn:unknown")
	require.ErrorIs(t, err, packaging.ErrUnknownSpec)
	assert.Contains(t, err.Error(), "Unacceptable packaging type")
}
