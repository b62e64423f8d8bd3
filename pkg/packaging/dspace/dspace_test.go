package dspace_test

import (
	"archive/zip"
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/depositd/pkg/model"
	"github.com/marmos91/depositd/pkg/packaging"
	"github.com/marmos91/depositd/pkg/packaging/dspace"
)

func writeFile(t *testing.T, dir, name string, body []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, body, 0o644))
	return path
}

func assembleZip(t *testing.T, sub *model.Submission) (*zip.Reader, packaging.PackageStream) {
	t.Helper()
	asm := dspace.New(packaging.NewResolver(nil))
	s, err := asm.Assemble(context.Background(), sub, packaging.Options{
		SpecURI:   dspace.SpecURI,
		Archive:   packaging.ArchiveZIP,
		Checksums: []packaging.Algorithm{packaging.MD5},
	})
	require.NoError(t, err)

	rc, err := s.Open(context.Background())
	require.NoError(t, err)
	body, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())

	zr, err := zip.NewReader(bytes.NewReader(body), int64(len(body)))
	require.NoError(t, err)
	return zr, s
}

func TestAssembleMetsTrailsCustodialFiles(t *testing.T) {
	dir := t.TempDir()
	article := bytes.Repeat([]byte{0x25}, 2048)
	figure := []byte("figure bytes")
	writeFile(t, dir, "article.pdf", article)
	writeFile(t, dir, "figure1.png", figure)

	sub := &model.Submission{
		Base: model.Base{ID: "sub-42"},
		Metadata: json.RawMessage(`{
			"title": "On Streaming Archives",
			"abstract": "A study.",
			"doi": "10.1000/182",
			"journal-title": "Journal of Plumbing",
			"issns": ["1234-5678"],
			"authors": [{"author": "Ada Lovelace"}]
		}`),
		Files: []model.File{
			{Name: "article.pdf", Location: filepath.Join(dir, "article.pdf"), MimeType: "application/pdf"},
			{Name: "figure1.png", Location: filepath.Join(dir, "figure1.png"), MimeType: "image/png"},
		},
	}

	zr, s := assembleZip(t, sub)

	require.Len(t, zr.File, 3)
	assert.Equal(t, "article.pdf", zr.File[0].Name)
	assert.Equal(t, "figure1.png", zr.File[1].Name)
	assert.Equal(t, "mets.xml", zr.File[2].Name)

	rc, err := zr.File[2].Open()
	require.NoError(t, err)
	mets, err := io.ReadAll(rc)
	require.NoError(t, err)
	_ = rc.Close()

	// The descriptor carries the DIM metadata and the digests of the
	// custodial files that streamed ahead of it.
	assert.Contains(t, string(mets), "On Streaming Archives")
	assert.Contains(t, string(mets), "Ada Lovelace")
	assert.Contains(t, string(mets), `OTHERMDTYPE="DIM"`)

	articleSum := md5.Sum(article)
	figureSum := md5.Sum(figure)
	assert.Contains(t, string(mets), hex.EncodeToString(articleSum[:]))
	assert.Contains(t, string(mets), hex.EncodeToString(figureSum[:]))

	assert.Equal(t, "dspace-sub-42.zip", s.Metadata().Name)
	assert.Equal(t, "application/zip", s.Metadata().MimeType)
}

func TestAssembleRemediatesMetsCollision(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "user-mets", []byte("not a descriptor"))

	sub := &model.Submission{
		Base: model.Base{ID: "sub-7"},
		Files: []model.File{
			{Name: "mets.xml", Location: filepath.Join(dir, "user-mets")},
		},
	}

	zr, _ := assembleZip(t, sub)

	require.Len(t, zr.File, 2)
	assert.Equal(t, packaging.CollisionPrefix+"mets.xml", zr.File[0].Name)
	assert.Equal(t, "mets.xml", zr.File[1].Name)
}

func TestAssembleMissingFileSurfacesOnRead(t *testing.T) {
	sub := &model.Submission{
		Base: model.Base{ID: "sub-9"},
		Files: []model.File{
			{Name: "ghost.pdf", Location: filepath.Join(t.TempDir(), "ghost.pdf")},
		},
	}

	asm := dspace.New(packaging.NewResolver(nil))
	s, err := asm.Assemble(context.Background(), sub, packaging.Options{
		SpecURI: dspace.SpecURI,
		Archive: packaging.ArchiveZIP,
	})
	require.NoError(t, err)

	rc, err := s.Open(context.Background())
	require.NoError(t, err)
	defer func() { _ = rc.Close() }()

	_, err = io.ReadAll(rc)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not included in the zip")
}
