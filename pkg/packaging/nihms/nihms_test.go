package nihms_test

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/depositd/pkg/model"
	"github.com/marmos91/depositd/pkg/packaging"
	"github.com/marmos91/depositd/pkg/packaging/nihms"
)

func writeFile(t *testing.T, dir, name string, body []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, body, 0o644))
	return path
}

func assembleTarGz(t *testing.T, sub *model.Submission) (map[string][]byte, []string, packaging.PackageStream) {
	t.Helper()
	asm := nihms.New(packaging.NewResolver(nil))
	s, err := asm.Assemble(context.Background(), sub, packaging.Options{
		SpecURI:     nihms.SpecURI,
		Archive:     packaging.ArchiveTAR,
		Compression: packaging.CompressionGzip,
	})
	require.NoError(t, err)

	rc, err := s.Open(context.Background())
	require.NoError(t, err)
	body, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())

	gz, err := gzip.NewReader(bytes.NewReader(body))
	require.NoError(t, err)
	tr := tar.NewReader(gz)

	entries := map[string][]byte{}
	var order []string
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		content, err := io.ReadAll(tr)
		require.NoError(t, err)
		entries[hdr.Name] = content
		order = append(order, hdr.Name)
	}
	return entries, order, s
}

func TestAssembleControlEntriesLead(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "paper.pdf", bytes.Repeat([]byte{0x50}, 1024))
	writeFile(t, dir, "table1.csv", []byte("a,b\n1,2\n"))

	sub := &model.Submission{
		Base: model.Base{ID: "sub-11"},
		Metadata: json.RawMessage(`{
			"title": "Deposits at Scale",
			"doi": "10.1000/99",
			"journal-title": "Archive Letters",
			"issns": ["4321-8765"],
			"authors": [
				{"author": "Grace Hopper", "email": "grace@example.edu"},
				{"author": "Alan Turing"}
			]
		}`),
		Files: []model.File{
			{Name: "paper.pdf", Location: filepath.Join(dir, "paper.pdf"), MimeType: "application/pdf", Role: model.RoleManuscript},
			{Name: "table1.csv", Location: filepath.Join(dir, "table1.csv"), MimeType: "text/csv", Role: model.RoleTable},
		},
	}

	entries, order, s := assembleTarGz(t, sub)

	require.Equal(t, []string{"manifest.txt", "bulk_meta.xml", "paper.pdf", "table1.csv"}, order)

	lines := strings.Split(strings.TrimRight(string(entries["manifest.txt"]), "\n"), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "manuscript\tpaper\tpaper.pdf", lines[0])
	assert.Equal(t, "table\ttable1\ttable1.csv", lines[1])

	meta := string(entries["bulk_meta.xml"])
	assert.Contains(t, meta, "<nihms-submit>")
	assert.Contains(t, meta, "Deposits at Scale")
	assert.Contains(t, meta, `doi="10.1000/99"`)
	assert.Contains(t, meta, "Archive Letters")
	// The first listed author is the corresponding contact.
	assert.Contains(t, meta, `lname="Hopper" email="grace@example.edu" corrpi="true"`)
	assert.Contains(t, meta, `lname="Turing" corrpi="false"`)

	assert.Equal(t, "nihms-sub-11.tar.gz", s.Metadata().Name)
	assert.Equal(t, "application/gzip", s.Metadata().MimeType)
}

func TestAssembleRemediatesReservedNames(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "user-manifest", []byte("user bytes"))

	sub := &model.Submission{
		Base: model.Base{ID: "sub-12"},
		Files: []model.File{
			{Name: "manifest.txt", Location: filepath.Join(dir, "user-manifest")},
		},
	}

	entries, order, _ := assembleTarGz(t, sub)

	require.Equal(t, []string{"manifest.txt", "bulk_meta.xml", packaging.CollisionPrefix + "manifest.txt"}, order)

	// The manifest names the remediated entry, not the reserved name.
	assert.Contains(t, string(entries["manifest.txt"]), "\t"+packaging.CollisionPrefix+"manifest.txt\n")
	assert.Equal(t, "user bytes", string(entries[packaging.CollisionPrefix+"manifest.txt"]))
}
