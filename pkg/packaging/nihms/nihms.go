// Package nihms assembles NIHMS bulk-submission packages: a manifest.txt
// naming every custodial file, a bulk_meta.xml metadata document, and the
// custodial files themselves. The control entries lead so the archive can
// be validated as it is ingested.
package nihms

import (
	"context"
	"encoding/xml"
	"fmt"
	"strings"

	"github.com/marmos91/depositd/pkg/model"
	"github.com/marmos91/depositd/pkg/packaging"
)

// SpecURI is the packaging identifier for NIHMS bulk submissions.
const SpecURI = "nihms-native-2017-07"

// Reserved control-entry names.
const (
	manifestEntry = "manifest.txt"
	metadataEntry = "bulk_meta.xml"
)

// Assembler builds NIHMS bulk-submission package streams.
type Assembler struct {
	resolver *packaging.Resolver
}

// New creates a NIHMS assembler using the given file resolver.
func New(resolver *packaging.Resolver) *Assembler {
	return &Assembler{resolver: resolver}
}

// Assemble implements packaging.Assembler.
func (a *Assembler) Assemble(ctx context.Context, sub *model.Submission, opts packaging.Options) (packaging.PackageStream, error) {
	meta, err := packaging.ParseMetadata(sub)
	if err != nil {
		return nil, err
	}

	reserved := []string{manifestEntry, metadataEntry}

	entries := make([]packedFile, 0, len(sub.Files))
	for _, f := range sub.Files {
		entries = append(entries, packedFile{
			file: f,
			name: packaging.RemediateName(f.Name, reserved),
		})
	}

	manifest := renderManifest(entries)
	metadata, err := renderBulkMeta(sub, meta)
	if err != nil {
		return nil, err
	}

	sources := make([]packaging.Source, 0, len(entries)+2)
	sources = append(sources,
		packaging.BytesSource(manifestEntry, "text/plain", manifest),
		packaging.BytesSource(metadataEntry, "application/xml", metadata),
	)
	for _, e := range entries {
		sources = append(sources, a.resolver.Source(e.file, e.name))
	}

	name := packageName(sub, opts)
	return packaging.NewStream(name, opts, sources), nil
}

func packageName(sub *model.Submission, opts packaging.Options) string {
	base := "nihms-submission"
	if sub.GetID() != "" {
		base = "nihms-" + sub.GetID()
	}
	switch {
	case opts.Archive == packaging.ArchiveZIP:
		return base + ".zip"
	case opts.Compression == packaging.CompressionGzip:
		return base + ".tar.gz"
	default:
		return base + ".tar"
	}
}

// packedFile pairs a custodial file with its remediated archive entry name.
type packedFile struct {
	file model.File
	name string
}

// renderManifest produces the tab-separated manifest: file type, label,
// entry name, one line per custodial file.
func renderManifest(entries []packedFile) []byte {
	var b strings.Builder
	for _, e := range entries {
		b.WriteString(string(fileType(e.file.Role)))
		b.WriteByte('\t')
		b.WriteString(label(e.file))
		b.WriteByte('\t')
		b.WriteString(e.name)
		b.WriteByte('\n')
	}
	return []byte(b.String())
}

// nihmsFileType is the manifest's file classification.
type nihmsFileType string

const (
	typeManuscript nihmsFileType = "manuscript"
	typeSupplement nihmsFileType = "supplement"
	typeFigure     nihmsFileType = "figure"
	typeTable      nihmsFileType = "table"
)

func fileType(role model.FileRole) nihmsFileType {
	switch role {
	case model.RoleSupplement:
		return typeSupplement
	case model.RoleFigure:
		return typeFigure
	case model.RoleTable:
		return typeTable
	default:
		return typeManuscript
	}
}

func label(f model.File) string {
	if f.Name == "" {
		return "file"
	}
	return strings.TrimSuffix(f.Name, extension(f.Name))
}

func extension(name string) string {
	if i := strings.LastIndexByte(name, '.'); i > 0 {
		return name[i:]
	}
	return ""
}

// ============================================================================
// bulk_meta.xml
// ============================================================================

type bulkMeta struct {
	XMLName    xml.Name    `xml:"nihms-submit"`
	Manuscript manuscript  `xml:"manuscript"`
	Journal    journalMeta `xml:"journal-meta"`
	Title      string      `xml:"title"`
	Contacts   []person    `xml:"contacts>person"`
}

type manuscript struct {
	ID           string `xml:"id,attr,omitempty"`
	DOI          string `xml:"doi,attr,omitempty"`
	EmbargoUntil string `xml:"embargo-until,attr,omitempty"`
}

type journalMeta struct {
	Title string   `xml:"journal-title,omitempty"`
	ISSNs []issn   `xml:"issn"`
	Pub   pubDates `xml:"pub-date,omitempty"`
}

type issn struct {
	Type  string `xml:"issn-type,attr,omitempty"`
	Value string `xml:",chardata"`
}

type pubDates struct {
	Date string `xml:",chardata"`
}

type person struct {
	FirstName string `xml:"fname,attr,omitempty"`
	LastName  string `xml:"lname,attr,omitempty"`
	Email     string `xml:"email,attr,omitempty"`
	Corresp   bool   `xml:"corrpi,attr"`
}

func renderBulkMeta(sub *model.Submission, meta *packaging.SubmissionMetadata) ([]byte, error) {
	doc := bulkMeta{
		Manuscript: manuscript{
			ID:           sub.GetID(),
			DOI:          meta.DOI,
			EmbargoUntil: meta.EmbargoUntil,
		},
		Journal: journalMeta{
			Title: meta.JournalTitle,
			Pub:   pubDates{Date: meta.PublicationDate},
		},
		Title:    meta.Title,
		Contacts: contacts(meta.Authors),
	}
	for _, value := range meta.ISSNs {
		doc.Journal.ISSNs = append(doc.Journal.ISSNs, issn{Value: value})
	}

	body, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("render bulk_meta.xml for submission %q: %w", sub.GetID(), err)
	}
	return append([]byte(xml.Header), body...), nil
}

func contacts(authors []packaging.Author) []person {
	people := make([]person, 0, len(authors))
	for i, a := range authors {
		first, last := splitName(a.Name)
		people = append(people, person{
			FirstName: first,
			LastName:  last,
			Email:     a.Email,
			// The first listed author is the corresponding contact.
			Corresp: i == 0,
		})
	}
	return people
}

func splitName(full string) (first, last string) {
	parts := strings.Fields(full)
	if len(parts) == 0 {
		return "", ""
	}
	if len(parts) == 1 {
		return "", parts[0]
	}
	return strings.Join(parts[:len(parts)-1], " "), parts[len(parts)-1]
}

// Interface guard.
var _ packaging.Assembler = (*Assembler)(nil)
