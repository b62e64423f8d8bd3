// Package dspace assembles DSpace METS SIP packages: the submission's
// custodial files followed by a mets.xml descriptor carrying DIM metadata,
// the file section with per-file checksums, and a flat structural map.
//
// The METS entry is written last so it can record the digests the observer
// stack computed while the custodial files streamed.
package dspace

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"sync"

	"github.com/marmos91/depositd/pkg/model"
	"github.com/marmos91/depositd/pkg/packaging"
)

// SpecURI is the packaging identifier for DSpace METS SIPs.
const SpecURI = "http://purl.org/net/sword/package/METSDSpaceSIP"

// metsEntry is the reserved control-entry name.
const metsEntry = "mets.xml"

// Assembler builds DSpace METS SIP package streams.
type Assembler struct {
	resolver *packaging.Resolver
}

// New creates a DSpace assembler using the given file resolver.
func New(resolver *packaging.Resolver) *Assembler {
	return &Assembler{resolver: resolver}
}

// Assemble implements packaging.Assembler.
func (a *Assembler) Assemble(ctx context.Context, sub *model.Submission, opts packaging.Options) (packaging.PackageStream, error) {
	meta, err := packaging.ParseMetadata(sub)
	if err != nil {
		return nil, err
	}

	reserved := []string{metsEntry}

	var (
		mu        sync.Mutex
		completed []packaging.Resource
	)

	sources := make([]packaging.Source, 0, len(sub.Files)+1)
	for _, f := range sub.Files {
		name := packaging.RemediateName(f.Name, reserved)
		sources = append(sources, a.resolver.Source(f, name))
	}

	// mets.xml trails the custodial files; its body is rendered from the
	// resources completed so far, digests included.
	sources = append(sources, packaging.Source{
		Name:     metsEntry,
		MimeType: "application/xml",
		Size:     -1,
		Open: func(context.Context) (io.ReadCloser, error) {
			mu.Lock()
			resources := append([]packaging.Resource(nil), completed...)
			mu.Unlock()

			doc, err := renderMets(sub, meta, resources)
			if err != nil {
				return nil, err
			}
			return io.NopCloser(bytes.NewReader(doc)), nil
		},
	})

	name := fmt.Sprintf("%s.zip", packageBaseName(sub))
	stream := packaging.NewStream(name, opts, sources)
	stream.OnResource(func(r packaging.Resource) {
		if r.Name == metsEntry {
			return
		}
		mu.Lock()
		completed = append(completed, r)
		mu.Unlock()
	})
	return stream, nil
}

func packageBaseName(sub *model.Submission) string {
	if sub.GetID() != "" {
		return "dspace-" + sub.GetID()
	}
	return "dspace-submission"
}

// ============================================================================
// METS document
// ============================================================================

type metsDoc struct {
	XMLName   xml.Name  `xml:"mets"`
	Namespace string    `xml:"xmlns,attr"`
	XLink     string    `xml:"xmlns:xlink,attr"`
	Label     string    `xml:"LABEL,attr"`
	Profile   string    `xml:"PROFILE,attr"`
	DmdSec    dmdSec    `xml:"dmdSec"`
	FileSec   fileSec   `xml:"fileSec"`
	StructMap structMap `xml:"structMap"`
}

type dmdSec struct {
	ID     string `xml:"ID,attr"`
	MdWrap mdWrap `xml:"mdWrap"`
}

type mdWrap struct {
	MDType      string  `xml:"MDTYPE,attr"`
	OtherMDType string  `xml:"OTHERMDTYPE,attr,omitempty"`
	XMLData     dimData `xml:"xmlData"`
}

type dimData struct {
	Dim dim `xml:"dim:dim"`
}

type dim struct {
	Namespace string     `xml:"xmlns:dim,attr"`
	Fields    []dimField `xml:"dim:field"`
}

type dimField struct {
	MDSchema  string `xml:"mdschema,attr"`
	Element   string `xml:"element,attr"`
	Qualifier string `xml:"qualifier,attr,omitempty"`
	Value     string `xml:",chardata"`
}

type fileSec struct {
	FileGrp fileGrp `xml:"fileGrp"`
}

type fileGrp struct {
	Use   string     `xml:"USE,attr"`
	Files []metsFile `xml:"file"`
}

type metsFile struct {
	ID           string `xml:"ID,attr"`
	MimeType     string `xml:"MIMETYPE,attr,omitempty"`
	Size         int64  `xml:"SIZE,attr"`
	Checksum     string `xml:"CHECKSUM,attr,omitempty"`
	ChecksumType string `xml:"CHECKSUMTYPE,attr,omitempty"`
	FLocat       fLocat `xml:"FLocat"`
}

type fLocat struct {
	LocType string `xml:"LOCTYPE,attr"`
	Href    string `xml:"xlink:href,attr"`
}

type structMap struct {
	Label string  `xml:"LABEL,attr"`
	Div   metsDiv `xml:"div"`
}

type metsDiv struct {
	DmdID string    `xml:"DMDID,attr"`
	Fptrs []metsPtr `xml:"fptr"`
}

type metsPtr struct {
	FileID string `xml:"FILEID,attr"`
}

func renderMets(sub *model.Submission, meta *packaging.SubmissionMetadata, resources []packaging.Resource) ([]byte, error) {
	fields := dimFields(meta)

	files := make([]metsFile, 0, len(resources))
	ptrs := make([]metsPtr, 0, len(resources))
	for i, r := range resources {
		id := fmt.Sprintf("file-%d", i+1)
		f := metsFile{
			ID:       id,
			MimeType: r.MimeType,
			Size:     r.SizeBytes,
			FLocat:   fLocat{LocType: "URL", Href: r.Name},
		}
		if sum, ok := r.Checksum(packaging.MD5); ok {
			f.Checksum = sum.Hex()
			f.ChecksumType = "MD5"
		}
		files = append(files, f)
		ptrs = append(ptrs, metsPtr{FileID: id})
	}

	doc := metsDoc{
		Namespace: "http://www.loc.gov/METS/",
		XLink:     "http://www.w3.org/1999/xlink",
		Label:     "DSpace METS SIP",
		Profile:   "DSpace METS SIP Profile 1.0",
		DmdSec: dmdSec{
			ID: "dmd-1",
			MdWrap: mdWrap{
				MDType:      "OTHER",
				OtherMDType: "DIM",
				XMLData: dimData{Dim: dim{
					Namespace: "http://www.dspace.org/xmlns/dspace/dim",
					Fields:    fields,
				}},
			},
		},
		FileSec: fileSec{FileGrp: fileGrp{Use: "CONTENT", Files: files}},
		StructMap: structMap{
			Label: "DSpace",
			Div:   metsDiv{DmdID: "dmd-1", Fptrs: ptrs},
		},
	}

	body, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("render mets.xml for submission %q: %w", sub.GetID(), err)
	}
	return append([]byte(xml.Header), body...), nil
}

func dimFields(meta *packaging.SubmissionMetadata) []dimField {
	var fields []dimField
	add := func(element, qualifier, value string) {
		if value == "" {
			return
		}
		fields = append(fields, dimField{
			MDSchema: "dc", Element: element, Qualifier: qualifier, Value: value,
		})
	}

	add("title", "", meta.Title)
	add("description", "abstract", meta.Abstract)
	add("identifier", "doi", meta.DOI)
	add("publisher", "", meta.Publisher)
	add("date", "issued", meta.PublicationDate)
	for _, author := range meta.Authors {
		add("contributor", "author", author.Name)
	}
	add("relation", "ispartof", meta.JournalTitle)
	for _, issn := range meta.ISSNs {
		add("identifier", "issn", issn)
	}
	return fields
}

// Interface guard.
var _ packaging.Assembler = (*Assembler)(nil)
