// Package packaging turns a submission into a streaming archive: the
// package stream core (bounded pipe, archive writers, checksum observers)
// plus the assembler contract the dialect packages implement.
//
// Assembly and consumption are decoupled: Open returns a reader immediately
// while a dedicated writer task fills the pipe. Writer failures are stashed
// on the pipe and surface on the consumer's next Read with the full cause
// chain.
package packaging

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/marmos91/depositd/pkg/model"
)

// ErrUnknownSpec is returned when no assembler is registered for a
// packaging spec URI.
var ErrUnknownSpec = errors.New("Unacceptable packaging type")

// Algorithm names a checksum algorithm carried in package metadata.
type Algorithm string

const (
	MD5    Algorithm = "md5"
	SHA256 Algorithm = "sha256"
	SHA512 Algorithm = "sha512"
)

// Checksum is one computed digest.
type Checksum struct {
	Algorithm Algorithm
	Value     []byte
}

// Hex returns the lowercase hex rendering of the digest.
func (c Checksum) Hex() string { return hex.EncodeToString(c.Value) }

// Base64 returns the base64 rendering used by headers such as Content-MD5.
func (c Checksum) Base64() string { return base64.StdEncoding.EncodeToString(c.Value) }

// Archive selects the container format.
type Archive string

const (
	ArchiveZIP Archive = "zip"
	ArchiveTAR Archive = "tar"
)

// Compression selects the outer compression wrapped around the container.
type Compression string

const (
	CompressionNone Compression = "none"
	CompressionGzip Compression = "gzip"
)

// MimeType returns the content type of the finished package.
func MimeType(a Archive, c Compression) string {
	switch {
	case a == ArchiveZIP:
		return "application/zip"
	case a == ArchiveTAR && c == CompressionGzip:
		return "application/gzip"
	default:
		return "application/x-tar"
	}
}

// Resource describes one entry of the package: name, bytes emitted, and the
// digests of those bytes.
type Resource struct {
	Name      string
	SizeBytes int64
	MimeType  string
	Checksums []Checksum
}

// Checksum returns the digest computed with the given algorithm, if any.
func (r Resource) Checksum(alg Algorithm) (Checksum, bool) {
	for _, c := range r.Checksums {
		if c.Algorithm == alg {
			return c, true
		}
	}
	return Checksum{}, false
}

// Metadata describes the finished package.
//
// Checksums covers every byte emitted through the pipe and is only valid
// once the consumer has drained the stream to EOF; Metadata never blocks
// waiting for that.
type Metadata struct {
	Name        string
	MimeType    string
	PackageSpec string
	Compression Compression
	Archive     Archive
	Checksums   []Checksum
}

// Options carries the assembly spec of the target repository.
type Options struct {
	// SpecURI identifies the packaging dialect.
	SpecURI string

	// Archive and Compression pick the container.
	Archive     Archive
	Compression Compression

	// Checksums lists the digests to compute per entry and for the whole
	// body. MD5 is always computed; listing it twice is harmless.
	Checksums []Algorithm

	// BufferSize overrides the pipe's in-flight byte budget.
	BufferSize int
}

// PackageStream is the product of an assembler: a package that can be
// consumed while it is being written.
type PackageStream interface {
	// Open starts the writer task and returns the read end of the pipe.
	// Closing the reader before EOF aborts the writer.
	Open(ctx context.Context) (io.ReadCloser, error)

	// Metadata describes the package. Its Checksums field is valid only
	// after the reader reached EOF.
	Metadata() Metadata

	// Resources lists the completed entries so far; the list is complete
	// once the reader reached EOF.
	Resources() []Resource
}

// Assembler renders a submission into a package stream in one packaging
// dialect.
type Assembler interface {
	Assemble(ctx context.Context, sub *model.Submission, opts Options) (PackageStream, error)
}

// ============================================================================
// Registry
// ============================================================================

// Registry resolves packaging spec URIs to assemblers.
type Registry struct {
	mu         sync.RWMutex
	assemblers map[string]Assembler
}

// NewRegistry creates an empty assembler registry.
func NewRegistry() *Registry {
	return &Registry{assemblers: make(map[string]Assembler)}
}

// Register binds an assembler to a spec URI, replacing any previous binding.
func (r *Registry) Register(specURI string, a Assembler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.assemblers[specURI] = a
}

// Lookup resolves a spec URI. Unknown URIs return ErrUnknownSpec.
func (r *Registry) Lookup(specURI string) (Assembler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if a, ok := r.assemblers[specURI]; ok {
		return a, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownSpec, specURI)
}

// Specs lists the registered spec URIs, sorted.
func (r *Registry) Specs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	specs := make([]string, 0, len(r.assemblers))
	for spec := range r.assemblers {
		specs = append(specs, spec)
	}
	sort.Strings(specs)
	return specs
}

// ============================================================================
// Name-collision remediation
// ============================================================================

// CollisionPrefix is prepended to custodial file names that would shadow a
// dialect's control entries (manifest, metadata document). User files never
// shadow control files.
const CollisionPrefix = "SUBMITTED_"

// RemediateName returns the entry name to use for a custodial file, given
// the dialect's reserved control-entry names.
func RemediateName(name string, reserved []string) string {
	for _, r := range reserved {
		if strings.EqualFold(name, r) {
			return CollisionPrefix + name
		}
	}
	return name
}
