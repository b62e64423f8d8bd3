package packaging

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"time"
)

// Source is one entry the writer will emit into the archive.
type Source struct {
	// Name is the entry name inside the archive, already remediated for
	// collisions.
	Name string

	// MimeType is carried onto the resulting Resource.
	MimeType string

	// Size is the declared size in bytes, or -1 when unknown. Formats
	// that need the size upfront spool unknown-size entries in memory.
	Size int64

	// Open yields the entry's bytes. It is called exactly once, from the
	// writer task.
	Open func(ctx context.Context) (io.ReadCloser, error)
}

// BytesSource is a Source over an in-memory document.
func BytesSource(name, mimeType string, body []byte) Source {
	return Source{
		Name:     name,
		MimeType: mimeType,
		Size:     int64(len(body)),
		Open: func(context.Context) (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(body)), nil
		},
	}
}

// Stream is the standard PackageStream implementation: a writer task feeds
// the archive through a bounded pipe while the consumer reads.
type Stream struct {
	name       string
	opts       Options
	sources    []Source
	onResource func(Resource)

	mu        sync.Mutex
	opened    bool
	resources []Resource
	checksums []Checksum
}

// NewStream builds a package stream over the given entries. The entry order
// is the emission order; dialects decide whether the manifest leads or
// trails.
func NewStream(name string, opts Options, sources []Source) *Stream {
	return &Stream{name: name, opts: opts, sources: sources}
}

// OnResource registers a callback invoked from the writer task each time an
// entry completes. Assemblers use it to collect their manifest state.
func (s *Stream) OnResource(fn func(Resource)) {
	s.onResource = fn
}

// Open implements PackageStream. It spawns the writer task and returns the
// read end immediately; the writer lives exactly as long as the reader
// holds the pipe.
func (s *Stream) Open(ctx context.Context) (io.ReadCloser, error) {
	s.mu.Lock()
	if s.opened {
		s.mu.Unlock()
		return nil, fmt.Errorf("package %q: stream already open", s.name)
	}
	s.opened = true
	s.mu.Unlock()

	p := newPipe(s.opts.BufferSize)
	go s.write(ctx, p)
	return p, nil
}

// Metadata implements PackageStream. Checksums are valid only after the
// reader drained the stream to EOF; Metadata never blocks on that.
func (s *Stream) Metadata() Metadata {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Metadata{
		Name:        s.name,
		MimeType:    MimeType(s.opts.Archive, s.opts.Compression),
		PackageSpec: s.opts.SpecURI,
		Compression: s.opts.Compression,
		Archive:     s.opts.Archive,
		Checksums:   append([]Checksum(nil), s.checksums...),
	}
}

// Resources implements PackageStream.
func (s *Stream) Resources() []Resource {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Resource(nil), s.resources...)
}

// write is the writer task. Any failure is stashed on the pipe so the
// reader's next Read surfaces it; a reader close aborts us through the
// pipe's write error.
func (s *Stream) write(ctx context.Context, p *pipe) {
	// Full-body digests observe every byte that enters the pipe,
	// compressor included.
	bodyStack := make([]observer, 0, 1+len(s.opts.Checksums))
	bodyStack = append(bodyStack, newDigestObserver(MD5))
	for _, alg := range s.opts.Checksums {
		if alg != MD5 {
			bodyStack = append(bodyStack, newDigestObserver(alg))
		}
	}
	out := &observingWriter{w: p, stack: bodyStack}

	arch, closers, err := newArchiveWriter(out, s.opts.Archive, s.opts.Compression)
	if err != nil {
		p.CloseWithError(fmt.Errorf("assemble package %q: %w", s.name, err))
		return
	}

	modTime := time.Now()
	for _, src := range s.sources {
		if err := ctx.Err(); err != nil {
			p.CloseWithError(fmt.Errorf("assemble package %q: %w", s.name, err))
			return
		}
		if err := s.writeEntry(ctx, arch, src, modTime); err != nil {
			p.CloseWithError(fmt.Errorf("assemble package %q: %w", s.name, err))
			return
		}
	}

	// Close order: archive (flushes the central directory), then the
	// compressor, then the pipe.
	if err := arch.Close(); err != nil {
		p.CloseWithError(fmt.Errorf("assemble package %q: %w", s.name, err))
		return
	}
	for _, c := range closers {
		if err := c.Close(); err != nil {
			p.CloseWithError(fmt.Errorf("assemble package %q: %w", s.name, err))
			return
		}
	}

	sums := make([]Checksum, 0, len(bodyStack))
	for _, o := range bodyStack {
		sums = append(sums, o.(*digestObserver).sum())
	}
	s.mu.Lock()
	s.checksums = sums
	s.mu.Unlock()

	p.CloseWithError(nil)
}

func (s *Stream) writeEntry(ctx context.Context, arch archiveWriter, src Source, modTime time.Time) error {
	rc, err := src.Open(ctx)
	if err != nil {
		return fmt.Errorf("open %q: %w", src.Name, err)
	}
	defer func() { _ = rc.Close() }()

	stack := newObserverStack(s.opts.Checksums)

	size := src.Size
	var body io.Reader = rc
	if arch.NeedsSize() && size < 0 {
		// The container wants the size upfront; spool the entry.
		var buf bytes.Buffer
		if _, err := io.Copy(&buf, rc); err != nil {
			return fmt.Errorf("spool %q: %w", src.Name, err)
		}
		size = int64(buf.Len())
		body = &buf
	}

	entry, err := arch.BeginEntry(src.Name, size, modTime)
	if err != nil {
		return err
	}

	if _, err := io.Copy(&observingWriter{w: entry, stack: stack}, body); err != nil {
		return fmt.Errorf("write %q: %w", src.Name, err)
	}

	resource := Resource{Name: src.Name, MimeType: src.MimeType}
	for _, o := range stack {
		o.Finished(&resource)
	}

	s.mu.Lock()
	s.resources = append(s.resources, resource)
	s.mu.Unlock()

	if s.onResource != nil {
		s.onResource(resource)
	}
	return nil
}

// Interface guard.
var _ PackageStream = (*Stream)(nil)
