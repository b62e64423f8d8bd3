package packaging

import (
	"crypto/md5"  //nolint:gosec // package manifests carry MD5 by spec
	"crypto/sha256"
	"crypto/sha512"
	"hash"
	"io"
)

// observer watches bytes as they are emitted. The writer pays for each byte
// exactly once: every entry's bytes flow through the observer stack on their
// way into the archive.
type observer interface {
	// Data is called for every emitted slice.
	Data(p []byte)

	// Finished is called once after the last byte, to record the
	// observation on the completed resource.
	Finished(r *Resource)
}

// lengthObserver counts emitted bytes.
type lengthObserver struct {
	n int64
}

func (o *lengthObserver) Data(p []byte)        { o.n += int64(len(p)) }
func (o *lengthObserver) Finished(r *Resource) { r.SizeBytes = o.n }

// digestObserver feeds emitted bytes into one hash.
type digestObserver struct {
	alg Algorithm
	h   hash.Hash
}

func newDigestObserver(alg Algorithm) *digestObserver {
	var h hash.Hash
	switch alg {
	case SHA256:
		h = sha256.New()
	case SHA512:
		h = sha512.New()
	default:
		h = md5.New() //nolint:gosec // interoperability digest, not security
	}
	return &digestObserver{alg: alg, h: h}
}

func (o *digestObserver) Data(p []byte) { _, _ = o.h.Write(p) }

func (o *digestObserver) Finished(r *Resource) {
	r.Checksums = append(r.Checksums, o.sum())
}

func (o *digestObserver) sum() Checksum {
	return Checksum{Algorithm: o.alg, Value: o.h.Sum(nil)}
}

// newObserverStack builds the per-entry observer stack: content length plus
// one digest per requested algorithm, MD5 always included.
func newObserverStack(algorithms []Algorithm) []observer {
	stack := []observer{&lengthObserver{}, newDigestObserver(MD5)}
	for _, alg := range algorithms {
		if alg == MD5 {
			continue
		}
		stack = append(stack, newDigestObserver(alg))
	}
	return stack
}

// observingWriter tees writes into the observer stack on the way to w.
type observingWriter struct {
	w     io.Writer
	stack []observer
}

func (ow *observingWriter) Write(p []byte) (int, error) {
	n, err := ow.w.Write(p)
	if n > 0 {
		for _, o := range ow.stack {
			o.Data(p[:n])
		}
	}
	return n, err
}
