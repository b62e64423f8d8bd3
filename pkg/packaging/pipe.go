package packaging

import (
	"errors"
	"io"
	"sync"

	"github.com/marmos91/depositd/pkg/bufpool"
)

// Pipe sizing. The bounded channel is the back-pressure between the writer
// task and the consumer; the writer stalls once bufferSize bytes are in
// flight.
const (
	// DefaultBufferSize is the in-flight byte budget of a package pipe.
	DefaultBufferSize = 1 << 20 // 1 MiB

	pipeChunkSize = 64 << 10
)

// ErrReaderClosed is surfaced to the writer when the consumer closed its end
// of the pipe before EOF. The writer must abort.
var ErrReaderClosed = errors.New("package reader closed the pipe")

// pipe is a bounded single-producer single-consumer byte pipe with a
// one-shot error slot. The writer stashes its failure on the pipe and the
// reader's next Read surfaces it with the full cause chain, after all bytes
// written before the failure have been drained.
type pipe struct {
	ch chan []byte

	// chunk/off track the partially consumed chunk on the reader side.
	chunk []byte
	off   int

	readerClosed chan struct{}
	readerOnce   sync.Once

	writerOnce sync.Once

	mu  sync.Mutex
	err error // stashed by CloseWithError, surfaced after drain
}

func newPipe(bufferSize int) *pipe {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	slots := bufferSize / pipeChunkSize
	if slots < 1 {
		slots = 1
	}
	return &pipe{
		ch:           make(chan []byte, slots),
		readerClosed: make(chan struct{}),
	}
}

// Write implements the producer side. Chunks are copied so the caller may
// reuse p immediately.
func (p *pipe) Write(b []byte) (int, error) {
	written := 0
	for len(b) > 0 {
		n := len(b)
		if n > pipeChunkSize {
			n = pipeChunkSize
		}
		chunk := bufpool.Get(n)
		copy(chunk, b[:n])

		select {
		case p.ch <- chunk:
		case <-p.readerClosed:
			bufpool.Put(chunk)
			return written, ErrReaderClosed
		}
		written += n
		b = b[n:]
	}
	return written, nil
}

// CloseWithError finishes the producer side. A nil err means clean EOF. The
// first close wins; later calls are no-ops.
func (p *pipe) CloseWithError(err error) {
	p.writerOnce.Do(func() {
		p.mu.Lock()
		p.err = err
		p.mu.Unlock()
		close(p.ch)
	})
}

// Read implements the consumer side. After the channel drains, the stashed
// writer error (or io.EOF) is returned.
func (p *pipe) Read(b []byte) (int, error) {
	for p.chunk == nil || p.off >= len(p.chunk) {
		if p.chunk != nil {
			bufpool.Put(p.chunk)
			p.chunk = nil
			p.off = 0
		}
		chunk, ok := <-p.ch
		if !ok {
			p.mu.Lock()
			err := p.err
			p.mu.Unlock()
			if err != nil {
				return 0, err
			}
			return 0, io.EOF
		}
		p.chunk = chunk
	}

	n := copy(b, p.chunk[p.off:])
	p.off += n
	return n, nil
}

// Close implements the consumer side teardown: it signals the writer to
// abort and releases buffered chunks.
func (p *pipe) Close() error {
	p.readerOnce.Do(func() {
		close(p.readerClosed)
		// Drain whatever the writer already queued so its chunks are
		// not stranded.
		go func() {
			for chunk := range p.ch {
				bufpool.Put(chunk)
			}
		}()
	})
	return nil
}
