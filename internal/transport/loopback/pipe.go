package loopback

import (
	"io"
	"sync"
	"time"
)

// DrainGrace bounds how long a hub program may keep running after its input
// is closed, to apply frames still buffered.
const DrainGrace = 250 * time.Millisecond

// Pipe is an unbounded in-memory byte queue. Its read side satisfies
// interpreter.Input and interpreter.Drainer; writes after Close fail with
// io.ErrClosedPipe while buffered bytes stay readable.
type Pipe struct {
	mu     sync.Mutex
	buf    []byte
	closed bool
}

func NewPipe() *Pipe {
	return &Pipe{}
}

func (p *Pipe) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return 0, io.ErrClosedPipe
	}
	p.buf = append(p.buf, b...)
	return len(b), nil
}

// Ready reports whether a byte is buffered.
func (p *Pipe) Ready() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.buf) > 0
}

// ReadByte returns io.EOF when nothing is buffered.
func (p *Pipe) ReadByte() (byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.buf) == 0 {
		return 0, io.EOF
	}
	b := p.buf[0]
	p.buf = p.buf[1:]
	return b, nil
}

func (p *Pipe) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
}

// Drained reports whether the pipe is closed and every byte has been read.
func (p *Pipe) Drained() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed && len(p.buf) == 0
}

// AwaitDrain waits up to DrainGrace for done, then calls cancel and waits for
// done again.
func AwaitDrain(done <-chan struct{}, cancel func()) {
	timer := time.NewTimer(DrainGrace)
	defer timer.Stop()
	select {
	case <-done:
	case <-timer.C:
	}
	cancel()
	<-done
}
