package audio

import (
	"io"
	"sync"
	"sync/atomic"
)

// captureBuffer accumulates raw PCM from a device callback until sealed.
type captureBuffer struct {
	mu     sync.Mutex
	rawPCM []byte
	sealed bool

	inflight sync.WaitGroup
	bytes    atomic.Int64
}

// write appends PCM. After seal it reports io.EOF so the producer stops.
func (b *captureBuffer) write(buffer []byte) (int, error) {
	if len(buffer) == 0 {
		return 0, nil
	}

	b.mu.Lock()
	if b.sealed {
		b.mu.Unlock()
		return 0, io.EOF
	}
	// Add under the same mutex as sealed to avoid Add/Wait races.
	b.inflight.Add(1)
	b.rawPCM = append(b.rawPCM, buffer...)
	b.mu.Unlock()
	defer b.inflight.Done()

	b.bytes.Add(int64(len(buffer)))
	return len(buffer), nil
}

// seal stops accepting writes and returns everything captured so far.
func (b *captureBuffer) seal() []byte {
	b.mu.Lock()
	if b.sealed {
		b.mu.Unlock()
		return nil
	}
	b.sealed = true
	b.mu.Unlock()

	b.inflight.Wait()

	b.mu.Lock()
	defer b.mu.Unlock()
	out := b.rawPCM
	b.rawPCM = nil
	return out
}

func (b *captureBuffer) captured() int64 {
	return b.bytes.Load()
}

// writerFunc adapts a function to io.Writer.
type writerFunc func([]byte) (int, error)

func (f writerFunc) Write(b []byte) (int, error) {
	return f(b)
}
