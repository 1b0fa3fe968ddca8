// Package stream writes Server-Sent Events to one client connection.
// Frames follow "event: <kind>\ndata: <payload>\n\n" with a periodic
// comment-only keep-alive frame for intermediary proxies.
package stream

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/kapu/stream-chess-vote-go/pkg/gamedto"
)

const keepAliveInterval = 15 * time.Second

var ErrStreamClosed = errors.New("stream already terminated")

// Publisher serializes writes to one SSE response. Exactly one of
// Close or Fail terminates a stream; later calls are absorbed.
type Publisher struct {
	w       http.ResponseWriter
	flusher http.Flusher

	mu         sync.Mutex
	terminated bool

	keepAliveEvery time.Duration
	stopKeepAlive  chan struct{}
	stopOnce       sync.Once
	wg             sync.WaitGroup
}

type Option func(*Publisher)

// WithKeepAliveInterval overrides the 15s keep-alive cadence.
func WithKeepAliveInterval(d time.Duration) Option {
	return func(p *Publisher) { p.keepAliveEvery = d }
}

// New prepares w for event streaming and returns the publisher. The
// caller must eventually call Close or Fail.
func New(w http.ResponseWriter, opts ...Option) (*Publisher, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, errors.New("streaming unsupported by response writer")
	}
	p := &Publisher{
		w:              w,
		flusher:        flusher,
		keepAliveEvery: keepAliveInterval,
		stopKeepAlive:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache, no-transform")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	return p, nil
}

// StartKeepAlive begins the periodic comment frames. Stops on
// termination.
func (p *Publisher) StartKeepAlive() {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		t := time.NewTicker(p.keepAliveEvery)
		defer t.Stop()
		for {
			select {
			case <-p.stopKeepAlive:
				return
			case <-t.C:
				p.writeRaw(": keep-alive\n\n")
			}
		}
	}()
}

// Send writes one event frame. Strings pass through as-is; any other
// payload is JSON encoded.
func (p *Publisher) Send(kind string, data any) error {
	payload, ok := data.(string)
	if !ok {
		raw, err := json.Marshal(data)
		if err != nil {
			return fmt.Errorf("encode %s event: %w", kind, err)
		}
		payload = string(raw)
	}
	return p.writeRaw(fmt.Sprintf("event: %s\ndata: %s\n\n", kind, payload))
}

func (p *Publisher) writeRaw(frame string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.terminated {
		return ErrStreamClosed
	}
	if _, err := p.w.Write([]byte(frame)); err != nil {
		return err
	}
	p.flusher.Flush()
	return nil
}

// Close terminates the stream gracefully. Idempotent, and a no-op
// after Fail.
func (p *Publisher) Close() {
	p.terminate(nil)
}

// Fail emits a final error event and terminates. Idempotent, and a
// no-op after Close.
func (p *Publisher) Fail(message, detail string) {
	p.terminate(&gamedto.StreamError{Message: message, Error: detail})
}

func (p *Publisher) terminate(errPayload *gamedto.StreamError) {
	p.mu.Lock()
	if p.terminated {
		p.mu.Unlock()
		return
	}
	if errPayload != nil {
		if raw, err := json.Marshal(errPayload); err == nil {
			if _, werr := p.w.Write([]byte(fmt.Sprintf("event: error\ndata: %s\n\n", raw))); werr == nil {
				p.flusher.Flush()
			}
		}
	}
	p.terminated = true
	p.mu.Unlock()

	p.stopOnce.Do(func() { close(p.stopKeepAlive) })
	p.wg.Wait()
}

// Terminated reports whether Close or Fail already ran.
func (p *Publisher) Terminated() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.terminated
}
