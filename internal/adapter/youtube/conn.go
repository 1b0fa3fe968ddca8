// Package youtube polls the YouTube Live Chat API for one channel.
// Connecting resolves handle -> channel id -> live video -> chat
// session; any missing step fails closed before polling starts. The
// poll cadence always follows the server-provided interval.
package youtube

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kapu/stream-chess-vote-go/internal/adapter"
	"github.com/kapu/stream-chess-vote-go/internal/obslog"
)

const (
	defaultPollInterval = 5 * time.Second
	eventBuffer         = 256
)

var ErrMissingAPIKey = errors.New("youtube: API key not configured")

// Conn is one polling session against a channel's live chat.
type Conn struct {
	handle   string
	apiKey   string
	api      chatAPI
	fallback time.Duration
	logger   *zap.Logger

	mu        sync.Mutex
	connected bool
	closed    bool

	events   chan adapter.Event
	teardown sync.Once

	rootCtx    context.Context
	rootCancel context.CancelFunc
}

type Option func(*Conn)

// WithAPI injects a chat API implementation, used by tests.
func WithAPI(api chatAPI) Option {
	return func(c *Conn) { c.api = api }
}

// WithFallbackInterval overrides the poll delay used until the server
// provides one.
func WithFallbackInterval(d time.Duration) Option {
	return func(c *Conn) { c.fallback = d }
}

func New(handle, apiKey string, opts ...Option) *Conn {
	c := &Conn{
		handle:   strings.TrimSpace(handle),
		apiKey:   strings.TrimSpace(apiKey),
		fallback: defaultPollInterval,
		logger:   obslog.L().Named("youtube"),
		events:   make(chan adapter.Event, eventBuffer),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Conn) Events() <-chan adapter.Event { return c.events }

func (c *Conn) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Connect resolves the live chat session and starts the poll loop.
// Resolution failure at any step aborts with a descriptive error and
// never starts polling.
func (c *Conn) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return errors.New("youtube: connection closed")
	}
	if c.connected {
		c.mu.Unlock()
		return errors.New("youtube: already connected")
	}
	c.rootCtx, c.rootCancel = context.WithCancel(context.Background())
	c.mu.Unlock()

	if c.api == nil {
		if c.apiKey == "" {
			err := ErrMissingAPIKey
			c.fail("YouTube connection error", err)
			return err
		}
		api, err := newDataAPI(ctx, c.apiKey)
		if err != nil {
			c.fail("YouTube connection error", err)
			return err
		}
		c.api = api
	}

	c.emit(adapter.Event{Kind: adapter.KindSystem, Notice: "Connecting to YouTube Live Chat for channel: " + c.handle})

	liveChatID, err := c.resolve(ctx)
	if err != nil {
		c.fail("YouTube connection error", err)
		return err
	}

	c.mu.Lock()
	if c.closed {
		// Close raced the resolution; the poll loop must not start.
		c.mu.Unlock()
		return errors.New("youtube: connection closed")
	}
	c.connected = true
	c.mu.Unlock()
	c.emit(adapter.Event{Kind: adapter.KindSystem, Notice: "Connected to YouTube Live Chat"})
	c.logger.Info("live chat resolved", zap.String("handle", c.handle))

	go c.pollLoop(liveChatID)
	return nil
}

func (c *Conn) resolve(ctx context.Context) (string, error) {
	channelID, err := c.api.ChannelID(ctx, c.handle)
	if err != nil {
		return "", fmt.Errorf("resolve channel %q: %w", c.handle, err)
	}
	videoID, err := c.api.LiveVideoID(ctx, channelID)
	if err != nil {
		return "", fmt.Errorf("find live stream: %w", err)
	}
	liveChatID, err := c.api.LiveChatID(ctx, videoID)
	if err != nil {
		return "", fmt.Errorf("find live chat: %w", err)
	}
	return liveChatID, nil
}

// pollLoop fetches pages strictly sequentially, honoring the interval
// the server returned with the previous page.
func (c *Conn) pollLoop(liveChatID string) {
	pageToken := ""
	interval := c.fallback
	for {
		p, err := c.api.Messages(c.rootCtx, liveChatID, pageToken)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			if errors.Is(err, ErrQuotaExceeded) {
				c.fail("YouTube API quota exceeded or access denied", err)
				return
			}
			// Transient fetch failure: advisory, keep polling.
			c.emit(adapter.Event{Kind: adapter.KindError, Notice: "Failed to fetch chat messages", Detail: err.Error()})
			c.logger.Warn("poll failed", zap.Error(err))
		} else {
			for _, msg := range p.messages {
				c.emit(adapter.Event{Kind: adapter.KindMessage, Message: msg})
			}
			pageToken = p.nextToken
			if p.interval > 0 {
				interval = p.interval
			} else {
				interval = c.fallback
			}
		}

		select {
		case <-c.rootCtx.Done():
			return
		case <-time.After(interval):
		}
	}
}

func (c *Conn) emit(ev adapter.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.events <- ev:
	default:
	}
}

func (c *Conn) fail(notice string, err error) {
	c.teardown.Do(func() {
		c.emit(adapter.Event{Kind: adapter.KindError, Notice: notice, Detail: err.Error()})
		c.logger.Warn("connection failed", zap.Error(err))
		c.shutdown()
	})
}

// Close stops polling. Idempotent and safe before Connect completes.
func (c *Conn) Close(reason string) {
	c.teardown.Do(func() {
		c.emit(adapter.Event{Kind: adapter.KindSystem, Notice: "Disconnected from YouTube Live Chat"})
		c.logger.Info("closing", zap.String("reason", reason))
		c.shutdown()
	})
}

func (c *Conn) shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.rootCancel != nil {
		c.rootCancel()
	}
	c.connected = false
	c.closed = true
	close(c.events)
}
