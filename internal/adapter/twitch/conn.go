// Package twitch connects to Twitch chat over the IRC-over-websocket
// gateway using the anonymous justinfan login. No credentials are
// needed; usernames are taken at face value from PRIVMSG lines.
package twitch

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"

	"github.com/kapu/stream-chess-vote-go/internal/adapter"
	"github.com/kapu/stream-chess-vote-go/internal/obslog"
)

const (
	gatewayURL     = "wss://irc-ws.chat.twitch.tv:443"
	connectTimeout = 10 * time.Second
	eventBuffer    = 256
)

var ErrAlreadyConnected = errors.New("twitch: already connected")

// Conn is one anonymous connection to a Twitch channel's chat.
type Conn struct {
	channel string
	wsURL   string
	timeout time.Duration
	logger  *zap.Logger

	mu        sync.Mutex
	ws        *websocket.Conn
	connected bool
	closed    bool

	events   chan adapter.Event
	teardown sync.Once

	rootCtx    context.Context
	rootCancel context.CancelFunc
}

type Option func(*Conn)

// WithGatewayURL overrides the IRC gateway, used by tests.
func WithGatewayURL(u string) Option {
	return func(c *Conn) { c.wsURL = u }
}

// WithConnectTimeout overrides the 10s connect self-abort.
func WithConnectTimeout(d time.Duration) Option {
	return func(c *Conn) { c.timeout = d }
}

func New(channel string, opts ...Option) *Conn {
	c := &Conn{
		channel: strings.TrimPrefix(strings.TrimSpace(channel), "#"),
		wsURL:   gatewayURL,
		timeout: connectTimeout,
		logger:  obslog.L().Named("twitch"),
		events:  make(chan adapter.Event, eventBuffer),
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

// Connect dials the gateway, performs the anonymous login handshake and
// starts the read loop. A dial that produces no open connection within
// the connect timeout aborts with exactly one error event.
func (c *Conn) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return errors.New("twitch: connection closed")
	}
	if c.connected {
		c.mu.Unlock()
		return ErrAlreadyConnected
	}
	c.rootCtx, c.rootCancel = context.WithCancel(context.Background())
	c.mu.Unlock()

	dialCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	ws, _, err := websocket.Dial(dialCtx, c.wsURL, &websocket.DialOptions{
		CompressionMode: websocket.CompressionNoContextTakeover,
	})
	if err != nil {
		err = fmt.Errorf("twitch connect: %w", err)
		c.fail("Twitch IRC error", err)
		return err
	}
	// Chat volume on a busy channel exceeds the library default.
	ws.SetReadLimit(1 << 20)

	c.mu.Lock()
	if c.closed {
		// Close raced the dial; the new transport must not outlive it.
		c.mu.Unlock()
		_ = ws.Close(websocket.StatusNormalClosure, "close")
		return errors.New("twitch: connection closed")
	}
	c.ws = ws
	c.connected = true
	c.mu.Unlock()

	username := fmt.Sprintf("justinfan%d", rand.Intn(100000))
	for _, cmd := range []string{
		"PASS SCHMOOPIIE",
		"NICK " + username,
		"JOIN #" + c.channel,
	} {
		if err := c.write(cmd); err != nil {
			err = fmt.Errorf("twitch handshake: %w", err)
			c.fail("Twitch IRC error", err)
			return err
		}
	}
	c.emit(adapter.Event{Kind: adapter.KindSystem, Notice: fmt.Sprintf("Joined #%s as %s", c.channel, username)})
	c.logger.Info("joined channel", zap.String("channel", c.channel), zap.String("nick", username))

	go c.readLoop(ws)
	return nil
}

func (c *Conn) readLoop(ws *websocket.Conn) {
	for {
		_, data, err := ws.Read(c.rootCtx)
		if err != nil {
			c.fail("Disconnected from Twitch IRC", err)
			return
		}
		for _, line := range strings.Split(string(data), "\r\n") {
			c.handleLine(line)
		}
	}
}

func (c *Conn) handleLine(line string) {
	if line == "" {
		return
	}
	// The gateway drops connections that miss the pong deadline, so
	// answer before anything else.
	if strings.HasPrefix(line, "PING") {
		if err := c.write("PONG :tmi.twitch.tv"); err != nil {
			c.logger.Warn("pong failed", zap.Error(err))
		}
		return
	}
	if !strings.Contains(line, "PRIVMSG") {
		return
	}
	user, text, ok := parsePrivMsg(line, c.channel)
	if !ok {
		c.logger.Debug("dropped malformed line", zap.String("line", line))
		return
	}
	c.emit(adapter.Event{Kind: adapter.KindMessage, Message: adapter.ChatEvent{User: user, Text: text}})
}

// parsePrivMsg extracts user and text from a raw IRC line of the form
// ":nick!nick@nick.tmi.twitch.tv PRIVMSG #channel :message".
func parsePrivMsg(line, channel string) (user, text string, ok bool) {
	bang := strings.Index(line, "!")
	if bang < 0 {
		return "", "", false
	}
	prefix := line[:bang]
	if i := strings.LastIndex(prefix, ":"); i >= 0 {
		user = prefix[i+1:]
	}
	marker := "PRIVMSG #" + channel + " :"
	if i := strings.Index(line, marker); i >= 0 {
		text = line[i+len(marker):]
	}
	if user == "" || text == "" {
		return "", "", false
	}
	return user, text, true
}

func (c *Conn) write(cmd string) error {
	c.mu.Lock()
	ws := c.ws
	c.mu.Unlock()
	if ws == nil {
		return errors.New("twitch: no transport")
	}
	ctx, cancel := context.WithTimeout(c.rootCtx, 5*time.Second)
	defer cancel()
	return ws.Write(ctx, websocket.MessageText, []byte(cmd))
}

func (c *Conn) emit(ev adapter.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	// Fire-and-forget: a stalled consumer drops events, never blocks
	// the read loop.
	select {
	case c.events <- ev:
	default:
	}
}

// fail reports one terminal notice and tears the connection down. Safe
// under simultaneous error and close races; only the first caller wins.
func (c *Conn) fail(notice string, err error) {
	c.teardown.Do(func() {
		switch {
		case err == nil, errors.Is(err, context.Canceled):
			c.emit(adapter.Event{Kind: adapter.KindSystem, Notice: notice})
		case websocket.CloseStatus(err) == websocket.StatusNormalClosure,
			websocket.CloseStatus(err) == websocket.StatusGoingAway:
			// Remote hung up cleanly; advisory, not an error.
			c.emit(adapter.Event{Kind: adapter.KindSystem, Notice: notice})
		default:
			c.emit(adapter.Event{Kind: adapter.KindError, Notice: notice, Detail: err.Error()})
			c.logger.Warn("connection failed", zap.Error(err))
		}
		c.shutdown()
	})
}

// Close tears the connection down. Idempotent; callable before Connect
// completes and never delivers a second disconnect notification.
func (c *Conn) Close(reason string) {
	c.teardown.Do(func() {
		c.emit(adapter.Event{Kind: adapter.KindSystem, Notice: "Disconnected from Twitch IRC"})
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
	if c.ws != nil {
		_ = c.ws.Close(websocket.StatusNormalClosure, "close")
		c.ws = nil
	}
	c.connected = false
	c.closed = true
	close(c.events)
}
