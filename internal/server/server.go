// Package server exposes the HTTP API: the chat event streams, game
// control endpoints, health, and metrics.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kapu/stream-chess-vote-go/internal/adapter"
	"github.com/kapu/stream-chess-vote-go/internal/adapter/twitch"
	"github.com/kapu/stream-chess-vote-go/internal/adapter/youtube"
	"github.com/kapu/stream-chess-vote-go/internal/archive"
	"github.com/kapu/stream-chess-vote-go/internal/config"
	"github.com/kapu/stream-chess-vote-go/internal/eval"
	"github.com/kapu/stream-chess-vote-go/internal/game"
	"github.com/kapu/stream-chess-vote-go/internal/obslog"
	"github.com/kapu/stream-chess-vote-go/internal/rules"
	"github.com/kapu/stream-chess-vote-go/pkg/gamedto"
)

type connFactory func(channel string) adapter.Conn

type Server struct {
	cfg  *config.AppConfig
	mgr  *game.Manager
	eval *eval.Client
	arc  *archive.Archive

	newTwitch  connFactory
	newYouTube connFactory

	keepAlive time.Duration

	pumpMu     sync.Mutex
	rootCtx    context.Context
	pumpCancel context.CancelFunc
}

type Option func(*Server)

// WithEvalClient enables the position evaluation endpoint.
func WithEvalClient(c *eval.Client) Option {
	return func(s *Server) { s.eval = c }
}

// WithArchive enables the game history endpoint.
func WithArchive(a *archive.Archive) Option {
	return func(s *Server) { s.arc = a }
}

// WithKeepAliveInterval overrides the SSE keep-alive cadence.
func WithKeepAliveInterval(d time.Duration) Option {
	return func(s *Server) { s.keepAlive = d }
}

// WithTwitchFactory replaces the Twitch connection constructor; tests
// use this.
func WithTwitchFactory(f func(channel string) adapter.Conn) Option {
	return func(s *Server) { s.newTwitch = f }
}

// WithYouTubeFactory replaces the YouTube connection constructor;
// tests use this.
func WithYouTubeFactory(f func(channel string) adapter.Conn) Option {
	return func(s *Server) { s.newYouTube = f }
}

func New(cfg *config.AppConfig, mgr *game.Manager, opts ...Option) *Server {
	s := &Server{
		cfg:       cfg,
		mgr:       mgr,
		keepAlive: 15 * time.Second,
	}
	s.newTwitch = func(channel string) adapter.Conn { return twitch.New(channel) }
	s.newYouTube = func(channel string) adapter.Conn { return youtube.New(channel, cfg.YouTubeAPIKey) }
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", s.handleHealthz)

	mux.HandleFunc("/api/twitch/chat", s.handleTwitchChat)
	mux.HandleFunc("/api/youtube/chat", s.handleYouTubeChat)

	mux.HandleFunc("/api/game/state", s.handleGameState)
	mux.HandleFunc("/api/game/start", s.handleGameStart)
	mux.HandleFunc("/api/game/pause", s.handleGamePause)
	mux.HandleFunc("/api/game/reset", s.handleGameReset)
	mux.HandleFunc("/api/game/ban", s.handleGameBan)
	mux.HandleFunc("/api/game/evaluation", s.handleGameEvaluation)
	mux.HandleFunc("/api/game/history", s.handleGameHistory)

	return mux
}

// StartVotePumps connects the configured chat sources and feeds their
// messages into the vote pipeline. Safe to call once at boot; Reset
// restarts the pumps through restartPumps.
func (s *Server) StartVotePumps(ctx context.Context) {
	s.pumpMu.Lock()
	s.rootCtx = ctx
	s.pumpMu.Unlock()
	s.restartPumps()
}

func (s *Server) restartPumps() {
	s.pumpMu.Lock()
	defer s.pumpMu.Unlock()
	if s.rootCtx == nil {
		return
	}
	if s.pumpCancel != nil {
		s.pumpCancel()
	}
	ctx, cancel := context.WithCancel(s.rootCtx)
	s.pumpCancel = cancel

	settings := s.mgr.Settings()
	for side, ss := range map[rules.Side]config.SideSettings{
		rules.SideWhite: settings.White,
		rules.SideBlack: settings.Black,
	} {
		conn := s.buildConn(ss)
		if conn == nil {
			continue
		}
		go func(side rules.Side, conn adapter.Conn, ss config.SideSettings) {
			if err := conn.Connect(ctx); err != nil {
				obslog.L().Warn("vote_pump_connect_error",
					zap.String("side", side.String()),
					zap.String("platform", string(ss.Platform)),
					zap.String("channel", ss.Channel),
					zap.Error(err),
				)
			}
			// the event channel carries the failure; Attach drains it
			s.mgr.Attach(ctx, side, conn)
		}(side, conn, ss)
	}
}

func (s *Server) buildConn(ss config.SideSettings) adapter.Conn {
	switch ss.Platform {
	case config.PlatformTwitch:
		return s.newTwitch(ss.Channel)
	case config.PlatformYouTube:
		if s.cfg.YouTubeAPIKey == "" {
			obslog.L().Warn("vote_pump_youtube_disabled", zap.String("channel", ss.Channel))
			return nil
		}
		return s.newYouTube(ss.Channel)
	default:
		return nil
	}
}

// StopVotePumps cancels the running pumps.
func (s *Server) StopVotePumps() {
	s.pumpMu.Lock()
	defer s.pumpMu.Unlock()
	if s.pumpCancel != nil {
		s.pumpCancel()
		s.pumpCancel = nil
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		obslog.L().Warn("response_encode_error", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, gamedto.ErrorResponse{Error: msg})
}
