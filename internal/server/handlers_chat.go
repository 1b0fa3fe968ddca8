package server

import (
	"net/http"

	"github.com/kapu/stream-chess-vote-go/internal/adapter"
	"github.com/kapu/stream-chess-vote-go/internal/stream"
	"github.com/kapu/stream-chess-vote-go/internal/telemetry"
	"github.com/kapu/stream-chess-vote-go/pkg/gamedto"
)

func (s *Server) handleTwitchChat(w http.ResponseWriter, r *http.Request) {
	channel := r.URL.Query().Get("channel_id")
	if channel == "" {
		writeError(w, http.StatusBadRequest, "channel_id query parameter is required")
		return
	}
	s.streamChat(w, r, "twitch", s.newTwitch(channel))
}

func (s *Server) handleYouTubeChat(w http.ResponseWriter, r *http.Request) {
	if s.cfg.YouTubeAPIKey == "" {
		writeError(w, http.StatusInternalServerError, "YouTube API key is not configured")
		return
	}
	channel := r.URL.Query().Get("channel_id")
	if channel == "" {
		writeError(w, http.StatusBadRequest, "channel_id query parameter is required")
		return
	}
	s.streamChat(w, r, "youtube", s.newYouTube(channel))
}

// streamChat relays one chat connection to one SSE client. The stream
// ends when the source disconnects, errors out, or the client goes
// away; each path terminates the publisher exactly once.
func (s *Server) streamChat(w http.ResponseWriter, r *http.Request, platform string, conn adapter.Conn) {
	pub, err := stream.New(w, stream.WithKeepAliveInterval(s.keepAlive))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	telemetry.StreamClientConnected(platform, 1)
	defer telemetry.StreamClientConnected(platform, -1)

	// connection failures surface on the event channel
	_ = conn.Connect(r.Context())
	pub.StartKeepAlive()

	for {
		select {
		case <-r.Context().Done():
			conn.Close("client disconnected")
			pub.Close()
			return
		case ev, ok := <-conn.Events():
			if !ok {
				pub.Close()
				return
			}
			switch ev.Kind {
			case adapter.KindMessage:
				telemetry.CountChatMessage(platform)
				_ = pub.Send("message", gamedto.ChatMessage{User: ev.Message.User, Text: ev.Message.Text})
			case adapter.KindSystem:
				_ = pub.Send("system", gamedto.SystemNotice{Message: ev.Notice})
			case adapter.KindError:
				telemetry.CountChatError(platform)
				pub.Fail(ev.Notice, ev.Detail)
				conn.Close("source error")
				return
			}
		}
	}
}
