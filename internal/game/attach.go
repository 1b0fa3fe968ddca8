package game

import (
	"context"

	"go.uber.org/zap"

	"github.com/kapu/stream-chess-vote-go/internal/adapter"
	"github.com/kapu/stream-chess-vote-go/internal/obslog"
	"github.com/kapu/stream-chess-vote-go/internal/rules"
)

// Attach pumps a chat connection's events into the vote pipeline for
// one side. It returns when the connection's event channel closes or
// ctx is cancelled; the connection is closed on the way out.
func (m *Manager) Attach(ctx context.Context, side rules.Side, conn adapter.Conn) {
	defer conn.Close("vote pump stopped")
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-conn.Events():
			if !ok {
				obslog.L().Info("vote_pump_disconnect",
					zap.String("game_id", m.ID()),
					zap.String("side", side.String()),
				)
				return
			}
			switch ev.Kind {
			case adapter.KindMessage:
				m.SubmitChat(side, ev.Message.User, ev.Message.Text)
			case adapter.KindError:
				obslog.L().Warn("vote_pump_source_error",
					zap.String("game_id", m.ID()),
					zap.String("side", side.String()),
					zap.String("notice", ev.Notice),
					zap.String("detail", ev.Detail),
				)
			default:
				// system notices are informational only
			}
		}
	}
}
