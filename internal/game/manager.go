// Package game ties the board, the vote ledgers, and the turn
// scheduler into one crowd-driven match. All state transitions run
// under a single mutex; the scheduler calls back into resolveTurn on
// window expiry.
package game

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kapu/stream-chess-vote-go/internal/config"
	"github.com/kapu/stream-chess-vote-go/internal/obslog"
	"github.com/kapu/stream-chess-vote-go/internal/rules"
	"github.com/kapu/stream-chess-vote-go/internal/telemetry"
	"github.com/kapu/stream-chess-vote-go/internal/turn"
	"github.com/kapu/stream-chess-vote-go/internal/vote"
	"github.com/kapu/stream-chess-vote-go/pkg/gamedto"
)

// Archiver persists live snapshots and finished games. Both methods
// are best-effort from the manager's point of view.
type Archiver interface {
	SaveSnapshot(ctx context.Context, st gamedto.GameState) error
	SaveResult(ctx context.Context, rec gamedto.GameRecord) error
}

var (
	ErrGameFinished = errors.New("game already finished")
	ErrUnknownMove  = errors.New("unknown move")
)

const archiveTimeout = 2 * time.Second

type Manager struct {
	mu        sync.Mutex
	id        string
	settings  config.Settings
	game      *rules.Game
	ledgers   map[rules.Side]*vote.Ledger
	rng       *rand.Rand
	startedAt time.Time
	fatal     error

	sched   *turn.Scheduler
	archive Archiver
}

type Option func(*Manager)

// WithArchiver attaches snapshot/result persistence.
func WithArchiver(a Archiver) Option {
	return func(m *Manager) { m.archive = a }
}

// WithRand replaces the selection RNG with a deterministic source.
func WithRand(rng *rand.Rand) Option {
	return func(m *Manager) { m.rng = rng }
}

func New(settings config.Settings, opts ...Option) (*Manager, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	m := &Manager{
		id:       uuid.NewString(),
		settings: settings,
		game:     rules.NewGame(),
		ledgers: map[rules.Side]*vote.Ledger{
			rules.SideWhite: vote.NewLedger(settings.VoteRestriction),
			rules.SideBlack: vote.NewLedger(settings.VoteRestriction),
		},
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
		startedAt: time.Now(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.sched = turn.New(m.interval(), m.resolveTurn)
	obslog.L().Info("game_create",
		zap.String("game_id", m.id),
		zap.String("move_selection", string(settings.MoveSelection)),
		zap.String("vote_restriction", string(settings.VoteRestriction)),
		zap.Int("seconds_per_move", settings.SecondsPerMove),
	)
	return m, nil
}

func (m *Manager) interval() time.Duration {
	return time.Duration(m.settings.SecondsPerMove) * time.Second
}

// ID returns the identifier of the current game.
func (m *Manager) ID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.id
}

// Err reports the fatal error that stopped the game, if any.
func (m *Manager) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fatal
}

// Start begins or resumes the turn countdown.
func (m *Manager) Start() error {
	m.mu.Lock()
	if m.fatal != nil {
		defer m.mu.Unlock()
		return m.fatal
	}
	m.mu.Unlock()
	if m.sched.State() == turn.StateFinished {
		return ErrGameFinished
	}
	m.sched.Start()
	obslog.L().Info("game_start", zap.String("game_id", m.ID()))
	return nil
}

// Pause freezes the countdown without losing the remaining time.
func (m *Manager) Pause() {
	m.sched.Pause()
	obslog.L().Info("game_pause", zap.String("game_id", m.ID()))
}

// Reset discards the current game and pauses with a fresh board.
// A non-nil settings replaces the configuration for the new game.
func (m *Manager) Reset(settings *config.Settings) error {
	m.mu.Lock()
	if settings != nil {
		if err := settings.Validate(); err != nil {
			m.mu.Unlock()
			return err
		}
		m.settings = *settings
	}
	m.id = uuid.NewString()
	m.game.Reset()
	m.ledgers[rules.SideWhite] = vote.NewLedger(m.settings.VoteRestriction)
	m.ledgers[rules.SideBlack] = vote.NewLedger(m.settings.VoteRestriction)
	m.startedAt = time.Now()
	m.fatal = nil
	interval := m.interval()
	id := m.id
	m.mu.Unlock()

	m.sched.Reset(interval)
	obslog.L().Info("game_reset", zap.String("game_id", id))
	return nil
}

// SubmitChat feeds one normalized viewer message into the vote
// pipeline. Messages for the side not on turn are dropped, as is
// anything that does not resolve to a legal move. It returns the
// canonical SAN and whether the vote counted.
func (m *Manager) SubmitChat(side rules.Side, user, text string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fatal != nil || m.game.Result() != rules.ResultOngoing {
		return "", false
	}
	if side != m.game.Turn() {
		return "", false
	}
	san, ok := rules.Resolve(m.game, text)
	if !ok {
		return "", false
	}
	counted := m.ledgers[side].Record(user, san)
	telemetry.CountVote(counted)
	if counted {
		obslog.L().Debug("vote_record",
			zap.String("game_id", m.id),
			zap.String("side", side.String()),
			zap.String("user", user),
			zap.String("move", san),
		)
	}
	return san, counted
}

// Ban removes a candidate move from the side on turn. Votes already
// spent on it stay spent under restricted policies.
func (m *Manager) Ban(move string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	san, ok := m.game.TestMove(move)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownMove, strings.TrimSpace(move))
	}
	side := m.game.Turn()
	m.ledgers[side].Remove(san)
	obslog.L().Info("vote_ban",
		zap.String("game_id", m.id),
		zap.String("side", side.String()),
		zap.String("move", san),
	)
	return nil
}

// resolveTurn runs on the scheduler goroutine when a window expires.
func (m *Manager) resolveTurn(gen int) bool {
	var finished bool
	telemetry.TimeFunc(telemetry.TurnResolveDuration, func() {
		finished = m.resolveWindow(gen)
	})
	return finished
}

func (m *Manager) resolveWindow(gen int) bool {
	m.mu.Lock()
	// A Reset that raced this window wins; touching the fresh board
	// here would apply a move the new game never voted on.
	if !m.sched.Valid(gen) {
		m.mu.Unlock()
		return false
	}
	side := m.game.Turn()
	legal := m.game.LegalMoves()
	candidates := m.ledgers[side].Snapshot()

	move, err := vote.Select(candidates, m.settings.MoveSelection, legal, m.rng)
	if err != nil {
		m.fatal = fmt.Errorf("select move for %s: %w", side, err)
		obslog.L().Error("turn_resolve_error", zap.String("game_id", m.id), zap.Error(m.fatal))
		m.mu.Unlock()
		return true
	}
	if err := m.game.Apply(move); err != nil {
		m.fatal = fmt.Errorf("apply %s for %s: %w", move, side, err)
		obslog.L().Error("turn_resolve_error", zap.String("game_id", m.id), zap.Error(m.fatal))
		m.mu.Unlock()
		return true
	}
	m.ledgers[rules.SideWhite].Clear()
	m.ledgers[rules.SideBlack].Clear()

	result := m.game.Result()
	telemetry.CountTurnResolved()
	if result != rules.ResultOngoing {
		telemetry.CountGameFinished()
	}
	obslog.L().Info("turn_resolve",
		zap.String("game_id", m.id),
		zap.String("side", side.String()),
		zap.String("move", move),
		zap.Int("votes", totalVotes(candidates)),
		zap.String("result", result.String()),
	)

	st := m.snapshotLocked()
	rec := m.recordLocked()
	m.mu.Unlock()

	if m.archive != nil {
		ctx, cancel := context.WithTimeout(context.Background(), archiveTimeout)
		defer cancel()
		if err := m.archive.SaveSnapshot(ctx, st); err != nil {
			obslog.L().Warn("archive_snapshot_error", zap.String("game_id", st.GameID), zap.Error(err))
		}
		if result != rules.ResultOngoing {
			if err := m.archive.SaveResult(ctx, rec); err != nil {
				obslog.L().Error("archive_result_error", zap.String("game_id", rec.GameID), zap.Error(err))
			}
		}
	}
	return result != rules.ResultOngoing
}

func totalVotes(candidates []vote.Candidate) int {
	n := 0
	for _, c := range candidates {
		n += c.Count
	}
	return n
}

// Snapshot returns the externally visible game state.
func (m *Manager) Snapshot() gamedto.GameState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

func (m *Manager) snapshotLocked() gamedto.GameState {
	return gamedto.GameState{
		GameID:          m.id,
		FEN:             m.game.FEN(),
		Turn:            m.game.Turn().String(),
		Result:          m.game.Result().String(),
		Phase:           m.sched.State().String(),
		Paused:          m.sched.Paused(),
		RemainingMillis: m.sched.Remaining().Milliseconds(),
		MovesSAN:        m.game.MovesSAN(),
		MovesUCI:        m.game.MovesUCI(),
		White:           m.sideStateLocked(rules.SideWhite, m.settings.White),
		Black:           m.sideStateLocked(rules.SideBlack, m.settings.Black),
		UpdatedAt:       time.Now().UTC(),
	}
}

func (m *Manager) sideStateLocked(side rules.Side, ss config.SideSettings) gamedto.SideState {
	snap := m.ledgers[side].Snapshot()
	out := gamedto.SideState{
		Platform:      string(ss.Platform),
		ChannelID:     ss.Channel,
		MoveSelection: string(m.settings.MoveSelection),
		Candidates:    make([]gamedto.Candidate, 0, len(snap)),
	}
	for _, c := range snap {
		out.Candidates = append(out.Candidates, gamedto.Candidate{Move: c.Move, Count: c.Count})
	}
	return out
}

func (m *Manager) recordLocked() gamedto.GameRecord {
	return gamedto.GameRecord{
		GameID:    m.id,
		Result:    m.game.Result().String(),
		MovesSAN:  m.game.MovesSAN(),
		MovesUCI:  m.game.MovesUCI(),
		FinalFEN:  m.game.FEN(),
		StartedAt: m.startedAt,
		EndedAt:   time.Now().UTC(),
	}
}

// FEN returns the current position.
func (m *Manager) FEN() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.game.FEN()
}

// Settings returns the active configuration.
func (m *Manager) Settings() config.Settings {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.settings
}

// Close releases the scheduler goroutine.
func (m *Manager) Close() {
	m.sched.Close()
}
