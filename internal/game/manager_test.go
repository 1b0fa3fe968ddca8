package game

import (
	"context"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/kapu/stream-chess-vote-go/internal/config"
	"github.com/kapu/stream-chess-vote-go/internal/rules"
	"github.com/kapu/stream-chess-vote-go/pkg/gamedto"
)

func testSettings() config.Settings {
	s := config.DefaultSettings()
	s.SecondsPerMove = 60
	return s
}

func newTestManager(t *testing.T, s config.Settings, opts ...Option) *Manager {
	t.Helper()
	m, err := New(s, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(m.Close)
	return m
}

func TestSubmitChatCountsActiveSideOnly(t *testing.T) {
	m := newTestManager(t, testSettings())

	if san, ok := m.SubmitChat(rules.SideWhite, "alice", "e4"); !ok || san != "e4" {
		t.Fatalf("white vote = (%q, %v), want (e4, true)", san, ok)
	}
	if _, ok := m.SubmitChat(rules.SideBlack, "bob", "e5"); ok {
		t.Error("vote for side not on turn was counted")
	}
	if _, ok := m.SubmitChat(rules.SideWhite, "carol", "Ke2"); ok {
		t.Error("illegal move was counted")
	}

	st := m.Snapshot()
	if len(st.White.Candidates) != 1 || st.White.Candidates[0].Move != "e4" {
		t.Errorf("white candidates = %+v", st.White.Candidates)
	}
	if len(st.Black.Candidates) != 0 {
		t.Errorf("black candidates = %+v", st.Black.Candidates)
	}
}

func TestSubmitChatRejectsIllegalCoordinates(t *testing.T) {
	m := newTestManager(t, testSettings())

	// Coordinate text for squares the side on turn cannot move between
	// must never become a candidate.
	for _, raw := range []string{"e7e5", "a1a8", "e2d3"} {
		if san, ok := m.SubmitChat(rules.SideWhite, "mallory", raw); ok {
			t.Fatalf("SubmitChat(%q) admitted candidate %q", raw, san)
		}
	}
	if got := m.Snapshot().White.Candidates; len(got) != 0 {
		t.Fatalf("candidates = %+v, want none", got)
	}

	if finished := m.resolveTurn(0); finished {
		t.Fatal("resolveTurn reported finished")
	}
	if err := m.Err(); err != nil {
		t.Fatalf("fatal error after resolve: %v", err)
	}
	if got := m.Snapshot().MovesSAN; len(got) != 1 {
		t.Fatalf("moves = %v, want one applied move", got)
	}
}

func TestResolveAppliesMostVotedAndClears(t *testing.T) {
	m := newTestManager(t, testSettings())

	m.SubmitChat(rules.SideWhite, "u1", "e4")
	m.SubmitChat(rules.SideWhite, "u2", "e4")
	m.SubmitChat(rules.SideWhite, "u3", "d4")

	if finished := m.resolveTurn(0); finished {
		t.Fatal("resolveTurn reported finished on move one")
	}

	st := m.Snapshot()
	if got := st.MovesSAN; len(got) != 1 || got[0] != "e4" {
		t.Fatalf("moves = %v, want [e4]", got)
	}
	if st.Turn != "black" {
		t.Errorf("turn = %q, want black", st.Turn)
	}
	if len(st.White.Candidates) != 0 || len(st.Black.Candidates) != 0 {
		t.Errorf("ledgers not cleared: white=%v black=%v", st.White.Candidates, st.Black.Candidates)
	}
}

func TestResolveWithoutVotesPicksLegalMove(t *testing.T) {
	m := newTestManager(t, testSettings(), WithRand(rand.New(rand.NewSource(7))))

	if finished := m.resolveTurn(0); finished {
		t.Fatal("resolveTurn reported finished")
	}
	st := m.Snapshot()
	if len(st.MovesSAN) != 1 {
		t.Fatalf("moves = %v, want one fallback move", st.MovesSAN)
	}
	if m.Err() != nil {
		t.Fatalf("fatal error after fallback: %v", m.Err())
	}
}

func TestBanKeepsSpentQuota(t *testing.T) {
	s := testSettings()
	s.VoteRestriction = config.RestrictionOnePerUser
	m := newTestManager(t, s)

	if _, ok := m.SubmitChat(rules.SideWhite, "alice", "e4"); !ok {
		t.Fatal("first vote rejected")
	}
	if err := m.Ban("e4"); err != nil {
		t.Fatalf("Ban: %v", err)
	}
	if _, ok := m.SubmitChat(rules.SideWhite, "alice", "d4"); ok {
		t.Error("banned voter's quota was refunded")
	}
	if len(m.Snapshot().White.Candidates) != 0 {
		t.Errorf("candidates after ban = %+v", m.Snapshot().White.Candidates)
	}

	if err := m.Ban("zz9"); err == nil {
		t.Error("Ban accepted an unparseable move")
	}
}

func TestFoolsMateFinishesGame(t *testing.T) {
	m := newTestManager(t, testSettings())

	plies := []struct {
		side rules.Side
		san  string
	}{
		{rules.SideWhite, "f3"},
		{rules.SideBlack, "e5"},
		{rules.SideWhite, "g4"},
		{rules.SideBlack, "Qh4#"},
	}
	for i, ply := range plies {
		if _, ok := m.SubmitChat(ply.side, "viewer", ply.san); !ok {
			t.Fatalf("ply %d (%s) rejected", i, ply.san)
		}
		finished := m.resolveTurn(0)
		if wantFinished := i == len(plies)-1; finished != wantFinished {
			t.Fatalf("ply %d finished = %v, want %v", i, finished, wantFinished)
		}
	}

	st := m.Snapshot()
	if st.Result != "black" {
		t.Errorf("result = %q, want black", st.Result)
	}
	if _, ok := m.SubmitChat(rules.SideWhite, "late", "e4"); ok {
		t.Error("vote counted after game end")
	}
}

func TestResetStartsFreshGame(t *testing.T) {
	m := newTestManager(t, testSettings())
	firstID := m.ID()

	m.SubmitChat(rules.SideWhite, "u1", "e4")
	m.resolveTurn(0)

	if err := m.Reset(nil); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	st := m.Snapshot()
	if st.GameID == firstID {
		t.Error("Reset kept the old game id")
	}
	if len(st.MovesSAN) != 0 {
		t.Errorf("moves after reset = %v", st.MovesSAN)
	}
	if !st.Paused {
		t.Error("game not paused after reset")
	}
	if st.Turn != "white" {
		t.Errorf("turn after reset = %q", st.Turn)
	}
}

func TestResolveAfterResetIsNoOp(t *testing.T) {
	m := newTestManager(t, testSettings())

	m.SubmitChat(rules.SideWhite, "u1", "e4")
	if err := m.Reset(nil); err != nil {
		t.Fatalf("Reset: %v", err)
	}

	// A window that expired before the reset must not touch the fresh
	// board when its resolve finally runs.
	if finished := m.resolveTurn(0); finished {
		t.Fatal("stale resolve reported finished")
	}
	st := m.Snapshot()
	if len(st.MovesSAN) != 0 {
		t.Fatalf("stale resolve applied %v to the new game", st.MovesSAN)
	}
	if m.Err() != nil {
		t.Fatalf("fatal error from stale resolve: %v", m.Err())
	}
}

func TestResetRejectsInvalidSettings(t *testing.T) {
	m := newTestManager(t, testSettings())
	bad := testSettings()
	bad.SecondsPerMove = 0
	if err := m.Reset(&bad); err == nil {
		t.Fatal("Reset accepted invalid settings")
	}
}

type fakeArchiver struct {
	mu        sync.Mutex
	snapshots []gamedto.GameState
	results   []gamedto.GameRecord
}

func (a *fakeArchiver) SaveSnapshot(_ context.Context, st gamedto.GameState) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.snapshots = append(a.snapshots, st)
	return nil
}

func (a *fakeArchiver) SaveResult(_ context.Context, rec gamedto.GameRecord) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.results = append(a.results, rec)
	return nil
}

func TestArchiverReceivesResult(t *testing.T) {
	arch := &fakeArchiver{}
	m := newTestManager(t, testSettings(), WithArchiver(arch))

	for _, ply := range []struct {
		side rules.Side
		san  string
	}{
		{rules.SideWhite, "f3"}, {rules.SideBlack, "e5"},
		{rules.SideWhite, "g4"}, {rules.SideBlack, "Qh4#"},
	} {
		m.SubmitChat(ply.side, "viewer", ply.san)
		m.resolveTurn(0)
	}

	arch.mu.Lock()
	defer arch.mu.Unlock()
	if len(arch.snapshots) != 4 {
		t.Errorf("snapshots = %d, want 4", len(arch.snapshots))
	}
	if len(arch.results) != 1 {
		t.Fatalf("results = %d, want 1", len(arch.results))
	}
	if arch.results[0].Result != "black" {
		t.Errorf("archived result = %q", arch.results[0].Result)
	}
	if got := arch.results[0].MovesSAN; len(got) != 4 || got[3] != "Qh4#" {
		t.Errorf("archived moves = %v", got)
	}
}

func TestSchedulerDrivesResolution(t *testing.T) {
	s := testSettings()
	s.SecondsPerMove = 1
	m := newTestManager(t, s)

	m.SubmitChat(rules.SideWhite, "u1", "e4")
	if err := m.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	deadline := time.After(3 * time.Second)
	for {
		st := m.Snapshot()
		if len(st.MovesSAN) >= 1 {
			if st.MovesSAN[0] != "e4" {
				t.Fatalf("moves = %v, want e4 first", st.MovesSAN)
			}
			return
		}
		select {
		case <-deadline:
			t.Fatal("scheduler never resolved the turn")
		case <-time.After(20 * time.Millisecond):
		}
	}
}

func TestPauseFreezesCountdown(t *testing.T) {
	s := testSettings()
	s.SecondsPerMove = 1
	m := newTestManager(t, s)

	if err := m.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	time.Sleep(200 * time.Millisecond)
	m.Pause()
	frozen := m.Snapshot().RemainingMillis
	time.Sleep(300 * time.Millisecond)
	if got := m.Snapshot().RemainingMillis; got != frozen {
		t.Errorf("remaining drifted while paused: %d -> %d", frozen, got)
	}
	if len(m.Snapshot().MovesSAN) != 0 {
		t.Error("turn resolved while paused")
	}
}
