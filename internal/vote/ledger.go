// Package vote holds the per-turn tally of move candidates and the
// strategy that turns a tally into a single move.
package vote

import (
	"sort"
	"sync"

	"github.com/kapu/stream-chess-vote-go/internal/config"
)

// Candidate is one distinct canonical move with its accumulated count.
type Candidate struct {
	Move  string `json:"move"`
	Count int    `json:"count"`
}

type tally struct {
	count int
	seq   int // arrival order of the first vote, for stable ties
}

// Ledger tallies votes for one side of one turn. Admission history is
// kept per turn and only wiped by Clear.
type Ledger struct {
	mu         sync.Mutex
	policy     config.Restriction
	candidates map[string]*tally
	nextSeq    int

	// admission history; note Remove does not touch these, so banning
	// a move does not refund a user's quota under 1VotePerUser.
	userVoted     map[string]bool
	userMoveVoted map[string]map[string]bool
}

func NewLedger(policy config.Restriction) *Ledger {
	l := &Ledger{policy: policy}
	l.reset()
	return l
}

func (l *Ledger) reset() {
	l.candidates = make(map[string]*tally)
	l.userVoted = make(map[string]bool)
	l.userMoveVoted = make(map[string]map[string]bool)
	l.nextSeq = 0
}

// Record applies the admission policy and, if the vote is admitted,
// increments the candidate for move. Returns whether the vote counted.
func (l *Ledger) Record(user, move string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	switch l.policy {
	case config.RestrictionOnePerUser:
		if l.userVoted[user] {
			return false
		}
	case config.RestrictionUniquePerMove:
		if l.userMoveVoted[user][move] {
			return false
		}
	}

	l.userVoted[user] = true
	if l.userMoveVoted[user] == nil {
		l.userMoveVoted[user] = make(map[string]bool)
	}
	l.userMoveVoted[user][move] = true

	if c, ok := l.candidates[move]; ok {
		c.count++
		return true
	}
	l.candidates[move] = &tally{count: 1, seq: l.nextSeq}
	l.nextSeq++
	return true
}

// Remove deletes a candidate entirely (moderation ban). Admission
// history is intentionally left intact.
func (l *Ledger) Remove(move string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.candidates, move)
}

// Clear wipes candidates and admission history. Called at turn
// boundaries and on manual reset.
func (l *Ledger) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.reset()
}

// Snapshot returns candidates by descending count; equal counts keep
// the arrival order of their first vote.
func (l *Ledger) Snapshot() []Candidate {
	l.mu.Lock()
	defer l.mu.Unlock()

	type entry struct {
		Candidate
		seq int
	}
	entries := make([]entry, 0, len(l.candidates))
	for move, t := range l.candidates {
		entries = append(entries, entry{Candidate{Move: move, Count: t.count}, t.seq})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Count != entries[j].Count {
			return entries[i].Count > entries[j].Count
		}
		return entries[i].seq < entries[j].seq
	})
	out := make([]Candidate, len(entries))
	for i, e := range entries {
		out[i] = e.Candidate
	}
	return out
}
