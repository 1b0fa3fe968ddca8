package vote

import (
	"errors"
	"math/rand"

	"github.com/kapu/stream-chess-vote-go/internal/config"
)

// ErrNoMoves means neither candidates nor legal moves were available.
// The turn loop treats this as fatal for the game instance.
var ErrNoMoves = errors.New("no candidates and no legal moves")

// Select maps a tally to exactly one move. Candidates must be in
// snapshot order (descending count, first-recorded ties first). With no
// candidates a uniformly random legal move guarantees progress.
func Select(candidates []Candidate, strategy config.Strategy, legalMoves []string, rng *rand.Rand) (string, error) {
	if len(candidates) == 0 {
		if len(legalMoves) == 0 {
			return "", ErrNoMoves
		}
		return legalMoves[rng.Intn(len(legalMoves))], nil
	}

	switch strategy {
	case config.StrategyWeightedRandom:
		total := 0
		for _, c := range candidates {
			total += c.Count
		}
		n := rng.Intn(total)
		for _, c := range candidates {
			n -= c.Count
			if n < 0 {
				return c.Move, nil
			}
		}
		return candidates[len(candidates)-1].Move, nil
	case config.StrategyRandom:
		return candidates[rng.Intn(len(candidates))].Move, nil
	default:
		// mostVotes: snapshot order already breaks ties by first vote.
		return candidates[0].Move, nil
	}
}
