package rules

import "testing"

func TestResolveLenientNotation(t *testing.T) {
	g := NewGame()

	san, ok := Resolve(g, "e4")
	if !ok {
		t.Fatalf("Resolve(e4) rejected")
	}
	uci, ok := Resolve(g, "e2e4")
	if !ok {
		t.Fatalf("Resolve(e2e4) rejected")
	}
	if san != uci {
		t.Fatalf("canonical mismatch: SAN route %q vs UCI route %q", san, uci)
	}
	if san != "e4" {
		t.Fatalf("canonical form = %q, want e4", san)
	}
}

func TestResolveRejectsGarbage(t *testing.T) {
	g := NewGame()
	for _, raw := range []string{"", "   ", "hello chat", "e9", "Ke2", "e7e5", "a1a8", "e2d3", "e1g1"} {
		if got, ok := Resolve(g, raw); ok {
			t.Fatalf("Resolve(%q) accepted as %q", raw, got)
		}
	}
}

func TestTestMoveDoesNotMutate(t *testing.T) {
	g := NewGame()
	before := g.FEN()
	if _, ok := g.TestMove("e4"); !ok {
		t.Fatalf("TestMove(e4) rejected")
	}
	if g.FEN() != before {
		t.Fatalf("TestMove mutated position: %s -> %s", before, g.FEN())
	}
}

func TestApplyAndTurnFlip(t *testing.T) {
	g := NewGame()
	if g.Turn() != SideWhite {
		t.Fatalf("initial turn = %v", g.Turn())
	}
	if err := g.Apply("e4"); err != nil {
		t.Fatalf("Apply(e4): %v", err)
	}
	if g.Turn() != SideBlack {
		t.Fatalf("turn after e4 = %v", g.Turn())
	}
	if err := g.Apply("e5"); err != nil {
		t.Fatalf("Apply(e5): %v", err)
	}
	if got := g.MovesSAN(); len(got) != 2 || got[0] != "e4" || got[1] != "e5" {
		t.Fatalf("MovesSAN = %v", got)
	}
	if got := g.MovesUCI(); len(got) != 2 || got[0] != "e2e4" || got[1] != "e7e5" {
		t.Fatalf("MovesUCI = %v", got)
	}
}

func TestApplyIllegal(t *testing.T) {
	g := NewGame()
	if err := g.Apply("Ke2"); err == nil {
		t.Fatalf("expected illegal move error")
	}
}

func TestLegalMovesStartingPosition(t *testing.T) {
	g := NewGame()
	moves := g.LegalMoves()
	if len(moves) != 20 {
		t.Fatalf("legal moves in start position = %d, want 20", len(moves))
	}
	seen := map[string]bool{}
	for _, m := range moves {
		if seen[m] {
			t.Fatalf("duplicate legal move %q", m)
		}
		seen[m] = true
	}
	for _, want := range []string{"e4", "d4", "Nf3"} {
		if !seen[want] {
			t.Fatalf("missing %q in %v", want, moves)
		}
	}
}

func TestScholarsMateResult(t *testing.T) {
	g := NewGame()
	for _, san := range []string{"e4", "e5", "Bc4", "Nc6", "Qh5", "Nf6", "Qxf7#"} {
		if err := g.Apply(san); err != nil {
			t.Fatalf("Apply(%s): %v", san, err)
		}
	}
	if g.Result() != ResultWhiteWins {
		t.Fatalf("result = %v, want white wins", g.Result())
	}
	if err := g.Apply("a6"); err == nil {
		t.Fatalf("expected error applying move after mate")
	}
}

func TestReset(t *testing.T) {
	g := NewGame()
	if err := g.Apply("e4"); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	g.Reset()
	if g.Turn() != SideWhite || len(g.MovesSAN()) != 0 {
		t.Fatalf("reset did not restore initial state")
	}
}
