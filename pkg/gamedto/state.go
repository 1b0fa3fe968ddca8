package gamedto

import "time"

// SideState is the voting picture for one colour.
type SideState struct {
	Platform      string      `json:"platform"`
	ChannelID     string      `json:"channelId"`
	MoveSelection string      `json:"moveSelection"`
	Candidates    []Candidate `json:"candidates"`
}

// Candidate pairs a canonical SAN move with its vote count.
type Candidate struct {
	Move  string `json:"move"`
	Count int    `json:"count"`
}

// GameState is the full snapshot served by the state endpoint and the
// state event stream.
type GameState struct {
	GameID          string    `json:"gameId"`
	FEN             string    `json:"fen"`
	Turn            string    `json:"turn"`
	Result          string    `json:"result"`
	Phase           string    `json:"phase"`
	Paused          bool      `json:"paused"`
	RemainingMillis int64     `json:"remainingMillis"`
	MovesSAN        []string  `json:"movesSan"`
	MovesUCI        []string  `json:"movesUci"`
	White           SideState `json:"white"`
	Black           SideState `json:"black"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// GameRecord is a finished game as persisted by the archive.
type GameRecord struct {
	GameID    string    `json:"gameId"`
	Result    string    `json:"result"`
	MovesSAN  []string  `json:"movesSan"`
	MovesUCI  []string  `json:"movesUci"`
	FinalFEN  string    `json:"finalFen"`
	StartedAt time.Time `json:"startedAt"`
	EndedAt   time.Time `json:"endedAt"`
}
