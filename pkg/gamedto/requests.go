package gamedto

// ResetRequest optionally overrides per-side settings for the next
// game. Empty fields keep the current configuration.
type ResetRequest struct {
	SecondsPerMove int    `json:"secondsPerMove,omitempty"`
	White          *Seat  `json:"white,omitempty"`
	Black          *Seat  `json:"black,omitempty"`
	MoveSelection  string `json:"moveSelection,omitempty"`
	VoteLimits     string `json:"voteRestriction,omitempty"`
}

// Seat binds one colour to a chat audience.
type Seat struct {
	Platform  string `json:"platform"`
	ChannelID string `json:"channelId"`
}

// BanRequest removes a candidate move and blocks its voters' quota
// from being refunded.
type BanRequest struct {
	Move string `json:"move"`
}

// ErrorResponse is the JSON error body for non-stream endpoints.
type ErrorResponse struct {
	Error string `json:"error"`
}
