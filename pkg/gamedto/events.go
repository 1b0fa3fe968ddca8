package gamedto

// Payloads carried in the data field of chat stream events.

// ChatMessage is a normalized viewer message.
type ChatMessage struct {
	User string `json:"user"`
	Text string `json:"text"`
}

// SystemNotice is a lifecycle announcement such as a join or a clean
// disconnect.
type SystemNotice struct {
	Message string `json:"message"`
}

// StreamError is the terminal error frame of a chat stream.
type StreamError struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}
