package room

import "time"

// ChatKind distinguishes chat history entries (§3).
type ChatKind string

const (
	ChatMessage   ChatKind = "chat"
	ChatJoined    ChatKind = "userJoined"
	ChatLeft      ChatKind = "userLeft"
	ChatSystem    ChatKind = "system"
)

// ChatEntry is one bounded-history chat record.
type ChatEntry struct {
	RoomID    string    `json:"roomId"`
	Username  string    `json:"username"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
	Kind      ChatKind  `json:"kind"`
}

// maxChatHistory is the bound named in §3.
const maxChatHistory = 100

// appendChat appends a chat entry, dropping the oldest once the bound is
// exceeded. Caller must hold r.mu.
func (r *Room) appendChat(e ChatEntry) {
	r.chatHistory = append(r.chatHistory, e)
	if len(r.chatHistory) > maxChatHistory {
		r.chatHistory = r.chatHistory[len(r.chatHistory)-maxChatHistory:]
	}
}
