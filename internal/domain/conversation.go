package domain

import "time"

// Conversation groups an ordered, append-only sequence of turns. It is
// created implicitly when its first turn is appended and is never mutated,
// only extended.
type Conversation struct {
	ConversationID string    `json:"conversation_id"`
	CreatedAt      time.Time `json:"created_at"`
}

// Turn is a single utterance in a conversation. Turns produced while the
// resolver asks the user for missing slots carry TurnRoleClarification so the
// clarification round count can be reconstructed from the persisted history.
type Turn struct {
	TurnID         string    `json:"turn_id"`
	ConversationID string    `json:"conversation_id"`
	RunID          string    `json:"run_id,omitempty"`
	Role           TurnRole  `json:"role"`
	Text           string    `json:"text"`
	CreatedAt      time.Time `json:"created_at"`
}
