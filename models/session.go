package models

import (
	"time"
)

const (
	SESSION_END   = "<SESSION_END>"
	END_OF_SPEECH = "<END_OF_SPEECH>"
)

// MessageSource records how a user message entered the chat.
type MessageSource string

const (
	SourceTyped  MessageSource = "typed"
	SourceSigned MessageSource = "signed"
	SourceVoice  MessageSource = "voice"
	SourceBot    MessageSource = "bot"
)

type ChatMessage struct {
	ID        string        `json:"id"`
	SessionID string        `json:"session_id"`
	Role      string        `json:"role"` // "user" or "assistant"
	Source    MessageSource `json:"source"`
	Text      string        `json:"text"`
	Fallback  bool          `json:"fallback,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}

// TranscriptMemory is a past user input recalled for reply generation.
type TranscriptMemory struct {
	ID        string
	SessionID string
	Text      string
	Source    MessageSource
	Timestamp time.Time
}
