package models

import (
	"errors"
	"time"
)

// ErrTranscriptNotFound is returned by archives asked for an ID they never stored.
var ErrTranscriptNotFound = errors.New("transcript not found")

// Transcript is an archived conversation, written when the user starts over or switches mode.
type Transcript struct {
	ID         string
	Mode       string
	Messages   []Message
	ArchivedAt time.Time
}

// HasUserTurn reports whether any message in msgs was typed by the user. Conversations holding only
// the greeting are not worth archiving.
func HasUserTurn(msgs []Message) bool {
	for _, m := range msgs {
		if m.Role == RoleUser {
			return true
		}
	}
	return false
}
