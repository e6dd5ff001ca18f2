package chat

import (
	"regexp"
	"time"
)

var sessionIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// Session captures a transient anonymous conversation.
type Session struct {
	ID         string    `json:"id"`
	CreatedAt  time.Time `json:"createdAt"`
	LastSeenAt time.Time `json:"lastSeenAt"`
}

// ValidSessionID reports whether id is an acceptable opaque session token.
func ValidSessionID(id string) bool {
	return sessionIDPattern.MatchString(id)
}
