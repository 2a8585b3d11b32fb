package domain

import (
	"strings"

	"github.com/google/uuid"
)

// Room is a named, code-addressed chat session container.
// At most one Room exists per code at any time.
type Room struct {
	ID   uuid.UUID
	Name string
	Code string
}

// NormalizeCode converts a human-entered room code to its canonical form.
// Lookups and storage only ever see the canonical form.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
