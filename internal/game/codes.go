package game

import (
	"regexp"
	"strings"
)

const (
	roomCodeLength = 6
	roomCodeChars  = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

var (
	roomCodePattern   = regexp.MustCompile(`^[A-Z0-9]{6}$`)
	playerNamePattern = regexp.MustCompile(`^[A-Za-z0-9 _-]{1,15}$`)
)

// ValidRoomCode reports whether code is exactly 6 characters of A-Z0-9.
func ValidRoomCode(code string) bool {
	return roomCodePattern.MatchString(code)
}

// NormalizeName trims a submitted player name. Validation happens separately
// so the caller can report the trimmed value back.
func NormalizeName(name string) string {
	return strings.TrimSpace(name)
}

// ValidPlayerName reports whether a trimmed name is 1-15 characters of
// letters, digits, spaces, hyphens or underscores.
func ValidPlayerName(name string) bool {
	return playerNamePattern.MatchString(name)
}
