// Package util provides utility functions for the SnapList application.
package util

import (
	"math/rand/v2"
	"strings"
)

// GenerateRandomID generates a random ID with the specified prefix and hex length.
// The returned ID will be in the format: "{prefix}{hex_string}".
func GenerateRandomID(prefix string, hexLength int) string {
	return prefix + GenerateRandomHex(hexLength)
}

// GenerateRandomHex generates a random hexadecimal string of the specified
// length. Uses math/rand/v2; these IDs are identifiers, not secrets.
func GenerateRandomHex(length int) string {
	if length <= 0 {
		return ""
	}

	const hexChars = "0123456789abcdef"
	var builder strings.Builder
	builder.Grow(length)

	for i := 0; i < length; i++ {
		builder.WriteByte(hexChars[rand.IntN(16)])
	}

	return builder.String()
}

// GenerateUserID generates a unique user ID with "u_" prefix.
func GenerateUserID() string {
	return GenerateRandomID("u_", 32)
}

// GenerateDraftID generates a unique draft ID with "d_" prefix.
func GenerateDraftID() string {
	return GenerateRandomID("d_", 32)
}

// GenerateMessageID generates a unique message ID with "m_" prefix.
func GenerateMessageID() string {
	return GenerateRandomID("m_", 32)
}

// GeneratePhotoID generates a unique photo ID with "ph_" prefix.
func GeneratePhotoID() string {
	return GenerateRandomID("ph_", 32)
}

// GenerateResearchID generates a unique research run ID with "rr_" prefix.
func GenerateResearchID() string {
	return GenerateRandomID("rr_", 32)
}
