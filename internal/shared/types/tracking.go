package types

import (
	"crypto/rand"
	"fmt"
	"strings"
)

// TrackingCodePrefix starts every citizen-facing tracking code.
const TrackingCodePrefix = "CMP-"

const (
	trackingAlphabet = "23456789ABCDEFGHJKLMNPQRSTUVWXYZ"
	trackingLength   = 8
)

// TrackingCode is the public, login-free identifier of a complaint.
type TrackingCode string

// NewTrackingCode generates a random tracking code such as CMP-7K4QZ2HD.
// The alphabet leaves out 0/O and 1/I so codes survive being read aloud.
func NewTrackingCode() (TrackingCode, error) {
	buf := make([]byte, trackingLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate tracking code: %w", err)
	}
	var sb strings.Builder
	sb.WriteString(TrackingCodePrefix)
	for _, b := range buf {
		sb.WriteByte(trackingAlphabet[int(b)%len(trackingAlphabet)])
	}
	return TrackingCode(sb.String()), nil
}

// ParseTrackingCode normalizes user input (case, surrounding space, missing
// prefix) and rejects anything that could not have been generated.
func ParseTrackingCode(s string) (TrackingCode, error) {
	code := strings.ToUpper(strings.TrimSpace(s))
	code = strings.TrimPrefix(code, TrackingCodePrefix)
	if len(code) != trackingLength {
		return "", fmt.Errorf("invalid tracking code: %q", s)
	}
	for _, r := range code {
		if !strings.ContainsRune(trackingAlphabet, r) {
			return "", fmt.Errorf("invalid tracking code: %q", s)
		}
	}
	return TrackingCode(TrackingCodePrefix + code), nil
}

// String returns the string representation
func (c TrackingCode) String() string {
	return string(c)
}
