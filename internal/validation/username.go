package validation

import (
	"fmt"
	"regexp"
)

// UsernamePattern is the accepted username format: latin letters, digits,
// underscore, dot and dash, 3 to 32 characters.
var UsernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_.-]{3,32}$`)

// DeviceIDPattern is the accepted device identifier format.
var DeviceIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_.:-]{1,64}$`)

const (
	// MinUsernameLen is the shortest allowed username
	MinUsernameLen = 3
	// MaxUsernameLen is the longest allowed username
	MaxUsernameLen = 32
)

// ValidateUsername checks the username submitted with a token or mutation batch.
func ValidateUsername(username string) error {
	if username == "" {
		return fmt.Errorf("username cannot be empty")
	}

	if len(username) < MinUsernameLen {
		return fmt.Errorf("username must be at least %d characters long", MinUsernameLen)
	}

	if len(username) > MaxUsernameLen {
		return fmt.Errorf("username must not exceed %d characters", MaxUsernameLen)
	}

	if !UsernamePattern.MatchString(username) {
		return fmt.Errorf("username can only contain letters, numbers, '_', '.' and '-'")
	}

	return nil
}

// ValidateDeviceID checks a device identifier.
func ValidateDeviceID(deviceID string) error {
	if deviceID == "" {
		return fmt.Errorf("device id cannot be empty")
	}
	if !DeviceIDPattern.MatchString(deviceID) {
		return fmt.Errorf("device id %q has invalid format", deviceID)
	}
	return nil
}
