package middleware

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/askatlas/navigation-assistant/internal/model"
)

// Limits applied to request bodies.
const (
	MaxMessageLength   = 4000
	MinAddressLength   = 5
	MaxAddressLength   = 256
	MaxHistoryEntries  = 1000
	MaxHistoryFieldLen = 256
)

// ValidateMessageContent validates message content. Blank input is left to
// the session, which owns that rule.
func ValidateMessageContent(content string) error {
	if len(content) > MaxMessageLength {
		return errors.New("content exceeds maximum length")
	}
	if !utf8.ValidString(content) {
		return errors.New("content must be valid UTF-8")
	}
	return nil
}

// ValidateSessionID validates a session ID.
func ValidateSessionID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return errors.New("invalid session ID format")
	}
	return nil
}

// ValidateAddress accepts an empty address or one of reasonable length.
func ValidateAddress(field, address string) error {
	address = strings.TrimSpace(address)
	if address == "" {
		return nil
	}
	if utf8.RuneCountInString(address) < MinAddressLength {
		return fmt.Errorf("%s must be at least %d characters", field, MinAddressLength)
	}
	if utf8.RuneCountInString(address) > MaxAddressLength {
		return fmt.Errorf("%s exceeds maximum length", field)
	}
	return nil
}

// ValidateSettings validates both addresses.
func ValidateSettings(s model.AccountSettings) error {
	if err := ValidateAddress("home_address", s.HomeAddress); err != nil {
		return err
	}
	return ValidateAddress("work_address", s.WorkAddress)
}

// ValidateHistory bounds a history request. Field presence is checked by the
// flow's input schema.
func ValidateHistory(history []model.NavigationHistoryEntry) error {
	if len(history) > MaxHistoryEntries {
		return fmt.Errorf("history exceeds %d entries", MaxHistoryEntries)
	}
	for i, entry := range history {
		if len(entry.Timestamp) > MaxHistoryFieldLen || len(entry.Location) > MaxHistoryFieldLen {
			return fmt.Errorf("history entry %d exceeds maximum length", i)
		}
	}
	return nil
}
