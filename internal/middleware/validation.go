package middleware

import (
	"errors"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	maxQuestionLength = 4000
	maxThreadIDLength = 128
	maxTenantIDLength = 64
)

// ValidateQuestionText validates the text of a question.
func ValidateQuestionText(text string) error {
	if strings.TrimSpace(text) == "" {
		return errors.New("question cannot be empty")
	}
	if !utf8.ValidString(text) {
		return errors.New("question must be valid UTF-8")
	}
	if utf8.RuneCountInString(text) > maxQuestionLength {
		return errors.New("question exceeds maximum length")
	}
	return nil
}

// ValidateThreadID validates a thread ID.
func ValidateThreadID(id string) error {
	if id == "" {
		return errors.New("thread ID cannot be empty")
	}
	if len(id) > maxThreadIDLength {
		return errors.New("thread ID exceeds maximum length")
	}
	for _, r := range id {
		if unicode.IsSpace(r) || unicode.IsControl(r) {
			return errors.New("invalid thread ID format")
		}
	}
	return nil
}

// ValidateTenantID validates a tenant ID.
func ValidateTenantID(id string) error {
	if len(id) == 0 {
		return errors.New("tenant ID cannot be empty")
	}
	if len(id) > maxTenantIDLength {
		return errors.New("tenant ID exceeds maximum length")
	}
	return nil
}
