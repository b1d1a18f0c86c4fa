// Package validator checks and normalizes user queries before they reach the
// model.
package validator

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

var ErrInvalidInput = errors.New("invalid input")

// spaceRegexp is compiled once at package init and reused across all Sanitize calls.
var spaceRegexp = regexp.MustCompile(`\s+`)

const (
	DefaultMinLength = 2
	DefaultMaxLength = 4000
)

type InputValidator struct {
	maxLength int
	minLength int
}

// NewInputValidator creates a validator. Non-positive limits take the defaults.
func NewInputValidator(minLength, maxLength int) *InputValidator {
	if minLength <= 0 {
		minLength = DefaultMinLength
	}
	if maxLength <= 0 {
		maxLength = DefaultMaxLength
	}
	return &InputValidator{
		maxLength: maxLength,
		minLength: minLength,
	}
}

// Validate checks a query after sanitizing. Lengths count runes.
func (v *InputValidator) Validate(query string) error {
	if !utf8.ValidString(query) {
		return fmt.Errorf("%w: invalid UTF-8 encoding", ErrInvalidInput)
	}

	query = v.Sanitize(query)
	if query == "" {
		return fmt.Errorf("%w: query is empty", ErrInvalidInput)
	}

	n := utf8.RuneCountInString(query)
	if n < v.minLength {
		return fmt.Errorf("%w: query too short: minimum %d characters", ErrInvalidInput, v.minLength)
	}
	if n > v.maxLength {
		return fmt.Errorf("%w: query too long: maximum %d characters", ErrInvalidInput, v.maxLength)
	}

	return nil
}

// Sanitize drops control characters and collapses whitespace runs.
func (v *InputValidator) Sanitize(query string) string {
	query = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) && !unicode.IsSpace(r) {
			return -1
		}
		return r
	}, query)
	query = strings.TrimSpace(query)
	query = spaceRegexp.ReplaceAllString(query, " ")
	return query
}
