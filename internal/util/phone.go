package util

import (
	"errors"
	"strings"
)

var ErrInvalidNumber = errors.New("number must contain only digits after the + sign")

// NormalizeNumber turns user input into +<digits> form: whitespace is
// stripped and a leading + is added when missing. It fails when anything
// but digits remains after the +.
func NormalizeNumber(raw string) (string, error) {
	s := strings.Join(strings.Fields(raw), "")
	if s == "" {
		return "", ErrInvalidNumber
	}
	if !strings.HasPrefix(s, "+") {
		s = "+" + s
	}

	digits := s[1:]
	if digits == "" {
		return "", ErrInvalidNumber
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return "", ErrInvalidNumber
		}
	}

	return s, nil
}

// NumberDigits strips the leading + from a normalized number. Broker send
// topics are keyed by the bare digits.
func NumberDigits(number string) string {
	return strings.TrimPrefix(number, "+")
}
