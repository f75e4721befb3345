package user

import (
	"errors"
	"unicode"
)

var (
	ErrPasswordTooShort = errors.New("user: password too short")
	ErrPasswordTooWeak  = errors.New("user: password needs at least one letter and one digit")
)

// ValidatePassword enforces the account password policy: a minimum length
// plus at least one letter and one digit.
func ValidatePassword(password string, minLength int) error {
	if minLength <= 0 {
		minLength = 8
	}
	if len(password) < minLength {
		return ErrPasswordTooShort
	}
	var hasLetter, hasDigit bool
	for _, r := range password {
		switch {
		case unicode.IsLetter(r):
			hasLetter = true
		case unicode.IsDigit(r):
			hasDigit = true
		}
	}
	if !hasLetter || !hasDigit {
		return ErrPasswordTooWeak
	}
	return nil
}
