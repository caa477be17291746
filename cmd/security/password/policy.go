package password

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// commonPasswords are rejected verbatim (case-insensitive) when
// Policy.RejectVeryWeak is set.
var commonPasswords = map[string]struct{}{
	"password": {}, "password1": {}, "password123": {},
	"123456": {}, "12345678": {}, "123456789": {}, "11111111": {},
	"qwerty": {}, "qwerty123": {}, "abc123": {},
	"admin": {}, "letmein": {}, "welcome": {}, "monkey": {},
	"dragon": {}, "master": {}, "hello": {}, "superman": {},
}

// Validate checks pw against the configured policy. Lengths count runes.
func (c Config) Validate(pw string) error {
	return c.Policy.check(pw)
}

func (p Policy) check(pw string) error {
	switch n := utf8.RuneCountInString(pw); {
	case n < p.MinLength:
		return ErrPasswordTooShort
	case n > p.MaxLength:
		return ErrPasswordTooLong
	}
	if p.RejectVeryWeak && veryWeak(pw) {
		return ErrWeakPassword
	}
	return nil
}

// veryWeak flags a handful of trivially guessable shapes. It is not an
// entropy estimator.
func veryWeak(pw string) bool {
	s := strings.ToLower(strings.TrimSpace(pw))
	if s == "" {
		return true
	}
	if _, ok := commonPasswords[s]; ok {
		return true
	}
	if r, _ := utf8.DecodeRuneInString(s); strings.Trim(s, string(r)) == "" {
		return true
	}
	// PIN-like: digits only and shorter than a passphrase.
	return utf8.RuneCountInString(s) < 12 && strings.IndexFunc(s, func(r rune) bool {
		return !unicode.IsDigit(r)
	}) < 0
}
