package account

import (
	"net/mail"
	"net/netip"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	MaxNameLength     = 32
	MaxEmailLength    = 254
	MinPasswordLength = 6
	MaxPasswordLength = 50
)

// ValidateEmail accepts a bare RFC 5322 address without a display name.
func ValidateEmail(email string) error {
	if email == "" {
		return validationErrorf("email", "must not be empty")
	}
	if len(email) > MaxEmailLength {
		return validationErrorf("email", "exceeds maximum length of %d", MaxEmailLength)
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || addr.Name != "" {
		return validationErrorf("email", "is not a valid address")
	}
	return nil
}

// ValidateName requires 1..MaxNameLength printable characters.
func ValidateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return validationErrorf("name", "must not be empty")
	}
	if !utf8.ValidString(name) {
		return validationErrorf("name", "contains invalid UTF-8")
	}
	if n := utf8.RuneCountInString(name); n > MaxNameLength {
		return validationErrorf("name", "exceeds maximum length of %d", MaxNameLength)
	}
	for _, r := range name {
		if unicode.IsControl(r) {
			return validationErrorf("name", "contains control character")
		}
	}
	return nil
}

// ValidatePassword requires an upper-case letter, a lower-case letter and a
// digit, with a total length of MinPasswordLength..MaxPasswordLength.
func ValidatePassword(password string) error {
	n := utf8.RuneCountInString(password)
	if n < MinPasswordLength || n > MaxPasswordLength {
		return validationErrorf("password", "must be %d to %d characters", MinPasswordLength, MaxPasswordLength)
	}
	var upper, lower, digit bool
	for _, r := range password {
		switch {
		case r >= 'A' && r <= 'Z':
			upper = true
		case r >= 'a' && r <= 'z':
			lower = true
		case r >= '0' && r <= '9':
			digit = true
		}
	}
	if !upper || !lower || !digit {
		return validationErrorf("password", "must contain upper-case, lower-case and numeric characters")
	}
	return nil
}

// ValidateIPv4 accepts a dotted-quad IPv4 address.
func ValidateIPv4(ip string) error {
	addr, err := netip.ParseAddr(ip)
	if err != nil || !addr.Is4() {
		return validationErrorf("ip", "must be an IPv4 address")
	}
	return nil
}
