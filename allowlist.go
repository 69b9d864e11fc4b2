package adminauth

import (
	"net/mail"
	"strings"
)

// MaxEmailLength is the longest address accepted anywhere in the flow.
const MaxEmailLength = 254

// AllowList is the immutable set of admin addresses allowed to sign in.
// An empty AllowList authorizes no one.
type AllowList struct {
	emails map[string]struct{}
}

// NewAllowList normalizes emails and drops blanks and duplicates.
func NewAllowList(emails []string) *AllowList {
	set := make(map[string]struct{}, len(emails))
	for _, raw := range emails {
		email := NormalizeEmail(raw)
		if email == "" {
			continue
		}
		set[email] = struct{}{}
	}
	return &AllowList{emails: set}
}

// Contains reports whether email, after normalization, is in the list.
func (a *AllowList) Contains(email string) bool {
	if a == nil || len(a.emails) == 0 {
		return false
	}
	_, ok := a.emails[NormalizeEmail(email)]
	return ok
}

// Len returns the number of distinct addresses.
func (a *AllowList) Len() int {
	if a == nil {
		return 0
	}
	return len(a.emails)
}

// NormalizeEmail trims surrounding whitespace and lower-cases the address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidEmailSyntax reports whether email is a bare RFC 5322 address
// ("a@b.c", not "Name <a@b.c>").
func ValidEmailSyntax(email string) bool {
	email = strings.TrimSpace(email)
	if email == "" || len(email) > MaxEmailLength {
		return false
	}
	addr, err := mail.ParseAddress(email)
	if err != nil {
		return false
	}
	return addr.Address == email && strings.Contains(addr.Address, "@")
}
