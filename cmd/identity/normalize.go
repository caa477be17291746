package identity

import "strings"

// NormalizeEmail performs case-insensitive canonicalization.
// Emails are stored and looked up only in this form.
func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// NormalizeName trims and collapses internal whitespace in a display name.
func NormalizeName(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// ValidEmail is a shape check only: one '@' with a non-empty local part
// and a dotted domain. Deliverability is not our concern.
func ValidEmail(norm string) bool {
	if len(norm) > 254 || strings.ContainsAny(norm, " \t\r\n") {
		return false
	}
	at := strings.IndexByte(norm, '@')
	if at <= 0 || at != strings.LastIndexByte(norm, '@') {
		return false
	}
	domain := norm[at+1:]
	dot := strings.LastIndexByte(domain, '.')
	return dot > 0 && dot < len(domain)-1
}
