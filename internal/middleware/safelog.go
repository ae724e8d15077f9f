package middleware

import "strings"

// MaskToken shortens a bearer or refresh token for logs.
func MaskToken(s string) string {
	s = strings.TrimSpace(s)
	if len(s) <= 8 {
		return "****"
	}
	return s[:6] + "***"
}
