package helpers

// SafeTruncate safely truncates a string to at most maxLen bytes without
// panicking; a multi-byte character at the cut is split. Used to shorten
// the hex hash that the audit log records in place of an identifier.
func SafeTruncate(s string, maxLen int) string {
	if maxLen < 0 {
		return ""
	}
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen]
}
