package logger

import "strings"

// RedactEmail masks an email address for safe logging.
// "jane.doe@example.com" -> "ja***@example.com". Local parts of two
// characters or fewer are fully masked, and anything that does not look
// like an address collapses to "***@***".
func RedactEmail(email string) string {
	at := strings.LastIndex(email, "@")
	if at <= 0 || at == len(email)-1 {
		return "***@***"
	}
	local, dom := email[:at], email[at+1:]
	if len(local) <= 2 {
		return "***@" + dom
	}
	return local[:2] + "***@" + dom
}
