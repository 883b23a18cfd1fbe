// Package redact strips credentials from connection strings before they are logged or printed.
package redact

import (
	"net/url"
	"regexp"
	"strings"
)

var passwordPattern = regexp.MustCompile(`(?i)password=[^\s]+`)

// URL removes the password from a connection URL, keeping the username.
func URL(raw string) string {
	if raw == "" {
		return ""
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return "[redacted]"
	}

	if parsed.User != nil {
		username := parsed.User.Username()
		if username == "" {
			parsed.User = url.User("redacted")
		} else {
			parsed.User = url.User(username)
		}
	}

	return parsed.String()
}

// Error returns err's message with every secret replaced by its redacted form
// and any password=... pair masked.
func Error(err error, secrets ...string) string {
	if err == nil {
		return ""
	}

	msg := err.Error()
	for _, secret := range secrets {
		if secret == "" {
			continue
		}
		redacted := URL(secret)
		if redacted == "" {
			redacted = "[redacted]"
		}
		msg = strings.ReplaceAll(msg, secret, redacted)
	}

	return passwordPattern.ReplaceAllString(msg, "password=redacted")
}
