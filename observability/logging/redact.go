package logging

import (
	"log/slog"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// RedactedValue is the canonical placeholder used for sensitive fields in logs.
const RedactedValue = "[REDACTED]"

var redactionAllowlist = map[string]struct{}{
	"service":     {},
	"env":         {},
	"message":     {},
	"severity":    {},
	"timestamp":   {},
	"error":       {},
	"verb":        {},
	"maturity":    {},
	"requirement": {},
	"tx":          {},
}

// IsAllowlisted reports whether key may be logged without redaction.
func IsAllowlisted(key string) bool {
	_, ok := redactionAllowlist[strings.ToLower(strings.TrimSpace(key))]
	return ok
}

// MaskField returns an attribute that redacts value unless key is allowlisted.
func MaskField(key, value string) slog.Attr {
	if strings.TrimSpace(value) == "" || IsAllowlisted(key) {
		return slog.String(key, value)
	}
	return slog.String(key, RedactedValue)
}

// MaskAddress keeps the first and last four hex digits of an account.
func MaskAddress(addr *common.Address) string {
	if addr == nil || *addr == (common.Address{}) {
		return ""
	}
	hex := addr.Hex()
	return hex[:6] + "…" + hex[len(hex)-4:]
}

// Account returns a masked "account" attribute.
func Account(addr *common.Address) slog.Attr {
	return slog.String("account", MaskAddress(addr))
}
