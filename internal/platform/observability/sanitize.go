package observability

import (
	"strings"
	"unicode"
)

// Length caps for untrusted request fields before they reach a log line.
// Routes are chi patterns under /api/v1, methods are standard verbs and user
// IDs are ULID-sized subjects, so the caps stay tight.
const (
	maxRouteLen  = 120
	maxMethodLen = 8
	maxUserIDLen = 40
)

// stripControl drops control runes so a crafted header or path cannot inject
// line breaks into the log stream, then truncates to limit runes.
func stripControl(value string, limit int) string {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, value)

	if limit > 0 {
		runes := []rune(cleaned)
		if len(runes) > limit {
			cleaned = string(runes[:limit])
		}
	}
	return cleaned
}

// SanitizeRoute normalizes a matched route pattern for logging.
func SanitizeRoute(route string) string {
	route = stripControl(route, maxRouteLen)
	if route == "" {
		return "/"
	}
	return route
}

// SanitizeMethod normalizes an HTTP method for logging.
func SanitizeMethod(method string) string {
	return stripControl(method, maxMethodLen)
}

// SanitizeUserID caps user identifiers before they appear in a log line.
func SanitizeUserID(uid string) string {
	return stripControl(uid, maxUserIDLen)
}
