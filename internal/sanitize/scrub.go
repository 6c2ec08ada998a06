package sanitize

import (
	"regexp"
	"strings"
)

// Caps applied to outward-facing strings.
const (
	MaxErrorLength    = 500
	MaxLogDataLength  = 1000
	MaxQueryLength    = 500
	MaxUserInputChars = 10000
)

// sensitivePatterns redact secret-shaped substrings from any string that
// leaves the process: error messages, log exports, event payloads.
var sensitivePatterns = []*regexp.Regexp{
	regexp.MustCompile(`sk-[A-Za-z0-9\-_]{8,}`),              // API keys
	regexp.MustCompile(`(?i)bearer\s+[A-Za-z0-9\-._~+/]+=*`), // Authorization headers
	regexp.MustCompile(`(?i)(?:api[_-]?key|token|secret)["':\s=]+[A-Za-z0-9\-._~+/]{16,}`),
	regexp.MustCompile(`(?i)password["':\s=]+\S+`),
	regexp.MustCompile(`/(?:home|root|usr|var|etc|opt|tmp)/[^\s"']+`), // filesystem paths
}

// ScrubSecrets replaces secret-shaped substrings with a redaction marker.
func ScrubSecrets(s string) string {
	for _, re := range sensitivePatterns {
		s = re.ReplaceAllString(s, "[redacted]")
	}
	return s
}

// Error prepares an error message for clients: secrets scrubbed, length
// bounded. A nil error yields the empty string.
func Error(err error) string {
	if err == nil {
		return ""
	}
	return Truncate(ScrubSecrets(err.Error()), MaxErrorLength)
}

// LogData bounds and scrubs arbitrary text destined for log export.
func LogData(s string) string {
	return Truncate(ScrubSecrets(s), MaxLogDataLength)
}

// Truncate cuts s to at most n runes.
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

var (
	controlRe    = regexp.MustCompile(`[\x00-\x08\x0b\x0c\x0e-\x1f\x7f]`)
	markerRe     = regexp.MustCompile(`===\s*([A-ZÄÖÜ][A-ZÄÖÜ \d:]*?)\s*===`)
	queryAllowRe = regexp.MustCompile(`[^\p{L}\p{N}\s\-_.,:()?!+*/@#&%]`)
	spaceRunRe   = regexp.MustCompile(`\s+`)
)

// UserInput bounds free-text user input and escapes the === MARKER ===
// convention the prompt parsers rely on, so user text can never terminate or
// forge a structured block inside a prompt.
func UserInput(s string) string {
	s = Truncate(s, MaxUserInputChars)
	s = controlRe.ReplaceAllString(s, "")
	s = markerRe.ReplaceAllString(s, "[=== $1 ===]")
	return strings.TrimSpace(s)
}

// Query cleans a search query: quotes stripped, charset reduced to plain
// text, whitespace collapsed, length bounded.
func Query(q string) string {
	q = strings.ReplaceAll(q, `"`, "")
	q = strings.ReplaceAll(q, "'", "")
	q = queryAllowRe.ReplaceAllString(q, " ")
	q = spaceRunRe.ReplaceAllString(q, " ")
	return Truncate(strings.TrimSpace(q), MaxQueryLength)
}
