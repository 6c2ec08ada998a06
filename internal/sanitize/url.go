package sanitize

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
)

// MaxURLLength rejects absurdly long URLs before any parsing work.
const MaxURLLength = 2048

// privateHostnames are hostnames that always resolve to the local machine.
var privateHostnames = map[string]struct{}{
	"localhost":            {},
	"localhost.localdomain": {},
	"127.0.0.1":            {},
	"0.0.0.0":              {},
	"::1":                  {},
	"[::1]":                {},
}

// internalTLDs mark hostnames that only make sense on internal networks.
var internalTLDs = []string{".local", ".internal", ".lan", ".localhost"}

// blockedPorts are service ports the engine must never connect to, even on
// public hosts: the URLs it loads come from LLM output and search results.
var blockedPorts = map[int]struct{}{
	22: {}, 23: {}, 25: {}, 3306: {}, 5432: {}, 6379: {}, 11211: {}, 27017: {},
}

// ValidateURL reports whether a URL is safe to scrape. The engine feeds
// attacker-influenced URLs into a real browser, so everything that could
// reach internal services is rejected: non-HTTP schemes, local and internal
// hostnames, sensitive ports, and IP literals in private, loopback,
// link-local, reserved, or multicast ranges. allowPrivate bypasses the host
// checks for development against local fixtures; scheme and length checks
// still apply.
func ValidateURL(raw string, allowPrivate bool) error {
	if raw == "" {
		return fmt.Errorf("empty url")
	}
	if len(raw) > MaxURLLength {
		return fmt.Errorf("url exceeds %d chars", MaxURLLength)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("unparseable url")
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return fmt.Errorf("unsupported scheme %q", scheme)
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return fmt.Errorf("missing host")
	}
	if allowPrivate {
		return nil
	}
	if _, ok := privateHostnames[host]; ok {
		return fmt.Errorf("private hostname %q", host)
	}
	for _, tld := range internalTLDs {
		if strings.HasSuffix(host, tld) {
			return fmt.Errorf("internal tld on %q", host)
		}
	}
	if p := u.Port(); p != "" {
		n, err := strconv.Atoi(p)
		if err != nil {
			return fmt.Errorf("bad port %q", p)
		}
		if _, ok := blockedPorts[n]; ok {
			return fmt.Errorf("blocked port %d", n)
		}
	}
	if ip := net.ParseIP(host); ip != nil {
		if err := checkIP(ip); err != nil {
			return err
		}
	}
	return nil
}

func checkIP(ip net.IP) error {
	switch {
	case ip.IsLoopback():
		return fmt.Errorf("loopback address")
	case ip.IsPrivate():
		return fmt.Errorf("private address")
	case ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast():
		return fmt.Errorf("link-local address")
	case ip.IsMulticast():
		return fmt.Errorf("multicast address")
	case ip.IsUnspecified():
		return fmt.Errorf("unspecified address")
	}
	// 240.0.0.0/4 is reserved and not covered by the stdlib predicates.
	if v4 := ip.To4(); v4 != nil && v4[0] >= 240 {
		return fmt.Errorf("reserved address")
	}
	return nil
}

// FilterURLs drops unsafe URLs and duplicates, preserving first-seen order.
// A warning records how many were rejected; rejected URLs are never fetched.
func FilterURLs(urls []string, allowPrivate bool) []string {
	out := make([]string, 0, len(urls))
	seen := make(map[string]struct{}, len(urls))
	blocked := 0
	for _, raw := range urls {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		if _, dup := seen[raw]; dup {
			continue
		}
		if err := ValidateURL(raw, allowPrivate); err != nil {
			blocked++
			log.Warn().Str("url", Truncate(raw, 120)).Err(err).Msg("unsafe url rejected")
			continue
		}
		seen[raw] = struct{}{}
		out = append(out, raw)
	}
	if blocked > 0 {
		log.Warn().Int("blocked", blocked).Int("kept", len(out)).Msg("url batch filtered")
	}
	return out
}
