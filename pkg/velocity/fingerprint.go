package velocity

import "strings"

// Fingerprint normalizes a User-Agent header into a coarse bucket:
// "tg_webapp", "bot", or "<browser>_<major>" where recognized, else "unk".
// An empty UA fingerprints to "" (the caller treats that as "no
// fingerprint" rather than a mismatch).
func Fingerprint(ua string) string {
	if ua == "" {
		return ""
	}
	lower := strings.ToLower(ua)

	if strings.Contains(lower, "telegram") {
		return "tg_webapp"
	}
	if strings.Contains(lower, "bot") {
		return "bot"
	}

	if major, ok := majorAfterAny(lower, "edg/", "edge/"); ok {
		return "edge_" + major
	}
	if major, ok := majorAfterAny(lower, "chrome/", "crios/", "chromium/"); ok {
		return "ch_" + major
	}
	if major, ok := majorAfterAny(lower, "firefox/", "fxios/"); ok {
		return "ff_" + major
	}
	if strings.Contains(lower, "safari") {
		if major, ok := majorAfterAny(lower, "version/"); ok {
			return "sf_" + major
		}
	}
	return "unk"
}

// majorAfterAny scans lower for the first occurrence of any marker and
// parses the major version number that follows it, skipping the delimiter
// set [a-z._/ ] between the marker and the digits. Returns ok=false if no
// marker is found or no digits follow.
func majorAfterAny(lower string, markers ...string) (string, bool) {
	bestIdx := -1
	var bestMarker string
	for _, m := range markers {
		if idx := strings.Index(lower, m); idx >= 0 {
			if bestIdx == -1 || idx < bestIdx {
				bestIdx = idx
				bestMarker = m
			}
		}
	}
	if bestIdx == -1 {
		return "", false
	}

	rest := lower[bestIdx+len(bestMarker):]
	i := 0
	for i < len(rest) && isDelim(rest[i]) {
		i++
	}
	start := i
	for i < len(rest) && rest[i] >= '0' && rest[i] <= '9' {
		i++
	}
	if i == start {
		return "", false
	}
	return rest[start:i], true
}

func isDelim(c byte) bool {
	return (c >= 'a' && c <= 'z') || c == '.' || c == '_' || c == '/' || c == ' '
}
