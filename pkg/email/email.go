package email

import (
	"strings"
)

// split separates an address at its last '@'. Both halves must be non-empty.
func split(addr string) (local, domain string, ok bool) {
	addr = strings.TrimSpace(addr)
	at := strings.LastIndexByte(addr, '@')
	if at <= 0 || at == len(addr)-1 {
		return "", "", false
	}
	return addr[:at], addr[at+1:], true
}

// LocalPart returns the part of addr before the '@'.
func LocalPart(addr string) (string, bool) {
	local, _, ok := split(addr)
	return local, ok
}

// Domain returns the lower-cased part of addr after the '@'.
func Domain(addr string) (string, bool) {
	_, domain, ok := split(addr)
	if !ok {
		return "", false
	}
	return strings.ToLower(domain), true
}

// RewriteDomain replaces the domain of addr with to when it equals from
// (case-insensitively). It reports false when addr is not an address in from.
//
// Example:
//
//	RewriteDomain("j.doe@partner.example.com", "partner.example.com", "example.com")
//	// Returns: "j.doe@example.com", true
func RewriteDomain(addr, from, to string) (string, bool) {
	local, domain, ok := split(addr)
	if !ok || !strings.EqualFold(domain, strings.TrimSpace(from)) {
		return "", false
	}
	return local + "@" + strings.TrimSpace(to), true
}
