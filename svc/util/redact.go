package util

import (
	"crypto/sha256"
	"encoding/hex"
	"net"
	"net/url"
	"regexp"
)

var secretPattern = regexp.MustCompile(`(?i)(password|token|secret|key)=([^\s&@]+)`)

// RedactIP zeroes the host part of an address: last octet for IPv4, all but
// the /32 prefix for IPv6. Anything unparseable is replaced by a short hash.
func RedactIP(ip string) string {
	host, _, err := net.SplitHostPort(ip)
	if err == nil {
		ip = host
	}
	parsed := net.ParseIP(ip)
	if parsed == nil {
		hash := sha256.Sum256([]byte(ip))
		return "hash:" + hex.EncodeToString(hash[:8])
	}
	if ipv4 := parsed.To4(); ipv4 != nil {
		ipv4[3] = 0
		return ipv4.String()
	}
	ipv6 := parsed.To16()
	for i := 4; i < 16; i++ {
		ipv6[i] = 0
	}
	return ipv6.String()
}

// RedactURL strips credentials from connection strings before logging.
func RedactURL(s string) string {
	if u, err := url.Parse(s); err == nil && u.User != nil {
		u.User = nil
		return u.String()
	}
	return secretPattern.ReplaceAllString(s, "$1=[REDACTED]")
}
