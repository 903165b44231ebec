package visitors

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net"
	"strings"
)

const maxClientVisitorIDLength = 128

// BuildVisitorID returns the stable key that groups one visitor's events.
// A client supplied id wins; otherwise the key is a salted hash of IP and
// User-Agent, stable across days so returning visitors can be told apart.
func BuildVisitorID(clientID, ipAddress, userAgent, salt string) string {
	if id := strings.TrimSpace(clientID); id != "" {
		if len(id) > maxClientVisitorIDLength {
			id = id[:maxClientVisitorIDLength]
		}
		return id
	}

	data := fmt.Sprintf("%s.%s.%s", salt, ipAddress, userAgent)
	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}

// AnonymizeIP masks the host part of an address: the last octet for IPv4,
// the last 80 bits for IPv6. Anything unparseable is returned unchanged.
func AnonymizeIP(ip string) string {
	parsed := net.ParseIP(strings.TrimSpace(ip))
	if parsed == nil {
		return ip
	}
	if v4 := parsed.To4(); v4 != nil {
		return v4.Mask(net.CIDRMask(24, 32)).String()
	}
	return parsed.Mask(net.CIDRMask(48, 128)).String()
}
