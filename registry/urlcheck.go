package registry

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// reservedNets holds private/reserved ranges that net.IP's built-in
// predicates do not cover. Parsed once at package initialization.
var reservedNets []*net.IPNet

func init() {
	for _, cidr := range []string{
		"100.64.0.0/10", // Carrier-grade NAT
		"fc00::/7",      // IPv6 unique local
		"fe80::/10",     // IPv6 link-local
	} {
		_, network, err := net.ParseCIDR(cidr)
		if err != nil {
			panic("invalid reserved CIDR " + cidr + ": " + err.Error())
		}
		reservedNets = append(reservedNets, network)
	}
}

// ValidateURL validates a registry URL for security (SSRF prevention).
// It requires HTTPS and blocks localhost, private IPs, and local domains.
func ValidateURL(rawURL string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}

	// Require HTTPS
	if parsed.Scheme != "https" {
		return fmt.Errorf("only HTTPS URLs are allowed")
	}

	// Get host without port
	host := strings.ToLower(parsed.Hostname())

	// Block localhost variants
	if host == "localhost" || host == "127.0.0.1" || host == "::1" {
		return fmt.Errorf("localhost URLs are not allowed")
	}

	// Block local domains
	if strings.HasSuffix(host, ".local") || strings.HasSuffix(host, ".internal") {
		return fmt.Errorf("local domain URLs are not allowed")
	}

	// Try to parse as IP and check for private ranges
	if ip := net.ParseIP(host); ip != nil {
		if IsPrivateIP(ip) {
			return fmt.Errorf("private IP addresses are not allowed")
		}
	}

	return nil
}

// IsPrivateIP checks if an IP is in private/reserved ranges.
// It handles IPv4, IPv6, and IPv6-mapped IPv4 addresses.
func IsPrivateIP(ip net.IP) bool {
	if ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() {
		return true
	}

	// Re-check IPv6-mapped IPv4 addresses (::ffff:x.x.x.x) in IPv4 form
	if v4 := ip.To4(); v4 != nil {
		ip = v4
		if ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() {
			return true
		}
	}

	for _, network := range reservedNets {
		if network.Contains(ip) {
			return true
		}
	}

	return false
}
