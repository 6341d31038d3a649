package vigil

import (
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/mssola/useragent"
)

// DeviceIDHeader is the request header carrying the optional client-supplied
// device identifier.
const DeviceIDHeader = "X-Device-Id"

// ExtractFingerprint derives a device fingerprint from an HTTP request.
// Extraction is total: absent or malformed metadata degrades to "Unknown"
// classifications and an "unknown" IP, never an error.
func ExtractFingerprint(r *http.Request) DeviceFingerprint {
	forwarded := r.Header.Get("X-Forwarded-For")
	if forwarded == "" {
		forwarded = r.Header.Get("X-Real-IP")
	}
	return FingerprintFromParts(r.RemoteAddr, forwarded, r.UserAgent(), r.Header.Get(DeviceIDHeader))
}

// FingerprintFromParts derives a device fingerprint from raw connection
// metadata, for callers outside an http.Handler.
func FingerprintFromParts(remoteAddr, forwardedFor, rawUA, deviceID string) DeviceFingerprint {
	parsed := useragent.New(rawUA)
	browser, _ := parsed.Browser()

	return DeviceFingerprint{
		IP:         extractIP(remoteAddr, forwardedFor),
		UserAgent:  rawUA,
		DeviceID:   strings.TrimSpace(deviceID),
		DeviceType: classifyDeviceType(parsed, rawUA),
		Browser:    orUnknown(browser),
		OS:         orUnknown(parsed.OSInfo().Name),
		ObservedAt: time.Now(),
	}
}

// extractIP prefers the left-most address of a forwarded-for chain, then the
// direct socket address, then the literal "unknown".
func extractIP(remoteAddr, forwardedFor string) string {
	if forwardedFor != "" {
		ip := strings.TrimSpace(strings.Split(forwardedFor, ",")[0])
		if isValidIP(ip) {
			return ip
		}
	}

	host, _, err := net.SplitHostPort(remoteAddr)
	if err == nil && host != "" {
		return host
	}

	// RemoteAddr might not have a port
	if isValidIP(remoteAddr) {
		return remoteAddr
	}

	return "unknown"
}

// isValidIP checks if the string is a valid IP address.
func isValidIP(ip string) bool {
	return net.ParseIP(ip) != nil
}

// classifyDeviceType buckets the user agent into the coarse device classes.
// Tablet substrings are checked before the mobile flag since tablet agents
// usually carry "Mobile" as well.
func classifyDeviceType(parsed *useragent.UserAgent, rawUA string) string {
	if strings.TrimSpace(rawUA) == "" {
		return DeviceUnknown
	}
	if isTablet(rawUA) {
		return DeviceTablet
	}
	if parsed.Mobile() {
		return DeviceMobile
	}
	return DeviceDesktop
}

// isTablet checks if the user agent indicates a tablet device.
func isTablet(ua string) bool {
	ua = strings.ToLower(ua)
	tabletKeywords := []string{"ipad", "tablet", "playbook", "silk"}
	for _, keyword := range tabletKeywords {
		if strings.Contains(ua, keyword) {
			return true
		}
	}
	return false
}

func orUnknown(s string) string {
	if strings.TrimSpace(s) == "" {
		return "Unknown"
	}
	return s
}

// IsPrivateIP returns true if the IP is in a private/reserved range.
func IsPrivateIP(ip string) bool {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return false
	}

	if parsed.IsLoopback() {
		return true
	}

	privateRanges := []string{
		"10.0.0.0/8",
		"172.16.0.0/12",
		"192.168.0.0/16",
		"fc00::/7", // IPv6 unique local
	}

	for _, cidr := range privateRanges {
		_, network, err := net.ParseCIDR(cidr)
		if err != nil {
			continue
		}
		if network.Contains(parsed) {
			return true
		}
	}

	return false
}
