package vigil

import (
	"net/http/httptest"
	"testing"
)

const (
	uaChromeWindows = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	uaEdgeWindows   = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36 Edg/120.0.0.0"
	uaSafariMac     = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Safari/605.1.15"
	uaFirefoxLinux  = "Mozilla/5.0 (X11; Linux x86_64; rv:121.0) Gecko/20100101 Firefox/121.0"
	uaSafariIPhone  = "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Mobile/15E148 Safari/604.1"
	uaSafariIPad    = "Mozilla/5.0 (iPad; CPU OS 17_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Mobile/15E148 Safari/604.1"
	uaChromeAndroid = "Mozilla/5.0 (Linux; Android 14; Pixel 8) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Mobile Safari/537.36"
)

func TestFingerprintClassification(t *testing.T) {
	tests := []struct {
		name       string
		ua         string
		browser    string
		deviceType string
	}{
		{"chrome windows desktop", uaChromeWindows, "Chrome", DeviceDesktop},
		{"edge takes precedence over chrome", uaEdgeWindows, "Edge", DeviceDesktop},
		{"safari mac desktop", uaSafariMac, "Safari", DeviceDesktop},
		{"firefox linux desktop", uaFirefoxLinux, "Firefox", DeviceDesktop},
		{"iphone mobile", uaSafariIPhone, "Safari", DeviceMobile},
		{"ipad tablet before mobile", uaSafariIPad, "Safari", DeviceTablet},
		{"android mobile", uaChromeAndroid, "Chrome", DeviceMobile},
		{"empty agent", "", "Unknown", DeviceUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fp := FingerprintFromParts("192.0.2.1:443", "", tt.ua, "")

			if fp.Browser != tt.browser {
				t.Errorf("Browser = %q, want %q", fp.Browser, tt.browser)
			}
			if fp.DeviceType != tt.deviceType {
				t.Errorf("DeviceType = %q, want %q", fp.DeviceType, tt.deviceType)
			}
			if fp.UserAgent != tt.ua {
				t.Errorf("Raw user agent not preserved: %q", fp.UserAgent)
			}
		})
	}
}

func TestFingerprintMalformedInput(t *testing.T) {
	// Extraction is total: garbage in, defaults out, never a panic or error.
	fp := FingerprintFromParts("", "", "definitely;;not((a real agent", "")

	if fp.IP != "unknown" {
		t.Errorf("IP = %q, want unknown", fp.IP)
	}
	if fp.OS != "Unknown" {
		t.Errorf("OS = %q, want Unknown", fp.OS)
	}
	if fp.DeviceType != DeviceDesktop {
		t.Errorf("DeviceType = %q, want desktop default", fp.DeviceType)
	}
}

func TestFingerprintOSClassification(t *testing.T) {
	tests := []struct {
		ua string
		os string
	}{
		{uaChromeWindows, "Windows"},
		{uaSafariMac, "Mac OS X"},
		{uaChromeAndroid, "Android"},
		{"", "Unknown"},
	}

	for _, tt := range tests {
		fp := FingerprintFromParts("192.0.2.1:443", "", tt.ua, "")
		if fp.OS != tt.os {
			t.Errorf("OS for %q = %q, want %q", tt.ua, fp.OS, tt.os)
		}
	}
}

func TestExtractIP(t *testing.T) {
	tests := []struct {
		name         string
		remoteAddr   string
		forwardedFor string
		want         string
	}{
		{"forwarded chain prefers left-most", "10.0.0.1:1234", "203.0.113.7, 10.0.0.1", "203.0.113.7"},
		{"single forwarded address", "10.0.0.1:1234", "203.0.113.7", "203.0.113.7"},
		{"malformed forwarded falls back", "10.0.0.1:1234", "not-an-ip", "10.0.0.1"},
		{"no forwarded header", "10.0.0.1:1234", "", "10.0.0.1"},
		{"remote addr without port", "10.0.0.1", "", "10.0.0.1"},
		{"ipv6 remote addr", "[2001:db8::1]:443", "", "2001:db8::1"},
		{"nothing usable", "", "", "unknown"},
		{"malformed remote addr", "garbage", "", "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := extractIP(tt.remoteAddr, tt.forwardedFor); got != tt.want {
				t.Errorf("extractIP(%q, %q) = %q, want %q", tt.remoteAddr, tt.forwardedFor, got, tt.want)
			}
		})
	}
}

func TestExtractFingerprintFromRequest(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "10.0.0.1:1234"
	r.Header.Set("User-Agent", uaChromeWindows)
	r.Header.Set("X-Forwarded-For", "203.0.113.7")
	r.Header.Set(DeviceIDHeader, "dev-42")

	fp := ExtractFingerprint(r)

	if fp.IP != "203.0.113.7" {
		t.Errorf("IP = %q, want forwarded address", fp.IP)
	}
	if fp.DeviceID != "dev-42" {
		t.Errorf("DeviceID = %q, want dev-42", fp.DeviceID)
	}
	if fp.Browser != "Chrome" || fp.OS != "Windows" {
		t.Errorf("Unexpected classification: %s / %s", fp.Browser, fp.OS)
	}
	if fp.ObservedAt.IsZero() {
		t.Error("ObservedAt should be set")
	}
}

func TestIsPrivateIP(t *testing.T) {
	tests := []struct {
		ip      string
		private bool
	}{
		{"127.0.0.1", true},
		{"10.1.2.3", true},
		{"172.16.0.1", true},
		{"192.168.1.1", true},
		{"8.8.8.8", false},
		{"203.0.113.7", false},
		{"not-an-ip", false},
	}

	for _, tt := range tests {
		if got := IsPrivateIP(tt.ip); got != tt.private {
			t.Errorf("IsPrivateIP(%q) = %v, want %v", tt.ip, got, tt.private)
		}
	}
}
