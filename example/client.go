package main

import (
	"net"
	"net/http"
	"strings"

	"github.com/mssola/useragent"
)

// clientInfo describes the browser that opened a session. It is stored in
// the session payload so later requests can show where a login came from.
type clientInfo struct {
	IP      string `json:"ip"`
	Browser string `json:"browser"`
	OS      string `json:"os"`
	Device  string `json:"device"`
	Country string `json:"country,omitempty"`
}

// describeClient extracts client information from an HTTP request.
func describeClient(r *http.Request) clientInfo {
	ua := r.UserAgent()
	parsed := useragent.New(ua)

	browser, version := parsed.Browser()
	if version != "" {
		browser = browser + " " + version
	}

	osInfo := parsed.OSInfo()
	os := osInfo.Name
	if osInfo.Version != "" {
		os = os + " " + osInfo.Version
	}

	device := "desktop"
	switch {
	case parsed.Bot():
		device = "bot"
	case parsed.Mobile():
		device = "mobile"
	case isTablet(ua):
		device = "tablet"
	}

	return clientInfo{
		IP:      clientIP(r),
		Browser: browser,
		OS:      os,
		Device:  device,
	}
}

// clientIP returns the client address, preferring proxy headers over
// RemoteAddr.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); net.ParseIP(ip) != nil {
			return ip
		}
	}

	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); net.ParseIP(xri) != nil {
		return xri
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func isTablet(ua string) bool {
	ua = strings.ToLower(ua)
	for _, keyword := range []string{"ipad", "tablet", "playbook", "silk"} {
		if strings.Contains(ua, keyword) {
			return true
		}
	}
	return false
}

// isPrivateIP reports whether ip is loopback or in a private range, where
// a geolocation lookup is pointless.
func isPrivateIP(ip string) bool {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return false
	}
	return parsed.IsLoopback() || parsed.IsPrivate()
}
