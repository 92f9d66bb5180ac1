package internal

import "strings"

var deviceHints = []struct {
	needle string
	name   string
}{
	{"iphone", "iPhone"},
	{"ipad", "iPad"},
	{"android", "Android"},
	{"windows", "Windows"},
	{"macintosh", "macOS"},
	{"mac os x", "macOS"},
	{"linux", "Linux"},
	{"curl/", "curl"},
}

// DeviceName derives a short device label from a User-Agent header.
// Unknown agents yield an empty string.
func DeviceName(userAgent string) string {
	ua := strings.ToLower(userAgent)
	if ua == "" {
		return ""
	}
	for _, h := range deviceHints {
		if strings.Contains(ua, h.needle) {
			return h.name
		}
	}
	return ""
}
