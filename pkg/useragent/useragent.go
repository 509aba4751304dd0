// Package useragent parses User-Agent strings into the short device
// summary shown on session listings.
package useragent

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Device types reported by Parse.
const (
	DeviceDesktop = "desktop"
	DeviceMobile  = "mobile"
	DeviceTablet  = "tablet"
	DeviceBot     = "bot"
	DeviceUnknown = "unknown"
)

var ErrEmptyUserAgent = errors.New("empty user agent")

// UserAgent is the parsed subset of a User-Agent string.
type UserAgent struct {
	raw        string
	deviceType string
	os         string
	browser    string
	browserVer string
}

func (ua UserAgent) String() string         { return ua.raw }
func (ua UserAgent) DeviceType() string     { return ua.deviceType }
func (ua UserAgent) OS() string             { return ua.os }
func (ua UserAgent) Browser() string        { return ua.browser }
func (ua UserAgent) BrowserVersion() string { return ua.browserVer }
func (ua UserAgent) IsBot() bool            { return ua.deviceType == DeviceBot }

// browserRules run in order: derivative browsers carry the engine token
// of their ancestor, so Edge and Opera must match before Chrome, and
// everything Chromium-based before Safari.
var browserRules = []struct {
	name string
	re   *regexp.Regexp
}{
	{"Edge", regexp.MustCompile(`edga?(?:ios)?/([0-9]+)`)},
	{"Opera", regexp.MustCompile(`(?:opr|opios)/([0-9]+)`)},
	{"Samsung Internet", regexp.MustCompile(`samsungbrowser/([0-9]+)`)},
	{"Firefox", regexp.MustCompile(`(?:firefox|fxios)/([0-9]+)`)},
	{"Chrome", regexp.MustCompile(`(?:chrome|crios)/([0-9]+)`)},
	{"Safari", regexp.MustCompile(`version/([0-9]+)[.0-9]* .*safari`)},
}

var botMarkers = []string{"bot", "crawler", "spider", "slurp", "curl/", "wget/", "python-requests"}

var botNameRe = regexp.MustCompile(`([a-z0-9._-]*(?:bot|crawler|spider)[a-z0-9._-]*)`)

// Parse extracts device type, OS, and browser from a raw User-Agent
// string. The returned UserAgent is usable even when an error is
// reported; the error only signals that nothing could be recognized.
func Parse(raw string) (UserAgent, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return UserAgent{deviceType: DeviceUnknown}, ErrEmptyUserAgent
	}

	lower := strings.ToLower(raw)
	ua := UserAgent{raw: raw}

	if isBot(lower) {
		ua.deviceType = DeviceBot
		return ua, nil
	}

	ua.os = parseOS(lower)
	ua.deviceType = parseDeviceType(lower)
	ua.browser, ua.browserVer = parseBrowser(lower)
	return ua, nil
}

// GetShortIdentifier renders the one-line device label, e.g.
// "Chrome/126 (macOS, desktop)" or "Bot: googlebot".
func (ua UserAgent) GetShortIdentifier() string {
	if ua.deviceType == DeviceBot {
		if name := botNameRe.FindString(strings.ToLower(ua.raw)); name != "" {
			return "Bot: " + name
		}
		return "Bot"
	}

	osName := ua.os
	if osName == "" {
		osName = "Unknown OS"
	}

	if ua.browser == "" {
		if ua.os == "" && ua.deviceType == DeviceUnknown {
			return "Unknown device"
		}
		return fmt.Sprintf("%s %s", osName, ua.deviceType)
	}
	if ua.browserVer == "" {
		return fmt.Sprintf("%s (%s, %s)", ua.browser, osName, ua.deviceType)
	}
	return fmt.Sprintf("%s/%s (%s, %s)", ua.browser, ua.browserVer, osName, ua.deviceType)
}

func isBot(lower string) bool {
	for _, marker := range botMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

func parseOS(lower string) string {
	switch {
	case strings.Contains(lower, "windows nt"):
		return "Windows"
	case strings.Contains(lower, "iphone") || strings.Contains(lower, "ipod"):
		return "iOS"
	case strings.Contains(lower, "ipad"):
		return "iPadOS"
	case strings.Contains(lower, "mac os x") || strings.Contains(lower, "macintosh"):
		return "macOS"
	case strings.Contains(lower, "android"):
		return "Android"
	case strings.Contains(lower, "cros"):
		return "ChromeOS"
	case strings.Contains(lower, "linux") || strings.Contains(lower, "x11"):
		return "Linux"
	default:
		return ""
	}
}

func parseDeviceType(lower string) string {
	switch {
	case strings.Contains(lower, "ipad") || strings.Contains(lower, "tablet"):
		return DeviceTablet
	// Android reports "mobile" on phones only; its tablets omit it.
	case strings.Contains(lower, "android") && !strings.Contains(lower, "mobile"):
		return DeviceTablet
	case strings.Contains(lower, "mobi") || strings.Contains(lower, "iphone") || strings.Contains(lower, "ipod"):
		return DeviceMobile
	case strings.Contains(lower, "windows nt") || strings.Contains(lower, "macintosh") ||
		strings.Contains(lower, "cros") || strings.Contains(lower, "linux") || strings.Contains(lower, "x11"):
		return DeviceDesktop
	default:
		return DeviceUnknown
	}
}

func parseBrowser(lower string) (name, version string) {
	for _, rule := range browserRules {
		if m := rule.re.FindStringSubmatch(lower); m != nil {
			return rule.name, m[1]
		}
	}
	return "", ""
}
