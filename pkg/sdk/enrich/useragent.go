package enrich

import (
	"strings"

	"github.com/mssola/useragent"
)

// Device types reported in device_type.
const (
	DeviceDesktop = "desktop"
	DeviceMobile  = "mobile"
	DeviceTablet  = "tablet"
	DeviceBot     = "bot"
)

// Agent is the browser/OS/device triad parsed from a user-agent string.
type Agent struct {
	BrowserName    string
	BrowserVersion string
	OSName         string
	OSVersion      string
	DeviceType     string
}

// ParseUserAgent parses ua. An empty string yields an empty Agent.
func ParseUserAgent(ua string) Agent {
	if strings.TrimSpace(ua) == "" {
		return Agent{}
	}

	parsed := useragent.New(ua)
	name, version := parsed.Browser()
	os := parsed.OSInfo()

	return Agent{
		BrowserName:    name,
		BrowserVersion: version,
		OSName:         os.Name,
		OSVersion:      os.Version,
		DeviceType:     deviceType(ua, parsed),
	}
}

func deviceType(raw string, ua *useragent.UserAgent) string {
	switch {
	case ua.Bot():
		return DeviceBot
	case strings.Contains(raw, "iPad"), strings.Contains(raw, "Tablet"),
		strings.Contains(raw, "Android") && !strings.Contains(raw, "Mobile"):
		return DeviceTablet
	case ua.Mobile():
		return DeviceMobile
	default:
		return DeviceDesktop
	}
}
