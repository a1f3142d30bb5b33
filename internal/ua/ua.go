// internal/ua/ua.go
//
// User-Agent parsing helpers.
//
// This wrapper isolates the third-party `github.com/avct/uasurfer` API so
// the rest of the codebase never sees its enums or structs.  The gateway's
// request logger is the only consumer; if we ever swap parsers, only this
// file changes.
package ua

import (
	"fmt"
	"strconv"

	surfer "github.com/avct/uasurfer"
)

// Info carries the UA attributes the request logger records per call.
//
// Device will be one of: "Desktop", "Mobile", "Tablet", or "Other".
type Info struct {
	Browser string
	Version string
	OS      string
	Device  string
	IsBot   bool
	Raw     string
}

// Parse converts a raw header into an Info struct.  After the first call the
// underlying library reuses internal buffers, so Parse allocates only on
// rarely-seen strings.
func Parse(raw string) Info {
	u := surfer.Parse(raw)

	info := Info{
		Browser: trimPrefix(u.Browser.Name.String(), "Browser"),
		Version: versionString(u.Browser.Version),
		OS:      trimPrefix(u.OS.Name.String(), "OS"),
		IsBot:   u.IsBot(),
		Raw:     raw,
	}

	switch u.DeviceType {
	case surfer.DeviceComputer:
		info.Device = "Desktop"
	case surfer.DevicePhone:
		info.Device = "Mobile"
	case surfer.DeviceTablet:
		info.Device = "Tablet"
	default:
		info.Device = "Other"
	}
	return info
}

func versionString(v surfer.Version) string {
	if v.Major == 0 && v.Minor == 0 && v.Patch == 0 {
		return ""
	}
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// trimPrefix removes uasurfer's enum prefixes ("BrowserChrome" → "Chrome").
func trimPrefix(s, prefix string) string {
	if len(s) > len(prefix) && s[:len(prefix)] == prefix {
		return s[len(prefix):]
	}
	if _, err := strconv.Atoi(s); err == nil {
		return "Unknown"
	}
	return s
}
