package session

import "strings"

// Viewport is a device profile applied to leased pages.
type Viewport struct {
	Name              string  `json:"name"`
	Width             int     `json:"width"`
	Height            int     `json:"height"`
	DeviceScaleFactor float64 `json:"device_scale_factor"`
	Mobile            bool    `json:"mobile"`
}

var (
	Desktop = Viewport{Name: "desktop", Width: 1280, Height: 800, DeviceScaleFactor: 1}
	Laptop  = Viewport{Name: "laptop", Width: 1440, Height: 900, DeviceScaleFactor: 1}
	Tablet  = Viewport{Name: "tablet", Width: 768, Height: 1024, DeviceScaleFactor: 2, Mobile: true}
	Mobile  = Viewport{Name: "mobile", Width: 390, Height: 844, DeviceScaleFactor: 3, Mobile: true}
)

var profiles = map[string]Viewport{
	Desktop.Name: Desktop,
	Laptop.Name:  Laptop,
	Tablet.Name:  Tablet,
	Mobile.Name:  Mobile,
}

// ViewportByName returns the named profile, falling back to Desktop.
func ViewportByName(name string) Viewport {
	if v, ok := profiles[strings.ToLower(strings.TrimSpace(name))]; ok {
		return v
	}
	return Desktop
}
