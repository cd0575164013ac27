package encart

// Injection locations. The serving endpoint accepts exactly this set;
// anything else is rejected with ErrInvalidInput rather than treated
// as "no snippets". Site-wide configuration lives in site_settings,
// not in a pseudo-location.
const (
	LocationHeader    = "header"
	LocationBodyStart = "body_start"
	LocationBodyEnd   = "body_end"
	LocationSidebar   = "sidebar"
	LocationInContent = "in_content"
	LocationFooter    = "footer"
	LocationCustom    = "custom"
)

var validLocations = map[string]bool{
	LocationHeader:    true,
	LocationBodyStart: true,
	LocationBodyEnd:   true,
	LocationSidebar:   true,
	LocationInContent: true,
	LocationFooter:    true,
	LocationCustom:    true,
}

// ValidLocation reports whether loc is a known injection location.
func ValidLocation(loc string) bool {
	return validLocations[loc]
}

// Locations returns the known injection locations in render order.
func Locations() []string {
	return []string{
		LocationHeader, LocationBodyStart, LocationInContent,
		LocationSidebar, LocationBodyEnd, LocationFooter, LocationCustom,
	}
}
