package geocode

import "strings"

// Dispatch feed sources.
const (
	SourcePolice = "SDPD"
	SourceFire   = "SDFD"
)

// IncidentQuery builds the location text for an incident. Fire dispatch
// reports a cross street separately; when one is known the location becomes
// an intersection. Unknown sources yield "" so the incident is skipped. The
// region suffix is added later by BuildVariants.
func IncidentQuery(source, location, crossStreet string) string {
	location = strings.TrimSpace(location)
	cross := strings.TrimSpace(crossStreet)

	if location == "" {
		return ""
	}
	switch {
	case strings.EqualFold(source, SourcePolice):
		return location
	case strings.EqualFold(source, SourceFire):
		if cross != "" && !strings.EqualFold(cross, "N/A") {
			return location + " and " + cross
		}
		return location
	default:
		return ""
	}
}

// CrossStreetFromDetails extracts the value of a "Cross Street:" line from a
// fire dispatch detail list.
func CrossStreetFromDetails(details []string) string {
	const label = "Cross Street:"
	for _, d := range details {
		if i := strings.Index(d, label); i >= 0 {
			return strings.TrimSpace(d[i+len(label):])
		}
	}
	return ""
}
