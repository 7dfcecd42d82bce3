// Package units provides shared constants and validation for display distance units
package units

// Unit constants
const (
	M  = "m"
	CM = "cm"
	FT = "ft"
	IN = "in"
)

// ValidUnits contains all valid unit values
var ValidUnits = []string{M, CM, FT, IN}

// IsValid checks if the given unit is in the list of valid units
func IsValid(unit string) bool {
	for _, validUnit := range ValidUnits {
		if unit == validUnit {
			return true
		}
	}
	return false
}

// GetValidUnitsString returns a comma-separated string of valid units for error messages
func GetValidUnitsString() string {
	return "m, cm, ft, in"
}

// ConvertDistance converts a distance from meters to the target units.
// The sensor and the database both work in meters; conversion is display-only.
func ConvertDistance(meters float64, targetUnits string) float64 {
	switch targetUnits {
	case M:
		return meters
	case CM:
		return meters * 100
	case FT:
		return meters * 3.28084
	case IN:
		return meters * 39.3701
	default:
		return meters
	}
}
