package domain

import (
	"encoding/json"
	"fmt"
)

// Location is a geographic hint attached to a task.
type Location struct {
	Latitude  float64 `json:"lat,omitempty" mapstructure:"lat"`
	Longitude float64 `json:"lng,omitempty" mapstructure:"lng"`
	Address   string  `json:"address,omitempty" mapstructure:"address"`
	City      string  `json:"city,omitempty" mapstructure:"city"`
	Country   string  `json:"country,omitempty" mapstructure:"country"`
}

// HasCoordinates reports whether the location carries a usable lat/lng pair.
func (l *Location) HasCoordinates() bool {
	return l != nil && (l.Latitude != 0 || l.Longitude != 0)
}

// String returns the most human-readable form available.
func (l *Location) String() string {
	switch {
	case l == nil:
		return ""
	case l.Address != "":
		return l.Address
	case l.City != "":
		return l.City
	case l.HasCoordinates():
		return fmt.Sprintf("%.5f,%.5f", l.Latitude, l.Longitude)
	}
	return ""
}

// UnmarshalJSON accepts either an object or a bare address string.
func (l *Location) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*l = Location{Address: s}
		return nil
	}
	type alias Location
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*l = Location(a)
	return nil
}
