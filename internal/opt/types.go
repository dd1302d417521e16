package opt

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"freightplan/internal/milp"
)

type Location struct {
	Lat float64 `json:"lat" validate:"gte=-90,lte=90"`
	Lng float64 `json:"lng" validate:"gte=-180,lte=180"`
}

type SupplyPoint struct {
	Name      string   `json:"name,omitempty"`
	Location  Location `json:"location"`
	Available float64  `json:"available" validate:"gte=0"`
}

type DemandPoint struct {
	Name     string   `json:"name,omitempty"`
	Location Location `json:"location"`
	Required float64  `json:"required" validate:"gte=0"`
}

type Driver struct {
	Name     string  `json:"name,omitempty"`
	MaxHours float64 `json:"maxHours" validate:"gte=0"`
	MaxLoad  float64 `json:"maxLoad" validate:"gte=0"`
}

// Available reports whether the driver can carry anything at all.
func (d Driver) Available() bool { return d.MaxHours > 0 && d.MaxLoad > 0 }

// TravelTime is a lane duration in hours. The zero value is unknown.
type TravelTime struct {
	Hours float64
	Known bool
}

func Hours(h float64) TravelTime { return TravelTime{Hours: h, Known: true} }
func Unknown() TravelTime { return TravelTime{} }

func (t TravelTime) String() string {
	if !t.Known {
		return "unknown"
	}
	return fmt.Sprintf("%gh", t.Hours)
}

// MarshalJSON encodes an unknown duration as null.
func (t TravelTime) MarshalJSON() ([]byte, error) {
	if !t.Known {
		return []byte("null"), nil
	}
	return json.Marshal(t.Hours)
}

func (t *TravelTime) UnmarshalJSON(b []byte) error {
	if strings.TrimSpace(string(b)) == "null" {
		*t = Unknown()
		return nil
	}
	var h float64
	if err := json.Unmarshal(b, &h); err != nil {
		return fmt.Errorf("travel time: %w", err)
	}
	*t = Hours(h)
	return nil
}

// Problem is one allocation instance. Cost and TravelTimes are indexed
// [supply][demand] in the order of Supply and Demand.
type Problem struct {
	Supply      []SupplyPoint  `json:"supply"`
	Demand      []DemandPoint  `json:"demand"`
	Drivers     []Driver       `json:"drivers"`
	Cost        [][]float64    `json:"cost"`
	TravelTimes [][]TravelTime `json:"travelTimes"`
}

// Lane is an ordered (supply, demand) pair.
type Lane struct {
	Supply int `json:"supply"`
	Demand int `json:"demand"`
}

// MissingTimePolicy decides how unknown lane durations enter the driver-hour rows.
type MissingTimePolicy string

const (
	// MissingReject fails the build when any lane duration is unknown. It is
	// also what an empty policy means.
	MissingReject MissingTimePolicy = "reject"
	// MissingExclude keeps the lane usable and leaves it out of every hour sum.
	MissingExclude MissingTimePolicy = "exclude"
	// MissingForbid closes the lane to every driver.
	MissingForbid MissingTimePolicy = "forbid"
)

func ParseMissingTimePolicy(s string) (MissingTimePolicy, error) {
	switch p := MissingTimePolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case "", MissingReject:
		return MissingReject, nil
	case MissingExclude, MissingForbid:
		return p, nil
	}
	return "", fmt.Errorf("%w: unknown missing travel-time policy %q", ErrInvalidValue, s)
}

func ParseDualPolicy(s string) (milp.DualPolicy, error) {
	switch p := milp.DualPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return milp.DualsFixed, nil
	case milp.DualsFixed, milp.DualsNone:
		return p, nil
	}
	return "", fmt.Errorf("%w: unknown dual policy %q", ErrInvalidValue, s)
}

type Options struct {
	MissingTravelTime MissingTimePolicy
	Duals             milp.DualPolicy
	TimeLimit         time.Duration
	MaxNodes          int
	// Epsilon is the smallest flow reported as an allocation.
	Epsilon float64
}

func DefaultOptions() Options {
	return Options{
		MissingTravelTime: MissingReject,
		Duals:             milp.DualsFixed,
		TimeLimit:         30 * time.Second,
		MaxNodes:          20000,
		Epsilon:           1e-9,
	}
}

func (o Options) normalized() (Options, error) {
	p, err := ParseMissingTimePolicy(string(o.MissingTravelTime))
	if err != nil {
		return o, err
	}
	o.MissingTravelTime = p
	d, err := ParseDualPolicy(string(o.Duals))
	if err != nil {
		return o, err
	}
	o.Duals = d
	if o.Epsilon <= 0 {
		o.Epsilon = 1e-9
	}
	return o, nil
}
