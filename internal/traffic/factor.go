package traffic

import "time"

// AlarmLevel is the collision alarm severity reported by a receiver.
// Higher values are more severe. AlarmNone is the only inactive level.
type AlarmLevel int

const (
	AlarmNone     AlarmLevel = -1
	AlarmAdvisory AlarmLevel = 0
	AlarmCaution  AlarmLevel = 1
	AlarmWarning  AlarmLevel = 2
)

func (l AlarmLevel) Active() bool {
	return l > AlarmNone
}

func (l AlarmLevel) Valid() bool {
	return l >= AlarmNone && l <= AlarmWarning
}

func (l AlarmLevel) String() string {
	switch l {
	case AlarmNone:
		return "none"
	case AlarmAdvisory:
		return "advisory"
	case AlarmCaution:
		return "caution"
	case AlarmWarning:
		return "warning"
	}
	return "invalid"
}

// Class is the coarse classification of a traffic object.
type Class string

const (
	ClassUnknown  Class = "unknown"
	ClassAircraft Class = "aircraft"
	ClassVehicle  Class = "vehicle"
	ClassObstacle Class = "obstacle"
)

// Factor is one normalized traffic report from one source. HasPosition
// tags the two report kinds: positioned reports carry lat/lon, while
// unpositioned reports carry at most a coarse bearing/distance estimate.
//
// A Factor with Valid == false represents "this source currently has
// nothing to say" and is never selected by arbitration.
type Factor struct {
	SourceID string `json:"source_id"`
	ObjectID string `json:"object_id"`

	HasPosition bool    `json:"has_position"`
	LatDeg      float64 `json:"lat_deg,omitempty"`
	LonDeg      float64 `json:"lon_deg,omitempty"`
	AltValid    bool    `json:"alt_valid,omitempty"`
	AltFeet     int     `json:"alt_feet,omitempty"`

	DistanceValid bool    `json:"distance_valid"`
	DistanceNm    float64 `json:"distance_nm,omitempty"`
	BearingValid  bool    `json:"bearing_valid,omitempty"`
	BearingDeg    float64 `json:"bearing_deg,omitempty"`
	VerticalFeet  int     `json:"vertical_feet,omitempty"`

	Class        Class     `json:"class"`
	TimestampUTC time.Time `json:"timestamp_utc"`
	Valid        bool      `json:"valid"`
}

// Warning is a collision alert from one source. The zero Level is
// AlarmAdvisory, so empty warnings must be built with NoWarning.
type Warning struct {
	SourceID     string     `json:"source_id,omitempty"`
	ObjectID     string     `json:"object_id,omitempty"`
	Level        AlarmLevel `json:"level"`
	TimestampUTC time.Time  `json:"timestamp_utc,omitempty"`
}

// NoWarning is the inactive warning published when no alert is current.
func NoWarning() Warning {
	return Warning{Level: AlarmNone}
}
