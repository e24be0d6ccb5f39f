package severity

import (
	"slices"
	"strconv"
	"strings"
)

// Field names, shared by the form, the dataset header and the artifacts.
const (
	FieldNumberOfVehicles      = "number_of_vehicles"
	FieldDayOfWeek             = "day_of_week"
	FieldRoadType              = "road_type"
	FieldSpeedLimit            = "speed_limit"
	FieldLightConditions       = "light_conditions"
	FieldWeatherConditions     = "weather_conditions"
	FieldRoadSurfaceConditions = "road_surface_conditions"

	// FieldTarget is the label column in the training dataset.
	FieldTarget = "accident_severity"
)

// SpeedLimits is the discrete set of accepted speed limits.
var SpeedLimits = []int{30, 40, 50, 60, 70, 80, 90}

// DefaultFeatureOrder is the layout used when training a new model.
// A loaded engine always uses the order persisted with its model.
func DefaultFeatureOrder() []string {
	return []string{
		FieldNumberOfVehicles,
		FieldDayOfWeek,
		FieldRoadType,
		FieldSpeedLimit,
		FieldLightConditions,
		FieldWeatherConditions,
		FieldRoadSurfaceConditions,
	}
}

// IsNumericField reports whether field bypasses categorical encoding.
func IsNumericField(field string) bool {
	return field == FieldNumberOfVehicles || field == FieldSpeedLimit
}

func isKnownField(field string) bool {
	return slices.Contains(DefaultFeatureOrder(), field)
}

// TripRecord is a raw, human-readable observation of trip and road conditions.
type TripRecord struct {
	NumberOfVehicles      int    `json:"number_of_vehicles" bson:"number_of_vehicles"`
	DayOfWeek             string `json:"day_of_week" bson:"day_of_week"`
	RoadType              string `json:"road_type" bson:"road_type"`
	SpeedLimit            int    `json:"speed_limit" bson:"speed_limit"`
	LightConditions       string `json:"light_conditions" bson:"light_conditions"`
	WeatherConditions     string `json:"weather_conditions" bson:"weather_conditions"`
	RoadSurfaceConditions string `json:"road_surface_conditions" bson:"road_surface_conditions"`
}

// Categorical returns the value of a categorical field.
func (t TripRecord) Categorical(field string) (string, bool) {
	switch field {
	case FieldDayOfWeek:
		return t.DayOfWeek, true
	case FieldRoadType:
		return t.RoadType, true
	case FieldLightConditions:
		return t.LightConditions, true
	case FieldWeatherConditions:
		return t.WeatherConditions, true
	case FieldRoadSurfaceConditions:
		return t.RoadSurfaceConditions, true
	}
	return "", false
}

// Numeric returns the value of a numeric field.
func (t TripRecord) Numeric(field string) (int, bool) {
	switch field {
	case FieldNumberOfVehicles:
		return t.NumberOfVehicles, true
	case FieldSpeedLimit:
		return t.SpeedLimit, true
	}
	return 0, false
}

// Values renders every field as a string keyed by field name.
func (t TripRecord) Values() map[string]string {
	return map[string]string{
		FieldNumberOfVehicles:      strconv.Itoa(t.NumberOfVehicles),
		FieldDayOfWeek:             t.DayOfWeek,
		FieldRoadType:              t.RoadType,
		FieldSpeedLimit:            strconv.Itoa(t.SpeedLimit),
		FieldLightConditions:       t.LightConditions,
		FieldWeatherConditions:     t.WeatherConditions,
		FieldRoadSurfaceConditions: t.RoadSurfaceConditions,
	}
}

// FieldSource is anything that yields raw form values by name, such as url.Values.
type FieldSource interface {
	Get(key string) string
}

// MapSource adapts a plain map to FieldSource.
type MapSource map[string]string

func (m MapSource) Get(key string) string { return m[key] }

// ParseTripRecord reads a TripRecord from untrusted input. Numeric fields are
// validated here; categorical membership is checked by the Codec.
func ParseTripRecord(src FieldSource) (TripRecord, error) {
	vehicles, err := parseVehicles(src.Get(FieldNumberOfVehicles))
	if err != nil {
		return TripRecord{}, err
	}
	speed, err := parseSpeedLimit(src.Get(FieldSpeedLimit))
	if err != nil {
		return TripRecord{}, err
	}

	return TripRecord{
		NumberOfVehicles:      vehicles,
		DayOfWeek:             strings.TrimSpace(src.Get(FieldDayOfWeek)),
		RoadType:              strings.TrimSpace(src.Get(FieldRoadType)),
		SpeedLimit:            speed,
		LightConditions:       strings.TrimSpace(src.Get(FieldLightConditions)),
		WeatherConditions:     strings.TrimSpace(src.Get(FieldWeatherConditions)),
		RoadSurfaceConditions: strings.TrimSpace(src.Get(FieldRoadSurfaceConditions)),
	}, nil
}

func parseInt(field, raw string) (int, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return 0, &InvalidNumberError{Field: field, Value: raw, Reason: "value is required"}
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, &InvalidNumberError{Field: field, Value: raw, Reason: "not an integer"}
	}
	return n, nil
}

func parseVehicles(raw string) (int, error) {
	n, err := parseInt(FieldNumberOfVehicles, raw)
	if err != nil {
		return 0, err
	}
	if n < 1 {
		return 0, &InvalidNumberError{Field: FieldNumberOfVehicles, Value: raw, Reason: "must be at least 1"}
	}
	return n, nil
}

func parseSpeedLimit(raw string) (int, error) {
	n, err := parseInt(FieldSpeedLimit, raw)
	if err != nil {
		return 0, err
	}
	if !slices.Contains(SpeedLimits, n) {
		return 0, &InvalidNumberError{Field: FieldSpeedLimit, Value: raw, Reason: "must be one of 30, 40, 50, 60, 70, 80, 90"}
	}
	return n, nil
}
