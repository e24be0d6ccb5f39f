package severity

// Vocabulary is the set of human-readable values each categorical field may
// take when synthesising data. Serving never consults it; a loaded engine
// only accepts the domains persisted with its model.
var Vocabulary = map[string][]string{
	FieldDayOfWeek:             {"Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday", "Sunday"},
	FieldRoadType:              {"Single carriageway", "Dual carriageway", "Roundabout", "One way street"},
	FieldLightConditions:       {"Daylight", "Darkness - lights lit", "Darkness - no lighting"},
	FieldWeatherConditions:     {"Fine no high winds", "Raining no high winds", "Raining with high winds", "Snowing no high winds", "Snowing with high winds"},
	FieldRoadSurfaceConditions: {"Dry", "Wet / Damp", "Snow", "Frost / Ice"},
}

// MaxSyntheticVehicles bounds number_of_vehicles in generated data.
const MaxSyntheticVehicles = 5
