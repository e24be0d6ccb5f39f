package severity

import "slices"

var (
	highWindWeather = []string{"Raining with high winds", "Snowing with high winds"}
	wetWeather      = []string{"Raining no high winds", "Raining with high winds", "Snowing no high winds", "Snowing with high winds"}
	riskyRoads      = []string{"Single carriageway", "Roundabout"}
	frozenSurfaces  = []string{"Snow", "Frost / Ice"}
)

// Evaluate applies the safety rules to raw trip values. The branches overlap,
// so they are checked in order and the first match wins.
//
// The same function labels the synthetic training data, which makes it the
// ground truth the model approximates.
func Evaluate(t TripRecord) Severity {
	if t.SpeedLimit >= 80 &&
		t.LightConditions != "Daylight" &&
		slices.Contains(highWindWeather, t.WeatherConditions) {
		return Fatal
	}

	if (t.SpeedLimit >= 50 && t.SpeedLimit < 80 && slices.Contains(wetWeather, t.WeatherConditions)) ||
		(t.SpeedLimit >= 70 && slices.Contains(riskyRoads, t.RoadType)) ||
		(t.SpeedLimit >= 60 && slices.Contains(frozenSurfaces, t.RoadSurfaceConditions)) {
		return Serious
	}

	return Slight
}
