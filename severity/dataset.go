package severity

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"strconv"
)

// LabeledTrip is one dataset row.
type LabeledTrip struct {
	Trip     TripRecord
	Severity Severity
}

// GenerateDataset draws n trips uniformly from Vocabulary and labels each
// with Evaluate.
func GenerateDataset(rng *rand.Rand, n int) []LabeledTrip {
	pick := func(field string) string {
		values := Vocabulary[field]
		return values[rng.IntN(len(values))]
	}

	rows := make([]LabeledTrip, 0, n)
	for i := 0; i < n; i++ {
		trip := TripRecord{
			NumberOfVehicles:      rng.IntN(MaxSyntheticVehicles) + 1,
			DayOfWeek:             pick(FieldDayOfWeek),
			RoadType:              pick(FieldRoadType),
			SpeedLimit:            SpeedLimits[rng.IntN(len(SpeedLimits))],
			LightConditions:       pick(FieldLightConditions),
			WeatherConditions:     pick(FieldWeatherConditions),
			RoadSurfaceConditions: pick(FieldRoadSurfaceConditions),
		}
		rows = append(rows, LabeledTrip{Trip: trip, Severity: Evaluate(trip)})
	}
	return rows
}

func datasetHeader() []string {
	return append(DefaultFeatureOrder(), FieldTarget)
}

// WriteDataset writes rows as CSV with a header line.
func WriteDataset(w io.Writer, rows []LabeledTrip) error {
	cw := csv.NewWriter(w)
	header := datasetHeader()
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	record := make([]string, len(header))
	for _, row := range rows {
		values := row.Trip.Values()
		for i, field := range header[:len(header)-1] {
			record[i] = values[field]
		}
		record[len(header)-1] = row.Severity.String()
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write row: %w", err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// ReadDataset parses CSV written by WriteDataset. Columns are matched by
// header name, so their order in the file does not matter.
func ReadDataset(r io.Reader) ([]LabeledTrip, error) {
	cr := csv.NewReader(r)
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	columns := make(map[string]int, len(header))
	for i, name := range header {
		columns[name] = i
	}
	for _, name := range datasetHeader() {
		if _, ok := columns[name]; !ok {
			return nil, fmt.Errorf("dataset is missing column %q", name)
		}
	}

	var rows []LabeledTrip
	for line := 2; ; line++ {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		src := make(MapSource, len(columns))
		for name, idx := range columns {
			src[name] = record[idx]
		}
		trip, err := ParseTripRecord(src)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		label, err := ParseSeverity(src[FieldTarget])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		rows = append(rows, LabeledTrip{Trip: trip, Severity: label})
	}
	return rows, nil
}

// ClassCounts tallies rows per severity.
func ClassCounts(rows []LabeledTrip) map[Severity]int {
	counts := make(map[Severity]int)
	for _, row := range rows {
		counts[row.Severity]++
	}
	return counts
}

func formatCounts(counts map[Severity]int) string {
	out := ""
	for _, s := range Severities() {
		if out != "" {
			out += " "
		}
		out += s.String() + "=" + strconv.Itoa(counts[s])
	}
	return out
}
