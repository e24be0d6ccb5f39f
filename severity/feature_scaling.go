package severity

// Feature scaling
//
// Encoded trip vectors mix label codes (0..6) with raw integers such as the
// speed limit (30..90). Without standardisation the speed limit dominates
// every distance, so each dimension is rescaled to zero mean and unit
// variance before neighbours are compared.

import (
	"errors"
	"math"
)

// FeatureScaler standardizes features using z-score normalization. A trip
// vector puts vehicle counts and speed limits next to small label codes, so
// unscaled Euclidean distance would rank neighbours by speed_limit alone.
type FeatureScaler struct {
	Mean   []float64 `json:"mean"`
	Stddev []float64 `json:"stddev"`
}

// NewFeatureScaler computes scaling parameters from a set of rows.
func NewFeatureScaler(rows [][]float64) (*FeatureScaler, error) {
	if len(rows) == 0 {
		return nil, errors.New("no rows provided")
	}

	featureCount := len(rows[0])
	if featureCount == 0 {
		return nil, errors.New("rows have no features")
	}

	mean := make([]float64, featureCount)
	for _, row := range rows {
		if len(row) != featureCount {
			return nil, errors.New("inconsistent feature dimensions")
		}
		for i, val := range row {
			mean[i] += val
		}
	}
	for i := range mean {
		mean[i] /= float64(len(rows))
	}

	stddev := make([]float64, featureCount)
	for _, row := range rows {
		for i, val := range row {
			diff := val - mean[i]
			stddev[i] += diff * diff
		}
	}
	for i := range stddev {
		stddev[i] = math.Sqrt(stddev[i] / float64(len(rows)))
		// constant features would divide by zero
		if stddev[i] < 1e-10 {
			stddev[i] = 1.0
		}
	}

	return &FeatureScaler{Mean: mean, Stddev: stddev}, nil
}

// Transform returns a standardized copy of features. Vectors of the wrong
// dimension are returned unchanged.
func (fs *FeatureScaler) Transform(features []float64) []float64 {
	if fs == nil || len(features) != len(fs.Mean) {
		return features
	}

	scaled := make([]float64, len(features))
	for i, val := range features {
		scaled[i] = (val - fs.Mean[i]) / fs.Stddev[i]
	}
	return scaled
}
