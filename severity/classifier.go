package severity

// K-nearest-neighbour severity model
//
// Each training row becomes a prototype: its encoded feature vector and its
// target class index. At inference the query vector is standardised with the
// scaler fitted on the prototypes, the k closest prototypes by Euclidean
// distance vote with weight 1/(distance+epsilon), and the class with the
// largest weight wins. Ties go to the lowest class index so predictions are
// reproducible.
//
// The model only ever sees class indices; decoding them into a Severity is
// the target codec's job.

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
)

// Model is the capability the engine needs from a trained classifier.
// Any multinomial classifier over the encoded feature order satisfies it.
type Model interface {
	Predict(features []float64) (int, error)
}

// DimensionedModel is implemented by models that know their input width, so
// the engine can verify it against the feature order at construction.
type DimensionedModel interface {
	Model
	Dimensions() int
}

// Prototype is one encoded training row.
type Prototype struct {
	Features []float64 `json:"features"`
	Class    int       `json:"class"`
}

// ModelStats summarises a loaded classifier.
type ModelStats struct {
	PrototypeCount int   `json:"prototypeCount"`
	ClassCount     int   `json:"classCount"`
	Dimensions     int   `json:"dimensions"`
	K              int   `json:"k"`
	ClassSupport   []int `json:"classSupport"`
}

// Classifier is an immutable KNN model. It is safe for concurrent use.
type Classifier struct {
	raw        []Prototype
	prototypes []Prototype
	k          int
	classes    int
	dims       int
	scaler     *FeatureScaler
}

type distancePair struct {
	index    int
	distance float64
}

type classifierFile struct {
	K          int         `json:"k"`
	Classes    int         `json:"classes"`
	Prototypes []Prototype `json:"prototypes"`
}

// NewClassifier validates the prototypes and fits the feature scaler.
func NewClassifier(prototypes []Prototype, k, classes int) (*Classifier, error) {
	if k <= 0 {
		return nil, fmt.Errorf("invalid neighbour count: %d", k)
	}
	if classes <= 0 {
		return nil, fmt.Errorf("invalid class count: %d", classes)
	}
	if len(prototypes) == 0 {
		return nil, errors.New("classifier has no prototypes")
	}

	dims := len(prototypes[0].Features)
	rows := make([][]float64, len(prototypes))
	raw := make([]Prototype, len(prototypes))
	for idx, proto := range prototypes {
		if len(proto.Features) != dims {
			return nil, &FeatureOrderMismatchError{
				Expected: dims,
				Got:      len(proto.Features),
				Detail:   fmt.Sprintf("prototype %d has %d features, expected %d", idx, len(proto.Features), dims),
			}
		}
		if proto.Class < 0 || proto.Class >= classes {
			return nil, fmt.Errorf("prototype %d has class %d outside [0,%d)", idx, proto.Class, classes)
		}
		features := append([]float64(nil), proto.Features...)
		raw[idx] = Prototype{Features: features, Class: proto.Class}
		rows[idx] = features
	}

	scaler, err := NewFeatureScaler(rows)
	if err != nil {
		return nil, fmt.Errorf("fit feature scaler: %w", err)
	}

	scaled := make([]Prototype, len(raw))
	for idx, proto := range raw {
		scaled[idx] = Prototype{Features: scaler.Transform(proto.Features), Class: proto.Class}
	}

	if k > len(scaled) {
		k = len(scaled)
	}

	return &Classifier{
		raw:        raw,
		prototypes: scaled,
		k:          k,
		classes:    classes,
		dims:       dims,
		scaler:     scaler,
	}, nil
}

// LoadClassifier reads a classifier persisted by Save.
func LoadClassifier(path string) (*Classifier, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read model: %w", err)
	}
	var file classifierFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse model: %w", err)
	}
	return NewClassifier(file.Prototypes, file.K, file.Classes)
}

// Save writes the classifier's unscaled prototypes to path atomically.
func (c *Classifier) Save(path string) error {
	return writeJSONAtomic(path, classifierFile{
		K:          c.k,
		Classes:    c.classes,
		Prototypes: c.raw,
	})
}

func (c *Classifier) Dimensions() int { return c.dims }

// Stats reports prototype counts per class.
func (c *Classifier) Stats() ModelStats {
	support := make([]int, c.classes)
	for _, proto := range c.prototypes {
		support[proto.Class]++
	}
	return ModelStats{
		PrototypeCount: len(c.prototypes),
		ClassCount:     c.classes,
		Dimensions:     c.dims,
		K:              c.k,
		ClassSupport:   support,
	}
}

// Predict returns the class index with the largest neighbour weight.
func (c *Classifier) Predict(features []float64) (int, error) {
	weights, err := c.votes(features)
	if err != nil {
		return 0, err
	}
	best := 0
	for class := 1; class < len(weights); class++ {
		if weights[class] > weights[best]+1e-12 {
			best = class
		}
	}
	return best, nil
}

func (c *Classifier) votes(features []float64) ([]float64, error) {
	if len(features) != c.dims {
		return nil, &FeatureOrderMismatchError{Expected: c.dims, Got: len(features)}
	}

	query := c.scaler.Transform(features)

	distances := make([]distancePair, len(c.prototypes))
	for i, proto := range c.prototypes {
		distances[i] = distancePair{index: i, distance: euclideanDistance(query, proto.Features)}
	}
	sort.Slice(distances, func(i, j int) bool {
		if distances[i].distance != distances[j].distance {
			return distances[i].distance < distances[j].distance
		}
		return distances[i].index < distances[j].index
	})

	weights := make([]float64, c.classes)
	for idx := 0; idx < len(distances) && idx < c.k; idx++ {
		neighbor := distances[idx]
		// epsilon keeps exact matches finite
		weights[c.prototypes[neighbor.index].Class] += 1.0 / (neighbor.distance + 1e-9)
	}
	return weights, nil
}

func euclideanDistance(a, b []float64) float64 {
	var sum float64
	for i := range a {
		diff := a[i] - b[i]
		sum += diff * diff
	}
	return math.Sqrt(sum)
}

// writeJSONAtomic marshals v to a temporary file and renames it over path.
func writeJSONAtomic(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", filepath.Base(path), err)
	}

	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}
