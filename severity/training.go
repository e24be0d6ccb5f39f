package severity

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"path/filepath"
)

// TrainOptions controls Train.
type TrainOptions struct {
	K            int
	FeatureOrder []string
	// Oversample duplicates minority-class rows up to the majority count.
	Oversample bool
	Seed       uint64
}

// Artifacts are the four objects the engine loads at startup. They must
// always be produced and persisted together.
type Artifacts struct {
	Model        *Classifier
	Codec        *Codec
	FeatureOrder []string
	Target       *LabelCodec
}

// FitCodec builds a codec for every categorical field in order from the
// values observed in rows.
func FitCodec(rows []LabeledTrip, order []string) (*Codec, error) {
	var codecs []*LabelCodec
	for _, field := range order {
		if IsNumericField(field) {
			continue
		}
		values := make([]string, len(rows))
		for i, row := range rows {
			value, ok := row.Trip.Categorical(field)
			if !ok {
				return nil, fmt.Errorf("unknown field %q", field)
			}
			values[i] = value
		}
		lc, err := FitLabelCodec(field, values)
		if err != nil {
			return nil, err
		}
		codecs = append(codecs, lc)
	}
	return NewCodec(codecs...)
}

// FitTargetCodec builds the codec that maps severities to class indices.
func FitTargetCodec(rows []LabeledTrip) (*LabelCodec, error) {
	labels := make([]string, len(rows))
	for i, row := range rows {
		labels[i] = row.Severity.String()
	}
	return FitLabelCodec(FieldTarget, labels)
}

// Oversample returns rows plus random duplicates of every minority class so
// each class matches the largest one.
func Oversample(rows []LabeledTrip, rng *rand.Rand) []LabeledTrip {
	byClass := make(map[Severity][]LabeledTrip)
	majority := 0
	for _, row := range rows {
		byClass[row.Severity] = append(byClass[row.Severity], row)
		majority = max(majority, len(byClass[row.Severity]))
	}

	out := append([]LabeledTrip(nil), rows...)
	for _, s := range Severities() {
		members := byClass[s]
		if len(members) == 0 {
			continue
		}
		for n := len(members); n < majority; n++ {
			out = append(out, members[rng.IntN(len(members))])
		}
	}
	return out
}

// Train fits codecs and a KNN classifier on rows.
func Train(rows []LabeledTrip, opts TrainOptions) (*Artifacts, error) {
	if len(rows) == 0 {
		return nil, errors.New("no training rows")
	}
	if opts.K <= 0 {
		opts.K = 5
	}
	order := opts.FeatureOrder
	if len(order) == 0 {
		order = DefaultFeatureOrder()
	}

	codec, err := FitCodec(rows, order)
	if err != nil {
		return nil, fmt.Errorf("fit codec: %w", err)
	}
	target, err := FitTargetCodec(rows)
	if err != nil {
		return nil, fmt.Errorf("fit target codec: %w", err)
	}

	training := rows
	if opts.Oversample {
		training = Oversample(rows, rand.New(rand.NewPCG(opts.Seed, opts.Seed)))
	}

	prototypes := make([]Prototype, len(training))
	for i, row := range training {
		features, err := encodeTrip(codec, order, row.Trip)
		if err != nil {
			return nil, fmt.Errorf("encode row %d: %w", i, err)
		}
		class, err := target.Encode(row.Severity.String())
		if err != nil {
			return nil, fmt.Errorf("encode label %d: %w", i, err)
		}
		prototypes[i] = Prototype{Features: features, Class: class}
	}

	model, err := NewClassifier(prototypes, opts.K, target.Len())
	if err != nil {
		return nil, fmt.Errorf("build classifier: %w", err)
	}

	return &Artifacts{
		Model:        model,
		Codec:        codec,
		FeatureOrder: append([]string(nil), order...),
		Target:       target,
	}, nil
}

// Engine builds a decision engine directly from freshly trained artifacts.
func (a *Artifacts) Engine() (*Engine, error) {
	return NewEngine(a.Model, a.Codec, a.FeatureOrder, a.Target)
}

// Save writes all four artifacts into dir.
func (a *Artifacts) Save(dir string) error {
	if err := a.Model.Save(filepath.Join(dir, ModelFile)); err != nil {
		return err
	}
	if err := writeJSONAtomic(filepath.Join(dir, EncodersFile), a.Codec); err != nil {
		return err
	}
	if err := writeJSONAtomic(filepath.Join(dir, FeatureOrderFile), a.FeatureOrder); err != nil {
		return err
	}
	return writeJSONAtomic(filepath.Join(dir, TargetEncoderFile), a.Target)
}

// Summary describes the class balance of rows, e.g. "Slight=10 Serious=4 Fatal=1".
func Summary(rows []LabeledTrip) string {
	return formatCounts(ClassCounts(rows))
}
