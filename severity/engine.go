package severity

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Artifact file names inside a model directory.
const (
	ModelFile         = "accident_model.json"
	EncodersFile      = "encoders.json"
	FeatureOrderFile  = "feature_order.json"
	TargetEncoderFile = "target_encoder.json"
)

// Decision is the outcome of one severity request.
type Decision struct {
	Trip         TripRecord `json:"trip"`
	RuleVerdict  Severity   `json:"ruleVerdict"`
	ModelVerdict Severity   `json:"modelVerdict"`
	Severity     Severity   `json:"severity"`
}

// RuleOverride reports whether the rule raised the model's verdict.
func (d Decision) RuleOverride() bool {
	return d.RuleVerdict > d.ModelVerdict
}

// Engine combines a trained model with its codecs and the safety rules.
// It is built once per process and never mutated, so a single value may be
// shared by every request goroutine.
type Engine struct {
	model        Model
	codec        *Codec
	featureOrder []string
	target       *LabelCodec
}

// NewEngine checks that the four artifacts describe the same layout.
func NewEngine(model Model, codec *Codec, featureOrder []string, target *LabelCodec) (*Engine, error) {
	if model == nil {
		return nil, errors.New("engine requires a model")
	}
	if codec == nil || target == nil {
		return nil, errors.New("engine requires feature and target codecs")
	}
	if len(featureOrder) == 0 {
		return nil, &FeatureOrderMismatchError{Detail: "feature order is empty"}
	}

	seen := make(map[string]bool, len(featureOrder))
	for _, field := range featureOrder {
		if !isKnownField(field) {
			return nil, &FeatureOrderMismatchError{Detail: fmt.Sprintf("unknown field %q", field)}
		}
		if seen[field] {
			return nil, &FeatureOrderMismatchError{Detail: fmt.Sprintf("field %q listed twice", field)}
		}
		seen[field] = true
		if !IsNumericField(field) && !codec.Has(field) {
			return nil, &FeatureOrderMismatchError{Detail: fmt.Sprintf("no codec for categorical field %q", field)}
		}
	}

	if dm, ok := model.(DimensionedModel); ok && dm.Dimensions() != len(featureOrder) {
		return nil, &FeatureOrderMismatchError{Expected: len(featureOrder), Got: dm.Dimensions()}
	}

	if c, ok := model.(*Classifier); ok && c.Stats().ClassCount != target.Len() {
		return nil, &FeatureOrderMismatchError{
			Expected: target.Len(),
			Got:      c.Stats().ClassCount,
			Detail:   "model classes do not match target encoder",
		}
	}

	for _, class := range target.Classes() {
		if _, err := ParseSeverity(class); err != nil {
			return nil, fmt.Errorf("target codec: %w", err)
		}
	}

	return &Engine{
		model:        model,
		codec:        codec,
		featureOrder: append([]string(nil), featureOrder...),
		target:       target,
	}, nil
}

// LoadEngine reads the model directory written by Artifacts.Save.
// Every failure is reported as a *ModelUnavailableError.
func LoadEngine(dir string) (*Engine, error) {
	modelPath := filepath.Join(dir, ModelFile)
	model, err := LoadClassifier(modelPath)
	if err != nil {
		return nil, &ModelUnavailableError{Path: modelPath, Err: err}
	}

	var codec Codec
	if err := readJSON(filepath.Join(dir, EncodersFile), &codec); err != nil {
		return nil, err
	}

	var order []string
	if err := readJSON(filepath.Join(dir, FeatureOrderFile), &order); err != nil {
		return nil, err
	}

	var target LabelCodec
	if err := readJSON(filepath.Join(dir, TargetEncoderFile), &target); err != nil {
		return nil, err
	}

	engine, err := NewEngine(model, &codec, order, &target)
	if err != nil {
		return nil, &ModelUnavailableError{Path: dir, Err: err}
	}
	return engine, nil
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return &ModelUnavailableError{Path: path, Err: err}
	}
	if err := json.Unmarshal(data, v); err != nil {
		return &ModelUnavailableError{Path: path, Err: err}
	}
	return nil
}

// FeatureOrder returns a copy of the trained feature order.
func (e *Engine) FeatureOrder() []string {
	return append([]string(nil), e.featureOrder...)
}

// Codec exposes the read-only feature codec.
func (e *Engine) Codec() *Codec { return e.codec }

// Model exposes the underlying classifier.
func (e *Engine) Model() Model { return e.model }

// Options maps each categorical field in the feature order to its domain.
func (e *Engine) Options() map[string][]string {
	options := make(map[string][]string)
	for _, field := range e.featureOrder {
		if domain := e.codec.Domain(field); domain != nil {
			options[field] = domain
		}
	}
	return options
}

// Encode lays t out in the trained feature order.
func (e *Engine) Encode(t TripRecord) ([]float64, error) {
	return encodeTrip(e.codec, e.featureOrder, t)
}

func encodeTrip(codec *Codec, order []string, t TripRecord) ([]float64, error) {
	vector := make([]float64, 0, len(order))
	for _, field := range order {
		if n, ok := t.Numeric(field); ok {
			vector = append(vector, float64(n))
			continue
		}
		value, _ := t.Categorical(field)
		code, err := codec.Encode(field, value)
		if err != nil {
			return nil, err
		}
		vector = append(vector, float64(code))
	}
	return vector, nil
}

// PredictModel returns the model's verdict for t alone.
func (e *Engine) PredictModel(t TripRecord) (Severity, error) {
	vector, err := e.Encode(t)
	if err != nil {
		return 0, err
	}
	if len(vector) != len(e.featureOrder) {
		return 0, &FeatureOrderMismatchError{Expected: len(e.featureOrder), Got: len(vector)}
	}
	class, err := e.model.Predict(vector)
	if err != nil {
		return 0, fmt.Errorf("predict: %w", err)
	}
	verdict, err := e.target.DecodeSeverity(class)
	if err != nil {
		return 0, fmt.Errorf("decode prediction: %w", err)
	}
	return verdict, nil
}

// Decide runs the model and the rules on t and reconciles their verdicts.
// Encoding errors are returned before the model is consulted.
func (e *Engine) Decide(t TripRecord) (Decision, error) {
	modelVerdict, err := e.PredictModel(t)
	if err != nil {
		return Decision{}, err
	}
	rule := Evaluate(t)
	return Decision{
		Trip:         t,
		RuleVerdict:  rule,
		ModelVerdict: modelVerdict,
		Severity:     Reconcile(rule, modelVerdict),
	}, nil
}

// DecideForm parses untrusted input and decides on it.
func (e *Engine) DecideForm(src FieldSource) (Decision, error) {
	trip, err := ParseTripRecord(src)
	if err != nil {
		return Decision{}, err
	}
	return e.Decide(trip)
}
