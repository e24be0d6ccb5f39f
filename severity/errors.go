package severity

import "fmt"

// UnknownCategoryError reports a categorical value outside the field's
// trained domain.
type UnknownCategoryError struct {
	Field string
	Value string
}

func (e *UnknownCategoryError) Error() string {
	return fmt.Sprintf("%s: unknown category %q", e.Field, e.Value)
}

// InvalidNumberError reports a numeric field that is not an integer or is
// outside its allowed range.
type InvalidNumberError struct {
	Field  string
	Value  string
	Reason string
}

func (e *InvalidNumberError) Error() string {
	return fmt.Sprintf("%s: invalid number %q: %s", e.Field, e.Value, e.Reason)
}

// ModelUnavailableError means the trained artifacts could not be loaded.
// The process must not serve decisions when this is returned.
type ModelUnavailableError struct {
	Path string
	Err  error
}

func (e *ModelUnavailableError) Error() string {
	return fmt.Sprintf("model unavailable (%s): %v", e.Path, e.Err)
}

func (e *ModelUnavailableError) Unwrap() error {
	return e.Err
}

// FeatureOrderMismatchError reports an encoded vector or artifact set whose
// layout does not match the trained feature order.
type FeatureOrderMismatchError struct {
	Expected int
	Got      int
	Detail   string
}

func (e *FeatureOrderMismatchError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("feature order mismatch: %s", e.Detail)
	}
	return fmt.Sprintf("feature order mismatch: expected %d features, got %d", e.Expected, e.Got)
}
