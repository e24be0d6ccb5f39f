package severity

import (
	"encoding/json"
	"fmt"
	"sort"
)

// LabelCodec is a bijection between the classes of one field and the
// integers 0..n-1. The code of a class is its index in Classes.
type LabelCodec struct {
	field   string
	classes []string
	index   map[string]int
}

// NewLabelCodec builds a codec whose codes follow the order of classes.
// Duplicate or empty classes are rejected.
func NewLabelCodec(field string, classes []string) (*LabelCodec, error) {
	if len(classes) == 0 {
		return nil, fmt.Errorf("codec %s has no classes", field)
	}
	index := make(map[string]int, len(classes))
	for i, class := range classes {
		if class == "" {
			return nil, fmt.Errorf("codec %s has an empty class at %d", field, i)
		}
		if _, dup := index[class]; dup {
			return nil, fmt.Errorf("codec %s has duplicate class %q", field, class)
		}
		index[class] = i
	}
	return &LabelCodec{
		field:   field,
		classes: append([]string(nil), classes...),
		index:   index,
	}, nil
}

// FitLabelCodec builds a codec from observed values; classes are sorted
// lexicographically.
func FitLabelCodec(field string, values []string) (*LabelCodec, error) {
	seen := make(map[string]struct{})
	for _, v := range values {
		seen[v] = struct{}{}
	}
	classes := make([]string, 0, len(seen))
	for v := range seen {
		classes = append(classes, v)
	}
	sort.Strings(classes)
	return NewLabelCodec(field, classes)
}

func (c *LabelCodec) Field() string { return c.field }

// Len is the number of classes.
func (c *LabelCodec) Len() int { return len(c.classes) }

// Classes returns a copy of the classes in code order.
func (c *LabelCodec) Classes() []string {
	return append([]string(nil), c.classes...)
}

// Encode returns the code of value.
func (c *LabelCodec) Encode(value string) (int, error) {
	code, ok := c.index[value]
	if !ok {
		return 0, &UnknownCategoryError{Field: c.field, Value: value}
	}
	return code, nil
}

// Decode returns the class for code.
func (c *LabelCodec) Decode(code int) (string, error) {
	if code < 0 || code >= len(c.classes) {
		return "", fmt.Errorf("%s: code %d out of range [0,%d)", c.field, code, len(c.classes))
	}
	return c.classes[code], nil
}

// DecodeSeverity decodes a predicted class index into a Severity.
func (c *LabelCodec) DecodeSeverity(code int) (Severity, error) {
	label, err := c.Decode(code)
	if err != nil {
		return 0, err
	}
	return ParseSeverity(label)
}

func (c *LabelCodec) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Field   string   `json:"field"`
		Classes []string `json:"classes"`
	}{c.field, c.classes})
}

func (c *LabelCodec) UnmarshalJSON(data []byte) error {
	var raw struct {
		Field   string   `json:"field"`
		Classes []string `json:"classes"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	built, err := NewLabelCodec(raw.Field, raw.Classes)
	if err != nil {
		return err
	}
	*c = *built
	return nil
}

// Codec holds one LabelCodec per categorical field. It is read-only once built.
type Codec struct {
	fields map[string]*LabelCodec
}

// NewCodec indexes codecs by their field name.
func NewCodec(codecs ...*LabelCodec) (*Codec, error) {
	fields := make(map[string]*LabelCodec, len(codecs))
	for _, c := range codecs {
		if _, dup := fields[c.field]; dup {
			return nil, fmt.Errorf("duplicate codec for field %s", c.field)
		}
		fields[c.field] = c
	}
	return &Codec{fields: fields}, nil
}

// Fields lists the encoded field names in lexicographic order.
func (c *Codec) Fields() []string {
	names := make([]string, 0, len(c.fields))
	for name := range c.fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Has reports whether field has a codec table.
func (c *Codec) Has(field string) bool {
	_, ok := c.fields[field]
	return ok
}

func (c *Codec) lookup(field, value string) (*LabelCodec, error) {
	lc, ok := c.fields[field]
	if !ok {
		return nil, &UnknownCategoryError{Field: field, Value: value}
	}
	return lc, nil
}

// Encode maps a categorical value to its trained code.
func (c *Codec) Encode(field, value string) (int, error) {
	lc, err := c.lookup(field, value)
	if err != nil {
		return 0, err
	}
	return lc.Encode(value)
}

// Decode maps a code back to its categorical value.
func (c *Codec) Decode(field string, code int) (string, error) {
	lc, ok := c.fields[field]
	if !ok {
		return "", fmt.Errorf("no codec for field %s", field)
	}
	return lc.Decode(code)
}

// Domain returns the valid values of field in code order, or nil for
// fields without a codec.
func (c *Codec) Domain(field string) []string {
	lc, ok := c.fields[field]
	if !ok {
		return nil
	}
	return lc.Classes()
}

func (c *Codec) MarshalJSON() ([]byte, error) {
	out := make(map[string][]string, len(c.fields))
	for name, lc := range c.fields {
		out[name] = lc.classes
	}
	return json.Marshal(out)
}

func (c *Codec) UnmarshalJSON(data []byte) error {
	var raw map[string][]string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	fields := make(map[string]*LabelCodec, len(raw))
	for name, classes := range raw {
		lc, err := NewLabelCodec(name, classes)
		if err != nil {
			return err
		}
		fields[name] = lc
	}
	c.fields = fields
	return nil
}
