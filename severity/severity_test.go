package severity

import (
	"encoding/json"
	"testing"
)

func TestSeverityOrdering(t *testing.T) {
	t.Parallel()

	levels := Severities()
	for i := 1; i < len(levels); i++ {
		if !(levels[i-1] < levels[i]) {
			t.Fatalf("expected %s < %s", levels[i-1], levels[i])
		}
	}
	if levels[0] != Slight || levels[len(levels)-1] != Fatal {
		t.Fatalf("unexpected bounds %v", levels)
	}
}

func TestParseSeverity(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    Severity
		wantErr bool
	}{
		{"Slight", Slight, false},
		{"serious", Serious, false},
		{" FATAL ", Fatal, false},
		{"Minor", 0, true},
		{"", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseSeverity(tt.in)
		if (err != nil) != tt.wantErr {
			t.Fatalf("ParseSeverity(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if !tt.wantErr && got != tt.want {
			t.Fatalf("ParseSeverity(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestSeverityJSON(t *testing.T) {
	t.Parallel()

	data, err := json.Marshal(map[string]Severity{"s": Serious})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `{"s":"Serious"}` {
		t.Fatalf("unexpected JSON %s", data)
	}

	var out map[string]Severity
	if err := json.Unmarshal([]byte(`{"s":"Fatal"}`), &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out["s"] != Fatal {
		t.Fatalf("expected Fatal, got %s", out["s"])
	}

	if _, err := json.Marshal(Severity(9)); err == nil {
		t.Fatalf("expected error marshalling an undeclared level")
	}
}
