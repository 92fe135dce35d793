package steering

import (
	"math"
	"testing"

	"github.com/aarnphm/morph/internal/models"
)

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestNormalizeTonalityLeavesRestWithinBudget(t *testing.T) {
	in := map[string]float64{"formal": 0.2, "normal": 0.3}
	out := NormalizeTonality(in, "formal", 0.1)

	if !approx(out["formal"], 0.1) {
		t.Errorf("formal = %v, want 0.1", out["formal"])
	}
	if !approx(out["normal"], 0.3) {
		t.Errorf("normal = %v, want 0.3 untouched", out["normal"])
	}
	// Input untouched.
	if in["formal"] != 0.2 {
		t.Errorf("input mutated: %v", in)
	}
}

func TestNormalizeTonalityScalesRestOverBudget(t *testing.T) {
	in := map[string]float64{"formal": 0.2, "normal": 0.8}
	out := NormalizeTonality(in, "formal", 0.5)

	if !approx(out["formal"], 0.5) {
		t.Errorf("formal = %v, want 0.5", out["formal"])
	}
	if !approx(out["normal"], 0.5) {
		t.Errorf("normal = %v, want 0.5", out["normal"])
	}
}

func TestNormalizeTonalityPreservesRestRatio(t *testing.T) {
	in := map[string]float64{"a": 0.1, "b": 0.3, "c": 0.6}
	out := NormalizeTonality(in, "b", 0.7)
	var sum float64
	for _, v := range out {
		sum += v
	}
	if sum > 1+1e-9 {
		t.Errorf("sum = %v, want <= 1", sum)
	}
	if !approx(out["b"], 0.7) {
		t.Errorf("edited axis = %v, want 0.7", out["b"])
	}
	// Relative proportions of the rest are preserved: a:c stays 1:6.
	if !approx(out["c"]/out["a"], 6) {
		t.Errorf("a=%v c=%v, ratio should be 1:6", out["a"], out["c"])
	}
}

func TestNormalizeTonalityZeroRestZeroesOthers(t *testing.T) {
	in := map[string]float64{"a": 1, "b": 0, "c": 0}
	out := NormalizeTonality(in, "a", 0.4)
	if !approx(out["a"], 0.4) {
		t.Errorf("a = %v, want 0.4", out["a"])
	}
	if out["b"] != 0 || out["c"] != 0 {
		t.Errorf("rest should stay zero: %v", out)
	}
}

func TestNormalizeTonalitySingleAxis(t *testing.T) {
	out := NormalizeTonality(map[string]float64{"only": 1}, "only", 0.4)
	if !approx(out["only"], 0.4) {
		t.Errorf("only = %v, want 0.4", out["only"])
	}
}

func TestClamp01(t *testing.T) {
	cases := []struct {
		in, want float64
	}{
		{-0.2, 0},
		{0, 0},
		{0.4, 0.4},
		{1, 1},
		{1.7, 1},
		{math.NaN(), 0},
	}
	for _, c := range cases {
		if got := Clamp01(c.in); got != c.want {
			t.Errorf("Clamp01(%v) = %v, want %v", c.in, got, c.want)
		}
	}
}

func TestTemperatureLabels(t *testing.T) {
	cases := []struct {
		temp float64
		want string
	}{
		{0, "Boring"},
		{0.3, "Boring"},
		{0.31, "Balanced"},
		{0.6, "Balanced"},
		{0.7, "Creative"},
		{0.8, "Creative"},
		{0.81, "Unhinged"},
		{1, "Unhinged"},
	}
	for _, c := range cases {
		if got := TemperatureLabel(c.temp); got != c.want {
			t.Errorf("TemperatureLabel(%v) = %q, want %q", c.temp, got, c.want)
		}
	}
}

func TestDefaultIsValidAndIsolated(t *testing.T) {
	d := Default()
	if err := Validate(d); err != nil {
		t.Fatalf("Validate(Default()): %v", err)
	}
	for k, v := range d.Tonality {
		if v != 0 {
			t.Errorf("default tonality %q = %v, want 0", k, v)
		}
	}
	d.Tonality["formal"] = 9
	if DefaultTonality["formal"] != 0 {
		t.Error("mutating a Default() copy leaked into the package defaults")
	}
}

func TestMergeFillsMissingFields(t *testing.T) {
	merged := Merge(models.Steering{})
	if err := Validate(merged); err != nil {
		t.Fatalf("Validate(Merge(zero)): %v", err)
	}
	if merged.NumSuggestions != DefaultNumSuggestions {
		t.Errorf("num suggestions = %d, want %d", merged.NumSuggestions, DefaultNumSuggestions)
	}
	if merged.Temperature != DefaultTemperature {
		t.Errorf("temperature = %v, want %v", merged.Temperature, DefaultTemperature)
	}
	if len(merged.Authors) == 0 || len(merged.Tonality) == 0 {
		t.Errorf("authors/tonality not filled: %+v", merged)
	}

	partial := Merge(models.Steering{NumSuggestions: 2, Authors: []string{"Franz Kafka"}})
	if partial.NumSuggestions != 2 {
		t.Errorf("explicit num suggestions overwritten: %d", partial.NumSuggestions)
	}
	if len(partial.Authors) != 1 || partial.Authors[0] != "Franz Kafka" {
		t.Errorf("explicit authors overwritten: %v", partial.Authors)
	}
	if partial.Temperature != DefaultTemperature {
		t.Errorf("temperature = %v, want default", partial.Temperature)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	s := Default()
	s.Temperature = 1.5
	if err := Validate(s); err == nil {
		t.Error("temperature 1.5 should fail")
	}

	s = Default()
	s.NumSuggestions = 0
	if err := Validate(s); err == nil {
		t.Error("zero suggestions should fail")
	}

	s = Default()
	s.NumSuggestions = 9
	if err := Validate(s); err == nil {
		t.Error("nine suggestions should fail")
	}

	s = Default()
	s.Authors = []string{"Franz Kafka", ""}
	if err := Validate(s); err == nil {
		t.Error("blank author should fail")
	}

	s = Default()
	s.Tonality = map[string]float64{"formal": 1.2}
	if err := Validate(s); err == nil {
		t.Error("out-of-range tonality should fail")
	}
}

func TestAxesStableOrder(t *testing.T) {
	axes := Axes(map[string]float64{"zeta": 0, "alpha": 0, "mid": 0})
	want := []string{"alpha", "mid", "zeta"}
	for i := range want {
		if axes[i] != want[i] {
			t.Fatalf("axes = %v, want %v", axes, want)
		}
	}
}
