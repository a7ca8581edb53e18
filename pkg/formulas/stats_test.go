package formulas

import (
	"math"
	"testing"
)

func TestMean(t *testing.T) {
	tests := []struct {
		name      string
		data      []float64
		expected  float64
		tolerance float64
	}{
		{
			name:      "empty data",
			data:      []float64{},
			expected:  0.0,
			tolerance: 0.0,
		},
		{
			name:      "single value",
			data:      []float64{42.5},
			expected:  42.5,
			tolerance: 0.0,
		},
		{
			name:      "integer sequence",
			data:      []float64{1, 2, 3, 4, 5},
			expected:  3.0,
			tolerance: 1e-12,
		},
		{
			name:      "symmetric around zero",
			data:      []float64{-1, 1},
			expected:  0.0,
			tolerance: 1e-12,
		},
		{
			name:      "daily returns",
			data:      []float64{0.01, 0.02, 0.03},
			expected:  0.02,
			tolerance: 1e-12,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Mean(tt.data)
			if math.Abs(result-tt.expected) > tt.tolerance {
				t.Errorf("Mean() = %v, want %v (±%v)", result, tt.expected, tt.tolerance)
			}
		})
	}
}

func TestStdDev(t *testing.T) {
	tests := []struct {
		name      string
		data      []float64
		expected  float64
		tolerance float64
	}{
		{
			name:      "empty data",
			data:      []float64{},
			expected:  0.0,
			tolerance: 0.0,
		},
		{
			name:      "single value has no sample deviation",
			data:      []float64{5.0},
			expected:  0.0,
			tolerance: 0.0,
		},
		{
			name:      "known sample deviation",
			data:      []float64{2, 4, 4, 4, 5, 5, 7, 9},
			expected:  2.1381, // sqrt(32/7)
			tolerance: 0.0001,
		},
		{
			name:      "constant series",
			data:      makeReturns(0.001, 50),
			expected:  0.0,
			tolerance: 1e-12,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := StdDev(tt.data)
			if math.Abs(result-tt.expected) > tt.tolerance {
				t.Errorf("StdDev() = %v, want %v (±%v)", result, tt.expected, tt.tolerance)
			}
		})
	}
}

func TestPopStdDev(t *testing.T) {
	tests := []struct {
		name      string
		data      []float64
		expected  float64
		tolerance float64
	}{
		{
			name:      "empty data",
			data:      []float64{},
			expected:  0.0,
			tolerance: 0.0,
		},
		{
			name:      "single value",
			data:      []float64{5.0},
			expected:  0.0,
			tolerance: 0.0,
		},
		{
			name:      "known population deviation",
			data:      []float64{2, 4, 4, 4, 5, 5, 7, 9},
			expected:  2.0, // sqrt(32/8)
			tolerance: 1e-12,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := PopStdDev(tt.data)
			if math.Abs(result-tt.expected) > tt.tolerance {
				t.Errorf("PopStdDev() = %v, want %v (±%v)", result, tt.expected, tt.tolerance)
			}
		})
	}
}

func TestVariance(t *testing.T) {
	tests := []struct {
		name      string
		data      []float64
		expected  float64
		tolerance float64
	}{
		{
			name:      "empty data",
			data:      []float64{},
			expected:  0.0,
			tolerance: 0.0,
		},
		{
			name:      "single value",
			data:      []float64{3.0},
			expected:  0.0,
			tolerance: 0.0,
		},
		{
			name:      "known sample variance",
			data:      []float64{2, 4, 4, 4, 5, 5, 7, 9},
			expected:  4.5714, // 32/7
			tolerance: 0.0001,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Variance(tt.data)
			if math.Abs(result-tt.expected) > tt.tolerance {
				t.Errorf("Variance() = %v, want %v (±%v)", result, tt.expected, tt.tolerance)
			}
		})
	}
}

func TestMinMax(t *testing.T) {
	tests := []struct {
		name    string
		data    []float64
		wantMin float64
		wantMax float64
	}{
		{
			name:    "empty data",
			data:    []float64{},
			wantMin: 0.0,
			wantMax: 0.0,
		},
		{
			name:    "mixed values",
			data:    []float64{3, 1, 4, 1, 5},
			wantMin: 1.0,
			wantMax: 5.0,
		},
		{
			name:    "all negative",
			data:    []float64{-3, -1, -7},
			wantMin: -7.0,
			wantMax: -1.0,
		},
		{
			name:    "single value",
			data:    []float64{2.5},
			wantMin: 2.5,
			wantMax: 2.5,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Min(tt.data); got != tt.wantMin {
				t.Errorf("Min() = %v, want %v", got, tt.wantMin)
			}
			if got := Max(tt.data); got != tt.wantMax {
				t.Errorf("Max() = %v, want %v", got, tt.wantMax)
			}
		})
	}
}

func TestPercentile(t *testing.T) {
	tests := []struct {
		name        string
		data        []float64
		p           float64
		want        float64
		wantErr     bool
		tolerance   float64
		description string
	}{
		{
			name:        "empty data",
			data:        []float64{},
			p:           0.5,
			want:        0.0,
			tolerance:   0.0,
			description: "Empty data yields the degenerate value",
		},
		{
			name:        "median of odd count",
			data:        []float64{1, 2, 3, 4, 5},
			p:           0.5,
			want:        3.0,
			tolerance:   1e-12,
			description: "Exact middle element",
		},
		{
			name:        "median of even count interpolates",
			data:        []float64{1, 2, 3, 4},
			p:           0.5,
			want:        2.5,
			tolerance:   1e-12,
			description: "Halfway between the two middle elements",
		},
		{
			name:        "zeroth percentile is the minimum",
			data:        []float64{1, 2, 3, 4, 5},
			p:           0.0,
			want:        1.0,
			tolerance:   0.0,
			description: "Rank 0 maps to the smallest value",
		},
		{
			name:        "hundredth percentile is the maximum",
			data:        []float64{1, 2, 3, 4, 5},
			p:           1.0,
			want:        5.0,
			tolerance:   0.0,
			description: "Rank 1 maps to the largest value",
		},
		{
			name:        "quarter lands on an element",
			data:        []float64{1, 2, 3, 4, 5},
			p:           0.25,
			want:        2.0,
			tolerance:   1e-12,
			description: "0.25*(5-1) = 1, no interpolation needed",
		},
		{
			name:        "fractional index interpolates linearly",
			data:        []float64{1, 2, 3, 4, 5},
			p:           0.1,
			want:        1.4,
			tolerance:   1e-12,
			description: "0.1*(5-1) = 0.4 between first and second element",
		},
		{
			name:        "unsorted input is sorted internally",
			data:        []float64{5, 1, 3, 2, 4},
			p:           0.5,
			want:        3.0,
			tolerance:   1e-12,
			description: "Order of the input does not matter",
		},
		{
			name:        "rank above one rejected",
			data:        []float64{1, 2, 3},
			p:           1.5,
			wantErr:     true,
			description: "Ranks are fractions, not percentages",
		},
		{
			name:        "negative rank rejected",
			data:        []float64{1, 2, 3},
			p:           -0.1,
			wantErr:     true,
			description: "Negative ranks are invalid",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := Percentile(tt.data, tt.p)
			if tt.wantErr {
				if err == nil {
					t.Errorf("Percentile() expected error, got %v", result)
				}
				return
			}
			if err != nil {
				t.Fatalf("Percentile() unexpected error: %v", err)
			}
			if math.Abs(result-tt.want) > tt.tolerance {
				t.Errorf("Percentile() = %v, want %v (±%v) - %s", result, tt.want, tt.tolerance, tt.description)
			}
		})
	}
}

func TestPercentileDoesNotMutateInput(t *testing.T) {
	data := []float64{5, 1, 3, 2, 4}
	if _, err := Percentile(data, 0.5); err != nil {
		t.Fatalf("Percentile() unexpected error: %v", err)
	}
	want := []float64{5, 1, 3, 2, 4}
	for i := range data {
		if data[i] != want[i] {
			t.Errorf("input mutated at %d: got %v, want %v", i, data[i], want[i])
		}
	}
}

func TestSkewness(t *testing.T) {
	tests := []struct {
		name      string
		data      []float64
		expected  float64
		tolerance float64
	}{
		{
			name:      "empty data",
			data:      []float64{},
			expected:  0.0,
			tolerance: 0.0,
		},
		{
			name:      "single value",
			data:      []float64{1.0},
			expected:  0.0,
			tolerance: 0.0,
		},
		{
			name:      "symmetric data has zero skew",
			data:      []float64{1, 2, 3, 4, 5},
			expected:  0.0,
			tolerance: 1e-12,
		},
		{
			name:      "constant series has zero deviation",
			data:      []float64{3, 3, 3},
			expected:  0.0,
			tolerance: 0.0,
		},
		{
			name:      "right tail pulls skew positive",
			data:      []float64{1, 1, 1, 1, 10},
			expected:  1.5,
			tolerance: 1e-9,
		},
		{
			name:      "left tail pulls skew negative",
			data:      []float64{-10, -1, -1, -1, -1},
			expected:  -1.5,
			tolerance: 1e-9,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Skewness(tt.data)
			if math.Abs(result-tt.expected) > tt.tolerance {
				t.Errorf("Skewness() = %v, want %v (±%v)", result, tt.expected, tt.tolerance)
			}
		})
	}
}

func TestKurtosis(t *testing.T) {
	tests := []struct {
		name      string
		data      []float64
		expected  float64
		tolerance float64
	}{
		{
			name:      "empty data",
			data:      []float64{},
			expected:  0.0,
			tolerance: 0.0,
		},
		{
			name:      "constant series has zero deviation",
			data:      []float64{2, 2, 2, 2},
			expected:  0.0,
			tolerance: 0.0,
		},
		{
			name:      "flat distribution scores below normal",
			data:      []float64{1, 2, 3, 4, 5},
			expected:  -1.3,
			tolerance: 1e-9,
		},
		{
			name:      "heavy tail scores above normal",
			data:      []float64{1, 1, 1, 1, 10},
			expected:  0.25,
			tolerance: 1e-9,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Kurtosis(tt.data)
			if math.Abs(result-tt.expected) > tt.tolerance {
				t.Errorf("Kurtosis() = %v, want %v (±%v)", result, tt.expected, tt.tolerance)
			}
		})
	}
}

// Helper function to create a slice of identical returns
func makeReturns(value float64, count int) []float64 {
	returns := make([]float64, count)
	for i := range returns {
		returns[i] = value
	}
	return returns
}
