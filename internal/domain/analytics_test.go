package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEfficiencyRatio(t *testing.T) {
	cases := []struct {
		name string
		ac   float64
		dc   float64
		want float64
	}{
		{"typical efficiency below one", 10, 8, 0.8},
		{"zero ac avoids division by zero", 0, 5, 0},
		{"negative ac treated as no consumption", -1, 5, 0},
		{"zero dc over positive ac", 10, 0, 0},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.InDelta(t, tc.want, EfficiencyRatio(tc.ac, tc.dc), 1e-9)
		})
	}
}
