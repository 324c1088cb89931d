package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mklimuk/afe/adc"
)

func TestParseMux(t *testing.T) {
	tests := []struct {
		in   string
		want adc.Mux
	}{
		{"AIN0", adc.MuxAIN0},
		{"ain3", adc.MuxAIN3},
		{"AIN0-AIN1", adc.MuxAIN0AIN1},
		{"ain2-ain3", adc.MuxAIN2AIN3},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			m, err := parseMux(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, m)
		})
	}
	_, err := parseMux("AIN4")
	assert.Error(t, err)
}
