package config_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bamsammich/rdpc/internal/config"
)

func TestParseBandwidth(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input string
		want  int64
	}{
		{"0", 0},
		{"100", 100},
		{"100B", 100},
		{"100k", 102400},
		{"1M", 1 << 20},
		{"1MiB", 1 << 20},
		{"1.5M/s", 3 << 19},
		{"2g", 2 << 30},
		{" 64K ", 64 << 10},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			t.Parallel()
			got, err := config.ParseBandwidth(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseBandwidthErrors(t *testing.T) {
	t.Parallel()

	for _, input := range []string{"", "K", "fast", "-1M", "1X"} {
		t.Run(input, func(t *testing.T) {
			t.Parallel()
			_, err := config.ParseBandwidth(input)
			assert.Error(t, err)
		})
	}
}
