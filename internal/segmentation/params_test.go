package segmentation

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBandsFromThresholds(t *testing.T) {
	bands, err := BandsFromThresholds([]int{50, 100, 200, 255})
	require.NoError(t, err)
	assert.Equal(t, []Band{{50, 100}, {100, 200}, {200, 255}}, bands)
}

func TestBandsFromThresholdsAllowsEqualNeighbours(t *testing.T) {
	bands, err := BandsFromThresholds([]int{10, 10, 20})
	require.NoError(t, err)
	assert.Len(t, bands, 2)
	assert.True(t, bands[0].Contains(10))
	assert.False(t, bands[0].Contains(11))
}

func TestBandsFromThresholdsRejects(t *testing.T) {
	for _, thresholds := range [][]int{nil, {50}, {100, 50}, {-1, 10}, {0, 256}} {
		_, err := BandsFromThresholds(thresholds)
		if !errors.Is(err, ErrInvalidThresholds) {
			t.Fatalf("thresholds %v: expected ErrInvalidThresholds, got %v", thresholds, err)
		}
	}
}

func TestParamsValidateKernel(t *testing.T) {
	p := Params{Thresholds: []int{0, 255}, KernelSize: 0}
	assert.ErrorIs(t, p.Validate(), ErrInvalidKernel)
}
