package auction

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIncrementSchedule(t *testing.T) {
	s := DefaultIncrementSchedule()
	require.NoError(t, s.Validate())

	assert.Equal(t, int64(500), s.Step(0))
	assert.Equal(t, int64(500), s.Step(9_999))
	assert.Equal(t, int64(2_500), s.Step(10_000))
	assert.Equal(t, int64(5_000), s.Step(100_000))
	assert.Equal(t, int64(10_000), s.Step(500_000))
	assert.Equal(t, int64(25_000), s.Step(1_000_000))
	assert.Equal(t, int64(50_000), s.Step(5_000_000))
	assert.Equal(t, int64(50_000), s.Step(100_000_000))
}

func TestStepIsMonotonic(t *testing.T) {
	s := DefaultIncrementSchedule()
	var prev int64
	for amount := int64(0); amount <= 10_000_000; amount += 1_000 {
		step := s.Step(amount)
		assert.GreaterOrEqual(t, step, prev, "step must not decrease at %d", amount)
		prev = step
	}
}

func TestParseIncrementSchedule(t *testing.T) {
	s, err := ParseIncrementSchedule("150000:5000,:10000")
	require.NoError(t, err)
	assert.Equal(t, int64(5_000), s.Step(0))
	assert.Equal(t, int64(5_000), s.Step(149_999))
	assert.Equal(t, int64(10_000), s.Step(150_000))
}

func TestParseIncrementScheduleSortsTiers(t *testing.T) {
	s, err := ParseIncrementSchedule(":10000,150000:5000")
	require.NoError(t, err)
	assert.Equal(t, int64(5_000), s.Step(100))
}

func TestParseIncrementScheduleRejectsBadInput(t *testing.T) {
	for _, spec := range []string{
		"",                    // empty
		"abc:5000,:10000",     // bad upper
		"150000:xyz,:10000",   // bad step
		"150000:5000",         // no open-ended tier
		"150000:5000,:1000",   // decreasing step
		"150000:0,:10000",     // zero step
		"100:5,100:10,:20",    // duplicate upper
		"150000:5000:9,:1000", // step not numeric after the first colon
	} {
		_, err := ParseIncrementSchedule(spec)
		assert.Error(t, err, "spec %q should be rejected", spec)
	}
}
