package clock_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/absfs/sealbackup/internal/clock"
)

func TestRealClock(t *testing.T) {
	before := time.Now()
	got := clock.Real{}.Now()
	assert.False(t, got.Before(before))
}

func TestMockClock(t *testing.T) {
	start := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	m := clock.NewMock(start)
	assert.Equal(t, start, m.Now())
	assert.Equal(t, start, m.Now(), "zero step must not advance")

	m.Advance(time.Minute)
	assert.Equal(t, start.Add(time.Minute), m.Now())

	m.SetStep(time.Second)
	assert.Equal(t, start.Add(time.Minute), m.Now())
	assert.Equal(t, start.Add(time.Minute+time.Second), m.Now())

	m.Set(start)
	assert.Equal(t, start, m.Now())
}

func TestMockClockZeroDefault(t *testing.T) {
	m := clock.NewMock(time.Time{})
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), m.Now())
}
