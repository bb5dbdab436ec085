package georaster

import (
	"testing"
	"time"

	"github.com/alecthomas/assert/v2"
)

type testClock struct {
	t time.Time
}

func (c *testClock) now() time.Time {
	return c.t
}

func (c *testClock) advance(d time.Duration) {
	c.t = c.t.Add(d)
}

func TestAbsentTileList(t *testing.T) {
	clock := &testClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	l, err := NewAbsentTileList(16, 3, time.Minute, WithClock(clock.now))
	assert.NoError(t, err)

	assert.False(t, l.IsAbsent(7))
	l.MarkAbsent(7)
	l.MarkAbsent(7)
	assert.False(t, l.IsAbsent(7))
	l.MarkAbsent(7)
	assert.True(t, l.IsAbsent(7))
	assert.False(t, l.IsAbsent(8))

	clock.advance(59 * time.Second)
	assert.True(t, l.IsAbsent(7))

	clock.advance(time.Second)
	assert.False(t, l.IsAbsent(7))
	assert.Equal(t, 3, l.Attempts(7))

	l.MarkAbsent(7)
	assert.True(t, l.IsAbsent(7))
	assert.Equal(t, 4, l.Attempts(7))

	l.UnmarkAbsent(7)
	assert.False(t, l.IsAbsent(7))
	assert.Equal(t, 0, l.Attempts(7))
}

func TestAbsentTileList_Bounded(t *testing.T) {
	clock := &testClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	l, err := NewAbsentTileList(2, 1, time.Minute, WithClock(clock.now))
	assert.NoError(t, err)
	l.MarkAbsent(1)
	l.MarkAbsent(2)
	l.MarkAbsent(3)
	assert.False(t, l.IsAbsent(1))
	assert.True(t, l.IsAbsent(2))
	assert.True(t, l.IsAbsent(3))
}

func TestNewAbsentTileList_Invalid(t *testing.T) {
	_, err := NewAbsentTileList(0, 1, time.Second)
	assert.Error(t, err)
	_, err = NewAbsentTileList(1, 0, time.Second)
	assert.Error(t, err)
}
