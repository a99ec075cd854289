package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventLoopOrdering(t *testing.T) {
	var processed []int

	el := NewEventLoop()

	// Schedule events out of order
	el.ScheduleAt(300, func() { processed = append(processed, 1) })
	el.ScheduleAt(100, func() { processed = append(processed, 2) })
	el.ScheduleAt(200, func() { processed = append(processed, 3) })

	el.Run()

	// Order should be: ts=100(2), ts=200(3), ts=300(1)
	assert.Equal(t, []int{2, 3, 1}, processed)
	assert.Equal(t, 300.0, el.Now())
	assert.EqualValues(t, 3, el.EventsProcessed)
}

func TestEventLoopSameTimestampFIFO(t *testing.T) {
	var processed []int

	el := NewEventLoop()
	for _, id := range []int{10, 20, 30} {
		id := id
		el.ScheduleAt(100, func() { processed = append(processed, id) })
	}

	el.Run()

	assert.Equal(t, []int{10, 20, 30}, processed)
}

func TestEventLoopActionsEnqueueNewEvents(t *testing.T) {
	var times []float64

	el := NewEventLoop()
	el.ScheduleAt(0, func() {
		times = append(times, el.Now())
		el.ScheduleAfter(10, func() { times = append(times, el.Now()) })
		el.ScheduleAfter(20, func() { times = append(times, el.Now()) })
	})
	el.Run()

	assert.Equal(t, []float64{0, 10, 20}, times)
}

func TestScheduleInThePastRunsNow(t *testing.T) {
	el := NewEventLoop()
	var at float64 = -1
	el.ScheduleAt(50, func() {
		el.ScheduleAt(10, func() { at = el.Now() })
	})
	el.Run()

	assert.Equal(t, 50.0, at)
}

func TestRunUntil(t *testing.T) {
	var count int

	el := NewEventLoop()
	el.ScheduleAt(100, func() { count++ })
	el.ScheduleAt(200, func() { count++ })
	el.ScheduleAt(300, func() { count++ })

	hasMore := el.RunUntil(200)

	assert.Equal(t, 2, count)
	assert.True(t, hasMore)
	assert.Equal(t, 1, el.Pending())
}

type countdown struct {
	step    float64
	left    int
	resumed []float64
}

func (c *countdown) Resume(now float64) (float64, bool) {
	c.resumed = append(c.resumed, now)
	c.left--
	if c.left == 0 {
		return 0, false
	}
	return now + c.step, true
}

func TestRegisterResumesTaskAtRequestedTimes(t *testing.T) {
	el := NewEventLoop()
	task := &countdown{step: 25, left: 4}
	el.Register(task)

	require.False(t, el.RunUntil(1000))
	assert.Equal(t, []float64{0, 25, 50, 75}, task.resumed)
}

func TestTasksInterleaveDeterministically(t *testing.T) {
	var order []string
	el := NewEventLoop()
	el.Register(taskFunc(func(now float64) (float64, bool) {
		order = append(order, "a")
		return 0, false
	}))
	el.Register(taskFunc(func(now float64) (float64, bool) {
		order = append(order, "b")
		return 0, false
	}))
	el.Run()

	assert.Equal(t, []string{"a", "b"}, order)
}

type taskFunc func(now float64) (float64, bool)

func (f taskFunc) Resume(now float64) (float64, bool) { return f(now) }
