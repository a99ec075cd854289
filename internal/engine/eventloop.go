// Package engine provides a deterministic discrete-event simulation loop
// with cooperatively scheduled tasks
package engine

import (
	"container/heap"
	"math"
)

// Task is a resumable routine driven by the loop. Resume is called at the
// time the task asked for; it returns the absolute time of its next action
// and whether it has one.
type Task interface {
	Resume(now float64) (next float64, more bool)
}

type entry struct {
	timestamp float64
	seqNo     uint64
	action    func()
}

// entryHeap is a min-heap of entries ordered by (timestamp, seqNo)
type entryHeap []*entry

func (h entryHeap) Len() int      { return len(h) }
func (h entryHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h entryHeap) Less(i, j int) bool {
	if h[i].timestamp != h[j].timestamp {
		return h[i].timestamp < h[j].timestamp
	}
	return h[i].seqNo < h[j].seqNo
}

func (h *entryHeap) Push(x any) {
	*h = append(*h, x.(*entry))
}

func (h *entryHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil // avoid memory leak
	*h = old[:n-1]
	return item
}

// EventLoop is the shared simulation clock
type EventLoop struct {
	queue entryHeap
	seqNo uint64
	now   float64

	// Stats
	EventsProcessed uint64
}

// NewEventLoop creates an empty loop at time zero
func NewEventLoop() *EventLoop {
	el := &EventLoop{}
	heap.Init(&el.queue)
	return el
}

// Now returns the current simulation time
func (el *EventLoop) Now() float64 {
	return el.now
}

// ScheduleAt registers an action at an absolute time. Times in the past are
// moved to the current instant; the clock never runs backwards.
// Equal timestamps run in registration order.
func (el *EventLoop) ScheduleAt(at float64, action func()) {
	if at < el.now || math.IsNaN(at) {
		at = el.now
	}
	el.seqNo++
	heap.Push(&el.queue, &entry{
		timestamp: at,
		seqNo:     el.seqNo,
		action:    action,
	})
}

// ScheduleAfter registers an action d time units from now
func (el *EventLoop) ScheduleAfter(d float64, action func()) {
	el.ScheduleAt(el.now+d, action)
}

// Register starts a task at the current instant
func (el *EventLoop) Register(task Task) {
	el.ScheduleAt(el.now, func() { el.resume(task) })
}

func (el *EventLoop) resume(task Task) {
	next, more := task.Resume(el.now)
	if !more || math.IsInf(next, 1) {
		return
	}
	el.ScheduleAt(next, func() { el.resume(task) })
}

// Run processes events until the queue is empty
func (el *EventLoop) Run() {
	for el.queue.Len() > 0 {
		el.step()
	}
}

// RunUntil processes events until the given time (inclusive)
// Returns true if the queue still has events
func (el *EventLoop) RunUntil(horizon float64) bool {
	for el.queue.Len() > 0 {
		// Peek at the next event
		if el.queue[0].timestamp > horizon {
			return true
		}
		el.step()
	}
	return false
}

func (el *EventLoop) step() {
	e := heap.Pop(&el.queue).(*entry)
	el.now = e.timestamp
	el.EventsProcessed++
	e.action()
}

// Pending returns the number of events still in the queue
func (el *EventLoop) Pending() int {
	return el.queue.Len()
}
