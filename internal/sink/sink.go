// Package sink records packet arrival times per flow
package sink

import (
	"strconv"

	"github.com/akshitanchan/pulsing-relay-simulator/internal/domain"
)

// KeyMode selects which packet field groups arrivals
type KeyMode int8

const (
	ByFlow KeyMode = iota
	BySource
)

// ParseKeyMode maps "flow" / "source" to a KeyMode
func ParseKeyMode(s string) (KeyMode, bool) {
	switch s {
	case "", "flow":
		return ByFlow, true
	case "source", "src":
		return BySource, true
	default:
		return ByFlow, false
	}
}

// ReceiveCallback is called after an arrival has been recorded
type ReceiveCallback func(key string, now float64, pkt domain.Packet)

// Sink is an append-only arrival recorder. Records are created the first
// time a key is seen and keep delivery order.
type Sink struct {
	mode      KeyMode
	arrivals  map[string][]float64
	keys      []string
	OnReceive ReceiveCallback
}

// New creates an empty sink
func New(mode KeyMode) *Sink {
	return &Sink{
		mode:     mode,
		arrivals: make(map[string][]float64),
	}
}

// Key returns the record key a packet is filed under
func (s *Sink) Key(pkt domain.Packet) string {
	if s.mode == BySource {
		return pkt.Src
	}
	return FlowKey(pkt.FlowID)
}

// FlowKey is the record key for a flow id
func FlowKey(flowID int) string {
	return strconv.Itoa(flowID)
}

// Receive implements network.Receiver
func (s *Sink) Receive(now float64, pkt domain.Packet) {
	key := s.Key(pkt)
	s.Record(key, now)
	if s.OnReceive != nil {
		s.OnReceive(key, now, pkt)
	}
}

// Record appends an arrival time under key
func (s *Sink) Record(key string, t float64) {
	if _, ok := s.arrivals[key]; !ok {
		s.keys = append(s.keys, key)
	}
	s.arrivals[key] = append(s.arrivals[key], t)
}

// Arrivals returns a copy of the arrival times recorded under key
func (s *Sink) Arrivals(key string) []float64 {
	a := s.arrivals[key]
	out := make([]float64, len(a))
	copy(out, a)
	return out
}

// Count returns how many arrivals key has
func (s *Sink) Count(key string) int {
	return len(s.arrivals[key])
}

// Keys lists record keys in first-seen order
func (s *Sink) Keys() []string {
	out := make([]string, len(s.keys))
	copy(out, s.keys)
	return out
}
